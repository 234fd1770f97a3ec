package errors_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/vaidashi/freight-exchange/pkg/errors"
)

var errDuplicate = errors.New("duplicate offer")

func TestAppErrorMatchesKindAndCause(t *testing.T) {
	err := apperrors.NewConflictError("offer already submitted").WithCause(errDuplicate).WithCode("DUPLICATE_OFFER")
	wrapped := fmt.Errorf("submit: %w", err)

	assert.ErrorIs(t, wrapped, apperrors.ErrConflict)
	assert.ErrorIs(t, wrapped, errDuplicate)
	assert.NotErrorIs(t, wrapped, apperrors.ErrForbidden)

	appErr, ok := apperrors.AsAppError(wrapped)
	require.True(t, ok)
	assert.Equal(t, "DUPLICATE_OFFER", appErr.Code)
	assert.Equal(t, "offer already submitted", appErr.Error())
}

func TestErrorFallsBackToCauseMessage(t *testing.T) {
	err := apperrors.NewAppError(apperrors.ErrConflict, "", http.StatusConflict, false).WithCause(errDuplicate)
	assert.Equal(t, "duplicate offer", err.Error())
}

func TestStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"app error", apperrors.NewForbiddenError("no"), http.StatusForbidden},
		{"validation", apperrors.NewValidationError("bad", map[string]string{"price": "gt"}), http.StatusBadRequest},
		{"plain sentinel", fmt.Errorf("wrap: %w", apperrors.ErrNotFound), http.StatusNotFound},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, apperrors.StatusCode(tt.err))
		})
	}
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, apperrors.IsRetryable(apperrors.NewTimeoutError("slow")))
	assert.False(t, apperrors.IsRetryable(apperrors.NewConflictError("nope")))
	assert.True(t, apperrors.IsRetryable(fmt.Errorf("x: %w", apperrors.ErrServiceUnavailable)))
	assert.False(t, apperrors.IsRetryable(errors.New("plain")))
}
