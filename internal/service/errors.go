package service

import (
	"context"
	"errors"

	"github.com/vaidashi/freight-exchange/internal/repository"
	apperrors "github.com/vaidashi/freight-exchange/pkg/errors"
	"github.com/vaidashi/freight-exchange/pkg/logger"
)

// Domain errors. Services return them as the Cause of an AppError so callers
// can match either the kind (errors.Is(err, apperrors.ErrConflict)) or the
// exact rule that was broken.
var (
	ErrDuplicateOffer          = errors.New("offer already submitted for this announcement")
	ErrAnnouncementNotActive   = errors.New("announcement is not accepting offers")
	ErrNotVerified             = errors.New("company is not verified")
	ErrOfferNotEditable        = errors.New("only pending offers can be edited")
	ErrInvalidStatus           = errors.New("invalid status")
	ErrAlreadyDelivered        = errors.New("shipment already delivered")
	ErrNonMonotonicTransition  = errors.New("shipment status can only move forward")
	ErrOfferAlreadyAccepted    = errors.New("another offer is already accepted")
	ErrShipmentInProgress      = errors.New("shipment has already progressed")
	ErrAnnouncementClosed      = errors.New("announcement is closed")
	ErrOfferNotAccepted        = errors.New("offer is not accepted")
	ErrShipmentNotDelivered    = errors.New("shipment is not delivered")
	ErrEmailTaken              = errors.New("email already registered")
	ErrInvalidCredentials      = errors.New("invalid email or password")
	ErrInactiveAccount         = errors.New("account is disabled")
	ErrReviewExists            = errors.New("shipment already reviewed")
	ErrAnnouncementDeadline    = errors.New("deadline must be in the future")
	ErrStatusTransitionInvalid = errors.New("status transition not allowed")
)

func notVerified() error {
	return apperrors.NewForbiddenError("company must be verified and active").
		WithCause(ErrNotVerified).WithCode("NOT_VERIFIED")
}

func forbidden(msg string) error {
	return apperrors.NewForbiddenError(msg).WithCode("FORBIDDEN")
}

func conflict(cause error, code string) error {
	return apperrors.NewConflictError(cause.Error()).WithCause(cause).WithCode(code)
}

func invalidStatus(status string) error {
	return apperrors.NewValidationError("invalid status", map[string]string{"status": "unknown status " + status}).
		WithCause(ErrInvalidStatus).WithCode("INVALID_STATUS")
}

// storeError translates a repository error into an AppError. AppErrors pass
// through untouched so it is safe to apply twice around InTx.
func storeError(log logger.Logger, err error, entity string) error {
	if err == nil {
		return nil
	}
	if _, ok := apperrors.AsAppError(err); ok {
		return err
	}

	switch {
	case errors.Is(err, repository.ErrNotFound):
		return apperrors.NewNotFoundError(entity + " not found").WithCode("NOT_FOUND")
	case errors.Is(err, repository.ErrDuplicate):
		return apperrors.NewConflictError(entity + " already exists").WithCode("DUPLICATE")
	case errors.Is(err, repository.ErrCheck):
		return apperrors.NewValidationError("validation failed",
			map[string]string{entity: "violates a stored constraint"}).WithCause(err).WithCode("VALIDATION_FAILED")
	case errors.Is(err, context.DeadlineExceeded):
		return apperrors.NewTimeoutError("request timed out").WithCause(err)
	case errors.Is(err, context.Canceled):
		return apperrors.NewTemporaryError("request cancelled").WithCause(err)
	}

	log.Error("Unexpected store error", "entity", entity, "error", err)
	return apperrors.NewInternalError("internal error").WithCause(err)
}
