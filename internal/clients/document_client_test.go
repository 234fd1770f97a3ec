package clients

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaidashi/freight-exchange/internal/models"
	"github.com/vaidashi/freight-exchange/internal/service"
	"github.com/vaidashi/freight-exchange/pkg/circuitbreaker"
	"github.com/vaidashi/freight-exchange/pkg/errors"
	"github.com/vaidashi/freight-exchange/pkg/logger"
	"github.com/vaidashi/freight-exchange/pkg/retry"
)

func testDocument() *service.OfferDocument {
	return &service.OfferDocument{
		Offer:        &models.Offer{ID: "off-1", Status: models.OfferStatusAccepted},
		Announcement: &models.Announcement{ID: "ann-1", Title: "Grain"},
		GeneratedAt:  time.Now().UTC(),
	}
}

func newTestClient(url string, opts ...DocumentClientOption) *DocumentClient {
	opts = append([]DocumentClientOption{WithBackoff(&retry.ConstantBackoff{})}, opts...)
	return NewDocumentClient(url, time.Second, logger.NewNop(), opts...)
}

func TestRenderOffer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/render/offer", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var doc service.OfferDocument
		require.NoError(t, json.NewDecoder(r.Body).Decode(&doc))
		assert.Equal(t, "off-1", doc.Offer.ID)

		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", `attachment; filename="grain-offer.pdf"`)
		_, _ = w.Write([]byte("%PDF-1.7"))
	}))
	defer srv.Close()

	doc, err := newTestClient(srv.URL+"/").RenderOffer(context.Background(), testDocument())
	require.NoError(t, err)
	assert.Equal(t, "grain-offer.pdf", doc.Filename)
	assert.Equal(t, "application/pdf", doc.ContentType)
	assert.Equal(t, "%PDF-1.7", string(doc.Body))
}

func TestRenderOfferRetriesTransientFailures(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("%PDF"))
	}))
	defer srv.Close()

	doc, err := newTestClient(srv.URL).RenderOffer(context.Background(), testDocument())
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	assert.Equal(t, "offer-off-1.pdf", doc.Filename)
}

func TestRenderOfferDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error":"unknown template","code":"TEMPLATE"}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).RenderOffer(context.Background(), testDocument())
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Equal(t, http.StatusBadGateway, errors.StatusCode(err))
	assert.Contains(t, err.Error(), "unknown template")
}

func TestRenderOfferOpensBreaker(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cb := circuitbreaker.NewCircuitBreaker(circuitbreaker.CircuitBreakerConfig{
		FailureThreshold: 2,
		ResetTimeout:     time.Hour,
	})
	client := newTestClient(srv.URL, WithCircuitBreaker(cb))

	for i := 0; i < 2; i++ {
		_, err := client.RenderOffer(context.Background(), testDocument())
		assert.ErrorIs(t, err, errors.ErrTemporaryFailure)
	}
	assert.Equal(t, circuitbreaker.StateOpen, client.Breaker().GetState())
	before := atomic.LoadInt32(&calls)

	_, err := client.RenderOffer(context.Background(), testDocument())
	assert.ErrorIs(t, err, errors.ErrServiceUnavailable)
	assert.Equal(t, before, atomic.LoadInt32(&calls), "open breaker fails fast")
}
