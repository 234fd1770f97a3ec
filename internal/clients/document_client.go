package clients

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/vaidashi/freight-exchange/internal/service"
	"github.com/vaidashi/freight-exchange/pkg/circuitbreaker"
	"github.com/vaidashi/freight-exchange/pkg/errors"
	"github.com/vaidashi/freight-exchange/pkg/logger"
	"github.com/vaidashi/freight-exchange/pkg/retry"
)

// maxDocumentSize caps the rendered body read into memory
const maxDocumentSize = 10 << 20

// DocumentClient talks to the external document renderer
type DocumentClient struct {
	baseURL     string
	httpClient  *http.Client
	logger      logger.Logger
	retryConfig *retry.RetryConfig
	breaker     *circuitbreaker.CircuitBreaker
}

// RenderedDocument is a file produced by the renderer
type RenderedDocument struct {
	Filename    string
	ContentType string
	Body        []byte
}

// errorResponse is the renderer's error body
type errorResponse struct {
	Error string `json:"error,omitempty"`
	Code  string `json:"code,omitempty"`
}

// DocumentClientOption customizes a DocumentClient
type DocumentClientOption func(*DocumentClient)

// WithBackoff replaces the retry backoff, mostly for tests
func WithBackoff(b retry.BackoffStrategy) DocumentClientOption {
	return func(c *DocumentClient) { c.retryConfig.BackoffStrategy = b }
}

// WithCircuitBreaker shares a breaker with the rest of the process
func WithCircuitBreaker(cb *circuitbreaker.CircuitBreaker) DocumentClientOption {
	return func(c *DocumentClient) { c.breaker = cb }
}

// NewDocumentClient creates a new DocumentClient instance
func NewDocumentClient(baseURL string, timeout time.Duration, logger logger.Logger, opts ...DocumentClientOption) *DocumentClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	c := &DocumentClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With("component", "document_client"),
		retryConfig: &retry.RetryConfig{
			MaxAttempts: 3,
			BackoffStrategy: &retry.ExponentialBackoff{
				InitialInterval: 500 * time.Millisecond,
				MaxInterval:     5 * time.Second,
				Multiplier:      1.5,
				JitterFactor:    0.2,
			},
			Logger: logger,
			RetryableErrors: []error{
				errors.ErrTimeout,
				errors.ErrTemporaryFailure,
				errors.ErrServiceUnavailable,
			},
		},
		breaker: circuitbreaker.NewCircuitBreaker(circuitbreaker.CircuitBreakerConfig{
			FailureThreshold: 5,
			ResetTimeout:     30 * time.Second,
			HalfOpenMaxCalls: 1,
		}),
	}

	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Breaker exposes the client's circuit breaker to the admin API
func (c *DocumentClient) Breaker() *circuitbreaker.CircuitBreaker {
	return c.breaker
}

// RenderOffer sends the offer document to the renderer and returns the file.
// Transient failures are retried. A run of failures opens the breaker and
// further calls fail fast with ErrServiceUnavailable.
func (c *DocumentClient) RenderOffer(ctx context.Context, doc *service.OfferDocument) (*RenderedDocument, error) {
	url := fmt.Sprintf("%s/api/v1/render/offer", c.baseURL)

	reqBody, err := json.Marshal(doc)
	if err != nil {
		return nil, errors.NewInternalError("failed to encode document").WithCause(err)
	}

	var rendered *RenderedDocument
	err = c.breaker.Execute(func() error {
		return retry.Retry(ctx, func() error {
			var err error
			rendered, err = c.post(ctx, url, reqBody)
			return err
		}, c.retryConfig)
	})

	if stderrors.Is(err, circuitbreaker.ErrOpen) {
		c.logger.Warn("Document renderer circuit is open", "offerID", doc.Offer.ID)
		return nil, errors.NewServiceUnavailableError("document renderer is unavailable").WithCause(err)
	}
	if err != nil {
		c.logger.Error("Failed to render offer document after retries",
			"error", err,
			"offerID", doc.Offer.ID)
		return nil, err
	}

	if rendered.Filename == "" {
		rendered.Filename = fmt.Sprintf("offer-%s.pdf", doc.Offer.ID)
	}
	return rendered, nil
}

func (c *DocumentClient) post(ctx context.Context, url string, body []byte) (*RenderedDocument, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, errors.NewInternalError(fmt.Sprintf("failed to create request: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/pdf")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		var netErr net.Error
		if stderrors.As(err, &netErr) && netErr.Timeout() {
			return nil, errors.NewTimeoutError("render request timed out")
		}
		return nil, errors.NewTemporaryError(fmt.Sprintf("failed to send request: %v", err))
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize))
	if err != nil {
		return nil, errors.NewTemporaryError(fmt.Sprintf("failed to read response body: %v", err))
	}

	if resp.StatusCode >= 400 {
		return nil, statusError(resp.StatusCode, payload)
	}

	return &RenderedDocument{
		Filename:    filename(resp.Header.Get("Content-Disposition")),
		ContentType: resp.Header.Get("Content-Type"),
		Body:        payload,
	}, nil
}

func statusError(status int, payload []byte) error {
	var body errorResponse
	_ = json.Unmarshal(payload, &body)
	msg := body.Error
	if msg == "" {
		msg = fmt.Sprintf("document renderer returned %d", status)
	}

	switch status {
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return errors.NewTimeoutError(msg)
	case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusInternalServerError, http.StatusTooManyRequests:
		return errors.NewTemporaryError(msg)
	}

	return errors.NewAppError(errors.ErrInternal, msg, http.StatusBadGateway, false).WithCode(body.Code)
}

// filename reads the filename parameter of a Content-Disposition header
func filename(disposition string) string {
	if disposition == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(disposition)
	if err != nil {
		return ""
	}
	return params["filename"]
}
