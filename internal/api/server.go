package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/vaidashi/freight-exchange/internal/auth"
	"github.com/vaidashi/freight-exchange/internal/clients"
	"github.com/vaidashi/freight-exchange/internal/config"
	"github.com/vaidashi/freight-exchange/internal/handlers"
	"github.com/vaidashi/freight-exchange/internal/repository"
	"github.com/vaidashi/freight-exchange/internal/service"
	"github.com/vaidashi/freight-exchange/pkg/logger"
	"github.com/vaidashi/freight-exchange/pkg/middleware"
)

// Version is reported by the health endpoint
const Version = "1.0.0"

// Worker is a background loop started and stopped with the server
type Worker interface {
	Start()
	Stop()
}

// Dependencies are the collaborators the HTTP layer needs. Documents and
// Events may be nil: export then returns JSON and event stats report disabled.
type Dependencies struct {
	Companies     *service.CompanyService
	Announcements *service.AnnouncementService
	Offers        *service.OfferService
	Shipments     *service.ShipmentService
	Reviews       *service.ReviewService
	Notifications *service.NotificationService
	Reports       *service.ReportService

	Tokens   *auth.TokenIssuer
	Sessions *auth.SessionCache

	Outbox      repository.OutboxStore
	DeadLetters repository.DeadLetterStore

	Documents *clients.DocumentClient
	Events    *handlers.MarketplaceEventsHandler
	Workers   []Worker
}

type Server struct {
	config     *config.Config
	logger     logger.Logger
	router     *mux.Router
	httpServer *http.Server
	deps       Dependencies

	rateLimiter         *middleware.RateLimiterMiddleware
	endpointRateLimiter *middleware.EndpointRateLimiterMiddleware
	gracefulDegradation *middleware.GracefulDegradation
}

// NewServer builds the router. Background workers start with Start.
func NewServer(cfg *config.Config, deps Dependencies, logger logger.Logger) *Server {
	r := mux.NewRouter()

	if cfg.RateLimit.IPMaxTokens <= 0 || cfg.RateLimit.IPRefillRate <= 0 {
		cfg.RateLimit.IPMaxTokens, cfg.RateLimit.IPRefillRate = 100, 10
	}

	s := &Server{
		config: cfg,
		logger: logger,
		router: r,
		deps:   deps,
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      r,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		rateLimiter: middleware.NewRateLimiterMiddleware(&middleware.RateLimiterConfig{
			GlobalMaxTokens:   1000,
			GlobalMaxRate:     500,
			GlobalMinRate:     50,
			GlobalThreshold:   0.8,
			IPMaxTokens:       cfg.RateLimit.IPMaxTokens,
			IPRefillRate:      cfg.RateLimit.IPRefillRate,
			TrustForwardedFor: cfg.RateLimit.TrustForwardedFor,
		}, logger),
		endpointRateLimiter: middleware.NewEndpointRateLimiterMiddleware(200, 100, logger),
		gracefulDegradation: middleware.NewGracefulDegradation(logger, "/api/v1/health", "/api/v1/admin"),
	}

	// Writes that fan out notifications get tighter buckets
	s.endpointRateLimiter.SetLimit("POST:/api/v1/auth/login", 20, 1)
	s.endpointRateLimiter.SetLimit("POST:/api/v1/auth/register", 10, 0.2)
	s.endpointRateLimiter.SetLimit("POST:/api/v1/offers/{id}/comments", 60, 2)

	s.setupRoutes()
	return s
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the background workers and then the HTTP server
func (s *Server) Start() error {
	for _, w := range s.deps.Workers {
		w.Start()
	}
	s.logger.Info("Server listening", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown drains HTTP traffic first, then stops the workers
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)

	for i := len(s.deps.Workers) - 1; i >= 0; i-- {
		s.deps.Workers[i].Stop()
	}
	s.rateLimiter.Stop()

	return err
}

// setupRoutes configures all the routes for our API
func (s *Server) setupRoutes() {
	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.recoverMiddleware)
	s.router.Use(s.rateLimiter.Middleware)
	s.router.Use(s.gracefulDegradation.Middleware)
	s.router.Use(s.endpointRateLimiter.Middleware)
	s.router.NotFoundHandler = http.HandlerFunc(s.notFoundHandler)
	s.router.MethodNotAllowedHandler = http.HandlerFunc(s.methodNotAllowedHandler)

	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/health", s.healthCheckHandler).Methods(http.MethodGet)

	api.HandleFunc("/auth/register", s.registerHandler).Methods(http.MethodPost)
	api.HandleFunc("/auth/login", s.loginHandler).Methods(http.MethodPost)
	api.Handle("/auth/me", s.authed(s.meHandler)).Methods(http.MethodGet)

	api.Handle("/companies/users", s.authed(s.createEmployeeHandler)).Methods(http.MethodPost)
	api.Handle("/companies/{id}/reviews", s.authed(s.companyReviewsHandler)).Methods(http.MethodGet)

	api.Handle("/announcements", s.authed(s.listAnnouncementsHandler)).Methods(http.MethodGet)
	api.Handle("/announcements", s.authed(s.createAnnouncementHandler)).Methods(http.MethodPost)
	api.Handle("/announcements/{id}", s.authed(s.getAnnouncementHandler)).Methods(http.MethodGet)
	api.Handle("/announcements/{id}/status", s.authed(s.setAnnouncementStatusHandler)).Methods(http.MethodPatch)

	api.Handle("/offers", s.authed(s.listOffersHandler)).Methods(http.MethodGet)
	api.Handle("/offers", s.authed(s.submitOfferHandler)).Methods(http.MethodPost)
	api.Handle("/offers/{id}", s.authed(s.getOfferHandler)).Methods(http.MethodGet)
	api.Handle("/offers/{id}", s.authed(s.editOfferHandler)).Methods(http.MethodPut)
	api.Handle("/offers/{id}/status", s.authed(s.setOfferStatusHandler)).Methods(http.MethodPatch)
	api.Handle("/offers/{id}/history", s.authed(s.offerHistoryHandler)).Methods(http.MethodGet)
	api.Handle("/offers/{id}/comments", s.authed(s.listCommentsHandler)).Methods(http.MethodGet)
	api.Handle("/offers/{id}/comments", s.authed(s.addCommentHandler)).Methods(http.MethodPost)
	api.Handle("/offers/{id}/export", s.authed(s.exportOfferHandler)).Methods(http.MethodGet)

	api.Handle("/shipments", s.authed(s.listShipmentsHandler)).Methods(http.MethodGet)
	api.Handle("/shipments/{id}", s.authed(s.getShipmentHandler)).Methods(http.MethodGet)
	api.Handle("/shipments/{id}/milestones", s.authed(s.addMilestoneHandler)).Methods(http.MethodPost)
	api.Handle("/shipments/{id}/review", s.authed(s.createReviewHandler)).Methods(http.MethodPost)

	api.Handle("/notifications", s.authed(s.listNotificationsHandler)).Methods(http.MethodGet)
	api.Handle("/notifications/unread-count", s.authed(s.unreadCountHandler)).Methods(http.MethodGet)
	api.Handle("/notifications/read-all", s.authed(s.markAllReadHandler)).Methods(http.MethodPost)
	api.Handle("/notifications/{id}/read", s.authed(s.markReadHandler)).Methods(http.MethodPost)

	api.Handle("/reports/{kind}", s.authed(s.reportHandler)).Methods(http.MethodGet)

	// Admin API for platform operators and monitoring
	admin := api.PathPrefix("/admin").Subrouter()
	admin.Handle("/companies", s.adminOnly(s.listCompaniesHandler)).Methods(http.MethodGet)
	admin.Handle("/companies/{id}", s.adminOnly(s.updateCompanyHandler)).Methods(http.MethodPatch)
	admin.Handle("/dead-letters", s.adminOnly(s.getDeadLettersHandler)).Methods(http.MethodGet)
	admin.Handle("/dead-letters/{id}/retry", s.adminOnly(s.retryDeadLetterHandler)).Methods(http.MethodPost)
	admin.Handle("/dead-letters/{id}/discard", s.adminOnly(s.discardDeadLetterHandler)).Methods(http.MethodPost)
	admin.Handle("/rate-limits", s.adminOnly(s.getRateLimitsHandler)).Methods(http.MethodGet)
	admin.Handle("/rate-limits", s.adminOnly(s.setEndpointRateLimitHandler)).Methods(http.MethodPost)
	admin.Handle("/circuit-breaker", s.adminOnly(s.getCircuitBreakerStatusHandler)).Methods(http.MethodGet)
	admin.Handle("/circuit-breaker/reset", s.adminOnly(s.resetCircuitBreakerHandler)).Methods(http.MethodPost)
	admin.Handle("/events/stats", s.adminOnly(s.eventStatsHandler)).Methods(http.MethodGet)
}
