package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaidashi/freight-exchange/internal/auth"
	"github.com/vaidashi/freight-exchange/internal/clients"
	"github.com/vaidashi/freight-exchange/internal/config"
	"github.com/vaidashi/freight-exchange/internal/handlers"
	"github.com/vaidashi/freight-exchange/internal/models"
	"github.com/vaidashi/freight-exchange/internal/repository/memory"
	"github.com/vaidashi/freight-exchange/internal/service"
	"github.com/vaidashi/freight-exchange/pkg/logger"
	"github.com/vaidashi/freight-exchange/pkg/retry"
)

type envelope struct {
	Success bool              `json:"success"`
	Data    json.RawMessage   `json:"data"`
	Error   string            `json:"error"`
	Code    string            `json:"code"`
	Details map[string]string `json:"details"`
}

type testAPI struct {
	t         *testing.T
	store     *memory.Store
	companies *service.CompanyService
	server    *Server
}

func newTestAPI(t *testing.T, documents *clients.DocumentClient) *testAPI {
	t.Helper()
	log := logger.NewNop()
	store := memory.NewStore()
	tokens := auth.NewTokenIssuer("test-secret", time.Hour)
	companies := service.NewCompanyService(store, tokens, log)
	sessions := auth.NewSessionCache(time.Minute, companies.LoadSession)
	companies.OnCompanyChanged(sessions.InvalidateCompany)
	notifications := service.NewNotificationService(store, log)

	cfg := &config.Config{
		Port:        0,
		StoreDriver: config.StoreDriverMemory,
		RateLimit:   config.RateLimitConfig{IPMaxTokens: 10000, IPRefillRate: 10000},
	}

	srv := NewServer(cfg, Dependencies{
		Companies:     companies,
		Announcements: service.NewAnnouncementService(store, log),
		Offers:        service.NewOfferService(store, notifications, log),
		Shipments:     service.NewShipmentService(store, log),
		Reviews:       service.NewReviewService(store, log),
		Notifications: notifications,
		Reports:       service.NewReportService(store, log),
		Tokens:        tokens,
		Sessions:      sessions,
		Outbox:        store.Outbox(),
		DeadLetters:   store.DeadLetters(),
		Documents:     documents,
		Events:        handlers.NewMarketplaceEventsHandler(log),
	}, log)
	t.Cleanup(srv.rateLimiter.Stop)

	return &testAPI{t: t, store: store, companies: companies, server: srv}
}

func (a *testAPI) raw(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, "/api/v1"+path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.server.Handler().ServeHTTP(rec, req)
	return rec
}

func (a *testAPI) do(method, path, token string, body interface{}, wantStatus int, out interface{}) envelope {
	a.t.Helper()
	rec := a.raw(method, path, token, body)
	require.Equal(a.t, wantStatus, rec.Code, rec.Body.String())

	var env envelope
	require.NoError(a.t, json.Unmarshal(rec.Body.Bytes(), &env))
	if out != nil {
		require.NoError(a.t, json.Unmarshal(env.Data, out))
	}
	return env
}

func (a *testAPI) login(email string) string {
	a.t.Helper()
	var res struct {
		Token string `json:"token"`
	}
	a.do(http.MethodPost, "/auth/login", "", map[string]string{"email": email, "password": "long-enough"}, http.StatusOK, &res)
	return res.Token
}

func (a *testAPI) adminToken() string {
	a.t.Helper()
	_, err := a.companies.BootstrapAdmin(context.Background(), "root@platform.example", "long-enough", "Root")
	require.NoError(a.t, err)
	return a.login("root@platform.example")
}

// register signs up a company and has the admin verify it
func (a *testAPI) register(name string, typ models.CompanyType, adminToken string) string {
	a.t.Helper()
	email := name + "@example.com"
	var profile service.Profile
	a.do(http.MethodPost, "/auth/register", "", service.RegisterInput{
		CompanyName:  name,
		CompanyType:  typ,
		CompanyEmail: "office@" + name + ".example",
		Name:         name + " admin",
		Email:        email,
		Password:     "long-enough",
	}, http.StatusCreated, &profile)

	if adminToken != "" {
		a.do(http.MethodPatch, "/admin/companies/"+profile.Company.ID, adminToken, map[string]bool{"is_verified": true}, http.StatusOK, nil)
	}
	return a.login(email)
}

func announcementBody(title string) map[string]interface{} {
	return map[string]interface{}{
		"title":       title,
		"cargo_type":  "pallets",
		"weight":      1200,
		"origin":      "Baku",
		"destination": "Tbilisi",
		"deadline":    time.Now().Add(72 * time.Hour).UTC().Format(time.RFC3339),
	}
}

func offerBody(announcementID, price string) map[string]interface{} {
	return map[string]interface{}{
		"announcement_id": announcementID,
		"items": []map[string]interface{}{
			{"transport_type": "ROAD", "price": price, "currency": "USD", "delivery_days": 4},
		},
	}
}

func TestHealth(t *testing.T) {
	a := newTestAPI(t, nil)

	var health Health
	env := a.do(http.MethodGet, "/health", "", nil, http.StatusOK, &health)
	assert.True(t, env.Success)
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, config.StoreDriverMemory, health.Store)
}

func TestAuthentication(t *testing.T) {
	a := newTestAPI(t, nil)

	env := a.do(http.MethodGet, "/offers", "", nil, http.StatusUnauthorized, nil)
	assert.False(t, env.Success)
	assert.Equal(t, "UNAUTHORIZED", env.Code)

	env = a.do(http.MethodGet, "/offers", "forged.token", nil, http.StatusUnauthorized, nil)
	assert.Equal(t, "INVALID_TOKEN", env.Code)

	env = a.do(http.MethodPost, "/auth/login", "", map[string]string{"email": "nobody@example.com", "password": "x"}, http.StatusUnauthorized, nil)
	assert.Equal(t, "INVALID_CREDENTIALS", env.Code)

	token := a.register("acme", models.CompanyTypeSupplier, "")
	var profile service.Profile
	a.do(http.MethodGet, "/auth/me", token, nil, http.StatusOK, &profile)
	assert.Equal(t, "acme@example.com", profile.User.Email)
	assert.False(t, profile.Company.IsVerified)

	env = a.do(http.MethodGet, "/admin/dead-letters", token, nil, http.StatusForbidden, nil)
	assert.Equal(t, "FORBIDDEN", env.Code)
}

func TestUnverifiedCompanyCannotTrade(t *testing.T) {
	a := newTestAPI(t, nil)
	admin := a.adminToken()
	supplier := a.register("acme", models.CompanyTypeSupplier, admin)
	carrier := a.register("swift", models.CompanyTypeLogistics, "")

	var ann models.Announcement
	a.do(http.MethodPost, "/announcements", supplier, announcementBody("Grain"), http.StatusCreated, &ann)

	env := a.do(http.MethodPost, "/offers", carrier, offerBody(ann.ID, "100"), http.StatusForbidden, nil)
	assert.Equal(t, "NOT_VERIFIED", env.Code)
}

func TestMarketplaceFlow(t *testing.T) {
	a := newTestAPI(t, nil)
	admin := a.adminToken()
	supplier := a.register("acme", models.CompanyTypeSupplier, admin)
	carrier := a.register("swift", models.CompanyTypeLogistics, admin)
	rival := a.register("rival", models.CompanyTypeLogistics, admin)

	var ann models.Announcement
	a.do(http.MethodPost, "/announcements", supplier, announcementBody("Grain"), http.StatusCreated, &ann)
	assert.Equal(t, models.AnnouncementStatusActive, ann.Status)

	var offer, other models.Offer
	a.do(http.MethodPost, "/offers", carrier, offerBody(ann.ID, "100.456"), http.StatusCreated, &offer)
	a.do(http.MethodPost, "/offers", rival, offerBody(ann.ID, "180"), http.StatusCreated, &other)
	require.Len(t, offer.Items, 1)
	assert.Equal(t, "100.46", offer.Items[0].Price.String())

	env := a.do(http.MethodPost, "/offers", carrier, offerBody(ann.ID, "90"), http.StatusConflict, nil)
	assert.Equal(t, "DUPLICATE_OFFER", env.Code)

	a.do(http.MethodPost, "/offers/"+offer.ID+"/comments", supplier, map[string]string{"content": "Can you pick up Monday?"}, http.StatusCreated, nil)
	var comments []models.OfferComment
	a.do(http.MethodGet, "/offers/"+offer.ID+"/comments", carrier, nil, http.StatusOK, &comments)
	assert.Len(t, comments, 1)

	var accepted models.Offer
	a.do(http.MethodPatch, "/offers/"+offer.ID+"/status", supplier, map[string]string{"status": "ACCEPTED"}, http.StatusOK, &accepted)
	assert.Equal(t, models.OfferStatusAccepted, accepted.Status)

	a.do(http.MethodGet, "/offers/"+other.ID, rival, nil, http.StatusOK, &other)
	assert.Equal(t, models.OfferStatusRejected, other.Status, "siblings are rejected on acceptance")

	a.do(http.MethodGet, "/announcements/"+ann.ID, supplier, nil, http.StatusOK, &ann)
	assert.Equal(t, models.AnnouncementStatusClosed, ann.Status)

	var history []models.OfferHistory
	a.do(http.MethodGet, "/offers/"+offer.ID+"/history", carrier, nil, http.StatusOK, &history)
	assert.Len(t, history, 2)

	var shipments []models.Shipment
	a.do(http.MethodGet, "/shipments", carrier, nil, http.StatusOK, &shipments)
	require.Len(t, shipments, 1)
	shipmentID := shipments[0].ID

	var shipment models.Shipment
	a.do(http.MethodPost, "/shipments/"+shipmentID+"/milestones", carrier, map[string]string{"status": "PICKED_UP", "location": "Ganja"}, http.StatusCreated, &shipment)
	assert.Equal(t, models.ShipmentStatusPickedUp, shipment.Status)
	assert.Len(t, shipment.Milestones, 2)

	env = a.do(http.MethodPost, "/shipments/"+shipmentID+"/milestones", carrier, map[string]string{"status": "BOOKED"}, http.StatusConflict, nil)
	assert.Equal(t, "NON_MONOTONIC_TRANSITION", env.Code)

	env = a.do(http.MethodPost, "/shipments/"+shipmentID+"/review", supplier, map[string]int{"rating": 5}, http.StatusConflict, nil)
	assert.Equal(t, "SHIPMENT_NOT_DELIVERED", env.Code)

	a.do(http.MethodPost, "/shipments/"+shipmentID+"/milestones", carrier, map[string]string{"status": "DELIVERED"}, http.StatusCreated, nil)
	a.do(http.MethodPost, "/shipments/"+shipmentID+"/review", supplier, map[string]int{"rating": 5}, http.StatusCreated, nil)

	var reviews []models.Review
	a.do(http.MethodGet, "/companies/"+shipments[0].LogisticsCompanyID+"/reviews", rival, nil, http.StatusOK, &reviews)
	assert.Len(t, reviews, 1)

	var unread map[string]int
	a.do(http.MethodGet, "/notifications/unread-count", carrier, nil, http.StatusOK, &unread)
	assert.Positive(t, unread["count"])

	var updated map[string]int64
	a.do(http.MethodPost, "/notifications/read-all", carrier, nil, http.StatusOK, &updated)
	assert.Equal(t, int64(unread["count"]), updated["updated"])
	a.do(http.MethodGet, "/notifications/unread-count", carrier, nil, http.StatusOK, &unread)
	assert.Zero(t, unread["count"])

	var stats map[string]interface{}
	a.do(http.MethodGet, "/admin/events/stats", admin, nil, http.StatusOK, &stats)
	assert.Equal(t, true, stats["consumer_enabled"])
}

func TestValidationEnvelope(t *testing.T) {
	a := newTestAPI(t, nil)
	admin := a.adminToken()
	supplier := a.register("acme", models.CompanyTypeSupplier, admin)
	carrier := a.register("swift", models.CompanyTypeLogistics, admin)

	var ann models.Announcement
	a.do(http.MethodPost, "/announcements", supplier, announcementBody("Grain"), http.StatusCreated, &ann)

	body := offerBody(ann.ID, "100")
	body["items"] = []map[string]interface{}{}
	env := a.do(http.MethodPost, "/offers", carrier, body, http.StatusBadRequest, nil)
	assert.Equal(t, "VALIDATION_FAILED", env.Code)
	assert.Contains(t, env.Details, "items")

	env = a.do(http.MethodPost, "/offers", carrier, offerBody(ann.ID, "-5"), http.StatusBadRequest, nil)
	assert.Contains(t, env.Details, "items[0].price")

	rec := a.raw(http.MethodPost, "/offers", carrier, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "INVALID_JSON")

	env = a.do(http.MethodGet, "/offers?limit=abc", carrier, nil, http.StatusBadRequest, nil)
	assert.Contains(t, env.Details, "limit")

	env = a.do(http.MethodGet, "/offers/off-missing", carrier, nil, http.StatusNotFound, nil)
	assert.Equal(t, "NOT_FOUND", env.Code)
}

func TestReportsAsCSV(t *testing.T) {
	a := newTestAPI(t, nil)
	admin := a.adminToken()
	supplier := a.register("acme", models.CompanyTypeSupplier, admin)
	carrier := a.register("swift", models.CompanyTypeLogistics, admin)

	var ann models.Announcement
	a.do(http.MethodPost, "/announcements", supplier, announcementBody("Grain"), http.StatusCreated, &ann)
	a.do(http.MethodPost, "/offers", carrier, offerBody(ann.ID, "100"), http.StatusCreated, nil)

	var report map[string]interface{}
	a.do(http.MethodGet, "/reports/logistics?period=3", carrier, nil, http.StatusOK, &report)
	assert.Contains(t, report, "monthly")

	rec := a.raw(http.MethodGet, "/reports/supplier?format=csv", supplier, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/csv"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "supplier-report-")
	assert.True(t, strings.HasPrefix(rec.Body.String(), "section,metric,value\n"))

	env := a.do(http.MethodGet, "/reports/finance", supplier, nil, http.StatusNotFound, nil)
	assert.Equal(t, "UNKNOWN_REPORT", env.Code)

	a.do(http.MethodGet, "/reports/admin", supplier, nil, http.StatusForbidden, nil)
}

func TestExportOffer(t *testing.T) {
	renderer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-1.7"))
	}))
	defer renderer.Close()

	docs := clients.NewDocumentClient(renderer.URL, time.Second, logger.NewNop(), clients.WithBackoff(&retry.ConstantBackoff{}))
	a := newTestAPI(t, docs)
	admin := a.adminToken()
	supplier := a.register("acme", models.CompanyTypeSupplier, admin)
	carrier := a.register("swift", models.CompanyTypeLogistics, admin)

	var ann models.Announcement
	var offer models.Offer
	a.do(http.MethodPost, "/announcements", supplier, announcementBody("Grain"), http.StatusCreated, &ann)
	a.do(http.MethodPost, "/offers", carrier, offerBody(ann.ID, "100"), http.StatusCreated, &offer)

	rec := a.raw(http.MethodGet, "/offers/"+offer.ID+"/export", supplier, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "offer-"+offer.ID+".pdf")
	assert.Equal(t, "%PDF-1.7", rec.Body.String())

	var doc service.OfferDocument
	a.do(http.MethodGet, "/offers/"+offer.ID+"/export?format=json", carrier, nil, http.StatusOK, &doc)
	assert.Equal(t, "Grain", doc.Announcement.Title)

	var breakers map[string]interface{}
	a.do(http.MethodGet, "/admin/circuit-breaker", admin, nil, http.StatusOK, &breakers)
	assert.Contains(t, breakers, "document_renderer")
	a.do(http.MethodPost, "/admin/circuit-breaker/reset?name=document_renderer", admin, nil, http.StatusOK, nil)
}

func TestAdminOperations(t *testing.T) {
	a := newTestAPI(t, nil)
	admin := a.adminToken()
	ctx := context.Background()

	msg, err := models.NewEvent(models.EventOfferSubmitted, models.AggregateOffer, "off-1", map[string]string{})
	require.NoError(t, err)
	require.NoError(t, a.store.Queries().CreateOutboxMessage(ctx, msg))
	dead := models.NewDeadLetterMessage(msg, "broker unavailable", "max retries reached (3)")
	require.NoError(t, a.store.DeadLetters().Create(ctx, dead))

	var list PaginationResponse
	a.do(http.MethodGet, "/admin/dead-letters?status=pending", admin, nil, http.StatusOK, &list)
	require.Len(t, list.Items, 1)
	assert.Equal(t, 1, list.Outbox[models.OutboxStatusPending])

	env := a.do(http.MethodPost, "/admin/dead-letters/"+itoa(dead.ID)+"/retry", admin, nil, http.StatusConflict, nil)
	assert.Equal(t, "ALREADY_PENDING", env.Code)

	a.do(http.MethodPost, "/admin/dead-letters/"+itoa(dead.ID)+"/discard", admin, map[string]string{"reason": "stale"}, http.StatusOK, nil)
	got, err := a.store.DeadLetters().GetMessage(ctx, dead.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DeadLetterStatusDiscarded, got.Status)

	a.do(http.MethodPost, "/admin/dead-letters/"+itoa(dead.ID)+"/retry", admin, nil, http.StatusOK, nil)
	got, err = a.store.DeadLetters().GetMessage(ctx, dead.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DeadLetterStatusPending, got.Status)

	a.do(http.MethodPost, "/admin/dead-letters/999/discard", admin, nil, http.StatusNotFound, nil)
	a.do(http.MethodPost, "/admin/dead-letters/abc/retry", admin, nil, http.StatusBadRequest, nil)

	env = a.do(http.MethodPost, "/admin/rate-limits", admin, map[string]interface{}{"endpoint": "GET:/api/v1/offers"}, http.StatusBadRequest, nil)
	assert.Contains(t, env.Details, "max_tokens")
	a.do(http.MethodPost, "/admin/rate-limits", admin, map[string]interface{}{
		"endpoint": "GET:/api/v1/offers", "max_tokens": 5, "refill_rate": 1,
	}, http.StatusOK, nil)

	var limits map[string]map[string]interface{}
	a.do(http.MethodGet, "/admin/rate-limits", admin, nil, http.StatusOK, &limits)
	assert.Contains(t, limits["endpoint_limits"], "GET:/api/v1/offers")

	a.do(http.MethodPost, "/admin/circuit-breaker/reset", admin, nil, http.StatusOK, nil)
	a.do(http.MethodPost, "/admin/circuit-breaker/reset?name=document_renderer", admin, nil, http.StatusNotFound, nil)

	var companies []models.Company
	a.do(http.MethodGet, "/admin/companies?type=PLATFORM", admin, nil, http.StatusOK, &companies)
	assert.Len(t, companies, 1)
	a.do(http.MethodGet, "/admin/companies?verified=maybe", admin, nil, http.StatusBadRequest, nil)
}

func TestDisabledAccountIsRejected(t *testing.T) {
	a := newTestAPI(t, nil)
	admin := a.adminToken()
	token := a.register("acme", models.CompanyTypeSupplier, admin)

	var profile service.Profile
	a.do(http.MethodGet, "/auth/me", token, nil, http.StatusOK, &profile)

	a.do(http.MethodPatch, "/admin/companies/"+profile.Company.ID, admin, map[string]bool{"is_active": false}, http.StatusOK, nil)

	env := a.do(http.MethodGet, "/auth/me", token, nil, http.StatusForbidden, nil)
	assert.Equal(t, "ACCOUNT_DISABLED", env.Code)
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
