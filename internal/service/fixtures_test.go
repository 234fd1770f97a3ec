package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/vaidashi/freight-exchange/internal/models"
	"github.com/vaidashi/freight-exchange/internal/repository"
	"github.com/vaidashi/freight-exchange/internal/repository/memory"
	"github.com/vaidashi/freight-exchange/pkg/logger"
)

// marketplace wires every service over one in-memory store
type marketplace struct {
	t     *testing.T
	ctx   context.Context
	store *memory.Store

	notifications *NotificationService
	announcements *AnnouncementService
	offers        *OfferService
	shipments     *ShipmentService
	reviews       *ReviewService
	reports       *ReportService
}

func newMarketplace(t *testing.T) *marketplace {
	t.Helper()
	store := memory.NewStore()
	log := logger.NewNop()
	notifications := NewNotificationService(store, log)

	return &marketplace{
		t:             t,
		ctx:           context.Background(),
		store:         store,
		notifications: notifications,
		announcements: NewAnnouncementService(store, log),
		offers:        NewOfferService(store, notifications, log),
		shipments:     NewShipmentService(store, log),
		reviews:       NewReviewService(store, log),
		reports:       NewReportService(store, log),
	}
}

// company seeds a company with one company-admin employee and returns that
// employee's session
func (m *marketplace) company(name string, typ models.CompanyType, verified bool) *models.Session {
	m.t.Helper()
	q := m.store.Queries()

	c := models.NewCompany(name, typ, name+"@example.com", "", "", "")
	c.IsVerified = verified
	require.NoError(m.t, q.CreateCompany(m.ctx, c))

	return m.employee(c, name+"-admin", true)
}

func (m *marketplace) employee(c *models.Company, name string, companyAdmin bool) *models.Session {
	m.t.Helper()
	u := models.NewUser(c.ID, name+"@example.com", "hash", name, models.RoleForCompany(c.Type), companyAdmin)
	require.NoError(m.t, m.store.Queries().CreateUser(m.ctx, u))
	return models.NewSession(u, c)
}

func (m *marketplace) colleague(s *models.Session, name string) *models.Session {
	m.t.Helper()
	c, err := m.store.Queries().GetCompany(m.ctx, s.CompanyID)
	require.NoError(m.t, err)
	return m.employee(c, name, false)
}

func (m *marketplace) admin() *models.Session {
	return m.company("platform", models.CompanyTypePlatform, true)
}

func (m *marketplace) announce(supplier *models.Session, title string) *models.Announcement {
	m.t.Helper()
	a, err := m.announcements.Create(m.ctx, supplier, AnnouncementInput{
		Title:       title,
		CargoType:   "pallets",
		Weight:      1200,
		Origin:      "Baku",
		Destination: "Tbilisi",
		Deadline:    time.Now().Add(72 * time.Hour),
	})
	require.NoError(m.t, err)
	return a
}

func offerInput(prices ...string) OfferInput {
	in := OfferInput{}
	for _, p := range prices {
		in.Items = append(in.Items, OfferItemInput{
			TransportType: models.TransportRoad,
			Price:         decimal.RequireFromString(p),
			Currency:      models.CurrencyUSD,
			DeliveryDays:  4,
		})
	}
	return in
}

func (m *marketplace) submit(carrier *models.Session, annID string, prices ...string) *models.Offer {
	m.t.Helper()
	o, err := m.offers.Submit(m.ctx, carrier, annID, offerInput(prices...))
	require.NoError(m.t, err)
	return o
}

func (m *marketplace) offer(id string) *models.Offer {
	m.t.Helper()
	o, err := m.store.Queries().GetOffer(m.ctx, id)
	require.NoError(m.t, err)
	return o
}

func (m *marketplace) shipmentFor(offerID string) *models.Shipment {
	m.t.Helper()
	s, err := m.store.Queries().GetShipmentByOffer(m.ctx, offerID)
	require.NoError(m.t, err)
	return s
}

func (m *marketplace) inbox(s *models.Session) []*models.Notification {
	m.t.Helper()
	list, err := m.store.Queries().ListNotifications(m.ctx, s.UserID, false, 0, 0)
	require.NoError(m.t, err)
	return list
}

func (m *marketplace) events(eventType string) []models.OutboxMessage {
	var out []models.OutboxMessage
	for _, msg := range m.store.Outbox().Messages() {
		if msg.EventType == eventType {
			out = append(out, msg)
		}
	}
	return out
}

func (m *marketplace) history(offerID string) []*models.OfferHistory {
	m.t.Helper()
	list, err := m.store.Queries().ListOfferHistory(m.ctx, offerID)
	require.NoError(m.t, err)
	return list
}

func (m *marketplace) countOffers(filter repository.OfferFilter) int {
	m.t.Helper()
	list, err := m.store.Queries().ListOffers(m.ctx, filter)
	require.NoError(m.t, err)
	return len(list)
}
