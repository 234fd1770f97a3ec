package models

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateID(t *testing.T) {
	id := GenerateID("off")
	assert.True(t, strings.HasPrefix(id, "off-"))
	assert.NotEqual(t, id, GenerateID("off"))
}

func TestGenerateTrackingNumber(t *testing.T) {
	n := GenerateTrackingNumber()
	assert.Len(t, n, 14)
	assert.True(t, strings.HasPrefix(n, "TRK-"))
	assert.Equal(t, strings.ToUpper(n), n)
}

func TestShipmentStatusOrdering(t *testing.T) {
	assert.Equal(t, 0, ShipmentStatusBooked.Index())
	assert.Equal(t, 5, ShipmentStatusDelivered.Index())
	assert.Less(t, ShipmentStatusInTransit.Index(), ShipmentStatusCustomsClearance.Index())
	assert.Equal(t, -1, ShipmentStatus("LOST").Index())
	assert.False(t, ShipmentStatus("LOST").Valid())
}

func TestOfferStatusValid(t *testing.T) {
	assert.True(t, OfferStatusAccepted.Valid())
	assert.False(t, OfferStatus("WITHDRAWN").Valid())
}

func TestNewOfferStampsItems(t *testing.T) {
	items := []OfferItem{
		{TransportType: TransportRoad, Price: decimal.NewFromInt(1200), Currency: CurrencyUSD, DeliveryDays: 5},
		{TransportType: TransportAir, Price: decimal.NewFromInt(900), Currency: CurrencyEUR, DeliveryDays: 2},
	}
	offer := NewOffer("ann-1", "cmp-1", "usr-1", nil, items)

	assert.Equal(t, OfferStatusPending, offer.Status)
	require.Len(t, offer.Items, 2)
	for _, it := range offer.Items {
		assert.Equal(t, offer.ID, it.OfferID)
		assert.NotEmpty(t, it.ID)
	}
	assert.Empty(t, items[0].ID, "input slice must not be mutated")

	cheapest, ok := offer.LowestPrice("")
	require.True(t, ok)
	assert.Equal(t, TransportAir, cheapest.TransportType)

	usd, ok := offer.LowestPrice(CurrencyUSD)
	require.True(t, ok)
	assert.Equal(t, TransportRoad, usd.TransportType)

	_, ok = offer.LowestPrice(CurrencyAZN)
	assert.False(t, ok)
}

func TestAnnouncementIsOpenAt(t *testing.T) {
	deadline := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	a := NewAnnouncement("cmp-1", "usr-1", "Steel", "", "metal", 1000, nil, "Baku", "Tbilisi", deadline)

	assert.True(t, a.IsOpenAt(deadline))
	assert.False(t, a.IsOpenAt(deadline.Add(time.Second)))

	a.Status = AnnouncementStatusClosed
	assert.False(t, a.IsOpenAt(deadline.Add(-time.Hour)))
}

func TestOfferDiffScan(t *testing.T) {
	notes := "fragile"
	diff := OfferDiff{NewNotes: &notes, NewItems: []OfferItem{{TransportType: TransportSea, Price: decimal.RequireFromString("10.50"), Currency: CurrencyUSD, DeliveryDays: 20}}}

	v, err := diff.Value()
	require.NoError(t, err)

	var out OfferDiff
	require.NoError(t, out.Scan(v))
	assert.Equal(t, "fragile", StringValue(out.NewNotes))
	require.Len(t, out.NewItems, 1)
	assert.True(t, out.NewItems[0].Price.Equal(decimal.RequireFromString("10.5")))

	assert.Error(t, out.Scan(42))
}

func TestNewEvent(t *testing.T) {
	msg, err := NewEvent(EventOfferSubmitted, AggregateOffer, "off-1", map[string]string{"k": "v"})
	require.NoError(t, err)
	assert.Equal(t, OutboxStatusPending, msg.Status)
	assert.Equal(t, "off-1", msg.AggregateID)

	var env OutboxMessageEvent
	require.NoError(t, json.Unmarshal(msg.Payload, &env))
	assert.Equal(t, EventOfferSubmitted, env.EventType)
	assert.True(t, strings.HasPrefix(env.EventID, "evt-"))
}

func TestDeadLetterRoundTrip(t *testing.T) {
	msg, err := NewEvent(EventCommentAdded, AggregateOffer, "off-9", nil)
	require.NoError(t, err)
	msg.ID = 17

	dl := NewDeadLetterMessage(msg, "broker down", "max retries exceeded")
	assert.Equal(t, DeadLetterStatusPending, dl.Status)

	back := dl.ToOutboxMessage()
	assert.Equal(t, int64(17), back.ID)
	assert.Equal(t, msg.Payload, back.Payload)
}

func TestSessionFromUser(t *testing.T) {
	c := NewCompany("Acme", CompanyTypeSupplier, "a@acme.io", "", "", "")
	u := NewUser(c.ID, " Boss@Acme.io ", "hash", "Boss", RoleSupplierEmployee, true)

	s := NewSession(u, c)
	assert.Equal(t, "boss@acme.io", s.Email)
	assert.False(t, s.IsVerified)
	assert.True(t, s.IsActive)
	assert.False(t, s.IsAdmin())
	assert.Equal(t, RoleLogisticsEmployee, RoleForCompany(CompanyTypeLogistics))
}
