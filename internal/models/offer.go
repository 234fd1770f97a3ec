package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// OfferStatus is the supplier's decision on an offer
type OfferStatus string

const (
	OfferStatusPending  OfferStatus = "PENDING"
	OfferStatusAccepted OfferStatus = "ACCEPTED"
	OfferStatusRejected OfferStatus = "REJECTED"
)

// Valid reports whether s is one of the three offer statuses
func (s OfferStatus) Valid() bool {
	switch s {
	case OfferStatusPending, OfferStatusAccepted, OfferStatusRejected:
		return true
	}
	return false
}

type TransportType string

const (
	TransportAir  TransportType = "AIR"
	TransportSea  TransportType = "SEA"
	TransportRail TransportType = "RAIL"
	TransportRoad TransportType = "ROAD"
)

type Currency string

const (
	CurrencyUSD Currency = "USD"
	CurrencyEUR Currency = "EUR"
	CurrencyAZN Currency = "AZN"
)

// Offer is a logistics company's bid on an announcement
type Offer struct {
	ID                 string      `db:"id" json:"id"`
	AnnouncementID     string      `db:"announcement_id" json:"announcement_id"`
	LogisticsCompanyID string      `db:"logistics_company_id" json:"logistics_company_id"`
	SubmittedByID      string      `db:"submitted_by_id" json:"submitted_by_id"`
	Notes              *string     `db:"notes" json:"notes,omitempty"`
	Status             OfferStatus `db:"status" json:"status"`
	CreatedAt          time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time   `db:"updated_at" json:"updated_at"`
	Items              []OfferItem `db:"-" json:"items"`
}

// OfferItem is one transport-mode price line of an offer
type OfferItem struct {
	ID            string          `db:"id" json:"id"`
	OfferID       string          `db:"offer_id" json:"offer_id"`
	TransportType TransportType   `db:"transport_type" json:"transport_type"`
	Price         decimal.Decimal `db:"price" json:"price"`
	Currency      Currency        `db:"currency" json:"currency"`
	DeliveryDays  int             `db:"delivery_days" json:"delivery_days"`
	Notes         *string         `db:"notes" json:"notes,omitempty"`
}

// LowestPrice returns the cheapest item, preferring the given currency when set.
// ok is false when no item qualifies.
func (o *Offer) LowestPrice(currency Currency) (item OfferItem, ok bool) {
	for _, it := range o.Items {
		if currency != "" && it.Currency != currency {
			continue
		}
		if !ok || it.Price.LessThan(item.Price) {
			item, ok = it, true
		}
	}
	return item, ok
}

// NewOffer creates a PENDING offer and stamps its items with fresh ids
func NewOffer(announcementID, companyID, submittedByID string, notes *string, items []OfferItem) *Offer {
	now := GetCurrentTime()
	offer := &Offer{
		ID:                 GenerateID("off"),
		AnnouncementID:     announcementID,
		LogisticsCompanyID: companyID,
		SubmittedByID:      submittedByID,
		Notes:              notes,
		Status:             OfferStatusPending,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	offer.Items = StampItems(offer.ID, items)
	return offer
}

// StampItems copies items, assigning new ids and the owning offer
func StampItems(offerID string, items []OfferItem) []OfferItem {
	out := make([]OfferItem, len(items))
	for i, it := range items {
		it.ID = GenerateID("itm")
		it.OfferID = offerID
		out[i] = it
	}
	return out
}
