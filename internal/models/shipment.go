package models

import (
	"time"
)

// ShipmentStatus values are ordered; a shipment only moves forward through them
type ShipmentStatus string

const (
	ShipmentStatusBooked           ShipmentStatus = "BOOKED"
	ShipmentStatusPickedUp         ShipmentStatus = "PICKED_UP"
	ShipmentStatusInTransit        ShipmentStatus = "IN_TRANSIT"
	ShipmentStatusCustomsClearance ShipmentStatus = "CUSTOMS_CLEARANCE"
	ShipmentStatusOutForDelivery   ShipmentStatus = "OUT_FOR_DELIVERY"
	ShipmentStatusDelivered        ShipmentStatus = "DELIVERED"
)

// ShipmentProgression is the ordered status sequence
var ShipmentProgression = []ShipmentStatus{
	ShipmentStatusBooked,
	ShipmentStatusPickedUp,
	ShipmentStatusInTransit,
	ShipmentStatusCustomsClearance,
	ShipmentStatusOutForDelivery,
	ShipmentStatusDelivered,
}

// Index returns the position of s in ShipmentProgression, or -1
func (s ShipmentStatus) Index() int {
	for i, st := range ShipmentProgression {
		if st == s {
			return i
		}
	}
	return -1
}

// Valid reports whether s is a known shipment status
func (s ShipmentStatus) Valid() bool {
	return s.Index() >= 0
}

// Shipment tracks fulfilment of an accepted offer
type Shipment struct {
	ID                 string              `db:"id" json:"id"`
	OfferID            string              `db:"offer_id" json:"offer_id"`
	AnnouncementID     string              `db:"announcement_id" json:"announcement_id"`
	LogisticsCompanyID string              `db:"logistics_company_id" json:"logistics_company_id"`
	SupplierCompanyID  string              `db:"supplier_company_id" json:"supplier_company_id"`
	TrackingNumber     string              `db:"tracking_number" json:"tracking_number"`
	Status             ShipmentStatus      `db:"status" json:"status"`
	CreatedAt          time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time           `db:"updated_at" json:"updated_at"`
	Milestones         []ShipmentMilestone `db:"-" json:"milestones,omitempty"`
}

// ShipmentMilestone is an append-only progress update
type ShipmentMilestone struct {
	ID          string         `db:"id" json:"id"`
	ShipmentID  string         `db:"shipment_id" json:"shipment_id"`
	Status      ShipmentStatus `db:"status" json:"status"`
	Note        *string        `db:"note" json:"note,omitempty"`
	Location    *string        `db:"location" json:"location,omitempty"`
	CreatedByID string         `db:"created_by_id" json:"created_by_id"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
}

// NewShipment creates a BOOKED shipment for an accepted offer
func NewShipment(offer *Offer, supplierCompanyID string) *Shipment {
	now := GetCurrentTime()
	return &Shipment{
		ID:                 GenerateID("shp"),
		OfferID:            offer.ID,
		AnnouncementID:     offer.AnnouncementID,
		LogisticsCompanyID: offer.LogisticsCompanyID,
		SupplierCompanyID:  supplierCompanyID,
		TrackingNumber:     GenerateTrackingNumber(),
		Status:             ShipmentStatusBooked,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

func NewShipmentMilestone(shipmentID string, status ShipmentStatus, note, location *string, createdByID string) *ShipmentMilestone {
	return &ShipmentMilestone{
		ID:          GenerateID("mst"),
		ShipmentID:  shipmentID,
		Status:      status,
		Note:        note,
		Location:    location,
		CreatedByID: createdByID,
		CreatedAt:   GetCurrentTime(),
	}
}
