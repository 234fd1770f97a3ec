package service

import (
	"context"

	"github.com/vaidashi/freight-exchange/internal/models"
	"github.com/vaidashi/freight-exchange/internal/repository"
	apperrors "github.com/vaidashi/freight-exchange/pkg/errors"
)

// recordEvent writes an outbox row in the caller's transaction so the event
// is published if and only if the change commits
func recordEvent(ctx context.Context, q repository.Queries, eventType, aggregateType, aggregateID string, data interface{}) error {
	msg, err := models.NewEvent(eventType, aggregateType, aggregateID, data)
	if err != nil {
		return apperrors.NewInternalError("failed to encode event").WithCause(err)
	}
	return q.CreateOutboxMessage(ctx, msg)
}

// Event payloads

type offerEventData struct {
	OfferID            string             `json:"offer_id"`
	AnnouncementID     string             `json:"announcement_id"`
	LogisticsCompanyID string             `json:"logistics_company_id"`
	SubmittedByID      string             `json:"submitted_by_id"`
	Status             models.OfferStatus `json:"status"`
	Items              []models.OfferItem `json:"items"`
}

func newOfferEventData(o *models.Offer) offerEventData {
	return offerEventData{
		OfferID:            o.ID,
		AnnouncementID:     o.AnnouncementID,
		LogisticsCompanyID: o.LogisticsCompanyID,
		SubmittedByID:      o.SubmittedByID,
		Status:             o.Status,
		Items:              o.Items,
	}
}

type shipmentEventData struct {
	ShipmentID         string                `json:"shipment_id"`
	OfferID            string                `json:"offer_id"`
	LogisticsCompanyID string                `json:"logistics_company_id"`
	SupplierCompanyID  string                `json:"supplier_company_id"`
	TrackingNumber     string                `json:"tracking_number"`
	Status             models.ShipmentStatus `json:"status"`
	PreviousStatus     models.ShipmentStatus `json:"previous_status,omitempty"`
	Location           *string               `json:"location,omitempty"`
}

type commentEventData struct {
	CommentID string `json:"comment_id"`
	OfferID   string `json:"offer_id"`
	AuthorID  string `json:"author_id"`
}
