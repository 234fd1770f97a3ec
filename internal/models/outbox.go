package models

import (
	"encoding/json"
	"time"
)

// OutboxStatus represents the status of an outbox message
type OutboxStatus string

const (
	OutboxStatusPending    OutboxStatus = "pending"
	OutboxStatusProcessing OutboxStatus = "processing"
	OutboxStatusCompleted  OutboxStatus = "completed"
	OutboxStatusFailed     OutboxStatus = "failed"
)

// Marketplace event types written to the outbox
const (
	EventOfferSubmitted         = "offer.submitted"
	EventOfferUpdated           = "offer.updated"
	EventOfferStatusChanged     = "offer.status_changed"
	EventShipmentCreated        = "shipment.created"
	EventShipmentMilestoneAdded = "shipment.milestone_added"
	EventCommentAdded           = "comment.added"
)

// EventTypes lists every event the marketplace publishes
var EventTypes = []string{
	EventOfferSubmitted,
	EventOfferUpdated,
	EventOfferStatusChanged,
	EventShipmentCreated,
	EventShipmentMilestoneAdded,
	EventCommentAdded,
}

// Aggregate types
const (
	AggregateOffer    = "offer"
	AggregateShipment = "shipment"
)

// OutboxMessage represents a message to be published from the outbox table
type OutboxMessage struct {
	ID                 int64        `db:"id" json:"id"`
	AggregateType      string       `db:"aggregate_type" json:"aggregate_type"`
	AggregateID        string       `db:"aggregate_id" json:"aggregate_id"`
	EventType          string       `db:"event_type" json:"event_type"`
	Payload            []byte       `db:"payload" json:"payload"`
	CreatedAt          time.Time    `db:"created_at" json:"created_at"`
	ProcessedAt        *time.Time   `db:"processed_at" json:"processed_at,omitempty"`
	ProcessingAttempts int          `db:"processing_attempts" json:"processing_attempts"`
	LastError          *string      `db:"last_error" json:"last_error,omitempty"`
	Status             OutboxStatus `db:"status" json:"status"`
}

// OutboxMessageEvent is the envelope serialized into an outbox payload
type OutboxMessageEvent struct {
	EventType   string      `json:"event_type"`
	EventID     string      `json:"event_id"`
	AggregateID string      `json:"aggregate_id"`
	OccurredAt  time.Time   `json:"occurred_at"`
	Data        interface{} `json:"data"`
}

// NewEvent wraps data in an event envelope ready to be stored in the outbox
func NewEvent(eventType, aggregateType, aggregateID string, data interface{}) (*OutboxMessage, error) {
	now := GetCurrentTime()
	event := OutboxMessageEvent{
		EventType:   eventType,
		EventID:     GenerateID("evt"),
		AggregateID: aggregateID,
		OccurredAt:  now,
		Data:        data,
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}

	return &OutboxMessage{
		EventType:     eventType,
		Payload:       payload,
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		CreatedAt:     now,
		Status:        OutboxStatusPending,
	}, nil
}

// OfferStatusChangedData is the payload of offer.status_changed
type OfferStatusChangedData struct {
	OfferID            string      `json:"offer_id"`
	AnnouncementID     string      `json:"announcement_id"`
	LogisticsCompanyID string      `json:"logistics_company_id"`
	OldStatus          OfferStatus `json:"old_status"`
	NewStatus          OfferStatus `json:"new_status"`
	ChangedBy          string      `json:"changed_by"`
	AutoRejected       []string    `json:"auto_rejected,omitempty"`
	ShipmentID         string      `json:"shipment_id,omitempty"`
}

// NewOfferStatusChangedEvent creates the event for an offer status transition
func NewOfferStatusChangedEvent(data OfferStatusChangedData) (*OutboxMessage, error) {
	return NewEvent(EventOfferStatusChanged, AggregateOffer, data.OfferID, data)
}
