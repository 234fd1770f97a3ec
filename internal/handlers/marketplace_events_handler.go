package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/Shopify/sarama"

	"github.com/vaidashi/freight-exchange/internal/models"
	"github.com/vaidashi/freight-exchange/pkg/logger"
)

// envelope mirrors models.OutboxMessageEvent with the data left undecoded
type envelope struct {
	EventType   string          `json:"event_type"`
	EventID     string          `json:"event_id"`
	AggregateID string          `json:"aggregate_id"`
	OccurredAt  time.Time       `json:"occurred_at"`
	Data        json.RawMessage `json:"data"`
}

type statusChange struct {
	OldStatus string `json:"old_status"`
	NewStatus string `json:"new_status"`
}

type shipmentChange struct {
	Status         string `json:"status"`
	PreviousStatus string `json:"previous_status"`
}

// EventStats is a snapshot of what the consumer has seen
type EventStats struct {
	Received           int            `json:"received"`
	Rejected           int            `json:"rejected"`
	ByType             map[string]int `json:"by_type"`
	OffersAccepted     int            `json:"offers_accepted"`
	ShipmentsDelivered int            `json:"shipments_delivered"`
	LastEventAt        *time.Time     `json:"last_event_at,omitempty"`
}

// MarketplaceEventsHandler consumes the marketplace event topic and keeps
// running counters for the admin API
type MarketplaceEventsHandler struct {
	logger logger.Logger

	mu    sync.Mutex
	stats EventStats
}

// NewMarketplaceEventsHandler creates a new MarketplaceEventsHandler
func NewMarketplaceEventsHandler(logger logger.Logger) *MarketplaceEventsHandler {
	return &MarketplaceEventsHandler{
		logger: logger.With("component", "events_consumer"),
		stats:  EventStats{ByType: make(map[string]int)},
	}
}

// HandleMessage decodes one Kafka record. Undecodable records are counted and
// acknowledged so they do not block the partition.
func (h *MarketplaceEventsHandler) HandleMessage(ctx context.Context, msg *sarama.ConsumerMessage) error {
	var event envelope
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		h.reject()
		h.logger.Error("Dropping undecodable event", "error", err, "offset", msg.Offset)
		return nil
	}

	if event.EventType == "" {
		event.EventType = header(msg, "event_type")
	}

	var err error
	switch event.EventType {
	case models.EventOfferStatusChanged:
		err = h.handleOfferStatusChanged(event)
	case models.EventShipmentMilestoneAdded:
		err = h.handleMilestone(event)
	case models.EventOfferSubmitted, models.EventOfferUpdated, models.EventShipmentCreated, models.EventCommentAdded:
		h.logger.Debug("Marketplace event",
			"eventType", event.EventType,
			"eventID", event.EventID,
			"aggregateID", event.AggregateID)
	default:
		h.logger.Warn("Unknown event type", "eventType", event.EventType, "eventID", event.EventID)
	}
	if err != nil {
		h.reject()
		h.logger.Error("Dropping malformed event", "error", err, "eventID", event.EventID)
		return nil
	}

	h.mu.Lock()
	h.stats.Received++
	h.stats.ByType[event.EventType]++
	at := event.OccurredAt
	h.stats.LastEventAt = &at
	h.mu.Unlock()

	return nil
}

func (h *MarketplaceEventsHandler) handleOfferStatusChanged(event envelope) error {
	var data statusChange
	if err := json.Unmarshal(event.Data, &data); err != nil {
		return fmt.Errorf("invalid %s data: %w", event.EventType, err)
	}

	h.logger.Info("Offer status changed",
		"offerID", event.AggregateID,
		"oldStatus", data.OldStatus,
		"newStatus", data.NewStatus)

	if data.NewStatus == string(models.OfferStatusAccepted) {
		h.mu.Lock()
		h.stats.OffersAccepted++
		h.mu.Unlock()
	}
	return nil
}

func (h *MarketplaceEventsHandler) handleMilestone(event envelope) error {
	var data shipmentChange
	if err := json.Unmarshal(event.Data, &data); err != nil {
		return fmt.Errorf("invalid %s data: %w", event.EventType, err)
	}

	h.logger.Info("Shipment milestone",
		"shipmentID", event.AggregateID,
		"from", data.PreviousStatus,
		"to", data.Status)

	if data.Status == string(models.ShipmentStatusDelivered) {
		h.mu.Lock()
		h.stats.ShipmentsDelivered++
		h.mu.Unlock()
	}
	return nil
}

func (h *MarketplaceEventsHandler) reject() {
	h.mu.Lock()
	h.stats.Rejected++
	h.mu.Unlock()
}

// Stats returns a copy of the counters
func (h *MarketplaceEventsHandler) Stats() EventStats {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := h.stats
	out.ByType = make(map[string]int, len(h.stats.ByType))
	for k, v := range h.stats.ByType {
		out.ByType[k] = v
	}
	return out
}

func header(msg *sarama.ConsumerMessage, key string) string {
	for _, h := range msg.Headers {
		if h != nil && string(h.Key) == key {
			return string(h.Value)
		}
	}
	return ""
}
