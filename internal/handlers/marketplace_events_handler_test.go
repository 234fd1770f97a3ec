package handlers

import (
	"context"
	"testing"

	"github.com/Shopify/sarama"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaidashi/freight-exchange/internal/models"
	"github.com/vaidashi/freight-exchange/pkg/logger"
)

func record(t *testing.T, eventType, aggregateID string, data interface{}) *sarama.ConsumerMessage {
	t.Helper()
	msg, err := models.NewEvent(eventType, models.AggregateOffer, aggregateID, data)
	require.NoError(t, err)
	return &sarama.ConsumerMessage{
		Topic: "marketplace.events",
		Key:   []byte(aggregateID),
		Value: msg.Payload,
	}
}

func TestHandlerCountsEvents(t *testing.T) {
	ctx := context.Background()
	h := NewMarketplaceEventsHandler(logger.NewNop())

	require.NoError(t, h.HandleMessage(ctx, record(t, models.EventOfferSubmitted, "off-1", map[string]string{})))
	require.NoError(t, h.HandleMessage(ctx, record(t, models.EventOfferStatusChanged, "off-1", models.OfferStatusChangedData{
		OfferID:   "off-1",
		OldStatus: models.OfferStatusPending,
		NewStatus: models.OfferStatusAccepted,
	})))
	require.NoError(t, h.HandleMessage(ctx, record(t, models.EventShipmentMilestoneAdded, "shp-1", map[string]string{
		"status":          string(models.ShipmentStatusDelivered),
		"previous_status": string(models.ShipmentStatusInTransit),
	})))

	stats := h.Stats()
	assert.Equal(t, 3, stats.Received)
	assert.Equal(t, 1, stats.OffersAccepted)
	assert.Equal(t, 1, stats.ShipmentsDelivered)
	assert.Equal(t, 1, stats.ByType[models.EventOfferStatusChanged])
	assert.NotNil(t, stats.LastEventAt)

	stats.ByType["tampered"] = 1
	assert.NotContains(t, h.Stats().ByType, "tampered", "Stats returns a copy")
}

func TestHandlerDropsMalformedRecords(t *testing.T) {
	ctx := context.Background()
	h := NewMarketplaceEventsHandler(logger.NewNop())

	assert.NoError(t, h.HandleMessage(ctx, &sarama.ConsumerMessage{Value: []byte("{")}))
	assert.NoError(t, h.HandleMessage(ctx, record(t, models.EventOfferStatusChanged, "off-1", "not an object")))

	stats := h.Stats()
	assert.Equal(t, 2, stats.Rejected)
	assert.Zero(t, stats.Received)
}

func TestHandlerFallsBackToHeader(t *testing.T) {
	h := NewMarketplaceEventsHandler(logger.NewNop())
	msg := &sarama.ConsumerMessage{
		Value:   []byte(`{"event_id":"evt-1","aggregate_id":"off-1","data":{}}`),
		Headers: []*sarama.RecordHeader{{Key: []byte("event_type"), Value: []byte(models.EventCommentAdded)}},
	}

	require.NoError(t, h.HandleMessage(context.Background(), msg))
	assert.Equal(t, 1, h.Stats().ByType[models.EventCommentAdded])
}
