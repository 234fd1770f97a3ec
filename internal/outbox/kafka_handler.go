package outbox

import (
	"context"
	"fmt"

	"github.com/vaidashi/freight-exchange/internal/models"
	"github.com/vaidashi/freight-exchange/pkg/kafka"
	"github.com/vaidashi/freight-exchange/pkg/logger"
)

// Kafka record headers set on every published event
const (
	HeaderEventType     = "event_type"
	HeaderAggregateType = "aggregate_type"
)

// KafkaHandler publishes outbox messages to Kafka
type KafkaHandler struct {
	logger    logger.Logger
	publisher kafka.Publisher
	topic     string
}

// NewKafkaHandler creates a new KafkaHandler
func NewKafkaHandler(publisher kafka.Publisher, topic string, logger logger.Logger) *KafkaHandler {
	return &KafkaHandler{
		publisher: publisher,
		topic:     topic,
		logger:    logger,
	}
}

// HandleMessage publishes the message keyed by aggregate id, so every event
// for one offer or shipment lands on the same partition in order
func (h *KafkaHandler) HandleMessage(ctx context.Context, message *models.OutboxMessage) error {
	headers := map[string]string{
		HeaderEventType:     message.EventType,
		HeaderAggregateType: message.AggregateType,
	}

	if err := h.publisher.SendMessage(ctx, h.topic, message.AggregateID, message.Payload, headers); err != nil {
		return fmt.Errorf("failed to publish message to Kafka: %w", err)
	}

	h.logger.Debug("Published message to Kafka",
		"topic", h.topic,
		"messageID", message.ID,
		"aggregateID", message.AggregateID,
		"eventType", message.EventType)

	return nil
}
