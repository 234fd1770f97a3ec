package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/Shopify/sarama"
	"github.com/Shopify/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaidashi/freight-exchange/internal/models"
	"github.com/vaidashi/freight-exchange/internal/repository/memory"
	"github.com/vaidashi/freight-exchange/pkg/kafka"
	"github.com/vaidashi/freight-exchange/pkg/logger"
	"github.com/vaidashi/freight-exchange/pkg/retry"
)

// flakyHandler fails the first `failures` calls
type flakyHandler struct {
	failures int
	calls    int
	seen     []string
}

func (h *flakyHandler) HandleMessage(ctx context.Context, msg *models.OutboxMessage) error {
	h.calls++
	if h.calls <= h.failures {
		return errors.New("broker unavailable")
	}
	h.seen = append(h.seen, msg.AggregateID)
	return nil
}

func enqueue(t *testing.T, store *memory.Store, eventType, aggregateID string) *models.OutboxMessage {
	t.Helper()
	msg, err := models.NewEvent(eventType, models.AggregateOffer, aggregateID, map[string]string{"offer_id": aggregateID})
	require.NoError(t, err)
	require.NoError(t, store.Queries().CreateOutboxMessage(context.Background(), msg))
	return msg
}

func TestProcessorPublishesPending(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	enqueue(t, store, models.EventOfferSubmitted, "off-1")
	enqueue(t, store, models.EventOfferSubmitted, "off-2")

	h := &flakyHandler{}
	p := NewProcessor(store.Outbox(), store.DeadLetters(), ProcessorConfig{BatchSize: 10, MaxRetries: 3}, logger.NewNop())
	p.RegisterHandler(models.EventOfferSubmitted, h)

	n, err := p.processBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"off-1", "off-2"}, h.seen)

	counts, err := store.Outbox().CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, counts[models.OutboxStatusCompleted])

	n, err = p.processBatch(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "completed messages are not published twice")
}

func TestProcessorRetriesThenDeadLetters(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	msg := enqueue(t, store, models.EventOfferStatusChanged, "off-1")

	h := &flakyHandler{failures: 10}
	p := NewProcessor(store.Outbox(), store.DeadLetters(), ProcessorConfig{MaxRetries: 3}, logger.NewNop())
	p.RegisterHandler(models.EventOfferStatusChanged, h)

	for i := 0; i < 2; i++ {
		_, err := p.processBatch(ctx)
		require.NoError(t, err)
		got, err := store.Outbox().GetMessage(ctx, msg.ID)
		require.NoError(t, err)
		assert.Equal(t, models.OutboxStatusPending, got.Status, "attempt %d goes back to pending", i+1)
		require.NotNil(t, got.LastError)
		assert.Equal(t, "broker unavailable", *got.LastError)
	}

	_, err := p.processBatch(ctx)
	require.NoError(t, err)

	got, err := store.Outbox().GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OutboxStatusFailed, got.Status)
	assert.Equal(t, 3, got.ProcessingAttempts)

	dead, err := store.DeadLetters().List(ctx, models.DeadLetterStatusPending, 0, 0)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, msg.ID, dead[0].OriginalMessageID)
	assert.Equal(t, "off-1", dead[0].AggregateID)
	assert.Contains(t, dead[0].FailureReason, "max retries")
}

func TestProcessorWithoutHandler(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	msg := enqueue(t, store, models.EventCommentAdded, "off-1")

	p := NewProcessor(store.Outbox(), store.DeadLetters(), ProcessorConfig{}, logger.NewNop())
	n, err := p.processBatch(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	got, err := store.Outbox().GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OutboxStatusFailed, got.Status)

	dead, err := store.DeadLetters().List(ctx, "", 0, 0)
	require.NoError(t, err)
	assert.Len(t, dead, 1)
}

func TestProcessorStartStop(t *testing.T) {
	store := memory.NewStore()
	p := NewProcessor(store.Outbox(), store.DeadLetters(), ProcessorConfig{}, logger.NewNop())
	p.Start()
	p.Start()
	p.Stop()
	p.Stop()
}

func deadLetter(t *testing.T, store *memory.Store, eventType string) *models.DeadLetterMessage {
	t.Helper()
	msg := enqueue(t, store, eventType, "off-9")
	dead := models.NewDeadLetterMessage(msg, "broker unavailable", "max retries reached (3)")
	require.NoError(t, store.DeadLetters().Create(context.Background(), dead))
	return dead
}

func newDeadLetterProcessor(store *memory.Store) *DeadLetterProcessor {
	return NewDeadLetterProcessor(store.DeadLetters(), logger.NewNop(), &DeadLetterProcessorConfig{
		BatchSize:       10,
		MaxRetries:      3,
		BackoffStrategy: &retry.ConstantBackoff{},
	})
}

func TestDeadLetterReplayResolves(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	dead := deadLetter(t, store, models.EventShipmentCreated)

	h := &flakyHandler{failures: 2}
	p := newDeadLetterProcessor(store)
	p.RegisterHandler(models.EventShipmentCreated, h)

	require.NoError(t, p.processBatch(ctx))
	assert.Equal(t, 3, h.calls)

	got, err := store.DeadLetters().GetMessage(ctx, dead.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DeadLetterStatusResolved, got.Status)
	assert.Equal(t, 1, got.RetryCount)
	assert.NotNil(t, got.ResolvedAt)
}

func TestDeadLetterReplayDiscards(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	dead := deadLetter(t, store, models.EventShipmentCreated)

	h := &flakyHandler{failures: 100}
	p := newDeadLetterProcessor(store)
	p.RegisterHandler(models.EventShipmentCreated, h)

	require.NoError(t, p.processBatch(ctx))
	assert.Equal(t, 3, h.calls)

	got, err := store.DeadLetters().GetMessage(ctx, dead.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DeadLetterStatusDiscarded, got.Status)
	assert.Contains(t, got.FailureReason, "Discarded")

	require.NoError(t, store.DeadLetters().ResetToRetry(ctx, dead.ID))
	h.failures = 0
	require.NoError(t, p.processBatch(ctx))

	got, err = store.DeadLetters().GetMessage(ctx, dead.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DeadLetterStatusResolved, got.Status, "an operator retry replays it again")
}

func TestKafkaHandlerPublishes(t *testing.T) {
	cfg := mocks.NewTestConfig()
	cfg.Producer.Return.Successes = true
	sp := mocks.NewSyncProducer(t, cfg)

	store := memory.NewStore()
	msg := enqueue(t, store, models.EventOfferSubmitted, "off-7")

	sp.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(pm *sarama.ProducerMessage) error {
		if pm.Topic != "marketplace.events" {
			return errors.New("wrong topic " + pm.Topic)
		}
		key, _ := pm.Key.Encode()
		if string(key) != "off-7" {
			return errors.New("wrong key " + string(key))
		}
		headers := map[string]string{}
		for _, h := range pm.Headers {
			headers[string(h.Key)] = string(h.Value)
		}
		if headers[HeaderEventType] != models.EventOfferSubmitted || headers[HeaderAggregateType] != models.AggregateOffer {
			return errors.New("missing headers")
		}
		value, _ := pm.Value.Encode()
		var event models.OutboxMessageEvent
		return json.Unmarshal(value, &event)
	})
	sp.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	h := NewKafkaHandler(kafka.NewProducerFromSync(sp, logger.NewNop()), "marketplace.events", logger.NewNop())
	require.NoError(t, h.HandleMessage(context.Background(), msg))

	err := h.HandleMessage(context.Background(), msg)
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	require.NoError(t, sp.Close())
}

func TestLoggingHandlerRejectsGarbage(t *testing.T) {
	h := NewLoggingHandler(logger.NewNop())
	err := h.HandleMessage(context.Background(), &models.OutboxMessage{Payload: []byte("not json")})
	assert.Error(t, err)

	store := memory.NewStore()
	msg := enqueue(t, store, models.EventOfferUpdated, "off-1")
	assert.NoError(t, h.HandleMessage(context.Background(), msg))
}
