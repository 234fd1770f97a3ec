package memory

import (
	"context"

	"github.com/vaidashi/freight-exchange/internal/models"
	"github.com/vaidashi/freight-exchange/internal/repository"
)

// OutboxQueue is the in-memory outbox table
type OutboxQueue struct {
	store *Store
}

var _ repository.OutboxStore = (*OutboxQueue)(nil)

func (o *OutboxQueue) update(id int64, fn func(m *models.OutboxMessage)) error {
	return o.store.locked(func(st *state) error {
		for i := range st.outbox {
			if st.outbox[i].ID == id {
				fn(&st.outbox[i])
				return nil
			}
		}
		return repository.ErrNotFound
	})
}

func (o *OutboxQueue) GetPendingMessages(ctx context.Context, limit int) ([]*models.OutboxMessage, error) {
	out := []*models.OutboxMessage{}
	err := o.store.locked(func(st *state) error {
		for _, m := range st.outbox {
			if m.Status != models.OutboxStatusPending {
				continue
			}
			m := m
			out = append(out, &m)
			if limit > 0 && len(out) == limit {
				break
			}
		}
		return nil
	})
	return out, err
}

func (o *OutboxQueue) MarkAsProcessing(ctx context.Context, id int64) error {
	return o.update(id, func(m *models.OutboxMessage) {
		m.Status = models.OutboxStatusProcessing
		m.ProcessingAttempts++
	})
}

func (o *OutboxQueue) MarkAsCompleted(ctx context.Context, id int64) error {
	return o.update(id, func(m *models.OutboxMessage) {
		now := models.GetCurrentTime()
		m.Status = models.OutboxStatusCompleted
		m.ProcessedAt = &now
		m.LastError = nil
	})
}

func (o *OutboxQueue) MarkAsPending(ctx context.Context, id int64, errorMessage string) error {
	return o.update(id, func(m *models.OutboxMessage) {
		m.Status = models.OutboxStatusPending
		m.LastError = &errorMessage
	})
}

func (o *OutboxQueue) MarkAsFailed(ctx context.Context, id int64, errorMessage string) error {
	return o.update(id, func(m *models.OutboxMessage) {
		m.Status = models.OutboxStatusFailed
		m.LastError = &errorMessage
	})
}

func (o *OutboxQueue) GetMessage(ctx context.Context, id int64) (*models.OutboxMessage, error) {
	var out *models.OutboxMessage
	err := o.update(id, func(m *models.OutboxMessage) {
		cp := *m
		out = &cp
	})
	return out, err
}

func (o *OutboxQueue) CountByStatus(ctx context.Context) (map[models.OutboxStatus]int, error) {
	counts := make(map[models.OutboxStatus]int)
	err := o.store.locked(func(st *state) error {
		for _, m := range st.outbox {
			counts[m.Status]++
		}
		return nil
	})
	return counts, err
}

// Messages returns every outbox row in insertion order
func (o *OutboxQueue) Messages() []models.OutboxMessage {
	var out []models.OutboxMessage
	_ = o.store.locked(func(st *state) error {
		out = append(out, st.outbox...)
		return nil
	})
	return out
}

// DeadLetterQueue is the in-memory dead letter table
type DeadLetterQueue struct {
	store *Store
}

var _ repository.DeadLetterStore = (*DeadLetterQueue)(nil)

func (d *DeadLetterQueue) update(id int64, fn func(m *models.DeadLetterMessage) bool) error {
	return d.store.locked(func(st *state) error {
		for i := range st.deadLetters {
			if st.deadLetters[i].ID == id {
				if !fn(&st.deadLetters[i]) {
					return repository.ErrNotFound
				}
				return nil
			}
		}
		return repository.ErrNotFound
	})
}

func (d *DeadLetterQueue) Create(ctx context.Context, message *models.DeadLetterMessage) error {
	return d.store.locked(func(st *state) error {
		st.deadLetterSeq++
		message.ID = st.deadLetterSeq
		st.deadLetters = append(st.deadLetters, *message)
		return nil
	})
}

func (d *DeadLetterQueue) GetPendingMessages(ctx context.Context, limit int) ([]*models.DeadLetterMessage, error) {
	return d.List(ctx, models.DeadLetterStatusPending, limit, 0)
}

func (d *DeadLetterQueue) List(ctx context.Context, status models.DeadLetterStatus, limit, offset int) ([]*models.DeadLetterMessage, error) {
	out := []*models.DeadLetterMessage{}
	err := d.store.locked(func(st *state) error {
		for _, m := range st.deadLetters {
			if status != "" && m.Status != status {
				continue
			}
			m := m
			out = append(out, &m)
		}
		return nil
	})
	lo, hi := page(len(out), limit, offset)
	return out[lo:hi], err
}

func (d *DeadLetterQueue) MarkAsRetrying(ctx context.Context, id int64) error {
	return d.update(id, func(m *models.DeadLetterMessage) bool {
		now := models.GetCurrentTime()
		m.Status = models.DeadLetterStatusRetrying
		m.RetryCount++
		m.LastRetryAt = &now
		return true
	})
}

func (d *DeadLetterQueue) MarkAsResolved(ctx context.Context, id int64) error {
	return d.update(id, func(m *models.DeadLetterMessage) bool {
		now := models.GetCurrentTime()
		m.Status = models.DeadLetterStatusResolved
		m.ResolvedAt = &now
		return true
	})
}

func (d *DeadLetterQueue) MarkAsDiscarded(ctx context.Context, id int64, reason string) error {
	return d.update(id, func(m *models.DeadLetterMessage) bool {
		now := models.GetCurrentTime()
		m.Status = models.DeadLetterStatusDiscarded
		m.FailureReason += " | Discarded: " + reason
		m.ResolvedAt = &now
		return true
	})
}

func (d *DeadLetterQueue) ResetToRetry(ctx context.Context, id int64) error {
	return d.update(id, func(m *models.DeadLetterMessage) bool {
		if m.Status != models.DeadLetterStatusRetrying && m.Status != models.DeadLetterStatusDiscarded {
			return false
		}
		m.Status = models.DeadLetterStatusPending
		m.ResolvedAt = nil
		return true
	})
}

func (d *DeadLetterQueue) GetMessage(ctx context.Context, id int64) (*models.DeadLetterMessage, error) {
	var out *models.DeadLetterMessage
	err := d.update(id, func(m *models.DeadLetterMessage) bool {
		cp := *m
		out = &cp
		return true
	})
	return out, err
}
