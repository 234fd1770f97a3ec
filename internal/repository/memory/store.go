// Package memory is an in-process repository.Store with the same semantics as
// the Postgres store. It backs STORE_DRIVER=memory and the service tests.
package memory

import (
	"context"
	"sync"

	"github.com/vaidashi/freight-exchange/internal/models"
	"github.com/vaidashi/freight-exchange/internal/repository"
)

type state struct {
	companies     map[string]models.Company
	companyOrder  []string
	users         map[string]models.User
	userOrder     []string
	announcements map[string]models.Announcement
	annOrder      []string
	offers        map[string]models.Offer
	offerOrder    []string
	items         map[string][]models.OfferItem
	history       []models.OfferHistory
	comments      []models.OfferComment
	shipments     map[string]models.Shipment
	shipmentOrder []string
	milestones    []models.ShipmentMilestone
	notifications []models.Notification
	reviews       []models.Review
	outbox        []models.OutboxMessage
	outboxSeq     int64
	deadLetters   []models.DeadLetterMessage
	deadLetterSeq int64
}

func newState() *state {
	return &state{
		companies:     make(map[string]models.Company),
		users:         make(map[string]models.User),
		announcements: make(map[string]models.Announcement),
		offers:        make(map[string]models.Offer),
		items:         make(map[string][]models.OfferItem),
		shipments:     make(map[string]models.Shipment),
	}
}

// clone copies every table so a failed transaction can be thrown away
func (s *state) clone() *state {
	c := &state{
		companies:     make(map[string]models.Company, len(s.companies)),
		companyOrder:  append([]string(nil), s.companyOrder...),
		users:         make(map[string]models.User, len(s.users)),
		userOrder:     append([]string(nil), s.userOrder...),
		announcements: make(map[string]models.Announcement, len(s.announcements)),
		annOrder:      append([]string(nil), s.annOrder...),
		offers:        make(map[string]models.Offer, len(s.offers)),
		offerOrder:    append([]string(nil), s.offerOrder...),
		items:         make(map[string][]models.OfferItem, len(s.items)),
		history:       append([]models.OfferHistory(nil), s.history...),
		comments:      append([]models.OfferComment(nil), s.comments...),
		shipments:     make(map[string]models.Shipment, len(s.shipments)),
		shipmentOrder: append([]string(nil), s.shipmentOrder...),
		milestones:    append([]models.ShipmentMilestone(nil), s.milestones...),
		notifications: append([]models.Notification(nil), s.notifications...),
		reviews:       append([]models.Review(nil), s.reviews...),
		outbox:        append([]models.OutboxMessage(nil), s.outbox...),
		outboxSeq:     s.outboxSeq,
		deadLetters:   append([]models.DeadLetterMessage(nil), s.deadLetters...),
		deadLetterSeq: s.deadLetterSeq,
	}
	for k, v := range s.companies {
		c.companies[k] = v
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.announcements {
		c.announcements[k] = v
	}
	for k, v := range s.offers {
		c.offers[k] = v
	}
	for k, v := range s.items {
		c.items[k] = append([]models.OfferItem(nil), v...)
	}
	for k, v := range s.shipments {
		c.shipments[k] = v
	}
	return c
}

// Store serializes every call and every transaction on one mutex
type Store struct {
	mu sync.Mutex
	st *state
}

var _ repository.Store = (*Store)(nil)

func NewStore() *Store {
	return &Store{st: newState()}
}

// Queries returns auto-committing queries; each call is atomic on its own
func (s *Store) Queries() repository.Queries {
	return &queries{store: s}
}

// InTx runs fn against a private copy of the state and publishes it only when fn succeeds
func (s *Store) InTx(ctx context.Context, fn func(q repository.Queries) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	draft := s.st.clone()
	if err := fn(&queries{store: s, tx: draft}); err != nil {
		return err
	}

	s.st = draft
	return nil
}

// Outbox exposes the outbox table to the outbox processor
func (s *Store) Outbox() *OutboxQueue {
	return &OutboxQueue{store: s}
}

// DeadLetters exposes the dead letter table
func (s *Store) DeadLetters() *DeadLetterQueue {
	return &DeadLetterQueue{store: s}
}

func (s *Store) locked(fn func(st *state) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.st)
}
