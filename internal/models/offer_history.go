package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// HistoryAction tags an offer history row
type HistoryAction string

const (
	HistoryActionCreated       HistoryAction = "CREATED"
	HistoryActionUpdated       HistoryAction = "UPDATED"
	HistoryActionStatusChanged HistoryAction = "STATUS_CHANGED"
)

// AutoRejectNote is recorded on siblings rejected by an acceptance
const AutoRejectNote = "Auto-rejected: Another offer was accepted"

// OfferHistory is an append-only audit row
type OfferHistory struct {
	ID        string        `db:"id" json:"id"`
	OfferID   string        `db:"offer_id" json:"offer_id"`
	Action    HistoryAction `db:"action" json:"action"`
	OldStatus *OfferStatus  `db:"old_status" json:"old_status,omitempty"`
	NewStatus *OfferStatus  `db:"new_status" json:"new_status,omitempty"`
	ChangedBy string        `db:"changed_by" json:"changed_by"`
	Note      string        `db:"note" json:"note,omitempty"`
	Diff      *OfferDiff    `db:"diff" json:"diff,omitempty"`
	CreatedAt time.Time     `db:"created_at" json:"created_at"`
}

// OfferDiff is the before/after payload of an UPDATED action
type OfferDiff struct {
	OldNotes *string     `json:"old_notes"`
	NewNotes *string     `json:"new_notes"`
	OldItems []OfferItem `json:"old_items"`
	NewItems []OfferItem `json:"new_items"`
}

// Value stores the diff as JSONB
func (d OfferDiff) Value() (driver.Value, error) {
	return json.Marshal(d)
}

// Scan reads a JSONB diff
func (d *OfferDiff) Scan(src interface{}) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, d)
	case string:
		return json.Unmarshal([]byte(v), d)
	default:
		return errors.New("offer diff: unsupported source type")
	}
}

func newHistory(offerID, changedBy string, action HistoryAction) *OfferHistory {
	return &OfferHistory{
		ID:        GenerateID("his"),
		OfferID:   offerID,
		Action:    action,
		ChangedBy: changedBy,
		CreatedAt: GetCurrentTime(),
	}
}

// NewCreatedHistory records an offer submission
func NewCreatedHistory(offerID, changedBy string) *OfferHistory {
	h := newHistory(offerID, changedBy, HistoryActionCreated)
	status := OfferStatusPending
	h.NewStatus = &status
	return h
}

// NewStatusHistory records a status transition
func NewStatusHistory(offerID, changedBy string, from, to OfferStatus, note string) *OfferHistory {
	h := newHistory(offerID, changedBy, HistoryActionStatusChanged)
	h.OldStatus = &from
	h.NewStatus = &to
	h.Note = note
	return h
}

// NewUpdatedHistory records an edit with its typed diff
func NewUpdatedHistory(offerID, changedBy string, diff OfferDiff) *OfferHistory {
	h := newHistory(offerID, changedBy, HistoryActionUpdated)
	h.Diff = &diff
	h.Note = "Offer updated"
	return h
}
