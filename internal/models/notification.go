package models

import "time"

type NotificationType string

const (
	NotificationNewOffer      NotificationType = "NEW_OFFER"
	NotificationOfferAccepted NotificationType = "OFFER_ACCEPTED"
	NotificationOfferRejected NotificationType = "OFFER_REJECTED"
	NotificationNewComment    NotificationType = "NEW_COMMENT"
)

// Notification is an in-app inbox entry for one user
type Notification struct {
	ID        string           `db:"id" json:"id"`
	UserID    string           `db:"user_id" json:"user_id"`
	Type      NotificationType `db:"type" json:"type"`
	Title     string           `db:"title" json:"title"`
	Body      string           `db:"body" json:"body"`
	RelatedID string           `db:"related_id" json:"related_id"`
	IsRead    bool             `db:"is_read" json:"is_read"`
	CreatedAt time.Time        `db:"created_at" json:"created_at"`
}

func NewNotification(userID string, typ NotificationType, title, body, relatedID string) *Notification {
	return &Notification{
		ID:        GenerateID("ntf"),
		UserID:    userID,
		Type:      typ,
		Title:     title,
		Body:      body,
		RelatedID: relatedID,
		CreatedAt: GetCurrentTime(),
	}
}
