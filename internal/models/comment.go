package models

import "time"

// OfferComment is a chat message between supplier and carrier on one offer
type OfferComment struct {
	ID        string    `db:"id" json:"id"`
	OfferID   string    `db:"offer_id" json:"offer_id"`
	AuthorID  string    `db:"author_id" json:"author_id"`
	Content   string    `db:"content" json:"content"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

func NewOfferComment(offerID, authorID, content string) *OfferComment {
	return &OfferComment{
		ID:        GenerateID("cmt"),
		OfferID:   offerID,
		AuthorID:  authorID,
		Content:   content,
		CreatedAt: GetCurrentTime(),
	}
}
