package models

import "time"

// Review is a supplier's rating of a delivered shipment
type Review struct {
	ID                 string    `db:"id" json:"id"`
	ShipmentID         string    `db:"shipment_id" json:"shipment_id"`
	SupplierCompanyID  string    `db:"supplier_company_id" json:"supplier_company_id"`
	LogisticsCompanyID string    `db:"logistics_company_id" json:"logistics_company_id"`
	AuthorID           string    `db:"author_id" json:"author_id"`
	Rating             int       `db:"rating" json:"rating"`
	Comment            *string   `db:"comment" json:"comment,omitempty"`
	CreatedAt          time.Time `db:"created_at" json:"created_at"`
}

func NewReview(shipment *Shipment, authorID string, rating int, comment *string) *Review {
	return &Review{
		ID:                 GenerateID("rev"),
		ShipmentID:         shipment.ID,
		SupplierCompanyID:  shipment.SupplierCompanyID,
		LogisticsCompanyID: shipment.LogisticsCompanyID,
		AuthorID:           authorID,
		Rating:             rating,
		Comment:            comment,
		CreatedAt:          GetCurrentTime(),
	}
}
