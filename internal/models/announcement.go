package models

import (
	"time"
)

// AnnouncementStatus is the lifecycle state of a cargo announcement
type AnnouncementStatus string

const (
	AnnouncementStatusActive    AnnouncementStatus = "ACTIVE"
	AnnouncementStatusClosed    AnnouncementStatus = "CLOSED"
	AnnouncementStatusCancelled AnnouncementStatus = "CANCELLED"
)

// Announcement is a supplier's request for transport
type Announcement struct {
	ID          string             `db:"id" json:"id"`
	Title       string             `db:"title" json:"title"`
	Description string             `db:"description" json:"description"`
	CargoType   string             `db:"cargo_type" json:"cargo_type"`
	Weight      float64            `db:"weight" json:"weight"`
	Volume      *float64           `db:"volume" json:"volume,omitempty"`
	Origin      string             `db:"origin" json:"origin"`
	Destination string             `db:"destination" json:"destination"`
	Deadline    time.Time          `db:"deadline" json:"deadline"`
	Status      AnnouncementStatus `db:"status" json:"status"`
	CompanyID   string             `db:"company_id" json:"company_id"`
	CreatedByID string             `db:"created_by_id" json:"created_by_id"`
	CreatedAt   time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time          `db:"updated_at" json:"updated_at"`
}

// IsOpenAt reports whether offers can be submitted at t
func (a *Announcement) IsOpenAt(t time.Time) bool {
	return a.Status == AnnouncementStatusActive && !t.After(a.Deadline)
}

// Route is the origin/destination pair used by route reports
func (a *Announcement) Route() string {
	return a.Origin + " → " + a.Destination
}

// NewAnnouncement creates an ACTIVE announcement
func NewAnnouncement(companyID, createdByID, title, description, cargoType string, weight float64, volume *float64, origin, destination string, deadline time.Time) *Announcement {
	now := GetCurrentTime()

	return &Announcement{
		ID:          GenerateID("ann"),
		Title:       title,
		Description: description,
		CargoType:   cargoType,
		Weight:      weight,
		Volume:      volume,
		Origin:      origin,
		Destination: destination,
		Deadline:    deadline.UTC(),
		Status:      AnnouncementStatusActive,
		CompanyID:   companyID,
		CreatedByID: createdByID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}
