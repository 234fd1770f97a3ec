package repository

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/vaidashi/freight-exchange/internal/models"
)

const announcementColumns = `id, title, description, cargo_type, weight, volume, origin, destination,
	deadline, status, company_id, created_by_id, created_at, updated_at`

// CreateAnnouncement inserts a new announcement
func (r *Repository) CreateAnnouncement(ctx context.Context, a *models.Announcement) error {
	query := `
		INSERT INTO announcements (` + announcementColumns + `)
		VALUES (:id, :title, :description, :cargo_type, :weight, :volume, :origin, :destination,
			:deadline, :status, :company_id, :created_by_id, :created_at, :updated_at)
	`

	if _, err := sqlx.NamedExecContext(ctx, r.db, query, a); err != nil {
		return r.wrap(err, "Failed to create announcement", "announcementID", a.ID)
	}

	return nil
}

// GetAnnouncement retrieves an announcement by its ID
func (r *Repository) GetAnnouncement(ctx context.Context, id string) (*models.Announcement, error) {
	return r.getAnnouncement(ctx, `SELECT `+announcementColumns+` FROM announcements WHERE id = $1`, id)
}

// GetAnnouncementForUpdate locks the announcement row until the transaction ends
func (r *Repository) GetAnnouncementForUpdate(ctx context.Context, id string) (*models.Announcement, error) {
	return r.getAnnouncement(ctx, `SELECT `+announcementColumns+` FROM announcements WHERE id = $1 FOR UPDATE`, id)
}

func (r *Repository) getAnnouncement(ctx context.Context, query, id string) (*models.Announcement, error) {
	var a models.Announcement
	if err := sqlx.GetContext(ctx, r.db, &a, query, id); err != nil {
		return nil, r.wrap(err, "Failed to get announcement", "announcementID", id)
	}

	return &a, nil
}

// ListAnnouncements returns announcements newest first
func (r *Repository) ListAnnouncements(ctx context.Context, filter AnnouncementFilter) ([]*models.Announcement, error) {
	var w where
	if filter.CompanyID != "" {
		w.add("company_id = $%d", filter.CompanyID)
	}
	if filter.CreatedByID != "" {
		w.add("created_by_id = $%d", filter.CreatedByID)
	}
	if filter.Status != "" {
		w.add("status = $%d", filter.Status)
	}
	if filter.Since != nil {
		w.add("created_at >= $%d", *filter.Since)
	}

	query, args := paginate(
		`SELECT `+announcementColumns+` FROM announcements`+w.String()+` ORDER BY created_at DESC`,
		w.args, filter.Limit, filter.Offset,
	)

	announcements := []*models.Announcement{}
	if err := sqlx.SelectContext(ctx, r.db, &announcements, query, args...); err != nil {
		return nil, r.wrap(err, "Failed to list announcements")
	}

	return announcements, nil
}

// UpdateAnnouncementStatus sets the status and bumps updated_at
func (r *Repository) UpdateAnnouncementStatus(ctx context.Context, id string, status models.AnnouncementStatus) error {
	return r.execOne(ctx, "Failed to update announcement status",
		`UPDATE announcements SET status = $1, updated_at = $2 WHERE id = $3`,
		status, models.GetCurrentTime(), id)
}
