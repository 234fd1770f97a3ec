package repository

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/vaidashi/freight-exchange/internal/models"
)

const offerColumns = `o.id, o.announcement_id, o.logistics_company_id, o.submitted_by_id, o.notes, o.status, o.created_at, o.updated_at`

const offerItemColumns = `id, offer_id, transport_type, price, currency, delivery_days, notes`

const historyColumns = `id, offer_id, action, old_status, new_status, changed_by, note, diff, created_at`

// CreateOffer inserts the offer and its items. Call it inside InTx.
func (r *Repository) CreateOffer(ctx context.Context, offer *models.Offer) error {
	query := `
		INSERT INTO offers (id, announcement_id, logistics_company_id, submitted_by_id, notes, status, created_at, updated_at)
		VALUES (:id, :announcement_id, :logistics_company_id, :submitted_by_id, :notes, :status, :created_at, :updated_at)
	`

	if _, err := sqlx.NamedExecContext(ctx, r.db, query, offer); err != nil {
		return r.wrap(err, "Failed to create offer", "offerID", offer.ID)
	}

	return r.insertItems(ctx, offer.Items)
}

func (r *Repository) insertItems(ctx context.Context, items []models.OfferItem) error {
	query := `
		INSERT INTO offer_items (` + offerItemColumns + `)
		VALUES (:id, :offer_id, :transport_type, :price, :currency, :delivery_days, :notes)
	`

	for i := range items {
		if _, err := sqlx.NamedExecContext(ctx, r.db, query, &items[i]); err != nil {
			return r.wrap(err, "Failed to create offer item", "offerID", items[i].OfferID)
		}
	}

	return nil
}

// GetOffer retrieves an offer with its items
func (r *Repository) GetOffer(ctx context.Context, id string) (*models.Offer, error) {
	return r.getOffer(ctx, `SELECT `+offerColumns+` FROM offers o WHERE o.id = $1`, id)
}

// GetOfferForUpdate locks the offer row until the transaction ends
func (r *Repository) GetOfferForUpdate(ctx context.Context, id string) (*models.Offer, error) {
	return r.getOffer(ctx, `SELECT `+offerColumns+` FROM offers o WHERE o.id = $1 FOR UPDATE`, id)
}

// FindOffer returns the offer a company placed on an announcement, if any
func (r *Repository) FindOffer(ctx context.Context, announcementID, logisticsCompanyID string) (*models.Offer, error) {
	return r.getOffer(ctx,
		`SELECT `+offerColumns+` FROM offers o WHERE o.announcement_id = $1 AND o.logistics_company_id = $2`,
		announcementID, logisticsCompanyID)
}

func (r *Repository) getOffer(ctx context.Context, query string, args ...interface{}) (*models.Offer, error) {
	var offer models.Offer
	if err := sqlx.GetContext(ctx, r.db, &offer, query, args...); err != nil {
		return nil, r.wrap(err, "Failed to get offer")
	}

	items, err := r.ListOfferItems(ctx, []string{offer.ID})
	if err != nil {
		return nil, err
	}
	offer.Items = items

	return &offer, nil
}

// ListOffers returns offers newest first, without their items
func (r *Repository) ListOffers(ctx context.Context, filter OfferFilter) ([]*models.Offer, error) {
	from := ` FROM offers o`
	var w where
	if filter.SupplierCompanyID != "" {
		from += ` JOIN announcements a ON a.id = o.announcement_id`
		w.add("a.company_id = $%d", filter.SupplierCompanyID)
	}
	if filter.AnnouncementID != "" {
		w.add("o.announcement_id = $%d", filter.AnnouncementID)
	}
	if filter.LogisticsCompanyID != "" {
		w.add("o.logistics_company_id = $%d", filter.LogisticsCompanyID)
	}
	if filter.SubmittedByID != "" {
		w.add("o.submitted_by_id = $%d", filter.SubmittedByID)
	}
	if filter.Status != "" {
		w.add("o.status = $%d", filter.Status)
	}
	if filter.Since != nil {
		w.add("o.created_at >= $%d", *filter.Since)
	}

	query, args := paginate(
		`SELECT `+offerColumns+from+w.String()+` ORDER BY o.created_at DESC`,
		w.args, filter.Limit, filter.Offset,
	)

	offers := []*models.Offer{}
	if err := sqlx.SelectContext(ctx, r.db, &offers, query, args...); err != nil {
		return nil, r.wrap(err, "Failed to list offers")
	}

	return offers, nil
}

// ListOfferItems loads the items of several offers at once
func (r *Repository) ListOfferItems(ctx context.Context, offerIDs []string) ([]models.OfferItem, error) {
	items := []models.OfferItem{}
	if len(offerIDs) == 0 {
		return items, nil
	}

	query := `SELECT ` + offerItemColumns + ` FROM offer_items WHERE offer_id = ANY($1) ORDER BY offer_id, price ASC`
	if err := sqlx.SelectContext(ctx, r.db, &items, query, pq.Array(offerIDs)); err != nil {
		return nil, r.wrap(err, "Failed to list offer items")
	}

	return items, nil
}

func (r *Repository) UpdateOfferNotes(ctx context.Context, id string, notes *string) error {
	return r.execOne(ctx, "Failed to update offer notes",
		`UPDATE offers SET notes = $1, updated_at = $2 WHERE id = $3`,
		notes, models.GetCurrentTime(), id)
}

// ReplaceOfferItems deletes every item of the offer and inserts the new set
func (r *Repository) ReplaceOfferItems(ctx context.Context, offerID string, items []models.OfferItem) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM offer_items WHERE offer_id = $1`, offerID); err != nil {
		return r.wrap(err, "Failed to delete offer items", "offerID", offerID)
	}

	return r.insertItems(ctx, items)
}

func (r *Repository) UpdateOfferStatus(ctx context.Context, id string, status models.OfferStatus) error {
	return r.execOne(ctx, "Failed to update offer status",
		`UPDATE offers SET status = $1, updated_at = $2 WHERE id = $3`,
		status, models.GetCurrentTime(), id)
}

// RejectPendingOffers rejects every PENDING offer on the announcement except
// exceptOfferID and returns the ids it changed
func (r *Repository) RejectPendingOffers(ctx context.Context, announcementID, exceptOfferID string) ([]string, error) {
	query := `
		UPDATE offers
		SET status = $1, updated_at = $2
		WHERE announcement_id = $3 AND status = $4 AND id <> $5
		RETURNING id
	`

	ids := []string{}
	err := sqlx.SelectContext(ctx, r.db, &ids, query,
		models.OfferStatusRejected,
		models.GetCurrentTime(),
		announcementID,
		models.OfferStatusPending,
		exceptOfferID,
	)
	if err != nil {
		return nil, r.wrap(err, "Failed to reject pending offers", "announcementID", announcementID)
	}

	return ids, nil
}

// AppendOfferHistory inserts an audit row
func (r *Repository) AppendOfferHistory(ctx context.Context, h *models.OfferHistory) error {
	query := `
		INSERT INTO offer_history (` + historyColumns + `)
		VALUES (:id, :offer_id, :action, :old_status, :new_status, :changed_by, :note, :diff, :created_at)
	`

	if _, err := sqlx.NamedExecContext(ctx, r.db, query, h); err != nil {
		return r.wrap(err, "Failed to append offer history", "offerID", h.OfferID)
	}

	return nil
}

// ListOfferHistory returns the audit trail oldest first
func (r *Repository) ListOfferHistory(ctx context.Context, offerID string) ([]*models.OfferHistory, error) {
	history := []*models.OfferHistory{}
	query := `SELECT ` + historyColumns + ` FROM offer_history WHERE offer_id = $1 ORDER BY created_at ASC, id ASC`
	if err := sqlx.SelectContext(ctx, r.db, &history, query, offerID); err != nil {
		return nil, r.wrap(err, "Failed to list offer history", "offerID", offerID)
	}

	return history, nil
}

// CreateComment inserts a comment
func (r *Repository) CreateComment(ctx context.Context, c *models.OfferComment) error {
	query := `
		INSERT INTO offer_comments (id, offer_id, author_id, content, created_at)
		VALUES (:id, :offer_id, :author_id, :content, :created_at)
	`

	if _, err := sqlx.NamedExecContext(ctx, r.db, query, c); err != nil {
		return r.wrap(err, "Failed to create comment", "offerID", c.OfferID)
	}

	return nil
}

// ListComments returns the thread oldest first
func (r *Repository) ListComments(ctx context.Context, offerID string) ([]*models.OfferComment, error) {
	comments := []*models.OfferComment{}
	query := `SELECT id, offer_id, author_id, content, created_at FROM offer_comments WHERE offer_id = $1 ORDER BY created_at ASC, id ASC`
	if err := sqlx.SelectContext(ctx, r.db, &comments, query, offerID); err != nil {
		return nil, r.wrap(err, "Failed to list comments", "offerID", offerID)
	}

	return comments, nil
}
