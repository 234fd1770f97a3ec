package repository

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/vaidashi/freight-exchange/internal/models"
)

const shipmentColumns = `id, offer_id, announcement_id, logistics_company_id, supplier_company_id,
	tracking_number, status, created_at, updated_at`

const milestoneColumns = `id, shipment_id, status, note, location, created_by_id, created_at`

const reviewColumns = `id, shipment_id, supplier_company_id, logistics_company_id, author_id, rating, comment, created_at`

// CreateShipment inserts a new shipment; a second shipment for the same offer yields ErrDuplicate
func (r *Repository) CreateShipment(ctx context.Context, s *models.Shipment) error {
	query := `
		INSERT INTO shipments (` + shipmentColumns + `)
		VALUES (:id, :offer_id, :announcement_id, :logistics_company_id, :supplier_company_id,
			:tracking_number, :status, :created_at, :updated_at)
	`

	if _, err := sqlx.NamedExecContext(ctx, r.db, query, s); err != nil {
		return r.wrap(err, "Failed to create shipment", "shipmentID", s.ID)
	}

	return nil
}

// GetShipment retrieves a shipment by its ID
func (r *Repository) GetShipment(ctx context.Context, id string) (*models.Shipment, error) {
	return r.getShipment(ctx, `SELECT `+shipmentColumns+` FROM shipments WHERE id = $1`, id)
}

// GetShipmentForUpdate locks the shipment row until the transaction ends
func (r *Repository) GetShipmentForUpdate(ctx context.Context, id string) (*models.Shipment, error) {
	return r.getShipment(ctx, `SELECT `+shipmentColumns+` FROM shipments WHERE id = $1 FOR UPDATE`, id)
}

// GetShipmentByOffer retrieves the shipment of an accepted offer
func (r *Repository) GetShipmentByOffer(ctx context.Context, offerID string) (*models.Shipment, error) {
	return r.getShipment(ctx, `SELECT `+shipmentColumns+` FROM shipments WHERE offer_id = $1`, offerID)
}

func (r *Repository) getShipment(ctx context.Context, query, arg string) (*models.Shipment, error) {
	var shipment models.Shipment
	if err := sqlx.GetContext(ctx, r.db, &shipment, query, arg); err != nil {
		return nil, r.wrap(err, "Failed to get shipment", "key", arg)
	}

	return &shipment, nil
}

// ListShipments returns shipments newest first
func (r *Repository) ListShipments(ctx context.Context, filter ShipmentFilter) ([]*models.Shipment, error) {
	var w where
	if filter.LogisticsCompanyID != "" {
		w.add("logistics_company_id = $%d", filter.LogisticsCompanyID)
	}
	if filter.SupplierCompanyID != "" {
		w.add("supplier_company_id = $%d", filter.SupplierCompanyID)
	}
	if filter.Status != "" {
		w.add("status = $%d", filter.Status)
	}

	query, args := paginate(
		`SELECT `+shipmentColumns+` FROM shipments`+w.String()+` ORDER BY created_at DESC`,
		w.args, filter.Limit, filter.Offset,
	)

	shipments := []*models.Shipment{}
	if err := sqlx.SelectContext(ctx, r.db, &shipments, query, args...); err != nil {
		return nil, r.wrap(err, "Failed to list shipments")
	}

	return shipments, nil
}

// UpdateShipmentStatus updates a shipment's status
func (r *Repository) UpdateShipmentStatus(ctx context.Context, id string, status models.ShipmentStatus) error {
	return r.execOne(ctx, "Failed to update shipment status",
		`UPDATE shipments SET status = $1, updated_at = $2 WHERE id = $3`,
		status, models.GetCurrentTime(), id)
}

// AddMilestone appends a milestone row
func (r *Repository) AddMilestone(ctx context.Context, m *models.ShipmentMilestone) error {
	query := `
		INSERT INTO shipment_milestones (` + milestoneColumns + `)
		VALUES (:id, :shipment_id, :status, :note, :location, :created_by_id, :created_at)
	`

	if _, err := sqlx.NamedExecContext(ctx, r.db, query, m); err != nil {
		return r.wrap(err, "Failed to add milestone", "shipmentID", m.ShipmentID)
	}

	return nil
}

// ListMilestones returns a shipment's milestones oldest first
func (r *Repository) ListMilestones(ctx context.Context, shipmentID string) ([]*models.ShipmentMilestone, error) {
	milestones := []*models.ShipmentMilestone{}
	query := `SELECT ` + milestoneColumns + ` FROM shipment_milestones WHERE shipment_id = $1 ORDER BY created_at ASC, id ASC`
	if err := sqlx.SelectContext(ctx, r.db, &milestones, query, shipmentID); err != nil {
		return nil, r.wrap(err, "Failed to list milestones", "shipmentID", shipmentID)
	}

	return milestones, nil
}

// CreateReview inserts a review; one per shipment
func (r *Repository) CreateReview(ctx context.Context, rev *models.Review) error {
	query := `
		INSERT INTO reviews (` + reviewColumns + `)
		VALUES (:id, :shipment_id, :supplier_company_id, :logistics_company_id, :author_id, :rating, :comment, :created_at)
	`

	if _, err := sqlx.NamedExecContext(ctx, r.db, query, rev); err != nil {
		return r.wrap(err, "Failed to create review", "shipmentID", rev.ShipmentID)
	}

	return nil
}

func (r *Repository) ListReviews(ctx context.Context, filter ReviewFilter) ([]*models.Review, error) {
	var w where
	if filter.LogisticsCompanyID != "" {
		w.add("logistics_company_id = $%d", filter.LogisticsCompanyID)
	}
	if filter.SupplierCompanyID != "" {
		w.add("supplier_company_id = $%d", filter.SupplierCompanyID)
	}

	reviews := []*models.Review{}
	query := `SELECT ` + reviewColumns + ` FROM reviews` + w.String() + ` ORDER BY created_at DESC`
	if err := sqlx.SelectContext(ctx, r.db, &reviews, query, w.args...); err != nil {
		return nil, r.wrap(err, "Failed to list reviews")
	}

	return reviews, nil
}
