package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/vaidashi/freight-exchange/internal/database"
	"github.com/vaidashi/freight-exchange/internal/models"
	"github.com/vaidashi/freight-exchange/pkg/logger"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDatabase  = errors.New("database error")
	ErrDuplicate = errors.New("duplicate record")
	ErrCheck     = errors.New("check constraint violated")
)

const (
	uniqueViolation = "23505"
	checkViolation  = "23514"
)

// CompanyFilter narrows ListCompanies. Zero values match everything.
type CompanyFilter struct {
	Type     models.CompanyType
	Verified *bool
	Limit    int
	Offset   int
}

type AnnouncementFilter struct {
	CompanyID   string
	CreatedByID string
	Status      models.AnnouncementStatus
	Since       *time.Time
	Limit       int
	Offset      int
}

// OfferFilter narrows ListOffers. SupplierCompanyID matches through the announcement.
type OfferFilter struct {
	AnnouncementID     string
	LogisticsCompanyID string
	SupplierCompanyID  string
	SubmittedByID      string
	Status             models.OfferStatus
	Since              *time.Time
	Limit              int
	Offset             int
}

type ShipmentFilter struct {
	LogisticsCompanyID string
	SupplierCompanyID  string
	Status             models.ShipmentStatus
	Limit              int
	Offset             int
}

type ReviewFilter struct {
	LogisticsCompanyID string
	SupplierCompanyID  string
}

// Queries is every read and write the services perform. Implementations must
// behave identically whether called inside or outside a transaction.
type Queries interface {
	CreateCompany(ctx context.Context, company *models.Company) error
	GetCompany(ctx context.Context, id string) (*models.Company, error)
	ListCompanies(ctx context.Context, filter CompanyFilter) ([]*models.Company, error)
	UpdateCompanyFlags(ctx context.Context, id string, verified, active bool) error

	CreateUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, id string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	ListUsersByCompany(ctx context.Context, companyID string) ([]*models.User, error)
	CountUsers(ctx context.Context) (int, error)

	CreateAnnouncement(ctx context.Context, a *models.Announcement) error
	GetAnnouncement(ctx context.Context, id string) (*models.Announcement, error)
	GetAnnouncementForUpdate(ctx context.Context, id string) (*models.Announcement, error)
	ListAnnouncements(ctx context.Context, filter AnnouncementFilter) ([]*models.Announcement, error)
	UpdateAnnouncementStatus(ctx context.Context, id string, status models.AnnouncementStatus) error

	CreateOffer(ctx context.Context, offer *models.Offer) error
	GetOffer(ctx context.Context, id string) (*models.Offer, error)
	GetOfferForUpdate(ctx context.Context, id string) (*models.Offer, error)
	FindOffer(ctx context.Context, announcementID, logisticsCompanyID string) (*models.Offer, error)
	ListOffers(ctx context.Context, filter OfferFilter) ([]*models.Offer, error)
	ListOfferItems(ctx context.Context, offerIDs []string) ([]models.OfferItem, error)
	UpdateOfferNotes(ctx context.Context, id string, notes *string) error
	ReplaceOfferItems(ctx context.Context, offerID string, items []models.OfferItem) error
	UpdateOfferStatus(ctx context.Context, id string, status models.OfferStatus) error
	RejectPendingOffers(ctx context.Context, announcementID, exceptOfferID string) ([]string, error)
	AppendOfferHistory(ctx context.Context, h *models.OfferHistory) error
	ListOfferHistory(ctx context.Context, offerID string) ([]*models.OfferHistory, error)

	CreateComment(ctx context.Context, c *models.OfferComment) error
	ListComments(ctx context.Context, offerID string) ([]*models.OfferComment, error)

	CreateShipment(ctx context.Context, s *models.Shipment) error
	GetShipment(ctx context.Context, id string) (*models.Shipment, error)
	GetShipmentForUpdate(ctx context.Context, id string) (*models.Shipment, error)
	GetShipmentByOffer(ctx context.Context, offerID string) (*models.Shipment, error)
	ListShipments(ctx context.Context, filter ShipmentFilter) ([]*models.Shipment, error)
	UpdateShipmentStatus(ctx context.Context, id string, status models.ShipmentStatus) error
	AddMilestone(ctx context.Context, m *models.ShipmentMilestone) error
	ListMilestones(ctx context.Context, shipmentID string) ([]*models.ShipmentMilestone, error)

	CreateNotifications(ctx context.Context, notifications []*models.Notification) error
	ListNotifications(ctx context.Context, userID string, unreadOnly bool, limit, offset int) ([]*models.Notification, error)
	CountUnreadNotifications(ctx context.Context, userID string) (int, error)
	MarkNotificationRead(ctx context.Context, userID, id string) error
	MarkAllNotificationsRead(ctx context.Context, userID string) (int64, error)

	CreateReview(ctx context.Context, r *models.Review) error
	ListReviews(ctx context.Context, filter ReviewFilter) ([]*models.Review, error)

	CreateOutboxMessage(ctx context.Context, message *models.OutboxMessage) error
}

// Store hands out Queries and runs units of work atomically
type Store interface {
	Queries() Queries
	// InTx runs fn in one transaction, committing when fn returns nil
	InTx(ctx context.Context, fn func(q Queries) error) error
}

// OutboxStore is the outbox processor's view of the outbox table
type OutboxStore interface {
	GetPendingMessages(ctx context.Context, limit int) ([]*models.OutboxMessage, error)
	MarkAsProcessing(ctx context.Context, id int64) error
	MarkAsCompleted(ctx context.Context, id int64) error
	MarkAsPending(ctx context.Context, id int64, errorMessage string) error
	MarkAsFailed(ctx context.Context, id int64, errorMessage string) error
	GetMessage(ctx context.Context, id int64) (*models.OutboxMessage, error)
	CountByStatus(ctx context.Context) (map[models.OutboxStatus]int, error)
}

// DeadLetterStore is the dead letter queue
type DeadLetterStore interface {
	Create(ctx context.Context, message *models.DeadLetterMessage) error
	GetPendingMessages(ctx context.Context, limit int) ([]*models.DeadLetterMessage, error)
	List(ctx context.Context, status models.DeadLetterStatus, limit, offset int) ([]*models.DeadLetterMessage, error)
	MarkAsRetrying(ctx context.Context, id int64) error
	MarkAsResolved(ctx context.Context, id int64) error
	MarkAsDiscarded(ctx context.Context, id int64, reason string) error
	ResetToRetry(ctx context.Context, id int64) error
	GetMessage(ctx context.Context, id int64) (*models.DeadLetterMessage, error)
}

// Repository implements Queries over either the pool or an open transaction
type Repository struct {
	db     sqlx.ExtContext
	logger logger.Logger
}

// PostgresStore is the production Store
type PostgresStore struct {
	db     *database.Database
	logger logger.Logger
}

// NewPostgresStore creates a Store over a live database
func NewPostgresStore(db *database.Database, logger logger.Logger) *PostgresStore {
	return &PostgresStore{
		db:     db,
		logger: logger,
	}
}

func (s *PostgresStore) Queries() Queries {
	return &Repository{db: s.db.DB, logger: s.logger}
}

// InTx runs fn inside a read-committed transaction; row locks taken with the
// ForUpdate getters serialize competing writers.
func (s *PostgresStore) InTx(ctx context.Context, fn func(q Queries) error) error {
	tx, err := s.db.DB.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		s.logger.Error("Failed to begin transaction", "error", err)
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	if err := fn(&Repository{db: tx, logger: s.logger}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Error("Failed to roll back transaction", "error", rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		s.logger.Error("Failed to commit transaction", "error", err)
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return nil
}

// wrap converts a driver error into a repository sentinel
func (r *Repository) wrap(err error, msg string, keyvals ...interface{}) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case uniqueViolation:
			return fmt.Errorf("%w: %s", ErrDuplicate, pqErr.Constraint)
		case checkViolation:
			return fmt.Errorf("%w: %s", ErrCheck, pqErr.Constraint)
		}
	}

	r.logger.Error(msg, append([]interface{}{"error", err}, keyvals...)...)
	return fmt.Errorf("%w: %v", ErrDatabase, err)
}

// execOne runs an update and reports ErrNotFound when nothing matched
func (r *Repository) execOne(ctx context.Context, msg string, query string, args ...interface{}) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return r.wrap(err, msg)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// paginate appends LIMIT/OFFSET when limit is positive
func paginate(query string, args []interface{}, limit, offset int) (string, []interface{}) {
	if limit <= 0 {
		return query, args
	}
	args = append(args, limit, offset)
	return fmt.Sprintf("%s LIMIT $%d OFFSET $%d", query, len(args)-1, len(args)), args
}

// where accumulates positional predicates
type where struct {
	clauses []string
	args    []interface{}
}

func (w *where) add(clause string, arg interface{}) {
	w.args = append(w.args, arg)
	w.clauses = append(w.clauses, fmt.Sprintf(clause, len(w.args)))
}

func (w *where) String() string {
	if len(w.clauses) == 0 {
		return ""
	}
	out := " WHERE " + w.clauses[0]
	for _, c := range w.clauses[1:] {
		out += " AND " + c
	}
	return out
}
