package service

import (
	"context"
	"strings"
	"time"

	"github.com/vaidashi/freight-exchange/internal/models"
	"github.com/vaidashi/freight-exchange/internal/repository"
	apperrors "github.com/vaidashi/freight-exchange/pkg/errors"
	"github.com/vaidashi/freight-exchange/pkg/logger"
)

type AnnouncementInput struct {
	Title       string    `json:"title" validate:"required,max=255"`
	Description string    `json:"description" validate:"max=5000"`
	CargoType   string    `json:"cargo_type" validate:"required,max=100"`
	Weight      float64   `json:"weight" validate:"gt=0"`
	Volume      *float64  `json:"volume" validate:"omitempty,gt=0"`
	Origin      string    `json:"origin" validate:"required,max=255"`
	Destination string    `json:"destination" validate:"required,max=255"`
	Deadline    time.Time `json:"deadline" validate:"required"`
}

type AnnouncementListFilter struct {
	CompanyID string
	Status    models.AnnouncementStatus
	Limit     int
	Offset    int
}

type AnnouncementService struct {
	store  repository.Store
	logger logger.Logger
	now    func() time.Time
}

func NewAnnouncementService(store repository.Store, logger logger.Logger) *AnnouncementService {
	return &AnnouncementService{
		store:  store,
		logger: logger,
		now:    models.GetCurrentTime,
	}
}

// Create posts a new ACTIVE announcement for the caller's company
func (s *AnnouncementService) Create(ctx context.Context, session *models.Session, in AnnouncementInput) (*models.Announcement, error) {
	if session.Role != models.RoleSupplierEmployee {
		return nil, forbidden("only supplier employees can post announcements")
	}
	if err := validateInput(in); err != nil {
		return nil, err
	}
	if !in.Deadline.After(s.now()) {
		return nil, apperrors.NewValidationError("validation failed",
			map[string]string{"deadline": ErrAnnouncementDeadline.Error()}).WithCause(ErrAnnouncementDeadline)
	}

	a := models.NewAnnouncement(session.CompanyID, session.UserID, strings.TrimSpace(in.Title), in.Description,
		in.CargoType, in.Weight, in.Volume, strings.TrimSpace(in.Origin), strings.TrimSpace(in.Destination), in.Deadline.UTC())

	err := s.store.InTx(ctx, func(q repository.Queries) error {
		company, err := q.GetCompany(ctx, session.CompanyID)
		if err != nil {
			return storeError(s.logger, err, "company")
		}
		if !company.CanTrade() {
			return notVerified()
		}
		return storeError(s.logger, q.CreateAnnouncement(ctx, a), "announcement")
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Announcement created", "announcement_id", a.ID, "company_id", a.CompanyID, "route", a.Route())
	return a, nil
}

func (s *AnnouncementService) Get(ctx context.Context, session *models.Session, id string) (*models.Announcement, error) {
	a, err := s.store.Queries().GetAnnouncement(ctx, id)
	if err != nil {
		return nil, storeError(s.logger, err, "announcement")
	}
	if session.Role == models.RoleSupplierEmployee && a.CompanyID != session.CompanyID {
		return nil, forbidden("announcement belongs to another company")
	}
	return a, nil
}

// List scopes suppliers to their own company; carriers and admins browse the
// whole board
func (s *AnnouncementService) List(ctx context.Context, session *models.Session, f AnnouncementListFilter) ([]*models.Announcement, error) {
	filter := repository.AnnouncementFilter{
		CompanyID: f.CompanyID,
		Status:    f.Status,
		Limit:     f.Limit,
		Offset:    f.Offset,
	}
	if session.Role == models.RoleSupplierEmployee {
		filter.CompanyID = session.CompanyID
	}

	list, err := s.store.Queries().ListAnnouncements(ctx, filter)
	if err != nil {
		return nil, storeError(s.logger, err, "announcement")
	}
	return list, nil
}

// SetStatus lets the owner close or cancel an ACTIVE announcement
func (s *AnnouncementService) SetStatus(ctx context.Context, session *models.Session, id string, status models.AnnouncementStatus) (*models.Announcement, error) {
	if status != models.AnnouncementStatusClosed && status != models.AnnouncementStatusCancelled {
		return nil, invalidStatus(string(status))
	}

	var a *models.Announcement
	err := s.store.InTx(ctx, func(q repository.Queries) error {
		var err error
		a, err = q.GetAnnouncementForUpdate(ctx, id)
		if err != nil {
			return storeError(s.logger, err, "announcement")
		}
		if !session.IsAdmin() && a.CompanyID != session.CompanyID {
			return forbidden("announcement belongs to another company")
		}
		if a.Status != models.AnnouncementStatusActive {
			return conflict(ErrStatusTransitionInvalid, "ANNOUNCEMENT_NOT_ACTIVE")
		}
		if err := q.UpdateAnnouncementStatus(ctx, a.ID, status); err != nil {
			return storeError(s.logger, err, "announcement")
		}
		a.Status = status
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Announcement status changed", "announcement_id", a.ID, "status", status, "by", session.UserID)
	return a, nil
}
