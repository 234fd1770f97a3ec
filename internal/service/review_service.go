package service

import (
	"context"
	"errors"

	"github.com/vaidashi/freight-exchange/internal/models"
	"github.com/vaidashi/freight-exchange/internal/repository"
	"github.com/vaidashi/freight-exchange/pkg/logger"
)

type ReviewInput struct {
	Rating  int     `json:"rating" validate:"gte=1,lte=5"`
	Comment *string `json:"comment" validate:"omitempty,max=2000"`
}

// ReviewService lets suppliers rate carriers once per delivered shipment
type ReviewService struct {
	store  repository.Store
	logger logger.Logger
}

func NewReviewService(store repository.Store, logger logger.Logger) *ReviewService {
	return &ReviewService{store: store, logger: logger}
}

func (s *ReviewService) Create(ctx context.Context, session *models.Session, shipmentID string, in ReviewInput) (*models.Review, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}

	var review *models.Review
	err := s.store.InTx(ctx, func(q repository.Queries) error {
		shipment, err := q.GetShipment(ctx, shipmentID)
		if err != nil {
			return storeError(s.logger, err, "shipment")
		}
		if session.Role != models.RoleSupplierEmployee || session.CompanyID != shipment.SupplierCompanyID {
			return forbidden("only the supplier can review this shipment")
		}
		if shipment.Status != models.ShipmentStatusDelivered {
			return conflict(ErrShipmentNotDelivered, "SHIPMENT_NOT_DELIVERED")
		}

		review = models.NewReview(shipment, session.UserID, in.Rating, in.Comment)
		if err := q.CreateReview(ctx, review); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return conflict(ErrReviewExists, "REVIEW_EXISTS")
			}
			return storeError(s.logger, err, "review")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Review created", "review_id", review.ID, "shipment_id", shipmentID, "rating", review.Rating)
	return review, nil
}

// ListForCompany returns the reviews a logistics company received
func (s *ReviewService) ListForCompany(ctx context.Context, companyID string) ([]*models.Review, error) {
	if _, err := s.store.Queries().GetCompany(ctx, companyID); err != nil {
		return nil, storeError(s.logger, err, "company")
	}
	list, err := s.store.Queries().ListReviews(ctx, repository.ReviewFilter{LogisticsCompanyID: companyID})
	if err != nil {
		return nil, storeError(s.logger, err, "review")
	}
	return list, nil
}
