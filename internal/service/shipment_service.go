package service

import (
	"context"

	"github.com/vaidashi/freight-exchange/internal/models"
	"github.com/vaidashi/freight-exchange/internal/repository"
	"github.com/vaidashi/freight-exchange/pkg/logger"
)

// MilestoneInput is one progress update
type MilestoneInput struct {
	Status   models.ShipmentStatus `json:"status"`
	Note     *string               `json:"note" validate:"omitempty,max=1000"`
	Location *string               `json:"location" validate:"omitempty,max=255"`
}

type ShipmentListFilter struct {
	Status models.ShipmentStatus
	Limit  int
	Offset int
}

// ShipmentService tracks shipments through their ordered statuses
type ShipmentService struct {
	store  repository.Store
	logger logger.Logger
}

// NewShipmentService creates a new ShipmentService instance
func NewShipmentService(store repository.Store, logger logger.Logger) *ShipmentService {
	return &ShipmentService{
		store:  store,
		logger: logger,
	}
}

// AddMilestone advances a shipment. Status only moves forward and a
// delivered shipment is final.
func (s *ShipmentService) AddMilestone(ctx context.Context, session *models.Session, shipmentID string, in MilestoneInput) (*models.Shipment, error) {
	current, err := s.store.Queries().GetShipment(ctx, shipmentID)
	if err != nil {
		return nil, storeError(s.logger, err, "shipment")
	}
	if !session.IsAdmin() && session.CompanyID != current.LogisticsCompanyID {
		return nil, forbidden("only the carrier can update this shipment")
	}
	if !in.Status.Valid() {
		return nil, invalidStatus(string(in.Status))
	}
	if err := validateInput(in); err != nil {
		return nil, err
	}

	var (
		shipment *models.Shipment
		previous models.ShipmentStatus
	)
	err = s.store.InTx(ctx, func(q repository.Queries) error {
		var err error
		shipment, err = q.GetShipmentForUpdate(ctx, shipmentID)
		if err != nil {
			return storeError(s.logger, err, "shipment")
		}
		offer, err := q.GetOffer(ctx, shipment.OfferID)
		if err != nil {
			return storeError(s.logger, err, "offer")
		}
		if err := checkTransition(shipment, offer, in.Status); err != nil {
			return err
		}

		milestone := models.NewShipmentMilestone(shipment.ID, in.Status, in.Note, in.Location, session.UserID)
		if err := q.AddMilestone(ctx, milestone); err != nil {
			return storeError(s.logger, err, "milestone")
		}
		if err := q.UpdateShipmentStatus(ctx, shipment.ID, in.Status); err != nil {
			return storeError(s.logger, err, "shipment")
		}

		previous = shipment.Status
		shipment.Status = in.Status
		shipment.UpdatedAt = milestone.CreatedAt

		return recordEvent(ctx, q, models.EventShipmentMilestoneAdded, models.AggregateShipment, shipment.ID, shipmentEventData{
			ShipmentID:         shipment.ID,
			OfferID:            shipment.OfferID,
			LogisticsCompanyID: shipment.LogisticsCompanyID,
			SupplierCompanyID:  shipment.SupplierCompanyID,
			TrackingNumber:     shipment.TrackingNumber,
			Status:             in.Status,
			PreviousStatus:     previous,
			Location:           in.Location,
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Shipment milestone added", "shipment_id", shipment.ID, "from", previous, "to", in.Status, "by", session.UserID)

	if err := s.attachMilestones(ctx, shipment); err != nil {
		return nil, err
	}
	return shipment, nil
}

// checkTransition enforces delivered-is-final, forward-only and accepted-offer
func checkTransition(shipment *models.Shipment, offer *models.Offer, next models.ShipmentStatus) error {
	if shipment.Status == models.ShipmentStatusDelivered {
		return conflict(ErrAlreadyDelivered, "ALREADY_DELIVERED")
	}
	if next.Index() <= shipment.Status.Index() {
		return conflict(ErrNonMonotonicTransition, "NON_MONOTONIC_TRANSITION")
	}
	if offer.Status != models.OfferStatusAccepted {
		return conflict(ErrOfferNotAccepted, "OFFER_NOT_ACCEPTED")
	}
	return nil
}

// Get returns a shipment with its milestones to either party or an admin
func (s *ShipmentService) Get(ctx context.Context, session *models.Session, id string) (*models.Shipment, error) {
	shipment, err := s.store.Queries().GetShipment(ctx, id)
	if err != nil {
		return nil, storeError(s.logger, err, "shipment")
	}
	if !session.IsAdmin() && session.CompanyID != shipment.LogisticsCompanyID && session.CompanyID != shipment.SupplierCompanyID {
		return nil, forbidden("no access to this shipment")
	}
	if err := s.attachMilestones(ctx, shipment); err != nil {
		return nil, err
	}
	return shipment, nil
}

func (s *ShipmentService) List(ctx context.Context, session *models.Session, f ShipmentListFilter) ([]*models.Shipment, error) {
	filter := repository.ShipmentFilter{Status: f.Status, Limit: f.Limit, Offset: f.Offset}
	switch session.Role {
	case models.RoleSupplierEmployee:
		filter.SupplierCompanyID = session.CompanyID
	case models.RoleLogisticsEmployee:
		filter.LogisticsCompanyID = session.CompanyID
	}

	list, err := s.store.Queries().ListShipments(ctx, filter)
	if err != nil {
		return nil, storeError(s.logger, err, "shipment")
	}
	return list, nil
}

func (s *ShipmentService) attachMilestones(ctx context.Context, shipment *models.Shipment) error {
	milestones, err := s.store.Queries().ListMilestones(ctx, shipment.ID)
	if err != nil {
		return storeError(s.logger, err, "milestone")
	}
	shipment.Milestones = make([]models.ShipmentMilestone, len(milestones))
	for i, m := range milestones {
		shipment.Milestones[i] = *m
	}
	return nil
}
