package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/vaidashi/freight-exchange/internal/models"
	"github.com/vaidashi/freight-exchange/internal/repository"
	apperrors "github.com/vaidashi/freight-exchange/pkg/errors"
	"github.com/vaidashi/freight-exchange/pkg/logger"
)

const (
	maxCommentLength = 2000
	previewLength    = 80
)

type OfferItemInput struct {
	TransportType models.TransportType `json:"transport_type" validate:"required,oneof=AIR SEA RAIL ROAD"`
	Price         decimal.Decimal      `json:"price" validate:"gt=0"`
	Currency      models.Currency      `json:"currency" validate:"required,oneof=USD EUR AZN"`
	DeliveryDays  int                  `json:"delivery_days" validate:"gt=0"`
	Notes         *string              `json:"notes" validate:"omitempty,max=1000"`
}

// OfferInput is the body of submit and edit
type OfferInput struct {
	Notes *string          `json:"notes" validate:"omitempty,max=2000"`
	Items []OfferItemInput `json:"items" validate:"required,min=1,dive"`
}

func (in OfferInput) items() []models.OfferItem {
	out := make([]models.OfferItem, len(in.Items))
	for i, it := range in.Items {
		out[i] = models.OfferItem{
			TransportType: it.TransportType,
			Price:         it.Price.Round(moneyPlaces),
			Currency:      it.Currency,
			DeliveryDays:  it.DeliveryDays,
			Notes:         it.Notes,
		}
	}
	return out
}

type OfferListFilter struct {
	AnnouncementID string
	Status         models.OfferStatus
	Limit          int
	Offset         int
}

// OfferDocument is everything needed to render an offer for export
type OfferDocument struct {
	Offer        *models.Offer          `json:"offer"`
	Announcement *models.Announcement   `json:"announcement"`
	Supplier     *models.Company        `json:"supplier"`
	Carrier      *models.Company        `json:"carrier"`
	Comments     []*models.OfferComment `json:"comments"`
	GeneratedAt  time.Time              `json:"generated_at"`
}

// OfferService is the offer lifecycle engine
type OfferService struct {
	store    repository.Store
	notifier Notifier
	logger   logger.Logger
	now      func() time.Time
}

func NewOfferService(store repository.Store, notifier Notifier, logger logger.Logger) *OfferService {
	return &OfferService{
		store:    store,
		notifier: notifier,
		logger:   logger,
		now:      models.GetCurrentTime,
	}
}

// Submit places the caller's company's offer on an announcement
func (s *OfferService) Submit(ctx context.Context, session *models.Session, announcementID string, in OfferInput) (*models.Offer, error) {
	if session.Role != models.RoleLogisticsEmployee {
		return nil, forbidden("only logistics employees can submit offers")
	}
	if err := validateInput(in); err != nil {
		return nil, err
	}

	var (
		offer   *models.Offer
		ann     *models.Announcement
		company *models.Company
	)

	err := s.store.InTx(ctx, func(q repository.Queries) error {
		var err error
		company, err = q.GetCompany(ctx, session.CompanyID)
		if err != nil {
			return storeError(s.logger, err, "company")
		}
		if !company.CanTrade() {
			return notVerified()
		}

		// Shares the lock SetStatus takes, so an acceptance that closes the
		// announcement is seen here
		ann, err = q.GetAnnouncementForUpdate(ctx, announcementID)
		if err != nil {
			return storeError(s.logger, err, "announcement")
		}
		if ann.Status != models.AnnouncementStatusActive {
			return conflict(ErrAnnouncementNotActive, "ANNOUNCEMENT_NOT_ACTIVE")
		}
		if !ann.IsOpenAt(s.now()) {
			return apperrors.NewConflictError("announcement deadline has passed").
				WithCause(ErrAnnouncementNotActive).WithCode("ANNOUNCEMENT_NOT_ACTIVE")
		}

		_, err = q.FindOffer(ctx, ann.ID, company.ID)
		switch {
		case err == nil:
			return conflict(ErrDuplicateOffer, "DUPLICATE_OFFER")
		case !errors.Is(err, repository.ErrNotFound):
			return storeError(s.logger, err, "offer")
		}

		offer = models.NewOffer(ann.ID, company.ID, session.UserID, in.Notes, in.items())
		if err := q.CreateOffer(ctx, offer); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return conflict(ErrDuplicateOffer, "DUPLICATE_OFFER")
			}
			return storeError(s.logger, err, "offer")
		}
		if err := q.AppendOfferHistory(ctx, models.NewCreatedHistory(offer.ID, session.UserID)); err != nil {
			return storeError(s.logger, err, "offer history")
		}
		return recordEvent(ctx, q, models.EventOfferSubmitted, models.AggregateOffer, offer.ID, newOfferEventData(offer))
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Offer submitted", "offer_id", offer.ID, "announcement_id", ann.ID, "company_id", company.ID)

	notifyCompany(ctx, s.store, s.notifier, s.logger, ann.CompanyID, "",
		models.NotificationNewOffer, "New offer received",
		fmt.Sprintf("%s submitted an offer for %q", company.Name, ann.Title), offer.ID)

	return offer, nil
}

// Edit replaces the notes and items of a PENDING offer and records the
// before/after diff
func (s *OfferService) Edit(ctx context.Context, session *models.Session, offerID string, in OfferInput) (*models.Offer, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}

	var offer *models.Offer
	err := s.store.InTx(ctx, func(q repository.Queries) error {
		current, err := q.GetOfferForUpdate(ctx, offerID)
		if err != nil {
			return storeError(s.logger, err, "offer")
		}
		if current.LogisticsCompanyID != session.CompanyID {
			return forbidden("offer belongs to another company")
		}
		if current.Status != models.OfferStatusPending {
			return conflict(ErrOfferNotEditable, "OFFER_NOT_EDITABLE")
		}

		newItems := models.StampItems(current.ID, in.items())
		diff := models.OfferDiff{
			OldNotes: current.Notes,
			NewNotes: in.Notes,
			OldItems: current.Items,
			NewItems: newItems,
		}

		if err := q.ReplaceOfferItems(ctx, current.ID, newItems); err != nil {
			return storeError(s.logger, err, "offer items")
		}
		if err := q.UpdateOfferNotes(ctx, current.ID, in.Notes); err != nil {
			return storeError(s.logger, err, "offer")
		}
		if err := q.AppendOfferHistory(ctx, models.NewUpdatedHistory(current.ID, session.UserID, diff)); err != nil {
			return storeError(s.logger, err, "offer history")
		}

		offer, err = q.GetOffer(ctx, current.ID)
		if err != nil {
			return storeError(s.logger, err, "offer")
		}
		return recordEvent(ctx, q, models.EventOfferUpdated, models.AggregateOffer, offer.ID, newOfferEventData(offer))
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Offer updated", "offer_id", offer.ID, "items", len(offer.Items), "by", session.UserID)
	return offer, nil
}

// statusChange collects what a status transition did, for logging and notifications
type statusChange struct {
	offer        *models.Offer
	announcement *models.Announcement
	oldStatus    models.OfferStatus
	autoRejected []*models.Offer
	shipment     *models.Shipment
}

// SetStatus records the supplier's decision on an offer. Accepting closes
// the announcement, rejects every other pending offer and books a shipment
// unless the offer already has one.
func (s *OfferService) SetStatus(ctx context.Context, session *models.Session, offerID string, status models.OfferStatus) (*models.Offer, error) {
	if !status.Valid() {
		return nil, invalidStatus(string(status))
	}

	q := s.store.Queries()
	offer, err := q.GetOffer(ctx, offerID)
	if err != nil {
		return nil, storeError(s.logger, err, "offer")
	}
	ann, err := q.GetAnnouncement(ctx, offer.AnnouncementID)
	if err != nil {
		return nil, storeError(s.logger, err, "announcement")
	}
	if !session.IsAdmin() && (session.Role != models.RoleSupplierEmployee || session.CompanyID != ann.CompanyID) {
		return nil, forbidden("only the announcement owner can decide on offers")
	}

	var change statusChange
	err = s.store.InTx(ctx, func(q repository.Queries) error {
		var err error
		change, err = s.applyStatus(ctx, q, session, offerID, status)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Offer status changed", "offer_id", offerID, "from", change.oldStatus, "to", status,
		"auto_rejected", len(change.autoRejected), "by", session.UserID)

	s.notifyDecision(ctx, change, status)
	return change.offer, nil
}

func (s *OfferService) applyStatus(ctx context.Context, q repository.Queries, session *models.Session, offerID string, status models.OfferStatus) (statusChange, error) {
	var change statusChange

	// Lock the announcement first so concurrent decisions on sibling offers serialize
	unlocked, err := q.GetOffer(ctx, offerID)
	if err != nil {
		return change, storeError(s.logger, err, "offer")
	}
	ann, err := q.GetAnnouncementForUpdate(ctx, unlocked.AnnouncementID)
	if err != nil {
		return change, storeError(s.logger, err, "announcement")
	}
	offer, err := q.GetOfferForUpdate(ctx, offerID)
	if err != nil {
		return change, storeError(s.logger, err, "offer")
	}

	change.offer = offer
	change.announcement = ann
	change.oldStatus = offer.Status

	if status == models.OfferStatusAccepted {
		if ann.Status == models.AnnouncementStatusCancelled {
			return change, conflict(ErrAnnouncementClosed, "ANNOUNCEMENT_CANCELLED")
		}
		accepted, err := q.ListOffers(ctx, repository.OfferFilter{AnnouncementID: ann.ID, Status: models.OfferStatusAccepted})
		if err != nil {
			return change, storeError(s.logger, err, "offer")
		}
		for _, o := range accepted {
			if o.ID != offer.ID {
				return change, conflict(ErrOfferAlreadyAccepted, "OFFER_ALREADY_ACCEPTED")
			}
		}
	}

	if offer.Status == models.OfferStatusAccepted && status != models.OfferStatusAccepted {
		shipment, err := q.GetShipmentByOffer(ctx, offer.ID)
		switch {
		case err == nil && shipment.Status != models.ShipmentStatusBooked:
			return change, conflict(ErrShipmentInProgress, "SHIPMENT_IN_PROGRESS")
		case err != nil && !errors.Is(err, repository.ErrNotFound):
			return change, storeError(s.logger, err, "shipment")
		}
	}

	history := models.NewStatusHistory(offer.ID, session.UserID, offer.Status, status, "")
	if err := q.AppendOfferHistory(ctx, history); err != nil {
		return change, storeError(s.logger, err, "offer history")
	}
	if err := q.UpdateOfferStatus(ctx, offer.ID, status); err != nil {
		return change, storeError(s.logger, err, "offer")
	}
	offer.Status = status

	event := models.OfferStatusChangedData{
		OfferID:            offer.ID,
		AnnouncementID:     ann.ID,
		LogisticsCompanyID: offer.LogisticsCompanyID,
		OldStatus:          change.oldStatus,
		NewStatus:          status,
		ChangedBy:          session.UserID,
	}

	if status == models.OfferStatusAccepted {
		if err := s.acceptCascade(ctx, q, session, &change); err != nil {
			return change, err
		}
		for _, o := range change.autoRejected {
			event.AutoRejected = append(event.AutoRejected, o.ID)
		}
		if change.shipment != nil {
			event.ShipmentID = change.shipment.ID
		}
	}

	msg, err := models.NewOfferStatusChangedEvent(event)
	if err != nil {
		return change, apperrors.NewInternalError("failed to encode event").WithCause(err)
	}
	if err := q.CreateOutboxMessage(ctx, msg); err != nil {
		return change, storeError(s.logger, err, "outbox message")
	}
	return change, nil
}

// acceptCascade rejects the pending siblings, closes the announcement and
// books the shipment
func (s *OfferService) acceptCascade(ctx context.Context, q repository.Queries, session *models.Session, change *statusChange) error {
	offer, ann := change.offer, change.announcement

	pending, err := q.ListOffers(ctx, repository.OfferFilter{AnnouncementID: ann.ID, Status: models.OfferStatusPending})
	if err != nil {
		return storeError(s.logger, err, "offer")
	}
	for _, o := range pending {
		if o.ID == offer.ID {
			continue
		}
		h := models.NewStatusHistory(o.ID, session.UserID, models.OfferStatusPending, models.OfferStatusRejected, models.AutoRejectNote)
		if err := q.AppendOfferHistory(ctx, h); err != nil {
			return storeError(s.logger, err, "offer history")
		}
		o.Status = models.OfferStatusRejected
		change.autoRejected = append(change.autoRejected, o)
	}
	if _, err := q.RejectPendingOffers(ctx, ann.ID, offer.ID); err != nil {
		return storeError(s.logger, err, "offer")
	}

	if ann.Status != models.AnnouncementStatusClosed {
		if err := q.UpdateAnnouncementStatus(ctx, ann.ID, models.AnnouncementStatusClosed); err != nil {
			return storeError(s.logger, err, "announcement")
		}
		ann.Status = models.AnnouncementStatusClosed
	}

	// A re-accepted offer keeps the shipment it already has
	_, err = q.GetShipmentByOffer(ctx, offer.ID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return storeError(s.logger, err, "shipment")
	}

	shipment := models.NewShipment(offer, ann.CompanyID)
	if err := q.CreateShipment(ctx, shipment); err != nil {
		return storeError(s.logger, err, "shipment")
	}
	note := "Shipment booked"
	booked := models.NewShipmentMilestone(shipment.ID, models.ShipmentStatusBooked, &note, nil, session.UserID)
	if err := q.AddMilestone(ctx, booked); err != nil {
		return storeError(s.logger, err, "milestone")
	}
	shipment.Milestones = []models.ShipmentMilestone{*booked}
	change.shipment = shipment

	return recordEvent(ctx, q, models.EventShipmentCreated, models.AggregateShipment, shipment.ID, shipmentEventData{
		ShipmentID:         shipment.ID,
		OfferID:            offer.ID,
		LogisticsCompanyID: shipment.LogisticsCompanyID,
		SupplierCompanyID:  shipment.SupplierCompanyID,
		TrackingNumber:     shipment.TrackingNumber,
		Status:             shipment.Status,
	})
}

func (s *OfferService) notifyDecision(ctx context.Context, change statusChange, status models.OfferStatus) {
	title := change.announcement.Title

	switch status {
	case models.OfferStatusAccepted:
		notifyCompany(ctx, s.store, s.notifier, s.logger, change.offer.LogisticsCompanyID, "",
			models.NotificationOfferAccepted, "Offer accepted",
			fmt.Sprintf("Your offer for %q was accepted", title), change.offer.ID)
	case models.OfferStatusRejected:
		notifyCompany(ctx, s.store, s.notifier, s.logger, change.offer.LogisticsCompanyID, "",
			models.NotificationOfferRejected, "Offer rejected",
			fmt.Sprintf("Your offer for %q was rejected", title), change.offer.ID)
	}

	for _, o := range change.autoRejected {
		notifyCompany(ctx, s.store, s.notifier, s.logger, o.LogisticsCompanyID, "",
			models.NotificationOfferRejected, "Offer rejected",
			fmt.Sprintf("Another offer was accepted for %q", title), o.ID)
	}
}

// access loads an offer with its announcement and checks that the caller is
// one of the two parties or an admin
func (s *OfferService) access(ctx context.Context, session *models.Session, offerID string) (*models.Offer, *models.Announcement, error) {
	q := s.store.Queries()
	offer, err := q.GetOffer(ctx, offerID)
	if err != nil {
		return nil, nil, storeError(s.logger, err, "offer")
	}
	ann, err := q.GetAnnouncement(ctx, offer.AnnouncementID)
	if err != nil {
		return nil, nil, storeError(s.logger, err, "announcement")
	}

	if session.IsAdmin() || session.CompanyID == ann.CompanyID || session.CompanyID == offer.LogisticsCompanyID {
		return offer, ann, nil
	}
	return nil, nil, forbidden("no access to this offer")
}

func (s *OfferService) Get(ctx context.Context, session *models.Session, offerID string) (*models.Offer, error) {
	offer, _, err := s.access(ctx, session, offerID)
	return offer, err
}

// List returns offers visible to the caller, with their items
func (s *OfferService) List(ctx context.Context, session *models.Session, f OfferListFilter) ([]*models.Offer, error) {
	filter := repository.OfferFilter{
		AnnouncementID: f.AnnouncementID,
		Status:         f.Status,
		Limit:          f.Limit,
		Offset:         f.Offset,
	}
	switch session.Role {
	case models.RoleSupplierEmployee:
		filter.SupplierCompanyID = session.CompanyID
	case models.RoleLogisticsEmployee:
		filter.LogisticsCompanyID = session.CompanyID
	}

	q := s.store.Queries()
	offers, err := q.ListOffers(ctx, filter)
	if err != nil {
		return nil, storeError(s.logger, err, "offer")
	}
	if err := attachItems(ctx, q, offers); err != nil {
		return nil, storeError(s.logger, err, "offer items")
	}
	return offers, nil
}

func attachItems(ctx context.Context, q repository.Queries, offers []*models.Offer) error {
	if len(offers) == 0 {
		return nil
	}
	ids := make([]string, len(offers))
	byID := make(map[string]*models.Offer, len(offers))
	for i, o := range offers {
		ids[i] = o.ID
		byID[o.ID] = o
		o.Items = []models.OfferItem{}
	}

	items, err := q.ListOfferItems(ctx, ids)
	if err != nil {
		return err
	}
	for _, it := range items {
		if o, ok := byID[it.OfferID]; ok {
			o.Items = append(o.Items, it)
		}
	}
	return nil
}

func (s *OfferService) History(ctx context.Context, session *models.Session, offerID string) ([]*models.OfferHistory, error) {
	if _, _, err := s.access(ctx, session, offerID); err != nil {
		return nil, err
	}
	list, err := s.store.Queries().ListOfferHistory(ctx, offerID)
	if err != nil {
		return nil, storeError(s.logger, err, "offer history")
	}
	return list, nil
}

// AddComment posts a message on an offer and notifies the other party
func (s *OfferService) AddComment(ctx context.Context, session *models.Session, offerID, content string) (*models.OfferComment, error) {
	content = strings.TrimSpace(content)
	if n := utf8.RuneCountInString(content); n == 0 || n > maxCommentLength {
		return nil, apperrors.NewValidationError("validation failed",
			map[string]string{"content": fmt.Sprintf("must be between 1 and %d characters", maxCommentLength)})
	}

	offer, ann, err := s.access(ctx, session, offerID)
	if err != nil {
		return nil, err
	}

	comment := models.NewOfferComment(offer.ID, session.UserID, content)
	err = s.store.InTx(ctx, func(q repository.Queries) error {
		if err := q.CreateComment(ctx, comment); err != nil {
			return storeError(s.logger, err, "comment")
		}
		return recordEvent(ctx, q, models.EventCommentAdded, models.AggregateOffer, offer.ID, commentEventData{
			CommentID: comment.ID,
			OfferID:   offer.ID,
			AuthorID:  session.UserID,
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("Comment added", "offer_id", offer.ID, "comment_id", comment.ID, "author_id", session.UserID)

	var recipients []string
	switch session.CompanyID {
	case ann.CompanyID:
		recipients = []string{offer.LogisticsCompanyID}
	case offer.LogisticsCompanyID:
		recipients = []string{ann.CompanyID}
	default:
		recipients = []string{ann.CompanyID, offer.LogisticsCompanyID}
	}
	body := Preview(content)
	for _, companyID := range recipients {
		notifyCompany(ctx, s.store, s.notifier, s.logger, companyID, session.UserID,
			models.NotificationNewComment, "New comment on offer", body, offer.ID)
	}

	return comment, nil
}

// ListComments returns the thread oldest first
func (s *OfferService) ListComments(ctx context.Context, session *models.Session, offerID string) ([]*models.OfferComment, error) {
	if _, _, err := s.access(ctx, session, offerID); err != nil {
		return nil, err
	}
	list, err := s.store.Queries().ListComments(ctx, offerID)
	if err != nil {
		return nil, storeError(s.logger, err, "comment")
	}
	return list, nil
}

// Document assembles an offer for export
func (s *OfferService) Document(ctx context.Context, session *models.Session, offerID string) (*OfferDocument, error) {
	offer, ann, err := s.access(ctx, session, offerID)
	if err != nil {
		return nil, err
	}

	q := s.store.Queries()
	supplier, err := q.GetCompany(ctx, ann.CompanyID)
	if err != nil {
		return nil, storeError(s.logger, err, "company")
	}
	carrier, err := q.GetCompany(ctx, offer.LogisticsCompanyID)
	if err != nil {
		return nil, storeError(s.logger, err, "company")
	}
	comments, err := q.ListComments(ctx, offer.ID)
	if err != nil {
		return nil, storeError(s.logger, err, "comment")
	}

	return &OfferDocument{
		Offer:        offer,
		Announcement: ann,
		Supplier:     supplier,
		Carrier:      carrier,
		Comments:     comments,
		GeneratedAt:  s.now(),
	}, nil
}

// Preview shortens text to at most 80 characters, ending in "..." when cut
func Preview(text string) string {
	if utf8.RuneCountInString(text) <= previewLength {
		return text
	}
	runes := []rune(text)
	return string(runes[:previewLength-3]) + "..."
}
