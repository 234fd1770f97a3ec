package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/vaidashi/freight-exchange/internal/models"
	"github.com/vaidashi/freight-exchange/internal/repository"
)

type queries struct {
	store *Store
	tx    *state
}

var _ repository.Queries = (*queries)(nil)

func (q *queries) do(ctx context.Context, fn func(st *state) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if q.tx != nil {
		return fn(q.tx)
	}
	return q.store.locked(fn)
}

func duplicate(what string) error {
	return fmt.Errorf("%w: %s", repository.ErrDuplicate, what)
}

// page applies limit/offset to n rows and returns the [lo, hi) window
func page(n, limit, offset int) (int, int) {
	if offset > n {
		offset = n
	}
	if offset < 0 {
		offset = 0
	}
	hi := n
	if limit > 0 && offset+limit < n {
		hi = offset + limit
	}
	return offset, hi
}

func since(t time.Time, from *time.Time) bool {
	return from == nil || !t.Before(*from)
}

// Companies

func (q *queries) CreateCompany(ctx context.Context, company *models.Company) error {
	return q.do(ctx, func(st *state) error {
		if _, ok := st.companies[company.ID]; ok {
			return duplicate("companies_pkey")
		}
		st.companies[company.ID] = *company
		st.companyOrder = append(st.companyOrder, company.ID)
		return nil
	})
}

func (q *queries) GetCompany(ctx context.Context, id string) (*models.Company, error) {
	var out *models.Company
	err := q.do(ctx, func(st *state) error {
		c, ok := st.companies[id]
		if !ok {
			return repository.ErrNotFound
		}
		out = &c
		return nil
	})
	return out, err
}

func (q *queries) ListCompanies(ctx context.Context, filter repository.CompanyFilter) ([]*models.Company, error) {
	out := []*models.Company{}
	err := q.do(ctx, func(st *state) error {
		for i := len(st.companyOrder) - 1; i >= 0; i-- {
			c := st.companies[st.companyOrder[i]]
			if filter.Type != "" && c.Type != filter.Type {
				continue
			}
			if filter.Verified != nil && c.IsVerified != *filter.Verified {
				continue
			}
			out = append(out, &c)
		}
		return nil
	})
	lo, hi := page(len(out), filter.Limit, filter.Offset)
	return out[lo:hi], err
}

func (q *queries) UpdateCompanyFlags(ctx context.Context, id string, verified, active bool) error {
	return q.do(ctx, func(st *state) error {
		c, ok := st.companies[id]
		if !ok {
			return repository.ErrNotFound
		}
		c.IsVerified, c.IsActive = verified, active
		st.companies[id] = c
		return nil
	})
}

// Users

func (q *queries) CreateUser(ctx context.Context, user *models.User) error {
	return q.do(ctx, func(st *state) error {
		email := models.NormalizeEmail(user.Email)
		for _, u := range st.users {
			if models.NormalizeEmail(u.Email) == email {
				return duplicate("idx_users_email")
			}
		}
		st.users[user.ID] = *user
		st.userOrder = append(st.userOrder, user.ID)
		return nil
	})
}

func (q *queries) GetUser(ctx context.Context, id string) (*models.User, error) {
	var out *models.User
	err := q.do(ctx, func(st *state) error {
		u, ok := st.users[id]
		if !ok {
			return repository.ErrNotFound
		}
		out = &u
		return nil
	})
	return out, err
}

func (q *queries) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var out *models.User
	email = models.NormalizeEmail(email)
	err := q.do(ctx, func(st *state) error {
		for _, u := range st.users {
			if models.NormalizeEmail(u.Email) == email {
				u := u
				out = &u
				return nil
			}
		}
		return repository.ErrNotFound
	})
	return out, err
}

func (q *queries) ListUsersByCompany(ctx context.Context, companyID string) ([]*models.User, error) {
	out := []*models.User{}
	err := q.do(ctx, func(st *state) error {
		for _, id := range st.userOrder {
			if u := st.users[id]; u.CompanyID == companyID {
				out = append(out, &u)
			}
		}
		return nil
	})
	return out, err
}

func (q *queries) CountUsers(ctx context.Context) (int, error) {
	var n int
	err := q.do(ctx, func(st *state) error {
		n = len(st.users)
		return nil
	})
	return n, err
}

// Announcements

func (q *queries) CreateAnnouncement(ctx context.Context, a *models.Announcement) error {
	return q.do(ctx, func(st *state) error {
		if _, ok := st.announcements[a.ID]; ok {
			return duplicate("announcements_pkey")
		}
		st.announcements[a.ID] = *a
		st.annOrder = append(st.annOrder, a.ID)
		return nil
	})
}

func (q *queries) GetAnnouncement(ctx context.Context, id string) (*models.Announcement, error) {
	var out *models.Announcement
	err := q.do(ctx, func(st *state) error {
		a, ok := st.announcements[id]
		if !ok {
			return repository.ErrNotFound
		}
		out = &a
		return nil
	})
	return out, err
}

// GetAnnouncementForUpdate needs no row lock: transactions already hold the store mutex
func (q *queries) GetAnnouncementForUpdate(ctx context.Context, id string) (*models.Announcement, error) {
	return q.GetAnnouncement(ctx, id)
}

func (q *queries) ListAnnouncements(ctx context.Context, filter repository.AnnouncementFilter) ([]*models.Announcement, error) {
	out := []*models.Announcement{}
	err := q.do(ctx, func(st *state) error {
		for i := len(st.annOrder) - 1; i >= 0; i-- {
			a := st.announcements[st.annOrder[i]]
			if filter.CompanyID != "" && a.CompanyID != filter.CompanyID {
				continue
			}
			if filter.CreatedByID != "" && a.CreatedByID != filter.CreatedByID {
				continue
			}
			if filter.Status != "" && a.Status != filter.Status {
				continue
			}
			if !since(a.CreatedAt, filter.Since) {
				continue
			}
			out = append(out, &a)
		}
		return nil
	})
	lo, hi := page(len(out), filter.Limit, filter.Offset)
	return out[lo:hi], err
}

func (q *queries) UpdateAnnouncementStatus(ctx context.Context, id string, status models.AnnouncementStatus) error {
	return q.do(ctx, func(st *state) error {
		a, ok := st.announcements[id]
		if !ok {
			return repository.ErrNotFound
		}
		a.Status = status
		a.UpdatedAt = models.GetCurrentTime()
		st.announcements[id] = a
		return nil
	})
}

// Offers

func (q *queries) CreateOffer(ctx context.Context, offer *models.Offer) error {
	return q.do(ctx, func(st *state) error {
		if _, ok := st.offers[offer.ID]; ok {
			return duplicate("offers_pkey")
		}
		for _, o := range st.offers {
			if o.AnnouncementID == offer.AnnouncementID && o.LogisticsCompanyID == offer.LogisticsCompanyID {
				return duplicate("idx_offers_announcement_company")
			}
		}
		row := *offer
		row.Items = nil
		st.offers[offer.ID] = row
		st.offerOrder = append(st.offerOrder, offer.ID)
		st.items[offer.ID] = append([]models.OfferItem(nil), offer.Items...)
		return nil
	})
}

func (st *state) offerWithItems(o models.Offer) *models.Offer {
	o.Items = append([]models.OfferItem{}, st.items[o.ID]...)
	sort.SliceStable(o.Items, func(i, j int) bool { return o.Items[i].Price.LessThan(o.Items[j].Price) })
	return &o
}

func (q *queries) GetOffer(ctx context.Context, id string) (*models.Offer, error) {
	var out *models.Offer
	err := q.do(ctx, func(st *state) error {
		o, ok := st.offers[id]
		if !ok {
			return repository.ErrNotFound
		}
		out = st.offerWithItems(o)
		return nil
	})
	return out, err
}

func (q *queries) GetOfferForUpdate(ctx context.Context, id string) (*models.Offer, error) {
	return q.GetOffer(ctx, id)
}

func (q *queries) FindOffer(ctx context.Context, announcementID, logisticsCompanyID string) (*models.Offer, error) {
	var out *models.Offer
	err := q.do(ctx, func(st *state) error {
		for _, o := range st.offers {
			if o.AnnouncementID == announcementID && o.LogisticsCompanyID == logisticsCompanyID {
				out = st.offerWithItems(o)
				return nil
			}
		}
		return repository.ErrNotFound
	})
	return out, err
}

func (q *queries) ListOffers(ctx context.Context, filter repository.OfferFilter) ([]*models.Offer, error) {
	out := []*models.Offer{}
	err := q.do(ctx, func(st *state) error {
		for i := len(st.offerOrder) - 1; i >= 0; i-- {
			o := st.offers[st.offerOrder[i]]
			if filter.AnnouncementID != "" && o.AnnouncementID != filter.AnnouncementID {
				continue
			}
			if filter.LogisticsCompanyID != "" && o.LogisticsCompanyID != filter.LogisticsCompanyID {
				continue
			}
			if filter.SupplierCompanyID != "" && st.announcements[o.AnnouncementID].CompanyID != filter.SupplierCompanyID {
				continue
			}
			if filter.SubmittedByID != "" && o.SubmittedByID != filter.SubmittedByID {
				continue
			}
			if filter.Status != "" && o.Status != filter.Status {
				continue
			}
			if !since(o.CreatedAt, filter.Since) {
				continue
			}
			out = append(out, &o)
		}
		return nil
	})
	lo, hi := page(len(out), filter.Limit, filter.Offset)
	return out[lo:hi], err
}

func (q *queries) ListOfferItems(ctx context.Context, offerIDs []string) ([]models.OfferItem, error) {
	out := []models.OfferItem{}
	err := q.do(ctx, func(st *state) error {
		for _, id := range offerIDs {
			if o, ok := st.offers[id]; ok {
				out = append(out, st.offerWithItems(o).Items...)
			}
		}
		return nil
	})
	return out, err
}

func (q *queries) UpdateOfferNotes(ctx context.Context, id string, notes *string) error {
	return q.do(ctx, func(st *state) error {
		o, ok := st.offers[id]
		if !ok {
			return repository.ErrNotFound
		}
		o.Notes = notes
		o.UpdatedAt = models.GetCurrentTime()
		st.offers[id] = o
		return nil
	})
}

func (q *queries) ReplaceOfferItems(ctx context.Context, offerID string, items []models.OfferItem) error {
	return q.do(ctx, func(st *state) error {
		if _, ok := st.offers[offerID]; !ok {
			return repository.ErrNotFound
		}
		st.items[offerID] = append([]models.OfferItem(nil), items...)
		return nil
	})
}

func (q *queries) UpdateOfferStatus(ctx context.Context, id string, status models.OfferStatus) error {
	return q.do(ctx, func(st *state) error {
		o, ok := st.offers[id]
		if !ok {
			return repository.ErrNotFound
		}
		o.Status = status
		o.UpdatedAt = models.GetCurrentTime()
		st.offers[id] = o
		return nil
	})
}

func (q *queries) RejectPendingOffers(ctx context.Context, announcementID, exceptOfferID string) ([]string, error) {
	ids := []string{}
	err := q.do(ctx, func(st *state) error {
		now := models.GetCurrentTime()
		for _, id := range st.offerOrder {
			o := st.offers[id]
			if o.AnnouncementID != announcementID || o.ID == exceptOfferID || o.Status != models.OfferStatusPending {
				continue
			}
			o.Status = models.OfferStatusRejected
			o.UpdatedAt = now
			st.offers[id] = o
			ids = append(ids, id)
		}
		return nil
	})
	return ids, err
}

func (q *queries) AppendOfferHistory(ctx context.Context, h *models.OfferHistory) error {
	return q.do(ctx, func(st *state) error {
		st.history = append(st.history, *h)
		return nil
	})
}

func (q *queries) ListOfferHistory(ctx context.Context, offerID string) ([]*models.OfferHistory, error) {
	out := []*models.OfferHistory{}
	err := q.do(ctx, func(st *state) error {
		for _, h := range st.history {
			if h.OfferID == offerID {
				h := h
				out = append(out, &h)
			}
		}
		return nil
	})
	return out, err
}

// Comments

func (q *queries) CreateComment(ctx context.Context, c *models.OfferComment) error {
	return q.do(ctx, func(st *state) error {
		if _, ok := st.offers[c.OfferID]; !ok {
			return repository.ErrNotFound
		}
		st.comments = append(st.comments, *c)
		return nil
	})
}

func (q *queries) ListComments(ctx context.Context, offerID string) ([]*models.OfferComment, error) {
	out := []*models.OfferComment{}
	err := q.do(ctx, func(st *state) error {
		for _, c := range st.comments {
			if c.OfferID == offerID {
				c := c
				out = append(out, &c)
			}
		}
		return nil
	})
	return out, err
}

// Shipments

func (q *queries) CreateShipment(ctx context.Context, s *models.Shipment) error {
	return q.do(ctx, func(st *state) error {
		for _, existing := range st.shipments {
			if existing.OfferID == s.OfferID {
				return duplicate("shipments_offer_id_key")
			}
		}
		row := *s
		row.Milestones = nil
		st.shipments[s.ID] = row
		st.shipmentOrder = append(st.shipmentOrder, s.ID)
		return nil
	})
}

func (q *queries) GetShipment(ctx context.Context, id string) (*models.Shipment, error) {
	var out *models.Shipment
	err := q.do(ctx, func(st *state) error {
		s, ok := st.shipments[id]
		if !ok {
			return repository.ErrNotFound
		}
		out = &s
		return nil
	})
	return out, err
}

func (q *queries) GetShipmentForUpdate(ctx context.Context, id string) (*models.Shipment, error) {
	return q.GetShipment(ctx, id)
}

func (q *queries) GetShipmentByOffer(ctx context.Context, offerID string) (*models.Shipment, error) {
	var out *models.Shipment
	err := q.do(ctx, func(st *state) error {
		for _, s := range st.shipments {
			if s.OfferID == offerID {
				s := s
				out = &s
				return nil
			}
		}
		return repository.ErrNotFound
	})
	return out, err
}

func (q *queries) ListShipments(ctx context.Context, filter repository.ShipmentFilter) ([]*models.Shipment, error) {
	out := []*models.Shipment{}
	err := q.do(ctx, func(st *state) error {
		for i := len(st.shipmentOrder) - 1; i >= 0; i-- {
			s := st.shipments[st.shipmentOrder[i]]
			if filter.LogisticsCompanyID != "" && s.LogisticsCompanyID != filter.LogisticsCompanyID {
				continue
			}
			if filter.SupplierCompanyID != "" && s.SupplierCompanyID != filter.SupplierCompanyID {
				continue
			}
			if filter.Status != "" && s.Status != filter.Status {
				continue
			}
			out = append(out, &s)
		}
		return nil
	})
	lo, hi := page(len(out), filter.Limit, filter.Offset)
	return out[lo:hi], err
}

func (q *queries) UpdateShipmentStatus(ctx context.Context, id string, status models.ShipmentStatus) error {
	return q.do(ctx, func(st *state) error {
		s, ok := st.shipments[id]
		if !ok {
			return repository.ErrNotFound
		}
		s.Status = status
		s.UpdatedAt = models.GetCurrentTime()
		st.shipments[id] = s
		return nil
	})
}

func (q *queries) AddMilestone(ctx context.Context, m *models.ShipmentMilestone) error {
	return q.do(ctx, func(st *state) error {
		if _, ok := st.shipments[m.ShipmentID]; !ok {
			return repository.ErrNotFound
		}
		st.milestones = append(st.milestones, *m)
		return nil
	})
}

func (q *queries) ListMilestones(ctx context.Context, shipmentID string) ([]*models.ShipmentMilestone, error) {
	out := []*models.ShipmentMilestone{}
	err := q.do(ctx, func(st *state) error {
		for _, m := range st.milestones {
			if m.ShipmentID == shipmentID {
				m := m
				out = append(out, &m)
			}
		}
		return nil
	})
	return out, err
}

// Notifications

func (q *queries) CreateNotifications(ctx context.Context, notifications []*models.Notification) error {
	return q.do(ctx, func(st *state) error {
		for _, n := range notifications {
			st.notifications = append(st.notifications, *n)
		}
		return nil
	})
}

func (q *queries) ListNotifications(ctx context.Context, userID string, unreadOnly bool, limit, offset int) ([]*models.Notification, error) {
	out := []*models.Notification{}
	err := q.do(ctx, func(st *state) error {
		for i := len(st.notifications) - 1; i >= 0; i-- {
			n := st.notifications[i]
			if n.UserID != userID || (unreadOnly && n.IsRead) {
				continue
			}
			out = append(out, &n)
		}
		return nil
	})
	lo, hi := page(len(out), limit, offset)
	return out[lo:hi], err
}

func (q *queries) CountUnreadNotifications(ctx context.Context, userID string) (int, error) {
	var count int
	err := q.do(ctx, func(st *state) error {
		for _, n := range st.notifications {
			if n.UserID == userID && !n.IsRead {
				count++
			}
		}
		return nil
	})
	return count, err
}

func (q *queries) MarkNotificationRead(ctx context.Context, userID, id string) error {
	return q.do(ctx, func(st *state) error {
		for i := range st.notifications {
			if st.notifications[i].ID == id && st.notifications[i].UserID == userID {
				st.notifications[i].IsRead = true
				return nil
			}
		}
		return repository.ErrNotFound
	})
}

func (q *queries) MarkAllNotificationsRead(ctx context.Context, userID string) (int64, error) {
	var changed int64
	err := q.do(ctx, func(st *state) error {
		for i := range st.notifications {
			if st.notifications[i].UserID == userID && !st.notifications[i].IsRead {
				st.notifications[i].IsRead = true
				changed++
			}
		}
		return nil
	})
	return changed, err
}

// Reviews

func (q *queries) CreateReview(ctx context.Context, r *models.Review) error {
	return q.do(ctx, func(st *state) error {
		for _, existing := range st.reviews {
			if existing.ShipmentID == r.ShipmentID {
				return duplicate("reviews_shipment_id_key")
			}
		}
		st.reviews = append(st.reviews, *r)
		return nil
	})
}

func (q *queries) ListReviews(ctx context.Context, filter repository.ReviewFilter) ([]*models.Review, error) {
	out := []*models.Review{}
	err := q.do(ctx, func(st *state) error {
		for i := len(st.reviews) - 1; i >= 0; i-- {
			r := st.reviews[i]
			if filter.LogisticsCompanyID != "" && r.LogisticsCompanyID != filter.LogisticsCompanyID {
				continue
			}
			if filter.SupplierCompanyID != "" && r.SupplierCompanyID != filter.SupplierCompanyID {
				continue
			}
			out = append(out, &r)
		}
		return nil
	})
	return out, err
}

// Outbox

func (q *queries) CreateOutboxMessage(ctx context.Context, message *models.OutboxMessage) error {
	return q.do(ctx, func(st *state) error {
		st.outboxSeq++
		message.ID = st.outboxSeq
		st.outbox = append(st.outbox, *message)
		return nil
	})
}
