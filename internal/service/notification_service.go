package service

import (
	"context"

	"github.com/vaidashi/freight-exchange/internal/models"
	"github.com/vaidashi/freight-exchange/internal/repository"
	apperrors "github.com/vaidashi/freight-exchange/pkg/errors"
	"github.com/vaidashi/freight-exchange/pkg/logger"
)

// Notifier delivers in-app notifications. Delivery is best effort: callers
// log failures and never roll back the change that triggered them.
type Notifier interface {
	Notify(ctx context.Context, userIDs []string, typ models.NotificationType, title, body, relatedID string) error
}

const defaultNotificationPage = 50

// NotificationService stores notifications in the user's inbox
type NotificationService struct {
	store  repository.Store
	logger logger.Logger
}

func NewNotificationService(store repository.Store, logger logger.Logger) *NotificationService {
	return &NotificationService{
		store:  store,
		logger: logger,
	}
}

// Notify writes one notification per user
func (s *NotificationService) Notify(ctx context.Context, userIDs []string, typ models.NotificationType, title, body, relatedID string) error {
	if len(userIDs) == 0 {
		return nil
	}

	notifications := make([]*models.Notification, 0, len(userIDs))
	for _, id := range userIDs {
		notifications = append(notifications, models.NewNotification(id, typ, title, body, relatedID))
	}

	if err := s.store.Queries().CreateNotifications(ctx, notifications); err != nil {
		return storeError(s.logger, err, "notification")
	}

	s.logger.Debug("Notifications created", "type", typ, "recipients", len(userIDs), "related_id", relatedID)
	return nil
}

func (s *NotificationService) List(ctx context.Context, session *models.Session, unreadOnly bool, limit, offset int) ([]*models.Notification, error) {
	if limit <= 0 {
		limit = defaultNotificationPage
	}
	list, err := s.store.Queries().ListNotifications(ctx, session.UserID, unreadOnly, limit, offset)
	if err != nil {
		return nil, storeError(s.logger, err, "notification")
	}
	return list, nil
}

func (s *NotificationService) UnreadCount(ctx context.Context, session *models.Session) (int, error) {
	n, err := s.store.Queries().CountUnreadNotifications(ctx, session.UserID)
	if err != nil {
		return 0, storeError(s.logger, err, "notification")
	}
	return n, nil
}

// MarkRead marks one of the caller's notifications as read. Another user's
// notification is reported as not found.
func (s *NotificationService) MarkRead(ctx context.Context, session *models.Session, id string) error {
	if id == "" {
		return apperrors.NewInvalidInputError("notification id is required")
	}
	if err := s.store.Queries().MarkNotificationRead(ctx, session.UserID, id); err != nil {
		return storeError(s.logger, err, "notification")
	}
	return nil
}

func (s *NotificationService) MarkAllRead(ctx context.Context, session *models.Session) (int64, error) {
	n, err := s.store.Queries().MarkAllNotificationsRead(ctx, session.UserID)
	if err != nil {
		return 0, storeError(s.logger, err, "notification")
	}
	return n, nil
}

// companyRecipients lists the active users of a company, leaving out exclude
func companyRecipients(ctx context.Context, q repository.Queries, companyID, exclude string) ([]string, error) {
	users, err := q.ListUsersByCompany(ctx, companyID)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(users))
	for _, u := range users {
		if !u.IsActive || u.ID == exclude {
			continue
		}
		ids = append(ids, u.ID)
	}
	return ids, nil
}

// notifyCompany resolves recipients and notifies them, logging instead of
// returning failures
func notifyCompany(ctx context.Context, store repository.Store, notifier Notifier, log logger.Logger, companyID, exclude string, typ models.NotificationType, title, body, relatedID string) {
	ids, err := companyRecipients(ctx, store.Queries(), companyID, exclude)
	if err != nil {
		log.Warn("Failed to resolve notification recipients", "company_id", companyID, "type", typ, "error", err)
		return
	}
	if err := notifier.Notify(ctx, ids, typ, title, body, relatedID); err != nil {
		log.Warn("Failed to send notifications", "company_id", companyID, "type", typ, "error", err)
	}
}
