package repository

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/vaidashi/freight-exchange/internal/models"
)

const notificationColumns = `id, user_id, type, title, body, related_id, is_read, created_at`

// CreateNotifications inserts a batch of notifications
func (r *Repository) CreateNotifications(ctx context.Context, notifications []*models.Notification) error {
	if len(notifications) == 0 {
		return nil
	}

	query := `
		INSERT INTO notifications (` + notificationColumns + `)
		VALUES (:id, :user_id, :type, :title, :body, :related_id, :is_read, :created_at)
	`

	for _, n := range notifications {
		if _, err := sqlx.NamedExecContext(ctx, r.db, query, n); err != nil {
			return r.wrap(err, "Failed to create notification", "userID", n.UserID)
		}
	}

	return nil
}

// ListNotifications returns a user's inbox newest first
func (r *Repository) ListNotifications(ctx context.Context, userID string, unreadOnly bool, limit, offset int) ([]*models.Notification, error) {
	var w where
	w.add("user_id = $%d", userID)
	if unreadOnly {
		w.add("is_read = $%d", false)
	}

	query, args := paginate(
		`SELECT `+notificationColumns+` FROM notifications`+w.String()+` ORDER BY created_at DESC`,
		w.args, limit, offset,
	)

	notifications := []*models.Notification{}
	if err := sqlx.SelectContext(ctx, r.db, &notifications, query, args...); err != nil {
		return nil, r.wrap(err, "Failed to list notifications", "userID", userID)
	}

	return notifications, nil
}

func (r *Repository) CountUnreadNotifications(ctx context.Context, userID string) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND is_read = FALSE`
	if err := sqlx.GetContext(ctx, r.db, &count, query, userID); err != nil {
		return 0, r.wrap(err, "Failed to count unread notifications", "userID", userID)
	}

	return count, nil
}

// MarkNotificationRead marks one of the user's notifications read. Another
// user's notification reads as ErrNotFound.
func (r *Repository) MarkNotificationRead(ctx context.Context, userID, id string) error {
	return r.execOne(ctx, "Failed to mark notification read",
		`UPDATE notifications SET is_read = TRUE WHERE id = $1 AND user_id = $2`,
		id, userID)
}

// MarkAllNotificationsRead returns how many notifications changed
func (r *Repository) MarkAllNotificationsRead(ctx context.Context, userID string) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE notifications SET is_read = TRUE WHERE user_id = $1 AND is_read = FALSE`, userID)
	if err != nil {
		return 0, r.wrap(err, "Failed to mark notifications read", "userID", userID)
	}

	return result.RowsAffected()
}
