package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/classsphere/backend/core/notification"
)

type dbNotification struct {
	ID        int       `db:"id"`
	UserID    string    `db:"user_id"`
	Message   string    `db:"message"`
	Type      string    `db:"type"`
	IsRead    bool      `db:"is_read"`
	CreatedAt time.Time `db:"created_at"`
}

func (r dbNotification) toCore() notification.Notification {
	return notification.Notification{
		ID:        r.ID,
		UserID:    r.UserID,
		Message:   r.Message,
		Type:      r.Type,
		IsRead:    r.IsRead,
		CreatedAt: r.CreatedAt,
	}
}

type notificationRepository struct {
	db *sqlx.DB
}

var _ notification.Repository = (*notificationRepository)(nil) // interface compliance check

func NewNotificationRepository(db *sqlx.DB) *notificationRepository {
	return &notificationRepository{db: db}
}

func (repo notificationRepository) CreateNotification(ctx context.Context, n notification.Notification) (notification.Notification, error) {
	err := repo.db.QueryRowContext(ctx,
		`INSERT INTO notification (user_id, message, type, is_read, created_at)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		n.UserID, n.Message, n.Type, n.IsRead, n.CreatedAt.UTC(),
	).Scan(&n.ID)
	if err != nil {
		return notification.Notification{}, errors.Wrap(err, "inserting notification")
	}
	return n, nil
}

func (repo notificationRepository) QueryUserNotifications(ctx context.Context, userID string) ([]notification.Notification, error) {
	var rows []dbNotification
	err := repo.db.SelectContext(ctx, &rows,
		`SELECT * FROM notification WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, errors.Wrap(err, "querying notifications")
	}
	ns := make([]notification.Notification, 0, len(rows))
	for _, r := range rows {
		ns = append(ns, r.toCore())
	}
	return ns, nil
}

func (repo notificationRepository) GetNotification(ctx context.Context, id int, userID string) (notification.Notification, error) {
	var row dbNotification
	err := repo.db.GetContext(ctx, &row,
		`SELECT * FROM notification WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		if err == sql.ErrNoRows {
			return notification.Notification{}, notification.ErrNotFound
		}
		return notification.Notification{}, errors.Wrap(err, "getting notification")
	}
	return row.toCore(), nil
}

func (repo notificationRepository) UpdateNotification(ctx context.Context, n notification.Notification) (notification.Notification, error) {
	res, err := repo.db.ExecContext(ctx,
		`UPDATE notification SET is_read = $1 WHERE id = $2 AND user_id = $3`,
		n.IsRead, n.ID, n.UserID)
	if err != nil {
		return notification.Notification{}, errors.Wrap(err, "updating notification")
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return notification.Notification{}, notification.ErrNotFound
	}
	return n, nil
}

func (repo notificationRepository) MarkAllRead(ctx context.Context, userID string) error {
	_, err := repo.db.ExecContext(ctx,
		`UPDATE notification SET is_read = TRUE WHERE user_id = $1`, userID)
	return errors.Wrap(err, "marking notifications read")
}

func (repo notificationRepository) DeleteUserNotifications(ctx context.Context, userID string) error {
	_, err := repo.db.ExecContext(ctx, `DELETE FROM notification WHERE user_id = $1`, userID)
	return errors.Wrap(err, "deleting notifications")
}
