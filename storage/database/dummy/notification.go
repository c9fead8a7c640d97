package dummydb

import (
	"context"
	"sort"

	"github.com/classsphere/backend/core/notification"
)

type notificationRepository struct {
	db *notificationTable
}

var _ notification.Repository = (*notificationRepository)(nil)

func NewNotificationRepository(db *DB) *notificationRepository {
	return &notificationRepository{db: db.notif}
}

func (repo *notificationRepository) CreateNotification(_ context.Context, n notification.Notification) (notification.Notification, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	repo.db.idCount++
	n.ID = repo.db.idCount
	repo.db.table[n.ID] = &n
	return n, nil
}

func (repo *notificationRepository) QueryUserNotifications(_ context.Context, userID string) ([]notification.Notification, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	notifs := make([]notification.Notification, 0)
	for _, n := range repo.db.table {
		if n.UserID == userID {
			notifs = append(notifs, *n)
		}
	}
	sort.Slice(notifs, func(i, j int) bool { return notifs[i].ID > notifs[j].ID })
	return notifs, nil
}

func (repo *notificationRepository) GetNotification(_ context.Context, id int, userID string) (notification.Notification, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if n, ok := repo.db.table[id]; ok && n.UserID == userID {
		return *n, nil
	}
	return notification.Notification{}, notification.ErrNotFound
}

func (repo *notificationRepository) UpdateNotification(_ context.Context, n notification.Notification) (notification.Notification, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	orig, ok := repo.db.table[n.ID]
	if !ok || orig.UserID != n.UserID {
		return notification.Notification{}, notification.ErrNotFound
	}
	orig.IsRead = n.IsRead
	return *orig, nil
}

func (repo *notificationRepository) MarkAllRead(_ context.Context, userID string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, n := range repo.db.table {
		if n.UserID == userID {
			n.IsRead = true
		}
	}
	return nil
}

func (repo *notificationRepository) DeleteUserNotifications(_ context.Context, userID string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	for id, n := range repo.db.table {
		if n.UserID == userID {
			delete(repo.db.table, id)
		}
	}
	return nil
}
