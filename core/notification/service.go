package notification

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/classsphere/backend/core"
	"github.com/classsphere/backend/core/realtime"
)

var (
	ErrNotFound = errors.New("notification not found")

	// NowFunc is mockable in tests.
	NowFunc = time.Now
)

type (
	Repository interface {
		CreateNotification(ctx context.Context, n Notification) (Notification, error)
		// QueryUserNotifications returns the user's notifications, newest first.
		QueryUserNotifications(ctx context.Context, userID string) ([]Notification, error)
		GetNotification(ctx context.Context, id int, userID string) (Notification, error)
		UpdateNotification(ctx context.Context, n Notification) (Notification, error)
		MarkAllRead(ctx context.Context, userID string) error
		DeleteUserNotifications(ctx context.Context, userID string) error
	}

	Service struct {
		repo    Repository
		emitter realtime.Emitter
	}
)

func NewService(repo Repository, emitter realtime.Emitter) *Service {
	return &Service{repo: repo, emitter: emitter}
}

// Notify persists a notification for the user and hands it off for live
// delivery to every device on the user's personal stream. Persistence comes
// first; a missed live delivery stays visible on the next poll.
func (svc *Service) Notify(ctx context.Context, userID, message, typ string) (Notification, error) {
	if typ == "" {
		typ = TypeInfo
	}
	n := Notification{
		UserID:    userID,
		Message:   message,
		Type:      typ,
		CreatedAt: NowFunc().UTC(),
	}
	n, err := svc.repo.CreateNotification(ctx, n)
	if err != nil {
		return Notification{}, errors.Wrap(err, "creating notification")
	}
	n.TimeAgo = core.TimeSince(n.CreatedAt, NowFunc().UTC())

	svc.emitter.Emit(realtime.NewNotificationEvent(userID, realtime.NotificationPayload{
		ID:      n.ID,
		Message: n.Message,
		Type:    n.Type,
		TimeAgo: n.TimeAgo,
		IsRead:  n.IsRead,
	}))
	return n, nil
}

func (svc *Service) Query(ctx context.Context, userID string) ([]Notification, error) {
	ns, err := svc.repo.QueryUserNotifications(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := NowFunc().UTC()
	for i := range ns {
		ns[i].TimeAgo = core.TimeSince(ns[i].CreatedAt, now)
	}
	return ns, nil
}

func (svc *Service) MarkRead(ctx context.Context, id int, userID string) (Notification, error) {
	n, err := svc.repo.GetNotification(ctx, id, userID)
	if err != nil {
		return Notification{}, err
	}
	n.IsRead = true
	n, err = svc.repo.UpdateNotification(ctx, n)
	if err != nil {
		return Notification{}, errors.Wrap(err, "updating notification")
	}
	n.TimeAgo = core.TimeSince(n.CreatedAt, NowFunc().UTC())
	return n, nil
}

func (svc *Service) MarkAllRead(ctx context.Context, userID string) error {
	return svc.repo.MarkAllRead(ctx, userID)
}

func (svc *Service) Clear(ctx context.Context, userID string) error {
	return svc.repo.DeleteUserNotifications(ctx, userID)
}
