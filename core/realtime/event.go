package realtime

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"
)

// Kind discriminates the wire shape of an Event.
type Kind string

const (
	KindChatMessage  Kind = "chat-message"
	KindNotification Kind = "notification"
)

// ErrMalformedEvent marks an event that cannot be rendered to a wire frame.
// It indicates a programming error on the producing side, never user input.
var ErrMalformedEvent = errors.New("malformed event")

// ChatGroup returns the broadcast group key for a chat conversation.
func ChatGroup(chatID string) string { return "chat:" + chatID }

// UserGroup returns the broadcast group key for a user's personal
// notification stream. All of the user's devices join it.
func UserGroup(userID string) string { return "user:" + userID }

type (
	// Event is an immutable unit of delivery addressed to a group.
	// Exactly one of Chat/Notification is set, matching Kind.
	Event struct {
		Kind         Kind
		Group        string
		Chat         *ChatPayload
		Notification *NotificationPayload
	}

	ChatPayload struct {
		MessageID string // persisted record id, used for client-side de-duplication
		Sender    string // sender display name
		Text      null.String
		MediaURL  null.String
		MediaType null.String
		SentAt    time.Time
	}

	NotificationPayload struct {
		ID      int
		Message string
		Type    string
		TimeAgo string
		IsRead  bool
	}
)

func NewChatEvent(chatID string, p ChatPayload) Event {
	return Event{Kind: KindChatMessage, Group: ChatGroup(chatID), Chat: &p}
}

func NewNotificationEvent(userID string, p NotificationPayload) Event {
	return Event{Kind: KindNotification, Group: UserGroup(userID), Notification: &p}
}

type (
	// ChatEnvelope is the outbound frame for chat-message events.
	ChatEnvelope struct {
		ID        string      `json:"id"`
		Sender    string      `json:"sender"`
		Text      null.String `json:"text"`
		MediaURL  null.String `json:"media_url"`
		MediaType null.String `json:"media_type"`
		Timestamp string      `json:"timestamp"`
	}

	// NotificationEnvelope is the outbound frame for notification events.
	NotificationEnvelope struct {
		ID               int    `json:"id"`
		Message          string `json:"message"`
		NotificationType string `json:"notification_type"`
		TimeAgo          string `json:"time_ago"`
		IsRead           bool   `json:"is_read"`
	}
)

// Envelope renders the event's wire frame.
func (evt Event) Envelope() ([]byte, error) {
	if evt.Group == "" {
		return nil, errors.Wrap(ErrMalformedEvent, "missing target group")
	}
	switch evt.Kind {
	case KindChatMessage:
		if evt.Chat == nil {
			return nil, errors.Wrap(ErrMalformedEvent, "missing chat payload")
		}
		return json.Marshal(ChatEnvelope{
			ID:        evt.Chat.MessageID,
			Sender:    evt.Chat.Sender,
			Text:      evt.Chat.Text,
			MediaURL:  evt.Chat.MediaURL,
			MediaType: evt.Chat.MediaType,
			Timestamp: evt.Chat.SentAt.UTC().Format(time.RFC3339),
		})
	case KindNotification:
		if evt.Notification == nil {
			return nil, errors.Wrap(ErrMalformedEvent, "missing notification payload")
		}
		return json.Marshal(NotificationEnvelope{
			ID:               evt.Notification.ID,
			Message:          evt.Notification.Message,
			NotificationType: evt.Notification.Type,
			TimeAgo:          evt.Notification.TimeAgo,
			IsRead:           evt.Notification.IsRead,
		})
	}
	return nil, errors.Wrapf(ErrMalformedEvent, "unknown kind %q", evt.Kind)
}
