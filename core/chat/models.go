package chat

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/classsphere/backend/core"
)

// Chat is a 1:1 conversation between two users.
type Chat struct {
	ID             string    `json:"id"`
	ParticipantIDs []string  `json:"participant_ids"`
	CreatedAt      time.Time `json:"created_at"` // UTC
}

// OtherParticipant returns the participant that is not currentUserID.
func (c Chat) OtherParticipant(currentUserID string) (string, bool) {
	for _, id := range c.ParticipantIDs {
		if id != currentUserID {
			return id, true
		}
	}
	return "", false
}

// HasParticipant reports whether userID takes part in the conversation.
func (c Chat) HasParticipant(userID string) bool {
	for _, id := range c.ParticipantIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// Message is one persisted chat message. Text and media are both optional,
// but never both absent.
type Message struct {
	ID         string      `json:"id"`
	ChatID     string      `json:"chat_id"`
	SenderID   string      `json:"-"`
	SenderName string      `json:"sender"`
	Text       null.String `json:"text"`
	MediaURL   null.String `json:"media_url"`
	MediaType  null.String `json:"media_type"`
	IsRead     bool        `json:"is_read"`
	SentAt     time.Time   `json:"timestamp"` // UTC
}

// NewMessage is an inbound message body, from HTTP or a live connection.
type NewMessage struct {
	ChatID    string      `json:"chat_id" validate:"required"`
	Text      null.String `json:"message"`
	MediaURL  null.String `json:"media_url"`
	MediaType null.String `json:"media_type"`
}

// ErrEmptyMessage: a message must carry at least a text body or a media reference.
func (nm *NewMessage) Validate(validate *validator.Validate) error {
	if err := validate.Struct(nm); err != nil {
		return err
	}
	if !nm.HasContent() {
		return core.NewValidationError(ErrEmptyMessage)
	}
	return nil
}

func (nm NewMessage) HasContent() bool {
	return nm.Text.String != "" || nm.MediaURL.String != ""
}

// ChatInfo is the listing shape for the recent-chats endpoint.
type ChatInfo struct {
	ID          string       `json:"id"`
	OtherUser   *Participant `json:"other_user"`
	LastMessage *Message     `json:"last_message"`
}

type Participant struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}
