package notification

import "time"

// Notification types.
const (
	TypeInfo    = "INFO"
	TypeWarning = "WARNING"
	TypeError   = "ERROR"
	TypeSuccess = "SUCCESS"
)

type Notification struct {
	ID        int       `json:"id"`
	UserID    string    `json:"-"`
	Message   string    `json:"message"`
	Type      string    `json:"type"`
	IsRead    bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"` // UTC

	// TimeAgo is rendered at serialization time, not stored.
	TimeAgo string `json:"time_ago"`
}
