package realtime

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"
)

func TestEvent_Envelope(t *testing.T) {
	sentAt := time.Date(2021, 3, 14, 15, 9, 26, 0, time.UTC)

	tests := []struct {
		name    string
		evt     Event
		want    string
		wantErr error
	}{
		{
			name: "chat message",
			evt: NewChatEvent("7", ChatPayload{
				MessageID: "m1",
				Sender:    "alice",
				Text:      null.StringFrom("hey"),
				SentAt:    sentAt,
			}),
			want: `{"id":"m1","sender":"alice","text":"hey","media_url":null,"media_type":null,"timestamp":"2021-03-14T15:09:26Z"}`,
		},
		{
			name: "chat message with media",
			evt: NewChatEvent("7", ChatPayload{
				MessageID: "m2",
				Sender:    "bob",
				MediaURL:  null.StringFrom("https://cdn.test/pic.png"),
				MediaType: null.StringFrom("image"),
				SentAt:    sentAt,
			}),
			want: `{"id":"m2","sender":"bob","text":null,"media_url":"https://cdn.test/pic.png","media_type":"image","timestamp":"2021-03-14T15:09:26Z"}`,
		},
		{
			name: "notification",
			evt: NewNotificationEvent("42", NotificationPayload{
				ID:      3,
				Message: "Bob joined your classroom Math",
				Type:    "success",
				TimeAgo: "0 minutes",
			}),
			want: `{"id":3,"message":"Bob joined your classroom Math","notification_type":"success","time_ago":"0 minutes","is_read":false}`,
		},
		{
			name:    "missing group",
			evt:     Event{Kind: KindChatMessage, Chat: &ChatPayload{}},
			wantErr: ErrMalformedEvent,
		},
		{
			name:    "chat kind without payload",
			evt:     Event{Kind: KindChatMessage, Group: "chat:7"},
			wantErr: ErrMalformedEvent,
		},
		{
			name:    "notification kind without payload",
			evt:     Event{Kind: KindNotification, Group: "user:42"},
			wantErr: ErrMalformedEvent,
		},
		{
			name:    "unknown kind",
			evt:     Event{Kind: "poke", Group: "user:42"},
			wantErr: ErrMalformedEvent,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := tt.evt.Envelope()
			if tt.wantErr != nil {
				if errors.Cause(err) != tt.wantErr {
					t.Errorf("Envelope() error = %v, wantErr %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Envelope() error = %v", err)
			}
			if string(frame) != tt.want {
				t.Errorf("Envelope() = %s, want %s", frame, tt.want)
			}
		})
	}
}

func TestGroupKeys(t *testing.T) {
	if g := ChatGroup("7"); g != "chat:7" {
		t.Errorf("ChatGroup() = %s", g)
	}
	if g := UserGroup("42"); g != "user:42" {
		t.Errorf("UserGroup() = %s", g)
	}
}
