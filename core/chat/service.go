package chat

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/classsphere/backend/core/realtime"
	"github.com/classsphere/backend/core/user"
)

var (
	ErrNotFound       = errors.New("chat not found")
	ErrNotParticipant = errors.New("not a participant of this chat")
	ErrEmptyMessage   = errors.New("message must contain text or media")
	ErrSelfChat       = errors.New("cannot chat with yourself")

	// NowFunc is mockable in tests.
	NowFunc = time.Now
)

type (
	Repository interface {
		CreateChat(ctx context.Context, participantIDs ...string) (Chat, error)
		GetChat(ctx context.Context, id string) (Chat, error)
		// GetChatByParticipants finds the 1:1 chat both users take part in.
		GetChatByParticipants(ctx context.Context, userID, otherID string) (Chat, error)
		QueryUserChats(ctx context.Context, userID string) ([]Chat, error)
		QueryMessages(ctx context.Context, chatID string) ([]Message, error)
		GetLastMessage(ctx context.Context, chatID string) (Message, error)
		CreateMessage(ctx context.Context, msg Message) (Message, error)
	}

	Service struct {
		repo    Repository
		usrSvc  *user.Service
		emitter realtime.Emitter
	}
)

func NewService(repo Repository, usrSvc *user.Service, emitter realtime.Emitter) *Service {
	return &Service{repo: repo, usrSvc: usrSvc, emitter: emitter}
}

// GetOrCreate returns the existing 1:1 chat between usr and otherID,
// creating it on first contact.
func (svc *Service) GetOrCreate(ctx context.Context, usr user.User, otherID string) (Chat, error) {
	if usr.ID == otherID {
		return Chat{}, ErrSelfChat
	}
	if _, err := svc.usrSvc.GetByID(ctx, otherID); err != nil {
		return Chat{}, err
	}

	cht, err := svc.repo.GetChatByParticipants(ctx, usr.ID, otherID)
	if err == nil {
		return cht, nil
	}
	if errors.Cause(err) != ErrNotFound {
		return Chat{}, errors.Wrap(err, "finding chat by participants")
	}
	return svc.repo.CreateChat(ctx, usr.ID, otherID)
}

// Get fetches a chat and verifies that usr takes part in it.
func (svc *Service) Get(ctx context.Context, id string, usr user.User) (Chat, error) {
	cht, err := svc.repo.GetChat(ctx, id)
	if err != nil {
		return Chat{}, err
	}
	if !cht.HasParticipant(usr.ID) {
		return Chat{}, ErrNotParticipant
	}
	return cht, nil
}

// VerifyMembership reports whether userID is a participant of the chat.
// An unknown chat is reported as an error, not as a non-member.
func (svc *Service) VerifyMembership(ctx context.Context, chatID, userID string) (bool, error) {
	cht, err := svc.repo.GetChat(ctx, chatID)
	if err != nil {
		return false, err
	}
	return cht.HasParticipant(userID), nil
}

// RecentChats lists usr's conversations with the other participant and the
// last message of each.
func (svc *Service) RecentChats(ctx context.Context, usr user.User) ([]ChatInfo, error) {
	chts, err := svc.repo.QueryUserChats(ctx, usr.ID)
	if err != nil {
		return nil, errors.Wrap(err, "querying user chats")
	}

	infos := make([]ChatInfo, 0, len(chts))
	for _, cht := range chts {
		info := ChatInfo{ID: cht.ID}
		if otherID, ok := cht.OtherParticipant(usr.ID); ok {
			if other, err := svc.usrSvc.GetByID(ctx, otherID); err == nil {
				info.OtherUser = &Participant{ID: other.ID, Username: other.Username}
			}
		}
		if last, err := svc.repo.GetLastMessage(ctx, cht.ID); err == nil {
			msg := last
			info.LastMessage = &msg
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// Messages returns the chat's history in send order.
func (svc *Service) Messages(ctx context.Context, chatID string, usr user.User) ([]Message, error) {
	if _, err := svc.Get(ctx, chatID, usr); err != nil {
		return nil, err
	}
	return svc.repo.QueryMessages(ctx, chatID)
}

// Send persists a message and hands it off for live delivery to the chat's
// group. Persistence strictly precedes the emit: a message that could not be
// stored is never broadcast, so viewers never see content a reload would lose.
func (svc *Service) Send(ctx context.Context, sender user.User, nm NewMessage) (Message, error) {
	cht, err := svc.Get(ctx, nm.ChatID, sender)
	if err != nil {
		return Message{}, err
	}

	msg := Message{
		ChatID:     cht.ID,
		SenderID:   sender.ID,
		SenderName: sender.Username,
		Text:       nm.Text,
		MediaURL:   nm.MediaURL,
		MediaType:  nm.MediaType,
		SentAt:     NowFunc().UTC(),
	}
	msg, err = svc.repo.CreateMessage(ctx, msg)
	if err != nil {
		return Message{}, errors.Wrap(err, "saving message")
	}

	svc.emitter.Emit(realtime.NewChatEvent(cht.ID, realtime.ChatPayload{
		MessageID: msg.ID,
		Sender:    msg.SenderName,
		Text:      msg.Text,
		MediaURL:  msg.MediaURL,
		MediaType: msg.MediaType,
		SentAt:    msg.SentAt,
	}))
	return msg, nil
}

// Persist saves an inbound connection-originated message without emitting;
// the connection handler republishes it itself after persistence succeeds.
func (svc *Service) Persist(ctx context.Context, sender user.User, nm NewMessage) (Message, error) {
	msg := Message{
		ChatID:     nm.ChatID,
		SenderID:   sender.ID,
		SenderName: sender.Username,
		Text:       nm.Text,
		MediaURL:   nm.MediaURL,
		MediaType:  nm.MediaType,
		SentAt:     NowFunc().UTC(),
	}
	msg, err := svc.repo.CreateMessage(ctx, msg)
	if err != nil {
		return Message{}, errors.Wrap(err, "saving message")
	}
	return msg, nil
}
