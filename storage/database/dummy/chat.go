package dummydb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/classsphere/backend/core/chat"
)

type chatRepository struct {
	db *chatTable

	createMsgErr error           // when set, CreateMessage fails with it
	lastMsgCtx   context.Context // context of the latest CreateMessage call
}

var _ chat.Repository = (*chatRepository)(nil)

func NewChatRepository(db *DB) *chatRepository {
	return &chatRepository{db: db.chat}
}

func (repo *chatRepository) senderName(id string) string {
	if usr, ok := repo.db.users[id]; ok {
		return usr.Username
	}
	return ""
}

func (repo *chatRepository) CreateChat(_ context.Context, participantIDs ...string) (chat.Chat, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	cht := chat.Chat{
		ID:             uuid.New().String(),
		ParticipantIDs: participantIDs,
		CreatedAt:      chat.NowFunc(),
	}
	repo.db.chats[cht.ID] = &cht
	return cht, nil
}

func (repo *chatRepository) GetChat(_ context.Context, id string) (chat.Chat, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if cht, ok := repo.db.chats[id]; ok {
		return *cht, nil
	}
	return chat.Chat{}, chat.ErrNotFound
}

func (repo *chatRepository) GetChatByParticipants(_ context.Context, userID, otherID string) (chat.Chat, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, cht := range repo.db.chats {
		if cht.HasParticipant(userID) && cht.HasParticipant(otherID) {
			return *cht, nil
		}
	}
	return chat.Chat{}, chat.ErrNotFound
}

func (repo *chatRepository) QueryUserChats(_ context.Context, userID string) ([]chat.Chat, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	chats := make([]chat.Chat, 0)
	for _, cht := range repo.db.chats {
		if cht.HasParticipant(userID) {
			chats = append(chats, *cht)
		}
	}
	sort.Slice(chats, func(i, j int) bool { return chats[i].CreatedAt.After(chats[j].CreatedAt) })
	return chats, nil
}

func (repo *chatRepository) QueryMessages(_ context.Context, chatID string) ([]chat.Message, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	msgs := make([]chat.Message, len(repo.db.messages[chatID]))
	copy(msgs, repo.db.messages[chatID])
	return msgs, nil
}

func (repo *chatRepository) GetLastMessage(_ context.Context, chatID string) (chat.Message, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	msgs := repo.db.messages[chatID]
	if len(msgs) == 0 {
		return chat.Message{}, chat.ErrNotFound
	}
	return msgs[len(msgs)-1], nil
}

// FailMessageWrites makes subsequent CreateMessage calls return err.
// Pass nil to restore normal writes. Tests only.
func (repo *chatRepository) FailMessageWrites(err error) {
	repo.db.Lock()
	defer repo.db.Unlock()
	repo.createMsgErr = err
}

// LastMessageContext reports the context the latest CreateMessage call
// carried. Tests only.
func (repo *chatRepository) LastMessageContext() context.Context {
	repo.db.RLock()
	defer repo.db.RUnlock()
	return repo.lastMsgCtx
}

func (repo *chatRepository) CreateMessage(ctx context.Context, msg chat.Message) (chat.Message, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	repo.lastMsgCtx = ctx
	if repo.createMsgErr != nil {
		return chat.Message{}, repo.createMsgErr
	}
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.SenderName == "" {
		msg.SenderName = repo.senderName(msg.SenderID)
	}
	repo.db.messages[msg.ChatID] = append(repo.db.messages[msg.ChatID], msg)
	return msg, nil
}
