package sqlxrepos

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/classsphere/backend/core/chat"
)

type dbMessage struct {
	ID         string      `db:"id"`
	ChatID     string      `db:"chat_id"`
	SenderID   string      `db:"sender_id"`
	SenderName null.String `db:"sender_name"`
	Text       null.String `db:"text"`
	MediaURL   null.String `db:"media_url"`
	MediaType  null.String `db:"media_type"`
	IsRead     bool        `db:"is_read"`
	SentAt     null.Time   `db:"sent_at"`
}

func (r dbMessage) toCore() chat.Message {
	return chat.Message{
		ID:         r.ID,
		ChatID:     r.ChatID,
		SenderID:   r.SenderID,
		SenderName: r.SenderName.String,
		Text:       r.Text,
		MediaURL:   r.MediaURL,
		MediaType:  r.MediaType,
		IsRead:     r.IsRead,
		SentAt:     r.SentAt.Time,
	}
}

const messageSelect = `
	SELECT m.id, m.chat_id, m.sender_id, u.username AS sender_name,
	       m.text, m.media_url, m.media_type, m.is_read, m.sent_at
	FROM message m
	JOIN "user" u ON u.id = m.sender_id`

type chatRepository struct {
	db *sqlx.DB
}

var _ chat.Repository = (*chatRepository)(nil) // interface compliance check

func NewChatRepository(db *sqlx.DB) *chatRepository {
	return &chatRepository{db: db}
}

func (repo chatRepository) participants(ctx context.Context, chatID string) ([]string, error) {
	var ids []string
	err := repo.db.SelectContext(ctx, &ids,
		`SELECT user_id FROM chat_participant WHERE chat_id = $1 ORDER BY user_id`, chatID)
	if err != nil {
		return nil, errors.Wrap(err, "querying chat participants")
	}
	return ids, nil
}

func (repo chatRepository) CreateChat(ctx context.Context, participantIDs ...string) (chat.Chat, error) {
	cht := chat.Chat{ID: uuid.New().String(), ParticipantIDs: participantIDs}

	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return chat.Chat{}, errors.Wrap(err, "beginning tx")
	}
	defer func() { _ = tx.Rollback() }()

	if err = tx.QueryRowContext(ctx,
		`INSERT INTO chat (id, created_at) VALUES ($1, now()) RETURNING created_at`, cht.ID,
	).Scan(&cht.CreatedAt); err != nil {
		return chat.Chat{}, errors.Wrap(err, "inserting chat")
	}
	for _, uid := range participantIDs {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO chat_participant (chat_id, user_id) VALUES ($1, $2)`, cht.ID, uid); err != nil {
			return chat.Chat{}, errors.Wrap(err, "inserting chat participant")
		}
	}
	if err = tx.Commit(); err != nil {
		return chat.Chat{}, errors.Wrap(err, "committing tx")
	}
	return cht, nil
}

func (repo chatRepository) GetChat(ctx context.Context, id string) (chat.Chat, error) {
	var cht chat.Chat
	err := repo.db.QueryRowContext(ctx, `SELECT id, created_at FROM chat WHERE id = $1`, id).
		Scan(&cht.ID, &cht.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return chat.Chat{}, chat.ErrNotFound
		}
		return chat.Chat{}, errors.Wrap(err, "getting chat")
	}
	if cht.ParticipantIDs, err = repo.participants(ctx, cht.ID); err != nil {
		return chat.Chat{}, err
	}
	return cht, nil
}

func (repo chatRepository) GetChatByParticipants(ctx context.Context, userID, otherID string) (chat.Chat, error) {
	var id string
	err := repo.db.QueryRowContext(ctx,
		`SELECT p1.chat_id FROM chat_participant p1
		 JOIN chat_participant p2 ON p2.chat_id = p1.chat_id
		 WHERE p1.user_id = $1 AND p2.user_id = $2`,
		userID, otherID,
	).Scan(&id)
	if err != nil {
		if err == sql.ErrNoRows {
			return chat.Chat{}, chat.ErrNotFound
		}
		return chat.Chat{}, errors.Wrap(err, "getting chat by participants")
	}
	return repo.GetChat(ctx, id)
}

func (repo chatRepository) QueryUserChats(ctx context.Context, userID string) ([]chat.Chat, error) {
	var ids []string
	err := repo.db.SelectContext(ctx, &ids,
		`SELECT c.id FROM chat c
		 JOIN chat_participant p ON p.chat_id = c.id
		 WHERE p.user_id = $1
		 ORDER BY c.created_at DESC`, userID)
	if err != nil {
		return nil, errors.Wrap(err, "querying user chats")
	}

	chts := make([]chat.Chat, 0, len(ids))
	for _, id := range ids {
		cht, err := repo.GetChat(ctx, id)
		if err != nil {
			return nil, err
		}
		chts = append(chts, cht)
	}
	return chts, nil
}

func (repo chatRepository) QueryMessages(ctx context.Context, chatID string) ([]chat.Message, error) {
	var rows []dbMessage
	err := repo.db.SelectContext(ctx, &rows, messageSelect+` WHERE m.chat_id = $1 ORDER BY m.sent_at`, chatID)
	if err != nil {
		return nil, errors.Wrap(err, "querying messages")
	}
	msgs := make([]chat.Message, 0, len(rows))
	for _, r := range rows {
		msgs = append(msgs, r.toCore())
	}
	return msgs, nil
}

func (repo chatRepository) GetLastMessage(ctx context.Context, chatID string) (chat.Message, error) {
	var row dbMessage
	err := repo.db.GetContext(ctx, &row, messageSelect+` WHERE m.chat_id = $1 ORDER BY m.sent_at DESC LIMIT 1`, chatID)
	if err != nil {
		if err == sql.ErrNoRows {
			return chat.Message{}, chat.ErrNotFound
		}
		return chat.Message{}, errors.Wrap(err, "getting last message")
	}
	return row.toCore(), nil
}

func (repo chatRepository) CreateMessage(ctx context.Context, msg chat.Message) (chat.Message, error) {
	msg.ID = uuid.New().String()
	_, err := repo.db.ExecContext(ctx,
		`INSERT INTO message (id, chat_id, sender_id, text, media_url, media_type, is_read, sent_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		msg.ID, msg.ChatID, msg.SenderID, msg.Text, msg.MediaURL, msg.MediaType, msg.IsRead, msg.SentAt.UTC(),
	)
	if err != nil {
		return chat.Message{}, errors.Wrap(err, "inserting message")
	}
	return msg, nil
}
