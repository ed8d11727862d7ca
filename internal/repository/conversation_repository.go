package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"botfactory/internal/entities"
)

type ConversationRepository struct {
	db *pgxpool.Pool
}

func NewConversationRepository(db *pgxpool.Pool) *ConversationRepository {
	return &ConversationRepository{db: db}
}

const conversationSelect = `SELECT id, bot_id, external_user_id, external_username, started_at, last_message_at FROM conversations`

// GetOrCreate relies on the (bot_id, external_user_id) unique constraint:
// a concurrent first message from the same user resolves to one row.
func (r *ConversationRepository) GetOrCreate(ctx context.Context, botID int, externalUserID, externalUsername string) (*entities.Conversation, bool, error) {
	var conv entities.Conversation
	var created bool
	err := r.db.QueryRow(ctx, `
		INSERT INTO conversations (bot_id, external_user_id, external_username)
		VALUES ($1, $2, $3)
		ON CONFLICT (bot_id, external_user_id)
		DO UPDATE SET last_message_at = CURRENT_TIMESTAMP, external_username = EXCLUDED.external_username
		RETURNING id, bot_id, external_user_id, external_username, started_at, last_message_at,
		          (xmax = 0) AS inserted
	`, botID, externalUserID, externalUsername).Scan(
		&conv.ID, &conv.BotID, &conv.ExternalUserID, &conv.ExternalUsername,
		&conv.StartedAt, &conv.LastMessageAt, &created)
	if err != nil {
		return nil, false, err
	}
	return &conv, created, nil
}

func (r *ConversationRepository) GetByID(ctx context.Context, id int) (*entities.Conversation, error) {
	var conv entities.Conversation
	err := r.db.QueryRow(ctx, conversationSelect+" WHERE id = $1", id).Scan(
		&conv.ID, &conv.BotID, &conv.ExternalUserID, &conv.ExternalUsername,
		&conv.StartedAt, &conv.LastMessageAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

func (r *ConversationRepository) ListByBot(ctx context.Context, botID int) ([]entities.Conversation, error) {
	rows, err := r.db.Query(ctx,
		conversationSelect+" WHERE bot_id = $1 ORDER BY last_message_at DESC", botID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	convs := []entities.Conversation{}
	for rows.Next() {
		var conv entities.Conversation
		if err := rows.Scan(&conv.ID, &conv.BotID, &conv.ExternalUserID,
			&conv.ExternalUsername, &conv.StartedAt, &conv.LastMessageAt); err != nil {
			return nil, err
		}
		convs = append(convs, conv)
	}
	return convs, rows.Err()
}

func (r *ConversationRepository) AppendMessage(ctx context.Context, msg *entities.Message) error {
	return r.db.QueryRow(ctx,
		`INSERT INTO messages (conversation_id, direction, body)
		 VALUES ($1, $2, $3) RETURNING id, created_at`,
		msg.ConversationID, msg.Direction, msg.Body,
	).Scan(&msg.ID, &msg.CreatedAt)
}

// RecentMessages returns up to limit most-recent messages, oldest first.
func (r *ConversationRepository) RecentMessages(ctx context.Context, conversationID, limit int) ([]entities.Message, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, conversation_id, direction, body, created_at FROM (
			SELECT id, conversation_id, direction, body, created_at
			FROM messages WHERE conversation_id = $1
			ORDER BY created_at DESC, id DESC LIMIT $2
		) recent ORDER BY created_at ASC, id ASC
	`, conversationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessages(rows)
}

func (r *ConversationRepository) ListMessages(ctx context.Context, conversationID int) ([]entities.Message, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, conversation_id, direction, body, created_at
		FROM messages WHERE conversation_id = $1
		ORDER BY created_at ASC, id ASC
	`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessages(rows)
}

func scanMessages(rows pgx.Rows) ([]entities.Message, error) {
	msgs := []entities.Message{}
	for rows.Next() {
		var m entities.Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Direction, &m.Body, &m.CreatedAt); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func (r *ConversationRepository) CountByBot(ctx context.Context, botID int) (int, int, error) {
	var conversations, messages int
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(DISTINCT c.id), COUNT(m.id)
		FROM conversations c
		LEFT JOIN messages m ON m.conversation_id = c.id
		WHERE c.bot_id = $1
	`, botID).Scan(&conversations, &messages)
	return conversations, messages, err
}
