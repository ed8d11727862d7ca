package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"botfactory/internal/entities"
)

type BotRepository struct {
	db *pgxpool.Pool
}

func NewBotRepository(db *pgxpool.Pool) *BotRepository {
	return &BotRepository{db: db}
}

const botSelect = `SELECT id, user_id, name, description, telegram_token, telegram_username,
	system_prompt, status, total_messages, total_users, last_activity, created_at, updated_at FROM bots`

func (r *BotRepository) Create(ctx context.Context, bot *entities.Bot) error {
	return r.db.QueryRow(ctx,
		`INSERT INTO bots (user_id, name, description, telegram_token, telegram_username, system_prompt, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id, created_at, updated_at`,
		bot.UserID, bot.Name, bot.Description, bot.TelegramToken, bot.TelegramUsername,
		bot.SystemPrompt, bot.Status,
	).Scan(&bot.ID, &bot.CreatedAt, &bot.UpdatedAt)
}

func (r *BotRepository) GetByID(ctx context.Context, id int) (*entities.Bot, error) {
	var bot entities.Bot
	err := r.db.QueryRow(ctx, botSelect+" WHERE id = $1", id).Scan(
		&bot.ID, &bot.UserID, &bot.Name, &bot.Description, &bot.TelegramToken,
		&bot.TelegramUsername, &bot.SystemPrompt, &bot.Status, &bot.TotalMessages,
		&bot.TotalUsers, &bot.LastActivity, &bot.CreatedAt, &bot.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &bot, nil
}

func (r *BotRepository) ListByUser(ctx context.Context, userID int) ([]entities.Bot, error) {
	return r.list(ctx, botSelect+" WHERE user_id = $1 ORDER BY id", userID)
}

func (r *BotRepository) ListByStatus(ctx context.Context, status string) ([]entities.Bot, error) {
	return r.list(ctx, botSelect+" WHERE status = $1 ORDER BY id", status)
}

func (r *BotRepository) list(ctx context.Context, query string, args ...interface{}) ([]entities.Bot, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	bots := []entities.Bot{}
	for rows.Next() {
		var bot entities.Bot
		if err := rows.Scan(&bot.ID, &bot.UserID, &bot.Name, &bot.Description,
			&bot.TelegramToken, &bot.TelegramUsername, &bot.SystemPrompt, &bot.Status,
			&bot.TotalMessages, &bot.TotalUsers, &bot.LastActivity,
			&bot.CreatedAt, &bot.UpdatedAt); err != nil {
			return nil, err
		}
		bots = append(bots, bot)
	}
	return bots, rows.Err()
}

func (r *BotRepository) CountByUser(ctx context.Context, userID int) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM bots WHERE user_id = $1", userID).Scan(&count)
	return count, err
}

func (r *BotRepository) Update(ctx context.Context, bot *entities.Bot) error {
	_, err := r.db.Exec(ctx, `
		UPDATE bots
		SET name = $1, description = $2, telegram_token = $3, telegram_username = $4,
		    system_prompt = $5, updated_at = CURRENT_TIMESTAMP
		WHERE id = $6
	`, bot.Name, bot.Description, bot.TelegramToken, bot.TelegramUsername, bot.SystemPrompt, bot.ID)
	return err
}

func (r *BotRepository) UpdateStatus(ctx context.Context, id int, status string) error {
	_, err := r.db.Exec(ctx,
		"UPDATE bots SET status = $1, updated_at = CURRENT_TIMESTAMP WHERE id = $2", status, id)
	return err
}

// Delete cascades to knowledge entries, conversations and messages via
// the foreign keys.
func (r *BotRepository) Delete(ctx context.Context, id int) error {
	_, err := r.db.Exec(ctx, "DELETE FROM bots WHERE id = $1", id)
	return err
}

// RecordActivity bumps the bot's analytics counters after a handled
// message. newUser also bumps the distinct end-user count.
func (r *BotRepository) RecordActivity(ctx context.Context, id int, newUser bool) error {
	userInc := 0
	if newUser {
		userInc = 1
	}
	_, err := r.db.Exec(ctx, `
		UPDATE bots
		SET total_messages = total_messages + 1,
		    total_users = total_users + $1,
		    last_activity = CURRENT_TIMESTAMP
		WHERE id = $2
	`, userInc, id)
	return err
}
