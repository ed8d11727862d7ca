package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"botfactory/internal/entities"
)

type KnowledgeRepository struct {
	db *pgxpool.Pool
}

func NewKnowledgeRepository(db *pgxpool.Pool) *KnowledgeRepository {
	return &KnowledgeRepository{db: db}
}

func (r *KnowledgeRepository) Create(ctx context.Context, entry *entities.KnowledgeEntry) error {
	return r.db.QueryRow(ctx,
		`INSERT INTO knowledge_entries (bot_id, title, content)
		 VALUES ($1, $2, $3) RETURNING id, created_at`,
		entry.BotID, entry.Title, entry.Content,
	).Scan(&entry.ID, &entry.CreatedAt)
}

func (r *KnowledgeRepository) ListByBot(ctx context.Context, botID int) ([]entities.KnowledgeEntry, error) {
	rows, err := r.db.Query(ctx,
		"SELECT id, bot_id, title, content, created_at FROM knowledge_entries WHERE bot_id = $1 ORDER BY id", botID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []entities.KnowledgeEntry{}
	for rows.Next() {
		var e entities.KnowledgeEntry
		if err := rows.Scan(&e.ID, &e.BotID, &e.Title, &e.Content, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *KnowledgeRepository) CountByBot(ctx context.Context, botID int) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		"SELECT COUNT(*) FROM knowledge_entries WHERE bot_id = $1", botID).Scan(&count)
	return count, err
}

func (r *KnowledgeRepository) Delete(ctx context.Context, botID, entryID int) error {
	_, err := r.db.Exec(ctx,
		"DELETE FROM knowledge_entries WHERE id = $1 AND bot_id = $2", entryID, botID)
	return err
}
