package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"botfactory/internal/entities"
)

type BroadcastRepository struct {
	db *pgxpool.Pool
}

func NewBroadcastRepository(db *pgxpool.Pool) *BroadcastRepository {
	return &BroadcastRepository{db: db}
}

const broadcastSelect = `SELECT id, admin_id, title, message, target_tiers, status, total_bots, delivered, failed, sent_at, created_at FROM broadcasts`

func (r *BroadcastRepository) Create(ctx context.Context, b *entities.Broadcast) error {
	return r.db.QueryRow(ctx,
		`INSERT INTO broadcasts (admin_id, title, message, target_tiers, status)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id, created_at`,
		b.AdminID, b.Title, b.Message, b.TargetTiers, b.Status,
	).Scan(&b.ID, &b.CreatedAt)
}

func (r *BroadcastRepository) GetByID(ctx context.Context, id int) (*entities.Broadcast, error) {
	var b entities.Broadcast
	err := r.db.QueryRow(ctx, broadcastSelect+" WHERE id = $1", id).Scan(
		&b.ID, &b.AdminID, &b.Title, &b.Message, &b.TargetTiers, &b.Status,
		&b.TotalBots, &b.Delivered, &b.Failed, &b.SentAt, &b.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *BroadcastRepository) List(ctx context.Context, limit int) ([]entities.Broadcast, error) {
	rows, err := r.db.Query(ctx, broadcastSelect+" ORDER BY created_at DESC LIMIT $1", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	broadcasts := []entities.Broadcast{}
	for rows.Next() {
		var b entities.Broadcast
		if err := rows.Scan(&b.ID, &b.AdminID, &b.Title, &b.Message, &b.TargetTiers,
			&b.Status, &b.TotalBots, &b.Delivered, &b.Failed, &b.SentAt, &b.CreatedAt); err != nil {
			return nil, err
		}
		broadcasts = append(broadcasts, b)
	}
	return broadcasts, rows.Err()
}

func (r *BroadcastRepository) MarkSent(ctx context.Context, id, totalBots, delivered, failed int) error {
	_, err := r.db.Exec(ctx, `
		UPDATE broadcasts
		SET status = 'sent', total_bots = $1, delivered = $2, failed = $3, sent_at = CURRENT_TIMESTAMP
		WHERE id = $4
	`, totalBots, delivered, failed, id)
	return err
}

func (r *BroadcastRepository) AddDelivery(ctx context.Context, d *entities.BroadcastDelivery) error {
	return r.db.QueryRow(ctx,
		`INSERT INTO broadcast_deliveries (broadcast_id, bot_id, delivered, error_message)
		 VALUES ($1, $2, $3, $4) RETURNING id, created_at`,
		d.BroadcastID, d.BotID, d.Delivered, d.ErrorMessage,
	).Scan(&d.ID, &d.CreatedAt)
}

func (r *BroadcastRepository) ListDeliveries(ctx context.Context, broadcastID int) ([]entities.BroadcastDelivery, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, broadcast_id, bot_id, delivered, error_message, created_at
		 FROM broadcast_deliveries WHERE broadcast_id = $1 ORDER BY id`, broadcastID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	deliveries := []entities.BroadcastDelivery{}
	for rows.Next() {
		var d entities.BroadcastDelivery
		if err := rows.Scan(&d.ID, &d.BroadcastID, &d.BotID, &d.Delivered, &d.ErrorMessage, &d.CreatedAt); err != nil {
			return nil, err
		}
		deliveries = append(deliveries, d)
	}
	return deliveries, rows.Err()
}
