package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"botfactory/internal/entities"
)

type SubscriptionRepository struct {
	db *pgxpool.Pool
}

func NewSubscriptionRepository(db *pgxpool.Pool) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

func (r *SubscriptionRepository) Create(ctx context.Context, sub *entities.Subscription) error {
	return r.db.QueryRow(ctx,
		`INSERT INTO subscriptions (user_id, tier, max_bots, max_messages_per_month, end_date)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id, period_start, created_at`,
		sub.UserID, sub.Tier, sub.MaxBots, sub.MaxMessagesPerMonth, sub.EndDate,
	).Scan(&sub.ID, &sub.PeriodStart, &sub.CreatedAt)
}

func (r *SubscriptionRepository) GetByUser(ctx context.Context, userID int) (*entities.Subscription, error) {
	var sub entities.Subscription
	err := r.db.QueryRow(ctx,
		`SELECT id, user_id, tier, max_bots, max_messages_per_month, messages_used, period_start, end_date, created_at
		 FROM subscriptions WHERE user_id = $1`, userID,
	).Scan(&sub.ID, &sub.UserID, &sub.Tier, &sub.MaxBots, &sub.MaxMessagesPerMonth,
		&sub.MessagesUsed, &sub.PeriodStart, &sub.EndDate, &sub.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// ReserveMessage is the serialization point for quota enforcement. The
// conditional UPDATE increments and checks in one statement, so two bots
// of the same tenant racing on the last message cannot both get through.
func (r *SubscriptionRepository) ReserveMessage(ctx context.Context, userID int) (int, bool, error) {
	var remaining int
	err := r.db.QueryRow(ctx, `
		UPDATE subscriptions
		SET messages_used = messages_used + 1
		WHERE user_id = $1 AND messages_used < max_messages_per_month
		RETURNING max_messages_per_month - messages_used
	`, userID).Scan(&remaining)
	if err == pgx.ErrNoRows {
		return 0, false, nil // quota exhausted or no subscription row
	}
	if err != nil {
		return 0, false, err
	}
	return remaining, true, nil
}

// ReleaseMessage returns a reservation after a failed AI call so the
// tenant is not billed for a message that was never answered.
func (r *SubscriptionRepository) ReleaseMessage(ctx context.Context, userID int) error {
	_, err := r.db.Exec(ctx, `
		UPDATE subscriptions
		SET messages_used = GREATEST(messages_used - 1, 0)
		WHERE user_id = $1
	`, userID)
	return err
}

func (r *SubscriptionRepository) ResetPeriod(ctx context.Context, userID int) error {
	_, err := r.db.Exec(ctx, `
		UPDATE subscriptions
		SET messages_used = 0, period_start = CURRENT_TIMESTAMP
		WHERE user_id = $1
	`, userID)
	return err
}

func (r *SubscriptionRepository) SetPlan(ctx context.Context, userID int, sub *entities.Subscription) error {
	_, err := r.db.Exec(ctx, `
		UPDATE subscriptions
		SET tier = $1, max_bots = $2, max_messages_per_month = $3, end_date = $4
		WHERE user_id = $5
	`, sub.Tier, sub.MaxBots, sub.MaxMessagesPerMonth, sub.EndDate, userID)
	return err
}

// ListExpired returns paid subscriptions whose end date has passed.
// Free-tier rows never expire.
func (r *SubscriptionRepository) ListExpired(ctx context.Context, now time.Time) ([]entities.Subscription, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, user_id, tier, max_bots, max_messages_per_month, messages_used, period_start, end_date, created_at
		FROM subscriptions
		WHERE tier <> 'free' AND end_date IS NOT NULL AND end_date <= $1
	`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	subs := []entities.Subscription{}
	for rows.Next() {
		var sub entities.Subscription
		if err := rows.Scan(&sub.ID, &sub.UserID, &sub.Tier, &sub.MaxBots, &sub.MaxMessagesPerMonth,
			&sub.MessagesUsed, &sub.PeriodStart, &sub.EndDate, &sub.CreatedAt); err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

func (r *SubscriptionRepository) ListUserIDsByTier(ctx context.Context, tiers []string) ([]int, error) {
	rows, err := r.db.Query(ctx,
		"SELECT user_id FROM subscriptions WHERE tier = ANY($1) ORDER BY user_id", tiers)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []int{}
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
