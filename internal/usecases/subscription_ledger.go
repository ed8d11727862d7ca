package usecases

import (
	"context"
	"fmt"
	"time"

	"botfactory/internal/entities"
	"botfactory/internal/interfaces"
)

// SubscriptionLedger tracks plan tiers, bot-count limits and the monthly
// message quota per tenant. Quota mutation goes through the repository's
// atomic increment-and-check, so concurrent messages to two bots of the
// same tenant cannot overrun the cap.
type SubscriptionLedger struct {
	subs interfaces.SubscriptionRepo
	bots interfaces.BotRepo
}

func NewSubscriptionLedger(subs interfaces.SubscriptionRepo, bots interfaces.BotRepo) *SubscriptionLedger {
	return &SubscriptionLedger{subs: subs, bots: bots}
}

// CreateDefault attaches the free-tier subscription created at signup.
func (l *SubscriptionLedger) CreateDefault(ctx context.Context, userID int) error {
	limits := entities.LimitsForTier(entities.TierFree)
	return l.subs.Create(ctx, &entities.Subscription{
		UserID:              userID,
		Tier:                entities.TierFree,
		MaxBots:             limits.MaxBots,
		MaxMessagesPerMonth: limits.MaxMessagesPerMonth,
	})
}

// CheckAndReserveQuota consumes one message from the tenant's monthly
// quota. It returns ErrQuotaExceeded when the cap is reached; the caller
// must not invoke the AI collaborator in that case.
func (l *SubscriptionLedger) CheckAndReserveQuota(ctx context.Context, userID int) (int, error) {
	remaining, ok, err := l.subs.ReserveMessage(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("reserve quota: %w", err)
	}
	if !ok {
		return 0, ErrQuotaExceeded
	}
	return remaining, nil
}

// ReleaseReservation hands a reserved message back after a failed AI
// call; a reply that never happened should not count against the quota.
func (l *SubscriptionLedger) ReleaseReservation(ctx context.Context, userID int) error {
	return l.subs.ReleaseMessage(ctx, userID)
}

// RecordUsage is the post-success bookkeeping: the quota itself was
// consumed by the reservation, so only the bot's analytics move here.
func (l *SubscriptionLedger) RecordUsage(ctx context.Context, botID int, newUser bool) error {
	return l.bots.RecordActivity(ctx, botID, newUser)
}

// ResetPeriod zeroes the counter at the start of a new billing period.
// Invoked by an external scheduled job.
func (l *SubscriptionLedger) ResetPeriod(ctx context.Context, userID int) error {
	return l.subs.ResetPeriod(ctx, userID)
}

// CanCreateBot compares the tenant's bot count to the tier limit.
func (l *SubscriptionLedger) CanCreateBot(ctx context.Context, userID int) (bool, error) {
	sub, err := l.subs.GetByUser(ctx, userID)
	if err != nil {
		return false, err
	}
	if sub == nil {
		return false, ErrNotFound
	}
	count, err := l.bots.CountByUser(ctx, userID)
	if err != nil {
		return false, err
	}
	return count < sub.MaxBots, nil
}

// CanAddKnowledge compares a bot's knowledge entry count to the tier cap.
func (l *SubscriptionLedger) CanAddKnowledge(ctx context.Context, userID, entryCount int) (bool, error) {
	sub, err := l.subs.GetByUser(ctx, userID)
	if err != nil {
		return false, err
	}
	if sub == nil {
		return false, ErrNotFound
	}
	return entryCount < entities.LimitsForTier(sub.Tier).MaxKnowledgeEntries, nil
}

// paidPeriod is how long a paid tier runs before the supervisor
// downgrades it back to free.
const paidPeriod = 30 * 24 * time.Hour

// ChangePlan rewrites tier limits. Usage already accumulated this period
// is preserved. A paid tier gets a fresh 30-day period; the free tier
// never expires.
func (l *SubscriptionLedger) ChangePlan(ctx context.Context, userID int, tier string) (*entities.Subscription, error) {
	if !entities.ValidTier(tier) {
		return nil, ErrValidation
	}
	sub, err := l.subs.GetByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, ErrNotFound
	}

	limits := entities.LimitsForTier(tier)
	sub.Tier = tier
	sub.MaxBots = limits.MaxBots
	sub.MaxMessagesPerMonth = limits.MaxMessagesPerMonth
	if tier == entities.TierFree {
		sub.EndDate = nil
	} else {
		end := time.Now().Add(paidPeriod)
		sub.EndDate = &end
	}
	if err := l.subs.SetPlan(ctx, userID, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// DowngradeExpired moves tenants whose paid period has lapsed back to
// the free tier and reports which tenants were affected. Usage already
// accumulated this period is kept, so a tenant past the free cap stays
// blocked until the next period reset.
func (l *SubscriptionLedger) DowngradeExpired(ctx context.Context) ([]int, error) {
	expired, err := l.subs.ListExpired(ctx, time.Now())
	if err != nil {
		return nil, err
	}

	limits := entities.LimitsForTier(entities.TierFree)
	var users []int
	for i := range expired {
		sub := &expired[i]
		sub.Tier = entities.TierFree
		sub.MaxBots = limits.MaxBots
		sub.MaxMessagesPerMonth = limits.MaxMessagesPerMonth
		sub.EndDate = nil
		if err := l.subs.SetPlan(ctx, sub.UserID, sub); err != nil {
			return users, err
		}
		users = append(users, sub.UserID)
	}
	return users, nil
}

// Status returns the subscription snapshot for the stats endpoints.
func (l *SubscriptionLedger) Status(ctx context.Context, userID int) (*entities.Subscription, error) {
	sub, err := l.subs.GetByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, ErrNotFound
	}
	return sub, nil
}
