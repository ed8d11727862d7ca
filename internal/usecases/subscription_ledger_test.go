package usecases

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"botfactory/internal/entities"
)

func newTestLedger(t *testing.T) (*SubscriptionLedger, *fakeSubscriptionRepo, *fakeBotRepo) {
	t.Helper()
	subs := newFakeSubscriptionRepo()
	bots := newFakeBotRepo()
	return NewSubscriptionLedger(subs, bots), subs, bots
}

func TestCreateDefaultUsesFreeTier(t *testing.T) {
	ledger, subs, _ := newTestLedger(t)

	require.NoError(t, ledger.CreateDefault(context.Background(), 1))

	sub, err := subs.GetByUser(context.Background(), 1)
	require.NoError(t, err)
	require.NotNil(t, sub)
	assert.Equal(t, entities.TierFree, sub.Tier)
	assert.Equal(t, 1, sub.MaxBots)
	assert.Equal(t, 100, sub.MaxMessagesPerMonth)
	assert.Zero(t, sub.MessagesUsed)
}

func TestCheckAndReserveQuota(t *testing.T) {
	ledger, subs, _ := newTestLedger(t)
	ctx := context.Background()
	require.NoError(t, ledger.CreateDefault(ctx, 1))

	remaining, err := ledger.CheckAndReserveQuota(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 99, remaining)

	sub, _ := subs.GetByUser(ctx, 1)
	assert.Equal(t, 1, sub.MessagesUsed)
}

func TestCheckAndReserveQuotaExhausted(t *testing.T) {
	ledger, _, _ := newTestLedger(t)
	ctx := context.Background()
	require.NoError(t, ledger.CreateDefault(ctx, 1))

	for i := 0; i < 100; i++ {
		_, err := ledger.CheckAndReserveQuota(ctx, 1)
		require.NoError(t, err)
	}

	_, err := ledger.CheckAndReserveQuota(ctx, 1)
	assert.ErrorIs(t, err, ErrQuotaExceeded)
}

// Concurrent reservations across goroutines must never exceed the cap,
// even when the attempts outnumber the remaining quota.
func TestCheckAndReserveQuotaConcurrent(t *testing.T) {
	ledger, subs, _ := newTestLedger(t)
	ctx := context.Background()
	require.NoError(t, ledger.CreateDefault(ctx, 1))

	const attempts = 300 // quota is 100

	var wg sync.WaitGroup
	granted := make(chan struct{}, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := ledger.CheckAndReserveQuota(ctx, 1); err == nil {
				granted <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(granted)

	count := 0
	for range granted {
		count++
	}
	assert.Equal(t, 100, count)

	sub, _ := subs.GetByUser(ctx, 1)
	assert.Equal(t, 100, sub.MessagesUsed)
}

func TestReleaseReservation(t *testing.T) {
	ledger, subs, _ := newTestLedger(t)
	ctx := context.Background()
	require.NoError(t, ledger.CreateDefault(ctx, 1))

	_, err := ledger.CheckAndReserveQuota(ctx, 1)
	require.NoError(t, err)
	require.NoError(t, ledger.ReleaseReservation(ctx, 1))

	sub, _ := subs.GetByUser(ctx, 1)
	assert.Zero(t, sub.MessagesUsed)

	// Releasing with nothing reserved must not go negative
	require.NoError(t, ledger.ReleaseReservation(ctx, 1))
	sub, _ = subs.GetByUser(ctx, 1)
	assert.Zero(t, sub.MessagesUsed)
}

func TestRecordUsageUpdatesBotAnalytics(t *testing.T) {
	ledger, _, bots := newTestLedger(t)
	ctx := context.Background()

	bot := &entities.Bot{UserID: 1, Name: "b", Status: entities.BotStatusActive}
	require.NoError(t, bots.Create(ctx, bot))

	require.NoError(t, ledger.RecordUsage(ctx, bot.ID, true))
	require.NoError(t, ledger.RecordUsage(ctx, bot.ID, false))

	got, _ := bots.GetByID(ctx, bot.ID)
	assert.Equal(t, 2, got.TotalMessages)
	assert.Equal(t, 1, got.TotalUsers)
	assert.NotNil(t, got.LastActivity)
}

func TestResetPeriod(t *testing.T) {
	ledger, subs, _ := newTestLedger(t)
	ctx := context.Background()
	require.NoError(t, ledger.CreateDefault(ctx, 1))

	for i := 0; i < 10; i++ {
		_, err := ledger.CheckAndReserveQuota(ctx, 1)
		require.NoError(t, err)
	}
	require.NoError(t, ledger.ResetPeriod(ctx, 1))

	sub, _ := subs.GetByUser(ctx, 1)
	assert.Zero(t, sub.MessagesUsed)
}

func TestCanCreateBot(t *testing.T) {
	ledger, _, bots := newTestLedger(t)
	ctx := context.Background()
	require.NoError(t, ledger.CreateDefault(ctx, 1)) // free tier: 1 bot

	ok, err := ledger.CanCreateBot(ctx, 1)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, bots.Create(ctx, &entities.Bot{UserID: 1, Name: "first"}))

	ok, err = ledger.CanCreateBot(ctx, 1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCanCreateBotNoSubscription(t *testing.T) {
	ledger, _, _ := newTestLedger(t)

	_, err := ledger.CanCreateBot(context.Background(), 42)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestChangePlan(t *testing.T) {
	ledger, subs, _ := newTestLedger(t)
	ctx := context.Background()
	require.NoError(t, ledger.CreateDefault(ctx, 1))

	for i := 0; i < 5; i++ {
		_, err := ledger.CheckAndReserveQuota(ctx, 1)
		require.NoError(t, err)
	}

	sub, err := ledger.ChangePlan(ctx, 1, entities.TierPremium)
	require.NoError(t, err)
	assert.Equal(t, entities.TierPremium, sub.Tier)
	assert.Equal(t, 25, sub.MaxBots)
	assert.Equal(t, 10000, sub.MaxMessagesPerMonth)

	// A paid tier runs for 30 days
	require.NotNil(t, sub.EndDate)
	assert.WithinDuration(t, time.Now().Add(30*24*time.Hour), *sub.EndDate, time.Minute)

	// Usage carries over into the new plan
	got, _ := subs.GetByUser(ctx, 1)
	assert.Equal(t, 5, got.MessagesUsed)

	// Dropping back to free clears the end date
	sub, err = ledger.ChangePlan(ctx, 1, entities.TierFree)
	require.NoError(t, err)
	assert.Nil(t, sub.EndDate)
}

// A paid plan past its end date falls back to the free tier; plans with
// no end date and free plans are left alone.
func TestDowngradeExpired(t *testing.T) {
	ledger, subs, _ := newTestLedger(t)
	ctx := context.Background()

	require.NoError(t, ledger.CreateDefault(ctx, 1))
	_, err := ledger.ChangePlan(ctx, 1, entities.TierPremium)
	require.NoError(t, err)

	require.NoError(t, ledger.CreateDefault(ctx, 2))
	_, err = ledger.ChangePlan(ctx, 2, entities.TierBasic)
	require.NoError(t, err)

	// Tenant 1's paid period lapsed yesterday; tenant 2's plan is open-ended
	expired, _ := subs.GetByUser(ctx, 1)
	past := time.Now().Add(-24 * time.Hour)
	expired.EndDate = &past
	require.NoError(t, subs.SetPlan(ctx, 1, expired))

	users, err := ledger.DowngradeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, users)

	sub, _ := subs.GetByUser(ctx, 1)
	assert.Equal(t, entities.TierFree, sub.Tier)
	assert.Equal(t, 1, sub.MaxBots)
	assert.Equal(t, 100, sub.MaxMessagesPerMonth)
	assert.Nil(t, sub.EndDate)

	untouched, _ := subs.GetByUser(ctx, 2)
	assert.Equal(t, entities.TierBasic, untouched.Tier)

	// A second pass finds nothing left to downgrade
	users, err = ledger.DowngradeExpired(ctx)
	require.NoError(t, err)
	assert.Empty(t, users)
}

func TestChangePlanInvalidTier(t *testing.T) {
	ledger, _, _ := newTestLedger(t)
	ctx := context.Background()
	require.NoError(t, ledger.CreateDefault(ctx, 1))

	_, err := ledger.ChangePlan(ctx, 1, "enterprise")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestCanAddKnowledge(t *testing.T) {
	ledger, _, _ := newTestLedger(t)
	ctx := context.Background()
	require.NoError(t, ledger.CreateDefault(ctx, 1)) // free tier: 10 entries

	ok, err := ledger.CanAddKnowledge(ctx, 1, 9)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = ledger.CanAddKnowledge(ctx, 1, 10)
	require.NoError(t, err)
	assert.False(t, ok)
}
