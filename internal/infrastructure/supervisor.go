package infrastructure

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"botfactory/internal/entities"
	"botfactory/internal/interfaces"
	"botfactory/pkg/logger"
)

// Supervisor keeps bots that are marked active in the registry actually
// running. Dead loops are restarted with exponential backoff; after too
// many consecutive failures the bot is marked crashed and left alone
// until its owner reactivates it.
type Supervisor struct {
	runtime  *BotRuntime
	bots     interfaces.BotRepo
	expirer  interfaces.SubscriptionExpirer
	log      *logger.Logger
	interval time.Duration

	maxAttempts int
	baseBackoff time.Duration
	maxBackoff  time.Duration

	mu      sync.Mutex
	retries map[int]*retryState
}

type retryState struct {
	attempts  int
	nextRetry time.Time
}

func NewSupervisor(runtime *BotRuntime, bots interfaces.BotRepo, expirer interfaces.SubscriptionExpirer, log *logger.Logger) *Supervisor {
	return &Supervisor{
		runtime:     runtime,
		bots:        bots,
		expirer:     expirer,
		log:         log,
		interval:    30 * time.Second,
		maxAttempts: 5,
		baseBackoff: 2 * time.Second,
		maxBackoff:  time.Minute,
		retries:     make(map[int]*retryState),
	}
}

// Run blocks until ctx is cancelled. The first sweep happens immediately,
// which also resumes bots left active by a previous process.
func (s *Supervisor) Run(ctx context.Context) {
	s.sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Supervisor) sweep(ctx context.Context) {
	// Lapsed subscriptions are handled first so a bot stopped here is
	// not restarted by the same sweep.
	s.enforceExpiry(ctx)

	active, err := s.bots.ListByStatus(ctx, entities.BotStatusActive)
	if err != nil {
		s.log.Error("supervisor: failed to list active bots", err)
		return
	}

	for i := range active {
		bot := &active[i]
		if s.runtime.Running(bot.ID) {
			s.clearRetries(bot.ID)
			continue
		}
		s.restart(ctx, bot)
	}
}

func (s *Supervisor) restart(ctx context.Context, bot *entities.Bot) {
	s.mu.Lock()
	st, ok := s.retries[bot.ID]
	if !ok {
		st = &retryState{}
		s.retries[bot.ID] = st
	}
	if time.Now().Before(st.nextRetry) {
		s.mu.Unlock()
		return
	}
	st.attempts++
	attempts := st.attempts
	backoff := s.baseBackoff << (attempts - 1)
	if backoff > s.maxBackoff {
		backoff = s.maxBackoff
	}
	st.nextRetry = time.Now().Add(backoff)
	s.mu.Unlock()

	if attempts > s.maxAttempts {
		s.log.Warn("supervisor: giving up on bot",
			zap.Int("bot_id", bot.ID), zap.Int("attempts", attempts-1))
		if err := s.bots.UpdateStatus(ctx, bot.ID, entities.BotStatusCrashed); err != nil {
			s.log.Error("supervisor: failed to mark bot crashed", err, zap.Int("bot_id", bot.ID))
		}
		s.clearRetries(bot.ID)
		return
	}

	s.log.Info("supervisor: restarting bot",
		zap.Int("bot_id", bot.ID), zap.Int("attempt", attempts))
	if err := s.runtime.Start(ctx, bot); err != nil {
		s.log.Error("supervisor: restart failed", err, zap.Int("bot_id", bot.ID))
	}
}

// enforceExpiry downgrades lapsed paid plans and stops the loops of the
// affected tenants' bots, marking them stopped so the owner sees why
// their bot went quiet.
func (s *Supervisor) enforceExpiry(ctx context.Context) {
	if s.expirer == nil {
		return
	}
	users, err := s.expirer.DowngradeExpired(ctx)
	if err != nil {
		s.log.Error("supervisor: expiry enforcement failed", err)
	}

	for _, userID := range users {
		s.log.Info("supervisor: subscription expired, downgrading tenant", zap.Int("user_id", userID))
		bots, err := s.bots.ListByUser(ctx, userID)
		if err != nil {
			s.log.Error("supervisor: failed to list tenant bots", err, zap.Int("user_id", userID))
			continue
		}
		for i := range bots {
			bot := &bots[i]
			if bot.Status != entities.BotStatusActive {
				continue
			}
			s.runtime.Stop(bot.ID)
			if err := s.bots.UpdateStatus(ctx, bot.ID, entities.BotStatusStopped); err != nil {
				s.log.Error("supervisor: failed to mark bot stopped", err, zap.Int("bot_id", bot.ID))
			}
		}
	}
}

func (s *Supervisor) clearRetries(botID int) {
	s.mu.Lock()
	delete(s.retries, botID)
	s.mu.Unlock()
}
