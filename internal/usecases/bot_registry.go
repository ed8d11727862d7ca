package usecases

import (
	"context"
	"fmt"
	"regexp"

	"botfactory/internal/entities"
	"botfactory/internal/interfaces"
)

// Telegram bot tokens look like "123456789:AA...".
var telegramTokenRe = regexp.MustCompile(`^\d{8,10}:[A-Za-z0-9_-]{35}$`)

// BotConfig is the owner-supplied configuration for a new bot.
type BotConfig struct {
	Name          string
	Description   string
	TelegramToken string
	SystemPrompt  string
}

// BotRegistry owns bot configuration and status transitions. Activation
// and deactivation are forwarded to the lifecycle manager.
type BotRegistry struct {
	bots      interfaces.BotRepo
	ledger    *SubscriptionLedger
	dialer    interfaces.PlatformDialer
	lifecycle interfaces.LifecycleManager
}

func NewBotRegistry(bots interfaces.BotRepo, ledger *SubscriptionLedger, dialer interfaces.PlatformDialer, lifecycle interfaces.LifecycleManager) *BotRegistry {
	return &BotRegistry{
		bots:      bots,
		ledger:    ledger,
		dialer:    dialer,
		lifecycle: lifecycle,
	}
}

// Create registers a new bot in draft status.
func (r *BotRegistry) Create(ctx context.Context, userID int, cfg BotConfig) (*entities.Bot, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("%w: bot name is required", ErrValidation)
	}
	if cfg.TelegramToken != "" && !telegramTokenRe.MatchString(cfg.TelegramToken) {
		return nil, ErrInvalidCredential
	}

	ok, err := r.ledger.CanCreateBot(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: bot limit reached, upgrade your subscription", ErrLimitExceeded)
	}

	prompt := cfg.SystemPrompt
	if prompt == "" {
		prompt = entities.DefaultSystemPrompt
	}

	bot := &entities.Bot{
		UserID:        userID,
		Name:          cfg.Name,
		Description:   cfg.Description,
		TelegramToken: cfg.TelegramToken,
		SystemPrompt:  prompt,
		Status:        entities.BotStatusDraft,
	}
	if err := r.bots.Create(ctx, bot); err != nil {
		return nil, err
	}
	return bot, nil
}

func (r *BotRegistry) Get(ctx context.Context, userID, botID int) (*entities.Bot, error) {
	bot, err := r.bots.GetByID(ctx, botID)
	if err != nil {
		return nil, err
	}
	if bot == nil || bot.UserID != userID {
		return nil, ErrNotFound
	}
	return bot, nil
}

func (r *BotRegistry) List(ctx context.Context, userID int) ([]entities.Bot, error) {
	return r.bots.ListByUser(ctx, userID)
}

// Update edits configuration. A token change on an active bot requires
// deactivating first.
func (r *BotRegistry) Update(ctx context.Context, userID, botID int, cfg BotConfig) (*entities.Bot, error) {
	bot, err := r.Get(ctx, userID, botID)
	if err != nil {
		return nil, err
	}

	if cfg.TelegramToken != "" && cfg.TelegramToken != bot.TelegramToken {
		if !telegramTokenRe.MatchString(cfg.TelegramToken) {
			return nil, ErrInvalidCredential
		}
		if bot.Status == entities.BotStatusActive {
			return nil, ErrBotActive
		}
		bot.TelegramToken = cfg.TelegramToken
		bot.TelegramUsername = ""
	}
	if cfg.Name != "" {
		bot.Name = cfg.Name
	}
	bot.Description = cfg.Description
	if cfg.SystemPrompt != "" {
		bot.SystemPrompt = cfg.SystemPrompt
	}

	if err := r.bots.Update(ctx, bot); err != nil {
		return nil, err
	}
	return bot, nil
}

// Activate validates the credential against the platform once, records
// the bot username, marks the bot active and starts its receive loop. A
// startup failure leaves the bot in crashed status so the owner sees it.
func (r *BotRegistry) Activate(ctx context.Context, userID, botID int) (*entities.Bot, error) {
	bot, err := r.Get(ctx, userID, botID)
	if err != nil {
		return nil, err
	}
	if bot.Status == entities.BotStatusActive && r.lifecycle.Running(bot.ID) {
		return bot, nil
	}
	if !bot.CanActivate() && bot.Status != entities.BotStatusActive {
		return nil, fmt.Errorf("%w: cannot activate from status %q", ErrValidation, bot.Status)
	}
	if !telegramTokenRe.MatchString(bot.TelegramToken) {
		return nil, ErrInvalidCredential
	}

	username, err := r.dialer.Validate(ctx, bot.TelegramToken)
	if err != nil {
		_ = r.bots.UpdateStatus(ctx, bot.ID, entities.BotStatusCrashed)
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}
	bot.TelegramUsername = username
	if err := r.bots.Update(ctx, bot); err != nil {
		return nil, err
	}

	if err := r.lifecycle.Start(ctx, bot); err != nil {
		_ = r.bots.UpdateStatus(ctx, bot.ID, entities.BotStatusCrashed)
		bot.Status = entities.BotStatusCrashed
		return nil, fmt.Errorf("%w: %v", ErrPlatform, err)
	}

	if err := r.bots.UpdateStatus(ctx, bot.ID, entities.BotStatusActive); err != nil {
		return nil, err
	}
	bot.Status = entities.BotStatusActive
	return bot, nil
}

// Deactivate stops the receive loop, letting the in-flight event finish,
// then marks the bot stopped.
func (r *BotRegistry) Deactivate(ctx context.Context, userID, botID int) (*entities.Bot, error) {
	bot, err := r.Get(ctx, userID, botID)
	if err != nil {
		return nil, err
	}
	if bot.Status != entities.BotStatusActive && !r.lifecycle.Running(bot.ID) {
		return nil, fmt.Errorf("%w: cannot deactivate from status %q", ErrValidation, bot.Status)
	}

	r.lifecycle.Stop(bot.ID)

	if err := r.bots.UpdateStatus(ctx, bot.ID, entities.BotStatusStopped); err != nil {
		return nil, err
	}
	bot.Status = entities.BotStatusStopped
	return bot, nil
}

// Delete removes the bot and everything it owns. Refused while active.
func (r *BotRegistry) Delete(ctx context.Context, userID, botID int) error {
	bot, err := r.Get(ctx, userID, botID)
	if err != nil {
		return err
	}
	if bot.Status == entities.BotStatusActive || r.lifecycle.Running(bot.ID) {
		return fmt.Errorf("%w: deactivate the bot before deleting it", ErrBotActive)
	}
	return r.bots.Delete(ctx, bot.ID)
}

// ValidCredentialFormat checks a token shape without touching the platform.
func ValidCredentialFormat(token string) bool {
	return telegramTokenRe.MatchString(token)
}
