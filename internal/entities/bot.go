package entities

import "time"

// Bot statuses
const (
	BotStatusDraft   = "draft"
	BotStatusActive  = "active"
	BotStatusStopped = "stopped"
	BotStatusCrashed = "crashed"
)

const DefaultSystemPrompt = "You are a helpful AI assistant."

type Bot struct {
	ID               int        `json:"id"`
	UserID           int        `json:"user_id"`
	Name             string     `json:"name"`
	Description      string     `json:"description"`
	TelegramToken    string     `json:"-"`
	TelegramUsername string     `json:"telegram_username"`
	SystemPrompt     string     `json:"system_prompt"`
	Status           string     `json:"status"`
	TotalMessages    int        `json:"total_messages"`
	TotalUsers       int        `json:"total_users"`
	LastActivity     *time.Time `json:"last_activity,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// CanActivate reports whether the bot may transition to active.
func (b *Bot) CanActivate() bool {
	return b.Status == BotStatusDraft || b.Status == BotStatusStopped || b.Status == BotStatusCrashed
}
