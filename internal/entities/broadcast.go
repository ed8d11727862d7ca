package entities

import "time"

// Broadcast statuses
const (
	BroadcastPending = "pending"
	BroadcastSent    = "sent"
)

// Broadcast is a platform announcement an admin pushes through the
// running bots of the targeted subscription tiers to their end users.
type Broadcast struct {
	ID          int        `json:"id"`
	AdminID     int        `json:"admin_id"`
	Title       string     `json:"title"`
	Message     string     `json:"message"`
	TargetTiers []string   `json:"target_tiers"`
	Status      string     `json:"status"`
	TotalBots   int        `json:"total_bots"`
	Delivered   int        `json:"delivered"`
	Failed      int        `json:"failed"`
	SentAt      *time.Time `json:"sent_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// BroadcastDelivery records the fan-out outcome for one bot.
type BroadcastDelivery struct {
	ID           int       `json:"id"`
	BroadcastID  int       `json:"broadcast_id"`
	BotID        int       `json:"bot_id"`
	Delivered    bool      `json:"delivered"`
	ErrorMessage string    `json:"error_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}
