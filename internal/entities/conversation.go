package entities

import "time"

// Message directions
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// Conversation is one end-user chat session with a bot. There is exactly
// one conversation per (bot, external user) pair, reused across messages.
type Conversation struct {
	ID               int       `json:"id"`
	BotID            int       `json:"bot_id"`
	ExternalUserID   string    `json:"external_user_id"`
	ExternalUsername string    `json:"external_username"`
	StartedAt        time.Time `json:"started_at"`
	LastMessageAt    time.Time `json:"last_message_at"`
}

// Message is one turn in a conversation. Rows are append-only and
// immutable once written.
type Message struct {
	ID             int       `json:"id"`
	ConversationID int       `json:"conversation_id"`
	Direction      string    `json:"direction"`
	Body           string    `json:"body"`
	CreatedAt      time.Time `json:"created_at"`
}

// InboundEvent is a platform message routed into the responder.
type InboundEvent struct {
	BotID            int
	ChatID           int64
	ExternalUserID   string
	ExternalUsername string
	Text             string
	ReceivedAt       time.Time
}
