package entities

import "time"

// KnowledgeEntry is one uploaded grounding document for a bot.
type KnowledgeEntry struct {
	ID        int       `json:"id"`
	BotID     int       `json:"bot_id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}
