package entities

import "time"

// Subscription tiers
const (
	TierFree    = "free"
	TierBasic   = "basic"
	TierPremium = "premium"
)

type Subscription struct {
	ID                  int        `json:"id"`
	UserID              int        `json:"user_id"`
	Tier                string     `json:"tier"`
	MaxBots             int        `json:"max_bots"`
	MaxMessagesPerMonth int        `json:"max_messages_per_month"`
	MessagesUsed        int        `json:"messages_used"`
	PeriodStart         time.Time  `json:"period_start"`
	EndDate             *time.Time `json:"end_date,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
}

// Expired reports whether the subscription has passed its end date.
// A nil end date means the plan never expires.
func (s *Subscription) Expired() bool {
	return s.EndDate != nil && time.Now().After(*s.EndDate)
}

// Remaining returns how many messages are left in the current period.
func (s *Subscription) Remaining() int {
	r := s.MaxMessagesPerMonth - s.MessagesUsed
	if r < 0 {
		return 0
	}
	return r
}

// TierLimits holds the per-tier caps applied when a subscription is
// created or changed.
type TierLimits struct {
	MaxBots             int
	MaxMessagesPerMonth int
	MaxKnowledgeEntries int
}

var tierLimits = map[string]TierLimits{
	TierFree:    {MaxBots: 1, MaxMessagesPerMonth: 100, MaxKnowledgeEntries: 10},
	TierBasic:   {MaxBots: 5, MaxMessagesPerMonth: 1000, MaxKnowledgeEntries: 50},
	TierPremium: {MaxBots: 25, MaxMessagesPerMonth: 10000, MaxKnowledgeEntries: 200},
}

// LimitsForTier returns the caps for a tier, defaulting to the free tier
// for unknown values.
func LimitsForTier(tier string) TierLimits {
	if l, ok := tierLimits[tier]; ok {
		return l
	}
	return tierLimits[TierFree]
}

// ValidTier reports whether the given tier name is recognized.
func ValidTier(tier string) bool {
	_, ok := tierLimits[tier]
	return ok
}
