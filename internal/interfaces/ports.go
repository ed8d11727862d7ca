package interfaces

import (
	"context"
	"time"

	"botfactory/internal/entities"
)

// AIClient is the generative-AI collaborator. Implementations must honor
// the context deadline; any failure or timeout surfaces as a single error.
type AIClient interface {
	Complete(ctx context.Context, systemPrompt string, history []entities.Message, userMessage string) (string, error)
}

// Responder handles one inbound platform message end to end and returns
// the outbound reply text.
type Responder interface {
	Respond(ctx context.Context, ev entities.InboundEvent) (string, error)
}

// PlatformSession is one live connection to the messaging platform for a
// single bot credential.
type PlatformSession interface {
	BotUsername() string
	// Updates yields inbound events until Close is called, after which the
	// channel is drained and closed.
	Updates() <-chan entities.InboundEvent
	Send(ctx context.Context, chatID int64, text string) error
	Close()
}

// LifecycleManager starts and stops the per-bot receive loops.
type LifecycleManager interface {
	Start(ctx context.Context, bot *entities.Bot) error
	// Stop blocks until the bot's in-flight event, if any, has finished.
	Stop(botID int)
	Running(botID int) bool
}

// OutboundSender pushes messages through a running bot's platform
// session outside the normal request/reply flow, for announcements.
type OutboundSender interface {
	SendMessage(ctx context.Context, botID int, chatID int64, text string) error
}

// SubscriptionExpirer downgrades lapsed paid subscriptions and reports
// which tenants were affected.
type SubscriptionExpirer interface {
	DowngradeExpired(ctx context.Context) ([]int, error)
}

// PlatformDialer validates credentials and opens platform sessions.
type PlatformDialer interface {
	Validate(ctx context.Context, token string) (botUsername string, err error)
	Dial(ctx context.Context, token string) (PlatformSession, error)
}

type UserRepo interface {
	Create(ctx context.Context, user *entities.User) error
	GetByID(ctx context.Context, id int) (*entities.User, error)
	GetByUsername(ctx context.Context, username string) (*entities.User, error)
	GetByEmail(ctx context.Context, email string) (*entities.User, error)
	List(ctx context.Context) ([]entities.User, error)
	SetActive(ctx context.Context, id int, active bool) error
	Count(ctx context.Context) (total, active, admins int, err error)
}

type SubscriptionRepo interface {
	Create(ctx context.Context, sub *entities.Subscription) error
	GetByUser(ctx context.Context, userID int) (*entities.Subscription, error)
	// ReserveMessage atomically increments messages_used iff the quota has
	// headroom, returning the remaining count after the reservation. When
	// the quota is exhausted it returns (0, false, nil).
	ReserveMessage(ctx context.Context, userID int) (remaining int, ok bool, err error)
	ReleaseMessage(ctx context.Context, userID int) error
	ResetPeriod(ctx context.Context, userID int) error
	SetPlan(ctx context.Context, userID int, sub *entities.Subscription) error
	// ListExpired returns paid subscriptions whose end date has passed.
	ListExpired(ctx context.Context, now time.Time) ([]entities.Subscription, error)
	ListUserIDsByTier(ctx context.Context, tiers []string) ([]int, error)
}

type BotRepo interface {
	Create(ctx context.Context, bot *entities.Bot) error
	GetByID(ctx context.Context, id int) (*entities.Bot, error)
	ListByUser(ctx context.Context, userID int) ([]entities.Bot, error)
	ListByStatus(ctx context.Context, status string) ([]entities.Bot, error)
	CountByUser(ctx context.Context, userID int) (int, error)
	Update(ctx context.Context, bot *entities.Bot) error
	UpdateStatus(ctx context.Context, id int, status string) error
	Delete(ctx context.Context, id int) error
	RecordActivity(ctx context.Context, id int, newUser bool) error
}

type KnowledgeRepo interface {
	Create(ctx context.Context, entry *entities.KnowledgeEntry) error
	ListByBot(ctx context.Context, botID int) ([]entities.KnowledgeEntry, error)
	CountByBot(ctx context.Context, botID int) (int, error)
	Delete(ctx context.Context, botID, entryID int) error
}

type ConversationRepo interface {
	// GetOrCreate resolves the conversation for a (bot, external user)
	// pair, creating it on first contact. created reports whether a new
	// row was inserted.
	GetOrCreate(ctx context.Context, botID int, externalUserID, externalUsername string) (conv *entities.Conversation, created bool, err error)
	ListByBot(ctx context.Context, botID int) ([]entities.Conversation, error)
	GetByID(ctx context.Context, id int) (*entities.Conversation, error)
	AppendMessage(ctx context.Context, msg *entities.Message) error
	// RecentMessages returns up to limit most-recent messages ordered
	// oldest to newest.
	RecentMessages(ctx context.Context, conversationID, limit int) ([]entities.Message, error)
	ListMessages(ctx context.Context, conversationID int) ([]entities.Message, error)
	CountByBot(ctx context.Context, botID int) (conversations, messages int, err error)
}

type BroadcastRepo interface {
	Create(ctx context.Context, b *entities.Broadcast) error
	GetByID(ctx context.Context, id int) (*entities.Broadcast, error)
	List(ctx context.Context, limit int) ([]entities.Broadcast, error)
	MarkSent(ctx context.Context, id, totalBots, delivered, failed int) error
	AddDelivery(ctx context.Context, d *entities.BroadcastDelivery) error
	ListDeliveries(ctx context.Context, broadcastID int) ([]entities.BroadcastDelivery, error)
}
