package usecases

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"botfactory/internal/entities"
	"botfactory/internal/interfaces"
	"botfactory/pkg/logger"
)

// User-facing notices. These are returned in place of an AI reply, never
// as errors, so the receive loop keeps going.
const (
	QuotaExceededNotice = "This bot has reached its monthly message limit. Please try again later."
	FallbackNotice      = "I'm experiencing technical difficulties. Please try again later."
)

// Fixed framing around the knowledge-base section of the system prompt.
const (
	knowledgeHeader = "\n\nKnowledge Base:\n"
	knowledgeAdvice = "\nIf you have relevant information in your knowledge base, use it to provide accurate answers. If you don't know something, be honest about it."
)

// Responder assembles prompt context and requests a completion from the
// AI collaborator for each inbound message, enforcing the tenant quota
// before calling out.
type Responder struct {
	bots          interfaces.BotRepo
	users         interfaces.UserRepo
	knowledge     interfaces.KnowledgeRepo
	conversations interfaces.ConversationRepo
	ledger        *SubscriptionLedger
	ai            interfaces.AIClient
	log           *logger.Logger

	maxContextLength int
	historyWindow    int
}

func NewResponder(
	bots interfaces.BotRepo,
	users interfaces.UserRepo,
	knowledge interfaces.KnowledgeRepo,
	conversations interfaces.ConversationRepo,
	ledger *SubscriptionLedger,
	ai interfaces.AIClient,
	log *logger.Logger,
	maxContextLength, historyWindow int,
) *Responder {
	return &Responder{
		bots:             bots,
		users:            users,
		knowledge:        knowledge,
		conversations:    conversations,
		ledger:           ledger,
		ai:               ai,
		log:              log,
		maxContextLength: maxContextLength,
		historyWindow:    historyWindow,
	}
}

// Respond handles one inbound message end to end. The returned string is
// always safe to send to the end user; an error is returned only when
// the bot itself cannot serve traffic (missing, inactive, disabled owner).
//
// Redelivery of the same platform event produces a duplicate message row
// and a duplicate AI call; delivery is at-most-once best effort.
func (r *Responder) Respond(ctx context.Context, ev entities.InboundEvent) (string, error) {
	bot, err := r.bots.GetByID(ctx, ev.BotID)
	if err != nil {
		return "", err
	}
	if bot == nil {
		return "", fmt.Errorf("%w: bot %d", ErrNotFound, ev.BotID)
	}
	if bot.Status != entities.BotStatusActive {
		return "", fmt.Errorf("%w: bot %d", ErrBotInactive, ev.BotID)
	}

	owner, err := r.users.GetByID(ctx, bot.UserID)
	if err != nil {
		return "", err
	}
	if owner == nil || !owner.Active {
		return "", fmt.Errorf("%w: owner of bot %d", ErrAccountLocked, ev.BotID)
	}

	// Quota gate: reserve before the AI call so concurrent messages to
	// two bots of the same tenant cannot overrun the cap.
	if _, err := r.ledger.CheckAndReserveQuota(ctx, bot.UserID); err != nil {
		if errors.Is(err, ErrQuotaExceeded) {
			r.log.Warn("quota exceeded", zap.Int("bot_id", bot.ID), zap.Int("user_id", bot.UserID))
			return QuotaExceededNotice, nil
		}
		return "", err
	}

	conv, created, err := r.conversations.GetOrCreate(ctx, bot.ID, ev.ExternalUserID, ev.ExternalUsername)
	if err != nil {
		r.releaseQuota(bot.UserID)
		return "", err
	}

	history, err := r.conversations.RecentMessages(ctx, conv.ID, r.historyWindow)
	if err != nil {
		r.releaseQuota(bot.UserID)
		return "", err
	}

	entries, err := r.knowledge.ListByBot(ctx, bot.ID)
	if err != nil {
		r.releaseQuota(bot.UserID)
		return "", err
	}

	systemPrompt, history := r.AssembleContext(bot, entries, history)

	reply, err := r.ai.Complete(ctx, systemPrompt, history, ev.Text)
	if err != nil {
		// AI failures become a safe fallback, never a crash of the loop,
		// and the reserved message is handed back.
		r.log.Error("AI completion failed", err, zap.Int("bot_id", bot.ID))
		r.releaseQuota(bot.UserID)
		return FallbackNotice, nil
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		reply = FallbackNotice
	}

	if err := r.persistTurn(ctx, conv.ID, ev.Text, reply); err != nil {
		r.log.Error("failed to log conversation turn", err, zap.Int("conversation_id", conv.ID))
	}
	if err := r.ledger.RecordUsage(ctx, bot.ID, created); err != nil {
		r.log.Error("failed to record usage", err, zap.Int("bot_id", bot.ID))
	}

	return reply, nil
}

func (r *Responder) persistTurn(ctx context.Context, conversationID int, inbound, outbound string) error {
	in := &entities.Message{
		ConversationID: conversationID,
		Direction:      entities.DirectionInbound,
		Body:           inbound,
	}
	if err := r.conversations.AppendMessage(ctx, in); err != nil {
		return err
	}
	out := &entities.Message{
		ConversationID: conversationID,
		Direction:      entities.DirectionOutbound,
		Body:           outbound,
	}
	return r.conversations.AppendMessage(ctx, out)
}

func (r *Responder) releaseQuota(userID int) {
	// Release runs on a fresh context: the event context may already be
	// cancelled, and losing the release would leak quota.
	if err := r.ledger.ReleaseReservation(context.Background(), userID); err != nil {
		r.log.Error("failed to release quota reservation", err, zap.Int("user_id", userID))
	}
}

// AssembleContext builds the system prompt from the bot persona and its
// knowledge base, and trims conversation history so the whole context
// stays within the configured maximum length. The persona is always
// included verbatim; knowledge entries and then history give way first.
func (r *Responder) AssembleContext(bot *entities.Bot, entries []entities.KnowledgeEntry, history []entities.Message) (string, []entities.Message) {
	var sb strings.Builder
	sb.WriteString(bot.SystemPrompt)
	sb.WriteString(fmt.Sprintf("\n\nYou are a chatbot named %q.", bot.Name))
	if bot.Description != "" {
		sb.WriteString("\nDescription: " + bot.Description)
	}

	budget := r.maxContextLength - sb.Len()
	if budget < 0 {
		budget = 0
	}

	// History is charged against the budget before knowledge so recent
	// dialogue survives even with a large knowledge base.
	historyCost := 0
	kept := history
	for len(kept) > 0 {
		historyCost = 0
		for _, m := range kept {
			historyCost += len(m.Body)
		}
		if historyCost <= budget/2 {
			break
		}
		kept = kept[1:] // drop oldest first
	}
	if len(kept) == 0 {
		historyCost = 0
	}
	budget -= historyCost

	// The header and closing advice are charged against the budget too;
	// the knowledge section is skipped entirely when they alone would
	// blow the bound.
	if len(entries) > 0 && budget > len(knowledgeHeader)+len(knowledgeAdvice) {
		kbBudget := budget - len(knowledgeAdvice)
		var kb strings.Builder
		kb.WriteString(knowledgeHeader)
		for _, e := range entries {
			chunk := fmt.Sprintf("- %s: %s\n", e.Title, e.Content)
			if kb.Len()+len(chunk) > kbBudget {
				remain := kbBudget - kb.Len()
				// back up to a rune boundary so the cut never splits
				// a multi-byte character
				for remain > 0 && !utf8.RuneStart(chunk[remain]) {
					remain--
				}
				if remain > 0 {
					kb.WriteString(chunk[:remain])
				}
				break
			}
			kb.WriteString(chunk)
		}
		sb.WriteString(kb.String())
		sb.WriteString(knowledgeAdvice)
	}

	return sb.String(), kept
}
