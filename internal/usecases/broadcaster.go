package usecases

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"botfactory/internal/entities"
	"botfactory/internal/interfaces"
	"botfactory/pkg/logger"
)

// Broadcaster fans an admin announcement out through every running bot
// of the targeted tiers to that bot's known end users. Delivery is best
// effort; per-bot outcomes land in the delivery log.
type Broadcaster struct {
	broadcasts    interfaces.BroadcastRepo
	subs          interfaces.SubscriptionRepo
	bots          interfaces.BotRepo
	conversations interfaces.ConversationRepo
	sender        interfaces.OutboundSender
	log           *logger.Logger
}

func NewBroadcaster(
	broadcasts interfaces.BroadcastRepo,
	subs interfaces.SubscriptionRepo,
	bots interfaces.BotRepo,
	conversations interfaces.ConversationRepo,
	sender interfaces.OutboundSender,
	log *logger.Logger,
) *Broadcaster {
	return &Broadcaster{
		broadcasts:    broadcasts,
		subs:          subs,
		bots:          bots,
		conversations: conversations,
		sender:        sender,
		log:           log,
	}
}

// Announce records the broadcast and sends it immediately. An empty
// tier list targets every tier.
func (b *Broadcaster) Announce(ctx context.Context, adminID int, title, message string, tiers []string) (*entities.Broadcast, error) {
	if title == "" || message == "" {
		return nil, fmt.Errorf("%w: title and message are required", ErrValidation)
	}
	if len(tiers) == 0 {
		tiers = []string{entities.TierFree, entities.TierBasic, entities.TierPremium}
	}
	for _, tier := range tiers {
		if !entities.ValidTier(tier) {
			return nil, fmt.Errorf("%w: unknown tier %q", ErrValidation, tier)
		}
	}

	bc := &entities.Broadcast{
		AdminID:     adminID,
		Title:       title,
		Message:     message,
		TargetTiers: tiers,
		Status:      entities.BroadcastPending,
	}
	if err := b.broadcasts.Create(ctx, bc); err != nil {
		return nil, err
	}
	return b.send(ctx, bc)
}

func (b *Broadcaster) send(ctx context.Context, bc *entities.Broadcast) (*entities.Broadcast, error) {
	userIDs, err := b.subs.ListUserIDsByTier(ctx, bc.TargetTiers)
	if err != nil {
		return nil, err
	}

	total, delivered, failed := 0, 0, 0
	for _, userID := range userIDs {
		bots, err := b.bots.ListByUser(ctx, userID)
		if err != nil {
			b.log.Error("broadcast: failed to list bots", err, zap.Int("user_id", userID))
			continue
		}
		for i := range bots {
			bot := &bots[i]
			if bot.Status != entities.BotStatusActive {
				continue
			}
			total++
			sendErr := b.sendToBotUsers(ctx, bot.ID, bc.Message)
			delivery := &entities.BroadcastDelivery{
				BroadcastID: bc.ID,
				BotID:       bot.ID,
				Delivered:   sendErr == nil,
			}
			if sendErr != nil {
				delivery.ErrorMessage = sendErr.Error()
				failed++
			} else {
				delivered++
			}
			if err := b.broadcasts.AddDelivery(ctx, delivery); err != nil {
				b.log.Error("broadcast: failed to record delivery", err, zap.Int("bot_id", bot.ID))
			}
		}
	}

	if err := b.broadcasts.MarkSent(ctx, bc.ID, total, delivered, failed); err != nil {
		return nil, err
	}
	bc.Status = entities.BroadcastSent
	bc.TotalBots = total
	bc.Delivered = delivered
	bc.Failed = failed
	return bc, nil
}

// sendToBotUsers pushes the message to every end user the bot has
// talked to. A bot with no reachable users counts as delivered; a bot
// whose sends all failed reports the last error.
func (b *Broadcaster) sendToBotUsers(ctx context.Context, botID int, text string) error {
	convs, err := b.conversations.ListByBot(ctx, botID)
	if err != nil {
		return err
	}

	sent := 0
	var lastErr error
	for i := range convs {
		// Conversations opened through the web test endpoint carry no
		// platform chat and are skipped.
		chatID, err := strconv.ParseInt(convs[i].ExternalUserID, 10, 64)
		if err != nil {
			continue
		}
		if err := b.sender.SendMessage(ctx, botID, chatID, text); err != nil {
			lastErr = err
			continue
		}
		sent++
	}
	if sent == 0 && lastErr != nil {
		return lastErr
	}
	return nil
}

// History returns the most recent broadcasts.
func (b *Broadcaster) History(ctx context.Context, limit int) ([]entities.Broadcast, error) {
	if limit <= 0 {
		limit = 50
	}
	return b.broadcasts.List(ctx, limit)
}

// Stats returns one broadcast with its per-bot delivery log.
func (b *Broadcaster) Stats(ctx context.Context, id int) (*entities.Broadcast, []entities.BroadcastDelivery, error) {
	bc, err := b.broadcasts.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if bc == nil {
		return nil, nil, fmt.Errorf("%w: broadcast %d", ErrNotFound, id)
	}
	deliveries, err := b.broadcasts.ListDeliveries(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return bc, deliveries, nil
}
