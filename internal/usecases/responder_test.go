package usecases

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"botfactory/internal/entities"
	"botfactory/pkg/logger"
)

type responderFixture struct {
	responder *Responder
	users     *fakeUserRepo
	subs      *fakeSubscriptionRepo
	bots      *fakeBotRepo
	knowledge *fakeKnowledgeRepo
	convs     *fakeConversationRepo
	ai        *fakeAIClient
	bot       *entities.Bot
	owner     *entities.User
}

func newResponderFixture(t *testing.T) *responderFixture {
	t.Helper()
	ctx := context.Background()

	users := newFakeUserRepo()
	subs := newFakeSubscriptionRepo()
	bots := newFakeBotRepo()
	knowledge := newFakeKnowledgeRepo()
	convs := newFakeConversationRepo()
	ai := &fakeAIClient{reply: "Hello there!"}
	ledger := NewSubscriptionLedger(subs, bots)

	owner := &entities.User{Username: "owner"}
	require.NoError(t, users.Create(ctx, owner))
	require.NoError(t, ledger.CreateDefault(ctx, owner.ID))

	bot := &entities.Bot{
		UserID:       owner.ID,
		Name:         "Shop Assistant",
		Description:  "Answers questions about orders",
		SystemPrompt: "You are a friendly shop assistant.",
		Status:       entities.BotStatusActive,
	}
	require.NoError(t, bots.Create(ctx, bot))

	responder := NewResponder(bots, users, knowledge, convs, ledger, ai, logger.NewNop(), 12000, 10)
	return &responderFixture{
		responder: responder,
		users:     users,
		subs:      subs,
		bots:      bots,
		knowledge: knowledge,
		convs:     convs,
		ai:        ai,
		bot:       bot,
		owner:     owner,
	}
}

func (f *responderFixture) event(text string) entities.InboundEvent {
	return entities.InboundEvent{
		BotID:            f.bot.ID,
		ChatID:           1001,
		ExternalUserID:   "1001",
		ExternalUsername: "alice",
		Text:             text,
	}
}

func TestRespondHappyPath(t *testing.T) {
	f := newResponderFixture(t)
	ctx := context.Background()

	reply, err := f.responder.Respond(ctx, f.event("Where is my order?"))
	require.NoError(t, err)
	assert.Equal(t, "Hello there!", reply)
	assert.Equal(t, 1, f.ai.callCount())

	// Persona appears verbatim in the system prompt
	assert.True(t, strings.HasPrefix(f.ai.lastSystem, "You are a friendly shop assistant."))
	assert.Contains(t, f.ai.lastSystem, "Shop Assistant")

	// Quota consumed, both turns persisted, analytics recorded
	sub, _ := f.subs.GetByUser(ctx, f.owner.ID)
	assert.Equal(t, 1, sub.MessagesUsed)

	conv, created, _ := f.convs.GetOrCreate(ctx, f.bot.ID, "1001", "alice")
	assert.False(t, created)
	msgs, _ := f.convs.ListMessages(ctx, conv.ID)
	require.Len(t, msgs, 2)
	assert.Equal(t, entities.DirectionInbound, msgs[0].Direction)
	assert.Equal(t, "Where is my order?", msgs[0].Body)
	assert.Equal(t, entities.DirectionOutbound, msgs[1].Direction)
	assert.Equal(t, "Hello there!", msgs[1].Body)

	got, _ := f.bots.GetByID(ctx, f.bot.ID)
	assert.Equal(t, 1, got.TotalMessages)
	assert.Equal(t, 1, got.TotalUsers)
}

func TestRespondUnknownBot(t *testing.T) {
	f := newResponderFixture(t)

	ev := f.event("hi")
	ev.BotID = 999
	_, err := f.responder.Respond(context.Background(), ev)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Zero(t, f.ai.callCount())
}

func TestRespondInactiveBot(t *testing.T) {
	f := newResponderFixture(t)
	ctx := context.Background()
	require.NoError(t, f.bots.UpdateStatus(ctx, f.bot.ID, entities.BotStatusStopped))

	_, err := f.responder.Respond(ctx, f.event("hi"))
	assert.ErrorIs(t, err, ErrBotInactive)
	assert.Zero(t, f.ai.callCount())
}

func TestRespondDisabledOwner(t *testing.T) {
	f := newResponderFixture(t)
	ctx := context.Background()
	require.NoError(t, f.users.SetActive(ctx, f.owner.ID, false))

	_, err := f.responder.Respond(ctx, f.event("hi"))
	assert.ErrorIs(t, err, ErrAccountLocked)
	assert.Zero(t, f.ai.callCount())
}

// When the quota is exhausted the end user gets a fixed notice and the
// AI collaborator is never called.
func TestRespondQuotaExceededSkipsAI(t *testing.T) {
	f := newResponderFixture(t)
	ctx := context.Background()

	sub, _ := f.subs.GetByUser(ctx, f.owner.ID)
	for i := 0; i < sub.MaxMessagesPerMonth; i++ {
		_, _, err := f.subs.ReserveMessage(ctx, f.owner.ID)
		require.NoError(t, err)
	}

	reply, err := f.responder.Respond(ctx, f.event("hi"))
	require.NoError(t, err)
	assert.Equal(t, QuotaExceededNotice, reply)
	assert.Zero(t, f.ai.callCount())
}

// An AI failure yields the fallback reply and hands the reserved message
// back to the quota.
func TestRespondAIFailureFallsBackAndReleases(t *testing.T) {
	f := newResponderFixture(t)
	f.ai.err = errors.New("upstream 503")
	ctx := context.Background()

	reply, err := f.responder.Respond(ctx, f.event("hi"))
	require.NoError(t, err)
	assert.Equal(t, FallbackNotice, reply)

	sub, _ := f.subs.GetByUser(ctx, f.owner.ID)
	assert.Zero(t, sub.MessagesUsed)
}

func TestRespondEmptyAIReplyFallsBack(t *testing.T) {
	f := newResponderFixture(t)
	f.ai.reply = "   "

	reply, err := f.responder.Respond(context.Background(), f.event("hi"))
	require.NoError(t, err)
	assert.Equal(t, FallbackNotice, reply)
}

func TestRespondPassesHistoryWindow(t *testing.T) {
	f := newResponderFixture(t)
	ctx := context.Background()

	for i := 0; i < 8; i++ {
		_, err := f.responder.Respond(ctx, f.event("message"))
		require.NoError(t, err)
	}

	_, err := f.responder.Respond(ctx, f.event("latest"))
	require.NoError(t, err)
	// 8 exchanges = 16 stored messages, history window is 10
	assert.Len(t, f.ai.lastHist, 10)
}

func TestAssembleContextIncludesKnowledge(t *testing.T) {
	f := newResponderFixture(t)
	ctx := context.Background()

	require.NoError(t, f.knowledge.Create(ctx, &entities.KnowledgeEntry{
		BotID: f.bot.ID, Title: "Shipping", Content: "Orders ship within 2 business days.",
	}))

	_, err := f.responder.Respond(ctx, f.event("How fast do you ship?"))
	require.NoError(t, err)
	assert.Contains(t, f.ai.lastSystem, "Knowledge Base:")
	assert.Contains(t, f.ai.lastSystem, "Orders ship within 2 business days.")
}

// The persona survives intact even when the knowledge base and history
// blow past the context bound; the overflow is trimmed instead.
func TestAssembleContextBounded(t *testing.T) {
	f := newResponderFixture(t)
	small := NewResponder(f.bots, f.users, f.knowledge, f.convs, NewSubscriptionLedger(f.subs, f.bots), f.ai, logger.NewNop(), 500, 10)

	entries := []entities.KnowledgeEntry{
		{Title: "A", Content: strings.Repeat("x", 1000)},
		{Title: "B", Content: strings.Repeat("y", 1000)},
	}
	history := []entities.Message{
		{Direction: entities.DirectionInbound, Body: strings.Repeat("h", 2000)},
	}

	system, kept := small.AssembleContext(f.bot, entries, history)
	assert.True(t, strings.HasPrefix(system, f.bot.SystemPrompt))
	assert.LessOrEqual(t, len(system), 500)
	assert.Empty(t, kept)
}

// The fixed framing around the knowledge section counts against the
// bound too; a single oversized entry must not push the prompt past it.
func TestAssembleContextChargesKnowledgeFraming(t *testing.T) {
	f := newResponderFixture(t)
	small := NewResponder(f.bots, f.users, f.knowledge, f.convs, NewSubscriptionLedger(f.subs, f.bots), f.ai, logger.NewNop(), 300, 10)

	entries := []entities.KnowledgeEntry{
		{Title: "Catalog", Content: strings.Repeat("z", 5000)},
	}

	system, _ := small.AssembleContext(f.bot, entries, nil)
	assert.LessOrEqual(t, len(system), 300)
	if strings.Contains(system, "Knowledge Base:") {
		assert.Contains(t, system, "be honest about it.")
	}
}

// Trimming a knowledge entry must cut on a rune boundary, never in the
// middle of a multi-byte character.
func TestAssembleContextTrimsOnRuneBoundary(t *testing.T) {
	f := newResponderFixture(t)

	for max := 260; max <= 420; max += 7 {
		small := NewResponder(f.bots, f.users, f.knowledge, f.convs, NewSubscriptionLedger(f.subs, f.bots), f.ai, logger.NewNop(), max, 10)
		entries := []entities.KnowledgeEntry{
			{Title: "FAQ", Content: strings.Repeat("日本語テキスト", 200)},
		}
		system, _ := small.AssembleContext(f.bot, entries, nil)
		assert.LessOrEqual(t, len(system), max)
		assert.True(t, utf8.ValidString(system), "invalid UTF-8 at max=%d", max)
	}
}
