package usecases

import (
	"context"
	"errors"
	"sync"
	"time"

	"botfactory/internal/entities"
	"botfactory/internal/interfaces"
)

// In-memory repository fakes. The subscription fake guards its counter
// with a mutex so the quota reservation keeps its atomicity under the
// concurrency tests.

type fakeUserRepo struct {
	mu     sync.Mutex
	nextID int
	users  map[int]*entities.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[int]*entities.User)}
}

func (f *fakeUserRepo) Create(ctx context.Context, user *entities.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	user.ID = f.nextID
	user.Active = true // column default
	user.CreatedAt = time.Now()
	cp := *user
	f.users[user.ID] = &cp
	return nil
}

func (f *fakeUserRepo) GetByID(ctx context.Context, id int) (*entities.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, nil
}

func (f *fakeUserRepo) GetByUsername(ctx context.Context, username string) (*entities.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeUserRepo) GetByEmail(ctx context.Context, email string) (*entities.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeUserRepo) List(ctx context.Context) ([]entities.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]entities.User, 0, len(f.users))
	for _, u := range f.users {
		out = append(out, *u)
	}
	return out, nil
}

func (f *fakeUserRepo) SetActive(ctx context.Context, id int, active bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.users[id]; ok {
		u.Active = active
	}
	return nil
}

func (f *fakeUserRepo) Count(ctx context.Context) (int, int, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	total, active, admins := 0, 0, 0
	for _, u := range f.users {
		total++
		if u.Active {
			active++
		}
		if u.Role == "admin" {
			admins++
		}
	}
	return total, active, admins, nil
}

type fakeSubscriptionRepo struct {
	mu   sync.Mutex
	subs map[int]*entities.Subscription
}

func newFakeSubscriptionRepo() *fakeSubscriptionRepo {
	return &fakeSubscriptionRepo{subs: make(map[int]*entities.Subscription)}
}

func (f *fakeSubscriptionRepo) Create(ctx context.Context, sub *entities.Subscription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub.ID = len(f.subs) + 1
	sub.PeriodStart = time.Now()
	cp := *sub
	f.subs[sub.UserID] = &cp
	return nil
}

func (f *fakeSubscriptionRepo) GetByUser(ctx context.Context, userID int) (*entities.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.subs[userID]; ok {
		cp := *s
		return &cp, nil
	}
	return nil, nil
}

func (f *fakeSubscriptionRepo) ReserveMessage(ctx context.Context, userID int) (int, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.subs[userID]
	if !ok {
		return 0, false, nil
	}
	if s.MessagesUsed >= s.MaxMessagesPerMonth {
		return 0, false, nil
	}
	s.MessagesUsed++
	return s.MaxMessagesPerMonth - s.MessagesUsed, true, nil
}

func (f *fakeSubscriptionRepo) ReleaseMessage(ctx context.Context, userID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.subs[userID]; ok && s.MessagesUsed > 0 {
		s.MessagesUsed--
	}
	return nil
}

func (f *fakeSubscriptionRepo) ResetPeriod(ctx context.Context, userID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.subs[userID]; ok {
		s.MessagesUsed = 0
		s.PeriodStart = time.Now()
	}
	return nil
}

func (f *fakeSubscriptionRepo) SetPlan(ctx context.Context, userID int, sub *entities.Subscription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.subs[userID]; ok {
		s.Tier = sub.Tier
		s.MaxBots = sub.MaxBots
		s.MaxMessagesPerMonth = sub.MaxMessagesPerMonth
		s.EndDate = sub.EndDate
	}
	return nil
}

func (f *fakeSubscriptionRepo) ListExpired(ctx context.Context, now time.Time) ([]entities.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []entities.Subscription
	for _, s := range f.subs {
		if s.Tier != entities.TierFree && s.EndDate != nil && !s.EndDate.After(now) {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (f *fakeSubscriptionRepo) ListUserIDsByTier(ctx context.Context, tiers []string) ([]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []int
	for _, s := range f.subs {
		for _, tier := range tiers {
			if s.Tier == tier {
				out = append(out, s.UserID)
				break
			}
		}
	}
	return out, nil
}

type fakeBotRepo struct {
	mu     sync.Mutex
	nextID int
	bots   map[int]*entities.Bot
}

func newFakeBotRepo() *fakeBotRepo {
	return &fakeBotRepo{bots: make(map[int]*entities.Bot)}
}

func (f *fakeBotRepo) Create(ctx context.Context, bot *entities.Bot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	bot.ID = f.nextID
	bot.CreatedAt = time.Now()
	cp := *bot
	f.bots[bot.ID] = &cp
	return nil
}

func (f *fakeBotRepo) GetByID(ctx context.Context, id int) (*entities.Bot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if b, ok := f.bots[id]; ok {
		cp := *b
		return &cp, nil
	}
	return nil, nil
}

func (f *fakeBotRepo) ListByUser(ctx context.Context, userID int) ([]entities.Bot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []entities.Bot
	for _, b := range f.bots {
		if b.UserID == userID {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (f *fakeBotRepo) ListByStatus(ctx context.Context, status string) ([]entities.Bot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []entities.Bot
	for _, b := range f.bots {
		if b.Status == status {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (f *fakeBotRepo) CountByUser(ctx context.Context, userID int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, b := range f.bots {
		if b.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (f *fakeBotRepo) Update(ctx context.Context, bot *entities.Bot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.bots[bot.ID]; !ok {
		return errors.New("bot not found")
	}
	cp := *bot
	f.bots[bot.ID] = &cp
	return nil
}

func (f *fakeBotRepo) UpdateStatus(ctx context.Context, id int, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if b, ok := f.bots[id]; ok {
		b.Status = status
	}
	return nil
}

func (f *fakeBotRepo) Delete(ctx context.Context, id int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.bots, id)
	return nil
}

func (f *fakeBotRepo) RecordActivity(ctx context.Context, id int, newUser bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if b, ok := f.bots[id]; ok {
		b.TotalMessages++
		if newUser {
			b.TotalUsers++
		}
		now := time.Now()
		b.LastActivity = &now
	}
	return nil
}

type fakeKnowledgeRepo struct {
	mu      sync.Mutex
	nextID  int
	entries map[int][]entities.KnowledgeEntry
}

func newFakeKnowledgeRepo() *fakeKnowledgeRepo {
	return &fakeKnowledgeRepo{entries: make(map[int][]entities.KnowledgeEntry)}
}

func (f *fakeKnowledgeRepo) Create(ctx context.Context, entry *entities.KnowledgeEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	entry.ID = f.nextID
	entry.CreatedAt = time.Now()
	f.entries[entry.BotID] = append(f.entries[entry.BotID], *entry)
	return nil
}

func (f *fakeKnowledgeRepo) ListByBot(ctx context.Context, botID int) ([]entities.KnowledgeEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]entities.KnowledgeEntry(nil), f.entries[botID]...), nil
}

func (f *fakeKnowledgeRepo) CountByBot(ctx context.Context, botID int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries[botID]), nil
}

func (f *fakeKnowledgeRepo) Delete(ctx context.Context, botID, entryID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	list := f.entries[botID]
	for i, e := range list {
		if e.ID == entryID {
			f.entries[botID] = append(list[:i], list[i+1:]...)
			return nil
		}
	}
	return nil
}

type fakeConversationRepo struct {
	mu       sync.Mutex
	nextID   int
	convs    map[int]*entities.Conversation
	messages map[int][]entities.Message
}

func newFakeConversationRepo() *fakeConversationRepo {
	return &fakeConversationRepo{
		convs:    make(map[int]*entities.Conversation),
		messages: make(map[int][]entities.Message),
	}
}

func (f *fakeConversationRepo) GetOrCreate(ctx context.Context, botID int, externalUserID, externalUsername string) (*entities.Conversation, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.convs {
		if c.BotID == botID && c.ExternalUserID == externalUserID {
			c.LastMessageAt = time.Now()
			cp := *c
			return &cp, false, nil
		}
	}
	f.nextID++
	conv := &entities.Conversation{
		ID:               f.nextID,
		BotID:            botID,
		ExternalUserID:   externalUserID,
		ExternalUsername: externalUsername,
		StartedAt:        time.Now(),
		LastMessageAt:    time.Now(),
	}
	f.convs[conv.ID] = conv
	cp := *conv
	return &cp, true, nil
}

func (f *fakeConversationRepo) ListByBot(ctx context.Context, botID int) ([]entities.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []entities.Conversation
	for _, c := range f.convs {
		if c.BotID == botID {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (f *fakeConversationRepo) GetByID(ctx context.Context, id int) (*entities.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.convs[id]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, nil
}

func (f *fakeConversationRepo) AppendMessage(ctx context.Context, msg *entities.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg.ID = len(f.messages[msg.ConversationID]) + 1
	msg.CreatedAt = time.Now()
	f.messages[msg.ConversationID] = append(f.messages[msg.ConversationID], *msg)
	return nil
}

func (f *fakeConversationRepo) RecentMessages(ctx context.Context, conversationID, limit int) ([]entities.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	all := f.messages[conversationID]
	if len(all) > limit {
		all = all[len(all)-limit:]
	}
	return append([]entities.Message(nil), all...), nil
}

func (f *fakeConversationRepo) ListMessages(ctx context.Context, conversationID int) ([]entities.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]entities.Message(nil), f.messages[conversationID]...), nil
}

func (f *fakeConversationRepo) CountByBot(ctx context.Context, botID int) (int, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	convs, msgs := 0, 0
	for _, c := range f.convs {
		if c.BotID == botID {
			convs++
			msgs += len(f.messages[c.ID])
		}
	}
	return convs, msgs, nil
}

type fakeBroadcastRepo struct {
	mu         sync.Mutex
	nextID     int
	broadcasts map[int]*entities.Broadcast
	deliveries []entities.BroadcastDelivery
}

func newFakeBroadcastRepo() *fakeBroadcastRepo {
	return &fakeBroadcastRepo{broadcasts: make(map[int]*entities.Broadcast)}
}

func (f *fakeBroadcastRepo) Create(ctx context.Context, b *entities.Broadcast) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	b.ID = f.nextID
	b.CreatedAt = time.Now()
	cp := *b
	f.broadcasts[b.ID] = &cp
	return nil
}

func (f *fakeBroadcastRepo) GetByID(ctx context.Context, id int) (*entities.Broadcast, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if b, ok := f.broadcasts[id]; ok {
		cp := *b
		return &cp, nil
	}
	return nil, nil
}

func (f *fakeBroadcastRepo) List(ctx context.Context, limit int) ([]entities.Broadcast, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]entities.Broadcast, 0, len(f.broadcasts))
	for _, b := range f.broadcasts {
		out = append(out, *b)
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeBroadcastRepo) MarkSent(ctx context.Context, id, totalBots, delivered, failed int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if b, ok := f.broadcasts[id]; ok {
		b.Status = entities.BroadcastSent
		b.TotalBots = totalBots
		b.Delivered = delivered
		b.Failed = failed
		now := time.Now()
		b.SentAt = &now
	}
	return nil
}

func (f *fakeBroadcastRepo) AddDelivery(ctx context.Context, d *entities.BroadcastDelivery) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d.ID = len(f.deliveries) + 1
	d.CreatedAt = time.Now()
	f.deliveries = append(f.deliveries, *d)
	return nil
}

func (f *fakeBroadcastRepo) ListDeliveries(ctx context.Context, broadcastID int) ([]entities.BroadcastDelivery, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []entities.BroadcastDelivery
	for _, d := range f.deliveries {
		if d.BroadcastID == broadcastID {
			out = append(out, d)
		}
	}
	return out, nil
}

// fakeSender records outbound pushes per bot and can fail selected bots.
type fakeSender struct {
	mu      sync.Mutex
	sent    map[int][]string
	failBot int
}

func newFakeSender() *fakeSender {
	return &fakeSender{sent: make(map[int][]string)}
}

func (f *fakeSender) SendMessage(ctx context.Context, botID int, chatID int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if botID == f.failBot {
		return errors.New("bot is not running")
	}
	f.sent[botID] = append(f.sent[botID], text)
	return nil
}

func (f *fakeSender) sentTo(botID int) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent[botID]...)
}

// fakeAIClient records the calls it receives and replies with a canned
// string or error.
type fakeAIClient struct {
	mu         sync.Mutex
	calls      int
	lastSystem string
	lastText   string
	lastHist   []entities.Message
	reply      string
	err        error
}

func (f *fakeAIClient) Complete(ctx context.Context, systemPrompt string, history []entities.Message, userMessage string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastSystem = systemPrompt
	f.lastText = userMessage
	f.lastHist = history
	return f.reply, f.err
}

func (f *fakeAIClient) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeDialer struct {
	username    string
	validateErr error
	dialErr     error
}

func (f *fakeDialer) Validate(ctx context.Context, token string) (string, error) {
	if f.validateErr != nil {
		return "", f.validateErr
	}
	return f.username, nil
}

func (f *fakeDialer) Dial(ctx context.Context, token string) (interfaces.PlatformSession, error) {
	if f.dialErr != nil {
		return nil, f.dialErr
	}
	return nil, errors.New("no session in fake")
}

type fakeLifecycle struct {
	mu       sync.Mutex
	running  map[int]bool
	startErr error
}

func newFakeLifecycle() *fakeLifecycle {
	return &fakeLifecycle{running: make(map[int]bool)}
}

func (f *fakeLifecycle) Start(ctx context.Context, bot *entities.Bot) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running[bot.ID] = true
	return nil
}

func (f *fakeLifecycle) Stop(botID int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.running, botID)
}

func (f *fakeLifecycle) Running(botID int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running[botID]
}
