package infrastructure

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"botfactory/internal/entities"
	"botfactory/internal/interfaces"
	"botfactory/pkg/logger"
)

// Runner states
type BotState string

const (
	StateStopped   BotState = "stopped"
	StateStarting  BotState = "starting"
	StateListening BotState = "listening"
	StateStopping  BotState = "stopping"
	StateCrashed   BotState = "crashed"
)

// botRunner is the receive loop for one active bot. Events are processed
// sequentially; a stop request takes effect only between events, so the
// in-flight event always completes before the loop exits.
type botRunner struct {
	botID   int
	session interfaces.PlatformSession

	mu    sync.Mutex
	state BotState

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

func (r *botRunner) setState(s BotState) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
}

func (r *botRunner) State() BotState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *botRunner) setSession(s interfaces.PlatformSession) {
	r.mu.Lock()
	r.session = s
	r.mu.Unlock()
}

func (r *botRunner) getSession() interfaces.PlatformSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session
}

func (r *botRunner) signalStop() {
	r.stopOnce.Do(func() { close(r.stop) })
}

// BotRuntime owns every running bot loop. It is an explicit registry
// handed to whoever needs to start or stop bots, never a package global.
type BotRuntime struct {
	mu      sync.RWMutex
	runners map[int]*botRunner

	dialer       interfaces.PlatformDialer
	responder    interfaces.Responder
	limiter      *MessageRateLimiter
	log          *logger.Logger
	eventTimeout time.Duration
}

func NewBotRuntime(dialer interfaces.PlatformDialer, responder interfaces.Responder, limiter *MessageRateLimiter, log *logger.Logger, eventTimeout time.Duration) *BotRuntime {
	return &BotRuntime{
		runners:      make(map[int]*botRunner),
		dialer:       dialer,
		responder:    responder,
		limiter:      limiter,
		log:          log,
		eventTimeout: eventTimeout,
	}
}

// Start dials the platform with the bot's credential and opens its
// receive loop. On a dial failure no runner is left behind and the error
// is returned to the caller.
func (rt *BotRuntime) Start(ctx context.Context, bot *entities.Bot) error {
	rt.mu.Lock()
	if existing, ok := rt.runners[bot.ID]; ok {
		st := existing.State()
		if st == StateStarting || st == StateListening {
			rt.mu.Unlock()
			return nil
		}
	}

	runner := &botRunner{
		botID: bot.ID,
		state: StateStarting,
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	rt.runners[bot.ID] = runner
	rt.mu.Unlock()

	session, err := rt.dialer.Dial(ctx, bot.TelegramToken)
	if err != nil {
		runner.setState(StateCrashed)
		close(runner.done)
		rt.remove(runner)
		return fmt.Errorf("start bot %d: %w", bot.ID, err)
	}
	runner.setSession(session)

	go rt.listen(runner, bot)

	return nil
}

// listen is the per-bot receive loop.
func (rt *BotRuntime) listen(runner *botRunner, bot *entities.Bot) {
	defer close(runner.done)

	runner.setState(StateListening)
	rt.log.Info("bot listening",
		zap.Int("bot_id", bot.ID),
		zap.String("bot_username", runner.session.BotUsername()))

	for {
		select {
		case <-runner.stop:
			runner.setState(StateStopping)
			runner.session.Close()
			runner.setState(StateStopped)
			rt.remove(runner)
			rt.log.Info("bot stopped", zap.Int("bot_id", bot.ID))
			return
		case ev, ok := <-runner.session.Updates():
			if !ok {
				// Update stream died underneath us. The supervisor will
				// notice the dead loop and decide whether to restart.
				runner.setState(StateCrashed)
				rt.remove(runner)
				rt.log.Warn("bot update stream closed", zap.Int("bot_id", bot.ID))
				return
			}
			ev.BotID = bot.ID
			rt.handleEvent(runner, bot, ev)
		}
	}
}

// handleEvent processes one inbound event. Failures are logged and
// swallowed; the listener never stops because of a single bad event.
func (rt *BotRuntime) handleEvent(runner *botRunner, bot *entities.Bot, ev entities.InboundEvent) {
	if rt.limiter != nil && !rt.limiter.Allow(ev.ChatID) {
		rt.log.Debug("throttled inbound message",
			zap.Int("bot_id", bot.ID), zap.Int64("chat_id", ev.ChatID))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), rt.eventTimeout)
	defer cancel()

	var reply string
	switch command(ev.Text) {
	case "start":
		reply = welcomeMessage(bot)
	case "help":
		reply = helpMessage(bot)
	default:
		var err error
		reply, err = rt.responder.Respond(ctx, ev)
		if err != nil {
			rt.log.Error("responder failed", err,
				zap.Int("bot_id", bot.ID), zap.Int64("chat_id", ev.ChatID))
			return
		}
	}

	if err := runner.session.Send(ctx, ev.ChatID, reply); err != nil {
		rt.log.Error("failed to send reply", err,
			zap.Int("bot_id", bot.ID), zap.Int64("chat_id", ev.ChatID))
	}
}

// Stop signals the bot's loop and waits for the in-flight event to finish.
// It is a no-op for bots that are not running.
func (rt *BotRuntime) Stop(botID int) {
	rt.mu.RLock()
	runner, ok := rt.runners[botID]
	rt.mu.RUnlock()
	if !ok {
		return
	}

	runner.signalStop()
	<-runner.done
}

// StopAll stops every running bot. Used on shutdown.
func (rt *BotRuntime) StopAll() {
	rt.mu.RLock()
	runners := make([]*botRunner, 0, len(rt.runners))
	for _, r := range rt.runners {
		runners = append(runners, r)
	}
	rt.mu.RUnlock()

	for _, r := range runners {
		r.signalStop()
	}
	for _, r := range runners {
		<-r.done
	}
}

// Running reports whether the bot currently has a live receive loop.
func (rt *BotRuntime) Running(botID int) bool {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	runner, ok := rt.runners[botID]
	if !ok {
		return false
	}
	st := runner.State()
	return st == StateStarting || st == StateListening
}

// Status returns the runner state and connected platform username.
func (rt *BotRuntime) Status(botID int) (BotState, string) {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	runner, ok := rt.runners[botID]
	if !ok {
		return StateStopped, ""
	}
	username := ""
	if s := runner.getSession(); s != nil {
		username = s.BotUsername()
	}
	return runner.State(), username
}

// SendMessage pushes an outbound message through a bot's live session,
// outside the normal request/reply flow. It fails when the bot has no
// running loop.
func (rt *BotRuntime) SendMessage(ctx context.Context, botID int, chatID int64, text string) error {
	rt.mu.RLock()
	runner, ok := rt.runners[botID]
	rt.mu.RUnlock()
	if !ok {
		return fmt.Errorf("bot %d is not running", botID)
	}
	session := runner.getSession()
	if session == nil {
		return fmt.Errorf("bot %d has no live session", botID)
	}
	return session.Send(ctx, chatID, text)
}

// remove drops a runner from the registry only while it is still the
// registered one. A runner that was replaced during its own shutdown
// must not evict its replacement.
func (rt *BotRuntime) remove(runner *botRunner) {
	rt.mu.Lock()
	if rt.runners[runner.botID] == runner {
		delete(rt.runners, runner.botID)
	}
	rt.mu.Unlock()
}

func command(text string) string {
	if !strings.HasPrefix(text, "/") {
		return ""
	}
	cmd := strings.TrimPrefix(strings.Fields(text)[0], "/")
	if i := strings.Index(cmd, "@"); i >= 0 {
		cmd = cmd[:i]
	}
	return cmd
}

func welcomeMessage(bot *entities.Bot) string {
	msg := fmt.Sprintf("Hello! I'm %s. How can I help you?", bot.Name)
	if bot.Description != "" {
		msg += "\n\n" + bot.Description
	}
	return msg + "\n\nSend me a message and I'll respond. Use /help for more."
}

func helpMessage(bot *entities.Bot) string {
	return fmt.Sprintf("%s - Help\n\nSend me a regular text message and I will respond.\n/start - Restart the conversation\n/help - Show this message", bot.Name)
}
