// Package chat is the transport-independent chat service: it applies the
// block list and rate limit, keeps the persisted user record and history up
// to date, asks the orchestrator for a reply, and decides whether a sticker
// goes with it. Commands and the admin broadcast live here as well.
//
// Transports translate their events into [Incoming] and [Command] values and
// deliver the returned [Outgoing].
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/mikubot/internal/engine"
	"github.com/MrWong99/mikubot/internal/observe"
	"github.com/MrWong99/mikubot/internal/orchestrator"
	"github.com/MrWong99/mikubot/internal/persona"
	"github.com/MrWong99/mikubot/internal/ratelimit"
	"github.com/MrWong99/mikubot/internal/store"
)

// DefaultHistoryLimit is how many past exchanges are loaded per message.
const DefaultHistoryLimit = 6

// DefaultStickerChance is the probability that a reply carries a sticker.
const DefaultStickerChance = 0.3

// Incoming is one user message.
type Incoming struct {
	store.Profile

	// Text is the message content with any bot mention removed.
	Text string

	// StickerID and StickerName are set when the user sent a sticker.
	StickerID   string
	StickerName string

	// Typing, if set, is called once the message is accepted and before the
	// reply is generated.
	Typing func()
}

// Outgoing is what the transport sends back.
type Outgoing struct {
	// StickerID, if set, is sent before Text.
	StickerID string

	// Text is the reply. Empty means send nothing.
	Text string

	// Ephemeral asks the transport to show the reply only to the caller.
	Ephemeral bool
}

// Sender delivers direct messages outside a conversation.
type Sender interface {
	SendDirect(ctx context.Context, userID, text string) error
}

// Service is safe for concurrent use.
type Service struct {
	store   store.Store
	orch    *orchestrator.Orchestrator
	limiter *ratelimit.Limiter
	metrics *observe.Metrics

	senderMu sync.RWMutex
	sender   Sender

	admins       map[string]bool
	owner        string
	historyLimit int
	pace         time.Duration
	now          func() time.Time

	chance atomic.Uint64 // float64 bits

	turns *turnQueue

	rndMu sync.Mutex
	rnd   *rand.Rand
}

// Option configures a [Service].
type Option func(*Service)

// WithAdmins sets the admin user ids. The owner is always an admin.
func WithAdmins(owner string, admins ...string) Option {
	return func(s *Service) {
		s.owner = owner
		for _, a := range admins {
			s.admins[a] = true
		}
	}
}

// WithRateLimiter replaces the default per-user limiter.
func WithRateLimiter(l *ratelimit.Limiter) Option {
	return func(s *Service) { s.limiter = l }
}

// WithSender sets the direct message sender used by broadcasts.
func WithSender(snd Sender) Option {
	return func(s *Service) { s.sender = snd }
}

// WithMetrics sets the metrics sink. The default is [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithHistoryLimit sets how many past exchanges are loaded per message.
func WithHistoryLimit(n int) Option {
	return func(s *Service) {
		if n >= 0 {
			s.historyLimit = n
		}
	}
}

// WithStickerChance sets the initial sticker probability.
func WithStickerChance(p float64) Option {
	return func(s *Service) { s.SetStickerChance(p) }
}

// WithRandSource seeds the sticker coin flip.
func WithRandSource(src rand.Source) Option {
	return func(s *Service) { s.rnd = rand.New(src) }
}

// WithBroadcastPace sets the minimum gap between broadcast messages.
func WithBroadcastPace(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.pace = d
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New returns a Service.
func New(st store.Store, orch *orchestrator.Orchestrator, opts ...Option) *Service {
	s := &Service{
		store:        st,
		orch:         orch,
		admins:       make(map[string]bool),
		historyLimit: DefaultHistoryLimit,
		pace:         50 * time.Millisecond,
		now:          time.Now,
		rnd:          rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		turns:        newTurnQueue(),
	}
	s.SetStickerChance(DefaultStickerChance)
	for _, o := range opts {
		o(s)
	}
	if s.limiter == nil {
		s.limiter = ratelimit.New(ratelimit.DefaultMessages, ratelimit.DefaultPeriod, ratelimit.WithClock(s.now))
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// SetSender installs the direct message sender. Transports that need the
// Service to exist before they connect call this once they are up.
func (s *Service) SetSender(snd Sender) {
	s.senderMu.Lock()
	defer s.senderMu.Unlock()
	s.sender = snd
}

func (s *Service) directSender() Sender {
	s.senderMu.RLock()
	defer s.senderMu.RUnlock()
	return s.sender
}

// IsAdmin reports whether userID may run admin commands.
func (s *Service) IsAdmin(userID string) bool {
	return userID != "" && (userID == s.owner || s.admins[userID])
}

// SetStickerChance changes the sticker probability, clamped to [0, 1].
func (s *Service) SetStickerChance(p float64) {
	if math.IsNaN(p) {
		p = 0
	}
	s.chance.Store(math.Float64bits(min(max(p, 0), 1)))
}

// StickerChance returns the current sticker probability.
func (s *Service) StickerChance() float64 {
	return math.Float64frombits(s.chance.Load())
}

// HandleMessage answers a chat message. The returned Outgoing is always
// sendable; a non-nil error reports a storage failure that replaced the
// reply with the fallback line. Messages from one user are handled one at a
// time in call order; use [Service.Enqueue] when the caller hands messages
// to separate goroutines.
func (s *Service) HandleMessage(ctx context.Context, in Incoming) (Outgoing, error) {
	return s.Enqueue(in)(ctx)
}

// Enqueue reserves in's place behind the user's earlier messages and returns
// the function that handles it. Call Enqueue in arrival order; the returned
// function may run on any goroutine and must be called exactly once. It
// waits for the user's earlier messages to finish first.
func (s *Service) Enqueue(in Incoming) func(context.Context) (Outgoing, error) {
	t := s.turns.enqueue(in.ID)
	return func(ctx context.Context) (Outgoing, error) {
		if err := t.wait(ctx); err != nil {
			return Outgoing{Text: persona.Fallback}, fmt.Errorf("chat: wait for earlier messages: %w", err)
		}
		defer t.finish()
		return s.handleMessage(ctx, in)
	}
}

// QueuedUsers returns how many users have messages waiting or in progress.
func (s *Service) QueuedUsers() int { return s.turns.pending() }

func (s *Service) handleMessage(ctx context.Context, in Incoming) (Outgoing, error) {
	ctx, span := observe.StartMessageSpan(ctx, in.ID, "")
	defer span.End()
	log := observe.Logger(ctx)

	blocked, err := s.store.IsBlocked(ctx, in.ID)
	if err != nil {
		return s.fail(ctx, "check block list", err)
	}
	if blocked {
		s.metrics.BlockedMessages.Add(ctx, 1)
		log.Info("blocked user attempted to interact", "user", in.ID)
		return Outgoing{Text: persona.Blocked}, nil
	}

	if !s.IsAdmin(in.ID) {
		if ok, wait := s.limiter.Allow(in.ID); !ok {
			s.metrics.RateLimited.Add(ctx, 1)
			log.Warn("rate limit exceeded", "user", in.ID, "wait", wait)
			return Outgoing{Text: persona.RateLimited(ratelimit.WaitSeconds(wait))}, nil
		}
	}

	if err := s.store.UpsertUser(ctx, in.Profile, s.now()); err != nil {
		return s.fail(ctx, "upsert user", err)
	}
	if _, err := s.store.IncrementMessageCount(ctx, in.ID); err != nil {
		return s.fail(ctx, "increment message count", err)
	}
	if in.Typing != nil {
		in.Typing()
	}

	var (
		user    store.User
		history []store.Exchange
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		user, err = s.store.GetUser(gctx, in.ID)
		return err
	})
	g.Go(func() error {
		var err error
		history, err = s.store.RecentExchanges(gctx, in.ID, s.historyLimit)
		return err
	})
	if err := g.Wait(); err != nil {
		return s.fail(ctx, "load user context", err)
	}

	reply := s.orch.Respond(ctx, orchestrator.Request{
		UserKey:        in.ID,
		Text:           in.Text,
		DisplayName:    user.DisplayName(),
		History:        toEngine(history),
		PersistedCount: user.MessageCount,
	})

	if !reply.Failed {
		err := s.store.SaveExchange(ctx, store.Exchange{
			ID:        uuid.NewString(),
			UserID:    in.ID,
			Message:   in.Text,
			Response:  reply.Text,
			Timestamp: s.now(),
		})
		if err != nil {
			log.Error("failed to save exchange", "user", in.ID, "err", err)
		}
	}

	out := Outgoing{Text: reply.Text}
	if s.flip() {
		if id := s.orch.PickMedia(reply.Category); id != "" {
			out.StickerID = id
			s.metrics.StickersSent.Add(ctx, 1)
		}
	}
	return out, nil
}

// HandleSticker answers a sticker sent by a user. Admins get the sticker id
// for the table file; everyone else is ignored.
func (s *Service) HandleSticker(ctx context.Context, in Incoming) Outgoing {
	if in.StickerID == "" || !s.IsAdmin(in.ID) {
		return Outgoing{}
	}
	observe.Logger(ctx).Info("admin queried sticker", "user", in.ID, "sticker", in.StickerID)
	name := in.StickerName
	if name == "" {
		name = "None"
	}
	return Outgoing{Text: fmt.Sprintf("**Sticker Info:**\n"+
		"Sticker ID: `%s`\n"+
		"Name: %s\n\n"+
		"Copy the Sticker ID and add it to `%s`\n\n"+
		"**Example format:**\n"+
		"```json\n{\n  \"greeting\": [\"%s\"],\n  \"happy\": [\"%s\"]\n}\n```",
		in.StickerID, name, s.orch.MediaPath(), in.StickerID, in.StickerID)}
}

func (s *Service) fail(ctx context.Context, action string, err error) (Outgoing, error) {
	err = fmt.Errorf("chat: %s: %w", action, err)
	if errors.Is(err, context.Canceled) {
		slog.Debug("message handling cancelled", "err", err)
	} else {
		observe.Logger(ctx).Error("message handling failed", "err", err)
	}
	return Outgoing{Text: persona.Fallback}, err
}

func (s *Service) flip() bool {
	p := s.StickerChance()
	if p <= 0 {
		return false
	}
	s.rndMu.Lock()
	defer s.rndMu.Unlock()
	return s.rnd.Float64() < p
}

func toEngine(history []store.Exchange) []engine.Exchange {
	out := make([]engine.Exchange, len(history))
	for i, e := range history {
		out[i] = engine.Exchange{Message: e.Message, Response: e.Response, Timestamp: e.Timestamp}
	}
	return out
}
