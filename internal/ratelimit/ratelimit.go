// Package ratelimit throttles chat messages per user with a token bucket:
// each user may send a burst of Messages and regains one message every
// Period/Messages.
package ratelimit

import (
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Defaults allow 10 messages per minute.
const (
	DefaultMessages = 10
	DefaultPeriod   = 60 * time.Second
)

type entry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// Limiter is safe for concurrent use.
type Limiter struct {
	messages int
	period   time.Duration
	now      func() time.Time

	mu        sync.Mutex
	users     map[string]*entry
	lastSweep time.Time
}

// Option configures a [Limiter].
type Option func(*Limiter)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// New returns a Limiter allowing messages per period per user. Non-positive
// values select the defaults.
func New(messages int, period time.Duration, opts ...Option) *Limiter {
	if messages <= 0 {
		messages = DefaultMessages
	}
	if period <= 0 {
		period = DefaultPeriod
	}
	l := &Limiter{
		messages: messages,
		period:   period,
		now:      time.Now,
		users:    make(map[string]*entry),
	}
	for _, o := range opts {
		o(l)
	}
	l.lastSweep = l.now()
	return l
}

// Allow consumes one message for user. When the user is over the limit it
// returns false and how long until the next message is allowed; nothing is
// consumed in that case.
func (l *Limiter) Allow(user string) (bool, time.Duration) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.sweepLocked(now)
	e, ok := l.users[user]
	if !ok {
		e = &entry{lim: rate.NewLimiter(rate.Every(l.period/time.Duration(l.messages)), l.messages)}
		l.users[user] = e
	}
	e.lastSeen = now

	r := e.lim.ReserveN(now, 1)
	if d := r.DelayFrom(now); d > 0 {
		r.CancelAt(now)
		return false, d
	}
	return true, 0
}

// Len returns the number of users currently tracked.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.users)
}

// sweepLocked drops users idle for a full period; their bucket would be full
// again, so a fresh limiter is equivalent.
func (l *Limiter) sweepLocked(now time.Time) {
	if now.Sub(l.lastSweep) < l.period {
		return
	}
	l.lastSweep = now
	for k, e := range l.users {
		if now.Sub(e.lastSeen) >= l.period {
			delete(l.users, k)
		}
	}
}

// WaitSeconds rounds d up to whole seconds, at least 1.
func WaitSeconds(d time.Duration) int {
	return max(1, int(math.Ceil(d.Seconds())))
}
