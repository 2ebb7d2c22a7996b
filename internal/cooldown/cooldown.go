// Package cooldown enforces a fixed per-(user, operation) window between
// successful command runs.
package cooldown

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/m3rciful/systembot/core/logger"
)

// DefaultWindow is the cooldown applied after a successful operation.
const DefaultWindow = 7 * time.Second

const sweepInterval = 30 * time.Second

type key struct {
	user int64
	op   string
}

// Limiter tracks when each (user, operation) pair may run again.
type Limiter struct {
	window time.Duration
	now    func() time.Time

	mu      sync.Mutex
	expires map[key]time.Time

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// Option customises a Limiter.
type Option func(*Limiter)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		if now != nil {
			l.now = now
		}
	}
}

// WithoutSweeper disables the background sweep goroutine.
func WithoutSweeper() Option {
	return func(l *Limiter) { l.stop = nil }
}

// New creates a limiter with the given window (DefaultWindow when <= 0) and
// starts the periodic sweep unless disabled.
func New(window time.Duration, opts ...Option) *Limiter {
	if window <= 0 {
		window = DefaultWindow
	}
	l := &Limiter{
		window:  window,
		now:     time.Now,
		expires: make(map[key]time.Time),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.stop != nil {
		go l.sweepLoop()
	} else {
		close(l.done)
	}
	return l
}

// Window returns the configured cooldown length.
func (l *Limiter) Window() time.Duration { return l.window }

// Remaining reports whether user is cooling down for op and, if so, the
// whole seconds left (rounded up). Expired entries are dropped on lookup.
func (l *Limiter) Remaining(user int64, op string) (int, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	k := key{user, op}
	exp, ok := l.expires[k]
	if !ok {
		return 0, false
	}
	left := exp.Sub(l.now())
	if left <= 0 {
		delete(l.expires, k)
		return 0, false
	}
	return int(math.Ceil(left.Seconds())), true
}

// Set arms the window for (user, op) starting now.
func (l *Limiter) Set(user int64, op string) {
	l.mu.Lock()
	l.expires[key{user, op}] = l.now().Add(l.window)
	l.mu.Unlock()
}

// Clear removes the given operations for user, or every entry of user when
// no operation is named.
func (l *Limiter) Clear(user int64, ops ...string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(ops) > 0 {
		for _, op := range ops {
			delete(l.expires, key{user, op})
		}
		return
	}
	for k := range l.expires {
		if k.user == user {
			delete(l.expires, k)
		}
	}
}

// Len returns the number of tracked entries, expired ones included.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.expires)
}

// Sweep drops every expired entry and returns how many were removed.
func (l *Limiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	n := 0
	for k, exp := range l.expires {
		if !now.Before(exp) {
			delete(l.expires, k)
			n++
		}
	}
	return n
}

func (l *Limiter) sweepLoop() {
	defer close(l.done)
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			if n := l.Sweep(); n > 0 {
				logger.Debug(context.Background(), "cooldown", "sweep", slog.Int("count", n))
			}
		}
	}
}

// Close stops the sweeper and waits for it to exit. It is safe to call twice.
func (l *Limiter) Close() {
	l.once.Do(func() {
		if l.stop != nil {
			close(l.stop)
		}
		<-l.done
	})
}
