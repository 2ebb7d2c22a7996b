package middleware

import (
	"log/slog"
	"sync"
	"time"

	"github.com/m3rciful/systembot/core/logger"
	tghelpers "github.com/m3rciful/systembot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// RateLimitOptions configures RateLimitMiddleware.
type RateLimitOptions struct {
	// Interval is the minimum gap between two updates of one user.
	Interval time.Duration
	// Exclude holds update kinds ("callback", "message") never limited.
	Exclude   map[string]struct{}
	OnLimited tele.HandlerFunc
	// Now overrides the clock in tests.
	Now func() time.Time
}

// floodGuard remembers when each user was last let through.
type floodGuard struct {
	interval time.Duration
	mu       sync.Mutex
	last     map[int64]time.Time
}

// admit reports whether user may pass at t and, if so, records t.
// Entries older than the interval are dropped on the way.
func (g *floodGuard) admit(user int64, t time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	for id, at := range g.last {
		if t.Sub(at) >= g.interval {
			delete(g.last, id)
		}
	}
	if _, recent := g.last[user]; recent {
		return false
	}
	g.last[user] = t
	return true
}

// RateLimitMiddleware drops updates a user sends faster than
// opts.Interval. It guards against floods only; command cooldowns live in
// the flows.
func RateLimitMiddleware(opts RateLimitOptions) tele.MiddlewareFunc {
	guard := &floodGuard{interval: opts.Interval, last: map[int64]time.Time{}}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			user := c.Sender()
			kind := updateKind(c.Update())
			_, excluded := opts.Exclude[kind]
			if user == nil || opts.Interval <= 0 || excluded || guard.admit(user.ID, now()) {
				return next(c)
			}
			logger.Warn(tghelpers.BuildContext(c), "tg", "rate_limit",
				slog.String("status", "rate_limited"),
				slog.String("outcome", "rate_limited"),
				slog.String("update", kind),
			)
			if opts.OnLimited != nil {
				return opts.OnLimited(c)
			}
			return nil
		}
	}
}

func updateKind(upd tele.Update) string {
	if upd.Callback != nil {
		return "callback"
	}
	if upd.Message != nil {
		return "message"
	}
	return "other"
}
