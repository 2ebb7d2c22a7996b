package telegram

import (
	"strings"
	"time"

	coreconfig "github.com/m3rciful/systembot/core/config"
	"github.com/m3rciful/systembot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// MiddlewareHooks lets the bot answer updates the shared chain stops.
type MiddlewareHooks struct {
	// OnRejected answers commands and callbacks from users outside the allow-list.
	OnRejected tele.HandlerFunc
	// OnLimited answers updates dropped by the flood guard.
	OnLimited tele.HandlerFunc
}

// DefaultMiddlewares builds the shared middleware chain for bots.
// Every update is logged before the allow-list sees it, so rejected users
// still leave a receipt line.
func DefaultMiddlewares(cfg *coreconfig.Config, hooks MiddlewareHooks) []Middleware {
	mws := []Middleware{
		{Name: "recover", Use: middleware.RecoverMiddleware},
		{Name: "logger", Use: middleware.LoggerMiddleware},
		{Name: "metrics", Use: middleware.MessageMetricsMiddleware},
	}
	if cfg == nil {
		return mws
	}

	mws = append(mws, Middleware{
		Name: "allow_list",
		Use: middleware.AllowListMiddleware(middleware.AllowListOptions{
			Users:    cfg.Bot.AuthorizedUsers,
			OnReject: hooks.OnRejected,
		}),
	})

	interval := time.Duration(cfg.RateLimit.IntervalMS) * time.Millisecond
	if interval > 0 {
		ex := make(map[string]struct{}, len(cfg.RateLimit.ExcludeUpdates))
		for _, t := range cfg.RateLimit.ExcludeUpdates {
			ex[strings.ToLower(t)] = struct{}{}
		}
		mws = append(mws, Middleware{
			Name: "rate_limit",
			Use: middleware.RateLimitMiddleware(middleware.RateLimitOptions{
				Interval:  interval,
				Exclude:   ex,
				OnLimited: hooks.OnLimited,
			}),
		})
	}

	return mws
}
