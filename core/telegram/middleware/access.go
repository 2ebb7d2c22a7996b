package middleware

import (
	"log/slog"
	"strings"

	"github.com/m3rciful/systembot/core/logger"
	tghelpers "github.com/m3rciful/systembot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// AllowListOptions defines who may talk to the bot.
type AllowListOptions struct {
	Users []int64
	// OnReject answers commands and button presses from unknown users.
	// Plain messages from them are dropped silently.
	OnReject tele.HandlerFunc
}

// AllowListMiddleware lets updates through only for users listed in opts.Users.
// An empty list rejects everyone.
func AllowListMiddleware(opts AllowListOptions) tele.MiddlewareFunc {
	allowed := make(map[int64]struct{}, len(opts.Users))
	for _, id := range opts.Users {
		allowed[id] = struct{}{}
	}
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			user := c.Sender()
			if user != nil {
				if _, ok := allowed[user.ID]; ok {
					return next(c)
				}
			}

			kind := rejectedKind(c)
			attrs := []slog.Attr{
				slog.String("status", "skip"),
				slog.String("outcome", "rejected"),
				slog.String("update", kind),
			}
			if user != nil {
				attrs = append(attrs, slog.Int64("user_id", user.ID))
			}
			logger.LogEvent(tghelpers.BuildContext(c), logger.TG, slog.LevelWarn, "access.denied", attrs...)

			if opts.OnReject == nil || (kind != "command" && kind != "callback") {
				return nil
			}
			return opts.OnReject(c)
		}
	}
}

func rejectedKind(c tele.Context) string {
	upd := c.Update()
	kind := updateKind(upd)
	if kind == "message" && strings.HasPrefix(upd.Message.Text, "/") {
		return "command"
	}
	return kind
}
