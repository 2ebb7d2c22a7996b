package router

import (
	"log/slog"
	"time"

	tg "github.com/m3rciful/systembot/core/telegram"
	"github.com/m3rciful/systembot/core/telegram/callbacks"
	"github.com/m3rciful/systembot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// CallbackRoute returns a handler that routes every callback through the
// registry by its unique. Registered handlers answer the callback themselves;
// unknown keys go to the registry's fallback, which only answers it.
func CallbackRoute(reg *tg.Registry) tg.Route {
	handler := func(c tele.Context) error {
		start := time.Now()
		cb := c.Callback()
		if cb == nil {
			return nil
		}

		key, _ := callbacks.ParseCallbackData(cb)
		name := "callback." + handlerName(key)
		extras := []slog.Attr{slog.String("cb_key", key)}

		cbHandler, ok := reg.GetCallback(key)
		if !ok || cbHandler == nil {
			extras = append(extras, slog.String("reason", "not_found"))
			return summary{handler: "callback.unknown", start: start, status: "noop", extras: extras}.run(c, func() error {
				if fallback := reg.CallbackNotFound(); fallback != nil {
					return fallback(c)
				}
				return c.Respond()
			})
		}

		return handled(c, name, start, func() error {
			return cbHandler(c)
		}, extras...)
	}
	return tg.Route{
		Endpoint: tele.OnCallback,
		Handler:  middleware.RecoverMiddleware(handler),
	}
}
