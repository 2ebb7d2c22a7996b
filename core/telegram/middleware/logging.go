package middleware

import (
	"log/slog"
	"sync"

	"github.com/m3rciful/systembot/core/logger"
	"github.com/m3rciful/systembot/core/telegram/callbacks"
	tghelpers "github.com/m3rciful/systembot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// seenWindow remembers the last few update ids so an update routed
// through several chains is logged once.
type seenWindow struct {
	mu   sync.Mutex
	ids  []int
	next int
	set  map[int]struct{}
}

func newSeenWindow(size int) *seenWindow {
	return &seenWindow{ids: make([]int, 0, size), set: make(map[int]struct{}, size)}
}

// first reports whether id had not been seen, and records it.
func (w *seenWindow) first(id int) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.set[id]; ok {
		return false
	}
	if len(w.ids) < cap(w.ids) {
		w.ids = append(w.ids, id)
	} else {
		delete(w.set, w.ids[w.next])
		w.ids[w.next] = id
		w.next = (w.next + 1) % len(w.ids)
	}
	w.set[id] = struct{}{}
	return true
}

var received = newSeenWindow(512)

// LoggerMiddleware prepares the update's logging context (rid and ids)
// for everything downstream and logs a sampled "update.received" line.
func LoggerMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		ctx := tghelpers.BuildContext(c)
		upd := c.Update()
		if logger.ShouldSampleDebug() && received.first(upd.ID) {
			logger.Debug(ctx, "tg", "update.received", receiptAttrs(c)...)
		}
		return next(c)
	}
}

func receiptAttrs(c tele.Context) []slog.Attr {
	attrs := []slog.Attr{slog.String("status", "ok")}
	if chat := c.Chat(); chat != nil {
		attrs = append(attrs, slog.String("chat_type", string(chat.Type)))
	}
	if u := c.Sender(); u != nil {
		if u.Username != "" {
			attrs = append(attrs, slog.String("username", logger.SanitizeLimit(u.Username, 64)))
		}
		if u.LanguageCode != "" {
			attrs = append(attrs, slog.String("lang", u.LanguageCode))
		}
	}

	upd := c.Update()
	if upd.Callback != nil {
		key, payload := callbacks.ParseCallbackData(upd.Callback)
		if key != "" {
			attrs = append(attrs, slog.String("cb_key", logger.SanitizeLimit(key, 128)))
		}
		if payload != "" {
			attrs = append(attrs, slog.String("payload", logger.SanitizeLimit(payload, 256)))
		}
		return attrs
	}
	if t := c.Text(); t != "" {
		attrs = append(attrs, slog.String("payload", logger.SanitizeLimit(t, 256)))
	}
	return attrs
}
