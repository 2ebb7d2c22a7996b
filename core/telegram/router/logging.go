package router

import (
	"errors"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/m3rciful/systembot/core/logger"
	tghelpers "github.com/m3rciful/systembot/core/telegram/helpers"
	"github.com/m3rciful/systembot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// OutcomeKey is the tele.Context key a handler may set to report how its
// update ended when that differs from what its returned error implies.
const OutcomeKey = "outcome"

// summary is the "handler.handled" line written once per routed update.
type summary struct {
	handler string
	start   time.Time
	status  string
	outcome string
	extras  []slog.Attr
}

func (s summary) run(c tele.Context, fn func() error) error {
	tghelpers.WithHandler(c, s.handler)
	err := fn()
	s.log(c, err)
	return err
}

func (s summary) log(c tele.Context, err error) {
	ctx := tghelpers.WithHandler(c, s.handler)
	fallback := "ok"
	if err != nil {
		fallback = "fail"
	}
	status := firstNonEmpty(s.status, fallback)
	reported, _ := c.Get(OutcomeKey).(string)
	outcome := firstNonEmpty(s.outcome, reported, fallback)

	msgs, kb := middleware.GetCounters(c)
	attrs := append([]slog.Attr{
		slog.String("status", status),
		slog.String("outcome", outcome),
		slog.Int("messages", msgs),
		slog.Bool("kb", kb),
		slog.Int64("duration_ms", logger.RoundMS(time.Since(s.start)).Milliseconds()),
	}, s.extras...)
	if err != nil {
		attrs = append(attrs,
			logger.Err(err),
			slog.String("err_code", errorCode(err)),
			slog.String("cause", s.handler),
		)
	}
	logger.Info(ctx, "tg", "handler.handled", attrs...)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func handled(c tele.Context, handler string, start time.Time, fn func() error, extras ...slog.Attr) error {
	return summary{handler: handler, start: start, extras: extras}.run(c, fn)
}

func skipped(c tele.Context, handler string, start time.Time) {
	summary{handler: handler, start: start, status: "skip"}.log(c, nil)
}

// handlerName turns a route key into a log label: "/Check Systems" is
// "check_systems".
func handlerName(key string) string {
	key = strings.TrimPrefix(strings.TrimSpace(key), "/")
	if key == "" {
		return "unknown"
	}
	return strings.ToLower(strings.ReplaceAll(key, " ", "_"))
}

// errorCode is the upper snake label of err: its Code() when the chain
// has one, otherwise the concrete type name.
func errorCode(err error) string {
	var coded interface{ Code() string }
	if errors.As(err, &coded) {
		if code := strings.TrimSpace(coded.Code()); code != "" {
			return strings.ToUpper(strings.ReplaceAll(code, " ", "_"))
		}
	}
	t := reflect.TypeOf(err)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.Name() == "" {
		return "UNKNOWN_ERROR"
	}
	return strings.ToUpper(t.Name())
}
