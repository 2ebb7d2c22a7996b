package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	coreconfig "github.com/m3rciful/systembot/core/config"
	"github.com/m3rciful/systembot/core/logger"
	tghelpers "github.com/m3rciful/systembot/core/telegram/helpers"
	tgsender "github.com/m3rciful/systembot/core/telegram/sender"

	tele "gopkg.in/telebot.v4"
)

const stopTimeout = 10 * time.Second

var errNilConfig = errors.New("telegram: nil config")

// Middleware is a named global middleware installed with bot.Use.
type Middleware struct {
	Name string
	Use  func(next tele.HandlerFunc) tele.HandlerFunc
}

// Route binds a handler to a telebot endpoint: a command, a
// tele.OnXxx constant or a button.
type Route struct {
	Endpoint any
	Handler  tele.HandlerFunc
}

// RunOptions configures RunTelegram.
type RunOptions struct {
	Config   *coreconfig.Config
	Registry *Registry

	// DispatcherOptions size the dispatcher created when Dispatcher is nil.
	DispatcherOptions tgsender.Options
	Dispatcher        *tgsender.Dispatcher

	Middlewares []Middleware
	Routes      []Route

	// Wire runs once the bot exists and returns routes that need it, such as
	// handlers built around a messenger on rt.Bot.
	Wire func(ctx context.Context, rt Runtime) ([]Route, error)

	OnStart func(ctx context.Context, rt Runtime) error
	// OnStop gets a fresh context bounded by stopTimeout.
	OnStop func(ctx context.Context, rt Runtime) error
}

// Runtime is what lifecycle hooks see of the running bot.
type Runtime struct {
	Bot        *tele.Bot
	Dispatcher *tgsender.Dispatcher
	Registry   *Registry
}

// RunTelegram builds the bot, mounts middlewares and routes, and serves
// updates until ctx ends. Cancellation is a clean stop.
func RunTelegram(ctx context.Context, opts RunOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.Config == nil {
		return errNilConfig
	}

	rt, poll, err := openSession(opts)
	if err != nil {
		return err
	}
	defer rt.release()
	announce(rt.Bot, poll)

	if err := rt.mount(ctx, opts); err != nil {
		return err
	}
	SetupCommands(rt.Bot, rt.Registry)

	if opts.OnStart != nil {
		if err := opts.OnStart(ctx, rt.Runtime); err != nil {
			return err
		}
	}

	serveErr := rt.serve(ctx)
	if opts.OnStop != nil {
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), stopTimeout)
		defer cancel()
		if err := opts.OnStop(stopCtx, rt.Runtime); err != nil {
			return err
		}
	}
	if errors.Is(serveErr, context.Canceled) {
		return nil
	}
	return serveErr
}

type session struct {
	Runtime
	ownsDispatcher bool
}

func openSession(opts RunOptions) (*session, PollerOptions, error) {
	cfg := opts.Config
	poll := PollerOptions{
		RunMode:                cfg.Telegram.RunMode,
		LongPollTimeoutSeconds: cfg.Telegram.LongPollTimeoutSeconds,
		Webhook: WebhookOptions{
			Listen: cfg.Webhook.Listen,
			Port:   cfg.Webhook.Port,
			URL:    cfg.Webhook.URL,
		},
	}
	bot, err := tele.NewBot(tele.Settings{
		Token:   cfg.Telegram.Token,
		Poller:  BuildPoller(poll),
		Client:  BuildHTTPClient(poll.PollTimeout()),
		OnError: logHandlerError,
	})
	if err != nil {
		return nil, poll, fmt.Errorf("telegram: create bot: %w", err)
	}

	rt := &session{Runtime: Runtime{Bot: bot, Dispatcher: opts.Dispatcher, Registry: opts.Registry}}
	if rt.Registry == nil {
		rt.Registry = NewRegistry()
	}
	if rt.Dispatcher == nil {
		rt.Dispatcher = tgsender.NewDispatcher(opts.DispatcherOptions)
		rt.ownsDispatcher = true
	}
	tghelpers.SetDispatcher(rt.Dispatcher)
	return rt, poll, nil
}

func (rt *session) release() {
	tghelpers.SetDispatcher(nil)
	if rt.ownsDispatcher {
		rt.Dispatcher.Close()
	}
}

func (rt *session) mount(ctx context.Context, opts RunOptions) error {
	for _, mw := range opts.Middlewares {
		if mw.Use != nil {
			rt.Bot.Use(mw.Use)
		}
	}
	routes := append([]Route(nil), opts.Routes...)
	if opts.Wire != nil {
		wired, err := opts.Wire(ctx, rt.Runtime)
		if err != nil {
			return fmt.Errorf("telegram: wire: %w", err)
		}
		routes = append(routes, wired...)
	}
	for _, r := range routes {
		if r.Endpoint != nil && r.Handler != nil {
			rt.Bot.Handle(r.Endpoint, r.Handler)
		}
	}
	return nil
}

// serve blocks in bot.Start until it returns by itself or ctx ends.
func (rt *session) serve(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		defer close(done)
		rt.Bot.Start()
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		rt.Bot.Stop()
		<-done
		return ctx.Err()
	}
}

// announce logs the delivery mode. In polling mode it also removes any
// webhook still set; getUpdates fails while one exists.
func announce(bot *tele.Bot, poll PollerOptions) {
	ctx := context.Background()
	if wh, ok := bot.Poller.(*tele.Webhook); ok {
		logger.Info(ctx, "tg", "mode",
			slog.String("mode", "webhook"),
			slog.String("listen", wh.Listen),
			slog.String("public_url", wh.Endpoint.PublicURL),
		)
		return
	}
	logger.Info(ctx, "tg", "mode",
		slog.String("mode", "polling"),
		slog.Duration("timeout", poll.PollTimeout()),
	)
	if err := bot.RemoveWebhook(false); err != nil {
		logger.Warn(ctx, "tg", "delete_webhook", slog.String("status", "fail"), logger.Err(err))
		return
	}
	logger.Debug(ctx, "tg", "delete_webhook", slog.String("status", "ok"))
}

// logHandlerError keeps a debug trace of errors handlers returned; the
// router summary already logged them at info.
func logHandlerError(err error, c tele.Context) {
	if err == nil {
		return
	}
	ctx := context.Background()
	if c != nil {
		ctx = tghelpers.BuildContext(c)
	}
	logger.Debug(ctx, "tg", "handler.error", slog.String("status", "fail"), logger.Err(err))
}
