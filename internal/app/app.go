// Package app assembles the bot process: storage, flows, metrics and the
// Telegram runtime.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/m3rciful/systembot/core/bootstrap"
	corecmd "github.com/m3rciful/systembot/core/cmd"
	coreconfig "github.com/m3rciful/systembot/core/config"
	"github.com/m3rciful/systembot/core/logger"
	tg "github.com/m3rciful/systembot/core/telegram"
	"github.com/m3rciful/systembot/core/telegram/sender"
	"github.com/m3rciful/systembot/internal/bot"
	"github.com/m3rciful/systembot/internal/cooldown"
	"github.com/m3rciful/systembot/internal/flow"
	"github.com/m3rciful/systembot/internal/metrics"
	"github.com/m3rciful/systembot/internal/pending"
	"github.com/m3rciful/systembot/internal/store/cached"
	"github.com/m3rciful/systembot/internal/store/jsonfile"
	"github.com/m3rciful/systembot/internal/store/postgres"
	"github.com/m3rciful/systembot/internal/systems"
)

const component = "app"

const stopTimeout = 5 * time.Second

// App holds what the running bot owns.
type App struct {
	cfg     *coreconfig.Config
	infra   *bootstrap.Result
	store   systems.Store
	cool    *cooldown.Limiter
	metrics *metrics.Server

	ctl *flow.Controller
}

// LoadConfig reads the YAML file at path with its environment overlay.
func LoadConfig(path string) (corecmd.ConfigCarrier, error) {
	cfg, err := coreconfig.Load(path)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Bootstrap prepares logging, storage and the cooldown limiter.
func Bootstrap(cc corecmd.ConfigCarrier) (corecmd.TelegramApp, error) {
	return New(context.Background(), cc.CoreConfig(), bootstrap.Options{})
}

// New builds the app from cfg. Empty fields of opts fall back to the
// bootstrap defaults; Config and the migration source are always set here.
func New(ctx context.Context, cfg *coreconfig.Config, opts bootstrap.Options) (*App, error) {
	opts.Config = cfg
	opts.Migrations = postgres.Migrations
	opts.MigrationsDir = postgres.MigrationsDir
	infra, err := bootstrap.Run(ctx, opts)
	if err != nil {
		return nil, err
	}

	store, err := openStore(cfg, infra)
	if err != nil {
		_ = infra.Close()
		return nil, err
	}

	a := &App{
		cfg:   cfg,
		infra: infra,
		store: cached.New(store, time.Duration(cfg.Storage.CacheTTLSeconds)*time.Second),
		cool:  cooldown.New(time.Duration(cfg.Bot.CooldownSeconds) * time.Second),
	}
	if cfg.Metrics.Listen != "" {
		a.metrics = metrics.NewServer(cfg.Metrics.Listen)
	}
	logger.Info(ctx, component, "bootstrap.done",
		slog.String("status", "ok"),
		slog.String("storage", cfg.Storage.Driver),
		slog.Int("authorized_users", len(cfg.Bot.AuthorizedUsers)),
	)
	return a, nil
}

func openStore(cfg *coreconfig.Config, infra *bootstrap.Result) (systems.Store, error) {
	switch cfg.Storage.Driver {
	case coreconfig.StoragePostgres:
		if infra == nil || infra.DB == nil {
			return nil, errors.New("app: postgres storage selected without a database connection")
		}
		return postgres.New(infra.DB), nil
	case coreconfig.StorageJSON, "":
		return jsonfile.New(cfg.Storage.JSONPath), nil
	}
	return nil, fmt.Errorf("app: unknown storage driver %q", cfg.Storage.Driver)
}

// Store returns the record store in use.
func (a *App) Store() systems.Store { return a.store }

// TelegramRunOptions wires the bot into the shared Telegram runtime.
func (a *App) TelegramRunOptions() (tg.RunOptions, error) {
	reg := tg.NewRegistry()

	return tg.RunOptions{
		Config:   a.cfg,
		Registry: reg,
		DispatcherOptions: sender.Options{
			MaxRetries: 2,
		},
		Middlewares: tg.DefaultMiddlewares(a.cfg, bot.Hooks()),
		Wire:        a.wire,
		OnStart:     a.start,
		OnStop:      a.stop,
	}, nil
}

func (a *App) wire(ctx context.Context, rt tg.Runtime) ([]tg.Route, error) {
	a.ctl = flow.New(flow.Options{
		Store:     a.store,
		Messenger: bot.NewMessenger(rt.Bot, rt.Dispatcher),
		Pending:   pending.NewRegistry(),
		Cooldown:  a.cool,
		Timeout:   time.Duration(a.cfg.Bot.FlowTimeoutSeconds) * time.Second,
	})
	b := bot.New(a.ctl)
	if err := b.Register(rt.Registry); err != nil {
		return nil, err
	}
	logger.Info(ctx, component, "wire.done",
		slog.Int("commands", len(rt.Registry.Commands())),
		slog.Int("callbacks", len(rt.Registry.ListCallbacks())),
	)
	return b.Routes(rt.Registry), nil
}

func (a *App) start(ctx context.Context, _ tg.Runtime) error {
	if a.metrics == nil {
		return nil
	}
	return a.metrics.Start(ctx)
}

func (a *App) stop(ctx context.Context, _ tg.Runtime) error {
	if a.ctl != nil {
		a.ctl.Close()
	}
	a.cool.Close()

	var errs []error
	if a.metrics != nil {
		sctx, cancel := context.WithTimeout(ctx, stopTimeout)
		errs = append(errs, a.metrics.Shutdown(sctx))
		cancel()
	}
	errs = append(errs, a.infra.Close())
	err := errors.Join(errs...)
	if err != nil {
		logger.Warn(ctx, component, "stop.failed", slog.String("status", "fail"), logger.Err(err))
	}
	return err
}
