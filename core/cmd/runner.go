// Package cmd is the shared entrypoint: it parses flags, loads config,
// bootstraps the application and runs the bot until SIGINT or SIGTERM.
package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/m3rciful/systembot/core/buildinfo"
	coreconfig "github.com/m3rciful/systembot/core/config"
	"github.com/m3rciful/systembot/core/logger"
	coretelegram "github.com/m3rciful/systembot/core/telegram"
)

const defaultConfigEnv = "CONFIG_PATH"

// ConfigCarrier is an application config embedding the core one.
type ConfigCarrier interface {
	CoreConfig() *coreconfig.Config
}

// TelegramApp yields the options the bot runs with.
type TelegramApp interface {
	TelegramRunOptions() (coretelegram.RunOptions, error)
}

// ErrVersionShown is returned by Run after it printed the build identity for -version.
var ErrVersionShown = errors.New("cmd: version requested")

var (
	errNoLoader    = errors.New("cmd: LoadConfig is required")
	errNoBootstrap = errors.New("cmd: Bootstrap is required")
	errNoCore      = errors.New("cmd: config lacks the core section")
)

// Options describe how to load configuration, bootstrap the app, and run the bot.
type Options struct {
	// Args are the command line arguments without the program name.
	// Recognized flags: -config <path> and -version.
	Args []string
	// Stdout receives -version output; os.Stdout when nil.
	Stdout io.Writer

	// ConfigEnvVar names the variable consulted when -config is absent;
	// CONFIG_PATH by default.
	ConfigEnvVar      string
	DefaultConfigPath string

	LoadConfig func(path string) (ConfigCarrier, error)
	Bootstrap  func(cfg ConfigCarrier) (TelegramApp, error)

	// Test seams; logger.Shutdown and coretelegram.RunTelegram when nil.
	ShutdownLogger func() error
	RunTelegram    func(ctx context.Context, opts coretelegram.RunOptions) error
}

// Run loads configuration, bootstraps the app and blocks while the bot runs.
func Run(opts Options) error {
	switch {
	case opts.LoadConfig == nil:
		return errNoLoader
	case opts.Bootstrap == nil:
		return errNoBootstrap
	}

	path, version, err := resolveConfigPath(opts)
	if err != nil {
		return err
	}
	if version {
		out := opts.Stdout
		if out == nil {
			out = os.Stdout
		}
		fmt.Fprintln(out, buildinfo.String())
		return ErrVersionShown
	}

	started := time.Now()
	runOpts, err := prepare(opts, path)
	if err != nil {
		return err
	}
	defer flushLogs(opts.ShutdownLogger)
	announceLifecycle(&runOpts, started)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	run := opts.RunTelegram
	if run == nil {
		run = coretelegram.RunTelegram
	}
	return run(ctx, runOpts)
}

func prepare(opts Options, path string) (coretelegram.RunOptions, error) {
	log.Printf("loading config: %s", path)
	cfg, err := opts.LoadConfig(path)
	if err != nil {
		return coretelegram.RunOptions{}, fmt.Errorf("cmd: load config: %w", err)
	}
	if cfg.CoreConfig() == nil {
		return coretelegram.RunOptions{}, errNoCore
	}
	app, err := opts.Bootstrap(cfg)
	if err != nil {
		return coretelegram.RunOptions{}, fmt.Errorf("cmd: bootstrap: %w", err)
	}
	runOpts, err := app.TelegramRunOptions()
	if err != nil {
		return coretelegram.RunOptions{}, fmt.Errorf("cmd: telegram options: %w", err)
	}
	return runOpts, nil
}

func flushLogs(shutdown func() error) {
	if shutdown == nil {
		shutdown = logger.Shutdown
	}
	if err := shutdown(); err != nil {
		log.Printf("logger shutdown: %v", err)
	}
}

// announceLifecycle chains "ready" and "shutdown" lines onto the app's own
// hooks.
func announceLifecycle(opts *coretelegram.RunOptions, started time.Time) {
	onStart, onStop := opts.OnStart, opts.OnStop
	opts.OnStart = func(ctx context.Context, rt coretelegram.Runtime) error {
		if onStart != nil {
			if err := onStart(ctx, rt); err != nil {
				return err
			}
		}
		logger.Info(ctx, "app", "ready",
			slog.String("build", buildinfo.String()),
			slog.Duration("startup", logger.RoundMS(time.Since(started))),
		)
		return nil
	}
	opts.OnStop = func(ctx context.Context, rt coretelegram.Runtime) error {
		logger.Info(ctx, "app", "shutdown")
		if onStop == nil {
			return nil
		}
		return onStop(ctx, rt)
	}
}

// resolveConfigPath reads the flags. The config path comes from -config,
// then the environment variable, then the default.
func resolveConfigPath(opts Options) (path string, version bool, err error) {
	fs := flag.NewFlagSet("systembot", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&path, "config", "", "path to the YAML config file")
	fs.BoolVar(&version, "version", false, "print the build version and exit")
	if err := fs.Parse(opts.Args); err != nil {
		return "", false, fmt.Errorf("cmd: %w", err)
	}
	if version {
		return "", true, nil
	}

	env := opts.ConfigEnvVar
	if env == "" {
		env = defaultConfigEnv
	}
	for _, candidate := range []string{path, os.Getenv(env), opts.DefaultConfigPath} {
		if candidate != "" {
			return candidate, false, nil
		}
	}
	return "", false, fmt.Errorf("cmd: no config path: set -config or %s", env)
}
