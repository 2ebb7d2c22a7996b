package cmd

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	coreconfig "github.com/m3rciful/systembot/core/config"
	coretelegram "github.com/m3rciful/systembot/core/telegram"
)

type fakeApp struct{ opts coretelegram.RunOptions }

func (a fakeApp) TelegramRunOptions() (coretelegram.RunOptions, error) { return a.opts, nil }

func TestResolveConfigPath(t *testing.T) {
	t.Setenv("SYSTEMBOT_CONFIG", "/etc/env.yaml")
	opts := Options{ConfigEnvVar: "SYSTEMBOT_CONFIG", DefaultConfigPath: "config.yaml"}

	path, _, err := resolveConfigPath(opts)
	if err != nil || path != "/etc/env.yaml" {
		t.Fatalf("env path = (%q, %v)", path, err)
	}
	opts.Args = []string{"-config", "/srv/flag.yaml"}
	if path, _, _ = resolveConfigPath(opts); path != "/srv/flag.yaml" {
		t.Fatalf("flag path = %q", path)
	}
	opts.Args = []string{"-bogus"}
	if _, _, err = resolveConfigPath(opts); err == nil {
		t.Fatal("expected error for unknown flag")
	}
}

func TestRunVersion(t *testing.T) {
	var out bytes.Buffer
	err := Run(Options{
		Args:       []string{"-version"},
		Stdout:     &out,
		LoadConfig: func(string) (ConfigCarrier, error) { t.Fatal("config must not load"); return nil, nil },
		Bootstrap:  func(ConfigCarrier) (TelegramApp, error) { return nil, nil },
	})
	if !errors.Is(err, ErrVersionShown) {
		t.Fatalf("err = %v", err)
	}
	if !strings.HasPrefix(out.String(), "systembot ") {
		t.Fatalf("output = %q", out.String())
	}
}

func TestRunWrapsLifecycleHooks(t *testing.T) {
	var started, stopped bool
	app := fakeApp{opts: coretelegram.RunOptions{
		OnStart: func(context.Context, coretelegram.Runtime) error { started = true; return nil },
		OnStop:  func(context.Context, coretelegram.Runtime) error { stopped = true; return nil },
	}}
	err := Run(Options{
		Args:           []string{"-config", "x.yaml"},
		LoadConfig:     func(string) (ConfigCarrier, error) { return &coreconfig.Config{}, nil },
		Bootstrap:      func(ConfigCarrier) (TelegramApp, error) { return app, nil },
		ShutdownLogger: func() error { return nil },
		RunTelegram: func(ctx context.Context, opts coretelegram.RunOptions) error {
			if err := opts.OnStart(ctx, coretelegram.Runtime{}); err != nil {
				return err
			}
			return opts.OnStop(ctx, coretelegram.Runtime{})
		},
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !started || !stopped {
		t.Fatalf("hooks: started=%v stopped=%v", started, stopped)
	}
}
