package telegram

import (
	"errors"
	"testing"

	"github.com/m3rciful/systembot/core/telegram/commands"

	tele "gopkg.in/telebot.v4"
)

func noop(tele.Context) error { return nil }

func TestRegistryCommands(t *testing.T) {
	reg := NewRegistry()
	reg.RegisterCommand("/send", commands.Command{Handler: noop, Description: "Send a system"})
	reg.RegisterCommand("/checksystems", commands.Command{Handler: noop, Description: "List systems", Aliases: []string{"list"}})
	reg.RegisterCommand("/debug", commands.Command{Handler: noop, Description: "Debug", Hidden: true})
	if err := reg.RegisterCommand("nope", commands.Command{Handler: noop, Description: "No slash"}); !errors.Is(err, ErrInvalidRoute) {
		t.Fatalf("no slash = %v", err)
	}
	if err := reg.RegisterCommand("/send", commands.Command{Handler: noop, Description: "Duplicate"}); !errors.Is(err, ErrDuplicateRoute) {
		t.Fatalf("duplicate = %v", err)
	}

	if len(reg.Commands()) != 3 {
		t.Fatalf("commands = %d, want 3", len(reg.Commands()))
	}
	visible := reg.ListCommands(true)
	if len(visible) != 2 || visible[0].Text != "/checksystems" || visible[1].Text != "/send" {
		t.Fatalf("visible = %+v", visible)
	}
	if reg.Commands()["/send"].Description != "Send a system" {
		t.Fatal("duplicate registration replaced the original")
	}
	key, _, ok := reg.LookupCommand("list")
	if !ok || key != "/checksystems" {
		t.Fatalf("alias lookup = (%q, %v)", key, ok)
	}
	if key, _, ok := reg.LookupCommand("/list"); !ok || key != "/checksystems" {
		t.Fatalf("slashed alias lookup = (%q, %v)", key, ok)
	}
	if _, _, ok := reg.LookupCommand("/missing"); ok {
		t.Fatal("unexpected lookup hit")
	}
}

func TestRegistryCallbacks(t *testing.T) {
	reg := NewRegistry()
	if err := reg.RegisterCallback("rm_ok", noop); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := reg.RegisterCallback("rm_ok", noop); !errors.Is(err, ErrDuplicateRoute) {
		t.Fatalf("duplicate = %v", err)
	}
	if err := reg.RegisterCallback("", noop); err == nil {
		t.Fatal("expected error for empty key")
	}
	if _, ok := reg.GetCallback("rm_ok"); !ok {
		t.Fatal("callback not found")
	}
	if got := reg.ListCallbacks(); len(got) != 1 || got[0] != "rm_ok" {
		t.Fatalf("callbacks = %v", got)
	}
	if reg.CallbackNotFound() == nil {
		t.Fatal("expected default fallback")
	}
}
