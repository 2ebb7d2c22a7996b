package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/m3rciful/systembot/core/logger"
	"github.com/m3rciful/systembot/core/telegram/commands"

	tele "gopkg.in/telebot.v4"
)

var (
	// ErrInvalidRoute rejects a registration without a name or handler.
	ErrInvalidRoute = errors.New("telegram: invalid registration")
	// ErrDuplicateRoute rejects a second registration under the same name.
	ErrDuplicateRoute = errors.New("telegram: already registered")
)

// Registry maps slash commands and callback uniques to their handlers.
type Registry struct {
	mu               sync.RWMutex
	commands         map[string]commands.Command
	aliases          map[string]string
	callbacks        map[string]tele.HandlerFunc
	callbackNotFound tele.HandlerFunc
	textFallback     tele.HandlerFunc
}

// NewRegistry returns an empty registry whose unknown callbacks are only
// answered.
func NewRegistry() *Registry {
	return &Registry{
		commands:  map[string]commands.Command{},
		aliases:   map[string]string{},
		callbacks: map[string]tele.HandlerFunc{},
		callbackNotFound: func(c tele.Context) error {
			return c.Respond(&tele.CallbackResponse{})
		},
	}
}

func slashed(name string) string {
	if strings.HasPrefix(name, "/") {
		return name
	}
	return "/" + name
}

// RegisterCommand adds cmd under name, which must start with "/". The
// first registration of a name or alias wins.
func (r *Registry) RegisterCommand(name string, cmd commands.Command) error {
	var err error
	switch {
	case name == "" || cmd.Handler == nil || cmd.Description == "":
		err = fmt.Errorf("%w: command %q", ErrInvalidRoute, name)
	case name[0] != '/':
		err = fmt.Errorf("%w: command %q lacks the slash prefix", ErrInvalidRoute, name)
	}
	if err != nil {
		logger.Warn(context.Background(), "tg.wire", "register.command.skip", slog.String("name", name), logger.Err(err))
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, taken := r.commands[name]; taken {
		logger.Warn(context.Background(), "tg.wire", "register.command.duplicate", slog.String("name", name))
		return fmt.Errorf("%w: command %s", ErrDuplicateRoute, name)
	}
	r.commands[name] = cmd
	for _, alias := range cmd.Aliases {
		if a := slashed(alias); r.aliases[a] == "" {
			r.aliases[a] = name
		}
	}
	return nil
}

// ListCommands returns the commands sorted by name, without hidden ones
// when visibleOnly is set.
func (r *Registry) ListCommands(visibleOnly bool) []tele.Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var list []tele.Command
	for _, name := range slices.Sorted(maps.Keys(r.commands)) {
		cmd := r.commands[name]
		if visibleOnly && cmd.Hidden {
			continue
		}
		list = append(list, tele.Command{Text: name, Description: cmd.Description})
	}
	return list
}

// LookupCommand resolves a command name or alias, with or without the
// slash, to its registered name.
func (r *Registry) LookupCommand(name string) (string, commands.Command, bool) {
	name = slashed(name)
	r.mu.RLock()
	defer r.mu.RUnlock()
	if cmd, ok := r.commands[name]; ok {
		return name, cmd, true
	}
	if target, ok := r.aliases[name]; ok {
		return target, r.commands[target], true
	}
	return "", commands.Command{}, false
}

// Commands returns a copy of the registered commands.
func (r *Registry) Commands() map[string]commands.Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return maps.Clone(r.commands)
}

// RegisterCallback binds handler to a callback unique.
func (r *Registry) RegisterCallback(key string, handler tele.HandlerFunc) error {
	if key == "" || handler == nil {
		logger.Warn(context.Background(), "tg.wire", "register.callback.skip", slog.String("key", key))
		return fmt.Errorf("%w: callback %q", ErrInvalidRoute, key)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, taken := r.callbacks[key]; taken {
		logger.Warn(context.Background(), "tg.wire", "register.callback.duplicate", slog.String("key", key))
		return fmt.Errorf("%w: callback %s", ErrDuplicateRoute, key)
	}
	r.callbacks[key] = handler
	return nil
}

func (r *Registry) GetCallback(key string) (tele.HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.callbacks[key]
	return h, ok
}

// ListCallbacks returns the registered uniques in order.
func (r *Registry) ListCallbacks() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.callbacks))
}

// SetCallbackNotFound replaces the handler for unknown callbacks; nil is ignored.
func (r *Registry) SetCallbackNotFound(h tele.HandlerFunc) {
	if h == nil {
		return
	}
	r.mu.Lock()
	r.callbackNotFound = h
	r.mu.Unlock()
}

func (r *Registry) CallbackNotFound() tele.HandlerFunc {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.callbackNotFound
}

// SetTextFallback sets the handler for messages no route consumed.
func (r *Registry) SetTextFallback(h tele.HandlerFunc) {
	r.mu.Lock()
	r.textFallback = h
	r.mu.Unlock()
}

func (r *Registry) TextFallback() tele.HandlerFunc {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.textFallback
}

// SetupCommands publishes the visible commands as the bot's command menu.
// A failure is logged; the bot works without the menu.
func SetupCommands(bot *tele.Bot, reg *Registry) {
	if bot == nil || reg == nil {
		return
	}
	list := reg.ListCommands(true)
	if len(list) == 0 {
		return
	}
	ctx := context.Background()
	if err := bot.SetCommands(list); err != nil {
		logger.Error(ctx, "tg.wire", "register.commands.set_failed", slog.String("status", "fail"), logger.Err(err))
		return
	}
	logger.Info(ctx, "tg.wire", "register.commands.set", slog.String("status", "ok"), slog.Int("commands", len(list)))
}
