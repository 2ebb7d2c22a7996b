package router

import (
	"context"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/m3rciful/systembot/core/logger"
	tg "github.com/m3rciful/systembot/core/telegram"
	"github.com/m3rciful/systembot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// CommandRoutes returns one route per registered command and alias, in
// name order. Access control is left to the global chain.
func CommandRoutes(reg *tg.Registry) []tg.Route {
	if reg == nil {
		return nil
	}
	cmds := reg.Commands()
	var routes []tg.Route
	for _, name := range slices.Sorted(maps.Keys(cmds)) {
		def := cmds[name]
		label := handlerName(name)
		h := middleware.RecoverMiddleware(func(c tele.Context) error {
			return handled(c, label, time.Now(), func() error { return def.Handler(c) })
		})
		routes = append(routes, tg.Route{Endpoint: name, Handler: h})
		for _, alias := range def.Aliases {
			if alias = strings.TrimPrefix(alias, "/"); alias != "" {
				routes = append(routes, tg.Route{Endpoint: "/" + alias, Handler: h})
			}
		}
	}

	logger.Info(context.Background(), "tg.wire", "commands",
		slog.Int("commands", len(cmds)),
		slog.Int("routes", len(routes)),
		slog.Int("callbacks", len(reg.ListCallbacks())),
	)
	return routes
}
