package router

import (
	"log/slog"
	"maps"
	"slices"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/postbot/core/logger"
	tg "github.com/m3rciful/postbot/core/telegram"
	"github.com/m3rciful/postbot/core/telegram/commands"
	"github.com/m3rciful/postbot/core/telegram/middleware"
)

// CommandRouteOptions configures CommandRoutes.
type CommandRouteOptions struct {
	IsAdmin       func(userID int64) bool
	OnAdminReject tele.HandlerFunc
}

// CommandRoutes returns one route per registered command, in name order.
// AdminOnly commands reject other senders through OnAdminReject.
func CommandRoutes(reg *tg.Registry, opts CommandRouteOptions) []tg.Route {
	if reg == nil {
		return nil
	}
	table := reg.Commands()
	routes := make([]tg.Route, 0, len(table))
	for _, cmd := range slices.Sorted(maps.Keys(table)) {
		h := opts.guard(table[cmd])
		name := handlerName(cmd)
		routes = append(routes, tg.Route{
			Endpoint: cmd,
			Handler:  func(c tele.Context) error { return observe(c, name, h) },
		})
	}

	logger.TWire.Info("tg.wire",
		slog.String("status", "ok"),
		slog.Int("commands", len(table)),
		slog.Int("callbacks", len(reg.ListCallbacks())),
	)
	return routes
}

// guard returns the handler of def, behind the admin check when def is
// AdminOnly.
func (o CommandRouteOptions) guard(def commands.Command) tele.HandlerFunc {
	if !def.AdminOnly {
		return def.Handler
	}
	return middleware.AdminOnlyMiddleware(middleware.AdminOptions{
		IsAdmin:  o.IsAdmin,
		OnReject: o.OnAdminReject,
	})(def.Handler)
}
