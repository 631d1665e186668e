package router

import (
	"log/slog"

	tele "gopkg.in/telebot.v4"

	tg "github.com/m3rciful/postbot/core/telegram"
	"github.com/m3rciful/postbot/core/telegram/callbacks"
)

// CallbackOptions configures CallbackRoute.
type CallbackOptions struct {
	// NotFound handles keys the registry does not know. It replaces the
	// registry's own not-found handler when set.
	NotFound tele.HandlerFunc
}

// CallbackRoute answers every callback query and dispatches it by key.
// Handlers must not answer the query again.
func CallbackRoute(reg *tg.Registry, opts CallbackOptions) tg.Route {
	h := func(c tele.Context) error {
		cb := c.Callback()
		if cb == nil {
			return nil
		}
		_ = c.Respond()

		key, _ := callbacks.Parse(cb)
		name := "callback." + handlerName(key)
		if h, ok := reg.GetCallback(key); ok && h != nil {
			return observe(c, name, h, slog.String("cb_key", key))
		}
		notFound := opts.NotFound
		if notFound == nil {
			notFound = reg.CallbackNotFound()
		}
		if notFound == nil {
			skip(c, name)
			return nil
		}
		return observe(c, name, notFound, slog.String("cb_key", key), slog.String("reason", "not_found"))
	}
	return tg.Route{Endpoint: tele.OnCallback, Handler: h}
}
