package router

import (
	tele "gopkg.in/telebot.v4"

	tg "github.com/m3rciful/postbot/core/telegram"
)

// FSM is the session check MessageRoutes consults first.
type FSM interface {
	InProgress(userID int64) bool
	ManagerHandler(c tele.Context) error
}

// MessageOptions sets the handlers for messages nothing else claims.
type MessageOptions struct {
	UnknownText  tele.HandlerFunc
	UnknownMedia tele.HandlerFunc
	// Commands guards commands typed in a form telebot does not match
	// itself, such as "/Stats".
	Commands CommandRouteOptions
}

// MediaEndpoints are the media updates routed like text.
var MediaEndpoints = []string{tele.OnPhoto, tele.OnVideo, tele.OnAnimation, tele.OnDocument}

// MessageRoutes routes text and media. A user with an active session gets
// every message delivered to the FSM. Otherwise text is matched against the
// commands, then the registry fallback, then UnknownText; media goes to
// UnknownMedia.
func MessageRoutes(fsm FSM, reg *tg.Registry, opts MessageOptions) []tg.Route {
	inSession := func(c tele.Context) bool {
		return fsm != nil && c.Sender() != nil && fsm.InProgress(c.Sender().ID)
	}
	text := func(c tele.Context) error {
		if inSession(c) {
			return observe(c, "fsm", fsm.ManagerHandler)
		}
		if reg != nil {
			if key, cmd, ok := reg.LookupCommand(c.Text()); ok && cmd.Handler != nil {
				return observe(c, handlerName(key), opts.Commands.guard(cmd))
			}
			if fb := reg.TextFallback(); fb != nil {
				return observe(c, "fallback", fb)
			}
		}
		if opts.UnknownText != nil {
			return observe(c, "unknown_text", opts.UnknownText)
		}
		skip(c, "unknown_text")
		return nil
	}
	media := func(c tele.Context) error {
		if inSession(c) {
			return observe(c, "fsm_media", fsm.ManagerHandler)
		}
		if opts.UnknownMedia != nil {
			return observe(c, "unexpected_media", opts.UnknownMedia)
		}
		skip(c, "unexpected_media")
		return nil
	}

	routes := []tg.Route{{Endpoint: tele.OnText, Handler: text}}
	for _, ep := range MediaEndpoints {
		routes = append(routes, tg.Route{Endpoint: ep, Handler: media})
	}
	return routes
}
