package bot

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/postbot/core/logger"
	coretelegram "github.com/m3rciful/postbot/core/telegram"
	"github.com/m3rciful/postbot/core/telegram/callbacks"
	tghelpers "github.com/m3rciful/postbot/core/telegram/helpers"
	"github.com/m3rciful/postbot/core/telegram/router"
	"github.com/m3rciful/postbot/core/telegram/sender"
	"github.com/m3rciful/postbot/core/telegram/state"
	"github.com/m3rciful/postbot/core/telegram/ui"
	"github.com/m3rciful/postbot/internal/admin"
	"github.com/m3rciful/postbot/internal/compose"
	"github.com/m3rciful/postbot/internal/draft"
	"github.com/m3rciful/postbot/internal/gateway"
	"github.com/m3rciful/postbot/internal/publish"
)

// teleOutbox answers in the chat of the update. Replies go through the
// dispatcher synchronously so they keep their order relative to previews.
type teleOutbox struct {
	c    tele.Context
	disp *sender.Dispatcher
}

func (o teleOutbox) Send(ctx context.Context, r Reply) error {
	run := func() error {
		if r.Edit && o.c.Callback() != nil && inlineOnly(r.Markup) {
			err := o.c.Edit(r.Text, &tele.SendOptions{ParseMode: tele.ModeMarkdown, ReplyMarkup: r.Markup}, tele.NoPreview)
			if err == nil || strings.Contains(err.Error(), "message is not modified") {
				return nil
			}
		}
		err := o.c.Send(r.Text, &tele.SendOptions{ParseMode: tele.ModeMarkdown, ReplyMarkup: r.Markup}, tele.NoPreview)
		if err != nil && strings.Contains(err.Error(), "can't parse entities") {
			return o.c.Send(r.Text, &tele.SendOptions{ReplyMarkup: r.Markup}, tele.NoPreview)
		}
		return err
	}
	if o.disp == nil {
		return run()
	}
	return o.disp.Do(ctx, "bot.reply", "sendMessage", run)
}

// inlineOnly reports whether m can be attached to an edited message.
func inlineOnly(m *tele.ReplyMarkup) bool {
	return m == nil || len(m.ReplyKeyboard) == 0
}

func (a *App) outbox(c tele.Context) Outbox {
	return teleOutbox{c: c, disp: a.disp}
}

func whoOf(c tele.Context) Who {
	var w Who
	if u := c.Sender(); u != nil {
		w.UserID, w.Username, w.FirstName = u.ID, u.Username, u.FirstName
	}
	w.ChatID = w.UserID
	if ch := c.Chat(); ch != nil {
		w.ChatID = ch.ID
	}
	return w
}

func metaOf(m *tele.Message) compose.Meta {
	meta := compose.Meta{Author: gateway.AuthorOf(m), Origin: gateway.OriginOf(m)}
	if m.Chat != nil {
		meta.Source = draft.Target{ChatRef: chatRef(m.Chat.ID), MessageID: m.ID}
	}
	return meta
}

// inputOf maps a user message to a composer input. Forwarded messages are
// never read as menu labels.
func inputOf(m *tele.Message) (compose.Input, bool) {
	if m == nil {
		return nil, false
	}
	if item, ok := gateway.MediaOf(m); ok {
		return compose.Media{Item: item, Meta: metaOf(m)}, true
	}
	if m.Origin == nil {
		if act, ok := ActionFor(m.Text); ok {
			return compose.Tap{Action: act}, true
		}
	}
	if m.Text == "" {
		return nil, false
	}
	return compose.Text{Value: m.Text, Meta: metaOf(m)}, true
}

func (a *App) step(c tele.Context, in compose.Input) error {
	if c.Sender() == nil {
		return nil
	}
	return a.Step(tghelpers.BuildContext(c), whoOf(c), in, a.outbox(c))
}

// onMessage handles every text and media message that is not a command.
func (a *App) onMessage(c tele.Context) error {
	m := c.Message()
	if m == nil || c.Sender() == nil {
		return nil
	}
	if m.Origin == nil {
		if h, ok := a.menuLabel(m.Text); ok {
			return h(c)
		}
	}
	in, ok := inputOf(m)
	if !ok {
		return nil
	}
	return a.step(c, in)
}

// menuLabel returns the handler of a reply button outside the composer.
func (a *App) menuLabel(text string) (tele.HandlerFunc, bool) {
	switch strings.TrimSpace(text) {
	case LabelChat:
		return a.onChatMenu, true
	case LabelConnect:
		return a.onConnectHelp, true
	case LabelConnected:
		return a.cmdConnected, true
	case LabelDisconnect:
		return a.cmdDisconnect, true
	case LabelDeveloper:
		return a.onDeveloper, true
	case LabelClone:
		return a.onCloneMenu, true
	}
	return nil, false
}

func (a *App) onTap(c tele.Context) error {
	act := compose.Action(callbacks.Payload(c))
	if !knownActions[act] {
		logger.Debug(tghelpers.BuildContext(c), logger.CompCompose, "tap.unknown", slog.String("action", string(act)))
		return nil
	}
	return a.step(c, compose.Tap{Action: act})
}

func (a *App) onPick(c tele.Context) error {
	i, err := callbacks.PayloadInt(c)
	if err != nil {
		return nil
	}
	return a.step(c, compose.Pick{Index: i})
}

func (a *App) onToggle(c tele.Context) error {
	i, err := callbacks.PayloadInt(c)
	if err != nil {
		return nil
	}
	return a.step(c, compose.Toggle{Index: i})
}

// Register adds the commands and callbacks of the bot to reg.
func (a *App) Register(reg *coretelegram.Registry) error {
	a.reg = reg
	if err := errors.Join(a.registerUserCommands(reg), a.registerAdminCommands(reg)); err != nil {
		return err
	}
	for key, h := range map[string]tele.HandlerFunc{
		cbTap:        a.onTap,
		cbPick:       a.onPick,
		cbToggle:     a.onToggle,
		cbDisconnect: a.onDisconnectPick,
		cbBroadcast:  a.onBroadcastConfirm,
	} {
		if err := reg.RegisterCallback(key, h); err != nil {
			return err
		}
	}
	reg.SetTextFallback(a.UnknownText())
	reg.SetCallbackNotFound(a.UnknownCallback())
	return nil
}

// UnknownText sends free text to the composer, which reads it as menu
// labels or ignores it while idle.
func (a *App) UnknownText() tele.HandlerFunc { return a.onMessage }

// UnknownMedia sends media outside a draft to the composer, which answers
// with the main menu.
func (a *App) UnknownMedia() tele.HandlerFunc { return a.onMessage }

// UnknownCallback points users at the main menu when they press a button
// the bot no longer handles. The callback itself is already answered by
// the route.
func (a *App) UnknownCallback() tele.HandlerFunc {
	return func(c tele.Context) error {
		return tghelpers.SendMD(c, "⌛ This button is no longer active.", mainMenu())
	}
}

// Routes registers everything on reg and returns the bot routes. Users
// with a draft in progress get all their messages; other text goes through
// the command lookup first.
func (a *App) Routes(reg *coretelegram.Registry) ([]coretelegram.Route, error) {
	if err := a.Register(reg); err != nil {
		return nil, err
	}
	fsm := state.FSM[draft.Draft]{
		Store:    a.sessions,
		Active:   Active,
		Handler:  a.onMessage,
		Describe: func(d draft.Draft) string { return string(d.State) },
	}
	guard := router.CommandRouteOptions{
		IsAdmin:       a.cfg.IsAdmin,
		OnAdminReject: a.onAdminReject,
	}
	routes := router.CommandRoutes(reg, guard)
	var fb ui.FallbackProvider = a
	routes = append(routes, router.CallbackRoute(reg, router.CallbackOptions{NotFound: fb.UnknownCallback()}))
	routes = append(routes, router.MessageRoutes(fsm, reg, router.MessageOptions{
		UnknownText:  fb.UnknownText(),
		UnknownMedia: fb.UnknownMedia(),
		Commands:     guard,
	})...)
	return routes, nil
}

// OnStart binds the live bot once it is built.
func (a *App) OnStart(_ context.Context, rt coretelegram.Runtime) error {
	a.disp = rt.Dispatcher
	gw := gateway.New(rt.Bot, rt.Bot.Me, rt.Dispatcher)
	a.Bind(gw, admin.SenderFunc(func(ctx context.Context, userID int64, text string) error {
		_, err := gw.SendText(ctx, strconv.FormatInt(userID, 10), text, publish.SendOptions{})
		return err
	}))
	return nil
}
