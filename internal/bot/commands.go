package bot

import (
	"errors"
	"fmt"
	"strings"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/postbot/core/buildinfo"
	"github.com/m3rciful/postbot/core/logger"
	coretelegram "github.com/m3rciful/postbot/core/telegram"
	"github.com/m3rciful/postbot/core/telegram/callbacks"
	"github.com/m3rciful/postbot/core/telegram/commands"
	"github.com/m3rciful/postbot/core/telegram/format"
	tghelpers "github.com/m3rciful/postbot/core/telegram/helpers"
	"github.com/m3rciful/postbot/internal/compose"
	"github.com/m3rciful/postbot/internal/model"
	"github.com/m3rciful/postbot/internal/store"
)

func (a *App) registerUserCommands(reg *coretelegram.Registry) error {
	return registerAll(reg, map[string]commands.Command{
		"/start":      {Handler: a.cmdStart, Description: "Open the main menu"},
		"/help":       {Handler: a.cmdHelp, Description: "List the commands"},
		"/connect":    {Handler: a.cmdConnect, Description: "Connect a channel", Usage: "@channel"},
		"/connected":  {Handler: a.cmdConnected, Description: "List connected channels"},
		"/disconnect": {Handler: a.cmdDisconnect, Description: "Disconnect a channel", Usage: "[@channel]"},
		"/edit":       {Handler: a.cmdEdit, Description: "Edit a published post"},
		"/stats":      {Handler: a.cmdStats, Description: "Bot statistics"},
	})
}

func registerAll(reg *coretelegram.Registry, cmds map[string]commands.Command) error {
	var errs []error
	for name, cmd := range cmds {
		errs = append(errs, reg.RegisterCommand(name, cmd))
	}
	return errors.Join(errs...)
}

// cmdStart records the user and shows the main menu. Create Post then
// starts a new draft.
func (a *App) cmdStart(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	who := whoOf(c)
	now := a.now()
	err := a.store.UpsertUser(ctx, model.User{
		UserID:       who.UserID,
		Username:     who.Username,
		FirstName:    who.FirstName,
		JoinedDate:   now,
		LastActivity: now,
	})
	if err != nil {
		logger.Warn(ctx, logger.CompStore, "user.upsert", logger.Err(err))
	}
	logger.UserAction(ctx, who.UserID, "START")
	r := startScreen(who.FirstName)
	return tghelpers.SendMD(c, r.Text, r.Markup)
}

func (a *App) cmdHelp(c tele.Context) error {
	var b strings.Builder
	b.WriteString("📖 *Commands*\n\n")
	if a.reg != nil {
		table := a.reg.Commands()
		for _, cmd := range a.reg.ListCommands(!a.cfg.IsAdmin(whoOf(c).UserID)) {
			fmt.Fprintf(&b, "%s - %s\n", format.MD(table[cmd.Text].Synopsis(cmd.Text)), format.MD(cmd.Description))
		}
	}
	b.WriteString("\nUse *Create Post* to compose a post, then publish it to your channels.")
	return tghelpers.SendMD(c, b.String())
}

func (a *App) onChatMenu(c tele.Context) error {
	return tghelpers.SendMD(c, "💬 *Channel Management*\n\nConnect the channels you want to post to.", chatMenu())
}

func (a *App) onConnectHelp(c tele.Context) error {
	return tghelpers.SendMD(c, connectUsage())
}

func connectUsage() string {
	return "🔗 *Connect a Channel*\n\n" +
		"1. Add me to your channel as an administrator.\n" +
		"2. Send `/connect @channelname` or `/connect -100123456789`."
}

func (a *App) onDeveloper(c tele.Context) error {
	return tghelpers.SendMD(c, "👨‍💻 *Developer Info*\n\nPostbot "+format.MD(buildinfo.String())+
		"\nA channel post composer for Telegram.", mainMenu())
}

func (a *App) onCloneMenu(c tele.Context) error {
	return tghelpers.SendMD(c, "📋 *Clone a Message*\n\n"+
		"*Normal Clone* copies a message without the forward header.\n"+
		"*Forward Clone* forwards it as is.\n\nChoose a mode, then send or forward the message.", cloneMenu())
}

func (a *App) cmdConnect(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	id := strings.TrimSpace(c.Message().Payload)
	if id == "" {
		return tghelpers.SendMD(c, connectUsage())
	}
	who := whoOf(c)
	ch, err := a.registry.Connect(ctx, who.UserID, id)
	if err != nil {
		return tghelpers.SendMD(c, rejectText(err, a.limits))
	}
	return tghelpers.SendMD(c, fmt.Sprintf("✅ Connected to *%s*.", channelTitleMD(ch)), chatMenu())
}

func (a *App) cmdConnected(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	chans, err := a.registry.List(ctx, whoOf(c).UserID)
	if err != nil {
		return tghelpers.SendMD(c, rejectText(err, a.limits))
	}
	return tghelpers.SendMD(c, connectedText(chans, a.registry.Max(), a.cfg.IsAdmin(whoOf(c).UserID)))
}

// connectedText lists chans with the per-user cap; max <= 0 or admin means
// unlimited.
func connectedText(chans []model.Channel, max int, admin bool) string {
	if len(chans) == 0 {
		return "📭 You have no connected channels.\n\n" + connectUsage()
	}
	var b strings.Builder
	b.WriteString("📢 *Connected Channels*\n\n")
	for i, ch := range chans {
		b.WriteString(channelLine(i, ch))
		b.WriteByte('\n')
	}
	if max <= 0 || admin {
		fmt.Fprintf(&b, "\nTotal: %d", len(chans))
	} else {
		fmt.Fprintf(&b, "\nTotal: %d/%d", len(chans), max)
	}
	return b.String()
}

func (a *App) cmdDisconnect(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	who := whoOf(c)
	var id string
	if m := c.Message(); m != nil && strings.HasPrefix(m.Text, "/") {
		id = strings.TrimSpace(m.Payload)
	}
	if id != "" {
		ch, err := a.registry.Disconnect(ctx, who.UserID, id)
		if err != nil {
			return tghelpers.SendMD(c, rejectText(err, a.limits))
		}
		return tghelpers.SendMD(c, fmt.Sprintf("✅ Disconnected from *%s*.", channelTitleMD(ch)))
	}
	chans, err := a.registry.List(ctx, who.UserID)
	if err != nil {
		return tghelpers.SendMD(c, rejectText(err, a.limits))
	}
	if len(chans) == 0 {
		return tghelpers.SendMD(c, "📭 You have no connected channels.")
	}
	return tghelpers.SendMD(c, "Select a channel to disconnect:", disconnectPicker(chans))
}

func (a *App) onDisconnectPick(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	if callbacks.Payload(c) == "cancel" {
		return tghelpers.EditMD(c, "Cancelled.")
	}
	i, err := callbacks.PayloadInt(c)
	if err != nil {
		return nil
	}
	who := whoOf(c)
	ch, err := a.registry.DisconnectAt(ctx, who.UserID, i)
	if err != nil {
		return tghelpers.EditMD(c, rejectText(err, a.limits))
	}
	return tghelpers.EditMD(c, fmt.Sprintf("✅ Disconnected from *%s*.", channelTitleMD(ch)))
}

func (a *App) cmdEdit(c tele.Context) error {
	return a.step(c, compose.Tap{Action: compose.ActEditPost})
}

func (a *App) cmdStats(c tele.Context) error {
	st, err := a.admin.Stats(tghelpers.BuildContext(c))
	if err != nil {
		return tghelpers.SendMD(c, "❌ Statistics are unavailable right now.")
	}
	return tghelpers.SendMD(c, statsText(st))
}

func statsText(st store.Stats) string {
	return fmt.Sprintf("📊 *Bot Statistics*\n\n"+
		"👥 Total users: %d\n"+
		"🔗 Users with channels: %d\n"+
		"📢 Connected channels: %d\n"+
		"📝 Posts published: %d\n"+
		"🆕 New today: %d\n"+
		"📅 New this week: %d",
		st.Users, st.ConnectedUsers, st.Channels, st.Posts, st.NewToday, st.NewThisWeek)
}
