package bot

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	coreconfig "github.com/m3rciful/postbot/core/config"
	"github.com/m3rciful/postbot/core/logger"
	coretelegram "github.com/m3rciful/postbot/core/telegram"
	"github.com/m3rciful/postbot/core/telegram/callbacks"
	"github.com/m3rciful/postbot/core/telegram/commands"
	"github.com/m3rciful/postbot/core/telegram/format"
	tghelpers "github.com/m3rciful/postbot/core/telegram/helpers"
	"github.com/m3rciful/postbot/internal/admin"
	"github.com/m3rciful/postbot/internal/backup"
	"github.com/m3rciful/postbot/internal/model"
	"github.com/m3rciful/postbot/internal/store"
)

// backupsShown caps /backup list.
const backupsShown = 10

func (a *App) registerAdminCommands(reg *coretelegram.Registry) error {
	return registerAll(reg, map[string]commands.Command{
		"/admin":     {Handler: a.cmdAdmin, Description: "Admin panel", AdminOnly: true},
		"/broadcast": {Handler: a.cmdBroadcast, Description: "Message every user", Usage: "<text>", AdminOnly: true},
		"/users":     {Handler: a.cmdUsers, Description: "User statistics and lookup", Usage: "[stats|find <id>|recent]", AdminOnly: true},
		"/backup":    {Handler: a.cmdBackup, Description: "Manage database backups", Usage: "[list|create|cleanup]", AdminOnly: true},
		"/system":    {Handler: a.cmdSystem, Description: "System information", AdminOnly: true},
	})
}

func (a *App) onAdminReject(c tele.Context) error {
	return tghelpers.SendMD(c, "⛔ This command is for administrators only.")
}

func (a *App) cmdAdmin(c tele.Context) error {
	st, err := a.admin.Stats(tghelpers.BuildContext(c))
	if err != nil {
		return tghelpers.SendMD(c, "❌ Statistics are unavailable right now.")
	}
	return tghelpers.SendMD(c, adminPanel(st))
}

func adminPanel(st store.Stats) string {
	return fmt.Sprintf("🔧 *Admin Panel*\n\n"+
		"👥 Users: %d\n"+
		"📢 Channels: %d\n"+
		"📝 Posts: %d\n"+
		"📈 Active today: %d (%.1f%%)\n\n"+
		"/broadcast <text> - message every user\n"+
		"/users \\[stats|find <id>|recent]\n"+
		"/backup \\[list|create|cleanup]\n"+
		"/system - runtime details",
		st.Users, st.Channels, st.Posts, st.ActiveToday, admin.ActivityRate(st))
}

// cmdBroadcast stores the text and asks for confirmation.
func (a *App) cmdBroadcast(c tele.Context) error {
	if !coreconfig.Enabled(a.cfg.Features.Notifications) {
		return tghelpers.SendMD(c, "ℹ️ Broadcasts are disabled (features.notifications).")
	}
	ctx := tghelpers.BuildContext(c)
	text := strings.TrimSpace(c.Message().Payload)
	if text == "" {
		return tghelpers.SendMD(c, "Usage: `/broadcast <message>`")
	}
	n, err := a.broadcaster.Recipients(ctx)
	if err != nil {
		return tghelpers.SendMD(c, "❌ Could not read the user list.")
	}
	a.pendingMu.Lock()
	a.broadcasts[whoOf(c).UserID] = text
	a.pendingMu.Unlock()
	return tghelpers.SendMD(c, fmt.Sprintf("📢 *Broadcast Preview*\n\n%s\n\nSend to %d users?", format.MD(text), n), broadcastConfirm())
}

func (a *App) takeBroadcast(userID int64) (string, bool) {
	a.pendingMu.Lock()
	defer a.pendingMu.Unlock()
	text, ok := a.broadcasts[userID]
	delete(a.broadcasts, userID)
	return text, ok
}

// onBroadcastConfirm runs a confirmed broadcast, editing the confirmation
// message with the progress.
func (a *App) onBroadcastConfirm(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	who := whoOf(c)
	if !a.cfg.IsAdmin(who.UserID) {
		return nil
	}
	text, ok := a.takeBroadcast(who.UserID)
	if callbacks.Payload(c) != "yes" {
		return tghelpers.EditMD(c, "❌ Broadcast cancelled.")
	}
	if !ok {
		return tghelpers.EditMD(c, "⌛ Nothing to send. Use /broadcast again.")
	}
	_ = tghelpers.EditMD(c, "📤 Sending...")
	logger.UserAction(ctx, who.UserID, "BROADCAST")
	res, err := a.broadcaster.Run(ctx, text, func(p admin.Progress) {
		_ = c.Edit(fmt.Sprintf("📤 Sending... %d/%d (failed: %d)", p.Sent+p.Failed, p.Total, p.Failed))
	})
	if err != nil {
		logger.Warn(ctx, logger.CompAdmin, "broadcast.aborted", logger.Err(err))
	}
	return tghelpers.EditMD(c, broadcastSummary(res, err))
}

func broadcastSummary(res admin.Result, err error) string {
	title := "✅ *Broadcast Completed*"
	if err != nil {
		title = "⚠️ *Broadcast Interrupted*"
	}
	return fmt.Sprintf("%s\n\n"+
		"📊 Total: %d\n"+
		"✅ Sent: %d\n"+
		"❌ Failed: %d\n"+
		"🚫 Blocked: %d\n"+
		"📈 Success rate: %.1f%%\n"+
		"⏱ Took: %s",
		title, res.Total, res.Sent, res.Failed, res.Blocked, res.SuccessRate(), res.Took.Round(time.Second))
}

func (a *App) cmdUsers(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	args := strings.Fields(c.Message().Payload)
	sub := "stats"
	if len(args) > 0 {
		sub = strings.ToLower(args[0])
	}
	switch sub {
	case "stats":
		st, err := a.admin.Stats(ctx)
		if err != nil {
			return tghelpers.SendMD(c, "❌ Statistics are unavailable right now.")
		}
		return tghelpers.SendMD(c, statsText(st)+fmt.Sprintf("\n📈 Active today: %d (%.1f%%)", st.ActiveToday, admin.ActivityRate(st)))
	case "find":
		if len(args) < 2 {
			return tghelpers.SendMD(c, "Usage: `/users find <user_id>`")
		}
		id, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return tghelpers.SendMD(c, "❌ User id must be a number.")
		}
		u, err := a.admin.FindUser(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			return tghelpers.SendMD(c, "❌ User not found.")
		}
		if err != nil {
			return tghelpers.SendMD(c, "❌ Lookup failed.")
		}
		return tghelpers.SendMD(c, userCard(u))
	case "recent":
		users, err := a.admin.RecentUsers(ctx)
		if err != nil {
			return tghelpers.SendMD(c, "❌ Lookup failed.")
		}
		return tghelpers.SendMD(c, recentUsers(users))
	}
	return tghelpers.SendMD(c, "Usage: `/users [stats|find <id>|recent]`")
}

func userCard(u model.User) string {
	var b strings.Builder
	fmt.Fprintf(&b, "👤 *User %d*\n\n", u.UserID)
	if u.FirstName != "" {
		fmt.Fprintf(&b, "Name: %s\n", format.MD(u.FirstName))
	}
	if u.Username != "" {
		fmt.Fprintf(&b, "Username: @%s\n", format.MD(u.Username))
	}
	fmt.Fprintf(&b, "Joined: %s\nLast active: %s\n", dateOf(u.JoinedDate), dateOf(u.LastActivity))
	fmt.Fprintf(&b, "Channels: %d\n", len(u.Channels))
	for i, ch := range u.Channels {
		b.WriteString(channelLine(i, ch))
		b.WriteByte('\n')
	}
	return b.String()
}

func recentUsers(users []model.User) string {
	if len(users) == 0 {
		return "No users yet."
	}
	var b strings.Builder
	b.WriteString("🆕 *Recent Users*\n\n")
	for _, u := range users {
		name := u.FirstName
		if u.Username != "" {
			name += " @" + u.Username
		}
		fmt.Fprintf(&b, "`%d` %s (%s)\n", u.UserID, format.MD(strings.TrimSpace(name)), dateOf(u.JoinedDate))
	}
	return b.String()
}

func dateOf(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("2006-01-02 15:04")
}

func (a *App) cmdBackup(c tele.Context) error {
	if a.backups == nil {
		return tghelpers.SendMD(c, "ℹ️ Backups are disabled.")
	}
	ctx := tghelpers.BuildContext(c)
	sub := "list"
	if args := strings.Fields(c.Message().Payload); len(args) > 0 {
		sub = strings.ToLower(args[0])
	}
	switch sub {
	case "list":
		infos, err := a.backups.List()
		if err != nil {
			return tghelpers.SendMD(c, "❌ Could not list backups.")
		}
		return tghelpers.SendMD(c, backupList(infos))
	case "create":
		_ = tghelpers.SendMD(c, "⏳ Creating backup...")
		info, err := a.backups.Create(ctx)
		if err != nil {
			return tghelpers.SendMD(c, "❌ Backup failed: "+format.MD(logger.SanitizeLimit(err.Error(), 200)))
		}
		logger.UserAction(ctx, whoOf(c).UserID, "BACKUP_CREATE", slog.String("file", info.Name))
		return tghelpers.SendMD(c, fmt.Sprintf("✅ Backup created: `%s` (%s)", info.Name, sizeOf(info.Size)))
	case "cleanup":
		n, err := a.backups.Cleanup(ctx)
		if err != nil {
			return tghelpers.SendMD(c, "❌ Cleanup failed.")
		}
		return tghelpers.SendMD(c, fmt.Sprintf("🧹 Removed %d old backups.", n))
	}
	return tghelpers.SendMD(c, "Usage: `/backup [list|create|cleanup]`")
}

func backupList(infos []backup.Info) string {
	if len(infos) == 0 {
		return "📦 No backups yet. Use `/backup create`."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "📦 *Backups* (%d)\n\n", len(infos))
	for i, info := range infos {
		if i == backupsShown {
			fmt.Fprintf(&b, "... and %d more\n", len(infos)-backupsShown)
			break
		}
		fmt.Fprintf(&b, "`%s` %s, %s\n", info.Name, sizeOf(info.Size), dateOf(info.CreatedAt))
	}
	return b.String()
}

func sizeOf(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
	}
	return fmt.Sprintf("%d B", n)
}

func (a *App) cmdSystem(c tele.Context) error {
	return tghelpers.SendMD(c, systemText(a.admin.System()))
}

func systemText(s admin.System) string {
	return fmt.Sprintf("🖥 *System*\n\n"+
		"Build: %s\n"+
		"Go: %s %s/%s\n"+
		"Uptime: %s\n"+
		"Goroutines: %d\n"+
		"Memory: %.1f MB heap, %.1f MB sys, %d GC\n\n"+
		"Database: %s (%s)\n"+
		"Log level: %s\n"+
		"Max channels per user: %d\n"+
		"Backups: %s\n"+
		"Analytics: %s\n"+
		"Features on: %d",
		format.MD(s.Build), s.GoVersion, s.OS, s.Arch, s.Uptime, s.Goroutines,
		s.HeapMB, s.SysMB, s.NumGC,
		format.MD(s.Database), s.Driver, s.LogLevel, s.MaxChannels,
		onOff(s.Backup), onOff(s.Analytics), s.Features)
}
