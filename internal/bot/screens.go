package bot

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/postbot/core/telegram/format"
	"github.com/m3rciful/postbot/internal/channels"
	"github.com/m3rciful/postbot/internal/compose"
	"github.com/m3rciful/postbot/internal/draft"
	"github.com/m3rciful/postbot/internal/model"
	"github.com/m3rciful/postbot/internal/preview"
	"github.com/m3rciful/postbot/internal/publish"
)

// Reply is one bot message. Text uses legacy Markdown.
type Reply struct {
	Text   string
	Markup *tele.ReplyMarkup
	// Edit replaces the message a callback came from when possible.
	Edit bool
}

const (
	textPreviewRunes = 50
	buttonsShown     = 3
	reasonRunes      = 50
)

func startScreen(name string) Reply {
	if name == "" {
		name = "there"
	}
	return Reply{
		Text:   "Hello, " + format.MD(name) + "!\nYou can use the following options:",
		Markup: mainMenu(),
	}
}

func render(s compose.Screen, d draft.Draft, env compose.Env, name string) Reply {
	editing := d.IsEditing()
	switch s {
	case compose.ScreenStart:
		return startScreen(name)
	case compose.ScreenPostMenu:
		return Reply{Text: postStatus(d.Content), Markup: postMenu()}
	case compose.ScreenPromptText:
		if editing {
			return Reply{Text: "📝 Send the new text for the message.", Markup: backMenu(true)}
		}
		return Reply{Text: "📝 Send the text for your post.", Markup: backMenu(false)}
	case compose.ScreenPromptMedia:
		return Reply{
			Text: fmt.Sprintf("📷 Send photos, videos, documents or animations (%d/%d).\n"+
				"Tap \"%s\" or send /done when finished.", len(d.Media), mediaMax(env.Limits), LabelDoneMedia),
			Markup: mediaMenu(editing),
		}
	case compose.ScreenButtonMenu:
		return Reply{Text: buttonsStatus(d.Buttons, env.Limits), Markup: buttonsMenu(editing)}
	case compose.ScreenPromptButtonLabel:
		return Reply{Text: "🔤 Send the text for the new button.", Markup: backMenu(editing)}
	case compose.ScreenPromptButtonURL:
		return Reply{
			Text:   "🌐 Send the URL for *" + format.MD(d.Pending.ButtonLabel) + "*.",
			Markup: backMenu(editing),
		}
	case compose.ScreenPromptBulk:
		return Reply{
			Text: "📋 Send buttons in one message:\n" +
				"`Label - https://example.com | Other - https://example.org`",
			Markup: backMenu(editing),
		}
	case compose.ScreenConfirmClear:
		return Reply{Text: "⚠️ *Clear all content?*\n\nText, media and buttons will be removed.", Markup: confirmClearMenu()}
	case compose.ScreenChannelPicker:
		return Reply{Text: channelList("📢 *Select Channels to Post*\n\nChoose where to publish your post:", env.Channels), Markup: channelPicker(env.Channels)}
	case compose.ScreenMultiPicker:
		return Reply{
			Text:   fmt.Sprintf("☑️ *Select channels*\n\n*Selected:* %d channel(s)", len(d.Selected)),
			Markup: multiPicker(env.Channels, d.Selected),
			Edit:   true,
		}
	case compose.ScreenEditChannelPicker:
		return Reply{Text: channelList("✏️ *Edit Post*\n\nChoose the channel of the message:", env.Channels), Markup: editChannelPicker(env.Channels)}
	case compose.ScreenPromptLink:
		where := "your channel"
		if d.Pending.Channel >= 0 && d.Pending.Channel < len(env.Channels) {
			where = "*" + format.MD(channelTitle(env.Channels[d.Pending.Channel])) + "*"
		}
		return Reply{
			Text: "🔗 Send the link of the message to edit in " + where +
				" (for example https://t.me/channel/123), or forward the post here.",
			Markup: cancelEditMenu(),
		}
	case compose.ScreenEditMenu:
		return Reply{Text: editStatus(d), Markup: editMenu()}
	case compose.ScreenConfirmDelete:
		return Reply{Text: "⚠️ *Delete this message from the channel?*\n\nThis cannot be undone.", Markup: confirmDeleteMenu()}
	case compose.ScreenPromptQuote:
		return Reply{
			Text:   "💬 *Quote Message*\n\nForward or send me the message you want to quote.",
			Markup: backMenu(false),
		}
	case compose.ScreenPromptClone:
		return Reply{Text: "📋 Send the message to copy to " + primary(env) + ".", Markup: backMenu(false)}
	case compose.ScreenPromptForward:
		return Reply{Text: "↪️ Forward the message to re-forward it to " + primary(env) + ".", Markup: backMenu(false)}
	}
	return startScreen(name)
}

func primary(env compose.Env) string {
	if len(env.Channels) == 0 {
		return "your channel"
	}
	return "*" + format.MD(channelTitle(env.Channels[0])) + "*"
}

func mediaMax(lim draft.Limits) int {
	if lim.MaxMedia <= 0 || lim.MaxMedia > draft.MaxAlbumItems {
		return draft.MaxAlbumItems
	}
	return lim.MaxMedia
}

func channelList(header string, chans []model.Channel) string {
	var b strings.Builder
	b.WriteString(header)
	b.WriteString("\n\n")
	for i, ch := range chans {
		fmt.Fprintf(&b, "%d. *%s*\n", i+1, format.MD(channelTitle(ch)))
		if ch.Username != "" {
			fmt.Fprintf(&b, "    @%s\n", format.MD(strings.TrimPrefix(ch.Username, "@")))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func statusLines(c draft.Content) []string {
	var lines []string
	if c.Text != "" {
		lines = append(lines,
			fmt.Sprintf("📝 Text: ✅ (%d chars)", utf8.RuneCountInString(c.Text)),
			"   Preview: \""+format.MD(format.Preview(c.Text, textPreviewRunes))+"\"",
		)
	} else {
		lines = append(lines, "📝 Text: ❌ No text added")
	}

	if len(c.Media) > 0 {
		lines = append(lines,
			fmt.Sprintf("📷 Media: ✅ (%d files)", len(c.Media)),
			"   Types: "+mediaSummary(c.Media),
		)
	} else {
		lines = append(lines, "📷 Media: ❌ No media added")
	}

	if len(c.Buttons) > 0 {
		lines = append(lines, fmt.Sprintf("🔗 Buttons: ✅ (%d buttons)", len(c.Buttons)))
		for i, b := range c.Buttons {
			if i == buttonsShown {
				lines = append(lines, fmt.Sprintf("   ... and %d more", len(c.Buttons)-buttonsShown))
				break
			}
			lines = append(lines, fmt.Sprintf("   %d. %s", i+1, format.MD(b.Label)))
		}
	} else {
		lines = append(lines, "🔗 Buttons: ❌ No buttons added")
	}

	lines = append(lines, "⚙️ Settings: "+settingsIcons(c.Settings))
	return lines
}

// mediaSummary counts media per kind in first-seen order.
func mediaSummary(items []draft.MediaItem) string {
	counts := map[draft.MediaKind]int{}
	var order []draft.MediaKind
	for _, m := range items {
		if counts[m.Kind] == 0 {
			order = append(order, m.Kind)
		}
		counts[m.Kind]++
	}
	parts := make([]string, 0, len(order))
	for _, k := range order {
		parts = append(parts, strconv.Itoa(counts[k])+" "+string(k))
	}
	return strings.Join(parts, ", ")
}

func settingsIcons(s draft.Settings) string {
	var icons []string
	if s.Pin {
		icons = append(icons, "📌")
	}
	if s.Notify {
		icons = append(icons, "🔔")
	}
	if s.LinkPreview {
		icons = append(icons, "🔗")
	}
	if len(icons) == 0 {
		return "Default settings"
	}
	return strings.Join(icons, " ")
}

func onOff(b bool) string {
	if b {
		return "On"
	}
	return "Off"
}

func postStatus(c draft.Content) string {
	ready := "⚠️ Add content to publish"
	if c.Ready() {
		ready = "✅ Ready to publish"
	}
	return "🌟 *Create Your Post* 🌟\n\n*Status:*\n" + strings.Join(statusLines(c), "\n") +
		"\n\n*" + ready + "*\n\nChoose an option:"
}

func editStatus(d draft.Draft) string {
	t, _ := d.EditTarget()
	return fmt.Sprintf("✏️ *Editing message* %d in %s\n\n", t.MessageID, format.MD(t.ChatRef)) +
		strings.Join(statusLines(d.Content), "\n") + "\n\nChoose what to change:"
}

func buttonsStatus(buttons []draft.Button, lim draft.Limits) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🔗 *Buttons* (%d/%d)\n", len(buttons), lim.MaxButtons)
	for i, btn := range buttons {
		fmt.Fprintf(&b, "%d. %s → %s\n", i+1, format.MD(btn.Label), format.MD(btn.URL))
	}
	b.WriteString("\nChoose an option:")
	return b.String()
}

func notice(n compose.Notice, d draft.Draft) Reply {
	switch n.Kind {
	case compose.NoticeTextSet:
		if d.IsEditing() {
			return Reply{Text: "✅ Text updated."}
		}
		return Reply{Text: "✅ Text added to your post!"}
	case compose.NoticeMediaAdded:
		return Reply{Text: fmt.Sprintf("✅ Media added! (%d/%d)\nSend more or tap \"%s\".", n.Count, n.Max, LabelDoneMedia)}
	case compose.NoticeMediaCleared:
		return Reply{Text: "🗑 All media cleared."}
	case compose.NoticeButtonAdded:
		return Reply{Text: fmt.Sprintf("✅ Button added! (%d/%d)", n.Count, n.Max)}
	case compose.NoticeButtonsAdded:
		return Reply{Text: fmt.Sprintf("✅ Added %d button(s).", n.Count)}
	case compose.NoticeButtonsCleared:
		return Reply{Text: "🗑 All buttons cleared."}
	case compose.NoticeSettings:
		s := d.Settings
		return Reply{Text: fmt.Sprintf("⚙️ Settings updated\n📌 Pin: %s\n🔔 Notifications: %s\n🔗 Link preview: %s",
			onOff(s.Pin), onOff(s.Notify), onOff(s.LinkPreview))}
	case compose.NoticeCleared:
		return Reply{Text: "🗑 All content cleared."}
	case compose.NoticeKept:
		return Reply{Text: "👍 Content kept."}
	case compose.NoticeQuoteAdded:
		return Reply{Text: "💬 Quote added to your post."}
	case compose.NoticeLoadFailed:
		return Reply{Text: "⚠️ Could not load the current content of this message. You can still set new content."}
	case compose.NoticeEditCancelled:
		return Reply{Text: "❌ Edit cancelled."}
	}
	return Reply{Text: "✅ Done."}
}

// rejectText turns an input or gateway error into a user-facing message.
func rejectText(err error, lim draft.Limits) string {
	var batch *draft.BatchError
	switch {
	case errors.As(err, &batch):
		return fmt.Sprintf("❌ Button %d (%s): %s.\nUse `Label - https://example.com`, pairs separated by `|`.",
			batch.Index+1, format.MD(batch.Pair), batch.Err)
	case errors.Is(err, compose.ErrNotReady), errors.Is(err, publish.ErrEmptyContent):
		return "⚠️ *No Content*\n\nPlease add some text or media first."
	case errors.Is(err, compose.ErrNoChannels):
		return "❌ *No Connected Channels*\n\nYou need to connect to at least one channel first.\nUse `/connect @channelname` to connect to a channel."
	case errors.Is(err, compose.ErrNothingSelected):
		return "⚠️ No channels selected."
	case errors.Is(err, compose.ErrBadChannel):
		return "❌ Unknown channel."
	case errors.Is(err, compose.ErrWrongChannel):
		return "❌ That message is not from the selected channel."
	case errors.Is(err, compose.ErrPickChannel):
		return "⚠️ Choose a channel first."
	case errors.Is(err, compose.ErrExpectedMedia):
		return "⚠️ Please send a photo, video, document or animation."
	case errors.Is(err, compose.ErrExpectedText):
		return "⚠️ Please send text."
	case errors.Is(err, compose.ErrSessionExpired):
		return "⌛ Your session has expired. Please start again."
	case errors.Is(err, draft.ErrEmptyText):
		return "⚠️ Text cannot be empty."
	case errors.Is(err, draft.ErrEmptyLabel):
		return "⚠️ Button text cannot be empty."
	case errors.Is(err, draft.ErrButtonLimit):
		return fmt.Sprintf("⚠️ Maximum %d buttons reached.", lim.MaxButtons)
	case errors.Is(err, draft.ErrMediaLimit):
		return fmt.Sprintf("⚠️ Maximum %d media items reached.", mediaMax(lim))
	case errors.Is(err, draft.ErrInvalidURL):
		return "❌ Invalid URL. Send a link like https://example.com"
	case errors.Is(err, draft.ErrBadLink):
		return "❌ That is not a message link. Send https://t.me/channel/123 or forward the post here."
	case errors.Is(err, publish.ErrUnsupportedMultiMediaEdit):
		return "❌ Media groups only support caption edits. Keep the text and try again."
	case errors.Is(err, channels.ErrNotAChannel):
		return "❌ That chat is not a channel."
	case errors.Is(err, channels.ErrNotAdmin):
		return "❌ I am not an administrator of that channel. Add me as an admin and try again."
	case errors.Is(err, channels.ErrAlreadyConnected):
		return "ℹ️ That channel is already connected."
	case errors.Is(err, channels.ErrLimitReached):
		return "❌ You have reached the channel limit. Disconnect a channel first."
	case errors.Is(err, channels.ErrChatNotFound):
		return "❌ Channel not found. Check the username or id and make sure I am a member."
	case errors.Is(err, channels.ErrNotFound):
		return "❌ That channel is not connected."
	}
	return "❌ " + format.MD(publish.ShortReason(err, reasonRunes*2))
}

func publishSummary(res publish.MultiResult, total int) string {
	var b strings.Builder
	switch res.Outcome() {
	case "ok":
		b.WriteString("✅ *Post Published Successfully!*\n\n")
		if total == 1 {
			b.WriteString("Your post has been sent to *" + format.MD(channelTitle(res.Succeeded[0].Channel)) + "*")
		} else {
			fmt.Fprintf(&b, "Your post has been sent to *%d* channels", total)
		}
	case "partial":
		b.WriteString("⚠️ *Partially Published*\n\n")
		fmt.Fprintf(&b, "Successfully posted to *%d* out of *%d* channels\n\n*Failed channels:*\n", len(res.Succeeded), total)
		writeFailures(&b, res.Failed)
	default:
		b.WriteString("❌ *Publishing Failed*\n\n")
		writeFailures(&b, res.Failed)
		b.WriteString("\nYour draft was kept. Try again after fixing the problem.")
	}
	for _, rec := range res.Succeeded {
		if rec.PinErr != nil {
			fmt.Fprintf(&b, "\n📌 Could not pin in %s: %s", format.MD(channelTitle(rec.Channel)),
				format.MD(publish.ShortReason(rec.PinErr, reasonRunes)))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func writeFailures(b *strings.Builder, failed []publish.Failure) {
	for _, f := range failed {
		fmt.Fprintf(b, "• %s: %s\n", format.MD(channelTitle(f.Channel)), format.MD(publish.ShortReason(f.Err, reasonRunes)))
	}
}

func previewHeader(c draft.Content) string {
	var b strings.Builder
	b.WriteString("👁 *POST PREVIEW*\n\n")
	if c.Text != "" {
		fmt.Fprintf(&b, "📝 Text: %d chars\n", utf8.RuneCountInString(c.Text))
	}
	if len(c.Media) > 0 {
		fmt.Fprintf(&b, "📷 Media: %d file(s) attached\n", len(c.Media))
	}
	if len(c.Buttons) > 0 {
		b.WriteString("🔗 Buttons:\n")
		for _, btn := range c.Buttons {
			fmt.Fprintf(&b, "   %s → %s\n", format.MD(btn.Label), format.MD(btn.URL))
		}
	}
	fmt.Fprintf(&b, "\n⚙️ Pin Post: %s\n🔔 Notifications: %s\n🔗 Link Preview: %s",
		onOff(c.Settings.Pin), onOff(c.Settings.Notify), onOff(c.Settings.LinkPreview))
	return b.String()
}

func linkCard(l preview.Link) string {
	return "🔗 *" + format.MD(l.Title) + "*\n" + format.MD(l.Description) + "\n" + format.MD(l.URL)
}

func channelTitleMD(ch model.Channel) string { return format.MD(channelTitle(ch)) }

func channelLine(i int, ch model.Channel) string {
	line := fmt.Sprintf("%d. *%s*", i+1, format.MD(channelTitle(ch)))
	if ch.Username != "" {
		line += " (@" + format.MD(strings.TrimPrefix(ch.Username, "@")) + ")"
	}
	return line + " `" + ch.ChatRef + "`"
}
