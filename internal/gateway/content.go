package gateway

import (
	"context"
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/postbot/core/logger"
	"github.com/m3rciful/postbot/internal/draft"
)

// MediaOf extracts the media item of m, if it carries one.
func MediaOf(m *tele.Message) (draft.MediaItem, bool) {
	if m == nil {
		return draft.MediaItem{}, false
	}
	switch {
	case m.Photo != nil:
		return draft.MediaItem{Kind: draft.Photo, Ref: m.Photo.FileID, Caption: m.Caption}, true
	case m.Video != nil:
		return draft.MediaItem{Kind: draft.Video, Ref: m.Video.FileID, Caption: m.Caption}, true
	case m.Animation != nil:
		return draft.MediaItem{Kind: draft.Animation, Ref: m.Animation.FileID, Caption: m.Caption}, true
	case m.Document != nil:
		return draft.MediaItem{Kind: draft.Document, Ref: m.Document.FileID, Caption: m.Caption}, true
	}
	return draft.MediaItem{}, false
}

// ButtonsOf reads the URL buttons of an inline keyboard, row by row.
func ButtonsOf(rm *tele.ReplyMarkup) []draft.Button {
	if rm == nil {
		return nil
	}
	var out []draft.Button
	for _, row := range rm.InlineKeyboard {
		for _, b := range row {
			if b.URL != "" {
				out = append(out, draft.Button{Label: b.Text, URL: b.URL})
			}
		}
	}
	return out
}

// ContentOf converts a message into draft content with default settings.
func ContentOf(m *tele.Message) draft.Content {
	c := draft.NewContent()
	if m == nil {
		return c
	}
	if item, ok := MediaOf(m); ok {
		c.Text = m.Caption
		item.Caption = ""
		c.Media = []draft.MediaItem{item}
	} else {
		c.Text = m.Text
	}
	c.Buttons = ButtonsOf(m.ReplyMarkup)
	return c
}

// OriginOf returns the channel post a forwarded message came from.
func OriginOf(m *tele.Message) *draft.Target {
	if m == nil || m.Origin == nil || m.Origin.Chat == nil || m.Origin.MessageID == 0 {
		return nil
	}
	return &draft.Target{
		ChatRef:   strconv.FormatInt(m.Origin.Chat.ID, 10),
		MessageID: m.Origin.MessageID,
	}
}

// AuthorOf names who wrote m: the forward origin when present, else the
// sender.
func AuthorOf(m *tele.Message) string {
	if m == nil {
		return ""
	}
	if o := m.Origin; o != nil {
		switch {
		case o.Chat != nil && o.Chat.Title != "":
			return o.Chat.Title
		case o.SenderChat != nil && o.SenderChat.Title != "":
			return o.SenderChat.Title
		case o.Sender != nil:
			return userName(o.Sender)
		case o.SenderUsername != "":
			return o.SenderUsername
		}
	}
	if m.Sender != nil {
		return userName(m.Sender)
	}
	return ""
}

func userName(u *tele.User) string {
	name := strings.TrimSpace(strings.TrimSpace(u.FirstName + " " + u.LastName))
	if name != "" {
		return name
	}
	if u.Username != "" {
		return "@" + u.Username
	}
	return strconv.FormatInt(u.ID, 10)
}

// FetchContent reads the current content of a channel post by forwarding it
// into the user's private chat and deleting the copy afterwards. Only the
// lead message of an album is visible this way.
func (g *Telegram) FetchContent(ctx context.Context, t draft.Target, userChat int64) (draft.Content, error) {
	src, err := g.editable(ctx, t)
	if err != nil {
		return draft.Content{}, err
	}
	var fwd *tele.Message
	err = g.do(ctx, "edit.fetch", "forwardMessage", func() (err error) {
		fwd, err = g.api.Forward(&tele.Chat{ID: userChat}, src, tele.Silent)
		return err
	})
	if err != nil {
		return draft.Content{}, mapChatErr(err)
	}
	c := ContentOf(fwd)
	if derr := g.api.Delete(fwd); derr != nil {
		logger.Debug(ctx, logger.CompPublish, "edit.fetch_cleanup", logger.Err(derr))
	}
	return c, nil
}
