// Package gateway implements the publish and channel ports on top of the
// Telegram Bot API.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/postbot/core/telegram/keyboard"
	"github.com/m3rciful/postbot/core/telegram/sender"
	"github.com/m3rciful/postbot/internal/channels"
	"github.com/m3rciful/postbot/internal/draft"
	"github.com/m3rciful/postbot/internal/publish"
)

// API is the part of *tele.Bot the gateway calls.
type API interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
	SendAlbum(to tele.Recipient, a tele.Album, opts ...interface{}) ([]tele.Message, error)
	Edit(msg tele.Editable, what interface{}, opts ...interface{}) (*tele.Message, error)
	EditCaption(msg tele.Editable, caption string, opts ...interface{}) (*tele.Message, error)
	Pin(msg tele.Editable, opts ...interface{}) error
	Unpin(chat tele.Recipient, messageID ...int) error
	Delete(msg tele.Editable) error
	Copy(to tele.Recipient, msg tele.Editable, opts ...interface{}) (*tele.Message, error)
	Forward(to tele.Recipient, msg tele.Editable, opts ...interface{}) (*tele.Message, error)
	ChatByID(id int64) (*tele.Chat, error)
	ChatByUsername(name string) (*tele.Chat, error)
	ChatMemberOf(chat, user tele.Recipient) (*tele.ChatMember, error)
}

// Telegram adapts API to publish.Gateway and channels.Resolver.
type Telegram struct {
	api  API
	self tele.Recipient
	disp *sender.Dispatcher
}

var (
	_ publish.Gateway   = (*Telegram)(nil)
	_ channels.Resolver = (*Telegram)(nil)
)

// New returns a gateway. self is the bot user used for admin checks; disp
// adds retries around every call and may be nil.
func New(api API, self tele.Recipient, disp *sender.Dispatcher) *Telegram {
	return &Telegram{api: api, self: self, disp: disp}
}

// ChatRef is a Recipient addressed by numeric id or @username.
type ChatRef string

func (r ChatRef) Recipient() string { return string(r) }

func (g *Telegram) do(ctx context.Context, action, endpoint string, fn func() error) error {
	if g.disp == nil {
		return fn()
	}
	return g.disp.Do(ctx, action, endpoint, fn)
}

// editable builds a message reference. Edits need a numeric chat id, so
// usernames are resolved first.
func (g *Telegram) editable(ctx context.Context, t draft.Target) (tele.Editable, error) {
	id, err := g.chatID(ctx, t.ChatRef)
	if err != nil {
		return nil, err
	}
	return &tele.Message{ID: t.MessageID, Chat: &tele.Chat{ID: id}}, nil
}

func (g *Telegram) chatID(ctx context.Context, ref string) (int64, error) {
	ref = strings.TrimSpace(ref)
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		return id, nil
	}
	if ref == "" {
		return 0, publish.ErrInvalidChannel
	}
	var chat *tele.Chat
	err := g.do(ctx, "resolve.chat", "getChat", func() (err error) {
		chat, err = g.api.ChatByUsername(withAt(ref))
		return err
	})
	if err != nil {
		return 0, mapChatErr(err)
	}
	return chat.ID, nil
}

func withAt(ref string) string {
	if strings.HasPrefix(ref, "@") {
		return ref
	}
	return "@" + ref
}

func sendOpts(o publish.SendOptions) []interface{} {
	var out []interface{}
	if len(o.Buttons) > 0 {
		out = append(out, Markup(o.Buttons))
	}
	if o.Silent {
		out = append(out, tele.Silent)
	}
	if o.NoLinkPreview {
		out = append(out, tele.NoPreview)
	}
	return out
}

// Markup renders post buttons as a URL keyboard.
func Markup(buttons []draft.Button) *tele.ReplyMarkup {
	btns := make([]keyboard.URLBtn, len(buttons))
	for i, b := range buttons {
		btns[i] = keyboard.URLBtn{Text: b.Label, URL: b.URL}
	}
	return keyboard.URLButtonsNPerRow(btns, publish.ButtonsPerRow)
}

func target(m *tele.Message) draft.Target {
	if m == nil {
		return draft.Target{}
	}
	t := draft.Target{MessageID: m.ID}
	if m.Chat != nil {
		t.ChatRef = strconv.FormatInt(m.Chat.ID, 10)
	}
	return t
}

// Sendable converts a stored media item into a telebot value carrying
// caption.
func Sendable(item draft.MediaItem, caption string) (tele.Inputtable, error) {
	f := tele.File{FileID: item.Ref}
	switch item.Kind {
	case draft.Photo:
		return &tele.Photo{File: f, Caption: caption}, nil
	case draft.Video:
		return &tele.Video{File: f, Caption: caption}, nil
	case draft.Document:
		return &tele.Document{File: f, Caption: caption}, nil
	case draft.Animation:
		return &tele.Animation{File: f, Caption: caption}, nil
	default:
		return nil, fmt.Errorf("unsupported media kind %q", item.Kind)
	}
}

func (g *Telegram) SendText(ctx context.Context, chatRef, text string, opts publish.SendOptions) (draft.Target, error) {
	var msg *tele.Message
	err := g.do(ctx, "publish.text", "sendMessage", func() (err error) {
		msg, err = g.api.Send(ChatRef(chatRef), text, sendOpts(opts)...)
		return err
	})
	if err != nil {
		return draft.Target{}, mapChatErr(err)
	}
	return target(msg), nil
}

func (g *Telegram) SendMedia(ctx context.Context, chatRef string, item draft.MediaItem, caption string, opts publish.SendOptions) (draft.Target, error) {
	what, err := Sendable(item, caption)
	if err != nil {
		return draft.Target{}, err
	}
	var msg *tele.Message
	err = g.do(ctx, "publish.media", "send"+string(item.Kind), func() (err error) {
		msg, err = g.api.Send(ChatRef(chatRef), what, sendOpts(opts)...)
		return err
	})
	if err != nil {
		return draft.Target{}, mapChatErr(err)
	}
	return target(msg), nil
}

func (g *Telegram) SendAlbum(ctx context.Context, chatRef string, items []draft.MediaItem, caption string, opts publish.SendOptions) ([]draft.Target, error) {
	album := make(tele.Album, 0, len(items))
	for i, item := range items {
		c := ""
		if i == 0 {
			c = caption
		}
		in, err := Sendable(item, c)
		if err != nil {
			return nil, err
		}
		album = append(album, in)
	}
	var sent []tele.Message
	err := g.do(ctx, "publish.album", "sendMediaGroup", func() (err error) {
		// albums cannot carry a keyboard
		sent, err = g.api.SendAlbum(ChatRef(chatRef), album, sendOpts(publish.SendOptions{Silent: opts.Silent})...)
		return err
	})
	if err != nil {
		return nil, mapChatErr(err)
	}
	out := make([]draft.Target, len(sent))
	for i := range sent {
		out[i] = target(&sent[i])
	}
	return out, nil
}

func (g *Telegram) EditText(ctx context.Context, t draft.Target, text string, opts publish.SendOptions) error {
	msg, err := g.editable(ctx, t)
	if err != nil {
		return err
	}
	return g.do(ctx, "edit.text", "editMessageText", func() error {
		_, err := g.api.Edit(msg, text, editOpts(opts)...)
		return ignoreNotModified(err)
	})
}

func (g *Telegram) EditMedia(ctx context.Context, t draft.Target, item draft.MediaItem, caption string, opts publish.SendOptions) error {
	msg, err := g.editable(ctx, t)
	if err != nil {
		return err
	}
	what, err := Sendable(item, caption)
	if err != nil {
		return err
	}
	return g.do(ctx, "edit.media", "editMessageMedia", func() error {
		_, err := g.api.Edit(msg, what, editOpts(opts)...)
		return ignoreNotModified(err)
	})
}

func (g *Telegram) EditCaption(ctx context.Context, t draft.Target, caption string, opts publish.SendOptions) error {
	msg, err := g.editable(ctx, t)
	if err != nil {
		return err
	}
	return g.do(ctx, "edit.caption", "editMessageCaption", func() error {
		_, err := g.api.EditCaption(msg, caption, editOpts(opts)...)
		return ignoreNotModified(err)
	})
}

// editOpts always sends a keyboard so that removed buttons disappear.
func editOpts(o publish.SendOptions) []interface{} {
	out := []interface{}{Markup(o.Buttons)}
	if o.NoLinkPreview {
		out = append(out, tele.NoPreview)
	}
	return out
}

func (g *Telegram) Pin(ctx context.Context, t draft.Target, silent bool) error {
	msg, err := g.editable(ctx, t)
	if err != nil {
		return err
	}
	var opts []interface{}
	if silent {
		opts = append(opts, tele.Silent)
	}
	return g.do(ctx, "target.pin", "pinChatMessage", func() error {
		return g.api.Pin(msg, opts...)
	})
}

func (g *Telegram) Unpin(ctx context.Context, t draft.Target) error {
	return g.do(ctx, "target.unpin", "unpinChatMessage", func() error {
		return g.api.Unpin(ChatRef(t.ChatRef), t.MessageID)
	})
}

func (g *Telegram) Delete(ctx context.Context, t draft.Target) error {
	msg, err := g.editable(ctx, t)
	if err != nil {
		return err
	}
	return g.do(ctx, "target.delete", "deleteMessage", func() error {
		return g.api.Delete(msg)
	})
}

func (g *Telegram) Copy(ctx context.Context, src draft.Target, chatRef string) (draft.Target, error) {
	msg, err := g.editable(ctx, src)
	if err != nil {
		return draft.Target{}, err
	}
	var out *tele.Message
	err = g.do(ctx, "clone.copy", "copyMessage", func() (err error) {
		out, err = g.api.Copy(ChatRef(chatRef), msg)
		return err
	})
	if err != nil {
		return draft.Target{}, mapChatErr(err)
	}
	// copyMessage only returns the new id
	t := target(out)
	if t.ChatRef == "" {
		t.ChatRef = chatRef
	}
	return t, nil
}

func (g *Telegram) Forward(ctx context.Context, src draft.Target, chatRef string) (draft.Target, error) {
	msg, err := g.editable(ctx, src)
	if err != nil {
		return draft.Target{}, err
	}
	var out *tele.Message
	err = g.do(ctx, "clone.forward", "forwardMessage", func() (err error) {
		out, err = g.api.Forward(ChatRef(chatRef), msg)
		return err
	})
	if err != nil {
		return draft.Target{}, mapChatErr(err)
	}
	return target(out), nil
}

// ResolveChat looks a chat up by numeric id or username.
func (g *Telegram) ResolveChat(ctx context.Context, identifier string) (channels.Chat, error) {
	var chat *tele.Chat
	err := g.do(ctx, "resolve.chat", "getChat", func() (err error) {
		if id, perr := strconv.ParseInt(identifier, 10, 64); perr == nil {
			chat, err = g.api.ChatByID(id)
		} else {
			chat, err = g.api.ChatByUsername(withAt(identifier))
		}
		return err
	})
	if err != nil {
		return channels.Chat{}, mapChatErr(err)
	}
	return channels.Chat{
		ChatRef:  strconv.FormatInt(chat.ID, 10),
		Title:    chat.Title,
		Username: chat.Username,
		Kind:     string(chat.Type),
	}, nil
}

// BotIsAdmin reports whether the bot is an administrator or the creator of
// chatRef.
func (g *Telegram) BotIsAdmin(ctx context.Context, chatRef string) (bool, error) {
	var member *tele.ChatMember
	err := g.do(ctx, "resolve.member", "getChatMember", func() (err error) {
		member, err = g.api.ChatMemberOf(ChatRef(chatRef), g.self)
		return err
	})
	if err != nil {
		return false, mapChatErr(err)
	}
	return member.Role == tele.Administrator || member.Role == tele.Creator, nil
}

func mapChatErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, tele.ErrChatNotFound) || strings.Contains(strings.ToLower(err.Error()), "chat not found") {
		return fmt.Errorf("%w: %v", channels.ErrChatNotFound, err)
	}
	return err
}

func ignoreNotModified(err error) error {
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "message is not modified") {
		return nil
	}
	return err
}
