// Package channels keeps the per-user list of connected channels.
package channels

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/m3rciful/postbot/core/logger"
	"github.com/m3rciful/postbot/core/metrics"
	"github.com/m3rciful/postbot/internal/model"
	"github.com/m3rciful/postbot/internal/store"
)

var (
	ErrNotAChannel      = errors.New("chat is not a channel")
	ErrNotAdmin         = errors.New("bot is not an administrator of the channel")
	ErrAlreadyConnected = errors.New("channel already connected")
	ErrLimitReached     = errors.New("channel limit reached")
	ErrNotFound         = errors.New("channel not connected")
	ErrChatNotFound     = errors.New("chat not found")
)

// KindChannel is the chat type accepted by Connect.
const KindChannel = "channel"

// Chat is what the gateway reports about a chat.
type Chat struct {
	ChatRef  string
	Title    string
	Username string
	Kind     string
}

// Resolver looks chats up through the messaging gateway.
type Resolver interface {
	// ResolveChat returns ErrChatNotFound when the gateway does not know
	// the identifier.
	ResolveChat(ctx context.Context, identifier string) (Chat, error)
	// BotIsAdmin reports whether the bot administers chatRef.
	BotIsAdmin(ctx context.Context, chatRef string) (bool, error)
}

// Options configure a Registry.
type Options struct {
	MaxChannels int
	// IsAdmin exempts a user from MaxChannels.
	IsAdmin func(userID int64) bool
	Now     func() time.Time
	Metrics *metrics.Metrics
}

// Registry connects and disconnects channels for users.
type Registry struct {
	store    store.Channels
	resolver Resolver
	max      int
	isAdmin  func(int64) bool
	now      func() time.Time
	metrics  *metrics.Metrics
}

// NewRegistry builds a registry over st and r.
func NewRegistry(st store.Channels, r Resolver, opts Options) *Registry {
	if opts.IsAdmin == nil {
		opts.IsAdmin = func(int64) bool { return false }
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Registry{
		store:    st,
		resolver: r,
		max:      opts.MaxChannels,
		isAdmin:  opts.IsAdmin,
		now:      opts.Now,
		metrics:  opts.Metrics,
	}
}

// Max returns the per-user cap.
func (r *Registry) Max() int { return r.max }

// NormalizeIdentifier prefixes @ to bare usernames. Numeric ids, -100
// ids and @names pass through.
func NormalizeIdentifier(identifier string) string {
	id := strings.TrimSpace(identifier)
	if id == "" || strings.HasPrefix(id, "@") || strings.HasPrefix(id, "-100") {
		return id
	}
	if _, err := strconv.ParseInt(strings.ReplaceAll(id, "-", ""), 10, 64); err == nil {
		return id
	}
	return "@" + id
}

// List returns the user's channels in connection order.
func (r *Registry) List(ctx context.Context, userID int64) ([]model.Channel, error) {
	chans, err := r.store.ListChannels(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}
	return chans, nil
}

// AtLimit reports whether the user can connect no further channels.
func (r *Registry) AtLimit(ctx context.Context, userID int64) (bool, error) {
	chans, err := r.List(ctx, userID)
	if err != nil {
		return false, err
	}
	return r.over(userID, len(chans)), nil
}

func (r *Registry) over(userID int64, n int) bool {
	return r.max > 0 && n >= r.max && !r.isAdmin(userID)
}

// Connect resolves identifier and appends the channel to the user's list.
func (r *Registry) Connect(ctx context.Context, userID int64, identifier string) (model.Channel, error) {
	existing, err := r.List(ctx, userID)
	if err != nil {
		return model.Channel{}, err
	}
	if r.over(userID, len(existing)) {
		return model.Channel{}, ErrLimitReached
	}

	id := NormalizeIdentifier(identifier)
	if id == "" {
		return model.Channel{}, ErrChatNotFound
	}
	chat, err := r.resolver.ResolveChat(ctx, id)
	if err != nil {
		return model.Channel{}, err
	}
	if chat.Kind != KindChannel {
		return model.Channel{Title: chat.Title, Kind: chat.Kind}, ErrNotAChannel
	}
	admin, err := r.resolver.BotIsAdmin(ctx, chat.ChatRef)
	if err != nil {
		return model.Channel{Title: chat.Title}, fmt.Errorf("check bot rights: %w", err)
	}
	if !admin {
		return model.Channel{Title: chat.Title}, ErrNotAdmin
	}

	ch := model.Channel{
		ChatRef:     chat.ChatRef,
		Title:       chat.Title,
		Username:    strings.TrimPrefix(chat.Username, "@"),
		Kind:        chat.Kind,
		ConnectedAt: r.now(),
	}
	for _, c := range existing {
		if c.ChatRef == ch.ChatRef {
			return c, ErrAlreadyConnected
		}
	}
	if err := r.store.AddChannel(ctx, userID, ch); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return ch, ErrAlreadyConnected
		}
		return model.Channel{}, fmt.Errorf("save channel: %w", err)
	}

	r.count("connect")
	logger.UserAction(ctx, userID, "CONNECT_CHANNEL", slog.String("chat_ref", ch.ChatRef))
	return ch, nil
}

// Disconnect removes the channel matching ref by chat id or username.
func (r *Registry) Disconnect(ctx context.Context, userID int64, ref string) (model.Channel, error) {
	chans, err := r.List(ctx, userID)
	if err != nil {
		return model.Channel{}, err
	}
	for _, c := range chans {
		if c.Matches(ref) {
			return c, r.remove(ctx, userID, c)
		}
	}
	return model.Channel{}, ErrNotFound
}

// DisconnectAt removes the channel at position index of List.
func (r *Registry) DisconnectAt(ctx context.Context, userID int64, index int) (model.Channel, error) {
	chans, err := r.List(ctx, userID)
	if err != nil {
		return model.Channel{}, err
	}
	if index < 0 || index >= len(chans) {
		return model.Channel{}, ErrNotFound
	}
	c := chans[index]
	return c, r.remove(ctx, userID, c)
}

func (r *Registry) remove(ctx context.Context, userID int64, c model.Channel) error {
	if err := r.store.RemoveChannel(ctx, userID, c.ChatRef); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("remove channel: %w", err)
	}
	r.count("disconnect")
	logger.UserAction(ctx, userID, "DISCONNECT_CHANNEL", slog.String("chat_ref", c.ChatRef))
	return nil
}

func (r *Registry) count(op string) {
	if r.metrics != nil {
		r.metrics.ChannelsChanged.WithLabelValues(op).Inc()
	}
}
