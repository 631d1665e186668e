package logger

import (
	"context"
	"log/slog"
)

type ctxKey int

const (
	loggerKey ctxKey = iota
	ridKey
	updateKey
	handlerKey
)

// updateMeta identifies the Telegram update a context serves.
type updateMeta struct {
	UpdateID int
	UserID   int64
	ChatID   int64
}

func orBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

// WithLogger stores log in ctx; nil leaves ctx unchanged.
func WithLogger(ctx context.Context, log *slog.Logger) context.Context {
	ctx = orBackground(ctx)
	if log == nil {
		return ctx
	}
	return context.WithValue(ctx, loggerKey, log)
}

// FromContext returns the logger stored in ctx, or L.
func FromContext(ctx context.Context) *slog.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(loggerKey).(*slog.Logger); ok {
			return l
		}
	}
	return L
}

// WithRID attaches the request correlation id.
func WithRID(ctx context.Context, rid string) context.Context {
	return context.WithValue(orBackground(ctx), ridKey, rid)
}

func RIDFrom(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	rid, _ := ctx.Value(ridKey).(string)
	return rid
}

// WithUpdateMeta attaches the update, user and chat ids of an update.
func WithUpdateMeta(ctx context.Context, updateID int, userID, chatID int64) context.Context {
	return context.WithValue(orBackground(ctx), updateKey, updateMeta{UpdateID: updateID, UserID: userID, ChatID: chatID})
}

// WithUser attaches a user id for work done on behalf of a user outside an
// update, such as a broadcast delivery.
func WithUser(ctx context.Context, userID int64) context.Context {
	m := metaFrom(ctx)
	m.UserID = userID
	return context.WithValue(orBackground(ctx), updateKey, m)
}

func metaFrom(ctx context.Context) updateMeta {
	if ctx == nil {
		return updateMeta{}
	}
	m, _ := ctx.Value(updateKey).(updateMeta)
	return m
}

func UserIDFrom(ctx context.Context) int64 { return metaFrom(ctx).UserID }

func ChatIDFrom(ctx context.Context) int64 { return metaFrom(ctx).ChatID }

func UpdateIDFrom(ctx context.Context) int { return metaFrom(ctx).UpdateID }

// WithHandler names the handler serving ctx; empty names are ignored.
func WithHandler(ctx context.Context, handler string) context.Context {
	ctx = orBackground(ctx)
	if handler == "" {
		return ctx
	}
	return context.WithValue(ctx, handlerKey, handler)
}

func HandlerFrom(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	h, _ := ctx.Value(handlerKey).(string)
	return h
}
