// Package router turns the registry into telebot routes. Every route logs
// one handler.handled line and feeds the update metrics.
package router

import (
	"context"
	"log/slog"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/postbot/core/logger"
	"github.com/m3rciful/postbot/core/metrics"
	tghelpers "github.com/m3rciful/postbot/core/telegram/helpers"
	"github.com/m3rciful/postbot/core/telegram/middleware"
	"github.com/m3rciful/postbot/core/telegram/sender"
)

// observe runs h as the handler called name.
func observe(c tele.Context, name string, h tele.HandlerFunc, extra ...slog.Attr) error {
	start := time.Now()
	ctx := tghelpers.WithHandler(c, name)
	err := h(c)
	status := "ok"
	if err != nil {
		status = "fail"
	}
	summarize(ctx, c, name, status, time.Since(start), err, extra)
	return err
}

// skip records an update no handler took.
func skip(c tele.Context, name string) {
	summarize(tghelpers.WithHandler(c, name), c, name, "skip", 0, nil, nil)
}

func summarize(ctx context.Context, c tele.Context, name, status string, took time.Duration, err error, extra []slog.Attr) {
	outcome := "ok"
	if err != nil {
		outcome = "fail"
	}
	m := metrics.Default()
	m.UpdatesTotal.WithLabelValues(name, outcome).Inc()
	m.HandlerDuration.WithLabelValues(name).Observe(took.Seconds())

	msgs, kb := middleware.Replies(c)
	attrs := append([]slog.Attr{
		slog.String("status", status),
		slog.String("outcome", outcome),
		slog.Duration("duration", took),
		slog.Int("messages", msgs),
		slog.Bool("kb", kb),
	}, extra...)
	if err != nil {
		attrs = append(attrs, logger.Err(err), slog.String("err_code", errCode(err)))
	}
	logger.LogEvent(ctx, logger.TG, slog.LevelInfo, "handler.handled", attrs...)
}

// handlerName turns a command or callback key into a metric label.
func handlerName(key string) string {
	key = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(key), "/"))
	if key == "" {
		return "unknown"
	}
	return strings.ReplaceAll(key, " ", "_")
}

// errCode classifies err for logs: an explicit Code, the transport kind of
// a Bot API failure, or HANDLER.
func errCode(err error) string {
	if err == nil {
		return ""
	}
	if c, ok := err.(interface{ Code() string }); ok {
		if code := strings.TrimSpace(c.Code()); code != "" {
			return strings.ToUpper(strings.ReplaceAll(code, " ", "_"))
		}
	}
	if kind := sender.Kind(err); kind != "unknown" {
		return strings.ToUpper(kind)
	}
	return "HANDLER"
}
