package helpers

import (
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/postbot/core/logger"
	"github.com/m3rciful/postbot/core/telegram/sender"
)

var dispatcher atomic.Pointer[sender.Dispatcher]

// SetDispatcher routes SendMD through d; nil sends inline.
func SetDispatcher(d *sender.Dispatcher) {
	dispatcher.Store(d)
}

// enqueue hands run to the dispatcher. It runs inline without one, and when
// the queue is full or closed.
func enqueue(c tele.Context, action, endpoint string, run func() error) error {
	d := dispatcher.Load()
	if d == nil {
		return run()
	}
	ctx := BuildContext(c)
	err := d.Enqueue(ctx, action, endpoint, run)
	if errors.Is(err, sender.ErrQueueFull) || errors.Is(err, sender.ErrQueueClosed) {
		logger.Warn(ctx, "tg.sender", "queue.fallback",
			slog.String("action", action),
			slog.String("endpoint", endpoint),
			logger.Err(err),
		)
		return run()
	}
	return err
}

func markdown(markup []*tele.ReplyMarkup) *tele.SendOptions {
	opts := &tele.SendOptions{ParseMode: tele.ModeMarkdown}
	if len(markup) > 0 {
		opts.ReplyMarkup = markup[0]
	}
	return opts
}

// badMarkdown reports a Markdown entity error, after which the text is
// retried without a parse mode.
func badMarkdown(err error) bool {
	return err != nil && strings.Contains(err.Error(), "can't parse entities")
}

// SendMD queues a Markdown message with an optional keyboard to the chat
// of c.
func SendMD(c tele.Context, text string, markup ...*tele.ReplyMarkup) error {
	opts := markdown(markup)
	return enqueue(c, "send.md", "sendMessage", func() error {
		err := c.Send(text, opts)
		if badMarkdown(err) {
			plain := *opts
			plain.ParseMode = ""
			err = c.Send(text, &plain)
		}
		return err
	})
}

// EditMD replaces the message of the callback in c. Editing to the same
// content is not an error.
func EditMD(c tele.Context, text string, markup ...*tele.ReplyMarkup) error {
	err := c.Edit(text, markdown(markup))
	if err != nil && strings.Contains(err.Error(), "message is not modified") {
		return nil
	}
	return err
}
