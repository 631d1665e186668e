package middleware

import (
	"sync/atomic"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/postbot/core/metrics"
)

const repliesSlot = "postbot.replies"

// replies counts what the handlers of one update sent. Sends finished by
// the dispatcher after the handler returned are counted too.
type replies struct {
	n  atomic.Int32
	kb atomic.Bool
}

func (r *replies) add(opts []any) {
	r.n.Add(1)
	metrics.Default().MessagesSent.Inc()
	for _, o := range opts {
		switch v := o.(type) {
		case *tele.SendOptions:
			if v != nil && v.ReplyMarkup != nil {
				r.kb.Store(true)
			}
		case *tele.ReplyMarkup:
			if v != nil {
				r.kb.Store(true)
			}
		}
	}
}

// countingContext counts successful sends and edits.
type countingContext struct {
	tele.Context
	r *replies
}

func (c countingContext) counted(err error, opts []any) error {
	if err == nil {
		c.r.add(opts)
	}
	return err
}

func (c countingContext) Send(what any, opts ...any) error {
	return c.counted(c.Context.Send(what, opts...), opts)
}

func (c countingContext) Reply(what any, opts ...any) error {
	return c.counted(c.Context.Reply(what, opts...), opts)
}

func (c countingContext) Edit(what any, opts ...any) error {
	return c.counted(c.Context.Edit(what, opts...), opts)
}

func (c countingContext) EditOrSend(what any, opts ...any) error {
	return c.counted(c.Context.EditOrSend(what, opts...), opts)
}

func (c countingContext) EditOrReply(what any, opts ...any) error {
	return c.counted(c.Context.EditOrReply(what, opts...), opts)
}

// ReplyCounterMiddleware hands handlers a context that counts their replies.
func ReplyCounterMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		r := &replies{}
		c.Set(repliesSlot, r)
		return next(countingContext{Context: c, r: r})
	}
}

// Replies reports how many messages were sent for the update in c so far
// and whether any carried a keyboard.
func Replies(c tele.Context) (int, bool) {
	r, ok := c.Get(repliesSlot).(*replies)
	if !ok {
		return 0, false
	}
	return int(r.n.Load()), r.kb.Load()
}
