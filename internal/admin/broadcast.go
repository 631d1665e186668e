// Package admin implements the operator commands: broadcasts, user
// statistics and system information.
package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/m3rciful/postbot/core/logger"
	"github.com/m3rciful/postbot/core/metrics"
	"github.com/m3rciful/postbot/internal/store"
)

// AnnouncementHeader prefixes every broadcast message.
const AnnouncementHeader = "📢 Announcement\n\n"

// ErrBlocked marks a recipient that blocked the bot.
var ErrBlocked = errors.New("bot was blocked by the user")

// Sender delivers one broadcast message to a user's private chat.
type Sender interface {
	SendTo(ctx context.Context, userID int64, text string) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, userID int64, text string) error

func (f SenderFunc) SendTo(ctx context.Context, userID int64, text string) error {
	return f(ctx, userID, text)
}

// BroadcastOptions pace a broadcast.
type BroadcastOptions struct {
	// BatchSize sends are followed by a Pause.
	BatchSize int
	Pause     time.Duration
	// RPS caps the send rate on top of the batch pause; 0 disables it.
	RPS     float64
	Metrics *metrics.Metrics
}

// Progress is reported after every batch.
type Progress struct {
	Sent   int
	Failed int
	Total  int
}

// Result summarises a finished broadcast.
type Result struct {
	ID      string
	Total   int
	Sent    int
	Failed  int
	Blocked int
	Took    time.Duration
}

// SuccessRate is the delivered share in percent.
func (r Result) SuccessRate() float64 {
	if r.Sent+r.Failed == 0 {
		return 0
	}
	return float64(r.Sent) / float64(r.Sent+r.Failed) * 100
}

// Broadcaster sends a text to every known user.
type Broadcaster struct {
	users   store.Users
	sender  Sender
	opts    BroadcastOptions
	limiter *rate.Limiter
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewBroadcaster returns a broadcaster over users and s.
func NewBroadcaster(users store.Users, s Sender, opts BroadcastOptions) *Broadcaster {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 20
	}
	b := &Broadcaster{users: users, sender: s, opts: opts, sleep: sleepCtx}
	if opts.RPS > 0 {
		b.limiter = rate.NewLimiter(rate.Limit(opts.RPS), 1)
	}
	return b
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Recipients counts the users a broadcast would reach.
func (b *Broadcaster) Recipients(ctx context.Context) (int, error) {
	ids, err := b.users.ListUserIDs(ctx)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

// Run sends AnnouncementHeader+text to every user. Individual failures are
// counted, not returned; the error is only set when the user list cannot be
// read or ctx ends.
func (b *Broadcaster) Run(ctx context.Context, text string, progress func(Progress)) (Result, error) {
	res := Result{ID: uuid.NewString()}
	start := time.Now()
	ctx = logger.WithRID(ctx, "bc-"+res.ID[:8])

	ids, err := b.users.ListUserIDs(ctx)
	if err != nil {
		return res, fmt.Errorf("broadcast: list users: %w", err)
	}
	res.Total = len(ids)
	msg := AnnouncementHeader + text

	logger.Info(ctx, logger.CompAdmin, "broadcast.start",
		slog.String("job_id", res.ID),
		slog.Int("recipients", res.Total),
	)

	for _, id := range ids {
		if b.limiter != nil {
			if err := b.limiter.Wait(ctx); err != nil {
				return b.finish(ctx, res, start, err)
			}
		}
		if err := b.sender.SendTo(ctx, id, msg); err != nil {
			res.Failed++
			b.count("fail")
			if IsBlocked(err) {
				res.Blocked++
			} else {
				logger.Warn(ctx, logger.CompAdmin, "broadcast.send_failed",
					slog.Int64("user_id", id),
					logger.Err(err),
				)
			}
			continue
		}
		res.Sent++
		b.count("ok")
		if res.Sent%b.opts.BatchSize == 0 {
			if progress != nil {
				progress(Progress{Sent: res.Sent, Failed: res.Failed, Total: res.Total})
			}
			if err := b.sleep(ctx, b.opts.Pause); err != nil {
				return b.finish(ctx, res, start, err)
			}
		}
	}
	return b.finish(ctx, res, start, nil)
}

func (b *Broadcaster) finish(ctx context.Context, res Result, start time.Time, err error) (Result, error) {
	res.Took = time.Since(start)
	attrs := []slog.Attr{
		slog.String("job_id", res.ID),
		slog.String("status", logger.Status(err)),
		slog.Int("sent", res.Sent),
		slog.Int("failed", res.Failed),
		slog.Int("blocked", res.Blocked),
		slog.Int64("duration_ms", res.Took.Milliseconds()),
	}
	if err != nil {
		attrs = append(attrs, logger.Err(err))
		logger.Warn(ctx, logger.CompAdmin, "broadcast.done", attrs...)
		return res, err
	}
	logger.Info(ctx, logger.CompAdmin, "broadcast.done", attrs...)
	return res, nil
}

func (b *Broadcaster) count(outcome string) {
	if b.opts.Metrics != nil {
		b.opts.Metrics.BroadcastsSent.WithLabelValues(outcome).Inc()
	}
}

// IsBlocked reports whether err means the user blocked the bot or
// deactivated their account.
func IsBlocked(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrBlocked) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "bot was blocked") || strings.Contains(msg, "user is deactivated")
}
