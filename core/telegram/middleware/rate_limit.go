package middleware

import (
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/postbot/core/logger"
	"github.com/m3rciful/postbot/core/metrics"
	tghelpers "github.com/m3rciful/postbot/core/telegram/helpers"
)

// RateLimitOptions configures behaviour of the rate limit middleware.
type RateLimitOptions struct {
	// Requests per Window are allowed for each user, with bursts up to
	// Requests.
	Requests  int
	Window    time.Duration
	Exclude   map[string]struct{}
	OnLimited tele.HandlerFunc
	Metrics   *metrics.Metrics
}

// UpdateKind classifies an update for exclusion lists.
func UpdateKind(upd tele.Update) string {
	switch {
	case upd.Callback != nil:
		return "callback"
	case upd.Message != nil:
		return "message"
	case upd.Query != nil:
		return "inline_query"
	}
	return "other"
}

// RateLimiter holds one token bucket per user.
type RateLimiter struct {
	opts     RateLimitOptions
	mu       sync.Mutex
	limiters map[int64]*rate.Limiter
}

// NewRateLimiter returns a limiter; it allows everything when Requests or
// Window is not positive.
func NewRateLimiter(opts RateLimitOptions) *RateLimiter {
	return &RateLimiter{opts: opts, limiters: make(map[int64]*rate.Limiter)}
}

// Allow consumes one token for userID.
func (l *RateLimiter) Allow(userID int64) bool {
	if l.opts.Requests <= 0 || l.opts.Window <= 0 {
		return true
	}
	l.mu.Lock()
	lim, ok := l.limiters[userID]
	if !ok {
		every := l.opts.Window / time.Duration(l.opts.Requests)
		lim = rate.NewLimiter(rate.Every(every), l.opts.Requests)
		l.limiters[userID] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}

// Middleware drops updates from users over their budget.
func (l *RateLimiter) Middleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		user := c.Sender()
		if user == nil {
			return next(c)
		}
		kind := UpdateKind(c.Update())
		if _, skip := l.opts.Exclude[kind]; skip {
			return next(c)
		}
		if l.Allow(user.ID) {
			return next(c)
		}

		ctx := tghelpers.BuildContext(c)
		logger.Warn(ctx, logger.CompTG, "tg.rate_limit",
			slog.Int64("user_id", user.ID),
			slog.String("kind", kind),
		)
		if l.opts.Metrics != nil {
			l.opts.Metrics.RateLimitedTotal.Inc()
		}
		if l.opts.OnLimited != nil {
			_ = l.opts.OnLimited(c)
		}
		return nil
	}
}

// RateLimitMiddleware builds a per-user limiter middleware.
func RateLimitMiddleware(opts RateLimitOptions) tele.MiddlewareFunc {
	return NewRateLimiter(opts).Middleware
}
