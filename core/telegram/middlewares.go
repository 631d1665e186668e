package telegram

import (
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	coreconfig "github.com/m3rciful/postbot/core/config"
	"github.com/m3rciful/postbot/core/metrics"
	"github.com/m3rciful/postbot/core/telegram/middleware"
)

// DefaultMiddlewares is the chain installed in front of every route:
// panic recovery, the per-user rate limit when configured, the update
// context and the reply counter.
func DefaultMiddlewares(cfg *coreconfig.Config, m *metrics.Metrics, onLimited func(tele.Context) error) []Middleware {
	mws := []Middleware{
		{Name: "recover", Use: middleware.RecoverMiddleware},
	}

	if cfg != nil && cfg.RateLimit.Requests > 0 && cfg.RateLimit.WindowSeconds > 0 {
		ex := make(map[string]struct{}, len(cfg.RateLimit.ExcludeUpdates))
		for _, t := range cfg.RateLimit.ExcludeUpdates {
			ex[strings.ToLower(t)] = struct{}{}
		}
		mws = append(mws, Middleware{
			Name: "rate_limit",
			Use: middleware.RateLimitMiddleware(middleware.RateLimitOptions{
				Requests:  cfg.RateLimit.Requests,
				Window:    time.Duration(cfg.RateLimit.WindowSeconds) * time.Second,
				Exclude:   ex,
				OnLimited: onLimited,
				Metrics:   m,
			}),
		})
	}

	mws = append(mws,
		Middleware{Name: "update", Use: middleware.UpdateMiddleware},
		Middleware{Name: "replies", Use: middleware.ReplyCounterMiddleware},
	)

	return mws
}
