package telegram

import (
	"net"
	"strconv"
	"time"

	tele "gopkg.in/telebot.v4"

	coreconfig "github.com/m3rciful/postbot/core/config"
)

const defaultPollTimeout = 10 * time.Second

// allowedUpdates are the update kinds the bot handles; Telegram drops the
// rest before delivery.
var allowedUpdates = []string{"message", "callback_query"}

// pollTimeout is the configured long-poll timeout or the default.
func pollTimeout(tg coreconfig.TelegramConfig) time.Duration {
	if tg.LongPollTimeoutSeconds > 0 {
		return time.Duration(tg.LongPollTimeoutSeconds) * time.Second
	}
	return defaultPollTimeout
}

// newPoller picks the update source for the normalized run mode.
func newPoller(cfg *coreconfig.Config) tele.Poller {
	if cfg.Telegram.RunMode == coreconfig.RunModeWebhook {
		return &tele.Webhook{
			Listen:         net.JoinHostPort(cfg.Webhook.Listen, strconv.Itoa(cfg.Webhook.Port)),
			Endpoint:       &tele.WebhookEndpoint{PublicURL: cfg.Webhook.URL},
			AllowedUpdates: allowedUpdates,
		}
	}
	return &tele.LongPoller{Timeout: pollTimeout(cfg.Telegram), AllowedUpdates: allowedUpdates}
}
