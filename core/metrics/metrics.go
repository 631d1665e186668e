// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the bot collectors.
type Metrics struct {
	UpdatesTotal     *prometheus.CounterVec
	HandlerDuration  *prometheus.HistogramVec
	RateLimitedTotal prometheus.Counter
	MessagesSent     prometheus.Counter
	APICalls         *prometheus.CounterVec

	PublishTotal    *prometheus.CounterVec
	EditsTotal      *prometheus.CounterVec
	PinFailures     prometheus.Counter
	ActiveSessions  prometheus.Gauge
	BroadcastsSent  *prometheus.CounterVec
	BackupsTotal    *prometheus.CounterVec
	ChannelsChanged *prometheus.CounterVec
}

var (
	defaultMetrics *Metrics
	once           sync.Once
)

// Default returns the process-wide collectors, registering them on first use.
func Default() *Metrics {
	once.Do(func() {
		defaultMetrics = newMetrics(promauto.With(prometheus.DefaultRegisterer))
	})
	return defaultMetrics
}

// New registers a fresh set of collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	return newMetrics(promauto.With(reg))
}

func newMetrics(f promauto.Factory) *Metrics {
	return &Metrics{
		UpdatesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "postbot_updates_total",
			Help: "Handled updates by handler and outcome.",
		}, []string{"handler", "outcome"}),
		HandlerDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "postbot_handler_duration_seconds",
			Help:    "Handler latency.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"handler"}),
		RateLimitedTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "postbot_rate_limited_total",
			Help: "Updates dropped by the per-user rate limit.",
		}),
		MessagesSent: f.NewCounter(prometheus.CounterOpts{
			Name: "postbot_replies_total",
			Help: "Replies sent to users from handlers.",
		}),
		APICalls: f.NewCounterVec(prometheus.CounterOpts{
			Name: "postbot_api_calls_total",
			Help: "Bot API calls made through the sender by endpoint and result kind.",
		}, []string{"endpoint", "kind"}),
		PublishTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "postbot_publish_total",
			Help: "Channel publishes by shape and outcome.",
		}, []string{"shape", "outcome"}),
		EditsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "postbot_edits_total",
			Help: "Edits of published posts by shape and outcome.",
		}, []string{"shape", "outcome"}),
		PinFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "postbot_pin_failures_total",
			Help: "Pins that failed after a successful publish.",
		}),
		ActiveSessions: f.NewGauge(prometheus.GaugeOpts{
			Name: "postbot_sessions",
			Help: "Composer sessions currently held in memory.",
		}),
		BroadcastsSent: f.NewCounterVec(prometheus.CounterOpts{
			Name: "postbot_broadcast_messages_total",
			Help: "Broadcast deliveries by outcome.",
		}, []string{"outcome"}),
		BackupsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "postbot_backups_total",
			Help: "Backup runs by outcome.",
		}, []string{"outcome"}),
		ChannelsChanged: f.NewCounterVec(prometheus.CounterOpts{
			Name: "postbot_channel_changes_total",
			Help: "Channel connects and disconnects.",
		}, []string{"op"}),
	}
}
