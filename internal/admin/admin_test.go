package admin

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreconfig "github.com/m3rciful/postbot/core/config"
	"github.com/m3rciful/postbot/core/metrics"
	"github.com/m3rciful/postbot/internal/model"
	"github.com/m3rciful/postbot/internal/store/memory"
)

func seed(t *testing.T, n int) *memory.Store {
	t.Helper()
	st := memory.New()
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	for i := 1; i <= n; i++ {
		require.NoError(t, st.UpsertUser(context.Background(), model.User{
			UserID:       int64(i),
			JoinedDate:   base.Add(time.Duration(i) * time.Hour),
			LastActivity: base.Add(time.Duration(i) * time.Hour),
		}))
	}
	return st
}

func TestBroadcastPacingAndCounts(t *testing.T) {
	st := seed(t, 45)
	var got []int64
	send := SenderFunc(func(_ context.Context, id int64, text string) error {
		assert.Equal(t, AnnouncementHeader+"hello", text)
		switch {
		case id == 7:
			return fmt.Errorf("telegram: %w", ErrBlocked)
		case id == 8:
			return errors.New("Forbidden: user is deactivated (403)")
		case id == 9:
			return errors.New("timeout")
		}
		got = append(got, id)
		return nil
	})
	m := metrics.New(prometheus.NewRegistry())
	b := NewBroadcaster(st, send, BroadcastOptions{BatchSize: 20, Pause: time.Second, Metrics: m})
	var pauses []time.Duration
	b.sleep = func(_ context.Context, d time.Duration) error {
		pauses = append(pauses, d)
		return nil
	}
	var reports []Progress

	res, err := b.Run(context.Background(), "hello", func(p Progress) { reports = append(reports, p) })
	require.NoError(t, err)
	assert.Equal(t, 45, res.Total)
	assert.Equal(t, 42, res.Sent)
	assert.Equal(t, 3, res.Failed)
	assert.Equal(t, 2, res.Blocked)
	assert.Len(t, got, 42)
	assert.NotEmpty(t, res.ID)
	assert.Equal(t, []time.Duration{time.Second, time.Second}, pauses)
	require.Len(t, reports, 2)
	assert.Equal(t, Progress{Sent: 20, Failed: 3, Total: 45}, reports[0])
	assert.InDelta(t, 93.33, res.SuccessRate(), 0.01)
	assert.Equal(t, float64(3), testutil.ToFloat64(m.BroadcastsSent.WithLabelValues("fail")))
}

func TestBroadcastCancelled(t *testing.T) {
	st := seed(t, 30)
	b := NewBroadcaster(st, SenderFunc(func(context.Context, int64, string) error { return nil }), BroadcastOptions{BatchSize: 10})
	ctx, cancel := context.WithCancel(context.Background())
	b.sleep = func(context.Context, time.Duration) error {
		cancel()
		return context.Canceled
	}
	res, err := b.Run(ctx, "x", nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 10, res.Sent)
}

func TestBroadcastRateLimit(t *testing.T) {
	st := seed(t, 3)
	b := NewBroadcaster(st, SenderFunc(func(context.Context, int64, string) error { return nil }), BroadcastOptions{RPS: 1000})
	res, err := b.Run(context.Background(), "x", nil)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Sent)
	n, err := b.Recipients(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestServiceQueries(t *testing.T) {
	st := seed(t, 12)
	now := time.Date(2024, 6, 1, 12, 30, 0, 0, time.UTC)
	off := false
	cfg := &coreconfig.Config{}
	cfg.Storage.Driver = coreconfig.DriverMongo
	cfg.Limits.MaxChannels = 10
	cfg.Features.Backup = &off
	svc := NewService(st, cfg, func() time.Time { return now })

	stats, err := svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(12), stats.Users)
	assert.Equal(t, int64(12), stats.NewToday)
	assert.InDelta(t, 100, ActivityRate(stats), 0.001)

	recent, err := svc.RecentUsers(context.Background())
	require.NoError(t, err)
	require.Len(t, recent, RecentLimit)
	assert.Equal(t, int64(12), recent[0].UserID)

	u, err := svc.FindUser(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, int64(3), u.UserID)

	sys := svc.System()
	assert.Equal(t, "memory", sys.Database)
	assert.False(t, sys.Backup)
	assert.True(t, sys.Analytics)
	assert.Equal(t, 2, sys.Features)
	assert.NotEmpty(t, sys.GoVersion)
}

func TestIsBlocked(t *testing.T) {
	assert.True(t, IsBlocked(errors.New("telegram: Forbidden: bot was blocked by the user (403)")))
	assert.False(t, IsBlocked(errors.New("flood")))
	assert.False(t, IsBlocked(nil))
}
