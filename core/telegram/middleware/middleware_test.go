package middleware

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/postbot/core/logger"
	"github.com/m3rciful/postbot/core/metrics"
	tghelpers "github.com/m3rciful/postbot/core/telegram/helpers"
)

func newContext(t *testing.T, upd tele.Update) tele.Context {
	t.Helper()
	b, err := tele.NewBot(tele.Settings{Offline: true})
	require.NoError(t, err)
	return b.NewContext(upd)
}

func message(userID int64) tele.Update {
	return tele.Update{Message: &tele.Message{Sender: &tele.User{ID: userID}, Chat: &tele.Chat{ID: userID}}}
}

func TestRateLimiterPerUser(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	limited := 0
	mw := RateLimitMiddleware(RateLimitOptions{
		Requests:  2,
		Window:    time.Minute,
		Metrics:   m,
		OnLimited: func(tele.Context) error { limited++; return nil },
		Exclude:   map[string]struct{}{"callback": {}},
	})
	calls := 0
	h := mw(func(tele.Context) error { calls++; return nil })

	for i := 0; i < 3; i++ {
		require.NoError(t, h(newContext(t, message(1))))
	}
	require.NoError(t, h(newContext(t, message(2))))
	cb := tele.Update{Callback: &tele.Callback{Sender: &tele.User{ID: 1}}}
	require.NoError(t, h(newContext(t, cb)))

	assert.Equal(t, 4, calls)
	assert.Equal(t, 1, limited)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.RateLimitedTotal))
}

func TestRateLimiterDisabled(t *testing.T) {
	l := NewRateLimiter(RateLimitOptions{})
	for i := 0; i < 100; i++ {
		assert.True(t, l.Allow(7))
	}
}

func TestAdminOnly(t *testing.T) {
	rejected := 0
	mw := AdminOnlyMiddleware(AdminOptions{
		IsAdmin:  func(id int64) bool { return id == 42 },
		OnReject: func(tele.Context) error { rejected++; return nil },
	})
	calls := 0
	h := mw(func(tele.Context) error { calls++; return nil })

	require.NoError(t, h(newContext(t, message(42))))
	require.NoError(t, h(newContext(t, message(7))))
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, rejected)
}

func TestRecoverSwallowsPanic(t *testing.T) {
	h := RecoverMiddleware(func(tele.Context) error { panic("boom") })
	assert.NoError(t, h(newContext(t, message(1))))
}

func TestUpdateKind(t *testing.T) {
	assert.Equal(t, "message", UpdateKind(message(1)))
	assert.Equal(t, "callback", UpdateKind(tele.Update{Callback: &tele.Callback{}}))
	assert.Equal(t, "other", UpdateKind(tele.Update{}))
}

func TestReplyCounter(t *testing.T) {
	c := newContext(t, message(5))
	n, kb := Replies(c)
	assert.Zero(t, n)
	assert.False(t, kb)

	h := ReplyCounterMiddleware(func(c tele.Context) error {
		_, isCounting := c.(countingContext)
		require.True(t, isCounting)
		c.(countingContext).r.add(nil)
		c.(countingContext).r.add([]any{&tele.SendOptions{ReplyMarkup: &tele.ReplyMarkup{}}})
		return nil
	})
	require.NoError(t, h(c))

	n, kb = Replies(c)
	assert.Equal(t, 2, n)
	assert.True(t, kb)
}

func TestUpdateMiddlewareStoresContext(t *testing.T) {
	c := newContext(t, tele.Update{ID: 9, Message: &tele.Message{Text: "hi", Sender: &tele.User{ID: 3}, Chat: &tele.Chat{ID: 3}}})
	var rid string
	h := UpdateMiddleware(func(c tele.Context) error {
		rid = logger.RIDFrom(tghelpers.BuildContext(c))
		return nil
	})
	require.NoError(t, h(c))
	assert.Equal(t, "9:3:3", rid)

	attrs := receipt(newContext(t, tele.Update{Callback: &tele.Callback{Data: "\fpick|2", Sender: &tele.User{ID: 3}}}))
	keys := map[string]string{}
	for _, a := range attrs {
		keys[a.Key] = a.Value.String()
	}
	assert.Equal(t, "callback", keys["kind"])
	assert.Equal(t, "pick", keys["cb_key"])
	assert.Equal(t, "2", keys["payload"])
}
