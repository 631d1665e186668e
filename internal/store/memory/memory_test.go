package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/postbot/internal/model"
	"github.com/m3rciful/postbot/internal/store"
)

func TestUserUpsertKeepsJoinedDate(t *testing.T) {
	ctx := context.Background()
	s := New()
	t0 := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, s.UpsertUser(ctx, model.User{UserID: 1, Username: "a", JoinedDate: t0, LastActivity: t0}))
	require.NoError(t, s.UpsertUser(ctx, model.User{UserID: 1, Username: "b", JoinedDate: t0.Add(time.Hour), LastActivity: t0.Add(time.Hour)}))

	u, err := s.GetUser(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "b", u.Username)
	assert.Equal(t, t0, u.JoinedDate)
	assert.Equal(t, t0.Add(time.Hour), u.LastActivity)

	_, err = s.GetUser(ctx, 2)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, s.TouchUser(ctx, 2, t0), store.ErrNotFound)
}

func TestChannels(t *testing.T) {
	ctx := context.Background()
	s := New()
	a := model.Channel{ChatRef: "-1001", Title: "A"}
	b := model.Channel{ChatRef: "-1002", Title: "B"}
	require.NoError(t, s.AddChannel(ctx, 1, a))
	require.NoError(t, s.AddChannel(ctx, 1, b))
	assert.ErrorIs(t, s.AddChannel(ctx, 1, a), store.ErrDuplicate)

	got, err := s.ListChannels(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []model.Channel{a, b}, got)

	require.NoError(t, s.RemoveChannel(ctx, 1, "-1001"))
	assert.ErrorIs(t, s.RemoveChannel(ctx, 1, "-1001"), store.ErrNotFound)
	got, _ = s.ListChannels(ctx, 1)
	assert.Equal(t, []model.Channel{b}, got)

	none, err := s.ListChannels(ctx, 99)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestStatsAndExport(t *testing.T) {
	ctx := context.Background()
	s := New()
	now := time.Date(2024, 5, 10, 15, 0, 0, 0, time.UTC)
	require.NoError(t, s.UpsertUser(ctx, model.User{UserID: 1, JoinedDate: now.Add(-time.Hour), LastActivity: now}))
	require.NoError(t, s.UpsertUser(ctx, model.User{UserID: 2, JoinedDate: now.AddDate(0, 0, -3), LastActivity: now.AddDate(0, 0, -2)}))
	require.NoError(t, s.UpsertUser(ctx, model.User{UserID: 3, JoinedDate: now.AddDate(0, -1, 0), LastActivity: now.AddDate(0, -1, 0)}))
	require.NoError(t, s.AddChannel(ctx, 1, model.Channel{ChatRef: "x"}))
	require.NoError(t, s.RecordPost(ctx, model.Post{UserID: 1, ChatRef: "x", MessageID: 5, CreatedAt: now}))

	st, err := s.Stats(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, store.Stats{Users: 3, ConnectedUsers: 1, Channels: 1, Posts: 1, NewToday: 1, NewThisWeek: 2, ActiveToday: 1}, st)

	recent, err := s.RecentUsers(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, int64(1), recent[0].UserID)

	ids, err := s.ListUserIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, ids)

	dump, err := s.Export(ctx)
	require.NoError(t, err)
	assert.Len(t, dump["users"], 3)
	assert.Len(t, dump["posts"], 1)
}
