// Package memory is an in-process store used by tests and local runs.
package memory

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/m3rciful/postbot/internal/model"
	"github.com/m3rciful/postbot/internal/store"
)

// Store keeps everything in maps guarded by one mutex.
type Store struct {
	mu    sync.RWMutex
	users map[int64]*model.User
	posts []model.Post
}

var _ store.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{users: make(map[int64]*model.User)}
}

func (s *Store) Name() string { return "memory" }

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close(context.Context) error { return nil }

func (s *Store) UpsertUser(_ context.Context, u model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.users[u.UserID]
	if !ok {
		if u.JoinedDate.IsZero() {
			u.JoinedDate = u.LastActivity
		}
		u.Channels = slices.Clone(u.Channels)
		s.users[u.UserID] = &u
		return nil
	}
	cur.Username = u.Username
	cur.FirstName = u.FirstName
	if !u.LastActivity.IsZero() {
		cur.LastActivity = u.LastActivity
	}
	return nil
}

func (s *Store) TouchUser(_ context.Context, userID int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return store.ErrNotFound
	}
	u.LastActivity = at
	return nil
}

func (s *Store) GetUser(_ context.Context, userID int64) (model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return model.User{}, store.ErrNotFound
	}
	out := *u
	out.Channels = slices.Clone(u.Channels)
	return out, nil
}

func (s *Store) ListUserIDs(context.Context) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]int64, 0, len(s.users))
	for id := range s.users {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

func (s *Store) RecentUsers(_ context.Context, limit int) ([]model.User, error) {
	s.mu.RLock()
	out := make([]model.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, *u)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].JoinedDate.After(out[j].JoinedDate) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) ListChannels(_ context.Context, userID int64) ([]model.Channel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, nil
	}
	return slices.Clone(u.Channels), nil
}

func (s *Store) AddChannel(_ context.Context, userID int64, ch model.Channel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		u = &model.User{UserID: userID, JoinedDate: ch.ConnectedAt, LastActivity: ch.ConnectedAt}
		s.users[userID] = u
	}
	for _, c := range u.Channels {
		if c.ChatRef == ch.ChatRef {
			return store.ErrDuplicate
		}
	}
	u.Channels = append(u.Channels, ch)
	return nil
}

func (s *Store) RemoveChannel(_ context.Context, userID int64, chatRef string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return store.ErrNotFound
	}
	i := slices.IndexFunc(u.Channels, func(c model.Channel) bool { return c.ChatRef == chatRef })
	if i < 0 {
		return store.ErrNotFound
	}
	u.Channels = slices.Delete(u.Channels, i, i+1)
	return nil
}

func (s *Store) RecordPost(_ context.Context, p model.Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.posts = append(s.posts, p)
	return nil
}

func (s *Store) Stats(_ context.Context, now time.Time) (store.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	day := store.StartOfDay(now)
	week := now.AddDate(0, 0, -7)
	st := store.Stats{Users: int64(len(s.users)), Posts: int64(len(s.posts))}
	for _, u := range s.users {
		if len(u.Channels) > 0 {
			st.ConnectedUsers++
		}
		st.Channels += int64(len(u.Channels))
		if !u.JoinedDate.Before(day) {
			st.NewToday++
		}
		if !u.JoinedDate.Before(week) {
			st.NewThisWeek++
		}
		if !u.LastActivity.Before(day) {
			st.ActiveToday++
		}
	}
	return st, nil
}

func (s *Store) Export(context.Context) (store.Dump, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]int64, 0, len(s.users))
	for id := range s.users {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	users := make([]any, 0, len(ids))
	for _, id := range ids {
		u := *s.users[id]
		u.Channels = slices.Clone(u.Channels)
		users = append(users, u)
	}
	posts := make([]any, 0, len(s.posts))
	for _, p := range s.posts {
		posts = append(posts, p)
	}
	return store.Dump{"users": users, "posts": posts}, nil
}
