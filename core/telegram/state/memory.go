package state

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/m3rciful/postbot/core/logger"
)

type entry[T any] struct {
	mu      sync.Mutex
	value   T
	live    bool
	removed bool
	touched time.Time
}

// Store is an in-memory session store keyed by Telegram user id.
type Store[T any] struct {
	mu       sync.Mutex
	sessions map[int64]*entry[T]
	fresh    func() T
	ttl      time.Duration
	now      func() time.Time
}

// NewStore returns an empty store. fresh builds the value handed to Do when
// no live session exists.
func NewStore[T any](fresh func() T, opts Options) *Store[T] {
	if fresh == nil {
		fresh = func() T { var zero T; return zero }
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	ttl := opts.TTL
	if ttl < 0 {
		ttl = 0
	}
	return &Store[T]{
		sessions: make(map[int64]*entry[T]),
		fresh:    fresh,
		ttl:      ttl,
		now:      now,
	}
}

func (s *Store[T]) expired(e *entry[T]) bool {
	return s.ttl > 0 && s.now().Sub(e.touched) > s.ttl
}

// acquire returns the locked entry for userID, creating it when missing.
func (s *Store[T]) acquire(userID int64) *entry[T] {
	for {
		s.mu.Lock()
		e, ok := s.sessions[userID]
		if !ok {
			e = &entry[T]{}
			s.sessions[userID] = e
		}
		s.mu.Unlock()

		e.mu.Lock()
		if !e.removed {
			return e
		}
		e.mu.Unlock()
	}
}

// remove drops e from the map. e.mu must be held.
func (s *Store[T]) remove(userID int64, e *entry[T]) {
	e.removed = true
	e.live = false
	var zero T
	e.value = zero
	s.mu.Lock()
	if s.sessions[userID] == e {
		delete(s.sessions, userID)
	}
	s.mu.Unlock()
}

// Do runs fn with exclusive access to the session of userID. The value left
// in sess.Value is stored and its TTL refreshed, unless fn called Discard.
func (s *Store[T]) Do(userID int64, fn func(sess *Session[T]) error) error {
	e := s.acquire(userID)
	defer e.mu.Unlock()

	sess := &Session[T]{}
	switch {
	case e.live && s.expired(e):
		sess.Expired = true
		sess.Value = s.fresh()
	case e.live:
		sess.Found = true
		sess.Value = e.value
	default:
		sess.Value = s.fresh()
	}

	err := fn(sess)

	if sess.discard {
		s.remove(userID, e)
		return err
	}
	e.value = sess.Value
	e.live = true
	e.touched = s.now()
	return err
}

// Get returns the live session value of userID without refreshing its TTL.
func (s *Store[T]) Get(userID int64) (T, bool) {
	var zero T
	s.mu.Lock()
	e, ok := s.sessions[userID]
	s.mu.Unlock()
	if !ok {
		return zero, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed || !e.live || s.expired(e) {
		return zero, false
	}
	return e.value, true
}

// Delete removes the session of userID.
func (s *Store[T]) Delete(userID int64) {
	_ = s.Do(userID, func(sess *Session[T]) error {
		sess.Discard()
		return nil
	})
}

// Len returns the number of tracked sessions, expired ones included until
// the next Sweep.
func (s *Store[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Sweep removes expired and abandoned sessions and returns how many it removed.
func (s *Store[T]) Sweep() int {
	s.mu.Lock()
	ids := make([]int64, 0, len(s.sessions))
	entries := make([]*entry[T], 0, len(s.sessions))
	for id, e := range s.sessions {
		ids = append(ids, id)
		entries = append(entries, e)
	}
	s.mu.Unlock()

	removed := 0
	for i, e := range entries {
		if !e.mu.TryLock() {
			continue // in use, therefore not idle
		}
		if !e.removed && (!e.live || s.expired(e)) {
			s.remove(ids[i], e)
			removed++
		}
		e.mu.Unlock()
	}
	return removed
}

// Run sweeps every interval until ctx is done.
func (s *Store[T]) Run(ctx context.Context, every time.Duration) {
	if s.ttl <= 0 || every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				logger.Debug(ctx, logger.CompSession, "session.sweep",
					slog.String("status", "ok"),
					slog.Int("count", n),
					slog.Int("sessions", s.Len()),
				)
			}
		}
	}
}
