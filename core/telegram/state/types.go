package state

import "time"

// Options configures a Store.
type Options struct {
	// TTL is the inactivity period after which a session expires. Zero
	// disables expiry.
	TTL time.Duration
	// Now overrides the clock, mainly for tests.
	Now func() time.Time
}

// Session is the view of a user's session handed to Store.Do callbacks.
type Session[T any] struct {
	// Value is the stored value, or a fresh one when Found is false.
	Value T
	// Found reports whether a live session existed.
	Found bool
	// Expired reports whether a session existed but outlived the TTL.
	Expired bool

	discard bool
}

// Discard removes the session once the callback returns.
func (s *Session[T]) Discard() { s.discard = true }
