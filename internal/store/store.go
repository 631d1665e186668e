// Package store defines persistence for users, their connected channels and
// the post log.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/m3rciful/postbot/internal/model"
)

var (
	// ErrNotFound is returned when a user or channel does not exist.
	ErrNotFound = errors.New("store: not found")
	// ErrDuplicate is returned when a channel is already connected.
	ErrDuplicate = errors.New("store: already exists")
)

// Users persists user profiles.
type Users interface {
	// UpsertUser refreshes the profile fields and last activity. JoinedDate
	// is only written when the user is created.
	UpsertUser(ctx context.Context, u model.User) error
	TouchUser(ctx context.Context, userID int64, at time.Time) error
	GetUser(ctx context.Context, userID int64) (model.User, error)
	ListUserIDs(ctx context.Context) ([]int64, error)
	RecentUsers(ctx context.Context, limit int) ([]model.User, error)
}

// Channels persists each user's connected channels in connection order.
type Channels interface {
	ListChannels(ctx context.Context, userID int64) ([]model.Channel, error)
	AddChannel(ctx context.Context, userID int64, ch model.Channel) error
	RemoveChannel(ctx context.Context, userID int64, chatRef string) error
}

// Posts records successful publishes.
type Posts interface {
	RecordPost(ctx context.Context, p model.Post) error
}

// Stats are the totals shown by /stats and the admin panel.
type Stats struct {
	Users          int64
	ConnectedUsers int64
	Channels       int64
	Posts          int64
	NewToday       int64
	NewThisWeek    int64
	ActiveToday    int64
}

// Dump is a full export keyed by collection name.
type Dump map[string][]any

// Store is the complete persistence layer.
type Store interface {
	Users
	Channels
	Posts
	Stats(ctx context.Context, now time.Time) (Stats, error)
	Export(ctx context.Context) (Dump, error)
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
	// Name identifies the database in logs and backups.
	Name() string
}

// StartOfDay truncates t to midnight in its location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
