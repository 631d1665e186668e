// Package postgres stores users, channels and posts in PostgreSQL using the
// schema applied by core/database migrations.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/m3rciful/postbot/internal/model"
	"github.com/m3rciful/postbot/internal/store"
)

const uniqueViolation = "23505"

// Store implements store.Store over sqlx.
type Store struct {
	db   *sqlx.DB
	name string
}

var _ store.Store = (*Store)(nil)

// New wraps an open connection pool; name is reported in backups.
func New(db *sqlx.DB, name string) *Store {
	return &Store{db: db, name: name}
}

func (s *Store) Name() string { return s.name }

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) Close(context.Context) error { return s.db.Close() }

func (s *Store) UpsertUser(ctx context.Context, u model.User) error {
	joined := u.JoinedDate
	if joined.IsZero() {
		joined = u.LastActivity
	}
	const q = `
INSERT INTO users (user_id, username, first_name, joined_date, last_activity)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (user_id) DO UPDATE
SET username = EXCLUDED.username,
    first_name = EXCLUDED.first_name,
    last_activity = EXCLUDED.last_activity`
	if _, err := s.db.ExecContext(ctx, q, u.UserID, u.Username, u.FirstName, joined, u.LastActivity); err != nil {
		return fmt.Errorf("postgres: upsert user %d: %w", u.UserID, err)
	}
	return nil
}

func (s *Store) TouchUser(ctx context.Context, userID int64, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET last_activity = $2 WHERE user_id = $1`, userID, at)
	if err != nil {
		return fmt.Errorf("postgres: touch user %d: %w", userID, err)
	}
	return requireRow(res)
}

type userRow struct {
	UserID       int64     `db:"user_id" json:"user_id"`
	Username     string    `db:"username" json:"username"`
	FirstName    string    `db:"first_name" json:"first_name"`
	JoinedDate   time.Time `db:"joined_date" json:"joined_date"`
	LastActivity time.Time `db:"last_activity" json:"last_activity"`
}

func (r userRow) model() model.User {
	return model.User{
		UserID:       r.UserID,
		Username:     r.Username,
		FirstName:    r.FirstName,
		JoinedDate:   r.JoinedDate,
		LastActivity: r.LastActivity,
	}
}

func (s *Store) GetUser(ctx context.Context, userID int64) (model.User, error) {
	var row userRow
	err := s.db.GetContext(ctx, &row, `SELECT user_id, username, first_name, joined_date, last_activity FROM users WHERE user_id = $1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, store.ErrNotFound
	}
	if err != nil {
		return model.User{}, fmt.Errorf("postgres: get user %d: %w", userID, err)
	}
	u := row.model()
	if u.Channels, err = s.ListChannels(ctx, userID); err != nil {
		return model.User{}, err
	}
	return u, nil
}

func (s *Store) ListUserIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	if err := s.db.SelectContext(ctx, &ids, `SELECT user_id FROM users ORDER BY user_id`); err != nil {
		return nil, fmt.Errorf("postgres: list users: %w", err)
	}
	return ids, nil
}

func (s *Store) RecentUsers(ctx context.Context, limit int) ([]model.User, error) {
	q := `SELECT user_id, username, first_name, joined_date, last_activity FROM users ORDER BY joined_date DESC`
	args := []any{}
	if limit > 0 {
		q += ` LIMIT $1`
		args = append(args, limit)
	}
	var rows []userRow
	if err := s.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, fmt.Errorf("postgres: recent users: %w", err)
	}
	out := make([]model.User, len(rows))
	for i, r := range rows {
		out[i] = r.model()
	}
	return out, nil
}

type channelRow struct {
	UserID      int64     `db:"user_id" json:"user_id"`
	Position    int       `db:"position" json:"position"`
	ChatRef     string    `db:"chat_ref" json:"chat_id"`
	Title       string    `db:"title" json:"title"`
	Username    string    `db:"username" json:"username"`
	ConnectedAt time.Time `db:"connected_at" json:"connected_at"`
}

func (r channelRow) model() model.Channel {
	return model.Channel{
		ChatRef:     r.ChatRef,
		Title:       r.Title,
		Username:    r.Username,
		Kind:        "channel",
		ConnectedAt: r.ConnectedAt,
	}
}

func (s *Store) ListChannels(ctx context.Context, userID int64) ([]model.Channel, error) {
	var rows []channelRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT user_id, position, chat_ref, title, username, connected_at FROM channels WHERE user_id = $1 ORDER BY position`, userID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list channels: %w", err)
	}
	out := make([]model.Channel, len(rows))
	for i, r := range rows {
		out[i] = r.model()
	}
	return out, nil
}

// AddChannel appends ch at the end of the user's list inside one
// transaction, creating the user row on first contact.
func (s *Store) AddChannel(ctx context.Context, userID int64, ch model.Channel) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: add channel: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx,
		`INSERT INTO users (user_id, joined_date, last_activity) VALUES ($1, $2, $2) ON CONFLICT (user_id) DO NOTHING`,
		userID, ch.ConnectedAt)
	if err != nil {
		return fmt.Errorf("postgres: add channel: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
INSERT INTO channels (user_id, position, chat_ref, title, username, connected_at)
SELECT $1, COALESCE(MAX(position) + 1, 0), $2, $3, $4, $5 FROM channels WHERE user_id = $1`,
		userID, ch.ChatRef, ch.Title, ch.Username, ch.ConnectedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicate
		}
		return fmt.Errorf("postgres: add channel: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("postgres: add channel: %w", err)
	}
	return nil
}

func (s *Store) RemoveChannel(ctx context.Context, userID int64, chatRef string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM channels WHERE user_id = $1 AND chat_ref = $2`, userID, chatRef)
	if err != nil {
		return fmt.Errorf("postgres: remove channel: %w", err)
	}
	return requireRow(res)
}

func (s *Store) RecordPost(ctx context.Context, p model.Post) error {
	_, err := s.db.NamedExecContext(ctx,
		`INSERT INTO posts (user_id, chat_ref, message_id, created_at) VALUES (:user_id, :chat_ref, :message_id, :created_at)`, p)
	if err != nil {
		return fmt.Errorf("postgres: record post: %w", err)
	}
	return nil
}

func (s *Store) Stats(ctx context.Context, now time.Time) (store.Stats, error) {
	day := store.StartOfDay(now)
	week := now.AddDate(0, 0, -7)
	var st store.Stats
	counts := []struct {
		dst  *int64
		q    string
		args []any
	}{
		{&st.Users, `SELECT COUNT(*) FROM users`, nil},
		{&st.ConnectedUsers, `SELECT COUNT(DISTINCT user_id) FROM channels`, nil},
		{&st.Channels, `SELECT COUNT(*) FROM channels`, nil},
		{&st.Posts, `SELECT COUNT(*) FROM posts`, nil},
		{&st.NewToday, `SELECT COUNT(*) FROM users WHERE joined_date >= $1`, []any{day}},
		{&st.NewThisWeek, `SELECT COUNT(*) FROM users WHERE joined_date >= $1`, []any{week}},
		{&st.ActiveToday, `SELECT COUNT(*) FROM users WHERE last_activity >= $1`, []any{day}},
	}
	for _, c := range counts {
		if err := s.db.GetContext(ctx, c.dst, c.q, c.args...); err != nil {
			return st, fmt.Errorf("postgres: stats: %w", err)
		}
	}
	return st, nil
}

type postRow struct {
	ID        int64     `db:"id" json:"id"`
	UserID    int64     `db:"user_id" json:"user_id"`
	ChatRef   string    `db:"chat_ref" json:"chat_id"`
	MessageID int64     `db:"message_id" json:"message_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Export dumps every table as typed rows.
func (s *Store) Export(ctx context.Context) (store.Dump, error) {
	var users []userRow
	if err := s.db.SelectContext(ctx, &users, `SELECT user_id, username, first_name, joined_date, last_activity FROM users ORDER BY user_id`); err != nil {
		return nil, fmt.Errorf("postgres: export users: %w", err)
	}
	var channels []channelRow
	if err := s.db.SelectContext(ctx, &channels, `SELECT user_id, position, chat_ref, title, username, connected_at FROM channels ORDER BY user_id, position`); err != nil {
		return nil, fmt.Errorf("postgres: export channels: %w", err)
	}
	var posts []postRow
	if err := s.db.SelectContext(ctx, &posts, `SELECT id, user_id, chat_ref, message_id, created_at FROM posts ORDER BY id`); err != nil {
		return nil, fmt.Errorf("postgres: export posts: %w", err)
	}
	return store.Dump{
		"users":    toAny(users),
		"channels": toAny(channels),
		"posts":    toAny(posts),
	}, nil
}

func toAny[T any](rows []T) []any {
	out := make([]any, len(rows))
	for i, r := range rows {
		out[i] = r
	}
	return out
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("postgres: rows affected: %w", err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
