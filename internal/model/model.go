// Package model holds the persisted entities shared by the store, the
// channel registry and the composer.
package model

import (
	"strings"
	"time"
)

// Channel is a Telegram channel a user connected the bot to.
type Channel struct {
	ChatRef     string    `json:"chat_id" bson:"chat_id" db:"chat_ref"`
	Title       string    `json:"title" bson:"title" db:"title"`
	Username    string    `json:"username,omitempty" bson:"username,omitempty" db:"username"`
	Kind        string    `json:"type" bson:"type" db:"-"`
	ConnectedAt time.Time `json:"connected_at" bson:"connected_at" db:"connected_at"`
}

// Matches reports whether ref names this channel by chat id or by
// username, with or without the leading @.
func (c Channel) Matches(ref string) bool {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return false
	}
	if ref == c.ChatRef {
		return true
	}
	if c.Username == "" {
		return false
	}
	return strings.EqualFold(strings.TrimPrefix(ref, "@"), strings.TrimPrefix(c.Username, "@"))
}

// Display returns "Title (@username)" or the title alone.
func (c Channel) Display() string {
	title := c.Title
	if title == "" {
		title = c.ChatRef
	}
	if c.Username != "" {
		return title + " (@" + strings.TrimPrefix(c.Username, "@") + ")"
	}
	return title
}

// User is the bot user profile.
type User struct {
	UserID       int64     `json:"user_id" bson:"user_id" db:"user_id"`
	Username     string    `json:"username,omitempty" bson:"username,omitempty" db:"username"`
	FirstName    string    `json:"first_name,omitempty" bson:"first_name,omitempty" db:"first_name"`
	JoinedDate   time.Time `json:"joined_date" bson:"joined_date" db:"joined_date"`
	LastActivity time.Time `json:"last_activity" bson:"last_activity" db:"last_activity"`
	Channels     []Channel `json:"connected_channels" bson:"connected_channels" db:"-"`
}

// Post records a message published through the bot.
type Post struct {
	UserID    int64     `json:"user_id" bson:"user_id" db:"user_id"`
	ChatRef   string    `json:"chat_id" bson:"chat_id" db:"chat_ref"`
	MessageID int       `json:"message_id" bson:"message_id" db:"message_id"`
	CreatedAt time.Time `json:"created_at" bson:"created_at" db:"created_at"`
}
