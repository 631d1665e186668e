// Package commands describes slash commands independently of how they are
// routed.
package commands

import tele "gopkg.in/telebot.v4"

// Command is one slash command.
type Command struct {
	Handler     tele.HandlerFunc
	Description string
	// Usage is the argument synopsis shown by /help, e.g. "@channel".
	Usage string
	// AdminOnly commands are rejected for non-admins and listed only in
	// admin chats.
	AdminOnly bool
}

// Synopsis renders name with its usage.
func (c Command) Synopsis(name string) string {
	if c.Usage == "" {
		return name
	}
	return name + " " + c.Usage
}
