// Package ui declares the handlers a bot supplies for updates that no
// command, callback key or session claims.
package ui

import tele "gopkg.in/telebot.v4"

// FallbackProvider supplies the last-resort handlers of a bot. A nil
// handler leaves the update unanswered.
type FallbackProvider interface {
	// UnknownText handles text that is neither a command nor session input.
	UnknownText() tele.HandlerFunc
	// UnknownMedia handles media sent outside a session.
	UnknownMedia() tele.HandlerFunc
	// UnknownCallback answers buttons whose key is not registered, such as
	// those left on messages from an older release.
	UnknownCallback() tele.HandlerFunc
}
