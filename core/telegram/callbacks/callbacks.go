// Package callbacks reads the data of inline button presses. Buttons built
// with telebot carry "\f<unique>|<payload>", \f being the form feed byte.
package callbacks

import (
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v4"
)

// Split parses raw callback data into its unique key and payload.
func Split(data string) (unique, payload string) {
	unique, payload, _ = strings.Cut(strings.TrimPrefix(data, "\f"), "|")
	return strings.TrimSpace(unique), payload
}

// Parse returns the key and payload of cb. Telebot strips the key from
// Data once it matched a registered unique handler.
func Parse(cb *tele.Callback) (unique, payload string) {
	if cb == nil {
		return "", ""
	}
	if cb.Unique != "" {
		return cb.Unique, cb.Data
	}
	return Split(cb.Data)
}

// Payload is the payload of the callback in c, empty for other updates.
func Payload(c tele.Context) string {
	_, p := Parse(c.Callback())
	return p
}

func PayloadInt(c tele.Context) (int, error) {
	return strconv.Atoi(Payload(c))
}
