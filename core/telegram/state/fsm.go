package state

import (
	"log/slog"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/postbot/core/logger"
	tghelpers "github.com/m3rciful/postbot/core/telegram/helpers"
)

// FSM adapts a Store to the router's text routing: users with an active
// session get their free-form messages delivered to Handler.
type FSM[T any] struct {
	Store *Store[T]
	// Active reports whether a stored value expects free-form input.
	Active  func(T) bool
	Handler tele.HandlerFunc
	// Describe returns the state name used in logs.
	Describe func(T) string
}

// InProgress reports whether userID has an active session.
func (f FSM[T]) InProgress(userID int64) bool {
	if f.Store == nil {
		return false
	}
	v, ok := f.Store.Get(userID)
	if !ok {
		return false
	}
	return f.Active == nil || f.Active(v)
}

// ManagerHandler delivers the update to Handler.
func (f FSM[T]) ManagerHandler(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	if f.Describe != nil && c.Sender() != nil {
		if v, ok := f.Store.Get(c.Sender().ID); ok {
			logger.Debug(ctx, logger.CompSession, "fsm.manager",
				slog.String("status", "ok"),
				slog.String("state", f.Describe(v)),
			)
		}
	}
	if f.Handler == nil {
		return nil
	}
	return f.Handler(c)
}
