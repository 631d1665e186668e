package helpers

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/postbot/core/logger"
)

func TestMarkdownOptions(t *testing.T) {
	opts := markdown(nil)
	assert.Equal(t, tele.ModeMarkdown, opts.ParseMode)
	assert.Nil(t, opts.ReplyMarkup)

	kb := &tele.ReplyMarkup{}
	assert.Same(t, kb, markdown([]*tele.ReplyMarkup{kb}).ReplyMarkup)
}

func TestBadMarkdown(t *testing.T) {
	assert.True(t, badMarkdown(errors.New("telegram: Bad Request: can't parse entities: unclosed (400)")))
	assert.False(t, badMarkdown(errors.New("telegram: chat not found (400)")))
	assert.False(t, badMarkdown(nil))
}

func TestEnqueueRunsInlineWithoutDispatcher(t *testing.T) {
	SetDispatcher(nil)
	b, err := tele.NewBot(tele.Settings{Offline: true})
	require.NoError(t, err)
	c := b.NewContext(tele.Update{ID: 3})

	ran := false
	require.NoError(t, enqueue(c, "test", "sendMessage", func() error { ran = true; return nil }))
	assert.True(t, ran)
}

func TestBuildContextIsStored(t *testing.T) {
	b, err := tele.NewBot(tele.Settings{Offline: true})
	require.NoError(t, err)
	c := b.NewContext(tele.Update{ID: 7, Message: &tele.Message{Sender: &tele.User{ID: 42}, Chat: &tele.Chat{ID: 42}}})

	ctx := BuildContext(c)
	assert.Equal(t, "7:42:42", logger.RIDFrom(ctx))
	assert.Equal(t, int64(42), logger.UserIDFrom(ctx))
	assert.Equal(t, ctx, BuildContext(c))

	named := WithHandler(c, "cmd.start")
	assert.Equal(t, "cmd.start", logger.HandlerFrom(BuildContext(c)))
	assert.Equal(t, named, WithHandler(c, "cmd.start"))
}
