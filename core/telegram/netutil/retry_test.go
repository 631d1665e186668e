package netutil

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	tele "gopkg.in/telebot.v4"
)

func TestShouldRetry(t *testing.T) {
	dial := &net.OpError{Op: "dial", Err: errors.New("connection refused")}
	cases := map[string]struct {
		err  error
		want bool
	}{
		"dial":           {dial, true},
		"wrapped dial":   {&url.Error{Op: "Post", URL: "https://api.telegram.org", Err: dial}, true},
		"flood":          {tele.FloodError{RetryAfter: 2}, true},
		"eof":            {fmt.Errorf("sendMessage: %w", io.ErrUnexpectedEOF), true},
		"chat not found": {tele.ErrChatNotFound, false},
		"plain":          {errors.New("bad request"), false},
		"nil":            {nil, false},
	}
	for name, tc := range cases {
		assert.Equal(t, tc.want, ShouldRetry(tc.err), name)
	}
}

func TestRetryAfter(t *testing.T) {
	assert.Equal(t, 5*time.Second, RetryAfter(tele.FloodError{RetryAfter: 5}))
	assert.Zero(t, RetryAfter(errors.New("x")))
}

func TestRetryStatus(t *testing.T) {
	assert.True(t, RetryStatus(http.StatusBadGateway))
	assert.True(t, RetryStatus(http.StatusGatewayTimeout))
	assert.False(t, RetryStatus(http.StatusBadRequest))
	assert.False(t, RetryStatus(http.StatusTooManyRequests))
}
