package telegram

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type bodies struct {
	mu  sync.Mutex
	got []string
}

func (b *bodies) list() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.got...)
}

func flakyServer(t *testing.T, failures int32, status int) (*httptest.Server, *atomic.Int32, *bodies) {
	t.Helper()
	var calls atomic.Int32
	seen := &bodies{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		seen.mu.Lock()
		seen.got = append(seen.got, string(b))
		seen.mu.Unlock()
		if calls.Add(1) <= failures {
			w.WriteHeader(status)
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls, seen
}

func TestRetryTransportReplaysBody(t *testing.T) {
	srv, calls, seen := flakyServer(t, 1, http.StatusBadGateway)
	client := &http.Client{Transport: &retryTransport{base: http.DefaultTransport, retries: 2, backoff: time.Millisecond}}

	resp, err := client.Post(srv.URL+"/sendMessage", "application/json", strings.NewReader(`{"text":"hi"}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, []string{`{"text":"hi"}`, `{"text":"hi"}`}, seen.list())
}

func TestRetryTransportGivesUp(t *testing.T) {
	srv, calls, _ := flakyServer(t, 10, http.StatusServiceUnavailable)
	client := &http.Client{Transport: &retryTransport{base: http.DefaultTransport, retries: 2, backoff: time.Millisecond}}

	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, int32(3), calls.Load())
}

func TestRetryTransportLeavesClientErrors(t *testing.T) {
	srv, calls, _ := flakyServer(t, 10, http.StatusBadRequest)
	client := &http.Client{Transport: &retryTransport{base: http.DefaultTransport, retries: 2, backoff: time.Millisecond}}

	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
}

func TestRetryTransportStopsOnCancel(t *testing.T) {
	srv, calls, _ := flakyServer(t, 10, http.StatusGatewayTimeout)
	client := &http.Client{Transport: &retryTransport{base: http.DefaultTransport, retries: 5, backoff: time.Hour}}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	require.NoError(t, err)

	_, err = client.Do(req)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int32(1), calls.Load())
}

func TestAPIClientTimeoutsCoverLongPoll(t *testing.T) {
	c := newAPIClient(30 * time.Second)
	assert.Greater(t, c.Timeout, 30*time.Second)
	rt, ok := c.Transport.(*retryTransport)
	require.True(t, ok)
	tr, ok := rt.base.(*http.Transport)
	require.True(t, ok)
	assert.Equal(t, 40*time.Second, tr.ResponseHeaderTimeout)
}
