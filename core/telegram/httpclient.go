package telegram

import (
	"io"
	"net"
	"net/http"
	"time"

	"github.com/m3rciful/postbot/core/telegram/netutil"
)

const (
	apiRetries = 3
	apiBackoff = 2 * time.Second
	// headroom is added to the long-poll timeout so an idle getUpdates is
	// never cut short by the client.
	headroom = 10 * time.Second
)

// newAPIClient returns the HTTP client for Bot API calls. Transient
// network failures and 502/503/504 answers are retried with a linear
// backoff when the request body can be replayed.
func newAPIClient(poll time.Duration) *http.Client {
	base := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   16,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ResponseHeaderTimeout: poll + headroom,
		ExpectContinueTimeout: time.Second,
	}
	return &http.Client{
		// media uploads of albums can take a while
		Timeout:   poll + 50*time.Second,
		Transport: &retryTransport{base: base, retries: apiRetries, backoff: apiBackoff},
	}
}

type retryTransport struct {
	base    http.RoundTripper
	retries int
	backoff time.Duration
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	replayable := req.Body == nil || req.Body == http.NoBody || req.GetBody != nil
	for attempt := 0; ; attempt++ {
		r := req
		if attempt > 0 {
			var err error
			if r, err = rewind(req); err != nil {
				return nil, err
			}
		}
		resp, err := t.base.RoundTrip(r)
		retry := netutil.ShouldRetry(err) || (err == nil && netutil.RetryStatus(resp.StatusCode))
		if !retry || !replayable || attempt >= t.retries {
			return resp, err
		}
		if resp != nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
		}
		timer := time.NewTimer(t.backoff * time.Duration(attempt+1))
		select {
		case <-req.Context().Done():
			timer.Stop()
			return nil, req.Context().Err()
		case <-timer.C:
		}
	}
}

func rewind(req *http.Request) (*http.Request, error) {
	r := req.Clone(req.Context())
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		r.Body = body
	}
	return r, nil
}
