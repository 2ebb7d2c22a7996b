package telegram

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/m3rciful/systembot/core/telegram/netutil"
)

const (
	defaultClientTimeout   = 30 * time.Second
	defaultResponseTimeout = 5 * time.Second

	dialTimeout  = 5 * time.Second
	tlsTimeout   = 5 * time.Second
	keepAlive    = 30 * time.Second
	idleTimeout  = 30 * time.Second
	retryCount   = 2
	retryBackoff = time.Second
)

var errNoRewind = errors.New("telegram: request body cannot be replayed")

// BuildHTTPClient returns the Bot API client. longPoll is how long
// getUpdates may hold a request; both deadlines are stretched past it.
func BuildHTTPClient(longPoll time.Duration) *http.Client {
	header, total := defaultResponseTimeout, defaultClientTimeout
	if longPoll > 0 {
		header += longPoll
		total = max(total, longPoll+2*defaultResponseTimeout)
	}
	dialer := &net.Dialer{Timeout: dialTimeout, KeepAlive: keepAlive}
	return &http.Client{
		Timeout: total,
		Transport: &retryTransport{
			base: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				DialContext:           dialer.DialContext,
				ForceAttemptHTTP2:     true,
				MaxIdleConns:          100,
				MaxIdleConnsPerHost:   10,
				IdleConnTimeout:       idleTimeout,
				TLSHandshakeTimeout:   tlsTimeout,
				ResponseHeaderTimeout: header,
				ExpectContinueTimeout: time.Second,
			},
			maxRetries: retryCount,
			backoff:    retryBackoff,
		},
	}
}

// retryTransport repeats a request whose failure netutil.ShouldRetry
// accepts, so Telegram never sees a call twice.
type retryTransport struct {
	base       http.RoundTripper
	maxRetries int
	backoff    time.Duration
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	for n := 1; err != nil && n <= t.maxRetries && netutil.ShouldRetry(err); n++ {
		if werr := wait(req.Context(), t.backoff*time.Duration(n)); werr != nil {
			return nil, werr
		}
		again, rerr := rewind(req)
		if rerr != nil {
			return nil, err
		}
		resp, err = t.base.RoundTrip(again)
	}
	return resp, err
}

func rewind(req *http.Request) (*http.Request, error) {
	again := req.Clone(req.Context())
	if req.Body == nil || req.Body == http.NoBody {
		return again, nil
	}
	if req.GetBody == nil {
		return nil, errNoRewind
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, err
	}
	again.Body = body
	return again, nil
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
