//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"
)

const (
	// DefaultIdleTimeout bounds the wait for response headers and the gap
	// between two body reads. A transfer that keeps making progress is
	// never cut short.
	DefaultIdleTimeout = 2 * time.Minute

	// DefaultUserAgent identifies snapup to mirrors and the release feed.
	DefaultUserAgent = "snapup"
)

var (
	// ErrHTTPStatus is matched by StatusError.
	ErrHTTPStatus = errors.New("unexpected http status")

	// ErrStalled is returned when a request makes no progress for the idle timeout.
	ErrStalled = errors.New("transfer stalled")

	errURLRequired = errors.New("url must be provided")
)

// StatusError reports a non-2xx response.
type StatusError struct {
	// URL is the requested location.
	URL string
	// StatusCode is the HTTP status returned by the server.
	StatusCode int
}

// Error implements error.
func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

// Unwrap lets errors.Is match ErrHTTPStatus.
func (e *StatusError) Unwrap() error {
	return ErrHTTPStatus
}

// Client wraps an http.Client with the defaults every download uses.
type Client struct {
	// http is the underlying transport.
	http *http.Client
	// userAgent is sent with every request.
	userAgent string
	// idleTimeout cancels a request that stops making progress.
	idleTimeout time.Duration
}

// Option configures client behaviour.
type Option func(*Client)

// WithIdleTimeout sets how long a request may go without progress.
// Zero or negative disables the watchdog.
func WithIdleTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.idleTimeout = timeout
	}
}

// WithHTTPClient replaces the underlying transport, e.g. with an httptest client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.http = client
		}
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(agent string) Option {
	return func(c *Client) {
		if agent != "" {
			c.userAgent = agent
		}
	}
}

// NewClient builds a Client with DefaultIdleTimeout.
func NewClient(opts ...Option) *Client {
	client := &Client{
		http:        &http.Client{},
		userAgent:   DefaultUserAgent,
		idleTimeout: DefaultIdleTimeout,
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

// Open issues a GET and returns the body of a 2xx response.
// The caller closes the returned reader, which also stops the idle watchdog.
func (c *Client) Open(ctx context.Context, url string) (io.ReadCloser, error) {
	if url == "" {
		return nil, errURLRequired
	}

	callCtx, cancel := context.WithCancel(ctx)
	watchdog := newIdleWatchdog(c.idleTimeout, cancel)

	request, err := http.NewRequestWithContext(callCtx, http.MethodGet, url, http.NoBody)
	if err != nil {
		watchdog.stop()
		cancel()

		return nil, fmt.Errorf("create request: %w", err)
	}

	request.Header.Set("User-Agent", c.userAgent)

	response, err := c.http.Do(request)
	if err != nil {
		watchdog.stop()
		cancel()

		return nil, fmt.Errorf("GET %s: %w", url, watchdog.wrap(err))
	}

	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		_ = response.Body.Close()

		watchdog.stop()
		cancel()

		return nil, &StatusError{URL: url, StatusCode: response.StatusCode}
	}

	watchdog.touch()

	return &watchedBody{ReadCloser: response.Body, watchdog: watchdog, cancel: cancel}, nil
}

// idleWatchdog cancels a request once no progress was seen for timeout.
// A nil watchdog is disabled.
type idleWatchdog struct {
	timer   *time.Timer
	timeout time.Duration
	expired atomic.Bool
}

func newIdleWatchdog(timeout time.Duration, cancel context.CancelFunc) *idleWatchdog {
	if timeout <= 0 {
		return nil
	}

	w := &idleWatchdog{timeout: timeout}
	w.timer = time.AfterFunc(timeout, func() {
		w.expired.Store(true)
		cancel()
	})

	return w
}

func (w *idleWatchdog) touch() {
	if w != nil {
		w.timer.Reset(w.timeout)
	}
}

func (w *idleWatchdog) stop() {
	if w != nil {
		w.timer.Stop()
	}
}

// wrap replaces the cancellation error caused by the watchdog with ErrStalled.
func (w *idleWatchdog) wrap(err error) error {
	if w == nil || err == nil || !w.expired.Load() {
		return err
	}

	return fmt.Errorf("%w after %s: %w", ErrStalled, w.timeout, err)
}

type watchedBody struct {
	io.ReadCloser
	watchdog *idleWatchdog
	cancel   context.CancelFunc
}

func (b *watchedBody) Read(p []byte) (int, error) {
	n, err := b.ReadCloser.Read(p)
	if n > 0 {
		b.watchdog.touch()
	}

	if err != nil && !errors.Is(err, io.EOF) {
		err = b.watchdog.wrap(err)
	}

	return n, err
}

func (b *watchedBody) Close() error {
	defer b.cancel()

	b.watchdog.stop()

	return b.ReadCloser.Close()
}
