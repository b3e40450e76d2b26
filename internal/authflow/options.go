package authflow

import (
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"

	"github.com/wrale/gmail-oauth2-helper/internal/metrics"
	"github.com/wrale/gmail-oauth2-helper/internal/status"
	"github.com/wrale/gmail-oauth2-helper/internal/store"
	"github.com/wrale/gmail-oauth2-helper/internal/surface"
)

// Option configures a Client
type Option func(*Client)

// WithStore sets the key-value store for the state and token set.
// The default is an in-memory store.
func WithStore(s store.Store) Option {
	return func(c *Client) {
		c.store = s
	}
}

// WithOpener sets the authorization surface opener.
// The default opens the system browser.
func WithOpener(o surface.Opener) Option {
	return func(c *Client) {
		c.opener = o
	}
}

// WithStatusSink sets where human-readable progress is reported
func WithStatusSink(s status.Sink) Option {
	return func(c *Client) {
		c.sink = status.OrNop(s)
	}
}

// WithMetrics sets the Prometheus metrics to record into
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithPollInterval sets how often the surface is checked for closure
func WithPollInterval(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

// WithEndpoint overrides the authorization and token endpoints
func WithEndpoint(e oauth2.Endpoint) Option {
	return func(c *Client) {
		c.endpoint = e
	}
}

// WithHTTPClient sets the HTTP client used for token endpoint calls
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithLogger sets the logger for diagnostic output
func WithLogger(l logrus.FieldLogger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithClock overrides the time source used for expiry checks
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}
