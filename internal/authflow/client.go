// Package authflow runs the OAuth2 authorization code grant for Gmail: it
// presents the consent URL, validates the callback, exchanges the code for
// tokens and keeps the stored token set fresh
package authflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"

	"github.com/wrale/gmail-oauth2-helper/internal/csrf"
	"github.com/wrale/gmail-oauth2-helper/internal/metrics"
	"github.com/wrale/gmail-oauth2-helper/internal/oauth"
	"github.com/wrale/gmail-oauth2-helper/internal/status"
	"github.com/wrale/gmail-oauth2-helper/internal/store"
	"github.com/wrale/gmail-oauth2-helper/internal/surface"
	"github.com/wrale/gmail-oauth2-helper/internal/validation"
)

const (
	// TokensKey is the store key holding the serialized token set
	TokensKey = "gmail_oauth2_tokens"

	// WindowName names the authorization surface
	WindowName = "gmail_oauth2"

	// DefaultPollInterval is how often the surface is checked for closure
	DefaultPollInterval = time.Second

	// expiryLeeway refreshes access tokens slightly before they expire
	expiryLeeway = time.Minute

	// maxSuperseded bounds the superseded attempts kept for late callbacks.
	// Older ones are abandoned.
	maxSuperseded = 8
)

// Status messages shown to the user
const (
	msgExchanging    = "Exchanging authorization code for tokens..."
	msgSuccess       = "OAuth2 authentication successful!"
	msgStateMismatch = "Invalid state parameter. Possible CSRF attack."
)

// WindowFeatures sizes the surface for a typical consent dialog
var WindowFeatures = surface.Features{
	Width:      600,
	Height:     700,
	Scrollbars: true,
	Resizable:  true,
}

// TokenSet is the persisted token endpoint response
type TokenSet = oauth.TokenSet

// Credentials identify the requesting application
type Credentials struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
}

// Client manages the authorization code exchange and refresh cycle for one
// set of credentials. At most one attempt is current; starting another
// supersedes it.
type Client struct {
	creds        Credentials
	origin       string
	store        store.Store
	states       *csrf.Manager
	tokens       *oauth.TokenClient
	opener       surface.Opener
	sink         status.Sink
	metrics      *metrics.Metrics
	logger       logrus.FieldLogger
	endpoint     oauth2.Endpoint
	httpClient   *http.Client
	pollInterval time.Duration
	now          func() time.Time

	// startMu serializes StartAuthorization so the stored state and the
	// current attempt always agree
	startMu sync.Mutex

	mu         sync.Mutex
	current    *Attempt
	superseded map[string]*Attempt
	// supersededOrder lists superseded states oldest first
	supersededOrder []string
	maxSuperseded   int

	refreshMu sync.Mutex
}

// New creates a client for creds
func New(creds Credentials, opts ...Option) (*Client, error) {
	if creds.ClientID == "" {
		return nil, oauth.ErrMissingClientID
	}
	if err := validation.ValidateRedirectURI(creds.RedirectURI); err != nil {
		return nil, err
	}
	origin, err := validation.Origin(creds.RedirectURI)
	if err != nil {
		return nil, err
	}

	c := &Client{
		creds:         creds,
		origin:        origin,
		sink:          status.Nop{},
		logger:        logrus.StandardLogger(),
		endpoint:      oauth.GoogleEndpoint,
		pollInterval:  DefaultPollInterval,
		now:           time.Now,
		superseded:    make(map[string]*Attempt),
		maxSuperseded: maxSuperseded,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.store == nil {
		c.store = store.NewMemoryStore()
	}
	if c.opener == nil {
		c.opener = surface.NewBrowserOpener(c.logger)
	}
	if c.metrics == nil {
		// Unexported registry: counters are kept but never scraped
		c.metrics = metrics.NewMetrics(prometheus.NewRegistry())
	}
	c.states = csrf.NewManager(c.store)

	c.tokens, err = oauth.NewTokenClient(oauth.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		Endpoint:     c.endpoint,
		HTTPClient:   c.httpClient,
	})
	if err != nil {
		return nil, fmt.Errorf("creating token client: %w", err)
	}

	return c, nil
}

// Origin returns the scheme://host[:port] callback messages must come from
func (c *Client) Origin() string {
	return c.origin
}

// RedirectURI returns the registered redirect URI
func (c *Client) RedirectURI() string {
	return c.creds.RedirectURI
}

// BuildAuthURL returns the consent URL for state. Parameters keep their
// construction order.
func (c *Client) BuildAuthURL(state string) string {
	params := [][2]string{
		{"client_id", c.creds.ClientID},
		{"redirect_uri", c.creds.RedirectURI},
		{"response_type", "code"},
		{"scope", oauth.MailScope},
		{"access_type", "offline"},
		{"prompt", "consent"},
		{"state", state},
	}

	var b strings.Builder
	b.WriteString(c.endpoint.AuthURL)
	if strings.Contains(c.endpoint.AuthURL, "?") {
		b.WriteByte('&')
	} else {
		b.WriteByte('?')
	}
	for i, p := range params {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(p[0]))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(p[1]))
	}
	return b.String()
}

// StartAuthorization begins a new attempt: it stores a fresh state,
// presents the consent URL and watches the surface for closure. The
// returned attempt completes when a valid callback is delivered or the
// surface is closed.
func (c *Client) StartAuthorization(ctx context.Context) (*Attempt, error) {
	c.startMu.Lock()
	defer c.startMu.Unlock()

	state, err := c.states.GenerateState(ctx)
	if err != nil {
		return nil, err
	}
	a := newAttempt(state, c.BuildAuthURL(state))

	var evicted []*Attempt
	c.mu.Lock()
	if prev := c.current; prev != nil && !prev.Phase().Terminal() {
		// The previous state was overwritten, so prev can only fail or be abandoned
		evicted = c.supersedeLocked(prev)
		c.logger.Debug("Superseding pending authorization attempt")
	}
	c.current = a
	c.mu.Unlock()

	for _, old := range evicted {
		c.abandon(old)
	}

	a.advance(PhaseIdle, PhaseAwaitingCallback)
	c.metrics.AuthorizationsStarted.Inc()

	s, err := c.opener.Open(ctx, a.url, WindowName, WindowFeatures)
	if err != nil {
		err = fmt.Errorf("opening authorization surface: %w", err)
		c.finish(a, PhaseAwaitingCallback, PhaseFailed, nil, err)
		return nil, err
	}
	if !a.attach(s) {
		// A callback won the race with Open
		s.Close()
		return a, nil
	}

	go c.watch(a)
	return a, nil
}

// watch abandons a once its surface closes while it still awaits a callback
func (c *Client) watch(a *Attempt) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-a.done:
			return
		case <-ticker.C:
			if !a.surfaceClosed() {
				continue
			}
			if c.finish(a, PhaseAwaitingCallback, PhaseAbandoned, nil, ErrAuthorizationAbandoned) {
				c.logger.Info("Authorization surface closed before completion")
			}
			return
		}
	}
}

// supersedeLocked keeps prev for late callbacks and returns the attempts
// pushed out by the cap. c.mu must be held.
func (c *Client) supersedeLocked(prev *Attempt) []*Attempt {
	c.superseded[prev.state] = prev

	live := c.supersededOrder[:0]
	for _, state := range c.supersededOrder {
		if _, ok := c.superseded[state]; ok {
			live = append(live, state)
		}
	}
	c.supersededOrder = append(live, prev.state)

	var evicted []*Attempt
	for len(c.supersededOrder) > c.maxSuperseded {
		oldest := c.supersededOrder[0]
		c.supersededOrder = c.supersededOrder[1:]
		evicted = append(evicted, c.superseded[oldest])
		delete(c.superseded, oldest)
	}
	return evicted
}

// abandon ends a superseded attempt that can no longer complete
func (c *Client) abandon(a *Attempt) {
	if err := a.closeSurface(); err != nil {
		c.logger.WithError(err).Warn("Failed to close authorization surface")
	}
	if c.finish(a, PhaseAwaitingCallback, PhaseAbandoned, nil, ErrAuthorizationAbandoned) {
		c.logger.Debug("Abandoned superseded authorization attempt")
	}
}

// Deliver is the single ingestion point for callback messages. Messages
// from another origin or of another type are ignored. A state that does not
// match the outstanding one is reported and never exchanged. A valid
// message moves its attempt out of PhaseAwaitingCallback exactly once; a
// repeat changes nothing and returns the attempt's outcome once it is known.
func (c *Client) Deliver(ctx context.Context, msg Message) error {
	if msg.Origin != c.origin {
		c.metrics.CallbacksRejected.WithLabelValues("origin").Inc()
		c.logger.WithField("origin", msg.Origin).Debug("Ignoring message from foreign origin")
		return ErrForeignOrigin
	}
	if msg.Type != CallbackMessageType {
		c.metrics.CallbacksRejected.WithLabelValues("type").Inc()
		return ErrUnknownMessage
	}

	a := c.lookup(msg.State)
	if a != nil {
		if p := a.Phase(); p != PhaseIdle && p != PhaseAwaitingCallback {
			_, err := a.Wait(ctx)
			return err
		}
	}

	if err := validation.ValidateState(msg.State); err != nil {
		c.rejectState(a)
		return ErrStateMismatch
	}
	if err := c.states.ValidateState(ctx, msg.State); err != nil {
		if !isStateRejection(err) {
			return fmt.Errorf("validating state: %w", err)
		}
		c.rejectState(a)
		return ErrStateMismatch
	}

	if a == nil {
		c.metrics.CallbacksRejected.WithLabelValues("no_attempt").Inc()
		return ErrNoPendingAuthorization
	}

	if msg.Error != "" {
		denied := &AuthorizationDeniedError{Code: msg.Error, Description: msg.ErrorDescription}
		if !c.finish(a, PhaseAwaitingCallback, PhaseFailed, nil, denied) {
			return nil
		}
		c.release(ctx, a)
		c.sink.Report(fmt.Sprintf("Authorization failed: %s", msg.Error), status.LevelError)
		return denied
	}

	if !a.advance(PhaseAwaitingCallback, PhaseValidated) {
		return nil
	}
	c.release(ctx, a)
	a.advance(PhaseValidated, PhaseExchanging)

	tokens, err := c.ExchangeCodeForTokens(ctx, msg.Code)
	if err != nil {
		c.finish(a, PhaseExchanging, PhaseFailed, nil, err)
		return err
	}
	c.finish(a, PhaseExchanging, PhaseSucceeded, tokens, nil)
	return nil
}

// rejectState reports a state that failed validation. Only superseded
// attempts can own such a state, so a fails.
func (c *Client) rejectState(a *Attempt) {
	c.sink.Report(msgStateMismatch, status.LevelError)
	c.metrics.CallbacksRejected.WithLabelValues("state").Inc()
	if a != nil {
		c.finish(a, PhaseAwaitingCallback, PhaseFailed, nil, ErrStateMismatch)
	}
}

// ExchangeCodeForTokens trades an authorization code for a token set and
// persists it. Failures are reported to the status sink and returned as
// *TokenExchangeError; nothing is persisted on failure.
func (c *Client) ExchangeCodeForTokens(ctx context.Context, code string) (*TokenSet, error) {
	c.sink.Report(msgExchanging, status.LevelInfo)

	start := time.Now()
	tokens, err := c.tokens.ExchangeCode(ctx, code, c.creds.RedirectURI)
	c.metrics.TokenEndpointLatency.Observe(time.Since(start).Seconds())

	if err == nil {
		err = c.saveTokens(ctx, tokens)
	}
	c.metrics.Exchanges.WithLabelValues(metrics.Result(err)).Inc()

	if err != nil {
		exErr := &TokenExchangeError{StatusCode: statusCode(err), Cause: err}
		c.sink.Report(fmt.Sprintf("Failed to exchange tokens: %v", exErr), status.LevelError)
		return nil, exErr
	}

	c.sink.Report(msgSuccess, status.LevelSuccess)
	return tokens, nil
}

// RefreshAccessToken mints a new access token from the stored refresh token,
// merges the response over the stored set and returns the new access token.
// Without a stored refresh token it fails with ErrMissingRefreshToken before
// any network call.
func (c *Client) RefreshAccessToken(ctx context.Context) (string, error) {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	prior, err := c.Tokens(ctx)
	if err != nil {
		return "", err
	}
	if prior == nil || prior.RefreshToken == "" {
		return "", ErrMissingRefreshToken
	}

	start := time.Now()
	fresh, err := c.tokens.RefreshToken(ctx, prior.RefreshToken)
	c.metrics.TokenEndpointLatency.Observe(time.Since(start).Seconds())

	var merged *TokenSet
	if err == nil {
		merged, err = oauth.Merge(prior, fresh)
	}
	if err == nil {
		err = c.saveTokens(ctx, merged)
	}
	c.metrics.Refreshes.WithLabelValues(metrics.Result(err)).Inc()

	if err != nil {
		refErr := &TokenRefreshError{StatusCode: statusCode(err), Cause: err}
		c.sink.Report(fmt.Sprintf("Failed to refresh token: %v", refErr), status.LevelError)
		return "", refErr
	}

	c.logger.WithField("expires_in", merged.ExpiresIn).Debug("Access token refreshed")
	return merged.AccessToken, nil
}

// Tokens returns the stored token set, or nil when none is stored
func (c *Client) Tokens(ctx context.Context) (*TokenSet, error) {
	raw, err := c.store.Get(ctx, TokensKey)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("loading tokens: %w", err)
	}

	var tokens TokenSet
	if err := json.Unmarshal([]byte(raw), &tokens); err != nil {
		return nil, fmt.Errorf("decoding stored tokens: %w", err)
	}
	return &tokens, nil
}

// TokenSource adapts the stored token set for golang.org/x/oauth2 clients.
// Expired access tokens are refreshed on demand.
func (c *Client) TokenSource(ctx context.Context) oauth2.TokenSource {
	return oauth2.ReuseTokenSource(nil, &storedTokenSource{ctx: ctx, client: c})
}

// CheckHealth verifies the backing store is reachable
func (c *Client) CheckHealth(ctx context.Context) error {
	return c.states.CheckHealth(ctx)
}

func (c *Client) saveTokens(ctx context.Context, tokens *TokenSet) error {
	data, err := json.Marshal(tokens)
	if err != nil {
		return fmt.Errorf("encoding tokens: %w", err)
	}
	if err := c.store.Set(ctx, TokensKey, string(data)); err != nil {
		return fmt.Errorf("saving tokens: %w", err)
	}
	return nil
}

// lookup finds the live attempt owning state
func (c *Client) lookup(state string) *Attempt {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != nil && c.current.state == state {
		return c.current
	}
	return c.superseded[state]
}

// finish ends a and records the terminal phase
func (c *Client) finish(a *Attempt, from, to Phase, tokens *TokenSet, err error) bool {
	if !a.finish(from, to, tokens, err) {
		return false
	}
	c.mu.Lock()
	delete(c.superseded, a.state)
	c.mu.Unlock()

	c.metrics.AttemptsFinished.WithLabelValues(to.String()).Inc()
	return true
}

// release closes the surface and retires the state of a validated attempt
func (c *Client) release(ctx context.Context, a *Attempt) {
	if err := a.closeSurface(); err != nil {
		c.logger.WithError(err).Warn("Failed to close authorization surface")
	}
	if err := c.states.Discard(ctx, a.state); err != nil {
		c.logger.WithError(err).Warn("Failed to discard used state")
	}
}

func isStateRejection(err error) bool {
	return errors.Is(err, csrf.ErrStateMismatch) ||
		errors.Is(err, csrf.ErrInvalidState) ||
		errors.Is(err, csrf.ErrNoOutstandingState)
}

func statusCode(err error) int {
	var httpErr *oauth.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode
	}
	return 0
}

// storedTokenSource serves the stored access token, refreshing it when it
// is about to expire
type storedTokenSource struct {
	ctx    context.Context
	client *Client
}

func (s *storedTokenSource) Token() (*oauth2.Token, error) {
	tokens, err := s.client.Tokens(s.ctx)
	if err != nil {
		return nil, err
	}
	if tokens == nil {
		return nil, ErrMissingRefreshToken
	}

	if tokens.Expired(s.client.now(), expiryLeeway) {
		if _, err := s.client.RefreshAccessToken(s.ctx); err != nil {
			return nil, err
		}
		if tokens, err = s.client.Tokens(s.ctx); err != nil {
			return nil, err
		}
	}
	return tokens.OAuth2Token(), nil
}
