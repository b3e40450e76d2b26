package authflow

import (
	"context"
	"sync"

	"github.com/wrale/gmail-oauth2-helper/internal/surface"
)

// Phase is a step in the lifecycle of one authorization attempt
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseAwaitingCallback
	PhaseValidated
	PhaseExchanging
	PhaseSucceeded
	PhaseFailed
	PhaseAbandoned
)

var phaseNames = map[Phase]string{
	PhaseIdle:             "idle",
	PhaseAwaitingCallback: "awaiting_callback",
	PhaseValidated:        "validated",
	PhaseExchanging:       "exchanging",
	PhaseSucceeded:        "succeeded",
	PhaseFailed:           "failed",
	PhaseAbandoned:        "abandoned",
}

func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return "unknown"
}

// Terminal reports whether no further transition can leave p
func (p Phase) Terminal() bool {
	return p == PhaseSucceeded || p == PhaseFailed || p == PhaseAbandoned
}

// Attempt is one authorization started by Client.StartAuthorization.
// All transitions are compare-and-set under mu, so the poll goroutine and
// any number of concurrent Deliver calls move it out of
// PhaseAwaitingCallback at most once.
type Attempt struct {
	state string
	url   string
	done  chan struct{}

	mu      sync.Mutex
	phase   Phase
	surface surface.Surface
	tokens  *TokenSet
	err     error
}

func newAttempt(state, url string) *Attempt {
	return &Attempt{
		state: state,
		url:   url,
		done:  make(chan struct{}),
		phase: PhaseIdle,
	}
}

// State returns the anti-forgery token bound to this attempt
func (a *Attempt) State() string {
	return a.state
}

// URL returns the authorization URL presented to the user
func (a *Attempt) URL() string {
	return a.url
}

// Phase returns the current phase
func (a *Attempt) Phase() Phase {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.phase
}

// Done is closed once the attempt reaches a terminal phase
func (a *Attempt) Done() <-chan struct{} {
	return a.done
}

// Wait blocks until the attempt is terminal or ctx is done. It returns the
// token set on success, the failure cause on PhaseFailed and
// ErrAuthorizationAbandoned on PhaseAbandoned.
func (a *Attempt) Wait(ctx context.Context) (*TokenSet, error) {
	select {
	case <-a.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.tokens, a.err
}

// advance moves a non-terminal transition from -> to
func (a *Attempt) advance(from, to Phase) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.phase != from {
		return false
	}
	a.phase = to
	return true
}

// finish moves from -> to, records the outcome and releases waiters
func (a *Attempt) finish(from, to Phase, tokens *TokenSet, err error) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.phase != from {
		return false
	}
	a.phase = to
	a.tokens = tokens
	a.err = err
	close(a.done)
	return true
}

// attach records the opened surface. It returns false when the attempt
// already left PhaseAwaitingCallback, in which case the caller closes s.
func (a *Attempt) attach(s surface.Surface) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.phase != PhaseAwaitingCallback {
		return false
	}
	a.surface = s
	return true
}

func (a *Attempt) surfaceClosed() bool {
	a.mu.Lock()
	s := a.surface
	a.mu.Unlock()
	return s != nil && s.Closed()
}

func (a *Attempt) closeSurface() error {
	a.mu.Lock()
	s := a.surface
	a.mu.Unlock()
	if s == nil {
		return nil
	}
	return s.Close()
}
