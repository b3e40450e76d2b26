// Package csrf generates and verifies the anti-forgery state token bound to
// one authorization attempt
package csrf

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"

	"github.com/wrale/gmail-oauth2-helper/internal/store"
	"github.com/wrale/gmail-oauth2-helper/internal/validation"
)

// DefaultStateKey is the store key holding the outstanding state
const DefaultStateKey = "oauth2_state"

var (
	// ErrInvalidState indicates a missing or malformed state token
	ErrInvalidState = errors.New("invalid state token")

	// ErrStateMismatch indicates the state does not match the outstanding one
	ErrStateMismatch = errors.New("state does not match outstanding authorization")

	// ErrNoOutstandingState indicates no authorization has been started
	ErrNoOutstandingState = errors.New("no outstanding authorization state")
)

// Manager handles state token generation and verification.
// Only one state is outstanding at a time: generating a new one overwrites it.
type Manager struct {
	store  store.Store
	key    string
	random io.Reader
}

// Option configures a Manager
type Option func(*Manager)

// WithKey overrides the store key used for the outstanding state
func WithKey(key string) Option {
	return func(m *Manager) {
		m.key = key
	}
}

// WithRandom overrides the randomness source
func WithRandom(r io.Reader) Option {
	return func(m *Manager) {
		m.random = r
	}
}

// NewManager creates a new state manager
func NewManager(s store.Store, opts ...Option) *Manager {
	m := &Manager{
		store:  s,
		key:    DefaultStateKey,
		random: rand.Reader,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// GenerateState creates a fresh state token and stores it as the single
// outstanding state
func (m *Manager) GenerateState(ctx context.Context) (string, error) {
	state, err := GenerateToken(m.random, validation.StateLength)
	if err != nil {
		return "", fmt.Errorf("generating state: %w", err)
	}

	if err := m.store.Set(ctx, m.key, state); err != nil {
		return "", fmt.Errorf("saving state: %w", err)
	}

	return state, nil
}

// Outstanding returns the currently stored state
func (m *Manager) Outstanding(ctx context.Context) (string, error) {
	state, err := m.store.Get(ctx, m.key)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", ErrNoOutstandingState
		}
		return "", fmt.Errorf("loading state: %w", err)
	}
	return state, nil
}

// ValidateState checks that state equals the outstanding state
func (m *Manager) ValidateState(ctx context.Context, state string) error {
	if state == "" {
		return ErrInvalidState
	}

	outstanding, err := m.Outstanding(ctx)
	if err != nil {
		return err
	}

	if subtle.ConstantTimeCompare([]byte(state), []byte(outstanding)) != 1 {
		return ErrStateMismatch
	}

	return nil
}

// Discard removes the outstanding state if it is still state. A newer
// state written by a later attempt is left alone.
func (m *Manager) Discard(ctx context.Context, state string) error {
	outstanding, err := m.Outstanding(ctx)
	if err != nil {
		if errors.Is(err, ErrNoOutstandingState) {
			return nil
		}
		return err
	}
	if outstanding != state {
		return nil
	}
	if err := m.store.Delete(ctx, m.key); err != nil {
		return fmt.Errorf("deleting state: %w", err)
	}
	return nil
}

// CheckHealth verifies the state manager is operational
func (m *Manager) CheckHealth(ctx context.Context) error {
	if err := m.store.CheckHealth(ctx); err != nil {
		return fmt.Errorf("state store health check failed: %w", err)
	}
	return nil
}

// GenerateToken returns length characters drawn uniformly from
// validation.StateCharset
func GenerateToken(r io.Reader, length int) (string, error) {
	charset := validation.StateCharset
	// Largest multiple of len(charset) that fits in a byte
	maxNeeded := 256 - (256 % len(charset))

	out := make([]byte, 0, length)
	buf := make([]byte, length)
	for len(out) < length {
		if _, err := io.ReadFull(r, buf); err != nil {
			return "", fmt.Errorf("reading random bytes: %w", err)
		}
		for _, b := range buf {
			// Reject values that would cause modulo bias
			if int(b) >= maxNeeded {
				continue
			}
			out = append(out, charset[int(b)%len(charset)])
			if len(out) == length {
				break
			}
		}
	}
	return string(out), nil
}
