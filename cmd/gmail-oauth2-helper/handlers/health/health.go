// Package health serves the liveness endpoint
package health

import (
	"context"
	"net/http"
	"time"

	"github.com/wrale/gmail-oauth2-helper/cmd/gmail-oauth2-helper/handlers/common"
	"github.com/wrale/gmail-oauth2-helper/internal/oauth"
)

const (
	statusHealthy   = "healthy"
	statusUnhealthy = "unhealthy"
)

// Checker reports whether a component is operational
type Checker interface {
	CheckHealth(ctx context.Context) error
}

// TokenReader loads the persisted token set
type TokenReader interface {
	Tokens(ctx context.Context) (*oauth.TokenSet, error)
}

// Handler reports store reachability and, optionally, whether tokens are on file
type Handler struct {
	store   Checker
	tokens  TokenReader
	version string
	now     func() time.Time
}

// Response is the health document
type Response struct {
	Status  string            `json:"status"`
	Version string            `json:"version,omitempty"`
	Details map[string]Detail `json:"details,omitempty"`
}

// Detail describes one component
type Detail struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// New creates a health handler for the backing store
func New(store Checker) *Handler {
	return &Handler{
		store:   store,
		version: "unknown",
		now:     time.Now,
	}
}

// WithVersion sets the reported version
func (h *Handler) WithVersion(version string) *Handler {
	h.version = version
	return h
}

// WithTokens adds a "tokens" detail. Missing or expired tokens do not make
// the service unhealthy.
func (h *Handler) WithTokens(tokens TokenReader) *Handler {
	h.tokens = tokens
	return h
}

// ServeHTTP handles health check requests
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")

	resp := Response{
		Status:  statusHealthy,
		Version: h.version,
		Details: map[string]Detail{"store": {Status: statusHealthy}},
	}

	if err := h.store.CheckHealth(r.Context()); err != nil {
		resp.Status = statusUnhealthy
		resp.Details["store"] = Detail{Status: statusUnhealthy, Message: err.Error()}
	} else if h.tokens != nil {
		resp.Details["tokens"] = h.tokenDetail(r.Context())
	}

	code := http.StatusOK
	if resp.Status != statusHealthy {
		code = http.StatusServiceUnavailable
	}
	common.WriteJSON(w, code, resp)
}

func (h *Handler) tokenDetail(ctx context.Context) Detail {
	tokens, err := h.tokens.Tokens(ctx)
	switch {
	case err != nil:
		return Detail{Status: "unreadable", Message: err.Error()}
	case tokens == nil:
		return Detail{Status: "missing"}
	case tokens.Expired(h.now(), 0):
		return Detail{Status: "expired"}
	default:
		return Detail{Status: "present"}
	}
}
