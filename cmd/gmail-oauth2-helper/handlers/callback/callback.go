// Package callback handles the provider's redirect back to the redirect URI
// and turns it into a callback message for the authorization flow
package callback

import (
	"context"
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/wrale/gmail-oauth2-helper/internal/authflow"
	"github.com/wrale/gmail-oauth2-helper/internal/templates"
	"github.com/wrale/gmail-oauth2-helper/internal/validation"
)

// Flow is the part of the authorization client the handler drives
type Flow interface {
	Deliver(ctx context.Context, msg authflow.Message) error
	Tokens(ctx context.Context) (*authflow.TokenSet, error)
}

// Renderer renders the result pages
type Renderer interface {
	RenderComplete(w http.ResponseWriter, data templates.CompleteData) error
	RenderError(w http.ResponseWriter, data templates.ErrorData) error
}

// Config contains handler configuration options
type Config struct {
	Flow      Flow
	Templates Renderer
	Logger    logrus.FieldLogger

	// RetryURL is linked from error pages
	RetryURL string
}

// Handler processes authorization redirects
type Handler struct {
	flow      Flow
	templates Renderer
	logger    logrus.FieldLogger
	retryURL  string
}

// New creates a new callback handler
func New(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Handler{
		flow:      cfg.Flow,
		templates: cfg.Templates,
		logger:    logger,
		retryURL:  cfg.RetryURL,
	}
}

// ServeHTTP delivers the redirect's query parameters and renders the outcome
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")

	msg := authflow.MessageFromQuery(RequestOrigin(r), r.URL.Query())
	err := h.flow.Deliver(r.Context(), msg)
	if err != nil {
		h.logger.WithError(err).Warn("Authorization callback rejected")
		h.renderError(w, err)
		return
	}

	tokens, err := h.flow.Tokens(r.Context())
	if err != nil || tokens == nil {
		h.logger.WithError(err).Error("Tokens missing after successful callback")
		h.render(w, templates.ErrorData{
			Title:   "Authorization Failed",
			Message: "Tokens could not be loaded after authorization",
			Status:  http.StatusInternalServerError,
		})
		return
	}

	if err := h.templates.RenderComplete(w, templates.CompleteData{
		Message: "OAuth2 authentication successful! You can close this window.",
		Summary: tokens.Summary(),
	}); err != nil {
		h.logger.WithError(err).Error("Rendering completion page")
		http.Error(w, "error rendering page", http.StatusInternalServerError)
	}
}

func (h *Handler) renderError(w http.ResponseWriter, err error) {
	data := templates.ErrorData{Title: "Authorization Failed"}

	var (
		denied   *authflow.AuthorizationDeniedError
		exchange *authflow.TokenExchangeError
	)
	switch {
	case errors.Is(err, authflow.ErrForeignOrigin):
		data.Message = "The callback did not arrive on the registered redirect URI."
		data.Status = http.StatusForbidden
	case errors.Is(err, authflow.ErrStateMismatch):
		data.Message = "Invalid state parameter. Possible CSRF attack."
		data.Status = http.StatusBadRequest
	case errors.Is(err, authflow.ErrAuthorizationAbandoned):
		data.Message = "This authorization was cancelled. Start a new one."
		data.Status = http.StatusGone
	case errors.Is(err, authflow.ErrNoPendingAuthorization):
		data.Message = "No authorization is in progress. Start a new one."
		data.Status = http.StatusConflict
	case errors.As(err, &denied):
		data.Title = "Authorization Denied"
		data.Message = "Google reported: " + denied.Code
		data.Status = http.StatusForbidden
	case errors.As(err, &exchange):
		data.Message = "Failed to exchange tokens: " + exchange.Error()
		data.Status = http.StatusBadGateway
	default:
		data.Message = "Unable to complete authorization"
		data.Status = http.StatusInternalServerError
	}

	h.render(w, data)
}

func (h *Handler) render(w http.ResponseWriter, data templates.ErrorData) {
	data.RetryURL = h.retryURL
	if err := h.templates.RenderError(w, data); err != nil {
		h.logger.WithError(err).Error("Rendering error page")
		http.Error(w, "error rendering page", http.StatusInternalServerError)
	}
}

// RequestOrigin derives scheme://host[:port] of the page the browser loaded
func RequestOrigin(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	return validation.NormalizeOrigin(scheme, r.Host)
}
