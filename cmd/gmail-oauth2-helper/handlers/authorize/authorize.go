// Package authorize starts authorization attempts over HTTP
package authorize

import (
	"context"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/wrale/gmail-oauth2-helper/cmd/gmail-oauth2-helper/handlers/common"
	"github.com/wrale/gmail-oauth2-helper/internal/authflow"
)

// Starter begins authorization attempts
type Starter interface {
	StartAuthorization(ctx context.Context) (*authflow.Attempt, error)
}

// Handler starts an attempt. GET redirects the browser straight to the
// consent page; POST answers with the URL as JSON.
type Handler struct {
	starter Starter
	logger  logrus.FieldLogger
}

// Response is the JSON body of a POST
type Response struct {
	AuthorizationURL string `json:"authorization_url"`
}

// New creates a new authorize handler
func New(starter Starter, logger logrus.FieldLogger) *Handler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Handler{starter: starter, logger: logger}
}

// ServeHTTP handles authorize requests
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// The attempt outlives this request: it completes on the callback
	ctx := context.WithoutCancel(r.Context())

	attempt, err := h.starter.StartAuthorization(ctx)
	if err != nil {
		h.logger.WithError(err).Error("Starting authorization")
		common.WriteError(w, http.StatusInternalServerError, common.ErrorCodeServer, "Unable to start authorization")
		return
	}

	if r.Method == http.MethodGet {
		w.Header().Set("Cache-Control", "no-store")
		http.Redirect(w, r, attempt.URL(), http.StatusFound)
		return
	}

	common.WriteJSON(w, http.StatusOK, Response{AuthorizationURL: attempt.URL()})
}
