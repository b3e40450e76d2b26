// Package token serves the stored token set and on-demand refreshes
package token

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/wrale/gmail-oauth2-helper/cmd/gmail-oauth2-helper/handlers/common"
	"github.com/wrale/gmail-oauth2-helper/internal/authflow"
)

// DownloadFilename names the token file offered for download
const DownloadFilename = "gmail_oauth2_tokens.json"

// Flow is the part of the authorization client the handlers use
type Flow interface {
	Tokens(ctx context.Context) (*authflow.TokenSet, error)
	RefreshAccessToken(ctx context.Context) (string, error)
}

// Config contains handler configuration options
type Config struct {
	Flow   Flow
	Logger logrus.FieldLogger
}

// Handler serves GET /tokens and POST /refresh
type Handler struct {
	flow   Flow
	logger logrus.FieldLogger
}

// RefreshResponse is the body of a successful refresh
type RefreshResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in,omitempty"`
	TokenType   string `json:"token_type,omitempty"`
}

// New creates a new token handler
func New(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Handler{flow: cfg.Flow, logger: logger}
}

// Download sends the stored token set as a JSON attachment
func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	tokens, err := h.flow.Tokens(r.Context())
	if err != nil {
		h.logger.WithError(err).Error("Loading tokens")
		common.WriteError(w, http.StatusInternalServerError, common.ErrorCodeServer, "Unable to load tokens")
		return
	}
	if tokens == nil {
		common.WriteError(w, http.StatusNotFound, common.ErrorCodeNotFound, "No tokens stored. Authorize first.")
		return
	}

	data, err := json.MarshalIndent(tokens, "", "  ")
	if err != nil {
		common.WriteJSONError(w, err)
		return
	}

	common.SetJSONHeaders(w)
	w.Header().Set("Content-Disposition", `attachment; filename="`+DownloadFilename+`"`)
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// Refresh mints a new access token from the stored refresh token
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	access, err := h.flow.RefreshAccessToken(r.Context())
	if err != nil {
		var refreshErr *authflow.TokenRefreshError
		switch {
		case errors.Is(err, authflow.ErrMissingRefreshToken):
			common.WriteError(w, http.StatusConflict, common.ErrorCodeMissingRefreshToken,
				"No refresh token stored. Authorize first.")
		case errors.As(err, &refreshErr):
			h.logger.WithError(err).Warn("Token refresh failed")
			common.WriteError(w, http.StatusBadGateway, common.ErrorCodeUpstream, refreshErr.Error())
		default:
			h.logger.WithError(err).Error("Token refresh failed")
			common.WriteError(w, http.StatusInternalServerError, common.ErrorCodeServer, "Unable to refresh token")
		}
		return
	}

	resp := RefreshResponse{AccessToken: access}
	if tokens, err := h.flow.Tokens(r.Context()); err == nil && tokens != nil {
		resp.ExpiresIn = tokens.ExpiresIn
		resp.TokenType = tokens.TokenType
	}
	common.WriteJSON(w, http.StatusOK, resp)
}
