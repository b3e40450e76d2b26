// Package verify proves the stored credentials work against Gmail
package verify

import (
	"context"
	"net/http"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"

	"github.com/wrale/gmail-oauth2-helper/cmd/gmail-oauth2-helper/handlers/common"
	"github.com/wrale/gmail-oauth2-helper/internal/gmailcheck"
)

// ProfileChecker fetches the Gmail profile
type ProfileChecker interface {
	Check(ctx context.Context, ts oauth2.TokenSource) (*gmailcheck.Profile, error)
}

// MailboxChecker logs in over IMAP
type MailboxChecker interface {
	Check(ctx context.Context, user string, ts oauth2.TokenSource) (*gmailcheck.Mailbox, error)
}

// TokenSourcer provides tokens for the checks
type TokenSourcer interface {
	TokenSource(ctx context.Context) oauth2.TokenSource
}

// Config contains handler configuration options
type Config struct {
	Tokens  TokenSourcer
	Profile ProfileChecker

	// IMAP is optional; it needs User to log in
	IMAP MailboxChecker
	User string

	Logger logrus.FieldLogger
}

// Handler runs the checks and reports the results as JSON
type Handler struct {
	cfg Config
}

// Result is the JSON response body
type Result struct {
	Email         string `json:"email"`
	MessagesTotal int64  `json:"messages_total"`
	ThreadsTotal  int64  `json:"threads_total"`
	IMAP          *IMAP  `json:"imap,omitempty"`
}

// IMAP reports the IMAP login check
type IMAP struct {
	OK       bool   `json:"ok"`
	Mailbox  string `json:"mailbox,omitempty"`
	Messages uint32 `json:"messages,omitempty"`
	Error    string `json:"error,omitempty"`
}

// New creates a new verify handler
func New(cfg Config) *Handler {
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	return &Handler{cfg: cfg}
}

// ServeHTTP handles verification requests
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ts := h.cfg.Tokens.TokenSource(r.Context())

	profile, err := h.cfg.Profile.Check(r.Context(), ts)
	if err != nil {
		h.cfg.Logger.WithError(err).Warn("Gmail profile check failed")
		common.WriteError(w, http.StatusBadGateway, common.ErrorCodeUpstream, err.Error())
		return
	}

	result := Result{
		Email:         profile.EmailAddress,
		MessagesTotal: profile.MessagesTotal,
		ThreadsTotal:  profile.ThreadsTotal,
	}

	if h.cfg.IMAP != nil && h.cfg.User != "" {
		result.IMAP = &IMAP{}
		mbox, err := h.cfg.IMAP.Check(r.Context(), h.cfg.User, ts)
		if err != nil {
			result.IMAP.Error = err.Error()
		} else {
			result.IMAP.OK = true
			result.IMAP.Mailbox = mbox.Name
			result.IMAP.Messages = mbox.Messages
		}
	}

	common.WriteJSON(w, http.StatusOK, result)
}
