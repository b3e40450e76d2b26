// Package oauth talks to the OAuth2 token endpoint on behalf of the
// authorization code flow
package oauth

import (
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
)

const (
	// GoogleAuthURL is the v2 authorization endpoint used for consent
	GoogleAuthURL = "https://accounts.google.com/o/oauth2/v2/auth"

	// MailScope grants full IMAP/SMTP/API access to the mailbox
	MailScope = gmail.MailGoogleComScope
)

// GoogleEndpoint pairs the v2 authorization endpoint with Google's token endpoint
var GoogleEndpoint = oauth2.Endpoint{
	AuthURL:  GoogleAuthURL,
	TokenURL: google.Endpoint.TokenURL,
}

// Common errors returned by the token client
var (
	ErrInvalidGrant     = errors.New("invalid grant")
	ErrMissingToken     = errors.New("token response has no access_token")
	ErrMissingClientID  = errors.New("client ID is required")
	ErrMissingTokenURL  = errors.New("token URL is required")
	ErrNonObjectPayload = errors.New("token response is not a JSON object")
)

// HTTPError reports a non-success response from the token endpoint
type HTTPError struct {
	StatusCode  int
	Code        string // OAuth2 "error" field, when the body carried one
	Description string // OAuth2 "error_description" field
}

func (e *HTTPError) Error() string {
	msg := fmt.Sprintf("token endpoint returned %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	if e.Code != "" {
		msg += ": " + e.Code
		if e.Description != "" {
			msg += ": " + e.Description
		}
	}
	return msg
}

// Is lets errors.Is(err, ErrInvalidGrant) match invalid_grant responses
func (e *HTTPError) Is(target error) bool {
	return target == ErrInvalidGrant && e.Code == "invalid_grant"
}

// Config holds token client configuration
type Config struct {
	ClientID     string
	ClientSecret string
	Endpoint     oauth2.Endpoint
	HTTPClient   *http.Client
}
