package authflow

import (
	"errors"
	"fmt"

	"github.com/wrale/gmail-oauth2-helper/internal/csrf"
)

// Errors returned by the authorization flow
var (
	// ErrStateMismatch indicates a callback whose state is not the outstanding one
	ErrStateMismatch = csrf.ErrStateMismatch

	// ErrMissingRefreshToken indicates no stored token set carries a refresh token
	ErrMissingRefreshToken = errors.New("no refresh token available")

	// ErrForeignOrigin indicates a callback message from another origin
	ErrForeignOrigin = errors.New("callback message from foreign origin")

	// ErrUnknownMessage indicates a message that is not an authorization callback
	ErrUnknownMessage = errors.New("unknown message type")

	// ErrNoPendingAuthorization indicates a valid callback with no attempt
	// in this process waiting for it
	ErrNoPendingAuthorization = errors.New("no pending authorization")

	// ErrAuthorizationAbandoned indicates the surface was closed before a callback arrived
	ErrAuthorizationAbandoned = errors.New("authorization abandoned")
)

// TokenExchangeError reports a failed authorization code exchange.
// StatusCode is zero when the endpoint was never reached or its response
// could not be read.
type TokenExchangeError struct {
	StatusCode int
	Cause      error
}

func (e *TokenExchangeError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("token exchange failed: HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("token exchange failed: %v", e.Cause)
}

func (e *TokenExchangeError) Unwrap() error {
	return e.Cause
}

// TokenRefreshError reports a failed refresh_token grant
type TokenRefreshError struct {
	StatusCode int
	Cause      error
}

func (e *TokenRefreshError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("token refresh failed: HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("token refresh failed: %v", e.Cause)
}

func (e *TokenRefreshError) Unwrap() error {
	return e.Cause
}

// AuthorizationDeniedError carries the error the provider sent back on
// the redirect, e.g. access_denied
type AuthorizationDeniedError struct {
	Code        string
	Description string
}

func (e *AuthorizationDeniedError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("authorization denied: %s: %s", e.Code, e.Description)
	}
	return "authorization denied: " + e.Code
}
