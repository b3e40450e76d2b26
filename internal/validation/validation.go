// Package validation provides state token and redirect URI validation for the
// OAuth2 authorization code flow
package validation

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Validation settings
const (
	StateLength = 32 // Exact length of an authorization state token
)

// StateCharset contains the allowed characters for state tokens
const StateCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

var stateRegex = regexp.MustCompile(fmt.Sprintf("^[A-Za-z0-9]{%d}$", StateLength))

// ValidationError represents a validation failure for a single value
type ValidationError struct {
	Field   string
	Value   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Message)
}

// ValidateState checks that a state token has the exact length and only
// characters from StateCharset
func ValidateState(state string) error {
	if len(state) != StateLength {
		return &ValidationError{
			Field:   "state",
			Value:   state,
			Message: fmt.Sprintf("length must be exactly %d characters", StateLength),
		}
	}
	if !stateRegex.MatchString(state) {
		return &ValidationError{
			Field:   "state",
			Value:   state,
			Message: "must use only letters and digits",
		}
	}
	return nil
}

// ValidateRedirectURI checks that a redirect URI is absolute and uses http or https.
// Plain http is only accepted for loopback hosts.
func ValidateRedirectURI(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return &ValidationError{Field: "redirect_uri", Value: raw, Message: err.Error()}
	}
	if u.Host == "" {
		return &ValidationError{Field: "redirect_uri", Value: raw, Message: "must be an absolute URL"}
	}
	switch u.Scheme {
	case "https":
	case "http":
		if !IsLoopback(u.Hostname()) {
			return &ValidationError{Field: "redirect_uri", Value: raw, Message: "http is only allowed for loopback hosts"}
		}
	default:
		return &ValidationError{Field: "redirect_uri", Value: raw, Message: "scheme must be http or https"}
	}
	if u.Fragment != "" {
		return &ValidationError{Field: "redirect_uri", Value: raw, Message: "must not contain a fragment"}
	}
	return nil
}

// IsLoopback reports whether host names the local machine
func IsLoopback(host string) bool {
	switch strings.ToLower(host) {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}

// Origin returns the scheme://host[:port] origin of a URL, lower-cased.
// Default ports are dropped so that http://x:80 and http://x compare equal.
func Origin(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parsing url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("url %q has no origin", raw)
	}
	return NormalizeOrigin(u.Scheme, u.Host), nil
}

// NormalizeOrigin builds an origin string from a scheme and host[:port]
func NormalizeOrigin(scheme, host string) string {
	scheme = strings.ToLower(scheme)
	host = strings.ToLower(host)
	switch {
	case scheme == "http" && strings.HasSuffix(host, ":80"):
		host = strings.TrimSuffix(host, ":80")
	case scheme == "https" && strings.HasSuffix(host, ":443"):
		host = strings.TrimSuffix(host, ":443")
	}
	return scheme + "://" + host
}
