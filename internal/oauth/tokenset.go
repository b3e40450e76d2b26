package oauth

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// knownFields lists the JSON keys mapped onto typed TokenSet fields
var knownFields = []string{
	"access_token", "refresh_token", "expires_in", "token_type", "scope", "obtained_at",
}

// TokenSet is the token endpoint response plus any fields the endpoint
// returned that are not modelled explicitly
type TokenSet struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int
	TokenType    string
	Scope        string

	// ObtainedAt is the unix time the set was received; it anchors ExpiresIn
	ObtainedAt int64

	// Extra holds unrecognised response fields such as id_token
	Extra map[string]any
}

// MarshalJSON writes typed fields over Extra. Zero-valued typed fields are
// omitted so that a marshalled refresh response only carries what the
// endpoint actually sent.
func (t TokenSet) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(t.Extra)+len(knownFields))
	for k, v := range t.Extra {
		m[k] = v
	}
	for _, k := range knownFields {
		delete(m, k)
	}
	if t.AccessToken != "" {
		m["access_token"] = t.AccessToken
	}
	if t.RefreshToken != "" {
		m["refresh_token"] = t.RefreshToken
	}
	if t.ExpiresIn != 0 {
		m["expires_in"] = t.ExpiresIn
	}
	if t.TokenType != "" {
		m["token_type"] = t.TokenType
	}
	if t.Scope != "" {
		m["scope"] = t.Scope
	}
	if t.ObtainedAt != 0 {
		m["obtained_at"] = t.ObtainedAt
	}
	return json.Marshal(m)
}

// UnmarshalJSON fills typed fields and collects everything else into Extra
func (t *TokenSet) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		return ErrNonObjectPayload
	}

	var typed struct {
		AccessToken  string      `json:"access_token"`
		RefreshToken string      `json:"refresh_token"`
		ExpiresIn    json.Number `json:"expires_in"`
		TokenType    string      `json:"token_type"`
		Scope        string      `json:"scope"`
		ObtainedAt   int64       `json:"obtained_at"`
	}
	if err := json.Unmarshal(data, &typed); err != nil {
		return err
	}

	expiresIn := 0
	if typed.ExpiresIn != "" {
		n, err := typed.ExpiresIn.Int64()
		if err != nil {
			return fmt.Errorf("parsing expires_in: %w", err)
		}
		expiresIn = int(n)
	}

	*t = TokenSet{
		AccessToken:  typed.AccessToken,
		RefreshToken: typed.RefreshToken,
		ExpiresIn:    expiresIn,
		TokenType:    typed.TokenType,
		Scope:        typed.Scope,
		ObtainedAt:   typed.ObtainedAt,
	}

	for _, k := range knownFields {
		delete(raw, k)
	}
	if len(raw) > 0 {
		t.Extra = make(map[string]any, len(raw))
		for k, v := range raw {
			var val any
			if err := json.Unmarshal(v, &val); err != nil {
				return fmt.Errorf("parsing %s: %w", k, err)
			}
			t.Extra[k] = val
		}
	}
	return nil
}

// Merge returns prior overlaid with fresh: fields present in fresh win,
// fields fresh does not carry are kept from prior. A nil prior yields a
// copy of fresh.
func Merge(prior, fresh *TokenSet) (*TokenSet, error) {
	base := map[string]json.RawMessage{}
	if prior != nil {
		if err := remarshal(prior, &base); err != nil {
			return nil, fmt.Errorf("encoding prior token set: %w", err)
		}
	}
	var overlay map[string]json.RawMessage
	if err := remarshal(fresh, &overlay); err != nil {
		return nil, fmt.Errorf("encoding fresh token set: %w", err)
	}
	for k, v := range overlay {
		base[k] = v
	}

	data, err := json.Marshal(base)
	if err != nil {
		return nil, fmt.Errorf("encoding merged token set: %w", err)
	}
	var merged TokenSet
	if err := json.Unmarshal(data, &merged); err != nil {
		return nil, fmt.Errorf("decoding merged token set: %w", err)
	}
	return &merged, nil
}

func remarshal(in any, out any) error {
	data, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

// Expiry returns the absolute access token expiry, or the zero time when
// either anchor is unknown
func (t *TokenSet) Expiry() time.Time {
	if t.ObtainedAt == 0 || t.ExpiresIn == 0 {
		return time.Time{}
	}
	return time.Unix(t.ObtainedAt, 0).Add(time.Duration(t.ExpiresIn) * time.Second)
}

// Expired reports whether the access token expires within leeway of now.
// A set without a known expiry is never considered expired.
func (t *TokenSet) Expired(now time.Time, leeway time.Duration) bool {
	exp := t.Expiry()
	if exp.IsZero() {
		return false
	}
	return !now.Add(leeway).Before(exp)
}

// OAuth2Token converts the set for use with golang.org/x/oauth2 clients
func (t *TokenSet) OAuth2Token() *oauth2.Token {
	tok := &oauth2.Token{
		AccessToken:  t.AccessToken,
		TokenType:    t.TokenType,
		RefreshToken: t.RefreshToken,
		Expiry:       t.Expiry(),
	}
	if len(t.Extra) > 0 {
		tok = tok.WithExtra(t.Extra)
	}
	return tok
}

// Summary renders the set for display with both tokens truncated to their
// first 20 characters
func (t *TokenSet) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Access Token:  %s\n", truncate(t.AccessToken, 20))
	fmt.Fprintf(&b, "Refresh Token: %s\n", truncate(t.RefreshToken, 20))
	fmt.Fprintf(&b, "Expires In:    %d seconds\n", t.ExpiresIn)
	fmt.Fprintf(&b, "Token Type:    %s\n", t.TokenType)
	return b.String()
}

func truncate(s string, n int) string {
	if s == "" {
		return "(none)"
	}
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
