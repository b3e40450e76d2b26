package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// HTTP request timeout for token endpoint calls
	defaultTimeout = 10 * time.Second

	// Upper bound on token endpoint response bodies
	maxBodySize = 1 << 20
)

// TokenClient performs authorization_code and refresh_token grants against a
// token endpoint using form-encoded POSTs with client credentials in the body
type TokenClient struct {
	client       *http.Client
	clientID     string
	clientSecret string
	tokenURL     string
	now          func() time.Time
}

// NewTokenClient creates a new token endpoint client
func NewTokenClient(cfg Config) (*TokenClient, error) {
	// Validate required fields
	if cfg.ClientID == "" {
		return nil, ErrMissingClientID
	}
	if cfg.Endpoint.TokenURL == "" {
		return nil, ErrMissingTokenURL
	}
	if _, err := url.Parse(cfg.Endpoint.TokenURL); err != nil {
		return nil, fmt.Errorf("invalid token URL: %w", err)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}

	return &TokenClient{
		client:       httpClient,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		tokenURL:     cfg.Endpoint.TokenURL,
		now:          time.Now,
	}, nil
}

// ExchangeCode exchanges an authorization code for tokens
func (c *TokenClient) ExchangeCode(ctx context.Context, code, redirectURI string) (*TokenSet, error) {
	data := url.Values{
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
		"code":          {code},
		"grant_type":    {"authorization_code"},
		"redirect_uri":  {redirectURI},
	}
	return c.post(ctx, data)
}

// RefreshToken mints a new access token from a refresh token.
// The returned set only carries the fields the endpoint sent.
func (c *TokenClient) RefreshToken(ctx context.Context, refreshToken string) (*TokenSet, error) {
	data := url.Values{
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
		"refresh_token": {refreshToken},
		"grant_type":    {"refresh_token"},
	}
	return c.post(ctx, data)
}

// post sends a token request and decodes the response
func (c *TokenClient) post(ctx context.Context, data url.Values) (*TokenSet, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("creating token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending token request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("reading token response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		httpErr := &HTTPError{StatusCode: resp.StatusCode}
		var errResp struct {
			Error            string `json:"error"`
			ErrorDescription string `json:"error_description"`
		}
		// Error bodies are best effort; some proxies answer with HTML
		if json.Unmarshal(body, &errResp) == nil {
			httpErr.Code = errResp.Error
			httpErr.Description = errResp.ErrorDescription
		}
		return nil, httpErr
	}

	var tokens TokenSet
	if err := json.Unmarshal(body, &tokens); err != nil {
		return nil, fmt.Errorf("parsing token response: %w", err)
	}
	if tokens.AccessToken == "" {
		return nil, ErrMissingToken
	}
	tokens.ObtainedAt = c.now().Unix()

	return &tokens, nil
}
