package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/wrale/gmail-oauth2-helper/internal/oauth"
)

type checkerFunc func(ctx context.Context) error

func (f checkerFunc) CheckHealth(ctx context.Context) error { return f(ctx) }

type tokenReaderFunc func(ctx context.Context) (*oauth.TokenSet, error)

func (f tokenReaderFunc) Tokens(ctx context.Context) (*oauth.TokenSet, error) { return f(ctx) }

func TestHandler(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	ok := checkerFunc(func(context.Context) error { return nil })

	tests := []struct {
		name     string
		store    Checker
		tokens   TokenReader
		wantCode int
		want     Response
	}{
		{
			name:     "store only",
			store:    ok,
			wantCode: http.StatusOK,
			want: Response{
				Status:  "healthy",
				Version: "1.2.3",
				Details: map[string]Detail{"store": {Status: "healthy"}},
			},
		},
		{
			name:     "store unreachable",
			store:    checkerFunc(func(context.Context) error { return errors.New("connection refused") }),
			tokens:   tokenReaderFunc(func(context.Context) (*oauth.TokenSet, error) { return nil, errors.New("unexpected read") }),
			wantCode: http.StatusServiceUnavailable,
			want: Response{
				Status:  "unhealthy",
				Version: "1.2.3",
				Details: map[string]Detail{"store": {Status: "unhealthy", Message: "connection refused"}},
			},
		},
		{
			name:     "no tokens yet",
			store:    ok,
			tokens:   tokenReaderFunc(func(context.Context) (*oauth.TokenSet, error) { return nil, nil }),
			wantCode: http.StatusOK,
			want: Response{
				Status:  "healthy",
				Version: "1.2.3",
				Details: map[string]Detail{"store": {Status: "healthy"}, "tokens": {Status: "missing"}},
			},
		},
		{
			name:  "expired tokens",
			store: ok,
			tokens: tokenReaderFunc(func(context.Context) (*oauth.TokenSet, error) {
				return &oauth.TokenSet{AccessToken: "at", ExpiresIn: 3600, ObtainedAt: now.Add(-2 * time.Hour).Unix()}, nil
			}),
			wantCode: http.StatusOK,
			want: Response{
				Status:  "healthy",
				Version: "1.2.3",
				Details: map[string]Detail{"store": {Status: "healthy"}, "tokens": {Status: "expired"}},
			},
		},
		{
			name:  "valid tokens",
			store: ok,
			tokens: tokenReaderFunc(func(context.Context) (*oauth.TokenSet, error) {
				return &oauth.TokenSet{AccessToken: "at", ExpiresIn: 3600, ObtainedAt: now.Unix()}, nil
			}),
			wantCode: http.StatusOK,
			want: Response{
				Status:  "healthy",
				Version: "1.2.3",
				Details: map[string]Detail{"store": {Status: "healthy"}, "tokens": {Status: "present"}},
			},
		},
		{
			name:     "unreadable tokens",
			store:    ok,
			tokens:   tokenReaderFunc(func(context.Context) (*oauth.TokenSet, error) { return nil, errors.New("bad json") }),
			wantCode: http.StatusOK,
			want: Response{
				Status:  "healthy",
				Version: "1.2.3",
				Details: map[string]Detail{"store": {Status: "healthy"}, "tokens": {Status: "unreadable", Message: "bad json"}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := New(tt.store).WithVersion("1.2.3")
			if tt.tokens != nil {
				h.WithTokens(tt.tokens)
			}
			h.now = func() time.Time { return now }

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			if rec.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			if got := rec.Header().Get("Cache-Control"); got != "no-store" {
				t.Errorf("Cache-Control = %q, want no-store", got)
			}

			var got Response
			if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
				t.Fatalf("decoding response: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("response mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
