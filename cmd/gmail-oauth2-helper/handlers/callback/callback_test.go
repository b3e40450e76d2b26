package callback

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/sirupsen/logrus/hooks/test"
	"golang.org/x/oauth2"

	"github.com/wrale/gmail-oauth2-helper/internal/authflow"
	"github.com/wrale/gmail-oauth2-helper/internal/oauth"
	"github.com/wrale/gmail-oauth2-helper/internal/store"
	"github.com/wrale/gmail-oauth2-helper/internal/surface"
	"github.com/wrale/gmail-oauth2-helper/internal/templates"
)

type mockFlow struct {
	delivered []authflow.Message
	err       error
	tokens    *authflow.TokenSet
}

func (m *mockFlow) Deliver(ctx context.Context, msg authflow.Message) error {
	m.delivered = append(m.delivered, msg)
	return m.err
}

func (m *mockFlow) Tokens(ctx context.Context) (*authflow.TokenSet, error) {
	return m.tokens, nil
}

func newHandler(t *testing.T, flow *mockFlow) *Handler {
	t.Helper()
	tmpls, err := templates.LoadTemplates()
	if err != nil {
		t.Fatalf("LoadTemplates() error = %v", err)
	}
	logger, _ := test.NewNullLogger()
	return New(Config{Flow: flow, Templates: tmpls, Logger: logger, RetryURL: "/"})
}

func TestHandler_Success(t *testing.T) {
	flow := &mockFlow{tokens: &authflow.TokenSet{
		AccessToken:  "ya29.a0AfH6SMBx1234567890abcdef",
		RefreshToken: "1//0gLongRefreshTokenValue",
		ExpiresIn:    3599,
		TokenType:    "Bearer",
	}}
	h := newHandler(t, flow)

	req := httptest.NewRequest("GET", "http://localhost:8080/callback?code=4%2Fabc&state=S&scope=x", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %v, want 200\n%s", w.Code, w.Body.String())
	}

	want := []authflow.Message{{
		Origin: "http://localhost:8080",
		Type:   authflow.CallbackMessageType,
		Code:   "4/abc",
		State:  "S",
	}}
	if diff := cmp.Diff(want, flow.delivered); diff != "" {
		t.Errorf("delivered mismatch (-want +got):\n%s", diff)
	}

	body := w.Body.String()
	if !strings.Contains(body, "ya29.a0AfH6SMBx12345...") {
		t.Errorf("page missing redacted access token:\n%s", body)
	}
	if strings.Contains(body, "67890abcdef") {
		t.Error("page leaked the full access token")
	}
}

func TestHandler_Errors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantText   string
	}{
		{
			name:       "state mismatch",
			err:        authflow.ErrStateMismatch,
			wantStatus: http.StatusBadRequest,
			wantText:   "Invalid state parameter. Possible CSRF attack.",
		},
		{
			name:       "foreign origin",
			err:        authflow.ErrForeignOrigin,
			wantStatus: http.StatusForbidden,
			wantText:   "registered redirect URI",
		},
		{
			name:       "abandoned attempt",
			err:        authflow.ErrAuthorizationAbandoned,
			wantStatus: http.StatusGone,
			wantText:   "This authorization was cancelled",
		},
		{
			name:       "no pending attempt",
			err:        authflow.ErrNoPendingAuthorization,
			wantStatus: http.StatusConflict,
			wantText:   "No authorization is in progress",
		},
		{
			name:       "provider denied",
			err:        &authflow.AuthorizationDeniedError{Code: "access_denied"},
			wantStatus: http.StatusForbidden,
			wantText:   "access_denied",
		},
		{
			name:       "exchange failed",
			err:        &authflow.TokenExchangeError{StatusCode: 400},
			wantStatus: http.StatusBadGateway,
			wantText:   "Failed to exchange tokens",
		},
		{
			name:       "store failure",
			err:        errors.New("redis down"),
			wantStatus: http.StatusInternalServerError,
			wantText:   "Unable to complete authorization",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHandler(t, &mockFlow{err: tt.err})

			req := httptest.NewRequest("GET", "http://localhost:8080/callback?code=c&state=wrong", nil)
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %v, want %v", w.Code, tt.wantStatus)
			}
			body := w.Body.String()
			if !strings.Contains(body, tt.wantText) {
				t.Errorf("page missing %q:\n%s", tt.wantText, body)
			}
			if !strings.Contains(body, "Try Again") {
				t.Error("error page missing retry link")
			}
		})
	}
}

type openSurface struct{}

func (openSurface) Closed() bool { return false }
func (openSurface) Close() error { return nil }

func TestHandler_ReloadAfterFailedExchange(t *testing.T) {
	var calls atomic.Int32
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"invalid_grant"}`))
	}))
	defer tokenSrv.Close()

	st := store.NewMemoryStore()
	st.Set(context.Background(), authflow.TokensKey, `{"access_token":"ya29.previousTokenValue","refresh_token":"1//old"}`)

	logger, _ := test.NewNullLogger()
	client, err := authflow.New(authflow.Credentials{
		ClientID:     "abc",
		ClientSecret: "secret",
		RedirectURI:  "http://localhost:8080/callback",
	},
		authflow.WithStore(st),
		authflow.WithOpener(surface.OpenerFunc(func(context.Context, string, string, surface.Features) (surface.Surface, error) {
			return openSurface{}, nil
		})),
		authflow.WithEndpoint(oauth2.Endpoint{AuthURL: oauth.GoogleAuthURL, TokenURL: tokenSrv.URL}),
		authflow.WithLogger(logger),
	)
	if err != nil {
		t.Fatalf("authflow.New() error = %v", err)
	}

	a, err := client.StartAuthorization(context.Background())
	if err != nil {
		t.Fatalf("StartAuthorization() error = %v", err)
	}

	tmpls, err := templates.LoadTemplates()
	if err != nil {
		t.Fatalf("LoadTemplates() error = %v", err)
	}
	h := New(Config{Flow: client, Templates: tmpls, Logger: logger, RetryURL: "/"})

	target := "http://localhost:8080/callback?code=4%2Fabc&state=" + a.State()
	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest("GET", target, nil))

		if w.Code != http.StatusBadGateway {
			t.Errorf("request %d: status = %v, want %v", i+1, w.Code, http.StatusBadGateway)
		}
		body := w.Body.String()
		if strings.Contains(body, "successful") || strings.Contains(body, "ya29.previous") {
			t.Errorf("request %d: failed authorization rendered as success:\n%s", i+1, body)
		}
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("token endpoint called %d times, want 1", n)
	}
}

func TestRequestOrigin(t *testing.T) {
	tests := []struct {
		name   string
		target string
		proto  string
		want   string
	}{
		{"plain http", "http://localhost:8080/callback", "", "http://localhost:8080"},
		{"default port dropped", "http://LOCALHOST:80/callback", "", "http://localhost"},
		{"forwarded https", "http://helper.example.com/callback", "https", "https://helper.example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", tt.target, nil)
			if tt.proto != "" {
				req.Header.Set("X-Forwarded-Proto", tt.proto)
			}
			if got := RequestOrigin(req); got != tt.want {
				t.Errorf("RequestOrigin() = %q, want %q", got, tt.want)
			}
		})
	}
}
