package authorize

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"

	"github.com/wrale/gmail-oauth2-helper/internal/authflow"
	"github.com/wrale/gmail-oauth2-helper/internal/surface"
)

type openSurface struct{}

func (openSurface) Closed() bool { return false }
func (openSurface) Close() error { return nil }

func newClient(t *testing.T) *authflow.Client {
	t.Helper()
	logger, _ := test.NewNullLogger()
	opener := surface.OpenerFunc(func(ctx context.Context, url, name string, f surface.Features) (surface.Surface, error) {
		return openSurface{}, nil
	})
	c, err := authflow.New(authflow.Credentials{
		ClientID:    "abc",
		RedirectURI: "http://localhost:8080/callback",
	}, authflow.WithOpener(opener), authflow.WithLogger(logger))
	if err != nil {
		t.Fatalf("authflow.New() error = %v", err)
	}
	return c
}

type failingStarter struct{}

func (failingStarter) StartAuthorization(ctx context.Context) (*authflow.Attempt, error) {
	return nil, errors.New("store down")
}

func TestHandler_GetRedirects(t *testing.T) {
	logger, _ := test.NewNullLogger()
	h := New(newClient(t), logger)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))

	if w.Code != http.StatusFound {
		t.Fatalf("status = %v, want %v", w.Code, http.StatusFound)
	}
	loc := w.Header().Get("Location")
	if !strings.HasPrefix(loc, "https://accounts.google.com/o/oauth2/v2/auth?client_id=abc&") {
		t.Errorf("Location = %q", loc)
	}
}

func TestHandler_PostReturnsURL(t *testing.T) {
	logger, _ := test.NewNullLogger()
	h := New(newClient(t), logger)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("POST", "/authorize", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %v, want 200", w.Code)
	}
	var resp Response
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if !strings.Contains(resp.AuthorizationURL, "prompt=consent") {
		t.Errorf("authorization_url = %q", resp.AuthorizationURL)
	}
}

func TestHandler_StartFailure(t *testing.T) {
	logger, _ := test.NewNullLogger()
	h := New(failingStarter{}, logger)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("POST", "/authorize", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %v, want 500", w.Code)
	}
}
