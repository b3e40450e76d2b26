package gmailcheck

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	"google.golang.org/api/option"
)

func staticTokens(access string) oauth2.TokenSource {
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: access, TokenType: "Bearer"})
}

func TestProfileChecker_Check(t *testing.T) {
	var gotAuth, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"emailAddress":  "user@example.com",
			"messagesTotal": 42,
			"threadsTotal":  7,
			"historyId":     "1234",
		})
	}))
	defer srv.Close()

	checker := NewProfileChecker("", option.WithEndpoint(srv.URL+"/"))
	profile, err := checker.Check(context.Background(), staticTokens("ya29.token"))
	require.NoError(t, err)

	assert.Equal(t, "Bearer ya29.token", gotAuth)
	assert.True(t, strings.HasSuffix(gotPath, "/users/me/profile"), "path %s", gotPath)
	assert.Equal(t, &Profile{EmailAddress: "user@example.com", MessagesTotal: 42, ThreadsTotal: 7}, profile)
}

func TestProfileChecker_Unauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"code":401,"message":"Invalid Credentials"}}`))
	}))
	defer srv.Close()

	checker := NewProfileChecker("me", option.WithEndpoint(srv.URL+"/"))
	_, err := checker.Check(context.Background(), staticTokens("expired"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetching Gmail profile")
}

func TestXOAuth2(t *testing.T) {
	auth := newXOAuth2("user@example.com", "ya29.token")

	mech, ir, err := auth.Start()
	require.NoError(t, err)
	assert.Equal(t, "XOAUTH2", mech)
	assert.Equal(t, "user=user@example.com\x01auth=Bearer ya29.token\x01\x01", string(ir))

	resp, err := auth.Next([]byte(`{"status":"400"}`))
	require.NoError(t, err)
	assert.Empty(t, resp)
}

func TestIMAPChecker_Check(t *testing.T) {
	t.Run("missing user", func(t *testing.T) {
		_, err := NewIMAPChecker("").Check(context.Background(), "", staticTokens("t"))
		assert.ErrorIs(t, err, ErrMissingUser)
	})

	t.Run("unreachable server", func(t *testing.T) {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		addr := ln.Addr().String()
		ln.Close()

		_, err = NewIMAPChecker(addr).Check(context.Background(), "user@example.com", staticTokens("t"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "connecting to IMAP server")
	})
}
