package oauth

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestTokenSet_RoundTrip(t *testing.T) {
	in := `{"access_token":"a","refresh_token":"r","expires_in":3599,"token_type":"Bearer","id_token":"x","nested":{"k":1}}`

	var ts TokenSet
	if err := json.Unmarshal([]byte(in), &ts); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	want := TokenSet{
		AccessToken:  "a",
		RefreshToken: "r",
		ExpiresIn:    3599,
		TokenType:    "Bearer",
		Extra: map[string]any{
			"id_token": "x",
			"nested":   map[string]any{"k": float64(1)},
		},
	}
	if diff := cmp.Diff(want, ts); diff != "" {
		t.Errorf("decoded mismatch (-want +got):\n%s", diff)
	}

	out, err := json.Marshal(ts)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var gotMap, wantMap map[string]any
	json.Unmarshal(out, &gotMap)
	json.Unmarshal([]byte(in), &wantMap)
	if diff := cmp.Diff(wantMap, gotMap); diff != "" {
		t.Errorf("re-encoded mismatch (-want +got):\n%s", diff)
	}
}

func TestTokenSet_ExtraCannotShadowTypedFields(t *testing.T) {
	ts := TokenSet{
		AccessToken: "typed",
		Extra:       map[string]any{"access_token": "extra", "other": true},
	}
	out, _ := json.Marshal(ts)

	var m map[string]any
	json.Unmarshal(out, &m)
	if m["access_token"] != "typed" {
		t.Errorf("access_token = %v, want typed value", m["access_token"])
	}
	if m["other"] != true {
		t.Errorf("other = %v, want true", m["other"])
	}
}

func TestMerge(t *testing.T) {
	prior := &TokenSet{
		AccessToken:  "old",
		RefreshToken: "keep-me",
		ExpiresIn:    10,
		TokenType:    "Bearer",
		Scope:        MailScope,
		ObtainedAt:   100,
		Extra:        map[string]any{"id_token": "old-id", "custom": "kept"},
	}

	tests := []struct {
		name  string
		prior *TokenSet
		fresh *TokenSet
		want  *TokenSet
	}{
		{
			name:  "refresh omits refresh_token",
			prior: prior,
			fresh: &TokenSet{AccessToken: "new", ExpiresIn: 3599, TokenType: "Bearer", ObtainedAt: 200, Extra: map[string]any{"id_token": "new-id"}},
			want: &TokenSet{
				AccessToken:  "new",
				RefreshToken: "keep-me",
				ExpiresIn:    3599,
				TokenType:    "Bearer",
				Scope:        MailScope,
				ObtainedAt:   200,
				Extra:        map[string]any{"id_token": "new-id", "custom": "kept"},
			},
		},
		{
			name:  "refresh rotates refresh_token",
			prior: prior,
			fresh: &TokenSet{AccessToken: "new", RefreshToken: "rotated"},
			want: &TokenSet{
				AccessToken:  "new",
				RefreshToken: "rotated",
				ExpiresIn:    10,
				TokenType:    "Bearer",
				Scope:        MailScope,
				ObtainedAt:   100,
				Extra:        map[string]any{"id_token": "old-id", "custom": "kept"},
			},
		},
		{
			name:  "nil prior",
			prior: nil,
			fresh: &TokenSet{AccessToken: "only"},
			want:  &TokenSet{AccessToken: "only"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Merge(tt.prior, tt.fresh)
			if err != nil {
				t.Fatalf("Merge() error = %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Merge() mismatch (-want +got):\n%s", diff)
			}
		})
	}

	if prior.AccessToken != "old" {
		t.Error("Merge() modified prior")
	}
}

func TestTokenSet_Expiry(t *testing.T) {
	ts := &TokenSet{ExpiresIn: 3600, ObtainedAt: 1000}
	want := time.Unix(4600, 0)
	if !ts.Expiry().Equal(want) {
		t.Errorf("Expiry() = %v, want %v", ts.Expiry(), want)
	}

	if ts.Expired(time.Unix(4000, 0), time.Minute) {
		t.Error("Expired() = true ten minutes before expiry")
	}
	if !ts.Expired(time.Unix(4560, 0), time.Minute) {
		t.Error("Expired() = false within leeway")
	}
	if (&TokenSet{ExpiresIn: 3600}).Expired(time.Now(), 0) {
		t.Error("Expired() = true without an anchor time")
	}
}

func TestTokenSet_OAuth2Token(t *testing.T) {
	ts := &TokenSet{
		AccessToken:  "a",
		RefreshToken: "r",
		TokenType:    "Bearer",
		ExpiresIn:    60,
		ObtainedAt:   1000,
		Extra:        map[string]any{"id_token": "x"},
	}
	tok := ts.OAuth2Token()
	if tok.AccessToken != "a" || tok.RefreshToken != "r" || tok.TokenType != "Bearer" {
		t.Errorf("OAuth2Token() = %+v", tok)
	}
	if !tok.Expiry.Equal(time.Unix(1060, 0)) {
		t.Errorf("Expiry = %v", tok.Expiry)
	}
	if tok.Extra("id_token") != "x" {
		t.Errorf("Extra(id_token) = %v", tok.Extra("id_token"))
	}
}

func TestTokenSet_Summary(t *testing.T) {
	ts := &TokenSet{
		AccessToken:  "ya29.a0AfH6SMBx1234567890abcdef",
		RefreshToken: "short",
		ExpiresIn:    3599,
		TokenType:    "Bearer",
	}
	got := ts.Summary()
	for _, want := range []string{
		"ya29.a0AfH6SMBx12345...",
		"Refresh Token: short\n",
		"3599 seconds",
		"Bearer",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("Summary() missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "67890abcdef") {
		t.Errorf("Summary() leaked the full access token:\n%s", got)
	}
}
