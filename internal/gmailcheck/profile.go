// Package gmailcheck verifies freshly obtained credentials against Gmail
package gmailcheck

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// Profile is the mailbox summary returned by the Gmail API
type Profile struct {
	EmailAddress  string
	MessagesTotal int64
	ThreadsTotal  int64
}

// ProfileChecker fetches the user's Gmail profile to prove the access
// token is accepted by the API
type ProfileChecker struct {
	userID string
	opts   []option.ClientOption
}

// NewProfileChecker creates a checker for userID ("me" for the token owner).
// Extra client options are appended after the token source, e.g. to point
// the client at another endpoint.
func NewProfileChecker(userID string, opts ...option.ClientOption) *ProfileChecker {
	if userID == "" {
		userID = "me"
	}
	return &ProfileChecker{userID: userID, opts: opts}
}

// Check calls users.getProfile with tokens from ts
func (p *ProfileChecker) Check(ctx context.Context, ts oauth2.TokenSource) (*Profile, error) {
	opts := append([]option.ClientOption{option.WithTokenSource(ts)}, p.opts...)
	service, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating Gmail service: %w", err)
	}

	profile, err := service.Users.GetProfile(p.userID).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("fetching Gmail profile: %w", err)
	}

	return &Profile{
		EmailAddress:  profile.EmailAddress,
		MessagesTotal: profile.MessagesTotal,
		ThreadsTotal:  profile.ThreadsTotal,
	}, nil
}
