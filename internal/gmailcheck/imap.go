package gmailcheck

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/emersion/go-imap/client"
	"golang.org/x/oauth2"
)

const (
	// DefaultIMAPAddr is Gmail's IMAP over TLS endpoint
	DefaultIMAPAddr = "imap.gmail.com:993"

	defaultDialTimeout = 10 * time.Second
)

// ErrMissingUser indicates an IMAP check without a mailbox address
var ErrMissingUser = errors.New("IMAP login requires the mailbox address")

// Mailbox summarises the selected IMAP mailbox
type Mailbox struct {
	Name     string
	Messages uint32
}

// IMAPChecker logs in over IMAP with SASL XOAUTH2 and selects INBOX
// read-only
type IMAPChecker struct {
	addr        string
	dialTimeout time.Duration
}

// NewIMAPChecker creates a checker for addr, defaulting to Gmail
func NewIMAPChecker(addr string) *IMAPChecker {
	if addr == "" {
		addr = DefaultIMAPAddr
	}
	return &IMAPChecker{addr: addr, dialTimeout: defaultDialTimeout}
}

// Check authenticates as user with the access token from ts
func (c *IMAPChecker) Check(ctx context.Context, user string, ts oauth2.TokenSource) (*Mailbox, error) {
	if user == "" {
		return nil, ErrMissingUser
	}

	tok, err := ts.Token()
	if err != nil {
		return nil, fmt.Errorf("getting access token: %w", err)
	}

	dialer := &net.Dialer{Timeout: c.dialTimeout}
	if deadline, ok := ctx.Deadline(); ok {
		dialer.Deadline = deadline
	}
	cl, err := client.DialWithDialerTLS(dialer, c.addr, nil)
	if err != nil {
		return nil, fmt.Errorf("connecting to IMAP server: %w", err)
	}
	defer cl.Logout()

	if err := cl.Authenticate(newXOAuth2(user, tok.AccessToken)); err != nil {
		return nil, fmt.Errorf("authenticating with XOAUTH2: %w", err)
	}

	mbox, err := cl.Select("INBOX", true)
	if err != nil {
		return nil, fmt.Errorf("selecting INBOX: %w", err)
	}

	return &Mailbox{Name: mbox.Name, Messages: mbox.Messages}, nil
}

// xoauth2 is the SASL XOAUTH2 mechanism used by Gmail IMAP and SMTP
type xoauth2 struct {
	user  string
	token string
}

func newXOAuth2(user, token string) *xoauth2 {
	return &xoauth2{user: user, token: token}
}

// Start returns the initial client response
func (a *xoauth2) Start() (mech string, ir []byte, err error) {
	ir = []byte("user=" + a.user + "\x01auth=Bearer " + a.token + "\x01\x01")
	return "XOAUTH2", ir, nil
}

// Next answers the server's error challenge with an empty response so the
// server completes the exchange with a tagged NO
func (a *xoauth2) Next(challenge []byte) ([]byte, error) {
	return []byte{}, nil
}
