// Package surface presents the authorization URL to the user and reports
// when the user is done with it
package surface

import (
	"context"
	"fmt"
	"strings"
)

// Surface is an opened authorization view
type Surface interface {
	// Closed reports whether the user or the host has closed the view
	Closed() bool

	// Close dismisses the view. Closing twice is not an error.
	Close() error
}

// Opener presents a URL on an interactive, user-visible surface
type Opener interface {
	Open(ctx context.Context, url, name string, features Features) (Surface, error)
}

// OpenerFunc adapts a function to the Opener interface
type OpenerFunc func(ctx context.Context, url, name string, features Features) (Surface, error)

// Open calls f
func (f OpenerFunc) Open(ctx context.Context, url, name string, features Features) (Surface, error) {
	return f(ctx, url, name, features)
}

// Features sizes the surface. Hosts that cannot honour a hint ignore it.
type Features struct {
	Width      int
	Height     int
	Scrollbars bool
	Resizable  bool
}

// String renders features in window.open form, e.g.
// "width=600,height=700,scrollbars=yes,resizable=yes"
func (f Features) String() string {
	var parts []string
	if f.Width > 0 {
		parts = append(parts, fmt.Sprintf("width=%d", f.Width))
	}
	if f.Height > 0 {
		parts = append(parts, fmt.Sprintf("height=%d", f.Height))
	}
	parts = append(parts, "scrollbars="+yesNo(f.Scrollbars))
	parts = append(parts, "resizable="+yesNo(f.Resizable))
	return strings.Join(parts, ",")
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
