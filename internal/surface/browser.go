package surface

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/pkg/browser"
	"github.com/sirupsen/logrus"
)

// BrowserOpener opens the URL in the user's default browser. The browser
// tab cannot be observed, so the returned surface counts as closed once
// Close is called or the context passed to Open is done.
type BrowserOpener struct {
	open   func(url string) error
	logger logrus.FieldLogger
}

// BrowserOption configures a BrowserOpener
type BrowserOption func(*BrowserOpener)

// WithOpenFunc replaces the function that launches the browser
func WithOpenFunc(fn func(url string) error) BrowserOption {
	return func(o *BrowserOpener) {
		o.open = fn
	}
}

// WithPrinter makes the opener print the URL to w instead of launching a
// browser, for headless machines
func WithPrinter(w io.Writer) BrowserOption {
	return func(o *BrowserOpener) {
		o.open = func(url string) error {
			_, err := fmt.Fprintf(w, "Open this URL in your browser to authorize access:\n\n  %s\n\n", url)
			return err
		}
	}
}

// NewBrowserOpener creates an opener backed by github.com/pkg/browser
func NewBrowserOpener(logger logrus.FieldLogger, opts ...BrowserOption) *BrowserOpener {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	o := &BrowserOpener{
		open:   browser.OpenURL,
		logger: logger,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Open launches the URL. name and features are logged only: a browser tab
// has no window name or size.
func (o *BrowserOpener) Open(ctx context.Context, url, name string, features Features) (Surface, error) {
	o.logger.WithFields(logrus.Fields{
		"window":   name,
		"features": features.String(),
	}).Debug("Opening authorization surface")

	if err := o.open(url); err != nil {
		return nil, fmt.Errorf("opening browser: %w", err)
	}

	s := &browserSurface{closed: make(chan struct{})}
	go func() {
		select {
		case <-ctx.Done():
			s.Close()
		case <-s.closed:
		}
	}()
	return s, nil
}

type browserSurface struct {
	once   sync.Once
	closed chan struct{}
}

func (s *browserSurface) Closed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

func (s *browserSurface) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}
