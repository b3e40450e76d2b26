package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/kelseyhightower/envconfig"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"github.com/wrale/gmail-oauth2-helper/internal/authflow"
	"github.com/wrale/gmail-oauth2-helper/internal/gmailcheck"
	"github.com/wrale/gmail-oauth2-helper/internal/metrics"
	"github.com/wrale/gmail-oauth2-helper/internal/status"
	"github.com/wrale/gmail-oauth2-helper/internal/surface"
)

// Version is set by the build process
var Version = "dev"

const usage = `Usage: gmail-oauth2-helper [command]

Commands:
  authorize   Run the browser consent flow and store the tokens (default)
  refresh     Refresh the stored access token
  verify      Check the stored tokens against Gmail
  serve       Run the helper as a long-lived HTTP service on a loopback
              address (it serves the stored tokens without authentication)
  version     Print the version
  help        Show this message

Configuration is read from the environment (GMAIL_CLIENT_ID, GMAIL_CLIENT_SECRET, ...).
`

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	cmd := "authorize"
	if len(args) > 0 {
		cmd = args[0]
	}

	switch cmd {
	case "version", "-v", "--version":
		fmt.Fprintln(stdout, Version)
		return nil
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return nil
	case "authorize", "refresh", "verify", "serve":
	default:
		fmt.Fprint(stderr, usage)
		return fmt.Errorf("unknown command %q", cmd)
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger, err := newLogger(cfg, cmd == "serve", stderr)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeStore(); err != nil {
			logger.WithError(err).Warn("Error closing store")
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	var sink status.Sink = status.NewWriterSink(stderr)
	opener := surface.NewBrowserOpener(logger)
	if cmd == "serve" {
		sink = status.NewLogrusSink(logger)
		opener = surface.NewBrowserOpener(logger, surface.WithOpenFunc(func(url string) error {
			logger.WithField("url", url).Info("Authorization URL ready")
			return nil
		}))
	} else if !cfg.OpenBrowser {
		opener = surface.NewBrowserOpener(logger, surface.WithPrinter(stderr))
	}

	client, err := authflow.New(authflow.Credentials{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURI:  cfg.RedirectURI,
	},
		authflow.WithStore(st),
		authflow.WithOpener(opener),
		authflow.WithStatusSink(sink),
		authflow.WithMetrics(metrics.NewMetrics(reg)),
		authflow.WithPollInterval(cfg.PollInterval),
		authflow.WithHTTPClient(&http.Client{Timeout: cfg.HTTPTimeout}),
		authflow.WithLogger(logger),
	)
	if err != nil {
		return fmt.Errorf("creating authorization client: %w", err)
	}

	switch cmd {
	case "refresh":
		return runRefresh(ctx, client, stdout)
	case "verify":
		return runVerify(ctx, cfg, client, stdout)
	case "serve":
		return runServe(ctx, cfg, client, reg, logger)
	default:
		return runAuthorize(ctx, cfg, client, reg, logger, stdout)
	}
}

func newLogger(cfg Config, serve bool, out io.Writer) (*logrus.Logger, error) {
	logger := logrus.New()
	logger.SetOutput(out)

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("parsing LOG_LEVEL: %w", err)
	}
	logger.SetLevel(level)

	format := cfg.LogFormat
	if format == "" {
		format = "text"
		if serve {
			format = "json"
		}
	}
	switch format {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	case "text":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return nil, fmt.Errorf("unknown LOG_FORMAT %q", format)
	}
	return logger, nil
}

// runAuthorize serves the callback route, opens the consent page and waits
// for the attempt to finish.
func runAuthorize(ctx context.Context, cfg Config, client *authflow.Client, reg *prometheus.Registry, logger logrus.FieldLogger, stdout io.Writer) error {
	srv, err := newServer(cfg, client, reg, logger, true)
	if err != nil {
		return err
	}
	addr, err := listenAddr(cfg)
	if err != nil {
		return err
	}
	httpServer := srv.httpServer(addr)

	// Listen before opening the consent page so a busy port fails fast
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening for the callback: %w", err)
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.WithField("addr", addr).Debug("Callback server listening")
		serverErrors <- httpServer.Serve(ln)
	}()
	defer shutdown(httpServer, cfg, logger)

	attempt, err := client.StartAuthorization(ctx)
	if err != nil {
		return err
	}

	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case err := <-serverErrors:
			if !errors.Is(err, http.ErrServerClosed) {
				logger.WithError(err).Error("Callback server failed")
				cancel()
			}
		case <-waitCtx.Done():
		}
	}()

	tokens, err := attempt.Wait(waitCtx)
	if err != nil {
		return err
	}

	fmt.Fprintln(stdout, tokens.Summary())
	return writeTokens(cfg.TokensOut, tokens)
}

func runRefresh(ctx context.Context, client *authflow.Client, stdout io.Writer) error {
	if _, err := client.RefreshAccessToken(ctx); err != nil {
		return err
	}
	tokens, err := client.Tokens(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, tokens.Summary())
	return nil
}

func runVerify(ctx context.Context, cfg Config, client *authflow.Client, stdout io.Writer) error {
	ts := client.TokenSource(ctx)

	profile, err := gmailcheck.NewProfileChecker("me").Check(ctx, ts)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Gmail API: %s (%d messages, %d threads)\n",
		profile.EmailAddress, profile.MessagesTotal, profile.ThreadsTotal)

	if cfg.UserEmail == "" {
		return nil
	}
	mbox, err := gmailcheck.NewIMAPChecker(cfg.IMAPAddr).Check(ctx, cfg.UserEmail, ts)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "IMAP: %s has %d messages\n", mbox.Name, mbox.Messages)
	return nil
}

func runServe(ctx context.Context, cfg Config, client *authflow.Client, reg *prometheus.Registry, logger logrus.FieldLogger) error {
	addr, err := listenAddr(cfg)
	if err != nil {
		return err
	}
	if err := requireLoopback(addr); err != nil {
		return err
	}
	srv, err := newServer(cfg, client, reg, logger, false)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	httpServer := srv.httpServer(addr)

	serverErrors := make(chan error, 1)
	go func() {
		logger.WithFields(logrus.Fields{"addr": addr, "version": Version}).Info("Server listening")
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return fmt.Errorf("starting server: %w", err)
	case <-ctx.Done():
		logger.Info("Starting shutdown")
		shutdown(httpServer, cfg, logger)
		return nil
	}
}

func shutdown(httpServer *http.Server, cfg Config, logger logrus.FieldLogger) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.WithError(err).Warn("Error shutting down server")
		if err := httpServer.Close(); err != nil {
			logger.WithError(err).Warn("Error closing server")
		}
	}
}

// writeTokens saves the token set as JSON when path is set
func writeTokens(path string, tokens *authflow.TokenSet) error {
	if path == "" {
		return nil
	}
	data, err := tokens.MarshalJSON()
	if err != nil {
		return fmt.Errorf("encoding tokens: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("writing tokens: %w", err)
	}
	return nil
}
