package main

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/wrale/gmail-oauth2-helper/cmd/gmail-oauth2-helper/handlers/authorize"
	"github.com/wrale/gmail-oauth2-helper/cmd/gmail-oauth2-helper/handlers/callback"
	"github.com/wrale/gmail-oauth2-helper/cmd/gmail-oauth2-helper/handlers/health"
	"github.com/wrale/gmail-oauth2-helper/cmd/gmail-oauth2-helper/handlers/token"
	"github.com/wrale/gmail-oauth2-helper/cmd/gmail-oauth2-helper/handlers/verify"
	"github.com/wrale/gmail-oauth2-helper/internal/authflow"
	"github.com/wrale/gmail-oauth2-helper/internal/gmailcheck"
	"github.com/wrale/gmail-oauth2-helper/internal/templates"
)

type server struct {
	cfg       Config
	router    *chi.Mux
	client    *authflow.Client
	templates *templates.Templates
	registry  *prometheus.Registry
	logger    logrus.FieldLogger
}

// newServer builds the router. callbackOnly limits it to the routes the
// authorize command needs while it waits for the redirect.
func newServer(cfg Config, client *authflow.Client, registry *prometheus.Registry, logger logrus.FieldLogger, callbackOnly bool) (*server, error) {
	tmpls, err := templates.LoadTemplates()
	if err != nil {
		return nil, fmt.Errorf("loading templates: %w", err)
	}

	srv := &server{
		cfg:       cfg,
		router:    chi.NewRouter(),
		client:    client,
		templates: tmpls,
		registry:  registry,
		logger:    logger,
	}

	if !callbackOnly {
		srv.router.Use(middleware.RequestID)
		srv.router.Use(middleware.RealIP)
		srv.router.Use(middleware.Logger)
	}
	srv.router.Use(middleware.Recoverer)
	srv.router.Use(middleware.Timeout(30 * time.Second))

	if err := srv.routes(callbackOnly); err != nil {
		return nil, err
	}
	return srv, nil
}

func (s *server) routes(callbackOnly bool) error {
	path, err := callbackPath(s.cfg.RedirectURI)
	if err != nil {
		return err
	}

	s.router.Method(http.MethodGet, "/health", health.New(s.client).WithVersion(Version).WithTokens(s.client))
	s.router.Method(http.MethodGet, path, callback.New(callback.Config{
		Flow:      s.client,
		Templates: s.templates,
		Logger:    s.logger,
		RetryURL:  "/",
	}))

	if callbackOnly {
		return nil
	}

	start := authorize.New(s.client, s.logger)
	s.router.Method(http.MethodGet, "/", start)
	s.router.Method(http.MethodPost, "/authorize", start)

	tokens := token.New(token.Config{Flow: s.client, Logger: s.logger})
	s.router.Get("/tokens", tokens.Download)
	s.router.Post("/refresh", tokens.Refresh)

	s.router.Method(http.MethodGet, "/verify", verify.New(verify.Config{
		Tokens:  s.client,
		Profile: gmailcheck.NewProfileChecker("me"),
		IMAP:    gmailcheck.NewIMAPChecker(s.cfg.IMAPAddr),
		User:    s.cfg.UserEmail,
		Logger:  s.logger,
	}))

	s.router.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	return nil
}

// httpServer wraps the router with the configured timeouts
func (s *server) httpServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
		ReadTimeout:       s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
		IdleTimeout:       s.cfg.IdleTimeout,
	}
}

// callbackPath returns the path component of the redirect URI
func callbackPath(redirectURI string) (string, error) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return "", fmt.Errorf("parsing redirect URI: %w", err)
	}
	if u.Path == "" || u.Path == "/" {
		return "", fmt.Errorf("redirect URI %q needs a path for the callback route", redirectURI)
	}
	return u.Path, nil
}

// requireLoopback rejects listen addresses reachable from other hosts.
// The serve routes hand out the stored refresh token without authentication.
func requireLoopback(addr string) error {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("parsing listen address: %w", err)
	}
	if host == "localhost" {
		return nil
	}
	if ip := net.ParseIP(host); ip != nil && ip.IsLoopback() {
		return nil
	}
	return fmt.Errorf("listen address %q is not a loopback address; serve exposes stored tokens without authentication", addr)
}

// listenAddr returns LISTEN_ADDR, or the host:port of the redirect URI
func listenAddr(cfg Config) (string, error) {
	if cfg.ListenAddr != "" {
		return cfg.ListenAddr, nil
	}
	u, err := url.Parse(cfg.RedirectURI)
	if err != nil {
		return "", fmt.Errorf("parsing redirect URI: %w", err)
	}
	port := u.Port()
	if port == "" {
		port = "80"
		if u.Scheme == "https" {
			port = "443"
		}
	}
	return net.JoinHostPort(u.Hostname(), port), nil
}
