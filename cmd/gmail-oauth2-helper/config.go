package main

import "time"

// Config holds configuration loaded from environment variables
type Config struct {
	ClientID     string `envconfig:"GMAIL_CLIENT_ID" required:"true"`
	ClientSecret string `envconfig:"GMAIL_CLIENT_SECRET" required:"true"`
	RedirectURI  string `envconfig:"GMAIL_REDIRECT_URI" default:"http://localhost:8080/callback"`
	UserEmail    string `envconfig:"GMAIL_USER_EMAIL"`

	StoreBackend string `envconfig:"STORE_BACKEND" default:"file"`
	StorePath    string `envconfig:"STORE_PATH"`
	RedisURL     string `envconfig:"REDIS_URL" default:"redis://localhost:6379/0"`
	RedisPrefix  string `envconfig:"REDIS_PREFIX" default:"gmail-oauth2:"`
	MySQLDSN     string `envconfig:"MYSQL_DSN"`

	PollInterval time.Duration `envconfig:"POLL_INTERVAL" default:"1s"`
	HTTPTimeout  time.Duration `envconfig:"HTTP_TIMEOUT" default:"10s"`
	OpenBrowser  bool          `envconfig:"OPEN_BROWSER" default:"true"`
	TokensOut    string        `envconfig:"TOKENS_OUT"`
	IMAPAddr     string        `envconfig:"IMAP_ADDR" default:"imap.gmail.com:993"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT"`

	// ListenAddr defaults to the host:port of the redirect URI
	ListenAddr        string        `envconfig:"LISTEN_ADDR"`
	ReadHeaderTimeout time.Duration `envconfig:"READ_HEADER_TIMEOUT" default:"5s"`
	ReadTimeout       time.Duration `envconfig:"READ_TIMEOUT" default:"10s"`
	WriteTimeout      time.Duration `envconfig:"WRITE_TIMEOUT" default:"30s"`
	IdleTimeout       time.Duration `envconfig:"IDLE_TIMEOUT" default:"120s"`
	ShutdownTimeout   time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
}
