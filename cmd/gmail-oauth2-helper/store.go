package main

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/wrale/gmail-oauth2-helper/internal/store"
)

// openStore builds the configured key-value backend. The returned closer
// releases its connections.
func openStore(ctx context.Context, cfg Config, logger logrus.FieldLogger) (store.Store, func() error, error) {
	noop := func() error { return nil }

	switch cfg.StoreBackend {
	case "memory":
		return store.NewMemoryStore(), noop, nil

	case "file":
		path := cfg.StorePath
		if path == "" {
			var err error
			if path, err = store.DefaultFilePath(); err != nil {
				return nil, nil, fmt.Errorf("%w; set STORE_PATH", err)
			}
		}
		fs := store.NewFileStore(path)
		logger.WithField("path", fs.Path()).Debug("Using file store")
		return fs, noop, nil

	case "redis":
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("parsing Redis URL: %w", err)
		}
		client := redis.NewClient(opts)

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("connecting to Redis: %w", err)
		}
		return store.NewRedisStore(client, cfg.RedisPrefix), client.Close, nil

	case "mysql":
		if cfg.MySQLDSN == "" {
			return nil, nil, fmt.Errorf("MYSQL_DSN is required for the mysql store")
		}
		s, err := store.OpenMySQL(cfg.MySQLDSN)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}
