// Package store provides the persistent key-value storage used for the
// outstanding authorization state and the serialized token set
package store

import (
	"context"
	"errors"
)

// ErrNotFound indicates the requested key has no value
var ErrNotFound = errors.New("key not found")

// Store provides key-value persistence operations
type Store interface {
	// Get returns the value stored under key, or ErrNotFound
	Get(ctx context.Context, key string) (string, error)

	// Set stores value under key, replacing any previous value
	Set(ctx context.Context, key, value string) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// CheckHealth verifies the store is operational
	CheckHealth(ctx context.Context) error
}
