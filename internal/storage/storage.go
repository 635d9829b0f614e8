// Package storage is the durable key-value layer backing cart
// persistence. One implementation embeds badger on local disk, the
// other holds everything in memory for tests and ephemeral runs.
package storage

import (
	"context"
	"errors"
)

var (
	ErrRead  = errors.New("storage read failed")
	ErrWrite = errors.New("storage write failed")
)

type Store interface {
	// Get returns the value under key, or false when the key is absent.
	Get(ctx context.Context, key string) (string, bool, error)
	// Set writes value under key, replacing any previous value.
	Set(ctx context.Context, key, value string) error
	Ping(ctx context.Context) error
	Close() error
}
