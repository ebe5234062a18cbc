// Package storage provides the durable key/value stores that back
// notification lists, preferences and tooltip state.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned when a key has never been written
	ErrNotFound = errors.New("key not found")
	// ErrClosed is returned by operations on a closed store
	ErrClosed = errors.New("store closed")
)

// Store is a string-keyed byte store. Values are opaque to the store;
// callers encode them as JSON.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Health(ctx context.Context) error
	Close() error
}

// Backend names accepted by Open
const (
	BackendBadger = "badger"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Config selects and configures a backend
type Config struct {
	Backend   string
	Path      string
	KeyPrefix string
	Redis     RedisConfig
}

// Open builds the store named by cfg.Backend
func Open(cfg Config) (Store, error) {
	switch strings.ToLower(cfg.Backend) {
	case BackendBadger, "":
		return NewBadger(BadgerConfig{Path: cfg.Path, SyncWrites: true})
	case BackendRedis:
		rc := cfg.Redis
		if rc.KeyPrefix == "" {
			rc.KeyPrefix = cfg.KeyPrefix
		}
		return NewRedis(rc)
	case BackendMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// Key namespaces a base key for a user. An empty user id returns the base
// key unchanged.
func Key(base, userID string) string {
	if userID == "" {
		return base
	}
	return base + ":" + userID
}
