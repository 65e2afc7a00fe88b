// Package core defines the object store abstraction that memento persistence
// writes through. Keys are slash separated, `<subpath>/<id>`.
package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Driver identifies a concrete object store backend implementation.
type Driver string

const (
	DriverMemory     Driver = "memory"   // in-memory (tests)
	DriverFilesystem Driver = "fs"       // local directory (default)
	DriverS3         Driver = "s3"       // S3 / MinIO compatible
	DriverBolt       Driver = "bbolt"    // single file bbolt database
	DriverBadger     Driver = "badger"   // embedded badger LSM
	DriverRedis      Driver = "redis"    // shared redis, for HA pairs
	DriverSQLite     Driver = "sqlite"   // embedded sqlite file
	DriverPostgres   Driver = "postgres" // PostgreSQL server
)

// Info describes a stored object. LastModified is zero for backends that do
// not track it.
type Info struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size_bytes"`
	LastModified time.Time `json:"last_modified"`
}

// Store is a flat key/value object store. Put replaces any existing object
// atomically: a concurrent or interrupted writer never leaves a partial value
// visible to Get.
type Store interface {
	Put(ctx context.Context, key string, data []byte) (Info, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Head(ctx context.Context, key string) (Info, error)
	Delete(ctx context.Context, key string) (bool, error)
	// List returns the objects whose key starts with prefix, sorted by key.
	List(ctx context.Context, prefix string) ([]Info, error)
	Driver() Driver
	Close() error
}

// ErrNotFound is returned by Get and Head for a missing key.
var ErrNotFound = errors.New("objectstore: object not found")

// NotFound wraps ErrNotFound with the key.
func NotFound(key string) error {
	return fmt.Errorf("%w: %s", ErrNotFound, key)
}

// ValidateKey rejects empty, absolute and traversing keys.
func ValidateKey(key string) error {
	switch {
	case strings.TrimSpace(key) == "":
		return fmt.Errorf("empty key")
	case strings.HasPrefix(key, "/"):
		return fmt.Errorf("invalid absolute key %q", key)
	case strings.Contains(key, ".."):
		return fmt.Errorf("invalid key %q contains '..'", key)
	}
	return nil
}
