// Package objectstore re-exports the object store abstraction and opens the
// configured backend. Callers outside this package depend on Store, never on
// the infra backends directly.
package objectstore

import "brooklyn/internal/objectstore/core"

type (
	// Driver identifies an object store backend.
	Driver = core.Driver
	// Info describes a stored object.
	Info = core.Info
	// Store is the interface for object store backends.
	Store = core.Store
)

const (
	DriverMemory     = core.DriverMemory
	DriverFilesystem = core.DriverFilesystem
	DriverS3         = core.DriverS3
	DriverBolt       = core.DriverBolt
	DriverBadger     = core.DriverBadger
	DriverRedis      = core.DriverRedis
	DriverSQLite     = core.DriverSQLite
	DriverPostgres   = core.DriverPostgres
)

// ErrNotFound is returned for a missing key.
var ErrNotFound = core.ErrNotFound
