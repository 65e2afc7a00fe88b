package objectstore

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"brooklyn/internal/config"
	"brooklyn/internal/infra/objectstore/badger"
	"brooklyn/internal/infra/objectstore/bbolt"
	"brooklyn/internal/infra/objectstore/fs"
	"brooklyn/internal/infra/objectstore/memory"
	"brooklyn/internal/infra/objectstore/postgres"
	"brooklyn/internal/infra/objectstore/redis"
	"brooklyn/internal/infra/objectstore/s3"
	"brooklyn/internal/infra/objectstore/sqlite"
)

// Open selects a Store implementation from cfg. The logger may be nil.
func Open(ctx context.Context, cfg config.Persistence, logger logrus.FieldLogger) (Store, error) {
	switch Driver(cfg.Driver) {
	case DriverFilesystem, "":
		return fs.New(cfg.FSRoot)
	case DriverMemory:
		return memory.New(), nil
	case DriverS3:
		return s3.New(ctx, s3.Config{
			Bucket:    cfg.S3.Bucket,
			Region:    cfg.S3.Region,
			Endpoint:  cfg.S3.Endpoint,
			Prefix:    cfg.S3.Prefix,
			PathStyle: cfg.S3.PathStyle,
		})
	case DriverBolt:
		return bbolt.New(cfg.BoltPath)
	case DriverBadger:
		return badger.New(badger.Config{Path: cfg.BadgerPath, SyncWrites: true, Logger: logger})
	case DriverRedis:
		return redis.New(ctx, redis.Config{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, Namespace: cfg.RedisNamespace})
	case DriverSQLite:
		return sqlite.New(cfg.SQLitePath)
	case DriverPostgres:
		return postgres.New(ctx, cfg.PostgresDSN)
	default:
		return nil, fmt.Errorf("unknown persistence driver %s", cfg.Driver)
	}
}

// NewMemory returns an in-memory store, for tests and dry runs.
func NewMemory() Store { return memory.New() }
