// Package config loads runtime settings from an optional YAML file, then
// applies BROOKLYN_* environment overrides.
package config

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config is the full runtime configuration.
type Config struct {
	Persistence Persistence `yaml:"persistence"`
	Rebind      Rebind      `yaml:"rebind"`
	Log         Log         `yaml:"log"`
}

// Persistence selects and configures the object store backend and codec.
//
//	BROOKLYN_PERSISTENCE_DRIVER: memory|fs|s3|bbolt|badger|redis|sqlite|postgres (default fs)
//	BROOKLYN_PERSISTENCE_CODEC: json|msgpack (default json)
//	BROOKLYN_PERSISTENCE_FS_ROOT, BROOKLYN_PERSISTENCE_BBOLT_PATH,
//	BROOKLYN_PERSISTENCE_BADGER_PATH, BROOKLYN_PERSISTENCE_SQLITE_PATH,
//	BROOKLYN_PERSISTENCE_POSTGRES_DSN, BROOKLYN_PERSISTENCE_REDIS_ADDR,
//	BROOKLYN_PERSISTENCE_S3_{BUCKET,REGION,ENDPOINT,PATH_STYLE,PREFIX}
type Persistence struct {
	Driver         string `yaml:"driver"`
	Codec          string `yaml:"codec"`
	FSRoot         string `yaml:"fs_root"`
	BoltPath       string `yaml:"bbolt_path"`
	BadgerPath     string `yaml:"badger_path"`
	SQLitePath     string `yaml:"sqlite_path"`
	PostgresDSN    string `yaml:"postgres_dsn"`
	RedisAddr      string `yaml:"redis_addr"`
	RedisPassword  string `yaml:"redis_password"`
	RedisNamespace string `yaml:"redis_namespace"`
	S3             S3     `yaml:"s3"`
}

// S3 configures the s3 driver.
type S3 struct {
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	Prefix    string `yaml:"prefix"`
	PathStyle bool   `yaml:"path_style"`
}

// Rebind configures periodic delta persistence.
//
//	BROOKLYN_PERSISTENCE_PERIOD (default 1s)
//	BROOKLYN_PERSISTENCE_MAX_ATTEMPTS (default 3)
//	BROOKLYN_PERSIST_POLICIES, BROOKLYN_PERSIST_ENRICHERS, BROOKLYN_PERSIST_FEEDS (default true)
//	BROOKLYN_REBIND_STRICT (default false)
type Rebind struct {
	Period           time.Duration `yaml:"period"`
	MaxAttempts      int           `yaml:"max_attempts"`
	PersistPolicies  bool          `yaml:"persist_policies"`
	PersistEnrichers bool          `yaml:"persist_enrichers"`
	PersistFeeds     bool          `yaml:"persist_feeds"`
	Strict           bool          `yaml:"strict"`
}

// Log configures the process logger.
//
//	BROOKLYN_LOG_LEVEL (default info), BROOKLYN_LOG_FORMAT text|json (default text)
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in defaults.
func Default() Config {
	return Config{
		Persistence: Persistence{
			Driver: "fs",
			Codec:  "json",
			FSRoot: "./brooklyn-persisted-state",
		},
		Rebind: Rebind{
			Period:           time.Second,
			MaxAttempts:      3,
			PersistPolicies:  true,
			PersistEnrichers: true,
			PersistFeeds:     true,
		},
		Log: Log{Level: "info", Format: "text"},
	}
}

// Load reads path (if non-empty) over the defaults, then applies the process
// environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from the environment, read through lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(name); ok && v != "" {
			*dst = v
		}
	}
	boolean := func(name string, dst *bool) error {
		v, ok := lookup(name)
		if !ok || v == "" {
			return nil
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		*dst = b
		return nil
	}
	p := &c.Persistence
	str("BROOKLYN_PERSISTENCE_DRIVER", &p.Driver)
	str("BROOKLYN_PERSISTENCE_CODEC", &p.Codec)
	str("BROOKLYN_PERSISTENCE_FS_ROOT", &p.FSRoot)
	str("BROOKLYN_PERSISTENCE_BBOLT_PATH", &p.BoltPath)
	str("BROOKLYN_PERSISTENCE_BADGER_PATH", &p.BadgerPath)
	str("BROOKLYN_PERSISTENCE_SQLITE_PATH", &p.SQLitePath)
	str("BROOKLYN_PERSISTENCE_POSTGRES_DSN", &p.PostgresDSN)
	str("BROOKLYN_PERSISTENCE_REDIS_ADDR", &p.RedisAddr)
	str("BROOKLYN_PERSISTENCE_REDIS_PASSWORD", &p.RedisPassword)
	str("BROOKLYN_PERSISTENCE_REDIS_NAMESPACE", &p.RedisNamespace)
	str("BROOKLYN_PERSISTENCE_S3_BUCKET", &p.S3.Bucket)
	str("BROOKLYN_PERSISTENCE_S3_REGION", &p.S3.Region)
	str("BROOKLYN_PERSISTENCE_S3_ENDPOINT", &p.S3.Endpoint)
	str("BROOKLYN_PERSISTENCE_S3_PREFIX", &p.S3.Prefix)
	str("BROOKLYN_LOG_LEVEL", &c.Log.Level)
	str("BROOKLYN_LOG_FORMAT", &c.Log.Format)
	for name, dst := range map[string]*bool{
		"BROOKLYN_PERSISTENCE_S3_PATH_STYLE": &p.S3.PathStyle,
		"BROOKLYN_PERSIST_POLICIES":          &c.Rebind.PersistPolicies,
		"BROOKLYN_PERSIST_ENRICHERS":         &c.Rebind.PersistEnrichers,
		"BROOKLYN_PERSIST_FEEDS":             &c.Rebind.PersistFeeds,
		"BROOKLYN_REBIND_STRICT":             &c.Rebind.Strict,
	} {
		if err := boolean(name, dst); err != nil {
			return err
		}
	}
	if v, ok := lookup("BROOKLYN_PERSISTENCE_PERIOD"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("BROOKLYN_PERSISTENCE_PERIOD: %w", err)
		}
		c.Rebind.Period = d
	}
	if v, ok := lookup("BROOKLYN_PERSISTENCE_MAX_ATTEMPTS"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("BROOKLYN_PERSISTENCE_MAX_ATTEMPTS: %w", err)
		}
		c.Rebind.MaxAttempts = n
	}
	return nil
}

var drivers = map[string]bool{
	"memory": true, "fs": true, "s3": true, "bbolt": true,
	"badger": true, "redis": true, "sqlite": true, "postgres": true,
}

// Validate rejects unknown drivers and codecs and non-positive timings.
func (c Config) Validate() error {
	if !drivers[c.Persistence.Driver] {
		return fmt.Errorf("unknown persistence driver %s", c.Persistence.Driver)
	}
	switch c.Persistence.Codec {
	case "json", "msgpack":
	default:
		return fmt.Errorf("unknown persistence codec %s", c.Persistence.Codec)
	}
	if c.Persistence.Driver == "s3" && c.Persistence.S3.Bucket == "" {
		return fmt.Errorf("BROOKLYN_PERSISTENCE_S3_BUCKET required for s3 driver")
	}
	if c.Rebind.Period <= 0 {
		return fmt.Errorf("persistence period must be positive, got %s", c.Rebind.Period)
	}
	if c.Rebind.MaxAttempts < 1 {
		return fmt.Errorf("persistence max attempts must be at least 1, got %d", c.Rebind.MaxAttempts)
	}
	return nil
}

// NewLogger builds the process logger described by l.
func (l Log) NewLogger(out io.Writer) (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(l.Level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	logger := logrus.New()
	logger.SetOutput(out)
	logger.SetLevel(level)
	switch strings.ToLower(l.Format) {
	case "", "text":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, fmt.Errorf("unknown log format %s", l.Format)
	}
	return logger, nil
}
