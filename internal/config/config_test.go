package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envFrom(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "fs", cfg.Persistence.Driver)
	assert.Equal(t, "json", cfg.Persistence.Codec)
	assert.Equal(t, time.Second, cfg.Rebind.Period)
	assert.Equal(t, 3, cfg.Rebind.MaxAttempts)
	assert.True(t, cfg.Rebind.PersistPolicies)
}

func TestLoadFileKeepsUnsetDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "brooklyn.yaml")
	doc := []byte("persistence:\n  driver: bbolt\n  bbolt_path: /tmp/state.bolt\nrebind:\n  period: 250ms\n")
	require.NoError(t, os.WriteFile(path, doc, 0o600))

	cfg, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, "bbolt", cfg.Persistence.Driver)
	assert.Equal(t, "/tmp/state.bolt", cfg.Persistence.BoltPath)
	assert.Equal(t, 250*time.Millisecond, cfg.Rebind.Period)
	assert.Equal(t, "json", cfg.Persistence.Codec)
	assert.Equal(t, 3, cfg.Rebind.MaxAttempts)
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(envFrom(map[string]string{
		"BROOKLYN_PERSISTENCE_DRIVER":        "s3",
		"BROOKLYN_PERSISTENCE_S3_BUCKET":     "state",
		"BROOKLYN_PERSISTENCE_S3_PATH_STYLE": "true",
		"BROOKLYN_PERSISTENCE_CODEC":         "msgpack",
		"BROOKLYN_PERSISTENCE_PERIOD":        "5s",
		"BROOKLYN_PERSISTENCE_MAX_ATTEMPTS":  "7",
		"BROOKLYN_PERSIST_POLICIES":          "false",
		"BROOKLYN_REBIND_STRICT":             "1",
	}))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "s3", cfg.Persistence.Driver)
	assert.True(t, cfg.Persistence.S3.PathStyle)
	assert.Equal(t, "msgpack", cfg.Persistence.Codec)
	assert.Equal(t, 5*time.Second, cfg.Rebind.Period)
	assert.Equal(t, 7, cfg.Rebind.MaxAttempts)
	assert.False(t, cfg.Rebind.PersistPolicies)
	assert.True(t, cfg.Rebind.PersistEnrichers)
	assert.True(t, cfg.Rebind.PersistFeeds)
	assert.True(t, cfg.Rebind.Strict)
}

func TestApplyEnvRejectsMalformedValues(t *testing.T) {
	for name, value := range map[string]string{
		"BROOKLYN_PERSISTENCE_PERIOD":       "soon",
		"BROOKLYN_PERSISTENCE_MAX_ATTEMPTS": "many",
		"BROOKLYN_PERSIST_ENRICHERS":        "perhaps",
	} {
		cfg := Default()
		assert.Error(t, cfg.ApplyEnv(envFrom(map[string]string{name: value})), name)
	}
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"driver":   func(c *Config) { c.Persistence.Driver = "tape" },
		"codec":    func(c *Config) { c.Persistence.Codec = "xml" },
		"bucket":   func(c *Config) { c.Persistence.Driver = "s3" },
		"period":   func(c *Config) { c.Rebind.Period = 0 },
		"attempts": func(c *Config) { c.Rebind.MaxAttempts = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := Log{Level: "debug", Format: "json"}.NewLogger(&buf)
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())
	logger.WithField("action", "checkpoint").Info("done")
	assert.Contains(t, buf.String(), `"action":"checkpoint"`)

	_, err = Log{Level: "loud"}.NewLogger(&buf)
	assert.Error(t, err)
	_, err = Log{Level: "info", Format: "xml"}.NewLogger(&buf)
	assert.Error(t, err)
}
