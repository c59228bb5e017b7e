package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cadseer/naming/match"
	"github.com/cadseer/naming/resolve"
)

const sample = `
logging:
  level: debug
  format: json
plans:
  split:
    - direct
    - passthrough:base
    - modified:base
    - derived
history:
  fragment_depth: 4
  compact_keep: 2
resolve:
  warn: ""
store:
  backend: badger
  path: /var/lib/naming
  timeout: 2s
telemetry:
  enabled: true
`

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)

	assert.Equal(t, slog.LevelDebug, cfg.Logging.GetLevel())
	assert.Equal(t, "json", cfg.Logging.GetFormat())
	assert.Equal(t, 4, cfg.History.GetFragmentDepth())
	assert.Equal(t, 2, cfg.History.GetCompactKeep())
	assert.Equal(t, BackendBadger, cfg.Store.GetBackend())
	assert.Equal(t, 2*time.Second, cfg.Store.GetTimeout())
	assert.Equal(t, "naming", cfg.Store.GetNamespace())
	assert.True(t, cfg.Telemetry.Enabled)

	plan, err := cfg.Plan("split")
	require.NoError(t, err)
	assert.Equal(t, []string{"direct", "passthrough:base", "modified:base", "derived"}, plan.Strings())

	none, err := cfg.Plan("box")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestPolicy(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)
	p, err := cfg.Resolve.Policy()
	require.NoError(t, err)

	// The empty warn rule silences partial drops; fatal keeps its default.
	v, err := p.Evaluate(resolve.Counts{Requested: 2, Resolved: 1, Dropped: 1})
	require.NoError(t, err)
	assert.Equal(t, resolve.OK, v)
	v, err = p.Evaluate(resolve.Counts{Requested: 2, Dropped: 2})
	require.NoError(t, err)
	assert.Equal(t, resolve.Fatal, v)
}

func TestDefaults(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, slog.LevelInfo, cfg.Logging.GetLevel())
	assert.Equal(t, "text", cfg.Logging.GetFormat())
	assert.Equal(t, BackendMemory, cfg.Store.GetBackend())
	assert.Equal(t, "redis://localhost:6379", cfg.Store.GetRedisURL())
	assert.Equal(t, 5*time.Second, cfg.Store.GetTimeout())
	assert.Equal(t, 0, cfg.History.GetCompactKeep())
	assert.Equal(t, "github.com/cadseer/naming", cfg.Telemetry.GetScope())

	p, err := cfg.Resolve.Policy()
	require.NoError(t, err)
	assert.Equal(t, resolve.DefaultPolicy().String(), p.String())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"bad plan", "plans:\n  box: [nonsense]\n", "plan box"},
		{"plan missing input", "plans:\n  box: [modified]\n", "requires an input"},
		{"bad policy", "resolve:\n  fatal: \"dropped +\"\n", "resolve policy"},
		{"unknown backend", "store:\n  backend: s3\n", "unknown backend"},
		{"badger without path", "store:\n  backend: badger\n", "needs a path"},
		{"etcd without endpoints", "store:\n  backend: etcd\n", "needs endpoints"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv(EnvStoreBackend, "redis")
	t.Setenv(EnvRedisURL, "redis://cache:6380/2")
	t.Setenv(EnvLogLevel, "warn")

	cfg, err := Parse([]byte("{}"))
	require.NoError(t, err)
	assert.Equal(t, BackendRedis, cfg.Store.GetBackend())
	assert.Equal(t, "redis://cache:6380/2", cfg.Store.GetRedisURL())
	assert.Equal(t, slog.LevelWarn, cfg.Logging.GetLevel())
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(sample), 0o600))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, BackendBadger, cfg.Store.GetBackend())

	nested := filepath.Join(dir, "parts", "bracket")
	require.NoError(t, os.MkdirAll(nested, 0o750))
	cfg, err = LoadFromDir(nested)
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.History.GetFragmentDepth())

	_, err = Load(t.TempDir())
	assert.ErrorIs(t, err, ErrNoConfig)
}

func TestLoggerFormat(t *testing.T) {
	var buf bytes.Buffer
	cfg := &Config{Logging: &LoggingConfig{Format: "json"}}
	cfg.Logger(&buf).Info("hello", "k", 1)
	assert.Contains(t, buf.String(), `"msg":"hello"`)

	buf.Reset()
	Default().Logger(&buf).Debug("hidden")
	assert.Empty(t, buf.String())
}

func TestPlanRoundTrip(t *testing.T) {
	plan := match.DefaultPlan("base")
	cfg := &Config{Plans: map[string][]string{"split": plan.Strings()}}
	back, err := cfg.Plan("split")
	require.NoError(t, err)
	assert.Equal(t, plan, back)
}
