// Package config loads naming.yaml, the configuration of the naming
// subsystem: logging, matching plans per feature kind, history tuning, the
// resolution policy, the store backend and telemetry.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cadseer/naming/match"
	"github.com/cadseer/naming/resolve"
)

// FileName is the configuration file looked up by LoadFromDir.
const FileName = "naming.yaml"

// ErrNoConfig is returned when no configuration file is found.
var ErrNoConfig = errors.New("config: no " + FileName + " found")

// Environment variables that override file settings.
const (
	EnvStoreBackend = "NAMING_STORE_BACKEND"
	EnvRedisURL     = "NAMING_REDIS_URL"
	EnvLogLevel     = "NAMING_LOG_LEVEL"
)

// Store backends.
const (
	BackendMemory = "memory"
	BackendBadger = "badger"
	BackendRedis  = "redis"
	BackendEtcd   = "etcd"
)

// Config represents a naming.yaml file.
type Config struct {
	Logging *LoggingConfig `yaml:"logging,omitempty"`

	// Plans maps a feature kind to its matching plan, one strategy per item
	// in the form "kind[:input]" (e.g., "passthrough:base").
	Plans map[string][]string `yaml:"plans,omitempty"`

	History   *HistoryConfig   `yaml:"history,omitempty"`
	Resolve   *ResolveConfig   `yaml:"resolve,omitempty"`
	Store     *StoreConfig     `yaml:"store,omitempty"`
	Telemetry *TelemetryConfig `yaml:"telemetry,omitempty"`
}

// LoggingConfig selects the slog handler.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error. Default: info
	Level string `yaml:"level,omitempty"`

	// Format is text or json. Default: text
	Format string `yaml:"format,omitempty"`
}

// GetLevel returns the configured level or info.
func (l *LoggingConfig) GetLevel() slog.Level {
	if l == nil || l.Level == "" {
		return slog.LevelInfo
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// GetFormat returns the configured format or "text".
func (l *LoggingConfig) GetFormat() string {
	if l == nil || l.Format == "" {
		return "text"
	}
	return strings.ToLower(l.Format)
}

// HistoryConfig tunes the history graph.
type HistoryConfig struct {
	// FragmentDepth limits how many ancestor levels a reference captures.
	// Default: 0 (unlimited)
	FragmentDepth int `yaml:"fragment_depth,omitempty"`

	// CompactKeep is how many superseded epochs per feature survive
	// compaction after each update. Default: 0 (never compact)
	CompactKeep int `yaml:"compact_keep,omitempty"`
}

// GetFragmentDepth returns the fragment depth limit, 0 for none.
func (h *HistoryConfig) GetFragmentDepth() int {
	if h == nil || h.FragmentDepth < 0 {
		return 0
	}
	return h.FragmentDepth
}

// GetCompactKeep returns the compaction setting, 0 for none.
func (h *HistoryConfig) GetCompactKeep() int {
	if h == nil || h.CompactKeep < 0 {
		return 0
	}
	return h.CompactKeep
}

// ResolveConfig holds the resolution policy. Each field is a CEL expression
// over requested, resolved, dropped, ambiguous and via_ancestor. An absent
// field keeps the default rule and an empty one never fires.
type ResolveConfig struct {
	Fatal *string `yaml:"fatal,omitempty"`
	Warn  *string `yaml:"warn,omitempty"`
}

// Policy compiles the configured rules.
func (r *ResolveConfig) Policy() (*resolve.Policy, error) {
	fatal, warn := resolve.DefaultFatal, resolve.DefaultWarn
	if r != nil && r.Fatal != nil {
		fatal = *r.Fatal
	}
	if r != nil && r.Warn != nil {
		warn = *r.Warn
	}
	return resolve.NewPolicy(fatal, warn)
}

// StoreConfig selects where naming state is persisted.
type StoreConfig struct {
	// Backend is memory, badger, redis or etcd. Default: memory
	Backend string `yaml:"backend,omitempty"`

	// Path is the badger database directory.
	Path string `yaml:"path,omitempty"`

	// RedisURL is the Redis connection string. Default: redis://localhost:6379
	RedisURL string `yaml:"redis_url,omitempty"`

	EtcdEndpoints []string `yaml:"etcd_endpoints,omitempty"`

	// Namespace prefixes every key. Default: naming
	Namespace string `yaml:"namespace,omitempty"`

	// Timeout bounds connection setup.
	// Format: Go duration string (e.g., "5s")
	// Default: 5s
	Timeout string `yaml:"timeout,omitempty"`
}

// GetBackend returns the backend name or memory.
func (s *StoreConfig) GetBackend() string {
	if s == nil || s.Backend == "" {
		return BackendMemory
	}
	return strings.ToLower(s.Backend)
}

// GetRedisURL returns the Redis URL or the local default.
func (s *StoreConfig) GetRedisURL() string {
	if s == nil || s.RedisURL == "" {
		return "redis://localhost:6379"
	}
	return s.RedisURL
}

// GetNamespace returns the key namespace or "naming".
func (s *StoreConfig) GetNamespace() string {
	if s == nil || s.Namespace == "" {
		return "naming"
	}
	return s.Namespace
}

// GetTimeout parses the timeout, falling back to 5s.
func (s *StoreConfig) GetTimeout() time.Duration {
	if s == nil || s.Timeout == "" {
		return 5 * time.Second
	}
	d, err := time.ParseDuration(s.Timeout)
	if err != nil || d <= 0 {
		return 5 * time.Second
	}
	return d
}

// TelemetryConfig switches OpenTelemetry spans and metrics on.
type TelemetryConfig struct {
	Enabled bool `yaml:"enabled,omitempty"`

	// Scope is the instrumentation scope name.
	// Default: github.com/cadseer/naming
	Scope string `yaml:"scope,omitempty"`
}

// GetScope returns the instrumentation scope.
func (t *TelemetryConfig) GetScope() string {
	if t == nil || t.Scope == "" {
		return "github.com/cadseer/naming"
	}
	return t.Scope
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{}
}

// Parse decodes and validates YAML configuration.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Load reads a configuration file. If path is a directory, naming.yaml or
// naming.yml inside it is read.
func Load(path string) (*Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat path: %w", err)
	}

	configPath := path
	if info.IsDir() {
		configPath = ""
		for _, name := range []string{FileName, "naming.yml"} {
			candidate := filepath.Join(path, name)
			if _, err := os.Stat(candidate); err == nil {
				configPath = candidate
				break
			}
		}
		if configPath == "" {
			return nil, fmt.Errorf("%w in %s", ErrNoConfig, path)
		}
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", configPath, err)
	}
	return cfg, nil
}

// LoadFromDir searches for naming.yaml from dir up to the filesystem root.
func LoadFromDir(dir string) (*Config, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}
	for {
		cfg, err := Load(absDir)
		if err == nil {
			return cfg, nil
		}
		if !errors.Is(err, ErrNoConfig) {
			return nil, err
		}
		parent := filepath.Dir(absDir)
		if parent == absDir {
			return nil, fmt.Errorf("%w in %s or parent directories", ErrNoConfig, dir)
		}
		absDir = parent
	}
}

// ApplyEnv overrides file settings from the environment.
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvStoreBackend); v != "" {
		if c.Store == nil {
			c.Store = &StoreConfig{}
		}
		c.Store.Backend = v
	}
	if v := os.Getenv(EnvRedisURL); v != "" {
		if c.Store == nil {
			c.Store = &StoreConfig{}
		}
		c.Store.RedisURL = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		if c.Logging == nil {
			c.Logging = &LoggingConfig{}
		}
		c.Logging.Level = v
	}
}

// Validate checks plans, the policy and the store backend.
func (c *Config) Validate() error {
	var errs []error
	for kind := range c.Plans {
		if _, err := c.Plan(kind); err != nil {
			errs = append(errs, err)
		}
	}
	if _, err := c.Resolve.Policy(); err != nil {
		errs = append(errs, fmt.Errorf("resolve policy: %w", err))
	}
	switch b := c.Store.GetBackend(); b {
	case BackendMemory, BackendRedis:
	case BackendBadger:
		if c.Store.Path == "" {
			errs = append(errs, errors.New("store: badger backend needs a path"))
		}
	case BackendEtcd:
		if len(c.Store.EtcdEndpoints) == 0 {
			errs = append(errs, errors.New("store: etcd backend needs endpoints"))
		}
	default:
		errs = append(errs, fmt.Errorf("store: unknown backend %q", b))
	}
	return errors.Join(errs...)
}

// Plan returns the matching plan configured for kind, or nil.
func (c *Config) Plan(kind string) (match.Plan, error) {
	items, ok := c.Plans[kind]
	if !ok {
		return nil, nil
	}
	plan, err := match.ParsePlan(items)
	if err != nil {
		return nil, fmt.Errorf("plan %s: %w", kind, err)
	}
	return plan, nil
}

// Logger builds the configured logger writing to w.
func (c *Config) Logger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.Logging.GetLevel()}
	if c.Logging.GetFormat() == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
