// Package config loads plotbridge settings from plotbridge.yaml, a workspace
// .env file and PLOTBRIDGE_* environment variables, in increasing priority.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/aretw0/plotbridge/pkg/connection"
	"github.com/aretw0/plotbridge/pkg/descriptor"
	"github.com/aretw0/plotbridge/pkg/domain"
	"github.com/aretw0/plotbridge/pkg/export"
	"github.com/aretw0/plotbridge/pkg/persistence/middleware"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	// FileName is the workspace configuration file.
	FileName = "plotbridge.yaml"
	// EnvFile is the workspace dotenv file.
	EnvFile = ".env"
	// EnvPrefix prefixes every override variable.
	EnvPrefix = "PLOTBRIDGE_"
)

// Store backends.
const (
	StoreMemory = "memory"
	StoreFile   = "file"
	StoreRedis  = "redis"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config holds every setting of a plotbridge process.
type Config struct {
	Listen       string        `yaml:"listen"`
	Port         int           `yaml:"port"`
	WorkspaceDir string        `yaml:"workspace_dir"`
	TempDir      string        `yaml:"temp_dir"`
	LegacyName   string        `yaml:"legacy_name"`
	ExternalHost string        `yaml:"external_host"`
	LogLevel     string        `yaml:"log_level"`
	Store        StoreConfig   `yaml:"store"`
	Export       ExportConfig  `yaml:"export"`
	Timings      TimingsConfig `yaml:"timings"`
}

// StoreConfig selects where annotations are persisted.
// EncryptionKey (base64, 32 bytes) seals annotations at rest; FallbackKeys
// still open data sealed before a rotation.
type StoreConfig struct {
	Backend       string      `yaml:"backend"`
	Path          string      `yaml:"path"`
	EncryptionKey string      `yaml:"encryption_key"`
	FallbackKeys  []string    `yaml:"fallback_keys"`
	Redis         RedisConfig `yaml:"redis"`
}

type RedisConfig struct {
	Address  string        `yaml:"address"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Prefix   string        `yaml:"prefix"`
	TTL      time.Duration `yaml:"ttl"`
}

type ExportConfig struct {
	Dir    string `yaml:"dir"`
	Format string `yaml:"format"`
}

// TimingsConfig mirrors the descriptor poller and Connection Manager timers.
type TimingsConfig struct {
	PollInterval   time.Duration `yaml:"poll_interval"`
	FirstPoll      time.Duration `yaml:"first_poll"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
	SettleDelay    time.Duration `yaml:"settle_delay"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	t := connection.DefaultTimings()
	return Config{
		Listen:       "127.0.0.1:8760",
		WorkspaceDir: ".",
		LegacyName:   descriptor.DefaultLegacyName,
		LogLevel:     "info",
		Store:        StoreConfig{Backend: StoreFile},
		Export:       ExportConfig{Format: string(export.PNG)},
		Timings: TimingsConfig{
			PollInterval:   descriptor.DefaultPollInterval,
			FirstPoll:      descriptor.DefaultFirstPoll,
			ConnectTimeout: t.ConnectTimeout,
			ReconnectDelay: t.ReconnectDelay,
			SettleDelay:    t.SettleDelay,
		},
	}
}

// Load builds the configuration of workspace. When file is empty the
// workspace plotbridge.yaml is used if present; an explicit file must exist.
func Load(workspace, file string) (Config, error) {
	return load(workspace, file, os.LookupEnv)
}

func load(workspace, file string, lookupEnv func(string) (string, bool)) (Config, error) {
	if workspace == "" {
		workspace = "."
	}
	cfg := Default()
	cfg.WorkspaceDir = workspace

	explicit := file != ""
	if !explicit {
		file = filepath.Join(workspace, FileName)
	}
	data, err := os.ReadFile(file)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", file, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return cfg, fmt.Errorf("read config: %w", err)
	}

	dotenv, err := godotenv.Read(filepath.Join(workspace, EnvFile))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return cfg, fmt.Errorf("read %s: %w", EnvFile, err)
	}
	lookup := func(key string) (string, bool) {
		if v, ok := lookupEnv(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}
	if err := cfg.applyEnv(lookup); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(dst *string) func(string) error {
		return func(v string) error { *dst = v; return nil }
	}
	num := func(dst *int) func(string) error {
		return func(v string) error {
			n, err := strconv.Atoi(v)
			*dst = n
			return err
		}
	}
	dur := func(dst *time.Duration) func(string) error {
		return func(v string) error {
			d, err := time.ParseDuration(v)
			*dst = d
			return err
		}
	}

	setters := []struct {
		key string
		set func(string) error
	}{
		{"LISTEN", str(&c.Listen)},
		{"PORT", num(&c.Port)},
		{"WORKSPACE", str(&c.WorkspaceDir)},
		{"TEMP_DIR", str(&c.TempDir)},
		{"LEGACY_NAME", str(&c.LegacyName)},
		{"EXTERNAL_HOST", str(&c.ExternalHost)},
		{"LOG_LEVEL", str(&c.LogLevel)},
		{"STORE", str(&c.Store.Backend)},
		{"STORE_PATH", str(&c.Store.Path)},
		{"STORE_KEY", str(&c.Store.EncryptionKey)},
		{"REDIS_ADDR", str(&c.Store.Redis.Address)},
		{"REDIS_PASSWORD", str(&c.Store.Redis.Password)},
		{"REDIS_DB", num(&c.Store.Redis.DB)},
		{"REDIS_PREFIX", str(&c.Store.Redis.Prefix)},
		{"REDIS_TTL", dur(&c.Store.Redis.TTL)},
		{"EXPORT_DIR", str(&c.Export.Dir)},
		{"EXPORT_FORMAT", str(&c.Export.Format)},
		{"POLL_INTERVAL", dur(&c.Timings.PollInterval)},
		{"FIRST_POLL", dur(&c.Timings.FirstPoll)},
		{"CONNECT_TIMEOUT", dur(&c.Timings.ConnectTimeout)},
		{"RECONNECT_DELAY", dur(&c.Timings.ReconnectDelay)},
		{"SETTLE_DELAY", dur(&c.Timings.SettleDelay)},
	}
	for _, s := range setters {
		v, ok := lookup(EnvPrefix + s.key)
		if !ok {
			continue
		}
		if err := s.set(strings.TrimSpace(v)); err != nil {
			return fmt.Errorf("%w: %s%s: %v", ErrInvalid, EnvPrefix, s.key, err)
		}
	}
	return nil
}

// Validate rejects settings the bridge cannot run with.
func (c Config) Validate() error {
	var errs []error
	for name, d := range map[string]time.Duration{
		"poll_interval":   c.Timings.PollInterval,
		"first_poll":      c.Timings.FirstPoll,
		"connect_timeout": c.Timings.ConnectTimeout,
		"reconnect_delay": c.Timings.ReconnectDelay,
		"settle_delay":    c.Timings.SettleDelay,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("timings.%s must be positive, got %s", name, d))
		}
	}
	switch c.Store.Backend {
	case StoreMemory, StoreFile:
	case StoreRedis:
		if c.Store.Redis.Address == "" {
			errs = append(errs, errors.New("store.redis.address is required for the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store backend %q", c.Store.Backend))
	}
	if c.Store.EncryptionKey != "" {
		if _, err := middleware.ParseKey(c.Store.EncryptionKey); err != nil {
			errs = append(errs, fmt.Errorf("store.encryption_key: %v", err))
		}
	}
	for i, k := range c.Store.FallbackKeys {
		if _, err := middleware.ParseKey(k); err != nil {
			errs = append(errs, fmt.Errorf("store.fallback_keys[%d]: %v", i, err))
		}
	}
	if _, err := export.ParseFormat(c.Export.Format); err != nil {
		errs = append(errs, fmt.Errorf("export.format: %v", err))
	}
	if c.Port != 0 && !domain.ValidPort(c.Port) {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

// Layout returns where session descriptors live.
func (c Config) Layout() descriptor.Layout {
	return descriptor.Layout{TempDir: c.TempDir, WorkspaceDir: c.WorkspaceDir, LegacyName: c.LegacyName}
}

// ConnectionTimings returns the Connection Manager timers.
func (c Config) ConnectionTimings() connection.Timings {
	return connection.Timings{
		ConnectTimeout: c.Timings.ConnectTimeout,
		ReconnectDelay: c.Timings.ReconnectDelay,
		SettleDelay:    c.Timings.SettleDelay,
	}
}

// Level returns the parsed log level.
func (c Config) Level() slog.Level {
	l, _ := parseLevel(c.LogLevel)
	return l
}

// StateDir is the per-workspace directory holding session state.
func (c Config) StateDir() string {
	return filepath.Join(c.WorkspaceDir, ".plotbridge")
}

// Encryption returns the store encryption keys, or nil when annotations are
// stored in clear text. Keys are checked by Validate.
func (c Config) Encryption() *middleware.EncryptionConfig {
	if c.Store.EncryptionKey == "" {
		return nil
	}
	active, _ := middleware.ParseKey(c.Store.EncryptionKey)
	enc := &middleware.EncryptionConfig{ActiveKey: active}
	for _, k := range c.Store.FallbackKeys {
		if key, err := middleware.ParseKey(k); err == nil {
			enc.FallbackKeys = append(enc.FallbackKeys, key)
		}
	}
	return enc
}

// StorePath returns where the file backend writes annotations.
func (c Config) StorePath() string {
	if c.Store.Path != "" {
		return c.Store.Path
	}
	return filepath.Join(c.StateDir(), "annotations")
}

func parseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log_level: %v", err)
	}
	return l, nil
}
