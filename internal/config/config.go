// Package config loads the runtime configuration file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/BlackBeltTechnology/judo-runtime-core-sub001/internal/store"
)

// Config is the content of a judo.yaml file.
type Config struct {
	// Model is the directory holding the CUE model files.
	Model string `yaml:"model"`

	Database Database `yaml:"database"`

	// Stateful enables mutating operations. A nil value means true.
	Stateful *bool `yaml:"stateful,omitempty"`

	// Environment overrides process environment variables in the
	// ENVIRONMENT scope.
	Environment map[string]string `yaml:"environment,omitempty"`

	// System holds the SYSTEM scope properties.
	System map[string]string `yaml:"system,omitempty"`

	Log Log `yaml:"log"`
}

// Database selects the SQLite file and driver.
type Database struct {
	Path   string `yaml:"path"`
	Driver string `yaml:"driver,omitempty"`
}

// Log configures the slog handler.
type Log struct {
	Level  string `yaml:"level,omitempty"`  // debug | info | warn | error
	Format string `yaml:"format,omitempty"` // text | json
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Database: Database{Path: "judo.db", Driver: store.DriverCGO},
		Log:      Log{Level: "warn", Format: "text"},
	}
}

// Load reads path. Relative model and database paths are resolved against
// the directory of the file. Unknown keys are rejected.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	base := filepath.Dir(path)
	if cfg.Model != "" && !filepath.IsAbs(cfg.Model) {
		cfg.Model = filepath.Join(base, cfg.Model)
	}
	if p := cfg.Database.Path; p != "" && p != ":memory:" && !filepath.IsAbs(p) {
		cfg.Database.Path = filepath.Join(base, p)
	}
	return cfg, nil
}

// Parse decodes a configuration over the defaults and validates it.
func Parse(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks enumerated values.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "", store.DriverCGO, store.DriverPure:
	default:
		return fmt.Errorf("database.driver %q: must be %s or %s", c.Database.Driver, store.DriverCGO, store.DriverPure)
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("log.format %q: must be text or json", c.Log.Format)
	}
	return nil
}

// IsStateful reports the stateful flag, defaulting to true.
func (c *Config) IsStateful() bool {
	return c.Stateful == nil || *c.Stateful
}

// SlogLevel maps the level name. Empty means warn.
func (l Log) SlogLevel() (slog.Level, error) {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "", "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("log.level %q: must be debug, info, warn or error", l.Level)
}

// NewLogger builds a logger writing to w.
func (l Log) NewLogger(w io.Writer) *slog.Logger {
	level, err := l.SlogLevel()
	if err != nil {
		level = slog.LevelWarn
	}
	opts := &slog.HandlerOptions{Level: level}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
