// Package config loads process-wide settings.
//
// Settings come from an optional file (.yaml, .yml or .toml), then from
// SIMLOOM_* environment variables, and are validated last. Command-line
// flags are applied by the CLI on top of the result. Nothing here is global:
// the loaded Config is passed down explicitly.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable.
const EnvPrefix = "SIMLOOM_"

// Config holds process-wide settings.
type Config struct {
	// Model names the synthesis model. Empty selects the offline synthesizer.
	Model string `yaml:"model" toml:"model" env:"MODEL"`

	// APIKey authenticates the synthesis collaborator. Only read from the
	// environment.
	APIKey string `yaml:"-" toml:"-" env:"API_KEY"`

	SynthesisTimeout time.Duration `yaml:"synthesis_timeout" toml:"synthesis_timeout" env:"SYNTHESIS_TIMEOUT"`
	TickTimeout      time.Duration `yaml:"tick_timeout" toml:"tick_timeout" env:"TICK_TIMEOUT"`
	MaxOps           int           `yaml:"max_ops" toml:"max_ops" env:"MAX_OPS"`
	MaxRepairs       int           `yaml:"max_repairs" toml:"max_repairs" env:"MAX_REPAIRS"`

	Database  string `yaml:"database" toml:"database" env:"DATABASE"`
	Workspace string `yaml:"workspace" toml:"workspace" env:"WORKSPACE"`
	Listen    string `yaml:"listen" toml:"listen" env:"LISTEN"`

	LogLevel  string `yaml:"log_level" toml:"log_level" env:"LOG_LEVEL"`
	LogFormat string `yaml:"log_format" toml:"log_format" env:"LOG_FORMAT"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		SynthesisTimeout: 60 * time.Second,
		TickTimeout:      2 * time.Second,
		MaxOps:           1_000_000,
		MaxRepairs:       2,
		Database:         "simloom.db",
		Workspace:        "default",
		Listen:           "127.0.0.1:8080",
		LogLevel:         "info",
		LogFormat:        "text",
	}
}

var (
	validLevels  = []string{"debug", "info", "warn", "error"}
	validFormats = []string{"text", "json"}
)

// maxRepairLimit caps the repair budget; unbounded self-repair is not allowed.
const maxRepairLimit = 10

// Load reads path (if non-empty), overlays the process environment and
// validates the result.
func Load(path string) (Config, error) {
	return load(path, nil)
}

// LoadWithEnv is Load with an explicit environment instead of os.Environ.
func LoadWithEnv(path string, environ map[string]string) (Config, error) {
	if environ == nil {
		environ = map[string]string{}
	}
	return load(path, environ)
}

func load(path string, environ map[string]string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := readFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	opts := env.Options{Prefix: EnvPrefix}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func readFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("load config %s: %w", path, err)
		}
	case ".toml":
		meta, err := toml.Decode(string(data), cfg)
		if err != nil {
			return fmt.Errorf("load config %s: %w", path, err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			return fmt.Errorf("load config %s: unknown keys %s", path, strings.Join(keys, ", "))
		}
	default:
		return fmt.Errorf("load config %s: unsupported extension %q (want .yaml, .yml or .toml)", path, ext)
	}
	return nil
}

// Validate checks ranges and enumerations.
func (c Config) Validate() error {
	var errs []error
	if c.SynthesisTimeout <= 0 {
		errs = append(errs, fmt.Errorf("synthesis_timeout must be positive, got %s", c.SynthesisTimeout))
	}
	if c.TickTimeout <= 0 {
		errs = append(errs, fmt.Errorf("tick_timeout must be positive, got %s", c.TickTimeout))
	}
	if c.MaxOps < 0 {
		errs = append(errs, fmt.Errorf("max_ops must not be negative, got %d", c.MaxOps))
	}
	if c.MaxRepairs < 0 || c.MaxRepairs > maxRepairLimit {
		errs = append(errs, fmt.Errorf("max_repairs must be within [0, %d], got %d", maxRepairLimit, c.MaxRepairs))
	}
	if strings.TrimSpace(c.Database) == "" {
		errs = append(errs, errors.New("database must be set"))
	}
	if strings.TrimSpace(c.Workspace) == "" {
		errs = append(errs, errors.New("workspace must be set"))
	}
	if !slices.Contains(validLevels, c.LogLevel) {
		errs = append(errs, fmt.Errorf("log_level %q: must be one of %v", c.LogLevel, validLevels))
	}
	if !slices.Contains(validFormats, c.LogFormat) {
		errs = append(errs, fmt.Errorf("log_format %q: must be one of %v", c.LogFormat, validFormats))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// Level returns the slog level for LogLevel.
func (c Config) Level() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Logger builds the process logger on w.
func (c Config) Logger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.Level()}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
