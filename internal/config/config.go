// Package config loads capboard settings with viper.
//
// Precedence, highest first: bound flags, CAPBOARD_* environment variables,
// the config file (~/.capboard/config.yaml by default), built-in defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/capboard/internal/api"
	"github.com/felixgeelhaar/capboard/internal/errors"
	"github.com/felixgeelhaar/capboard/internal/log"
)

// EnvPrefix is prepended to every environment override.
const EnvPrefix = "CAPBOARD"

// DirName is the per-user directory holding config, session and logs.
const DirName = ".capboard"

// Config holds the application configuration.
type Config struct {
	API       APIConfig       `mapstructure:"api" yaml:"api" json:"api"`
	Session   SessionConfig   `mapstructure:"session" yaml:"session" json:"session"`
	Feedback  FeedbackConfig  `mapstructure:"feedback" yaml:"feedback" json:"feedback"`
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging" json:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry" json:"telemetry"`
	Metrics   MetricsConfig   `mapstructure:"metrics" yaml:"metrics" json:"metrics"`
}

// APIConfig points the client at a registry.
type APIConfig struct {
	URL            string        `mapstructure:"url" yaml:"url" json:"url"`
	Profile        string        `mapstructure:"profile" yaml:"profile" json:"profile"`
	Timeout        time.Duration `mapstructure:"timeout" yaml:"timeout" json:"timeout"`
	RetryMax       int           `mapstructure:"retry_max" yaml:"retry_max" json:"retry_max"`
	StrictContract bool          `mapstructure:"strict_contract" yaml:"strict_contract" json:"strict_contract"`
}

// SessionConfig locates the persisted session.
type SessionConfig struct {
	Path string `mapstructure:"path" yaml:"path" json:"path"`
}

// FeedbackConfig controls the notification area.
type FeedbackConfig struct {
	DismissAfter time.Duration `mapstructure:"dismiss_after" yaml:"dismiss_after" json:"dismiss_after"`
}

// LoggingConfig controls the structured logger. An empty File logs to stderr.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level" json:"level"`
	Format string `mapstructure:"format" yaml:"format" json:"format"`
	File   string `mapstructure:"file" yaml:"file" json:"file"`
}

// TelemetryConfig controls OpenTelemetry tracing.
type TelemetryConfig struct {
	Enabled    bool    `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Endpoint   string  `mapstructure:"endpoint" yaml:"endpoint" json:"endpoint"`
	SampleRate float64 `mapstructure:"sample_rate" yaml:"sample_rate" json:"sample_rate"`
}

// MetricsConfig controls the Prometheus endpoint of long-running commands.
type MetricsConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr" json:"addr"`
}

// Options tell Load where to look.
type Options struct {
	// File overrides the default config file location.
	File string
	// Home overrides the user's home directory.
	Home string
	// Flags maps config keys to command-line flags. A flag only takes
	// precedence when it was set explicitly.
	Flags map[string]*pflag.Flag
}

// Dir returns ~/.capboard for the given home, or the user's home when blank.
func Dir(home string) (string, error) {
	if home == "" {
		h, err := os.UserHomeDir()
		if err != nil {
			return "", errors.Wrap(errors.ErrCodeConfigRead, "failed to locate home directory", err)
		}
		home = h
	}
	return filepath.Join(home, DirName), nil
}

// DefaultPath returns the default config file location.
func DefaultPath(home string) (string, error) {
	dir, err := Dir(home)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Default returns the built-in configuration rooted at home.
func Default(home string) Config {
	dir, err := Dir(home)
	if err != nil {
		dir = DirName
	}
	def := api.DefaultConfig()
	return Config{
		API: APIConfig{
			URL:      def.BaseURL,
			Profile:  string(def.Profile),
			Timeout:  def.Timeout,
			RetryMax: def.RetryMax,
		},
		Session:  SessionConfig{Path: filepath.Join(dir, "session.json")},
		Feedback: FeedbackConfig{DismissAfter: 5 * time.Second},
		Logging:  LoggingConfig{Level: "warn", Format: "text"},
		Telemetry: TelemetryConfig{
			SampleRate: 1.0,
		},
	}
}

// Loaded is a resolved configuration plus where it came from.
type Loaded struct {
	Config
	// File is the config file that was read, or the path that would be read
	// when none exists yet.
	File string
	// FromFile reports whether File existed.
	FromFile bool
}

// Load resolves the configuration.
func Load(opts Options) (*Loaded, error) {
	v := viper.New()
	setDefaults(v, Default(opts.Home))

	file := opts.File
	if file == "" {
		p, err := DefaultPath(opts.Home)
		if err != nil {
			return nil, err
		}
		file = p
	}
	file = expandHome(file, opts.Home)
	v.SetConfigFile(file)
	v.SetConfigType("yaml")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, flag := range opts.Flags {
		if flag == nil || !flag.Changed {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return nil, errors.Wrap(errors.ErrCodeConfigRead, fmt.Sprintf("failed to bind flag for %s", key), err)
		}
	}

	fromFile := true
	if err := v.ReadInConfig(); err != nil {
		if !os.IsNotExist(err) && !isNotFound(err) {
			return nil, errors.Wrap(errors.ErrCodeConfigRead, fmt.Sprintf("failed to read config file: %s", file), err).
				WithSuggestion("Check the YAML syntax or regenerate it with 'capboard config init --force'")
		}
		fromFile = false
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(errors.ErrCodeConfigInvalid, "failed to decode configuration", err)
	}
	cfg.Session.Path = expandHome(cfg.Session.Path, opts.Home)
	cfg.Logging.File = expandHome(cfg.Logging.File, opts.Home)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Loaded{Config: cfg, File: file, FromFile: fromFile}, nil
}

// Validate rejects values no component can work with.
func (c Config) Validate() error {
	if _, err := api.ParseProfile(c.API.Profile); err != nil {
		return errors.NewConfigInvalidError("api.profile", c.API.Profile, "hierarchy, flat")
	}
	if strings.TrimSpace(c.API.URL) == "" {
		return errors.NewConfigInvalidError("api.url", c.API.URL, "an absolute http(s) URL")
	}
	if c.API.Timeout <= 0 {
		return errors.NewConfigInvalidError("api.timeout", c.API.Timeout, "a positive duration such as 30s")
	}
	if c.API.RetryMax < 0 {
		return errors.NewConfigInvalidError("api.retry_max", c.API.RetryMax, "zero or more")
	}
	if c.Session.Path == "" {
		return errors.NewConfigInvalidError("session.path", c.Session.Path, "a file path")
	}
	if _, ok := log.LookupLevel(c.Logging.Level); !ok {
		return errors.NewConfigInvalidError("logging.level", c.Logging.Level, "debug, info, warn, error")
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		return errors.NewConfigInvalidError("logging.format", c.Logging.Format, "text, json")
	}
	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		return errors.NewConfigInvalidError("telemetry.sample_rate", c.Telemetry.SampleRate, "a number between 0 and 1")
	}
	return nil
}

// ClientConfig converts the api section for api.NewClient.
func (c Config) ClientConfig() api.Config {
	cfg := api.DefaultConfig()
	cfg.BaseURL = c.API.URL
	cfg.Profile = api.Profile(strings.ToLower(strings.TrimSpace(c.API.Profile)))
	cfg.Timeout = c.API.Timeout
	cfg.RetryMax = c.API.RetryMax
	return cfg
}

// LogConfig converts the logging section. The caller owns opening the file.
func (c Config) LogConfig() log.Config {
	cfg := log.DefaultConfig()
	cfg.Level = log.ParseLevel(c.Logging.Level)
	cfg.Format = log.ParseFormat(strings.ToLower(c.Logging.Format))
	return cfg
}

// Keys lists every supported key in file order.
func Keys() []string {
	return []string{
		"api.url",
		"api.profile",
		"api.timeout",
		"api.retry_max",
		"api.strict_contract",
		"session.path",
		"feedback.dismiss_after",
		"logging.level",
		"logging.format",
		"logging.file",
		"telemetry.enabled",
		"telemetry.endpoint",
		"telemetry.sample_rate",
		"metrics.addr",
	}
}

// Marshal renders c as YAML. Durations are written in their string form so
// the file reads the same way it is documented.
func Marshal(c Config) ([]byte, error) {
	doc := map[string]any{
		"api": map[string]any{
			"url":             c.API.URL,
			"profile":         c.API.Profile,
			"timeout":         c.API.Timeout.String(),
			"retry_max":       c.API.RetryMax,
			"strict_contract": c.API.StrictContract,
		},
		"session":  map[string]any{"path": c.Session.Path},
		"feedback": map[string]any{"dismiss_after": c.Feedback.DismissAfter.String()},
		"logging": map[string]any{
			"level":  c.Logging.Level,
			"format": c.Logging.Format,
			"file":   c.Logging.File,
		},
		"telemetry": map[string]any{
			"enabled":     c.Telemetry.Enabled,
			"endpoint":    c.Telemetry.Endpoint,
			"sample_rate": c.Telemetry.SampleRate,
		},
		"metrics": map[string]any{"addr": c.Metrics.Addr},
	}
	return yaml.Marshal(doc)
}

// Write stores c at path. An existing file is only replaced when force is set.
func Write(path string, c Config, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return errors.New(errors.ErrCodeFileWriteFailed, fmt.Sprintf("config file already exists: %s", path)).
				WithSuggestion("Use --force to overwrite it")
		}
	}

	data, err := Marshal(c)
	if err != nil {
		return errors.Wrap(errors.ErrCodeFileWriteFailed, "failed to encode configuration", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return errors.NewFileWriteError(path, err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return errors.NewFileWriteError(path, err)
	}
	return nil
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("api.url", d.API.URL)
	v.SetDefault("api.profile", d.API.Profile)
	v.SetDefault("api.timeout", d.API.Timeout)
	v.SetDefault("api.retry_max", d.API.RetryMax)
	v.SetDefault("api.strict_contract", d.API.StrictContract)
	v.SetDefault("session.path", d.Session.Path)
	v.SetDefault("feedback.dismiss_after", d.Feedback.DismissAfter)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.file", d.Logging.File)
	v.SetDefault("telemetry.enabled", d.Telemetry.Enabled)
	v.SetDefault("telemetry.endpoint", d.Telemetry.Endpoint)
	v.SetDefault("telemetry.sample_rate", d.Telemetry.SampleRate)
	v.SetDefault("metrics.addr", d.Metrics.Addr)
}

func isNotFound(err error) bool {
	_, ok := err.(viper.ConfigFileNotFoundError)
	return ok
}

func expandHome(path, home string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	if home == "" {
		h, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		home = h
	}
	return filepath.Join(home, path[1:])
}
