package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/capboard/internal/api"
	"github.com/felixgeelhaar/capboard/internal/errors"
	"github.com/felixgeelhaar/capboard/internal/log"
)

func TestLoadDefaults(t *testing.T) {
	home := t.TempDir()

	got, err := Load(Options{Home: home})
	require.NoError(t, err)

	assert.False(t, got.FromFile)
	assert.Equal(t, filepath.Join(home, ".capboard", "config.yaml"), got.File)
	assert.Equal(t, "http://localhost:8000", got.API.URL)
	assert.Equal(t, "hierarchy", got.API.Profile)
	assert.Equal(t, 30*time.Second, got.API.Timeout)
	assert.Equal(t, 2, got.API.RetryMax)
	assert.False(t, got.API.StrictContract)
	assert.Equal(t, filepath.Join(home, ".capboard", "session.json"), got.Session.Path)
	assert.Equal(t, 5*time.Second, got.Feedback.DismissAfter)
	assert.Equal(t, "warn", got.Logging.Level)
	assert.Equal(t, 1.0, got.Telemetry.SampleRate)
	assert.Empty(t, got.Metrics.Addr)
}

func TestLoadFile(t *testing.T) {
	home := t.TempDir()
	path := filepath.Join(home, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
api:
  url: https://registry.example.com
  profile: flat
  timeout: 5s
session:
  path: ~/sessions/me.json
feedback:
  dismiss_after: 0s
`), 0o600))

	got, err := Load(Options{Home: home, File: path})
	require.NoError(t, err)

	assert.True(t, got.FromFile)
	assert.Equal(t, "https://registry.example.com", got.API.URL)
	assert.Equal(t, "flat", got.API.Profile)
	assert.Equal(t, 5*time.Second, got.API.Timeout)
	assert.Equal(t, 2, got.API.RetryMax, "unset keys keep defaults")
	assert.Equal(t, filepath.Join(home, "sessions", "me.json"), got.Session.Path)
	assert.Equal(t, time.Duration(0), got.Feedback.DismissAfter)
}

func TestPrecedence(t *testing.T) {
	home := t.TempDir()
	path := filepath.Join(home, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("api:\n  url: http://file:8000\n  profile: flat\nlogging:\n  level: info\n"), 0o600))

	t.Setenv("CAPBOARD_API_URL", "http://env:8000")
	t.Setenv("CAPBOARD_LOGGING_LEVEL", "error")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("api-url", "", "")
	flags.String("log-level", "", "")
	require.NoError(t, flags.Parse([]string{"--api-url", "http://flag:8000"}))

	got, err := Load(Options{
		Home: home,
		File: path,
		Flags: map[string]*pflag.Flag{
			"api.url":       flags.Lookup("api-url"),
			"logging.level": flags.Lookup("log-level"),
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "http://flag:8000", got.API.URL, "flag beats env and file")
	assert.Equal(t, "error", got.Logging.Level, "unset flag leaves env in charge")
	assert.Equal(t, "flat", got.API.Profile, "file beats defaults")
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		env  string
		val  string
	}{
		{"profile", "CAPBOARD_API_PROFILE", "soap"},
		{"level", "CAPBOARD_LOGGING_LEVEL", "loud"},
		{"format", "CAPBOARD_LOGGING_FORMAT", "xml"},
		{"sample rate", "CAPBOARD_TELEMETRY_SAMPLE_RATE", "2"},
		{"retries", "CAPBOARD_API_RETRY_MAX", "-1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.env, tt.val)
			_, err := Load(Options{Home: t.TempDir()})
			assert.Equal(t, errors.ErrCodeConfigInvalid, errors.CodeOf(err))
		})
	}
}

func TestLoadCorruptFile(t *testing.T) {
	home := t.TempDir()
	path := filepath.Join(home, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("api: [unterminated"), 0o600))

	_, err := Load(Options{Home: home, File: path})
	assert.Equal(t, errors.ErrCodeConfigRead, errors.CodeOf(err))
}

func TestWriteAndReload(t *testing.T) {
	home := t.TempDir()
	path := filepath.Join(home, ".capboard", "config.yaml")

	cfg := Default(home)
	cfg.API.Profile = "flat"
	cfg.Metrics.Addr = ":9090"
	require.NoError(t, Write(path, cfg, false))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	err = Write(path, cfg, false)
	assert.Equal(t, errors.ErrCodeFileWriteFailed, errors.CodeOf(err), "refuses to overwrite")
	require.NoError(t, Write(path, cfg, true))

	got, err := Load(Options{Home: home})
	require.NoError(t, err)
	assert.True(t, got.FromFile)
	assert.Equal(t, cfg, got.Config)
}

func TestConversions(t *testing.T) {
	cfg := Default(t.TempDir())
	cfg.API.Profile = " FLAT "
	cfg.API.RetryMax = 0
	cfg.Logging.Level = "DEBUG"
	cfg.Logging.Format = "json"

	cc := cfg.ClientConfig()
	assert.Equal(t, api.ProfileFlat, cc.Profile)
	assert.Equal(t, 0, cc.RetryMax)
	assert.Equal(t, cfg.API.URL, cc.BaseURL)

	lc := cfg.LogConfig()
	assert.Equal(t, log.LevelDebug, lc.Level)
	assert.Equal(t, log.FormatJSON, lc.Format)
}

func TestKeysMatchMarshal(t *testing.T) {
	data, err := Marshal(Default(t.TempDir()))
	require.NoError(t, err)
	for _, key := range Keys() {
		leaf := key[strings.LastIndex(key, ".")+1:]
		assert.Contains(t, string(data), leaf+":", key)
	}
}
