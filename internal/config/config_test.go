package config

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/emaamul/core/internal/errors"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestLoad_defaults(t *testing.T) {
	cfg, _, err := Load(Options{})
	require.NoError(t, err)

	assert.Equal(t, []string{"modernc", "wasm"}, cfg.Engines)
	assert.Equal(t, 5*time.Second, cfg.Sync.Interval)
	assert.Equal(t, 10, cfg.Sync.MaxAttempts)
	assert.Equal(t, RemoteNone, cfg.Remote.Kind)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_precedence(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "emaamul.yaml")
	writeFile(t, file, `
data_dir: /var/lib/emaamul
sync:
  interval: 30s
  max_attempts: 3
log:
  level: warn
`)
	envFile := filepath.Join(dir, ".env")
	writeFile(t, envFile, "EMAAMUL_AUTH_SECRET=from-dotenv\n")
	t.Cleanup(func() { os.Unsetenv("EMAAMUL_AUTH_SECRET") })
	t.Setenv("EMAAMUL_SYNC_MAX_ATTEMPTS", "0")

	cfg, _, err := Load(Options{File: file, EnvFile: envFile})
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/emaamul", cfg.DataDir)
	assert.Equal(t, 30*time.Second, cfg.Sync.Interval)
	assert.Equal(t, 0, cfg.Sync.MaxAttempts, "env beats file")
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "from-dotenv", cfg.Auth.Secret)
	assert.NotContains(t, cfg.String(), "from-dotenv")
}

func TestLoad_missingEnvFileIsIgnored(t *testing.T) {
	_, _, err := Load(Options{EnvFile: filepath.Join(t.TempDir(), "absent.env")})
	require.NoError(t, err)
}

func TestLoad_rejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown remote", map[string]string{"EMAAMUL_REMOTE_KIND": "s3"}},
		{"postgres without url", map[string]string{"EMAAMUL_REMOTE_KIND": "postgres"}},
		{"zero interval", map[string]string{"EMAAMUL_SYNC_INTERVAL": "0s"}},
		{"negative attempts", map[string]string{"EMAAMUL_SYNC_MAX_ATTEMPTS": "-1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, _, err := Load(Options{})
			assert.True(t, apperrors.Is(err, apperrors.ErrValidation), "got %v", err)
		})
	}

	_, _, err := Load(Options{File: filepath.Join(t.TempDir(), "missing.yaml")})
	assert.True(t, apperrors.Is(err, apperrors.ErrValidation))
}

func TestWatch_reloadsOnWrite(t *testing.T) {
	file := filepath.Join(t.TempDir(), "emaamul.yaml")
	writeFile(t, file, "log:\n  level: info\n")

	_, loader, err := Load(Options{File: file})
	require.NoError(t, err)

	var level atomic.Value
	loader.Watch(func(c *Config) { level.Store(c.Log.Level) })

	writeFile(t, file, "log:\n  level: debug\n")
	assert.Eventually(t, func() bool {
		v, _ := level.Load().(string)
		return v == "debug"
	}, 5*time.Second, 50*time.Millisecond)
}
