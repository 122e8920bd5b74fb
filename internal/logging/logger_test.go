// Package logging tests for structured JSON logging.
package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeEntries(t *testing.T, buf *bytes.Buffer) []LogEntry {
	t.Helper()
	var entries []LogEntry
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry LogEntry
		require.NoError(t, json.Unmarshal([]byte(line), &entry), "line %q", line)
		entries = append(entries, entry)
	}
	return entries
}

// TestLogLevel_shouldLog verifies log level filtering.
func TestLogLevel_shouldLog(t *testing.T) {
	tests := []struct {
		name     string
		minLevel LogLevel
		logLevel LogLevel
		expected bool
	}{
		{"debug logs at debug", LevelDebug, LevelDebug, true},
		{"debug logs at info", LevelInfo, LevelDebug, false},
		{"info logs at info", LevelInfo, LevelInfo, true},
		{"info logs at warn", LevelWarn, LevelInfo, false},
		{"warn logs at error", LevelError, LevelWarn, false},
		{"error logs at error", LevelError, LevelError, true},
		{"error logs at debug", LevelDebug, LevelError, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := &Logger{minLevel: tt.minLevel}
			assert.Equal(t, tt.expected, logger.shouldLog(tt.logLevel))
		})
	}
}

func TestLogger_writesJSONWithContext(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, LevelDebug)

	logger.Debug("enqueued", map[string]any{"collection": "products"})
	logger.Error("drain halted", errors.New("permission denied"), map[string]any{"entry_id": 4})
	logger.WarnWithCode("migration skipped", "MIGRATION_FAILED", errors.New("duplicate column"))

	entries := decodeEntries(t, &buf)
	require.Len(t, entries, 3)

	assert.Equal(t, "DEBUG", entries[0].Level)
	assert.Equal(t, "products", entries[0].Context["collection"])

	assert.Equal(t, "ERROR", entries[1].Level)
	assert.Equal(t, "permission denied", entries[1].Error)
	assert.EqualValues(t, 4, entries[1].Context["entry_id"])

	assert.Equal(t, "WARN", entries[2].Level)
	assert.Equal(t, "MIGRATION_FAILED", entries[2].Code)
}

func TestLogger_SetLevelFiltersAtRuntime(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, LevelInfo)

	logger.Debug("hidden")
	logger.SetLevel(LevelDebug)
	logger.Debug("shown")

	entries := decodeEntries(t, &buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "shown", entries[0].Message)
}

func TestMergeContext(t *testing.T) {
	assert.Nil(t, mergeContext())
	merged := mergeContext(map[string]any{"a": 1}, map[string]any{"b": 2, "a": 3})
	assert.Equal(t, map[string]any{"a": 3, "b": 2}, merged)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("debug"))
	assert.Equal(t, LevelWarn, ParseLevel(" warning "))
	assert.Equal(t, LevelError, ParseLevel("ERROR"))
	assert.Equal(t, LevelInfo, ParseLevel("verbose"))
}

func TestConfigure_rotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "emaamul.log")
	closer := Configure(LevelInfo, &FileOptions{Path: path, MaxSizeMB: 1, MaxBackups: 1})

	Info("written to file", map[string]any{"k": "v"})
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"written to file"`)

	Configure(LevelInfo, nil)
}
