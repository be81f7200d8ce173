package utils

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLogLevel(t *testing.T) {
	cases := map[string]LogLevel{
		"trace":    TRACE,
		"DEBUG":    DEBUG,
		" info ":   INFO,
		"warning":  WARN,
		"error":    ERROR,
		"critical": CRITICAL,
		"bogus":    INFO,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseLogLevel(in), "input %q", in)
	}
}

func TestLoggerFiltersBelowMinLevel(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(&buf, WARN)

	log.Debug("hidden %d", 1)
	log.Info("hidden %d", 2)
	log.Warn("shown %d", 3)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "[WARN] shown 3")
	assert.False(t, log.Enabled(INFO))
	assert.True(t, log.Enabled(ERROR))
}

func TestLoggerWithPrependsFields(t *testing.T) {
	var buf bytes.Buffer
	root := NewLogger(&buf, TRACE)
	child := root.With("session", "abc").With("component", "gate")

	child.Info("sent throttle=%.2f", 0.5)
	root.Info("plain")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "[INFO] session=abc component=gate sent throttle=0.50")
	assert.Contains(t, lines[1], "[INFO] plain")
}

func TestLoggerSetMinLevelAffectsChildren(t *testing.T) {
	var buf bytes.Buffer
	root := NewLogger(&buf, INFO)
	child := root.With("component", "runner")

	child.Debug("before")
	root.SetMinLevel(DEBUG)
	child.Debug("after")

	assert.NotContains(t, buf.String(), "before")
	assert.Contains(t, buf.String(), "after")
}

func TestFileLoggerAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "track.log")

	log, err := NewFileLogger(path, INFO, false)
	require.NoError(t, err)
	log.Info("first")
	require.NoError(t, log.Close())

	log, err = NewFileLogger(path, INFO, false)
	require.NoError(t, err)
	log.Error("second")
	require.NoError(t, log.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "[INFO] first")
	assert.Contains(t, string(data), "[ERROR] second")
}
