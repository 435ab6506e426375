package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaskToken(t *testing.T) {
	assert.Equal(t, "eyJhbGci...", MaskToken("eyJhbGciOiJSUzI1NiJ9"))
	assert.Equal(t, "***", MaskToken("short"))
	assert.Equal(t, "***", MaskToken(""))
}

func TestNew_JSONUsesTimestampKey(t *testing.T) {
	var buf bytes.Buffer
	l := New(Options{Level: "debug", Format: FormatJSON, Output: &buf})

	l.LogAttrs(context.Background(), slog.LevelDebug, "relayed", slog.String("upstream", "orders"))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Contains(t, entry, "timestamp")
	assert.NotContains(t, entry, "time")
	assert.Equal(t, "relayed", entry["msg"])
	assert.Equal(t, "orders", entry["upstream"])
}

func TestNew_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l := New(Options{Level: "warn", Format: FormatText, Output: &buf})

	l.InfoContext(context.Background(), "dropped")
	assert.Empty(t, buf.String())

	l.WarnContext(context.Background(), "kept")
	assert.Contains(t, buf.String(), "kept")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warning"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel("bogus"))
}
