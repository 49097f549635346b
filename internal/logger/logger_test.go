package logger

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crowdpulse/crowdfeed/internal/model"
)

func TestConsoleOutput(t *testing.T) {
	var buf bytes.Buffer
	log, err := Setup(Config{Level: slog.LevelInfo, Output: &buf})
	require.NoError(t, err)

	feedLog := log.With("feed")
	feedLog.Info("Subscribed", "topic", "/topic/area/42")
	feedLog.Debug("hidden")

	out := buf.String()
	assert.Contains(t, out, " - INFO - [feed] Subscribed topic=/topic/area/42")
	assert.NotContains(t, out, "hidden")
	assert.NotContains(t, out, "\033[")
}

func TestGroupsPrefixKeys(t *testing.T) {
	var buf bytes.Buffer
	log, err := Setup(Config{Level: slog.LevelInfo, Output: &buf})
	require.NoError(t, err)

	log.WithGroup("stats").Info("tick", "delivered", 3)
	assert.Contains(t, buf.String(), "stats.delivered=3")
}

func TestEventNotifies(t *testing.T) {
	var buf bytes.Buffer
	log, err := Setup(Config{Level: slog.LevelInfo, Output: &buf})
	require.NoError(t, err)

	var gotMsg string
	var gotEvent model.Event
	log.SetNotifyFunc(func(_ context.Context, message string, event model.Event) {
		gotMsg, gotEvent = message, event
	})

	// Derived loggers share the callback.
	log.With("monitor").Event(context.Background(), model.EventAreaCritical, "Main Hall is full", "area", "Main Hall", "count", 500)

	assert.Equal(t, model.EventAreaCritical, gotEvent)
	assert.Equal(t, "🔴 Main Hall is full (area: Main Hall, count: 500)", gotMsg)
	assert.Contains(t, buf.String(), "event=AREA_CRITICAL")
}

func TestFileOutput(t *testing.T) {
	dir := t.TempDir()
	log, err := Setup(Config{Level: slog.LevelError, FileLevel: slog.LevelDebug, LogDir: dir, Output: &bytes.Buffer{}})
	require.NoError(t, err)

	log.With("api").Debug("request", "path", "/areas")

	data, err := os.ReadFile(filepath.Join(dir, "crowdfeed.log"))
	require.NoError(t, err)
	line := string(data)
	assert.True(t, strings.Contains(line, "component=api"), line)
	assert.Contains(t, line, "path=/areas")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("WARNING"))
	assert.Equal(t, slog.LevelError, ParseLevel(" error "))
	assert.Equal(t, slog.LevelInfo, ParseLevel("nonsense"))
}
