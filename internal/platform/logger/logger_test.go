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

func TestLevelToggle(t *testing.T) {
	var buf bytes.Buffer
	level := Level(false)
	log := NewWithWriter(&buf, level)

	log.Debug("hidden")
	assert.Empty(t, buf.String())

	SetDebug(level, true)
	assert.True(t, log.Enabled(context.Background(), slog.LevelDebug))
	log.Debug("shown", "key", "value")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "shown", line["msg"])
	assert.Equal(t, "value", line["key"])

	SetDebug(level, false)
	assert.False(t, log.Enabled(context.Background(), slog.LevelDebug))
}

func TestNilLevelDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, nil)
	log.Debug("hidden")
	log.Info("shown")
	assert.Contains(t, buf.String(), "shown")
	assert.NotContains(t, buf.String(), "hidden")
}
