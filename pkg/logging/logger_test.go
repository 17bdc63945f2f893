package logging

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]LogLevel{
		"debug":   LevelDebug,
		"DEBUG":   LevelDebug,
		"warning": LevelWarn,
		"Warn":    LevelWarn,
		"error":   LevelError,
		"info":    LevelInfo,
		"":        LevelInfo,
		"verbose": LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestInitJSONFile(t *testing.T) {
	require.NoError(t, Close())
	path := filepath.Join(t.TempDir(), "logs", "colstore.log")
	require.NoError(t, Init(Config{Level: LevelInfo, OutputPath: path, Format: "json"}))
	t.Cleanup(func() { Close() })

	assert.Error(t, Init(Config{}), "second Init without Close")

	Debug("dropped")
	WithSession("s1", "/data/app.db").Info("advanced", "to", 5)
	WithError(errors.New("boom")).Warn("trim failed")
	require.NoError(t, Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)

	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, "advanced", rec["msg"])
	assert.Equal(t, "s1", rec["session"])
	assert.Equal(t, "/data/app.db", rec["path"])
	assert.Equal(t, float64(5), rec["to"])

	require.NoError(t, json.Unmarshal([]byte(lines[1]), &rec))
	assert.Equal(t, "WARN", rec["level"])
	assert.Equal(t, "boom", rec["error"])
}

func TestGetLoggerInitializesDefault(t *testing.T) {
	require.NoError(t, Close())
	t.Cleanup(func() { Close() })

	assert.NotNil(t, GetLogger())
	assert.False(t, GetLogger().Enabled(t.Context(), LevelInfo.slogLevel()))
	assert.True(t, GetLogger().Enabled(t.Context(), LevelWarn.slogLevel()))
}
