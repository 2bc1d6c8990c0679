package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"rtstructgen/pkg/config"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		"":      zapcore.InfoLevel,
		"DEBUG": zapcore.DebugLevel,
		"warn":  zapcore.WarnLevel,
		"error": zapcore.ErrorLevel,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLevel("verbose")
	assert.Error(t, err)
}

func TestNewJSONToWriter(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{Level: "debug", Format: "json", Writer: &buf})
	require.NoError(t, err)

	logger.Debug("skipped slice file", zap.String("path", "/a/b.dcm"))
	require.NoError(t, logger.Sync())

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "skipped slice file", entry["msg"])
	assert.Equal(t, "/a/b.dcm", entry["path"])
	assert.Equal(t, "debug", entry["level"])
}

func TestLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{Level: "warn", Format: "console", Writer: &buf})
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("shown")
	_ = logger.Sync()

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown")
}

func TestFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "run.log")
	logger, err := New(Options{Level: "info", Output: "file", FilePath: path, MaxSize: 1})
	require.NoError(t, err)

	logger.Info("batch finished", zap.Int("succeeded", 2))
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), `"succeeded":2`), string(data))
}

func TestInvalidOptions(t *testing.T) {
	_, err := New(Options{Format: "xml"})
	assert.Error(t, err)

	_, err = New(Options{Output: "file"})
	assert.Error(t, err, "file output without a path")

	_, err = New(Options{Output: "syslog"})
	assert.Error(t, err)
}

func TestOrNop(t *testing.T) {
	assert.NotNil(t, OrNop(nil))
	l := zap.NewExample()
	assert.Same(t, l, OrNop(l))
}

func TestOptionsFromConfig(t *testing.T) {
	assert.Equal(t, "info", OptionsFromConfig(nil).Level)

	cfg := config.DefaultConfig()
	cfg.Log.Level = "debug"
	cfg.Log.Output = "file"
	cfg.Log.FilePath = "/var/log/rtstructgen.log"
	opts := OptionsFromConfig(cfg)
	assert.Equal(t, "debug", opts.Level)
	assert.Equal(t, "file", opts.Output)
	assert.Equal(t, "/var/log/rtstructgen.log", opts.FilePath)
	assert.Equal(t, cfg.Log.MaxBackups, opts.MaxBackups)
}
