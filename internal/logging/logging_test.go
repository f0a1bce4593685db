package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/runnerr0/synapse/internal/config"
)

func TestNew_Levels(t *testing.T) {
	l, err := New(config.LoggingConfig{Level: "warn", Format: "console"}, "")
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, l.Core().Enabled(zapcore.WarnLevel))

	_, err = New(config.LoggingConfig{Level: "loud"}, "")
	assert.Error(t, err)
}

func TestNew_WritesFileUnderDataDir(t *testing.T) {
	dir := t.TempDir()
	l, err := New(config.LoggingConfig{Level: "info", Format: "json", File: "logs/synapse.log"}, dir)
	require.NoError(t, err)

	l.Info("captured", zap.String("url", "https://example.com"))
	_ = l.Sync()

	data, err := os.ReadFile(filepath.Join(dir, "logs", "synapse.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"captured"`)
	assert.Contains(t, string(data), `"url":"https://example.com"`)
}

func TestOrNop(t *testing.T) {
	assert.NotNil(t, OrNop(nil))
	l := zap.NewExample()
	assert.Same(t, l, OrNop(l))
}
