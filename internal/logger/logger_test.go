package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewLogger(t *testing.T) {
	t.Run("无效级别回退到 info", func(t *testing.T) {
		log, err := NewLogger(Config{Level: "loud"})
		require.NoError(t, err)
		assert.False(t, log.Core().Enabled(zapcore.DebugLevel))
	})

	t.Run("写入轮转文件", func(t *testing.T) {
		dir := t.TempDir()
		file := filepath.Join(dir, "logs", "app.log")

		log, err := NewLogger(Config{Level: "info", LogFile: file, Service: "sitecms"})
		require.NoError(t, err)
		log.Info("hello")
		_ = log.Sync()

		data, err := os.ReadFile(file)
		require.NoError(t, err)
		assert.Contains(t, string(data), `"service":"sitecms"`)
		assert.Contains(t, string(data), `"message":"hello"`)
	})
}
