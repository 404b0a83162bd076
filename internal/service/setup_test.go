package service

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"sitecms/backend/internal/config"
	"sitecms/backend/internal/mailer"
	"sitecms/backend/internal/storage/memory"
	"sitecms/backend/internal/upload"
)

// MockMailer 模拟邮件投递
type MockMailer struct {
	mock.Mock
}

func (m *MockMailer) Send(ctx context.Context, msg mailer.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

// stepClock 每次调用前进一秒，保证创建时间严格递增
type stepClock struct {
	t time.Time
}

func newStepClock() *stepClock {
	return &stepClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *stepClock) Now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

type testEnv struct {
	store   *memory.Store
	uploads *upload.Manager
	dir     string
	clock   *stepClock
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	m, err := upload.NewManager(config.UploadConfig{
		Dir:               dir,
		BlogImageMaxSize:  1 << 20,
		NewsletterMaxSize: 1 << 20,
	}, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, m.EnsureDirs())
	return &testEnv{store: memory.NewStore(), uploads: m, dir: dir, clock: newStepClock()}
}

// fileCount 统计某个用途目录下的文件数
func (e *testEnv) fileCount(t *testing.T, purpose upload.Purpose) int {
	t.Helper()
	entries, err := os.ReadDir(filepath.Join(e.dir, string(purpose)))
	require.NoError(t, err)
	return len(entries)
}

func pngFile(name string) *upload.Incoming {
	body := []byte("\x89PNG\r\n\x1a\nfake image body")
	return &upload.Incoming{Filename: name, MediaType: "image/png", Size: int64(len(body)), Body: bytes.NewReader(body)}
}

func pdfFile(name string) *upload.Incoming {
	body := []byte("%PDF-1.4 fake newsletter")
	return &upload.Incoming{Filename: name, MediaType: "application/pdf", Size: int64(len(body)), Body: bytes.NewReader(body)}
}

func ptr[T any](v T) *T {
	return &v
}
