package upload

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"sitecms/backend/internal/config"
	"sitecms/backend/internal/domain"
)

// 测试辅助函数：在临时目录中创建管理器
func setupManager(t *testing.T) *Manager {
	t.Helper()
	tempDir, err := os.MkdirTemp("", "upload_test_*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(tempDir) })

	m, err := NewManager(config.UploadConfig{
		Dir:               tempDir,
		BlogImageMaxSize:  1024,
		NewsletterMaxSize: 2048,
	}, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, m.EnsureDirs())
	return m
}

func incoming(name, mediaType string, body []byte) Incoming {
	return Incoming{Filename: name, MediaType: mediaType, Size: int64(len(body)), Body: bytes.NewReader(body)}
}

func countFiles(t *testing.T, dir string) int {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	return len(entries)
}

func TestEnsureDirs(t *testing.T) {
	m := setupManager(t)
	for _, p := range []Purpose{PurposeBlogImages, PurposeNewsletters} {
		info, err := os.Stat(filepath.Join(m.Root(), string(p)))
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}

func TestStore(t *testing.T) {
	m := setupManager(t)
	blogDir := filepath.Join(m.Root(), string(PurposeBlogImages))

	t.Run("保存图片并返回引用", func(t *testing.T) {
		stored, err := m.Store(PurposeBlogImages, incoming("Cover Photo.JPG", "image/jpeg", []byte("jpeg-bytes")))
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(stored.Reference, "/uploads/blog-images/blog-"))
		assert.True(t, strings.HasSuffix(stored.Filename, ".jpg"))
		assert.Equal(t, "Cover Photo.JPG", stored.OriginalName)
		assert.Equal(t, int64(10), stored.Size)
		assert.True(t, m.Exists(stored.Reference))
	})

	t.Run("text/plain 被拒绝且不写盘", func(t *testing.T) {
		before := countFiles(t, blogDir)
		_, err := m.Store(PurposeBlogImages, incoming("notes.txt", "text/plain", []byte("hello")))
		assert.ErrorIs(t, err, domain.ErrInvalidFileType)
		assert.Equal(t, before, countFiles(t, blogDir))
	})

	t.Run("期刊只接受 PDF", func(t *testing.T) {
		_, err := m.Store(PurposeNewsletters, incoming("issue.png", "image/png", []byte("png")))
		assert.ErrorIs(t, err, domain.ErrInvalidFileType)

		stored, err := m.Store(PurposeNewsletters, incoming("issue.pdf", "application/pdf", []byte("%PDF-1.4")))
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(stored.Filename, "newsletter-"))
	})

	t.Run("声明大小超限不写盘", func(t *testing.T) {
		before := countFiles(t, blogDir)
		in := incoming("big.png", "image/png", make([]byte, 10))
		in.Size = 4096
		_, err := m.Store(PurposeBlogImages, in)
		assert.ErrorIs(t, err, domain.ErrFileTooLarge)
		assert.Equal(t, before, countFiles(t, blogDir))
	})

	t.Run("实际内容超限删除部分文件", func(t *testing.T) {
		before := countFiles(t, blogDir)
		in := incoming("liar.png", "image/png", make([]byte, 4096))
		in.Size = 10
		_, err := m.Store(PurposeBlogImages, in)
		assert.ErrorIs(t, err, domain.ErrFileTooLarge)
		assert.Equal(t, before, countFiles(t, blogDir))
	})
}

func TestStoreConcurrentNamesUnique(t *testing.T) {
	m := setupManager(t)
	const n = 50

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		names = make(map[string]bool)
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			stored, err := m.Store(PurposeBlogImages, incoming("a.png", "image/png", []byte("x")))
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			names[stored.Filename] = true
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Len(t, names, n)
}

func TestReplaceAndRemove(t *testing.T) {
	m := setupManager(t)
	old, err := m.Store(PurposeBlogImages, incoming("old.png", "image/png", []byte("old")))
	require.NoError(t, err)

	t.Run("提交后删除旧文件", func(t *testing.T) {
		r, err := m.Replace(PurposeBlogImages, old.Reference, incoming("new.png", "image/png", []byte("new")))
		require.NoError(t, err)
		assert.True(t, m.Exists(old.Reference))
		r.Commit()
		assert.False(t, m.Exists(old.Reference))
		assert.True(t, m.Exists(r.New.Reference))
	})

	t.Run("回滚删除新文件", func(t *testing.T) {
		keep, err := m.Store(PurposeBlogImages, incoming("keep.png", "image/png", []byte("keep")))
		require.NoError(t, err)
		r, err := m.Replace(PurposeBlogImages, keep.Reference, incoming("new.png", "image/png", []byte("new")))
		require.NoError(t, err)
		r.Rollback()
		assert.False(t, m.Exists(r.New.Reference))
		assert.True(t, m.Exists(keep.Reference))
	})

	t.Run("旧文件缺失时提交不报错", func(t *testing.T) {
		r, err := m.Replace(PurposeBlogImages, "/uploads/blog-images/missing.png", incoming("n.png", "image/png", []byte("n")))
		require.NoError(t, err)
		assert.NotPanics(t, r.Commit)
	})

	t.Run("删除是幂等的", func(t *testing.T) {
		stored, err := m.Store(PurposeBlogImages, incoming("x.png", "image/png", []byte("x")))
		require.NoError(t, err)
		require.NoError(t, m.Remove(stored.Reference))
		assert.NoError(t, m.Remove(stored.Reference))
		assert.NoError(t, m.Remove(""))
	})

	t.Run("拒绝越界引用", func(t *testing.T) {
		assert.Error(t, m.Remove("/uploads/../../etc/passwd"))
		_, err := m.Path("/uploads/other/file.png")
		assert.Error(t, err)
	})
}

func TestSanitizeFilename(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"普通文件名", "report.pdf", "report.pdf"},
		{"去除路径", "../../etc/passwd", "passwd"},
		{"Windows 路径", `C:\Users\me\cv.pdf`, "cv.pdf"},
		{"非法字符", `a<b>c?.pdf`, "a_b_c_.pdf"},
		{"空名称", "", "unnamed"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, SanitizeFilename(tc.input))
		})
	}

	t.Run("超长中文文件名按字符截断", func(t *testing.T) {
		got := SanitizeFilename(strings.Repeat("期", 70) + ".pdf")
		assert.True(t, utf8.ValidString(got))
		assert.LessOrEqual(t, len(got), maxOriginalNameLength)
		assert.Equal(t, strings.Repeat("期", 65)+".pdf", got)
	})

	t.Run("超长ASCII文件名保留扩展名", func(t *testing.T) {
		got := SanitizeFilename(strings.Repeat("a", 300) + ".pdf")
		assert.Len(t, got, maxOriginalNameLength)
		assert.True(t, strings.HasSuffix(got, ".pdf"))
	})
}

func TestManager_StoreScreensContent(t *testing.T) {
	m := setupManager(t)
	dir := filepath.Join(m.Root(), string(PurposeBlogImages))

	t.Run("可执行文件伪装成图片被拒绝且不落盘", func(t *testing.T) {
		_, err := m.Store(PurposeBlogImages, incoming("cover.png", "image/png", []byte{0x4D, 0x5A, 0x90, 0x00}))
		assert.ErrorIs(t, err, domain.ErrInvalidFileType)

		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("带脚本的SVG被拒绝", func(t *testing.T) {
		_, err := m.Store(PurposeBlogImages, incoming("logo.svg", "image/svg+xml", []byte(`<svg onload="x()"></svg>`)))
		assert.ErrorIs(t, err, domain.ErrInvalidFileType)
	})

	t.Run("筛查后内容完整写入", func(t *testing.T) {
		body := []byte(strings.Repeat("p", 900))
		stored, err := m.Store(PurposeBlogImages, incoming("big.png", "image/png", body))
		require.NoError(t, err)

		data, err := os.ReadFile(filepath.Join(dir, stored.Filename))
		require.NoError(t, err)
		assert.Equal(t, body, data)
	})
}
