// Package upload 管理博客图片与期刊 PDF 的磁盘存储。
package upload

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"sitecms/backend/internal/config"
	"sitecms/backend/internal/domain"
	"sitecms/backend/internal/security"
)

// PublicPrefix 上传文件对外访问的路径前缀
const PublicPrefix = "/uploads"

// Purpose 上传用途，决定子目录与校验规则
type Purpose string

const (
	PurposeBlogImages  Purpose = "blog-images"
	PurposeNewsletters Purpose = "newsletters"
)

// rule 某种用途的校验规则
type rule struct {
	prefix  string
	maxSize int64
	accept  func(mediaType string) bool
}

// Incoming 待保存的上传文件
type Incoming struct {
	Filename  string    // 客户端原始文件名
	MediaType string    // 客户端声明的媒体类型
	Size      int64     // 客户端声明的大小
	Body      io.Reader // 文件内容
}

// Stored 保存成功后的文件信息
type Stored struct {
	Reference    string // 记录中保存的引用，如 /uploads/blog-images/blog-1700000000000-3f9a1c2e4b5d.jpg
	Filename     string
	OriginalName string
	MediaType    string
	Size         int64
}

// Manager 上传文件管理器
type Manager struct {
	root  string
	rules map[Purpose]rule
	log   *zap.Logger
	now   func() time.Time
}

// NewManager 创建上传管理器，目录在 EnsureDirs 中统一创建
func NewManager(cfg config.UploadConfig, log *zap.Logger) (*Manager, error) {
	if strings.TrimSpace(cfg.Dir) == "" {
		return nil, fmt.Errorf("upload directory is required")
	}
	root, err := filepath.Abs(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("invalid upload directory: %w", err)
	}

	return &Manager{
		root: root,
		rules: map[Purpose]rule{
			PurposeBlogImages: {
				prefix:  "blog",
				maxSize: cfg.BlogImageMaxSize,
				accept:  func(mt string) bool { return strings.HasPrefix(mt, "image/") },
			},
			PurposeNewsletters: {
				prefix:  "newsletter",
				maxSize: cfg.NewsletterMaxSize,
				accept:  func(mt string) bool { return mt == "application/pdf" },
			},
		},
		log: log,
		now: time.Now,
	}, nil
}

// Root 返回上传根目录，用于静态文件服务
func (m *Manager) Root() string {
	return m.root
}

// EnsureDirs 创建每种用途的子目录，启动时调用一次
func (m *Manager) EnsureDirs() error {
	for purpose := range m.rules {
		dir := filepath.Join(m.root, string(purpose))
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create upload directory %s: %w", dir, err)
		}
	}
	return nil
}

// MaxSize 返回某种用途的大小上限
func (m *Manager) MaxSize(purpose Purpose) int64 {
	return m.rules[purpose].maxSize
}

// Validate 在写盘之前校验类型与大小
func (m *Manager) Validate(purpose Purpose, in Incoming) error {
	r, ok := m.rules[purpose]
	if !ok {
		return fmt.Errorf("unknown upload purpose %q", purpose)
	}
	mediaType, _, err := mime.ParseMediaType(in.MediaType)
	if err != nil || !r.accept(strings.ToLower(mediaType)) {
		return domain.ErrInvalidFileType
	}
	if in.Size > r.maxSize {
		return domain.ErrFileTooLarge
	}
	return nil
}

// Store 校验并保存文件
//
// 参数:
//   - purpose: 上传用途
//   - in: 上传文件
//
// 返回值:
//   - *Stored: 保存后的文件信息
//   - error: ErrInvalidFileType / ErrFileTooLarge 在写盘前返回；内容超过上限时删除已写入部分并返回 ErrFileTooLarge
func (m *Manager) Store(purpose Purpose, in Incoming) (*Stored, error) {
	if err := m.Validate(purpose, in); err != nil {
		return nil, err
	}
	r := m.rules[purpose]
	mediaType, _, _ := mime.ParseMediaType(in.MediaType)

	// 读取文件头做内容筛查，被拒绝的文件不落盘
	body := bufio.NewReaderSize(in.Body, security.SniffLen)
	head, err := body.Peek(security.SniffLen)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	if reason := security.Screen(in.Filename, mediaType, head); reason != "" {
		m.log.Warn("upload rejected by content screening",
			zap.String("filename", in.Filename),
			zap.String("media_type", mediaType),
			zap.String("reason", reason),
		)
		return nil, domain.ErrInvalidFileType
	}

	dir := filepath.Join(m.root, string(purpose))

	var (
		f    *os.File
		name string
	)
	// 名称由毫秒时间戳与随机数组成，O_EXCL 兜底
	for attempt := 0; attempt < 3; attempt++ {
		name = generateFilename(r.prefix, in.Filename, m.now())
		f, err = os.OpenFile(filepath.Join(dir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if err == nil || !errors.Is(err, os.ErrExist) {
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create upload file: %w", err)
	}

	full := f.Name()
	written, copyErr := io.Copy(f, io.LimitReader(body, r.maxSize+1))
	closeErr := f.Close()
	if copyErr == nil && written > r.maxSize {
		copyErr = domain.ErrFileTooLarge
	}
	if copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
			m.log.Warn("failed to remove partial upload", zap.String("path", full), zap.Error(err))
		}
		if errors.Is(copyErr, domain.ErrFileTooLarge) {
			return nil, copyErr
		}
		return nil, fmt.Errorf("failed to write upload file: %w", copyErr)
	}

	return &Stored{
		Reference:    path.Join(PublicPrefix, string(purpose), name),
		Filename:     name,
		OriginalName: SanitizeFilename(in.Filename),
		MediaType:    mediaType,
		Size:         written,
	}, nil
}

// Replacement 文件替换过程，记录更新成功后 Commit，失败时 Rollback
type Replacement struct {
	New *Stored
	old string
	m   *Manager
}

// Replace 先保存新文件，旧文件等记录更新成功后再删除
func (m *Manager) Replace(purpose Purpose, oldRef string, in Incoming) (*Replacement, error) {
	stored, err := m.Store(purpose, in)
	if err != nil {
		return nil, err
	}
	return &Replacement{New: stored, old: oldRef, m: m}, nil
}

// Commit 删除旧文件；删除失败只记录日志，可能留下孤立文件
func (r *Replacement) Commit() {
	if r.old == "" || r.old == r.New.Reference {
		return
	}
	if err := r.m.Remove(r.old); err != nil {
		r.m.log.Warn("failed to remove replaced file, orphan left on disk",
			zap.String("reference", r.old), zap.Error(err))
	}
}

// Rollback 删除新保存的文件
func (r *Replacement) Rollback() {
	if err := r.m.Remove(r.New.Reference); err != nil {
		r.m.log.Warn("failed to roll back stored file, orphan left on disk",
			zap.String("reference", r.New.Reference), zap.Error(err))
	}
}

// Remove 删除引用指向的文件，文件不存在不视为错误
func (m *Manager) Remove(ref string) error {
	if ref == "" {
		return nil
	}
	full, err := m.Path(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove upload file: %w", err)
	}
	return nil
}

// Path 将引用解析为磁盘路径，拒绝指向上传目录之外的引用
func (m *Manager) Path(ref string) (string, error) {
	rel := strings.TrimPrefix(path.Clean("/"+ref), PublicPrefix+"/")
	purpose, name, ok := strings.Cut(rel, "/")
	if !ok || name == "" || strings.Contains(name, "/") || name == ".." || name == "." {
		return "", fmt.Errorf("invalid upload reference %q", ref)
	}
	if _, known := m.rules[Purpose(purpose)]; !known {
		return "", fmt.Errorf("invalid upload reference %q", ref)
	}
	return filepath.Join(m.root, purpose, name), nil
}

// Exists 判断引用指向的文件是否存在
func (m *Manager) Exists(ref string) bool {
	full, err := m.Path(ref)
	if err != nil {
		return false
	}
	info, err := os.Stat(full)
	return err == nil && info.Mode().IsRegular()
}
