package service

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"

	"sitecms/backend/internal/domain"
	"sitecms/backend/internal/query"
	"sitecms/backend/internal/upload"
)

var (
	newsletterUploadSchema = query.Schema{
		Filters: []query.Param{
			{Name: "category", Kind: query.KindEnum, Allowed: domain.NewsletterCategories},
			{Name: "active", Kind: query.KindBool},
		},
		SearchFields: []string{"name", "description"},
		SortFields:   []string{"date", "createdAt", "name", "downloadCount"},
		DefaultSort:  "date",
	}

	publicNewsletterUploadSchema = query.Schema{
		Filters: []query.Param{
			{Name: "category", Kind: query.KindEnum, Allowed: domain.NewsletterCategories},
		},
		SearchFields: newsletterUploadSchema.SearchFields,
		SortFields:   newsletterUploadSchema.SortFields,
		DefaultSort:  "date",
		Forced:       []query.Predicate{query.Eq("active", true)},
	}
)

// UploadInput 期刊 PDF 元数据输入，nil 字段表示不修改
type UploadInput struct {
	Name        *string    `json:"name"`
	Description *string    `json:"description"`
	Category    *string    `json:"category"`
	Date        *time.Time `json:"date"`
	Active      *bool      `json:"active"`

	// File 随表单上传的 PDF
	File *upload.Incoming `json:"-"`
}

func (in UploadInput) apply(u *domain.NewsletterUpload) {
	assign(&u.Name, in.Name)
	assign(&u.Description, in.Description)
	assign(&u.Category, in.Category)
	if in.Date != nil {
		u.Date = in.Date.UTC()
	}
	if in.Active != nil {
		u.Active = *in.Active
	}
}

func applyStored(u *domain.NewsletterUpload, stored *upload.Stored) {
	u.Filename = stored.Filename
	u.OriginalName = stored.OriginalName
	u.FilePath = stored.Reference
	u.FileSize = stored.Size
	u.MimeType = stored.MediaType
}

// CreateUpload 保存 PDF 并写入元数据，写记录失败时删除已保存的文件
func (s *NewsletterService) CreateUpload(ctx context.Context, in UploadInput) (*domain.NewsletterUpload, error) {
	if in.File == nil {
		return nil, domain.ErrMissingFile
	}
	now := s.now.now()
	u := &domain.NewsletterUpload{Active: true}
	in.apply(u)
	if err := u.Validate(); err != nil {
		return nil, err
	}

	stored, err := s.files.Store(upload.PurposeNewsletters, *in.File)
	if err != nil {
		return nil, err
	}
	applyStored(u, stored)
	s.metrics.RecordUpload(string(upload.PurposeNewsletters), stored.Size)

	u.ID = domain.NewID()
	u.CreatedAt = now
	u.UpdatedAt = now
	if err := s.uploads.Insert(ctx, u); err != nil {
		if rmErr := s.files.Remove(stored.Reference); rmErr != nil {
			s.log.Warn("failed to remove newsletter file, orphan left on disk",
				zap.String("reference", stored.Reference), zap.Error(rmErr))
		}
		return nil, fmt.Errorf("create newsletter upload: %w", err)
	}
	s.log.Info("newsletter uploaded", zap.String("id", u.ID.Hex()), zap.Int64("size", u.FileSize))
	return u, nil
}

// ListUploads 后台期刊列表
func (s *NewsletterService) ListUploads(ctx context.Context, values url.Values) (*query.Page[domain.NewsletterUpload], error) {
	return listBySchema(ctx, s.uploads, newsletterUploadSchema, values)
}

// ListPublicUploads 前台期刊列表，只包含启用的期刊
func (s *NewsletterService) ListPublicUploads(ctx context.Context, values url.Values) (*query.Page[domain.NewsletterUpload], error) {
	return listBySchema(ctx, s.uploads, publicNewsletterUploadSchema, values)
}

// UploadCategories 返回已使用的期刊分类
func (s *NewsletterService) UploadCategories(ctx context.Context) ([]string, error) {
	values, err := s.uploads.Distinct(ctx, "category", query.Filter{})
	if err != nil {
		return nil, err
	}
	return distinctStrings(values), nil
}

// GetUpload 读取期刊元数据
func (s *NewsletterService) GetUpload(ctx context.Context, rawID string) (*domain.NewsletterUpload, error) {
	return getByID(ctx, s.uploads, rawID)
}

// UpdateUpload 更新元数据，附带新 PDF 时在记录更新成功后删除旧文件
func (s *NewsletterService) UpdateUpload(ctx context.Context, rawID string, in UploadInput) (*domain.NewsletterUpload, error) {
	existing, err := getByID(ctx, s.uploads, rawID)
	if err != nil {
		return nil, err
	}
	u := *existing
	in.apply(&u)
	if err := u.Validate(); err != nil {
		return nil, err
	}

	var replacement *upload.Replacement
	if in.File != nil {
		replacement, err = s.files.Replace(upload.PurposeNewsletters, existing.FilePath, *in.File)
		if err != nil {
			return nil, err
		}
		applyStored(&u, replacement.New)
		s.metrics.RecordUpload(string(upload.PurposeNewsletters), replacement.New.Size)
	}

	u.UpdatedAt = s.now.now()
	if err := s.uploads.Replace(ctx, existing.ID, &u); err != nil {
		if replacement != nil {
			replacement.Rollback()
		}
		return nil, fmt.Errorf("update newsletter upload: %w", err)
	}
	if replacement != nil {
		replacement.Commit()
	}
	return &u, nil
}

// DeleteUpload 删除记录及其 PDF 文件
func (s *NewsletterService) DeleteUpload(ctx context.Context, rawID string) error {
	u, err := getByID(ctx, s.uploads, rawID)
	if err != nil {
		return err
	}
	if err := s.uploads.Delete(ctx, u.ID); err != nil {
		return err
	}
	if err := s.files.Remove(u.FilePath); err != nil {
		s.log.Warn("failed to remove newsletter file, orphan left on disk",
			zap.String("reference", u.FilePath), zap.Error(err))
	}
	return nil
}

// ToggleUploadActive 切换期刊启用状态
func (s *NewsletterService) ToggleUploadActive(ctx context.Context, rawID string) (*domain.NewsletterUpload, error) {
	u, err := getByID(ctx, s.uploads, rawID)
	if err != nil {
		return nil, err
	}
	return setByID(ctx, s.uploads, rawID, map[string]any{"active": !u.Active}, s.now.now())
}

// Download 定位可下载的期刊文件
//
// 返回值:
//   - *domain.NewsletterUpload: 期刊元数据
//   - string: 磁盘路径
//   - error: 记录不存在或未启用返回 ErrNotFound，文件缺失返回 ErrFileNotFound
func (s *NewsletterService) Download(ctx context.Context, rawID string) (*domain.NewsletterUpload, string, error) {
	u, err := getByID(ctx, s.uploads, rawID)
	if err != nil {
		return nil, "", err
	}
	if !u.Active {
		return nil, "", domain.ErrNotFound
	}
	if !s.files.Exists(u.FilePath) {
		return nil, "", domain.ErrFileNotFound
	}
	full, err := s.files.Path(u.FilePath)
	if err != nil {
		return nil, "", domain.ErrFileNotFound
	}
	return u, full, nil
}

// RecordDownload 文件成功发送后累加下载次数
func (s *NewsletterService) RecordDownload(ctx context.Context, u *domain.NewsletterUpload) error {
	if _, err := s.uploads.Update(ctx, u.ID, query.Update{Inc: map[string]int64{"downloadCount": 1}}); err != nil {
		return fmt.Errorf("record download: %w", err)
	}
	s.metrics.RecordDownload()
	return nil
}
