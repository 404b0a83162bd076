package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/gosimple/slug"
	"go.uber.org/zap"

	"sitecms/backend/internal/domain"
	"sitecms/backend/internal/monitoring"
	"sitecms/backend/internal/query"
	"sitecms/backend/internal/storage"
	"sitecms/backend/internal/upload"
)

// 博客列表的查询白名单
var (
	blogSchema = query.Schema{
		Filters: []query.Param{
			{Name: "status", Kind: query.KindEnum, Allowed: domain.BlogStatuses},
			{Name: "category"},
			{Name: "author"},
			{Name: "tag", Field: "tags"},
			{Name: "featured", Kind: query.KindBool},
		},
		SearchFields: []string{"title", "excerpt", "content", "author", "tags"},
		SortFields:   []string{"createdAt", "updatedAt", "publishDate", "title", "views", "likes"},
		DefaultSort:  "createdAt",
		DefaultLimit: 10,
	}

	publishedBlogSchema = query.Schema{
		Filters:      blogSchema.Filters,
		SearchFields: blogSchema.SearchFields,
		SortFields:   blogSchema.SortFields,
		DefaultSort:  "publishDate",
		DefaultLimit: 10,
		Forced:       []query.Predicate{query.Eq("status", string(domain.BlogStatusPublished))},
	}
)

// 精选列表默认与最大条数
const (
	defaultFeaturedLimit = 3
	maxSlugAttempts      = 50
)

// BlogInput 创建或更新博客的输入，nil 字段表示不修改
type BlogInput struct {
	Title          *string    `json:"title"`
	Slug           *string    `json:"slug"`
	Content        *string    `json:"content"`
	Excerpt        *string    `json:"excerpt"`
	Author         *string    `json:"author"`
	Category       *string    `json:"category"`
	Tags           []string   `json:"tags"`
	Status         *string    `json:"status"`
	PublishDate    *time.Time `json:"publishDate"`
	SEOTitle       *string    `json:"seoTitle"`
	SEODescription *string    `json:"seoDescription"`
	Featured       *bool      `json:"featured"`

	// Image 随表单上传的新封面
	Image *upload.Incoming `json:"-"`
}

func (in BlogInput) apply(b *domain.Blog) {
	assign(&b.Title, in.Title)
	assign(&b.Content, in.Content)
	assign(&b.Excerpt, in.Excerpt)
	assign(&b.Author, in.Author)
	assign(&b.Category, in.Category)
	assign(&b.SEOTitle, in.SEOTitle)
	assign(&b.SEODescription, in.SEODescription)
	if in.Tags != nil {
		b.Tags = normalizeTags(in.Tags)
	}
	if in.Status != nil {
		b.Status = domain.BlogStatus(*in.Status)
	}
	if in.PublishDate != nil {
		t := in.PublishDate.UTC()
		b.PublishDate = &t
	}
	if in.Featured != nil {
		b.Featured = *in.Featured
	}
}

func assign(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

// BlogService 博客业务服务
type BlogService struct {
	blogs   storage.Collection[domain.Blog]
	uploads *upload.Manager
	metrics *monitoring.Metrics
	log     *zap.Logger
	now     clock
}

// NewBlogService 创建博客业务服务
func NewBlogService(blogs storage.Collection[domain.Blog], uploads *upload.Manager, metrics *monitoring.Metrics, log *zap.Logger) *BlogService {
	return &BlogService{
		blogs:   blogs,
		uploads: uploads,
		metrics: metrics,
		log:     log,
	}
}

// List 后台列表，可按任意状态过滤
func (s *BlogService) List(ctx context.Context, values url.Values) (*query.Page[domain.Blog], error) {
	return listBySchema(ctx, s.blogs, blogSchema, values)
}

// ListPublished 前台列表，只包含已发布文章
func (s *BlogService) ListPublished(ctx context.Context, values url.Values) (*query.Page[domain.Blog], error) {
	return listBySchema(ctx, s.blogs, publishedBlogSchema, values)
}

// Featured 返回已发布的精选文章
func (s *BlogService) Featured(ctx context.Context, rawLimit string) ([]domain.Blog, error) {
	limit, err := strconv.Atoi(rawLimit)
	if err != nil || limit < 1 {
		limit = defaultFeaturedLimit
	}
	if limit > query.MaxLimit {
		limit = query.MaxLimit
	}
	return s.blogs.Find(ctx, query.Spec{
		Filter: query.Where(
			query.Eq("status", string(domain.BlogStatusPublished)),
			query.Eq("featured", true),
		),
		Sort:  query.Sort{Field: "publishDate", Desc: true},
		Page:  1,
		Limit: limit,
	})
}

// Categories 返回已发布文章使用过的分类
func (s *BlogService) Categories(ctx context.Context) ([]string, error) {
	values, err := s.blogs.Distinct(ctx, "category", query.Where(query.Eq("status", string(domain.BlogStatusPublished))))
	if err != nil {
		return nil, err
	}
	return distinctStrings(values), nil
}

// Get 读取文章并累加阅读数
func (s *BlogService) Get(ctx context.Context, rawID string) (*domain.Blog, error) {
	id, err := domain.ParseID(rawID)
	if err != nil {
		return nil, err
	}
	blog, err := s.blogs.Update(ctx, id, query.Update{Inc: map[string]int64{"views": 1}})
	if err != nil {
		return nil, err
	}
	s.metrics.RecordBlogView()
	return blog, nil
}

// GetBySlug 按 slug 读取已发布文章并累加阅读数
func (s *BlogService) GetBySlug(ctx context.Context, blogSlug string) (*domain.Blog, error) {
	blog, err := s.blogs.FindOne(ctx, query.Where(
		query.Eq("slug", blogSlug),
		query.Eq("status", string(domain.BlogStatusPublished)),
	))
	if err != nil {
		return nil, err
	}
	updated, err := s.blogs.Update(ctx, blog.ID, query.Update{Inc: map[string]int64{"views": 1}})
	if err != nil {
		return nil, err
	}
	s.metrics.RecordBlogView()
	return updated, nil
}

// Like 点赞数加一
func (s *BlogService) Like(ctx context.Context, rawID string) (*domain.Blog, error) {
	id, err := domain.ParseID(rawID)
	if err != nil {
		return nil, err
	}
	return s.blogs.Update(ctx, id, query.Update{Inc: map[string]int64{"likes": 1}})
}

// Create 创建文章，封面先落盘再写记录，写记录失败时删除封面
func (s *BlogService) Create(ctx context.Context, in BlogInput) (*domain.Blog, error) {
	now := s.now.now()
	blog := &domain.Blog{}
	in.apply(blog)
	blog.ApplyDefaults(now)
	if err := blog.Validate(); err != nil {
		return nil, err
	}
	if in.Image != nil {
		if err := s.uploads.Validate(upload.PurposeBlogImages, *in.Image); err != nil {
			return nil, err
		}
	}

	blog.ID = domain.NewID()
	base := blog.Title
	if in.Slug != nil && *in.Slug != "" {
		base = *in.Slug
	}
	var err error
	if blog.Slug, err = s.uniqueSlug(ctx, base, blog); err != nil {
		return nil, err
	}

	var stored *upload.Stored
	if in.Image != nil {
		if stored, err = s.uploads.Store(upload.PurposeBlogImages, *in.Image); err != nil {
			return nil, err
		}
		blog.Image = stored.Reference
		blog.Thumbnail = stored.Reference
		s.metrics.RecordUpload(string(upload.PurposeBlogImages), stored.Size)
	}

	blog.CreatedAt = now
	blog.UpdatedAt = now
	if err := s.blogs.Insert(ctx, blog); err != nil {
		if stored != nil {
			s.removeFile(stored.Reference)
		}
		return nil, fmt.Errorf("create blog: %w", err)
	}

	s.log.Info("blog created", zap.String("id", blog.ID.Hex()), zap.String("slug", blog.Slug))
	return blog, nil
}

// Update 更新文章，新封面在记录更新成功后才替换旧封面
func (s *BlogService) Update(ctx context.Context, rawID string, in BlogInput) (*domain.Blog, error) {
	existing, err := getByID(ctx, s.blogs, rawID)
	if err != nil {
		return nil, err
	}

	now := s.now.now()
	blog := *existing
	in.apply(&blog)
	blog.ApplyDefaults(now)
	if err := blog.Validate(); err != nil {
		return nil, err
	}
	if in.Slug != nil && *in.Slug != "" && *in.Slug != existing.Slug {
		if blog.Slug, err = s.uniqueSlug(ctx, *in.Slug, &blog); err != nil {
			return nil, err
		}
	}

	var replacement *upload.Replacement
	if in.Image != nil {
		replacement, err = s.uploads.Replace(upload.PurposeBlogImages, existing.Image, *in.Image)
		if err != nil {
			return nil, err
		}
		blog.Image = replacement.New.Reference
		blog.Thumbnail = replacement.New.Reference
		s.metrics.RecordUpload(string(upload.PurposeBlogImages), replacement.New.Size)
	}

	blog.UpdatedAt = now
	if err := s.blogs.Replace(ctx, existing.ID, &blog); err != nil {
		if replacement != nil {
			replacement.Rollback()
		}
		return nil, fmt.Errorf("update blog: %w", err)
	}
	if replacement != nil {
		replacement.Commit()
		if existing.Thumbnail != existing.Image {
			s.removeFile(existing.Thumbnail)
		}
	}
	return &blog, nil
}

// Delete 删除文章及其封面和缩略图
func (s *BlogService) Delete(ctx context.Context, rawID string) error {
	blog, err := getByID(ctx, s.blogs, rawID)
	if err != nil {
		return err
	}
	if err := s.blogs.Delete(ctx, blog.ID); err != nil {
		return err
	}
	s.removeFile(blog.Image)
	if blog.Thumbnail != blog.Image {
		s.removeFile(blog.Thumbnail)
	}
	return nil
}

// Stats 博客统计概览
func (s *BlogService) Stats(ctx context.Context) (*domain.BlogStats, error) {
	all := query.Filter{}
	total, err := countBy(ctx, s.blogs, "blogs", all)
	if err != nil {
		return nil, err
	}
	featured, err := countBy(ctx, s.blogs, "featured blogs", query.Where(query.Eq("featured", true)))
	if err != nil {
		return nil, err
	}
	byStatus, err := s.blogs.Group(ctx, all, "status", "")
	if err != nil {
		return nil, fmt.Errorf("group blogs by status: %w", err)
	}
	views, err := s.blogs.Sum(ctx, all, "views")
	if err != nil {
		return nil, fmt.Errorf("sum blog views: %w", err)
	}
	likes, err := s.blogs.Sum(ctx, all, "likes")
	if err != nil {
		return nil, fmt.Errorf("sum blog likes: %w", err)
	}

	counts := groupCounts(byStatus)
	for _, status := range domain.BlogStatuses {
		if _, ok := counts[status]; !ok {
			counts[status] = 0
		}
	}
	return &domain.BlogStats{
		Total:      total,
		ByStatus:   counts,
		TotalViews: views,
		TotalLikes: likes,
		Featured:   featured,
	}, nil
}

// PublishScheduled 将发布时间已到的定时文章改为已发布，返回处理条数
func (s *BlogService) PublishScheduled(ctx context.Context) (int, error) {
	now := s.now.now()
	due, err := s.blogs.Find(ctx, query.Spec{
		Filter: query.Where(
			query.Eq("status", string(domain.BlogStatusScheduled)),
			query.Lte("publishDate", now),
		),
		Sort: query.Sort{Field: "publishDate"},
	})
	if err != nil {
		return 0, fmt.Errorf("find scheduled blogs: %w", err)
	}

	published := 0
	for _, blog := range due {
		_, err := s.blogs.Update(ctx, blog.ID, query.Update{Set: map[string]any{
			"status":    string(domain.BlogStatusPublished),
			"updatedAt": now,
		}})
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			return published, fmt.Errorf("publish blog %s: %w", blog.ID.Hex(), err)
		}
		published++
		s.log.Info("scheduled blog published", zap.String("id", blog.ID.Hex()), zap.String("slug", blog.Slug))
	}
	s.metrics.RecordBlogsPublished(published)
	return published, nil
}

// uniqueSlug 由 base 生成 slug，与其他文章冲突时追加序号
func (s *BlogService) uniqueSlug(ctx context.Context, base string, blog *domain.Blog) (string, error) {
	root := slug.Make(base)
	if root == "" {
		root = blog.ID.Hex()
	}
	candidate := root
	for i := 2; i <= maxSlugAttempts+1; i++ {
		other, err := s.blogs.FindOne(ctx, query.Where(query.Eq("slug", candidate)))
		if errors.Is(err, domain.ErrNotFound) {
			return candidate, nil
		}
		if err != nil {
			return "", fmt.Errorf("check slug: %w", err)
		}
		if other.ID == blog.ID {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", root, i)
	}
	return fmt.Sprintf("%s-%s", root, blog.ID.Hex()), nil
}

func (s *BlogService) removeFile(ref string) {
	if ref == "" {
		return
	}
	if err := s.uploads.Remove(ref); err != nil {
		s.log.Warn("failed to remove blog image, orphan left on disk", zap.String("reference", ref), zap.Error(err))
	}
}
