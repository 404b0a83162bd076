package httptransport

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"sitecms/backend/internal/service"
)

// BlogHandler 博客接口
type BlogHandler struct {
	blogs *service.BlogService
	log   *zap.Logger
}

// NewBlogHandler 创建博客处理器
func NewBlogHandler(blogs *service.BlogService, log *zap.Logger) *BlogHandler {
	return &BlogHandler{blogs: blogs, log: log}
}

func (h *BlogHandler) List(c *gin.Context) {
	page, err := h.blogs.List(c.Request.Context(), c.Request.URL.Query())
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	List(c, page)
}

func (h *BlogHandler) ListPublished(c *gin.Context) {
	page, err := h.blogs.ListPublished(c.Request.Context(), c.Request.URL.Query())
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	List(c, page)
}

func (h *BlogHandler) Featured(c *gin.Context) {
	blogs, err := h.blogs.Featured(c.Request.Context(), c.Query("limit"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	Success(c, blogs)
}

func (h *BlogHandler) Categories(c *gin.Context) {
	categories, err := h.blogs.Categories(c.Request.Context())
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	Success(c, categories)
}

func (h *BlogHandler) Stats(c *gin.Context) {
	stats, err := h.blogs.Stats(c.Request.Context())
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	Success(c, stats)
}

// Get 按 ID 读取，浏览数加一
func (h *BlogHandler) Get(c *gin.Context) {
	blog, err := h.blogs.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	Success(c, blog)
}

// GetBySlug 按 slug 读取已发布的文章
func (h *BlogHandler) GetBySlug(c *gin.Context) {
	blog, err := h.blogs.GetBySlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	Success(c, blog)
}

func (h *BlogHandler) Like(c *gin.Context) {
	blog, err := h.blogs.Like(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	Success(c, gin.H{"likes": blog.Likes})
}

func (h *BlogHandler) Create(c *gin.Context) {
	in, done, err := h.bind(c)
	defer done()
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	blog, err := h.blogs.Create(c.Request.Context(), in)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	Created(c, "Blog created successfully", blog)
}

func (h *BlogHandler) Update(c *gin.Context) {
	in, done, err := h.bind(c)
	defer done()
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	blog, err := h.blogs.Update(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	SuccessWithMsg(c, "Blog updated successfully", blog)
}

func (h *BlogHandler) Delete(c *gin.Context) {
	if err := h.blogs.Delete(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, h.log, err)
		return
	}
	SuccessWithMsg(c, "Blog deleted successfully", nil)
}

// bind 从 JSON 或 multipart 表单（字段 image）读取输入
func (h *BlogHandler) bind(c *gin.Context) (service.BlogInput, func(), error) {
	var in service.BlogInput
	if !isMultipart(c) {
		return in, func() {}, bindJSON(c, &in)
	}
	if err := parseMultipart(c); err != nil {
		return in, func() {}, err
	}

	f := newForm(c)
	in = service.BlogInput{
		Title:          f.String("title"),
		Slug:           f.String("slug"),
		Content:        f.String("content"),
		Excerpt:        f.String("excerpt"),
		Author:         f.String("author"),
		Category:       f.String("category"),
		Tags:           f.List("tags"),
		Status:         f.String("status"),
		PublishDate:    f.Time("publishDate"),
		SEOTitle:       f.String("seoTitle"),
		SEODescription: f.String("seoDescription"),
		Featured:       f.Bool("featured"),
	}
	if err := f.Err(); err != nil {
		return in, func() {}, err
	}

	image, done, err := formFile(c, "image")
	if err != nil {
		return in, done, err
	}
	in.Image = image
	return in, done, nil
}
