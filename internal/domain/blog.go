package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// BlogStatus 博客发布状态
type BlogStatus string

const (
	BlogStatusDraft     BlogStatus = "draft"
	BlogStatusPublished BlogStatus = "published"
	BlogStatusScheduled BlogStatus = "scheduled"
)

// BlogStatuses 合法的博客状态
var BlogStatuses = []string{
	string(BlogStatusDraft),
	string(BlogStatusPublished),
	string(BlogStatusScheduled),
}

// Blog 博客文章
type Blog struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Title          string             `bson:"title" json:"title"`
	Slug           string             `bson:"slug" json:"slug"`
	Content        string             `bson:"content" json:"content"`
	Excerpt        string             `bson:"excerpt" json:"excerpt"`
	Author         string             `bson:"author" json:"author"`
	Category       string             `bson:"category" json:"category"`
	Tags           []string           `bson:"tags" json:"tags"`
	Status         BlogStatus         `bson:"status" json:"status"`
	Image          string             `bson:"image,omitempty" json:"image,omitempty"`
	Thumbnail      string             `bson:"thumbnail,omitempty" json:"thumbnail,omitempty"`
	PublishDate    *time.Time         `bson:"publishDate,omitempty" json:"publishDate,omitempty"`
	SEOTitle       string             `bson:"seoTitle" json:"seoTitle"`
	SEODescription string             `bson:"seoDescription" json:"seoDescription"`
	Featured       bool               `bson:"featured" json:"featured"`
	Views          int64              `bson:"views" json:"views"`
	Likes          int64              `bson:"likes" json:"likes"`
	CreatedAt      time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt      time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// ApplyDefaults 补齐派生字段
//
// 首次进入 published 且未设置发布日期时写入 now；SEO 字段缺省时取标题与摘要。
func (b *Blog) ApplyDefaults(now time.Time) {
	if b.Status == "" {
		b.Status = BlogStatusDraft
	}
	if b.Status == BlogStatusPublished && b.PublishDate == nil {
		t := now
		b.PublishDate = &t
	}
	if b.SEOTitle == "" {
		b.SEOTitle = b.Title
	}
	if b.SEODescription == "" {
		b.SEODescription = b.Excerpt
	}
	if b.Tags == nil {
		b.Tags = []string{}
	}
}

// Validate 校验必填字段与枚举
func (b *Blog) Validate() error {
	v := &ValidationError{}
	v.Require("title", b.Title)
	v.Require("content", b.Content)
	v.Require("author", b.Author)
	v.Require("category", b.Category)
	v.OneOf("status", string(b.Status), BlogStatuses)
	if b.Status == BlogStatusScheduled && b.PublishDate == nil {
		v.Add("publishDate", "is required for scheduled posts")
	}
	return v.Err()
}

// BlogStats 博客统计概览
type BlogStats struct {
	Total      int64            `json:"total"`
	ByStatus   map[string]int64 `json:"byStatus"`
	TotalViews int64            `json:"totalViews"`
	TotalLikes int64            `json:"totalLikes"`
	Featured   int64            `json:"featured"`
}
