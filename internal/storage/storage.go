package storage

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"sitecms/backend/internal/domain"
	"sitecms/backend/internal/query"
)

// 集合名称，Mongo 与内存实现共用
const (
	CollectionBlogs        = "blogs"
	CollectionTestimonials = "testimonials"
	CollectionContacts     = "contacts"
	CollectionSubscribers  = "newsletter_subscribers"
	CollectionUploads      = "newsletter_uploads"
	CollectionCampaigns    = "newsletter_campaigns"
	CollectionAccounts     = "accounts"
)

// UniqueFields 各集合的唯一字段
var UniqueFields = map[string][]string{
	CollectionSubscribers: {"email"},
	CollectionAccounts:    {"username"},
	CollectionBlogs:       {"slug"},
}

// Collection 定义单个文档集合的存取操作。
//
// 未找到记录返回 domain.ErrNotFound，违反唯一约束返回 domain.ErrDuplicate，
// 连接类故障包装为 domain.ErrStoreUnavailable。
type Collection[T any] interface {
	Insert(ctx context.Context, doc *T) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*T, error)
	FindOne(ctx context.Context, filter query.Filter) (*T, error)
	Find(ctx context.Context, spec query.Spec) ([]T, error)
	Count(ctx context.Context, filter query.Filter) (int64, error)
	Update(ctx context.Context, id primitive.ObjectID, update query.Update) (*T, error)
	Replace(ctx context.Context, id primitive.ObjectID, doc *T) error
	Delete(ctx context.Context, id primitive.ObjectID) error
	Distinct(ctx context.Context, field string, filter query.Filter) ([]any, error)
	Group(ctx context.Context, filter query.Filter, groupBy, avgField string) ([]query.GroupStat, error)
	Sum(ctx context.Context, filter query.Filter, field string) (int64, error)
}

// Store 聚合所有集合，连接在启动时建立、关闭时释放。
type Store interface {
	Blogs() Collection[domain.Blog]
	Testimonials() Collection[domain.Testimonial]
	Contacts() Collection[domain.ContactSubmission]
	Subscribers() Collection[domain.NewsletterSubscriber]
	Uploads() Collection[domain.NewsletterUpload]
	Campaigns() Collection[domain.NewsletterCampaign]
	Accounts() Collection[domain.Account]

	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// TokenBlacklist 定义已注销令牌的存取操作。
type TokenBlacklist interface {
	AddToBlacklist(ctx context.Context, tokenID string, ttl time.Duration) error
	IsBlacklisted(ctx context.Context, tokenID string) (bool, error)
}
