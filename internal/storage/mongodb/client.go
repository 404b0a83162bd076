package mongodb

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"

	"sitecms/backend/internal/config"
	"sitecms/backend/internal/domain"
	"sitecms/backend/internal/storage"
)

// Store 基于 MongoDB 的集合存储
//
// 客户端在启动时创建、关闭时断开，请求之间只读共享。
type Store struct {
	client *mongo.Client
	db     *mongo.Database
	log    *zap.Logger

	// 唯一索引就绪前，唯一性只由服务层的先查后写保证
	indexesReady atomic.Bool

	blogs        *collection[domain.Blog]
	testimonials *collection[domain.Testimonial]
	contacts     *collection[domain.ContactSubmission]
	subscribers  *collection[domain.NewsletterSubscriber]
	uploads      *collection[domain.NewsletterUpload]
	campaigns    *collection[domain.NewsletterCampaign]
	accounts     *collection[domain.Account]
}

// New 创建 MongoDB 存储
//
// 连接串非法时返回错误；服务器暂时不可达只记录日志并继续（降级模式），
// 依赖存储的请求会逐个失败，直到连接恢复。
//
// 参数:
//   - ctx: 启动上下文
//   - cfg: 数据库配置
//   - log: 日志记录器
//
// 返回值:
//   - *Store: 存储实例
//   - error: 连接串解析失败时返回错误
func New(ctx context.Context, cfg config.DatabaseConfig, log *zap.Logger) (*Store, error) {
	if cfg.URI == "" {
		return nil, fmt.Errorf("database URI is required")
	}
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	opts := options.Client().
		ApplyURI(cfg.URI).
		SetConnectTimeout(timeout).
		SetServerSelectionTimeout(timeout)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create mongo client: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		log.Error("mongo not reachable, starting in degraded mode", zap.Error(err))
	} else {
		log.Info("connected to MongoDB", zap.String("database", cfg.Name))
	}

	db := client.Database(cfg.Name)
	return &Store{
		client:       client,
		db:           db,
		log:          log,
		blogs:        newCollection[domain.Blog](db.Collection(storage.CollectionBlogs)),
		testimonials: newCollection[domain.Testimonial](db.Collection(storage.CollectionTestimonials)),
		contacts:     newCollection[domain.ContactSubmission](db.Collection(storage.CollectionContacts)),
		subscribers:  newCollection[domain.NewsletterSubscriber](db.Collection(storage.CollectionSubscribers)),
		uploads:      newCollection[domain.NewsletterUpload](db.Collection(storage.CollectionUploads)),
		campaigns:    newCollection[domain.NewsletterCampaign](db.Collection(storage.CollectionCampaigns)),
		accounts:     newCollection[domain.Account](db.Collection(storage.CollectionAccounts)),
	}, nil
}

// Blogs 博客集合
func (s *Store) Blogs() storage.Collection[domain.Blog] {
	return s.blogs
}

// Testimonials 评价集合
func (s *Store) Testimonials() storage.Collection[domain.Testimonial] {
	return s.testimonials
}

// Contacts 联系表单集合
func (s *Store) Contacts() storage.Collection[domain.ContactSubmission] {
	return s.contacts
}

// Subscribers 订阅者集合
func (s *Store) Subscribers() storage.Collection[domain.NewsletterSubscriber] {
	return s.subscribers
}

// Uploads 期刊文件集合
func (s *Store) Uploads() storage.Collection[domain.NewsletterUpload] {
	return s.uploads
}

// Campaigns 群发记录集合
func (s *Store) Campaigns() storage.Collection[domain.NewsletterCampaign] {
	return s.campaigns
}

// Accounts 账号集合
func (s *Store) Accounts() storage.Collection[domain.Account] {
	return s.accounts
}

// Ping 测试数据库连接
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	return nil
}

// Close 断开数据库连接
func (s *Store) Close(ctx context.Context) error {
	if err := s.client.Disconnect(ctx); err != nil {
		s.log.Error("failed to disconnect MongoDB", zap.Error(err))
		return err
	}
	s.log.Info("MongoDB connection closed")
	return nil
}

var _ storage.Store = (*Store)(nil)
