package memory

import (
	"context"
	"sync"
	"time"

	"sitecms/backend/internal/domain"
	"sitecms/backend/internal/storage"
)

// Store 使用内存保存全部集合，主要用于开发验证与测试。
type Store struct {
	blogs        *collection[domain.Blog]
	testimonials *collection[domain.Testimonial]
	contacts     *collection[domain.ContactSubmission]
	subscribers  *collection[domain.NewsletterSubscriber]
	uploads      *collection[domain.NewsletterUpload]
	campaigns    *collection[domain.NewsletterCampaign]
	accounts     *collection[domain.Account]
}

// NewStore 创建一个内存存储实例。
func NewStore() *Store {
	return &Store{
		blogs:        newCollection[domain.Blog](storage.UniqueFields[storage.CollectionBlogs]),
		testimonials: newCollection[domain.Testimonial](nil),
		contacts:     newCollection[domain.ContactSubmission](nil),
		subscribers:  newCollection[domain.NewsletterSubscriber](storage.UniqueFields[storage.CollectionSubscribers]),
		uploads:      newCollection[domain.NewsletterUpload](nil),
		campaigns:    newCollection[domain.NewsletterCampaign](nil),
		accounts:     newCollection[domain.Account](storage.UniqueFields[storage.CollectionAccounts]),
	}
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

// Ping 内存存储始终可用
func (s *Store) Ping(context.Context) error { return nil }

// Close 内存存储无需释放资源
func (s *Store) Close(context.Context) error { return nil }

// Blacklist 进程内的令牌黑名单，未配置 Redis 时使用
type Blacklist struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
}

// NewBlacklist 创建内存黑名单
func NewBlacklist() *Blacklist {
	return &Blacklist{entries: make(map[string]time.Time), now: time.Now}
}

// AddToBlacklist 记录令牌 ID，ttl 到期后自动失效
func (b *Blacklist) AddToBlacklist(_ context.Context, tokenID string, ttl time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	for id, exp := range b.entries {
		if !exp.After(now) {
			delete(b.entries, id)
		}
	}
	b.entries[tokenID] = now.Add(ttl)
	return nil
}

// IsBlacklisted 检查令牌 ID 是否已注销
func (b *Blacklist) IsBlacklisted(_ context.Context, tokenID string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	exp, ok := b.entries[tokenID]
	return ok && exp.After(b.now()), nil
}

var (
	_ storage.Store          = (*Store)(nil)
	_ storage.TokenBlacklist = (*Blacklist)(nil)
)
