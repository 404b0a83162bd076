package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"sitecms/backend/internal/config"
	"sitecms/backend/internal/domain"
	"sitecms/backend/internal/mailer"
	"sitecms/backend/internal/monitoring"
	"sitecms/backend/internal/query"
	"sitecms/backend/internal/storage"
	"sitecms/backend/internal/upload"
)

var subscriberSchema = query.Schema{
	Filters: []query.Param{
		{Name: "unsubscribed", Kind: query.KindBool},
		{Name: "source"},
	},
	SearchFields: []string{"email", "name"},
	SortFields:   []string{"createdAt", "subscribedAt", "email", "name"},
	DefaultSort:  "createdAt",
}

// NewsletterService 订阅者、期刊 PDF 与邮件群发业务服务
type NewsletterService struct {
	subscribers storage.Collection[domain.NewsletterSubscriber]
	uploads     storage.Collection[domain.NewsletterUpload]
	campaigns   storage.Collection[domain.NewsletterCampaign]
	files       *upload.Manager
	mailer      mailer.Mailer
	mail        config.MailConfig
	metrics     *monitoring.Metrics
	log         *zap.Logger
	now         clock
}

// NewNewsletterService 创建期刊业务服务
func NewNewsletterService(
	store storage.Store,
	files *upload.Manager,
	m mailer.Mailer,
	mail config.MailConfig,
	metrics *monitoring.Metrics,
	log *zap.Logger,
) *NewsletterService {
	return &NewsletterService{
		subscribers: store.Subscribers(),
		uploads:     store.Uploads(),
		campaigns:   store.Campaigns(),
		files:       files,
		mailer:      m,
		mail:        mail,
		metrics:     metrics,
		log:         log,
	}
}

// SubscribeInput 订阅输入
type SubscribeInput struct {
	Email  string `json:"email"`
	Name   string `json:"name"`
	Source string `json:"source"`
}

// Subscribe 新建订阅；已退订的邮箱重新激活并清除退订时间；有效订阅重复提交返回 ErrAlreadySubscribed
//
// 返回值:
//   - *domain.NewsletterSubscriber: 订阅记录
//   - bool: 是否为重新激活
//   - error: 校验失败、重复订阅或存储错误
func (s *NewsletterService) Subscribe(ctx context.Context, in SubscribeInput) (*domain.NewsletterSubscriber, bool, error) {
	email := domain.NormalizeEmail(in.Email)
	v := &domain.ValidationError{}
	v.Require("email", email)
	if email != "" && domain.ValidateEmail(email) != nil {
		v.Add("email", "must be a valid email address")
	}
	if err := v.Err(); err != nil {
		return nil, false, err
	}

	now := s.now.now()
	existing, err := s.subscribers.FindOne(ctx, query.Where(query.Eq("email", email)))
	switch {
	case err == nil && !existing.Unsubscribed:
		return nil, false, domain.ErrAlreadySubscribed
	case err == nil:
		set := map[string]any{
			"unsubscribed":   false,
			"unsubscribedAt": nil,
			"subscribedAt":   now,
			"updatedAt":      now,
		}
		if name := strings.TrimSpace(in.Name); name != "" {
			set["name"] = name
		}
		sub, err := s.subscribers.Update(ctx, existing.ID, query.Update{Set: set})
		if err != nil {
			return nil, false, fmt.Errorf("reactivate subscriber: %w", err)
		}
		s.metrics.RecordSubscription("resubscribe")
		return sub, true, nil
	case !errors.Is(err, domain.ErrNotFound):
		return nil, false, fmt.Errorf("find subscriber: %w", err)
	}

	source := strings.TrimSpace(in.Source)
	if source == "" {
		source = "website"
	}
	sub := &domain.NewsletterSubscriber{
		ID:           domain.NewID(),
		Email:        email,
		Name:         strings.TrimSpace(in.Name),
		Source:       source,
		SubscribedAt: now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.subscribers.Insert(ctx, sub); err != nil {
		if errors.Is(err, domain.ErrDuplicate) {
			return nil, false, domain.ErrAlreadySubscribed
		}
		return nil, false, fmt.Errorf("create subscriber: %w", err)
	}
	s.metrics.RecordSubscription("subscribe")
	return sub, false, nil
}

// Unsubscribe 按邮箱退订，重复退订保持原退订时间
func (s *NewsletterService) Unsubscribe(ctx context.Context, rawEmail string) (*domain.NewsletterSubscriber, error) {
	email := domain.NormalizeEmail(rawEmail)
	if email == "" {
		return nil, domain.NewValidationError("email", "is required")
	}
	sub, err := s.subscribers.FindOne(ctx, query.Where(query.Eq("email", email)))
	if err != nil {
		return nil, err
	}
	if sub.Unsubscribed {
		return sub, nil
	}

	now := s.now.now()
	updated, err := s.subscribers.Update(ctx, sub.ID, query.Update{Set: map[string]any{
		"unsubscribed":   true,
		"unsubscribedAt": now,
		"updatedAt":      now,
	}})
	if err != nil {
		return nil, err
	}
	s.metrics.RecordSubscription("unsubscribe")
	return updated, nil
}

// Resubscribe 后台按 ID 恢复订阅
func (s *NewsletterService) Resubscribe(ctx context.Context, rawID string) (*domain.NewsletterSubscriber, error) {
	now := s.now.now()
	sub, err := setByID(ctx, s.subscribers, rawID, map[string]any{
		"unsubscribed":   false,
		"unsubscribedAt": nil,
		"subscribedAt":   now,
	}, now)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordSubscription("resubscribe")
	return sub, nil
}

// ListSubscribers 订阅者列表
func (s *NewsletterService) ListSubscribers(ctx context.Context, values url.Values) (*query.Page[domain.NewsletterSubscriber], error) {
	return listBySchema(ctx, s.subscribers, subscriberSchema, values)
}

// GetSubscriber 读取订阅者
func (s *NewsletterService) GetSubscriber(ctx context.Context, rawID string) (*domain.NewsletterSubscriber, error) {
	return getByID(ctx, s.subscribers, rawID)
}

// DeleteSubscriber 删除订阅者
func (s *NewsletterService) DeleteSubscriber(ctx context.Context, rawID string) error {
	return deleteByID(ctx, s.subscribers, rawID)
}

// Stats 订阅、期刊与群发的统计概览
func (s *NewsletterService) Stats(ctx context.Context) (*domain.NewsletterStats, error) {
	stats := &domain.NewsletterStats{}
	var err error

	if stats.TotalSubscribers, err = countBy(ctx, s.subscribers, "subscribers", query.Filter{}); err != nil {
		return nil, err
	}
	if stats.ActiveSubscribers, err = countBy(ctx, s.subscribers, "active subscribers", query.Where(query.Eq("unsubscribed", false))); err != nil {
		return nil, err
	}
	stats.UnsubscribedSubscribers = stats.TotalSubscribers - stats.ActiveSubscribers

	if stats.Uploads, err = countBy(ctx, s.uploads, "uploads", query.Filter{}); err != nil {
		return nil, err
	}
	if stats.ActiveUploads, err = countBy(ctx, s.uploads, "active uploads", query.Where(query.Eq("active", true))); err != nil {
		return nil, err
	}
	if stats.TotalDownloads, err = s.uploads.Sum(ctx, query.Filter{}, "downloadCount"); err != nil {
		return nil, fmt.Errorf("sum downloads: %w", err)
	}
	if stats.Campaigns, err = countBy(ctx, s.campaigns, "campaigns", query.Filter{}); err != nil {
		return nil, err
	}
	return stats, nil
}
