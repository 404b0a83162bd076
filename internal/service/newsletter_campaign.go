package service

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"sitecms/backend/internal/domain"
	"sitecms/backend/internal/mailer"
	"sitecms/backend/internal/pool"
	"sitecms/backend/internal/query"
)

var campaignSchema = query.Schema{
	Filters: []query.Param{
		{Name: "status", Kind: query.KindEnum, Allowed: []string{
			string(domain.CampaignPending), string(domain.CampaignSent), string(domain.CampaignFailed),
		}},
		{Name: "sentTo", Kind: query.KindEnum, Allowed: domain.CampaignAudiences},
	},
	SearchFields: []string{"subject", "content"},
	SortFields:   []string{"createdAt", "sentAt", "subject", "recipientCount"},
	DefaultSort:  "createdAt",
}

// SendInput 群发输入
type SendInput struct {
	Subject    string   `json:"subject"`
	Content    string   `json:"content"`
	SentTo     string   `json:"sentTo"`
	Recipients []string `json:"recipients"`
}

// deliveryResult 一次群发的投递汇总
type deliveryResult struct {
	mu        sync.Mutex
	sent      int
	failed    int
	lastError string
}

func (r *deliveryResult) record(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.failed++
		r.lastError = err.Error()
		return
	}
	r.sent++
}

// Send 创建群发记录并同步投递
//
// 记录先以 pending 写入，投递结束后一次性更新为 sent（至少成功一封）或 failed。
func (s *NewsletterService) Send(ctx context.Context, in SendInput) (*domain.NewsletterCampaign, error) {
	ids, err := domain.ParseIDs(in.Recipients)
	if err != nil {
		return nil, domain.NewValidationError("recipients", "must be a list of valid ids")
	}
	campaign := &domain.NewsletterCampaign{
		Subject:    strings.TrimSpace(in.Subject),
		Content:    in.Content,
		SentTo:     domain.CampaignAudience(in.SentTo),
		Recipients: ids,
		Status:     domain.CampaignPending,
	}
	if campaign.SentTo == "" {
		campaign.SentTo = domain.AudienceAll
	}
	if campaign.SentTo != domain.AudienceSelected {
		campaign.Recipients = nil
	}
	if err := campaign.Validate(); err != nil {
		return nil, err
	}

	recipients, err := s.resolveRecipients(ctx, campaign.SentTo, campaign.Recipients)
	if err != nil {
		return nil, err
	}
	if len(recipients) == 0 {
		return nil, domain.ErrNoRecipients
	}

	now := s.now.now()
	campaign.ID = domain.NewID()
	campaign.RecipientCount = len(recipients)
	campaign.CreatedAt = now
	campaign.UpdatedAt = now
	if err := s.campaigns.Insert(ctx, campaign); err != nil {
		return nil, fmt.Errorf("create campaign: %w", err)
	}

	result := s.deliver(ctx, campaign, recipients)

	// 请求被取消时仍需写入最终状态，避免记录停留在 pending
	finalCtx := context.WithoutCancel(ctx)
	status := domain.CampaignSent
	if result.sent == 0 {
		status = domain.CampaignFailed
	}
	sentAt := s.now.now()
	set := map[string]any{
		"status":        string(status),
		"deliveryStats": domain.DeliveryStats{Sent: result.sent, Failed: result.failed},
		"sentAt":        sentAt,
		"updatedAt":     sentAt,
	}
	if result.lastError != "" {
		set["lastError"] = result.lastError
	}
	updated, err := s.campaigns.Update(finalCtx, campaign.ID, query.Update{Set: set})
	if err != nil {
		return nil, fmt.Errorf("finalize campaign: %w", err)
	}

	s.metrics.RecordCampaign(string(status), result.sent, result.failed)
	s.log.Info("campaign delivered",
		zap.String("id", campaign.ID.Hex()),
		zap.String("status", string(status)),
		zap.Int("sent", result.sent),
		zap.Int("failed", result.failed),
	)
	return updated, nil
}

func (s *NewsletterService) deliver(ctx context.Context, campaign *domain.NewsletterCampaign, recipients []domain.NewsletterSubscriber) *deliveryResult {
	result := &deliveryResult{}
	err := pool.Run(ctx, s.mail.Workers, recipients, s.log, func(ctx context.Context, sub domain.NewsletterSubscriber) {
		result.record(s.mailer.Send(ctx, mailer.Message{
			To:             sub.Email,
			Subject:        campaign.Subject,
			HTML:           campaign.Content,
			UnsubscribeURL: s.unsubscribeURL(sub.Email),
		}))
	})
	if err != nil {
		// 未提交的收件人计为失败
		result.mu.Lock()
		result.failed = len(recipients) - result.sent
		result.lastError = err.Error()
		result.mu.Unlock()
	}
	return result
}

func (s *NewsletterService) resolveRecipients(ctx context.Context, audience domain.CampaignAudience, ids []primitive.ObjectID) ([]domain.NewsletterSubscriber, error) {
	var filter query.Filter
	switch audience {
	case domain.AudienceAll:
		filter = query.Where(query.Eq("unsubscribed", false))
	case domain.AudienceSelected:
		values := make([]any, len(ids))
		for i, id := range ids {
			values[i] = id
		}
		filter = query.Where(query.In("_id", values...), query.Eq("unsubscribed", false))
	case domain.AudienceUnsubscribed:
		filter = query.Where(query.Eq("unsubscribed", true))
	}

	subs, err := s.subscribers.Find(ctx, query.Spec{Filter: filter, Sort: query.Sort{Field: "createdAt"}})
	if err != nil {
		return nil, fmt.Errorf("resolve recipients: %w", err)
	}
	return subs, nil
}

func (s *NewsletterService) unsubscribeURL(email string) string {
	if s.mail.UnsubscribeURL == "" {
		return ""
	}
	u, err := url.Parse(s.mail.UnsubscribeURL)
	if err != nil {
		return ""
	}
	q := u.Query()
	q.Set("email", email)
	u.RawQuery = q.Encode()
	return u.String()
}

// ListCampaigns 群发记录列表
func (s *NewsletterService) ListCampaigns(ctx context.Context, values url.Values) (*query.Page[domain.NewsletterCampaign], error) {
	return listBySchema(ctx, s.campaigns, campaignSchema, values)
}

// GetCampaign 读取群发记录
func (s *NewsletterService) GetCampaign(ctx context.Context, rawID string) (*domain.NewsletterCampaign, error) {
	return getByID(ctx, s.campaigns, rawID)
}

// DeleteCampaign 删除群发记录
func (s *NewsletterService) DeleteCampaign(ctx context.Context, rawID string) error {
	return deleteByID(ctx, s.campaigns, rawID)
}
