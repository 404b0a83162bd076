package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// NewsletterSubscriber 邮件订阅者
type NewsletterSubscriber struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Email          string             `bson:"email" json:"email"`
	Name           string             `bson:"name,omitempty" json:"name,omitempty"`
	Source         string             `bson:"source,omitempty" json:"source,omitempty"`
	Unsubscribed   bool               `bson:"unsubscribed" json:"unsubscribed"`
	UnsubscribedAt *time.Time         `bson:"unsubscribedAt" json:"unsubscribedAt"`
	SubscribedAt   time.Time          `bson:"subscribedAt" json:"subscribedAt"`
	CreatedAt      time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt      time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// NewsletterCategories 合法的期刊分类
var NewsletterCategories = []string{"monthly", "weekly", "special", "announcement", "update"}

// NewsletterUpload 已上传的期刊 PDF
type NewsletterUpload struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name          string             `bson:"name" json:"name"`
	Description   string             `bson:"description,omitempty" json:"description,omitempty"`
	Category      string             `bson:"category" json:"category"`
	Date          time.Time          `bson:"date" json:"date"`
	Filename      string             `bson:"filename" json:"filename"`
	OriginalName  string             `bson:"originalName" json:"originalName"`
	FilePath      string             `bson:"filePath" json:"filePath"`
	FileSize      int64              `bson:"fileSize" json:"fileSize"`
	MimeType      string             `bson:"mimeType" json:"mimeType"`
	DownloadCount int64              `bson:"downloadCount" json:"downloadCount"`
	Active        bool               `bson:"active" json:"active"`
	CreatedAt     time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt     time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// Validate 校验必填元数据
func (u *NewsletterUpload) Validate() error {
	v := &ValidationError{}
	v.Require("name", u.Name)
	v.Require("category", u.Category)
	v.OneOf("category", u.Category, NewsletterCategories)
	if u.Date.IsZero() {
		v.Add("date", "is required")
	}
	return v.Err()
}

// CampaignAudience 活动投递对象
type CampaignAudience string

const (
	AudienceAll          CampaignAudience = "all"
	AudienceSelected     CampaignAudience = "selected"
	AudienceUnsubscribed CampaignAudience = "unsubscribed"
)

// CampaignAudiences 合法的投递对象
var CampaignAudiences = []string{string(AudienceAll), string(AudienceSelected), string(AudienceUnsubscribed)}

// CampaignStatus 活动状态，每次发送只会从 pending 转移一次
type CampaignStatus string

const (
	CampaignPending CampaignStatus = "pending"
	CampaignSent    CampaignStatus = "sent"
	CampaignFailed  CampaignStatus = "failed"
)

// DeliveryStats 投递统计
type DeliveryStats struct {
	Sent   int `bson:"sent" json:"sent"`
	Failed int `bson:"failed" json:"failed"`
}

// NewsletterCampaign 一次邮件群发记录
type NewsletterCampaign struct {
	ID             primitive.ObjectID   `bson:"_id,omitempty" json:"id"`
	Subject        string               `bson:"subject" json:"subject"`
	Content        string               `bson:"content" json:"content"`
	SentTo         CampaignAudience     `bson:"sentTo" json:"sentTo"`
	Recipients     []primitive.ObjectID `bson:"recipients,omitempty" json:"recipients,omitempty"`
	RecipientCount int                  `bson:"recipientCount" json:"recipientCount"`
	Status         CampaignStatus       `bson:"status" json:"status"`
	DeliveryStats  DeliveryStats        `bson:"deliveryStats" json:"deliveryStats"`
	LastError      string               `bson:"lastError,omitempty" json:"lastError,omitempty"`
	SentAt         *time.Time           `bson:"sentAt,omitempty" json:"sentAt,omitempty"`
	CreatedAt      time.Time            `bson:"createdAt" json:"createdAt"`
	UpdatedAt      time.Time            `bson:"updatedAt" json:"updatedAt"`
}

// Validate 校验主题、正文与投递对象
func (c *NewsletterCampaign) Validate() error {
	v := &ValidationError{}
	v.Require("subject", c.Subject)
	v.Require("content", c.Content)
	v.OneOf("sentTo", string(c.SentTo), CampaignAudiences)
	if c.SentTo == AudienceSelected && len(c.Recipients) == 0 {
		v.Add("recipients", "is required when sentTo is selected")
	}
	return v.Err()
}

// NewsletterStats 订阅与期刊统计概览
type NewsletterStats struct {
	TotalSubscribers        int64 `json:"totalSubscribers"`
	ActiveSubscribers       int64 `json:"activeSubscribers"`
	UnsubscribedSubscribers int64 `json:"unsubscribedSubscribers"`
	Uploads                 int64 `json:"uploads"`
	ActiveUploads           int64 `json:"activeUploads"`
	TotalDownloads          int64 `json:"totalDownloads"`
	Campaigns               int64 `json:"campaigns"`
}
