package service

import (
	"context"
	"fmt"
	"net/url"

	"go.uber.org/zap"

	"sitecms/backend/internal/domain"
	"sitecms/backend/internal/query"
	"sitecms/backend/internal/storage"
)

var contactSchema = query.Schema{
	Filters: []query.Param{
		{Name: "read", Kind: query.KindBool},
		{Name: "replied", Kind: query.KindBool},
		{Name: "priority", Kind: query.KindEnum, Allowed: domain.Priorities},
	},
	SearchFields: []string{"name", "email", "subject", "message", "company"},
	SortFields:   []string{"createdAt", "updatedAt", "priority", "name"},
	DefaultSort:  "createdAt",
}

// ContactInput 联系表单输入，nil 字段表示不修改
type ContactInput struct {
	Name     *string `json:"name"`
	Email    *string `json:"email"`
	Phone    *string `json:"phone"`
	Company  *string `json:"company"`
	Subject  *string `json:"subject"`
	Message  *string `json:"message"`
	Priority *string `json:"priority"`
}

func (in ContactInput) apply(c *domain.ContactSubmission) {
	assign(&c.Name, in.Name)
	assign(&c.Phone, in.Phone)
	assign(&c.Company, in.Company)
	assign(&c.Subject, in.Subject)
	assign(&c.Message, in.Message)
	if in.Email != nil {
		c.Email = domain.NormalizeEmail(*in.Email)
	}
	if in.Priority != nil {
		c.Priority = domain.Priority(*in.Priority)
	}
}

// ContactService 联系表单业务服务
type ContactService struct {
	contacts storage.Collection[domain.ContactSubmission]
	log      *zap.Logger
	now      clock
}

// NewContactService 创建联系表单业务服务
func NewContactService(contacts storage.Collection[domain.ContactSubmission], log *zap.Logger) *ContactService {
	return &ContactService{contacts: contacts, log: log}
}

// List 后台列表
func (s *ContactService) List(ctx context.Context, values url.Values) (*query.Page[domain.ContactSubmission], error) {
	return listBySchema(ctx, s.contacts, contactSchema, values)
}

// Get 读取单条提交
func (s *ContactService) Get(ctx context.Context, rawID string) (*domain.ContactSubmission, error) {
	return getByID(ctx, s.contacts, rawID)
}

// Create 保存前台提交的联系表单，默认优先级为 medium
func (s *ContactService) Create(ctx context.Context, in ContactInput) (*domain.ContactSubmission, error) {
	now := s.now.now()
	c := &domain.ContactSubmission{Priority: domain.PriorityMedium}
	in.apply(c)
	if err := c.Validate(); err != nil {
		return nil, err
	}

	c.ID = domain.NewID()
	c.CreatedAt = now
	c.UpdatedAt = now
	if err := s.contacts.Insert(ctx, c); err != nil {
		return nil, fmt.Errorf("create contact: %w", err)
	}
	s.log.Info("contact submission received", zap.String("id", c.ID.Hex()), zap.String("subject", c.Subject))
	return c, nil
}

// Update 更新提交内容
func (s *ContactService) Update(ctx context.Context, rawID string, in ContactInput) (*domain.ContactSubmission, error) {
	existing, err := getByID(ctx, s.contacts, rawID)
	if err != nil {
		return nil, err
	}
	c := *existing
	in.apply(&c)
	if err := c.Validate(); err != nil {
		return nil, err
	}
	c.UpdatedAt = s.now.now()
	if err := s.contacts.Replace(ctx, existing.ID, &c); err != nil {
		return nil, fmt.Errorf("update contact: %w", err)
	}
	return &c, nil
}

// Delete 删除提交
func (s *ContactService) Delete(ctx context.Context, rawID string) error {
	return deleteByID(ctx, s.contacts, rawID)
}

// MarkRead 设置已读标记
func (s *ContactService) MarkRead(ctx context.Context, rawID string, read bool) (*domain.ContactSubmission, error) {
	return setByID(ctx, s.contacts, rawID, map[string]any{"read": read}, s.now.now())
}

// MarkReplied 设置已回复标记；标记为已回复时同时置为已读并记录回复时间
func (s *ContactService) MarkReplied(ctx context.Context, rawID string, replied bool) (*domain.ContactSubmission, error) {
	now := s.now.now()
	set := map[string]any{"replied": replied}
	if replied {
		set["read"] = true
		set["repliedAt"] = now
	}
	return setByID(ctx, s.contacts, rawID, set, now)
}

// SetPriority 修改优先级
func (s *ContactService) SetPriority(ctx context.Context, rawID string, priority string) (*domain.ContactSubmission, error) {
	v := &domain.ValidationError{}
	v.Require("priority", priority)
	v.OneOf("priority", priority, domain.Priorities)
	if err := v.Err(); err != nil {
		return nil, err
	}
	return setByID(ctx, s.contacts, rawID, map[string]any{"priority": priority}, s.now.now())
}

// Stats 联系表单统计概览
func (s *ContactService) Stats(ctx context.Context) (*domain.ContactStats, error) {
	total, err := countBy(ctx, s.contacts, "contacts", query.Filter{})
	if err != nil {
		return nil, err
	}
	unread, err := countBy(ctx, s.contacts, "unread contacts", query.Where(query.Eq("read", false)))
	if err != nil {
		return nil, err
	}
	replied, err := countBy(ctx, s.contacts, "replied contacts", query.Where(query.Eq("replied", true)))
	if err != nil {
		return nil, err
	}
	byPriority, err := s.contacts.Group(ctx, query.Filter{}, "priority", "")
	if err != nil {
		return nil, fmt.Errorf("group contacts by priority: %w", err)
	}

	counts := groupCounts(byPriority)
	for _, p := range domain.Priorities {
		if _, ok := counts[p]; !ok {
			counts[p] = 0
		}
	}
	return &domain.ContactStats{Total: total, Unread: unread, Replied: replied, ByPriority: counts}, nil
}
