package service

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"go.uber.org/zap"

	"sitecms/backend/internal/domain"
	"sitecms/backend/internal/query"
	"sitecms/backend/internal/storage"
)

// 评价列表的查询白名单：后台按评分精确匹配，前台按最低评分过滤
var (
	testimonialSchema = query.Schema{
		Filters: []query.Param{
			{Name: "rating", Kind: query.KindInt},
			{Name: "active", Kind: query.KindBool},
			{Name: "featured", Kind: query.KindBool},
			{Name: "verified", Kind: query.KindBool},
			{Name: "source", Kind: query.KindEnum, Allowed: domain.TestimonialSources},
		},
		SearchFields: []string{"name", "company", "position", "content"},
		SortFields:   []string{"createdAt", "updatedAt", "rating", "name", "company"},
		DefaultSort:  "createdAt",
	}

	publicTestimonialSchema = query.Schema{
		Filters: []query.Param{
			{Name: "minRating", Field: "rating", Kind: query.KindInt, Op: query.OpGte},
			{Name: "featured", Kind: query.KindBool},
			{Name: "source", Kind: query.KindEnum, Allowed: domain.TestimonialSources},
		},
		SearchFields: []string{"name", "company", "content"},
		SortFields:   []string{"createdAt", "rating"},
		DefaultSort:  "createdAt",
		Forced:       []query.Predicate{query.Eq("active", true)},
	}
)

// TestimonialInput 创建或更新评价的输入，nil 字段表示不修改
type TestimonialInput struct {
	Name     *string `json:"name"`
	Company  *string `json:"company"`
	Position *string `json:"position"`
	Content  *string `json:"content"`
	Image    *string `json:"image"`
	Rating   *int    `json:"rating"`
	Active   *bool   `json:"active"`
	Featured *bool   `json:"featured"`
	Verified *bool   `json:"verified"`
	Source   *string `json:"source"`
}

func (in TestimonialInput) apply(t *domain.Testimonial) {
	assign(&t.Name, in.Name)
	assign(&t.Company, in.Company)
	assign(&t.Position, in.Position)
	assign(&t.Content, in.Content)
	assign(&t.Image, in.Image)
	assign(&t.Source, in.Source)
	if in.Rating != nil {
		t.Rating = *in.Rating
	}
	if in.Active != nil {
		t.Active = *in.Active
	}
	if in.Featured != nil {
		t.Featured = *in.Featured
	}
	if in.Verified != nil {
		t.Verified = *in.Verified
	}
}

// TestimonialService 客户评价业务服务
type TestimonialService struct {
	testimonials storage.Collection[domain.Testimonial]
	log          *zap.Logger
	now          clock
}

// NewTestimonialService 创建评价业务服务
func NewTestimonialService(testimonials storage.Collection[domain.Testimonial], log *zap.Logger) *TestimonialService {
	return &TestimonialService{testimonials: testimonials, log: log}
}

// List 后台列表
func (s *TestimonialService) List(ctx context.Context, values url.Values) (*query.Page[domain.Testimonial], error) {
	return listBySchema(ctx, s.testimonials, testimonialSchema, values)
}

// ListPublic 前台列表，只包含启用的评价
func (s *TestimonialService) ListPublic(ctx context.Context, values url.Values) (*query.Page[domain.Testimonial], error) {
	return listBySchema(ctx, s.testimonials, publicTestimonialSchema, values)
}

// Featured 启用且精选的评价，按评分从高到低
func (s *TestimonialService) Featured(ctx context.Context, rawLimit string) ([]domain.Testimonial, error) {
	limit, err := strconv.Atoi(rawLimit)
	if err != nil || limit < 1 {
		limit = 6
	}
	if limit > query.MaxLimit {
		limit = query.MaxLimit
	}
	return s.testimonials.Find(ctx, query.Spec{
		Filter: query.Where(query.Eq("active", true), query.Eq("featured", true)),
		Sort:   query.Sort{Field: "rating", Desc: true},
		Page:   1,
		Limit:  limit,
	})
}

// Get 读取单条评价
func (s *TestimonialService) Get(ctx context.Context, rawID string) (*domain.Testimonial, error) {
	return getByID(ctx, s.testimonials, rawID)
}

// Create 创建评价，默认启用、来源为 website
func (s *TestimonialService) Create(ctx context.Context, in TestimonialInput) (*domain.Testimonial, error) {
	now := s.now.now()
	t := &domain.Testimonial{Active: true, Source: "website"}
	in.apply(t)
	if err := t.Validate(); err != nil {
		return nil, err
	}

	t.ID = domain.NewID()
	t.CreatedAt = now
	t.UpdatedAt = now
	if err := s.testimonials.Insert(ctx, t); err != nil {
		return nil, fmt.Errorf("create testimonial: %w", err)
	}
	return t, nil
}

// Update 更新评价，更新后的评分同样必须在 1 到 5 之间
func (s *TestimonialService) Update(ctx context.Context, rawID string, in TestimonialInput) (*domain.Testimonial, error) {
	existing, err := getByID(ctx, s.testimonials, rawID)
	if err != nil {
		return nil, err
	}
	t := *existing
	in.apply(&t)
	if err := t.Validate(); err != nil {
		return nil, err
	}
	t.UpdatedAt = s.now.now()
	if err := s.testimonials.Replace(ctx, existing.ID, &t); err != nil {
		return nil, fmt.Errorf("update testimonial: %w", err)
	}
	return &t, nil
}

// Delete 删除评价
func (s *TestimonialService) Delete(ctx context.Context, rawID string) error {
	return deleteByID(ctx, s.testimonials, rawID)
}

// ToggleActive 切换启用状态，不影响其他字段
func (s *TestimonialService) ToggleActive(ctx context.Context, rawID string) (*domain.Testimonial, error) {
	t, err := getByID(ctx, s.testimonials, rawID)
	if err != nil {
		return nil, err
	}
	return setByID(ctx, s.testimonials, rawID, map[string]any{"active": !t.Active}, s.now.now())
}

// ToggleFeatured 切换精选状态，不影响其他字段
func (s *TestimonialService) ToggleFeatured(ctx context.Context, rawID string) (*domain.Testimonial, error) {
	t, err := getByID(ctx, s.testimonials, rawID)
	if err != nil {
		return nil, err
	}
	return setByID(ctx, s.testimonials, rawID, map[string]any{"featured": !t.Featured}, s.now.now())
}

// Stats 评价统计概览
func (s *TestimonialService) Stats(ctx context.Context) (*domain.TestimonialStats, error) {
	stats := &domain.TestimonialStats{}
	counts := []struct {
		dst    *int64
		name   string
		filter query.Filter
	}{
		{&stats.Total, "testimonials", query.Filter{}},
		{&stats.Active, "active testimonials", query.Where(query.Eq("active", true))},
		{&stats.Featured, "featured testimonials", query.Where(query.Eq("featured", true))},
		{&stats.Verified, "verified testimonials", query.Where(query.Eq("verified", true))},
	}
	for _, c := range counts {
		n, err := countBy(ctx, s.testimonials, c.name, c.filter)
		if err != nil {
			return nil, err
		}
		*c.dst = n
	}

	bySource, err := s.testimonials.Group(ctx, query.Filter{}, "source", "rating")
	if err != nil {
		return nil, fmt.Errorf("group testimonials by source: %w", err)
	}
	byRating, err := s.testimonials.Group(ctx, query.Filter{}, "rating", "")
	if err != nil {
		return nil, fmt.Errorf("group testimonials by rating: %w", err)
	}
	stats.BySource = groupCounts(bySource)
	stats.ByRating = groupCounts(byRating)

	// 整体平均分由各来源的平均分按数量加权得到
	var weighted float64
	var n int64
	for _, g := range bySource {
		weighted += g.Average * float64(g.Count)
		n += g.Count
	}
	if n > 0 {
		stats.AverageRating = weighted / float64(n)
	}
	return stats, nil
}
