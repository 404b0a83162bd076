package httptransport

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"sitecms/backend/internal/service"
)

// TestimonialHandler 客户评价接口
type TestimonialHandler struct {
	testimonials *service.TestimonialService
	log          *zap.Logger
}

// NewTestimonialHandler 创建评价处理器
func NewTestimonialHandler(testimonials *service.TestimonialService, log *zap.Logger) *TestimonialHandler {
	return &TestimonialHandler{testimonials: testimonials, log: log}
}

// List 后台列表，rating 为精确匹配
func (h *TestimonialHandler) List(c *gin.Context) {
	page, err := h.testimonials.List(c.Request.Context(), c.Request.URL.Query())
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	List(c, page)
}

// ListPublic 公开列表，仅启用的评价，minRating 为下限
func (h *TestimonialHandler) ListPublic(c *gin.Context) {
	page, err := h.testimonials.ListPublic(c.Request.Context(), c.Request.URL.Query())
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	List(c, page)
}

func (h *TestimonialHandler) Featured(c *gin.Context) {
	items, err := h.testimonials.Featured(c.Request.Context(), c.Query("limit"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	Success(c, items)
}

func (h *TestimonialHandler) Stats(c *gin.Context) {
	stats, err := h.testimonials.Stats(c.Request.Context())
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	Success(c, stats)
}

func (h *TestimonialHandler) Get(c *gin.Context) {
	t, err := h.testimonials.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	Success(c, t)
}

func (h *TestimonialHandler) Create(c *gin.Context) {
	var in service.TestimonialInput
	if err := bindJSON(c, &in); err != nil {
		respondError(c, h.log, err)
		return
	}
	t, err := h.testimonials.Create(c.Request.Context(), in)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	Created(c, "Testimonial created successfully", t)
}

func (h *TestimonialHandler) Update(c *gin.Context) {
	var in service.TestimonialInput
	if err := bindJSON(c, &in); err != nil {
		respondError(c, h.log, err)
		return
	}
	t, err := h.testimonials.Update(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	SuccessWithMsg(c, "Testimonial updated successfully", t)
}

func (h *TestimonialHandler) Delete(c *gin.Context) {
	if err := h.testimonials.Delete(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, h.log, err)
		return
	}
	SuccessWithMsg(c, "Testimonial deleted successfully", nil)
}

func (h *TestimonialHandler) ToggleActive(c *gin.Context) {
	t, err := h.testimonials.ToggleActive(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	SuccessWithMsg(c, "Testimonial status updated", t)
}

func (h *TestimonialHandler) ToggleFeatured(c *gin.Context) {
	t, err := h.testimonials.ToggleFeatured(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	SuccessWithMsg(c, "Testimonial featured status updated", t)
}
