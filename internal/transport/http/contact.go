package httptransport

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"sitecms/backend/internal/service"
)

// ContactHandler 联系表单接口
type ContactHandler struct {
	contacts *service.ContactService
	log      *zap.Logger
}

// NewContactHandler 创建联系表单处理器
func NewContactHandler(contacts *service.ContactService, log *zap.Logger) *ContactHandler {
	return &ContactHandler{contacts: contacts, log: log}
}

type flagRequest struct {
	Read    *bool `json:"read"`
	Replied *bool `json:"replied"`
}

type priorityRequest struct {
	Priority string `json:"priority"`
}

// Create 公开提交联系表单
func (h *ContactHandler) Create(c *gin.Context) {
	var in service.ContactInput
	if err := bindJSON(c, &in); err != nil {
		respondError(c, h.log, err)
		return
	}
	contact, err := h.contacts.Create(c.Request.Context(), in)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	Created(c, "Thank you for your message. We will get back to you soon!", contact)
}

func (h *ContactHandler) List(c *gin.Context) {
	page, err := h.contacts.List(c.Request.Context(), c.Request.URL.Query())
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	List(c, page)
}

func (h *ContactHandler) Stats(c *gin.Context) {
	stats, err := h.contacts.Stats(c.Request.Context())
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	Success(c, stats)
}

func (h *ContactHandler) Get(c *gin.Context) {
	contact, err := h.contacts.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	Success(c, contact)
}

func (h *ContactHandler) Update(c *gin.Context) {
	var in service.ContactInput
	if err := bindJSON(c, &in); err != nil {
		respondError(c, h.log, err)
		return
	}
	contact, err := h.contacts.Update(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	SuccessWithMsg(c, "Contact updated successfully", contact)
}

func (h *ContactHandler) Delete(c *gin.Context) {
	if err := h.contacts.Delete(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, h.log, err)
		return
	}
	SuccessWithMsg(c, "Contact deleted successfully", nil)
}

// MarkRead 请求体缺省时标记为已读
func (h *ContactHandler) MarkRead(c *gin.Context) {
	read, ok := h.flag(c, func(r flagRequest) *bool { return r.Read })
	if !ok {
		return
	}
	contact, err := h.contacts.MarkRead(c.Request.Context(), c.Param("id"), read)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	SuccessWithMsg(c, "Contact read status updated", contact)
}

// MarkReplied 请求体缺省时标记为已回复
func (h *ContactHandler) MarkReplied(c *gin.Context) {
	replied, ok := h.flag(c, func(r flagRequest) *bool { return r.Replied })
	if !ok {
		return
	}
	contact, err := h.contacts.MarkReplied(c.Request.Context(), c.Param("id"), replied)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	SuccessWithMsg(c, "Contact replied status updated", contact)
}

func (h *ContactHandler) SetPriority(c *gin.Context) {
	var req priorityRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, h.log, err)
		return
	}
	contact, err := h.contacts.SetPriority(c.Request.Context(), c.Param("id"), req.Priority)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	SuccessWithMsg(c, "Contact priority updated", contact)
}

// flag 读取布尔标记，空请求体视为 true
func (h *ContactHandler) flag(c *gin.Context, pick func(flagRequest) *bool) (bool, bool) {
	var req flagRequest
	present, err := bindOptionalJSON(c, &req)
	if err != nil {
		respondError(c, h.log, err)
		return false, false
	}
	if !present {
		return true, true
	}
	if v := pick(req); v != nil {
		return *v, true
	}
	return true, true
}
