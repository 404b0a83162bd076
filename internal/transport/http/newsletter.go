package httptransport

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"sitecms/backend/internal/service"
)

// NewsletterHandler 期刊订阅、PDF 与群发接口
type NewsletterHandler struct {
	newsletter *service.NewsletterService
	log        *zap.Logger
}

// NewNewsletterHandler 创建期刊处理器
func NewNewsletterHandler(newsletter *service.NewsletterService, log *zap.Logger) *NewsletterHandler {
	return &NewsletterHandler{newsletter: newsletter, log: log}
}

type unsubscribeRequest struct {
	Email string `json:"email"`
}

// Subscribe 新订阅返回 201，重新激活返回 200
func (h *NewsletterHandler) Subscribe(c *gin.Context) {
	var in service.SubscribeInput
	if err := bindJSON(c, &in); err != nil {
		respondError(c, h.log, err)
		return
	}
	sub, reactivated, err := h.newsletter.Subscribe(c.Request.Context(), in)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	if reactivated {
		SuccessWithMsg(c, "Successfully resubscribed to newsletter", sub)
		return
	}
	Created(c, "Successfully subscribed to newsletter", sub)
}

func (h *NewsletterHandler) Unsubscribe(c *gin.Context) {
	var req unsubscribeRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, h.log, err)
		return
	}
	if _, err := h.newsletter.Unsubscribe(c.Request.Context(), req.Email); err != nil {
		respondError(c, h.log, err)
		return
	}
	SuccessWithMsg(c, "Successfully unsubscribed from newsletter", nil)
}

func (h *NewsletterHandler) Resubscribe(c *gin.Context) {
	sub, err := h.newsletter.Resubscribe(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	SuccessWithMsg(c, "Subscriber resubscribed", sub)
}

func (h *NewsletterHandler) ListSubscribers(c *gin.Context) {
	page, err := h.newsletter.ListSubscribers(c.Request.Context(), c.Request.URL.Query())
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	List(c, page)
}

func (h *NewsletterHandler) GetSubscriber(c *gin.Context) {
	sub, err := h.newsletter.GetSubscriber(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	Success(c, sub)
}

func (h *NewsletterHandler) DeleteSubscriber(c *gin.Context) {
	if err := h.newsletter.DeleteSubscriber(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, h.log, err)
		return
	}
	SuccessWithMsg(c, "Subscriber deleted successfully", nil)
}

func (h *NewsletterHandler) Stats(c *gin.Context) {
	stats, err := h.newsletter.Stats(c.Request.Context())
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	Success(c, stats)
}

func (h *NewsletterHandler) ListUploads(c *gin.Context) {
	page, err := h.newsletter.ListUploads(c.Request.Context(), c.Request.URL.Query())
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	List(c, page)
}

func (h *NewsletterHandler) ListPublicUploads(c *gin.Context) {
	page, err := h.newsletter.ListPublicUploads(c.Request.Context(), c.Request.URL.Query())
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	List(c, page)
}

func (h *NewsletterHandler) UploadCategories(c *gin.Context) {
	categories, err := h.newsletter.UploadCategories(c.Request.Context())
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	Success(c, categories)
}

func (h *NewsletterHandler) GetUpload(c *gin.Context) {
	u, err := h.newsletter.GetUpload(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	Success(c, u)
}

func (h *NewsletterHandler) CreateUpload(c *gin.Context) {
	in, done, err := h.bindUpload(c)
	defer done()
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	u, err := h.newsletter.CreateUpload(c.Request.Context(), in)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	Created(c, "Newsletter uploaded successfully", u)
}

func (h *NewsletterHandler) UpdateUpload(c *gin.Context) {
	in, done, err := h.bindUpload(c)
	defer done()
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	u, err := h.newsletter.UpdateUpload(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	SuccessWithMsg(c, "Newsletter updated successfully", u)
}

func (h *NewsletterHandler) DeleteUpload(c *gin.Context) {
	if err := h.newsletter.DeleteUpload(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, h.log, err)
		return
	}
	SuccessWithMsg(c, "Newsletter deleted successfully", nil)
}

func (h *NewsletterHandler) ToggleUploadActive(c *gin.Context) {
	u, err := h.newsletter.ToggleUploadActive(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	SuccessWithMsg(c, "Newsletter status updated", u)
}

// Download 发送 PDF，只有完整发送（200）后才累加下载次数
func (h *NewsletterHandler) Download(c *gin.Context) {
	u, path, err := h.newsletter.Download(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.FileAttachment(path, u.OriginalName)
	if c.Writer.Status() != http.StatusOK {
		return
	}
	if err := h.newsletter.RecordDownload(c.Request.Context(), u); err != nil {
		h.log.Warn("failed to record download", zap.String("upload_id", u.ID.Hex()), zap.Error(err))
	}
}

// Send 同步群发并返回最终的群发记录
func (h *NewsletterHandler) Send(c *gin.Context) {
	var in service.SendInput
	if err := bindJSON(c, &in); err != nil {
		respondError(c, h.log, err)
		return
	}
	campaign, err := h.newsletter.Send(c.Request.Context(), in)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	Created(c, "Newsletter campaign processed", campaign)
}

func (h *NewsletterHandler) ListCampaigns(c *gin.Context) {
	page, err := h.newsletter.ListCampaigns(c.Request.Context(), c.Request.URL.Query())
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	List(c, page)
}

func (h *NewsletterHandler) GetCampaign(c *gin.Context) {
	campaign, err := h.newsletter.GetCampaign(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	Success(c, campaign)
}

func (h *NewsletterHandler) DeleteCampaign(c *gin.Context) {
	if err := h.newsletter.DeleteCampaign(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, h.log, err)
		return
	}
	SuccessWithMsg(c, "Campaign deleted successfully", nil)
}

// bindUpload 从 multipart 表单（字段 pdf）或 JSON 读取元数据
func (h *NewsletterHandler) bindUpload(c *gin.Context) (service.UploadInput, func(), error) {
	var in service.UploadInput
	if !isMultipart(c) {
		return in, func() {}, bindJSON(c, &in)
	}
	if err := parseMultipart(c); err != nil {
		return in, func() {}, err
	}

	f := newForm(c)
	in = service.UploadInput{
		Name:        f.String("name"),
		Description: f.String("description"),
		Category:    f.String("category"),
		Date:        f.Time("date"),
		Active:      f.Bool("active"),
	}
	if err := f.Err(); err != nil {
		return in, func() {}, err
	}

	file, done, err := formFile(c, "pdf")
	if err != nil {
		return in, done, err
	}
	in.File = file
	return in, done, nil
}
