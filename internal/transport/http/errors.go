package httptransport

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"sitecms/backend/internal/domain"
)

// 通用错误消息
const (
	MsgInvalidRequest   = "Invalid request body"
	MsgAuthRequired     = "Access denied. No token provided."
	MsgRouteNotFound    = "Route not found"
	MsgInternalError    = "Something went wrong!"
	MsgRequestTooLarge  = "Request body too large"
	MsgInvalidMultipart = "Invalid multipart form"
)

// errorStatus 业务错误到 HTTP 状态码的映射，按顺序匹配
var errorStatus = []struct {
	err    error
	status int
}{
	{domain.ErrNotFound, http.StatusNotFound},
	{domain.ErrFileNotFound, http.StatusNotFound},
	{domain.ErrInvalidIdentifier, http.StatusBadRequest},
	{domain.ErrInvalidFileType, http.StatusBadRequest},
	{domain.ErrMissingFile, http.StatusBadRequest},
	{domain.ErrNoRecipients, http.StatusBadRequest},
	{domain.ErrFileTooLarge, http.StatusRequestEntityTooLarge},
	{domain.ErrInvalidCredentials, http.StatusUnauthorized},
	{domain.ErrInvalidToken, http.StatusUnauthorized},
	{domain.ErrAccountNotFound, http.StatusUnauthorized},
	{domain.ErrAccountLocked, http.StatusLocked},
	{domain.ErrAccountDisabled, http.StatusForbidden},
	{domain.ErrAlreadySubscribed, http.StatusConflict},
	{domain.ErrDuplicate, http.StatusConflict},
}

// statusOf 返回业务错误对应的状态码，未知错误返回 500
func statusOf(err error) int {
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		return http.StatusBadRequest
	}
	for _, m := range errorStatus {
		if errors.Is(err, m.err) {
			return m.status
		}
	}
	return http.StatusInternalServerError
}

// respondError 将服务层错误写为响应
//
// 5xx 以 error 级别记录并返回统一的通用消息，不向客户端暴露内部细节。
func respondError(c *gin.Context, log *zap.Logger, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		log.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		_ = c.Error(err)
		InternalError(c)
		return
	}

	log.Debug("request rejected",
		zap.String("path", c.FullPath()),
		zap.Int("status", status),
		zap.Error(err),
	)

	resp := ErrorResponse{Success: false, Error: err.Error()}
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		resp.Error = "Validation failed"
		resp.Details = verr.Fields
	}
	c.JSON(status, resp)
}
