package httptransport

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"sitecms/backend/internal/domain"
	"sitecms/backend/internal/query"
)

// Response 统一响应结构
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
}

// ListResponse 分页列表响应
type ListResponse struct {
	Success    bool        `json:"success"`
	Data       interface{} `json:"data"`
	Pagination Pagination  `json:"pagination"`
}

// Pagination 分页信息
type Pagination struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"totalPages"`
}

// ErrorResponse 错误响应
type ErrorResponse struct {
	Success bool                `json:"success"`
	Error   string              `json:"error"`
	Details []domain.FieldError `json:"details,omitempty"`
}

// Success 成功响应（200）
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{Success: true, Data: data})
}

// SuccessWithMsg 成功响应（自定义消息）
func SuccessWithMsg(c *gin.Context, msg string, data interface{}) {
	c.JSON(http.StatusOK, Response{Success: true, Data: data, Message: msg})
}

// Created 创建成功响应（201）
func Created(c *gin.Context, msg string, data interface{}) {
	c.JSON(http.StatusCreated, Response{Success: true, Data: data, Message: msg})
}

// List 分页列表响应
func List[T any](c *gin.Context, page *query.Page[T]) {
	c.JSON(http.StatusOK, ListResponse{
		Success: true,
		Data:    page.Items,
		Pagination: Pagination{
			Page:       page.Page,
			Limit:      page.Limit,
			Total:      page.Total,
			TotalPages: page.TotalPages,
		},
	})
}

// Error 通用错误响应
func Error(c *gin.Context, httpCode int, msg string) {
	c.JSON(httpCode, ErrorResponse{Success: false, Error: msg})
}

// BadRequest 请求参数错误（400）
func BadRequest(c *gin.Context, msg string) {
	Error(c, http.StatusBadRequest, msg)
}

// Unauthorized 未认证错误（401）
func Unauthorized(c *gin.Context, msg string) {
	Error(c, http.StatusUnauthorized, msg)
}

// InternalError 服务器内部错误（500），与 panic 恢复使用同一响应体
func InternalError(c *gin.Context) {
	c.JSON(http.StatusInternalServerError, gin.H{"error": MsgInternalError})
}
