package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	// SmallBodyLimit 普通 JSON 请求
	SmallBodyLimit = 1 * 1024 * 1024 // 1MB

	// multipart 表单除文件外的额外开销
	multipartOverhead = 1 * 1024 * 1024
)

// BodySizeLimit 按内容类型限制请求体大小
//
// multipart 请求的上限为 uploadLimit 加上表单开销，其余请求为 SmallBodyLimit。
// 实际文件大小仍由上传管理器按用途校验。
func BodySizeLimit(uploadLimit int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := int64(SmallBodyLimit)
		if strings.HasPrefix(c.GetHeader("Content-Type"), "multipart/form-data") {
			limit = uploadLimit + multipartOverhead
		}

		// 检查 Content-Length 头
		if c.Request.ContentLength > limit {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{
				"success": false,
				"error":   "Request body too large",
				"details": fmt.Sprintf("Request body exceeds maximum size of %d bytes", limit),
			})
			return
		}

		// 限制请求体读取大小
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		c.Header("X-Max-Body-Size", strconv.FormatInt(limit, 10))

		c.Next()
	}
}
