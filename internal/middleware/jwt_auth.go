package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"sitecms/backend/internal/domain"
)

// 上下文键
const (
	ContextPrincipal = "principal"
	ContextUserID    = "userID"
	ContextToken     = "token"
)

// Verifier 校验令牌并返回身份
type Verifier interface {
	Verify(ctx context.Context, token string) (*domain.Principal, error)
}

// JWTAuth JWT认证中间件
type JWTAuth struct {
	verifier Verifier
	log      *zap.Logger
}

// NewJWTAuth 创建JWT认证中间件
func NewJWTAuth(verifier Verifier, log *zap.Logger) *JWTAuth {
	return &JWTAuth{verifier: verifier, log: log}
}

// RequireAuth 要求携带有效的 Bearer 令牌
func (ja *JWTAuth) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := BearerToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "Access denied. No token provided.",
			})
			return
		}

		principal, err := ja.verifier.Verify(c.Request.Context(), token)
		if err != nil {
			if errors.Is(err, domain.ErrInvalidToken) || errors.Is(err, domain.ErrAccountNotFound) {
				ja.log.Debug("token rejected",
					zap.String("error", err.Error()),
					zap.String("ip", c.ClientIP()),
				)
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"success": false,
					"error":   err.Error(),
				})
				return
			}
			ja.log.Error("token verification failed", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": "Something went wrong!",
			})
			return
		}

		// 将身份存储到上下文
		c.Set(ContextPrincipal, principal)
		c.Set(ContextUserID, principal.ID)
		c.Set(ContextToken, token)

		c.Next()
	}
}

// PrincipalFrom 读取 RequireAuth 写入的身份
func PrincipalFrom(c *gin.Context) (*domain.Principal, bool) {
	v, ok := c.Get(ContextPrincipal)
	if !ok {
		return nil, false
	}
	p, ok := v.(*domain.Principal)
	return p, ok
}

// BearerToken 从 Authorization 头提取令牌
func BearerToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return ""
	}
	scheme, token, ok := strings.Cut(authHeader, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
