package httptransport

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"sitecms/backend/internal/auth"
	"sitecms/backend/internal/domain"
	"sitecms/backend/internal/middleware"
	"sitecms/backend/internal/monitoring"
)

// AuthHandler 处理认证相关的 HTTP 请求
type AuthHandler struct {
	authService *auth.Service       // 认证业务服务
	metrics     *monitoring.Metrics // 登录结果计数
	log         *zap.Logger         // 结构化日志记录器
}

// NewAuthHandler 创建新的认证处理器实例
func NewAuthHandler(authService *auth.Service, metrics *monitoring.Metrics, log *zap.Logger) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		metrics:     metrics,
		log:         log,
	}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Success   bool             `json:"success"`
	Token     string           `json:"token"`
	ExpiresAt string           `json:"expiresAt"`
	User      domain.Principal `json:"user"`
}

type accountResponse struct {
	ID       string          `json:"id"`
	Username string          `json:"username"`
	Email    string          `json:"email"`
	Role     domain.UserRole `json:"role"`
	Active   bool            `json:"isActive"`
}

// Login 校验凭证并签发令牌
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, h.log, err)
		return
	}

	v := &domain.ValidationError{}
	v.Require("username", req.Username)
	v.Require("password", req.Password)
	if err := v.Err(); err != nil {
		respondError(c, h.log, err)
		return
	}

	session, err := h.authService.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		h.metrics.RecordLogin(loginResult(err))
		if errors.Is(err, domain.ErrInvalidCredentials) || errors.Is(err, domain.ErrAccountLocked) {
			h.log.Info("login rejected",
				zap.String("username", req.Username),
				zap.String("ip", c.ClientIP()),
				zap.Error(err),
			)
		}
		respondError(c, h.log, err)
		return
	}
	h.metrics.RecordLogin("success")

	c.JSON(http.StatusOK, loginResponse{
		Success:   true,
		Token:     session.Token,
		ExpiresAt: session.ExpiresAt.Format(time.RFC3339),
		User:      session.User,
	})
}

func loginResult(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, domain.ErrAccountLocked):
		return "locked"
	case errors.Is(err, domain.ErrAccountDisabled):
		return "disabled"
	default:
		return "error"
	}
}

// Register 创建后台账号
func (h *AuthHandler) Register(c *gin.Context) {
	var req auth.RegisterInput
	if err := bindJSON(c, &req); err != nil {
		respondError(c, h.log, err)
		return
	}

	account, err := h.authService.Register(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	Created(c, "Account created successfully", accountResponse{
		ID:       account.ID.Hex(),
		Username: account.Username,
		Email:    account.Email,
		Role:     account.Role,
		Active:   account.Active,
	})
}

// Verify 返回当前令牌对应的身份
func (h *AuthHandler) Verify(c *gin.Context) {
	principal, ok := middleware.PrincipalFrom(c)
	if !ok {
		Unauthorized(c, MsgAuthRequired)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "user": principal})
}

// Logout 注销当前令牌
func (h *AuthHandler) Logout(c *gin.Context) {
	token := c.GetString(middleware.ContextToken)
	if err := h.authService.Logout(c.Request.Context(), token); err != nil {
		respondError(c, h.log, err)
		return
	}
	SuccessWithMsg(c, "Logged out successfully", nil)
}
