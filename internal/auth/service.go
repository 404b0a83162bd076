package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"sitecms/backend/internal/auth/jwt"
	"sitecms/backend/internal/config"
	"sitecms/backend/internal/domain"
	"sitecms/backend/internal/query"
	"sitecms/backend/internal/storage"
)

// lookupKind 登录标识解析结果的种类
type lookupKind int

const (
	lookupNotFound lookupKind = iota
	lookupSuperuser
	lookupStored
)

// lookup 登录标识的解析结果：内置超级管理员、已存储账号或不存在
type lookup struct {
	kind    lookupKind
	account *domain.Account
}

// Service 认证服务
type Service struct {
	accounts  storage.Collection[domain.Account]
	blacklist storage.TokenBlacklist
	tokens    *jwt.Manager
	cfg       config.AuthConfig
	log       *zap.Logger
	now       func() time.Time
}

// Option 定制认证服务
type Option func(*Service)

// WithClock 注入时钟
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService 创建认证服务
func NewService(
	accounts storage.Collection[domain.Account],
	blacklist storage.TokenBlacklist,
	tokens *jwt.Manager,
	cfg config.AuthConfig,
	log *zap.Logger,
	opts ...Option,
) *Service {
	if cfg.MaxLoginAttempts <= 0 {
		cfg.MaxLoginAttempts = 5
	}
	if cfg.LockDuration <= 0 {
		cfg.LockDuration = 2 * time.Hour
	}
	s := &Service{
		accounts:  accounts,
		blacklist: blacklist,
		tokens:    tokens,
		cfg:       cfg,
		log:       log,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterInput 注册输入
type RegisterInput struct {
	Username string          `json:"username"`
	Email    string          `json:"email"`
	Password string          `json:"password"`
	Role     domain.UserRole `json:"role"`
}

// Session 登录成功后的令牌与身份
type Session struct {
	Token     string           `json:"token"`
	ExpiresAt time.Time        `json:"expiresAt"`
	User      domain.Principal `json:"user"`
}

// Login 校验凭证并签发令牌
//
// 已存储账号连续失败达到阈值后锁定；锁定期内无论密码是否正确均返回 ErrAccountLocked。
// 内置超级管理员不参与锁定。
func (s *Service) Login(ctx context.Context, identifier, secret string) (*Session, error) {
	found, err := s.lookup(ctx, identifier)
	if err != nil {
		return nil, err
	}

	switch found.kind {
	case lookupSuperuser:
		if subtle.ConstantTimeCompare([]byte(secret), []byte(s.cfg.SuperuserPassword)) != 1 {
			s.log.Info("superuser login failed")
			return nil, domain.ErrInvalidCredentials
		}
		return s.issue(domain.Principal{
			ID:       domain.SuperuserID,
			Username: s.cfg.SuperuserUsername,
			Role:     domain.RoleSuper,
		})
	case lookupStored:
		return s.loginStored(ctx, found.account, secret)
	default:
		// 与密码错误保持同一响应，避免暴露账号是否存在
		return nil, domain.ErrInvalidCredentials
	}
}

func (s *Service) loginStored(ctx context.Context, account *domain.Account, secret string) (*Session, error) {
	if !account.Active {
		return nil, domain.ErrAccountDisabled
	}

	now := s.now()
	if account.LockUntil != nil && !account.IsLocked(now) {
		// 锁定窗口已过，先清零计数
		reset, err := s.accounts.Update(ctx, account.ID, query.Update{Set: map[string]any{
			"loginAttempts": 0,
			"lockUntil":     nil,
		}})
		if err != nil {
			return nil, fmt.Errorf("reset expired lock: %w", err)
		}
		account = reset
	}
	if account.IsLocked(now) {
		return nil, domain.ErrAccountLocked
	}

	if !CheckPassword(secret, account.PasswordHash) {
		if err := s.recordFailure(ctx, account, now); err != nil {
			return nil, err
		}
		return nil, domain.ErrInvalidCredentials
	}

	if _, err := s.accounts.Update(ctx, account.ID, query.Update{Set: map[string]any{
		"loginAttempts": 0,
		"lockUntil":     nil,
		"lastLogin":     now,
	}}); err != nil {
		return nil, fmt.Errorf("record login: %w", err)
	}

	return s.issue(principalOf(account))
}

func (s *Service) recordFailure(ctx context.Context, account *domain.Account, now time.Time) error {
	updated, err := s.accounts.Update(ctx, account.ID, query.Update{Inc: map[string]int64{"loginAttempts": 1}})
	if err != nil {
		return fmt.Errorf("record failed login: %w", err)
	}
	if updated.LoginAttempts < s.cfg.MaxLoginAttempts {
		return nil
	}

	lockUntil := now.Add(s.cfg.LockDuration)
	if _, err := s.accounts.Update(ctx, account.ID, query.Update{Set: map[string]any{"lockUntil": lockUntil}}); err != nil {
		return fmt.Errorf("lock account: %w", err)
	}
	s.log.Warn("account locked after repeated failures",
		zap.String("username", account.Username),
		zap.Int("attempts", updated.LoginAttempts),
		zap.Time("lock_until", lockUntil),
	)
	return nil
}

// Verify 校验令牌并返回当前身份
func (s *Service) Verify(ctx context.Context, token string) (*domain.Principal, error) {
	claims, err := s.tokens.ValidateToken(token)
	if err != nil {
		return nil, domain.ErrInvalidToken
	}

	revoked, err := s.blacklist.IsBlacklisted(ctx, claims.ID)
	if err != nil {
		return nil, fmt.Errorf("check token blacklist: %w", err)
	}
	if revoked {
		return nil, domain.ErrInvalidToken
	}

	if claims.AccountID == domain.SuperuserID {
		if !s.superuserEnabled() || claims.Username != s.cfg.SuperuserUsername {
			return nil, domain.ErrAccountNotFound
		}
		return &domain.Principal{ID: domain.SuperuserID, Username: claims.Username, Role: domain.RoleSuper}, nil
	}

	id, err := domain.ParseID(claims.AccountID)
	if err != nil {
		return nil, domain.ErrInvalidToken
	}
	account, err := s.accounts.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, fmt.Errorf("load account: %w", err)
	}
	if !account.Active {
		return nil, domain.ErrAccountNotFound
	}

	principal := principalOf(account)
	return &principal, nil
}

// Logout 将令牌加入黑名单直至其自然过期
func (s *Service) Logout(ctx context.Context, token string) error {
	claims, err := s.tokens.ValidateToken(token)
	if err != nil {
		return domain.ErrInvalidToken
	}

	ttl := claims.ExpiresAt.Time.Sub(s.now())
	if err := s.blacklist.AddToBlacklist(ctx, claims.ID, ttl); err != nil {
		return fmt.Errorf("blacklist token: %w", err)
	}
	return nil
}

// Register 创建后台账号，默认角色为 admin
func (s *Service) Register(ctx context.Context, input RegisterInput) (*domain.Account, error) {
	username := strings.ToLower(strings.TrimSpace(input.Username))
	email := domain.NormalizeEmail(input.Email)
	role := input.Role
	if role == "" {
		role = domain.RoleAdmin
	}

	verr := &domain.ValidationError{}
	if err := domain.ValidateUsername(username); err != nil {
		verr.Add("username", err.Error())
	}
	if err := domain.ValidateEmail(email); err != nil {
		verr.Add("email", err.Error())
	}
	if err := domain.ValidatePassword(input.Password); err != nil {
		verr.Add("password", err.Error())
	}
	verr.OneOf("role", string(role), domain.Roles)
	if err := verr.Err(); err != nil {
		return nil, err
	}

	if s.superuserEnabled() && username == s.cfg.SuperuserUsername {
		return nil, domain.ErrDuplicate
	}

	hash, err := HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := s.now()
	account := &domain.Account{
		ID:           domain.NewID(),
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.accounts.Insert(ctx, account); err != nil {
		if errors.Is(err, domain.ErrDuplicate) {
			return nil, domain.ErrDuplicate
		}
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	s.log.Info("account registered", zap.String("username", username), zap.String("role", string(role)))
	return account, nil
}

func (s *Service) lookup(ctx context.Context, identifier string) (lookup, error) {
	identifier = strings.ToLower(strings.TrimSpace(identifier))
	if identifier == "" {
		return lookup{kind: lookupNotFound}, nil
	}
	if s.superuserEnabled() && identifier == s.cfg.SuperuserUsername {
		return lookup{kind: lookupSuperuser}, nil
	}

	field := "username"
	if strings.Contains(identifier, "@") {
		field = "email"
	}
	account, err := s.accounts.FindOne(ctx, query.Where(query.Eq(field, identifier)))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return lookup{kind: lookupNotFound}, nil
		}
		return lookup{}, fmt.Errorf("find account: %w", err)
	}
	return lookup{kind: lookupStored, account: account}, nil
}

func (s *Service) superuserEnabled() bool {
	return s.cfg.SuperuserUsername != "" && s.cfg.SuperuserPassword != ""
}

func (s *Service) issue(principal domain.Principal) (*Session, error) {
	token, claims, err := s.tokens.Issue(principal.ID, principal.Username, string(principal.Role))
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, ExpiresAt: claims.ExpiresAt.Time, User: principal}, nil
}

func principalOf(account *domain.Account) domain.Principal {
	return domain.Principal{ID: account.ID.Hex(), Username: account.Username, Role: account.Role}
}

// HashPassword 哈希密码
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword 检查密码是否匹配
func CheckPassword(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}
