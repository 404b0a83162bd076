package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// UserRole 账号角色
type UserRole string

const (
	RoleEditor UserRole = "editor"
	RoleAdmin  UserRole = "admin"
	RoleSuper  UserRole = "superadmin" // 配置内置的超级管理员，不落库
)

// Roles 可落库的角色
var Roles = []string{string(RoleEditor), string(RoleAdmin)}

// SuperuserID 内置超级管理员在令牌中的固定标识
const SuperuserID = "superuser"

// Account 表示后台登录账号
type Account struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Username      string             `bson:"username" json:"username"`
	Email         string             `bson:"email" json:"email"`
	PasswordHash  string             `bson:"passwordHash" json:"-"` // 不返回给前端
	Role          UserRole           `bson:"role" json:"role"`
	Active        bool               `bson:"active" json:"active"`
	LoginAttempts int                `bson:"loginAttempts" json:"-"`
	LockUntil     *time.Time         `bson:"lockUntil" json:"-"`
	LastLogin     *time.Time         `bson:"lastLogin,omitempty" json:"lastLogin,omitempty"`
	CreatedAt     time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt     time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// IsLocked 判断账号在 now 时刻是否处于锁定窗口内
func (a *Account) IsLocked(now time.Time) bool {
	return a.LockUntil != nil && a.LockUntil.After(now)
}

// Principal 令牌校验通过后的身份
type Principal struct {
	ID       string   `json:"id"`
	Username string   `json:"username"`
	Role     UserRole `json:"role"`
}

// IsSuper 判断是否为内置超级管理员
func (p *Principal) IsSuper() bool {
	return p.Role == RoleSuper && p.ID == SuperuserID
}
