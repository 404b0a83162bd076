package auth

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"sitecms/backend/internal/auth/jwt"
	"sitecms/backend/internal/config"
	"sitecms/backend/internal/domain"
	"sitecms/backend/internal/query"
	"sitecms/backend/internal/storage/memory"
)

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

type fixture struct {
	svc   *Service
	store *memory.Store
	clock *testClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := &testClock{now: time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)}
	store := memory.NewStore()
	tokens := jwt.NewManager(strings.Repeat("s", 32), "sitecms-test", 24*time.Hour, jwt.WithClock(clock.Now))
	cfg := config.AuthConfig{
		SuperuserUsername: "root",
		SuperuserPassword: "root-secret-123",
		MaxLoginAttempts:  5,
		LockDuration:      2 * time.Hour,
	}
	svc := NewService(store.Accounts(), memory.NewBlacklist(), tokens, cfg, zap.NewNop(), WithClock(clock.Now))
	return &fixture{svc: svc, store: store, clock: clock}
}

func (f *fixture) register(t *testing.T, username, password string) *domain.Account {
	t.Helper()
	account, err := f.svc.Register(context.Background(), RegisterInput{
		Username: username,
		Email:    username + "@example.com",
		Password: password,
	})
	require.NoError(t, err)
	return account
}

func TestService_Register(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t.Run("成功注册默认为管理员", func(t *testing.T) {
		account := f.register(t, "Editor01", "Password123!")
		assert.Equal(t, "editor01", account.Username)
		assert.Equal(t, domain.RoleAdmin, account.Role)
		assert.True(t, account.Active)
		assert.NotEqual(t, "Password123!", account.PasswordHash)
	})

	t.Run("用户名重复", func(t *testing.T) {
		_, err := f.svc.Register(ctx, RegisterInput{Username: "editor01", Email: "other@example.com", Password: "Password123!"})
		assert.ErrorIs(t, err, domain.ErrDuplicate)
	})

	t.Run("与超级管理员同名", func(t *testing.T) {
		_, err := f.svc.Register(ctx, RegisterInput{Username: "root", Email: "root@example.com", Password: "Password123!"})
		assert.ErrorIs(t, err, domain.ErrDuplicate)
	})

	t.Run("字段校验汇总", func(t *testing.T) {
		_, err := f.svc.Register(ctx, RegisterInput{Username: "x", Email: "bad", Password: "short", Role: "owner"})
		var verr *domain.ValidationError
		require.ErrorAs(t, err, &verr)
		fields := make([]string, 0, len(verr.Fields))
		for _, fe := range verr.Fields {
			fields = append(fields, fe.Field)
		}
		assert.ElementsMatch(t, []string{"username", "email", "password", "role"}, fields)
	})
}

func TestService_Login(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	account := f.register(t, "alice", "Password123!")

	t.Run("登录成功", func(t *testing.T) {
		session, err := f.svc.Login(ctx, "Alice", "Password123!")
		require.NoError(t, err)
		assert.NotEmpty(t, session.Token)
		assert.Equal(t, account.ID.Hex(), session.User.ID)
		assert.Equal(t, domain.RoleAdmin, session.User.Role)

		stored, err := f.store.Accounts().FindByID(ctx, account.ID)
		require.NoError(t, err)
		require.NotNil(t, stored.LastLogin)
		assert.True(t, stored.LastLogin.Equal(f.clock.now))
	})

	t.Run("支持邮箱登录", func(t *testing.T) {
		_, err := f.svc.Login(ctx, "alice@example.com", "Password123!")
		assert.NoError(t, err)
	})

	t.Run("未知用户", func(t *testing.T) {
		_, err := f.svc.Login(ctx, "nobody", "Password123!")
		assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
	})

	t.Run("密码错误", func(t *testing.T) {
		_, err := f.svc.Login(ctx, "alice", "wrong-password")
		assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
	})

	t.Run("禁用账号", func(t *testing.T) {
		_, err := f.store.Accounts().Update(ctx, account.ID, query.Update{Set: map[string]any{"active": false}})
		require.NoError(t, err)
		_, err = f.svc.Login(ctx, "alice", "Password123!")
		assert.ErrorIs(t, err, domain.ErrAccountDisabled)
	})
}

func TestService_Lockout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	account := f.register(t, "bob", "Password123!")

	for i := 0; i < 5; i++ {
		_, err := f.svc.Login(ctx, "bob", "wrong-password")
		require.ErrorIs(t, err, domain.ErrInvalidCredentials)
	}

	stored, err := f.store.Accounts().FindByID(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, stored.LoginAttempts)
	require.NotNil(t, stored.LockUntil)
	assert.True(t, stored.IsLocked(f.clock.now))

	t.Run("锁定期内正确密码也被拒绝", func(t *testing.T) {
		_, err := f.svc.Login(ctx, "bob", "Password123!")
		assert.ErrorIs(t, err, domain.ErrAccountLocked)
	})

	t.Run("锁定期内错误密码不再累加", func(t *testing.T) {
		_, err := f.svc.Login(ctx, "bob", "wrong-password")
		assert.ErrorIs(t, err, domain.ErrAccountLocked)
		again, err := f.store.Accounts().FindByID(ctx, account.ID)
		require.NoError(t, err)
		assert.Equal(t, 5, again.LoginAttempts)
	})

	t.Run("窗口结束后可登录并清零", func(t *testing.T) {
		f.clock.now = f.clock.now.Add(2*time.Hour + time.Second)
		_, err := f.svc.Login(ctx, "bob", "Password123!")
		require.NoError(t, err)

		again, err := f.store.Accounts().FindByID(ctx, account.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, again.LoginAttempts)
		assert.Nil(t, again.LockUntil)
	})

	t.Run("窗口结束后重新计数", func(t *testing.T) {
		_, err := f.svc.Login(ctx, "bob", "wrong-password")
		require.ErrorIs(t, err, domain.ErrInvalidCredentials)
		again, err := f.store.Accounts().FindByID(ctx, account.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, again.LoginAttempts)
		assert.False(t, again.IsLocked(f.clock.now))
	})
}

func TestService_Superuser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t.Run("错误密码不锁定", func(t *testing.T) {
		for i := 0; i < 10; i++ {
			_, err := f.svc.Login(ctx, "root", "nope")
			require.ErrorIs(t, err, domain.ErrInvalidCredentials)
		}
		session, err := f.svc.Login(ctx, "root", "root-secret-123")
		require.NoError(t, err)
		assert.Equal(t, domain.SuperuserID, session.User.ID)
		assert.Equal(t, domain.RoleSuper, session.User.Role)

		principal, err := f.svc.Verify(ctx, session.Token)
		require.NoError(t, err)
		assert.True(t, principal.IsSuper())
	})

	t.Run("未配置密码时禁用", func(t *testing.T) {
		tokens := jwt.NewManager(strings.Repeat("s", 32), "sitecms-test", time.Hour)
		svc := NewService(f.store.Accounts(), memory.NewBlacklist(), tokens,
			config.AuthConfig{SuperuserUsername: "root"}, zap.NewNop())
		_, err := svc.Login(ctx, "root", "")
		assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
	})
}

func TestService_VerifyAndLogout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	account := f.register(t, "carol", "Password123!")

	session, err := f.svc.Login(ctx, "carol", "Password123!")
	require.NoError(t, err)

	t.Run("一小时后有效", func(t *testing.T) {
		f.clock.now = f.clock.now.Add(time.Hour)
		principal, err := f.svc.Verify(ctx, session.Token)
		require.NoError(t, err)
		assert.Equal(t, "carol", principal.Username)
	})

	t.Run("二十五小时后失效", func(t *testing.T) {
		saved := f.clock.now
		f.clock.now = saved.Add(24 * time.Hour)
		_, err := f.svc.Verify(ctx, session.Token)
		assert.ErrorIs(t, err, domain.ErrInvalidToken)
		f.clock.now = saved
	})

	t.Run("停用账号后校验失败", func(t *testing.T) {
		_, err := f.store.Accounts().Update(ctx, account.ID, query.Update{Set: map[string]any{"active": false}})
		require.NoError(t, err)
		_, err = f.svc.Verify(ctx, session.Token)
		assert.ErrorIs(t, err, domain.ErrAccountNotFound)

		_, err = f.store.Accounts().Update(ctx, account.ID, query.Update{Set: map[string]any{"active": true}})
		require.NoError(t, err)
	})

	t.Run("注销后校验失败", func(t *testing.T) {
		require.NoError(t, f.svc.Logout(ctx, session.Token))
		_, err := f.svc.Verify(ctx, session.Token)
		assert.ErrorIs(t, err, domain.ErrInvalidToken)
	})

	t.Run("删除账号后校验失败", func(t *testing.T) {
		fresh, err := f.svc.Login(ctx, "carol", "Password123!")
		require.NoError(t, err)
		require.NoError(t, f.store.Accounts().Delete(ctx, account.ID))
		_, err = f.svc.Verify(ctx, fresh.Token)
		assert.ErrorIs(t, err, domain.ErrAccountNotFound)
	})

	t.Run("无效令牌无法注销", func(t *testing.T) {
		assert.ErrorIs(t, f.svc.Logout(ctx, "garbage"), domain.ErrInvalidToken)
	})
}
