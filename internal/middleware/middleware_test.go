package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"sitecms/backend/internal/domain"
	"sitecms/backend/internal/monitoring"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// MockVerifier 模拟令牌校验
type MockVerifier struct {
	mock.Mock
}

func (m *MockVerifier) Verify(ctx context.Context, token string) (*domain.Principal, error) {
	args := m.Called(ctx, token)
	if p := args.Get(0); p != nil {
		return p.(*domain.Principal), args.Error(1)
	}
	return nil, args.Error(1)
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestRequireAuth(t *testing.T) {
	newRouter := func(v Verifier) *gin.Engine {
		r := gin.New()
		r.GET("/private", NewJWTAuth(v, zap.NewNop()).RequireAuth(), func(c *gin.Context) {
			p, ok := PrincipalFrom(c)
			require.True(t, ok)
			c.JSON(http.StatusOK, gin.H{"id": p.ID, "userID": c.GetString(ContextUserID)})
		})
		return r
	}

	t.Run("缺少令牌返回401", func(t *testing.T) {
		v := &MockVerifier{}
		w := httptest.NewRecorder()
		r := newRouter(v)
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/private", nil))

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, false, decode(t, w)["success"])
		v.AssertNotCalled(t, "Verify", mock.Anything, mock.Anything)
	})

	t.Run("非Bearer方案视为缺少令牌", func(t *testing.T) {
		v := &MockVerifier{}
		req := httptest.NewRequest(http.MethodGet, "/private", nil)
		req.Header.Set("Authorization", "Basic abc")
		w := httptest.NewRecorder()
		newRouter(v).ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		v.AssertNotCalled(t, "Verify", mock.Anything, mock.Anything)
	})

	t.Run("有效令牌写入身份", func(t *testing.T) {
		v := &MockVerifier{}
		v.On("Verify", mock.Anything, "good").Return(&domain.Principal{ID: "abc", Username: "editor", Role: domain.RoleAdmin}, nil)
		req := httptest.NewRequest(http.MethodGet, "/private", nil)
		req.Header.Set("Authorization", "Bearer good")
		w := httptest.NewRecorder()
		newRouter(v).ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		body := decode(t, w)
		assert.Equal(t, "abc", body["id"])
		assert.Equal(t, "abc", body["userID"])
		v.AssertExpectations(t)
	})

	t.Run("无效令牌与已删除账号返回401", func(t *testing.T) {
		for _, err := range []error{domain.ErrInvalidToken, domain.ErrAccountNotFound} {
			v := &MockVerifier{}
			v.On("Verify", mock.Anything, "bad").Return(nil, err)
			req := httptest.NewRequest(http.MethodGet, "/private", nil)
			req.Header.Set("Authorization", "bearer bad")
			w := httptest.NewRecorder()
			newRouter(v).ServeHTTP(w, req)

			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Equal(t, err.Error(), decode(t, w)["error"])
		}
	})

	t.Run("存储故障返回500", func(t *testing.T) {
		v := &MockVerifier{}
		v.On("Verify", mock.Anything, "tok").Return(nil, errors.New("redis down"))
		req := httptest.NewRequest(http.MethodGet, "/private", nil)
		req.Header.Set("Authorization", "Bearer tok")
		w := httptest.NewRecorder()
		newRouter(v).ServeHTTP(w, req)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, "Something went wrong!", decode(t, w)["error"])
	})
}

func TestRecoveryHandler(t *testing.T) {
	metrics := monitoring.NewMetrics()
	r := gin.New()
	r.Use(RecoveryHandler(zap.NewNop(), metrics))
	r.GET("/boom", func(c *gin.Context) {
		panic("boom")
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Something went wrong!", decode(t, w)["error"])
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.PanicsTotal))
}

func TestSecurityHeaders(t *testing.T) {
	r := gin.New()
	r.Use(SecurityHeaders())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
}

func TestBodySizeLimit(t *testing.T) {
	newRouter := func() *gin.Engine {
		r := gin.New()
		r.Use(BodySizeLimit(4 * 1024 * 1024))
		r.POST("/echo", func(c *gin.Context) {
			data, err := io.ReadAll(c.Request.Body)
			if err != nil {
				c.Status(http.StatusRequestEntityTooLarge)
				return
			}
			c.String(http.StatusOK, "%d", len(data))
		})
		return r
	}

	t.Run("JSON请求超过1MB被拒绝", func(t *testing.T) {
		body := bytes.Repeat([]byte("a"), SmallBodyLimit+1)
		req := httptest.NewRequest(http.MethodPost, "/echo", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		newRouter().ServeHTTP(w, req)

		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	})

	t.Run("multipart请求使用上传上限", func(t *testing.T) {
		body := bytes.Repeat([]byte("a"), 2*1024*1024)
		req := httptest.NewRequest(http.MethodPost, "/echo", bytes.NewReader(body))
		req.Header.Set("Content-Type", "multipart/form-data; boundary=x")
		w := httptest.NewRecorder()
		newRouter().ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "5242880", w.Header().Get("X-Max-Body-Size"))
	})

	t.Run("小请求正常通过", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader(`{"a":1}`))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		newRouter().ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "7", w.Body.String())
	})
}

func TestHTTPMetrics(t *testing.T) {
	metrics := monitoring.NewMetrics()
	r := gin.New()
	r.Use(HTTPMetrics(metrics))
	r.GET("/api/blogs/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, path := range []string{"/api/blogs/1", "/api/blogs/2", "/missing"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.HTTPRequestsTotal.WithLabelValues("GET", "/api/blogs/:id", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.HTTPRequestsTotal.WithLabelValues("GET", "unmatched", "404")))
}
