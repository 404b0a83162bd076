package monitoring

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	t.Run("多实例互不冲突", func(t *testing.T) {
		assert.NotPanics(t, func() {
			NewMetrics()
			NewMetrics()
		})
	})

	t.Run("记录业务指标", func(t *testing.T) {
		m := NewMetrics()
		m.RecordBlogView()
		m.RecordBlogView()
		m.RecordCampaign("sent", 3, 1)
		m.RecordLogin("locked")

		assert.Equal(t, 2.0, testutil.ToFloat64(m.BlogViews))
		assert.Equal(t, 3.0, testutil.ToFloat64(m.EmailDeliveries.WithLabelValues("sent")))
		assert.Equal(t, 1.0, testutil.ToFloat64(m.EmailDeliveries.WithLabelValues("failed")))
		assert.Equal(t, 1.0, testutil.ToFloat64(m.LoginAttempts.WithLabelValues("locked")))
	})

	t.Run("nil 接收者不 panic", func(t *testing.T) {
		var m *Metrics
		assert.NotPanics(t, func() {
			m.RecordBlogView()
			m.RecordHTTPRequest("GET", "/api/blogs", "200", time.Millisecond, 10)
			m.RecordUpload("newsletters", 100)
		})
	})

	t.Run("暴露指标端点", func(t *testing.T) {
		m := NewMetrics()
		m.RecordHTTPRequest("GET", "/api/blogs", "200", 10*time.Millisecond, 512)

		rec := httptest.NewRecorder()
		m.HTTPHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `sitecms_http_requests_total{endpoint="/api/blogs",method="GET",status_code="200"} 1`)
		assert.Contains(t, rec.Body.String(), "go_goroutines")
	})
}
