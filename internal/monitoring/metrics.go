package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 监控指标
//
// 所有 Record 方法允许接收者为 nil，未启用监控时调用方无需判空。
type Metrics struct {
	registry *prometheus.Registry

	// HTTP 请求指标
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// 认证指标
	LoginAttempts *prometheus.CounterVec

	// 内容指标
	BlogViews       prometheus.Counter
	BlogsPublished  prometheus.Counter
	UploadsStored   *prometheus.CounterVec
	UploadBytes     *prometheus.HistogramVec
	Downloads       prometheus.Counter
	Subscriptions   *prometheus.CounterVec
	CampaignsSent   *prometheus.CounterVec
	EmailDeliveries *prometheus.CounterVec

	// 错误指标
	ErrorsTotal *prometheus.CounterVec
	PanicsTotal prometheus.Counter
}

// NewMetrics 在独立注册表上创建监控指标，同时注册 Go 运行时与进程指标
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		HTTPRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitecms_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),

		HTTPRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sitecms_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		HTTPResponseSize: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sitecms_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 8),
			},
			[]string{"method", "endpoint"},
		),

		LoginAttempts: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitecms_login_attempts_total",
				Help: "Login attempts by result",
			},
			[]string{"result"},
		),

		BlogViews: f.NewCounter(
			prometheus.CounterOpts{
				Name: "sitecms_blog_views_total",
				Help: "Total number of blog post views",
			},
		),

		BlogsPublished: f.NewCounter(
			prometheus.CounterOpts{
				Name: "sitecms_blogs_scheduled_published_total",
				Help: "Scheduled blog posts published by the scheduler",
			},
		),

		UploadsStored: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitecms_uploads_total",
				Help: "Stored uploads by purpose",
			},
			[]string{"purpose"},
		),

		UploadBytes: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sitecms_upload_size_bytes",
				Help:    "Upload size in bytes",
				Buckets: prometheus.ExponentialBuckets(1024, 4, 10),
			},
			[]string{"purpose"},
		),

		Downloads: f.NewCounter(
			prometheus.CounterOpts{
				Name: "sitecms_newsletter_downloads_total",
				Help: "Successful newsletter PDF downloads",
			},
		),

		Subscriptions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitecms_newsletter_subscriptions_total",
				Help: "Subscription changes by action",
			},
			[]string{"action"},
		),

		CampaignsSent: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitecms_campaigns_total",
				Help: "Campaigns by final status",
			},
			[]string{"status"},
		),

		EmailDeliveries: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitecms_email_deliveries_total",
				Help: "Individual campaign email deliveries by result",
			},
			[]string{"result"},
		),

		ErrorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitecms_errors_total",
				Help: "Total number of errors",
			},
			[]string{"type", "component"},
		),

		PanicsTotal: f.NewCounter(
			prometheus.CounterOpts{
				Name: "sitecms_panics_total",
				Help: "Total number of panics",
			},
		),
	}
}

// Registry 返回指标注册表
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordHTTPRequest 记录 HTTP 请求指标
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, duration time.Duration, responseSize int64) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
	if responseSize >= 0 {
		m.HTTPResponseSize.WithLabelValues(method, endpoint).Observe(float64(responseSize))
	}
}

// RecordLogin 记录登录结果
func (m *Metrics) RecordLogin(result string) {
	if m == nil {
		return
	}
	m.LoginAttempts.WithLabelValues(result).Inc()
}

// RecordBlogView 记录文章阅读
func (m *Metrics) RecordBlogView() {
	if m == nil {
		return
	}
	m.BlogViews.Inc()
}

// RecordBlogsPublished 记录定时发布的文章数
func (m *Metrics) RecordBlogsPublished(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.BlogsPublished.Add(float64(count))
}

// RecordUpload 记录上传文件
func (m *Metrics) RecordUpload(purpose string, size int64) {
	if m == nil {
		return
	}
	m.UploadsStored.WithLabelValues(purpose).Inc()
	m.UploadBytes.WithLabelValues(purpose).Observe(float64(size))
}

// RecordDownload 记录期刊下载
func (m *Metrics) RecordDownload() {
	if m == nil {
		return
	}
	m.Downloads.Inc()
}

// RecordSubscription 记录订阅变化，action 为 subscribe / resubscribe / unsubscribe
func (m *Metrics) RecordSubscription(action string) {
	if m == nil {
		return
	}
	m.Subscriptions.WithLabelValues(action).Inc()
}

// RecordCampaign 记录一次群发的结果
func (m *Metrics) RecordCampaign(status string, sent, failed int) {
	if m == nil {
		return
	}
	m.CampaignsSent.WithLabelValues(status).Inc()
	m.EmailDeliveries.WithLabelValues("sent").Add(float64(sent))
	m.EmailDeliveries.WithLabelValues("failed").Add(float64(failed))
}

// RecordError 记录错误
func (m *Metrics) RecordError(errorType, component string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType, component).Inc()
}

// RecordPanic 记录 panic
func (m *Metrics) RecordPanic() {
	if m == nil {
		return
	}
	m.PanicsTotal.Inc()
}

// HTTPHandler 返回 Prometheus HTTP 处理器
func (m *Metrics) HTTPHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
