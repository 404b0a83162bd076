package httptransport

import (
	"net/http"
	"time"

	gincors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"sitecms/backend/internal/auth"
	"sitecms/backend/internal/config"
	"sitecms/backend/internal/health"
	"sitecms/backend/internal/middleware"
	"sitecms/backend/internal/monitoring"
	"sitecms/backend/internal/service"
	"sitecms/backend/internal/upload"
)

// RouterDependencies 路由器依赖项
type RouterDependencies struct {
	Config             *config.Config
	AuthService        *auth.Service
	BlogService        *service.BlogService
	TestimonialService *service.TestimonialService
	ContactService     *service.ContactService
	NewsletterService  *service.NewsletterService
	Uploads            *upload.Manager
	Health             *health.HealthChecker
	Metrics            *monitoring.Metrics
	Logger             *zap.Logger
}

// NewRouter 创建并返回 Gin 路由实例。
func NewRouter(deps RouterDependencies) *gin.Engine {
	log := deps.Logger
	router := gin.New()

	router.Use(middleware.RecoveryHandler(log, deps.Metrics))
	router.Use(middleware.RequestLogger(log))
	router.Use(middleware.HTTPMetrics(deps.Metrics))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.BodySizeLimit(deps.Uploads.MaxSize(upload.PurposeNewsletters)))
	router.Use(gincors.New(corsConfig(deps.Config.CORS.AllowedOrigins)))

	authHandler := NewAuthHandler(deps.AuthService, deps.Metrics, log)
	blogHandler := NewBlogHandler(deps.BlogService, log)
	testimonialHandler := NewTestimonialHandler(deps.TestimonialService, log)
	contactHandler := NewContactHandler(deps.ContactService, log)
	newsletterHandler := NewNewsletterHandler(deps.NewsletterService, log)

	requireAuth := middleware.NewJWTAuth(deps.AuthService, log).RequireAuth()

	// 健康检查与指标
	router.GET("/health", healthHandler(deps.Health))
	router.GET("/health/live", gin.WrapF(deps.Health.LiveHandler()))
	router.GET("/health/ready", gin.WrapF(deps.Health.ReadyHandler()))
	router.GET("/metrics", gin.WrapH(deps.Metrics.HTTPHandler()))

	// 上传文件静态访问
	router.Static(upload.PublicPrefix, deps.Uploads.Root())

	api := router.Group("/api")
	{
		// ========== Auth Routes ==========
		authRoutes := api.Group("/auth")
		{
			authRoutes.POST("/login", authHandler.Login)
			authRoutes.POST("/register", authHandler.Register)
			authRoutes.GET("/verify", requireAuth, authHandler.Verify)
			authRoutes.POST("/logout", requireAuth, authHandler.Logout)
		}

		// ========== Blog Routes ==========
		blogRoutes := api.Group("/blogs")
		{
			blogRoutes.GET("", blogHandler.List)
			blogRoutes.GET("/published", blogHandler.ListPublished)
			blogRoutes.GET("/featured/list", blogHandler.Featured)
			blogRoutes.GET("/categories/list", blogHandler.Categories)
			blogRoutes.GET("/slug/:slug", blogHandler.GetBySlug)
			blogRoutes.GET("/stats/overview", requireAuth, blogHandler.Stats)
			blogRoutes.GET("/:id", blogHandler.Get)
			blogRoutes.POST("/:id/like", blogHandler.Like)

			blogRoutes.POST("", requireAuth, blogHandler.Create)
			blogRoutes.PUT("/:id", requireAuth, blogHandler.Update)
			blogRoutes.DELETE("/:id", requireAuth, blogHandler.Delete)
		}

		// ========== Testimonial Routes ==========
		testimonialRoutes := api.Group("/testimonials")
		{
			testimonialRoutes.GET("/public", testimonialHandler.ListPublic)
			testimonialRoutes.GET("/featured/list", testimonialHandler.Featured)

			testimonialRoutes.GET("", requireAuth, testimonialHandler.List)
			testimonialRoutes.POST("", requireAuth, testimonialHandler.Create)
			testimonialRoutes.GET("/stats/overview", requireAuth, testimonialHandler.Stats)
			testimonialRoutes.GET("/:id", requireAuth, testimonialHandler.Get)
			testimonialRoutes.PUT("/:id", requireAuth, testimonialHandler.Update)
			testimonialRoutes.DELETE("/:id", requireAuth, testimonialHandler.Delete)
			testimonialRoutes.PATCH("/:id/toggle-active", requireAuth, testimonialHandler.ToggleActive)
			testimonialRoutes.PATCH("/:id/toggle-featured", requireAuth, testimonialHandler.ToggleFeatured)
		}

		// ========== Contact Routes ==========
		contactRoutes := api.Group("/contacts")
		{
			contactRoutes.POST("", contactHandler.Create)

			contactRoutes.GET("", requireAuth, contactHandler.List)
			contactRoutes.GET("/stats/overview", requireAuth, contactHandler.Stats)
			contactRoutes.GET("/:id", requireAuth, contactHandler.Get)
			contactRoutes.PUT("/:id", requireAuth, contactHandler.Update)
			contactRoutes.DELETE("/:id", requireAuth, contactHandler.Delete)
			contactRoutes.PATCH("/:id/read", requireAuth, contactHandler.MarkRead)
			contactRoutes.PATCH("/:id/replied", requireAuth, contactHandler.MarkReplied)
			contactRoutes.PATCH("/:id/priority", requireAuth, contactHandler.SetPriority)
		}

		// ========== Newsletter Routes ==========
		newsletterRoutes := api.Group("/newsletter")
		{
			newsletterRoutes.POST("/subscribe", newsletterHandler.Subscribe)
			newsletterRoutes.POST("/unsubscribe", newsletterHandler.Unsubscribe)
			newsletterRoutes.GET("/uploads/public", newsletterHandler.ListPublicUploads)
			newsletterRoutes.GET("/uploads/:id/download", newsletterHandler.Download)

			admin := newsletterRoutes.Group("", requireAuth)
			admin.GET("/subscribers", newsletterHandler.ListSubscribers)
			admin.GET("/subscribers/:id", newsletterHandler.GetSubscriber)
			admin.DELETE("/subscribers/:id", newsletterHandler.DeleteSubscriber)
			admin.PATCH("/subscribers/:id/resubscribe", newsletterHandler.Resubscribe)

			admin.GET("/uploads", newsletterHandler.ListUploads)
			admin.GET("/uploads/categories/list", newsletterHandler.UploadCategories)
			admin.POST("/uploads", newsletterHandler.CreateUpload)
			admin.GET("/uploads/:id", newsletterHandler.GetUpload)
			admin.PUT("/uploads/:id", newsletterHandler.UpdateUpload)
			admin.DELETE("/uploads/:id", newsletterHandler.DeleteUpload)
			admin.PATCH("/uploads/:id/toggle-active", newsletterHandler.ToggleUploadActive)

			admin.POST("/send", newsletterHandler.Send)
			admin.GET("/campaigns", newsletterHandler.ListCampaigns)
			admin.GET("/campaigns/:id", newsletterHandler.GetCampaign)
			admin.DELETE("/campaigns/:id", newsletterHandler.DeleteCampaign)

			admin.GET("/stats/overview", newsletterHandler.Stats)
		}
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": MsgRouteNotFound})
	})

	return router
}

func corsConfig(origins []string) gincors.Config {
	cfg := gincors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}

	// 如果允许所有来源，则需清空凭证支持。
	for _, origin := range cfg.AllowOrigins {
		if origin == "*" {
			cfg.AllowOrigins = nil
			cfg.AllowAllOrigins = true
			cfg.AllowCredentials = false
			break
		}
	}
	return cfg
}

// healthHandler 汇总存储等依赖的连通性，任一失败返回 503
func healthHandler(hc *health.HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		checks, ok := hc.CheckHealth(c.Request.Context())
		status := http.StatusOK
		state := "OK"
		if !ok {
			status = http.StatusServiceUnavailable
			state = "DEGRADED"
		}
		c.JSON(status, gin.H{"status": state, "checks": checks})
	}
}
