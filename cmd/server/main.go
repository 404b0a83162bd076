package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"sitecms/backend/internal/auth"
	jwtpkg "sitecms/backend/internal/auth/jwt"
	"sitecms/backend/internal/config"
	"sitecms/backend/internal/health"
	"sitecms/backend/internal/logger"
	"sitecms/backend/internal/mailer"
	"sitecms/backend/internal/monitoring"
	"sitecms/backend/internal/scheduler"
	"sitecms/backend/internal/service"
	"sitecms/backend/internal/storage"
	"sitecms/backend/internal/storage/memory"
	"sitecms/backend/internal/storage/mongodb"
	redisstore "sitecms/backend/internal/storage/redis"
	httptransport "sitecms/backend/internal/transport/http"
	"sitecms/backend/internal/upload"
)

const version = "1.0.0"

// main 启动 HTTP API 与定时发布任务。
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	// 设置 Gin 模式（基于开发环境标志）
	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// 初始化日志系统
	log, err := logger.NewLogger(logger.Config{
		Level:       cfg.Log.Level,
		Development: cfg.Log.Development,
		LogFile:     cfg.Log.File,
		MaxSize:     100,
		MaxBackups:  3,
		MaxAge:      28,
		Compress:    true,
		Service:     "sitecms",
	})
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer func() { _ = log.Sync() }()

	log.Info("starting sitecms server",
		zap.String("version", version),
		zap.String("log_level", cfg.Log.Level),
		zap.Bool("development", cfg.Log.Development),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 初始化存储层
	store, err := openStore(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to initialize storage", zap.Error(err))
	}

	uploads, err := upload.NewManager(cfg.Upload, log)
	if err != nil {
		log.Fatal("failed to initialize upload manager", zap.Error(err))
	}
	if err := uploads.EnsureDirs(); err != nil {
		log.Fatal("failed to create upload directories", zap.Error(err))
	}

	metrics := monitoring.NewMetrics()
	healthChecker := health.NewHealthChecker(store, uploads.Root(), log)

	// 令牌黑名单：配置 Redis 时使用 Redis，连接失败退回进程内黑名单
	blacklist, closeBlacklist := openBlacklist(cfg, healthChecker, log)
	defer closeBlacklist()

	outbound, err := mailer.New(cfg.Mail, log)
	if err != nil {
		log.Fatal("failed to initialize mailer", zap.Error(err))
	}

	jwtManager := jwtpkg.NewManager(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.Expiry)
	log.Info("JWT configuration",
		zap.String("issuer", cfg.JWT.Issuer),
		zap.Duration("expiry", cfg.JWT.Expiry),
	)
	authService := auth.NewService(store.Accounts(), blacklist, jwtManager, cfg.Auth, log)
	if cfg.Auth.SuperuserPassword == "" {
		log.Warn("superuser login disabled: no superuser password configured")
	}

	// 初始化服务层
	blogService := service.NewBlogService(store.Blogs(), uploads, metrics, log)
	testimonialService := service.NewTestimonialService(store.Testimonials(), log)
	contactService := service.NewContactService(store.Contacts(), log)
	newsletterService := service.NewNewsletterService(store, uploads, outbound, cfg.Mail, metrics, log)

	publisher, err := scheduler.New(cfg.Scheduler.PublishSpec, blogService, log)
	if err != nil {
		log.Fatal("failed to initialize scheduler", zap.Error(err))
	}
	if ix, ok := store.(scheduler.IndexEnsurer); ok && !ix.IndexesReady() {
		if err := publisher.RetryIndexes(cfg.Scheduler.IndexRetrySpec, ix); err != nil {
			log.Fatal("failed to schedule index retry", zap.Error(err))
		}
		log.Warn("indexes missing, retrying in background", zap.String("spec", cfg.Scheduler.IndexRetrySpec))
	}

	// 创建 HTTP 服务器
	httpAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	router := httptransport.NewRouter(httptransport.RouterDependencies{
		Config:             cfg,
		AuthService:        authService,
		BlogService:        blogService,
		TestimonialService: testimonialService,
		ContactService:     contactService,
		NewsletterService:  newsletterService,
		Uploads:            uploads,
		Health:             healthChecker,
		Metrics:            metrics,
		Logger:             log,
	})

	httpServer := &http.Server{
		Addr:              httpAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       2 * time.Minute,
		// 群发在请求内同步完成
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)

	// HTTP 服务器 goroutine
	group.Go(func() error {
		log.Info("starting HTTP server", zap.String("address", httpAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server error", zap.Error(err))
			return err
		}
		return nil
	})

	// 定时发布 goroutine
	group.Go(func() error {
		return publisher.Run(groupCtx)
	})

	// 优雅关闭 goroutine
	group.Go(func() error {
		<-groupCtx.Done()
		log.Info("shutdown signal received, gracefully shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP server shutdown error", zap.Error(err))
		}
		if err := store.Close(shutdownCtx); err != nil {
			log.Warn("store close warning", zap.Error(err))
		}

		log.Info("servers stopped")
		return nil
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal("server error", zap.Error(err))
	}

	log.Info("server exited cleanly")
}

// openStore 配置 MongoDB 连接串时使用 MongoDB，否则使用内存存储
//
// MongoDB 暂时不可达时不阻止启动，索引创建失败只记录日志。
func openStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (storage.Store, error) {
	if cfg.Database.URI == "" {
		log.Info("using memory storage (development mode)")
		return memory.NewStore(), nil
	}

	store, err := mongodb.New(ctx, cfg.Database, log)
	if err != nil {
		return nil, err
	}

	indexCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := store.EnsureIndexes(indexCtx); err != nil {
		log.Error("failed to ensure indexes, continuing in degraded mode", zap.Error(err))
	}

	log.Info("using MongoDB storage", zap.String("database", cfg.Database.Name))
	return store, nil
}

func openBlacklist(cfg *config.Config, hc *health.HealthChecker, log *zap.Logger) (storage.TokenBlacklist, func()) {
	if cfg.Redis.Address == "" {
		log.Info("using in-memory token blacklist")
		return memory.NewBlacklist(), func() {}
	}

	client, err := redisstore.New(cfg.Redis, log)
	if err != nil {
		log.Warn("failed to connect to Redis, falling back to in-memory token blacklist", zap.Error(err))
		return memory.NewBlacklist(), func() {}
	}
	hc.AddDependency("redis", client)
	return client, func() {
		if err := client.Close(); err != nil {
			log.Warn("redis close warning", zap.Error(err))
		}
	}
}
