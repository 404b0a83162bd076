package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const defaultJWTSecret = "change-me-in-production"

// ServerConfig 定义 HTTP 服务器的监听配置参数
type ServerConfig struct {
	Host string // 监听地址，默认 "0.0.0.0"
	Port int    // 监听端口，默认 8080
}

// CORSConfig 定义跨域资源共享 (CORS) 配置
type CORSConfig struct {
	AllowedOrigins []string // 允许的来源列表，"*" 表示允许所有来源
}

// LogConfig 定义日志系统配置
type LogConfig struct {
	Level       string // 日志级别: debug, info, warn, error
	Development bool   // 开发模式: 启用彩色输出和详细堆栈信息
	File        string // 日志文件路径，留空只输出到控制台
}

// DatabaseConfig 定义 MongoDB 连接配置
type DatabaseConfig struct {
	URI            string        // 连接串，留空时使用内存存储
	Name           string        // 数据库名，默认 "sitecms"
	ConnectTimeout time.Duration // 建立连接的超时时间，仅在启动时生效
}

// RedisConfig 定义 Redis 配置，仅用于令牌黑名单
type RedisConfig struct {
	Address  string // Redis 服务地址，留空时使用进程内黑名单
	Password string // Redis 认证密码，留空表示无密码
	DB       int    // Redis 数据库编号，默认 0
}

// JWTConfig 定义 JWT 认证相关配置
type JWTConfig struct {
	Secret string        // JWT 签名密钥，必须至少 32 字符
	Issuer string        // JWT 签发者标识，默认 "sitecms"
	Expiry time.Duration // 令牌有效期，默认 24 小时
}

// AuthConfig 定义登录与锁定策略
type AuthConfig struct {
	SuperuserUsername string        // 内置超级管理员用户名
	SuperuserPassword string        // 内置超级管理员密码，留空时禁用
	MaxLoginAttempts  int           // 连续失败多少次后锁定，默认 5
	LockDuration      time.Duration // 锁定时长，默认 2 小时
}

// UploadConfig 定义上传目录与大小限制
type UploadConfig struct {
	Dir               string // 上传根目录，默认 "./uploads"
	BlogImageMaxSize  int64  // 博客图片上限（字节），默认 10 MiB
	NewsletterMaxSize int64  // 期刊 PDF 上限（字节），默认 50 MiB
}

// MailConfig 定义邮件发送配置
type MailConfig struct {
	Mode     string // "log" 仅记录日志，"smtp" 通过 SMTP 投递
	SMTPAddr string // SMTP 服务器地址，格式 "host:port"
	Username string // SMTP 认证用户名，留空表示不认证
	Password string // SMTP 认证密码
	From     string // 发件人地址
	Workers  int    // 并发投递数，默认 4

	DialTimeout       time.Duration // 建立连接超时，默认 10s
	CommandTimeout    time.Duration // 单条 SMTP 命令超时，默认 30s
	SubmissionTimeout time.Duration // 正文提交超时，默认 2m

	// UnsubscribeURL 退订页面地址，非空时在邮件中附带 List-Unsubscribe 头
	UnsubscribeURL string
}

// SchedulerConfig 定义定时任务配置
type SchedulerConfig struct {
	PublishSpec    string // 定时发布检查的 cron 表达式，默认 "@every 1m"
	IndexRetrySpec string // 索引创建失败后的重试间隔，默认 "@every 1m"
}

// Config 是系统核心配置的根结构体，包含所有子系统的配置
type Config struct {
	Server    ServerConfig
	CORS      CORSConfig
	Log       LogConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Auth      AuthConfig
	Upload    UploadConfig
	Mail      MailConfig
	Scheduler SchedulerConfig
}

// Load 从环境变量和 .env 文件加载系统配置
//
// 配置加载优先级（从高到低）：
//  1. 系统环境变量
//  2. .env 文件（如果存在）
//  3. 默认值
//
// 环境变量前缀: SITECMS_，例如 SITECMS_SERVER_PORT, SITECMS_JWT_SECRET
//
// 返回值:
//   - *Config: 加载成功的配置对象
//   - error: 配置验证失败时返回错误
func Load() (*Config, error) {
	loadEnvFile()

	viper.SetEnvPrefix("sitecms")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("cors.allowed_origins", "*")
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.development", false)
	viper.SetDefault("log.file", "")
	viper.SetDefault("database.uri", "") // 默认为空，使用内存存储
	viper.SetDefault("database.name", "sitecms")
	viper.SetDefault("database.connect_timeout", "10s")
	viper.SetDefault("redis.address", "")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("jwt.secret", defaultJWTSecret)
	viper.SetDefault("jwt.issuer", "sitecms")
	viper.SetDefault("jwt.expiry", "24h")
	viper.SetDefault("auth.superuser_username", "admin")
	viper.SetDefault("auth.superuser_password", "")
	viper.SetDefault("auth.max_login_attempts", 5)
	viper.SetDefault("auth.lock_duration", "2h")
	viper.SetDefault("upload.dir", "./uploads")
	viper.SetDefault("upload.blog_image_max_size", 10<<20)
	viper.SetDefault("upload.newsletter_max_size", 50<<20)
	viper.SetDefault("mail.mode", "log")
	viper.SetDefault("mail.smtp_addr", "")
	viper.SetDefault("mail.username", "")
	viper.SetDefault("mail.password", "")
	viper.SetDefault("mail.from", "newsletter@sitecms.local")
	viper.SetDefault("mail.workers", 4)
	viper.SetDefault("mail.dial_timeout", "10s")
	viper.SetDefault("mail.command_timeout", "30s")
	viper.SetDefault("mail.submission_timeout", "2m")
	viper.SetDefault("mail.unsubscribe_url", "")
	viper.SetDefault("scheduler.publish_spec", "@every 1m")
	viper.SetDefault("scheduler.index_retry_spec", "@every 1m")

	corsOrigins := parseList(viper.GetString("cors.allowed_origins"))
	if len(corsOrigins) == 0 {
		corsOrigins = []string{"*"}
	}

	connectTimeout, err := time.ParseDuration(viper.GetString("database.connect_timeout"))
	if err != nil {
		connectTimeout = 10 * time.Second
	}

	expiry, err := time.ParseDuration(viper.GetString("jwt.expiry"))
	if err != nil {
		return nil, fmt.Errorf("invalid jwt.expiry: %w", err)
	}

	lockDuration, err := time.ParseDuration(viper.GetString("auth.lock_duration"))
	if err != nil {
		return nil, fmt.Errorf("invalid auth.lock_duration: %w", err)
	}

	maxAttempts := viper.GetInt("auth.max_login_attempts")
	if maxAttempts <= 0 {
		maxAttempts = 5
	}

	jwtSecret := viper.GetString("jwt.secret")

	// 安全检查：禁止使用默认的 JWT secret
	if jwtSecret == defaultJWTSecret {
		return nil, fmt.Errorf("SECURITY ERROR: JWT secret cannot be the default value. Please set SITECMS_JWT_SECRET environment variable")
	}

	// JWT secret 必须至少 32 字符
	if len(jwtSecret) < 32 {
		return nil, fmt.Errorf("SECURITY ERROR: JWT secret must be at least 32 characters long")
	}

	blogMax := viper.GetInt64("upload.blog_image_max_size")
	newsletterMax := viper.GetInt64("upload.newsletter_max_size")
	if blogMax <= 0 || newsletterMax <= 0 {
		return nil, fmt.Errorf("upload size limits must be positive")
	}

	mailMode := strings.ToLower(viper.GetString("mail.mode"))
	switch mailMode {
	case "log":
	case "smtp":
		if viper.GetString("mail.smtp_addr") == "" {
			return nil, fmt.Errorf("mail.smtp_addr is required when mail.mode is smtp")
		}
	default:
		return nil, fmt.Errorf("unknown mail.mode %q", mailMode)
	}

	workers := viper.GetInt("mail.workers")
	if workers <= 0 {
		workers = 4
	}

	mailTimeouts := make(map[string]time.Duration, 3)
	for _, key := range []string{"mail.dial_timeout", "mail.command_timeout", "mail.submission_timeout"} {
		d, err := time.ParseDuration(viper.GetString(key))
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("invalid %s: must be a positive duration", key)
		}
		mailTimeouts[key] = d
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: viper.GetString("server.host"),
			Port: viper.GetInt("server.port"),
		},
		CORS: CORSConfig{
			AllowedOrigins: corsOrigins,
		},
		Log: LogConfig{
			Level:       viper.GetString("log.level"),
			Development: viper.GetBool("log.development"),
			File:        viper.GetString("log.file"),
		},
		Database: DatabaseConfig{
			URI:            viper.GetString("database.uri"),
			Name:           viper.GetString("database.name"),
			ConnectTimeout: connectTimeout,
		},
		Redis: RedisConfig{
			Address:  viper.GetString("redis.address"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Secret: jwtSecret,
			Issuer: viper.GetString("jwt.issuer"),
			Expiry: expiry,
		},
		Auth: AuthConfig{
			SuperuserUsername: strings.ToLower(strings.TrimSpace(viper.GetString("auth.superuser_username"))),
			SuperuserPassword: viper.GetString("auth.superuser_password"),
			MaxLoginAttempts:  maxAttempts,
			LockDuration:      lockDuration,
		},
		Upload: UploadConfig{
			Dir:               viper.GetString("upload.dir"),
			BlogImageMaxSize:  blogMax,
			NewsletterMaxSize: newsletterMax,
		},
		Mail: MailConfig{
			Mode:     mailMode,
			SMTPAddr: viper.GetString("mail.smtp_addr"),
			Username: viper.GetString("mail.username"),
			Password: viper.GetString("mail.password"),
			From:     viper.GetString("mail.from"),
			Workers:  workers,

			DialTimeout:       mailTimeouts["mail.dial_timeout"],
			CommandTimeout:    mailTimeouts["mail.command_timeout"],
			SubmissionTimeout: mailTimeouts["mail.submission_timeout"],

			UnsubscribeURL: viper.GetString("mail.unsubscribe_url"),
		},
		Scheduler: SchedulerConfig{
			PublishSpec:    viper.GetString("scheduler.publish_spec"),
			IndexRetrySpec: viper.GetString("scheduler.index_retry_spec"),
		},
	}

	return cfg, nil
}

// parseList 将逗号分隔的字符串解析为字符串切片
//
// 参数:
//   - value: 逗号分隔的字符串，如 "item1,item2,item3"
//
// 返回值:
//   - []string: 解析后的字符串切片，已去除空白字符
func parseList(value string) []string {
	parts := strings.Split(value, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}

// loadEnvFile 尝试加载 .env 文件
//
// 文件不存在时静默跳过；已存在的环境变量不会被覆盖。
func loadEnvFile() {
	if err := godotenv.Load(".env"); err == nil {
		return
	}

	parentEnv := filepath.Join("..", ".env")
	if _, err := os.Stat(parentEnv); err == nil {
		_ = godotenv.Load(parentEnv)
	}
}
