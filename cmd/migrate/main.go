package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"sitecms/backend/internal/config"
	"sitecms/backend/internal/logger"
	"sitecms/backend/internal/storage/mongodb"
)

// main 为 MongoDB 集合创建索引（唯一 slug、订阅邮箱、账号用户名与邮箱等）。
func main() {
	uri := flag.String("uri", "", "MongoDB 连接串，默认读取 SITECMS_DATABASE_URI")
	name := flag.String("db", "", "数据库名，默认读取 SITECMS_DATABASE_NAME")
	timeout := flag.Duration("timeout", time.Minute, "整体超时时间")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("错误: 加载配置失败: %v\n", err)
		os.Exit(1)
	}
	if *uri != "" {
		cfg.Database.URI = *uri
	}
	if *name != "" {
		cfg.Database.Name = *name
	}
	if cfg.Database.URI == "" {
		fmt.Println("用法:")
		fmt.Println("  go run ./cmd/migrate -uri='mongodb://localhost:27017' -db=sitecms")
		os.Exit(1)
	}

	log := logger.NewDevelopmentLogger()
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	store, err := mongodb.New(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal("failed to open database", zap.Error(err))
	}
	defer func() { _ = store.Close(context.Background()) }()

	if err := store.Ping(ctx); err != nil {
		log.Fatal("database unreachable", zap.Error(err))
	}
	if err := store.EnsureIndexes(ctx); err != nil {
		log.Fatal("failed to create indexes", zap.Error(err))
	}

	fmt.Printf("✓ 索引已创建: %s\n", cfg.Database.Name)
}
