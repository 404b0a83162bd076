package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"sitecms/backend/internal/auth"
	"sitecms/backend/internal/auth/jwt"
	"sitecms/backend/internal/config"
	"sitecms/backend/internal/domain"
	"sitecms/backend/internal/logger"
	"sitecms/backend/internal/storage/memory"
	"sitecms/backend/internal/storage/mongodb"
)

func main() {
	if len(os.Args) < 4 {
		fmt.Println("Usage: create-admin <username> <email> <password> [admin|editor]")
		os.Exit(1)
	}

	input := auth.RegisterInput{
		Username: os.Args[1],
		Email:    os.Args[2],
		Password: os.Args[3],
		Role:     domain.RoleAdmin,
	}
	if len(os.Args) >= 5 {
		input.Role = domain.UserRole(os.Args[4])
	}

	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if cfg.Database.URI == "" {
		fmt.Println("SITECMS_DATABASE_URI is required: accounts created without a database would be lost on exit")
		os.Exit(1)
	}

	log := logger.NewDevelopmentLogger()
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := mongodb.New(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal("failed to open database", zap.Error(err))
	}
	defer func() { _ = store.Close(context.Background()) }()

	// 注册流程不会用到黑名单与令牌
	tokens := jwt.NewManager(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.Expiry)
	authService := auth.NewService(store.Accounts(), memory.NewBlacklist(), tokens, cfg.Auth, log)

	account, err := authService.Register(ctx, input)
	if err != nil {
		fmt.Printf("Failed to create account: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("✓ Account created successfully!\n")
	fmt.Printf("  ID:       %s\n", account.ID.Hex())
	fmt.Printf("  Email:    %s\n", account.Email)
	fmt.Printf("  Username: %s\n", account.Username)
	fmt.Printf("  Role:     %s\n", account.Role)
}
