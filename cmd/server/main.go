package main

import (
	"context"
	"encoding/base64"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"trfc-backend/internal/cache"
	"trfc-backend/internal/config"
	"trfc-backend/internal/db"
	"trfc-backend/internal/handler"
	"trfc-backend/internal/register"
	"trfc-backend/internal/repository"
	"trfc-backend/internal/server"
	"trfc-backend/internal/service"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"
)

func main() {
	cfg, err := config.Load()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	if err != nil {
		logger.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pg, err := db.New(ctx, cfg)
	if err != nil {
		logger.Error("failed to connect database", "err", err)
		os.Exit(1)
	}
	defer pg.Close()

	// Firebase Auth (optional)
	var firebaseAuth *auth.Client
	if cfg.FirebaseProjectID != "" {
		app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.FirebaseProjectID}, firebaseOptions(cfg)...)
		if err != nil {
			logger.Error("failed to init firebase app", "err", err)
			os.Exit(1)
		}
		client, err := app.Auth(ctx)
		if err != nil {
			logger.Error("failed to init firebase auth", "err", err)
			os.Exit(1)
		}
		firebaseAuth = client
	}

	// repositories
	userRepo := repository.UserRepository{DB: pg}
	registerRepo := repository.RegisterRepository{DB: pg}
	activityRepo := repository.ActivityLogRepository{DB: pg}
	shopRepo := repository.ShopRepository{DB: pg}

	engine := &register.Engine{
		Store:  registerRepo,
		Users:  userRepo,
		Audit:  activityRepo,
		Cache:  cache.Noop{},
		Logger: logger,
	}
	healthHandler := handler.HealthHandler{DB: pg}

	// Redis (optional): day cache and save locks
	if cfg.RedisURL != "" {
		rdb, err := cache.Connect(ctx, cfg.RedisURL)
		if err != nil {
			logger.Warn("redis unavailable; register cache disabled", "err", err)
		} else {
			defer rdb.Close()
			redisCache := cache.NewRedisCache(rdb, cfg.RegisterCacheTTL)
			engine.Cache = redisCache
			engine.Locks = cache.NewLocks(rdb, cfg.SaveLockTTL)
			healthHandler.Cache = redisCache
			logger.Info("register cache enabled", "ttl", cfg.RegisterCacheTTL)
		}
	}

	// services
	authSvc := service.AuthService{Config: cfg, Users: userRepo, Logger: logger, FirebaseAuth: firebaseAuth}

	router := server.NewRouter(cfg, logger, server.Handlers{
		Health:   healthHandler,
		Docs:     handler.DocsHandler{},
		Auth:     handler.AuthHandler{Service: &authSvc},
		Register: handler.RegisterHandler{Engine: engine, Logger: logger},
		Shops:    handler.ShopHandler{Engine: engine, Shops: shopRepo},
		Logs:     handler.ActivityLogHandler{Engine: engine, Repo: activityRepo},
	})

	if err := server.Start(ctx, cfg, router, logger); err != nil {
		logger.Error("server error", "err", err)
		os.Exit(1)
	}
}

func firebaseOptions(cfg config.Config) []option.ClientOption {
	if cfg.FirebaseCredFile == "" {
		return nil
	}

	cred := cfg.FirebaseCredFile
	// Allow inline JSON or base64-encoded JSON in env to avoid writing a file.
	if strings.HasPrefix(strings.TrimSpace(cred), "{") {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(cred))}
	}
	if decoded, err := base64.StdEncoding.DecodeString(cred); err == nil && strings.HasPrefix(strings.TrimSpace(string(decoded)), "{") {
		return []option.ClientOption{option.WithCredentialsJSON(decoded)}
	}

	return []option.ClientOption{option.WithCredentialsFile(cred)}
}
