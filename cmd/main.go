package main

import (
	"chatcore/backend/internal/accounts"
	"chatcore/backend/internal/aiconv"
	"chatcore/backend/internal/api/handler"
	"chatcore/backend/internal/chathub"
	"chatcore/backend/internal/config"
	"chatcore/backend/internal/database"
	"chatcore/backend/internal/delivery"
	"chatcore/backend/internal/membership"
	"chatcore/backend/internal/messaging"
	"chatcore/backend/internal/presence"
	"chatcore/backend/internal/reaction"
	"chatcore/backend/internal/scheduler"
	"chatcore/backend/internal/storage"
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

func setupDependencies(ctx context.Context, cfg config.Config) (*gorm.DB, *redis.Client) {
	// 1. Database
	db, err := database.Open(database.Options{
		Driver:             cfg.DBDriver,
		DSN:                cfg.DBDSN,
		LogLevel:           cfg.LogLevel,
		SlowQueryThreshold: cfg.SlowQueryThreshold,
	})
	if err != nil {
		log.Fatalf("Failed to connect database: %v", err)
	}

	// 2. Migrations
	if err := database.Migrate(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// 3. Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		log.Fatalf("Failed to connect Redis: %v", err)
	}

	log.Println("Database and Redis connections established, migrations complete.")
	return db, rdb
}

func main() {
	log.Println("Starting chatcore backend...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, rdb := setupDependencies(ctx, cfg)
	defer rdb.Close()
	s := storage.NewStorageService(db, rdb)

	svc := handler.Services{
		Accounts:  accounts.NewService(s),
		Members:   membership.NewService(s, s),
		Messages:  messaging.NewService(s, s),
		Delivery:  delivery.NewService(s, s),
		Reactions: reaction.NewService(s, s),
		AI:        aiconv.NewService(s),
	}
	online := presence.NewService(s, cfg.PresenceTTL)

	// Hub: fan-out of committed events to connected clients
	hub := chathub.NewManagerService(svc.Members, svc.Messages, svc.Delivery, online)
	hub.StartPubSubListener(ctx, s.SubscribeSessions(ctx))
	go hub.Run(ctx)

	// Maintenance jobs
	jobs := scheduler.NewService()
	if err := jobs.Register(scheduler.MaintenanceTasks(svc.Members, online, cfg.ArchiveSchedule, cfg.PresenceSweepSchedule)...); err != nil {
		log.Fatalf("Failed to schedule maintenance tasks: %v", err)
	}
	jobs.Start()
	defer jobs.Stop()

	r := gin.Default()
	handler.NewHandler(hub, handler.NewTokenIssuer(cfg.JWTSecret, cfg.JWTTTL), svc).Routes(r)

	server := &http.Server{
		Addr:           cfg.HTTPAddr,
		Handler:        r,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		log.Printf("INFO: [Server] Listening on %s", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("INFO: [Server] Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("ERROR: [Server] Graceful shutdown failed: %v", err)
	}
}
