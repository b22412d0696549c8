package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"accounts-service/internal/config"
	"accounts-service/internal/db"
	apihttp "accounts-service/internal/http"
	"accounts-service/internal/notification"
	"accounts-service/internal/repository"
	"accounts-service/internal/service"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: loading .env: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	if cfg.AutoMigrate {
		if err := db.Migrate(cfg.DatabaseURL); err != nil {
			logger.Fatal("db migrate", zap.Error(err))
		}
	}

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		logger.Fatal("db connect", zap.Error(err))
	}
	defer pool.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer rdb.Close()
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis ping failed", zap.Error(err))
	}
	cancel()

	tokens, err := service.NewTokenService(service.TokenConfig{
		AccessSecret:  cfg.JWTSecret,
		RefreshSecret: cfg.JWTRefreshSecret,
		Algorithm:     cfg.JWTAlgorithm,
		AccessTTL:     cfg.AccessTTL(),
		RefreshTTL:    cfg.RefreshTTL(),
	})
	if err != nil {
		logger.Fatal("token service", zap.Error(err))
	}

	authSvc := service.NewAuthService(
		logger,
		repository.NewPgUserRepository(pool),
		service.NewBcryptHasher(bcrypt.DefaultCost),
		service.NewRedisOTPManager(rdb, cfg.OTPTTL()),
		tokens,
		notification.NewRedisPublisher(rdb, cfg.EmailQueue, cfg.EmailQueueMaxLen),
	)

	health := apihttp.NewHealthHandler(logger, map[string]apihttp.PingFunc{
		"postgres": func(ctx context.Context) error { return db.Ping(ctx, pool) },
		"redis":    func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
	})
	router := apihttp.NewRouter(logger, apihttp.RouterConfig{AllowOrigins: cfg.AllowOrigins}, authSvc, health)

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("starting server", zap.String("port", cfg.HTTPPort), zap.String("env", cfg.Env))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	// los dispatch en vuelo usan redis; esperar antes de cerrar el cliente
	authSvc.Wait()
}
