package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"accounts-service/internal/config"
	"accounts-service/internal/email"
	"accounts-service/internal/notification"
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

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer rdb.Close()

	sender := email.NewDisabledSender("email sender not configured")
	if cfg.SMTPHost != "" {
		smtpSender, err := email.NewSMTPSender(email.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUser,
			Password: cfg.SMTPPass,
			From:     cfg.SMTPFrom,
			FromName: cfg.SMTPFromName,
			UseTLS:   cfg.SMTPUseTLS,
		})
		if err != nil {
			logger.Warn("smtp sender init failed", zap.Error(err))
		} else {
			sender = smtpSender
		}
	}

	consumer := notification.NewConsumer(logger, rdb, sender, notification.ConsumerConfig{
		Stream:   cfg.EmailQueue,
		Group:    cfg.MailerGroup,
		Consumer: cfg.MailerConsumer,
	})

	logger.Info("starting mailer",
		zap.String("stream", cfg.EmailQueue),
		zap.String("group", cfg.MailerGroup),
		zap.String("consumer", cfg.MailerConsumer),
	)
	if err := consumer.Run(ctx); err != nil {
		logger.Fatal("mailer stopped", zap.Error(err))
	}
	logger.Info("mailer stopped")
}
