package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jiahaoliu666/aws-blog-sub002/internal/config"
	"github.com/jiahaoliu666/aws-blog-sub002/internal/infrastructure/discord"
	"github.com/jiahaoliu666/aws-blog-sub002/internal/infrastructure/dynamo"
	"github.com/jiahaoliu666/aws-blog-sub002/internal/infrastructure/email"
	jwtinfra "github.com/jiahaoliu666/aws-blog-sub002/internal/infrastructure/jwt"
	redisinfra "github.com/jiahaoliu666/aws-blog-sub002/internal/infrastructure/redis"
	s3infra "github.com/jiahaoliu666/aws-blog-sub002/internal/infrastructure/s3"
	"github.com/jiahaoliu666/aws-blog-sub002/internal/infrastructure/snspush"
	"github.com/jiahaoliu666/aws-blog-sub002/internal/pkg/ratelimit"
	transporthttp "github.com/jiahaoliu666/aws-blog-sub002/internal/transport/http"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading from environment")
	}

	cfg := config.Load()

	// Bootstrap DynamoDB tables (creates them if they don't exist).
	dynamoClient := dynamo.NewClient(cfg)
	dynamo.Bootstrap(context.Background(), dynamoClient, cfg.DynamoTables)

	// Redis cache (verification secrets + settings).
	redisClient, err := redisinfra.Connect(context.Background(), cfg.RedisURL)
	if err != nil {
		log.Fatalf("redis connect: %v", err)
	}
	cache := redisinfra.NewCache(redisClient)

	// JWT provider (optional — graceful fallback if the public key is missing).
	var jwtProvider *jwtinfra.Provider
	if p, err := jwtinfra.NewProvider(cfg); err == nil {
		jwtProvider = p
	} else {
		log.Printf("WARN: JWT provider not available: %v", err)
	}

	// S3 dead-letter archive for dropped notifications.
	s3Client := s3infra.NewClient(cfg)
	archive := s3infra.NewArchive(s3Client, cfg.DeadLetterBucket)

	// Outbound channel senders.
	mailer := email.NewMailer(cfg)
	batchMailer := email.NewBatchSender(mailer, cfg.EmailBatchSize, cfg.EmailPerSecond)
	discordSender := discord.NewSender(cfg.SendTimeout)

	var pushSender snspush.Sender
	if sender, err := snspush.NewSender(cfg); err == nil {
		pushSender = sender
	} else {
		log.Printf("WARN: SNS sender not available: %v", err)
	}

	sendLimiter := ratelimit.New(ratelimit.Config{
		MaxRequests:  cfg.RateMaxRequests,
		Window:       cfg.RateWindow,
		TokensPerSec: cfg.RateTokensPerSec,
	}, nil)

	deps := &transporthttp.Deps{
		UserRepo:         dynamo.NewUserRepo(dynamoClient, cfg.DynamoTables.Users),
		VerificationRepo: dynamo.NewVerificationRepo(dynamoClient, cfg.DynamoTables.UserVerifications),
		NotificationRepo: dynamo.NewNotificationRepo(dynamoClient, cfg.DynamoTables.Notifications),
		FailedRepo:       dynamo.NewFailedNotificationRepo(dynamoClient, cfg.DynamoTables.FailedNotifications),
		Cache:            cache,
		Archive:          archive,
		Mailer:           mailer,
		BatchMailer:      batchMailer,
		DiscordSender:    discordSender,
		PushSender:       pushSender,
		SendLimiter:      sendLimiter,
		JWTProvider:      jwtProvider,
	}

	router, dispatchSvc := transporthttp.NewRouter(cfg, deps)

	// Periodic failed-queue sweep.
	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.SweepSchedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if report, err := dispatchSvc.ProcessFailedNotifications(ctx); err != nil {
			log.Printf("failed-queue sweep error: %v", err)
		} else if report.Processed > 0 {
			log.Printf("failed-queue sweep: processed=%d succeeded=%d dropped=%d",
				report.Processed, report.Succeeded, report.Dropped)
		}
	}); err != nil {
		log.Fatalf("invalid sweep schedule %q: %v", cfg.SweepSchedule, err)
	}
	scheduler.Start()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.AppPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server starting on :%s (env=%s)", cfg.AppPort, cfg.AppEnv)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	scheduler.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("forced shutdown: %v", err)
	}
	_ = redisClient.Close()
	log.Println("Server stopped")
}
