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

	"booking-payment-service/config"
	"booking-payment-service/internal/api"
	"booking-payment-service/internal/broker"
	"booking-payment-service/internal/chain"
	"booking-payment-service/internal/redisclient"
	"booking-payment-service/internal/service"
	"booking-payment-service/internal/store"
	"booking-payment-service/internal/util"
	"booking-payment-service/internal/worker"

	"github.com/gin-gonic/gin"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting booking payment service")

	tp, err := util.InitTracer("booking-payment-service", cfg.Observ.JaegerEndpoint)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("Error shutting down tracer: %v", err)
		}
	}()

	registry, err := config.LoadChainRegistry(cfg.Verify.ChainConfig)
	if err != nil {
		log.Fatalf("Invalid chain configuration: %v", err)
	}
	log.Printf("Chain registry loaded: %d chains", len(registry.ChainIDs()))

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Database connected")

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()
	log.Println("Redis connected")

	dialCtx, dialCancel := context.WithTimeout(context.Background(), 30*time.Second)
	chainClient, err := chain.NewClient(dialCtx, registry)
	dialCancel()
	if err != nil {
		log.Fatalf("Failed to connect to chain RPC endpoints: %v", err)
	}
	defer chainClient.Close()
	log.Println("Chain clients connected")

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicNotification)
	defer producer.Close()
	log.Println("Kafka producer initialized")

	eventPublisher := broker.NewEventPublisher(producer)

	resolver := service.NewResolver(registry)
	reconciler := service.NewReconciler(
		db, chainClient, resolver, redisClient, eventPublisher,
		cfg.Verify.MaxRetries, cfg.Verify.RetryDelay)

	queue := worker.NewVerificationQueue(cfg.Verify.QueueSize)
	bookingService := service.NewBookingService(db, redisClient, resolver, queue, cfg.Business)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	verificationWorker := worker.NewVerificationWorker(queue, reconciler, cfg.Verify.Concurrency)
	go func() {
		if err := verificationWorker.Start(workerCtx); err != nil && err != context.Canceled {
			log.Printf("Verification worker error: %v", err)
		}
	}()

	notificationConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicNotification, cfg.Kafka.ConsumerGroup)
	notificationRelay := worker.NewNotificationRelay(notificationConsumer)
	go func() {
		if err := notificationRelay.Start(workerCtx); err != nil && err != context.Canceled {
			log.Printf("Notification relay error: %v", err)
		}
	}()

	expirySweeper := worker.NewExpirySweeper(db, cfg.Business.ExpirySweepInterval)
	go func() {
		if err := expirySweeper.Start(workerCtx); err != nil && err != context.Canceled {
			log.Printf("Expiry sweeper error: %v", err)
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()
	handler := api.NewHandler(bookingService)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Printf("Starting HTTP server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	workerCancel()
	verificationWorker.Stop()
	notificationRelay.Stop()

	log.Println("Server exited")
}
