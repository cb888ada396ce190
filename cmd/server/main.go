package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"kwetu-store/config"
	"kwetu-store/internal/api"
	"kwetu-store/internal/auth"
	"kwetu-store/internal/broker"
	"kwetu-store/internal/payment"
	"kwetu-store/internal/realtime"
	"kwetu-store/internal/redisclient"
	"kwetu-store/internal/service"
	"kwetu-store/internal/storage"
	"kwetu-store/internal/store"
	"kwetu-store/internal/util"
	"kwetu-store/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const uploadsPath = "/uploads/product-images"

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env, "kwetu-store"); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting African Kwetu Store backend")

	tp, err := util.InitTracer("kwetu-store", cfg.Observ.JaegerEndpoint, cfg.Server.Env)
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Warn("Error shutting down tracer", zap.Error(err))
		}
	}()

	db, err := store.NewStore(cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	migrateCtx, migrateCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := db.Migrate(migrateCtx); err != nil {
		migrateCancel()
		logger.Fatal("Failed to apply migrations", zap.Error(err))
	}
	migrateCancel()
	logger.Info("Database connected")

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	logger.Info("Redis connected")

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicStore)
	defer producer.Close()
	eventPublisher := broker.NewEventPublisher(producer)
	logger.Info("Kafka producer initialized", zap.String("topic", cfg.Kafka.TopicStore))

	if cfg.Stripe.SecretKey == "" {
		logger.Warn("STRIPE_SECRET_KEY is not set; checkout will fail")
	}
	gateway := payment.NewStripeGateway(cfg.Stripe.SecretKey, cfg.Stripe.Currency)

	images, err := storage.NewImageStore(cfg.Storage.Dir, cfg.Storage.PublicBaseURL)
	if err != nil {
		logger.Fatal("Failed to prepare image storage", zap.Error(err))
	}

	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()

	hub := realtime.NewHub(64)
	go hub.Run(bgCtx)

	listener := realtime.NewListener(cfg.Database.URL, hub)
	go func() {
		if err := listener.Run(bgCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Change feed stopped", zap.Error(err))
		}
	}()

	jwtManager := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)
	hasher := auth.NewPasswordHasher(auth.DefaultBcryptCost)

	services := api.Services{
		Auth:      service.NewAuthService(db, redisClient, eventPublisher, jwtManager, hasher, cfg.Auth.ResetTokenTTL),
		Catalog:   service.NewCatalogService(db, images),
		Cart:      service.NewCartService(db, db),
		Checkout:  service.NewCheckoutService(db, db, gateway, redisClient, cfg.Server.FrontendURL),
		Verifier:  service.NewPaymentVerifier(gateway, db, db, redisClient, eventPublisher, cfg.Business.VerifyClaimTTL),
		Orders:    service.NewOrderService(db, db, eventPublisher),
		Chat:      service.NewChatService(db, db, hub),
		Dashboard: service.NewDashboardService(db, db, hub, cfg.Business.LowStockThreshold),
		Admins:    service.NewAdminService(db, eventPublisher),
		Roles:     db,
	}

	consumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicStore, cfg.Kafka.ConsumerGroup)
	notificationWorker := worker.NewNotificationWorker(consumer, worker.NewLogMailer(), db, cfg.Server.FrontendURL)
	go func() {
		if err := notificationWorker.Start(bgCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Notification worker error", zap.Error(err))
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(services, api.Options{
		UploadsDir:    images.Dir(),
		UploadsPath:   uploadsPath,
		MaxUploadSize: cfg.Storage.MaxUploadSize,
		Readiness: map[string]api.Pinger{
			"postgres": db,
			"redis":    redisClient,
		},
	})
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Open SSE streams end with the hub, so stop it before draining HTTP.
	bgCancel()
	hub.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Server forced to shutdown", zap.Error(err))
	}

	if err := notificationWorker.Stop(); err != nil {
		logger.Warn("Error stopping notification worker", zap.Error(err))
	}

	logger.Info("Server exited")
}
