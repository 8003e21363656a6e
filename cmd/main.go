package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"billdesk/internal/analytics"
	"billdesk/internal/caching"
	"billdesk/internal/common"
	"billdesk/internal/config"
	_ "billdesk/internal/docs"
	"billdesk/internal/handlers"
	"billdesk/internal/jobs"
	"billdesk/internal/jobs/background"
	"billdesk/internal/middleware"
	"billdesk/internal/repositories"
	"billdesk/internal/services"
	"billdesk/pkg/database"

	"github.com/golang-jwt/jwt/v5"
	"github.com/hibiken/asynq"
	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"
	echoSwagger "github.com/swaggo/echo-swagger"
)

const version = "1.0.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Invalid configuration: %v", err)
	}
	cfg.SetupLogging()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Database connection
	pool, err := database.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logrus.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()
	if err := database.EnsureSchema(ctx, pool); err != nil {
		logrus.Fatalf("Failed to prepare schema: %v", err)
	}

	// Repositories
	billRepo := repositories.NewBillRepo(pool)
	productRepo := repositories.NewProductRepo(pool)
	customerRepo := repositories.NewCustomerRepo(pool)

	// Cache
	cacheSvc := caching.NewRedisCacheService(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)

	// Invoice storage
	store, err := services.NewMinioDocumentStore(cfg.Minio.Endpoint, cfg.Minio.AccessKey, cfg.Minio.SecretKey,
		cfg.Minio.UseSSL, cfg.Minio.Bucket, cfg.Billing.StorageTimeout)
	if err != nil {
		logrus.Fatalf("Failed to initialize MinIO client: %v", err)
	}
	if err := store.EnsureBucket(ctx); err != nil {
		logrus.WithError(err).Warn("invoice bucket is not available yet")
	}

	// Payment gateway
	var gateway services.GatewayClient
	if cfg.Gateway.Enabled() {
		gateway = services.NewRazorpayClient(cfg.Gateway.KeyID, cfg.Gateway.KeySecret, cfg.Gateway.BaseURL, cfg.Gateway.Timeout)
	} else {
		logrus.Warn("payment gateway credentials not set, online payments disabled")
	}

	// Mailer
	var mailer services.Mailer
	if cfg.SMTP.Host != "" {
		smtpMailer, err := services.NewSMTPMailer(services.SMTPMailerConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
			FromName: cfg.SMTP.FromName,
			Timeout:  cfg.SMTP.Timeout,
		})
		if err != nil {
			logrus.Fatalf("Failed to configure SMTP: %v", err)
		}
		mailer = smtpMailer
	} else {
		logrus.Warn("SMTP_HOST not set, invoice email disabled")
	}

	// Task queue
	redisOpt := asynq.RedisClientOpt{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB}
	queueClient := asynq.NewClient(redisOpt)
	defer queueClient.Close()
	enqueuer := jobs.NewTaskEnqueuer(queueClient, cfg.Queue.MaxRetryAttempts)

	// Services
	renderer := services.NewInvoiceRenderer(cfg.Billing.CurrencySymbol, cfg.Billing.Location)
	billSvc := services.NewBillService(billRepo, productRepo, customerRepo, cacheSvc, services.BillServiceConfig{
		DefaultTaxRate: cfg.Billing.DefaultTaxRate,
		Location:       cfg.Billing.Location,
	})
	invoiceSvc := services.NewInvoiceService(renderer, store, billRepo, customerRepo, cacheSvc, cfg.Company, nil)
	notificationSvc := services.NewNotificationService(billRepo, customerRepo, invoiceSvc, mailer, cacheSvc, cfg.Company, renderer, nil)
	paymentSvc := services.NewPaymentService(gateway, billRepo, customerRepo, invoiceSvc, cacheSvc, enqueuer, services.PaymentServiceConfig{
		KeySecret:      cfg.Gateway.KeySecret,
		WebhookSecret:  cfg.Gateway.WebhookSecret,
		Currency:       cfg.Gateway.Currency,
		EmailOnPayment: cfg.EmailOnPayment && mailer != nil,
	})
	analyticsSvc := analytics.NewAnalyticsService(billRepo, cacheSvc)

	// Queue worker
	queueServer := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.Queue.Concurrency,
		Queues:      cfg.Queue.Queues,
		Logger:      logrus.StandardLogger(),
	})
	mux := asynq.NewServeMux()
	jobs.NewEmailTaskHandler(notificationSvc).Register(mux)
	if err := queueServer.Start(mux); err != nil {
		logrus.Fatalf("Failed to start task worker: %v", err)
	}
	defer queueServer.Shutdown()

	// Periodic jobs
	if cfg.JobsEnabled {
		scheduler, err := background.NewJobScheduler(analyticsSvc, jobs.NewInventoryAlertService(productRepo, billRepo))
		if err != nil {
			logrus.Fatalf("Failed to create job scheduler: %v", err)
		}
		scheduler.Start()
		defer func() {
			if err := scheduler.Stop(); err != nil {
				logrus.WithError(err).Warn("job scheduler did not stop cleanly")
			}
		}()
	}

	// Token verification
	var keyFunc jwt.Keyfunc
	if cfg.JWKSURL != "" {
		kf, endRefresh, err := middleware.NewJWKSKeyFunc(cfg.JWKSURL)
		if err != nil {
			logrus.Fatalf("Failed to load signing keys: %v", err)
		}
		defer endRefresh()
		keyFunc = kf
	}

	// Handlers
	billHandlers := handlers.NewBillHandlers(billSvc, paymentSvc, invoiceSvc, notificationSvc, analyticsSvc)
	webhookHandlers := handlers.NewWebhookHandlers(paymentSvc)
	healthHandlers := handlers.NewHealthHandlers(pool, cacheSvc, store, version)
	audit := middleware.NewAuditMiddleware(logrus.StandardLogger())

	// Create Echo instance
	e := echo.New()
	e.HideBanner = true
	e.Validator = common.NewRequestValidator()
	e.HTTPErrorHandler = common.HTTPErrorHandler

	// Global middleware
	e.Use(echoMiddleware.Logger())
	e.Use(echoMiddleware.Recover())
	e.Use(echoMiddleware.CORS())
	e.Use(echoMiddleware.RemoveTrailingSlash())
	e.Use(echoMiddleware.BodyLimit("2M"))

	// Health endpoints (no auth required)
	e.GET("/health", healthHandlers.HealthCheck)
	e.GET("/health/ready", healthHandlers.ReadinessCheck)
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	// Gateway callbacks carry their own signature
	e.POST("/webhooks/razorpay", webhookHandlers.RazorpayWebhook, audit.AuditRequest())

	api := e.Group("/api", middleware.VersionHeader("v1", version))
	bills := api.Group("/bills", middleware.JWTMiddleware(cfg.JWTSecret, keyFunc), audit.AuditRequest())
	billHandlers.Register(bills)

	go func() {
		logrus.WithField("port", cfg.Port).Info("starting server")
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Fatalf("Server error: %v", err)
		}
	}()

	<-ctx.Done()
	logrus.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Error("server shutdown failed")
	}
}
