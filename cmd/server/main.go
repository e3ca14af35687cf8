// Package main runs the event registration HTTP server with graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/aura-events/backend/config"
	"github.com/aura-events/backend/internal/analytics"
	"github.com/aura-events/backend/internal/auth"
	"github.com/aura-events/backend/internal/capacity"
	"github.com/aura-events/backend/internal/captcha"
	"github.com/aura-events/backend/internal/emaillogs"
	"github.com/aura-events/backend/internal/events"
	"github.com/aura-events/backend/internal/middleware"
	"github.com/aura-events/backend/internal/models"
	"github.com/aura-events/backend/internal/notify"
	"github.com/aura-events/backend/internal/payments"
	"github.com/aura-events/backend/internal/registrations"
	"github.com/aura-events/backend/internal/tokens"
	"github.com/aura-events/backend/internal/webhooks"
	"github.com/aura-events/backend/pkg/database"
	"github.com/aura-events/backend/pkg/queue"
	"github.com/aura-events/backend/pkg/rabbitmq"
	"github.com/aura-events/backend/pkg/redis"
	"github.com/aura-events/backend/pkg/response"
	"github.com/aura-events/backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), cfg.Database.MaxConns, logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool, logger); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	// Notifications: mail jobs for the worker, lifecycle events on the bus when configured
	jobQueue := queue.NewQueue(rdb.Client, logger)
	dispatchers := notify.Multi{notify.NewQueueDispatcher(jobQueue, logger)}
	if cfg.RabbitMQ.URL != "" {
		pub, err := rabbitmq.NewPublisher(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange, logger)
		if err != nil {
			logger.Warn("rabbitmq disabled", zap.Error(err))
		} else {
			defer pub.Close()
			dispatchers = append(dispatchers, notify.NewEventDispatcher(pub))
		}
	}

	// Export archive
	var archiver registrations.Archiver
	if cfg.AWS.ExportsBucket != "" {
		s3Client, err := storage.NewS3(ctx, storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			ExportsBucket:        cfg.AWS.ExportsBucket,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}, logger)
		if err != nil {
			logger.Warn("s3 disabled", zap.Error(err))
		} else {
			archiver = s3Client
		}
	}

	var captchaVerifier registrations.CaptchaVerifier
	if cfg.Captcha.Secret != "" {
		captchaVerifier = captcha.NewVerifier(cfg.Captcha.Secret, cfg.Captcha.VerifyURL)
	}

	// Payments: both gateways accept webhooks, the configured one creates checkouts
	gatewayRegistry, err := payments.NewRegistry(cfg.Payment.Gateway,
		payments.NewCardGateway(payments.CardConfig{
			SecretKey:     cfg.Payment.CardSecretKey,
			WebhookSecret: cfg.Payment.CardWebhookSecret,
			APIBase:       cfg.Payment.CardAPIBase,
			WebhookURL:    cfg.Payment.CardWebhookURL,
			Tolerance:     cfg.Payment.Tolerance(),
			Timeout:       cfg.Payment.Timeout(),
		}, nil),
		payments.NewAltGateway(payments.AltConfig{
			APIKey:        cfg.Payment.AltAPIKey,
			WebhookSecret: cfg.Payment.AltWebhookSecret,
			APIBase:       cfg.Payment.AltAPIBase,
			WebhookURL:    cfg.Payment.AltWebhookURL,
			Tolerance:     cfg.Payment.Tolerance(),
			Timeout:       cfg.Payment.Timeout(),
		}, nil),
	)
	if err != nil {
		logger.Fatal("payments", zap.Error(err))
	}

	registrationRepo := registrations.NewRepository(pool)
	var checkout registrations.Checkout
	if gw, ok := gatewayRegistry.Active(); ok {
		orch := payments.NewOrchestrator(gw, registrationRepo, cfg.Payment.Timeout(), logger)
		logger.Info("checkout enabled", zap.String("gateway", orch.Gateway()))
		checkout = orch
	}

	// Events
	eventRepo := events.NewRepository(pool)
	counter := capacity.NewCounter(registrationRepo)
	eventHandler := events.NewHandler(eventRepo, counter, cfg.Payment.Currency, logger)

	// Registrations
	registrationSvc := registrations.NewService(
		registrationRepo,
		eventRepo,
		tokens.NewService(cfg.Registration.TokenTTL()),
		checkout,
		dispatchers,
		registrations.Options{
			PublicBaseURL: cfg.Registration.PublicBaseURL,
			ReturnURL:     cfg.Registration.ReturnURL,
			AdminEmail:    cfg.Registration.AdminNotifyTo,
		},
		logger,
	)
	registrationHandler := registrations.NewHandler(registrationSvc, captchaVerifier, archiver, logger)

	webhookHandler := webhooks.NewHandler(webhooks.NewReconciler(gatewayRegistry, registrationSvc, logger), logger)
	paymentsHandler := payments.NewHandler(gatewayRegistry, logger)
	analyticsHandler := analytics.NewHandler(eventRepo, registrationRepo, logger)
	emailLogsHandler := emaillogs.NewHandler(emaillogs.NewRepository(pool), logger)

	// Auth
	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	operators := auth.NewStaticOperators(models.Operator{
		Email:        cfg.Operator.Email,
		PasswordHash: cfg.Operator.PasswordHash,
		Role:         models.RoleAdmin,
	})
	if operators.Len() == 0 {
		logger.Warn("no operator configured, /admin is unreachable")
	}
	authHandler := auth.NewHandler(operators, jwtService, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	router.GET("/health", func(c *gin.Context) {
		hctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := pool.Ping(hctx); err != nil {
			response.ServiceUnavailable(c, "database unavailable")
			return
		}
		if err := rdb.Healthy(hctx); err != nil {
			response.ServiceUnavailable(c, "redis unavailable")
			return
		}
		response.OK(c, gin.H{"status": "ok"})
	})

	// Public
	router.GET("/events/:id", eventHandler.Get)
	router.POST("/events/:id/register", registrationHandler.Register)
	router.GET("/registrations/:id/confirm", registrationHandler.Confirm)
	router.POST("/webhooks/:gateway", webhookHandler.Receive)
	router.POST("/auth/login", authHandler.Login)

	// Back office (JWT required)
	admin := router.Group("/admin")
	admin.Use(middleware.JWT(jwtService))
	read := middleware.RequireRole(models.RoleAdmin, models.RoleViewer)
	write := middleware.RequireRole(models.RoleAdmin)
	{
		admin.GET("/events", read, eventHandler.List)
		admin.POST("/events", write, eventHandler.Create)
		admin.PATCH("/events/:id", write, eventHandler.Update)
		admin.DELETE("/events/:id", write, eventHandler.Delete)

		admin.GET("/events/:id/registrations", read, registrationHandler.List)
		admin.GET("/events/:id/registrations.csv", read, registrationHandler.Export)
		admin.POST("/events/:id/registrations/archive", write, registrationHandler.Archive)
		admin.GET("/events/:id/summary", read, analyticsHandler.GetByEvent)
		admin.GET("/events/:id/emails", read, emailLogsHandler.ListByEvent)

		admin.GET("/registrations/:id", read, registrationHandler.Get)
		admin.POST("/registrations/:id/cancel", write, registrationHandler.Cancel)
		admin.POST("/registrations/:id/resend", write, registrationHandler.Resend)

		admin.GET("/gateways/check", write, paymentsHandler.Check)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
