package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"

	"ms-attendance/internal/analytics"
	analytics_api "ms-attendance/internal/analytics/api"
	"ms-attendance/internal/auth"
	"ms-attendance/internal/certificates"
	"ms-attendance/internal/certificates/certificates_api"
	"ms-attendance/internal/config"
	"ms-attendance/internal/database"
	"ms-attendance/internal/database/migrations"
	"ms-attendance/internal/dispatch"
	"ms-attendance/internal/dispatch/dispatch_api"
	"ms-attendance/internal/events"
	eventsdb "ms-attendance/internal/events/db"
	"ms-attendance/internal/events/events_api"
	"ms-attendance/internal/identity"
	identitydb "ms-attendance/internal/identity/db"
	"ms-attendance/internal/identity/identity_api"
	"ms-attendance/internal/kafka"
	"ms-attendance/internal/logger"
	"ms-attendance/internal/models"
	"ms-attendance/internal/notification"
	"ms-attendance/internal/sse"
	vouchersdb "ms-attendance/internal/vouchers/db"
	qr "ms-attendance/internal/vouchers/qr_generator"
	voucherredis "ms-attendance/internal/vouchers/redis"
	vouchers "ms-attendance/internal/vouchers/service"
	"ms-attendance/internal/vouchers/voucher_api"
)

var staffRoles = []string{models.RoleAdmin, models.RoleTeacher}

func connectRedis(ctx context.Context, cfg config.RedisConfig, log *logger.Logger) *redis.Client {
	if !cfg.Enabled {
		log.Warn("REDIS", "Redis disabled, voucher issuance runs without a lock")
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		log.Warn("REDIS", fmt.Sprintf("Redis unreachable at %s, voucher issuance runs without a lock: %v", cfg.Addr, err))
		client.Close()
		return nil
	}
	log.Info("REDIS", fmt.Sprintf("✅ Redis connection successful to %s (DB: %d)", cfg.Addr, cfg.DB))
	return client
}

func authMiddleware(ctx context.Context, cfg config.AuthConfig, log *logger.Logger) func(http.Handler) http.Handler {
	if cfg.Disabled {
		log.Warn("AUTH", "SKIP_AUTH set, every request is served as an administrator")
		return auth.Anonymous(models.RoleAdmin)
	}
	verifier, err := auth.NewVerifier(ctx, cfg)
	if err != nil {
		log.Fatal("AUTH", fmt.Sprintf("Failed to create token verifier: %v", err))
	}
	return auth.Middleware(verifier, log)
}

func main() {
	log := logger.NewLogger("attendance")
	defer log.Close()

	log.Info("APP", "Starting Attendance Service initialization")

	if err := godotenv.Load(); err != nil {
		log.Warn("CONFIG", ".env file not found, using environment variables")
	} else {
		log.Info("CONFIG", "Loaded environment variables from .env file")
	}

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatal("CONFIG", err.Error())
	}
	ctx := context.Background()

	bunDB, err := database.Open(cfg.Database, log)
	if err != nil {
		log.Fatal("DATABASE", err.Error())
	}
	defer bunDB.Close()

	if cfg.Database.AutoMigrate {
		runner := migrations.NewRunner(bunDB, log)
		if err := runner.RunMigrations(); err != nil {
			log.Fatal("MIGRATIONS", err.Error())
		}
	}

	identityDB := &identitydb.DB{Bun: bunDB}
	eventDB := &eventsdb.DB{Bun: bunDB}

	voucherService := vouchers.NewVoucherService(&vouchersdb.DB{Bun: bunDB}, identityDB, eventDB, log)

	if redisClient := connectRedis(ctx, cfg.Redis, log); redisClient != nil {
		defer redisClient.Close()
		voucherService.Lock = voucherredis.NewIssuanceLock(redisClient, cfg.Vouchers.IssuanceLockTTL, log)
	}

	scanFeed := sse.NewScanFeed()
	voucherService.Emitter = scanFeed

	var producer *kafka.Producer
	if cfg.Kafka.Enabled {
		topics := kafka.Topics{
			VoucherRedeemed: cfg.Kafka.Topics.VoucherRedeemed,
			VoucherDispatch: cfg.Kafka.Topics.VoucherDispatch,
		}
		if err := kafka.EnsureTopicsExist(ctx, cfg.Kafka.Brokers, []string{topics.VoucherRedeemed, topics.VoucherDispatch}, log); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		}
		producer = kafka.NewProducer(cfg.Kafka.Brokers, topics, log)
		defer producer.Close()
		voucherService.Publisher = producer
		log.Info("KAFKA", "Kafka producer initialized successfully")
	}

	qrGenerator := qr.NewQRGenerator(cfg.Vouchers.QRSize)
	sender, err := notification.NewSender(cfg.Email, qrGenerator, log)
	if err != nil {
		log.Fatal("SMTP", err.Error())
	}

	dispatchService := dispatch.NewService(voucherService, eventDB, identityDB, sender, log)
	if producer != nil {
		dispatchService.Queue = producer
	}

	templates, err := certificates.NewTemplateStore(ctx, cfg.Storage)
	if err != nil {
		log.Fatal("STORAGE", err.Error())
	}
	renderer, err := certificates.NewRenderer(cfg.Certificates.FontPath)
	if err != nil {
		log.Fatal("CERTIFICATES", err.Error())
	}
	certificateService := certificates.NewService(eventDB, templates, renderer, sender, log)

	eventService := events.NewEventService(eventDB, identityDB, log)
	identityService := identity.NewIdentityService(identityDB, voucherService, log)
	analyticsService := analytics.NewService(analytics.NewDB(bunDB))

	routes := []interface{ RegisterRoutes(chi.Router) }{
		voucher_api.NewHandler(voucherService, qrGenerator, log, staffRoles...),
		events_api.NewHandler(eventService, log, staffRoles...),
		identity_api.NewHandler(identityService, log, staffRoles...),
		dispatch_api.NewHandler(dispatchService, log, staffRoles...),
		certificates_api.NewHandler(certificateService, log, staffRoles...),
		analytics_api.NewHandler(analyticsService, log, staffRoles...),
		sse.NewHandler(scanFeed, log, staffRoles...),
	}

	log.Info("HTTP", "Setting up router and middleware")
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Group(func(r chi.Router) {
		r.Use(authMiddleware(ctx, cfg.Auth, log))
		r.Route("/api", func(r chi.Router) {
			for _, h := range routes {
				h.RegisterRoutes(r)
			}
		})
		log.Info("ROUTER", "API routes registered under /api")
	})

	server := &http.Server{
		Addr:        cfg.Server.Port,
		Handler:     r,
		ReadTimeout: cfg.Server.ReadTimeout,
		IdleTimeout: cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("HTTP", fmt.Sprintf("🚀 Attendance Service running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	log.Info("APP", "Service started successfully, waiting for shutdown signal")
	<-stop

	log.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	ctxShutdown, cancel := context.WithTimeout(ctx, cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Error("HTTP", fmt.Sprintf("Server Shutdown Failed: %v", err))
	} else {
		log.Info("HTTP", "✅ Attendance Service shutdown complete")
	}
}
