package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"ms-attendance/internal/config"
	"ms-attendance/internal/database"
	"ms-attendance/internal/dispatch"
	eventsdb "ms-attendance/internal/events/db"
	identitydb "ms-attendance/internal/identity/db"
	"ms-attendance/internal/kafka"
	"ms-attendance/internal/logger"
	"ms-attendance/internal/notification"
	vouchersdb "ms-attendance/internal/vouchers/db"
	qr "ms-attendance/internal/vouchers/qr_generator"
	vouchers "ms-attendance/internal/vouchers/service"
)

// dispatch-worker consumes voucher mail jobs queued by the API service.
func main() {
	log := logger.NewLogger("dispatch-worker")
	defer log.Close()

	if err := godotenv.Load(); err != nil {
		log.Warn("CONFIG", ".env file not found, using environment variables")
	}

	cfg := config.Load()
	if cfg.Database.DSN == "" {
		log.Fatal("CONFIG", "POSTGRES_DSN not set")
	}
	if len(cfg.Kafka.Brokers) == 0 {
		log.Fatal("CONFIG", "KAFKA_BROKERS not set")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bunDB, err := database.Open(cfg.Database, log)
	if err != nil {
		log.Fatal("DATABASE", err.Error())
	}
	defer bunDB.Close()

	identityDB := &identitydb.DB{Bun: bunDB}
	eventDB := &eventsdb.DB{Bun: bunDB}
	voucherService := vouchers.NewVoucherService(&vouchersdb.DB{Bun: bunDB}, identityDB, eventDB, log)

	sender, err := notification.NewSender(cfg.Email, qr.NewQRGenerator(cfg.Vouchers.QRSize), log)
	if err != nil {
		log.Fatal("SMTP", err.Error())
	}
	dispatchService := dispatch.NewService(voucherService, eventDB, identityDB, sender, log)

	consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topics.VoucherDispatch, cfg.Kafka.GroupID, log)
	defer consumer.Close()

	log.Info("APP", fmt.Sprintf("Dispatch worker consuming %s", cfg.Kafka.Topics.VoucherDispatch))
	if err := consumer.ConsumeDispatchJobs(ctx, dispatchService.HandleJob); err != nil {
		log.Error("KAFKA", err.Error())
	}
	log.Info("APP", "Dispatch worker stopped")
}
