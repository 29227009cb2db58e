package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"ms-attendance/internal/logger"
	"ms-attendance/internal/models"
)

// MessageWriter is the part of *kafka.Writer the producer uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Producer struct {
	Writer MessageWriter
	Logger *logger.Logger
	Topics Topics
}

// Topics names the topics the producer writes to.
type Topics struct {
	VoucherRedeemed string
	VoucherDispatch string
}

func NewProducer(brokers []string, topics Topics, log *logger.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}
	return &Producer{Writer: writer, Logger: log, Topics: topics}
}

// PublishRedemption streams a successful scan to Kafka, keyed by voucher id
func (p *Producer) PublishRedemption(ctx context.Context, event models.VoucherRedeemedEvent) error {
	return p.publish(ctx, p.Topics.VoucherRedeemed, event.VoucherID, event)
}

// PublishDispatch queues a voucher mail job, keyed by event or legacy id
func (p *Producer) PublishDispatch(ctx context.Context, job models.DispatchJob) error {
	key := job.EventID
	if key == "" {
		key = job.LegacyID
	}
	return p.publish(ctx, p.Topics.VoucherDispatch, key, job)
}

func (p *Producer) publish(ctx context.Context, topic, key string, payload interface{}) error {
	msgBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal message for %s: %w", topic, err)
	}

	p.Logger.LogKafka("PUBLISH", topic, string(msgBytes))

	err = p.Writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: msgBytes,
	})
	if err != nil {
		return fmt.Errorf("failed to write to %s: %w", topic, err)
	}
	return nil
}

func (p *Producer) Close() error {
	return p.Writer.Close()
}
