package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/segmentio/kafka-go"

	"ms-attendance/internal/logger"
	"ms-attendance/internal/models"
)

// MessageReader is the part of *kafka.Reader the consumer uses.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	Reader MessageReader
	Logger *logger.Logger
}

// NewConsumer creates a new Kafka consumer for the given topic and group
func NewConsumer(brokers []string, topic, groupID string, log *logger.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})
	return &Consumer{Reader: reader, Logger: log}
}

// ConsumeDispatchJobs hands every dispatch job to handler until ctx is done.
// A message is committed once handled, even when the handler failed, so a
// broken job is logged and not retried forever. Undecodable messages are
// skipped.
func (c *Consumer) ConsumeDispatchJobs(ctx context.Context, handler func(context.Context, models.DispatchJob) error) error {
	c.Logger.Info("KAFKA", "Dispatch consumer started")

	for {
		msg, err := c.Reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("failed to fetch message: %w", err)
		}

		var job models.DispatchJob
		if err := json.Unmarshal(msg.Value, &job); err != nil {
			c.Logger.Warn("KAFKA", fmt.Sprintf("Failed to unmarshal dispatch job at offset %d: %v", msg.Offset, err))
		} else {
			c.Logger.LogKafka("RECEIVED", msg.Topic, fmt.Sprintf("event=%s legacy=%s", job.EventID, job.LegacyID))
			if err := handler(ctx, job); err != nil {
				c.Logger.Error("KAFKA", fmt.Sprintf("Dispatch job failed: %v", err))
			}
		}

		if err := c.Reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("failed to commit offset %d: %w", msg.Offset, err)
		}
	}
}

// Close gracefully shuts down the Kafka reader
func (c *Consumer) Close() error {
	return c.Reader.Close()
}
