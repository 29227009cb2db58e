package kafka_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	attkafka "ms-attendance/internal/kafka"
	"ms-attendance/internal/logger"
	"ms-attendance/internal/models"
)

type recordingWriter struct {
	mu       sync.Mutex
	messages []kafka.Message
	err      error
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *recordingWriter) Close() error { return nil }

var topics = attkafka.Topics{VoucherRedeemed: "redeemed", VoucherDispatch: "dispatch"}

func TestPublishRedemption(t *testing.T) {
	writer := &recordingWriter{}
	producer := &attkafka.Producer{Writer: writer, Logger: logger.NewDiscardLogger(), Topics: topics}

	event := models.VoucherRedeemedEvent{VoucherID: "v1", EventID: "e1", Category: models.CategoryEntry, RedeemedAt: time.Now().UTC()}
	require.NoError(t, producer.PublishRedemption(context.Background(), event))

	require.Len(t, writer.messages, 1)
	msg := writer.messages[0]
	assert.Equal(t, "redeemed", msg.Topic)
	assert.Equal(t, "v1", string(msg.Key))

	var decoded models.VoucherRedeemedEvent
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, "e1", decoded.EventID)
}

func TestPublishDispatchKeys(t *testing.T) {
	writer := &recordingWriter{}
	producer := &attkafka.Producer{Writer: writer, Logger: logger.NewDiscardLogger(), Topics: topics}

	require.NoError(t, producer.PublishDispatch(context.Background(), models.DispatchJob{EventID: "e1"}))
	require.NoError(t, producer.PublishDispatch(context.Background(), models.DispatchJob{LegacyID: "L-7"}))

	require.Len(t, writer.messages, 2)
	assert.Equal(t, "dispatch", writer.messages[0].Topic)
	assert.Equal(t, "e1", string(writer.messages[0].Key))
	assert.Equal(t, "L-7", string(writer.messages[1].Key))
}

func TestPublishWrapsWriterError(t *testing.T) {
	boom := errors.New("broker down")
	producer := &attkafka.Producer{Writer: &recordingWriter{err: boom}, Logger: logger.NewDiscardLogger(), Topics: topics}

	err := producer.PublishRedemption(context.Background(), models.VoucherRedeemedEvent{VoucherID: "v1"})
	assert.ErrorIs(t, err, boom)
}

type scriptedReader struct {
	messages  []kafka.Message
	committed []int64
	cancel    context.CancelFunc
}

func (r *scriptedReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if len(r.messages) == 0 {
		r.cancel()
		<-ctx.Done()
		return kafka.Message{}, ctx.Err()
	}
	msg := r.messages[0]
	r.messages = r.messages[1:]
	return msg, nil
}

func (r *scriptedReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *scriptedReader) Close() error { return nil }

func TestConsumeDispatchJobs(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	good, _ := json.Marshal(models.DispatchJob{EventID: "e1"})
	failing, _ := json.Marshal(models.DispatchJob{LegacyID: "L-1"})
	reader := &scriptedReader{
		cancel: cancel,
		messages: []kafka.Message{
			{Offset: 1, Value: good},
			{Offset: 2, Value: []byte("not json")},
			{Offset: 3, Value: failing},
		},
	}
	consumer := &attkafka.Consumer{Reader: reader, Logger: logger.NewDiscardLogger()}

	var handled []models.DispatchJob
	err := consumer.ConsumeDispatchJobs(ctx, func(_ context.Context, job models.DispatchJob) error {
		handled = append(handled, job)
		if job.LegacyID != "" {
			return errors.New("smtp down")
		}
		return nil
	})

	require.NoError(t, err)
	require.Len(t, handled, 2)
	assert.Equal(t, "e1", handled[0].EventID)
	assert.Equal(t, "L-1", handled[1].LegacyID)
	assert.Equal(t, []int64{1, 2, 3}, reader.committed)
}
