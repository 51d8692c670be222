package trigger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"smartbin-backend/internal/logger"
	"smartbin-backend/internal/models"
)

// KafkaPublisher writes reading-created events keyed by bin id, so the
// hash balancer keeps each bin on one partition.
type KafkaPublisher struct {
	writer *kafka.Writer
}

func NewKafkaPublisher(brokers []string, topic string) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, errors.New("at least one broker is required")
	}
	if topic == "" {
		return nil, errors.New("topic is required")
	}
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{}, // Partition by bin
			BatchTimeout: 10 * time.Millisecond,
			WriteTimeout: 10 * time.Second,
			RequiredAcks: kafka.RequireAll,
			MaxAttempts:  DefaultMaxAttempts,
		},
	}, nil
}

// Publish sends evt synchronously.
func (p *KafkaPublisher) Publish(ctx context.Context, evt models.ReadingCreated) error {
	msg, err := encodeMessage(evt)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish reading %s: %w", evt.ReadingID, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

func encodeMessage(evt models.ReadingCreated) (kafka.Message, error) {
	data, err := json.Marshal(evt)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to serialize reading event: %w", err)
	}
	return kafka.Message{
		Key:   []byte(evt.BinID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "reading_id", Value: []byte(evt.ReadingID)},
			{Key: "source", Value: []byte(evt.Source)},
		},
		Time: time.Unix(evt.TS, 0),
	}, nil
}

func decodeMessage(msg kafka.Message) (models.ReadingCreated, error) {
	var evt models.ReadingCreated
	if err := json.Unmarshal(msg.Value, &evt); err != nil {
		return evt, &models.ValidationError{Field: "value", Reason: fmt.Sprintf("malformed reading event: %v", err)}
	}
	if evt.BinID == "" {
		evt.BinID = string(msg.Key)
	}
	if evt.ReadingID == "" || evt.BinID == "" {
		return evt, &models.ValidationError{Field: "value", Reason: "reading event missing readingId or binId"}
	}
	return evt, nil
}

// KafkaConsumer reads reading-created events in a consumer group and
// commits each offset only after the handler is done with it.
type KafkaConsumer struct {
	reader      *kafka.Reader
	handler     Handler
	maxAttempts int
	backoff     time.Duration
	log         zerolog.Logger
}

func NewKafkaConsumer(brokers []string, topic, groupID string, handler Handler) (*KafkaConsumer, error) {
	if len(brokers) == 0 {
		return nil, errors.New("at least one broker is required")
	}
	if groupID == "" {
		return nil, errors.New("group id is required")
	}
	return &KafkaConsumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:        brokers,
			Topic:          topic,
			GroupID:        groupID,
			MinBytes:       1,
			MaxBytes:       1 << 20,
			CommitInterval: 0, // commit synchronously
		}),
		handler:     handler,
		maxAttempts: DefaultMaxAttempts,
		backoff:     DefaultBackoff,
		log:         logger.WithComponent("kafka_consumer"),
	}, nil
}

// Run consumes until ctx is cancelled. A message whose transient
// failures outlast the retries is left uncommitted and Run returns, so
// the group redelivers it after restart or rebalance.
func (c *KafkaConsumer) Run(ctx context.Context) error {
	c.log.Info().Str("topic", c.reader.Config().Topic).Msg("✅ Kafka consumer started")
	defer c.log.Info().Msg("🛑 Kafka consumer stopped")

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return fmt.Errorf("fetch reading event: %w", err)
		}

		evt, err := decodeMessage(msg)
		if err != nil {
			c.log.Warn().
				Err(err).
				Int("partition", msg.Partition).
				Int64("offset", msg.Offset).
				Msg("⚠️ Skipping malformed reading event")
		} else if err := deliver(ctx, c.handler, evt, c.maxAttempts, c.backoff, c.log); err != nil && models.IsRetryable(err) {
			return fmt.Errorf("reading %s not processed: %w", evt.ReadingID, err)
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("commit reading event: %w", err)
		}
	}
}

func (c *KafkaConsumer) Close() error {
	return c.reader.Close()
}
