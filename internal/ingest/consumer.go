package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"io"

	"github.com/segmentio/kafka-go"

	"fleetalert/internal/logger"
	"fleetalert/internal/metrics"
	"fleetalert/internal/models"
	"fleetalert/internal/service"
)

// Submission is the wire format of an alert submission.
type Submission struct {
	SourceType string                 `json:"source_type"`
	Severity   string                 `json:"severity,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// Fetcher is the slice of kafka.Reader the consumer needs; tests swap in a
// fake.
type Fetcher interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads alert submissions from Kafka and feeds them into the
// service boundary. Malformed or invalid submissions are logged and
// committed, never redelivered.
type Consumer struct {
	reader Fetcher
	svc    *service.Service
}

// NewConsumer builds a consumer over an existing reader.
func NewConsumer(reader Fetcher, svc *service.Service) *Consumer {
	return &Consumer{reader: reader, svc: svc}
}

// NewReader constructs the kafka-go reader the daemon uses.
func NewReader(brokers []string, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       1 << 20,
		CommitInterval: 0, // explicit commits
	})
}

// Run consumes until the context is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	log := logger.WithComponent("ingest")
	log.Info().Msg("consumer started")
	defer log.Info().Msg("consumer stopped")

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		c.handle(ctx, msg)
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			log.Error().Err(err).Msg("commit failed")
		}
	}
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message) {
	log := logger.WithComponent("ingest")

	var sub Submission
	if err := json.Unmarshal(msg.Value, &sub); err != nil {
		metrics.IngestMessagesTotal.WithLabelValues("rejected").Inc()
		log.Warn().Err(err).Int64("offset", msg.Offset).Msg("malformed submission, skipping")
		return
	}

	alert, err := c.svc.CreateAlert(ctx, sub.SourceType, models.Severity(sub.Severity), sub.Metadata)
	if err != nil {
		metrics.IngestMessagesTotal.WithLabelValues("rejected").Inc()
		log.Warn().
			Err(err).
			Str("source_type", sub.SourceType).
			Int64("offset", msg.Offset).
			Msg("submission rejected")
		return
	}

	metrics.IngestMessagesTotal.WithLabelValues("accepted").Inc()
	log.Debug().
		Str("alert_id", alert.ID).
		Str("status", string(alert.Status)).
		Msg("submission accepted")
}

// Close releases the underlying reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}
