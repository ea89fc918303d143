// Package kafka bridges region alert messages onto a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/disaster-alert-service/internal/alert"
	"github.com/couchcryptid/disaster-alert-service/internal/config"
	kafkago "github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Publisher produces one message per region alert to the alert topic, keyed
// by region so a region's alerts stay ordered within a partition.
// It implements alert.Publisher.
type Publisher struct {
	writer messageWriter
	now    func() time.Time
	logger *slog.Logger
}

// NewPublisher creates a Kafka producer for the configured alert topic.
func NewPublisher(cfg *config.Config, logger *slog.Logger) *Publisher {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaAlertTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Publisher{writer: w, now: time.Now, logger: logger}
}

func (p *Publisher) Publish(ctx context.Context, regionKey string, summaries []alert.Summary) error {
	msg, err := serializeToMessage(regionKey, summaries, p.now().UTC())
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka publish %s: %w", regionKey, err)
	}
	p.logger.Debug("alert published", "transport", "kafka", "region_key", regionKey, "events", len(summaries))
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// envelope is the wire form of a region alert.
type envelope struct {
	RegionKey   string          `json:"regionKey"`
	Summaries   []alert.Summary `json:"summaries"`
	PublishedAt time.Time       `json:"publishedAt"`
}

// serializeToMessage marshals a region alert into a Kafka message.
func serializeToMessage(regionKey string, summaries []alert.Summary, at time.Time) (kafkago.Message, error) {
	data, err := json.Marshal(envelope{RegionKey: regionKey, Summaries: summaries, PublishedAt: at})
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize region alert: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(regionKey),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "region_key", Value: []byte(regionKey)},
			{Key: "published_at", Value: []byte(at.Format(time.RFC3339))},
		},
	}, nil
}
