// Package kafka publishes upserted alert records to a sink topic for
// downstream consumers (the live API's cache warmers and the dashboard feed).
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/storm-archive-backfill/internal/config"
	"github.com/couchcryptid/storm-archive-backfill/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// Writer produces alert messages to the configured sink topic.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured sink topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaSinkTopic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

// PublishBatch serializes and publishes multiple alerts in a single
// WriteMessages call.
func (w *Writer) PublishBatch(ctx context.Context, alerts []domain.AlertRecord) error {
	if len(alerts) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(alerts))
	for i := range alerts {
		msg, err := serializeToMessage(alerts[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	return w.writer.WriteMessages(ctx, msgs...)
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals an AlertRecord into a Kafka message keyed by
// its natural key so replays land on the same partition.
func serializeToMessage(alert domain.AlertRecord) (kafkago.Message, error) {
	data, err := json.Marshal(alert)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize alert: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(alert.NaturalKey),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte(alert.EventType)},
			{Key: "data_source", Value: []byte(alert.DataSource)},
		},
	}, nil
}
