//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"

	kafkaadapter "github.com/couchcryptid/storm-archive-backfill/internal/adapter/kafka"
	"github.com/couchcryptid/storm-archive-backfill/internal/config"
	"github.com/couchcryptid/storm-archive-backfill/internal/domain"
)

const testSinkTopic = "storm-archive-alerts"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startKafka launches a single-node Kafka container and returns its broker
// address.
func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()

	container, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0",
		tckafka.WithClusterID("storm-archive-test"))
	require.NoError(t, err, "start kafka container")
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("terminate kafka container: %v", err)
		}
	})

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err, "resolve broker addresses")
	require.NotEmpty(t, brokers)
	return brokers[0]
}

func createTopic(t *testing.T, broker, topic string) {
	t.Helper()

	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)

	controllerConn, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer controllerConn.Close()

	require.NoError(t, controllerConn.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}

// TestWriterPublishesAlerts round-trips upserted alert records through a real
// broker and verifies keying and headers survive.
func TestWriterPublishesAlerts(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testSinkTopic)

	cfg := &config.Config{
		KafkaBrokers:   []string{broker},
		KafkaSinkTopic: testSinkTopic,
	}

	writer := kafkaadapter.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	alerts := []domain.AlertRecord{
		{
			NaturalKey: "OUN-SVW-2024-0042",
			DataSource: domain.SourceBackfill,
			EventType:  "Severe Thunderstorm Warning",
			Issued:     time.Date(2024, 4, 26, 21, 5, 0, 0, time.UTC),
			Geometry: &domain.Geometry{
				Kind: domain.KindPolygon,
				Rings: [][]domain.Point{{
					{Lon: -97.5, Lat: 35.2},
					{Lon: -97.3, Lat: 35.2},
					{Lon: -97.3, Lat: 35.4},
					{Lon: -97.5, Lat: 35.2},
				}},
			},
		},
		{
			NaturalKey: "OUN-TOW-2024-0007",
			DataSource: domain.SourceBackfill,
			EventType:  "Tornado Warning",
			Issued:     time.Date(2024, 4, 26, 21, 40, 0, 0, time.UTC),
		},
	}

	require.NoError(t, writer.PublishBatch(ctx, alerts))

	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testSinkTopic,
		GroupID:     fmt.Sprintf("test-sink-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })

	byKey := make(map[string]domain.AlertRecord, len(alerts))
	headersByKey := make(map[string]map[string]string, len(alerts))
	for range alerts {
		readCtx, readCancel := context.WithTimeout(ctx, 30*time.Second)
		msg, err := consumer.ReadMessage(readCtx)
		readCancel()
		require.NoError(t, err, "read from sink topic")

		var alert domain.AlertRecord
		require.NoError(t, json.Unmarshal(msg.Value, &alert))
		byKey[string(msg.Key)] = alert

		headers := make(map[string]string, len(msg.Headers))
		for _, h := range msg.Headers {
			headers[h.Key] = string(h.Value)
		}
		headersByKey[string(msg.Key)] = headers
	}

	svw, ok := byKey["OUN-SVW-2024-0042"]
	require.True(t, ok, "severe thunderstorm warning missing from sink")
	assert.Equal(t, "Severe Thunderstorm Warning", svw.EventType)
	assert.Equal(t, domain.SourceBackfill, svw.DataSource)
	require.NotNil(t, svw.Geometry)
	assert.Equal(t, domain.KindPolygon, svw.Geometry.Kind)

	tow, ok := byKey["OUN-TOW-2024-0007"]
	require.True(t, ok, "tornado warning missing from sink")
	assert.Equal(t, "Tornado Warning", tow.EventType)

	for key, headers := range headersByKey {
		assert.Equal(t, byKey[key].EventType, headers["event_type"], "event_type header for %s", key)
		assert.Equal(t, domain.SourceBackfill, headers["data_source"], "data_source header for %s", key)
	}
}
