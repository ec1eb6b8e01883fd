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

	"github.com/couchcryptid/turbulent-flux-etl/internal/adapter/kafka"
	parquetadapter "github.com/couchcryptid/turbulent-flux-etl/internal/adapter/parquet"
	"github.com/couchcryptid/turbulent-flux-etl/internal/adapter/sink"
	"github.com/couchcryptid/turbulent-flux-etl/internal/capacitor"
	"github.com/couchcryptid/turbulent-flux-etl/internal/domain"
	"github.com/couchcryptid/turbulent-flux-etl/internal/observability"
	"github.com/couchcryptid/turbulent-flux-etl/internal/pipeline"
	"github.com/couchcryptid/turbulent-flux-etl/internal/synthetic"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"
)

const testSinkTopic = "test-flux-records"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startKafka runs a single-node KRaft broker and returns its address.
func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()
	c, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0", tckafka.WithClusterID("flux-test"))
	testcontainers.CleanupContainer(t, c)
	require.NoError(t, err, "start kafka container")

	brokers, err := c.Brokers(ctx)
	require.NoError(t, err)
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
	cc, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer cc.Close()

	require.NoError(t, cc.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}

// publishedRecord holds a deserialized message read from the sink topic.
type publishedRecord struct {
	Message kafka.Message
	Key     string
	Headers map[string]string
}

func readRecord(ctx context.Context, t *testing.T, consumer *kafkago.Reader) publishedRecord {
	t.Helper()
	readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	msg, err := consumer.ReadMessage(readCtx)
	require.NoError(t, err, "read from sink topic")

	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	var m kafka.Message
	require.NoError(t, json.Unmarshal(msg.Value, &m), "unmarshal sink message")
	return publishedRecord{Message: m, Key: string(msg.Key), Headers: headers}
}

// TestPipelineEndToEnd runs a synthetic station day from a parquet file
// through the flux capacitor into both the parquet and Kafka sinks.
func TestPipelineEndToEnd(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testSinkTopic)

	st := domain.Station{Name: "asfs30", Height: 3.3, SnowDepthInit: 0.1, DistanceInit: 2.0, Enabled: true}
	day := time.Date(2020, 4, 2, 0, 0, 0, 0, time.UTC)

	o := synthetic.DefaultOptions()
	o.Duration = time.Hour
	batch, err := synthetic.Day(st, day, o)
	require.NoError(t, err)

	inDir, outDir := t.TempDir(), t.TempDir()
	_, err = parquetadapter.WriteDay(inDir, batch)
	require.NoError(t, err)

	logger := discardLogger()
	metrics := observability.NewMetricsForTesting()
	params := capacitor.DefaultParams()

	kw := kafka.NewWriter([]string{broker}, testSinkTopic, logger)
	t.Cleanup(func() { _ = kw.Close() })
	loader := sink.NewFanout([]sink.Sink{
		parquetadapter.NewWriter(outDir, domain.DefaultFillValue, logger, metrics),
		sink.WithBreaker(kw, sink.DefaultBreakerSettings(), logger),
	}, logger, metrics)

	p := pipeline.New(
		parquetadapter.NewSource(inDir, logger),
		capacitor.New(params, logger),
		loader, nil, logger, metrics, pipeline.DefaultOptions(),
	)
	outcomes := p.Run(ctx, pipeline.Jobs([]domain.Station{st}, day, day))
	require.Len(t, outcomes, 1)
	require.NoError(t, outcomes[0].Err)
	assert.Equal(t, pipeline.OutcomeOK, outcomes[0].Status)

	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testSinkTopic,
		GroupID:     fmt.Sprintf("test-sink-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })

	windows := params.WindowsPerDay()
	received := make([]publishedRecord, 0, windows)
	for len(received) < windows {
		received = append(received, readRecord(ctx, t, consumer))
	}

	statusCounts := map[domain.RecordStatus]int{}
	for i, r := range received {
		statusCounts[r.Message.Status]++
		assert.Equal(t, "asfs30", r.Headers["station"])
		assert.Equal(t, string(r.Message.Status), r.Headers["status"])
		assert.Equal(t, string(kafka.Key("asfs30", r.Message.WindowStart)), r.Key)
		assert.Equal(t, day.Add(time.Duration(i)*params.Window), r.Message.WindowStart, "single partition keeps window order")
		assert.Len(t, r.Message.Values, params.Schema.Len())
	}
	okWindows := int(o.Duration / params.Window)
	assert.Equal(t, okWindows, statusCounts[domain.StatusOK])
	assert.Equal(t, windows-okWindows, statusCounts[domain.StatusInsufficientData])

	// The first window carries a sensible friction velocity.
	ustar := received[0].Message.Values["ustar"]
	require.NotNil(t, ustar)
	assert.Greater(t, *ustar, 0.0)

	// The parquet sink wrote the same day.
	f, err := parquetadapter.ReadFluxFile(parquetadapter.FluxPath(outDir, st.Name, day))
	require.NoError(t, err)
	assert.Equal(t, windows, f.Rows())
}

// TestKafkaWriterUnreachable checks that an unreachable broker surfaces as
// a write-exhausted day once retries run out.
func TestKafkaWriterUnreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	st := domain.Station{Name: "asfs50", Height: 2.8, Enabled: true}
	day := time.Date(2020, 4, 2, 0, 0, 0, 0, time.UTC)
	logger := discardLogger()

	kw := kafka.NewWriter([]string{"127.0.0.1:1"}, testSinkTopic, logger)
	t.Cleanup(func() { _ = kw.Close() })

	opts := pipeline.DefaultOptions()
	opts.WriteMaxAttempts = 2
	opts.RetryInitial = 10 * time.Millisecond
	p := pipeline.New(
		parquetadapter.NewSource(t.TempDir(), logger),
		capacitor.New(capacitor.DefaultParams(), logger),
		sink.NewFanout([]sink.Sink{kw}, logger, nil),
		nil, logger, observability.NewMetricsForTesting(), opts,
	)
	outcomes := p.Run(ctx, pipeline.Jobs([]domain.Station{st}, day, day))
	require.Len(t, outcomes, 1)
	assert.Equal(t, pipeline.OutcomeWriteExhausted, outcomes[0].Status)
	assert.ErrorIs(t, outcomes[0].Err, domain.ErrWriteExhausted)
}
