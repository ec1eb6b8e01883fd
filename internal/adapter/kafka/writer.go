// Package kafka publishes flux records to a Kafka topic, one message per
// window.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/couchcryptid/turbulent-flux-etl/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// Writer produces flux records to a Kafka topic.
// It implements pipeline.TableLoader.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the sink topic.
func NewWriter(brokers []string, topic string, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

// Name identifies the sink in logs and metrics.
func (w *Writer) Name() string { return "kafka" }

// LoadTable publishes every record of the table in a single WriteMessages
// call. Records are keyed by station and window start, so replays land on
// the same partition and compacted topics keep the latest version.
func (w *Writer) LoadTable(ctx context.Context, t domain.FluxTable) error {
	if len(t.Records) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(t.Records))
	for i := range t.Records {
		msg, err := serializeToMessage(t, i)
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish %d records: %w", len(msgs), err)
	}
	w.logger.Debug("flux records published",
		"station", t.Station.Name,
		"day", t.Day.Format("2006-01-02"),
		"messages", len(msgs),
	)
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// Message is the JSON payload of one flux record. Missing values are null.
type Message struct {
	Station       string              `json:"station"`
	WindowStart   time.Time           `json:"window_start"`
	Status        domain.RecordStatus `json:"status"`
	BulkConverged bool                `json:"bulk_converged"`
	ProcessedAt   time.Time           `json:"processed_at"`
	Values        map[string]*float64 `json:"values"`
}

// Key returns the message key for a record.
func Key(station string, start time.Time) []byte {
	return []byte(station + "|" + start.UTC().Format(time.RFC3339))
}

// serializeToMessage marshals record i of the table into a Kafka message.
func serializeToMessage(t domain.FluxTable, i int) (kafkago.Message, error) {
	r := t.Records[i]
	m := Message{
		Station:       t.Station.Name,
		WindowStart:   r.Start.UTC(),
		Status:        r.Status,
		BulkConverged: r.BulkConverged,
		ProcessedAt:   t.ProcessedAt.UTC(),
		Values:        make(map[string]*float64, r.Len()),
	}
	for j, name := range t.Schema.Names() {
		x := r.At(j)
		if math.IsNaN(x) || math.IsInf(x, 0) {
			m.Values[name] = nil
			continue
		}
		m.Values[name] = &x
	}
	data, err := json.Marshal(m)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize flux record: %w", err)
	}
	return kafkago.Message{
		Key:   Key(t.Station.Name, r.Start),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "station", Value: []byte(t.Station.Name)},
			{Key: "status", Value: []byte(r.Status)},
			{Key: "processed_at", Value: []byte(t.ProcessedAt.UTC().Format(time.RFC3339))},
		},
	}, nil
}
