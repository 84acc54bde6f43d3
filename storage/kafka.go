package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/richinex/turbineopt/model"
)

// MessageWriter is the subset of *kafka.Writer used by KafkaSink.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// NewKafkaWriter returns a synchronous writer for topic.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}
}

// KafkaSink publishes each result as a JSON message keyed by turbine id, so
// all results for one turbine land on the same partition.
type KafkaSink struct {
	writer MessageWriter
	runID  string
	now    func() time.Time
}

// NewKafkaSink wraps a writer. runID is attached to every message as the
// run_id header when non-empty.
func NewKafkaSink(w MessageWriter, runID string) *KafkaSink {
	return &KafkaSink{writer: w, runID: runID, now: time.Now}
}

// resultMessage is the published value.
type resultMessage struct {
	model.OptimizationResult
	RunID       string `json:"run_id,omitempty"`
	PublishedAt string `json:"published_at"`
}

// SaveResults implements ResultSink. All results go out in one write call.
func (s *KafkaSink) SaveResults(ctx context.Context, results []model.OptimizationResult) error {
	if len(results) == 0 {
		return nil
	}
	published := s.now().UTC().Format(time.RFC3339)
	msgs := make([]kafka.Message, 0, len(results))
	for _, r := range results {
		value, err := json.Marshal(resultMessage{OptimizationResult: r, RunID: s.runID, PublishedAt: published})
		if err != nil {
			return fmt.Errorf("failed to encode result for %s: %w", r.TurbineID, err)
		}
		msg := kafka.Message{Key: []byte(r.TurbineID), Value: value}
		if s.runID != "" {
			msg.Headers = []kafka.Header{{Key: "run_id", Value: []byte(s.runID)}}
		}
		msgs = append(msgs, msg)
	}
	if err := s.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("failed to publish %d results: %w", len(msgs), err)
	}
	return nil
}

var _ ResultSink = (*KafkaSink)(nil)
var _ MessageWriter = (*kafka.Writer)(nil)
