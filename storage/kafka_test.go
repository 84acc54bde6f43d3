package storage

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func TestKafkaSinkPublishesKeyedJSON(t *testing.T) {
	w := &recordingWriter{}
	sink := NewKafkaSink(w, "run-42")
	sink.now = func() time.Time { return time.Date(2024, 7, 2, 6, 30, 0, 0, time.UTC) }

	require.NoError(t, sink.SaveResults(context.Background(), sampleResults()))
	require.Len(t, w.msgs, 3)

	msg := w.msgs[0]
	assert.Equal(t, "WT-002", string(msg.Key))
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, "run_id", msg.Headers[0].Key)
	assert.Equal(t, "run-42", string(msg.Headers[0].Value))

	var body map[string]any
	require.NoError(t, json.Unmarshal(msg.Value, &body))
	assert.Equal(t, "WT-002", body["turbine_id"])
	assert.Equal(t, "2024-07-02", body["assessed_date"])
	assert.Equal(t, 7.0, body["optimal_rpm"])
	assert.Equal(t, 30690000.0, body["profit"])
	assert.Equal(t, "run-42", body["run_id"])
	assert.Equal(t, "2024-07-02T06:30:00Z", body["published_at"])
}

func TestKafkaSinkWithoutRunID(t *testing.T) {
	w := &recordingWriter{}
	require.NoError(t, NewKafkaSink(w, "").SaveResults(context.Background(), sampleResults()[:1]))
	assert.Empty(t, w.msgs[0].Headers)

	require.NoError(t, NewKafkaSink(w, "").SaveResults(context.Background(), nil))
	assert.Len(t, w.msgs, 1)
}

func TestKafkaSinkWrapsWriterError(t *testing.T) {
	boom := errors.New("broker down")
	err := NewKafkaSink(&recordingWriter{err: boom}, "run-1").SaveResults(context.Background(), sampleResults())
	assert.ErrorIs(t, err, boom)
}
