package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingWriter struct {
	msgs   []kafka.Message
	closed int
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed++
	return nil
}

func TestKafkaPublisher_Publish(t *testing.T) {
	w := &recordingWriter{}
	p := newKafkaPublisher(w)
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	err := p.Publish(context.Background(), Event{
		Type: TypeSyncCompleted, UserID: 42, Provider: "strava", At: at,
		Data: map[string]any{"units": 3},
	})
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "strava:42", string(msg.Key))
	assert.Equal(t, at, msg.Time)
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, TypeSyncCompleted, string(msg.Headers[0].Value))

	var got Event
	require.NoError(t, json.Unmarshal(msg.Value, &got))
	assert.Equal(t, int64(42), got.UserID)
	assert.EqualValues(t, 3, got.Data["units"])
}

func TestKafkaPublisher_Close(t *testing.T) {
	w := &recordingWriter{}
	p := newKafkaPublisher(w)
	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	assert.Equal(t, 1, w.closed)

	err := p.Publish(context.Background(), Event{Type: TypeConnectionError})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestNew_NoBrokersIsNoop(t *testing.T) {
	_, ok := New(nil, "fitlink.events").(Noop)
	assert.True(t, ok)
	_, ok = New([]string{"localhost:9092"}, "").(Noop)
	assert.True(t, ok)

	p := New([]string{"localhost:9092"}, "fitlink.events")
	_, ok = p.(*KafkaPublisher)
	assert.True(t, ok)
	_ = p.Close()
}
