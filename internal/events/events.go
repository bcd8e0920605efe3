// Package events publica eventos de dominio (sync completado, conexión en
// error) en Kafka. Sin brokers configurados se usa Noop.
package events

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

const (
	TypeSyncCompleted   = "sync.completed"
	TypeConnectionError = "connection.error"
)

// Event es el payload publicado. El key del mensaje es provider:user_id para
// que los eventos de una conexión queden ordenados en la misma partición.
type Event struct {
	Type     string         `json:"type"`
	UserID   int64          `json:"user_id"`
	Provider string         `json:"provider"`
	At       time.Time      `json:"at"`
	Data     map[string]any `json:"data,omitempty"`
}

func (e Event) key() []byte {
	return []byte(e.Provider + ":" + strconv.FormatInt(e.UserID, 10))
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Noop descarta los eventos.
type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }
func (Noop) Close() error                         { return nil }

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher escribe eventos JSON en un único topic.
type KafkaPublisher struct {
	mu     sync.Mutex
	writer messageWriter
	closed bool
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return newKafkaPublisher(&kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 50 * time.Millisecond,
	})
}

func newKafkaPublisher(w messageWriter) *KafkaPublisher {
	return &KafkaPublisher{writer: w}
}

func (p *KafkaPublisher) Publish(ctx context.Context, e Event) error {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	payload, err := json.Marshal(e)
	if err != nil {
		return err
	}
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return ErrClosed
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   e.key(),
		Value: payload,
		Time:  e.At,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(e.Type)},
		},
	})
}

func (p *KafkaPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.writer.Close()
}

// New arma el publisher según config: sin brokers, Noop.
func New(brokers []string, topic string) Publisher {
	if len(brokers) == 0 || topic == "" {
		return Noop{}
	}
	return NewKafkaPublisher(brokers, topic)
}
