package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaWriter is the subset of *kafka.Writer the sink needs.
type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes each event as a JSON message keyed by principal id,
// so one principal's events land on one partition in order.
type KafkaSink struct {
	writer  KafkaWriter
	timeout time.Duration
	onError func(error)
}

// NewKafkaWriter returns a writer for topic on the given brokers.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
	}
}

// NewKafkaSink wraps w. onError, if non-nil, is called for every failed
// write; the dispatcher has no way to surface it otherwise.
func NewKafkaSink(w KafkaWriter, timeout time.Duration, onError func(error)) *KafkaSink {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &KafkaSink{
		writer:  w,
		timeout: timeout,
		onError: onError,
	}
}

func (s *KafkaSink) Emit(ctx context.Context, event Event) {
	if s == nil || s.writer == nil {
		return
	}
	value, err := json.Marshal(event)
	if err != nil {
		s.fail(err)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	msg := kafka.Message{
		Key:   []byte(event.PrincipalID),
		Value: value,
		Time:  event.Timestamp,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
		},
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		s.fail(err)
	}
}

// Close closes the underlying writer.
func (s *KafkaSink) Close() error {
	if s == nil || s.writer == nil {
		return nil
	}
	return s.writer.Close()
}

func (s *KafkaSink) fail(err error) {
	if s.onError != nil {
		s.onError(err)
	}
}
