package tokenauth

import (
	"io"
	"time"

	internalaudit "github.com/voyz/tokenauth/internal/audit"
)

// AuditEvent is a structured record of one lifecycle operation. It never
// carries token strings.
type AuditEvent = internalaudit.Event

// AuditSink receives audit events from the engine's dispatcher goroutine.
type AuditSink = internalaudit.Sink

// NoOpSink discards events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink forwards events into a buffered channel.
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink = internalaudit.JSONWriterSink

// KafkaSink publishes events to a Kafka topic keyed by principal id.
type KafkaSink = internalaudit.KafkaSink

// KafkaWriter is the subset of *kafka.Writer a KafkaSink needs.
type KafkaWriter = internalaudit.KafkaWriter

func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

// NewKafkaSink publishes to topic on brokers. Write failures are passed to
// onError when it is non-nil.
func NewKafkaSink(brokers []string, topic string, timeout time.Duration, onError func(error)) *KafkaSink {
	return internalaudit.NewKafkaSink(internalaudit.NewKafkaWriter(brokers, topic), timeout, onError)
}

// NewKafkaSinkWithWriter wraps an existing writer.
func NewKafkaSinkWithWriter(w KafkaWriter, timeout time.Duration, onError func(error)) *KafkaSink {
	return internalaudit.NewKafkaSink(w, timeout, onError)
}
