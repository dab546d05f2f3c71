// Package notify delivers rule lifecycle notifications.
//
// KafkaSink publishes each notification as a JSON message keyed by rule id,
// so all events of one rule land on one partition in order. LogSink writes
// them to the structured log and is the fallback when no brokers are
// configured. Multi fans out to several sinks.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/solatis/pricekeeper/internal/lifecycle"
	"go.uber.org/zap"
)

// DefaultTopic receives rule lifecycle events.
const DefaultTopic = "pricekeeper.rule-events"

// messageWriter is the subset of *kafka.Writer the sink uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewKafkaWriter builds a writer for topic on brokers.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	if topic == "" {
		topic = DefaultTopic
	}
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		BatchTimeout:           50 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
}

// KafkaSink publishes notifications to Kafka.
type KafkaSink struct {
	w messageWriter
}

// NewKafkaSink wraps w.
func NewKafkaSink(w messageWriter) *KafkaSink {
	return &KafkaSink{w: w}
}

// Notify implements lifecycle.NotificationSink.
func (k *KafkaSink) Notify(ctx context.Context, n lifecycle.Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(n.RuleID),
		Value: payload,
		Time:  n.At,
		Headers: []kafka.Header{
			{Key: "kind", Value: []byte(n.Kind)},
		},
	}
	if err := k.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish %s for rule %s: %w", n.Kind, n.RuleID, err)
	}
	return nil
}

// Close flushes and closes the writer.
func (k *KafkaSink) Close() error {
	return k.w.Close()
}

// LogSink writes notifications to a logger.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink creates a LogSink.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Notify implements lifecycle.NotificationSink.
func (l *LogSink) Notify(ctx context.Context, n lifecycle.Notification) error {
	l.logger.Info("rule notification",
		zap.String("kind", string(n.Kind)),
		zap.String("rule_id", string(n.RuleID)),
		zap.String("rule_name", n.RuleName),
		zap.String("from", string(n.From)),
		zap.String("to", string(n.To)),
		zap.String("actor", n.Actor),
		zap.Time("at", n.At))
	return nil
}

// Multi delivers to every sink and joins their errors.
type Multi []lifecycle.NotificationSink

// Notify implements lifecycle.NotificationSink.
func (m Multi) Notify(ctx context.Context, n lifecycle.Notification) error {
	var errs []error
	for _, s := range m {
		if err := s.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
