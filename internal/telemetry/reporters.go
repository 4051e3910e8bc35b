package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

// Param is the wire form of one parameter update.
type Param struct {
	Node  string  `json:"node"`
	Name  string  `json:"name"`
	Value float64 `json:"value"`
	TS    int64   `json:"ts"` // unix milliseconds
}

func newParam(node, name string, v float64) Param {
	return Param{Node: node, Name: name, Value: v, TS: time.Now().UnixMilli()}
}

// Publisher sends one MQTT message without waiting for delivery.
type Publisher interface {
	Publish(topic string, retained bool, payload []byte) error
}

// MQTTReporter publishes each parameter retained on its own topic, so a
// dashboard that subscribes late still sees the last value.
type MQTTReporter struct {
	pub   Publisher
	node  string
	topic func(name string) string
}

// NewMQTTReporter returns a reporter; topic maps a parameter name to its topic.
func NewMQTTReporter(pub Publisher, node string, topic func(name string) string) *MQTTReporter {
	return &MQTTReporter{pub: pub, node: node, topic: topic}
}

// Report publishes one parameter.
func (r *MQTTReporter) Report(_ context.Context, name string, v float64) error {
	b, err := json.Marshal(newParam(r.node, name, v))
	if err != nil {
		return err
	}
	return r.pub.Publish(r.topic(name), true, b)
}

// MessageWriter is the subset of *kafka.Writer the reporter needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaReporter appends parameter updates to a Kafka topic keyed by node,
// so all updates of one device land on the same partition.
type KafkaReporter struct {
	w    MessageWriter
	node string
}

// NewKafkaWriter returns an async writer: WriteMessages never blocks the
// reporting cycle, failures surface through the completion callback.
func NewKafkaWriter(brokers []string, topic string, log *slog.Logger) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		Async:        true,
		BatchTimeout: 50 * time.Millisecond,
		Completion: func(msgs []kafka.Message, err error) {
			if err != nil {
				log.Debug("kafka write failed", slog.Int("messages", len(msgs)), slog.Any("err", err))
			}
		},
	}
}

// NewKafkaReporter wraps w.
func NewKafkaReporter(w MessageWriter, node string) *KafkaReporter {
	return &KafkaReporter{w: w, node: node}
}

// Report enqueues one parameter update.
func (r *KafkaReporter) Report(ctx context.Context, name string, v float64) error {
	p := newParam(r.node, name, v)
	b, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return r.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(r.node),
		Value: b,
		Time:  time.UnixMilli(p.TS),
	})
}

// Close flushes pending messages.
func (r *KafkaReporter) Close() error {
	return r.w.Close()
}

// LogReporter writes parameter updates to the log at debug level.
type LogReporter struct {
	Log *slog.Logger
}

// Report logs one parameter.
func (r LogReporter) Report(_ context.Context, name string, v float64) error {
	r.Log.Debug("param", slog.String("name", name), slog.Float64("value", v))
	return nil
}

// Multi reports to several backends. Each backend is independent; the
// errors of all failing backends are joined.
type Multi []Reporter

// Report calls every backend.
func (m Multi) Report(ctx context.Context, name string, v float64) error {
	var errs []error
	for i, r := range m {
		if err := r.Report(ctx, name, v); err != nil {
			errs = append(errs, fmt.Errorf("reporter %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}
