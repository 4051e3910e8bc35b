package alert

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
)

// Publisher sends one MQTT message without waiting for delivery.
type Publisher interface {
	Publish(topic string, retained bool, payload []byte) error
}

// MQTTNotifier publishes alerts as JSON on a single topic. The payload
// carries both the free-text message and the condition code.
type MQTTNotifier struct {
	pub   Publisher
	topic string
}

// NewMQTTNotifier returns a notifier publishing to topic.
func NewMQTTNotifier(pub Publisher, topic string) *MQTTNotifier {
	return &MQTTNotifier{pub: pub, topic: topic}
}

// Raise publishes a.
func (n *MQTTNotifier) Raise(_ context.Context, a Alert) error {
	b, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode alert: %w", err)
	}
	return n.pub.Publish(n.topic, false, b)
}

// LogNotifier writes alerts to the log only.
type LogNotifier struct {
	Log *slog.Logger
}

// Raise logs a.
func (n LogNotifier) Raise(_ context.Context, a Alert) error {
	n.Log.Warn("notification",
		slog.String("id", a.ID),
		slog.String("condition", a.Condition.String()),
		slog.String("message", a.Message))
	return nil
}

// Multi fans one alert out to several notifiers. Each notifier is
// independent; the errors of all failing notifiers are joined.
type Multi []Notifier

// Raise calls every notifier in order.
func (m Multi) Raise(ctx context.Context, a Alert) error {
	var errs []error
	for i, n := range m {
		if err := n.Raise(ctx, a); err != nil {
			errs = append(errs, fmt.Errorf("notifier %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}
