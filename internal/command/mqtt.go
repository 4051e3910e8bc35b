package command

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// PubSub is the MQTT surface the command channel uses.
type PubSub interface {
	Publish(topic string, retained bool, payload []byte) error
	Subscribe(topic string, handler func(payload []byte)) error
}

// Topics names the three power topics of one node.
type Topics struct {
	Set   string // commands in
	State string // retained authoritative state out
	Ack   string // per-request acknowledgements out
}

// MQTTChannel feeds commands received on Topics.Set into an Ingress.
type MQTTChannel struct {
	in     *Ingress
	ps     PubSub
	topics Topics
	log    *slog.Logger
}

// NewMQTTChannel binds an ingress to MQTT.
func NewMQTTChannel(in *Ingress, ps PubSub, topics Topics, log *slog.Logger) *MQTTChannel {
	return &MQTTChannel{
		in:     in,
		ps:     ps,
		topics: topics,
		log:    log.With(slog.String("component", "command"), slog.String("channel", "mqtt")),
	}
}

// Start subscribes to the command topic and publishes the current state.
func (c *MQTTChannel) Start(ctx context.Context) error {
	if err := c.ps.Subscribe(c.topics.Set, func(payload []byte) { c.handle(ctx, payload) }); err != nil {
		return fmt.Errorf("subscribe %s: %w", c.topics.Set, err)
	}
	c.publishState(c.in.State())
	return nil
}

func (c *MQTTChannel) handle(ctx context.Context, payload []byte) {
	req, err := ParseRequest(payload)
	if err != nil {
		c.log.Warn("ignoring command", slog.Any("err", err))
		c.in.metrics.Command("mqtt", false)
		c.ack(Ack{Power: c.in.State(), Error: err.Error()})
		return
	}

	applied, err := c.in.Handle(ctx, "mqtt", *req.Power)
	ack := Ack{Power: applied, ID: req.ID}
	if err != nil {
		ack.Error = err.Error()
	}
	c.publishState(applied)
	c.ack(ack)
}

func (c *MQTTChannel) publishState(on bool) {
	b, _ := json.Marshal(Ack{Power: on})
	if err := c.ps.Publish(c.topics.State, true, b); err != nil {
		c.log.Debug("state publish dropped", slog.Any("err", err))
	}
}

func (c *MQTTChannel) ack(a Ack) {
	b, _ := json.Marshal(a)
	if err := c.ps.Publish(c.topics.Ack, false, b); err != nil {
		c.log.Debug("ack publish dropped", slog.Any("err", err))
	}
}

// RequestPower is the client side of the MQTT channel: it sends target
// and waits for the matching acknowledgement.
func RequestPower(ctx context.Context, ps PubSub, topics Topics, target bool) (Ack, error) {
	id := uuid.NewString()
	acks := make(chan Ack, 1)

	err := ps.Subscribe(topics.Ack, func(payload []byte) {
		var a Ack
		if json.Unmarshal(payload, &a) != nil || a.ID != id {
			return
		}
		select {
		case acks <- a:
		default:
		}
	})
	if err != nil {
		return Ack{}, fmt.Errorf("subscribe %s: %w", topics.Ack, err)
	}

	b, _ := json.Marshal(Request{Power: &target, ID: id})
	if err := ps.Publish(topics.Set, false, b); err != nil {
		return Ack{}, fmt.Errorf("publish %s: %w", topics.Set, err)
	}

	select {
	case a := <-acks:
		return a, nil
	case <-ctx.Done():
		return Ack{}, fmt.Errorf("waiting for ack: %w", ctx.Err())
	}
}
