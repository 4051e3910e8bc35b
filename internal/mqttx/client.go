// Package mqttx wraps the paho MQTT client with the node's topic layout
// and the fire-and-forget publish semantics the device relies on.
package mqttx

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// ErrConnect is returned when the client options are rejected outright.
// A broker that is merely unreachable is not an error: the client keeps
// retrying in the background.
var ErrConnect = errors.New("mqtt connect failed")

// Options configures Connect.
type Options struct {
	Broker         string
	ClientID       string
	Username       string
	Password       string
	ConnectTimeout time.Duration
	// OnConnect runs after every (re)connect, after subscriptions are restored.
	OnConnect func(*Client)
}

// Client is a connected (or connecting) MQTT session.
type Client struct {
	c   mqtt.Client
	log *slog.Logger

	mu   sync.Mutex
	subs map[string]mqtt.MessageHandler
}

// Connect starts the session. It waits at most ConnectTimeout for the
// first connection and then returns regardless; publishes made while
// disconnected are dropped.
func Connect(o Options, log *slog.Logger) (*Client, error) {
	cl := &Client{
		log:  log.With(slog.String("component", "mqtt")),
		subs: make(map[string]mqtt.MessageHandler),
	}

	opts := mqtt.NewClientOptions().
		AddBroker(o.Broker).
		SetClientID(o.ClientID).
		SetUsername(o.Username).
		SetPassword(o.Password).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOrderMatters(false).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			cl.log.Warn("connection lost", slog.Any("err", err))
		}).
		SetOnConnectHandler(func(mqtt.Client) {
			cl.log.Info("connected", slog.String("broker", o.Broker))
			cl.resubscribe()
			if o.OnConnect != nil {
				o.OnConnect(cl)
			}
		})

	cl.c = mqtt.NewClient(opts)
	tok := cl.c.Connect()
	timeout := o.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if !tok.WaitTimeout(timeout) {
		cl.log.Warn("broker not reachable yet; retrying in background", slog.String("broker", o.Broker))
		return cl, nil
	}
	if err := tok.Error(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnect, err)
	}
	return cl, nil
}

// Publish queues one message and returns without waiting for delivery.
// Only errors that are known immediately (e.g. not connected) are returned.
func (cl *Client) Publish(topic string, retained bool, payload []byte) error {
	if !cl.c.IsConnectionOpen() {
		return mqtt.ErrNotConnected
	}
	tok := cl.c.Publish(topic, 1, retained, payload)
	select {
	case <-tok.Done():
		return tok.Error()
	default:
		return nil
	}
}

// Subscribe registers handler for topic. The subscription is restored on
// every reconnect.
func (cl *Client) Subscribe(topic string, handler func(payload []byte)) error {
	h := func(_ mqtt.Client, m mqtt.Message) { handler(m.Payload()) }

	cl.mu.Lock()
	cl.subs[topic] = h
	cl.mu.Unlock()

	if !cl.c.IsConnectionOpen() {
		// picked up by resubscribe once connected
		return nil
	}
	tok := cl.c.Subscribe(topic, 1, h)
	if !tok.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("subscribe %s: timeout", topic)
	}
	return tok.Error()
}

func (cl *Client) resubscribe() {
	cl.mu.Lock()
	filters := make(map[string]byte, len(cl.subs))
	handlers := make(map[string]mqtt.MessageHandler, len(cl.subs))
	for t, h := range cl.subs {
		filters[t] = 1
		handlers[t] = h
	}
	cl.mu.Unlock()

	for t, h := range handlers {
		// OnConnect runs on paho's goroutine; never block it on a token.
		cl.c.Subscribe(t, filters[t], h)
	}
}

// Connected reports whether the session is currently up.
func (cl *Client) Connected() bool {
	return cl.c.IsConnectionOpen()
}

// Close disconnects, giving in-flight messages 250ms to drain.
func (cl *Client) Close() {
	cl.c.Disconnect(250)
}

// Topics builds the node's topic names: <prefix>/<node>/<suffix>.
type Topics struct {
	Prefix string
	Node   string
}

func (t Topics) join(parts ...string) string {
	return strings.Join(append([]string{t.Prefix, t.Node}, parts...), "/")
}

// Param is the retained topic for one reported parameter.
func (t Topics) Param(name string) string { return t.join("params", name) }

// Alert is the notification topic.
func (t Topics) Alert() string { return t.join("alert") }

// PowerSet receives power commands.
func (t Topics) PowerSet() string { return t.join("power", "set") }

// Power carries the retained authoritative power state.
func (t Topics) Power() string { return t.join("power") }

// PowerAck carries per-request acknowledgements.
func (t Topics) PowerAck() string { return t.join("power", "ack") }

// Attributes carries the retained node attributes.
func (t Topics) Attributes() string { return t.join("attributes") }
