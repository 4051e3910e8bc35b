package command

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeActuator struct {
	mu      sync.Mutex
	on      bool
	applies int
	err     error
}

func (a *fakeActuator) Set(target bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.on == target {
		return nil
	}
	a.on = target
	a.applies++
	return a.err
}

func (a *fakeActuator) Get() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.on
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestParseRequest(t *testing.T) {
	tests := []struct {
		payload string
		want    bool
		id      string
		wantErr bool
	}{
		{"true", true, "", false},
		{"ON", true, "", false},
		{" 1\n", true, "", false},
		{"off", false, "", false},
		{`"false"`, false, "", false},
		{`{"power":true,"id":"r1"}`, true, "r1", false},
		{`{"power":false}`, false, "", false},
		{`{"id":"r2"}`, false, "", true},
		{`{"power":"yes"}`, false, "", true},
		{"maybe", false, "", true},
		{"", false, "", true},
	}
	for _, tt := range tests {
		req, err := ParseRequest([]byte(tt.payload))
		if tt.wantErr {
			if !errors.Is(err, ErrBadPayload) {
				t.Errorf("ParseRequest(%q): got err %v, want ErrBadPayload", tt.payload, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseRequest(%q): unexpected error %v", tt.payload, err)
			continue
		}
		if *req.Power != tt.want || req.ID != tt.id {
			t.Errorf("ParseRequest(%q) = {%v %q}, want {%v %q}", tt.payload, *req.Power, req.ID, tt.want, tt.id)
		}
	}
}

func TestIngressEchoesAuthoritativeState(t *testing.T) {
	act := &fakeActuator{}
	in := NewIngress(act, discard(), nil)

	applied, err := in.Handle(context.Background(), "test", true)
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = in.Handle(context.Background(), "test", true)
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, 1, act.applies)

	applied, err = in.Toggle(context.Background(), "test")
	require.NoError(t, err)
	assert.False(t, applied)
}

func TestIngressReportsSetterError(t *testing.T) {
	act := &fakeActuator{err: errors.New("gpio")}
	in := NewIngress(act, discard(), nil)

	applied, err := in.Handle(context.Background(), "test", true)
	assert.Error(t, err)
	assert.Equal(t, act.Get(), applied)
}

// loopback is an in-memory broker: publishes are delivered synchronously
// to subscribers of the same topic.
type loopback struct {
	mu       sync.Mutex
	subs     map[string][]func([]byte)
	retained map[string][]byte
}

func newLoopback() *loopback {
	return &loopback{subs: map[string][]func([]byte){}, retained: map[string][]byte{}}
}

func (l *loopback) Publish(topic string, retained bool, payload []byte) error {
	l.mu.Lock()
	if retained {
		l.retained[topic] = payload
	}
	handlers := append([]func([]byte){}, l.subs[topic]...)
	l.mu.Unlock()
	for _, h := range handlers {
		h(payload)
	}
	return nil
}

func (l *loopback) Subscribe(topic string, h func([]byte)) error {
	l.mu.Lock()
	l.subs[topic] = append(l.subs[topic], h)
	l.mu.Unlock()
	return nil
}

var testTopics = Topics{
	Set:   "smartplant/node-1/power/set",
	State: "smartplant/node-1/power",
	Ack:   "smartplant/node-1/power/ack",
}

func TestMQTTChannel(t *testing.T) {
	broker := newLoopback()
	act := &fakeActuator{}
	ch := NewMQTTChannel(NewIngress(act, discard(), nil), broker, testTopics, discard())
	require.NoError(t, ch.Start(context.Background()))

	var st Ack
	require.NoError(t, json.Unmarshal(broker.retained[testTopics.State], &st))
	assert.False(t, st.Power, "initial state is published on start")

	require.NoError(t, broker.Publish(testTopics.Set, false, []byte("on")))
	assert.True(t, act.Get())
	require.NoError(t, json.Unmarshal(broker.retained[testTopics.State], &st))
	assert.True(t, st.Power)

	// garbage leaves the pump alone
	require.NoError(t, broker.Publish(testTopics.Set, false, []byte("maybe")))
	assert.True(t, act.Get())
}

func TestRequestPowerRoundTrip(t *testing.T) {
	broker := newLoopback()
	act := &fakeActuator{}
	ch := NewMQTTChannel(NewIngress(act, discard(), nil), broker, testTopics, discard())
	require.NoError(t, ch.Start(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	ack, err := RequestPower(ctx, broker, testTopics, true)
	require.NoError(t, err)
	assert.True(t, ack.Power)
	assert.NotEmpty(t, ack.ID)
	assert.Empty(t, ack.Error)
	assert.True(t, act.Get())
}

func TestRequestPowerTimeout(t *testing.T) {
	broker := newLoopback()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := RequestPower(ctx, broker, testTopics, true)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
