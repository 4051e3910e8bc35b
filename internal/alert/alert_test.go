package alert

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luki/smartplant/internal/sensor"
	"github.com/luki/smartplant/internal/state"
)

func TestClassify(t *testing.T) {
	th := DefaultThresholds()
	tests := []struct {
		temp, hum float64
		want      Condition
	}{
		{25, 60, Normal},
		{35, 60, TooHot},
		{34.9, 40.1, Normal},
		{25, 40, TooDry},
		{36, 30, TooHotAndDry},
		{35, 40, TooHotAndDry},
		{50, 0, TooHotAndDry},
	}
	for _, tt := range tests {
		got := Classify(sensor.Reading{Temperature: tt.temp, Humidity: tt.hum}, th)
		if got != tt.want {
			t.Errorf("Classify(%.1f, %.1f) = %v, want %v", tt.temp, tt.hum, got, tt.want)
		}
	}
}

func TestClassifyCombinedWins(t *testing.T) {
	th := DefaultThresholds()
	for temp := th.HighTemp; temp <= th.HighTemp+20; temp += 2.5 {
		for hum := 0.0; hum <= th.LowHumidity; hum += 5 {
			got := Classify(sensor.Reading{Temperature: temp, Humidity: hum}, th)
			if got != TooHotAndDry {
				t.Fatalf("Classify(%.1f, %.1f) = %v, want too_hot_and_dry", temp, hum, got)
			}
		}
	}
}

func TestDebouncerRisingEdges(t *testing.T) {
	seq := []Condition{Normal, TooHot, TooHot, TooHot, Normal, TooHot}
	var d Debouncer
	fired := 0
	for _, c := range seq {
		if d.Observe(c) {
			fired++
		}
	}
	if fired != 2 {
		t.Errorf("fired %d notifications, want 2", fired)
	}
}

func TestDebouncerClassChangeWhileRaised(t *testing.T) {
	var d Debouncer
	assert.True(t, d.Observe(TooDry))
	assert.False(t, d.Observe(TooHotAndDry), "class change inside an episode must not re-fire")
	assert.False(t, d.Observe(TooHot))
	assert.False(t, d.Observe(Normal))
	assert.False(t, d.Raised())
	assert.True(t, d.Observe(TooDry), "same class after recovery fires again")
}

func TestMessage(t *testing.T) {
	r := sensor.Reading{Temperature: 36.0, Humidity: 30.0}
	assert.Equal(t, "Too hot & too dry! T=36.0°C H=30.0%", Message(TooHotAndDry, r))
	assert.Equal(t, "Temperature too high! 36.0°C", Message(TooHot, r))
	assert.Equal(t, "Humidity too low! 30.0%", Message(TooDry, r))
}

type recordingNotifier struct {
	alerts []Alert
	err    error
}

func (n *recordingNotifier) Raise(_ context.Context, a Alert) error {
	n.alerts = append(n.alerts, a)
	return n.err
}

func newTestUnit(cell state.Reader, n Notifier) *Unit {
	u := NewUnit(cell, DefaultThresholds(), n, 0, time.Second, slog.New(slog.NewTextHandler(io.Discard, nil)), nil)
	u.now = func() time.Time { return time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC) }
	return u
}

func TestUnitHotAndDryEndToEnd(t *testing.T) {
	cell := state.New()
	n := &recordingNotifier{}
	u := newTestUnit(cell, n)

	cell.Publish(sensor.Reading{Temperature: 36.0, Humidity: 30.0})
	for i := 0; i < 5; i++ {
		u.Cycle(context.Background())
	}

	require.Len(t, n.alerts, 1)
	a := n.alerts[0]
	assert.Equal(t, TooHotAndDry, a.Condition)
	msg := strings.ToLower(a.Message)
	assert.Contains(t, msg, "too hot")
	assert.Contains(t, msg, "too dry")
	assert.NotEmpty(t, a.ID)
	assert.True(t, u.Raised())
}

func TestUnitSkipsInvalidSnapshot(t *testing.T) {
	cell := state.New()
	n := &recordingNotifier{}
	u := newTestUnit(cell, n)

	u.Cycle(context.Background())
	assert.Empty(t, n.alerts)

	cell.Publish(sensor.Reading{Temperature: 40, Humidity: 20})
	cell.Invalidate()
	u.Cycle(context.Background())
	assert.Empty(t, n.alerts, "stale reading must not trigger a notification")

	cell.Publish(sensor.Reading{Temperature: 40, Humidity: 20})
	u.Cycle(context.Background())
	assert.Len(t, n.alerts, 1)
}

func TestUnitRecoveryRearms(t *testing.T) {
	cell := state.New()
	n := &recordingNotifier{}
	u := newTestUnit(cell, n)

	readings := []sensor.Reading{
		{Temperature: 25, Humidity: 60},
		{Temperature: 36, Humidity: 60},
		{Temperature: 37, Humidity: 60},
		{Temperature: 38, Humidity: 60},
		{Temperature: 25, Humidity: 60},
		{Temperature: 36, Humidity: 60},
	}
	for _, r := range readings {
		cell.Publish(r)
		u.Cycle(context.Background())
	}

	require.Len(t, n.alerts, 2)
	assert.Equal(t, TooHot, n.alerts[1].Condition)
}

func TestUnitNotifierErrorDoesNotRefire(t *testing.T) {
	cell := state.New()
	n := &recordingNotifier{err: errors.New("broker down")}
	u := newTestUnit(cell, n)

	cell.Publish(sensor.Reading{Temperature: 20, Humidity: 10})
	u.Cycle(context.Background())
	u.Cycle(context.Background())
	assert.Len(t, n.alerts, 1)
}

type fakePublisher struct {
	topic    string
	retained bool
	payload  []byte
}

func (p *fakePublisher) Publish(topic string, retained bool, payload []byte) error {
	p.topic, p.retained, p.payload = topic, retained, payload
	return nil
}

func TestMQTTNotifierPayload(t *testing.T) {
	pub := &fakePublisher{}
	n := NewMQTTNotifier(pub, "smartplant/node-1/alert")

	a := Alert{
		ID:        "abc",
		Condition: TooHotAndDry,
		Message:   Message(TooHotAndDry, sensor.Reading{Temperature: 36, Humidity: 30}),
		Reading:   sensor.Reading{Temperature: 36, Humidity: 30},
	}
	require.NoError(t, n.Raise(context.Background(), a))
	assert.Equal(t, "smartplant/node-1/alert", pub.topic)
	assert.False(t, pub.retained)

	var got map[string]any
	require.NoError(t, json.Unmarshal(pub.payload, &got))
	assert.Equal(t, "too_hot_and_dry", got["condition"])
	assert.Equal(t, a.Message, got["message"])
}

func TestMultiNotifier(t *testing.T) {
	down := errors.New("down")
	refused := errors.New("refused")
	failing := &recordingNotifier{err: down}
	ok := &recordingNotifier{}
	alsoFailing := &recordingNotifier{err: refused}

	err := Multi{failing, ok, alsoFailing}.Raise(context.Background(), Alert{ID: "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, down)
	assert.ErrorIs(t, err, refused, "every failure is reported")
	assert.Len(t, ok.alerts, 1, "later notifiers still run")

	assert.NoError(t, Multi{ok}.Raise(context.Background(), Alert{ID: "y"}))
}
