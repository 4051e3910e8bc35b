package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luki/smartplant/internal/config"
)

type recordingRenderer struct {
	mu     sync.Mutex
	frames [][]string
}

func (r *recordingRenderer) Render(lines []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, lines)
	return nil
}

func (r *recordingRenderer) last() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.frames) == 0 {
		return nil
	}
	return r.frames[len(r.frames)-1]
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func benchConfig() config.Config {
	c := config.Default()
	c.NodeID = "bench"
	c.MQTTBroker = ""
	c.HTTPAddr = ""
	c.Reporters = []string{"log"}
	c.AcquisitionPeriod = 5 * time.Millisecond
	c.ReportPeriod = 5 * time.Millisecond
	c.ReportStartDelay = 0
	c.AlertPeriod = 5 * time.Millisecond
	c.AlertStartDelay = 0
	c.DisplayPeriod = 5 * time.Millisecond
	return c
}

func TestRunSimulated(t *testing.T) {
	r := &recordingRenderer{}
	a, err := New(benchConfig(), discard(), WithRenderer(r))
	require.NoError(t, err)
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	assert.Eventually(t, func() bool { return a.Cell().Snapshot().Valid }, 2*time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool {
		l := r.last()
		return len(l) == 4 && l[1] != "No sensor data"
	}, 2*time.Second, 5*time.Millisecond)

	on, err := a.Ingress().Handle(ctx, "test", true)
	require.NoError(t, err)
	assert.True(t, on)
	assert.Eventually(t, func() bool {
		l := r.last()
		return len(l) == 4 && l[2] == "Pump: ON"
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestDefaultPowerApplied(t *testing.T) {
	c := benchConfig()
	c.DefaultPower = true
	a, err := New(c, discard())
	require.NoError(t, err)
	defer a.Close()
	assert.True(t, a.Ingress().State())
}

func TestMissingSensorIsFatal(t *testing.T) {
	c := benchConfig()
	c.Sensor = "iio"
	c.IIORoot = filepath.Join(t.TempDir(), "iio")

	_, err := New(c, discard())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPeripheralInit))
}

func TestMissingGPIOIsFatal(t *testing.T) {
	c := benchConfig()
	c.Actuator = "gpio"
	c.GPIORoot = filepath.Join(t.TempDir(), "gpio")

	_, err := New(c, discard())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPeripheralInit))
}

func TestGPIOActuatorWired(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "gpio3")
	require.NoError(t, os.MkdirAll(dir, 0755))

	c := benchConfig()
	c.Actuator = "gpio"
	c.GPIORoot = root
	a, err := New(c, discard())
	require.NoError(t, err)
	defer a.Close()

	v, err := os.ReadFile(filepath.Join(dir, "value"))
	require.NoError(t, err)
	assert.Equal(t, "1", string(v), "default off drives the active-low line high")
}

func TestMissingPanelFallsBackToHeadless(t *testing.T) {
	c := benchConfig()
	c.Display = "panel"
	c.DisplayPath = filepath.Join(t.TempDir(), "no", "such", "tty")

	a, err := New(c, discard())
	require.NoError(t, err)
	assert.NoError(t, a.Close())
}
