// Package display refreshes the device's four-line status screen from the
// shared sensor cell and the pump state. It classifies readings on its own
// and shares no mutable state with the alert task.
package display

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/luki/smartplant/internal/alert"
	"github.com/luki/smartplant/internal/metrics"
	"github.com/luki/smartplant/internal/schedule"
	"github.com/luki/smartplant/internal/state"
)

// ErrNoDisplay is returned by renderers when no screen is attached.
var ErrNoDisplay = errors.New("no display attached")

// Width is the number of characters per line on the 128px OLED with the
// 6px font, and the width every renderer lays lines out for.
const Width = 21

// Status line shown before the first valid reading.
const StatusInitializing = "Initializing..."

// Renderer is the display capability.
type Renderer interface {
	Render(lines []string) error
}

// PumpReader exposes the actuator state.
type PumpReader interface {
	Get() bool
}

// None is the renderer used when no display is configured.
type None struct{}

// Render always fails with ErrNoDisplay.
func (None) Render([]string) error { return ErrNoDisplay }

// StatusPhrase is the short status text for a condition.
func StatusPhrase(c alert.Condition) string {
	switch c {
	case alert.TooHotAndDry:
		return "too hot & dry"
	case alert.TooHot:
		return "temp too high"
	case alert.TooDry:
		return "humidity low"
	default:
		return "ok"
	}
}

// Lines builds the screen for one refresh.
func Lines(title string, snap state.Snapshot, pumpOn bool, th alert.Thresholds) []string {
	pump := "Pump: " + onOff(pumpOn)
	if !snap.Valid {
		return []string{title, "No sensor data", pump, StatusInitializing}
	}
	r := snap.Reading
	return []string{
		title,
		fmt.Sprintf("T:%.1fC H:%.1f%%", r.Temperature, r.Humidity),
		pump,
		StatusPhrase(alert.Classify(r, th)),
	}
}

func onOff(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}

// Unit is the display refresh task.
type Unit struct {
	title    string
	cell     state.Reader
	pump     PumpReader
	th       alert.Thresholds
	renderer Renderer
	period   time.Duration
	log      *slog.Logger
	metrics  *metrics.Metrics

	failures int
}

// NewUnit builds the display task.
func NewUnit(title string, cell state.Reader, pump PumpReader, th alert.Thresholds, r Renderer, period time.Duration, log *slog.Logger, m *metrics.Metrics) *Unit {
	return &Unit{
		title:    title,
		cell:     cell,
		pump:     pump,
		th:       th,
		renderer: r,
		period:   period,
		log:      log.With(slog.String("component", "display")),
		metrics:  m,
	}
}

// Run refreshes until ctx is cancelled.
func (u *Unit) Run(ctx context.Context) {
	u.log.Info("display task started", slog.Duration("period", u.period))
	schedule.Loop(ctx, 0, u.period, u.Cycle)
}

// Cycle renders once. A render failure skips this refresh; only the first
// failure of a streak is logged at warning level.
func (u *Unit) Cycle(context.Context) {
	lines := Lines(u.title, u.cell.Snapshot(), u.pump.Get(), u.th)

	if err := u.renderer.Render(lines); err != nil {
		u.failures++
		u.metrics.RenderFailure()
		if u.failures == 1 {
			u.log.Warn("display render failed", slog.Any("err", err))
		} else {
			u.log.Debug("display render failed", slog.Int("streak", u.failures), slog.Any("err", err))
		}
		return
	}
	if u.failures > 0 {
		u.log.Info("display recovered", slog.Int("skipped", u.failures))
		u.failures = 0
	}
}
