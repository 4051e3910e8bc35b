// Package telemetry forwards the latest valid reading to the remote
// dashboard as two independent parameter updates. Reports are
// fire-and-forget: a missed update heals on the next cycle.
package telemetry

import (
	"context"
	"log/slog"
	"time"

	"github.com/luki/smartplant/internal/metrics"
	"github.com/luki/smartplant/internal/schedule"
	"github.com/luki/smartplant/internal/state"
)

// Parameter names reported for every valid reading.
const (
	ParamTemperature = "temperature"
	ParamHumidity    = "humidity"
)

// Reporter is the remote reporting capability.
type Reporter interface {
	Report(ctx context.Context, name string, value float64) error
}

// Unit is the telemetry reporting task.
type Unit struct {
	cell     state.Reader
	reporter Reporter
	delay    time.Duration
	period   time.Duration
	log      *slog.Logger
	metrics  *metrics.Metrics
}

// NewUnit builds the reporting task. delay gives the reporting backend
// time to connect before the first cycle.
func NewUnit(cell state.Reader, r Reporter, delay, period time.Duration, log *slog.Logger, m *metrics.Metrics) *Unit {
	return &Unit{
		cell:     cell,
		reporter: r,
		delay:    delay,
		period:   period,
		log:      log.With(slog.String("component", "telemetry")),
		metrics:  m,
	}
}

// Run reports until ctx is cancelled.
func (u *Unit) Run(ctx context.Context) {
	u.log.Info("cloud task started", slog.Duration("delay", u.delay), slog.Duration("period", u.period))
	schedule.Loop(ctx, u.delay, u.period, u.Cycle)
}

// Cycle reports the current snapshot, or does nothing when it is invalid.
func (u *Unit) Cycle(ctx context.Context) {
	snap := u.cell.Snapshot()
	if !snap.Valid {
		return
	}

	u.report(ctx, ParamTemperature, snap.Reading.Temperature)
	u.report(ctx, ParamHumidity, snap.Reading.Humidity)

	u.log.Info("cloud updated",
		slog.Float64("temperature", snap.Reading.Temperature),
		slog.Float64("humidity", snap.Reading.Humidity))
}

func (u *Unit) report(ctx context.Context, name string, v float64) {
	err := u.reporter.Report(ctx, name, v)
	u.metrics.Report(name, err == nil)
	if err != nil {
		u.log.Debug("report dropped", slog.String("param", name), slog.Any("err", err))
	}
}
