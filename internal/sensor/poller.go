package sensor

import (
	"context"
	"log/slog"
	"time"

	"github.com/luki/smartplant/internal/metrics"
	"github.com/luki/smartplant/internal/schedule"
)

// Sink receives the outcome of every poll. state.Cell implements it.
type Sink interface {
	Publish(Reading)
	Invalidate()
}

// Poller is the acquisition unit: it reads the sensor once per period
// and publishes the result, or invalidates the sink when the read fails.
type Poller struct {
	src     Source
	sink    Sink
	period  time.Duration
	log     *slog.Logger
	metrics *metrics.Metrics
}

// NewPoller wires a source to a sink.
func NewPoller(src Source, sink Sink, period time.Duration, log *slog.Logger, m *metrics.Metrics) *Poller {
	return &Poller{
		src:     src,
		sink:    sink,
		period:  period,
		log:     log.With(slog.String("component", "sensor")),
		metrics: m,
	}
}

// Run polls until ctx is cancelled. The first poll happens immediately.
func (p *Poller) Run(ctx context.Context) {
	p.log.Info("sensor task started", slog.Duration("period", p.period))
	schedule.Loop(ctx, 0, p.period, p.Cycle)
}

// Cycle performs one poll. A failed read is never fatal and never retried
// before the next period.
func (p *Poller) Cycle(ctx context.Context) {
	r, err := p.src.Read(ctx)
	if err != nil {
		p.sink.Invalidate()
		p.metrics.SensorRead(false, 0, 0)
		p.log.Warn("sensor read error", slog.Any("err", err))
		return
	}
	p.sink.Publish(r)
	p.metrics.SensorRead(true, r.Temperature, r.Humidity)
	p.log.Info("reading",
		slog.Float64("temperature", r.Temperature),
		slog.Float64("humidity", r.Humidity))
}
