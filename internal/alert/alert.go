package alert

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/luki/smartplant/internal/metrics"
	"github.com/luki/smartplant/internal/schedule"
	"github.com/luki/smartplant/internal/sensor"
	"github.com/luki/smartplant/internal/state"
)

// Alert is the payload handed to a Notifier.
type Alert struct {
	ID        string         `json:"id"`
	Condition Condition      `json:"condition"`
	Message   string         `json:"message"`
	Reading   sensor.Reading `json:"reading"`
	RaisedAt  time.Time      `json:"raisedAt"`
}

// Notifier is the notification capability. Raise is fire-and-forget:
// an error is logged by the caller and never retried.
type Notifier interface {
	Raise(ctx context.Context, a Alert) error
}

// Unit is the alert evaluation task.
type Unit struct {
	cell     state.Reader
	th       Thresholds
	notifier Notifier
	delay    time.Duration
	period   time.Duration
	log      *slog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time

	deb    Debouncer
	raised atomic.Bool // mirror of deb for readers on other goroutines
}

// NewUnit builds the evaluation task. delay postpones the first cycle so
// the rest of the device can settle.
func NewUnit(cell state.Reader, th Thresholds, n Notifier, delay, period time.Duration, log *slog.Logger, m *metrics.Metrics) *Unit {
	return &Unit{
		cell:     cell,
		th:       th,
		notifier: n,
		delay:    delay,
		period:   period,
		log:      log.With(slog.String("component", "alert")),
		metrics:  m,
		now:      time.Now,
	}
}

// Run evaluates until ctx is cancelled.
func (u *Unit) Run(ctx context.Context) {
	u.log.Info("alert task started",
		slog.Duration("delay", u.delay),
		slog.Duration("period", u.period),
		slog.Float64("high_temp", u.th.HighTemp),
		slog.Float64("low_humidity", u.th.LowHumidity))
	schedule.Loop(ctx, u.delay, u.period, u.Cycle)
}

// Cycle runs one evaluation. It must only be called from the goroutine
// that owns the unit.
func (u *Unit) Cycle(ctx context.Context) {
	snap := u.cell.Snapshot()
	if !snap.Valid {
		return
	}

	cond := Classify(snap.Reading, u.th)
	wasRaised := u.deb.Raised()
	fire := u.deb.Observe(cond)
	u.raised.Store(u.deb.Raised())
	if !fire {
		if wasRaised && !u.deb.Raised() {
			u.log.Info("conditions normal again", slog.String("reading", snap.Reading.String()))
		}
		return
	}

	a := Alert{
		ID:        uuid.NewString(),
		Condition: cond,
		Message:   Message(cond, snap.Reading),
		Reading:   snap.Reading,
		RaisedAt:  u.now(),
	}
	u.log.Warn("ALERT", slog.String("message", a.Message), slog.String("condition", cond.String()))
	u.metrics.Notification(cond.String())

	if err := u.notifier.Raise(ctx, a); err != nil {
		u.log.Warn("notification not delivered", slog.String("id", a.ID), slog.Any("err", err))
	}
}

// Raised reports whether the unit is inside an abnormal episode. Safe
// for concurrent use.
func (u *Unit) Raised() bool {
	return u.raised.Load()
}
