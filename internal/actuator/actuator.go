// Package actuator owns the pump's logical on/off state and applies it to
// the physical output. Setting the current value again is a no-op.
package actuator

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/luki/smartplant/internal/metrics"
)

// Output is the hardware side of the actuator.
type Output interface {
	Apply(on bool) error
}

// Controller serialises writes and lets any goroutine read the state.
type Controller struct {
	mu      sync.Mutex // held across update-and-apply
	on      atomic.Bool
	out     Output
	log     *slog.Logger
	metrics *metrics.Metrics
}

// New returns a controller driving out. Call Init before use.
func New(out Output, log *slog.Logger, m *metrics.Metrics) *Controller {
	return &Controller{
		out:     out,
		log:     log.With(slog.String("component", "actuator")),
		metrics: m,
	}
}

// Init sets the start-up state and writes it to the hardware once.
func (c *Controller) Init(def bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.on.Store(def)
	if err := c.apply(def); err != nil {
		return fmt.Errorf("actuator init: %w", err)
	}
	return nil
}

// Set changes the logical state and performs exactly one hardware write
// when target differs from the current state. The state only changes
// once the write succeeded, so Get matches the hardware and a failed
// Set(target) is retried by the next one.
func (c *Controller) Set(target bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.on.Load() == target {
		return nil
	}
	if err := c.apply(target); err != nil {
		return err
	}
	c.on.Store(target)
	return nil
}

// Get returns the current logical state.
func (c *Controller) Get() bool {
	return c.on.Load()
}

func (c *Controller) apply(on bool) error {
	if err := c.out.Apply(on); err != nil {
		c.log.Error("actuator write failed", slog.Bool("on", on), slog.Any("err", err))
		return err
	}
	c.metrics.ActuatorWrite(on)
	c.log.Info("pump "+onOff(on))
	return nil
}

func onOff(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}
