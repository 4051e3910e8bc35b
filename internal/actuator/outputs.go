package actuator

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// DefaultGPIORoot is the legacy sysfs GPIO interface.
const DefaultGPIORoot = "/sys/class/gpio"

// ErrGPIOUnavailable is returned when the pin cannot be exported or
// configured as an output.
var ErrGPIOUnavailable = errors.New("gpio unavailable")

// GPIOOutput drives one sysfs GPIO line. With ActiveLow the pump is on
// when the line is low, which matches a buzzer or relay wired between
// 3V3 and the pin.
type GPIOOutput struct {
	pin       int
	activeLow bool
	valuePath string
}

// OpenGPIO exports pin under root (if needed) and configures it as an
// output. The line level is not touched; Controller.Init does that.
func OpenGPIO(root string, pin int, activeLow bool) (*GPIOOutput, error) {
	if root == "" {
		root = DefaultGPIORoot
	}
	dir := filepath.Join(root, "gpio"+strconv.Itoa(pin))

	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.WriteFile(filepath.Join(root, "export"), []byte(strconv.Itoa(pin)), 0644); err != nil {
			return nil, fmt.Errorf("%w: export gpio%d: %v", ErrGPIOUnavailable, pin, err)
		}
		// udev needs a moment to fix permissions on the new node
		for i := 0; i < 10; i++ {
			if _, err := os.Stat(filepath.Join(dir, "direction")); err == nil {
				break
			}
			time.Sleep(20 * time.Millisecond)
		}
	}

	if err := os.WriteFile(filepath.Join(dir, "direction"), []byte("out"), 0644); err != nil {
		return nil, fmt.Errorf("%w: gpio%d direction: %v", ErrGPIOUnavailable, pin, err)
	}

	return &GPIOOutput{
		pin:       pin,
		activeLow: activeLow,
		valuePath: filepath.Join(dir, "value"),
	}, nil
}

// Level returns the line level written for a logical state.
func (g *GPIOOutput) Level(on bool) int {
	if on != g.activeLow {
		return 1
	}
	return 0
}

// Apply writes the line level.
func (g *GPIOOutput) Apply(on bool) error {
	level := g.Level(on)
	if err := os.WriteFile(g.valuePath, []byte(strconv.Itoa(level)), 0644); err != nil {
		return fmt.Errorf("gpio%d write: %w", g.pin, err)
	}
	return nil
}

// LogOutput stands in for the hardware on a bench: it only logs.
type LogOutput struct {
	Log *slog.Logger
}

// Apply logs the requested state.
func (o LogOutput) Apply(on bool) error {
	o.Log.Debug("actuator output", slog.String("state", onOff(on)))
	return nil
}
