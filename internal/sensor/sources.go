package sensor

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

// ErrReadFailed marks a failed sensor sample. Callers treat it as
// recoverable: the next cycle is the retry.
var ErrReadFailed = errors.New("sensor read failed")

// ErrNoDevice is returned when no supported IIO sensor is present.
var ErrNoDevice = errors.New("no supported humidity sensor found")

// Source is the sensor capability consumed by the Poller.
type Source interface {
	Read(ctx context.Context) (Reading, error)
}

// SourceFunc adapts a plain function to the Source interface.
type SourceFunc func(ctx context.Context) (Reading, error)

// Read calls f.
func (f SourceFunc) Read(ctx context.Context) (Reading, error) {
	return f(ctx)
}

// DefaultIIORoot is where the kernel exposes IIO devices.
const DefaultIIORoot = "/sys/bus/iio/devices"

// IIOSource reads a temperature/humidity sensor exposed by a Linux IIO
// driver (dht11, si7020, hdc100x, ...). Values in sysfs are milli-units.
type IIOSource struct {
	Dir   string // e.g. /sys/bus/iio/devices/iio:device0
	Model string // e.g. "DHT11"
}

// FindIIO scans root for the first IIO device with a known sensor name.
func FindIIO(root string) (*IIOSource, error) {
	if root == "" {
		root = DefaultIIORoot
	}
	matches, _ := filepath.Glob(filepath.Join(root, "iio:device*", "name"))
	for _, namePath := range matches {
		b, err := os.ReadFile(namePath)
		if err != nil {
			continue
		}
		model := FriendlyName(string(b))
		if model == "" {
			continue
		}
		return &IIOSource{Dir: filepath.Dir(namePath), Model: model}, nil
	}
	return nil, fmt.Errorf("%w under %s", ErrNoDevice, root)
}

// OpenIIO returns a source for a known device directory after checking
// that both channels are present.
func OpenIIO(dir string) (*IIOSource, error) {
	for _, ch := range []string{"in_temp_input", "in_humidityrelative_input"} {
		if _, err := os.Stat(filepath.Join(dir, ch)); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNoDevice, err)
		}
	}
	model := "Sensor"
	if b, err := os.ReadFile(filepath.Join(dir, "name")); err == nil {
		if n := FriendlyName(string(b)); n != "" {
			model = n
		}
	}
	return &IIOSource{Dir: dir, Model: model}, nil
}

// Read samples both channels. The dht11 driver returns EIO or ETIMEDOUT
// on a bad checksum or a missed pulse; both surface as ErrReadFailed.
func (s *IIOSource) Read(ctx context.Context) (Reading, error) {
	if err := ctx.Err(); err != nil {
		return Reading{}, err
	}
	t, err := readMilli(filepath.Join(s.Dir, "in_temp_input"))
	if err != nil {
		return Reading{}, fmt.Errorf("%w: temperature: %v", ErrReadFailed, err)
	}
	h, err := readMilli(filepath.Join(s.Dir, "in_humidityrelative_input"))
	if err != nil {
		return Reading{}, fmt.Errorf("%w: humidity: %v", ErrReadFailed, err)
	}
	return FromMilli(t, h), nil
}

func readMilli(path string) (int64, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(strings.TrimSpace(string(b)), 10, 64)
}

// SimSource produces a bounded random walk for bench runs. Every FailEvery
// reads (when > 0) one read fails, mimicking a DHT checksum error.
type SimSource struct {
	mu        sync.Mutex
	rng       *rand.Rand
	cur       Reading
	reads     int
	FailEvery int
}

// NewSimSource starts the walk at start.
func NewSimSource(seed int64, start Reading) *SimSource {
	return &SimSource{
		rng: rand.New(rand.NewSource(seed)),
		cur: start,
	}
}

// Read advances the walk by one step.
func (s *SimSource) Read(ctx context.Context) (Reading, error) {
	if err := ctx.Err(); err != nil {
		return Reading{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reads++
	if s.FailEvery > 0 && s.reads%s.FailEvery == 0 {
		return Reading{}, fmt.Errorf("%w: simulated checksum error", ErrReadFailed)
	}

	s.cur.Temperature = clamp(s.cur.Temperature+(s.rng.Float64()-0.5), 0, 50)
	s.cur.Humidity = clamp(s.cur.Humidity+(s.rng.Float64()-0.5)*2, 20, 90)

	// DHT11 resolution is 0.1, keep the simulated values on the same grid.
	return FromTenths(int16(s.cur.Temperature*10), int16(s.cur.Humidity*10)), nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
