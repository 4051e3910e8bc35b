// Package sensor samples the plant's temperature/humidity sensor and
// publishes every reading into the shared state cell. It combines the
// Linux IIO driver (DHT11/DHT22 via sysfs) and a simulated source so the
// device can run on a bench without hardware.
package sensor

import "fmt"

// Reading is one sampled temperature/humidity pair.
type Reading struct {
	Temperature float64 `json:"temperature"` // degrees Celsius
	Humidity    float64 `json:"humidity"`    // relative humidity, percent
}

// FromTenths converts raw DHT driver values, which are reported in tenths
// of a unit, to engineering units.
func FromTenths(rawTemp, rawHum int16) Reading {
	return Reading{
		Temperature: float64(rawTemp) / 10.0,
		Humidity:    float64(rawHum) / 10.0,
	}
}

// FromMilli converts IIO sysfs values (milli-degrees, milli-percent) to
// engineering units.
func FromMilli(rawTemp, rawHum int64) Reading {
	return Reading{
		Temperature: float64(rawTemp) / 1000.0,
		Humidity:    float64(rawHum) / 1000.0,
	}
}

func (r Reading) String() string {
	return fmt.Sprintf("T=%.1f°C H=%.1f%%", r.Temperature, r.Humidity)
}
