// Package alert classifies readings against the plant's thresholds and
// raises one notification per rising edge of an abnormal condition.
package alert

import (
	"fmt"

	"github.com/luki/smartplant/internal/sensor"
)

// Condition is the classification of one valid reading.
type Condition int

const (
	Normal Condition = iota
	TooHot
	TooDry
	TooHotAndDry
)

func (c Condition) String() string {
	switch c {
	case Normal:
		return "normal"
	case TooHot:
		return "too_hot"
	case TooDry:
		return "too_dry"
	case TooHotAndDry:
		return "too_hot_and_dry"
	default:
		return fmt.Sprintf("condition(%d)", int(c))
	}
}

// MarshalText encodes the condition code used in notification payloads.
func (c Condition) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// Abnormal reports whether c should trigger a notification.
func (c Condition) Abnormal() bool {
	return c != Normal
}

// Thresholds are the fixed alert limits. Temperature at or above HighTemp
// is too hot; humidity at or below LowHumidity is too dry.
type Thresholds struct {
	HighTemp    float64
	LowHumidity float64
}

// DefaultThresholds returns 35°C / 40%RH.
func DefaultThresholds() Thresholds {
	return Thresholds{HighTemp: 35.0, LowHumidity: 40.0}
}

// Classify maps a reading to a condition. The combined condition always
// wins over a single one.
func Classify(r sensor.Reading, th Thresholds) Condition {
	tempHigh := r.Temperature >= th.HighTemp
	humLow := r.Humidity <= th.LowHumidity

	switch {
	case tempHigh && humLow:
		return TooHotAndDry
	case tempHigh:
		return TooHot
	case humLow:
		return TooDry
	default:
		return Normal
	}
}

// Message renders the human-readable notification text for c.
func Message(c Condition, r sensor.Reading) string {
	switch c {
	case TooHotAndDry:
		return fmt.Sprintf("Too hot & too dry! T=%.1f°C H=%.1f%%", r.Temperature, r.Humidity)
	case TooHot:
		return fmt.Sprintf("Temperature too high! %.1f°C", r.Temperature)
	case TooDry:
		return fmt.Sprintf("Humidity too low! %.1f%%", r.Humidity)
	default:
		return fmt.Sprintf("Conditions normal. T=%.1f°C H=%.1f%%", r.Temperature, r.Humidity)
	}
}
