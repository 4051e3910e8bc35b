package sensor

import "strings"

// chipIdentityMap maps IIO device names to the sensor model they drive.
var chipIdentityMap = []struct {
	prefix string
	name   string
}{
	{"dht11", "DHT11"},
	{"dht22", "DHT22"},
	{"am2302", "DHT22"},
	{"si7020", "Si7020"},
	{"si7021", "Si7021"},
	{"hdc100", "HDC100x"},
	{"hdc2010", "HDC2010"},
	{"sht3x", "SHT3x"},
	{"sht4x", "SHT4x"},
	{"htu21", "HTU21"},
	{"bme280", "BME280"},
}

// FriendlyName returns a human-readable sensor model for an IIO device name,
// or "" when the device is not a known temperature/humidity sensor.
func FriendlyName(device string) string {
	lower := strings.ToLower(strings.TrimSpace(device))
	for _, entry := range chipIdentityMap {
		if strings.HasPrefix(lower, entry.prefix) {
			return entry.name
		}
	}
	return ""
}
