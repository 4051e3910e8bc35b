// Package config loads the device configuration: built-in defaults, then
// an optional key=value properties file, then SMARTPLANT_* environment
// variables. Invalid values are logged and the previous value is kept.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// EnvPrefix marks environment overrides: SMARTPLANT_ALERT_PERIOD sets
// the "alert.period" key.
const EnvPrefix = "SMARTPLANT_"

// Config is the full device configuration.
type Config struct {
	NodeName  string
	NodeID    string
	SerialNum string

	AcquisitionPeriod time.Duration
	ReportPeriod      time.Duration
	ReportStartDelay  time.Duration
	AlertPeriod       time.Duration
	AlertStartDelay   time.Duration
	DisplayPeriod     time.Duration
	FatalExitDelay    time.Duration

	HighTemp     float64
	LowHumidity  float64
	DefaultPower bool

	Sensor       string // "iio" or "sim"
	SensorDevice string // IIO device dir; empty means autodetect
	IIORoot      string
	SimFailEvery int

	Actuator      string // "gpio" or "log"
	GPIORoot      string
	GPIOPin       int
	GPIOActiveLow bool

	Display     string // "none" or "panel"
	DisplayPath string

	Reporters []string // any of "mqtt", "kafka", "log"

	MQTTBroker         string // empty disables MQTT entirely
	MQTTUsername       string
	MQTTPassword       string
	MQTTPrefix         string
	MQTTConnectTimeout time.Duration

	KafkaBrokers []string
	KafkaTopic   string

	HTTPAddr string // empty disables the HTTP server

	LogDir   string
	LogLevel string
}

// Default returns the configuration of a bench device with no hardware
// attached.
func Default() Config {
	host, _ := os.Hostname()
	if host == "" {
		host = "smartplant"
	}
	return Config{
		NodeName:  "Smart Plant",
		NodeID:    host,
		SerialNum: "123456",

		AcquisitionPeriod: 3 * time.Second,
		ReportPeriod:      5 * time.Second,
		ReportStartDelay:  5 * time.Second,
		AlertPeriod:       10 * time.Second,
		AlertStartDelay:   10 * time.Second,
		DisplayPeriod:     1 * time.Second,
		FatalExitDelay:    5 * time.Second,

		HighTemp:     35.0,
		LowHumidity:  40.0,
		DefaultPower: false,

		Sensor:  "sim",
		IIORoot: "/sys/bus/iio/devices",

		Actuator:      "log",
		GPIORoot:      "/sys/class/gpio",
		GPIOPin:       3,
		GPIOActiveLow: true,

		Display: "none",

		Reporters: []string{"log"},

		MQTTBroker:         "tcp://localhost:1883",
		MQTTPrefix:         "smartplant",
		MQTTConnectTimeout: 10 * time.Second,

		KafkaBrokers: []string{"localhost:9092"},
		KafkaTopic:   "smartplant.params",

		HTTPAddr: ":8080",

		LogDir:   "./logs",
		LogLevel: "info",
	}
}

// Load builds the configuration. path may be empty.
func Load(path string, log *slog.Logger) (Config, error) {
	cfg := Default()

	props := map[string]string{}
	if path != "" {
		p, err := loadProps(path)
		if err != nil {
			return cfg, err
		}
		props = p
	}
	for k, v := range envProps(os.Environ()) {
		props[k] = v
	}

	cfg.apply(props, log)
	return cfg, cfg.Validate()
}

func (c *Config) apply(m map[string]string, log *slog.Logger) {
	getS(m, "node.name", &c.NodeName)
	getS(m, "node.id", &c.NodeID)
	getS(m, "node.serial", &c.SerialNum)

	getD(m, "acquisition.period", &c.AcquisitionPeriod, log)
	getD(m, "report.period", &c.ReportPeriod, log)
	getD(m, "report.delay", &c.ReportStartDelay, log)
	getD(m, "alert.period", &c.AlertPeriod, log)
	getD(m, "alert.delay", &c.AlertStartDelay, log)
	getD(m, "display.period", &c.DisplayPeriod, log)
	getD(m, "fatal.delay", &c.FatalExitDelay, log)

	getF(m, "alert.hightemp", &c.HighTemp, log)
	getF(m, "alert.lowhumidity", &c.LowHumidity, log)
	getB(m, "power.default", &c.DefaultPower, log)

	getS(m, "sensor", &c.Sensor)
	getS(m, "sensor.device", &c.SensorDevice)
	getS(m, "sensor.iioroot", &c.IIORoot)
	getI(m, "sensor.simfailevery", &c.SimFailEvery, log)

	getS(m, "actuator", &c.Actuator)
	getS(m, "gpio.root", &c.GPIORoot)
	getI(m, "gpio.pin", &c.GPIOPin, log)
	getB(m, "gpio.activelow", &c.GPIOActiveLow, log)

	getS(m, "display", &c.Display)
	getS(m, "display.path", &c.DisplayPath)

	getL(m, "reporters", &c.Reporters)

	getS(m, "mqtt.broker", &c.MQTTBroker)
	getS(m, "mqtt.username", &c.MQTTUsername)
	getS(m, "mqtt.password", &c.MQTTPassword)
	getS(m, "mqtt.prefix", &c.MQTTPrefix)
	getD(m, "mqtt.timeout", &c.MQTTConnectTimeout, log)

	getL(m, "kafka.brokers", &c.KafkaBrokers)
	getS(m, "kafka.topic", &c.KafkaTopic)

	getS(m, "http.addr", &c.HTTPAddr)

	getS(m, "log.dir", &c.LogDir)
	getS(m, "log.level", &c.LogLevel)
}

// Validate rejects configurations the device cannot run with.
func (c Config) Validate() error {
	var errs []error
	periods := []struct {
		name string
		d    time.Duration
	}{
		{"acquisition.period", c.AcquisitionPeriod},
		{"report.period", c.ReportPeriod},
		{"alert.period", c.AlertPeriod},
		{"display.period", c.DisplayPeriod},
	}
	for _, p := range periods {
		if p.d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", p.name, p.d))
		}
	}
	if c.ReportStartDelay < 0 || c.AlertStartDelay < 0 || c.FatalExitDelay < 0 {
		errs = append(errs, errors.New("delays must not be negative"))
	}
	if c.NodeID == "" {
		errs = append(errs, errors.New("node.id must be set"))
	}
	switch c.Sensor {
	case "iio", "sim":
	default:
		errs = append(errs, fmt.Errorf("unknown sensor %q", c.Sensor))
	}
	switch c.Actuator {
	case "gpio", "log":
	default:
		errs = append(errs, fmt.Errorf("unknown actuator %q", c.Actuator))
	}
	switch c.Display {
	case "none", "panel":
	default:
		errs = append(errs, fmt.Errorf("unknown display %q", c.Display))
	}
	if c.Display == "panel" && c.DisplayPath == "" {
		errs = append(errs, errors.New("display.path is required for the panel display"))
	}
	if c.Uses("mqtt") && c.MQTTBroker == "" {
		errs = append(errs, errors.New("mqtt.broker is required for the mqtt reporter"))
	}
	if c.Uses("kafka") && (len(c.KafkaBrokers) == 0 || c.KafkaTopic == "") {
		errs = append(errs, errors.New("kafka.brokers and kafka.topic are required for the kafka reporter"))
	}
	for _, r := range c.Reporters {
		switch r {
		case "mqtt", "kafka", "log":
		default:
			errs = append(errs, fmt.Errorf("unknown reporter %q", r))
		}
	}
	return errors.Join(errs...)
}

// Uses reports whether the named reporter is enabled.
func (c Config) Uses(reporter string) bool {
	for _, r := range c.Reporters {
		if r == reporter {
			return true
		}
	}
	return false
}

// Redacted returns a copy safe to log.
func (c Config) Redacted() Config {
	if c.MQTTPassword != "" {
		c.MQTTPassword = "****"
	}
	return c
}

func loadProps(path string) (map[string]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot load properties file: %w", err)
	}
	m := map[string]string{}
	for _, ln := range strings.Split(string(b), "\n") {
		ln = strings.TrimSpace(ln)
		if ln == "" || strings.HasPrefix(ln, "#") || strings.HasPrefix(ln, "//") {
			continue
		}
		kv := strings.SplitN(ln, "=", 2)
		if len(kv) != 2 {
			continue
		}
		m[strings.ToLower(strings.TrimSpace(kv[0]))] = strings.TrimSpace(kv[1])
	}
	return m, nil
}

func envProps(environ []string) map[string]string {
	m := map[string]string{}
	for _, kv := range environ {
		if !strings.HasPrefix(kv, EnvPrefix) {
			continue
		}
		parts := strings.SplitN(strings.TrimPrefix(kv, EnvPrefix), "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.ReplaceAll(strings.ToLower(parts[0]), "_", ".")
		m[key] = parts[1]
	}
	return m
}

func getS(m map[string]string, key string, dst *string) {
	if v, ok := m[key]; ok {
		*dst = v
	}
}

func getF(m map[string]string, key string, dst *float64, log *slog.Logger) {
	if v, ok := m[key]; ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
			return
		}
		log.Warn("invalid float in config, using default", "key", key, "val", v, "default", *dst)
	}
}

func getI(m map[string]string, key string, dst *int, log *slog.Logger) {
	if v, ok := m[key]; ok {
		if i, err := strconv.Atoi(v); err == nil {
			*dst = i
			return
		}
		log.Warn("invalid integer in config, using default", "key", key, "val", v, "default", *dst)
	}
}

func getB(m map[string]string, key string, dst *bool, log *slog.Logger) {
	if v, ok := m[key]; ok {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
			return
		}
		log.Warn("invalid bool in config, using default", "key", key, "val", v, "default", *dst)
	}
}

func getD(m map[string]string, key string, dst *time.Duration, log *slog.Logger) {
	if v, ok := m[key]; ok {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
			return
		}
		log.Warn("invalid duration in config, using default", "key", key, "val", v, "default", *dst)
	}
}

func getL(m map[string]string, key string, dst *[]string) {
	if v, ok := m[key]; ok {
		*dst = splitCSV(v)
	}
}

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
