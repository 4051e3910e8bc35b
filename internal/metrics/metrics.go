// Package metrics exposes the device's Prometheus counters and gauges.
// Every method is safe to call on a nil *Metrics so units can run
// without instrumentation in tests.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "smartplant"

// Metrics holds the collectors registered for one device instance.
type Metrics struct {
	reg *prometheus.Registry

	sensorReads    *prometheus.CounterVec
	temperature    prometheus.Gauge
	humidity       prometheus.Gauge
	reports        *prometheus.CounterVec
	notifications  *prometheus.CounterVec
	actuatorWrites *prometheus.CounterVec
	pump           prometheus.Gauge
	renderFailures prometheus.Counter
	commands       *prometheus.CounterVec
}

// New creates the collectors on a private registry together with the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		sensorReads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sensor_reads_total",
			Help:      "Sensor polls by result (ok, failed).",
		}, []string{"result"}),
		temperature: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "temperature_celsius",
			Help:      "Last published temperature.",
		}),
		humidity: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "humidity_percent",
			Help:      "Last published relative humidity.",
		}),
		reports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_total",
			Help:      "Remote parameter reports by parameter and result.",
		}, []string{"param", "result"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Alert notifications raised by condition.",
		}, []string{"condition"}),
		actuatorWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actuator_writes_total",
			Help:      "Hardware writes to the actuator output by target state.",
		}, []string{"state"}),
		pump: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pump_on",
			Help:      "Logical actuator state (1 on, 0 off).",
		}),
		renderFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "display_render_failures_total",
			Help:      "Display refreshes skipped because rendering failed.",
		}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Actuator commands received by channel and result.",
		}, []string{"channel", "result"}),
	}

	m.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.sensorReads,
		m.temperature,
		m.humidity,
		m.reports,
		m.notifications,
		m.actuatorWrites,
		m.pump,
		m.renderFailures,
		m.commands,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

// SensorRead counts one poll and, on success, updates the reading gauges.
func (m *Metrics) SensorRead(ok bool, temperature, humidity float64) {
	if m == nil {
		return
	}
	if !ok {
		m.sensorReads.WithLabelValues("failed").Inc()
		return
	}
	m.sensorReads.WithLabelValues("ok").Inc()
	m.temperature.Set(temperature)
	m.humidity.Set(humidity)
}

// Report counts one remote parameter report.
func (m *Metrics) Report(param string, ok bool) {
	if m == nil {
		return
	}
	m.reports.WithLabelValues(param, result(ok)).Inc()
}

// Notification counts one raised alert.
func (m *Metrics) Notification(condition string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(condition).Inc()
}

// ActuatorWrite counts one hardware write and tracks the logical state.
func (m *Metrics) ActuatorWrite(on bool) {
	if m == nil {
		return
	}
	m.actuatorWrites.WithLabelValues(onOff(on)).Inc()
	if on {
		m.pump.Set(1)
	} else {
		m.pump.Set(0)
	}
}

// RenderFailure counts one skipped display refresh.
func (m *Metrics) RenderFailure() {
	if m == nil {
		return
	}
	m.renderFailures.Inc()
}

// Command counts one actuator command from the given channel.
func (m *Metrics) Command(channel string, ok bool) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(channel, result(ok)).Inc()
}

func result(ok bool) string {
	if ok {
		return "ok"
	}
	return "failed"
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}
