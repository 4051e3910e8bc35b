// Package app wires the device: peripherals, the shared sensor cell, the
// four periodic units, remote channels and the HTTP server.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/luki/smartplant/internal/actuator"
	"github.com/luki/smartplant/internal/alert"
	"github.com/luki/smartplant/internal/command"
	"github.com/luki/smartplant/internal/config"
	"github.com/luki/smartplant/internal/display"
	"github.com/luki/smartplant/internal/metrics"
	"github.com/luki/smartplant/internal/mqttx"
	"github.com/luki/smartplant/internal/sensor"
	"github.com/luki/smartplant/internal/server"
	"github.com/luki/smartplant/internal/state"
	"github.com/luki/smartplant/internal/telemetry"
)

// ErrPeripheralInit is returned when the sensor or the actuator output
// cannot be brought up. The device cannot run without them.
var ErrPeripheralInit = errors.New("peripheral init failed")

// Option customises New.
type Option func(*options)

type options struct {
	renderer  display.Renderer
	accessLog io.Writer
}

// WithRenderer replaces the configured display.
func WithRenderer(r display.Renderer) Option {
	return func(o *options) { o.renderer = r }
}

// WithAccessLog sets the writer for HTTP access logs.
func WithAccessLog(w io.Writer) Option {
	return func(o *options) { o.accessLog = w }
}

// App is one running device.
type App struct {
	cfg     config.Config
	log     *slog.Logger
	metrics *metrics.Metrics

	cell    *state.Cell
	act     *actuator.Controller
	ingress *command.Ingress

	poller    *sensor.Poller
	telemetry *telemetry.Unit
	alerts    *alert.Unit
	display   *display.Unit

	mqtt    *mqttx.Client
	channel *command.MQTTChannel
	server  *server.Server

	closers []io.Closer
}

// New brings up the peripherals and builds every unit. Nothing runs
// until Run is called.
func New(cfg config.Config, log *slog.Logger, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{
		cfg:     cfg,
		log:     log,
		metrics: metrics.New(),
		cell:    state.New(),
	}

	out, err := a.openOutput()
	if err != nil {
		return nil, fmt.Errorf("%w: actuator: %v", ErrPeripheralInit, err)
	}
	a.act = actuator.New(out, log, a.metrics)
	if err := a.act.Init(cfg.DefaultPower); err != nil {
		return nil, fmt.Errorf("%w: actuator: %v", ErrPeripheralInit, err)
	}

	src, err := a.openSensor()
	if err != nil {
		return nil, fmt.Errorf("%w: sensor: %v", ErrPeripheralInit, err)
	}
	a.poller = sensor.NewPoller(src, a.cell, cfg.AcquisitionPeriod, log, a.metrics)
	a.ingress = command.NewIngress(a.act, log, a.metrics)

	th := alert.Thresholds{HighTemp: cfg.HighTemp, LowHumidity: cfg.LowHumidity}
	topics := mqttx.Topics{Prefix: cfg.MQTTPrefix, Node: cfg.NodeID}

	if cfg.MQTTBroker != "" {
		a.mqtt, err = mqttx.Connect(mqttx.Options{
			Broker:         cfg.MQTTBroker,
			ClientID:       "smartplant-" + cfg.NodeID,
			Username:       cfg.MQTTUsername,
			Password:       cfg.MQTTPassword,
			ConnectTimeout: cfg.MQTTConnectTimeout,
			OnConnect:      func(c *mqttx.Client) { a.publishAttributes(c, topics) },
		}, log)
		if err != nil {
			// The device keeps working locally without a broker.
			log.Error("mqtt disabled", slog.Any("err", err))
			a.mqtt = nil
		}
	}

	notifiers := alert.Multi{alert.LogNotifier{Log: log}}
	if a.mqtt != nil {
		notifiers = append(notifiers, alert.NewMQTTNotifier(a.mqtt, topics.Alert()))
		a.channel = command.NewMQTTChannel(a.ingress, a.mqtt, command.Topics{
			Set:   topics.PowerSet(),
			State: topics.Power(),
			Ack:   topics.PowerAck(),
		}, log)
	}
	a.alerts = alert.NewUnit(a.cell, th, notifiers, cfg.AlertStartDelay, cfg.AlertPeriod, log, a.metrics)

	reporter, err := a.reporters(topics)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.telemetry = telemetry.NewUnit(a.cell, reporter, cfg.ReportStartDelay, cfg.ReportPeriod, log, a.metrics)

	renderer := o.renderer
	if renderer == nil {
		renderer = a.openDisplay()
	}
	a.display = display.NewUnit(cfg.NodeName, a.cell, a.act, th, renderer, cfg.DisplayPeriod, log, a.metrics)

	if cfg.HTTPAddr != "" {
		a.server = server.New(cfg.HTTPAddr, server.Deps{
			Power:      a.ingress,
			Cell:       a.cell,
			Alerts:     a.alerts,
			Thresholds: th,
			Metrics:    a.metrics.Handler(),
			Node:       cfg.NodeID,
		}, o.accessLog, log)
	}

	log.Info("device ready",
		slog.String("node", cfg.NodeID),
		slog.String("sensor", cfg.Sensor),
		slog.String("actuator", cfg.Actuator),
		slog.Any("reporters", cfg.Reporters),
		slog.Bool("mqtt", a.mqtt != nil),
		slog.Bool("pump", a.act.Get()),
	)
	return a, nil
}

func (a *App) openOutput() (actuator.Output, error) {
	switch a.cfg.Actuator {
	case "gpio":
		return actuator.OpenGPIO(a.cfg.GPIORoot, a.cfg.GPIOPin, a.cfg.GPIOActiveLow)
	case "log":
		return actuator.LogOutput{Log: a.log}, nil
	}
	return nil, fmt.Errorf("unknown actuator %q", a.cfg.Actuator)
}

func (a *App) openSensor() (sensor.Source, error) {
	switch a.cfg.Sensor {
	case "iio":
		if a.cfg.SensorDevice != "" {
			return sensor.OpenIIO(a.cfg.SensorDevice)
		}
		return sensor.FindIIO(a.cfg.IIORoot)
	case "sim":
		s := sensor.NewSimSource(time.Now().UnixNano(), sensor.Reading{Temperature: 24, Humidity: 55})
		s.FailEvery = a.cfg.SimFailEvery
		return s, nil
	}
	return nil, fmt.Errorf("unknown sensor %q", a.cfg.Sensor)
}

func (a *App) openDisplay() display.Renderer {
	if a.cfg.Display != "panel" {
		return display.None{}
	}
	p, c, err := display.OpenPanel(a.cfg.DisplayPath)
	if err != nil {
		a.log.Warn("display not available, running headless", slog.String("path", a.cfg.DisplayPath), slog.Any("err", err))
		return display.None{}
	}
	a.closers = append(a.closers, c)
	return p
}

func (a *App) reporters(topics mqttx.Topics) (telemetry.Reporter, error) {
	var rs telemetry.Multi
	for _, name := range a.cfg.Reporters {
		switch name {
		case "log":
			rs = append(rs, telemetry.LogReporter{Log: a.log})
		case "mqtt":
			if a.mqtt == nil {
				a.log.Warn("mqtt reporter skipped, no broker session")
				continue
			}
			rs = append(rs, telemetry.NewMQTTReporter(a.mqtt, a.cfg.NodeID, topics.Param))
		case "kafka":
			w := telemetry.NewKafkaWriter(a.cfg.KafkaBrokers, a.cfg.KafkaTopic, a.log)
			kr := telemetry.NewKafkaReporter(w, a.cfg.NodeID)
			a.closers = append(a.closers, kr)
			rs = append(rs, kr)
		default:
			return nil, fmt.Errorf("unknown reporter %q", name)
		}
	}
	if len(rs) == 1 {
		return rs[0], nil
	}
	return rs, nil
}

// attributes is the retained node description published on connect.
type attributes struct {
	Name      string `json:"name"`
	SerialNum string `json:"serial_num"`
	Power     bool   `json:"power"`
}

func (a *App) publishAttributes(c *mqttx.Client, topics mqttx.Topics) {
	b, err := json.Marshal(attributes{Name: a.cfg.NodeName, SerialNum: a.cfg.SerialNum, Power: a.act.Get()})
	if err != nil {
		return
	}
	if err := c.Publish(topics.Attributes(), true, b); err != nil {
		a.log.Debug("attributes not published", slog.Any("err", err))
	}
}

// Ingress is the command entry point, for local controls.
func (a *App) Ingress() *command.Ingress { return a.ingress }

// Cell is the shared sensor cell.
func (a *App) Cell() *state.Cell { return a.cell }

// Metrics returns the device metrics.
func (a *App) Metrics() *metrics.Metrics { return a.metrics }

// Run starts every unit and blocks until ctx is cancelled. It returns an
// error only if the HTTP server fails.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if a.channel != nil {
		if err := a.channel.Start(ctx); err != nil {
			// Subscriptions are restored on reconnect.
			a.log.Warn("mqtt command channel not subscribed yet", slog.Any("err", err))
		}
	}

	var wg sync.WaitGroup
	for _, run := range []func(context.Context){
		a.poller.Run,
		a.telemetry.Run,
		a.alerts.Run,
		a.display.Run,
	} {
		wg.Add(1)
		go func(run func(context.Context)) {
			defer wg.Done()
			run(ctx)
		}(run)
	}

	var srvErr error
	if a.server != nil {
		srvErr = a.server.Run(ctx)
		if srvErr != nil {
			a.log.Error("http server error", slog.Any("err", srvErr))
			cancel()
		}
	} else {
		<-ctx.Done()
	}

	wg.Wait()
	a.log.Info("device stopped")
	return srvErr
}

// Close releases the broker session, writers and display.
func (a *App) Close() error {
	if a.mqtt != nil {
		a.mqtt.Close()
	}
	var errs []error
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
