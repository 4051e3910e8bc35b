package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/luki/smartplant/internal/command"
	"github.com/luki/smartplant/internal/config"
	"github.com/luki/smartplant/internal/mqttx"
)

// runPower switches the pump of a running device over MQTT, or over HTTP
// when -url is given. It prints the state the device reports back.
func runPower(args []string) int {
	fs := flag.NewFlagSet("power", flag.ExitOnError)
	configPath := fs.String("config", os.Getenv("SMARTPLANT_CONFIG"), "properties file")
	url := fs.String("url", "", "device base URL, e.g. http://plant.local:8080 (default: use MQTT)")
	timeout := fs.Duration("timeout", 10*time.Second, "how long to wait for the device")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: smartplant power on|off [-url URL] [-config FILE] [-timeout D]")
		fs.PrintDefaults()
	}
	_ = fs.Parse(args)

	if fs.NArg() != 1 {
		fs.Usage()
		return 1
	}
	target, err := command.ParseBool(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	var ack command.Ack
	if *url != "" {
		ack, err = powerHTTP(ctx, *url, target)
	} else {
		ack, err = powerMQTT(ctx, *configPath, target)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "power %s: %v\n", onOff(target), err)
		return 1
	}
	if ack.Error != "" {
		fmt.Fprintf(os.Stderr, "device: %s\n", ack.Error)
	}
	fmt.Printf("pump %s\n", onOff(ack.Power))
	if ack.Power != target {
		return 1
	}
	return 0
}

func powerMQTT(ctx context.Context, configPath string, target bool) (command.Ack, error) {
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	cfg, err := config.Load(configPath, log)
	if err != nil {
		return command.Ack{}, err
	}
	if cfg.MQTTBroker == "" {
		return command.Ack{}, fmt.Errorf("no mqtt.broker configured; use -url")
	}

	cl, err := mqttx.Connect(mqttx.Options{
		Broker:         cfg.MQTTBroker,
		ClientID:       "smartplant-cli-" + uuid.NewString()[:8],
		Username:       cfg.MQTTUsername,
		Password:       cfg.MQTTPassword,
		ConnectTimeout: cfg.MQTTConnectTimeout,
	}, log)
	if err != nil {
		return command.Ack{}, err
	}
	defer cl.Close()

	topics := mqttx.Topics{Prefix: cfg.MQTTPrefix, Node: cfg.NodeID}
	return command.RequestPower(ctx, cl, command.Topics{
		Set:   topics.PowerSet(),
		State: topics.Power(),
		Ack:   topics.PowerAck(),
	}, target)
}

func powerHTTP(ctx context.Context, base string, target bool) (command.Ack, error) {
	body := fmt.Sprintf(`{"power":%t,"id":%q}`, target, uuid.NewString())
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, strings.TrimRight(base, "/")+"/api/v1/power", strings.NewReader(body))
	if err != nil {
		return command.Ack{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return command.Ack{}, err
	}
	defer resp.Body.Close()
	return decodeAck(resp)
}

func decodeAck(resp *http.Response) (command.Ack, error) {
	var ack command.Ack
	if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
		return ack, fmt.Errorf("decode response (%s): %w", resp.Status, err)
	}
	return ack, nil
}

func onOff(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}
