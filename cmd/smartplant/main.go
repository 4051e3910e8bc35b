package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/luki/smartplant/internal/app"
	"github.com/luki/smartplant/internal/config"
	"github.com/luki/smartplant/internal/logging"
	"github.com/luki/smartplant/internal/monitor"
)

func main() {
	args := os.Args[1:]
	cmd := "run"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		cmd, args = args[0], args[1:]
	}

	switch cmd {
	case "run":
		runDevice("run", args, false)
	case "monitor":
		runDevice("monitor", args, true)
	case "power":
		os.Exit(runPower(args))
	case "help", "-h", "--help":
		printHelp()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printHelp()
		os.Exit(1)
	}
}

func printHelp() {
	fmt.Println("Usage: smartplant [command] [flags]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  run                 Run the device headless (default)")
	fmt.Println("  monitor             Run the device with the terminal display")
	fmt.Println("  power on|off        Switch the pump of a running device")
	fmt.Println("  help                Show this help")
	fmt.Println()
	fmt.Println("Flags:")
	fmt.Println("  -config <file>      Properties file (also SMARTPLANT_CONFIG)")
	fmt.Println()
	fmt.Println("Every key can be overridden from the environment, e.g.")
	fmt.Println("  SMARTPLANT_ALERT_HIGHTEMP=32 smartplant run")
}

// ── Device ───────────────────────────────────────────────────────────

func runDevice(name string, args []string, interactive bool) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	configPath := fs.String("config", os.Getenv("SMARTPLANT_CONFIG"), "properties file")
	_ = fs.Parse(args)

	boot := slog.New(slog.NewTextHandler(os.Stderr, nil))
	cfg, err := config.Load(*configPath, boot)
	if err != nil {
		boot.Error("invalid configuration", slog.Any("err", err))
		os.Exit(2)
	}

	// The TUI owns the terminal; logs go to the file only.
	var console io.Writer = os.Stderr
	if interactive {
		console = nil
	}
	dl, err := logging.New(cfg.LogDir, cfg.LogLevel, console)
	if err != nil {
		boot.Error("cannot open log", slog.Any("err", err))
		os.Exit(2)
	}
	defer dl.Close()
	log := dl.Logger
	log.Info("starting", slog.String("mode", name), slog.Any("config", cfg.Redacted()))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := []app.Option{app.WithAccessLog(dl.Writer)}

	var device *app.App
	var prog *monitor.Program
	if interactive {
		prog = monitor.NewProgram(cfg.NodeName, func(ctx context.Context) (bool, error) {
			return device.Ingress().Toggle(ctx, "keypress")
		})
		opts = append(opts, app.WithRenderer(prog))
	}

	device, err = app.New(cfg, log, opts...)
	if err != nil {
		fatal(log, cfg.FatalExitDelay, err)
	}
	defer device.Close()

	if !interactive {
		if err := device.Run(ctx); err != nil {
			log.Error("device stopped with error", slog.Any("err", err))
		}
		return
	}

	done := make(chan error, 1)
	go func() { done <- device.Run(ctx) }()
	if err := prog.Run(ctx); err != nil {
		log.Error("monitor failed", slog.Any("err", err))
	}
	stop()
	if err := <-done; err != nil {
		log.Error("device stopped with error", slog.Any("err", err))
	}
}

// fatal logs err, waits so the message can be read on a serial console
// or in the journal, and exits.
func fatal(log *slog.Logger, delay time.Duration, err error) {
	log.Error("fatal", slog.Any("err", err), slog.Bool("peripheral", errors.Is(err, app.ErrPeripheralInit)))
	log.Info("exiting", slog.Duration("in", delay))
	time.Sleep(delay)
	os.Exit(1)
}
