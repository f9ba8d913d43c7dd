//go:build linux

// Command monitor is a bench companion: it finds an AirSense node over BLE,
// subscribes to its readings and logs them.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"tinygo.org/x/bluetooth"

	"airsense/internal/ble"
	"airsense/internal/broadcast"
	"airsense/internal/config"
	"airsense/internal/logging"
)

var version = "dev"
var appName = "airsense-monitor"

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "dotenv error: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.LoadFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg, version, appName)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run failed", "err", err)
		os.Exit(1)
	}

	slog.Info("shutting down")
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	adapter := bluetooth.NewAdapter(cfg.BLEAdapter)

	listener := ble.NewListener(adapter, ble.Options{
		Filter: ble.Filter{
			LocalName:   cfg.BLELocalName,
			ServiceUUID: broadcast.EnvironmentalServiceUUID,
		},
		Logger: logger,
	})
	match, err := listener.Find(ctx)
	if err != nil {
		return err
	}

	return ble.NewNotificationHandler(logger).Watch(ctx, adapter, match)
}
