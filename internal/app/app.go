package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"airsense/internal/broadcast"
	"airsense/internal/config"
	"airsense/internal/controller"
	"airsense/internal/httpapi"
	"airsense/internal/sensor"
)

// Run brings up the sensor and the broadcast transport, then drives the
// sampling controller until ctx ends. Bring-up failures are returned; every
// later fault is logged and survived.
func Run(ctx context.Context, cfg config.Config) error {
	logger := slog.Default()
	logger.Info("config loaded",
		"station", cfg.DeviceStationID,
		"sensor_driver", cfg.SensorDriver,
		"i2c_bus", cfg.I2CBus,
		"scd4x_address", fmt.Sprintf("0x%02x", cfg.SCD4xAddress),
		"broadcast", cfg.Broadcast,
		"sampling_interval", cfg.SamplingInterval,
		"tick_interval", cfg.TickInterval,
		"http_addr", cfg.HTTPAddr,
	)

	port, closeSensor, err := openSensor(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeSensor(); err != nil {
			logger.Error("sensor close", "error", err)
		}
	}()

	transport, err := openTransport(cfg, logger)
	if err != nil {
		return err
	}

	ctrl := controller.New(port, transport, controller.Options{
		SamplingInterval: cfg.SamplingInterval,
		TickInterval:     cfg.TickInterval,
		Logger:           logger,
	})

	if err := transport.Start(ctx, ctrl); err != nil {
		return err
	}
	defer func() {
		if err := transport.Close(); err != nil {
			logger.Warn("broadcast close", "error", err)
		}
	}()

	var srv *http.Server
	errCh := make(chan error, 1)
	if cfg.HTTPAddr != "" {
		srv = httpapi.NewServer(ctrl, httpapi.Options{
			Addr:       cfg.HTTPAddr,
			StaleAfter: 3 * cfg.SamplingInterval,
			Logger:     logger,
		})
		go func() {
			logger.Info("http listening", "addr", cfg.HTTPAddr)
			errCh <- srv.ListenAndServe()
		}()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	runErr := make(chan error, 1)
	go func() { runErr <- ctrl.Run(ctx) }()

	select {
	case err := <-runErr:
		if srv != nil {
			shutdownHTTP(srv, logger)
		}
		return err
	case err := <-errCh:
		// The listener only stops on its own when it failed.
		cancel()
		<-runErr
		return fmt.Errorf("http server: %w", err)
	}
}

func shutdownHTTP(srv *http.Server, logger *slog.Logger) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	logger.Info("http shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}
}

func openSensor(cfg config.Config, logger *slog.Logger) (sensor.Port, func() error, error) {
	switch cfg.SensorDriver {
	case config.SensorSim:
		logger.Info("sensor: using simulator", "period", cfg.SamplingInterval)
		sim := sensor.NewSimulator(sensor.SimulatorOptions{
			Period: cfg.SamplingInterval,
			Seed:   uint64(time.Now().UnixNano()),
		})
		return sim, func() error { return nil }, nil

	case config.SensorSCD4x:
		dev, closeBus, err := sensor.OpenSCD4x(cfg.I2CBus, cfg.SCD4xAddress)
		if err != nil {
			return nil, nil, fmt.Errorf("sensor open: %w", err)
		}
		if err := dev.BringUp(logger); err != nil {
			_ = closeBus()
			return nil, nil, fmt.Errorf("sensor bring-up: %w", err)
		}
		closer := func() error {
			if err := dev.StopPeriodicMeasurement(); err != nil {
				logger.Warn("sensor: stop measurement failed", "error", err)
			}
			return closeBus()
		}
		return dev, closer, nil

	default:
		return nil, nil, fmt.Errorf("unknown sensor driver %q", cfg.SensorDriver)
	}
}

func openTransport(cfg config.Config, logger *slog.Logger) (broadcast.Transport, error) {
	switch cfg.Broadcast {
	case config.BroadcastBLE:
		return broadcast.NewGATT(bleAdapter(cfg.BLEAdapter), broadcast.GATTOptions{
			LocalName: cfg.BLELocalName,
			Logger:    logger,
		}), nil

	case config.BroadcastMQTT:
		return broadcast.NewMQTT(broadcast.MQTTOptions{
			Broker:      cfg.MQTTBroker,
			Port:        cfg.MQTTPort,
			ClientID:    cfg.MQTTClientID,
			TopicPrefix: cfg.MQTTTopicPrefix,
			StationID:   cfg.DeviceStationID,
			Logger:      logger,
		}), nil

	case config.BroadcastNone:
		logger.Info("broadcast disabled, sampling only")
		return broadcast.Noop{}, nil

	default:
		return nil, fmt.Errorf("unknown broadcast transport %q", cfg.Broadcast)
	}
}
