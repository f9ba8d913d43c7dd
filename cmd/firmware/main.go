//go:build tinygo

// Firmware for the Pico 2 W node: SCD4x on I2C0, readings served over GATT,
// logs on USB serial.
package main

import (
	"context"
	"log/slog"
	"machine"
	"time"

	"tinygo.org/x/bluetooth"

	"airsense/internal/broadcast"
	"airsense/internal/controller"
	"airsense/internal/sensor"
)

var version = "dev"

const localName = "AirSense"

func main() {
	machine.Serial.Configure(machine.UARTConfig{})

	// Give the host time to enumerate the USB serial device.
	time.Sleep(1500 * time.Millisecond)

	logger := slog.New(slog.NewTextHandler(machine.Serial, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)
	logger.Info("boot", "app", "airsense-firmware", "version", version)

	if err := machine.I2C0.Configure(machine.I2CConfig{
		SDA:       machine.I2C0_SDA_PIN,
		SCL:       machine.I2C0_SCL_PIN,
		Frequency: 100 * machine.KHz,
	}); err != nil {
		park(logger, "i2c configure failed", err)
	}

	dev := sensor.NewTinySCD4x(machine.I2C0)
	if err := dev.BringUp(logger); err != nil {
		park(logger, "sensor bring-up failed", err)
	}

	gatt := broadcast.NewGATT(bluetooth.DefaultAdapter, broadcast.GATTOptions{
		LocalName: localName,
		Logger:    logger,
	})
	ctrl := controller.New(dev, gatt, controller.Options{
		SamplingInterval: controller.DefaultSamplingInterval,
		TickInterval:     controller.DefaultSettleDelay,
		Logger:           logger,
	})

	ctx := context.Background()
	if err := gatt.Start(ctx, ctrl); err != nil {
		park(logger, "ble bring-up failed", err)
	}

	_ = ctrl.Run(ctx)
}

// park keeps the board alive after a fatal bring-up error so the log stays
// readable on the serial console.
func park(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, "error", err)
	for {
		time.Sleep(time.Second)
	}
}
