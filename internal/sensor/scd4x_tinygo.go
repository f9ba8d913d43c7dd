//go:build tinygo

package sensor

import (
	"fmt"
	"log/slog"
	"time"

	"tinygo.org/x/drivers"
	"tinygo.org/x/drivers/scd4x"
)

// TinySCD4x is the firmware build of the SCD4x driver.
type TinySCD4x struct {
	dev *scd4x.Device
}

func NewTinySCD4x(bus drivers.I2C) *TinySCD4x {
	return &TinySCD4x{dev: scd4x.New(bus)}
}

func (s *TinySCD4x) BringUp(logger *slog.Logger) error {
	if err := s.dev.StopPeriodicMeasurement(); err != nil {
		logger.Warn("sensor: stop measurement failed", "error", err)
	}
	time.Sleep(500 * time.Millisecond)

	if err := s.dev.StartPeriodicMeasurement(); err != nil {
		return fmt.Errorf("start periodic measurement: %w", err)
	}
	logger.Info("sensor: periodic measurement started")
	return nil
}

func (s *TinySCD4x) DataReady() (bool, error) {
	ready, err := s.dev.DataReady()
	if err != nil {
		return false, busError("data ready", err)
	}
	return ready, nil
}

func (s *TinySCD4x) ReadMeasurement() (Reading, error) {
	co2, err := s.dev.ReadCO2()
	if err != nil {
		return Reading{}, busError("read co2", err)
	}
	milliC, err := s.dev.ReadTemperature()
	if err != nil {
		return Reading{}, busError("read temperature", err)
	}
	rh, err := s.dev.ReadHumidity()
	if err != nil {
		return Reading{}, busError("read humidity", err)
	}
	if co2 < 0 || co2 > 0xffff {
		return Reading{}, malformed(fmt.Sprintf("co2 out of range: %d", co2))
	}
	return Reading{
		CO2:         uint16(co2),
		Temperature: float32(milliC) / 1000,
		Humidity:    float32(rh),
		Timestamp:   time.Now(),
	}, nil
}

func (s *TinySCD4x) Poll() PollResult {
	return Poll(s)
}
