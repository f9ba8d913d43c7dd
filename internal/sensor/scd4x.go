//go:build !tinygo

package sensor

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"time"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"airsense/internal/utils"
)

// DefaultSCD4xAddress is the fixed I2C address of the SCD40/SCD41.
const DefaultSCD4xAddress = 0x62

const (
	cmdStartPeriodicMeasurement = 0x21b1
	cmdStopPeriodicMeasurement  = 0x3f86
	cmdGetDataReadyStatus       = 0xe4b8
	cmdReadMeasurement          = 0xec05
	cmdGetSerialNumber          = 0x3682
)

// Bus is the single I2C primitive the driver needs; *i2c.Dev satisfies it.
type Bus interface {
	Tx(w, r []byte) error
}

// SCD4x drives a Sensirion SCD4x in periodic measurement mode.
type SCD4x struct {
	bus   Bus
	now   func() time.Time
	sleep func(time.Duration)
}

func NewSCD4x(bus Bus) *SCD4x {
	return &SCD4x{bus: bus, now: time.Now, sleep: time.Sleep}
}

// OpenSCD4x loads the periph host drivers and opens the sensor on the named
// bus ("" picks the first one). The returned func releases the bus.
func OpenSCD4x(busName string, addr uint16) (*SCD4x, func() error, error) {
	if _, err := host.Init(); err != nil {
		return nil, nil, fmt.Errorf("host init: %w", err)
	}
	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, nil, fmt.Errorf("i2c open %q: %w", busName, err)
	}
	dev := &i2c.Dev{Bus: bus, Addr: addr}
	return NewSCD4x(dev), bus.Close, nil
}

// BringUp stops any measurement left running by a previous boot, logs the
// serial number and starts periodic measurement. Only the start failure is
// returned: without it the sensor never produces data.
func (s *SCD4x) BringUp(logger *slog.Logger) error {
	if err := s.StopPeriodicMeasurement(); err != nil {
		logger.Warn("sensor: stop measurement failed", "error", err)
	}

	serial, err := s.SerialNumber()
	if err != nil {
		logger.Warn("sensor: read serial failed", "error", err)
	} else {
		logger.Info("sensor: scd4x found", "serial", fmt.Sprintf("0x%012X", serial))
	}

	if err := s.StartPeriodicMeasurement(); err != nil {
		return fmt.Errorf("start periodic measurement: %w", err)
	}
	logger.Info("sensor: periodic measurement started")
	return nil
}

func (s *SCD4x) StartPeriodicMeasurement() error {
	return s.sendCommand(cmdStartPeriodicMeasurement)
}

func (s *SCD4x) StopPeriodicMeasurement() error {
	if err := s.sendCommand(cmdStopPeriodicMeasurement); err != nil {
		return err
	}
	// The sensor ignores commands for 500 ms after a stop.
	s.sleep(500 * time.Millisecond)
	return nil
}

// SerialNumber returns the 48-bit serial.
func (s *SCD4x) SerialNumber() (uint64, error) {
	words, err := s.readWords(cmdGetSerialNumber, 3)
	if err != nil {
		return 0, err
	}
	return uint64(words[0])<<32 | uint64(words[1])<<16 | uint64(words[2]), nil
}

func (s *SCD4x) DataReady() (bool, error) {
	words, err := s.readWords(cmdGetDataReadyStatus, 1)
	if err != nil {
		return false, err
	}
	return words[0]&0x07ff != 0, nil
}

func (s *SCD4x) ReadMeasurement() (Reading, error) {
	words, err := s.readWords(cmdReadMeasurement, 3)
	if err != nil {
		return Reading{}, err
	}
	return Reading{
		CO2:         words[0],
		Temperature: -45 + 175*float32(words[1])/65535,
		Humidity:    100 * float32(words[2])/65535,
		Timestamp:   s.now(),
	}, nil
}

func (s *SCD4x) Poll() PollResult {
	return Poll(s)
}

func (s *SCD4x) sendCommand(cmd uint16) error {
	var buf [2]byte
	binary.BigEndian.PutUint16(buf[:], cmd)
	if err := s.bus.Tx(buf[:], nil); err != nil {
		return busError("command 0x"+utils.Hex4(cmd), err)
	}
	return nil
}

// readWords issues cmd and reads n CRC-protected big-endian words.
func (s *SCD4x) readWords(cmd uint16, n int) ([]uint16, error) {
	if err := s.sendCommand(cmd); err != nil {
		return nil, err
	}
	s.sleep(time.Millisecond)

	buf := make([]byte, 3*n)
	if err := s.bus.Tx(nil, buf); err != nil {
		return nil, busError("read 0x"+utils.Hex4(cmd), err)
	}

	words := make([]uint16, n)
	for i := 0; i < n; i++ {
		chunk := buf[3*i : 3*i+3]
		if crc8(chunk[:2]) != chunk[2] {
			return nil, malformed(fmt.Sprintf("crc mismatch in word %d of 0x%04x", i, cmd))
		}
		words[i] = binary.BigEndian.Uint16(chunk[:2])
	}
	return words, nil
}

// crc8 is the Sensirion CRC: polynomial 0x31, init 0xFF.
func crc8(data []byte) byte {
	crc := byte(0xff)
	for _, b := range data {
		crc ^= b
		for i := 0; i < 8; i++ {
			if crc&0x80 != 0 {
				crc = crc<<1 ^ 0x31
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
