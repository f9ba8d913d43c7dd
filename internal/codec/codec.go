// Package codec holds the wire contract shared with the companion app: five
// 2-byte little-endian notify payloads and the air-quality scales.
package codec

import (
	"encoding/binary"
	"fmt"
	"math"

	"airsense/internal/sensor"
)

type Channel uint8

const (
	CO2 Channel = iota
	Temperature
	Humidity
	VOC
	NOx
)

// Channels is the fixed publish order.
var Channels = [...]Channel{CO2, Temperature, Humidity, VOC, NOx}

func (c Channel) String() string {
	switch c {
	case CO2:
		return "co2"
	case Temperature:
		return "temperature"
	case Humidity:
		return "humidity"
	case VOC:
		return "voc"
	case NOx:
		return "nox"
	default:
		return fmt.Sprintf("channel(%d)", uint8(c))
	}
}

// PayloadSize is the width of every channel payload.
const PayloadSize = 2

// Frame is one reading encoded for all channels. VOC and NOx stay zero until
// a sensor that measures them is fitted.
type Frame struct {
	CO2         [PayloadSize]byte
	Temperature [PayloadSize]byte
	Humidity    [PayloadSize]byte
	VOC         [PayloadSize]byte
	NOx         [PayloadSize]byte
}

// Encode converts r to wire units: ppm, 0.01 °C (signed) and 0.01 %RH.
// Out-of-range values saturate.
func Encode(r sensor.Reading) Frame {
	var f Frame
	binary.LittleEndian.PutUint16(f.CO2[:], r.CO2)
	binary.LittleEndian.PutUint16(f.Temperature[:], uint16(centiSigned(r.Temperature)))
	binary.LittleEndian.PutUint16(f.Humidity[:], centiUnsigned(r.Humidity))
	return f
}

// Payload returns a copy of the bytes for ch.
func (f Frame) Payload(ch Channel) []byte {
	var p [PayloadSize]byte
	switch ch {
	case CO2:
		p = f.CO2
	case Temperature:
		p = f.Temperature
	case Humidity:
		p = f.Humidity
	case VOC:
		p = f.VOC
	case NOx:
		p = f.NOx
	}
	return p[:]
}

func centiSigned(v float32) int16 {
	x := math.Round(float64(v) * 100)
	switch {
	case math.IsNaN(x):
		return 0
	case x > math.MaxInt16:
		return math.MaxInt16
	case x < math.MinInt16:
		return math.MinInt16
	}
	return int16(x)
}

func centiUnsigned(v float32) uint16 {
	x := math.Round(float64(v) * 100)
	switch {
	case math.IsNaN(x), x < 0:
		return 0
	case x > math.MaxUint16:
		return math.MaxUint16
	}
	return uint16(x)
}

// Decoders mirror what the companion app does with a notification.

func DecodeCO2(p []byte) (uint16, error) {
	if len(p) < PayloadSize {
		return 0, fmt.Errorf("co2 payload too short: %d", len(p))
	}
	return binary.LittleEndian.Uint16(p), nil
}

func DecodeTemperature(p []byte) (float32, error) {
	if len(p) < PayloadSize {
		return 0, fmt.Errorf("temperature payload too short: %d", len(p))
	}
	return float32(int16(binary.LittleEndian.Uint16(p))) / 100, nil
}

func DecodeHumidity(p []byte) (float32, error) {
	if len(p) < PayloadSize {
		return 0, fmt.Errorf("humidity payload too short: %d", len(p))
	}
	return float32(binary.LittleEndian.Uint16(p)) / 100, nil
}

func DecodeIndex(p []byte) (uint16, error) {
	if len(p) < PayloadSize {
		return 0, fmt.Errorf("index payload too short: %d", len(p))
	}
	return binary.LittleEndian.Uint16(p), nil
}
