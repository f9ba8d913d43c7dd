// Package sensor is the boundary to the CO2/temperature/humidity sensor.
// Drivers expose a Device; the controller only ever sees Port.Poll.
package sensor

import (
	"errors"
	"fmt"
	"time"
)

// Reading is one measurement. CO2 == 0 is the sensor's marker for an invalid
// sample.
type Reading struct {
	CO2         uint16
	Temperature float32
	Humidity    float32
	Timestamp   time.Time
}

// Valid reports whether the sample may be published.
func (r Reading) Valid() bool {
	return r.CO2 != 0
}

type ErrorKind int

const (
	KindBus ErrorKind = iota + 1
	KindNotReady
	KindMalformed
)

func (k ErrorKind) String() string {
	switch k {
	case KindBus:
		return "bus error"
	case KindNotReady:
		return "not ready"
	case KindMalformed:
		return "malformed"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Error is the only error type that crosses the sensor boundary.
type Error struct {
	Kind   ErrorKind
	Detail string
	Err    error
}

func (e *Error) Error() string {
	msg := "sensor: " + e.Kind.String()
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the kind of a sensor error, or 0 when err is not one.
func KindOf(err error) ErrorKind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return 0
}

func busError(detail string, err error) *Error {
	return &Error{Kind: KindBus, Detail: detail, Err: err}
}

func malformed(detail string) *Error {
	return &Error{Kind: KindMalformed, Detail: detail}
}

type PollStatus int

const (
	NotReady PollStatus = iota
	Ready
	Failed
)

func (s PollStatus) String() string {
	switch s {
	case NotReady:
		return "not_ready"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// PollResult carries Reading when Status is Ready and Err when Failed.
type PollResult struct {
	Status  PollStatus
	Reading Reading
	Err     error
}

// Port is what the sampling controller consumes.
type Port interface {
	Poll() PollResult
}

// Device is the pair of driver calls every sensor implementation provides.
type Device interface {
	DataReady() (bool, error)
	ReadMeasurement() (Reading, error)
}

// Poll checks the data-ready flag and reads a measurement when one is
// available. Driver errors that are not already *Error are reported as bus
// errors.
func Poll(d Device) (res PollResult) {
	defer func() {
		if r := recover(); r != nil {
			res = PollResult{Status: Failed, Err: busError(fmt.Sprint(r), nil)}
		}
	}()

	ready, err := d.DataReady()
	if err != nil {
		return PollResult{Status: Failed, Err: asSensorError("data ready", err)}
	}
	if !ready {
		return PollResult{Status: NotReady}
	}

	reading, err := d.ReadMeasurement()
	if err != nil {
		if KindOf(err) == KindNotReady {
			return PollResult{Status: NotReady}
		}
		return PollResult{Status: Failed, Err: asSensorError("read measurement", err)}
	}
	return PollResult{Status: Ready, Reading: reading}
}

func asSensorError(detail string, err error) error {
	if KindOf(err) != 0 {
		return err
	}
	return busError(detail, err)
}

// DevicePort adapts a Device to Port.
type DevicePort struct {
	Device Device
}

func (p DevicePort) Poll() PollResult {
	return Poll(p.Device)
}
