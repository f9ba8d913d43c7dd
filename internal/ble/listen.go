package ble

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"tinygo.org/x/bluetooth"
)

// Match is a single advertisement of an AirSense node.
type Match struct {
	Address   bluetooth.Address
	RSSI      int16
	LocalName string
	SeenAt    time.Time
}

type Filter struct {
	// LocalName must equal the advertised name when set.
	LocalName string
	// ServiceUUID must be advertised when set.
	ServiceUUID bluetooth.UUID
}

func (f Filter) matches(name string, hasService func(bluetooth.UUID) bool) bool {
	if f.LocalName != "" && name != f.LocalName {
		return false
	}
	if f.ServiceUUID != (bluetooth.UUID{}) && !hasService(f.ServiceUUID) {
		return false
	}
	return true
}

type Options struct {
	Filter Filter
	Logger *slog.Logger
}

// Listener wraps BlueZ scanning with context cancellation.
type Listener struct {
	adapter *bluetooth.Adapter
	opts    Options
	logger  *slog.Logger
}

func NewListener(adapter *bluetooth.Adapter, opts Options) *Listener {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Listener{adapter: adapter, opts: opts, logger: opts.Logger}
}

var errNotFound = errors.New("ble: no matching node found")

// Find scans until the first advertisement that passes the filter.
func (l *Listener) Find(ctx context.Context) (Match, error) {
	l.logger.Info("ble: enabling adapter")
	if err := l.adapter.Enable(); err != nil {
		return Match{}, fmt.Errorf("ble enable: %w", err)
	}

	stop := context.AfterFunc(ctx, func() { _ = l.adapter.StopScan() })
	defer stop()

	l.logger.Info("ble: scanning started", "filter_name", l.opts.Filter.LocalName)

	var found *Match
	// adapter.Scan blocks until StopScan() or error.
	err := l.adapter.Scan(func(a *bluetooth.Adapter, r bluetooth.ScanResult) {
		if !l.opts.Filter.matches(r.LocalName(), r.HasServiceUUID) {
			return
		}
		found = &Match{
			Address:   r.Address,
			RSSI:      r.RSSI,
			LocalName: r.LocalName(),
			SeenAt:    time.Now(),
		}
		_ = a.StopScan()
	})

	if found != nil {
		l.logger.Info("ble: node found",
			"addr", found.Address.String(),
			"name", found.LocalName,
			"rssi", found.RSSI,
		)
		return *found, nil
	}
	if ctx.Err() != nil {
		return Match{}, ctx.Err()
	}
	if err != nil {
		return Match{}, fmt.Errorf("ble scan: %w", err)
	}
	return Match{}, errNotFound
}
