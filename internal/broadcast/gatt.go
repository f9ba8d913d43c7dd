package broadcast

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"tinygo.org/x/bluetooth"

	"airsense/internal/codec"
)

// Attribute identifiers are part of the contract with the companion app and
// must not change between releases.
var (
	EnvironmentalServiceUUID = bluetooth.New16BitUUID(0x181a)
	CO2CharacteristicUUID    = bluetooth.New16BitUUID(0x2b8c)
	TemperatureCharUUID      = bluetooth.New16BitUUID(0x2a6e)
	HumidityCharUUID         = bluetooth.New16BitUUID(0x2a6f)

	AirQualityServiceUUID = mustUUID("6e4a0001-5c1f-4b7e-9a3d-2f8c1e0a5b7d")
	VOCCharUUID           = mustUUID("6e4a0002-5c1f-4b7e-9a3d-2f8c1e0a5b7d")
	NOxCharUUID           = mustUUID("6e4a0003-5c1f-4b7e-9a3d-2f8c1e0a5b7d")
)

func mustUUID(s string) bluetooth.UUID {
	return bluetooth.NewUUID([16]byte(uuid.MustParse(s)))
}

// CharacteristicUUID returns the notify attribute carrying ch.
func CharacteristicUUID(ch codec.Channel) (bluetooth.UUID, bool) {
	switch ch {
	case codec.CO2:
		return CO2CharacteristicUUID, true
	case codec.Temperature:
		return TemperatureCharUUID, true
	case codec.Humidity:
		return HumidityCharUUID, true
	case codec.VOC:
		return VOCCharUUID, true
	case codec.NOx:
		return NOxCharUUID, true
	}
	return bluetooth.UUID{}, false
}

type GATTOptions struct {
	LocalName string
	Logger    *slog.Logger
}

// advertiser is the part of *bluetooth.Advertisement used after Start.
type advertiser interface {
	Start() error
	Stop() error
}

// GATT exposes the readings as notify characteristics of a BLE peripheral.
type GATT struct {
	adapter *bluetooth.Adapter
	adv     advertiser
	opts    GATTOptions
	logger  *slog.Logger

	chars     [len(codec.Channels)]bluetooth.Characteristic
	connected atomic.Bool

	mu      sync.Mutex
	handler ConnectionHandler
}

func NewGATT(adapter *bluetooth.Adapter, opts GATTOptions) *GATT {
	if opts.LocalName == "" {
		opts.LocalName = "AirSense"
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &GATT{
		adapter: adapter,
		opts:    opts,
		logger:  opts.Logger,
	}
}

// Start enables the adapter, registers both services and begins advertising.
func (g *GATT) Start(_ context.Context, h ConnectionHandler) error {
	g.mu.Lock()
	g.handler = h
	g.mu.Unlock()

	g.logger.Info("ble: enabling adapter")
	if err := g.adapter.Enable(); err != nil {
		return fmt.Errorf("ble enable: %w", err)
	}
	g.adapter.SetConnectHandler(func(_ bluetooth.Device, connected bool) {
		g.setConnected(connected)
	})

	if err := g.adapter.AddService(g.service(EnvironmentalServiceUUID, codec.CO2, codec.Temperature, codec.Humidity)); err != nil {
		return fmt.Errorf("ble add environmental service: %w", err)
	}
	if err := g.adapter.AddService(g.service(AirQualityServiceUUID, codec.VOC, codec.NOx)); err != nil {
		return fmt.Errorf("ble add air quality service: %w", err)
	}

	adv := g.adapter.DefaultAdvertisement()
	if err := adv.Configure(bluetooth.AdvertisementOptions{
		LocalName:    g.opts.LocalName,
		ServiceUUIDs: []bluetooth.UUID{EnvironmentalServiceUUID},
	}); err != nil {
		return fmt.Errorf("ble configure advertisement: %w", err)
	}
	g.adv = adv
	if err := g.adv.Start(); err != nil {
		return fmt.Errorf("ble start advertisement: %w", err)
	}
	g.logger.Info("ble: advertising", "local_name", g.opts.LocalName)
	return nil
}

func (g *GATT) service(id bluetooth.UUID, channels ...codec.Channel) *bluetooth.Service {
	svc := &bluetooth.Service{UUID: id}
	for _, ch := range channels {
		charUUID, _ := CharacteristicUUID(ch)
		svc.Characteristics = append(svc.Characteristics, bluetooth.CharacteristicConfig{
			Handle: &g.chars[ch],
			UUID:   charUUID,
			Value:  make([]byte, codec.PayloadSize),
			Flags:  bluetooth.CharacteristicReadPermission | bluetooth.CharacteristicNotifyPermission,
		})
	}
	return svc
}

func (g *GATT) setConnected(connected bool) {
	g.connected.Store(connected)

	g.mu.Lock()
	h := g.handler
	g.mu.Unlock()
	if h == nil {
		return
	}
	if connected {
		h.OnConnect()
	} else {
		h.OnDisconnect()
	}
}

func (g *GATT) Publish(ch codec.Channel, payload []byte) error {
	if !g.connected.Load() || int(ch) >= len(g.chars) {
		return nil
	}
	if _, err := g.chars[ch].Write(payload); err != nil {
		return fmt.Errorf("ble notify %s: %w", ch, err)
	}
	return nil
}

func (g *GATT) IsPeerConnected() bool {
	return g.connected.Load()
}

// RearmAdvertising makes the node discoverable again without stopping the
// advertisement: on the HCI stack Stop also drops the registered services.
func (g *GATT) RearmAdvertising() error {
	if g.adv == nil {
		return fmt.Errorf("ble: advertisement not configured")
	}
	return rearm(g.adv, g.logger)
}

func (g *GATT) Close() error {
	if g.adv == nil {
		return nil
	}
	return g.adv.Stop()
}
