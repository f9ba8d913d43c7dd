package ble

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"tinygo.org/x/bluetooth"

	"airsense/internal/broadcast"
	"airsense/internal/codec"
	"airsense/internal/utils"
)

// Notification is one decoded characteristic update.
type Notification struct {
	Address string
	Channel codec.Channel
	Value   float32
	Raw     []byte
}

// NotificationHandler logs decoded updates and keeps the latest value per
// channel.
type NotificationHandler struct {
	logger *slog.Logger

	mu     sync.Mutex
	latest map[codec.Channel]float32
}

func NewNotificationHandler(logger *slog.Logger) *NotificationHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &NotificationHandler{logger: logger, latest: make(map[codec.Channel]float32)}
}

// HandleRaw decodes payload for ch and records it.
func (h *NotificationHandler) HandleRaw(addr string, ch codec.Channel, payload []byte) {
	v, err := ParseNotification(ch, payload)
	if err != nil {
		h.logger.Debug("ble: ignore malformed notification",
			"addr", addr,
			"channel", ch.String(),
			"data", utils.BytesToHex(payload),
			"error", err,
		)
		return
	}
	h.Handle(Notification{Address: addr, Channel: ch, Value: v, Raw: append([]byte(nil), payload...)})
}

func (h *NotificationHandler) Handle(n Notification) {
	h.mu.Lock()
	h.latest[n.Channel] = n.Value
	score, scored := h.overallScoreLocked()
	h.mu.Unlock()

	attrs := []any{
		"addr", n.Address,
		"channel", n.Channel.String(),
		"value", n.Value,
		"data", utils.BytesToHex(n.Raw),
	}
	var (
		level      codec.Level
		classified = true
	)
	switch n.Channel {
	case codec.CO2:
		level = codec.Classify(uint16(n.Value))
	case codec.VOC, codec.NOx:
		level = codec.ClassifyIndex(uint16(n.Value))
	default:
		classified = false
	}
	if classified {
		attrs = append(attrs, "air_quality", level.String())
		if advice := level.Advice(); advice != "" {
			attrs = append(attrs, "advice", advice)
		}
	}
	if scored {
		attrs = append(attrs, "overall_score", score)
	}
	h.logger.Info("ble: notification", attrs...)
}

// overallScoreLocked combines the latest gas readings once all three arrived.
func (h *NotificationHandler) overallScoreLocked() (int, bool) {
	co2, ok1 := h.latest[codec.CO2]
	voc, ok2 := h.latest[codec.VOC]
	nox, ok3 := h.latest[codec.NOx]
	if !ok1 || !ok2 || !ok3 {
		return 0, false
	}
	return codec.OverallScore(uint16(co2), uint16(voc), uint16(nox)), true
}

// Latest returns the last value received on ch.
func (h *NotificationHandler) Latest(ch codec.Channel) (float32, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	v, ok := h.latest[ch]
	return v, ok
}

// Watch connects to the node, subscribes to every notify characteristic and
// blocks until ctx ends.
func (h *NotificationHandler) Watch(ctx context.Context, adapter *bluetooth.Adapter, m Match) error {
	dev, err := adapter.Connect(m.Address, bluetooth.ConnectionParams{})
	if err != nil {
		return fmt.Errorf("ble connect %s: %w", m.Address.String(), err)
	}
	defer func() {
		if err := dev.Disconnect(); err != nil {
			h.logger.Warn("ble: disconnect failed", "error", err)
		}
	}()
	addr := m.Address.String()
	h.logger.Info("ble: connected", "addr", addr)

	services, err := dev.DiscoverServices([]bluetooth.UUID{
		broadcast.EnvironmentalServiceUUID,
		broadcast.AirQualityServiceUUID,
	})
	if err != nil {
		return fmt.Errorf("ble discover services: %w", err)
	}

	subscribed := 0
	for _, svc := range services {
		chars, err := svc.DiscoverCharacteristics(nil)
		if err != nil {
			return fmt.Errorf("ble discover characteristics: %w", err)
		}
		for _, c := range chars {
			ch, ok := ChannelForUUID(c.UUID())
			if !ok {
				continue
			}
			if err := c.EnableNotifications(func(buf []byte) {
				h.HandleRaw(addr, ch, buf)
			}); err != nil {
				return fmt.Errorf("ble subscribe %s: %w", ch, err)
			}
			subscribed++
		}
	}
	if subscribed == 0 {
		return fmt.Errorf("ble: %s exposes no known characteristics", addr)
	}
	h.logger.Info("ble: subscribed", "addr", addr, "channels", subscribed)

	<-ctx.Done()
	return ctx.Err()
}
