//go:build !tinygo

package broadcast

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"airsense/internal/codec"
	"airsense/internal/mqtt"
)

const (
	statusOnline  = "online"
	statusOffline = "offline"
)

type MQTTOptions struct {
	Broker      string
	Port        int
	ClientID    string
	TopicPrefix string
	StationID   string
	Logger      *slog.Logger
}

// MQTT mirrors the notify channels onto a broker for benches without a
// radio. The broker session plays the role of the peer connection.
type MQTT struct {
	client *mqtt.Client
	opts   MQTTOptions
	logger *slog.Logger

	mu      sync.Mutex
	handler ConnectionHandler
}

func NewMQTT(opts MQTTOptions) *MQTT {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	m := &MQTT{opts: opts, logger: opts.Logger}
	m.client = mqtt.NewClient(mqtt.Options{
		Broker:           opts.Broker,
		Port:             opts.Port,
		ClientID:         opts.ClientID,
		WillTopic:        m.StatusTopic(),
		WillPayload:      statusOffline,
		OnConnect:        m.onConnect,
		OnConnectionLost: func(error) { m.onDisconnect() },
		Logger:           opts.Logger,
	})
	return m
}

// Topic is where payloads for ch are published.
func (m *MQTT) Topic(ch codec.Channel) string {
	return fmt.Sprintf("%s/%s/%s", m.opts.TopicPrefix, m.opts.StationID, ch)
}

func (m *MQTT) StatusTopic() string {
	return fmt.Sprintf("%s/%s/status", m.opts.TopicPrefix, m.opts.StationID)
}

func (m *MQTT) Start(ctx context.Context, h ConnectionHandler) error {
	m.mu.Lock()
	m.handler = h
	m.mu.Unlock()

	go m.connect(ctx)
	return nil
}

// connect blocks until the first session is up. Shutdown is not a failure.
func (m *MQTT) connect(ctx context.Context) {
	err := m.client.Connect(ctx)
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, mqtt.ErrStopped) {
		return
	}
	m.logger.Warn("mqtt: initial connect failed", "error", err)
}

func (m *MQTT) onConnect() {
	m.announce()
	if h := m.currentHandler(); h != nil {
		h.OnConnect()
	}
}

func (m *MQTT) onDisconnect() {
	if h := m.currentHandler(); h != nil {
		h.OnDisconnect()
	}
}

func (m *MQTT) currentHandler() ConnectionHandler {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.handler
}

func (m *MQTT) announce() {
	if err := m.client.Publish(m.StatusTopic(), 1, true, []byte(statusOnline)); err != nil {
		m.logger.Debug("mqtt: announce failed", "error", err)
	}
}

func (m *MQTT) Publish(ch codec.Channel, payload []byte) error {
	if !m.client.IsConnected() {
		return nil
	}
	return m.client.Publish(m.Topic(ch), 0, false, payload)
}

func (m *MQTT) IsPeerConnected() bool {
	return m.client.IsConnected()
}

// RearmAdvertising re-announces availability. While the broker is away paho
// keeps reconnecting on its own and the connect callback announces instead.
func (m *MQTT) RearmAdvertising() error {
	if !m.client.IsConnected() {
		return nil
	}
	return m.client.Publish(m.StatusTopic(), 1, true, []byte(statusOnline))
}

func (m *MQTT) Close() error {
	if m.client.IsConnected() {
		_ = m.client.Publish(m.StatusTopic(), 1, true, []byte(statusOffline))
	}
	m.client.Disconnect()
	return nil
}
