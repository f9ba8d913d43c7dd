// Package controller runs the sampling-and-broadcast loop: it paces sensor
// polls, drops invalid samples, publishes encoded readings while a peer is
// attached and re-arms advertising after the peer leaves.
package controller

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"airsense/internal/broadcast"
	"airsense/internal/codec"
	"airsense/internal/sensor"
	"airsense/internal/utils"
)

const (
	DefaultSamplingInterval = 5 * time.Second
	DefaultSettleDelay      = 500 * time.Millisecond
)

type State int

const (
	Idle State = iota
	Sampling
	Publishing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Sampling:
		return "sampling"
	case Publishing:
		return "publishing"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

type Options struct {
	// SamplingInterval is the minimum time between two sensor polls that
	// consumed a sample.
	SamplingInterval time.Duration
	// TickInterval paces Run. A reattach is deferred by one tick, so it must
	// not be shorter than the radio's settle delay.
	TickInterval time.Duration
	Logger       *slog.Logger
}

// Status is a point-in-time view for health reporting.
type Status struct {
	State      State     `json:"state"`
	Connected  bool      `json:"connected"`
	LastSample time.Time `json:"last_sample,omitzero"`
	Samples    uint64    `json:"samples"`
	Published  uint64    `json:"published"`
	Discarded  uint64    `json:"discarded"`
	Failures   uint64    `json:"failures"`
	Reattaches uint64    `json:"reattaches"`
}

type Controller struct {
	port     sensor.Port
	channel  broadcast.Channel
	logger   *slog.Logger
	interval time.Duration
	tick     time.Duration

	// connected is the only field written outside the tick, by the
	// transport's connection callback.
	connected atomic.Bool

	state           State
	lastSample      time.Time
	sampled         bool
	observed        bool
	reattachPending bool
	counters        Status

	mu     sync.Mutex
	status Status
}

// New builds a controller. A nil channel gives the sensor-only variant.
func New(port sensor.Port, channel broadcast.Channel, opts Options) *Controller {
	if channel == nil {
		channel = broadcast.Noop{}
	}
	if opts.SamplingInterval <= 0 {
		opts.SamplingInterval = DefaultSamplingInterval
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = DefaultSettleDelay
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Controller{
		port:     port,
		channel:  channel,
		logger:   opts.Logger,
		interval: opts.SamplingInterval,
		tick:     opts.TickInterval,
	}
}

// OnConnect implements broadcast.ConnectionHandler.
func (c *Controller) OnConnect() { c.connected.Store(true) }

// OnDisconnect implements broadcast.ConnectionHandler.
func (c *Controller) OnDisconnect() { c.connected.Store(false) }

// Run ticks until ctx is done. The first tick happens immediately.
func (c *Controller) Run(ctx context.Context) error {
	c.logger.Info("controller: started",
		"sampling_interval", c.interval,
		"tick_interval", c.tick,
	)

	ticker := time.NewTicker(c.tick)
	defer ticker.Stop()

	c.Tick(time.Now())
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			c.Tick(now)
		}
	}
}

// Tick runs one step of the machine to completion. It must only be called
// from a single goroutine.
func (c *Controller) Tick(now time.Time) {
	defer c.snapshot()

	c.reconcileConnection()

	if !c.due(now) {
		return
	}

	c.state = Sampling
	reading, ok := c.sample(now)
	if !ok {
		c.state = Idle
		return
	}

	c.state = Publishing
	c.publish(reading)
	c.markSampled(now)
	c.state = Idle
}

// Status may be called from any goroutine.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *Controller) due(now time.Time) bool {
	return !c.sampled || now.Sub(c.lastSample) >= c.interval
}

func (c *Controller) markSampled(now time.Time) {
	c.lastSample = now
	c.sampled = true
}

// reconcileConnection fires a reattach scheduled by an earlier tick, then
// reads the connection flag once and schedules a reattach on a falling edge.
func (c *Controller) reconcileConnection() {
	if c.reattachPending {
		c.reattachPending = false
		c.counters.Reattaches++
		if err := c.channel.RearmAdvertising(); err != nil {
			c.logger.Warn("broadcast: re-arm advertising failed", "error", err)
		} else {
			c.logger.Info("broadcast: advertising re-armed")
		}
	}

	connected := c.connected.Load()
	if connected == c.observed {
		return
	}
	c.observed = connected
	if connected {
		c.logger.Info("broadcast: peer connected")
		return
	}
	c.logger.Info("broadcast: peer disconnected")
	c.reattachPending = true
}

func (c *Controller) sample(now time.Time) (sensor.Reading, bool) {
	res := c.port.Poll()

	switch res.Status {
	case sensor.NotReady:
		c.logger.Debug("sensor: data not ready yet")
		return sensor.Reading{}, false

	case sensor.Failed:
		c.markSampled(now)
		c.counters.Failures++
		level := slog.LevelError
		if sensor.KindOf(res.Err) == sensor.KindMalformed {
			level = slog.LevelWarn
		}
		c.logger.Log(context.Background(), level, "sensor: read failed",
			"kind", sensor.KindOf(res.Err).String(),
			"error", res.Err,
		)
		return sensor.Reading{}, false
	}

	r := res.Reading
	if !r.Valid() {
		c.markSampled(now)
		c.counters.Discarded++
		c.logger.Warn("sensor: invalid sample (co2 = 0), skipping",
			"temperature_c", r.Temperature,
			"humidity_pct", r.Humidity,
		)
		return sensor.Reading{}, false
	}

	c.counters.Samples++
	level := codec.Classify(r.CO2)
	attrs := []any{
		"co2_ppm", r.CO2,
		"temperature_c", r.Temperature,
		"humidity_pct", r.Humidity,
		"air_quality", level.String(),
	}
	if advice := level.Advice(); advice != "" {
		attrs = append(attrs, "advice", advice)
	}
	c.logger.Info("sensor: reading", attrs...)
	return r, true
}

// publish sends every channel in order while a peer is attached. Readings
// taken without a peer are dropped, not queued.
func (c *Controller) publish(r sensor.Reading) {
	if !c.observed {
		c.logger.Debug("broadcast: no peer, reading not published")
		return
	}

	frame := codec.Encode(r)
	for _, ch := range codec.Channels {
		payload := frame.Payload(ch)
		if err := c.channel.Publish(ch, payload); err != nil {
			c.logger.Debug("broadcast: publish failed", "channel", ch.String(), "error", err)
			continue
		}
		c.logger.Debug("broadcast: published", "channel", ch.String(), "data", utils.BytesToHex(payload))
	}
	c.counters.Published++
}

func (c *Controller) snapshot() {
	s := c.counters
	s.State = c.state
	s.Connected = c.observed
	if c.sampled {
		s.LastSample = c.lastSample
	}

	c.mu.Lock()
	c.status = s
	c.mu.Unlock()
}
