package controller

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"airsense/internal/codec"
	"airsense/internal/sensor"
)

type fakePort struct {
	results []sensor.PollResult
	polls   int
}

// Poll pops the next queued result; an empty queue reports NotReady.
func (p *fakePort) Poll() sensor.PollResult {
	p.polls++
	if len(p.results) == 0 {
		return sensor.PollResult{Status: sensor.NotReady}
	}
	r := p.results[0]
	p.results = p.results[1:]
	return r
}

func (p *fakePort) push(rs ...sensor.PollResult) {
	p.results = append(p.results, rs...)
}

type published struct {
	ch      codec.Channel
	payload []byte
}

type fakeChannel struct {
	publishes  []published
	rearms     int
	publishErr error
	rearmErr   error
}

func (c *fakeChannel) Publish(ch codec.Channel, payload []byte) error {
	c.publishes = append(c.publishes, published{ch, append([]byte(nil), payload...)})
	return c.publishErr
}

func (c *fakeChannel) IsPeerConnected() bool { return false }

func (c *fakeChannel) RearmAdvertising() error {
	c.rearms++
	return c.rearmErr
}

func ready(co2 uint16, temp, hum float32) sensor.PollResult {
	return sensor.PollResult{
		Status:  sensor.Ready,
		Reading: sensor.Reading{CO2: co2, Temperature: temp, Humidity: hum},
	}
}

func failed(kind sensor.ErrorKind) sensor.PollResult {
	return sensor.PollResult{
		Status: sensor.Failed,
		Err:    &sensor.Error{Kind: kind, Detail: "test"},
	}
}

func newTestController(t *testing.T) (*Controller, *fakePort, *fakeChannel, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	port := &fakePort{}
	ch := &fakeChannel{}
	c := New(port, ch, Options{Logger: logger})
	return c, port, ch, &buf
}

var t0 = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

// lastSample reads the cadence clock; ok is false until a sample was taken.
func lastSample(c *Controller) (time.Time, bool) {
	st := c.Status()
	return st.LastSample, !st.LastSample.IsZero()
}

func TestFirstTickSamplesImmediately(t *testing.T) {
	c, port, _, _ := newTestController(t)
	port.push(ready(412, 23.45, 45))

	c.Tick(t0)

	if port.polls != 1 {
		t.Fatalf("polls = %d; want 1", port.polls)
	}
	last, ok := lastSample(c)
	if !ok || !last.Equal(t0) {
		t.Errorf("Status().LastSample = %v, %v; want %v, true", last, ok, t0)
	}
}

func TestSamplingCadence(t *testing.T) {
	c, port, _, _ := newTestController(t)
	port.push(ready(412, 23.45, 45), ready(500, 22, 40))

	c.Tick(t0)
	for _, d := range []time.Duration{500 * time.Millisecond, 2 * time.Second, 4999 * time.Millisecond} {
		c.Tick(t0.Add(d))
	}
	if port.polls != 1 {
		t.Fatalf("polls before interval = %d; want 1", port.polls)
	}

	c.Tick(t0.Add(DefaultSamplingInterval))
	if port.polls != 2 {
		t.Fatalf("polls at interval = %d; want 2", port.polls)
	}
	last, _ := lastSample(c)
	if !last.Equal(t0.Add(DefaultSamplingInterval)) {
		t.Errorf("Status().LastSample = %v; want %v", last, t0.Add(DefaultSamplingInterval))
	}
}

func TestNotReadyLeavesClockUntouched(t *testing.T) {
	c, port, ch, _ := newTestController(t)
	c.OnConnect()

	for i := 0; i < 5; i++ {
		c.Tick(t0.Add(time.Duration(i) * DefaultSettleDelay))
	}

	if port.polls != 5 {
		t.Errorf("polls = %d; want a poll on every tick while not ready", port.polls)
	}
	if _, ok := lastSample(c); ok {
		t.Error("Status().LastSample advanced on not-ready results")
	}
	if len(ch.publishes) != 0 {
		t.Errorf("publishes = %d; want 0", len(ch.publishes))
	}

	// The next ready result is consumed on the very next tick.
	port.push(ready(700, 21, 50))
	now := t0.Add(3 * time.Second)
	c.Tick(now)
	if last, ok := lastSample(c); !ok || !last.Equal(now) {
		t.Errorf("Status().LastSample = %v, %v; want %v, true", last, ok, now)
	}
}

func TestFailureAdvancesClock(t *testing.T) {
	tests := []struct {
		name      string
		kind      sensor.ErrorKind
		connected bool
		want      string
	}{
		{"bus error logs error", sensor.KindBus, true, "level=ERROR"},
		{"malformed logs warning", sensor.KindMalformed, true, "level=WARN"},
		{"bus error without peer", sensor.KindBus, false, "level=ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, port, ch, logs := newTestController(t)
			if tt.connected {
				c.OnConnect()
			}
			port.push(failed(tt.kind))

			c.Tick(t0)
			if last, ok := lastSample(c); !ok || !last.Equal(t0) {
				t.Fatalf("Status().LastSample = %v, %v; want %v, true", last, ok, t0)
			}
			if len(ch.publishes) != 0 {
				t.Errorf("publishes = %d; want 0", len(ch.publishes))
			}
			if !strings.Contains(logs.String(), tt.want) || !strings.Contains(logs.String(), "sensor: read failed") {
				t.Errorf("logs missing %q read failure:\n%s", tt.want, logs.String())
			}

			// No retry until a full interval has passed.
			c.Tick(t0.Add(time.Second))
			if port.polls != 1 {
				t.Errorf("polls = %d; want 1", port.polls)
			}
			if got := c.Status().Failures; got != 1 {
				t.Errorf("Failures = %d; want 1", got)
			}
		})
	}
}

func TestInvalidSampleNeverPublished(t *testing.T) {
	tests := []struct {
		sample    sensor.PollResult
		connected bool
	}{
		{ready(0, 0, 0), true},
		{ready(0, 23.45, 45), true},
		{ready(0, -10, 100), true},
		{ready(0, 23.45, 45), false},
	}
	for _, tt := range tests {
		s := tt.sample
		c, port, ch, logs := newTestController(t)
		if tt.connected {
			c.OnConnect()
		}
		port.push(s)

		c.Tick(t0)
		if last, ok := lastSample(c); !ok || !last.Equal(t0) {
			t.Errorf("connected=%v: Status().LastSample = %v, %v; want %v, true", tt.connected, last, ok, t0)
		}

		// The clock advanced, so the next poll waits a full interval.
		c.Tick(t0.Add(DefaultSamplingInterval / 2))
		if port.polls != 1 {
			t.Errorf("connected=%v: polls = %d; want 1", tt.connected, port.polls)
		}

		if len(ch.publishes) != 0 {
			t.Errorf("reading %+v was published", s.Reading)
		}
		if !strings.Contains(logs.String(), "invalid sample (co2 = 0), skipping") {
			t.Errorf("missing invalid-sample warning:\n%s", logs.String())
		}
		if got := c.Status().Discarded; got != 1 {
			t.Errorf("Discarded = %d; want 1", got)
		}
	}
}

func TestNoPublishWithoutPeer(t *testing.T) {
	c, port, ch, _ := newTestController(t)
	port.push(ready(412, 23.45, 45), ready(900, 25, 55))

	c.Tick(t0)
	c.Tick(t0.Add(DefaultSamplingInterval))

	if len(ch.publishes) != 0 {
		t.Errorf("publishes = %d; want 0 while disconnected", len(ch.publishes))
	}
	if port.polls != 2 {
		t.Errorf("polls = %d; want sampling to continue while disconnected", port.polls)
	}
	st := c.Status()
	if st.Samples != 2 || st.Published != 0 {
		t.Errorf("Samples, Published = %d, %d; want 2, 0", st.Samples, st.Published)
	}
}

func TestPublishesAllChannelsInOrder(t *testing.T) {
	c, port, ch, _ := newTestController(t)
	c.OnConnect()
	port.push(ready(412, 23.45, 45))

	c.Tick(t0)

	want := []published{
		{codec.CO2, []byte{0x9c, 0x01}},
		{codec.Temperature, []byte{0x29, 0x09}},
		{codec.Humidity, []byte{0x94, 0x11}},
		{codec.VOC, []byte{0x00, 0x00}},
		{codec.NOx, []byte{0x00, 0x00}},
	}
	if len(ch.publishes) != len(want) {
		t.Fatalf("publishes = %d; want %d", len(ch.publishes), len(want))
	}
	for i, w := range want {
		got := ch.publishes[i]
		if got.ch != w.ch || !bytes.Equal(got.payload, w.payload) {
			t.Errorf("publish[%d] = %s % x; want %s % x", i, got.ch, got.payload, w.ch, w.payload)
		}
	}
	if got := c.Status().Published; got != 1 {
		t.Errorf("Published = %d; want 1", got)
	}
}

func TestPublishErrorsAreSwallowed(t *testing.T) {
	c, port, ch, _ := newTestController(t)
	ch.publishErr = errors.New("notify failed")
	c.OnConnect()
	port.push(ready(412, 23.45, 45))

	c.Tick(t0)

	if len(ch.publishes) != len(codec.Channels) {
		t.Errorf("publish attempts = %d; want %d", len(ch.publishes), len(codec.Channels))
	}
	if last, ok := lastSample(c); !ok || !last.Equal(t0) {
		t.Errorf("Status().LastSample = %v, %v; want %v, true", last, ok, t0)
	}
}

func TestReattachAfterDisconnect(t *testing.T) {
	c, _, ch, _ := newTestController(t)

	c.OnConnect()
	c.Tick(t0)
	c.OnDisconnect()

	c.Tick(t0.Add(1 * DefaultSettleDelay))
	if ch.rearms != 0 {
		t.Fatalf("rearms = %d on the tick that observed the disconnect; want 0", ch.rearms)
	}

	c.Tick(t0.Add(2 * DefaultSettleDelay))
	if ch.rearms != 1 {
		t.Fatalf("rearms = %d on the following tick; want 1", ch.rearms)
	}

	for i := 3; i < 10; i++ {
		c.Tick(t0.Add(time.Duration(i) * DefaultSettleDelay))
	}
	if ch.rearms != 1 {
		t.Errorf("rearms = %d after further ticks; want exactly 1", ch.rearms)
	}
	if got := c.Status().Reattaches; got != 1 {
		t.Errorf("Reattaches = %d; want 1", got)
	}
}

func TestReattachPerDisconnect(t *testing.T) {
	c, _, ch, _ := newTestController(t)
	now := t0
	step := func() {
		c.Tick(now)
		now = now.Add(DefaultSettleDelay)
	}

	for i := 0; i < 3; i++ {
		c.OnConnect()
		step()
		c.OnDisconnect()
		step()
		step()
	}
	if ch.rearms != 3 {
		t.Errorf("rearms = %d; want 3", ch.rearms)
	}
}

func TestReattachFailureIsNotRetried(t *testing.T) {
	c, _, ch, logs := newTestController(t)
	ch.rearmErr = errors.New("adapter busy")

	c.OnConnect()
	c.Tick(t0)
	c.OnDisconnect()
	for i := 1; i <= 4; i++ {
		c.Tick(t0.Add(time.Duration(i) * DefaultSettleDelay))
	}

	if ch.rearms != 1 {
		t.Errorf("rearms = %d; want 1", ch.rearms)
	}
	if !strings.Contains(logs.String(), "re-arm advertising failed") {
		t.Errorf("missing re-arm warning:\n%s", logs.String())
	}
}

func TestFlapWithinTickIsNotAnEdge(t *testing.T) {
	c, _, ch, _ := newTestController(t)

	c.OnConnect()
	c.Tick(t0)
	c.OnDisconnect()
	c.OnConnect()
	c.Tick(t0.Add(DefaultSettleDelay))
	c.Tick(t0.Add(2 * DefaultSettleDelay))

	if ch.rearms != 0 {
		t.Errorf("rearms = %d; want 0", ch.rearms)
	}
	if !c.Status().Connected {
		t.Error("Status().Connected = false; want true")
	}
}

func TestNoReattachWithoutPriorConnection(t *testing.T) {
	c, _, ch, _ := newTestController(t)
	c.OnDisconnect()
	for i := 0; i < 4; i++ {
		c.Tick(t0.Add(time.Duration(i) * DefaultSettleDelay))
	}
	if ch.rearms != 0 {
		t.Errorf("rearms = %d; want 0", ch.rearms)
	}
}

func TestReadingLogIncludesClassification(t *testing.T) {
	tests := []struct {
		co2        uint16
		quality    string
		wantAdvice string
	}{
		{450, "excellent", ""},
		{1200, "poor", "open windows"},
		{2000, "bad", "ventilate immediately"},
	}
	for _, tt := range tests {
		c, port, _, logs := newTestController(t)
		port.push(ready(tt.co2, 21, 40))
		c.Tick(t0)

		out := logs.String()
		if !strings.Contains(out, "air_quality="+tt.quality) {
			t.Errorf("co2 %d: missing air_quality=%s in %s", tt.co2, tt.quality, out)
		}
		if tt.wantAdvice != "" && !strings.Contains(out, tt.wantAdvice) {
			t.Errorf("co2 %d: missing advice %q in %s", tt.co2, tt.wantAdvice, out)
		}
		if tt.wantAdvice == "" && strings.Contains(out, "advice=") {
			t.Errorf("co2 %d: unexpected advice in %s", tt.co2, out)
		}
	}
}

func TestNilChannelRunsSensorOnly(t *testing.T) {
	port := &fakePort{}
	port.push(ready(412, 23.45, 45))
	c := New(port, nil, Options{Logger: slog.New(slog.DiscardHandler)})

	c.OnConnect()
	c.Tick(t0)
	c.OnDisconnect()
	c.Tick(t0.Add(DefaultSettleDelay))
	c.Tick(t0.Add(2 * DefaultSettleDelay))

	if st := c.Status(); st.Samples != 1 || st.Reattaches != 1 {
		t.Errorf("Status() = %+v; want 1 sample and 1 reattach", st)
	}
}

func TestStatusSnapshot(t *testing.T) {
	c, port, _, _ := newTestController(t)
	if st := c.Status(); st.State != Idle || !st.LastSample.IsZero() {
		t.Errorf("initial Status() = %+v", st)
	}

	c.OnConnect()
	port.push(ready(412, 23.45, 45))
	c.Tick(t0)

	st := c.Status()
	if st.State != Idle {
		t.Errorf("State = %s; want idle between ticks", st.State)
	}
	if !st.Connected || !st.LastSample.Equal(t0) || st.Samples != 1 || st.Published != 1 {
		t.Errorf("Status() = %+v", st)
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		s    State
		want string
	}{
		{Idle, "idle"},
		{Sampling, "sampling"},
		{Publishing, "publishing"},
		{State(9), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q; want %q", int(tt.s), got, tt.want)
		}
	}
}

type syncPort struct {
	mu    sync.Mutex
	polls int
}

func (p *syncPort) Poll() sensor.PollResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.polls++
	return sensor.PollResult{Status: sensor.Ready, Reading: sensor.Reading{CO2: 500}}
}

func TestRunStopsOnCancel(t *testing.T) {
	port := &syncPort{}
	c := New(port, nil, Options{
		SamplingInterval: 20 * time.Millisecond,
		TickInterval:     5 * time.Millisecond,
		Logger:           slog.New(slog.DiscardHandler),
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	// Callbacks arrive from another goroutine while Run ticks.
	c.OnConnect()
	time.Sleep(60 * time.Millisecond)
	_ = c.Status()
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run() = %v; want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	port.mu.Lock()
	defer port.mu.Unlock()
	if port.polls < 1 {
		t.Errorf("polls = %d; want at least the immediate first tick", port.polls)
	}
}
