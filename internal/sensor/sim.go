package sensor

import (
	"math"
	"math/rand/v2"
	"sync"
	"time"
)

// DefaultMeasurementPeriod is how often an SCD4x in periodic mode produces a
// new sample.
const DefaultMeasurementPeriod = 5 * time.Second

type SimulatorOptions struct {
	Period time.Duration
	Seed   uint64
	Now    func() time.Time
}

// Simulator stands in for the sensor on benches without one. Data becomes
// ready once per period and values drift in a bounded random walk.
type Simulator struct {
	mu      sync.Mutex
	rng     *rand.Rand
	period  time.Duration
	now     func() time.Time
	readyAt time.Time

	co2         float64
	temperature float64
	humidity    float64
}

func NewSimulator(opts SimulatorOptions) *Simulator {
	if opts.Period <= 0 {
		opts.Period = DefaultMeasurementPeriod
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Simulator{
		rng:         rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15)),
		period:      opts.Period,
		now:         opts.Now,
		readyAt:     opts.Now().Add(opts.Period),
		co2:         650,
		temperature: 22.4,
		humidity:    48,
	}
}

func (s *Simulator) DataReady() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.now().Before(s.readyAt), nil
}

func (s *Simulator) ReadMeasurement() (Reading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if now.Before(s.readyAt) {
		return Reading{}, &Error{Kind: KindNotReady}
	}
	s.readyAt = now.Add(s.period)

	s.co2 = drift(s.rng, s.co2, 100, 400, 2000)
	s.temperature = drift(s.rng, s.temperature, 0.5, 18, 28)
	s.humidity = drift(s.rng, s.humidity, 2, 30, 70)

	return Reading{
		CO2:         uint16(math.Round(s.co2)),
		Temperature: float32(s.temperature),
		Humidity:    float32(s.humidity),
		Timestamp:   now,
	}, nil
}

func (s *Simulator) Poll() PollResult {
	return Poll(s)
}

func drift(rng *rand.Rand, v, span, lo, hi float64) float64 {
	v += (rng.Float64() - 0.5) * span
	return math.Max(lo, math.Min(hi, v))
}
