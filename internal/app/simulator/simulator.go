// Package simulator drives one machine's address-space variables with random
// readings, standing in for a field sensor.
package simulator

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/satyaprakashdhfm/industrial-iot-pipeline-simulator/internal/domain"
	"github.com/satyaprakashdhfm/industrial-iot-pipeline-simulator/internal/ports"
)

type Config struct {
	Machine        domain.Machine
	SampleInterval time.Duration
	ConnectRetry   time.Duration
	TempMin        float64
	TempMax        float64
	PressMin       float64
	PressMax       float64
}

type Option func(*Simulator)

func WithClock(clock clockwork.Clock) Option {
	return func(s *Simulator) { s.clock = clock }
}

// WithRand fixes the random source, for reproducible runs.
func WithRand(r *rand.Rand) Option {
	return func(s *Simulator) { s.rnd = r }
}

type Simulator struct {
	w     ports.VariableWriter
	obs   ports.Observability
	clock clockwork.Clock
	rnd   *rand.Rand
	cfg   Config
}

func New(w ports.VariableWriter, obs ports.Observability, cfg Config, opts ...Option) *Simulator {
	if cfg.SampleInterval <= 0 {
		cfg.SampleInterval = 15 * time.Second
	}
	if cfg.ConnectRetry <= 0 {
		cfg.ConnectRetry = 10 * time.Second
	}
	s := &Simulator{
		w:     w,
		obs:   obs,
		clock: clockwork.NewRealClock(),
		rnd:   rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0)),
		cfg:   cfg,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Run connects, retrying until it succeeds, then writes a sample every
// interval. A failed write ends the run.
func (s *Simulator) Run(ctx context.Context) error {
	if err := s.connect(ctx); err != nil {
		return nil
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.w.Close(closeCtx)
		s.obs.LogInfo("simulator disconnected")
	}()

	for {
		p := s.Sample()
		if err := s.w.WritePayload(ctx, s.cfg.Machine, p); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.obs.LogError("write failed", err, ports.Field{Key: "machine", Value: s.cfg.Machine.ID})
			return fmt.Errorf("write %s: %w", s.cfg.Machine.ID, err)
		}
		s.obs.IncCounter(ports.MetricSimulatorWrites, 1)
		s.obs.LogInfo("sample written",
			ports.Field{Key: "machine", Value: s.cfg.Machine.ID},
			ports.Field{Key: "temperature", Value: p.Temperature},
			ports.Field{Key: "pressure", Value: p.Pressure},
			ports.Field{Key: "timestamp", Value: p.Timestamp})

		select {
		case <-ctx.Done():
			return nil
		case <-s.clock.After(s.cfg.SampleInterval):
		}
	}
}

// connect only fails when ctx ends first.
func (s *Simulator) connect(ctx context.Context) error {
	for {
		err := s.w.Connect(ctx)
		if err == nil {
			s.obs.LogInfo("simulator connected", ports.Field{Key: "machine", Value: s.cfg.Machine.ID})
			return nil
		}
		s.obs.LogError("connect failed", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.clock.After(s.cfg.ConnectRetry):
		}
	}
}

// Sample draws one reading stamped with the current UTC time.
func (s *Simulator) Sample() domain.Payload {
	return domain.Payload{
		Timestamp:   domain.FormatPayloadTime(s.clock.Now()),
		Temperature: round2(s.uniform(s.cfg.TempMin, s.cfg.TempMax)),
		Pressure:    round2(s.uniform(s.cfg.PressMin, s.cfg.PressMax)),
	}
}

func (s *Simulator) uniform(lo, hi float64) float64 {
	return lo + s.rnd.Float64()*(hi-lo)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
