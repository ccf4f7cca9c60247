// Package relay mirrors changed sensor payloads from the OPC UA address space
// onto the message bus.
//
// Two loops run side by side. The reconnect loop owns the bus session and
// retries every reconnect interval while the bus is down. The poll loop reads
// every machine, and publishes a payload only when it differs from the last
// one the bus accepted for that machine. Nothing is queued while the bus is
// down: changes made during an outage are lost and only the value current at
// the first poll after reconnecting is published.
package relay

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/satyaprakashdhfm/industrial-iot-pipeline-simulator/internal/domain"
	"github.com/satyaprakashdhfm/industrial-iot-pipeline-simulator/internal/ports"
)

// BusState is the relay's view of its bus session.
type BusState int32

const (
	Disconnected BusState = iota
	Connected
)

func (s BusState) String() string {
	if s == Connected {
		return "connected"
	}
	return "disconnected"
}

// Config controls loop cadence.
type Config struct {
	PollInterval      time.Duration
	ReconnectInterval time.Duration
}

// Option customizes a Relay.
type Option func(*Relay)

// WithClock replaces the wall clock driving both loops.
func WithClock(c clockwork.Clock) Option {
	return func(r *Relay) { r.clock = c }
}

// WithMachines overrides the fleet being relayed.
func WithMachines(ms []domain.Machine) Option {
	return func(r *Relay) { r.machines = ms }
}

type Relay struct {
	space    ports.AddressSpace
	bus      ports.Publisher
	obs      ports.Observability
	clock    clockwork.Clock
	machines []domain.Machine
	cfg      Config

	state atomic.Int32

	// last holds the payload the bus last accepted per machine. Only the poll
	// loop touches it.
	last map[string]domain.Payload
}

func New(space ports.AddressSpace, bus ports.Publisher, obs ports.Observability, cfg Config, opts ...Option) *Relay {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.ReconnectInterval <= 0 {
		cfg.ReconnectInterval = 5 * time.Second
	}
	r := &Relay{
		space:    space,
		bus:      bus,
		obs:      obs,
		clock:    clockwork.NewRealClock(),
		machines: domain.Machines,
		cfg:      cfg,
		last:     make(map[string]domain.Payload),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// State reports the current bus state.
func (r *Relay) State() BusState {
	return BusState(r.state.Load())
}

func (r *Relay) setState(s BusState) {
	r.state.Store(int32(s))
	if s == Connected {
		r.obs.SetGauge(ports.MetricRelayBusConnected, 1)
	} else {
		r.obs.SetGauge(ports.MetricRelayBusConnected, 0)
	}
}

// Run starts the address space and both loops, and blocks until ctx is
// cancelled or a poll cycle fails. The address space and bus are released
// before Run returns; in-flight publishes are not drained.
func (r *Relay) Run(ctx context.Context) error {
	if err := r.space.Start(ctx); err != nil {
		return fmt.Errorf("start address space: %w", err)
	}
	r.obs.LogInfo("address space started", ports.Field{Key: "machines", Value: len(r.machines)})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		r.reconnectLoop(gctx)
		return nil
	})
	g.Go(func() error {
		return r.pollLoop(gctx)
	})
	runErr := g.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var errs []error
	if runErr != nil {
		errs = append(errs, runErr)
	}
	if err := r.bus.Close(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("close bus: %w", err))
	}
	r.setState(Disconnected)
	if err := r.space.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("stop address space: %w", err))
	}
	r.obs.LogInfo("relay stopped")
	return errors.Join(errs...)
}

func (r *Relay) reconnectLoop(ctx context.Context) {
	ticker := r.clock.NewTicker(r.cfg.ReconnectInterval)
	defer ticker.Stop()

	for {
		if r.State() == Disconnected {
			r.tryConnect(ctx)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
		}
	}
}

// tryConnect opens one bus session. A loss reported before Connect returns
// leaves the relay Disconnected so the next tick retries.
func (r *Relay) tryConnect(ctx context.Context) {
	var lost atomic.Bool
	err := r.bus.Connect(ctx, func(err error) {
		lost.Store(true)
		r.setState(Disconnected)
		r.obs.LogWarn("bus connection lost", err)
	})
	if err != nil {
		if ctx.Err() == nil {
			r.obs.LogError("bus connect failed", err)
		}
		return
	}
	r.setState(Connected)
	if lost.Load() {
		r.setState(Disconnected)
		return
	}
	r.obs.LogInfo("bus connected")
}

func (r *Relay) pollLoop(ctx context.Context) error {
	ticker := r.clock.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if err := r.PollOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			r.obs.LogCritical("poll cycle aborted", err)
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.Chan():
		}
	}
}

// PollOnce runs a single poll cycle. Every machine is read before anything is
// published, so one failed read aborts the whole cycle and is returned.
func (r *Relay) PollOnce(ctx context.Context) error {
	payloads := make([]domain.Payload, len(r.machines))
	for i, m := range r.machines {
		p, err := r.space.ReadPayload(ctx, m)
		if err != nil {
			return fmt.Errorf("read %s: %w", m.ID, err)
		}
		payloads[i] = p
	}

	if r.State() != Connected {
		r.obs.IncCounter(ports.MetricRelaySkipped, 1)
		r.obs.LogInfo("bus not connected, skipping publish")
		return nil
	}

	for i, m := range r.machines {
		p := payloads[i]
		if prev, ok := r.last[m.ID]; ok && prev == p {
			continue
		}
		body, err := p.Encode()
		if err != nil {
			return fmt.Errorf("encode %s payload: %w", m.ID, err)
		}
		if err := r.bus.Publish(ctx, m.Topic, body); err != nil {
			r.obs.IncCounter(ports.MetricRelayPublishFailed, 1)
			r.obs.LogWarn("publish failed", err, ports.Field{Key: "topic", Value: m.Topic})
			continue
		}
		r.last[m.ID] = p
		r.obs.IncCounter(ports.MetricRelayPublished, 1)
		r.obs.LogInfo("published", ports.Field{Key: "topic", Value: m.Topic}, ports.Field{Key: "payload", Value: string(body)})
	}
	return nil
}
