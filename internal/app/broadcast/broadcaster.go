// Package broadcast streams the most recent readings to push-channel clients.
// Each client gets the full snapshot once, then only rows that changed.
package broadcast

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/satyaprakashdhfm/industrial-iot-pipeline-simulator/internal/domain"
	"github.com/satyaprakashdhfm/industrial-iot-pipeline-simulator/internal/ports"
)

type State int32

const (
	Accepted State = iota
	Streaming
	Closed
)

func (s State) String() string {
	switch s {
	case Accepted:
		return "accepted"
	case Streaming:
		return "streaming"
	default:
		return "closed"
	}
}

// FrameWriter pushes one frame of rows to a single client.
type FrameWriter interface {
	WriteFrame(rows []domain.Reading) error
}

// Session is one client's stream.
type Session struct {
	ID    string
	state atomic.Int32
}

func NewSession() *Session {
	return &Session{ID: uuid.NewString()}
}

func (s *Session) State() State { return State(s.state.Load()) }

func (s *Session) setState(st State) { s.state.Store(int32(st)) }

type Config struct {
	PollInterval time.Duration
	SnapshotSize int
}

type Option func(*Broadcaster)

func WithClock(clock clockwork.Clock) Option {
	return func(b *Broadcaster) { b.clock = clock }
}

// Broadcaster holds no per-client state; every Stream call owns its snapshot.
type Broadcaster struct {
	source  ports.SnapshotSource
	obs     ports.Observability
	clock   clockwork.Clock
	cfg     Config
	clients atomic.Int64
}

func New(source ports.SnapshotSource, obs ports.Observability, cfg Config, opts ...Option) *Broadcaster {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 100 * time.Millisecond
	}
	if cfg.SnapshotSize <= 0 {
		cfg.SnapshotSize = 10
	}
	b := &Broadcaster{
		source: source,
		obs:    obs,
		clock:  clockwork.NewRealClock(),
		cfg:    cfg,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

// Clients reports how many sessions are streaming.
func (b *Broadcaster) Clients() int64 { return b.clients.Load() }

// Stream runs sess until ctx is cancelled, the store query fails or w fails.
// The session is Closed when Stream returns; a nil error means ctx ended it.
func (b *Broadcaster) Stream(ctx context.Context, sess *Session, w FrameWriter) error {
	sess.setState(Streaming)
	b.obs.SetGauge(ports.MetricBroadcastClients, float64(b.clients.Add(1)))
	b.obs.LogInfo("client streaming", ports.Field{Key: "session", Value: sess.ID})
	defer func() {
		sess.setState(Closed)
		b.obs.SetGauge(ports.MetricBroadcastClients, float64(b.clients.Add(-1)))
		b.obs.LogInfo("client closed", ports.Field{Key: "session", Value: sess.ID})
	}()

	ticker := b.clock.NewTicker(b.cfg.PollInterval)
	defer ticker.Stop()

	var (
		last  []domain.Reading
		first = true
	)
	for {
		snapshot, err := b.source.Latest(ctx, b.cfg.SnapshotSize)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			b.obs.LogError("snapshot query failed", err, ports.Field{Key: "session", Value: sess.ID})
			return fmt.Errorf("query snapshot: %w", err)
		}

		frame := snapshot
		if !first {
			frame = Delta(last, snapshot)
		}
		// the first frame goes out even when the store is empty
		if first || len(frame) > 0 {
			if frame == nil {
				frame = []domain.Reading{}
			}
			if err := w.WriteFrame(frame); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				b.obs.LogWarn("frame write failed", err, ports.Field{Key: "session", Value: sess.ID})
				return fmt.Errorf("write frame: %w", err)
			}
			b.obs.IncCounter(ports.MetricBroadcastFrames, 1)
			b.obs.IncCounter(ports.MetricBroadcastRows, float64(len(frame)))
			last = snapshot
			first = false
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.Chan():
		}
	}
}
