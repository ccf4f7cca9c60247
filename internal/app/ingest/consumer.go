// Package ingest persists sensor readings received from the bus.
//
// The bus callback only enqueues. A single worker drains the queue and handles
// one message at a time, so a slow store throttles the whole consumer.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/satyaprakashdhfm/industrial-iot-pipeline-simulator/internal/domain"
	"github.com/satyaprakashdhfm/industrial-iot-pipeline-simulator/internal/ports"
)

// ErrStoreUnavailable is returned once every store acquisition attempt for a
// message has failed. It stops the consumer.
var ErrStoreUnavailable = errors.New("store unavailable")

type Config struct {
	MaxAttempts int
	RetryDelay  time.Duration
	Queue       ports.QueuePolicy
}

type Option func(*Consumer)

// WithClock replaces the clock used for retry delays and latency.
func WithClock(clock clockwork.Clock) Option {
	return func(c *Consumer) { c.clock = clock }
}

type Consumer struct {
	sub   ports.Subscriber
	store ports.ReadingStore
	queue ports.MessageQueue
	obs   ports.Observability
	clock clockwork.Clock
	cfg   Config
}

func New(sub ports.Subscriber, store ports.ReadingStore, queue ports.MessageQueue, obs ports.Observability, cfg Config, opts ...Option) *Consumer {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 15
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 10 * time.Second
	}
	if cfg.Queue.IdleSleep <= 0 {
		cfg.Queue.IdleSleep = 5 * time.Millisecond
	}
	if cfg.Queue.OnQueueFull == "" {
		cfg.Queue.OnQueueFull = "block"
	}
	c := &Consumer{
		sub:   sub,
		store: store,
		queue: queue,
		obs:   obs,
		clock: clockwork.NewRealClock(),
		cfg:   cfg,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Run subscribes to every machine topic and processes deliveries until ctx is
// cancelled or the store stays unreachable past the retry budget.
func (c *Consumer) Run(ctx context.Context) error {
	// deliveries blocked on a full queue are released as soon as the worker stops
	deliverCtx, stopDeliveries := context.WithCancel(ctx)
	defer stopDeliveries()

	topics := domain.Topics()
	err := c.sub.Start(ctx, topics, func(m domain.Message) {
		c.enqueue(deliverCtx, m)
	})
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	c.obs.LogInfo("subscribed", ports.Field{Key: "topics", Value: topics})

	runErr := c.work(ctx)
	stopDeliveries()

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.sub.Stop(stopCtx); err != nil {
		runErr = errors.Join(runErr, fmt.Errorf("unsubscribe: %w", err))
	}
	return runErr
}

func (c *Consumer) work(ctx context.Context) error {
	for {
		batch := c.queue.DequeueBatch(1)
		c.obs.SetGauge(ports.MetricIngestQueueLength, float64(c.queue.Len()))
		if len(batch) == 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(c.cfg.Queue.IdleSleep):
			}
			continue
		}

		if err := c.Handle(ctx, batch[0]); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.obs.LogCritical("ingestion stopped", err)
			return err
		}
	}
}

// enqueue applies the full-queue policy. Under "block" the bus delivery
// goroutine waits, which pushes back on the broker.
func (c *Consumer) enqueue(ctx context.Context, m domain.Message) bool {
	for {
		if ok := c.queue.Enqueue(m); ok {
			return true
		}

		switch c.cfg.Queue.OnQueueFull {
		case "block":
			select {
			case <-ctx.Done():
				return false
			case <-time.After(c.cfg.Queue.IdleSleep):
			}
		case "drop":
			c.obs.RecordDrop("queue_full", &m, fmt.Errorf("queue length exceeded capacity %d", c.cfg.Queue.MaxQueueLen))
			return false
		default:
			c.obs.LogError("queue_policy_invalid", fmt.Errorf("policy=%s", c.cfg.Queue.OnQueueFull))
			return false
		}
	}
}

// Handle processes one delivery. Malformed messages are dropped and yield nil;
// only ErrStoreUnavailable, or the context error while retrying, is returned.
func (c *Consumer) Handle(ctx context.Context, m domain.Message) error {
	machine, err := domain.MachineForTopic(m.Topic)
	if err != nil {
		c.obs.RecordDrop("unknown_topic", &m, err)
		return nil
	}
	p, err := domain.DecodePayload(m.Body)
	if err != nil {
		c.obs.RecordDrop("bad_payload", &m, err)
		return nil
	}
	ts, err := domain.ParsePayloadTime(p.Timestamp)
	if err != nil {
		c.obs.RecordDrop("bad_timestamp", &m, err)
		return nil
	}

	reading := domain.Reading{
		MachineID:   machine.ID,
		Timestamp:   ts,
		Temperature: p.Temperature,
		Pressure:    p.Pressure,
	}

	sess, err := c.acquire(ctx)
	if err != nil {
		return err
	}
	defer sess.Close()

	start := c.clock.Now()
	if err := sess.Insert(ctx, reading); err != nil {
		c.obs.IncCounter(ports.MetricIngestInsertFailed, 1)
		c.obs.LogError("insert failed", err,
			ports.Field{Key: "machine_id", Value: reading.MachineID},
			ports.Field{Key: "ts", Value: domain.FormatStoreTime(reading.Timestamp)})
		return nil
	}
	c.obs.ObserveLatency(ports.MetricIngestInsertLatency, c.clock.Since(start).Seconds())
	c.obs.IncCounter(ports.MetricIngestInserted, 1)
	c.obs.LogInfo("inserted",
		ports.Field{Key: "machine_id", Value: reading.MachineID},
		ports.Field{Key: "ts", Value: domain.FormatStoreTime(reading.Timestamp)})
	return nil
}

// acquire makes up to MaxAttempts attempts with RetryDelay between them.
func (c *Consumer) acquire(ctx context.Context) (ports.ReadingSession, error) {
	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		sess, err := c.store.Acquire(ctx)
		if err == nil {
			return sess, nil
		}
		lastErr = err
		c.obs.LogWarn("store connection failed", err,
			ports.Field{Key: "attempt", Value: attempt},
			ports.Field{Key: "max_attempts", Value: c.cfg.MaxAttempts})

		if attempt == c.cfg.MaxAttempts {
			break
		}
		c.obs.IncCounter(ports.MetricIngestRetries, 1)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-c.clock.After(c.cfg.RetryDelay):
		}
	}
	return nil, fmt.Errorf("%w after %d attempts: %v", ErrStoreUnavailable, c.cfg.MaxAttempts, lastErr)
}
