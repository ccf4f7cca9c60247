package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/satyaprakashdhfm/industrial-iot-pipeline-simulator/internal/domain"
	"github.com/satyaprakashdhfm/industrial-iot-pipeline-simulator/internal/ports"
)

// PromObs logs through zerolog and records metrics in a Prometheus registry.
type PromObs struct {
	log      zerolog.Logger
	counters map[string]prometheus.Counter
	gauges   map[string]prometheus.Gauge
	histos   map[string]prometheus.Observer
}

func NewPromObs(reg prometheus.Registerer, logger zerolog.Logger) *PromObs {
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{Name: name, Help: help})
	}
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{Name: name, Help: help})
	}

	counters := map[string]prometheus.Counter{
		ports.MetricRelayPublished:     counter(ports.MetricRelayPublished, "Payloads published to the bus."),
		ports.MetricRelayPublishFailed: counter(ports.MetricRelayPublishFailed, "Publish attempts that failed and will be retried next poll."),
		ports.MetricRelaySkipped:       counter(ports.MetricRelaySkipped, "Poll cycles skipped because the bus was disconnected."),
		ports.MetricIngestInserted:     counter(ports.MetricIngestInserted, "Readings committed to the store."),
		ports.MetricIngestInsertFailed: counter(ports.MetricIngestInsertFailed, "Readings whose insert failed after a connection was acquired."),
		ports.MetricIngestDropped:      counter(ports.MetricIngestDropped, "Bus messages dropped as malformed or by queue policy."),
		ports.MetricIngestRetries:      counter(ports.MetricIngestRetries, "Failed store connection attempts."),
		ports.MetricBroadcastFrames:    counter(ports.MetricBroadcastFrames, "Frames pushed to realtime clients."),
		ports.MetricBroadcastRows:      counter(ports.MetricBroadcastRows, "Rows pushed to realtime clients."),
		ports.MetricSimulatorWrites:    counter(ports.MetricSimulatorWrites, "Simulated readings written to the address space."),
	}
	gauges := map[string]prometheus.Gauge{
		ports.MetricRelayBusConnected: gauge(ports.MetricRelayBusConnected, "1 while the relay holds a bus connection."),
		ports.MetricIngestQueueLength: gauge(ports.MetricIngestQueueLength, "Messages waiting for the ingestion worker."),
		ports.MetricBroadcastClients:  gauge(ports.MetricBroadcastClients, "Connected realtime clients."),
		ports.MetricStoreOpenConns:    gauge(ports.MetricStoreOpenConns, "Open connections in the store pool."),
	}
	latency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    ports.MetricIngestInsertLatency,
		Help:    "Time from store connection acquisition to commit.",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	})

	collectors := []prometheus.Collector{latency}
	for _, c := range counters {
		collectors = append(collectors, c)
	}
	for _, g := range gauges {
		collectors = append(collectors, g)
	}
	reg.MustRegister(collectors...)

	return &PromObs{
		log:      logger,
		counters: counters,
		gauges:   gauges,
		histos: map[string]prometheus.Observer{
			ports.MetricIngestInsertLatency: latency,
		},
	}
}

func (p *PromObs) LogInfo(msg string, fields ...ports.Field) {
	withFields(p.log.Info(), fields).Msg(msg)
}

func (p *PromObs) LogWarn(msg string, err error, fields ...ports.Field) {
	withFields(p.log.Warn().Err(err), fields).Msg(msg)
}

func (p *PromObs) LogError(msg string, err error, fields ...ports.Field) {
	withFields(p.log.Error().Err(err), fields).Msg(msg)
}

// LogCritical logs at error level with a critical marker; the caller decides whether to stop.
func (p *PromObs) LogCritical(msg string, err error, fields ...ports.Field) {
	withFields(p.log.Error().Err(err).Bool("critical", true), fields).Msg(msg)
}

func (p *PromObs) IncCounter(name string, v float64) {
	if c, ok := p.counters[name]; ok {
		c.Add(v)
	}
}

func (p *PromObs) ObserveLatency(name string, seconds float64) {
	if h, ok := p.histos[name]; ok {
		h.Observe(seconds)
	}
}

func (p *PromObs) SetGauge(name string, v float64) {
	if g, ok := p.gauges[name]; ok {
		g.Set(v)
	}
}

func (p *PromObs) RecordDrop(reason string, msg *domain.Message, err error) {
	p.IncCounter(ports.MetricIngestDropped, 1)
	ev := p.log.Warn().Err(err).Str("reason", reason)
	if msg != nil {
		ev = ev.Str("topic", msg.Topic).Bytes("payload", msg.Body)
	}
	ev.Msg("message dropped")
}

func withFields(ev *zerolog.Event, fields []ports.Field) *zerolog.Event {
	for _, f := range fields {
		ev = ev.Interface(f.Key, f.Value)
	}
	return ev
}

var _ ports.Observability = (*PromObs)(nil)
