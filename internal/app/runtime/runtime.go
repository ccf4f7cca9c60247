// Package runtime hosts one bridge service next to its metrics endpoint and
// tears both down together.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/satyaprakashdhfm/industrial-iot-pipeline-simulator/internal/ports"
)

// Service is a long-running bridge component.
type Service interface {
	Run(ctx context.Context) error
}

// ServiceFunc adapts a function to Service.
type ServiceFunc func(ctx context.Context) error

func (f ServiceFunc) Run(ctx context.Context) error { return f(ctx) }

// GaugeFunc samples one gauge value.
type GaugeFunc func() float64

type Option func(*Runtime)

// WithCloser registers a resource released after the service returns.
// Closers run in reverse registration order.
func WithCloser(name string, fn func() error) Option {
	return func(r *Runtime) {
		r.closers = append(r.closers, namedCloser{name: name, fn: fn})
	}
}

// WithGauge samples fn into the named gauge every interval while running.
func WithGauge(name string, fn GaugeFunc) Option {
	return func(r *Runtime) { r.gauges[name] = fn }
}

// WithGaugeInterval overrides the one-second sampling interval.
func WithGaugeInterval(d time.Duration) Option {
	return func(r *Runtime) {
		if d > 0 {
			r.gaugeInterval = d
		}
	}
}

type namedCloser struct {
	name string
	fn   func() error
}

type Runtime struct {
	name          string
	addr          string
	gatherer      prometheus.Gatherer
	obs           ports.Observability
	closers       []namedCloser
	gauges        map[string]GaugeFunc
	gaugeInterval time.Duration
}

func New(name, metricsAddr string, gatherer prometheus.Gatherer, obs ports.Observability, opts ...Option) *Runtime {
	r := &Runtime{
		name:          name,
		addr:          metricsAddr,
		gatherer:      gatherer,
		obs:           obs,
		gauges:        make(map[string]GaugeFunc),
		gaugeInterval: time.Second,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Handler serves /metrics from the runtime's registry and /healthz.
func (r *Runtime) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

// Run serves metrics and runs svc until ctx is cancelled or svc returns.
// The service's error is returned joined with any shutdown error.
func (r *Runtime) Run(ctx context.Context, svc Service) error {
	ln, err := net.Listen("tcp", r.addr)
	if err != nil {
		r.closeAll()
		return fmt.Errorf("metrics listener: %w", err)
	}
	metricsSrv := &http.Server{
		Handler:           r.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	r.obs.LogInfo("service starting",
		ports.Field{Key: "service", Value: r.name},
		ports.Field{Key: "metrics_addr", Value: ln.Addr().String()})

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		if err := metricsSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		r.recordGauges(gctx)
		return nil
	})
	g.Go(func() error {
		defer func() {
			cancel()
			shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
			defer stop()
			_ = metricsSrv.Shutdown(shutdownCtx)
		}()
		return svc.Run(gctx)
	})

	runErr := g.Wait()
	closeErr := r.closeAll()
	r.obs.LogInfo("service stopped", ports.Field{Key: "service", Value: r.name})
	return errors.Join(runErr, closeErr)
}

func (r *Runtime) closeAll() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		c := r.closers[i]
		if err := c.fn(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", c.name, err))
		}
	}
	r.closers = nil
	return errors.Join(errs...)
}

func (r *Runtime) recordGauges(ctx context.Context) {
	if len(r.gauges) == 0 {
		return
	}
	ticker := time.NewTicker(r.gaugeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for name, fn := range r.gauges {
				r.obs.SetGauge(name, fn())
			}
		}
	}
}
