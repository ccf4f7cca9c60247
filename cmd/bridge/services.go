package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/satyaprakashdhfm/industrial-iot-pipeline-simulator/internal/adapters/mqtt"
	"github.com/satyaprakashdhfm/industrial-iot-pipeline-simulator/internal/adapters/observability"
	"github.com/satyaprakashdhfm/industrial-iot-pipeline-simulator/internal/adapters/opcua"
	"github.com/satyaprakashdhfm/industrial-iot-pipeline-simulator/internal/adapters/queue"
	"github.com/satyaprakashdhfm/industrial-iot-pipeline-simulator/internal/adapters/store"
	"github.com/satyaprakashdhfm/industrial-iot-pipeline-simulator/internal/app/broadcast"
	"github.com/satyaprakashdhfm/industrial-iot-pipeline-simulator/internal/app/config"
	"github.com/satyaprakashdhfm/industrial-iot-pipeline-simulator/internal/app/ingest"
	"github.com/satyaprakashdhfm/industrial-iot-pipeline-simulator/internal/app/relay"
	"github.com/satyaprakashdhfm/industrial-iot-pipeline-simulator/internal/app/runtime"
	"github.com/satyaprakashdhfm/industrial-iot-pipeline-simulator/internal/app/simulator"
	"github.com/satyaprakashdhfm/industrial-iot-pipeline-simulator/internal/domain"
	"github.com/satyaprakashdhfm/industrial-iot-pipeline-simulator/internal/ports"
)

func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func runRelay(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	reg := newRegistry()
	obs := observability.NewPromObs(reg, log)

	space, err := opcua.NewAddressSpace(cfg.OPCUA, domain.Machines)
	if err != nil {
		return err
	}
	pub, err := mqtt.NewPublisher(cfg.MQTT)
	if err != nil {
		return err
	}

	r := relay.New(space, pub, obs, relay.Config{
		PollInterval:      cfg.Relay.PollInterval,
		ReconnectInterval: cfg.Relay.ReconnectInterval,
	})
	return runtime.New("relay", cfg.Metrics.Addr("relay"), reg, obs).Run(ctx, r)
}

// openStore opens the pool and, when auto_migrate is set, creates the table.
func openStore(ctx context.Context, cfg *config.Config, obs ports.Observability) (*store.Postgres, func() error, error) {
	if err := cfg.RequireStore(); err != nil {
		return nil, nil, err
	}
	db, err := store.Open(cfg.Store)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	pg := store.NewPostgres(db, cfg.Store.Table)
	if cfg.Store.AutoMigrate {
		if err := pg.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("migrate store: %w", err)
		}
		obs.LogInfo("store schema ready", ports.Field{Key: "table", Value: cfg.Store.Table})
	}
	obs.LogInfo("store opened",
		ports.Field{Key: "driver", Value: pg.Name()},
		ports.Field{Key: "max_open_conns", Value: cfg.Store.MaxOpenConns},
	)
	return pg, db.Close, nil
}

func runIngest(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	reg := newRegistry()
	obs := observability.NewPromObs(reg, log)

	pg, closeDB, err := openStore(ctx, cfg, obs)
	if err != nil {
		return err
	}
	sub, err := mqtt.NewSubscriber(cfg.MQTT, log)
	if err != nil {
		_ = closeDB()
		return err
	}

	q := queue.NewMemQueue(cfg.Ingest.Queue.MaxQueueLen)
	c := ingest.New(sub, pg, q, obs, ingest.Config{
		MaxAttempts: cfg.Ingest.MaxAttempts,
		RetryDelay:  cfg.Ingest.RetryDelay,
		Queue:       cfg.Ingest.Queue,
	})

	rt := runtime.New("ingest", cfg.Metrics.Addr("ingest"), reg, obs,
		runtime.WithCloser("store", closeDB),
		runtime.WithGauge(ports.MetricStoreOpenConns, pg.OpenConnections),
	)
	return rt.Run(ctx, c)
}

func runBroadcast(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	reg := newRegistry()
	obs := observability.NewPromObs(reg, log)

	pg, closeDB, err := openStore(ctx, cfg, obs)
	if err != nil {
		return err
	}

	b := broadcast.New(pg, obs, broadcast.Config{
		PollInterval: cfg.Broadcast.PollInterval,
		SnapshotSize: cfg.Broadcast.SnapshotSize,
	})
	srv := broadcast.NewServer(b, obs, cfg.Broadcast.Path)

	rt := runtime.New("broadcast", cfg.Metrics.Addr("broadcast"), reg, obs,
		runtime.WithCloser("store", closeDB),
		runtime.WithGauge(ports.MetricStoreOpenConns, pg.OpenConnections),
	)
	return rt.Run(ctx, runtime.ServiceFunc(func(ctx context.Context) error {
		return srv.ListenAndServe(ctx, cfg.Broadcast.Addr)
	}))
}

func simulateCommand(args []string) error {
	fs := pflag.NewFlagSet("simulate", pflag.ExitOnError)
	cfgPath := fs.StringP("config", "c", defaultConfigPath, "Path to bridge configuration file")
	machineID := fs.StringP("machine", "m", "", "Machine to simulate (overrides simulator.machine_id)")
	endpoint := fs.String("endpoint", "", "OPC UA endpoint to write to (overrides opcua.endpoint)")
	interval := fs.Duration("interval", 0, "Sample interval (overrides simulator.sample_interval)")
	metricsAddr := fs.String("metrics-addr", "", "Metrics listen address (overrides metrics.simulate_addr)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if *machineID != "" {
		cfg.Simulator.MachineID = *machineID
	}
	if *endpoint != "" {
		cfg.OPCUA.Endpoint = *endpoint
	}
	if *interval > 0 {
		cfg.Simulator.SampleInterval = *interval
	}
	if *metricsAddr != "" {
		cfg.Metrics.SimulateAddr = *metricsAddr
	}
	machine, err := domain.MachineByID(cfg.Simulator.MachineID)
	if err != nil {
		return err
	}

	log := observability.NewLogger(os.Stderr, cfg.Log.Level, cfg.Log.Format, "simulate").
		With().Str("machine", machine.ID).Logger()
	reg := newRegistry()
	obs := observability.NewPromObs(reg, log)

	w, err := opcua.NewWriter(cfg.OPCUA)
	if err != nil {
		return err
	}
	sim := simulator.New(w, obs, simulator.Config{
		Machine:        machine,
		SampleInterval: cfg.Simulator.SampleInterval,
		ConnectRetry:   cfg.Simulator.ConnectRetry,
		TempMin:        cfg.Simulator.TempMin,
		TempMax:        cfg.Simulator.TempMax,
		PressMin:       cfg.Simulator.PressMin,
		PressMax:       cfg.Simulator.PressMax,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return runtime.New("simulate", cfg.Metrics.Addr("simulate"), reg, obs).Run(ctx, sim)
}
