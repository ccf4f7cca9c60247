package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/satyaprakashdhfm/industrial-iot-pipeline-simulator/internal/adapters/observability"
	"github.com/satyaprakashdhfm/industrial-iot-pipeline-simulator/internal/app/config"
)

const defaultConfigPath = "./config.yaml"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	var err error

	switch cmd {
	case "relay":
		err = serviceCommand(cmd, os.Args[2:], runRelay)
	case "ingest":
		err = serviceCommand(cmd, os.Args[2:], runIngest)
	case "broadcast":
		err = serviceCommand(cmd, os.Args[2:], runBroadcast)
	case "simulate":
		err = simulateCommand(os.Args[2:])
	case "validate":
		err = validateCommand(os.Args[2:])
	case "stats":
		err = statsCommand(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		printUsage()
		err = fmt.Errorf("unknown command %q", cmd)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "bridge %s: %v\n", cmd, err)
		os.Exit(1)
	}
}

type serviceFunc func(ctx context.Context, cfg *config.Config, log zerolog.Logger) error

func serviceCommand(name string, args []string, run serviceFunc) error {
	fs := pflag.NewFlagSet(name, pflag.ExitOnError)
	cfgPath := fs.StringP("config", "c", defaultConfigPath, "Path to bridge configuration file")
	logLevel := fs.String("log-level", "", "Override log.level from the config file")
	metricsAddr := fs.String("metrics-addr", "", "Override this command's metrics listen address")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if *metricsAddr != "" {
		setMetricsAddr(cfg, name, *metricsAddr)
	}
	log := observability.NewLogger(os.Stderr, cfg.Log.Level, cfg.Log.Format, name)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return run(ctx, cfg, log)
}

func setMetricsAddr(cfg *config.Config, command, addr string) {
	switch command {
	case "relay":
		cfg.Metrics.RelayAddr = addr
	case "ingest":
		cfg.Metrics.IngestAddr = addr
	case "broadcast":
		cfg.Metrics.BroadcastAddr = addr
	}
}

func validateCommand(args []string) error {
	fs := pflag.NewFlagSet("validate", pflag.ExitOnError)
	cfgPath := fs.StringP("config", "c", defaultConfigPath, "Path to configuration file to validate")
	needStore := fs.Bool("store", false, "Also require a complete store section")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return err
	}
	if *needStore {
		if err := cfg.RequireStore(); err != nil {
			return err
		}
	}
	fmt.Printf("config %s looks good\n", *cfgPath)
	return nil
}

func printUsage() {
	fmt.Printf(`Industrial IoT bridge

Usage:
  bridge <command> [flags]

Commands:
  relay      Host the OPC UA address space and relay changed readings to MQTT
  ingest     Subscribe to machine topics and persist readings to Postgres
  broadcast  Stream the latest readings to websocket clients
  simulate   Write random readings for one machine into the address space
  validate   Load and validate a config file without starting anything
  stats      Poll a metrics endpoint and print live counters

Examples:
  bridge relay --config ./config.yaml
  bridge simulate --config ./config.yaml --machine Machine1 --endpoint opc.tcp://gateway:4840
  bridge simulate --config ./config.yaml --machine Machine2 --metrics-addr :9104
  bridge validate --config ./config.yaml --store
  bridge stats --url http://localhost:9100/metrics --interval 1s
`)
}
