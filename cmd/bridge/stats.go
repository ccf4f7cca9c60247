package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/pflag"

	"github.com/satyaprakashdhfm/industrial-iot-pipeline-simulator/internal/ports"
)

// statsTargets are the series printed by the stats command, in order.
var statsTargets = []struct {
	label  string
	metric string
}{
	{"published", ports.MetricRelayPublished},
	{"skipped", ports.MetricRelaySkipped},
	{"bus_up", ports.MetricRelayBusConnected},
	{"inserted", ports.MetricIngestInserted},
	{"dropped", ports.MetricIngestDropped},
	{"retries", ports.MetricIngestRetries},
	{"queue", ports.MetricIngestQueueLength},
	{"clients", ports.MetricBroadcastClients},
	{"frames", ports.MetricBroadcastFrames},
}

func statsCommand(args []string) error {
	fs := pflag.NewFlagSet("stats", pflag.ExitOnError)
	url := fs.String("url", "http://localhost:9100/metrics", "Prometheus metrics endpoint")
	interval := fs.Duration("interval", 2*time.Second, "Refresh interval")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	client := &http.Client{Timeout: 5 * time.Second}
	fmt.Printf("Streaming metrics from %s (Ctrl+C to stop)\n", *url)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := printMetricsSnapshot(ctx, client, *url, os.Stdout); err != nil {
				fmt.Fprintf(os.Stderr, "stats error: %v\n", err)
			}
		}
	}
}

func printMetricsSnapshot(ctx context.Context, client *http.Client, url string, out io.Writer) error {
	values, err := scrape(ctx, client, url)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "[%s]", time.Now().Format(time.RFC3339))
	for _, t := range statsTargets {
		if v, ok := values[t.metric]; ok {
			fmt.Fprintf(out, " %s=%g", t.label, v)
		}
	}
	fmt.Fprintln(out)
	return nil
}

// scrape returns the unlabelled value of every counter and gauge at url.
// Histograms and summaries are skipped.
func scrape(ctx context.Context, client *http.Client, url string) (map[string]float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}

	var parser expfmt.TextParser
	families, err := parser.TextToMetricFamilies(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse metrics: %w", err)
	}

	values := make(map[string]float64, len(families))
	for name, fam := range families {
		if len(fam.GetMetric()) == 0 {
			continue
		}
		m := fam.GetMetric()[0]
		switch fam.GetType() {
		case dto.MetricType_COUNTER:
			values[name] = m.GetCounter().GetValue()
		case dto.MetricType_GAUGE:
			values[name] = m.GetGauge().GetValue()
		case dto.MetricType_UNTYPED:
			values[name] = m.GetUntyped().GetValue()
		}
	}
	return values, nil
}
