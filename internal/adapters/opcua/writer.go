package opcua

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gopcua/opcua"
	"github.com/gopcua/opcua/ua"

	"github.com/satyaprakashdhfm/industrial-iot-pipeline-simulator/internal/domain"
	"github.com/satyaprakashdhfm/industrial-iot-pipeline-simulator/internal/ports"
)

// Writer is an OPC UA client that writes simulated readings into a machine's variables.
type Writer struct {
	cfg Config

	mu     sync.Mutex
	client *opcua.Client
	nsIdx  uint16
}

func NewWriter(cfg Config) (*Writer, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Writer{cfg: cfg}, nil
}

// Connect opens a session and resolves the namespace index by name.
func (w *Writer) Connect(ctx context.Context) error {
	w.mu.Lock()
	if w.client != nil {
		w.mu.Unlock()
		return fmt.Errorf("opcua writer already connected")
	}
	w.mu.Unlock()

	client, err := opcua.NewClient(w.cfg.Endpoint, w.buildClientOptions()...)
	if err != nil {
		return fmt.Errorf("opcua new client: %w", err)
	}
	if err := client.Connect(ctx); err != nil {
		return fmt.Errorf("opcua connect: %w", err)
	}

	idx, err := client.FindNamespace(ctx, w.cfg.Namespace)
	if err != nil {
		_ = client.Close(ctx)
		return fmt.Errorf("opcua namespace %q: %w", w.cfg.Namespace, err)
	}

	w.mu.Lock()
	w.client = client
	w.nsIdx = idx
	w.mu.Unlock()
	return nil
}

func (w *Writer) WritePayload(ctx context.Context, m domain.Machine, p domain.Payload) error {
	w.mu.Lock()
	client := w.client
	ns := w.nsIdx
	w.mu.Unlock()
	if client == nil {
		return fmt.Errorf("opcua writer not connected")
	}

	req := &ua.WriteRequest{
		NodesToWrite: []*ua.WriteValue{
			writeValue(ns, m.TemperatureVar(), p.Temperature),
			writeValue(ns, m.PressureVar(), p.Pressure),
			writeValue(ns, m.TimestampVar(), p.Timestamp),
		},
	}
	resp, err := client.Write(ctx, req)
	if err != nil {
		return fmt.Errorf("opcua write %s: %w", m.ID, err)
	}
	for i, code := range resp.Results {
		if code != ua.StatusOK {
			return fmt.Errorf("opcua write %s: node %d: %s", m.ID, i, code)
		}
	}
	return nil
}

func (w *Writer) Close(ctx context.Context) error {
	w.mu.Lock()
	client := w.client
	w.client = nil
	w.mu.Unlock()

	if client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Close(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (w *Writer) buildClientOptions() []opcua.Option {
	opts := []opcua.Option{
		opcua.SecurityModeString(normalizeSecurityMode(w.cfg.SecurityMode)),
		opcua.SecurityPolicy(normalizeSecurityPolicy(w.cfg.SecurityPolicy)),
		opcua.ApplicationName(w.cfg.ApplicationName),
		opcua.AutoReconnect(true),
	}

	if w.cfg.Username != "" {
		opts = append(opts, opcua.AuthUsername(w.cfg.Username, w.cfg.Password))
	} else {
		opts = append(opts, opcua.AuthAnonymous())
	}
	return opts
}

func writeValue(ns uint16, name string, v any) *ua.WriteValue {
	return &ua.WriteValue{
		NodeID:      ua.NewStringNodeID(ns, name),
		AttributeID: ua.AttributeIDValue,
		Value: &ua.DataValue{
			EncodingMask: ua.DataValueValue,
			Value:        ua.MustVariant(v),
		},
	}
}

var _ ports.VariableWriter = (*Writer)(nil)
