package opcua

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gopcua/opcua/id"
	"github.com/gopcua/opcua/server"
	"github.com/gopcua/opcua/server/attrs"
	"github.com/gopcua/opcua/ua"

	"github.com/satyaprakashdhfm/industrial-iot-pipeline-simulator/internal/domain"
	"github.com/satyaprakashdhfm/industrial-iot-pipeline-simulator/internal/ports"
)

type machineNodes struct {
	temperature *server.Node
	pressure    *server.Node
	timestamp   *server.Node
}

// AddressSpace hosts the sensor namespace on an embedded OPC UA server: one
// folder per machine with writable Temperature, Pressure and Timestamp variables.
type AddressSpace struct {
	cfg      Config
	machines []domain.Machine

	mu      sync.Mutex
	srv     *server.Server
	nodes   map[string]machineNodes
	started bool
}

func NewAddressSpace(cfg Config, machines []domain.Machine) (*AddressSpace, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(machines) == 0 {
		return nil, errors.New("at least one machine is required")
	}
	return &AddressSpace{cfg: cfg, machines: machines}, nil
}

// Start registers the namespace, builds the machine folders and opens the endpoint.
func (a *AddressSpace) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started {
		return fmt.Errorf("address space already started")
	}

	host, port, err := splitEndpoint(a.cfg.Endpoint)
	if err != nil {
		return err
	}
	srv := server.New(
		server.EndPoint(host, port),
		server.EnableSecurity("None", ua.MessageSecurityModeNone),
		server.EnableAuthMode(ua.UserTokenTypeAnonymous),
	)

	rootNS, err := srv.Namespace(0)
	if err != nil {
		return fmt.Errorf("opcua root namespace: %w", err)
	}
	ns := server.NewNodeNameSpace(srv, a.cfg.Namespace)
	nsObjects := ns.Objects()
	rootNS.Objects().AddRef(nsObjects, id.HasComponent, true)

	nodes := make(map[string]machineNodes, len(a.machines))
	for _, m := range a.machines {
		folder := newFolder(ns.ID(), m.ID)
		ns.AddNode(folder)
		nsObjects.AddRef(folder, id.Organizes, true)

		mn := machineNodes{
			temperature: ns.AddNewVariableStringNode(m.TemperatureVar(), float64(0)),
			pressure:    ns.AddNewVariableStringNode(m.PressureVar(), float64(0)),
			timestamp:   ns.AddNewVariableStringNode(m.TimestampVar(), ""),
		}
		for _, n := range []*server.Node{mn.temperature, mn.pressure, mn.timestamp} {
			folder.AddRef(n, id.HasComponent, true)
		}
		nodes[m.ID] = mn
	}

	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("opcua server start: %w", err)
	}

	a.srv = srv
	a.nodes = nodes
	a.started = true
	return nil
}

func (a *AddressSpace) Stop() error {
	a.mu.Lock()
	srv := a.srv
	a.srv = nil
	a.started = false
	a.mu.Unlock()

	if srv == nil {
		return nil
	}
	return srv.Close()
}

func (a *AddressSpace) ReadPayload(_ context.Context, m domain.Machine) (domain.Payload, error) {
	a.mu.Lock()
	mn, ok := a.nodes[m.ID]
	started := a.started
	a.mu.Unlock()
	if !started {
		return domain.Payload{}, fmt.Errorf("address space not started")
	}
	if !ok {
		return domain.Payload{}, fmt.Errorf("machine %s not registered", m.ID)
	}

	temp, err := readFloat(mn.temperature, m.TemperatureVar())
	if err != nil {
		return domain.Payload{}, err
	}
	press, err := readFloat(mn.pressure, m.PressureVar())
	if err != nil {
		return domain.Payload{}, err
	}
	ts, err := readString(mn.timestamp, m.TimestampVar())
	if err != nil {
		return domain.Payload{}, err
	}
	return domain.Payload{Timestamp: ts, Temperature: temp, Pressure: press}, nil
}

// newFolder builds the object node grouping one machine's variables. The
// node class attribute must be a plain uint32.
func newFolder(ns uint16, name string) *server.Node {
	return server.NewNode(
		ua.NewStringNodeID(ns, name),
		map[ua.AttributeID]*ua.DataValue{
			ua.AttributeIDNodeClass:   server.DataValueFromValue(uint32(ua.NodeClassObject)),
			ua.AttributeIDBrowseName:  server.DataValueFromValue(attrs.BrowseName(name)),
			ua.AttributeIDDisplayName: server.DataValueFromValue(attrs.DisplayName(name, name)),
		},
		nil,
		nil,
	)
}

func readFloat(n *server.Node, name string) (float64, error) {
	dv := n.Value()
	if dv == nil || dv.Value == nil {
		return 0, fmt.Errorf("read %s: no value", name)
	}
	v, ok := variantToFloat(dv.Value)
	if !ok {
		return 0, fmt.Errorf("read %s: unsupported type %T", name, dv.Value.Value())
	}
	return v, nil
}

func readString(n *server.Node, name string) (string, error) {
	dv := n.Value()
	if dv == nil || dv.Value == nil {
		return "", fmt.Errorf("read %s: no value", name)
	}
	s, ok := dv.Value.Value().(string)
	if !ok {
		return "", fmt.Errorf("read %s: unsupported type %T", name, dv.Value.Value())
	}
	return s, nil
}

func variantToFloat(v *ua.Variant) (float64, bool) {
	if v == nil {
		return 0, false
	}

	switch val := v.Value().(type) {
	case float32:
		return float64(val), true
	case float64:
		return val, true
	case int8:
		return float64(val), true
	case uint8:
		return float64(val), true
	case int16:
		return float64(val), true
	case uint16:
		return float64(val), true
	case int32:
		return float64(val), true
	case uint32:
		return float64(val), true
	case int64:
		return float64(val), true
	case uint64:
		return float64(val), true
	default:
		return 0, false
	}
}

var _ ports.AddressSpace = (*AddressSpace)(nil)
