package ports

import (
	"context"

	"github.com/satyaprakashdhfm/industrial-iot-pipeline-simulator/internal/domain"
)

// AddressSpace hosts the per-machine variables written by simulators.
type AddressSpace interface {
	Start(ctx context.Context) error
	Stop() error
	// ReadPayload reads the machine's three variables as one payload.
	ReadPayload(ctx context.Context, m domain.Machine) (domain.Payload, error)
}

// VariableWriter pushes simulated values into a remote address space.
type VariableWriter interface {
	Connect(ctx context.Context) error
	WritePayload(ctx context.Context, m domain.Machine, p domain.Payload) error
	Close(ctx context.Context) error
}
