package ports

import (
	"context"

	"github.com/satyaprakashdhfm/industrial-iot-pipeline-simulator/internal/domain"
)

// Publisher is the relay side of the bus. Connect reports a later loss of the
// established connection through onLost, at most once per connection.
type Publisher interface {
	Connect(ctx context.Context, onLost func(error)) error
	Publish(ctx context.Context, topic string, payload []byte) error
	Close(ctx context.Context) error
}

// Subscriber delivers bus messages for the given topics to handle, serially.
type Subscriber interface {
	Start(ctx context.Context, topics []string, handle func(domain.Message)) error
	Stop(ctx context.Context) error
}
