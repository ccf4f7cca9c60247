package ports

import (
	"context"

	"github.com/satyaprakashdhfm/industrial-iot-pipeline-simulator/internal/domain"
)

// ReadingStore hands out store sessions; Acquire fails while the store is unreachable.
type ReadingStore interface {
	Acquire(ctx context.Context) (ReadingSession, error)
}

type ReadingSession interface {
	// Insert writes and commits one reading.
	Insert(ctx context.Context, r domain.Reading) error
	Close() error
}

// SnapshotSource returns the n most recent readings, newest first.
type SnapshotSource interface {
	Latest(ctx context.Context, n int) ([]domain.Reading, error)
}
