package ports

import "time"

// QueuePolicy bounds the ingestion queue between the bus callback and the worker.
type QueuePolicy struct {
	MaxQueueLen int           `yaml:"queue_len"`
	IdleSleep   time.Duration `yaml:"idle_sleep"`

	OnQueueFull string `yaml:"on_queue_full"` // "block", "drop"
}
