package ports

import "github.com/satyaprakashdhfm/industrial-iot-pipeline-simulator/internal/domain"

type MessageQueue interface {
	Enqueue(m domain.Message) bool
	DequeueBatch(max int) []domain.Message
	Len() int
}
