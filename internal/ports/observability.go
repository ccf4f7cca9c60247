package ports

import "github.com/satyaprakashdhfm/industrial-iot-pipeline-simulator/internal/domain"

type Observability interface {
	LogInfo(msg string, fields ...Field)
	LogWarn(msg string, err error, fields ...Field)
	LogError(msg string, err error, fields ...Field)
	LogCritical(msg string, err error, fields ...Field)

	IncCounter(name string, v float64)
	ObserveLatency(name string, seconds float64)

	SetGauge(name string, v float64)

	RecordDrop(reason string, msg *domain.Message, err error)
}

type Field struct {
	Key   string
	Value any
}
