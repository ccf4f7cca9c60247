package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const (
	// PayloadTimeLayout is the ISO-8601 form simulators write into the address space.
	PayloadTimeLayout = "2006-01-02T15:04:05.999999"
	secondsPrefix     = "2006-01-02T15:04:05"
	// StoreTimeLayout is the second-precision form persisted in the readings table.
	StoreTimeLayout = "2006-01-02 15:04:05"
	// FrameTimeLayout is how timestamps appear in push-channel frames.
	FrameTimeLayout = "2006-01-02T15:04:05"
)

var (
	ErrBadPayload   = errors.New("domain: malformed payload")
	ErrBadTimestamp = errors.New("domain: malformed timestamp")
)

// Reading is one persisted sensor measurement. ID is assigned by the store.
type Reading struct {
	ID          int64
	MachineID   string
	Timestamp   time.Time
	Temperature float64
	Pressure    float64
}

// Equal compares every field, ID included.
func (r Reading) Equal(o Reading) bool {
	return r.ID == o.ID &&
		r.MachineID == o.MachineID &&
		r.Timestamp.Equal(o.Timestamp) &&
		r.Temperature == o.Temperature &&
		r.Pressure == o.Pressure
}

type readingJSON struct {
	ID          int64   `json:"ID"`
	MachineID   string  `json:"MachineID"`
	Timestamp   string  `json:"Timestamp"`
	Temperature float64 `json:"Temperature"`
	Pressure    float64 `json:"Pressure"`
}

func (r Reading) MarshalJSON() ([]byte, error) {
	return json.Marshal(readingJSON{
		ID:          r.ID,
		MachineID:   r.MachineID,
		Timestamp:   r.Timestamp.Format(FrameTimeLayout),
		Temperature: r.Temperature,
		Pressure:    r.Pressure,
	})
}

func (r *Reading) UnmarshalJSON(data []byte) error {
	var raw readingJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	ts, err := time.Parse(PayloadTimeLayout, raw.Timestamp)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadTimestamp, err)
	}
	*r = Reading{
		ID:          raw.ID,
		MachineID:   raw.MachineID,
		Timestamp:   ts,
		Temperature: raw.Temperature,
		Pressure:    raw.Pressure,
	}
	return nil
}

// Payload is the bus body for one machine. The machine itself is implied by the topic.
type Payload struct {
	Timestamp   string  `json:"timestamp"`
	Temperature float64 `json:"temperature"`
	Pressure    float64 `json:"pressure"`
}

func (p Payload) Encode() ([]byte, error) {
	return json.Marshal(p)
}

func DecodePayload(body []byte) (Payload, error) {
	var p Payload
	if err := json.Unmarshal(body, &p); err != nil {
		return Payload{}, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	return p, nil
}

// ParsePayloadTime parses a payload timestamp and truncates it to whole seconds.
func ParsePayloadTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty", ErrBadTimestamp)
	}
	ts, err := time.Parse(PayloadTimeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrBadTimestamp, err)
	}
	// time.Parse tolerates a missing or overlong fraction; payloads carry 1 to 6 digits.
	if n := len(s) - len(secondsPrefix); n < 2 || n > 7 || s[len(secondsPrefix)] != '.' {
		return time.Time{}, fmt.Errorf("%w: %q needs 1 to 6 fractional digits", ErrBadTimestamp, s)
	}
	return ts.Truncate(time.Second), nil
}

func FormatPayloadTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000000")
}

func FormatStoreTime(t time.Time) string {
	return t.Format(StoreTimeLayout)
}

// Message is a raw bus delivery handed from the subscriber to the ingestion worker.
type Message struct {
	Topic string
	Body  []byte
}
