// Package eventlog defines the run event model and the ordered,
// deduplicated per-run buffer those events accumulate in.
//
// Events arrive from two origins, a REST backfill and a live push stream,
// which may race and may duplicate each other. The buffer's monotonic
// sequence guard is the single point that makes the merged result
// order-independent.
package eventlog

import (
	"encoding/json"
	"fmt"
	"time"
)

// Level is the severity tag an event carries.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Boundary kinds the hub emits when a run enters a lifecycle phase. Kind is
// free-form; these are the values stage inference and duration math key on.
const (
	KindScan              = "scan"
	KindPackaging         = "packaging"
	KindUpload            = "upload"
	KindComplete          = "complete"
	KindFailed            = "failed"
	KindSourceConsistency = "source_consistency"
)

// Event is one immutable fact emitted by a run or operation. Sequence is
// server-assigned, strictly increasing and unique within a run; it is the
// sole ordering and dedup key.
type Event struct {
	Sequence  int64          `json:"seq"`
	Timestamp float64        `json:"ts"`
	Level     Level          `json:"level"`
	Kind      string         `json:"kind"`
	Message   string         `json:"message"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// Time converts the epoch-seconds timestamp to a time.Time.
func (e Event) Time() time.Time {
	sec := int64(e.Timestamp)
	nsec := int64((e.Timestamp - float64(sec)) * float64(time.Second))
	return time.Unix(sec, nsec)
}

// ParseEvent decodes one wire message. A message without a sequence or
// timestamp is malformed; callers are expected to drop such messages
// without surfacing an error to the user.
func ParseEvent(data []byte) (Event, error) {
	var raw struct {
		Sequence  *int64         `json:"seq"`
		Timestamp *float64       `json:"ts"`
		Level     string         `json:"level"`
		Kind      string         `json:"kind"`
		Message   string         `json:"message"`
		Fields    map[string]any `json:"fields"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return Event{}, fmt.Errorf("decoding event: %w", err)
	}
	if raw.Sequence == nil {
		return Event{}, fmt.Errorf("event missing seq")
	}
	if raw.Timestamp == nil {
		return Event{}, fmt.Errorf("event missing ts")
	}

	level := Level(raw.Level)
	if level == "" {
		level = LevelInfo
	}

	return Event{
		Sequence:  *raw.Sequence,
		Timestamp: *raw.Timestamp,
		Level:     level,
		Kind:      raw.Kind,
		Message:   raw.Message,
		Fields:    raw.Fields,
	}, nil
}
