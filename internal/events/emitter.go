package events

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

var buffer = NewRingBuffer(256)

var totalCount atomic.Uint64

// Sink receives every emitted event after it has been buffered. Sinks must
// not call Emit.
type Sink interface {
	Append(ts time.Time, level, event, msg string, fields map[string]interface{}, workflowID string) error
}

type registeredSink struct {
	name      string
	sink      Sink
	errLogged bool
}

var (
	sinksMu sync.RWMutex
	sinks   []*registeredSink
)

// AddSink registers a named sink (e.g. "sql", "mqtt"). A sink with the same
// name is replaced.
func AddSink(name string, s Sink) {
	sinksMu.Lock()
	defer sinksMu.Unlock()
	for _, rs := range sinks {
		if rs.name == name {
			rs.sink = s
			rs.errLogged = false
			return
		}
	}
	sinks = append(sinks, &registeredSink{name: name, sink: s})
}

// RemoveSinks drops every registered sink. Used for testing and shutdown.
func RemoveSinks() {
	sinksMu.Lock()
	sinks = nil
	sinksMu.Unlock()
}

type Event struct {
	Timestamp string                 `json:"ts"`
	Level     string                 `json:"level"`
	Name      string                 `json:"event"`
	Message   string                 `json:"msg,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// Emit records an allow-listed event, fans it out to websocket subscribers
// and sinks, and returns its JSON encoding. A "workflow_id" field is passed
// to sinks as the partition key.
func Emit(level, name, msg string, fields map[string]interface{}) ([]byte, error) {
	if err := Validate(name); err != nil {
		return nil, err
	}

	ts := time.Now().UTC()
	e := Event{
		Timestamp: ts.Format(time.RFC3339Nano),
		Level:     level,
		Name:      name,
		Message:   msg,
		Fields:    fields,
	}

	buffer.Add(e)
	totalCount.Add(1)
	broadcast(e)

	workflowID, _ := fields["workflow_id"].(string)

	sinksMu.RLock()
	current := append([]*registeredSink(nil), sinks...)
	sinksMu.RUnlock()

	for _, rs := range current {
		if err := rs.sink.Append(ts, level, name, msg, fields, workflowID); err != nil {
			reportSinkError(rs, err)
		}
	}

	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}

	return b, nil
}

// reportSinkError records the first failure of a sink directly in the ring
// buffer. Going through Emit would recurse while the sink keeps failing.
func reportSinkError(rs *registeredSink, err error) {
	sinksMu.Lock()
	if rs.errLogged {
		sinksMu.Unlock()
		return
	}
	rs.errLogged = true
	sinksMu.Unlock()

	errEvent := Event{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Level:     "error",
		Name:      "system.error",
		Message:   rs.name + " sink append failed",
		Fields: map[string]interface{}{
			"sink":  rs.name,
			"error": err.Error(),
		},
	}
	buffer.Add(errEvent)
	totalCount.Add(1)
}

func Snapshot() []Event {
	return buffer.Snapshot()
}

// TotalCount returns the number of events recorded since startup.
func TotalCount() uint64 {
	return totalCount.Load()
}

// Clear resets the event buffer. Used for testing.
func Clear() {
	buffer.Clear()
}
