package events

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"
)

type recordingSink struct {
	mu         sync.Mutex
	names      []string
	workflowID string
	err        error
}

func (s *recordingSink) Append(ts time.Time, level, event, msg string, fields map[string]interface{}, workflowID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.names = append(s.names, event)
	s.workflowID = workflowID
	return s.err
}

func TestEmitRejectsUnknownEvent(t *testing.T) {
	if _, err := Emit("info", "workflow.executed", "", nil); err == nil {
		t.Fatal("expected error for event outside the allow-list")
	}
}

func TestEmitReturnsJSON(t *testing.T) {
	b, err := Emit("info", "version.saved", "saved", map[string]interface{}{"version_id": "v1"})
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}
	var e Event
	if err := json.Unmarshal(b, &e); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if e.Name != "version.saved" || e.Level != "info" || e.Message != "saved" {
		t.Errorf("unexpected event: %+v", e)
	}
}

func TestEmitFansOutToSinks(t *testing.T) {
	defer RemoveSinks()
	sink := &recordingSink{}
	AddSink("test", sink)

	before := TotalCount()
	Emit("info", "trigger.created", "", map[string]interface{}{"workflow_id": "wf_1"})

	if TotalCount() != before+1 {
		t.Errorf("expected total count to grow by 1")
	}
	if len(sink.names) != 1 || sink.names[0] != "trigger.created" {
		t.Errorf("sink did not receive event: %v", sink.names)
	}
	if sink.workflowID != "wf_1" {
		t.Errorf("workflow id = %q, want wf_1", sink.workflowID)
	}
}

func TestSinkFailureReportedOnce(t *testing.T) {
	defer RemoveSinks()
	Clear()
	AddSink("broken", &recordingSink{err: errors.New("db down")})

	Emit("info", "node.added", "", nil)
	Emit("info", "node.added", "", nil)

	errorsSeen := 0
	for _, e := range Snapshot() {
		if e.Name == "system.error" {
			errorsSeen++
			if e.Fields["sink"] != "broken" {
				t.Errorf("system.error missing sink name: %v", e.Fields)
			}
		}
	}
	if errorsSeen != 1 {
		t.Errorf("expected 1 system.error, got %d", errorsSeen)
	}
}
