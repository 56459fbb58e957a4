package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Triglit/flowgraph/internal/events"
)

// dialEvents starts a test server for the event stream and connects to it.
func dialEvents(t *testing.T, query string) *websocket.Conn {
	t.Helper()
	s, _ := newTestServer(t)
	SetTLSConfigForTest(nil)

	server := httptest.NewServer(http.HandlerFunc(s.wsEventsHandler))
	t.Cleanup(server.Close)

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + query
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) events.Event {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("failed to read message: %v", err)
	}
	var e events.Event
	if err := json.Unmarshal(msg, &e); err != nil {
		t.Fatalf("failed to unmarshal event: %v", err)
	}
	return e
}

// waitFor polls a condition until it returns true or timeout expires.
func waitFor(t *testing.T, timeout time.Duration, condition func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Errorf("timeout waiting for: %s", msg)
}

func TestWebSocketReceivesRecentEvents(t *testing.T) {
	events.Clear()
	for i := 0; i < 5; i++ {
		events.Emit("info", "node.added", "", map[string]interface{}{"i": i})
	}

	conn := dialEvents(t, "")
	for i := 0; i < 5; i++ {
		if e := readEvent(t, conn); e.Name != "node.added" {
			t.Errorf("expected 'node.added', got '%s'", e.Name)
		}
	}
}

func TestWebSocketReceivesNewEvents(t *testing.T) {
	events.Clear()
	conn := dialEvents(t, "")
	waitFor(t, time.Second, func() bool { return events.SubscriberCount() > 0 }, "subscriber registered")

	events.Emit("info", "edge.connected", "", map[string]interface{}{"edge_id": "e1"})

	e := readEvent(t, conn)
	if e.Name != "edge.connected" {
		t.Errorf("expected 'edge.connected', got '%s'", e.Name)
	}
	if e.Fields["edge_id"] != "e1" {
		t.Errorf("expected edge_id 'e1', got '%v'", e.Fields["edge_id"])
	}
}

func TestWebSocketFiltersByWorkflow(t *testing.T) {
	events.Clear()
	events.Emit("info", "node.added", "", map[string]interface{}{"workflow_id": "wf_other"})
	events.Emit("info", "node.added", "", map[string]interface{}{"workflow_id": "wf_orders", "seq": "recent"})

	conn := dialEvents(t, "?workflow_id=wf_orders")
	if e := readEvent(t, conn); e.Fields["seq"] != "recent" {
		t.Errorf("expected the wf_orders replay, got %+v", e)
	}
	waitFor(t, time.Second, func() bool { return events.SubscriberCount() > 0 }, "subscriber registered")

	events.Emit("info", "node.removed", "", map[string]interface{}{"workflow_id": "wf_other"})
	events.Emit("info", "node.removed", "", map[string]interface{}{"workflow_id": "wf_orders"})

	e := readEvent(t, conn)
	if e.Fields["workflow_id"] != "wf_orders" {
		t.Errorf("received event for %v", e.Fields["workflow_id"])
	}
}

func TestWebSocketDisconnectCleansUp(t *testing.T) {
	events.Clear()
	events.CloseAllSubscribers()

	conn := dialEvents(t, "")
	waitFor(t, time.Second, func() bool { return events.SubscriberCount() == 1 }, "subscriber registered")

	conn.Close()

	// wake the handler so it notices the close
	for i := 0; i < 5; i++ {
		events.Emit("info", "node.configured", "", nil)
		time.Sleep(50 * time.Millisecond)
	}

	waitFor(t, 5*time.Second, func() bool {
		return events.SubscriberCount() == 0
	}, "subscriber count to return to 0 after close")
}

func TestWebSocketMultipleClients(t *testing.T) {
	events.Clear()
	events.CloseAllSubscribers()

	conn1 := dialEvents(t, "")
	conn2 := dialEvents(t, "")
	waitFor(t, time.Second, func() bool { return events.SubscriberCount() == 2 }, "both subscribers registered")

	events.Emit("info", "version.saved", "", map[string]interface{}{"version": 3})

	for i, conn := range []*websocket.Conn{conn1, conn2} {
		if e := readEvent(t, conn); e.Name != "version.saved" {
			t.Errorf("client%d: expected 'version.saved', got '%s'", i+1, e.Name)
		}
	}
}
