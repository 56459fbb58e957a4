package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Triglit/flowgraph/internal/events"
)

const (
	// Number of recent events to send on connection
	recentEventsCount = 50

	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = 54 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// matchesWorkflow reports whether e belongs to workflowID. An empty filter
// matches everything; events without a workflow always pass.
func matchesWorkflow(e events.Event, workflowID string) bool {
	if workflowID == "" {
		return true
	}
	wf, ok := e.Fields["workflow_id"].(string)
	return !ok || wf == workflowID
}

// eventsHandler returns the in-memory ring buffer, or the persisted log with
// ?source=log. ?workflow_id= filters both; ?limit= applies to the log.
func (s *Server) eventsHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	workflowID := q.Get("workflow_id")

	if q.Get("source") == "log" {
		if s.eventLog == nil {
			writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "no event log configured"})
			return
		}
		limit, _ := strconv.Atoi(q.Get("limit"))
		rows, err := s.eventLog.QueryEvents(r.Context(), workflowID, limit)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, rows)
		return
	}

	out := []events.Event{}
	for _, e := range events.Snapshot() {
		if matchesWorkflow(e, workflowID) {
			out = append(out, e)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// wsEventsHandler streams events over a WebSocket. ?workflow_id= narrows the
// stream to one workflow.
func (s *Server) wsEventsHandler(w http.ResponseWriter, r *http.Request) {
	workflowID := r.URL.Query().Get("workflow_id")

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Warn("ws upgrade failed")
		return
	}

	sub := events.Subscribe()
	closeAll := func() {
		events.Unsubscribe(sub)
		conn.Close()
	}

	write := func(e events.Event) error {
		if !matchesWorkflow(e, workflowID) {
			return nil
		}
		data, err := json.Marshal(e)
		if err != nil {
			return nil
		}
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteMessage(websocket.TextMessage, data)
	}

	for _, e := range events.RecentEvents(recentEventsCount) {
		if err := write(e); err != nil {
			s.log.WithError(err).Debug("ws write recent event failed")
			closeAll()
			return
		}
	}

	// reader handles pongs and close messages
	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(pongWait))
			return nil
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			closeAll()
			return

		case e, ok := <-sub:
			if !ok {
				conn.Close()
				return
			}
			if err := write(e); err != nil {
				s.log.WithError(err).Debug("ws write event failed")
				closeAll()
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				closeAll()
				return
			}
		}
	}
}
