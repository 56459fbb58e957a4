package api

import (
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/Triglit/flowgraph/internal/events"
	"github.com/Triglit/flowgraph/internal/version"
)

var metricsState = &MetricsState{startTime: time.Now(), lastSaveEpoch: -1}

// MetricsState holds runtime metrics for the /metrics endpoint.
type MetricsState struct {
	mu            sync.RWMutex
	startTime     time.Time
	saves         uint64
	saveFailures  uint64
	lastSaveEpoch int64
}

// InitMetrics resets the metrics system. Call at startup.
func InitMetrics() {
	metricsState.mu.Lock()
	defer metricsState.mu.Unlock()
	metricsState.startTime = time.Now()
	metricsState.saves = 0
	metricsState.saveFailures = 0
	metricsState.lastSaveEpoch = -1
}

func recordSave(err error) {
	metricsState.mu.Lock()
	defer metricsState.mu.Unlock()
	metricsState.saves++
	if err != nil {
		metricsState.saveFailures++
		return
	}
	metricsState.lastSaveEpoch = time.Now().Unix()
}

func boolGauge(b bool) int {
	if b {
		return 1
	}
	return 0
}

// metricsHandler returns Prometheus-compatible metrics in text format.
func (s *Server) metricsHandler(w http.ResponseWriter, r *http.Request) {
	metricsState.mu.RLock()
	uptime := time.Since(metricsState.startTime).Seconds()
	saves := metricsState.saves
	saveFailures := metricsState.saveFailures
	lastSave := metricsState.lastSaveEpoch
	metricsState.mu.RUnlock()

	readiness.mu.RLock()
	storageConnected := readiness.storageConnected
	mqttConnected := readiness.mqttConnected
	breakerOpen := readiness.remoteConfigured && readiness.remoteBreakerOpen()
	readiness.mu.RUnlock()

	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "unknown"
	}

	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	writeMetric := func(name, mtype, help string, value interface{}, labels string) {
		fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		fmt.Fprintf(w, "# TYPE %s %s\n", name, mtype)
		fmt.Fprintf(w, "%s{%s} %v\n", name, labels, value)
	}

	labels := fmt.Sprintf(`service="%s",instance="%s",version="%s"`, s.service, hostname, version.Version)

	writeMetric("flowgraph_uptime_seconds", "gauge",
		"Number of seconds since the service started", uptime, labels)
	writeMetric("flowgraph_sessions_active", "gauge",
		"Number of workflows with a live editing session", s.sessions.Len(), labels)
	writeMetric("flowgraph_events_total", "counter",
		"Total number of events emitted since startup", events.TotalCount(), labels)
	writeMetric("flowgraph_saves_total", "counter",
		"Number of save requests", saves, labels)
	writeMetric("flowgraph_save_failures_total", "counter",
		"Number of save requests that failed or partially failed", saveFailures, labels)
	writeMetric("flowgraph_last_save_timestamp", "gauge",
		"Unix timestamp of the last successful save (-1 if none)", lastSave, labels)
	writeMetric("flowgraph_storage_connected", "gauge",
		"Whether the store is connected (1) or not (0)", boolGauge(storageConnected), labels)
	writeMetric("flowgraph_mqtt_connected", "gauge",
		"Whether the MQTT broker is connected (1) or not (0)", boolGauge(mqttConnected), labels)
	writeMetric("flowgraph_remote_breaker_open", "gauge",
		"Whether the remote service circuit breaker is open (1) or not (0)", boolGauge(breakerOpen), labels)
	writeMetric("flowgraph_ws_clients", "gauge",
		"Number of active WebSocket client connections", events.SubscriberCount(), labels)
}
