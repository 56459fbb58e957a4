package api

import (
	"net/http"
	"strings"
	"sync"
)

// readinessState tracks the dependencies /ready reports on.
type readinessState struct {
	mu                sync.RWMutex
	storageConnected  bool
	mqttConnected     bool
	mqttOptional      bool
	remoteConfigured  bool
	remoteBreakerOpen func() bool
}

var readiness = &readinessState{mqttOptional: true}

type CheckStatus struct {
	Status   string `json:"status"`
	Optional bool   `json:"optional,omitempty"`
}

type ReadinessResponse struct {
	Ready       bool                   `json:"ready"`
	Checks      map[string]CheckStatus `json:"checks"`
	NotReadyMsg string                 `json:"message,omitempty"`
}

// SetStorageState records whether the version/trigger store answered a ping.
func SetStorageState(connected bool) {
	readiness.mu.Lock()
	defer readiness.mu.Unlock()
	readiness.storageConnected = connected
}

// SetMQTTState records broker connectivity. An optional broker never blocks
// readiness.
func SetMQTTState(connected, optional bool) {
	readiness.mu.Lock()
	defer readiness.mu.Unlock()
	readiness.mqttConnected = connected
	readiness.mqttOptional = optional
}

// SetRemoteBreaker registers the remote service circuit breaker check. A nil
// check means no remote service is configured.
func SetRemoteBreaker(open func() bool) {
	readiness.mu.Lock()
	defer readiness.mu.Unlock()
	readiness.remoteConfigured = open != nil
	readiness.remoteBreakerOpen = open
}

func checkStatus(ok, optional bool) CheckStatus {
	switch {
	case ok:
		return CheckStatus{Status: "ok", Optional: optional}
	case optional:
		return CheckStatus{Status: "unavailable", Optional: true}
	default:
		return CheckStatus{Status: "not_ready"}
	}
}

func readyHandler(w http.ResponseWriter, r *http.Request) {
	readiness.mu.RLock()
	storage := readiness.storageConnected
	mqttOK := readiness.mqttConnected
	mqttOptional := readiness.mqttOptional
	remote := readiness.remoteConfigured
	breakerOpen := readiness.remoteBreakerOpen
	readiness.mu.RUnlock()

	resp := ReadinessResponse{Ready: true, Checks: map[string]CheckStatus{}}
	var reasons []string

	add := func(name string, ok, optional bool, reason string) {
		resp.Checks[name] = checkStatus(ok, optional)
		if !ok && !optional {
			resp.Ready = false
			reasons = append(reasons, reason)
		}
	}

	add("storage", storage, false, "storage not connected")
	add("mqtt", mqttOK, mqttOptional, "mqtt not connected")
	if remote {
		add("remote", !breakerOpen(), false, "remote circuit breaker open")
	}

	code := http.StatusOK
	if !resp.Ready {
		code = http.StatusServiceUnavailable
		resp.NotReadyMsg = strings.Join(reasons, "; ")
	}
	writeJSON(w, code, resp)
}
