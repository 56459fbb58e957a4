package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Triglit/flowgraph/internal/events"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "flowgraph.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestRunStartupFailures(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want int
	}{
		{"unknown flag", []string{"-nope"}, 2},
		{"missing config", []string{"-config", filepath.Join(t.TempDir(), "missing.yaml")}, 1},
		{"unsupported version", []string{"-config", writeConfig(t, "version: 2\n")}, 1},
		{"unknown driver", []string{"-config", writeConfig(t, "version: 1\nstorage:\n  driver: etcd\n")}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := run(tt.args); got != tt.want {
				t.Errorf("run(%v) = %d, want %d", tt.args, got, tt.want)
			}
		})
	}
}

func TestRunReleasesStorageOnLateFailure(t *testing.T) {
	t.Setenv("FLOWGRAPH_TLS_CERT", filepath.Join(t.TempDir(), "cert.pem"))
	t.Setenv("FLOWGRAPH_TLS_KEY", "")
	path := writeConfig(t, "version: 1\nlog:\n  level: error\nstorage:\n  driver: memory\n")

	if got := run([]string{"-config", path}); got != 1 {
		t.Fatalf("run = %d, want 1", got)
	}

	// the sql sink was registered before the failure and must be gone
	events.Clear()
	if _, err := events.Emit("info", "node.added", "", map[string]interface{}{"workflow_id": "wf"}); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	for _, e := range events.Snapshot() {
		if e.Name == "system.error" {
			t.Errorf("closed store still receiving events: %v", e.Fields)
		}
	}
}
