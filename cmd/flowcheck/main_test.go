package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/Triglit/flowgraph/internal/connectivity"
)

func TestRunExitCodes(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want int
	}{
		{"valid", []string{"testdata/valid.json"}, 0},
		{"fan in", []string{"testdata/fan_in.json"}, 1},
		{"dangling edge", []string{"testdata/dangling.json"}, 1},
		{"missing file", []string{"testdata/nope.json"}, 2},
		{"no args", nil, 2},
		{"unknown flag", []string{"-x", "testdata/valid.json"}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			if got := run(tt.args, &stdout, &stderr); got != tt.want {
				t.Errorf("run(%v) = %d, want %d\nstdout: %s\nstderr: %s", tt.args, got, tt.want, &stdout, &stderr)
			}
		})
	}
}

func TestRunTextReport(t *testing.T) {
	var stdout, stderr bytes.Buffer
	run([]string{"testdata/fan_in.json"}, &stdout, &stderr)

	out := stdout.String()
	if !strings.Contains(out, "1 violation(s)") || !strings.Contains(out, connectivity.RuleFanIn) {
		t.Errorf("unexpected report:\n%s", out)
	}
}

func TestRunJSONWithDerivedConfig(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := run([]string{"-json", "-print", "testdata/valid.json"}, &stdout, &stderr); code != 0 {
		t.Fatalf("exit %d: %s", code, &stderr)
	}

	var rep report
	if err := json.Unmarshal(stdout.Bytes(), &rep); err != nil {
		t.Fatalf("failed to decode report: %v", err)
	}
	if !rep.Valid || rep.WorkflowID != "wf_orders" || rep.Version != 2 {
		t.Errorf("unexpected report: %+v", rep)
	}
	if rep.Derived == nil {
		t.Fatal("expected derived version")
	}
	for _, n := range rep.Derived.Nodes {
		if n.ID == "check" && n.Config["trueBranch"] != "report" {
			t.Errorf("trueBranch = %v, want report", n.Config["trueBranch"])
		}
	}
}

func TestRunJSONStructuralError(t *testing.T) {
	var stdout, stderr bytes.Buffer
	run([]string{"-json", "testdata/dangling.json"}, &stdout, &stderr)

	var rep report
	if err := json.Unmarshal(stdout.Bytes(), &rep); err != nil {
		t.Fatalf("failed to decode report: %v", err)
	}
	if rep.Valid || !strings.Contains(rep.Error, "ghost") {
		t.Errorf("unexpected report: %+v", rep)
	}
}
