// Command flowcheck validates a saved workflow version file.
//
//	flowcheck [-json] [-print] version.json
//
// Branch config is re-derived from the edges before the graph rules run.
// Exit status is 0 when valid, 1 when invalid and 2 on usage or read errors.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/Triglit/flowgraph/internal/branchsync"
	"github.com/Triglit/flowgraph/internal/connectivity"
	"github.com/Triglit/flowgraph/internal/graph"
)

type report struct {
	File       string                   `json:"file"`
	WorkflowID string                   `json:"workflowId,omitempty"`
	Version    int                      `json:"version,omitempty"`
	Valid      bool                     `json:"valid"`
	Error      string                   `json:"error,omitempty"`
	Violations []connectivity.Violation `json:"violations"`
	Derived    *graph.Version           `json:"derived,omitempty"`
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("flowcheck", flag.ContinueOnError)
	fs.SetOutput(stderr)
	asJSON := fs.Bool("json", false, "print the report as JSON")
	printDerived := fs.Bool("print", false, "include the version with re-derived branch config")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "usage: flowcheck [-json] [-print] version.json")
		return 2
	}

	rep, err := check(fs.Arg(0), *printDerived)
	if err != nil {
		fmt.Fprintf(stderr, "flowcheck: %v\n", err)
		return 2
	}

	if *asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rep); err != nil {
			fmt.Fprintf(stderr, "flowcheck: %v\n", err)
			return 2
		}
	} else {
		writeText(stdout, rep)
	}

	if !rep.Valid {
		return 1
	}
	return 0
}

// check returns an error only when the file cannot be read. Parse and
// structural failures are part of the report.
func check(path string, derive bool) (*report, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	rep := &report{File: path, Valid: true, Violations: []connectivity.Violation{}}

	v, err := graph.LoadVersionFile(path)
	if err != nil {
		rep.Valid = false
		rep.Error = err.Error()
		return rep, nil
	}
	rep.WorkflowID = v.WorkflowID
	rep.Version = v.Version

	g := branchsync.ReconcileFromEdges(graph.FromVersion(*v))
	if vs := connectivity.Validate(g); len(vs) > 0 {
		rep.Valid = false
		rep.Violations = vs
	}

	if derive {
		out := *v
		out.Nodes, out.Edges = graph.ToVersion(g)
		rep.Derived = &out
	}
	return rep, nil
}

func writeText(w io.Writer, rep *report) {
	switch {
	case rep.Error != "":
		fmt.Fprintf(w, "%s: invalid: %s\n", rep.File, rep.Error)
	case rep.Valid:
		fmt.Fprintf(w, "%s: ok (%s v%d)\n", rep.File, rep.WorkflowID, rep.Version)
	default:
		fmt.Fprintf(w, "%s: %d violation(s)\n", rep.File, len(rep.Violations))
		for _, v := range rep.Violations {
			fmt.Fprintf(w, "  %s\n", v)
		}
	}
	if rep.Derived != nil {
		b, _ := json.MarshalIndent(rep.Derived, "", "  ")
		fmt.Fprintf(w, "%s\n", b)
	}
}
