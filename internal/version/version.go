// Package version holds the flowgraph release version.
package version

// Version is reported by /health and sent as the remote client User-Agent.
// Override at build time with:
//
//	go build -ldflags "-X github.com/Triglit/flowgraph/internal/version.Version=x.y.z"
var Version = "0.4.0"
