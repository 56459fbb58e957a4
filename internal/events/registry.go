package events

import "fmt"

var allowedEvents = map[string]struct{}{
	// graph
	"graph.loaded":  {},
	"graph.invalid": {},

	// node
	"node.added":      {},
	"node.removed":    {},
	"node.configured": {},

	// edge
	"edge.connected":    {},
	"edge.rejected":     {},
	"edge.disconnected": {},

	// version
	"version.saved":     {},
	"version.published": {},

	// reconcile
	"reconcile.started":   {},
	"reconcile.completed": {},
	"reconcile.failed":    {},

	// trigger
	"trigger.created": {},
	"trigger.updated": {},
	"trigger.deleted": {},
	"trigger.failed":  {},

	// system
	"system.startup":  {},
	"system.shutdown": {},
	"system.error":    {},
}

func Validate(event string) error {
	if _, ok := allowedEvents[event]; !ok {
		return fmt.Errorf("unknown event: %s", event)
	}
	return nil
}
