package mqtt

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Triglit/flowgraph/internal/events"
)

// systemTopic is used for events not tied to a workflow.
const systemTopic = "_system"

// EventPublisher sends one payload to one topic.
type EventPublisher interface {
	Publish(topic string, payload []byte) error
}

// Publisher is an events.Sink that mirrors editor events to MQTT.
type Publisher struct {
	pub    EventPublisher
	prefix string
}

var _ events.Sink = (*Publisher)(nil)

// NewPublisher returns a sink publishing under prefix.
func NewPublisher(pub EventPublisher, prefix string) *Publisher {
	return &Publisher{pub: pub, prefix: strings.TrimRight(prefix, "/")}
}

type message struct {
	Timestamp  string                 `json:"ts"`
	Level      string                 `json:"level"`
	Event      string                 `json:"event"`
	Message    string                 `json:"msg,omitempty"`
	WorkflowID string                 `json:"workflow_id,omitempty"`
	Fields     map[string]interface{} `json:"fields,omitempty"`
}

// Topic returns <prefix>/<workflow>/<event>.
func Topic(prefix, workflowID, event string) string {
	if workflowID == "" {
		workflowID = systemTopic
	}
	return strings.Join([]string{prefix, workflowID, event}, "/")
}

func (p *Publisher) Append(ts time.Time, level, event, msg string, fields map[string]interface{}, workflowID string) error {
	b, err := json.Marshal(message{
		Timestamp:  ts.UTC().Format(time.RFC3339Nano),
		Level:      level,
		Event:      event,
		Message:    msg,
		WorkflowID: workflowID,
		Fields:     fields,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal event %s: %w", event, err)
	}
	return p.pub.Publish(Topic(p.prefix, workflowID, event), b)
}
