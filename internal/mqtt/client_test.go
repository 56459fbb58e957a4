package mqtt

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/Triglit/flowgraph/internal/logging"
)

type fakeToken struct {
	done    chan struct{}
	err     error
	expired bool
}

func newToken(err error) *fakeToken {
	t := &fakeToken{done: make(chan struct{}), err: err}
	close(t.done)
	return t
}

func (t *fakeToken) Wait() bool { return !t.expired }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return !t.expired }
func (t *fakeToken) Done() <-chan struct{} { return t.done }
func (t *fakeToken) Error() error { return t.err }

type published struct {
	topic   string
	qos     byte
	payload []byte
}

type fakeBroker struct {
	mu        sync.Mutex
	connected bool
	connErr   error
	pubToken  *fakeToken
	sent      []published
}

func (b *fakeBroker) Connect() paho.Token {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.connErr == nil {
		b.connected = true
	}
	return newToken(b.connErr)
}

func (b *fakeBroker) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = append(b.sent, published{topic: topic, qos: qos, payload: payload.([]byte)})
	if b.pubToken != nil {
		return b.pubToken
	}
	return newToken(nil)
}

func (b *fakeBroker) Disconnect(uint) {
	b.mu.Lock()
	b.connected = false
	b.mu.Unlock()
}

func (b *fakeBroker) IsConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connected
}

func testClient(b *fakeBroker) *Client {
	return &Client{client: b, url: "tcp://test:1883", log: logging.Discard()}
}

func TestBrokerURLFromEnv(t *testing.T) {
	t.Setenv("MQTT_URL", "tcp://broker:1884")
	if got := BrokerURL(); got != "tcp://broker:1884" {
		t.Errorf("BrokerURL() = %q", got)
	}
	t.Setenv("MQTT_URL", "")
	if got := BrokerURL(); got != "tcp://localhost:1883" {
		t.Errorf("BrokerURL() default = %q", got)
	}
}

func TestPublishRequiresConnection(t *testing.T) {
	b := &fakeBroker{}
	c := testClient(b)
	if err := c.Publish("a/b", []byte("{}")); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
	if !c.Start() {
		t.Fatal("Start failed")
	}
	if err := c.Publish("a/b", []byte("{}")); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(b.sent) != 1 || b.sent[0].qos != 1 {
		t.Errorf("unexpected publish: %+v", b.sent)
	}
	c.Disconnect()
	if c.IsConnected() {
		t.Error("still connected after Disconnect")
	}
}

func TestStartReportsConnectError(t *testing.T) {
	c := testClient(&fakeBroker{connErr: errors.New("refused")})
	if c.Start() {
		t.Error("Start should fail when the broker refuses")
	}
}

func TestPublishTimeout(t *testing.T) {
	b := &fakeBroker{connected: true, pubToken: &fakeToken{done: make(chan struct{}), expired: true}}
	err := testClient(b).Publish("x", []byte("{}"))
	var te *PublishTimeoutError
	if !errors.As(err, &te) || te.Topic != "x" {
		t.Errorf("expected PublishTimeoutError, got %v", err)
	}
}

func TestPublisherTopicsAndPayload(t *testing.T) {
	b := &fakeBroker{connected: true}
	p := NewPublisher(testClient(b), "flowgraph/events/")

	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := p.Append(ts, "info", "edge.connected", "", map[string]interface{}{"workflow_id": "wf1", "source": "a"}, "wf1"); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := p.Append(ts, "info", "system.startup", "up", nil, ""); err != nil {
		t.Fatalf("Append: %v", err)
	}

	if b.sent[0].topic != "flowgraph/events/wf1/edge.connected" {
		t.Errorf("topic = %q", b.sent[0].topic)
	}
	if b.sent[1].topic != "flowgraph/events/_system/system.startup" {
		t.Errorf("topic = %q", b.sent[1].topic)
	}

	var m message
	if err := json.Unmarshal(b.sent[0].payload, &m); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if m.Event != "edge.connected" || m.WorkflowID != "wf1" || m.Fields["source"] != "a" {
		t.Errorf("unexpected message: %+v", m)
	}
	if m.Timestamp != "2026-03-01T12:00:00Z" {
		t.Errorf("ts = %q", m.Timestamp)
	}
}
