package mqtt

import (
	"errors"
	"os"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"

	"github.com/Triglit/flowgraph/internal/logging"
)

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
	eventQoS       = 1
)

// broker is the part of paho.Client used here.
type broker interface {
	Connect() paho.Token
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Disconnect(quiesce uint)
	IsConnected() bool
}

// Client wraps the Paho MQTT client used to publish editor events.
type Client struct {
	client broker
	url    string
	mu     sync.Mutex
	log    *logrus.Entry
}

// BrokerURL returns the MQTT broker URL from env or default.
func BrokerURL() string {
	if url := os.Getenv("MQTT_URL"); url != "" {
		return url
	}
	return "tcp://localhost:1883"
}

// NewClient creates a new MQTT client but does not connect. An empty
// brokerURL falls back to BrokerURL().
func NewClient(brokerURL, clientID string) *Client {
	if brokerURL == "" {
		brokerURL = BrokerURL()
	}
	opts := paho.NewClientOptions().
		AddBroker(brokerURL).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetKeepAlive(30 * time.Second)

	return &Client{
		client: paho.NewClient(opts),
		url:    brokerURL,
		log:    logging.Component("mqtt"),
	}
}

// Connect attempts to connect to the broker.
// Returns an error if connection fails, but does not block indefinitely.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	token := c.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return &ConnectTimeoutError{}
	}
	return token.Error()
}

// Publish sends payload to topic at QoS 1 and waits for the broker ack.
func (c *Client) Publish(topic string, payload []byte) error {
	if !c.client.IsConnected() {
		return ErrNotConnected
	}
	token := c.client.Publish(topic, eventQoS, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		return &PublishTimeoutError{Topic: topic}
	}
	return token.Error()
}

// Disconnect cleanly disconnects from the broker.
func (c *Client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.client.Disconnect(1000)
}

// IsConnected returns true if the client is connected.
func (c *Client) IsConnected() bool {
	return c.client.IsConnected()
}

// Start connects, logging the failure instead of returning it. Paho keeps
// retrying in the background either way.
func (c *Client) Start() bool {
	if err := c.Connect(); err != nil {
		c.log.WithError(err).WithField("broker", c.url).Warn("failed to connect to broker")
		return false
	}
	c.log.WithField("broker", c.url).Info("connected to broker")
	return true
}

// ErrNotConnected is returned by Publish while the broker is unreachable.
var ErrNotConnected = errors.New("mqtt client not connected")

// ConnectTimeoutError indicates connection timed out.
type ConnectTimeoutError struct{}

func (e *ConnectTimeoutError) Error() string {
	return "mqtt connect timeout"
}

// PublishTimeoutError indicates the broker did not ack in time.
type PublishTimeoutError struct {
	Topic string
}

func (e *PublishTimeoutError) Error() string {
	return "mqtt publish timeout: " + e.Topic
}
