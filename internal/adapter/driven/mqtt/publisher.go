// Package mqtt republishes glucose readings to an MQTT broker for
// home-automation consumers.
package mqtt

import (
	"encoding/json"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/kmathis/glucopanel/internal/domain/model"
	"github.com/kmathis/glucopanel/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.ReadingPublisher = (*Publisher)(nil)

// Publisher sends one retained JSON message per reading to a single topic.
type Publisher struct {
	client paho.Client
	topic  string
}

// Options configures the broker connection.
type Options struct {
	Broker   string // host:port
	Topic    string
	Username string
	Password string
}

// New connects to the broker and returns a Publisher. The connection
// auto-reconnects; a broker outage surfaces as Publish errors, not a dead
// client.
func New(opts Options) (*Publisher, error) {
	if opts.Broker == "" {
		return nil, fmt.Errorf("MQTT broker address is required")
	}

	clientOpts := paho.NewClientOptions()
	clientOpts.AddBroker(fmt.Sprintf("tcp://%s", opts.Broker))
	clientOpts.SetClientID("glucopanel")
	clientOpts.SetAutoReconnect(true)
	clientOpts.SetConnectRetry(true)
	clientOpts.SetConnectTimeout(10 * time.Second)

	if opts.Username != "" {
		clientOpts.SetUsername(opts.Username)
	}
	if opts.Password != "" {
		clientOpts.SetPassword(opts.Password)
	}

	client := paho.NewClient(clientOpts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connecting to MQTT broker: %w", token.Error())
	}

	return &Publisher{client: client, topic: opts.Topic}, nil
}

// payload is the published message shape.
type payload struct {
	Value     int    `json:"value"`
	Trend     string `json:"trend"`
	Zone      string `json:"zone"`
	Timestamp string `json:"timestamp"`
}

// Publish sends the reading as a retained message so late subscribers see
// the current value immediately.
func (p *Publisher) Publish(r model.Reading) error {
	body, err := json.Marshal(payload{
		Value:     r.Value,
		Trend:     string(r.Trend),
		Zone:      string(model.Categorize(r.Value)),
		Timestamp: r.Timestamp.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("encoding reading: %w", err)
	}

	token := p.client.Publish(p.topic, 0, true, body)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("publishing reading: %w", token.Error())
	}

	return nil
}

// Close disconnects from the broker.
func (p *Publisher) Close() {
	if p.client != nil && p.client.IsConnected() {
		p.client.Disconnect(250)
	}
}
