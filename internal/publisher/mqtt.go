package publisher

import (
	"context"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTTPublisher mirrors notifications to an MQTT broker via Paho.
type MQTTPublisher struct {
	client mqtt.Client
	broker string
	qos    byte
}

// MQTTOptions configures the MQTT publisher.
type MQTTOptions struct {
	Broker   string
	ClientID string
	QoS      byte
}

// NewMQTTPublisher creates and connects an MQTT publisher.
func NewMQTTPublisher(opts MQTTOptions) (*MQTTPublisher, error) {
	clientOpts := mqtt.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetMaxReconnectInterval(60 * time.Second)

	client := mqtt.NewClient(clientOpts)
	token := client.Connect()
	if !token.WaitTimeout(30 * time.Second) {
		return nil, fmt.Errorf("connecting to MQTT broker %s: timed out", opts.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connecting to MQTT broker %s: %w", opts.Broker, err)
	}

	return &MQTTPublisher{
		client: client,
		broker: opts.Broker,
		qos:    opts.QoS,
	}, nil
}

func (p *MQTTPublisher) Name() string {
	return "mqtt " + p.broker
}

// Publish waits for the broker acknowledgement or ctx, whichever comes first.
func (p *MQTTPublisher) Publish(ctx context.Context, topic string, payload []byte) error {
	token := p.client.Publish(topic, p.qos, false, payload)
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return fmt.Errorf("publishing to %s: %w", topic, ctx.Err())
	}
}

func (p *MQTTPublisher) Close() error {
	p.client.Disconnect(1000)
	return nil
}
