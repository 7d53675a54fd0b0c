package notifier

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTTConfig holds the broker connection parameters
type MQTTConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	ClientID string
}

// MQTTClient is a thin paho wrapper
type MQTTClient struct {
	client mqtt.Client
}

func NewMQTTClient(cfg MQTTConfig) (*MQTTClient, error) {
	broker := fmt.Sprintf("tcp://%s:%d", cfg.Host, cfg.Port)

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(5 * time.Second)
	opts.SetKeepAlive(30 * time.Second)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	cli := mqtt.NewClient(opts)
	token := cli.Connect()
	if ok := token.WaitTimeout(10 * time.Second); !ok {
		return nil, fmt.Errorf("mqtt connect timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect error: %w", err)
	}

	return &MQTTClient{client: cli}, nil
}

func (c *MQTTClient) Publish(topic string, qos byte, retained bool, payload []byte) error {
	token := c.client.Publish(topic, qos, retained, payload)
	if ok := token.WaitTimeout(10 * time.Second); !ok {
		return fmt.Errorf("mqtt publish timeout")
	}
	return token.Error()
}

func (c *MQTTClient) IsConnected() bool {
	return c.client != nil && c.client.IsConnected()
}

func (c *MQTTClient) Close() {
	if c.client != nil && c.client.IsConnected() {
		c.client.Disconnect(250)
	}
}

// MQTTPublisher is the subset of MQTTClient the transport needs
type MQTTPublisher interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
}

// MQTTTransport publishes alerts as JSON messages. Images go to
// <topic>/snapshot with the JPEG base64-encoded.
type MQTTTransport struct {
	client MQTTPublisher
	topic  func() string
	now    func() time.Time
}

type mqttMessage struct {
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

type mqttSnapshot struct {
	Caption     string    `json:"caption"`
	Filename    string    `json:"filename"`
	SnapshotB64 string    `json:"snapshot_b64"`
	Timestamp   time.Time `json:"timestamp"`
}

// NewMQTTTransport publishes on the topic returned by topic at send time
func NewMQTTTransport(client MQTTPublisher, topic func() string) *MQTTTransport {
	return &MQTTTransport{client: client, topic: topic, now: time.Now}
}

func (t *MQTTTransport) Name() string { return "mqtt" }

func (t *MQTTTransport) SendText(ctx context.Context, message string) error {
	payload, err := json.Marshal(mqttMessage{Message: message, Timestamp: t.now()})
	if err != nil {
		return err
	}
	return t.publish(ctx, t.topic(), payload)
}

func (t *MQTTTransport) SendImage(ctx context.Context, path, caption string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read image: %w", err)
	}
	payload, err := json.Marshal(mqttSnapshot{
		Caption:     caption,
		Filename:    filepath.Base(path),
		SnapshotB64: base64.StdEncoding.EncodeToString(data),
		Timestamp:   t.now(),
	})
	if err != nil {
		return err
	}
	return t.publish(ctx, t.topic()+"/snapshot", payload)
}

func (t *MQTTTransport) publish(ctx context.Context, topic string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return t.client.Publish(topic, 1, false, payload)
}
