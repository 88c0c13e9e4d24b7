package broker

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/juanqu261/bots-brokerwiz/internal/domain"
)

// Options configures a Client. Ephemeral (clean-session true) sessions are
// used by the ingress publisher and the DLQ-retry injector; persistent
// (clean-session false) sessions are used by workers and the DLQ
// subscriber so the broker retains undelivered QoS-1 messages across
// reconnects for a stable client id.
type Options struct {
	Host         string
	Port         int
	ClientID     string
	CleanSession bool
	Username     string
	Password     string
	KeepAlive    time.Duration

	UseTLS             bool
	CACertPath         string
	ClientCertPath     string
	ClientKeyPath      string
	InsecureSkipVerify bool

	// EnableWill publishes a retained offline LWT on StatusTopic and the
	// symmetrical retained online message once connected.
	EnableWill bool
	Topics     Topics

	// ManualAck disables paho's automatic per-message acknowledgement so
	// the caller controls exactly when a message is acked (the worker
	// runtime withholds the ack on ResourceUnavailable so the broker
	// redelivers).
	ManualAck bool
}

// Message is one decoded inbound envelope, tagged with the topic it
// arrived on so the worker runtime can extract the vendor. Ack must be
// called exactly once when ManualAck is set; it is a
// no-op otherwise, since paho already acknowledged the message on receipt.
type Message struct {
	Topic    string
	Envelope domain.Envelope
	ack      func()
}

// Ack acknowledges the message, releasing the broker's redelivery hold.
func (m Message) Ack() {
	if m.ack != nil {
		m.ack()
	}
}

// Client wraps a paho MQTT client with a publish/subscribe/LWT/ping
// contract, built with the same step-by-step slog.Info construction log
// lines a producer/consumer client elsewhere in this codebase uses.
type Client struct {
	opts   Options
	client mqtt.Client

	mu          sync.RWMutex
	connected   bool
	lastConnect time.Time
}

// NewClient constructs (but does not connect) a broker client.
func NewClient(opts Options) (*Client, error) {
	if opts.Host == "" {
		return nil, fmt.Errorf("broker client: missing host")
	}
	if opts.ClientID == "" {
		return nil, fmt.Errorf("broker client: missing client id")
	}
	if opts.KeepAlive <= 0 {
		opts.KeepAlive = 60 * time.Second
	}
	return &Client{opts: opts}, nil
}

func (c *Client) scheme() string {
	if c.opts.UseTLS {
		return "tls"
	}
	return "tcp"
}

func (c *Client) buildTLSConfig() (*tls.Config, error) {
	if !c.opts.UseTLS {
		return nil, nil
	}
	cfg := &tls.Config{InsecureSkipVerify: c.opts.InsecureSkipVerify} //nolint:gosec // operator opt-in, refused outside development at config-load time
	if c.opts.CACertPath != "" {
		pem, err := os.ReadFile(c.opts.CACertPath)
		if err != nil {
			return nil, fmt.Errorf("read CA cert: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("parse CA cert: no certificates found")
		}
		cfg.RootCAs = pool
	}
	if c.opts.ClientCertPath != "" && c.opts.ClientKeyPath != "" {
		cert, err := tls.LoadX509KeyPair(c.opts.ClientCertPath, c.opts.ClientKeyPath)
		if err != nil {
			return nil, fmt.Errorf("load client keypair: %w", err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	}
	return cfg, nil
}

// Connect opens the broker connection, publishing the LWT-backed offline
// will if EnableWill is set, then the symmetrical retained online message
// once connected.
func (c *Client) Connect(ctx context.Context) error {
	slog.Info("connecting to broker",
		slog.String("client_id", c.opts.ClientID),
		slog.Bool("clean_session", c.opts.CleanSession),
		slog.String("host", c.opts.Host))

	tlsCfg, err := c.buildTLSConfig()
	if err != nil {
		return fmt.Errorf("broker tls config: %w", err)
	}

	mopts := mqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("%s://%s:%d", c.scheme(), c.opts.Host, c.opts.Port)).
		SetClientID(c.opts.ClientID).
		SetCleanSession(c.opts.CleanSession).
		SetKeepAlive(c.opts.KeepAlive).
		SetAutoReconnect(false). // the worker runtime owns the fixed 5s reconnect loop
		SetConnectTimeout(10 * time.Second).
		SetOnConnectHandler(func(mqtt.Client) {
			c.mu.Lock()
			c.connected = true
			c.lastConnect = time.Now()
			c.mu.Unlock()
			if c.opts.EnableWill {
				c.publishStatus(context.Background(), "online")
			}
		}).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			c.mu.Lock()
			c.connected = false
			c.mu.Unlock()
			slog.Warn("broker connection lost", slog.String("client_id", c.opts.ClientID), slog.Any("error", err))
		})

	if c.opts.ManualAck {
		mopts.SetAutoAckDisabled(true)
	}

	if c.opts.Username != "" {
		mopts.SetUsername(c.opts.Username)
		mopts.SetPassword(c.opts.Password)
	}
	if tlsCfg != nil {
		mopts.SetTLSConfig(tlsCfg)
	}
	if c.opts.EnableWill {
		willPayload, _ := json.Marshal(statusPayload{ClientID: c.opts.ClientID, Status: "offline", Timestamp: time.Now().UTC()})
		mopts.SetWill(c.opts.Topics.StatusTopic(), string(willPayload), 1, true)
	}

	client := mqtt.NewClient(mopts)
	token := client.Connect()
	if !token.WaitTimeout(15 * time.Second) {
		return fmt.Errorf("broker connect: timed out")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("broker connect: %w", err)
	}

	c.client = client
	slog.Info("broker connected successfully", slog.String("client_id", c.opts.ClientID))
	return nil
}

type statusPayload struct {
	ClientID  string    `json:"client_id"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

func (c *Client) publishStatus(ctx context.Context, status string) {
	payload, _ := json.Marshal(statusPayload{ClientID: c.opts.ClientID, Status: status, Timestamp: time.Now().UTC()})
	if err := c.publishRaw(ctx, c.opts.Topics.StatusTopic(), 1, true, payload); err != nil {
		slog.Warn("failed to publish client status", slog.String("status", status), slog.Any("error", err))
	}
}

// Disconnect publishes the retained offline status (if will is enabled)
// and closes the connection.
func (c *Client) Disconnect() {
	if c.client == nil {
		return
	}
	if c.opts.EnableWill {
		c.publishStatus(context.Background(), "offline")
	}
	c.client.Disconnect(250)
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()
}

// IsConnected reports the last-known connection state.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// PublishEnvelope marshals env and publishes it to topic at the given QoS.
// Publish operations default to QoS 1; retain is case-by-case (the
// LWT/status topics retain, work queues do not).
func (c *Client) PublishEnvelope(ctx context.Context, topic string, qos byte, retained bool, env domain.Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	return c.publishRaw(ctx, topic, qos, retained, payload)
}

func (c *Client) publishRaw(ctx context.Context, topic string, qos byte, retained bool, payload []byte) error {
	if c.client == nil || !c.client.IsConnected() {
		return fmt.Errorf("broker publish: not connected")
	}
	token := c.client.Publish(topic, qos, retained, payload)
	done := make(chan struct{})
	go func() { token.Wait(); close(done) }()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return token.Error()
	}
}

// Subscribe opens a subscription on topic (ordinary, wildcard, or
// `$share/<group>/...`) and returns a cancellation-aware channel of
// decoded envelopes. Decode failures are logged and skipped, never
// propagated to terminate the stream.
func (c *Client) Subscribe(ctx context.Context, topic string, qos byte) (<-chan Message, error) {
	if c.client == nil || !c.client.IsConnected() {
		return nil, fmt.Errorf("broker subscribe: not connected")
	}
	out := make(chan Message, 64)

	handler := func(_ mqtt.Client, raw mqtt.Message) {
		var env domain.Envelope
		if err := json.Unmarshal(raw.Payload(), &env); err != nil {
			slog.Error("dropping undecodable message", slog.String("topic", raw.Topic()), slog.Any("error", err))
			// Deserialization failure has no valid envelope to retry against;
			// acknowledge so the broker doesn't redeliver it forever.
			raw.Ack()
			return
		}
		select {
		case out <- Message{Topic: raw.Topic(), Envelope: env, ack: raw.Ack}:
		case <-ctx.Done():
		}
	}

	token := c.client.Subscribe(topic, qos, handler)
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("broker subscribe: timed out on topic %s", topic)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("broker subscribe %s: %w", topic, err)
	}

	go func() {
		<-ctx.Done()
		if c.client != nil && c.client.IsConnected() {
			c.client.Unsubscribe(topic)
		}
		close(out)
	}()

	return out, nil
}

// SubscribeRaw opens a subscription on topic and returns a channel of raw
// payload bytes, bypassing the envelope JSON decode Subscribe performs.
// Used for plain-text topics such as the broker's `$SYS` stats tree.
func (c *Client) SubscribeRaw(ctx context.Context, topic string, qos byte) (<-chan []byte, error) {
	if c.client == nil || !c.client.IsConnected() {
		return nil, fmt.Errorf("broker subscribe: not connected")
	}
	out := make(chan []byte, 8)

	handler := func(_ mqtt.Client, raw mqtt.Message) {
		select {
		case out <- raw.Payload():
		case <-ctx.Done():
		}
	}

	token := c.client.Subscribe(topic, qos, handler)
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("broker subscribe: timed out on topic %s", topic)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("broker subscribe %s: %w", topic, err)
	}

	go func() {
		<-ctx.Done()
		if c.client != nil && c.client.IsConnected() {
			c.client.Unsubscribe(topic)
		}
		close(out)
	}()

	return out, nil
}

// Ping publishes a small QoS-0 heartbeat and reports whether it completed
// before timeout. A failed ping also flips the connected flag to false.
func (c *Client) Ping(ctx context.Context, timeout time.Duration) bool {
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	payload, _ := json.Marshal(heartbeatPayload{ClientID: c.opts.ClientID, Timestamp: time.Now().UTC(), Type: "ping"})
	err := c.publishRaw(pingCtx, c.opts.Topics.HeartbeatTopic(), 0, false, payload)
	if err != nil {
		c.mu.Lock()
		c.connected = false
		c.mu.Unlock()
		return false
	}
	return true
}

type heartbeatPayload struct {
	ClientID  string    `json:"client_id"`
	Timestamp time.Time `json:"timestamp"`
	Type      string    `json:"type"`
}
