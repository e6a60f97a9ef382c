// Package mqtt provides the transport between the agent and the cloud
// broker: a paho client configured for AWS IoT mutual TLS, and an in-memory
// loopback used when no certificates are present.
package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/orrn/printerd/internal/core"
)

var ErrConnect = errors.New("mqtt connect failed")

const (
	brokerPort       = 8883
	connectTimeout   = 30 * time.Second
	subscribeTimeout = 10 * time.Second
	publishTimeout   = 10 * time.Second
	defaultQoS       = 1
)

// Options configures the broker connection. All certificate paths are
// required; callers without certificates should use the Loopback instead.
type Options struct {
	Endpoint string
	ClientID string
	CertPath string
	KeyPath  string
	CAPath   string
}

// Client wraps the paho client. Subscriptions are remembered and restored
// whenever the auto-reconnect logic brings the session back.
type Client struct {
	client pahomqtt.Client
	log    *slog.Logger
	qos    byte

	mu   sync.Mutex
	subs map[string]core.MessageHandler
}

func NewClient(opts Options, log *slog.Logger) (*Client, error) {
	tlsCfg, err := newTLSConfig(opts)
	if err != nil {
		return nil, err
	}

	c := &Client{
		log:  log,
		qos:  defaultQoS,
		subs: make(map[string]core.MessageHandler),
	}

	pahoOpts := pahomqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("tls://%s:%d", opts.Endpoint, brokerPort)).
		SetClientID(opts.ClientID).
		SetTLSConfig(tlsCfg).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetMaxReconnectInterval(time.Minute).
		SetKeepAlive(30 * time.Second).
		SetConnectTimeout(connectTimeout)

	pahoOpts.OnConnect = func(pahomqtt.Client) {
		log.Info("mqtt connected", "endpoint", opts.Endpoint)
		c.resubscribe()
	}
	pahoOpts.OnConnectionLost = func(_ pahomqtt.Client, err error) {
		log.Warn("mqtt connection lost", "error", err)
	}

	c.client = pahomqtt.NewClient(pahoOpts)
	return c, nil
}

// NewClientID returns a collision-safe MQTT client id for a printer.
func NewClientID(printerID string) string {
	return fmt.Sprintf("printerd-%s-%s", printerID, uuid.NewString()[:8])
}

func (c *Client) Connect() error {
	tok := c.client.Connect()
	if !tok.WaitTimeout(connectTimeout) {
		return fmt.Errorf("%w: timed out after %s", ErrConnect, connectTimeout)
	}
	if err := tok.Error(); err != nil {
		return fmt.Errorf("%w: %v", ErrConnect, err)
	}
	return nil
}

func (c *Client) Disconnect() {
	// quiesce period lets in-flight packets finish
	c.client.Disconnect(250)
	c.log.Info("mqtt disconnected")
}

func (c *Client) Subscribe(topic string, handler core.MessageHandler) error {
	c.mu.Lock()
	c.subs[topic] = handler
	c.mu.Unlock()

	return c.subscribe(topic, handler)
}

func (c *Client) Publish(topic string, payload []byte) error {
	tok := c.client.Publish(topic, c.qos, false, payload)
	if !tok.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish to %s timed out", topic)
	}
	if err := tok.Error(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	return nil
}

func (c *Client) subscribe(topic string, handler core.MessageHandler) error {
	tok := c.client.Subscribe(topic, c.qos, func(_ pahomqtt.Client, msg pahomqtt.Message) {
		handler(msg.Topic(), msg.Payload())
	})
	if !tok.WaitTimeout(subscribeTimeout) {
		return fmt.Errorf("subscribe to %s timed out", topic)
	}
	if err := tok.Error(); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", topic, err)
	}
	return nil
}

func (c *Client) resubscribe() {
	c.mu.Lock()
	subs := make(map[string]core.MessageHandler, len(c.subs))
	for topic, handler := range c.subs {
		subs[topic] = handler
	}
	c.mu.Unlock()

	for topic, handler := range subs {
		if err := c.subscribe(topic, handler); err != nil {
			c.log.Error("failed to restore subscription", "topic", topic, "error", err)
		}
	}
}

func newTLSConfig(opts Options) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(opts.CertPath, opts.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load client certificate: %w", err)
	}

	caPEM, err := os.ReadFile(opts.CAPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA certificate: %w", err)
	}

	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caPEM) {
		return nil, fmt.Errorf("failed to parse CA certificate %s", opts.CAPath)
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		RootCAs:      pool,
		MinVersion:   tls.VersionTLS12,
	}, nil
}
