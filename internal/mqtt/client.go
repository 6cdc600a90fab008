package mqtt

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/jhansche/ha-birdbuddy/internal/conf"
	"github.com/jhansche/ha-birdbuddy/internal/errors"
	"github.com/jhansche/ha-birdbuddy/internal/observability"
)

// client implements the Client interface over the paho library.
type client struct {
	config          Config
	internalClient  pahomqtt.Client
	lastConnAttempt time.Time
	mu              sync.Mutex
	metrics         *observability.Metrics
}

// NewClient creates a new MQTT client from the application settings.
func NewClient(settings *conf.Settings, metrics *observability.Metrics) Client {
	cfg := DefaultConfig()
	cfg.Broker = settings.MQTT.Broker
	// A random suffix keeps a second instance from kicking this one off
	// the broker: duplicate client ids are disconnected by most brokers.
	cfg.ClientID = settings.Main.Name + "-" + uuid.NewString()[:8]
	cfg.Username = settings.MQTT.Username
	cfg.Password = settings.MQTT.Password
	cfg.TopicPrefix = settings.MQTT.TopicPrefix
	cfg.Retain = settings.MQTT.Retain
	return &client{config: cfg, metrics: metrics}
}

// Connect establishes a connection to the broker. The hostname is resolved
// first so DNS problems surface as such rather than as opaque timeouts.
func (c *client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if time.Since(c.lastConnAttempt) < c.config.ReconnectCooldown {
		return errors.Newf("connection attempt too recent, last attempt was %v ago", time.Since(c.lastConnAttempt)).
			Component("mqtt").
			Category(errors.CategoryMQTTConnection).
			Build()
	}
	c.lastConnAttempt = time.Now()

	u, err := url.Parse(c.config.Broker)
	if err != nil {
		return errors.New(err).
			Component("mqtt").
			Category(errors.CategoryConfiguration).
			Context("broker", c.config.Broker).
			Build()
	}

	host := u.Hostname()
	if net.ParseIP(host) == nil {
		if _, err := net.DefaultResolver.LookupHost(ctx, host); err != nil {
			return errors.New(fmt.Errorf("failed to resolve hostname %s: %w", host, err)).
				Component("mqtt").
				Category(errors.CategoryMQTTConnection).
				Build()
		}
	}

	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(c.config.Broker)
	opts.SetClientID(c.config.ClientID)
	opts.SetUsername(c.config.Username)
	opts.SetPassword(c.config.Password)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetOnConnectHandler(c.onConnect)
	opts.SetConnectionLostHandler(c.onConnectionLost)

	c.internalClient = pahomqtt.NewClient(opts)

	token := c.internalClient.Connect()
	if !token.WaitTimeout(c.config.ConnectTimeout) {
		return errors.Newf("connection timeout").
			Component("mqtt").
			Category(errors.CategoryMQTTConnection).
			Context("broker", c.config.Broker).
			Build()
	}
	if err := token.Error(); err != nil {
		return errors.New(err).
			Component("mqtt").
			Category(errors.CategoryMQTTConnection).
			Context("broker", c.config.Broker).
			Build()
	}
	return nil
}

// Publish sends a message to the specified topic. Retention follows the
// configured setting so Home Assistant picks state up after restarts.
func (c *client) Publish(ctx context.Context, topic, payload string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.isConnectedLocked() {
		if c.metrics != nil {
			c.metrics.MQTTErrors.Inc()
		}
		return errors.Newf("not connected to MQTT broker").
			Component("mqtt").
			Category(errors.CategoryMQTTPublish).
			Context("topic", topic).
			Build()
	}

	token := c.internalClient.Publish(topic, 0, c.config.Retain, payload)
	if !token.WaitTimeout(c.config.PublishTimeout) {
		if c.metrics != nil {
			c.metrics.MQTTErrors.Inc()
		}
		return errors.Newf("publish timeout").
			Component("mqtt").
			Category(errors.CategoryMQTTPublish).
			Context("topic", topic).
			Build()
	}
	if err := token.Error(); err != nil {
		if c.metrics != nil {
			c.metrics.MQTTErrors.Inc()
		}
		return errors.New(err).
			Component("mqtt").
			Category(errors.CategoryMQTTPublish).
			Context("topic", topic).
			Build()
	}

	if c.metrics != nil {
		c.metrics.MQTTPublishes.Inc()
	}
	return nil
}

// IsConnected returns true if the client is currently connected.
func (c *client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isConnectedLocked()
}

func (c *client) isConnectedLocked() bool {
	return c.internalClient != nil && c.internalClient.IsConnected()
}

// Disconnect closes the connection to the MQTT broker.
func (c *client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.internalClient != nil && c.internalClient.IsConnected() {
		c.internalClient.Disconnect(250)
	}
}

func (c *client) onConnect(pahomqtt.Client) {
	mqttLogger.Info("connected to MQTT broker", "broker", c.config.Broker)
}

func (c *client) onConnectionLost(_ pahomqtt.Client, err error) {
	mqttLogger.Warn("lost connection to MQTT broker", "broker", c.config.Broker, "error", err)
}
