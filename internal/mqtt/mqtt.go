// Package mqtt provides an abstraction for MQTT client functionality and
// publishes feeder and visitor state for Home Assistant consumption.
package mqtt

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jhansche/ha-birdbuddy/internal/logging"
)

// Client defines the interface for MQTT client operations.
type Client interface {
	// Connect attempts to connect to the MQTT broker.
	Connect(ctx context.Context) error

	// Publish sends a message to the specified topic on the MQTT broker.
	Publish(ctx context.Context, topic, payload string) error

	// IsConnected returns true if the client is currently connected.
	IsConnected() bool

	// Disconnect closes the connection to the MQTT broker.
	Disconnect()
}

// Config holds the configuration for the MQTT client.
type Config struct {
	Broker            string
	ClientID          string
	Username          string
	Password          string
	TopicPrefix       string
	Retain            bool
	ReconnectCooldown time.Duration
	ConnectTimeout    time.Duration
	PublishTimeout    time.Duration
}

// DefaultConfig returns a Config with reasonable default values.
func DefaultConfig() Config {
	return Config{
		TopicPrefix:       "birdbuddy",
		ReconnectCooldown: 5 * time.Second,
		ConnectTimeout:    30 * time.Second,
		PublishTimeout:    10 * time.Second,
	}
}

// Package-level logger for MQTT related events.
var mqttLogger *slog.Logger

func init() {
	var err error
	mqttLogger, _, err = logging.NewFileLogger("logs/mqtt.log", "mqtt", slog.LevelInfo)
	if err != nil {
		logging.Error("Failed to initialize MQTT file logger", "error", err)
		mqttLogger = logging.Structured().With("service", "mqtt")
		if mqttLogger == nil {
			panic(fmt.Sprintf("Failed to initialize any logger for MQTT service: %v", err))
		}
	}
}
