// discovery.go: Home Assistant MQTT auto-discovery implementation.
// See: https://www.home-assistant.io/integrations/mqtt/#mqtt-discovery
package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/jhansche/ha-birdbuddy/internal/coordinator"
	"github.com/jhansche/ha-birdbuddy/internal/feeder"
)

// Sensor type constants to avoid magic strings.
const (
	SensorState     = "state"
	SensorBattery   = "battery"
	SensorSignal    = "signal"
	SensorFrequency = "frequency"
	SensorVisitor   = "recent_visitor"
	ImageVisitor    = "recent_visitor_image"
)

// deviceIDPrefix is the standard prefix for all device identifiers.
const deviceIDPrefix = "birdbuddy"

// idSanitizer replaces invalid characters in IDs with underscores.
// Home Assistant requires IDs to contain only [a-zA-Z0-9_-].
var idSanitizer = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// SanitizeID ensures the ID contains only valid characters for MQTT topics
// and HA entity IDs.
func SanitizeID(id string) string {
	sanitized := idSanitizer.ReplaceAllString(id, "_")
	for strings.Contains(sanitized, "__") {
		sanitized = strings.ReplaceAll(sanitized, "__", "_")
	}
	sanitized = strings.Trim(sanitized, "_")
	if sanitized == "" {
		sanitized = "unknown"
	}
	return sanitized
}

// DiscoveryPayload represents a Home Assistant MQTT discovery message.
type DiscoveryPayload struct {
	Name              string          `json:"name"`
	UniqueID          string          `json:"unique_id"`
	StateTopic        string          `json:"state_topic,omitempty"`
	URLTopic          string          `json:"url_topic,omitempty"`
	ValueTemplate     string          `json:"value_template,omitempty"`
	URLTemplate       string          `json:"url_template,omitempty"`
	UnitOfMeasurement string          `json:"unit_of_measurement,omitempty"`
	DeviceClass       string          `json:"device_class,omitempty"`
	StateClass        string          `json:"state_class,omitempty"`
	Icon              string          `json:"icon,omitempty"`
	EntityCategory    string          `json:"entity_category,omitempty"`
	Device            DiscoveryDevice `json:"device"`
}

// DiscoveryDevice represents the device information in a discovery payload.
type DiscoveryDevice struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer"`
	Model        string   `json:"model"`
	SWVersion    string   `json:"sw_version,omitempty"`
}

// DiscoveryConfig holds configuration for generating discovery payloads.
type DiscoveryConfig struct {
	DiscoveryPrefix string // HA discovery topic prefix (default: homeassistant)
	BaseTopic       string // Base MQTT topic for state messages
	NodeID          string // Node identifier, typically main.name from config
	Version         string // Software version
}

// DiscoveryPublisher publishes Home Assistant discovery messages.
type DiscoveryPublisher struct {
	client Client
	config DiscoveryConfig
}

// NewDiscoveryPublisher creates a new discovery publisher.
func NewDiscoveryPublisher(client Client, config *DiscoveryConfig) *DiscoveryPublisher {
	return &DiscoveryPublisher{client: client, config: *config}
}

// PublishDiscovery publishes discovery configs for every feeder on every
// registered coordinator. One feeder failing does not stop the others.
func (p *DiscoveryPublisher) PublishDiscovery(ctx context.Context, registry *coordinator.Registry) error {
	var firstErr error
	count := 0
	for _, coord := range registry.All() {
		for _, f := range coord.Feeders() {
			count++
			if err := p.publishFeederDiscovery(ctx, f); err != nil {
				mqttLogger.Error("failed to publish feeder discovery",
					"feeder_id", f.ID, "error", err)
				if firstErr == nil {
					firstErr = err
				}
			}
		}
	}
	if firstErr != nil {
		return fmt.Errorf("failed to publish discovery for one or more feeders: %w", firstErr)
	}
	mqttLogger.Info("Home Assistant discovery messages published", "feeders", count)
	return nil
}

func (p *DiscoveryPublisher) publishFeederDiscovery(ctx context.Context, f feeder.Feeder) error {
	feederID := SanitizeID(f.ID)
	deviceID := fmt.Sprintf("%s_%s_%s", deviceIDPrefix, SanitizeID(p.config.NodeID), feederID)
	stateTopic := fmt.Sprintf("%s/%s/state", p.config.BaseTopic, feederID)
	visitorTopic := fmt.Sprintf("%s/%s/visitor", p.config.BaseTopic, feederID)

	device := DiscoveryDevice{
		Identifiers:  []string{deviceID},
		Name:         f.Name,
		Manufacturer: "Bird Buddy",
		Model:        "Smart Feeder",
		SWVersion:    f.Firmware,
	}

	sensors := []struct {
		sensorType string
		component  string
		payload    DiscoveryPayload
	}{
		{SensorState, "sensor", DiscoveryPayload{
			Name:          "State",
			StateTopic:    stateTopic,
			ValueTemplate: "{{ value_json.state }}",
			Icon:          "mdi:bird",
		}},
		{SensorBattery, "sensor", DiscoveryPayload{
			Name:              "Battery",
			StateTopic:        stateTopic,
			ValueTemplate:     "{{ value_json.battery_percentage }}",
			UnitOfMeasurement: "%",
			DeviceClass:       "battery",
			StateClass:        "measurement",
		}},
		{SensorSignal, "sensor", DiscoveryPayload{
			Name:              "Signal strength",
			StateTopic:        stateTopic,
			ValueTemplate:     "{{ value_json.signal_rssi }}",
			UnitOfMeasurement: "dBm",
			DeviceClass:       "signal_strength",
			StateClass:        "measurement",
			EntityCategory:    "diagnostic",
		}},
		{SensorFrequency, "sensor", DiscoveryPayload{
			Name:           "Postcard frequency",
			StateTopic:     stateTopic,
			ValueTemplate:  "{{ value_json.frequency }}",
			EntityCategory: "diagnostic",
			Icon:           "mdi:camera-timer",
		}},
		{SensorVisitor, "sensor", DiscoveryPayload{
			Name:          "Recent visitor",
			StateTopic:    visitorTopic,
			ValueTemplate: "{{ value_json.species_name | default('') }}",
			Icon:          "mdi:bird",
		}},
		{ImageVisitor, "image", DiscoveryPayload{
			Name:        "Recent visitor image",
			URLTopic:    visitorTopic,
			URLTemplate: "{{ value_json.media_url | default('') }}",
		}},
	}

	for _, s := range sensors {
		payload := s.payload
		payload.UniqueID = fmt.Sprintf("%s_%s", deviceID, s.sensorType)
		payload.Device = device

		topic := fmt.Sprintf("%s/%s/%s/%s/config",
			p.config.DiscoveryPrefix, s.component, deviceID, s.sensorType)
		if err := p.publishPayload(ctx, topic, &payload); err != nil {
			return err
		}
	}
	return nil
}

func (p *DiscoveryPublisher) publishPayload(ctx context.Context, topic string, payload *DiscoveryPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal discovery payload: %w", err)
	}
	return p.client.Publish(ctx, topic, string(data))
}
