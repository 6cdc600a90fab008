package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jhansche/ha-birdbuddy/internal/coordinator"
	"github.com/jhansche/ha-birdbuddy/internal/events"
	"github.com/jhansche/ha-birdbuddy/internal/feeder"
	"github.com/jhansche/ha-birdbuddy/internal/visitors"
)

// feederStatePayload is the JSON published to <prefix>/<feeder_id>/state.
type feederStatePayload struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	State             string `json:"state"`
	BatteryPercentage int    `json:"battery_percentage"`
	BatteryCharging   bool   `json:"battery_charging"`
	SignalRSSI        int    `json:"signal_rssi"`
	Frequency         string `json:"frequency"`
	Firmware          string `json:"firmware"`
	UpdateAvailable   bool   `json:"update_available"`
	OffGrid           bool   `json:"off_grid"`
}

// visitorPayload is the JSON published to <prefix>/<feeder_id>/visitor.
// Media fields are blank when the signed URLs have expired.
type visitorPayload struct {
	FeederID    string     `json:"feeder_id"`
	SpeciesID   string     `json:"species_id,omitempty"`
	SpeciesName string     `json:"species_name,omitempty"`
	MediaURL    string     `json:"media_url,omitempty"`
	IsVideo     bool       `json:"is_video,omitempty"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
}

// Publisher forwards feeder and visitor state to the MQTT broker. It holds
// a standing observer on each feeder's visitor engine, which also keeps the
// engines bootstrapped and following postcard events.
type Publisher struct {
	client      Client
	bus         *events.Bus
	registry    *coordinator.Registry
	topicPrefix string

	busToken    events.Token
	unregisters []func()
}

// NewPublisher creates a publisher. Call Start to begin forwarding.
func NewPublisher(client Client, bus *events.Bus, registry *coordinator.Registry, topicPrefix string) *Publisher {
	return &Publisher{
		client:      client,
		bus:         bus,
		registry:    registry,
		topicPrefix: topicPrefix,
	}
}

// Start publishes the current state of every known feeder, attaches visitor
// observers and subscribes to feeder update events.
func (p *Publisher) Start(ctx context.Context) {
	for _, coord := range p.registry.All() {
		for _, f := range coord.Feeders() {
			p.publishFeeder(ctx, f)

			engine, ok := coord.Visitors(f.ID)
			if !ok {
				continue
			}
			unregister := engine.RegisterCallback(func(st visitors.State) {
				p.publishVisitor(context.Background(), st)
			})
			p.unregisters = append(p.unregisters, unregister)
		}
	}

	p.busToken = p.bus.Subscribe(events.TopicFeederUpdated, func(payload any) {
		event, ok := payload.(events.FeederEvent)
		if !ok {
			return
		}
		p.publishFeeder(context.Background(), event.Feeder)
	})
}

// Stop detaches all observers and the bus subscription.
func (p *Publisher) Stop() {
	p.bus.Unsubscribe(p.busToken)
	for _, unregister := range p.unregisters {
		unregister()
	}
	p.unregisters = nil
}

func (p *Publisher) publishFeeder(ctx context.Context, f feeder.Feeder) {
	payload := feederStatePayload{
		ID:                f.ID,
		Name:              f.Name,
		State:             string(f.State),
		BatteryPercentage: f.Battery.Percentage,
		BatteryCharging:   f.Battery.Charging,
		SignalRSSI:        f.Signal.RSSI,
		Frequency:         string(f.Frequency),
		Firmware:          f.Firmware,
		UpdateAvailable:   f.UpdateAvailable(),
		OffGrid:           f.OffGrid,
	}
	p.publishJSON(ctx, p.feederTopic(f.ID, "state"), payload)
}

func (p *Publisher) publishVisitor(ctx context.Context, st visitors.State) {
	payload := visitorPayload{FeederID: st.FeederID}
	if st.Species != nil {
		payload.SpeciesID = st.Species.ID
		payload.SpeciesName = st.Species.Name
	}
	if st.Media != nil {
		payload.MediaURL = st.Media.BestURL()
		payload.IsVideo = st.Media.IsVideo
	}
	if !st.UpdatedAt.IsZero() {
		updated := st.UpdatedAt
		payload.UpdatedAt = &updated
	}
	p.publishJSON(ctx, p.feederTopic(st.FeederID, "visitor"), payload)
}

func (p *Publisher) publishJSON(ctx context.Context, topic string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		mqttLogger.Error("failed to marshal MQTT payload", "topic", topic, "error", err)
		return
	}
	if err := p.client.Publish(ctx, topic, string(data)); err != nil {
		mqttLogger.Warn("failed to publish MQTT message", "topic", topic, "error", err)
	}
}

func (p *Publisher) feederTopic(feederID, suffix string) string {
	return fmt.Sprintf("%s/%s/%s", p.topicPrefix, SanitizeID(feederID), suffix)
}
