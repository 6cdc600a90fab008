package mqtt

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhansche/ha-birdbuddy/internal/birds"
	"github.com/jhansche/ha-birdbuddy/internal/coordinator"
	"github.com/jhansche/ha-birdbuddy/internal/events"
	"github.com/jhansche/ha-birdbuddy/internal/feeder"
	"github.com/jhansche/ha-birdbuddy/internal/media"
	"github.com/jhansche/ha-birdbuddy/internal/visitors"
)

type publishedMessage struct {
	Topic   string
	Payload string
}

type mockClient struct {
	mu       sync.Mutex
	messages []publishedMessage
}

func (m *mockClient) Connect(context.Context) error { return nil }
func (m *mockClient) IsConnected() bool             { return true }
func (m *mockClient) Disconnect()                   {}

func (m *mockClient) Publish(_ context.Context, topic, payload string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, publishedMessage{Topic: topic, Payload: payload})
	return nil
}

func (m *mockClient) Messages() []publishedMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]publishedMessage, len(m.messages))
	copy(out, m.messages)
	return out
}

func TestSanitizeID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"feeder-a", "feeder-a"},
		{"Garden Feeder", "Garden_Feeder"},
		{"a:b/c.d", "a_b_c_d"},
		{"__trimmed__", "trimmed"},
		{"a   b", "a_b"},
		{"", "unknown"},
		{"///", "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SanitizeID(tt.in), "input %q", tt.in)
	}
}

func TestPublishFeederState(t *testing.T) {
	t.Parallel()

	client := &mockClient{}
	p := NewPublisher(client, events.NewBus(), coordinator.NewRegistry(), "birdbuddy")

	p.publishFeeder(context.Background(), feeder.Feeder{
		ID:    "feeder-a",
		Name:  "Garden Feeder",
		State: feeder.StateOnline,
		Battery: feeder.Battery{
			Percentage: 80,
			State:      feeder.MetricHigh,
		},
		Signal:    feeder.Signal{RSSI: -55, State: feeder.MetricMedium},
		Frequency: feeder.MetricMedium,
		Firmware:  "1.2.3",
	})

	msgs := client.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "birdbuddy/feeder-a/state", msgs[0].Topic)

	var payload feederStatePayload
	require.NoError(t, json.Unmarshal([]byte(msgs[0].Payload), &payload))
	assert.Equal(t, "Garden Feeder", payload.Name)
	assert.Equal(t, "ONLINE", payload.State)
	assert.Equal(t, 80, payload.BatteryPercentage)
	assert.Equal(t, -55, payload.SignalRSSI)
}

func TestPublishVisitorOmitsAbsentMedia(t *testing.T) {
	t.Parallel()

	client := &mockClient{}
	p := NewPublisher(client, events.NewBus(), coordinator.NewRegistry(), "birdbuddy")

	updated := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	p.publishVisitor(context.Background(), visitors.State{
		FeederID:  "feeder-a",
		Species:   &birds.Species{ID: "sp-1", Name: "Blue Jay"},
		UpdatedAt: updated,
	})

	msgs := client.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "birdbuddy/feeder-a/visitor", msgs[0].Topic)
	assert.NotContains(t, msgs[0].Payload, "media_url")
	assert.Contains(t, msgs[0].Payload, "Blue Jay")

	p.publishVisitor(context.Background(), visitors.State{
		FeederID: "feeder-a",
		Species:  &birds.Species{ID: "sp-1", Name: "Blue Jay"},
		Media:    &media.Media{ID: "m-1", ContentURL: "https://cdn.example.com/m1.jpg"},
	})

	msgs = client.Messages()
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[1].Payload, "https://cdn.example.com/m1.jpg")
}

func TestPublisherForwardsFeederUpdates(t *testing.T) {
	t.Parallel()

	client := &mockClient{}
	bus := events.NewBus()
	p := NewPublisher(client, bus, coordinator.NewRegistry(), "birdbuddy")

	p.Start(context.Background())
	defer p.Stop()

	bus.Publish(events.TopicFeederUpdated, events.FeederEvent{
		Feeder: feeder.Feeder{ID: "feeder-a", Name: "Garden Feeder", State: feeder.StateDeepSleep},
	})

	msgs := client.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "birdbuddy/feeder-a/state", msgs[0].Topic)
	assert.Contains(t, msgs[0].Payload, "DEEP_SLEEP")

	p.Stop()
	bus.Publish(events.TopicFeederUpdated, events.FeederEvent{
		Feeder: feeder.Feeder{ID: "feeder-a"},
	})
	assert.Len(t, client.Messages(), 1, "stopped publisher no longer forwards")
}

func TestDiscoveryPayloads(t *testing.T) {
	t.Parallel()

	client := &mockClient{}
	dp := NewDiscoveryPublisher(client, &DiscoveryConfig{
		DiscoveryPrefix: "homeassistant",
		BaseTopic:       "birdbuddy",
		NodeID:          "birdbuddy",
	})

	err := dp.publishFeederDiscovery(context.Background(), feeder.Feeder{
		ID:       "feeder-a",
		Name:     "Garden Feeder",
		Firmware: "1.2.3",
	})
	require.NoError(t, err)

	msgs := client.Messages()
	require.Len(t, msgs, 6)

	topics := make(map[string]bool, len(msgs))
	for _, m := range msgs {
		topics[m.Topic] = true

		var payload DiscoveryPayload
		require.NoError(t, json.Unmarshal([]byte(m.Payload), &payload))
		assert.NotEmpty(t, payload.UniqueID)
		require.Len(t, payload.Device.Identifiers, 1)
		assert.Equal(t, "birdbuddy_birdbuddy_feeder-a", payload.Device.Identifiers[0])
		assert.Equal(t, "Garden Feeder", payload.Device.Name)
		assert.Equal(t, "1.2.3", payload.Device.SWVersion)
	}

	assert.True(t, topics["homeassistant/sensor/birdbuddy_birdbuddy_feeder-a/battery/config"])
	assert.True(t, topics["homeassistant/sensor/birdbuddy_birdbuddy_feeder-a/recent_visitor/config"])
	assert.True(t, topics["homeassistant/image/birdbuddy_birdbuddy_feeder-a/recent_visitor_image/config"])
}
