package notification

import (
	"context"
	"fmt"

	"github.com/jhansche/ha-birdbuddy/internal/events"
)

// Dispatcher watches postcard sightings on the event bus and pushes a
// notification when a new species is unlocked.
type Dispatcher struct {
	notifier Notifier
	bus      *events.Bus
	token    events.Token
}

// NewDispatcher creates a dispatcher. Call Start to begin watching.
func NewDispatcher(notifier Notifier, bus *events.Bus) *Dispatcher {
	return &Dispatcher{notifier: notifier, bus: bus}
}

// Start subscribes to postcard sighting events.
func (d *Dispatcher) Start() {
	d.token = d.bus.Subscribe(events.TopicNewPostcardSighting, d.onPostcard)
}

// Stop detaches from the event bus.
func (d *Dispatcher) Stop() {
	d.bus.Unsubscribe(d.token)
}

func (d *Dispatcher) onPostcard(payload any) {
	event, ok := payload.(events.PostcardEvent)
	if !ok {
		return
	}

	for i := range event.Sighting.Report.Sightings {
		s := &event.Sighting.Report.Sightings[i]
		if !s.Type.IsUnlocked() {
			continue
		}

		n := &Notification{
			Title: "New species unlocked!",
			Message: fmt.Sprintf("A %s visited %s for the first time.",
				s.Species.Name, event.Sighting.FeederName),
		}
		if err := d.notifier.Send(context.Background(), n); err != nil {
			notificationLogger.Warn("failed to send notification",
				"species", s.Species.Name, "error", err)
			continue
		}
		notificationLogger.Info("notification sent",
			"species", s.Species.Name, "feeder", event.Sighting.FeederName)
	}
}
