package events

import (
	"github.com/jhansche/ha-birdbuddy/internal/birds"
	"github.com/jhansche/ha-birdbuddy/internal/feeder"
)

// Topics published on the bus.
const (
	// TopicNewPostcardSighting carries a PostcardEvent whenever the feed
	// poller converts a new postcard into sighting data.
	TopicNewPostcardSighting = "birdbuddy/new_postcard_sighting"

	// TopicFeederUpdated carries a FeederEvent after every poll cycle that
	// changed a feeder's device state.
	TopicFeederUpdated = "birdbuddy/feeder_updated"
)

// PostcardEvent is the payload for TopicNewPostcardSighting. Subscribers
// filter on Sighting.FeederID before acting.
type PostcardEvent struct {
	PostcardID string
	Sighting   birds.PostcardSighting
}

// FeederEvent is the payload for TopicFeederUpdated.
type FeederEvent struct {
	Feeder feeder.Feeder
}
