package birdbuddy

import (
	"time"

	"github.com/jhansche/ha-birdbuddy/internal/birds"
	"github.com/jhansche/ha-birdbuddy/internal/feed"
	"github.com/jhansche/ha-birdbuddy/internal/feeder"
	"github.com/jhansche/ha-birdbuddy/internal/media"
)

// Wire DTOs for the GraphQL responses. The raw shapes stay inside this
// package: everything crossing the package boundary is converted to a typed
// domain value first.

type feederNode struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	State   string `json:"state"`
	Battery struct {
		Percentage int    `json:"percentage"`
		Charging   bool   `json:"charging"`
		State      string `json:"state"`
	} `json:"battery"`
	Signal struct {
		Value int    `json:"value"`
		State string `json:"state"`
	} `json:"signal"`
	Frequency         string `json:"frequency"`
	Firmware          string `json:"firmwareVersion"`
	FirmwareAvailable string `json:"availableFirmwareVersion"`
	OffGrid           bool   `json:"offGrid"`
	Owner             bool   `json:"owner"`
}

func (n feederNode) toFeeder() feeder.Feeder {
	return feeder.Feeder{
		ID:                n.ID,
		Name:              n.Name,
		State:             feeder.State(n.State),
		Battery:           feeder.Battery{Percentage: n.Battery.Percentage, Charging: n.Battery.Charging, State: feeder.MetricState(n.Battery.State)},
		Signal:            feeder.Signal{RSSI: n.Signal.Value, State: feeder.MetricState(n.Signal.State)},
		Frequency:         feeder.MetricState(n.Frequency),
		Firmware:          n.Firmware,
		FirmwareAvailable: n.FirmwareAvailable,
		OffGrid:           n.OffGrid,
		IsOwner:           n.Owner,
	}
}

type mediaNode struct {
	Typename     string    `json:"__typename"`
	ID           string    `json:"id"`
	ContentURL   string    `json:"contentUrl"`
	ThumbnailURL string    `json:"thumbnailUrl"`
	CreatedAt    time.Time `json:"createdAt"`
}

func (n mediaNode) toMedia() media.Media {
	return media.Media{
		ID:           n.ID,
		ContentURL:   n.ContentURL,
		ThumbnailURL: n.ThumbnailURL,
		CreatedAt:    n.CreatedAt,
		IsVideo:      n.Typename == "MediaVideo",
	}
}

type speciesNode struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (n speciesNode) toSpecies() birds.Species {
	return birds.Species{ID: n.ID, Name: n.Name}
}

type suggestionNode struct {
	Confidence int         `json:"confidence"`
	Species    speciesNode `json:"species"`
}

type sightingNode struct {
	Typename    string           `json:"__typename"`
	ID          string           `json:"id"`
	Species     speciesNode      `json:"species"`
	Suggestions []suggestionNode `json:"suggestions"`
}

type sightingReportNode struct {
	Sightings []sightingNode `json:"sightings"`
}

func (n sightingReportNode) toReport() birds.SightingReport {
	report := birds.SightingReport{}
	for _, s := range n.Sightings {
		sighting := birds.Sighting{
			ID:      s.ID,
			Type:    birds.SightingType(s.Typename),
			Species: s.Species.toSpecies(),
		}
		for _, sg := range s.Suggestions {
			sighting.Suggestions = append(sighting.Suggestions, birds.Suggestion{
				Species:    sg.Species.toSpecies(),
				Confidence: sg.Confidence,
			})
		}
		report.Sightings = append(report.Sightings, sighting)
	}
	return report
}

type feedNode struct {
	Typename  string        `json:"__typename"`
	ID        string        `json:"id"`
	CreatedAt time.Time     `json:"createdAt"`
	Species   []speciesNode `json:"species"`
	Medias    []mediaNode   `json:"medias"`
}

func (n feedNode) toNode() feed.Node {
	node := feed.Node{
		ID:        n.ID,
		Type:      feed.NodeType(n.Typename),
		CreatedAt: n.CreatedAt,
	}
	for _, s := range n.Species {
		node.Species = append(node.Species, s.toSpecies())
	}
	for _, m := range n.Medias {
		node.Medias = append(node.Medias, m.toMedia())
	}
	return node
}

type collectionNode struct {
	ID          string      `json:"id"`
	FeederName  string      `json:"feederName"`
	TotalVisits int         `json:"totalVisits"`
	LastVisit   time.Time   `json:"lastVisitedAt"`
	Species     speciesNode `json:"species"`
	CoverMedia  mediaNode   `json:"coverMedia"`
}

func (n collectionNode) toCollection() Collection {
	return Collection{
		ID:          n.ID,
		FeederName:  n.FeederName,
		TotalVisits: n.TotalVisits,
		LastVisit:   n.LastVisit,
		Species:     n.Species.toSpecies(),
		Cover:       n.CoverMedia.toMedia(),
	}
}
