// Package birds models species identification and postcard sighting reports.
package birds

import (
	"github.com/jhansche/ha-birdbuddy/internal/media"
)

// SightingType mirrors the GraphQL __typename of a sighting report entry.
type SightingType string

const (
	SightingRecognized SightingType = "SightingRecognizedBird"
	SightingUnlocked   SightingType = "SightingRecognizedBirdUnlocked"
	SightingCantDecide SightingType = "SightingCantDecideWhichBird"
	SightingMystery    SightingType = "SightingMysteryVisitor"
	SightingNoBird     SightingType = "SightingNoBird"
)

// IsRecognized reports whether the sighting matched a species with high
// confidence, including the unlocked case.
func (t SightingType) IsRecognized() bool {
	return t == SightingRecognized || t == SightingUnlocked
}

// IsUnlocked reports whether the sighting added a new species to the user's
// collection.
func (t SightingType) IsUnlocked() bool {
	return t == SightingUnlocked
}

// Species identifies one bird species.
type Species struct {
	ID   string
	Name string
}

// Suggestion is one ranked candidate for an unrecognized sighting.
type Suggestion struct {
	Species    Species
	Confidence int // 0-100
}

// Sighting is a single entry of a sighting report: one candidate species (or
// a list of ranked suggestions) with its classification.
type Sighting struct {
	ID          string
	Type        SightingType
	Species     Species
	Suggestions []Suggestion
}

// SightingReport bundles all candidates detected in one postcard.
type SightingReport struct {
	Sightings []Sighting
}

// PostcardSighting is the full sighting payload attached to a postcard:
// the owning feeder, the report and the captured media.
type PostcardSighting struct {
	FeederID   string
	FeederName string
	Report     SightingReport
	Medias     []media.Media
}

// Resolve picks the single species to report for this sighting, applying the
// fixed classification priority:
//
//  1. an unlocked species, newly added to the collection
//  2. a recognized species
//  3. the highest-ranked suggestion of an undecided sighting
//
// When none apply the second return value is false: reporting no species is
// preferred over fabricating an "unknown" label.
func (r SightingReport) Resolve() (Species, bool) {
	for i := range r.Sightings {
		if r.Sightings[i].Type.IsUnlocked() {
			return r.Sightings[i].Species, true
		}
	}
	for i := range r.Sightings {
		if r.Sightings[i].Type.IsRecognized() {
			return r.Sightings[i].Species, true
		}
	}
	for i := range r.Sightings {
		if len(r.Sightings[i].Suggestions) > 0 {
			return r.Sightings[i].Suggestions[0].Species, true
		}
	}
	return Species{}, false
}

// HighestConfidence returns the best suggestion confidence in the report,
// used by the best-guess collect strategy.
func (r SightingReport) HighestConfidence() int {
	best := 0
	for i := range r.Sightings {
		for _, s := range r.Sightings[i].Suggestions {
			if s.Confidence > best {
				best = s.Confidence
			}
		}
	}
	return best
}
