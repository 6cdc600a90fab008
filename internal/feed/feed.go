// Package feed models the incrementally advancing activity feed returned by
// the Bird Buddy cloud API and the filtering rules that attribute feed items
// to physical feeders.
package feed

import (
	"strings"
	"time"

	"github.com/jhansche/ha-birdbuddy/internal/birds"
	"github.com/jhansche/ha-birdbuddy/internal/media"
)

// NodeType mirrors the GraphQL __typename of a feed item.
type NodeType string

const (
	NodeNewPostcard       NodeType = "FeedItemNewPostcard"
	NodeSpeciesSighting   NodeType = "FeedItemSpeciesSighting"
	NodeSpeciesUnlocked   NodeType = "FeedItemSpeciesUnlocked"
	NodeCollectedPostcard NodeType = "FeedItemCollectedPostcard"
)

// VisitorNodeTypes are the feed item types relevant to recent-visitor
// resolution. NodeNewPostcard is excluded here: postcards flow through the
// push pipeline instead.
var VisitorNodeTypes = []NodeType{
	NodeSpeciesSighting,
	NodeSpeciesUnlocked,
	NodeCollectedPostcard,
}

// Node is one activity feed item.
type Node struct {
	ID        string
	Type      NodeType
	CreatedAt time.Time
	Species   []birds.Species
	Medias    []media.Media
}

// Feed is a one-shot page of feed items, already ordered by the API.
type Feed []Node

// FilterTypes returns the subset of items matching any of the given types.
func (f Feed) FilterTypes(types ...NodeType) Feed {
	var out Feed
	for i := range f {
		for _, t := range types {
			if f[i].Type == t {
				out = append(out, f[i])
				break
			}
		}
	}
	return out
}

// ForFeeder returns the items attributable to the given feeder. The API has
// no first-class media/feeder linkage, so an item belongs to a feeder when
// one of its image thumbnails carries the feeder id in its URL. Items without
// species data are dropped, and each kept item's media list is reduced to the
// matching images, best first.
func (f Feed) ForFeeder(feederID string) Feed {
	if feederID == "" {
		return nil
	}
	var out Feed
	for i := range f {
		if len(f[i].Species) == 0 {
			continue
		}
		var matched []media.Media
		for _, m := range f[i].Medias {
			if !m.IsVideo && strings.Contains(m.ThumbnailURL, feederID) {
				matched = append(matched, m)
			}
		}
		if len(matched) == 0 {
			continue
		}
		node := f[i]
		node.Medias = matched
		out = append(out, node)
	}
	return out
}

// Latest returns the item with the maximum CreatedAt. The second return
// value is false when the feed is empty.
func (f Feed) Latest() (Node, bool) {
	if len(f) == 0 {
		return Node{}, false
	}
	latest := f[0]
	for i := 1; i < len(f); i++ {
		if f[i].CreatedAt.After(latest.CreatedAt) {
			latest = f[i]
		}
	}
	return latest, true
}

// NewerThan returns the items created strictly after the cursor.
func (f Feed) NewerThan(cursor time.Time) Feed {
	var out Feed
	for i := range f {
		if f[i].CreatedAt.After(cursor) {
			out = append(out, f[i])
		}
	}
	return out
}
