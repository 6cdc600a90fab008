package birdbuddy

import (
	"context"
	"time"

	"github.com/jhansche/ha-birdbuddy/internal/birds"
	"github.com/jhansche/ha-birdbuddy/internal/errors"
	"github.com/jhansche/ha-birdbuddy/internal/media"
)

// Collection is the API-side aggregate of all sightings of one species:
// last visit timestamp, visit count and a cover media. FeederName is the
// only feeder linkage the API offers here; matching collections to feeders
// by display name is a documented weak correlation.
type Collection struct {
	ID          string
	FeederName  string
	TotalVisits int
	LastVisit   time.Time
	Species     birds.Species
	Cover       media.Media
}

// RefreshCollections reloads the per-species collection summaries and
// repopulates the TTL cache.
func (c *Client) RefreshCollections(ctx context.Context) (map[string]Collection, error) {
	var resp struct {
		Me struct {
			Collections []collectionNode `json:"collections"`
		} `json:"me"`
	}
	if err := c.do(ctx, queryCollections, nil, &resp); err != nil {
		return nil, errors.New(err).
			Component("birdbuddy").
			Category(errors.CategoryCollections).
			Build()
	}

	out := make(map[string]Collection, len(resp.Me.Collections))
	for _, node := range resp.Me.Collections {
		col := node.toCollection()
		out[col.ID] = col
		c.collections.SetDefault(col.ID, col)
	}
	serviceLogger.Debug("refreshed collections", "count", len(out))
	return out, nil
}

// Collections returns the cached collection summaries without touching the
// network. Entries older than the configured TTL have been evicted.
func (c *Client) Collections() map[string]Collection {
	items := c.collections.Items()
	out := make(map[string]Collection, len(items))
	for id, item := range items {
		if col, ok := item.Object.(Collection); ok {
			out[id] = col
		}
	}
	return out
}

// CollectionMedia lists the stored media of one collection, keyed by media
// id.
func (c *Client) CollectionMedia(ctx context.Context, collectionID string) (map[string]media.Media, error) {
	var resp struct {
		Collection struct {
			Medias []mediaNode `json:"medias"`
		} `json:"collection"`
	}
	vars := map[string]any{"collectionId": collectionID}
	if err := c.do(ctx, queryCollectionMedia, vars, &resp); err != nil {
		return nil, errors.New(err).
			Component("birdbuddy").
			Category(errors.CategoryCollections).
			Context("collection_id", collectionID).
			Build()
	}

	out := make(map[string]media.Media, len(resp.Collection.Medias))
	for _, m := range resp.Collection.Medias {
		out[m.ID] = m.toMedia()
	}
	return out, nil
}
