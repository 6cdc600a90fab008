// Package coordinator drives the polling loop against the Bird Buddy cloud:
// it refreshes device state, pulls the incremental activity feed, converts
// new postcards into sighting events on the bus, and owns the per-feeder
// visitor resolution engines.
package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/jhansche/ha-birdbuddy/internal/birdbuddy"
	"github.com/jhansche/ha-birdbuddy/internal/birds"
	"github.com/jhansche/ha-birdbuddy/internal/datastore"
	"github.com/jhansche/ha-birdbuddy/internal/events"
	"github.com/jhansche/ha-birdbuddy/internal/feed"
	"github.com/jhansche/ha-birdbuddy/internal/feeder"
	"github.com/jhansche/ha-birdbuddy/internal/logging"
	"github.com/jhansche/ha-birdbuddy/internal/media"
	"github.com/jhansche/ha-birdbuddy/internal/observability"
	"github.com/jhansche/ha-birdbuddy/internal/visitors"
)

// maxCachedSightings bounds the postcard sighting cache used by the collect
// service; postcards older than the window require a fresh conversion.
const maxCachedSightings = 50

// Coordinator coordinates fetching Bird Buddy data for one account.
type Coordinator struct {
	client       birdbuddy.Interface
	bus          *events.Bus
	store        datastore.Interface
	metrics      *observability.Metrics
	logger       *slog.Logger
	pollInterval time.Duration

	mu       sync.RWMutex
	feeders  map[string]feeder.Feeder
	engines  map[string]*visitors.RecentVisitors
	observed map[string]func()
	recent   map[string]birds.PostcardSighting
	recentID []string

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a coordinator. Store and metrics may be nil.
func New(client birdbuddy.Interface, bus *events.Bus, store datastore.Interface, metrics *observability.Metrics, pollInterval time.Duration) *Coordinator {
	return &Coordinator{
		client:       client,
		bus:          bus,
		store:        store,
		metrics:      metrics,
		logger:       logging.ForService("coordinator"),
		pollInterval: pollInterval,
		feeders:      make(map[string]feeder.Feeder),
		engines:      make(map[string]*visitors.RecentVisitors),
		observed:     make(map[string]func()),
		recent:       make(map[string]birds.PostcardSighting),
	}
}

// Start restores persisted state, performs the first refresh and launches
// the polling loop. The first refresh failing is fatal so misconfiguration
// surfaces immediately instead of silently polling into the void.
func (c *Coordinator) Start(ctx context.Context) error {
	if c.store != nil {
		cursor, err := c.store.GetFeedCursor()
		switch {
		case err != nil:
			c.logger.Warn("failed to restore feed cursor", "error", err)
		case !cursor.IsZero():
			c.client.SetFeedCursor(cursor)
			c.logger.Info("restored feed cursor", "last_seen", cursor)
		}
	}

	if err := c.Refresh(ctx); err != nil {
		return fmt.Errorf("initial refresh failed: %w", err)
	}
	if len(c.Feeders()) == 0 {
		return fmt.Errorf("no feeders found on account")
	}

	c.restoreSnapshots()

	loopCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.wg.Add(1)
	go c.pollLoop(loopCtx)

	c.logger.Info("coordinator started", "poll_interval", c.pollInterval, "feeders", len(c.Feeders()))
	return nil
}

// Stop cancels the polling loop, releases standing observer registrations
// and waits for background work to exit.
func (c *Coordinator) Stop() {
	if c.cancel != nil {
		c.cancel()
	}

	c.mu.Lock()
	unregisters := make([]func(), 0, len(c.observed))
	for id, unregister := range c.observed {
		unregisters = append(unregisters, unregister)
		delete(c.observed, id)
	}
	c.mu.Unlock()
	for _, unregister := range unregisters {
		unregister()
	}

	c.wg.Wait()
}

func (c *Coordinator) pollLoop(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Refresh(ctx); err != nil {
				if c.metrics != nil {
					c.metrics.PollErrors.Inc()
				}
				// State is preserved; observers keep last known good data.
				c.logger.Warn("poll cycle failed", "error", err)
			}
		}
	}
}

// Refresh runs one poll cycle: device refresh, incremental feed fetch, feed
// processing, feeder merge and cursor persistence.
func (c *Coordinator) Refresh(ctx context.Context) error {
	if err := c.client.Refresh(ctx); err != nil {
		return err
	}

	fresh, err := c.client.RefreshFeed(ctx)
	if err != nil {
		return err
	}

	c.processFeed(ctx, fresh)
	c.mergeFeeders()

	if c.store != nil {
		if err := c.store.SaveFeedCursor(c.client.FeedCursor()); err != nil {
			c.logger.Warn("failed to persist feed cursor", "error", err)
		}
	}

	if c.metrics != nil {
		c.metrics.PollRuns.Inc()
		c.metrics.FeedItems.Add(float64(len(fresh)))
	}
	return nil
}

// processFeed converts new postcards into sighting events. Conversion is
// skipped entirely when nothing subscribes to the topic: fetching sighting
// data nobody consumes is wasted API traffic.
func (c *Coordinator) processFeed(ctx context.Context, items feed.Feed) {
	postcards := items.FilterTypes(feed.NodeNewPostcard)
	if len(postcards) == 0 {
		return
	}
	if !c.bus.HasSubscribers(events.TopicNewPostcardSighting) {
		c.logger.Debug("no event subscribers, skipping postcard conversion", "postcards", len(postcards))
		return
	}

	for i := range postcards {
		sighting, err := c.client.SightingFromPostcard(ctx, postcards[i].ID)
		if err != nil {
			c.logger.Warn("failed to convert postcard to sighting",
				"postcard_id", postcards[i].ID, "error", err)
			continue
		}
		c.cacheSighting(postcards[i].ID, sighting)
		c.bus.Publish(events.TopicNewPostcardSighting, events.PostcardEvent{
			PostcardID: postcards[i].ID,
			Sighting:   sighting,
		})
		if c.metrics != nil {
			c.metrics.PostcardEvents.Inc()
		}
	}
}

// cacheSighting keeps recent conversions so a later collect call does not
// need to hit the API again.
func (c *Coordinator) cacheSighting(postcardID string, sighting birds.PostcardSighting) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.recent[postcardID]; !exists {
		c.recentID = append(c.recentID, postcardID)
	}
	c.recent[postcardID] = sighting
	for len(c.recentID) > maxCachedSightings {
		delete(c.recent, c.recentID[0])
		c.recentID = c.recentID[1:]
	}
}

// mergeFeeders folds the latest device snapshots into the tracked feeders
// and publishes an event for every feeder that changed.
func (c *Coordinator) mergeFeeders() {
	snapshot := c.client.Feeders()

	var changed []feeder.Feeder
	c.mu.Lock()
	for id, update := range snapshot {
		if existing, ok := c.feeders[id]; ok {
			merged := existing.Merge(update)
			if merged != existing {
				changed = append(changed, merged)
			}
			c.feeders[id] = merged
		} else {
			c.feeders[id] = update
			changed = append(changed, update)
		}
	}
	c.mu.Unlock()

	for i := range changed {
		c.bus.Publish(events.TopicFeederUpdated, events.FeederEvent{Feeder: changed[i]})
	}
}

// Feeders returns the tracked devices, ordered by name.
func (c *Coordinator) Feeders() []feeder.Feeder {
	c.mu.RLock()
	out := make([]feeder.Feeder, 0, len(c.feeders))
	for _, f := range c.feeders {
		out = append(out, f)
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Feeder returns one tracked device by id.
func (c *Coordinator) Feeder(id string) (feeder.Feeder, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	f, ok := c.feeders[id]
	return f, ok
}

// Visitors returns the visitor resolution engine for a feeder, creating it
// on first use. The engine stays idle until its first observer registers.
func (c *Coordinator) Visitors(feederID string) (*visitors.RecentVisitors, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if engine, ok := c.engines[feederID]; ok {
		return engine, true
	}
	f, ok := c.feeders[feederID]
	if !ok {
		return nil, false
	}

	engine := visitors.New(f.ID, f.Name, c.client, c.bus, c.metrics)
	if c.store != nil {
		store := c.store
		log := c.logger
		engine.SetPersistFunc(func(st visitors.State) {
			if err := store.SaveVisitorSnapshot(snapshotFromState(st)); err != nil {
				log.Warn("failed to persist visitor snapshot", "feeder", st.FeederID, "error", err)
			}
		})
	}
	c.engines[feederID] = engine
	return engine, true
}

// EnsureObserved keeps the visitor engine for a feeder active by holding a
// standing observer registration. Pull-based readers (the HTTP API) use this
// so the engine bootstraps and then follows postcard events even when no
// push consumer is attached.
func (c *Coordinator) EnsureObserved(feederID string) {
	engine, ok := c.Visitors(feederID)
	if !ok {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.observed[feederID]; ok {
		return
	}
	c.observed[feederID] = engine.RegisterCallback(func(visitors.State) {})
}

// restoreSnapshots seeds the visitor engines with state persisted by a
// previous run.
func (c *Coordinator) restoreSnapshots() {
	if c.store == nil {
		return
	}
	snapshots, err := c.store.GetAllVisitorSnapshots()
	if err != nil {
		c.logger.Warn("failed to restore visitor snapshots", "error", err)
		return
	}
	for i := range snapshots {
		engine, ok := c.Visitors(snapshots[i].FeederID)
		if !ok {
			continue
		}
		species, m := stateFromSnapshot(&snapshots[i])
		engine.Restore(species, m, snapshots[i].UpdatedAt)
	}
}

func snapshotFromState(st visitors.State) *datastore.VisitorSnapshot {
	snapshot := &datastore.VisitorSnapshot{FeederID: st.FeederID}
	if st.Species != nil {
		snapshot.SpeciesID = st.Species.ID
		snapshot.SpeciesName = st.Species.Name
	}
	if st.Media != nil {
		snapshot.MediaID = st.Media.ID
		snapshot.ContentURL = st.Media.ContentURL
		snapshot.ThumbnailURL = st.Media.ThumbnailURL
		snapshot.MediaCreatedAt = st.Media.CreatedAt
		snapshot.IsVideo = st.Media.IsVideo
	}
	return snapshot
}

func stateFromSnapshot(snapshot *datastore.VisitorSnapshot) (*birds.Species, *media.Media) {
	var species *birds.Species
	if snapshot.SpeciesName != "" {
		species = &birds.Species{ID: snapshot.SpeciesID, Name: snapshot.SpeciesName}
	}
	var m *media.Media
	if snapshot.MediaID != "" {
		m = &media.Media{
			ID:           snapshot.MediaID,
			ContentURL:   snapshot.ContentURL,
			ThumbnailURL: snapshot.ThumbnailURL,
			CreatedAt:    snapshot.MediaCreatedAt,
			IsVideo:      snapshot.IsVideo,
		}
	}
	return species, m
}

// CollectPostcard handles the collect service call: it resolves the sighting
// data for the postcard (from the recent cache, else by converting again)
// and finalizes it using the requested strategy.
func (c *Coordinator) CollectPostcard(ctx context.Context, postcardID, strategy string, confidenceThreshold int, shareMedia bool) (bool, error) {
	parsed, err := birds.ParseFinishStrategy(strategy)
	if err != nil {
		return false, err
	}

	c.mu.RLock()
	sighting, cached := c.recent[postcardID]
	c.mu.RUnlock()

	if !cached {
		sighting, err = c.client.SightingFromPostcard(ctx, postcardID)
		if err != nil {
			return false, err
		}
	}

	c.logger.Debug("collecting postcard",
		"postcard_id", postcardID, "strategy", parsed, "cached", cached)

	success, err := c.client.FinishPostcard(ctx, postcardID, sighting.Report, parsed, confidenceThreshold, shareMedia)
	if err != nil {
		return false, err
	}
	if success {
		c.logger.Info("postcard collected to media", "postcard_id", postcardID)
	} else {
		c.logger.Warn("postcard could not be collected", "postcard_id", postcardID)
	}
	return success, nil
}

// SetFrequency forwards the frequency change and merges the result.
func (c *Coordinator) SetFrequency(ctx context.Context, feederID string, frequency feeder.MetricState) (feeder.Feeder, error) {
	updated, err := c.client.SetFrequency(ctx, feederID, frequency)
	if err != nil {
		return feeder.Feeder{}, err
	}
	return c.applyFeederUpdate(updated), nil
}

// ToggleOffGrid forwards the off-grid change and merges the result.
func (c *Coordinator) ToggleOffGrid(ctx context.Context, feederID string, offGrid bool) (feeder.Feeder, error) {
	updated, err := c.client.ToggleOffGrid(ctx, feederID, offGrid)
	if err != nil {
		return feeder.Feeder{}, err
	}
	return c.applyFeederUpdate(updated), nil
}

func (c *Coordinator) applyFeederUpdate(update feeder.Feeder) feeder.Feeder {
	c.mu.Lock()
	merged := update
	if existing, ok := c.feeders[update.ID]; ok {
		merged = existing.Merge(update)
	}
	c.feeders[update.ID] = merged
	c.mu.Unlock()

	c.bus.Publish(events.TopicFeederUpdated, events.FeederEvent{Feeder: merged})
	return merged
}
