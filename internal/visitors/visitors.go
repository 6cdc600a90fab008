// Package visitors tracks the most recent identified visitor of each feeder.
//
// The engine merges two eventually-consistent sources: push-style postcard
// sighting events from the bus, and pull-style bootstrap fetches against the
// activity feed with the collections snapshot as fallback. Push updates
// always supersede cached media; pull results only fill species state that
// is still unset, so a slow poll can never clobber a fresher push result.
package visitors

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jhansche/ha-birdbuddy/internal/birdbuddy"
	"github.com/jhansche/ha-birdbuddy/internal/birds"
	"github.com/jhansche/ha-birdbuddy/internal/events"
	"github.com/jhansche/ha-birdbuddy/internal/feed"
	"github.com/jhansche/ha-birdbuddy/internal/logging"
	"github.com/jhansche/ha-birdbuddy/internal/media"
	"github.com/jhansche/ha-birdbuddy/internal/observability"
)

// DataSource is the subset of the cloud client the engine needs for its
// bootstrap fetch.
type DataSource interface {
	Feed(ctx context.Context) (feed.Feed, error)
	RefreshCollections(ctx context.Context) (map[string]birdbuddy.Collection, error)
}

// State is the immutable snapshot handed to observers. Media is already
// expiry-masked: an expired URL is reported as absent, never surfaced.
type State struct {
	FeederID  string
	Species   *birds.Species
	Media     *media.Media
	UpdatedAt time.Time
}

// Callback receives the full updated state after every accepted resolution
// result.
type Callback func(State)

type listenerEntry struct {
	id uint64
	cb Callback
}

// RecentVisitors owns the resolved visitor state of one feeder. Exactly one
// instance exists per feeder per process.
type RecentVisitors struct {
	feederID   string
	feederName string
	source     DataSource
	bus        *events.Bus
	metrics    *observability.Metrics
	logger     *slog.Logger

	mu         sync.Mutex
	listeners  []listenerEntry
	nextID     uint64
	subToken   events.Token
	subscribed bool

	latestSpecies *birds.Species
	latestMedia   *media.Media
	updatedAt     time.Time

	// persist, when set, is invoked with every accepted update. It is a
	// state sink, not an observer: it does not count toward the lazy
	// subscription reference count.
	persist func(State)
}

// New creates the engine for one feeder. No fetch or subscription happens
// until the first observer registers.
func New(feederID, feederName string, source DataSource, bus *events.Bus, metrics *observability.Metrics) *RecentVisitors {
	return &RecentVisitors{
		feederID:   feederID,
		feederName: feederName,
		source:     source,
		bus:        bus,
		metrics:    metrics,
		logger:     logging.ForService("visitors").With("feeder", feederName),
	}
}

// SetPersistFunc installs the state sink called after every accepted update.
func (rv *RecentVisitors) SetPersistFunc(persist func(State)) {
	rv.mu.Lock()
	defer rv.mu.Unlock()
	rv.persist = persist
}

// Restore seeds the engine with persisted state from a previous run. It only
// applies while the state is still empty.
func (rv *RecentVisitors) Restore(species *birds.Species, m *media.Media, updatedAt time.Time) {
	rv.mu.Lock()
	defer rv.mu.Unlock()
	if rv.latestSpecies != nil || rv.latestMedia != nil {
		return
	}
	rv.latestSpecies = species
	rv.latestMedia = m
	rv.updatedAt = updatedAt
}

// RegisterCallback registers an observer and returns the handle that removes
// it. The first observer starts the engine: it subscribes to the postcard
// event topic and launches the asynchronous bootstrap fetch. A new observer
// is immediately replayed the current state when a non-expired media is
// already cached.
func (rv *RecentVisitors) RegisterCallback(cb Callback) func() {
	rv.mu.Lock()

	if len(rv.listeners) == 0 {
		rv.subToken = rv.bus.Subscribe(events.TopicNewPostcardSighting, rv.onPostcardEvent)
		rv.subscribed = true
		if rv.metrics != nil {
			rv.metrics.BootstrapFetches.Inc()
		}
		rv.logger.Info("listening for new visitors")
		go rv.bootstrap(context.Background())
	}

	replay := rv.latestMedia != nil && !rv.latestMedia.Expired()
	snapshot := rv.stateLocked()

	rv.nextID++
	id := rv.nextID
	rv.listeners = append(rv.listeners, listenerEntry{id: id, cb: cb})
	rv.mu.Unlock()

	if replay {
		cb(snapshot)
	}

	return func() { rv.unregister(id) }
}

// unregister removes one observer; dropping the last one cancels the push
// subscription. An in-flight bootstrap fetch is not cancelled: its result
// still applies under the species-unset guard.
func (rv *RecentVisitors) unregister(id uint64) {
	rv.mu.Lock()
	defer rv.mu.Unlock()

	for i := range rv.listeners {
		if rv.listeners[i].id == id {
			rv.listeners = append(rv.listeners[:i:i], rv.listeners[i+1:]...)
			break
		}
	}
	if len(rv.listeners) == 0 && rv.subscribed {
		rv.bus.Unsubscribe(rv.subToken)
		rv.subscribed = false
		rv.logger.Info("stopped listening for new visitors")
	}
}

// ObserverCount returns the number of registered observers.
func (rv *RecentVisitors) ObserverCount() int {
	rv.mu.Lock()
	defer rv.mu.Unlock()
	return len(rv.listeners)
}

// LatestSpecies returns the resolved species, or nil when there is none.
// Never performs I/O.
func (rv *RecentVisitors) LatestSpecies() *birds.Species {
	rv.mu.Lock()
	defer rv.mu.Unlock()
	if rv.latestSpecies == nil {
		return nil
	}
	sp := *rv.latestSpecies
	return &sp
}

// LatestMedia returns the cached media, masking it as absent once its signed
// URL has expired. Never performs I/O and never triggers a re-fetch; the
// next poll or push cycle replaces expired media.
func (rv *RecentVisitors) LatestMedia() *media.Media {
	rv.mu.Lock()
	defer rv.mu.Unlock()
	return rv.maskedMediaLocked()
}

// State returns the expiry-masked snapshot of the current visitor state.
func (rv *RecentVisitors) State() State {
	rv.mu.Lock()
	defer rv.mu.Unlock()
	return rv.stateLocked()
}

func (rv *RecentVisitors) maskedMediaLocked() *media.Media {
	if rv.latestMedia == nil {
		return nil
	}
	if rv.latestMedia.Expired() {
		if rv.metrics != nil {
			rv.metrics.ExpiredMediaReads.Inc()
		}
		return nil
	}
	m := *rv.latestMedia
	return &m
}

func (rv *RecentVisitors) stateLocked() State {
	st := State{
		FeederID:  rv.feederID,
		Media:     rv.maskedMediaLocked(),
		UpdatedAt: rv.updatedAt,
	}
	if rv.latestSpecies != nil {
		sp := *rv.latestSpecies
		st.Species = &sp
	}
	return st
}

// onPostcardEvent handles a push sighting event. A new event always
// supersedes the cached media; the species is re-resolved from the report
// and cleared when no candidate survives, because surfacing a fabricated
// "unknown" label is worse than showing no value.
func (rv *RecentVisitors) onPostcardEvent(payload any) {
	ev, ok := payload.(events.PostcardEvent)
	if !ok {
		return
	}
	if ev.Sighting.FeederID != rv.feederID {
		return
	}
	if len(ev.Sighting.Report.Sightings) == 0 || len(ev.Sighting.Medias) == 0 {
		rv.logger.Warn("dropping malformed postcard event",
			"postcard_id", ev.PostcardID,
			"sightings", len(ev.Sighting.Report.Sightings),
			"medias", len(ev.Sighting.Medias))
		return
	}

	rv.mu.Lock()
	m := ev.Sighting.Medias[0]
	rv.latestMedia = &m

	if sp, resolved := ev.Sighting.Report.Resolve(); resolved {
		cp := sp
		rv.latestSpecies = &cp
		rv.logger.Debug("resolved visitor from postcard", "species", sp.Name)
	} else {
		rv.latestSpecies = nil
		rv.logger.Info("cannot decide species, clearing visitor", "postcard_id", ev.PostcardID)
	}
	rv.updatedAt = time.Now()

	listeners, st := rv.snapshotLocked()
	rv.mu.Unlock()

	if rv.metrics != nil {
		rv.metrics.VisitorUpdates.WithLabelValues("push").Inc()
	}
	rv.notify(listeners, st)
}

// bootstrap performs the initial pull: the activity feed first, the
// collections snapshot as fallback. Results never clobber push-derived
// state: they only apply while the species is still unset. Fetch failures
// leave the last known good state untouched.
func (rv *RecentVisitors) bootstrap(ctx context.Context) {
	applied := ""

	items, err := rv.source.Feed(ctx)
	if err != nil {
		rv.logger.Warn("bootstrap feed fetch failed", "error", err)
	} else {
		mine := items.FilterTypes(feed.VisitorNodeTypes...).ForFeeder(rv.feederID)
		if node, ok := mine.Latest(); ok {
			sp := node.Species[0]
			m := node.Medias[0]

			rv.mu.Lock()
			if rv.latestSpecies == nil {
				rv.latestSpecies = &sp
				rv.latestMedia = &m
				rv.updatedAt = time.Now()
				applied = "feed"
				rv.logger.Debug("visitor set from feed",
					"species", sp.Name, "media_created_at", m.CreatedAt)
			}
			rv.mu.Unlock()
		}
	}

	rv.mu.Lock()
	speciesUnset := rv.latestSpecies == nil
	rv.mu.Unlock()

	if speciesUnset {
		if col, ok := rv.latestCollection(ctx); ok {
			rv.mu.Lock()
			if rv.latestSpecies == nil {
				sp := col.Species
				rv.latestSpecies = &sp
				rv.updatedAt = time.Now()
				applied = "collection"
				rv.logger.Debug("visitor set from collection", "species", sp.Name)
			}
			rv.mu.Unlock()
		}
	}

	if applied != "" && rv.metrics != nil {
		rv.metrics.VisitorUpdates.WithLabelValues(applied).Inc()
	}

	rv.mu.Lock()
	listeners, st := rv.snapshotLocked()
	rv.mu.Unlock()
	rv.notify(listeners, st)
}

// latestCollection finds the most recently visited collection attributed to
// this feeder. Attribution is by feeder display name, the only linkage the
// collections API offers; two feeders sharing a species can misattribute
// here, which is accepted for "a recent visitor" semantics.
func (rv *RecentVisitors) latestCollection(ctx context.Context) (birdbuddy.Collection, bool) {
	cols, err := rv.source.RefreshCollections(ctx)
	if err != nil {
		rv.logger.Warn("bootstrap collections fetch failed", "error", err)
		return birdbuddy.Collection{}, false
	}

	var best birdbuddy.Collection
	found := false
	for _, col := range cols {
		if col.FeederName != rv.feederName {
			continue
		}
		if !found || col.LastVisit.After(best.LastVisit) {
			best = col
			found = true
		}
	}
	return best, found
}

func (rv *RecentVisitors) snapshotLocked() ([]listenerEntry, State) {
	listeners := make([]listenerEntry, len(rv.listeners))
	copy(listeners, rv.listeners)
	return listeners, rv.stateLocked()
}

// notify invokes every observer synchronously, in registration order, each
// inside a recovery wrapper so one failing callback cannot prevent delivery
// to the ones after it.
func (rv *RecentVisitors) notify(listeners []listenerEntry, st State) {
	rv.mu.Lock()
	persist := rv.persist
	rv.mu.Unlock()
	if persist != nil {
		persist(st)
	}
	for i := range listeners {
		rv.notifyOne(listeners[i], st)
	}
}

func (rv *RecentVisitors) notifyOne(l listenerEntry, st State) {
	defer func() {
		if r := recover(); r != nil {
			rv.logger.Error("visitor observer panicked", "panic", r)
		}
	}()
	if rv.metrics != nil {
		rv.metrics.ObserverNotifies.Inc()
	}
	l.cb(st)
}
