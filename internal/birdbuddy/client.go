// Package birdbuddy implements the Bird Buddy cloud API client. The client
// is a thin GraphQL adapter: authentication/session refresh and retry policy
// are the caller's concern, the client holds an injected bearer token and
// surfaces transport errors as-is.
package birdbuddy

import (
	"context"
	"io"
	"log"
	"log/slog"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/jhansche/ha-birdbuddy/internal/birds"
	"github.com/jhansche/ha-birdbuddy/internal/conf"
	"github.com/jhansche/ha-birdbuddy/internal/errors"
	"github.com/jhansche/ha-birdbuddy/internal/feed"
	"github.com/jhansche/ha-birdbuddy/internal/feeder"
	"github.com/jhansche/ha-birdbuddy/internal/logging"
	"github.com/jhansche/ha-birdbuddy/internal/media"
)

// Package-level logger specific to the birdbuddy cloud service
var (
	serviceLogger   *slog.Logger
	serviceLevelVar = new(slog.LevelVar)
	closeLogger     func() error
)

func init() {
	var err error
	logFilePath := filepath.Join("logs", "birdbuddy.log")
	serviceLevelVar.Set(slog.LevelInfo)

	serviceLogger, closeLogger, err = logging.NewFileLogger(logFilePath, "birdbuddy", serviceLevelVar)
	if err != nil {
		log.Printf("Failed to initialize birdbuddy file logger at %s: %v. Falling back.", logFilePath, err)
		fbHandler := slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: serviceLevelVar})
		serviceLogger = slog.New(fbHandler).With("service", "birdbuddy")
		closeLogger = func() error { return nil }
	}
}

// Interface defines what the rest of the application may ask of the cloud.
type Interface interface {
	// Refresh reloads the account's feeder devices.
	Refresh(ctx context.Context) error
	// Feeders returns the device snapshots from the last Refresh.
	Feeders() map[string]feeder.Feeder

	// Feed returns the current activity feed window.
	Feed(ctx context.Context) (feed.Feed, error)
	// RefreshFeed returns only feed items newer than the last seen one and
	// advances the cursor.
	RefreshFeed(ctx context.Context) (feed.Feed, error)
	// FeedCursor returns the current incremental feed position.
	FeedCursor() time.Time
	// SetFeedCursor restores a previously persisted feed position.
	SetFeedCursor(t time.Time)

	// RefreshCollections reloads the per-species collection summaries.
	RefreshCollections(ctx context.Context) (map[string]Collection, error)
	// Collections returns the cached collection summaries without I/O.
	Collections() map[string]Collection
	// CollectionMedia lists the stored media of one collection.
	CollectionMedia(ctx context.Context, collectionID string) (map[string]media.Media, error)

	// SightingFromPostcard converts a new postcard into sighting data.
	SightingFromPostcard(ctx context.Context, postcardID string) (birds.PostcardSighting, error)
	// FinishPostcard collects a postcard sighting using the given strategy.
	FinishPostcard(ctx context.Context, postcardID string, report birds.SightingReport, strategy birds.FinishStrategy, confidenceThreshold int, shareMedia bool) (bool, error)

	// SetFrequency updates the feeder's postcard frequency.
	SetFrequency(ctx context.Context, feederID string, frequency feeder.MetricState) (feeder.Feeder, error)
	// ToggleOffGrid switches the feeder's off-grid mode.
	ToggleOffGrid(ctx context.Context, feederID string, offGrid bool) (feeder.Feeder, error)
}

// Config holds the client configuration.
type Config struct {
	BaseURL        string
	AccessToken    string
	Timeout        time.Duration
	CollectionsTTL time.Duration
}

// Client is the GraphQL-backed implementation of Interface.
type Client struct {
	config     Config
	httpClient *http.Client

	mu         sync.RWMutex
	feeders    map[string]feeder.Feeder
	feedCursor time.Time

	collections *gocache.Cache
}

var _ Interface = (*Client)(nil)

// NewClient creates a new Bird Buddy API client from the loaded settings.
func NewClient(settings *conf.Settings) (*Client, error) {
	cfg := Config{
		BaseURL:        settings.BirdBuddy.APIURL,
		AccessToken:    settings.BirdBuddy.AccessToken,
		Timeout:        settings.BirdBuddy.Timeout,
		CollectionsTTL: settings.BirdBuddy.CollectionsTTL,
	}
	return NewClientWithConfig(cfg)
}

// NewClientWithConfig creates a client from an explicit Config, used by
// tests and by callers that manage settings themselves.
func NewClientWithConfig(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.Newf("birdbuddy API URL is required").
			Component("birdbuddy").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 45 * time.Second
	}
	if cfg.CollectionsTTL == 0 {
		cfg.CollectionsTTL = 30 * time.Minute
	}

	c := &Client{
		config:      cfg,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		feeders:     make(map[string]feeder.Feeder),
		collections: gocache.New(cfg.CollectionsTTL, cfg.CollectionsTTL*2),
	}

	serviceLogger.Info("bird buddy client initialized",
		"base_url", cfg.BaseURL,
		"collections_ttl", cfg.CollectionsTTL,
		"token_configured", cfg.AccessToken != "")

	return c, nil
}

// Close releases client resources.
func (c *Client) Close() {
	c.collections.Flush()
	if closeLogger != nil {
		_ = closeLogger()
	}
}

// Refresh reloads the account's feeder devices from the cloud.
func (c *Client) Refresh(ctx context.Context) error {
	var resp struct {
		Me struct {
			Feeders []feederNode `json:"feeders"`
		} `json:"me"`
	}
	if err := c.do(ctx, queryMe, nil, &resp); err != nil {
		return errors.New(err).
			Component("birdbuddy").
			Category(errors.CategoryNetwork).
			Context("operation", "refresh").
			Build()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, node := range resp.Me.Feeders {
		update := node.toFeeder()
		if existing, ok := c.feeders[update.ID]; ok {
			c.feeders[update.ID] = existing.Merge(update)
		} else {
			c.feeders[update.ID] = update
		}
	}
	serviceLogger.Debug("refreshed feeders", "count", len(c.feeders))
	return nil
}

// Feeders returns a copy of the device snapshots from the last Refresh.
func (c *Client) Feeders() map[string]feeder.Feeder {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]feeder.Feeder, len(c.feeders))
	for id, f := range c.feeders {
		out[id] = f
	}
	return out
}

// Feed returns the current activity feed window. The returned slice is a
// one-shot page; call again for newer items.
func (c *Client) Feed(ctx context.Context) (feed.Feed, error) {
	var resp struct {
		Me struct {
			Feed struct {
				Edges []struct {
					Node feedNode `json:"node"`
				} `json:"edges"`
			} `json:"feed"`
		} `json:"me"`
	}
	if err := c.do(ctx, queryFeed, nil, &resp); err != nil {
		return nil, errors.New(err).
			Component("birdbuddy").
			Category(errors.CategoryFeedFetch).
			Build()
	}

	items := make(feed.Feed, 0, len(resp.Me.Feed.Edges))
	for _, edge := range resp.Me.Feed.Edges {
		items = append(items, edge.Node.toNode())
	}
	return items, nil
}

// RefreshFeed returns only the feed items newer than the last seen timestamp
// and advances the cursor. With no cursor set it returns the whole window.
func (c *Client) RefreshFeed(ctx context.Context) (feed.Feed, error) {
	items, err := c.Feed(ctx)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	fresh := items.NewerThan(c.feedCursor)
	if latest, ok := fresh.Latest(); ok {
		c.feedCursor = latest.CreatedAt
	}
	serviceLogger.Debug("refreshed feed", "total", len(items), "new", len(fresh), "cursor", c.feedCursor)
	return fresh, nil
}

// FeedCursor returns the current incremental feed position.
func (c *Client) FeedCursor() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.feedCursor
}

// SetFeedCursor restores a previously persisted feed position.
func (c *Client) SetFeedCursor(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.feedCursor = t
}

// SightingFromPostcard converts a new postcard into sighting data.
func (c *Client) SightingFromPostcard(ctx context.Context, postcardID string) (birds.PostcardSighting, error) {
	var resp struct {
		SightingCreateFromPostcard struct {
			Feeder         feederNode         `json:"feeder"`
			SightingReport sightingReportNode `json:"sightingReport"`
			Medias         []mediaNode        `json:"medias"`
		} `json:"sightingCreateFromPostcard"`
	}
	vars := map[string]any{"postcardId": postcardID}
	if err := c.do(ctx, mutationSightingFromPostcard, vars, &resp); err != nil {
		return birds.PostcardSighting{}, errors.New(err).
			Component("birdbuddy").
			Category(errors.CategorySighting).
			Context("postcard_id", postcardID).
			Build()
	}

	ps := birds.PostcardSighting{
		FeederID:   resp.SightingCreateFromPostcard.Feeder.ID,
		FeederName: resp.SightingCreateFromPostcard.Feeder.Name,
		Report:     resp.SightingCreateFromPostcard.SightingReport.toReport(),
	}
	for _, m := range resp.SightingCreateFromPostcard.Medias {
		ps.Medias = append(ps.Medias, m.toMedia())
	}
	return ps, nil
}

// FinishPostcard collects a postcard sighting. The strategy decides which
// finalize mutation is used; StrategyAuto degrades from recognized to
// best-guess to mystery, whichever the report supports first.
func (c *Client) FinishPostcard(ctx context.Context, postcardID string, report birds.SightingReport, strategy birds.FinishStrategy, confidenceThreshold int, shareMedia bool) (bool, error) {
	if strategy == birds.StrategyAuto {
		strategy = pickAutoStrategy(report, confidenceThreshold)
		serviceLogger.Debug("auto strategy resolved", "postcard_id", postcardID, "strategy", strategy)
	}

	var mutation string
	switch strategy {
	case birds.StrategyRecognized:
		mutation = mutationFinishRecognized
	case birds.StrategyBestGuess:
		if report.HighestConfidence() < confidenceThreshold {
			return false, errors.Newf("best guess confidence %d below threshold %d",
				report.HighestConfidence(), confidenceThreshold).
				Component("birdbuddy").
				Category(errors.CategorySighting).
				Context("postcard_id", postcardID).
				Build()
		}
		mutation = mutationFinishBestGuess
	case birds.StrategyMystery:
		mutation = mutationFinishMystery
	default:
		return false, errors.Newf("unsupported finish strategy %q", strategy).
			Component("birdbuddy").
			Category(errors.CategoryValidation).
			Build()
	}

	var resp struct {
		SightingReportPostcardFinish struct {
			Success bool `json:"success"`
		} `json:"sightingReportPostcardFinish"`
	}
	vars := map[string]any{
		"postcardId": postcardID,
		"shareMedia": shareMedia,
	}
	if err := c.do(ctx, mutation, vars, &resp); err != nil {
		return false, errors.New(err).
			Component("birdbuddy").
			Category(errors.CategorySighting).
			Context("postcard_id", postcardID).
			Context("strategy", string(strategy)).
			Build()
	}
	return resp.SightingReportPostcardFinish.Success, nil
}

// pickAutoStrategy chooses the best applicable finish strategy for a report.
func pickAutoStrategy(report birds.SightingReport, confidenceThreshold int) birds.FinishStrategy {
	for i := range report.Sightings {
		if report.Sightings[i].Type.IsRecognized() {
			return birds.StrategyRecognized
		}
	}
	if report.HighestConfidence() >= confidenceThreshold && confidenceThreshold > 0 {
		return birds.StrategyBestGuess
	}
	return birds.StrategyMystery
}

// SetFrequency updates the feeder's postcard frequency and merges the
// returned device snapshot.
func (c *Client) SetFrequency(ctx context.Context, feederID string, frequency feeder.MetricState) (feeder.Feeder, error) {
	return c.updateFeeder(ctx, mutationSetFrequency, map[string]any{
		"feederId":  feederID,
		"frequency": string(frequency),
	})
}

// ToggleOffGrid switches the feeder's off-grid mode and merges the returned
// device snapshot.
func (c *Client) ToggleOffGrid(ctx context.Context, feederID string, offGrid bool) (feeder.Feeder, error) {
	return c.updateFeeder(ctx, mutationToggleOffGrid, map[string]any{
		"feederId": feederID,
		"offGrid":  offGrid,
	})
}

func (c *Client) updateFeeder(ctx context.Context, mutation string, vars map[string]any) (feeder.Feeder, error) {
	var resp struct {
		Feeder feederNode `json:"feeder"`
	}
	if err := c.do(ctx, mutation, vars, &resp); err != nil {
		return feeder.Feeder{}, errors.New(err).
			Component("birdbuddy").
			Category(errors.CategoryNetwork).
			Build()
	}

	update := resp.Feeder.toFeeder()

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.feeders[update.ID]; ok {
		update = existing.Merge(update)
	}
	c.feeders[update.ID] = update
	return update, nil
}
