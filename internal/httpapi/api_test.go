package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhansche/ha-birdbuddy/internal/birdbuddy"
	"github.com/jhansche/ha-birdbuddy/internal/birds"
	"github.com/jhansche/ha-birdbuddy/internal/conf"
	"github.com/jhansche/ha-birdbuddy/internal/coordinator"
	"github.com/jhansche/ha-birdbuddy/internal/events"
	"github.com/jhansche/ha-birdbuddy/internal/feed"
	"github.com/jhansche/ha-birdbuddy/internal/feeder"
	"github.com/jhansche/ha-birdbuddy/internal/media"
)

// stubClient is the minimal cloud client the handlers need: one feeder and
// a one-item feed.
type stubClient struct {
	feeders map[string]feeder.Feeder
	items   feed.Feed
	cursor  time.Time
}

var _ birdbuddy.Interface = (*stubClient)(nil)

func newStubClient() *stubClient {
	return &stubClient{
		feeders: map[string]feeder.Feeder{
			"feeder-a": {
				ID:        "feeder-a",
				Name:      "Garden Feeder",
				State:     feeder.StateOnline,
				Battery:   feeder.Battery{Percentage: 80, State: feeder.MetricHigh},
				Frequency: feeder.MetricMedium,
				IsOwner:   true,
			},
		},
	}
}

func (s *stubClient) Refresh(context.Context) error { return nil }

func (s *stubClient) Feeders() map[string]feeder.Feeder {
	out := make(map[string]feeder.Feeder, len(s.feeders))
	for id, f := range s.feeders {
		out[id] = f
	}
	return out
}

func (s *stubClient) Feed(context.Context) (feed.Feed, error) { return s.items, nil }

func (s *stubClient) RefreshFeed(ctx context.Context) (feed.Feed, error) {
	fresh := s.items.NewerThan(s.cursor)
	if latest, ok := fresh.Latest(); ok {
		s.cursor = latest.CreatedAt
	}
	return fresh, nil
}

func (s *stubClient) FeedCursor() time.Time     { return s.cursor }
func (s *stubClient) SetFeedCursor(t time.Time) { s.cursor = t }

func (s *stubClient) RefreshCollections(context.Context) (map[string]birdbuddy.Collection, error) {
	return nil, nil
}
func (s *stubClient) Collections() map[string]birdbuddy.Collection { return nil }
func (s *stubClient) CollectionMedia(context.Context, string) (map[string]media.Media, error) {
	return nil, nil
}

func (s *stubClient) SightingFromPostcard(context.Context, string) (birds.PostcardSighting, error) {
	return birds.PostcardSighting{
		FeederID: "feeder-a",
		Report: birds.SightingReport{Sightings: []birds.Sighting{{
			Type:    birds.SightingRecognized,
			Species: birds.Species{ID: "sp-1", Name: "Blue Jay"},
		}}},
		Medias: []media.Media{{ID: "m-1"}},
	}, nil
}

func (s *stubClient) FinishPostcard(context.Context, string, birds.SightingReport, birds.FinishStrategy, int, bool) (bool, error) {
	return true, nil
}

func (s *stubClient) SetFrequency(_ context.Context, feederID string, frequency feeder.MetricState) (feeder.Feeder, error) {
	f := s.feeders[feederID]
	f.Frequency = frequency
	s.feeders[feederID] = f
	return f, nil
}

func (s *stubClient) ToggleOffGrid(_ context.Context, feederID string, offGrid bool) (feeder.Feeder, error) {
	f := s.feeders[feederID]
	f.OffGrid = offGrid
	s.feeders[feederID] = f
	return f, nil
}

func newTestController(t *testing.T) *Controller {
	t.Helper()

	coord := coordinator.New(newStubClient(), events.NewBus(), nil, nil, time.Hour)
	require.NoError(t, coord.Refresh(context.Background()))

	registry := coordinator.NewRegistry()
	registry.Add(coord)

	settings := &conf.Settings{
		HTTP: conf.HTTPSettings{Enabled: true, Listen: ":0"},
	}
	return New(settings, registry, nil, nil)
}

func doRequest(c *Controller, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echoHeaderContentType, "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	c.Echo.ServeHTTP(rec, req)
	return rec
}

const echoHeaderContentType = "Content-Type"

func TestHealth(t *testing.T) {
	c := newTestController(t)
	rec := doRequest(c, http.MethodGet, "/api/v1/health", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestListAndGetFeeders(t *testing.T) {
	c := newTestController(t)

	rec := doRequest(c, http.MethodGet, "/api/v1/feeders", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var list []FeederResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "Garden Feeder", list[0].Name)
	assert.Equal(t, 80, list[0].BatteryPercentage)

	rec = doRequest(c, http.MethodGet, "/api/v1/feeders/feeder-a", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var single FeederResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &single))
	assert.Equal(t, "feeder-a", single.ID)
}

func TestGetFeederNotFound(t *testing.T) {
	c := newTestController(t)
	rec := doRequest(c, http.MethodGet, "/api/v1/feeders/feeder-zzz", "")

	require.Equal(t, http.StatusNotFound, rec.Code)

	var errResp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errResp))
	assert.Equal(t, http.StatusNotFound, errResp.Code)
	assert.Len(t, errResp.CorrelationID, 8)
}

func TestGetVisitor(t *testing.T) {
	c := newTestController(t)

	rec := doRequest(c, http.MethodGet, "/api/v1/feeders/feeder-a/visitor", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp VisitorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "feeder-a", resp.FeederID)
}

func TestSetFrequency(t *testing.T) {
	c := newTestController(t)

	rec := doRequest(c, http.MethodPost, "/api/v1/feeders/feeder-a/frequency", `{"frequency":"high"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp FeederResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "HIGH", resp.Frequency)

	rec = doRequest(c, http.MethodPost, "/api/v1/feeders/feeder-a/frequency", `{"frequency":"sometimes"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSetOffGrid(t *testing.T) {
	c := newTestController(t)

	rec := doRequest(c, http.MethodPost, "/api/v1/feeders/feeder-a/offgrid", `{"off_grid":true}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp FeederResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.OffGrid)
}

func TestCollectPostcard(t *testing.T) {
	c := newTestController(t)

	rec := doRequest(c, http.MethodPost, "/api/v1/postcards/pc-1/collect",
		`{"strategy":"recognized","feeder_id":"feeder-a"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp collectResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "pc-1", resp.PostcardID)
	assert.True(t, resp.Collected)
}

func TestCollectPostcardWithoutAccounts(t *testing.T) {
	settings := &conf.Settings{HTTP: conf.HTTPSettings{Enabled: true}}
	c := New(settings, coordinator.NewRegistry(), nil, nil)

	rec := doRequest(c, http.MethodPost, "/api/v1/postcards/pc-1/collect", `{}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
