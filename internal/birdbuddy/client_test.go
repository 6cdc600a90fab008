package birdbuddy

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhansche/ha-birdbuddy/internal/birds"
	"github.com/jhansche/ha-birdbuddy/internal/feeder"
)

const testAPIURL = "https://graphql.example.com/graphql"

// newTestClient returns a client whose transport is intercepted by httpmock
// and a dispatcher that routes GraphQL documents to canned responses by
// operation name.
func newTestClient(t *testing.T, responses map[string]string) *Client {
	t.Helper()

	c, err := NewClientWithConfig(Config{
		BaseURL:     testAPIURL,
		AccessToken: "test-token",
		Timeout:     5 * time.Second,
	})
	require.NoError(t, err)

	httpmock.ActivateNonDefault(c.httpClient)
	t.Cleanup(httpmock.DeactivateAndReset)

	httpmock.RegisterResponder(http.MethodPost, testAPIURL,
		func(req *http.Request) (*http.Response, error) {
			body, err := io.ReadAll(req.Body)
			if err != nil {
				return httpmock.NewStringResponse(http.StatusBadRequest, ""), nil
			}
			for op, resp := range responses {
				if strings.Contains(string(body), op) {
					return httpmock.NewStringResponse(http.StatusOK, resp), nil
				}
			}
			return httpmock.NewStringResponse(http.StatusOK, `{"data":{}}`), nil
		})
	return c
}

func TestRefreshPopulatesFeeders(t *testing.T) {
	c := newTestClient(t, map[string]string{
		"query me ": `{"data":{"me":{"feeders":[
			{"id":"feeder-a","name":"Garden Feeder","state":"ONLINE","frequency":"MEDIUM",
			 "offGrid":false,"owner":true,"firmwareVersion":"1.2.3","availableFirmwareVersion":"1.3.0",
			 "battery":{"percentage":80,"charging":false,"state":"HIGH"},
			 "signal":{"value":-55,"state":"MEDIUM"}},
			{"id":"feeder-b","name":"Balcony Feeder","state":"DEEP_SLEEP",
			 "offGrid":true,"owner":false,
			 "battery":{"percentage":15,"charging":true,"state":"LOW"},
			 "signal":{"value":-80,"state":"LOW"}}
		]}}}`,
	})

	require.NoError(t, c.Refresh(context.Background()))

	feeders := c.Feeders()
	require.Len(t, feeders, 2)

	a := feeders["feeder-a"]
	assert.Equal(t, "Garden Feeder", a.Name)
	assert.Equal(t, feeder.StateOnline, a.State)
	assert.Equal(t, 80, a.Battery.Percentage)
	assert.Equal(t, feeder.MetricMedium, a.Frequency)
	assert.True(t, a.IsOwner)
	assert.True(t, a.UpdateAvailable())

	b := feeders["feeder-b"]
	assert.Equal(t, feeder.StateDeepSleep, b.State)
	assert.True(t, b.Battery.Charging)
	assert.True(t, b.OffGrid)
	assert.False(t, b.IsOwner)
}

func TestRefreshFeedAdvancesCursor(t *testing.T) {
	c := newTestClient(t, map[string]string{
		"meFeed": `{"data":{"me":{"feed":{"edges":[
			{"node":{"__typename":"FeedItemSpeciesSighting","id":"item-1","createdAt":"2026-05-01T08:00:00Z",
			 "species":[{"id":"sp-1","name":"Blue Jay"}],
			 "medias":[{"__typename":"MediaImage","id":"m-1","thumbnailUrl":"https://cdn.example.com/feeder-a/t.jpg"}]}},
			{"node":{"__typename":"FeedItemNewPostcard","id":"item-2","createdAt":"2026-05-01T09:00:00Z"}}
		]}}}}`,
	})

	fresh, err := c.RefreshFeed(context.Background())
	require.NoError(t, err)
	assert.Len(t, fresh, 2)
	assert.Equal(t, time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC), c.FeedCursor())

	// The same window yields nothing new on the next cycle.
	fresh, err = c.RefreshFeed(context.Background())
	require.NoError(t, err)
	assert.Empty(t, fresh)
}

func TestSetFeedCursorFiltersOlderItems(t *testing.T) {
	c := newTestClient(t, map[string]string{
		"meFeed": `{"data":{"me":{"feed":{"edges":[
			{"node":{"__typename":"FeedItemSpeciesSighting","id":"item-1","createdAt":"2026-05-01T08:00:00Z"}},
			{"node":{"__typename":"FeedItemSpeciesSighting","id":"item-2","createdAt":"2026-05-01T10:00:00Z"}}
		]}}}}`,
	})

	c.SetFeedCursor(time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC))

	fresh, err := c.RefreshFeed(context.Background())
	require.NoError(t, err)
	require.Len(t, fresh, 1)
	assert.Equal(t, "item-2", fresh[0].ID)
}

func TestRefreshCollectionsPopulatesCache(t *testing.T) {
	c := newTestClient(t, map[string]string{
		"meCollections": `{"data":{"me":{"collections":[
			{"id":"col-1","feederName":"Garden Feeder","totalVisits":12,
			 "lastVisitedAt":"2026-05-01T07:30:00Z",
			 "species":{"id":"sp-4","name":"Northern Cardinal"},
			 "coverMedia":{"__typename":"MediaImage","id":"m-9","contentUrl":"https://cdn.example.com/c.jpg"}}
		]}}}`,
	})

	cols, err := c.RefreshCollections(context.Background())
	require.NoError(t, err)
	require.Len(t, cols, 1)
	assert.Equal(t, "Northern Cardinal", cols["col-1"].Species.Name)
	assert.Equal(t, 12, cols["col-1"].TotalVisits)

	calls := httpmock.GetTotalCallCount()

	// Cached reads never touch the network.
	cached := c.Collections()
	require.Len(t, cached, 1)
	assert.Equal(t, "Garden Feeder", cached["col-1"].FeederName)
	assert.Equal(t, calls, httpmock.GetTotalCallCount())
}

func TestSightingFromPostcard(t *testing.T) {
	c := newTestClient(t, map[string]string{
		"sightingCreateFromPostcard": `{"data":{"sightingCreateFromPostcard":{
			"feeder":{"id":"feeder-a","name":"Garden Feeder"},
			"sightingReport":{"sightings":[
				{"__typename":"SightingCantDecideWhichBird","id":"s-1","suggestions":[
					{"confidence":62,"species":{"id":"sp-2","name":"House Finch"}},
					{"confidence":31,"species":{"id":"sp-3","name":"Purple Finch"}}
				]}
			]},
			"medias":[{"__typename":"MediaVideo","id":"m-2","contentUrl":"https://cdn.example.com/v.mp4"}]
		}}}`,
	})

	sighting, err := c.SightingFromPostcard(context.Background(), "pc-1")
	require.NoError(t, err)

	assert.Equal(t, "feeder-a", sighting.FeederID)
	assert.Equal(t, "Garden Feeder", sighting.FeederName)
	require.Len(t, sighting.Medias, 1)
	assert.True(t, sighting.Medias[0].IsVideo)

	sp, found := sighting.Report.Resolve()
	require.True(t, found)
	assert.Equal(t, "House Finch", sp.Name)
}

func TestFinishPostcardStrategies(t *testing.T) {
	success := `{"data":{"sightingReportPostcardFinish":{"success":true}}}`

	recognizedReport := birds.SightingReport{Sightings: []birds.Sighting{{
		Type:    birds.SightingRecognized,
		Species: birds.Species{ID: "sp-1", Name: "Blue Jay"},
	}}}
	suggestedReport := birds.SightingReport{Sightings: []birds.Sighting{{
		Type: birds.SightingCantDecide,
		Suggestions: []birds.Suggestion{
			{Species: birds.Species{Name: "House Finch"}, Confidence: 62},
		},
	}}}

	t.Run("recognized", func(t *testing.T) {
		c := newTestClient(t, map[string]string{"finishRecognized": success})
		ok, err := c.FinishPostcard(context.Background(), "pc-1", recognizedReport, birds.StrategyRecognized, 0, false)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("best guess below threshold fails locally", func(t *testing.T) {
		c := newTestClient(t, nil)
		_, err := c.FinishPostcard(context.Background(), "pc-1", suggestedReport, birds.StrategyBestGuess, 80, false)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "below threshold")
		assert.Equal(t, 0, httpmock.GetTotalCallCount())
	})

	t.Run("auto picks recognized when available", func(t *testing.T) {
		assert.Equal(t, birds.StrategyRecognized, pickAutoStrategy(recognizedReport, 50))
	})

	t.Run("auto degrades to best guess at threshold", func(t *testing.T) {
		assert.Equal(t, birds.StrategyBestGuess, pickAutoStrategy(suggestedReport, 50))
	})

	t.Run("auto falls back to mystery", func(t *testing.T) {
		assert.Equal(t, birds.StrategyMystery, pickAutoStrategy(suggestedReport, 90))
	})
}

func TestGraphQLErrorsSurface(t *testing.T) {
	c := newTestClient(t, map[string]string{
		"query me ": `{"data":null,"errors":[{"message":"You are not authorized"}]}`,
	})

	err := c.Refresh(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "You are not authorized")
}

func TestHTTPErrorStatusSurfaces(t *testing.T) {
	c, err := NewClientWithConfig(Config{BaseURL: testAPIURL, Timeout: 5 * time.Second})
	require.NoError(t, err)

	httpmock.ActivateNonDefault(c.httpClient)
	t.Cleanup(httpmock.DeactivateAndReset)
	httpmock.RegisterResponder(http.MethodPost, testAPIURL,
		httpmock.NewStringResponder(http.StatusBadGateway, "upstream sad"))

	err = c.Refresh(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	_, err := NewClientWithConfig(Config{})
	require.Error(t, err)
}
