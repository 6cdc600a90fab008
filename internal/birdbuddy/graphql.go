package birdbuddy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// GraphQL documents used by the client. The Bird Buddy API is GraphQL over
// plain HTTP POST; each document selects only the fields the integration
// reads.
const (
	queryMe = `query me { me { feeders {
		id name state frequency offGrid owner
		firmwareVersion availableFirmwareVersion
		battery { percentage charging state }
		signal { value state }
	} } }`

	queryFeed = `query meFeed { me { feed { edges { node {
		__typename id createdAt
		species { id name }
		medias { __typename id contentUrl thumbnailUrl createdAt }
	} } } } }`

	queryCollections = `query meCollections { me { collections {
		id feederName totalVisits lastVisitedAt
		species { id name }
		coverMedia { __typename id contentUrl thumbnailUrl createdAt }
	} } }`

	queryCollectionMedia = `query collectionMedia($collectionId: ID!) {
		collection(id: $collectionId) { medias {
			__typename id contentUrl thumbnailUrl createdAt
	} } }`

	mutationSightingFromPostcard = `mutation sightingCreateFromPostcard($postcardId: ID!) {
		sightingCreateFromPostcard(postcardId: $postcardId) {
			feeder { id name }
			sightingReport { sightings {
				__typename id
				species { id name }
				suggestions { confidence species { id name } }
			} }
			medias { __typename id contentUrl thumbnailUrl createdAt }
	} }`

	mutationFinishRecognized = `mutation finishRecognized($postcardId: ID!, $shareMedia: Boolean) {
		sightingReportPostcardFinish(postcardId: $postcardId, shareMedia: $shareMedia) { success } }`

	mutationFinishBestGuess = `mutation finishBestGuess($postcardId: ID!, $shareMedia: Boolean) {
		sightingReportPostcardFinish(postcardId: $postcardId, shareMedia: $shareMedia) { success } }`

	mutationFinishMystery = `mutation finishMystery($postcardId: ID!, $shareMedia: Boolean) {
		sightingReportPostcardFinish(postcardId: $postcardId, shareMedia: $shareMedia) { success } }`

	mutationSetFrequency = `mutation feederSetFrequency($feederId: ID!, $frequency: MetricState!) {
		feeder: feederSetFrequency(feederId: $feederId, frequency: $frequency) {
			id name state frequency offGrid owner
			battery { percentage charging state }
			signal { value state }
	} }`

	mutationToggleOffGrid = `mutation feederToggleOffGrid($feederId: ID!, $offGrid: Boolean!) {
		feeder: feederToggleOffGrid(feederId: $feederId, offGrid: $offGrid) {
			id name state frequency offGrid owner
			battery { percentage charging state }
			signal { value state }
	} }`
)

type gqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type gqlError struct {
	Message string `json:"message"`
}

type gqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []gqlError      `json:"errors,omitempty"`
}

// do executes one GraphQL document and unmarshals the response data into
// out. The call is awaited fully; timeout and retry policy belong to the
// caller and the configured http.Client.
func (c *Client) do(ctx context.Context, query string, variables map[string]any, out any) error {
	body, err := json.Marshal(gqlRequest{Query: query, Variables: variables})
	if err != nil {
		return fmt.Errorf("encoding graphql request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating graphql request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.config.AccessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.AccessToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("graphql request failed: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("graphql request returned status %d", resp.StatusCode)
	}

	var envelope gqlResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("decoding graphql response: %w", err)
	}
	if len(envelope.Errors) > 0 {
		return fmt.Errorf("graphql error: %s", envelope.Errors[0].Message)
	}
	if out != nil {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("decoding graphql data: %w", err)
		}
	}
	return nil
}
