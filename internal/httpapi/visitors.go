package httpapi

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// VisitorResponse is the JSON representation of a feeder's most recent
// visitor. Media fields are omitted once the signed URLs have expired.
type VisitorResponse struct {
	FeederID     string     `json:"feeder_id"`
	SpeciesID    string     `json:"species_id,omitempty"`
	SpeciesName  string     `json:"species_name,omitempty"`
	MediaURL     string     `json:"media_url,omitempty"`
	ThumbnailURL string     `json:"thumbnail_url,omitempty"`
	IsVideo      bool       `json:"is_video,omitempty"`
	UpdatedAt    *time.Time `json:"updated_at,omitempty"`
}

// GetVisitor returns the current recent-visitor state for a feeder. The
// first read activates the resolution engine, which back-fills from the
// feed and collections in the background.
func (c *Controller) GetVisitor(ctx echo.Context) error {
	coord, f, ok := c.lookupFeeder(ctx)
	if !ok {
		return c.HandleError(ctx, nil, "Feeder not found", http.StatusNotFound)
	}

	engine, ok := coord.Visitors(f.ID)
	if !ok {
		return c.HandleError(ctx, nil, "Feeder not found", http.StatusNotFound)
	}
	coord.EnsureObserved(f.ID)

	st := engine.State()
	resp := VisitorResponse{FeederID: st.FeederID}
	if st.Species != nil {
		resp.SpeciesID = st.Species.ID
		resp.SpeciesName = st.Species.Name
	}
	if st.Media != nil {
		resp.MediaURL = st.Media.BestURL()
		resp.ThumbnailURL = st.Media.ThumbnailURL
		resp.IsVideo = st.Media.IsVideo
	}
	if !st.UpdatedAt.IsZero() {
		updated := st.UpdatedAt
		resp.UpdatedAt = &updated
	}
	return ctx.JSON(http.StatusOK, resp)
}
