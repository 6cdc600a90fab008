package httpapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// collectRequest is the body for the postcard collect endpoint. Strategy
// defaults to "recognized"; the confidence threshold only applies to the
// "auto" strategy.
type collectRequest struct {
	Strategy            string `json:"strategy"`
	ConfidenceThreshold int    `json:"confidence_threshold"`
	ShareMedia          bool   `json:"share_media"`
	FeederID            string `json:"feeder_id"`
}

// collectResponse reports whether the postcard was finalized.
type collectResponse struct {
	PostcardID string `json:"postcard_id"`
	Collected  bool   `json:"collected"`
}

// CollectPostcard finalizes a postcard sighting so its media lands in the
// owner's collections.
func (c *Controller) CollectPostcard(ctx echo.Context) error {
	postcardID := ctx.Param("id")

	var req collectRequest
	if err := ctx.Bind(&req); err != nil {
		return c.HandleError(ctx, err, "Invalid request body", http.StatusBadRequest)
	}

	// The feeder id routes the request to the owning account when more
	// than one is configured; without it the first account is used.
	coord, _ := c.Registry.Lookup(req.FeederID)
	if coord == nil {
		return c.HandleError(ctx, nil, "No accounts configured", http.StatusServiceUnavailable)
	}

	collected, err := coord.CollectPostcard(ctx.Request().Context(),
		postcardID, req.Strategy, req.ConfidenceThreshold, req.ShareMedia)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to collect postcard", http.StatusBadGateway)
	}
	return ctx.JSON(http.StatusOK, collectResponse{PostcardID: postcardID, Collected: collected})
}
