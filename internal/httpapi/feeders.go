package httpapi

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/jhansche/ha-birdbuddy/internal/coordinator"
	"github.com/jhansche/ha-birdbuddy/internal/feeder"
)

// FeederResponse is the JSON representation of one feeder device.
type FeederResponse struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	State             string `json:"state"`
	BatteryPercentage int    `json:"battery_percentage"`
	BatteryCharging   bool   `json:"battery_charging"`
	BatteryState      string `json:"battery_state"`
	SignalRSSI        int    `json:"signal_rssi"`
	SignalState       string `json:"signal_state"`
	Frequency         string `json:"frequency"`
	Firmware          string `json:"firmware"`
	UpdateAvailable   bool   `json:"update_available"`
	OffGrid           bool   `json:"off_grid"`
	IsOwner           bool   `json:"is_owner"`
}

func feederToResponse(f feeder.Feeder) FeederResponse {
	return FeederResponse{
		ID:                f.ID,
		Name:              f.Name,
		State:             string(f.State),
		BatteryPercentage: f.Battery.Percentage,
		BatteryCharging:   f.Battery.Charging,
		BatteryState:      string(f.Battery.State),
		SignalRSSI:        f.Signal.RSSI,
		SignalState:       string(f.Signal.State),
		Frequency:         string(f.Frequency),
		Firmware:          f.Firmware,
		UpdateAvailable:   f.UpdateAvailable(),
		OffGrid:           f.OffGrid,
		IsOwner:           f.IsOwner,
	}
}

// ListFeeders returns all tracked feeders across every coordinator.
func (c *Controller) ListFeeders(ctx echo.Context) error {
	out := []FeederResponse{}
	for _, coord := range c.Registry.All() {
		for _, f := range coord.Feeders() {
			out = append(out, feederToResponse(f))
		}
	}
	return ctx.JSON(http.StatusOK, out)
}

// GetFeeder returns one feeder by id.
func (c *Controller) GetFeeder(ctx echo.Context) error {
	_, f, ok := c.lookupFeeder(ctx)
	if !ok {
		return c.HandleError(ctx, nil, "Feeder not found", http.StatusNotFound)
	}
	return ctx.JSON(http.StatusOK, feederToResponse(f))
}

// frequencyRequest is the body for the frequency update endpoint.
type frequencyRequest struct {
	Frequency string `json:"frequency"`
}

// SetFrequency updates the feeder's postcard frequency.
func (c *Controller) SetFrequency(ctx echo.Context) error {
	coord, f, ok := c.lookupFeeder(ctx)
	if !ok {
		return c.HandleError(ctx, nil, "Feeder not found", http.StatusNotFound)
	}

	var req frequencyRequest
	if err := ctx.Bind(&req); err != nil {
		return c.HandleError(ctx, err, "Invalid request body", http.StatusBadRequest)
	}
	frequency := feeder.MetricState(strings.ToUpper(req.Frequency))
	switch frequency {
	case feeder.MetricLow, feeder.MetricMedium, feeder.MetricHigh:
	default:
		return c.HandleError(ctx, nil, "Frequency must be one of LOW, MEDIUM, HIGH", http.StatusBadRequest)
	}

	updated, err := coord.SetFrequency(ctx.Request().Context(), f.ID, frequency)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to update frequency", http.StatusBadGateway)
	}
	return ctx.JSON(http.StatusOK, feederToResponse(updated))
}

// offGridRequest is the body for the off-grid toggle endpoint.
type offGridRequest struct {
	OffGrid bool `json:"off_grid"`
}

// SetOffGrid toggles the feeder's off-grid mode.
func (c *Controller) SetOffGrid(ctx echo.Context) error {
	coord, f, ok := c.lookupFeeder(ctx)
	if !ok {
		return c.HandleError(ctx, nil, "Feeder not found", http.StatusNotFound)
	}

	var req offGridRequest
	if err := ctx.Bind(&req); err != nil {
		return c.HandleError(ctx, err, "Invalid request body", http.StatusBadRequest)
	}

	updated, err := coord.ToggleOffGrid(ctx.Request().Context(), f.ID, req.OffGrid)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to toggle off-grid mode", http.StatusBadGateway)
	}
	return ctx.JSON(http.StatusOK, feederToResponse(updated))
}

// lookupFeeder resolves the :id path parameter to the coordinator that owns
// the feeder.
func (c *Controller) lookupFeeder(ctx echo.Context) (*coordinator.Coordinator, feeder.Feeder, bool) {
	id := ctx.Param("id")
	coord, exact := c.Registry.Lookup(id)
	if coord == nil || !exact {
		return nil, feeder.Feeder{}, false
	}
	f, ok := coord.Feeder(id)
	if !ok {
		return nil, feeder.Feeder{}, false
	}
	return coord, f, true
}
