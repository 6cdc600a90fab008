// Package httpapi exposes the local REST surface: feeder state, recent
// visitor reads and the postcard collect service.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jhansche/ha-birdbuddy/internal/conf"
	"github.com/jhansche/ha-birdbuddy/internal/coordinator"
	"github.com/jhansche/ha-birdbuddy/internal/logging"
	"github.com/jhansche/ha-birdbuddy/internal/observability"
)

// Controller manages the API routes and handlers.
type Controller struct {
	Echo     *echo.Echo
	Group    *echo.Group
	Registry *coordinator.Registry
	Settings *conf.Settings

	apiLogger      *slog.Logger
	apiLoggerClose func() error
	metrics        *observability.Metrics
	startTime      time.Time
}

// New creates the API controller and registers all routes.
func New(settings *conf.Settings, registry *coordinator.Registry, metrics *observability.Metrics, gatherer prometheus.Gatherer) *Controller {
	apiLogger, closeFunc, err := logging.NewFileLogger("logs/api.log", "api", slog.LevelInfo)
	if err != nil {
		logging.Warn("failed to initialize API log file, using fallback", "error", err)
		apiLogger = logging.ForService("api")
		closeFunc = func() error { return nil }
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	c := &Controller{
		Echo:           e,
		Registry:       registry,
		Settings:       settings,
		apiLogger:      apiLogger,
		apiLoggerClose: closeFunc,
		metrics:        metrics,
		startTime:      time.Now(),
	}

	c.Group = e.Group("/api/v1")
	c.initRoutes()

	if gatherer != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}
	return c
}

func (c *Controller) initRoutes() {
	c.Group.GET("/health", c.Health)
	c.Group.GET("/feeders", c.ListFeeders)
	c.Group.GET("/feeders/:id", c.GetFeeder)
	c.Group.GET("/feeders/:id/visitor", c.GetVisitor)
	c.Group.POST("/feeders/:id/frequency", c.SetFrequency)
	c.Group.POST("/feeders/:id/offgrid", c.SetOffGrid)
	c.Group.POST("/postcards/:id/collect", c.CollectPostcard)
}

// Start begins serving on the configured listen address. It blocks until
// the server stops.
func (c *Controller) Start() error {
	c.apiLogger.Info("starting HTTP API", "listen", c.Settings.HTTP.Listen)
	err := c.Echo.Start(c.Settings.HTTP.Listen)
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the server and closes the API log file.
func (c *Controller) Shutdown(ctx context.Context) error {
	err := c.Echo.Shutdown(ctx)
	if c.apiLoggerClose != nil {
		if closeErr := c.apiLoggerClose(); closeErr != nil && err == nil {
			err = closeErr
		}
	}
	return err
}

// ErrorResponse is the JSON body returned for any handler failure.
type ErrorResponse struct {
	Error         string `json:"error"`
	Message       string `json:"message"`
	Code          int    `json:"code"`
	CorrelationID string `json:"correlation_id"`
}

// NewErrorResponse creates a new API error response with a correlation id
// for log cross-referencing.
func NewErrorResponse(err error, message string, code int) *ErrorResponse {
	errorStr := message
	if err != nil {
		errorStr = err.Error()
	}
	return &ErrorResponse{
		Error:         errorStr,
		Message:       message,
		Code:          code,
		CorrelationID: uuid.NewString()[:8],
	}
}

// HandleError logs the failure and writes the JSON error response.
func (c *Controller) HandleError(ctx echo.Context, err error, message string, code int) error {
	errorResp := NewErrorResponse(err, message, code)

	c.apiLogger.Error("API error",
		"correlation_id", errorResp.CorrelationID,
		"message", message,
		"error", errorResp.Error,
		"code", code,
		"path", ctx.Request().URL.Path,
		"method", ctx.Request().Method,
		"ip", ctx.RealIP(),
	)
	return ctx.JSON(code, errorResp)
}

// Health reports process liveness and uptime.
func (c *Controller) Health(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, map[string]any{
		"status":         "ok",
		"uptime_seconds": int(time.Since(c.startTime).Seconds()),
	})
}
