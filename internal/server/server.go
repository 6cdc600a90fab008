// Package server wires all components together and runs them until shutdown.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jhansche/ha-birdbuddy/internal/birdbuddy"
	"github.com/jhansche/ha-birdbuddy/internal/conf"
	"github.com/jhansche/ha-birdbuddy/internal/coordinator"
	"github.com/jhansche/ha-birdbuddy/internal/datastore"
	"github.com/jhansche/ha-birdbuddy/internal/events"
	"github.com/jhansche/ha-birdbuddy/internal/httpapi"
	"github.com/jhansche/ha-birdbuddy/internal/logging"
	"github.com/jhansche/ha-birdbuddy/internal/mqtt"
	"github.com/jhansche/ha-birdbuddy/internal/notification"
	"github.com/jhansche/ha-birdbuddy/internal/observability"
)

const shutdownTimeout = 10 * time.Second

// Run starts all configured components and blocks until SIGINT or SIGTERM.
func Run(settings *conf.Settings) error {
	logging.Init()
	if settings.Debug {
		logging.SetLevel(slog.LevelDebug)
	}

	registry := prometheus.NewRegistry()
	metrics, err := observability.NewMetrics(registry)
	if err != nil {
		return fmt.Errorf("failed to create metrics: %w", err)
	}

	var store datastore.Interface
	if settings.Datastore.Path != "" {
		sqlite := datastore.NewSQLiteStore(settings.Datastore.Path)
		if err := sqlite.Open(); err != nil {
			return fmt.Errorf("failed to open datastore: %w", err)
		}
		defer func() {
			if err := sqlite.Close(); err != nil {
				logging.Warn("failed to close datastore", "error", err)
			}
		}()
		store = sqlite
	}

	client, err := birdbuddy.NewClient(settings)
	if err != nil {
		return fmt.Errorf("failed to create Bird Buddy client: %w", err)
	}
	defer client.Close()

	bus := events.NewBus()

	// Notification dispatcher attaches before the first refresh so postcards
	// from the initial feed can already trigger a push.
	if settings.Notification.Enabled {
		notifier, err := notification.NewShoutrrrNotifier(settings.Notification.URLs, settings.BirdBuddy.Timeout)
		if err != nil {
			return fmt.Errorf("failed to create notifier: %w", err)
		}
		dispatcher := notification.NewDispatcher(notifier, bus)
		dispatcher.Start()
		defer dispatcher.Stop()
	}

	coord := coordinator.New(client, bus, store, metrics, settings.BirdBuddy.PollInterval)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := coord.Start(ctx); err != nil {
		return fmt.Errorf("failed to start coordinator: %w", err)
	}
	defer coord.Stop()

	coordinators := coordinator.NewRegistry()
	coordinators.Add(coord)

	if settings.MQTT.Enabled {
		mqttClient := mqtt.NewClient(settings, metrics)
		if err := mqttClient.Connect(ctx); err != nil {
			// MQTT keeps retrying in the background; startup proceeds.
			logging.Warn("initial MQTT connection failed", "error", err)
		}
		defer mqttClient.Disconnect()

		if settings.MQTT.Discovery.Enabled {
			discovery := mqtt.NewDiscoveryPublisher(mqttClient, &mqtt.DiscoveryConfig{
				DiscoveryPrefix: settings.MQTT.Discovery.Prefix,
				BaseTopic:       settings.MQTT.TopicPrefix,
				NodeID:          settings.Main.Name,
			})
			if err := discovery.PublishDiscovery(ctx, coordinators); err != nil {
				logging.Warn("failed to publish MQTT discovery", "error", err)
			}
		}

		publisher := mqtt.NewPublisher(mqttClient, bus, coordinators, settings.MQTT.TopicPrefix)
		publisher.Start(ctx)
		defer publisher.Stop()
	}

	errCh := make(chan error, 1)
	var api *httpapi.Controller
	if settings.HTTP.Enabled {
		api = httpapi.New(settings, coordinators, metrics, registry)
		go func() {
			if err := api.Start(); err != nil {
				errCh <- err
			}
		}()
	}

	logging.Info("started", "name", settings.Main.Name,
		"poll_interval", settings.BirdBuddy.PollInterval,
		"mqtt", settings.MQTT.Enabled, "http", settings.HTTP.Enabled)

	select {
	case <-ctx.Done():
		logging.Info("shutting down")
	case err := <-errCh:
		return fmt.Errorf("HTTP API failed: %w", err)
	}

	if api != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := api.Shutdown(shutdownCtx); err != nil {
			logging.Warn("HTTP API shutdown failed", "error", err)
		}
	}
	return nil
}
