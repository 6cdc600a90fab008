// Package observability exposes prometheus metrics for the polling and
// resolution pipeline.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles all collectors. A nil *Metrics is safe to pass around;
// callers guard each observation.
type Metrics struct {
	PollRuns       prometheus.Counter
	PollErrors     prometheus.Counter
	FeedItems      prometheus.Counter
	PostcardEvents prometheus.Counter

	VisitorUpdates    *prometheus.CounterVec
	ObserverNotifies  prometheus.Counter
	BootstrapFetches  prometheus.Counter
	ExpiredMediaReads prometheus.Counter

	MQTTPublishes prometheus.Counter
	MQTTErrors    prometheus.Counter
}

// NewMetrics creates and registers all collectors on the given registerer.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		PollRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "birdbuddy_poll_runs_total",
			Help: "Number of completed poll cycles against the cloud API.",
		}),
		PollErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "birdbuddy_poll_errors_total",
			Help: "Number of poll cycles that failed.",
		}),
		FeedItems: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "birdbuddy_feed_items_total",
			Help: "Number of new feed items returned by incremental fetches.",
		}),
		PostcardEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "birdbuddy_postcard_events_total",
			Help: "Number of new postcard sighting events published on the bus.",
		}),
		VisitorUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "birdbuddy_visitor_updates_total",
			Help: "Number of accepted visitor state updates, by source.",
		}, []string{"source"}),
		ObserverNotifies: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "birdbuddy_observer_notifications_total",
			Help: "Number of observer callbacks invoked.",
		}),
		BootstrapFetches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "birdbuddy_bootstrap_fetches_total",
			Help: "Number of bootstrap fetches started by first observers.",
		}),
		ExpiredMediaReads: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "birdbuddy_expired_media_reads_total",
			Help: "Number of reads that masked an expired media URL.",
		}),
		MQTTPublishes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "birdbuddy_mqtt_publishes_total",
			Help: "Number of MQTT messages published.",
		}),
		MQTTErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "birdbuddy_mqtt_errors_total",
			Help: "Number of failed MQTT publishes.",
		}),
	}

	collectors := []prometheus.Collector{
		m.PollRuns, m.PollErrors, m.FeedItems, m.PostcardEvents,
		m.VisitorUpdates, m.ObserverNotifies, m.BootstrapFetches,
		m.ExpiredMediaReads, m.MQTTPublishes, m.MQTTErrors,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}
