/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "jukebox"

var (
	// TracksStarted counts entries that reached the playing slot, by origin.
	TracksStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tracks_started_total",
		Help:      "Queue entries that started playing.",
	}, []string{"origin"})

	// TracksFinished counts entries leaving the playing slot, by final state.
	TracksFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tracks_finished_total",
		Help:      "Queue entries that finished, by terminal state.",
	}, []string{"state"})

	StartFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "start_failures_total",
		Help:      "Failed attempts to start an entry, by kind (hard or soft).",
	}, []string{"kind"})

	QueueLength = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "queue_length",
		Help:      "Entries waiting in the queue.",
	})

	HistoryLength = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "history_length",
		Help:      "Entries in the recent history.",
	})

	PlayingEnabled = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "playing_enabled",
		Help:      "1 when playing is enabled.",
	})

	// SubprocessExits counts player and decoder exits, by outcome.
	SubprocessExits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "subprocess_exits_total",
		Help:      "Player and decoder process exits.",
	}, []string{"outcome"})

	ChooserDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "chooser_pass_duration_seconds",
		Help:      "Time spent in one weighted selection pass.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
	})

	ChooserEligible = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "chooser_eligible_tracks",
		Help:      "Tracks with nonzero weight in the last selection pass.",
	})

	SpeakerMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "speaker_messages_total",
		Help:      "Messages exchanged with the speaker, by direction and type.",
	}, []string{"direction", "type"})

	APIRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "api_requests_total",
		Help:      "Status API requests.",
	}, []string{"method", "endpoint", "status"})

	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "api_request_duration_seconds",
		Help:      "Status API request latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "endpoint", "status"})

	APIActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "api_active_connections",
		Help:      "Status API requests in flight.",
	})

	DatabaseQueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "database_query_duration_seconds",
		Help:      "Queue database operation latency.",
		Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5, 1},
	}, []string{"operation", "table"})

	DatabaseErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "database_errors_total",
		Help:      "Queue database operations that failed.",
	}, []string{"operation", "table"})

	DatabaseConnectionsOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "database_connections_open",
		Help:      "Open queue database connections.",
	})
)

// Handler exposes metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
