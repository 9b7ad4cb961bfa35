// Package metrics holds the Prometheus collectors of the server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	WSConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "escape_ws_connections",
		Help: "Current number of open websocket connections",
	})
	LiveHubs = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "escape_room_hubs",
		Help: "Current number of rooms with a broadcast hub",
	})
	IntentsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "escape_intents_total",
		Help: "Client intents received, by canonical type",
	}, []string{"type"})
	BroadcastsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "escape_broadcasts_total",
		Help: "Room events delivered to hubs, by event type",
	}, []string{"type"})
	ErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "escape_errors_total",
		Help: "Errors signalled to clients, by code",
	}, []string{"code"})
	GamesFinishedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "escape_games_finished_total",
		Help: "Countdowns that stopped, by reason",
	}, []string{"reason"})
	DroppedFramesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "escape_frames_dropped_total",
		Help: "Frames that could not be queued, by the buffer that was full",
	}, []string{"buffer"})
	PanicsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "escape_panics_recovered_total",
		Help: "Panics recovered in HTTP handlers and room tasks",
	})
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})
)

func init() {
	prometheus.MustRegister(
		WSConnections,
		LiveHubs,
		IntentsTotal,
		BroadcastsTotal,
		ErrorsTotal,
		GamesFinishedTotal,
		DroppedFramesTotal,
		PanicsTotal,
		HTTPRequestsTotal,
		HTTPRequestDuration,
	)
}
