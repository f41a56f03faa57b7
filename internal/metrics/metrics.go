// Package metrics exposes the Prometheus collectors for the chat
// server. Collectors are package-level so the hot paths can update
// them without carrying a registry handle.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ConnectedClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "parley_connected_clients",
		Help: "Number of currently connected chat sessions",
	})
	SessionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "parley_sessions_total",
		Help: "Total accepted TCP sessions, including rejected logins",
	})
	AuthFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "parley_auth_failures_total",
		Help: "Total rejected authentication attempts",
	})
	Messages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "parley_messages_total",
		Help: "Messages accepted by kind",
	}, []string{"kind"})
	OfflineQueued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "parley_offline_queued_total",
		Help: "Private messages queued for offline recipients",
	})
	Claims = promauto.NewCounter(prometheus.CounterOpts{
		Name: "parley_claims_total",
		Help: "Complaints filed against users",
	})
	Bans = promauto.NewCounter(prometheus.CounterOpts{
		Name: "parley_bans_total",
		Help: "Mutes issued after repeated complaints",
	})
	HistorySwept = promauto.NewCounter(prometheus.CounterOpts{
		Name: "parley_history_swept_total",
		Help: "History messages removed by the TTL sweep",
	})
	FramesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "parley_frames_dropped_total",
		Help: "Outbound frames dropped because a session writer stalled",
	})
)

// Handler serves the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
