package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "relay_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Signaling metrics
	EnvelopesEnqueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_envelopes_enqueued_total",
			Help: "Signaling envelopes written to the mailbox",
		},
		[]string{"kind"}, // "offer" or "answer"
	)

	EnvelopesConsumed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_envelopes_consumed_total",
			Help: "Signaling envelopes delivered by poll",
		},
	)

	CandidatesQueued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_candidates_queued_total",
			Help: "ICE candidates appended",
		},
	)

	CandidatesDrained = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_candidates_drained_total",
			Help: "ICE candidates delivered by drain",
		},
	)

	// Live-channel metrics
	LivePushes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_live_pushes_total",
			Help: "Best-effort live deliveries",
		},
		[]string{"frame"}, // "offer", "answer", "chat", "hangup", "receipt"
	)

	LivePushFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_live_push_failures_total",
			Help: "Live deliveries that failed because the peer dropped",
		},
	)

	ActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_active_connections",
			Help: "Currently registered live connections",
		},
	)

	// Chat metrics
	ChatMessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_chat_messages_total",
			Help: "Chat messages persisted",
		},
	)

	// Call lifecycle metrics
	CallTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_call_transitions_total",
			Help: "Call session status transitions requested",
		},
		[]string{"status"},
	)

	// Sweeper metrics
	SweepsRun = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_presence_sweeps_total",
			Help: "Presence sweeps completed",
		},
	)

	UsersDemoted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_users_demoted_total",
			Help: "Users demoted to offline by the sweeper",
		},
	)

	// Rate limit metrics
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_rate_limit_hits_total",
			Help: "Total rate limit hits",
		},
		[]string{"endpoint"},
	)
)
