package api

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/shrouq-haney/SIP-Over-WebRTC/internal/api/middleware"
	"github.com/shrouq-haney/SIP-Over-WebRTC/internal/handlers"
	"github.com/shrouq-haney/SIP-Over-WebRTC/internal/relay"
	"github.com/shrouq-haney/SIP-Over-WebRTC/internal/store"
)

// NewRouter creates and configures the HTTP router.
func NewRouter(logger zerolog.Logger, dispatcher *relay.Dispatcher, ds store.DataStore, redisStore *store.RedisStore, rateLimitWhitelist []string) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	// Rate limiting (requires Redis)
	if redisStore != nil {
		limiter := middleware.NewRateLimiter(redisStore.Client(), logger, rateLimitWhitelist)
		r.Use(limiter.Middleware)
	}

	// CORS - clients are browser apps served from anywhere
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	h := handlers.NewHandler(dispatcher, ds, redisStore, logger)

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/health", h.Health)

	// Live channel
	r.Get("/ws/{userId}", h.LiveChannel)

	// Signaling
	r.Route("/api/signaling", func(r chi.Router) {
		r.Post("/offer", h.SubmitOffer)
		r.Post("/answer", h.SubmitAnswer)
		r.Post("/candidate", h.SubmitCandidate)
		r.Get("/envelope", h.PollEnvelope)
		r.Get("/candidates", h.PollCandidates)
		r.Post("/hangup", h.Hangup)
		r.Post("/reject", h.Reject)
		r.Get("/call-status", h.CallStatus)
	})

	// Chat
	r.Route("/api/chat", func(r chi.Router) {
		r.Post("/messages", h.SendChatMessage)
		r.Get("/messages", h.GetMessages)
		r.Get("/unread", h.GetUnreadCounts)
	})

	// Durable presence
	r.Route("/api/users", func(r chi.Router) {
		r.Post("/{id}/heartbeat", h.Heartbeat)
		r.Post("/{id}/logout", h.Logout)
		r.Get("/online", h.OnlineUsers)
	})

	return r
}
