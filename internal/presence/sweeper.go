package presence

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/shrouq-haney/SIP-Over-WebRTC/internal/metrics"
	"github.com/shrouq-haney/SIP-Over-WebRTC/internal/store"
)

const (
	// DefaultSweepInterval is how often stale heartbeats are checked.
	DefaultSweepInterval = time.Minute
	// DefaultHeartbeatTimeout is how stale a heartbeat may be before
	// the user is demoted to offline.
	DefaultHeartbeatTimeout = 2 * time.Minute
)

// Sweeper periodically demotes users whose heartbeat has expired from
// online to offline in the durable store. It never touches the
// in-memory registry: live connections and heartbeats are independent
// presence signals.
type Sweeper struct {
	store    store.DataStore
	redis    *store.RedisStore // optional; nil disables cache invalidation
	interval time.Duration
	timeout  time.Duration
	logger   zerolog.Logger

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// NewSweeper constructs a Sweeper. Zero interval or timeout fall back
// to the defaults.
func NewSweeper(ds store.DataStore, redis *store.RedisStore, interval, timeout time.Duration, logger zerolog.Logger) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if timeout <= 0 {
		timeout = DefaultHeartbeatTimeout
	}
	return &Sweeper{
		store:    ds,
		redis:    redis,
		interval: interval,
		timeout:  timeout,
		logger:   logger.With().Str("component", "sweeper").Logger(),
	}
}

// Start launches the sweep loop. The loop runs until Stop is called or
// ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.logger.Info().
			Dur("interval", s.interval).
			Dur("timeout", s.timeout).
			Msg("presence sweeper started")

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.sweep(ctx)
			}
		}
	}()
}

// Stop cancels the loop and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	s.once.Do(func() {
		if s.cancel != nil {
			s.cancel()
			<-s.done
		}
		s.logger.Info().Msg("presence sweeper stopped")
	})
}

func (s *Sweeper) sweep(ctx context.Context) {
	demoted, err := s.store.MarkStaleUsersOffline(ctx, s.timeout)
	if err != nil {
		s.logger.Error().Err(err).Msg("sweep failed")
		return
	}
	metrics.SweepsRun.Inc()
	if demoted == 0 {
		return
	}
	metrics.UsersDemoted.Add(float64(demoted))
	s.logger.Info().Int64("demoted", demoted).Msg("stale users set offline")

	if s.redis != nil {
		if err := s.redis.InvalidateOnlineUsers(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("online-users cache invalidation failed")
		}
	}
}
