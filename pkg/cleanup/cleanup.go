// Package cleanup runs the periodic idempotency-key sweep described in
// §4.3.4: a ticker loop that deletes claim records older than a
// configured TTL, never invoked from a request path.
package cleanup

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/leynos/wildside-core/pkg/log"
	"github.com/leynos/wildside-core/pkg/metrics"
)

// Mediator is the subset of *idempotency.Mediator the sweep needs.
type Mediator interface {
	CleanupExpired(ctx context.Context, ttl time.Duration) (int64, error)
}

// Config bounds the sweep's cadence and retention.
type Config struct {
	Interval time.Duration
	TTL      time.Duration
}

// Sweeper runs Config.Interval-spaced CleanupExpired calls until Stop
// is called.
type Sweeper struct {
	mediator Mediator
	cfg      Config
	logger   zerolog.Logger
	stopCh   chan struct{}
}

func NewSweeper(mediator Mediator, cfg Config) *Sweeper {
	return &Sweeper{
		mediator: mediator,
		cfg:      cfg,
		logger:   log.WithComponent("idempotency-cleanup"),
		stopCh:   make(chan struct{}),
	}
}

// Start begins the sweep loop in its own goroutine.
func (s *Sweeper) Start() {
	go s.run()
}

// Stop ends the sweep loop.
func (s *Sweeper) Stop() {
	close(s.stopCh)
}

func (s *Sweeper) run() {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.logger.Info().Dur("interval", s.cfg.Interval).Dur("ttl", s.cfg.TTL).Msg("idempotency cleanup sweeper started")

	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.stopCh:
			s.logger.Info().Msg("idempotency cleanup sweeper stopped")
			return
		}
	}
}

func (s *Sweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Interval)
	defer cancel()

	deleted, err := s.mediator.CleanupExpired(ctx, s.cfg.TTL)
	if err != nil {
		s.logger.Error().Err(err).Msg("idempotency cleanup cycle failed")
		return
	}
	if deleted > 0 {
		metrics.IdempotencyCleanupDeletedTotal.Add(float64(deleted))
		s.logger.Info().Int64("deleted", deleted).Msg("idempotency cleanup cycle removed expired records")
	}
}
