// Package sweep expires delivered documents whose validity window elapsed.
package sweep

import (
	"context"
	"time"

	"github.com/quotient-app/quotient/internal/lifecycle"
	"github.com/rs/zerolog"
)

type Sweeper struct {
	svc      *lifecycle.Service
	interval time.Duration
	log      zerolog.Logger
}

func New(svc *lifecycle.Service, interval time.Duration, log zerolog.Logger) *Sweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Sweeper{svc: svc, interval: interval, log: log}
}

// Run sweeps on the configured interval until the context is cancelled. One
// pass runs immediately so a freshly started process catches up.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	s.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// RunOnce performs a single sweep pass.
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	return s.svc.ExpireDue(ctx, time.Now())
}

func (s *Sweeper) sweep(ctx context.Context) {
	expired, err := s.RunOnce(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("expiry sweep failed")
		return
	}
	if expired > 0 {
		s.log.Info().Int("expired", expired).Msg("expiry sweep completed")
	}
}
