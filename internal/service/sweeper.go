package service

import (
	"context"
	"log/slog"
	"time"

	"pulse/internal/clock"
	"pulse/internal/observability"
	"pulse/internal/repository"
)

// ExpirySweeper persists Expired for posts nobody has read since their
// deadline. Reads and writes resolve expiry on their own, so the sweep only
// keeps stored status close to the truth.
type ExpirySweeper struct {
	postRepo repository.PostRepository
	clock    clock.Clock
	interval time.Duration
	timeout  time.Duration
}

func NewExpirySweeper(postRepo repository.PostRepository, clk clock.Clock, interval, timeout time.Duration) *ExpirySweeper {
	return &ExpirySweeper{postRepo: postRepo, clock: clk, interval: interval, timeout: timeout}
}

// SweepOnce expires every due post and returns how many flipped.
func (s *ExpirySweeper) SweepOnce(ctx context.Context) (int64, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	return s.postRepo.ExpireDue(ctx, s.clock.Now())
}

// Run sweeps on every tick until ctx ends. A zero interval disables it.
func (s *ExpirySweeper) Run(ctx context.Context) {
	if s.interval <= 0 {
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.SweepOnce(ctx)
			if err != nil {
				observability.Logger.WarnContext(ctx, "expiry sweep failed", slog.String("error", err.Error()))
				continue
			}
			if n > 0 {
				observability.Logger.InfoContext(ctx, "expired posts", slog.Int64("count", n))
			}
		}
	}
}
