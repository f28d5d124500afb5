package devbackend

import (
	"context"
	"log/slog"
	"time"
)

// DefaultSweepInterval is used when FamilySweeper.Interval is not positive.
const DefaultSweepInterval = time.Hour

// FamilySweeper retires refresh-token families that can no longer mint a
// token: every member is revoked or past its expiry. Live families keep
// their rotated-away members so a replayed ancestor is still recognised.
type FamilySweeper struct {
	Store    *Store
	Logger   *slog.Logger
	Interval time.Duration
	Now      func() time.Time
}

// Run sweeps once right away and then every Interval until ctx ends.
func (s *FamilySweeper) Run(ctx context.Context) {
	interval := s.Interval
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	s.Logger.Info("family sweeper started", "interval", interval)
	defer s.Logger.Info("family sweeper stopped")

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			s.Sweep()
			timer.Reset(interval)
		}
	}
}

// Sweep prunes dead families once and reports how many families and tokens
// were dropped.
func (s *FamilySweeper) Sweep() (families, tokens int) {
	now := time.Now()
	if s.Now != nil {
		now = s.Now()
	}

	families, tokens = s.Store.PruneFamilies(now)
	if families > 0 {
		s.Logger.Debug("retired refresh token families",
			slog.Int("families", families),
			slog.Int("tokens", tokens),
		)
	}
	return families, tokens
}
