package provision

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/campusconnect/events-backend/model"
)

// SweepResult summarizes one reclamation run.
type SweepResult struct {
	CreatingDeleted int           `json:"creating_deleted"`
	ErrorDeleted    int           `json:"error_deleted"`
	PendingRevived  int           `json:"pending_revived"`
	Duration        time.Duration `json:"duration_ns"`
}

// Sweeper is the background reclamation task. Each run makes three
// batch-bounded passes: delete CREATING records older than the creating
// TTL (orphans from a crash between the two creation writes), delete
// ERROR records older than the error TTL (after operators had a window to
// inspect them), and re-attempt activation of PENDING records older than
// the creating TTL (a crash between commit and the post-commit promotion
// leaves those behind). Every pass only touches records already past
// their timeout, so running concurrently with live traffic is safe.
type Sweeper struct {
	store  Store
	cfg    Config
	logger *zap.Logger
}

// NewSweeper builds a reclamation sweeper.
func NewSweeper(store Store, cfg Config, logger *zap.Logger) *Sweeper {
	return &Sweeper{store: store, cfg: cfg, logger: logger}
}

// Start runs the sweeper on its configured interval until ctx is
// cancelled. Call it in its own goroutine.
func (s *Sweeper) Start(ctx context.Context) {
	s.logger.Info("reclamation sweeper started",
		zap.Duration("interval", s.cfg.SweepInterval))

	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("reclamation sweeper stopped")
			return
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil {
				s.logger.Error("reclamation sweep failed", zap.Error(err))
			}
		}
	}
}

// RunOnce executes one full reclamation run. It is also the backing for
// the manual trigger endpoint.
func (s *Sweeper) RunOnce(ctx context.Context) (*SweepResult, error) {
	start := time.Now()
	sweepRunsTotal.Inc()

	result := &SweepResult{}

	creating, err := s.store.DeleteStale(ctx, model.StateCreating,
		time.Now().Add(-s.cfg.CreatingTTL), s.cfg.SweepBatchSize)
	if err != nil {
		return nil, err
	}
	result.CreatingDeleted = creating
	sweepReclaimedTotal.WithLabelValues("creating").Add(float64(creating))

	errored, err := s.store.DeleteStale(ctx, model.StateError,
		time.Now().Add(-s.cfg.ErrorTTL), s.cfg.SweepBatchSize)
	if err != nil {
		return nil, err
	}
	result.ErrorDeleted = errored
	sweepReclaimedTotal.WithLabelValues("error").Add(float64(errored))

	revived, err := s.reviveStalePending(ctx)
	if err != nil {
		return nil, err
	}
	result.PendingRevived = revived
	sweepReclaimedTotal.WithLabelValues("pending").Add(float64(revived))

	result.Duration = time.Since(start)

	if creating > 0 || errored > 0 || revived > 0 {
		s.logger.Info("reclamation sweep complete",
			zap.Int("creating_deleted", creating),
			zap.Int("error_deleted", errored),
			zap.Int("pending_revived", revived),
			zap.Duration("duration", result.Duration))
	}
	return result, nil
}

// reviveStalePending finishes the activation that a crashed process never
// got to. Records still PENDING past the creating TTL are individually
// promoted; the store call is a no-op for any that moved on meanwhile.
func (s *Sweeper) reviveStalePending(ctx context.Context) (int, error) {
	stale, err := s.store.StaleInState(ctx, model.StatePending,
		time.Now().Add(-s.cfg.CreatingTTL), s.cfg.SweepBatchSize)
	if err != nil {
		return 0, err
	}

	revived := 0
	for _, acct := range stale {
		if err := s.store.PromoteToActive(ctx, acct.ID); err != nil {
			s.logger.Warn("failed to revive stale PENDING account",
				zap.String("account_id", acct.ID),
				zap.Error(err))
			continue
		}
		revived++
	}
	return revived, nil
}
