package provision

import (
	"context"
	"time"

	"github.com/campusconnect/events-backend/model"
)

// StuckRecord is a diagnostic view of an in-flight account that has been
// sitting in CREATING or PENDING past the staleness threshold.
type StuckRecord struct {
	ID          string                  `json:"id"`
	Username    string                  `json:"username"`
	State       model.AccountState      `json:"state"`
	CreatedAt   time.Time               `json:"created_at"`
	Age         string                  `json:"age"`
	Transitions []model.StateTransition `json:"transitions"`
}

// ProvisioningStats is the read-only aggregate served to admin callers.
// Its staleness view is independent from, and a superset of, what the
// sweeper acts on.
type ProvisioningStats struct {
	CountsByState    map[model.AccountState]int `json:"counts_by_state"`
	StuckRecordCount int                        `json:"stuck_record_count"`
	StuckRecords     []StuckRecord              `json:"stuck_records"`
}

// statsRecordLimit bounds how many stuck records one stats call returns.
const statsRecordLimit = 200

// Stats aggregates account counts per state and surfaces stuck in-flight
// records older than the configured threshold.
func Stats(ctx context.Context, store Store, cfg Config) (*ProvisioningStats, error) {
	counts, err := store.CountsByState(ctx)
	if err != nil {
		return nil, err
	}

	cutoff := time.Now().Add(-cfg.StuckThreshold)
	stats := &ProvisioningStats{
		CountsByState: counts,
		StuckRecords:  []StuckRecord{},
	}

	for _, state := range []model.AccountState{model.StateCreating, model.StatePending} {
		stale, err := store.StaleInState(ctx, state, cutoff, statsRecordLimit)
		if err != nil {
			return nil, err
		}
		for _, acct := range stale {
			stats.StuckRecords = append(stats.StuckRecords, StuckRecord{
				ID:          acct.ID,
				Username:    acct.Username,
				State:       acct.AccountState,
				CreatedAt:   acct.CreatedAt,
				Age:         time.Since(acct.CreatedAt).Round(time.Second).String(),
				Transitions: acct.StateTransitions,
			})
		}
	}
	stats.StuckRecordCount = len(stats.StuckRecords)
	return stats, nil
}
