package provisioning

import (
	"context"
	"sort"

	"github.com/campusconnect/events-backend/model"
	"github.com/campusconnect/events-backend/provision"
)

// StateCount is one per-state total in the stats view.
type StateCount struct {
	State string `json:"state"`
	Count int    `json:"count"`
}

// StuckView is the GraphQL shape of a stuck in-flight record.
type StuckView struct {
	ID          string                  `json:"id"`
	Username    string                  `json:"username"`
	State       string                  `json:"state"`
	CreatedAt   interface{}             `json:"createdAt"`
	Age         string                  `json:"age"`
	Transitions []model.StateTransition `json:"transitions"`
}

// StatsView is the GraphQL shape of the provisioning aggregate.
type StatsView struct {
	CountsByState    []StateCount `json:"countsByState"`
	StuckRecordCount int          `json:"stuckRecordCount"`
	StuckRecords     []StuckView  `json:"stuckRecords"`
}

// ResolveStats aggregates provisioning stats for the GraphQL endpoint.
func ResolveStats(ctx context.Context, store provision.Store, cfg provision.Config) (*StatsView, error) {
	stats, err := provision.Stats(ctx, store, cfg)
	if err != nil {
		return nil, err
	}

	view := &StatsView{
		CountsByState:    []StateCount{},
		StuckRecordCount: stats.StuckRecordCount,
		StuckRecords:     []StuckView{},
	}
	for state, count := range stats.CountsByState {
		view.CountsByState = append(view.CountsByState, StateCount{State: string(state), Count: count})
	}
	sort.Slice(view.CountsByState, func(i, j int) bool {
		return view.CountsByState[i].State < view.CountsByState[j].State
	})
	for _, rec := range stats.StuckRecords {
		view.StuckRecords = append(view.StuckRecords, StuckView{
			ID:          rec.ID,
			Username:    rec.Username,
			State:       string(rec.State),
			CreatedAt:   rec.CreatedAt,
			Age:         rec.Age,
			Transitions: rec.Transitions,
		})
	}
	return view, nil
}
