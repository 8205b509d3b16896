package provision

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Provisioning metrics, exported on /metrics.
var (
	// resolveTotal counts resolveAccount outcomes.
	resolveTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cc_provision_resolve_total",
		Help: "Account resolution calls by outcome",
	}, []string{"outcome"})

	// retriesTotal counts transient failures that triggered a retry.
	retriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cc_provision_retries_total",
		Help: "Reconciliation attempts retried after a transient failure",
	})

	// sweepRunsTotal counts reclamation sweep runs.
	sweepRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cc_provision_sweep_runs_total",
		Help: "Reclamation sweep runs",
	})

	// sweepReclaimedTotal counts records removed or repaired per sweep pass.
	sweepReclaimedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cc_provision_sweep_reclaimed_total",
		Help: "Accounts reclaimed by the sweeper, by pass",
	}, []string{"pass"})
)
