package coordinator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels of nexusmods_coordinator_requests_total.
const (
	outcomeHit       = "hit"       // fast path cache hit
	outcomeShared    = "shared"    // refreshed by another caller while waiting for the lock
	outcomeFetched   = "fetched"   // new upstream body decoded and stored
	outcomeUnchanged = "unchanged" // upstream body identical to the previous one
	outcomeStale     = "stale"     // upstream failed, previous value extended
	outcomeAbsent    = "absent"    // no value available
)

var (
	coordinatorRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nexusmods_coordinator_requests_total",
			Help: "GetOrFetch calls by outcome",
		},
		[]string{"outcome"},
	)

	coordinatorFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nexusmods_coordinator_failures_total",
			Help: "Failures absorbed by the coordinator by error class",
		},
		[]string{"error_class"},
	)
)
