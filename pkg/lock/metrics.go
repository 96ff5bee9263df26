package lock

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	lockKeys = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "nexusmods_lock_keys",
		Help: "Number of locks held by a lock registry",
	}, []string{"registry"})

	lockWaitSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "nexusmods_lock_wait_seconds",
		Help:    "Time spent waiting to acquire a per-key lock",
		Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 10},
	}, []string{"registry"})

	lockAcquireFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nexusmods_lock_acquire_failures_total",
		Help: "Lock acquisitions abandoned because the context was done",
	}, []string{"registry"})
)
