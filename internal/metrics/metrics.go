package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RefetchTotal counts authoritative refetch rounds by trigger
	// (startup, interval, mutation, broadcast, manual).
	RefetchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "biomark_refetch_total",
		Help: "Authoritative refetch rounds by trigger.",
	}, []string{"trigger"})

	// RefetchFailures counts per-collection fetch failures; one failing
	// collection never fails the round.
	RefetchFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "biomark_refetch_failures_total",
		Help: "Per-collection refetch failures.",
	}, []string{"collection"})

	// StaleRefetchDropped counts collection payloads discarded because a
	// newer refetch already applied.
	StaleRefetchDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "biomark_stale_refetch_dropped_total",
		Help: "Out-of-order refetch responses discarded.",
	})

	// MarksTotal counts accepted attendance records by status.
	MarksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "biomark_marks_total",
		Help: "Accepted attendance records by status.",
	}, []string{"status"})

	// ScansTotal counts lecturer-operated scans by outcome.
	ScansTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "biomark_scans_total",
		Help: "Lecturer scan attempts by outcome.",
	}, []string{"outcome"})

	// BroadcastSignals counts cross-context change signals observed.
	BroadcastSignals = promauto.NewCounter(prometheus.CounterOpts{
		Name: "biomark_broadcast_signals_total",
		Help: "Cross-context data-change signals received.",
	})
)
