// Copyright 2025 Certen Protocol
//
// Package metrics exposes Prometheus counters for the orchestrator's command
// surface, following the same client_golang wiring pattern used elsewhere in
// this codebase's services.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// CommandsTotal counts every orchestrator command invocation by kind and
	// outcome ("ok" or a ports.ErrorKind string).
	CommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rusty_safe_commands_total",
		Help: "Total orchestrator commands processed, by command kind and outcome.",
	}, []string{"command", "outcome"})

	// WriterLockConflictsTotal counts rejected writer-lock acquisitions.
	WriterLockConflictsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rusty_safe_writer_lock_conflicts_total",
		Help: "Total writer-lock acquisition attempts rejected due to a held lease.",
	})

	// ProviderEventsDrainedTotal counts events drained from the Provider port.
	ProviderEventsDrainedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rusty_safe_provider_events_drained_total",
		Help: "Total provider events drained during recovery reconciliation.",
	})
)

// ObserveCommand records one command invocation's outcome.
func ObserveCommand(command, outcome string) {
	CommandsTotal.WithLabelValues(command, outcome).Inc()
}

// Handler returns the HTTP handler to mount at /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
