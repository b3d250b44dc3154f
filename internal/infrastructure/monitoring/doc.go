/*
Package monitoring provides metrics collection for the expansion engine.

# Overview

Prometheus counters, gauges and histograms track building block expansions,
failures by error code, diagnostic re-renders and the indirect store. A
snapshot of running totals is kept alongside for summaries.

# Usage

	// Create metrics collector on a registry
	reg := prometheus.NewRegistry()
	metrics := monitoring.NewMetrics(reg)

	// Time an expansion
	timer := monitoring.NewTimer(metrics, "Field")
	// ... expand ...
	timer.Stop("done")

	// Record failures and store state
	metrics.RecordFailure("Field", "BB100")
	metrics.SetStoreSize(store.Len())

A nil *Metrics records nothing, so callers never need to guard.
*/
package monitoring
