// Package metrics provides the observability hooks for the cycle coordinator,
// timer orchestrator and notifier.
//
// # Design Philosophy
//
// This package implements the Null Object pattern so components can record
// metrics without nil checks. Every component defaults to NoopRecorder and
// receives a real Recorder through an option when the daemon enables metrics.
//
//	orch := timer.NewOrchestrator(store, timer.WithRecorder(recorder))
//
// PrometheusRecorder registers its collectors on the registry it is given and
// HTTPHandler exposes that registry on /metrics.
package metrics
