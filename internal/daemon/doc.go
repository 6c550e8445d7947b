// Package daemon runs laundrycycle as a long-lived service.
//
// The daemon owns the stores, the timer orchestrator and the coordinator. It
// restores persisted timers on start, seeds configured categories, runs the
// maintenance tick on a gocron schedule, serves the HTTP API and reloads the
// configuration file when it changes.
package daemon
