// Package sweep finds clean entities whose wash interval has run out.
package sweep

import (
	"time"

	"git.home.luguber.info/inful/laundrycycle/internal/cycle"
)

// Sweep returns the ids of clean entities that are due to become dirty at now,
// in input order. It performs no mutation; the caller applies clean→dirty with
// cycle.CauseDirtinessSweep.
func Sweep(entities []cycle.Entity, now time.Time) []string {
	var due []string
	for _, e := range entities {
		if e.Stage != cycle.StageClean {
			continue
		}
		if now.Sub(e.LastFullCleanAt) >= e.WashInterval {
			due = append(due, e.ID)
		}
	}
	return due
}
