// Package coordinator is the single path through which laundry entities change
// stage.
//
// User actions, fired timers, the dirtiness sweep, recovery and escalation all
// end up in the same apply step, run under the entity's key lock. That step
// validates the edge, starts the timer the new stage needs, commits the entity
// and its log entry in one repository transaction, retires a timer the entity
// left behind, and only then updates the in-memory view and notifies.
package coordinator
