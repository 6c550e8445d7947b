// Package cycle is the pure laundry-cycle state machine.
//
// Apply validates a requested stage change against the edge table and returns the
// mutated entity, the transition log entry and, for timer stages, the timer the
// caller must start. Happiness and IsOverdue are read-time derivations; nothing
// in this package performs I/O or keeps state.
package cycle
