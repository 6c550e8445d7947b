// Package timer owns the durable countdowns behind the washing and drying stages.
//
// A countdown is written to a Store before it is armed in memory, so a process
// that dies at any point either never started the timer or finds the record on
// the next Restore. Restore treats records that expired while no process was
// running exactly like a live countdown elapsing: both go through the same fire
// path and reach the Handler once.
//
// Start and Cancel expect the caller to hold the entity's key in the shared
// Locker. The fire path takes the same key before checking that the countdown is
// still live, so a Cancel that returned can never be followed by a late Fired.
package timer
