package cycle

import (
	"time"

	foundationerrors "git.home.luguber.info/inful/laundrycycle/internal/foundation/errors"
)

// ErrInvalidTransition is returned for any edge outside Transitions.
var ErrInvalidTransition = foundationerrors.TransitionError("invalid transition").Build()

// Transition is one allowed stage edge.
type Transition struct {
	From Stage
	To   Stage
}

// Transitions lists the edges reachable by ordinary causes. Escalation to
// StageAbandoned is handled separately and is allowed from every other stage.
var Transitions = []Transition{
	{From: StageClean, To: StageDirty},
	{From: StageClean, To: StageWashing},
	{From: StageDirty, To: StageWashing},
	{From: StageWashing, To: StageWetWaitingForDryer},
	{From: StageWetWaitingForDryer, To: StageDrying},
	{From: StageDrying, To: StageReadyToFold},
	{From: StageReadyToFold, To: StageFolded},
	{From: StageFolded, To: StageClean},
	{From: StageAbandoned, To: StageWashing},
	{From: StageAbandoned, To: StageClean},
}

// Allowed reports whether from→to is permitted for cause.
func Allowed(from, to Stage, cause Cause) bool {
	if !from.Valid() || !to.Valid() || !cause.Valid() {
		return false
	}
	if to == StageAbandoned || cause == CauseEscalation {
		return to == StageAbandoned && cause == CauseEscalation && from != StageAbandoned
	}
	for _, t := range Transitions {
		if t.From == from && t.To == to {
			return true
		}
	}
	return false
}

// TimerRequest instructs the caller to start a countdown.
type TimerRequest struct {
	Kind     TimerKind
	Duration time.Duration
}

// Outcome is the result of a successful Apply.
type Outcome struct {
	Entity Entity
	Entry  LogEntry
	// Timer is set when the new stage is timer-driven.
	Timer *TimerRequest
}

// LeftTimerStage reports whether the transition moved the entity out of a
// timer-driven stage, leaving a countdown the caller has to retire.
func (o Outcome) LeftTimerStage() bool {
	_, was := o.Entry.From.TimerKind()
	return was && o.Entry.From != o.Entry.To
}

// Apply validates and performs a transition. e is never modified; on error the
// zero Outcome is returned.
func Apply(e Entity, to Stage, cause Cause, now time.Time) (Outcome, error) {
	if !Allowed(e.Stage, to, cause) {
		return Outcome{}, ErrInvalidTransition.
			WithContext("entity_id", e.ID).
			WithContext("from", string(e.Stage)).
			WithContext("to", string(to)).
			WithContext("cause", string(cause))
	}

	next := e
	next.Stage = to
	next.LastStageChangeAt = now

	switch {
	case e.Stage == StageFolded && to == StageClean:
		next.CompletedCycles++
		next.LastFullCleanAt = now
	case e.Stage == StageAbandoned && to == StageClean:
		next.LastFullCleanAt = now
	}

	out := Outcome{
		Entity: next,
		Entry: LogEntry{
			EntityID: e.ID,
			From:     e.Stage,
			To:       to,
			Cause:    cause,
			At:       now,
		},
	}

	switch to {
	case StageWashing:
		out.Timer = &TimerRequest{Kind: TimerWash, Duration: e.WashDuration}
	case StageDrying:
		out.Timer = &TimerRequest{Kind: TimerDry, Duration: e.DryDuration}
	}
	return out, nil
}
