package cycle

import (
	"fmt"

	foundationerrors "git.home.luguber.info/inful/laundrycycle/internal/foundation/errors"
)

// Stage is the discrete laundry-cycle state of one entity.
type Stage string

const (
	StageClean              Stage = "clean"
	StageDirty              Stage = "dirty"
	StageWashing            Stage = "washing"
	StageWetWaitingForDryer Stage = "wet_waiting_for_dryer"
	StageDrying             Stage = "drying"
	StageReadyToFold        Stage = "ready_to_fold"
	StageFolded             Stage = "folded"
	StageAbandoned          Stage = "abandoned"
)

// Stages lists every stage in cycle order.
var Stages = []Stage{
	StageClean,
	StageDirty,
	StageWashing,
	StageWetWaitingForDryer,
	StageDrying,
	StageReadyToFold,
	StageFolded,
	StageAbandoned,
}

// Valid reports whether s is a known stage.
func (s Stage) Valid() bool {
	for _, known := range Stages {
		if s == known {
			return true
		}
	}
	return false
}

func (s Stage) String() string { return string(s) }

// TimerKind returns the timer that drives s, if any.
func (s Stage) TimerKind() (TimerKind, bool) {
	switch s {
	case StageWashing:
		return TimerWash, true
	case StageDrying:
		return TimerDry, true
	default:
		return "", false
	}
}

// ParseStage converts a wire value into a Stage.
func ParseStage(v string) (Stage, error) {
	s := Stage(v)
	if !s.Valid() {
		return "", foundationerrors.ValidationError(fmt.Sprintf("unknown stage %q", v)).
			WithContext("stage", v).
			Build()
	}
	return s, nil
}

// Cause records what triggered a transition.
type Cause string

const (
	CauseUserAction      Cause = "user_action"
	CauseTimerCompletion Cause = "timer_completion"
	CauseDirtinessSweep  Cause = "dirtiness_sweep"
	CauseRecovery        Cause = "recovery"
	CauseEscalation      Cause = "escalation"
)

// Valid reports whether c is a known cause.
func (c Cause) Valid() bool {
	switch c {
	case CauseUserAction, CauseTimerCompletion, CauseDirtinessSweep, CauseRecovery, CauseEscalation:
		return true
	default:
		return false
	}
}

// TimerKind identifies which duration a timer tracks.
type TimerKind string

const (
	TimerWash TimerKind = "wash"
	TimerDry  TimerKind = "dry"
)

// Valid reports whether k is a known timer kind.
func (k TimerKind) Valid() bool { return k == TimerWash || k == TimerDry }

// Stage is the stage the timer runs in.
func (k TimerKind) Stage() Stage {
	if k == TimerDry {
		return StageDrying
	}
	return StageWashing
}

// CompletionStage is where the entity goes when the timer elapses.
func (k TimerKind) CompletionStage() Stage {
	if k == TimerDry {
		return StageReadyToFold
	}
	return StageWetWaitingForDryer
}
