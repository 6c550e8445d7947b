package cycle

import "time"

// Fixed happiness scores for stages that are not waiting on the user.
const (
	HappinessWashing     = 85
	HappinessDrying      = 85
	HappinessWet         = 60
	HappinessReadyToFold = 70
	HappinessFolded      = 95
)

// Happiness scores an entity from 0 to 100 at now. Waiting stages decay
// linearly over the wash interval.
func Happiness(e Entity, now time.Time) int {
	switch e.Stage {
	case StageWashing:
		return HappinessWashing
	case StageDrying:
		return HappinessDrying
	case StageWetWaitingForDryer:
		return HappinessWet
	case StageReadyToFold:
		return HappinessReadyToFold
	case StageFolded:
		return HappinessFolded
	}

	if e.WashInterval <= 0 {
		return 0
	}
	elapsed := now.Sub(e.LastFullCleanAt)
	if elapsed <= 0 {
		return 100
	}
	if elapsed >= e.WashInterval {
		return 0
	}
	return 100 - int(int64(elapsed)*100/int64(e.WashInterval))
}

// IsOverdue reports whether a waiting entity has gone a full wash interval
// without a complete cycle.
func IsOverdue(e Entity, now time.Time) bool {
	switch e.Stage {
	case StageClean, StageDirty, StageAbandoned:
		return now.Sub(e.LastFullCleanAt) >= e.WashInterval
	default:
		return false
	}
}
