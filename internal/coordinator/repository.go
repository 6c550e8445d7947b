package coordinator

import (
	"context"

	"git.home.luguber.info/inful/laundrycycle/internal/cycle"
)

// Repository persists entities and their transition log.
type Repository interface {
	LoadEntities(ctx context.Context) ([]cycle.Entity, error)
	SaveEntity(ctx context.Context, e cycle.Entity) error
	// CommitTransition stores the entity and appends entry atomically.
	CommitTransition(ctx context.Context, e cycle.Entity, entry cycle.LogEntry) error
	History(ctx context.Context, entityID string) ([]cycle.LogEntry, error)
}
