package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"git.home.luguber.info/inful/laundrycycle/internal/cycle"
)

const entityColumns = `id, name, stage, wash_interval_seconds, wash_duration_seconds, dry_duration_seconds,
	last_full_clean_at, last_stage_change_at, created_at, completed_cycles`

const upsertEntity = `INSERT INTO entities (` + entityColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		name = excluded.name,
		stage = excluded.stage,
		wash_interval_seconds = excluded.wash_interval_seconds,
		wash_duration_seconds = excluded.wash_duration_seconds,
		dry_duration_seconds = excluded.dry_duration_seconds,
		last_full_clean_at = excluded.last_full_clean_at,
		last_stage_change_at = excluded.last_stage_change_at,
		completed_cycles = excluded.completed_cycles`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func saveEntity(ctx context.Context, db execer, e cycle.Entity) error {
	_, err := db.ExecContext(ctx, upsertEntity,
		e.ID, e.Name, string(e.Stage),
		toSeconds(e.WashInterval), toSeconds(e.WashDuration), toSeconds(e.DryDuration),
		toMillis(e.LastFullCleanAt), toMillis(e.LastStageChangeAt), toMillis(e.CreatedAt),
		e.CompletedCycles,
	)
	if err != nil {
		return fmt.Errorf("upsert entity %s: %w", e.ID, err)
	}
	return nil
}

// SaveEntity inserts or updates an entity.
func (s *Store) SaveEntity(ctx context.Context, e cycle.Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveEntity(ctx, s.db, e)
}

// LoadEntities returns every entity ordered by creation time.
func (s *Store) LoadEntities(ctx context.Context) ([]cycle.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT `+entityColumns+` FROM entities ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("query entities: %w", err)
	}
	defer rows.Close()

	var out []cycle.Entity
	for rows.Next() {
		var (
			e                              cycle.Entity
			stage                          string
			interval, washDur, dryDur      int64
			lastClean, lastChange, created int64
		)
		if err := rows.Scan(&e.ID, &e.Name, &stage, &interval, &washDur, &dryDur,
			&lastClean, &lastChange, &created, &e.CompletedCycles); err != nil {
			return nil, fmt.Errorf("scan entity: %w", err)
		}
		e.Stage = cycle.Stage(stage)
		e.WashInterval = fromSeconds(interval)
		e.WashDuration = fromSeconds(washDur)
		e.DryDuration = fromSeconds(dryDur)
		e.LastFullCleanAt = fromMillis(lastClean)
		e.LastStageChangeAt = fromMillis(lastChange)
		e.CreatedAt = fromMillis(created)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entities: %w", err)
	}
	return out, nil
}

// CommitTransition saves the mutated entity and appends its log entry in one
// transaction. Either both are stored or neither is.
func (s *Store) CommitTransition(ctx context.Context, e cycle.Entity, entry cycle.LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transition: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := saveEntity(ctx, tx, e); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO transitions (entity_id, from_stage, to_stage, cause, at) VALUES (?, ?, ?, ?, ?)`,
		entry.EntityID, string(entry.From), string(entry.To), string(entry.Cause), toMillis(entry.At),
	); err != nil {
		return fmt.Errorf("append transition: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transition: %w", err)
	}
	return nil
}

// History returns the transition log for one entity, oldest first.
func (s *Store) History(ctx context.Context, entityID string) ([]cycle.LogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT entity_id, from_stage, to_stage, cause, at FROM transitions WHERE entity_id = ? ORDER BY id`,
		entityID,
	)
	if err != nil {
		return nil, fmt.Errorf("query transitions: %w", err)
	}
	defer rows.Close()

	var out []cycle.LogEntry
	for rows.Next() {
		var (
			entry           cycle.LogEntry
			from, to, cause string
			at              int64
		)
		if err := rows.Scan(&entry.EntityID, &from, &to, &cause, &at); err != nil {
			return nil, fmt.Errorf("scan transition: %w", err)
		}
		entry.From = cycle.Stage(from)
		entry.To = cycle.Stage(to)
		entry.Cause = cycle.Cause(cause)
		entry.At = fromMillis(at)
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transitions: %w", err)
	}
	return out, nil
}
