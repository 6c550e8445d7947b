package sqlite

import (
	"context"
	"fmt"

	"git.home.luguber.info/inful/laundrycycle/internal/cycle"
	"git.home.luguber.info/inful/laundrycycle/internal/timer"
)

// TimerStore implements timer.Store on the timers table.
type TimerStore struct {
	s *Store
}

var _ timer.Store = (*TimerStore)(nil)

func (t *TimerStore) LoadAll(ctx context.Context) ([]timer.Record, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()

	rows, err := t.s.db.QueryContext(ctx,
		`SELECT entity_id, timer_id, kind, started_at, expires_at FROM timers ORDER BY expires_at`)
	if err != nil {
		return nil, fmt.Errorf("query timers: %w", err)
	}
	defer rows.Close()

	var out []timer.Record
	for rows.Next() {
		var (
			rec              timer.Record
			kind             string
			started, expires int64
		)
		if err := rows.Scan(&rec.EntityID, &rec.TimerID, &kind, &started, &expires); err != nil {
			return nil, fmt.Errorf("scan timer: %w", err)
		}
		rec.Kind = cycle.TimerKind(kind)
		rec.StartedAt = fromMillis(started)
		rec.ExpiresAt = fromMillis(expires)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate timers: %w", err)
	}
	return out, nil
}

func (t *TimerStore) Save(ctx context.Context, rec timer.Record) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	_, err := t.s.db.ExecContext(ctx,
		`INSERT INTO timers (entity_id, timer_id, kind, started_at, expires_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(entity_id) DO UPDATE SET
			timer_id = excluded.timer_id,
			kind = excluded.kind,
			started_at = excluded.started_at,
			expires_at = excluded.expires_at`,
		rec.EntityID, rec.TimerID, string(rec.Kind), toMillis(rec.StartedAt), toMillis(rec.ExpiresAt),
	)
	if err != nil {
		return fmt.Errorf("upsert timer %s: %w", rec.EntityID, err)
	}
	return nil
}

func (t *TimerStore) Delete(ctx context.Context, entityID string) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	if _, err := t.s.db.ExecContext(ctx, `DELETE FROM timers WHERE entity_id = ?`, entityID); err != nil {
		return fmt.Errorf("delete timer %s: %w", entityID, err)
	}
	return nil
}
