package sqlite

import (
	"context"
	"fmt"
	"time"
)

func (s *Store) TryAcquireLock(ctx context.Context, name string, until time.Time, owner string) (bool, error) {
	now := time.Now().UnixNano()
	res, err := s.db.ExecContext(ctx, `INSERT INTO shedlock (name, lock_until, locked_at, locked_by) VALUES (?, ?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET lock_until = excluded.lock_until, locked_at = excluded.locked_at, locked_by = excluded.locked_by
		WHERE shedlock.locked_by = excluded.locked_by OR shedlock.lock_until <= excluded.locked_at`,
		name, until.UnixNano(), now, owner)
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock %s: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Store) ReleaseLock(ctx context.Context, name string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM shedlock WHERE name = ?`, name); err != nil {
		return fmt.Errorf("failed to release lock %s: %w", name, err)
	}
	return nil
}
