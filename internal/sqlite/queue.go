package sqlite

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/pbinitiative/zenorchestrator/pkg/storage"
)

func (s *Store) PushQueue(ctx context.Context, item storage.QueueItem) error {
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now()
	}
	return s.withTx(ctx, func(q dbtx) error {
		if _, err := q.ExecContext(ctx, `DELETE FROM queue WHERE activity_id = ?`, item.ActivityId); err != nil {
			return fmt.Errorf("failed to requeue activity %s: %w", item.ActivityId, err)
		}
		_, err := q.ExecContext(ctx, `INSERT INTO queue (activity_id, topic, process_definition_key, created_at) VALUES (?, ?, ?, ?)`,
			item.ActivityId, item.Topic, item.ProcessDefinitionKey, item.CreatedAt.UnixNano())
		if err != nil {
			return fmt.Errorf("failed to queue activity %s: %w", item.ActivityId, err)
		}
		return nil
	})
}

func (s *Store) PollQueue(ctx context.Context, topic string, processDefinitionKey string, limit int) ([]string, error) {
	res := make([]string, 0)
	err := s.withTx(ctx, func(q dbtx) error {
		rows, err := q.QueryContext(ctx, `DELETE FROM queue WHERE seq IN (
				SELECT seq FROM queue WHERE topic = ? AND (? = '' OR process_definition_key = ?) ORDER BY seq LIMIT ?
			) RETURNING activity_id, seq`, topic, processDefinitionKey, processDefinitionKey, limitOf(limit))
		if err != nil {
			return fmt.Errorf("failed to poll topic %s: %w", topic, err)
		}
		defer rows.Close()
		type polled struct {
			activityId string
			seq        int64
		}
		items := make([]polled, 0)
		for rows.Next() {
			var item polled
			if err := rows.Scan(&item.activityId, &item.seq); err != nil {
				return err
			}
			items = append(items, item)
		}
		if err := rows.Err(); err != nil {
			return err
		}
		// RETURNING gives no order guarantee
		slices.SortFunc(items, func(a, b polled) int { return cmp.Compare(a.seq, b.seq) })
		for _, item := range items {
			res = append(res, item.activityId)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *Store) RemoveFromQueue(ctx context.Context, activityId string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM queue WHERE activity_id = ?`, activityId); err != nil {
		return fmt.Errorf("failed to unqueue activity %s: %w", activityId, err)
	}
	return nil
}
