package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pbinitiative/zenorchestrator/pkg/bpmn/runtime"
)

func (s *Store) SaveHistory(ctx context.Context, executions []runtime.ProcessExecution) error {
	return s.withTx(ctx, func(q dbtx) error {
		now := time.Now().UnixNano()
		for _, execution := range executions {
			process := execution.Process
			body, err := json.Marshal(execution)
			if err != nil {
				return fmt.Errorf("failed to encode history of process %s: %w", process.Id, err)
			}
			_, err = q.ExecContext(ctx, `INSERT OR REPLACE INTO history (process_id, root_process_id, state, body, archived_at)
				VALUES (?, ?, ?, ?, ?)`, process.Id, process.RootProcessId, string(process.State), string(body), now)
			if err != nil {
				return fmt.Errorf("failed to archive process %s: %w", process.Id, err)
			}
			if _, err := q.ExecContext(ctx, `DELETE FROM process WHERE id = ?`, process.Id); err != nil {
				return fmt.Errorf("failed to delete archived process %s: %w", process.Id, err)
			}
			if err := deleteProcessRows(ctx, q, process.Id); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) FindHistory(ctx context.Context, processId string) (runtime.ProcessExecution, error) {
	var (
		body string
		res  runtime.ProcessExecution
	)
	err := s.db.QueryRowContext(ctx, `SELECT body FROM history WHERE process_id = ?`, processId).Scan(&body)
	if err != nil {
		return res, notFound(err, "failed to find history of process %s", processId)
	}
	if err := json.Unmarshal([]byte(body), &res); err != nil {
		return res, fmt.Errorf("failed to decode history of process %s: %w", processId, err)
	}
	return res, nil
}
