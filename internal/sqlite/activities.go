package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/pbinitiative/zenorchestrator/pkg/bpmn/model"
	"github.com/pbinitiative/zenorchestrator/pkg/bpmn/runtime"
	"github.com/pbinitiative/zenorchestrator/pkg/storage"
)

const activityColumns = `id, definition_id, process_id, topic, definition_key, type, state, variables,
	retries, async, timeout, failure, created_at, started_at, completed_at`

func scanActivity(row scanner) (runtime.ActivityExecution, error) {
	var (
		res                             runtime.ActivityExecution
		activityType, state             string
		variables, failure              sql.NullString
		createdAt                       int64
		timeout, startedAt, completedAt sql.NullInt64
	)
	err := row.Scan(&res.Id, &res.DefinitionId, &res.ProcessId, &res.Topic, &res.DefinitionKey, &activityType, &state,
		&variables, &res.Retries, &res.Async, &timeout, &failure, &createdAt, &startedAt, &completedAt)
	if err != nil {
		return res, err
	}
	res.Type = model.ActivityType(activityType)
	res.State = runtime.ActivityState(state)
	if err := fromNullJson(variables, &res.Variables); err != nil {
		return res, fmt.Errorf("failed to decode variables of activity %s: %w", res.Id, err)
	}
	if err := fromNullJson(failure, &res.Failure); err != nil {
		return res, fmt.Errorf("failed to decode failure of activity %s: %w", res.Id, err)
	}
	res.Timeout = fromNullTime(timeout)
	res.CreatedAt = fromUnix(createdAt)
	res.StartedAt = fromNullTime(startedAt)
	res.CompletedAt = fromNullTime(completedAt)
	return res, nil
}

// queryActivities returns the matching executions in insertion order.
func queryActivities(ctx context.Context, q dbtx, where string, args ...any) ([]runtime.ActivityExecution, error) {
	return queryActivitiesOrdered(ctx, q, where+` ORDER BY seq`, args...)
}

func queryActivitiesOrdered(ctx context.Context, q dbtx, query string, args ...any) ([]runtime.ActivityExecution, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+activityColumns+` FROM activity `+query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to find activities: %w", err)
	}
	defer rows.Close()
	res := make([]runtime.ActivityExecution, 0)
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

func (s *Store) SaveActivity(ctx context.Context, activity runtime.ActivityExecution) error {
	variables, err := toNullJson(activity.Variables)
	if err != nil {
		return fmt.Errorf("failed to encode variables of activity %s: %w", activity.Id, err)
	}
	failure, err := toNullJson(activity.Failure)
	if err != nil {
		return fmt.Errorf("failed to encode failure of activity %s: %w", activity.Id, err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO activity (`+activityColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			definition_id = excluded.definition_id,
			process_id = excluded.process_id,
			topic = excluded.topic,
			definition_key = excluded.definition_key,
			type = excluded.type,
			state = excluded.state,
			variables = excluded.variables,
			retries = excluded.retries,
			async = excluded.async,
			timeout = excluded.timeout,
			failure = excluded.failure,
			started_at = excluded.started_at,
			completed_at = excluded.completed_at`,
		activity.Id, activity.DefinitionId, activity.ProcessId, activity.Topic, activity.DefinitionKey,
		string(activity.Type), string(activity.State), variables, activity.Retries, activity.Async,
		toNullTime(activity.Timeout), failure, activity.CreatedAt.UnixNano(),
		toNullTime(activity.StartedAt), toNullTime(activity.CompletedAt))
	if err != nil {
		return fmt.Errorf("failed to save activity %s: %w", activity.Id, err)
	}
	return nil
}

func (s *Store) FindActivityById(ctx context.Context, id string) (runtime.ActivityExecution, error) {
	res, err := scanActivity(s.db.QueryRowContext(ctx, `SELECT `+activityColumns+` FROM activity WHERE id = ?`, id))
	if err != nil {
		return res, notFound(err, "failed to find activity %s", id)
	}
	return res, nil
}

func (s *Store) FindActivityByDefinitionId(ctx context.Context, processId string, definitionId string) (runtime.ActivityExecution, error) {
	states, args := in(activeActivityStates)
	row := s.db.QueryRowContext(ctx, `SELECT `+activityColumns+` FROM activity
		WHERE process_id = ? AND definition_id = ?
		ORDER BY state IN (`+states+`) DESC, seq DESC LIMIT 1`,
		append([]any{processId, definitionId}, args...)...)
	res, err := scanActivity(row)
	if err != nil {
		return res, notFound(err, "failed to find activity %s of process %s", definitionId, processId)
	}
	return res, nil
}

func (s *Store) FindActivitiesByIds(ctx context.Context, ids []string) ([]runtime.ActivityExecution, error) {
	if len(ids) == 0 {
		return make([]runtime.ActivityExecution, 0), nil
	}
	placeholders, args := in(ids)
	return queryActivities(ctx, s.db, `WHERE id IN (`+placeholders+`)`, args...)
}

func (s *Store) FindActivitiesByProcessId(ctx context.Context, processId string) ([]runtime.ActivityExecution, error) {
	return queryActivities(ctx, s.db, `WHERE process_id = ?`, processId)
}

func (s *Store) FindActiveActivities(ctx context.Context, processId string, definitionIds ...string) ([]runtime.ActivityExecution, error) {
	states, args := in(activeActivityStates)
	where := `WHERE process_id = ? AND state IN (` + states + `)`
	args = append([]any{processId}, args...)
	if len(definitionIds) > 0 {
		ids, idArgs := in(definitionIds)
		where += ` AND definition_id IN (` + ids + `)`
		args = append(args, idArgs...)
	}
	return queryActivities(ctx, s.db, where, args...)
}

func (s *Store) FindTimedOut(ctx context.Context, now time.Time, limit int) ([]runtime.ActivityExecution, error) {
	states, args := in(activeActivityStates)
	args = append(args, now.UnixNano(), limitOf(limit))
	return queryActivitiesOrdered(ctx, s.db, `WHERE state IN (`+states+`) AND timeout IS NOT NULL AND timeout < ?
		ORDER BY timeout, seq LIMIT ?`, args...)
}

func (s *Store) FindFailed(ctx context.Context, processId string) ([]runtime.ActivityExecution, error) {
	return queryActivities(ctx, s.db, `WHERE process_id = ? AND state = ?`, processId, string(runtime.ActivityFailed))
}

func (s *Store) IsAnyFailed(ctx context.Context, processId string) (bool, error) {
	var failed bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM activity WHERE process_id = ? AND state = ?)`,
		processId, string(runtime.ActivityFailed)).Scan(&failed)
	if err != nil {
		return false, fmt.Errorf("failed to check failed activities of process %s: %w", processId, err)
	}
	return failed, nil
}

func (s *Store) IsAllCompleted(ctx context.Context, processId string, definitionIds ...string) (bool, error) {
	states, args := in([]runtime.ActivityState{runtime.ActivityScheduled, runtime.ActivityActive, runtime.ActivityFailed})
	query := `SELECT EXISTS (SELECT 1 FROM activity WHERE process_id = ? AND state IN (` + states + `)`
	args = append([]any{processId}, args...)
	if len(definitionIds) > 0 {
		ids, idArgs := in(definitionIds)
		query += ` AND definition_id IN (` + ids + `)`
		args = append(args, idArgs...)
	}
	var pending bool
	if err := s.db.QueryRowContext(ctx, query+`)`, args...).Scan(&pending); err != nil {
		return false, fmt.Errorf("failed to check pending activities of process %s: %w", processId, err)
	}
	return !pending, nil
}

func (s *Store) ChangeActivityState(ctx context.Context, id string, state runtime.ActivityState) error {
	var completedAt sql.NullInt64
	if state.IsTerminal() {
		now := time.Now()
		completedAt = toNullTime(&now)
	}
	res, err := s.db.ExecContext(ctx, `UPDATE activity SET state = ?, completed_at = COALESCE(?, completed_at) WHERE id = ?`,
		string(state), completedAt, id)
	if err != nil {
		return fmt.Errorf("failed to change state of activity %s: %w", id, err)
	}
	return affectedOrNotFound(res)
}

func (s *Store) DeleteActivity(ctx context.Context, id string) error {
	return s.withTx(ctx, func(q dbtx) error {
		res, err := q.ExecContext(ctx, `DELETE FROM activity WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("failed to delete activity %s: %w", id, err)
		}
		if err := affectedOrNotFound(res); err != nil {
			return err
		}
		_, err = q.ExecContext(ctx, `DELETE FROM queue WHERE activity_id = ?`, id)
		return err
	})
}

func (s *Store) DeleteAllActive(ctx context.Context, processId string, definitionIds []string) error {
	if len(definitionIds) == 0 {
		return nil
	}
	states, stateArgs := in(activeActivityStates)
	ids, idArgs := in(definitionIds)
	where := `process_id = ? AND state IN (` + states + `) AND definition_id IN (` + ids + `)`
	args := append(append([]any{processId}, stateArgs...), idArgs...)
	return s.withTx(ctx, func(q dbtx) error {
		if _, err := q.ExecContext(ctx, `DELETE FROM queue WHERE activity_id IN (SELECT id FROM activity WHERE `+where+`)`, args...); err != nil {
			return fmt.Errorf("failed to unqueue active activities of process %s: %w", processId, err)
		}
		if _, err := q.ExecContext(ctx, `DELETE FROM activity WHERE `+where, args...); err != nil {
			return fmt.Errorf("failed to delete active activities of process %s: %w", processId, err)
		}
		return nil
	})
}

func (s *Store) JoinArrive(ctx context.Context, processId string, definitionId string, expected int) (bool, error) {
	var last bool
	err := s.withTx(ctx, func(q dbtx) error {
		var arrived int
		err := q.QueryRowContext(ctx, `INSERT INTO join_arrival (process_id, definition_id, arrived) VALUES (?, ?, 1)
			ON CONFLICT (process_id, definition_id) DO UPDATE SET arrived = arrived + 1
			RETURNING arrived`, processId, definitionId).Scan(&arrived)
		if err != nil {
			return fmt.Errorf("failed to register arrival at %s: %w", definitionId, err)
		}
		if arrived < expected {
			return nil
		}
		last = true
		_, err = q.ExecContext(ctx, `DELETE FROM join_arrival WHERE process_id = ? AND definition_id = ?`, processId, definitionId)
		return err
	})
	return last, err
}

func (s *Store) Poll(ctx context.Context, topic string, processDefinitionKey string, limit int) ([]runtime.ActivityExecution, error) {
	var claimed []runtime.ActivityExecution
	err := s.withTx(ctx, func(q dbtx) error {
		var err error
		claimed, err = queryActivitiesOrdered(ctx, q, `WHERE state = ? AND topic = ? AND (? = '' OR definition_key = ?)
			ORDER BY seq LIMIT ?`, string(runtime.ActivityScheduled), topic, processDefinitionKey, processDefinitionKey, limitOf(limit))
		if err != nil {
			return err
		}
		now := time.Now()
		for i := range claimed {
			claimed[i].State = runtime.ActivityActive
			claimed[i].StartedAt = &now
			if _, err := q.ExecContext(ctx, `UPDATE activity SET state = ?, started_at = ? WHERE id = ?`,
				string(runtime.ActivityActive), now.UnixNano(), claimed[i].Id); err != nil {
				return fmt.Errorf("failed to claim activity %s: %w", claimed[i].Id, err)
			}
			if _, err := q.ExecContext(ctx, `DELETE FROM queue WHERE activity_id = ?`, claimed[i].Id); err != nil {
				return fmt.Errorf("failed to unqueue activity %s: %w", claimed[i].Id, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

var _ storage.ActivityStorage = &Store{}
