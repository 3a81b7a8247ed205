package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/pbinitiative/zenorchestrator/pkg/bpmn/runtime"
	"github.com/pbinitiative/zenorchestrator/pkg/storage"
)

const processColumns = `id, root_process_id, parent_id, business_key, state, definition_id,
	created_at, updated_at, started_at, completed_at`

const processOrder = ` ORDER BY created_at, id`

func scanProcess(row scanner) (runtime.Process, error) {
	var (
		res                             runtime.Process
		createdAt, updatedAt, startedAt int64
		completedAt                     sql.NullInt64
	)
	err := row.Scan(&res.Id, &res.RootProcessId, &res.ParentId, &res.BusinessKey, &res.State, &res.DefinitionId,
		&createdAt, &updatedAt, &startedAt, &completedAt)
	if err != nil {
		return res, err
	}
	res.CreatedAt = fromUnix(createdAt)
	res.UpdatedAt = fromUnix(updatedAt)
	res.StartedAt = fromUnix(startedAt)
	res.CompletedAt = fromNullTime(completedAt)
	return res, nil
}

func queryProcesses(ctx context.Context, q dbtx, query string, args ...any) ([]runtime.Process, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+processColumns+` FROM process `+query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to find processes: %w", err)
	}
	defer rows.Close()
	res := make([]runtime.Process, 0)
	for rows.Next() {
		p, err := scanProcess(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func (s *Store) SaveProcess(ctx context.Context, process runtime.Process) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO process (`+processColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			root_process_id = excluded.root_process_id,
			parent_id = excluded.parent_id,
			business_key = excluded.business_key,
			state = excluded.state,
			definition_id = excluded.definition_id,
			updated_at = excluded.updated_at,
			started_at = excluded.started_at,
			completed_at = excluded.completed_at`,
		process.Id, process.RootProcessId, process.ParentId, process.BusinessKey, string(process.State), process.DefinitionId,
		process.CreatedAt.UnixNano(), process.UpdatedAt.UnixNano(), process.StartedAt.UnixNano(), toNullTime(process.CompletedAt))
	if err != nil {
		return fmt.Errorf("failed to save process %s: %w", process.Id, err)
	}
	return nil
}

func (s *Store) UpdateProcessState(ctx context.Context, id string, state runtime.ProcessState) (runtime.Process, error) {
	var res runtime.Process
	err := s.withTx(ctx, func(q dbtx) error {
		now := time.Now()
		var completedAt sql.NullInt64
		if state.IsTerminal() {
			completedAt = toNullTime(&now)
		}
		updated, err := q.ExecContext(ctx, `UPDATE process SET state = ?, updated_at = ?,
			completed_at = COALESCE(?, completed_at) WHERE id = ?`,
			string(state), now.UnixNano(), completedAt, id)
		if err != nil {
			return fmt.Errorf("failed to update process %s: %w", id, err)
		}
		if err := affectedOrNotFound(updated); err != nil {
			return err
		}
		res, err = scanProcess(q.QueryRowContext(ctx, `SELECT `+processColumns+` FROM process WHERE id = ?`, id))
		return err
	})
	return res, err
}

func (s *Store) FindProcessById(ctx context.Context, id string) (runtime.Process, error) {
	res, err := scanProcess(s.db.QueryRowContext(ctx, `SELECT `+processColumns+` FROM process WHERE id = ?`, id))
	if err != nil {
		return res, notFound(err, "failed to find process %s", id)
	}
	return res, nil
}

func (s *Store) FindProcessExecutionById(ctx context.Context, id string) (runtime.ProcessExecution, error) {
	process, err := s.FindProcessById(ctx, id)
	if err != nil {
		return runtime.ProcessExecution{}, err
	}
	return processExecution(ctx, s.db, process)
}

func processExecution(ctx context.Context, q dbtx, process runtime.Process) (runtime.ProcessExecution, error) {
	activities, err := queryActivities(ctx, q, `WHERE process_id = ?`, process.Id)
	if err != nil {
		return runtime.ProcessExecution{}, err
	}
	variables, err := queryVariables(ctx, q, `WHERE process_id = ?`, process.Id)
	if err != nil {
		return runtime.ProcessExecution{}, err
	}
	return runtime.ProcessExecution{
		Process:    process,
		Activities: activities,
		Variables:  variables,
	}, nil
}

func (s *Store) FindProcessesByBusinessKey(ctx context.Context, businessKey string) ([]runtime.Process, error) {
	return queryProcesses(ctx, s.db, `WHERE business_key = ?`+processOrder, businessKey)
}

func (s *Store) FindProcessesByVariables(ctx context.Context, variables map[string]any) ([]runtime.Process, error) {
	condition, args, err := variablesCondition(variables)
	if err != nil {
		return nil, err
	}
	return queryProcesses(ctx, s.db, `WHERE `+condition+processOrder, args...)
}

func (s *Store) FindProcessesByBusinessKeyAndVariables(ctx context.Context, businessKey string, variables map[string]any) ([]runtime.Process, error) {
	condition, args, err := variablesCondition(variables)
	if err != nil {
		return nil, err
	}
	return queryProcesses(ctx, s.db, `WHERE business_key = ? AND `+condition+processOrder, append([]any{businessKey}, args...)...)
}

// variablesCondition matches processes whose process scoped variables hold every given value.
func variablesCondition(variables map[string]any) (string, []any, error) {
	if len(variables) == 0 {
		return "1 = 1", nil, nil
	}
	keys := make([]string, 0, len(variables))
	for key := range variables {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	matches := make([]string, 0, len(keys))
	args := make([]any, 0, len(keys)*2+1)
	for _, key := range keys {
		v, err := runtime.NewVariable(key, variables[key])
		if err != nil {
			return "", nil, err
		}
		matches = append(matches, "(v.var_key = ? AND v.value = ?)")
		args = append(args, key, v.Value)
	}
	args = append(args, len(keys))
	return `(SELECT COUNT(*) FROM variable v WHERE v.process_id = process.id AND v.execution_id = ''
		AND (` + strings.Join(matches, " OR ") + `)) = ?`, args, nil
}

func (s *Store) FindAllFullyCompleted(ctx context.Context, limit int) ([]runtime.ProcessExecution, error) {
	states, args := in(terminalProcessStates)
	roots, err := queryProcesses(ctx, s.db, `WHERE parent_id = '' AND state IN (`+states+`)`+processOrder, args...)
	if err != nil {
		return nil, err
	}
	res := make([]runtime.ProcessExecution, 0)
	taken := 0
	for _, root := range roots {
		if limit > 0 && taken >= limit {
			break
		}
		tree, err := queryProcesses(ctx, s.db, `WHERE root_process_id = ? OR id = ?`+processOrder, root.Id, root.Id)
		if err != nil {
			return nil, err
		}
		if slices.ContainsFunc(tree, func(p runtime.Process) bool { return !p.IsInTerminalState() }) {
			continue
		}
		for _, p := range tree {
			execution, err := processExecution(ctx, s.db, p)
			if err != nil {
				return nil, err
			}
			res = append(res, execution)
		}
		taken++
	}
	return res, nil
}

func (s *Store) FindAllProcesses(ctx context.Context, page storage.Page) ([]runtime.Process, error) {
	limit, offset := pageOf(page)
	return queryProcesses(ctx, s.db, processOrder+` LIMIT ? OFFSET ?`, limit, offset)
}

func (s *Store) DeleteProcess(ctx context.Context, id string) error {
	return s.withTx(ctx, func(q dbtx) error {
		res, err := q.ExecContext(ctx, `DELETE FROM process WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("failed to delete process %s: %w", id, err)
		}
		if err := affectedOrNotFound(res); err != nil {
			return err
		}
		return deleteProcessRows(ctx, q, id)
	})
}

// deleteProcessRows removes everything that belongs to the process except the process row itself.
func deleteProcessRows(ctx context.Context, q dbtx, id string) error {
	statements := []string{
		`DELETE FROM queue WHERE activity_id IN (SELECT id FROM activity WHERE process_id = ?)`,
		`DELETE FROM activity WHERE process_id = ?`,
		`DELETE FROM variable WHERE process_id = ?`,
		`DELETE FROM join_arrival WHERE process_id = ?`,
	}
	for _, statement := range statements {
		if _, err := q.ExecContext(ctx, statement, id); err != nil {
			return fmt.Errorf("failed to delete rows of process %s: %w", id, err)
		}
	}
	return nil
}
