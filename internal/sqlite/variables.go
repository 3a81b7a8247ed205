package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pbinitiative/zenorchestrator/pkg/bpmn/runtime"
)

const variableColumns = `id, process_id, execution_id, execution_definition_id, var_key, value, type, created_at, updated_at`

func scanVariable(row scanner) (runtime.Variable, error) {
	var (
		res                  runtime.Variable
		createdAt, updatedAt int64
	)
	err := row.Scan(&res.Id, &res.ProcessId, &res.ExecutionId, &res.ExecutionDefinitionId, &res.Key, &res.Value, &res.Type,
		&createdAt, &updatedAt)
	if err != nil {
		return res, err
	}
	res.CreatedAt = fromUnix(createdAt)
	res.UpdatedAt = fromUnix(updatedAt)
	return res, nil
}

func queryVariables(ctx context.Context, q dbtx, where string, args ...any) ([]runtime.Variable, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+variableColumns+` FROM variable `+where+` ORDER BY seq`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to find variables: %w", err)
	}
	defer rows.Close()
	res := make([]runtime.Variable, 0)
	for rows.Next() {
		v, err := scanVariable(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, v)
	}
	return res, rows.Err()
}

func (s *Store) SaveVariables(ctx context.Context, variables []runtime.Variable) ([]runtime.Variable, error) {
	res := make([]runtime.Variable, 0, len(variables))
	err := s.withTx(ctx, func(q dbtx) error {
		now := time.Now()
		for _, v := range variables {
			var (
				existingId string
				createdAt  int64
			)
			err := q.QueryRowContext(ctx, `SELECT id, created_at FROM variable WHERE process_id = ? AND execution_id = ? AND var_key = ?`,
				v.ProcessId, v.ExecutionId, v.Key).Scan(&existingId, &createdAt)
			switch {
			case errors.Is(err, sql.ErrNoRows):
				if v.Id == "" {
					v.Id = s.GenerateId()
				}
				v.CreatedAt = now
				v.UpdatedAt = now
				_, err = q.ExecContext(ctx, `INSERT INTO variable (`+variableColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
					v.Id, v.ProcessId, v.ExecutionId, v.ExecutionDefinitionId, v.Key, v.Value, v.Type, now.UnixNano(), now.UnixNano())
			case err == nil:
				v.Id = existingId
				v.CreatedAt = fromUnix(createdAt)
				v.UpdatedAt = now
				_, err = q.ExecContext(ctx, `UPDATE variable SET execution_definition_id = ?, value = ?, type = ?, updated_at = ? WHERE id = ?`,
					v.ExecutionDefinitionId, v.Value, v.Type, now.UnixNano(), v.Id)
			}
			if err != nil {
				return fmt.Errorf("failed to save variable %s of process %s: %w", v.Key, v.ProcessId, err)
			}
			res = append(res, v)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *Store) FindVariablesInScope(ctx context.Context, processId string, executionDefinitionIds []string) ([]runtime.Variable, error) {
	if len(executionDefinitionIds) == 0 {
		return queryVariables(ctx, s.db, `WHERE process_id = ? AND execution_id = ''`, processId)
	}
	ids, args := in(executionDefinitionIds)
	return queryVariables(ctx, s.db, `WHERE process_id = ? AND (execution_id = '' OR execution_definition_id IN (`+ids+`))`,
		append([]any{processId}, args...)...)
}

func (s *Store) FindVariablesInProcess(ctx context.Context, processId string) ([]runtime.Variable, error) {
	return queryVariables(ctx, s.db, `WHERE process_id = ?`, processId)
}
