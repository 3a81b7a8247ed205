package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pbinitiative/zenorchestrator/pkg/bpmn/model"
	"github.com/pbinitiative/zenorchestrator/pkg/storage"
)

const definitionColumns = `body, suspended, updated_at`

func scanDefinition(row scanner) (model.ProcessDefinition, error) {
	var (
		body      string
		suspended bool
		updatedAt int64
		res       model.ProcessDefinition
	)
	if err := row.Scan(&body, &suspended, &updatedAt); err != nil {
		return res, err
	}
	if err := json.Unmarshal([]byte(body), &res); err != nil {
		return res, fmt.Errorf("failed to decode process definition: %w", err)
	}
	res.Suspended = suspended
	res.UpdatedAt = fromUnix(updatedAt)
	res.Index()
	return res, nil
}

func (s *Store) SaveDefinitions(ctx context.Context, definitions []model.ProcessDefinition) ([]model.ProcessDefinition, error) {
	res := make([]model.ProcessDefinition, 0, len(definitions))
	err := s.withTx(ctx, func(q dbtx) error {
		for _, definition := range definitions {
			latest, err := latestDefinition(ctx, q, definition.Key)
			found := err == nil
			if err != nil && !errors.Is(err, storage.ErrNotFound) {
				return err
			}
			if found && latest.Metadata.Schema != "" && latest.Metadata.Schema == definition.Metadata.Schema {
				res = append(res, latest)
				continue
			}
			definition.Id = s.GenerateId()
			definition.Version = 1
			if found {
				definition.Version = latest.Version + 1
			}
			now := time.Now()
			definition.CreatedAt = now
			definition.UpdatedAt = now
			body, err := json.Marshal(definition)
			if err != nil {
				return fmt.Errorf("failed to encode process definition %s: %w", definition.Key, err)
			}
			_, err = q.ExecContext(ctx, `INSERT INTO process_definition
				(id, definition_key, version, name, schema_hash, body, suspended, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				definition.Id, definition.Key, definition.Version, definition.Name, definition.Metadata.Schema,
				string(body), definition.Suspended, now.UnixNano(), now.UnixNano())
			if err != nil {
				return fmt.Errorf("failed to save process definition %s: %w", definition.Key, err)
			}
			definition.Index()
			res = append(res, definition)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func latestDefinition(ctx context.Context, q dbtx, key string) (model.ProcessDefinition, error) {
	row := q.QueryRowContext(ctx, `SELECT `+definitionColumns+` FROM process_definition
		WHERE definition_key = ? ORDER BY version DESC LIMIT 1`, key)
	res, err := scanDefinition(row)
	if err != nil {
		return res, notFound(err, "failed to find latest definition %s", key)
	}
	return res, nil
}

func (s *Store) FindDefinitionById(ctx context.Context, id string) (model.ProcessDefinition, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+definitionColumns+` FROM process_definition WHERE id = ?`, id)
	res, err := scanDefinition(row)
	if err != nil {
		return res, notFound(err, "failed to find definition %s", id)
	}
	return res, nil
}

func (s *Store) FindLatestDefinitionByKey(ctx context.Context, key string) (model.ProcessDefinition, error) {
	return latestDefinition(ctx, s.db, key)
}

func (s *Store) FindDefinitionByKeyAndVersion(ctx context.Context, key string, version int) (model.ProcessDefinition, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+definitionColumns+` FROM process_definition
		WHERE definition_key = ? AND version = ?`, key, version)
	res, err := scanDefinition(row)
	if err != nil {
		return res, notFound(err, "failed to find definition %s:%d", key, version)
	}
	return res, nil
}

func (s *Store) FindAllDefinitions(ctx context.Context, page storage.Page) ([]model.ProcessDefinition, error) {
	limit, offset := pageOf(page)
	rows, err := s.db.QueryContext(ctx, `SELECT `+definitionColumns+` FROM process_definition
		ORDER BY definition_key, version LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to find definitions: %w", err)
	}
	defer rows.Close()
	res := make([]model.ProcessDefinition, 0)
	for rows.Next() {
		definition, err := scanDefinition(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, definition)
	}
	return res, rows.Err()
}

func (s *Store) SetDefinitionSuspendedById(ctx context.Context, id string, suspended bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE process_definition SET suspended = ?, updated_at = ? WHERE id = ?`,
		suspended, time.Now().UnixNano(), id)
	if err != nil {
		return fmt.Errorf("failed to suspend definition %s: %w", id, err)
	}
	return affectedOrNotFound(res)
}

func (s *Store) SetDefinitionSuspendedByKey(ctx context.Context, key string, suspended bool) (int, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE process_definition SET suspended = ?, updated_at = ? WHERE definition_key = ?`,
		suspended, time.Now().UnixNano(), key)
	if err != nil {
		return 0, fmt.Errorf("failed to suspend definitions %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}
