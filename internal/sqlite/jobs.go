package sqlite

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pbinitiative/zenorchestrator/pkg/bpmn/runtime"
	"github.com/pbinitiative/zenorchestrator/pkg/storage"
)

func (s *Store) SaveJob(ctx context.Context, job runtime.Job) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode job %s: %w", job.Id, err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO job (id, type, state, body, created_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET type = excluded.type, state = excluded.state, body = excluded.body`,
		job.Id, job.Type, string(job.State), string(body), job.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to save job %s: %w", job.Id, err)
	}
	return nil
}

func scanJob(row scanner) (runtime.Job, error) {
	var (
		body string
		res  runtime.Job
	)
	if err := row.Scan(&body); err != nil {
		return res, err
	}
	if err := json.Unmarshal([]byte(body), &res); err != nil {
		return res, fmt.Errorf("failed to decode job: %w", err)
	}
	return res, nil
}

func (s *Store) FindJobById(ctx context.Context, id string) (runtime.Job, error) {
	res, err := scanJob(s.db.QueryRowContext(ctx, `SELECT body FROM job WHERE id = ?`, id))
	if err != nil {
		return res, notFound(err, "failed to find job %s", id)
	}
	return res, nil
}

func (s *Store) FindJobs(ctx context.Context, page storage.Page) ([]runtime.Job, error) {
	limit, offset := pageOf(page)
	rows, err := s.db.QueryContext(ctx, `SELECT body FROM job ORDER BY created_at, id LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to find jobs: %w", err)
	}
	defer rows.Close()
	res := make([]runtime.Job, 0)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, job)
	}
	return res, rows.Err()
}
