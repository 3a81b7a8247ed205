package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pbinitiative/zenorchestrator/pkg/bpmn/runtime"
	"github.com/pbinitiative/zenorchestrator/pkg/storage"
)

// scanner is implemented by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func toNullTime(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}

func fromNullTime(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := time.Unix(0, n.Int64)
	return &t
}

func fromUnix(n int64) time.Time {
	return time.Unix(0, n)
}

func toNullJson(v any) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	if string(data) == "null" {
		return sql.NullString{}, nil
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func fromNullJson[T any](n sql.NullString, dest *T) error {
	if !n.Valid || n.String == "" {
		return nil
	}
	return json.Unmarshal([]byte(n.String), dest)
}

// in expands a list of values into an IN clause body and its arguments.
func in[S ~string](values []S) (string, []any) {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = string(v)
	}
	return strings.TrimSuffix(strings.Repeat("?,", len(values)), ","), args
}

// limitOf maps the storage convention (0 is unlimited) onto SQLite LIMIT.
func limitOf(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}

func pageOf(page storage.Page) (int, int) {
	return limitOf(page.Limit), max(page.Offset, 0)
}

func notFound(err error, format string, args ...any) error {
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

func affectedOrNotFound(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

var (
	activeActivityStates  = []runtime.ActivityState{runtime.ActivityScheduled, runtime.ActivityActive}
	terminalProcessStates = []runtime.ProcessState{runtime.ProcessCompleted, runtime.ProcessTerminated, runtime.ProcessCanceled, runtime.ProcessDeleted}
)
