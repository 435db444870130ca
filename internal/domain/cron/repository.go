package cron

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/kudos-hq/kudos-server/internal/platform/database"
)

var ErrNotFound = errors.New("cron: not found")

type Repository struct{ ex database.Executor }

func NewRepository(ex database.Executor) *Repository { return &Repository{ex: ex} }

type taskRow struct {
	ID              string         `db:"id"`
	Name            string         `db:"name"`
	CronExpression  sql.NullString `db:"cron_expression"`
	IntervalSeconds sql.NullInt64  `db:"interval_seconds"`
	RunOnceAt       sql.NullTime   `db:"run_once_at"`
	Enabled         bool           `db:"enabled"`
	LastRunAt       sql.NullTime   `db:"last_run_at"`
	NextRunAt       time.Time      `db:"next_run_at"`
	LastStatus      sql.NullString `db:"last_status"`
	LastLog         sql.NullString `db:"last_log"`
	CreatedAt       time.Time      `db:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at"`
}

func (r taskRow) toDomain() *Task {
	t := &Task{ID: r.ID, Name: r.Name, Enabled: r.Enabled, NextRunAt: r.NextRunAt, CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt}
	if r.CronExpression.Valid {
		t.CronExpression = &r.CronExpression.String
	}
	if r.IntervalSeconds.Valid {
		seconds := int(r.IntervalSeconds.Int64)
		t.IntervalSeconds = &seconds
	}
	if r.RunOnceAt.Valid {
		t.RunOnceAt = &r.RunOnceAt.Time
	}
	if r.LastRunAt.Valid {
		t.LastRunAt = &r.LastRunAt.Time
	}
	if r.LastStatus.Valid {
		t.LastStatus = &r.LastStatus.String
	}
	if r.LastLog.Valid {
		t.LastLog = &r.LastLog.String
	}
	return t
}

const taskCols = `id, name, cron_expression, interval_seconds, run_once_at, enabled, last_run_at, next_run_at,
	last_status, last_log, created_at, updated_at`

func (r *Repository) Create(ctx context.Context, t *Task) (*Task, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	var row taskRow
	query := `INSERT INTO cron_tasks (id, name, cron_expression, interval_seconds, run_once_at, enabled, next_run_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING ` + taskCols
	err := r.ex.GetContext(ctx, &row, query, t.ID, t.Name, t.CronExpression, t.IntervalSeconds, t.RunOnceAt, t.Enabled, t.NextRunAt)
	if err != nil {
		return nil, err
	}
	return row.toDomain(), nil
}

func (r *Repository) GetByName(ctx context.Context, name string) (*Task, error) {
	var row taskRow
	query := `SELECT ` + taskCols + ` FROM cron_tasks WHERE name = $1`
	if err := r.ex.GetContext(ctx, &row, query, name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return row.toDomain(), nil
}

// ClaimDue locks and returns up to limit due, enabled cron tasks. The
// per-row FOR UPDATE SKIP LOCKED lock is what keeps multiple scheduler
// replicas from double-dispatching the same tick (spec.md §4.10).
func (r *Repository) ClaimDue(ctx context.Context, now time.Time, limit int) ([]Task, error) {
	var rows []taskRow
	query := `SELECT ` + taskCols + ` FROM cron_tasks
		WHERE enabled = true AND next_run_at <= $1
		ORDER BY next_run_at ASC LIMIT $2 FOR UPDATE SKIP LOCKED`
	if err := r.ex.SelectContext(ctx, &rows, query, now, limit); err != nil {
		return nil, err
	}
	out := make([]Task, 0, len(rows))
	for _, row := range rows {
		out = append(out, *row.toDomain())
	}
	return out, nil
}

// RecordRun stores the outcome of one dispatch and the task's next due
// time. A nil nextRunAt with disable=true is how a run_once_at task
// retires itself after a successful run.
func (r *Repository) RecordRun(ctx context.Context, id string, ranAt time.Time, status, logMsg string, nextRunAt *time.Time, disable bool) error {
	_, err := r.ex.ExecContext(ctx, `
		UPDATE cron_tasks SET last_run_at = $2, last_status = $3, last_log = $4,
			next_run_at = COALESCE($5, next_run_at), enabled = enabled AND NOT $6, updated_at = now()
		WHERE id = $1`,
		id, ranAt, status, logMsg, nextRunAt, disable)
	return err
}
