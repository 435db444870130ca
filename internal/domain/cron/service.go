package cron

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	apperrors "github.com/kudos-hq/kudos-server/internal/errors"
	"github.com/kudos-hq/kudos-server/internal/platform/database"
)

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Service manages CronTask registration and the schedule-resolution
// math the dispatcher in internal/scheduler relies on.
type Service struct{ db *database.DB }

func NewService(db *database.DB) *Service { return &Service{db: db} }

// Register creates a cron task if one with this name doesn't already
// exist, computing its initial next_run_at. Idempotent so it is safe to
// call on every process start (the standing jobs are registered this
// way, mirroring the bootstrap CLI's idempotent dictionary seeding).
func (s *Service) Register(ctx context.Context, t *Task, now time.Time) (*Task, error) {
	repo := NewRepository(s.db)
	existing, err := repo.GetByName(ctx, t.Name)
	if err == nil {
		return existing, nil
	}
	if err != ErrNotFound {
		return nil, apperrors.Internal("lookup cron task", err)
	}

	nextRun, err := firstRun(t, now)
	if err != nil {
		return nil, err
	}
	t.NextRunAt = nextRun
	t.Enabled = true
	created, err := repo.Create(ctx, t)
	if err != nil {
		return nil, apperrors.Internal("insert cron task", err)
	}
	return created, nil
}

// ClaimDue hands the dispatcher its next batch of due tasks.
func (s *Service) ClaimDue(ctx context.Context, now time.Time, limit int) ([]Task, error) {
	var out []Task
	err := s.db.WithUnitOfWork(ctx, func(ctx context.Context, uow *database.UnitOfWork) error {
		rows, err := NewRepository(uow).ClaimDue(ctx, now, limit)
		if err != nil {
			return apperrors.Internal("claim due cron tasks", err)
		}
		out = rows
		return nil
	})
	return out, err
}

// RecordRun stores a tick's outcome and computes the task's next
// schedule point — or retires it, for a run_once_at task whose run
// succeeded (a failed run_once_at task stays due and runs again).
func (s *Service) RecordRun(ctx context.Context, t Task, ranAt time.Time, status, logMsg string) error {
	repo := NewRepository(s.db)
	if t.Kind() == ScheduleRunOnce {
		return repo.RecordRun(ctx, t.ID, ranAt, status, logMsg, nil, status == StatusSucceeded)
	}
	next, err := nextRun(&t, ranAt)
	if err != nil {
		return err
	}
	return repo.RecordRun(ctx, t.ID, ranAt, status, logMsg, &next, false)
}

func firstRun(t *Task, now time.Time) (time.Time, error) {
	switch t.Kind() {
	case ScheduleRunOnce:
		return *t.RunOnceAt, nil
	default:
		return nextRun(t, now)
	}
}

// nextRun resolves the next due instant strictly after `after`, per the
// task's schedule kind.
func nextRun(t *Task, after time.Time) (time.Time, error) {
	switch t.Kind() {
	case ScheduleCron:
		schedule, err := parser.Parse(*t.CronExpression)
		if err != nil {
			return time.Time{}, apperrors.Validation("cron_expression", "invalid cron expression: "+err.Error())
		}
		return schedule.Next(after), nil
	case ScheduleInterval:
		return after.Add(time.Duration(*t.IntervalSeconds) * time.Second), nil
	default:
		return *t.RunOnceAt, nil
	}
}
