// Package cron owns the CronTask row and its schedule-resolution rules
// (spec.md §4.10): a task names exactly one of a cron expression, a
// fixed interval, or a single run_once_at instant, and tracks when it
// last ran and when it is next due. The actual dispatch loop that polls
// for due tasks lives in internal/scheduler; this package only computes
// "when next" and persists the outcome of a run.
package cron

import "time"

// Task mirrors spec.md §3's CronTask.
type Task struct {
	ID              string
	Name            string // unique identifier, also the handler registry key
	CronExpression  *string
	IntervalSeconds *int
	RunOnceAt       *time.Time
	Enabled         bool
	LastRunAt       *time.Time
	NextRunAt       time.Time
	LastStatus      *string
	LastLog         *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// ScheduleKind classifies which of the three mutually exclusive
// schedule fields a Task carries.
type ScheduleKind int

const (
	ScheduleCron ScheduleKind = iota
	ScheduleInterval
	ScheduleRunOnce
)

func (t *Task) Kind() ScheduleKind {
	switch {
	case t.CronExpression != nil:
		return ScheduleCron
	case t.IntervalSeconds != nil:
		return ScheduleInterval
	default:
		return ScheduleRunOnce
	}
}
