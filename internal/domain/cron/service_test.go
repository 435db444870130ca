package cron

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func intp(n int) *int               { return &n }
func strp(s string) *string         { return &s }
func timep(t time.Time) *time.Time  { return &t }

func TestKindDistinguishesScheduleFields(t *testing.T) {
	require.Equal(t, ScheduleCron, (&Task{CronExpression: strp("*/5 * * * *")}).Kind())
	require.Equal(t, ScheduleInterval, (&Task{IntervalSeconds: intp(60)}).Kind())
	require.Equal(t, ScheduleRunOnce, (&Task{RunOnceAt: timep(time.Now())}).Kind())
}

func TestNextRunIntervalAddsSeconds(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	task := &Task{IntervalSeconds: intp(300)}
	next, err := nextRun(task, now)
	require.NoError(t, err)
	require.Equal(t, now.Add(5*time.Minute), next)
}

func TestNextRunCronResolvesNextMatchingMinute(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	task := &Task{CronExpression: strp("0 * * * *")}
	next, err := nextRun(task, now)
	require.NoError(t, err)
	require.Equal(t, time.Date(2026, 1, 1, 1, 0, 0, 0, time.UTC), next)
}

func TestNextRunRejectsInvalidCronExpression(t *testing.T) {
	task := &Task{CronExpression: strp("not a cron expression")}
	_, err := nextRun(task, time.Now())
	require.Error(t, err)
}

func TestFirstRunForRunOnceReturnsTheInstantItself(t *testing.T) {
	at := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	task := &Task{RunOnceAt: timep(at)}
	first, err := firstRun(task, time.Now())
	require.NoError(t, err)
	require.Equal(t, at, first)
}
