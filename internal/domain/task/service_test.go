package task

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/kudos-hq/kudos-server/internal/domain/ledger"
	"github.com/kudos-hq/kudos-server/internal/platform/database"
)

type fakeLedger struct {
	awards    int
	penalties int
}

func (f *fakeLedger) Award(ctx context.Context, groupID, userID, bonusTypeCode string, amount decimal.Decimal, sourceType, sourceID string) (*ledger.Transaction, error) {
	f.awards++
	return &ledger.Transaction{}, nil
}

func (f *fakeLedger) Penalty(ctx context.Context, groupID, userID, bonusTypeCode string, amount decimal.Decimal, maxDebt *float64, sourceType, sourceID string) (*ledger.Transaction, error) {
	f.penalties++
	return &ledger.Transaction{}, nil
}

func newMockDB(t *testing.T) (*database.DB, sqlmock.Sqlmock, func()) {
	t.Helper()
	rawDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(rawDB, "postgres")
	return &database.DB{DB: sqlxDB}, mock, func() { _ = rawDB.Close() }
}

func TestNextOccurrenceNamedIntervals(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	daily, err := nextOccurrence("daily", base)
	require.NoError(t, err)
	require.Equal(t, base.AddDate(0, 0, 1), daily)

	weekly, err := nextOccurrence("weekly", base)
	require.NoError(t, err)
	require.Equal(t, base.AddDate(0, 0, 7), weekly)

	_, err = nextOccurrence("not-a-real-interval", base)
	require.Error(t, err)
}

func TestCreateRejectsRecurringWithoutInterval(t *testing.T) {
	db, _, closeFn := newMockDB(t)
	defer closeFn()
	svc := NewService(db, &fakeLedger{}, nil, nil, nil, nil)

	_, err := svc.Create(context.Background(), &Task{GroupID: "g1", TaskTypeCode: "task", CreatorUserID: "u1", IsRecurring: true})
	require.Error(t, err)
}

func TestCreateRejectsMismatchedStreakFields(t *testing.T) {
	db, _, closeFn := newMockDB(t)
	defer closeFn()
	svc := NewService(db, &fakeLedger{}, nil, nil, nil, nil)

	threshold := 3
	_, err := svc.Create(context.Background(), &Task{GroupID: "g1", TaskTypeCode: "task", CreatorUserID: "u1", StreakThreshold: &threshold})
	require.Error(t, err)
}

func TestAssignRejectsBothUserAndTeam(t *testing.T) {
	db, _, closeFn := newMockDB(t)
	defer closeFn()
	svc := NewService(db, &fakeLedger{}, nil, nil, nil, nil)

	userID, teamID := "u1", "t1"
	_, err := svc.Assign(context.Background(), "task1", "assigner", &userID, &teamID)
	require.Error(t, err)
}

func TestAssignRejectsNeitherUserNorTeam(t *testing.T) {
	db, _, closeFn := newMockDB(t)
	defer closeFn()
	svc := NewService(db, &fakeLedger{}, nil, nil, nil, nil)

	_, err := svc.Assign(context.Background(), "task1", "assigner", nil, nil)
	require.Error(t, err)
}

func TestAddDependencyRejectsSelfEdge(t *testing.T) {
	db, _, closeFn := newMockDB(t)
	defer closeFn()
	svc := NewService(db, &fakeLedger{}, nil, nil, nil, nil)

	_, err := svc.AddDependency(context.Background(), "task1", "task1", "")
	require.Error(t, err)
}

func TestAddDependencyRejectsCycle(t *testing.T) {
	db, mock, closeFn := newMockDB(t)
	defer closeFn()
	svc := NewService(db, &fakeLedger{}, nil, nil, nil, nil)

	mock.ExpectBegin()
	// checkNoDependencyCycle walks from prerequisiteID="task1"; task1's
	// own prerequisite is task2 (the dependent), closing the cycle.
	mock.ExpectQuery(`SELECT (.+) FROM task_dependencies WHERE dependent_task_id = \$1`).
		WithArgs("task1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "dependent_task_id", "prerequisite_task_id", "dependency_type", "created_at"}).
			AddRow("d1", "task1", "task2", DependencyFinishToStart, time.Now()))
	mock.ExpectRollback()

	_, err := svc.AddDependency(context.Background(), "task2", "task1", "")
	require.Error(t, err)
}

func TestReviewRejectsOutOfRangeRating(t *testing.T) {
	db, _, closeFn := newMockDB(t)
	defer closeFn()
	svc := NewService(db, &fakeLedger{}, nil, nil, nil, nil)

	bad := 7
	_, err := svc.Review(context.Background(), "task1", "u1", &bad, nil)
	require.Error(t, err)
}
