package gamification

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/kudos-hq/kudos-server/internal/platform/database"
)

func newMockDB(t *testing.T) (*database.DB, sqlmock.Sqlmock, func()) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	return &database.DB{DB: sqlx.NewDb(sqlDB, "postgres")}, mock, func() { _ = sqlDB.Close() }
}

func TestEvaluateConditionTaskCountOfType(t *testing.T) {
	db, mock, closeFn := newMockDB(t)
	defer closeFn()
	svc := NewService(db)
	repo := NewRepository(db)

	taskType := "task"
	count := 5
	badge := Badge{ID: "b1", ConditionTypeCode: ConditionTaskCountOfType, ConditionDetails: `{"task_type_code":"task","count":5}`}
	_ = taskType
	_ = count

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM task_completions`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	ok, err := svc.evaluateCondition(context.Background(), repo, badge, "u1", "g1", "points")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestEvaluateConditionRejectsUnknownType(t *testing.T) {
	db, _, closeFn := newMockDB(t)
	defer closeFn()
	svc := NewService(db)
	repo := NewRepository(db)

	badge := Badge{ID: "b1", ConditionTypeCode: "not_a_real_condition"}
	_, err := svc.evaluateCondition(context.Background(), repo, badge, "u1", "g1", "points")
	require.Error(t, err)
}

func TestEvaluateConditionBonusPointsEarnedBelowThreshold(t *testing.T) {
	db, mock, closeFn := newMockDB(t)
	defer closeFn()
	svc := NewService(db)
	repo := NewRepository(db)

	badge := Badge{ID: "b1", ConditionTypeCode: ConditionBonusPointsEarned, ConditionDetails: `{"threshold":100}`}
	mock.ExpectQuery(`SELECT SUM\(tr.amount`).
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(42.0))

	ok, err := svc.evaluateCondition(context.Background(), repo, badge, "u1", "g1", "points")
	require.NoError(t, err)
	require.False(t, ok)
}
