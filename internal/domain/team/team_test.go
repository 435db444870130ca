package team

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/kudos-hq/kudos-server/internal/platform/database"
)

func TestRemoveMemberRejectsLeaderRemoval(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()
	db := &database.DB{DB: sqlx.NewDb(sqlDB, "postgres")}
	svc := NewService(db)

	cols := []string{"id", "group_id", "name", "leader_user_id", "max_members", "notes", "created_at", "updated_at", "is_deleted"}
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .* FROM teams WHERE id = \$1`).
		WillReturnRows(sqlmock.NewRows(cols).AddRow("t1", "g1", "Alpha", "leader-1", nil, nil, time.Now(), time.Now(), false))
	mock.ExpectRollback()

	err = svc.RemoveMember(context.Background(), "leader-1", "t1")
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
