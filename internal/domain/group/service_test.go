package group

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	apperrors "github.com/kudos-hq/kudos-server/internal/errors"
	"github.com/kudos-hq/kudos-server/internal/platform/database"
)

func newMockDB(t *testing.T) (*database.DB, sqlmock.Sqlmock, func()) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	return &database.DB{DB: sqlx.NewDb(sqlDB, "postgres")}, mock, func() { _ = sqlDB.Close() }
}

func TestRemoveMemberBlocksLastAdmin(t *testing.T) {
	db, mock, closeFn := newMockDB(t)
	defer closeFn()
	svc := NewService(db)

	membershipCols := []string{"user_id", "group_id", "role_code", "is_active", "status_id", "joined_at", "updated_at"}
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .* FROM group_memberships WHERE user_id = \$1 AND group_id = \$2`).
		WillReturnRows(sqlmock.NewRows(membershipCols).AddRow("u1", "g1", RoleGroupAdmin, true, nil, time.Now(), time.Now()))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM group_memberships`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectRollback()

	err := svc.RemoveMember(context.Background(), "u1", "g1")
	require.Error(t, err)
	se, ok := apperrors.As(err)
	require.True(t, ok)
	require.Equal(t, "authz.denied", se.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAddMemberIdempotentSameRole(t *testing.T) {
	db, mock, closeFn := newMockDB(t)
	defer closeFn()
	svc := NewService(db)

	membershipCols := []string{"user_id", "group_id", "role_code", "is_active", "status_id", "joined_at", "updated_at"}
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .* FROM group_memberships WHERE user_id = \$1 AND group_id = \$2`).
		WillReturnRows(sqlmock.NewRows(membershipCols).AddRow("u2", "g1", RoleGroupUser, true, nil, time.Now(), time.Now()))
	mock.ExpectCommit()

	m, err := svc.AddMember(context.Background(), "u2", "g1", RoleGroupUser)
	require.NoError(t, err)
	require.True(t, m.IsActive)
	require.Equal(t, RoleGroupUser, m.RoleCode)
	require.NoError(t, mock.ExpectationsWereMet())
}
