package identity

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/kudos-hq/kudos-server/internal/platform/database"
)

func newMockService(t *testing.T) (*Service, sqlmock.Sqlmock, func()) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	return NewService(&database.DB{DB: sqlx.NewDb(sqlDB, "postgres")}), mock, func() { _ = sqlDB.Close() }
}

func TestEnsureSystemUserCreatesWhenAbsent(t *testing.T) {
	svc, mock, closeFn := newMockService(t)
	defer closeFn()

	cols := []string{"id", "email", "username", "password_hash", "verified", "active", "user_type_code", "notes", "state_id", "created_at", "updated_at", "is_deleted", "deleted_at"}

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .* FROM users WHERE username`).
		WithArgs("odin").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(`INSERT INTO users`).
		WillReturnRows(sqlmock.NewRows(cols).AddRow(
			"11111111-1111-1111-1111-111111111111", "odin@system.kudos.local", "odin", "hash", true, true, TypeSuperadmin, nil, nil, nil, nil, false, nil))
	mock.ExpectCommit()

	u, err := svc.EnsureSystemUser(context.Background(), "odin@system.kudos.local", "odin", "whatever", TypeSuperadmin)
	require.NoError(t, err)
	require.Equal(t, "odin", *u.Username)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureSystemUserIsIdempotentWhenAlreadyPresent(t *testing.T) {
	svc, mock, closeFn := newMockService(t)
	defer closeFn()

	cols := []string{"id", "email", "username", "password_hash", "verified", "active", "user_type_code", "notes", "state_id", "created_at", "updated_at", "is_deleted", "deleted_at"}

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .* FROM users WHERE username`).
		WithArgs("odin").
		WillReturnRows(sqlmock.NewRows(cols).AddRow(
			"11111111-1111-1111-1111-111111111111", "odin@system.kudos.local", "odin", "hash", true, true, TypeSuperadmin, nil, nil, nil, nil, false, nil))
	mock.ExpectCommit()

	u, err := svc.EnsureSystemUser(context.Background(), "odin@system.kudos.local", "odin", "whatever", TypeSuperadmin)
	require.NoError(t, err)
	require.Equal(t, "11111111-1111-1111-1111-111111111111", u.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}
