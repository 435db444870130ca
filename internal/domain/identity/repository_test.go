package identity

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

func newMockRepo(t *testing.T) (*Repository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "postgres")
	return NewRepository(sqlxDB), mock, func() { _ = db.Close() }
}

func TestRepositoryCreate(t *testing.T) {
	repo, mock, closeFn := newMockRepo(t)
	defer closeFn()

	cols := []string{"id", "email", "username", "password_hash", "verified", "active", "user_type_code", "notes", "state_id", "created_at", "updated_at", "is_deleted", "deleted_at"}
	rows := sqlmock.NewRows(cols).AddRow(
		"11111111-1111-1111-1111-111111111111", "alice@example.com", nil, "hash", false, false, TypeUser, nil, nil, nil, nil, false, nil)

	mock.ExpectQuery(`INSERT INTO users`).WillReturnRows(rows)

	u, err := repo.Create(context.Background(), &User{Email: "Alice@Example.com", PasswordHash: "hash", UserTypeCode: TypeUser})
	require.NoError(t, err)
	require.Equal(t, "alice@example.com", u.Email)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryGetByEmailNotFound(t *testing.T) {
	repo, mock, closeFn := newMockRepo(t)
	defer closeFn()

	mock.ExpectQuery(`SELECT (.+) FROM users WHERE email`).WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByEmail(context.Background(), "ghost@example.com")
	require.ErrorIs(t, err, ErrNotFound)
}
