package token

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/kudos-hq/kudos-server/internal/platform/database"
)

func newMockService(t *testing.T, lookup userLookup) (*RefreshService, sqlmock.Sqlmock, func()) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(sqlDB, "postgres")
	db := &database.DB{DB: sqlxDB}
	svc := NewRefreshService(db, NewSigner(testConfig()), testConfig(), lookup)
	return svc, mock, func() { _ = sqlDB.Close() }
}

func TestRefreshRejectsSecretMismatchAndRevokesChain(t *testing.T) {
	_, hash, err := GenerateRefreshSecret()
	require.NoError(t, err)

	svc, mock, closeFn := newMockService(t, func(context.Context, string) (string, bool, error) {
		return TypeUserPlaceholder, true, nil
	})
	defer closeFn()

	jti := "11111111-1111-1111-1111-111111111111"
	cols := []string{"id", "user_id", "hashed_secret", "expires_at", "revoked_at", "last_used_at", "user_agent", "ip", "created_at"}
	rows := sqlmock.NewRows(cols).AddRow(jti, "user-1", hash, time.Now().Add(time.Hour), nil, nil, nil, nil, time.Now())

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT (.+) FROM refresh_tokens WHERE id = \$1 FOR UPDATE`).WillReturnRows(rows)
	mock.ExpectExec(`UPDATE refresh_tokens SET revoked_at = now\(\) WHERE user_id = \$1 AND revoked_at IS NULL`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectRollback()

	presented := WireFormat(jti, "wrong-secret-entirely")
	_, err = svc.Refresh(context.Background(), presented, nil, nil)
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshRejectsMalformedWireFormat(t *testing.T) {
	svc, _, closeFn := newMockService(t, nil)
	defer closeFn()

	_, err := svc.Refresh(context.Background(), "garbage", nil, nil)
	require.Error(t, err)
}

// TypeUserPlaceholder stands in for a resolved user_type_code in tests
// that don't exercise identity lookups directly.
const TypeUserPlaceholder = "user"
