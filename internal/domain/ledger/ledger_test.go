package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestMaxDebtAllowsUnboundedWhenCapNil(t *testing.T) {
	require.True(t, maxDebtAllows(decimal.NewFromInt(-100000), nil))
}

func TestMaxDebtAllowsRespectsFiniteCap(t *testing.T) {
	limit := 50.0
	require.True(t, maxDebtAllows(decimal.NewFromInt(-50), &limit))
	require.False(t, maxDebtAllows(decimal.NewFromInt(-51), &limit))
	require.True(t, maxDebtAllows(decimal.NewFromInt(10), &limit))
}

func TestListAllAccountsOrdersByGroupThenUser(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewRepository(sqlx.NewDb(db, "postgres"))

	cols := []string{"id", "group_id", "user_id", "bonus_type_code", "balance", "created_at", "updated_at"}
	now := time.Now()
	mock.ExpectQuery(`SELECT .* FROM accounts ORDER BY group_id, user_id`).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("a1", "g1", "u1", "points", "100", now, now).
			AddRow("a2", "g1", "u2", "points", "-25", now, now))

	accounts, err := repo.ListAllAccounts(context.Background())
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	require.True(t, accounts[1].Balance.Equal(decimal.NewFromInt(-25)))
	require.NoError(t, mock.ExpectationsWereMet())
}
