// Package ledger is the bonus ledger (spec.md §2, §4.6): accounts,
// append-only transactions, atomic balance reflection, manual
// adjustments, and reward purchases. Grounded on
// applications/jam/store_pg.go's transaction-scoped insert pattern,
// with the per-account row lock and ascending-id lock ordering spec.md
// §5 requires modeled directly on that file's `FOR UPDATE` idiom.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	apperrors "github.com/kudos-hq/kudos-server/internal/errors"
	"github.com/kudos-hq/kudos-server/internal/metrics"
	"github.com/kudos-hq/kudos-server/internal/platform/database"
)

// Account mirrors spec.md §3's Account: a per-group, per-user,
// per-bonus-type balance.
type Account struct {
	ID            string
	GroupID       string
	UserID        string
	BonusTypeCode string
	Balance       decimal.Decimal
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Transaction mirrors spec.md §3's Transaction: append-only, signed.
type Transaction struct {
	ID              string
	AccountID       string
	Amount          decimal.Decimal
	TransactionType string
	SourceEntityType string
	SourceEntityID   *string
	Description      *string
	CreatedAt        time.Time
}

// Adjustment mirrors spec.md §3's BonusAdjustment: immutable, references
// the transaction it generated.
type Adjustment struct {
	ID            string
	AccountID     string
	TransactionID string
	AdminUserID   string
	Amount        decimal.Decimal
	Reason        *string
	CreatedAt     time.Time
}

var ErrAccountNotFound = errors.New("ledger: account not found")

type Repository struct{ ex database.Executor }

func NewRepository(ex database.Executor) *Repository { return &Repository{ex: ex} }

type accountRow struct {
	ID            string    `db:"id"`
	GroupID       string    `db:"group_id"`
	UserID        string    `db:"user_id"`
	BonusTypeCode string    `db:"bonus_type_code"`
	Balance       string    `db:"balance"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}

func (r accountRow) toDomain() (*Account, error) {
	bal, err := decimal.NewFromString(r.Balance)
	if err != nil {
		return nil, err
	}
	return &Account{ID: r.ID, GroupID: r.GroupID, UserID: r.UserID, BonusTypeCode: r.BonusTypeCode,
		Balance: bal, CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt}, nil
}

const accountCols = `id, group_id, user_id, bonus_type_code, balance, created_at, updated_at`

// ListAllAccounts returns every account, used by the rating-snapshot
// sweep (spec.md §4.10) to compute a per-(user, group) lifetime score
// from the account balance without enumerating users/groups directly.
func (r *Repository) ListAllAccounts(ctx context.Context) ([]Account, error) {
	var rows []accountRow
	if err := r.ex.SelectContext(ctx, &rows, `SELECT `+accountCols+` FROM accounts ORDER BY group_id, user_id`); err != nil {
		return nil, err
	}
	out := make([]Account, 0, len(rows))
	for _, row := range rows {
		acc, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, *acc)
	}
	return out, nil
}

// GetOrCreateAccount fetches the (group, user, bonus-type) account,
// creating it with a zero balance if it doesn't exist yet.
func (r *Repository) GetOrCreateAccount(ctx context.Context, groupID, userID, bonusTypeCode string) (*Account, error) {
	acc, err := r.getAccount(ctx, groupID, userID, bonusTypeCode)
	if err == nil {
		return acc, nil
	}
	if !errors.Is(err, ErrAccountNotFound) {
		return nil, err
	}

	var row accountRow
	query := `INSERT INTO accounts (id, group_id, user_id, bonus_type_code, balance)
		VALUES ($1, $2, $3, $4, '0') ON CONFLICT (group_id, user_id, bonus_type_code) DO UPDATE SET updated_at = accounts.updated_at
		RETURNING ` + accountCols
	if err := r.ex.GetContext(ctx, &row, query, uuid.NewString(), groupID, userID, bonusTypeCode); err != nil {
		return nil, err
	}
	return row.toDomain()
}

func (r *Repository) getAccount(ctx context.Context, groupID, userID, bonusTypeCode string) (*Account, error) {
	var row accountRow
	query := `SELECT ` + accountCols + ` FROM accounts WHERE group_id = $1 AND user_id = $2 AND bonus_type_code = $3`
	if err := r.ex.GetContext(ctx, &row, query, groupID, userID, bonusTypeCode); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return row.toDomain()
}

// GetForUpdate locks an account row by id for the duration of the
// enclosing unit of work — the per-account lock spec.md §5 requires
// before any balance mutation.
func (r *Repository) GetForUpdate(ctx context.Context, accountID string) (*Account, error) {
	var row accountRow
	query := `SELECT ` + accountCols + ` FROM accounts WHERE id = $1 FOR UPDATE`
	if err := r.ex.GetContext(ctx, &row, query, accountID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return row.toDomain()
}

// LockAccountsAscending locks multiple accounts in ascending id order
// within the current unit of work, the deadlock-avoidance rule spec.md
// §5 mandates "when multiple are touched in one operation".
func (r *Repository) LockAccountsAscending(ctx context.Context, accountIDs []string) (map[string]*Account, error) {
	ids := append([]string(nil), accountIDs...)
	sort.Strings(ids)
	out := make(map[string]*Account, len(ids))
	for _, id := range ids {
		acc, err := r.GetForUpdate(ctx, id)
		if err != nil {
			return nil, err
		}
		out[id] = acc
	}
	return out, nil
}

func (r *Repository) updateBalance(ctx context.Context, accountID string, newBalance decimal.Decimal) error {
	_, err := r.ex.ExecContext(ctx, `UPDATE accounts SET balance = $2, updated_at = now() WHERE id = $1`, accountID, newBalance.String())
	return err
}

// InsertTransaction appends a transaction row. Transactions are never
// updated or deleted once inserted (spec.md §4.6).
func (r *Repository) InsertTransaction(ctx context.Context, t *Transaction) (*Transaction, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	var row struct {
		ID               string         `db:"id"`
		AccountID        string         `db:"account_id"`
		Amount           string         `db:"amount"`
		TransactionType  string         `db:"transaction_type"`
		SourceEntityType string         `db:"source_entity_type"`
		SourceEntityID   sql.NullString `db:"source_entity_id"`
		Description      sql.NullString `db:"description"`
		CreatedAt        time.Time      `db:"created_at"`
	}
	query := `INSERT INTO transactions (id, account_id, amount, transaction_type, source_entity_type, source_entity_id, description)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, account_id, amount, transaction_type, source_entity_type, source_entity_id, description, created_at`
	err := r.ex.GetContext(ctx, &row, query, t.ID, t.AccountID, t.Amount.String(), t.TransactionType, t.SourceEntityType, t.SourceEntityID, t.Description)
	if err != nil {
		return nil, err
	}
	amount, err := decimal.NewFromString(row.Amount)
	if err != nil {
		return nil, err
	}
	out := &Transaction{ID: row.ID, AccountID: row.AccountID, Amount: amount, TransactionType: row.TransactionType,
		SourceEntityType: row.SourceEntityType, CreatedAt: row.CreatedAt}
	if row.SourceEntityID.Valid {
		out.SourceEntityID = &row.SourceEntityID.String
	}
	if row.Description.Valid {
		out.Description = &row.Description.String
	}
	return out, nil
}

// InsertAdjustment stores the immutable administrative record
// referencing the transaction it generated.
func (r *Repository) InsertAdjustment(ctx context.Context, a *Adjustment) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	_, err := r.ex.ExecContext(ctx, `
		INSERT INTO bonus_adjustments (id, account_id, transaction_id, admin_user_id, amount, reason)
		VALUES ($1, $2, $3, $4, $5, $6)`, a.ID, a.AccountID, a.TransactionID, a.AdminUserID, a.Amount.String(), a.Reason)
	return err
}

// SumTransactions computes the sum of an account's transaction amounts
// — used only by tests/audits to verify the invariant balance = Σ
// transactions; production balance reads use the Account.Balance column
// directly for O(1) access.
func (r *Repository) SumTransactions(ctx context.Context, accountID string) (decimal.Decimal, error) {
	var sum sql.NullString
	err := r.ex.QueryRowContext(ctx, `SELECT SUM(amount)::text FROM transactions WHERE account_id = $1`, accountID).Scan(&sum)
	if err != nil {
		return decimal.Zero, err
	}
	if !sum.Valid {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(sum.String)
}

// Service implements spec.md §4.6's atomicity rules: award, penalty,
// manual adjustment, reward purchase — each one transaction row plus
// one balance update in the same unit of work.
type Service struct {
	db *database.DB
}

func NewService(db *database.DB) *Service { return &Service{db: db} }

// AllAccounts exposes every account for the scheduler's rating-snapshot
// sweep (spec.md §4.10); it is a read-only fan-out source, not a
// balance-mutating operation, so it runs outside a UnitOfWork.
func (s *Service) AllAccounts(ctx context.Context) ([]Account, error) {
	return NewRepository(s.db).ListAllAccounts(ctx)
}

// maxDebtAllows reports whether balance after applying delta respects
// cap (nil cap = unbounded, per DESIGN.md's Open Question resolution).
func maxDebtAllows(balanceAfter decimal.Decimal, cap *float64) bool {
	if cap == nil {
		return true
	}
	limit := decimal.NewFromFloat(-*cap)
	return balanceAfter.GreaterThanOrEqual(limit)
}

// Award credits assigneeUserID's account for a task completion (spec.md
// §4.6 "Award").
func (s *Service) Award(ctx context.Context, groupID, userID, bonusTypeCode string, amount decimal.Decimal, sourceType, sourceID string) (*Transaction, error) {
	var txn *Transaction
	err := s.db.WithUnitOfWork(ctx, func(ctx context.Context, uow *database.UnitOfWork) error {
		repo := NewRepository(uow)
		acc, err := repo.GetOrCreateAccount(ctx, groupID, userID, bonusTypeCode)
		if err != nil {
			return apperrors.Internal("get or create account", err)
		}
		locked, err := repo.GetForUpdate(ctx, acc.ID)
		if err != nil {
			return apperrors.Internal("lock account", err)
		}
		newBalance := locked.Balance.Add(amount)
		row, err := repo.InsertTransaction(ctx, &Transaction{AccountID: locked.ID, Amount: amount, TransactionType: "TASK_REWARD", SourceEntityType: sourceType, SourceEntityID: &sourceID})
		if err != nil {
			return apperrors.Internal("insert transaction", err)
		}
		if err := repo.updateBalance(ctx, locked.ID, newBalance); err != nil {
			return apperrors.Internal("update balance", err)
		}
		metrics.LedgerTransactionsTotal.WithLabelValues(row.TransactionType).Inc()
		txn = row
		return nil
	})
	if err != nil {
		return nil, err
	}
	return txn, nil
}

// Penalty debits assigneeUserID's account for a missed mandatory task.
// If the debt cap would be exceeded, the debit is clamped to the cap
// and a transaction for the actual (smaller) amount is emitted instead
// (spec.md §4.6 "Penalty").
func (s *Service) Penalty(ctx context.Context, groupID, userID, bonusTypeCode string, amount decimal.Decimal, maxDebt *float64, sourceType, sourceID string) (*Transaction, error) {
	var txn *Transaction
	err := s.db.WithUnitOfWork(ctx, func(ctx context.Context, uow *database.UnitOfWork) error {
		repo := NewRepository(uow)
		acc, err := repo.GetOrCreateAccount(ctx, groupID, userID, bonusTypeCode)
		if err != nil {
			return apperrors.Internal("get or create account", err)
		}
		locked, err := repo.GetForUpdate(ctx, acc.ID)
		if err != nil {
			return apperrors.Internal("lock account", err)
		}

		debit := amount.Neg()
		newBalance := locked.Balance.Add(debit)
		if !maxDebtAllows(newBalance, maxDebt) {
			if maxDebt == nil {
				return apperrors.Internal("ledger: unreachable clamp with nil cap", nil)
			}
			floor := decimal.NewFromFloat(-*maxDebt)
			debit = floor.Sub(locked.Balance)
			newBalance = floor
		}

		row, err := repo.InsertTransaction(ctx, &Transaction{AccountID: locked.ID, Amount: debit, TransactionType: "TASK_PENALTY", SourceEntityType: sourceType, SourceEntityID: &sourceID})
		if err != nil {
			return apperrors.Internal("insert transaction", err)
		}
		if err := repo.updateBalance(ctx, locked.ID, newBalance); err != nil {
			return apperrors.Internal("update balance", err)
		}
		metrics.LedgerTransactionsTotal.WithLabelValues(row.TransactionType).Inc()
		txn = row
		return nil
	})
	if err != nil {
		return nil, err
	}
	return txn, nil
}

// ManualAdjustment lets an admin credit or debit an account directly,
// storing an immutable Adjustment record alongside the transaction it
// generates (spec.md §4.6).
func (s *Service) ManualAdjustment(ctx context.Context, groupID, userID, bonusTypeCode string, amount decimal.Decimal, adminUserID string, reason *string) (*Transaction, error) {
	txType := "MANUAL_CREDIT"
	if amount.IsNegative() {
		txType = "MANUAL_DEBIT"
	}

	var txn *Transaction
	err := s.db.WithUnitOfWork(ctx, func(ctx context.Context, uow *database.UnitOfWork) error {
		repo := NewRepository(uow)
		acc, err := repo.GetOrCreateAccount(ctx, groupID, userID, bonusTypeCode)
		if err != nil {
			return apperrors.Internal("get or create account", err)
		}
		locked, err := repo.GetForUpdate(ctx, acc.ID)
		if err != nil {
			return apperrors.Internal("lock account", err)
		}
		newBalance := locked.Balance.Add(amount)
		row, err := repo.InsertTransaction(ctx, &Transaction{AccountID: locked.ID, Amount: amount, TransactionType: txType, SourceEntityType: "bonus_adjustment"})
		if err != nil {
			return apperrors.Internal("insert transaction", err)
		}
		if err := repo.updateBalance(ctx, locked.ID, newBalance); err != nil {
			return apperrors.Internal("update balance", err)
		}
		if err := repo.InsertAdjustment(ctx, &Adjustment{AccountID: locked.ID, TransactionID: row.ID, AdminUserID: adminUserID, Amount: amount, Reason: reason}); err != nil {
			return apperrors.Internal("insert adjustment", err)
		}
		metrics.LedgerTransactionsTotal.WithLabelValues(row.TransactionType).Inc()
		txn = row
		return nil
	})
	if err != nil {
		return nil, err
	}
	return txn, nil
}

// PurchaseReward debits the purchaser's account by cost, failing before
// any mutation if funds are insufficient (spec.md §4.6).
func (s *Service) PurchaseReward(ctx context.Context, groupID, userID, bonusTypeCode string, cost decimal.Decimal, maxDebt *float64, rewardID string) (*Transaction, error) {
	var txn *Transaction
	err := s.db.WithUnitOfWork(ctx, func(ctx context.Context, uow *database.UnitOfWork) error {
		repo := NewRepository(uow)
		acc, err := repo.GetOrCreateAccount(ctx, groupID, userID, bonusTypeCode)
		if err != nil {
			return apperrors.Internal("get or create account", err)
		}
		locked, err := repo.GetForUpdate(ctx, acc.ID)
		if err != nil {
			return apperrors.Internal("lock account", err)
		}

		newBalance := locked.Balance.Sub(cost)
		if !maxDebtAllows(newBalance, maxDebt) {
			return apperrors.InsufficientFunds()
		}

		row, err := repo.InsertTransaction(ctx, &Transaction{AccountID: locked.ID, Amount: cost.Neg(), TransactionType: "REWARD_PURCHASE", SourceEntityType: "reward", SourceEntityID: &rewardID})
		if err != nil {
			return apperrors.Internal("insert transaction", err)
		}
		if err := repo.updateBalance(ctx, locked.ID, newBalance); err != nil {
			return apperrors.Internal("update balance", err)
		}
		metrics.LedgerTransactionsTotal.WithLabelValues(row.TransactionType).Inc()
		txn = row
		return nil
	})
	if err != nil {
		return nil, err
	}
	return txn, nil
}

// TransferBetweenAccounts locks both accounts in ascending id order
// before mutating either, the deadlock-avoidance rule spec.md §5
// describes for "when multiple are touched in one operation" — used by
// superadmin-initiated balance corrections spanning two accounts
// (POST /ledger/transfer).
func (s *Service) TransferBetweenAccounts(ctx context.Context, fromAccountID, toAccountID string, amount decimal.Decimal, sourceType, sourceID string) error {
	return s.db.WithUnitOfWork(ctx, func(ctx context.Context, uow *database.UnitOfWork) error {
		repo := NewRepository(uow)
		locked, err := repo.LockAccountsAscending(ctx, []string{fromAccountID, toAccountID})
		if err != nil {
			return apperrors.Internal("lock accounts", err)
		}

		from, to := locked[fromAccountID], locked[toAccountID]
		if from.Balance.LessThan(amount) {
			return apperrors.InsufficientFunds()
		}

		if _, err := repo.InsertTransaction(ctx, &Transaction{AccountID: from.ID, Amount: amount.Neg(), TransactionType: "MANUAL_DEBIT", SourceEntityType: sourceType, SourceEntityID: &sourceID}); err != nil {
			return apperrors.Internal("insert debit transaction", err)
		}
		if err := repo.updateBalance(ctx, from.ID, from.Balance.Sub(amount)); err != nil {
			return apperrors.Internal("update source balance", err)
		}

		if _, err := repo.InsertTransaction(ctx, &Transaction{AccountID: to.ID, Amount: amount, TransactionType: "MANUAL_CREDIT", SourceEntityType: sourceType, SourceEntityID: &sourceID}); err != nil {
			return apperrors.Internal("insert credit transaction", err)
		}
		return repo.updateBalance(ctx, to.ID, to.Balance.Add(amount))
	})
}
