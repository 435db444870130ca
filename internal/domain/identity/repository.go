package identity

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/kudos-hq/kudos-server/internal/platform/database"
)

// Repository is the persistence boundary for User rows, constructed
// against a database.Executor so it works identically inside a
// UnitOfWork or against the bare pool for read-only paths.
type Repository struct {
	ex database.Executor
}

func NewRepository(ex database.Executor) *Repository { return &Repository{ex: ex} }

type userRow struct {
	ID           string         `db:"id"`
	Email        string         `db:"email"`
	Username     sql.NullString `db:"username"`
	PasswordHash string         `db:"password_hash"`
	Verified     bool           `db:"verified"`
	Active       bool           `db:"active"`
	UserTypeCode string         `db:"user_type_code"`
	Notes        sql.NullString `db:"notes"`
	StateID      sql.NullString `db:"state_id"`
	CreatedAt    sql.NullTime   `db:"created_at"`
	UpdatedAt    sql.NullTime   `db:"updated_at"`
	IsDeleted    bool           `db:"is_deleted"`
	DeletedAt    sql.NullTime   `db:"deleted_at"`
}

func (r userRow) toDomain() *User {
	u := &User{
		ID:           r.ID,
		Email:        r.Email,
		PasswordHash: r.PasswordHash,
		Verified:     r.Verified,
		Active:       r.Active,
		UserTypeCode: r.UserTypeCode,
		IsDeleted:    r.IsDeleted,
	}
	if r.Username.Valid {
		u.Username = &r.Username.String
	}
	if r.Notes.Valid {
		u.Notes = &r.Notes.String
	}
	if r.StateID.Valid {
		u.StateID = &r.StateID.String
	}
	if r.CreatedAt.Valid {
		u.CreatedAt = r.CreatedAt.Time
	}
	if r.UpdatedAt.Valid {
		u.UpdatedAt = r.UpdatedAt.Time
	}
	if r.DeletedAt.Valid {
		u.DeletedAt = &r.DeletedAt.Time
	}
	return u
}

var ErrNotFound = errors.New("identity: user not found")

const selectCols = `id, email, username, password_hash, verified, active, user_type_code, notes, state_id, created_at, updated_at, is_deleted, deleted_at`

// Create inserts a new user with a fresh id and returns the persisted row.
func (r *Repository) Create(ctx context.Context, u *User) (*User, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	u.Email = normalizeEmail(u.Email)

	query := `INSERT INTO users (id, email, username, password_hash, verified, active, user_type_code, notes, state_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING ` + selectCols

	var row userRow
	err := r.ex.GetContext(ctx, &row, query,
		u.ID, u.Email, nullableString(u.Username), u.PasswordHash, u.Verified, u.Active, u.UserTypeCode,
		nullableString(u.Notes), nullableString(u.StateID))
	if err != nil {
		return nil, err
	}
	return row.toDomain(), nil
}

// GetByID loads an active (not soft-deleted) user by id.
func (r *Repository) GetByID(ctx context.Context, id string) (*User, error) {
	var row userRow
	query := `SELECT ` + selectCols + ` FROM users WHERE id = $1 AND is_deleted = false`
	if err := r.ex.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return row.toDomain(), nil
}

// GetByEmail loads an active user by case-normalized email.
func (r *Repository) GetByEmail(ctx context.Context, email string) (*User, error) {
	var row userRow
	query := `SELECT ` + selectCols + ` FROM users WHERE email = $1 AND is_deleted = false`
	if err := r.ex.GetContext(ctx, &row, query, normalizeEmail(email)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return row.toDomain(), nil
}

// GetByUsername loads an active user by username.
func (r *Repository) GetByUsername(ctx context.Context, username string) (*User, error) {
	var row userRow
	query := `SELECT ` + selectCols + ` FROM users WHERE username = $1 AND is_deleted = false`
	if err := r.ex.GetContext(ctx, &row, query, username); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return row.toDomain(), nil
}

// MarkVerified sets verified=true and active=true (email verification
// activates the account, per spec.md §3's User lifecycle).
func (r *Repository) MarkVerified(ctx context.Context, id string) error {
	_, err := r.ex.ExecContext(ctx, `UPDATE users SET verified = true, active = true, updated_at = now() WHERE id = $1`, id)
	return err
}

// UpdatePasswordHash replaces the stored password hash.
func (r *Repository) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	_, err := r.ex.ExecContext(ctx, `UPDATE users SET password_hash = $2, updated_at = now() WHERE id = $1`, id, hash)
	return err
}

// SetActive toggles the active flag (admin-initiated suspension, not a
// soft-delete).
func (r *Repository) SetActive(ctx context.Context, id string, active bool) error {
	_, err := r.ex.ExecContext(ctx, `UPDATE users SET active = $2, updated_at = now() WHERE id = $1`, id, active)
	return err
}

// SoftDelete flags the user row deleted; spec.md §3 states users are
// never hard-deleted automatically.
func (r *Repository) SoftDelete(ctx context.Context, id string) error {
	return database.SoftDelete(ctx, r.ex, "users", "id", id)
}

func normalizeEmail(email string) string { return strings.ToLower(strings.TrimSpace(email)) }

func nullableString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
