package token

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/kudos-hq/kudos-server/internal/errors"
	"github.com/kudos-hq/kudos-server/internal/platform/database"
)

// RefreshToken mirrors spec.md §3's RefreshToken entity. The id doubles
// as the JTI embedded in the wire-format token.
type RefreshToken struct {
	ID           string
	UserID       string
	HashedSecret string
	ExpiresAt    time.Time
	RevokedAt    *time.Time
	LastUsedAt   *time.Time
	UserAgent    *string
	IP           *string
	CreatedAt    time.Time
}

func (r *RefreshToken) IsRevoked() bool    { return r.RevokedAt != nil }
func (r *RefreshToken) IsExpired() bool    { return time.Now().After(r.ExpiresAt) }

var ErrTokenNotFound = errors.New("token: refresh token not found")

// Repository is the persistence boundary for refresh tokens.
type Repository struct {
	ex database.Executor
}

func NewRepository(ex database.Executor) *Repository { return &Repository{ex: ex} }

type refreshRow struct {
	ID           string         `db:"id"`
	UserID       string         `db:"user_id"`
	HashedSecret string         `db:"hashed_secret"`
	ExpiresAt    time.Time      `db:"expires_at"`
	RevokedAt    sql.NullTime   `db:"revoked_at"`
	LastUsedAt   sql.NullTime   `db:"last_used_at"`
	UserAgent    sql.NullString `db:"user_agent"`
	IP           sql.NullString `db:"ip"`
	CreatedAt    time.Time      `db:"created_at"`
}

func (r refreshRow) toDomain() *RefreshToken {
	t := &RefreshToken{ID: r.ID, UserID: r.UserID, HashedSecret: r.HashedSecret, ExpiresAt: r.ExpiresAt, CreatedAt: r.CreatedAt}
	if r.RevokedAt.Valid {
		t.RevokedAt = &r.RevokedAt.Time
	}
	if r.LastUsedAt.Valid {
		t.LastUsedAt = &r.LastUsedAt.Time
	}
	if r.UserAgent.Valid {
		t.UserAgent = &r.UserAgent.String
	}
	if r.IP.Valid {
		t.IP = &r.IP.String
	}
	return t
}

const refreshCols = `id, user_id, hashed_secret, expires_at, revoked_at, last_used_at, user_agent, ip, created_at`

// Create persists a new refresh token row for userID.
func (r *Repository) Create(ctx context.Context, userID, hashedSecret string, ttl time.Duration, userAgent, ip *string) (*RefreshToken, error) {
	id := uuid.NewString()
	var row refreshRow
	query := `INSERT INTO refresh_tokens (id, user_id, hashed_secret, expires_at, user_agent, ip)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING ` + refreshCols
	err := r.ex.GetContext(ctx, &row, query, id, userID, hashedSecret, time.Now().Add(ttl), userAgent, ip)
	if err != nil {
		return nil, err
	}
	return row.toDomain(), nil
}

// GetForUpdate loads a refresh token row and locks it for the duration
// of the enclosing unit of work, so concurrent refresh attempts with
// the same jti serialize rather than race on the revoke decision.
func (r *Repository) GetForUpdate(ctx context.Context, id string) (*RefreshToken, error) {
	var row refreshRow
	query := `SELECT ` + refreshCols + ` FROM refresh_tokens WHERE id = $1 FOR UPDATE`
	if err := r.ex.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTokenNotFound
		}
		return nil, err
	}
	return row.toDomain(), nil
}

func (r *Repository) Revoke(ctx context.Context, id string) error {
	_, err := r.ex.ExecContext(ctx, `UPDATE refresh_tokens SET revoked_at = now() WHERE id = $1 AND revoked_at IS NULL`, id)
	return err
}

func (r *Repository) RevokeAllForUser(ctx context.Context, userID string) (int64, error) {
	res, err := r.ex.ExecContext(ctx, `UPDATE refresh_tokens SET revoked_at = now() WHERE user_id = $1 AND revoked_at IS NULL`, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *Repository) RevokeAllForUserExcept(ctx context.Context, userID, exceptID string) (int64, error) {
	res, err := r.ex.ExecContext(ctx, `UPDATE refresh_tokens SET revoked_at = now() WHERE user_id = $1 AND id != $2 AND revoked_at IS NULL`, userID, exceptID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *Repository) MarkUsed(ctx context.Context, id string) error {
	_, err := r.ex.ExecContext(ctx, `UPDATE refresh_tokens SET last_used_at = now() WHERE id = $1`, id)
	return err
}

// DeleteExpiredBefore removes refresh tokens past their grace period,
// used by the scheduler's cleanup job (spec.md §4.10).
func (r *Repository) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.ex.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE expires_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// userLookup abstracts the identity lookup step 5 of the refresh
// algorithm needs, without importing the identity package directly
// (avoided to keep token/identity free of a cross-import cycle; the
// service layer supplies the closure instead). It returns the user's
// type code (needed to re-mint the access token's "user_type" claim on
// rotation) and whether the user remains eligible to authenticate.
type userLookup func(ctx context.Context, userID string) (userType string, active bool, err error)

// RefreshService implements spec.md §4.2's full refresh-token
// lifecycle: issue, validate-with-rotation, theft detection, logout.
type RefreshService struct {
	db         *database.DB
	signer     *Signer
	cfg        Config
	lookupUser userLookup
}

func NewRefreshService(db *database.DB, signer *Signer, cfg Config, lookupUser userLookup) *RefreshService {
	return &RefreshService{db: db, signer: signer, cfg: cfg, lookupUser: lookupUser}
}

// TokenPair is what login and refresh both hand back to the HTTP
// boundary (spec.md §6's login response body).
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// IssuePair creates a new access token and a freshly stored refresh
// token for userID, the way login and successful rotation both do.
func (s *RefreshService) IssuePair(ctx context.Context, userID, userType string, userAgent, ip *string) (*TokenPair, error) {
	access, accessExp, err := s.signer.IssueAccessToken(userID, userType)
	if err != nil {
		return nil, apperrors.Internal("issue access token", err)
	}

	secret, hash, err := GenerateRefreshSecret()
	if err != nil {
		return nil, apperrors.Internal("generate refresh secret", err)
	}

	var wire string
	err = s.db.WithUnitOfWork(ctx, func(ctx context.Context, uow *database.UnitOfWork) error {
		repo := NewRepository(uow)
		row, err := repo.Create(ctx, userID, hash, s.cfg.RefreshTokenTTL, userAgent, ip)
		if err != nil {
			return apperrors.Internal("store refresh token", err)
		}
		wire = WireFormat(row.ID, secret)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &TokenPair{AccessToken: access, RefreshToken: wire, ExpiresAt: accessExp}, nil
}

// Refresh implements the five-step validation algorithm from spec.md
// §4.2, then rotates: revokes the presented token and issues a new pair.
func (s *RefreshService) Refresh(ctx context.Context, presented string, userAgent, ip *string) (*TokenPair, error) {
	jti, secret, err := SplitWireFormat(presented)
	if err != nil {
		return nil, apperrors.InvalidToken()
	}

	var userID, userType string
	err = s.db.WithUnitOfWork(ctx, func(ctx context.Context, uow *database.UnitOfWork) error {
		repo := NewRepository(uow)

		row, err := repo.GetForUpdate(ctx, jti)
		if err != nil {
			if err == ErrTokenNotFound {
				return apperrors.InvalidToken()
			}
			return apperrors.Internal("load refresh token", err)
		}

		if !CompareSecret(row.HashedSecret, secret) {
			// Secret mismatch against a known jti: treat as theft and
			// revoke the whole chain for this user (spec.md §4.2 step 3).
			if _, revokeErr := repo.RevokeAllForUser(ctx, row.UserID); revokeErr != nil {
				return apperrors.Internal("revoke compromised chain", revokeErr)
			}
			return apperrors.InvalidToken()
		}

		if row.IsRevoked() {
			return apperrors.InvalidToken()
		}
		if row.IsExpired() {
			_ = repo.Revoke(ctx, row.ID)
			return apperrors.ExpiredToken()
		}

		typ, active, err := s.lookupUser(ctx, row.UserID)
		if err != nil {
			return apperrors.Internal("check user active", err)
		}
		if !active {
			return apperrors.InactiveUser()
		}

		if err := repo.MarkUsed(ctx, row.ID); err != nil {
			return apperrors.Internal("mark refresh token used", err)
		}
		if err := repo.Revoke(ctx, row.ID); err != nil {
			return apperrors.Internal("revoke rotated token", err)
		}

		userID = row.UserID
		userType = typ
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.IssuePair(ctx, userID, userType, userAgent, ip)
}

// Logout revokes either a single refresh token, every refresh token for
// a user, or every one except the caller's current token.
func (s *RefreshService) Logout(ctx context.Context, userID string, targetJTI *string, exceptCurrent *string) error {
	return s.db.WithUnitOfWork(ctx, func(ctx context.Context, uow *database.UnitOfWork) error {
		repo := NewRepository(uow)
		switch {
		case targetJTI != nil:
			return repo.Revoke(ctx, *targetJTI)
		case exceptCurrent != nil:
			_, err := repo.RevokeAllForUserExcept(ctx, userID, *exceptCurrent)
			return err
		default:
			_, err := repo.RevokeAllForUser(ctx, userID)
			return err
		}
	})
}

// refreshTokenGracePeriod is how long a revoked/expired refresh token
// row is kept around after it stops being valid — long enough to
// support audit lookups of a recently-rotated chain — before the
// scheduler's cleanup sweep (spec.md §4.10) deletes it.
const refreshTokenGracePeriod = 7 * 24 * time.Hour

// Cleanup deletes refresh tokens past their expiry plus grace period,
// the scheduler's standing "stale refresh tokens" cleanup job.
func (s *RefreshService) Cleanup(ctx context.Context) (int64, error) {
	return NewRepository(s.db).DeleteExpiredBefore(ctx, time.Now().Add(-refreshTokenGracePeriod))
}
