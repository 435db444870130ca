package identity

import (
	"context"
	"strings"

	"golang.org/x/crypto/bcrypt"

	apperrors "github.com/kudos-hq/kudos-server/internal/errors"
	"github.com/kudos-hq/kudos-server/internal/platform/database"
)

// BcryptCost is the work factor used for password hashing. Kept as a
// package variable, not a config field, so tests can lower it.
var BcryptCost = bcrypt.DefaultCost

// Service implements registration, verification, and credential checks
// against the identity store. It does not issue tokens; that is the
// token service's job (spec.md §4.2) layered on top of this one.
type Service struct {
	db *database.DB
}

func NewService(db *database.DB) *Service { return &Service{db: db} }

// Register creates a new, unverified user with a hashed password. The
// caller is responsible for triggering the verification email send
// (an external collaborator per spec.md §1).
func (s *Service) Register(ctx context.Context, email, password, username string) (*User, error) {
	email = normalizeEmail(email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, apperrors.Validation("email", "must be a valid email address")
	}
	if len(password) < 8 {
		return nil, apperrors.Validation("password", "must be at least 8 characters")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	if err != nil {
		return nil, apperrors.Internal("hash password", err)
	}

	var created *User
	err = s.db.WithUnitOfWork(ctx, func(ctx context.Context, uow *database.UnitOfWork) error {
		repo := NewRepository(uow)
		if existing, err := repo.GetByEmail(ctx, email); err == nil && existing != nil {
			return apperrors.Conflict("email_taken", "an account with this email already exists")
		} else if err != nil && err != ErrNotFound {
			return apperrors.Internal("lookup existing user", err)
		}

		u := &User{
			Email:        email,
			PasswordHash: string(hash),
			Verified:     false,
			Active:       false,
			UserTypeCode: TypeUser,
		}
		if username != "" {
			u.Username = &username
		}
		row, err := repo.Create(ctx, u)
		if err != nil {
			return apperrors.Internal("create user", err)
		}
		created = row
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// EnsureSystemUser idempotently creates a pre-verified, active user for
// bootstrap CLI use (spec.md §6's "seed system users" and "create
// superuser" commands): odin/shadow/root at init, or an operator-chosen
// superuser. Unlike Register, it skips the unverified/inactive pending
// state entirely and accepts an explicit user type and username. A
// username that already exists is left untouched — the command is safe
// to re-run.
func (s *Service) EnsureSystemUser(ctx context.Context, email, username, password, userTypeCode string) (*User, error) {
	email = normalizeEmail(email)
	hash, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	if err != nil {
		return nil, apperrors.Internal("hash password", err)
	}

	var result *User
	err = s.db.WithUnitOfWork(ctx, func(ctx context.Context, uow *database.UnitOfWork) error {
		repo := NewRepository(uow)
		if existing, err := repo.GetByUsername(ctx, username); err == nil && existing != nil {
			result = existing
			return nil
		} else if err != nil && err != ErrNotFound {
			return apperrors.Internal("lookup existing system user", err)
		}

		u := &User{
			Email:        email,
			Username:     &username,
			PasswordHash: string(hash),
			Verified:     true,
			Active:       true,
			UserTypeCode: userTypeCode,
		}
		row, err := repo.Create(ctx, u)
		if err != nil {
			return apperrors.Internal("create system user", err)
		}
		result = row
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// VerifyEmail activates the account identified by a validated one-time
// verification token's subject email (the token itself is validated by
// the token service before this is called).
func (s *Service) VerifyEmail(ctx context.Context, email string) (*User, error) {
	var u *User
	err := s.db.WithUnitOfWork(ctx, func(ctx context.Context, uow *database.UnitOfWork) error {
		repo := NewRepository(uow)
		found, err := repo.GetByEmail(ctx, email)
		if err != nil {
			if err == ErrNotFound {
				return apperrors.NotFound("user")
			}
			return apperrors.Internal("lookup user", err)
		}
		if err := repo.MarkVerified(ctx, found.ID); err != nil {
			return apperrors.Internal("mark verified", err)
		}
		found.Verified = true
		found.Active = true
		u = found
		return nil
	})
	if err != nil {
		return nil, err
	}
	return u, nil
}

// Authenticate checks email/password credentials and returns the user
// on success. It does not distinguish "no such user" from "wrong
// password" in its error to avoid account enumeration.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	repo := NewRepository(s.db)
	u, err := repo.GetByEmail(ctx, email)
	if err != nil {
		if err == ErrNotFound {
			return nil, apperrors.InvalidToken()
		}
		return nil, apperrors.Internal("lookup user", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, apperrors.InvalidToken()
	}
	if !u.CanAuthenticate() {
		return nil, apperrors.InactiveUser()
	}
	return u, nil
}

// ChangePassword replaces a user's password hash after verifying the
// current one, used by the self-service password-change operation
// (distinct from the one-time password-reset flow the token service
// drives).
func (s *Service) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	if len(newPassword) < 8 {
		return apperrors.Validation("password", "must be at least 8 characters")
	}
	return s.db.WithUnitOfWork(ctx, func(ctx context.Context, uow *database.UnitOfWork) error {
		repo := NewRepository(uow)
		u, err := repo.GetByID(ctx, userID)
		if err != nil {
			if err == ErrNotFound {
				return apperrors.NotFound("user")
			}
			return apperrors.Internal("lookup user", err)
		}
		if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(currentPassword)) != nil {
			return apperrors.Validation("current_password", "incorrect current password")
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), BcryptCost)
		if err != nil {
			return apperrors.Internal("hash password", err)
		}
		return repo.UpdatePasswordHash(ctx, userID, string(hash))
	})
}

// ResetPassword sets a new password directly, used by the password-reset
// flow after the one-time reset token has already been validated.
func (s *Service) ResetPassword(ctx context.Context, email, newPassword string) error {
	if len(newPassword) < 8 {
		return apperrors.Validation("password", "must be at least 8 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), BcryptCost)
	if err != nil {
		return apperrors.Internal("hash password", err)
	}
	return s.db.WithUnitOfWork(ctx, func(ctx context.Context, uow *database.UnitOfWork) error {
		repo := NewRepository(uow)
		u, err := repo.GetByEmail(ctx, email)
		if err != nil {
			if err == ErrNotFound {
				return apperrors.NotFound("user")
			}
			return apperrors.Internal("lookup user", err)
		}
		return repo.UpdatePasswordHash(ctx, u.ID, string(hash))
	})
}
