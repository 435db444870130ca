// Package identity is the identity store: users, credentials, email
// verification, and password hashes (spec.md §2 "Identity store", §3
// User). Grounded on the teacher's applications/auth.Manager for the
// credential-check shape, generalized from its in-memory user map to a
// Postgres-backed repository behind the persistence gateway.
package identity

import (
	"crypto/rand"
	"encoding/base64"
	"time"
)

// User mirrors spec.md §3's User entity plus the shared base fields
// every entity carries (id, timestamps, soft-delete, notes, state).
type User struct {
	ID        string
	Email     string // unique, case-normalized (lower-cased before persist)
	Username  *string
	PasswordHash string
	Verified  bool
	Active    bool
	UserTypeCode string // superadmin | admin | user | bot

	Notes   *string
	StateID *string

	CreatedAt time.Time
	UpdatedAt time.Time
	IsDeleted bool
	DeletedAt *time.Time
}

// User type codes, mirrored from internal/dictionary for readability at
// call sites that only touch identity.
const (
	TypeSuperadmin = "superadmin"
	TypeAdmin      = "admin"
	TypeUser       = "user"
	TypeBot        = "bot"
)

// IsSuperadmin reports whether u carries the global superadmin flag
// authz's resolver treats as an all-operations allow (spec.md §4.3 step 2).
func (u *User) IsSuperadmin() bool { return u.UserTypeCode == TypeSuperadmin }

// IsBot reports whether u is the internal "shadow" actor category
// (spec.md §4.3 step 1 — bot & system operations).
func (u *User) IsBot() bool { return u.UserTypeCode == TypeBot }

// CanAuthenticate reports whether u is eligible to log in: verified,
// active, and not soft-deleted.
func (u *User) CanAuthenticate() bool { return u.Verified && u.Active && !u.IsDeleted }

// GenerateOpaqueSecret returns a fresh high-entropy string, used by the
// bootstrap CLI (spec.md §6) as a throwaway password for the fixed
// system users, which never authenticate interactively.
func GenerateOpaqueSecret() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}
