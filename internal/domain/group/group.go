// Package group implements the group & membership service (spec.md §2,
// §4.4): group CRUD, its 1:1 settings row, membership roles, and
// invitations. Grounded on the teacher's applications/jam.PGStore for
// the multi-insert-within-one-transaction shape (EnqueuePackage inserts
// a package and its items atomically) generalized to group creation's
// group+settings+membership triple insert.
package group

import "time"

// Group mirrors spec.md §3's Group entity.
type Group struct {
	ID            string
	Name          string
	GroupTypeCode string
	ParentGroupID *string
	CreatorUserID string

	Notes     *string
	StateID   *string
	CreatedAt time.Time
	UpdatedAt time.Time
	IsDeleted bool
	DeletedAt *time.Time
}

// Settings is the 1:1 GroupSettings row every group owns, created with
// the group and deleted with it.
type Settings struct {
	GroupID              string
	BonusTypeCode        string
	CurrencyLabel        string
	AllowDecimalBonus    bool
	MaxDebtAllowed       *float64 // nil = unbounded, per DESIGN.md's Open Question resolution
	AllowTaskProposals   bool
	RequireTaskReview    bool
	ShowActivityFeed     bool
	NotificationsEnabled bool
	VisibilityPolicy     string // e.g. "members_only" | "public_within_org"
}

// DefaultSettings returns the defaults a newly created group's
// GroupSettings row is populated with.
func DefaultSettings(groupID string) Settings {
	return Settings{
		GroupID:              groupID,
		BonusTypeCode:        "points",
		CurrencyLabel:        "pts",
		AllowDecimalBonus:    false,
		MaxDebtAllowed:       nil,
		AllowTaskProposals:   true,
		RequireTaskReview:    true,
		ShowActivityFeed:     true,
		NotificationsEnabled: true,
		VisibilityPolicy:     "members_only",
	}
}

// Membership mirrors spec.md §3's GroupMembership.
type Membership struct {
	UserID    string
	GroupID   string
	RoleCode  string // superadmin | group_admin | group_user (spec.md §6)
	IsActive  bool
	StatusID  *string
	JoinedAt  time.Time
	UpdatedAt time.Time
}

const (
	RoleGroupAdmin = "group_admin"
	RoleGroupUser  = "group_user"
)

// Invitation mirrors spec.md §3's GroupInvitation.
type Invitation struct {
	ID            string
	GroupID       string
	InviterUserID string
	RoleToAssign  string
	InviteeEmail  *string
	InviteeUserID *string
	Code          string
	ExpiresAt     time.Time
	MaxUses       int
	CurrentUses   int
	Status        string // pending | accepted | declined | expired | revoked

	CreatedAt time.Time
	UpdatedAt time.Time
}

const (
	InvitationPending  = "pending"
	InvitationAccepted = "accepted"
	InvitationDeclined = "declined"
	InvitationExpired  = "expired"
	InvitationRevoked  = "revoked"
)

func (i *Invitation) IsExpired() bool { return time.Now().After(i.ExpiresAt) }
func (i *Invitation) IsPending() bool { return i.Status == InvitationPending }
