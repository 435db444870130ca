package group

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/kudos-hq/kudos-server/internal/platform/database"
)

var ErrNotFound = errors.New("group: not found")

// Repository is the persistence boundary for groups, settings,
// memberships, and invitations — one type covering all four tables
// since they're created/read together constantly, mirroring the
// teacher's PGStore covering a whole aggregate (package + items) in one
// store rather than one repository per table.
type Repository struct {
	ex database.Executor
}

func NewRepository(ex database.Executor) *Repository { return &Repository{ex: ex} }

type groupRow struct {
	ID            string         `db:"id"`
	Name          string         `db:"name"`
	GroupTypeCode string         `db:"group_type_code"`
	ParentGroupID sql.NullString `db:"parent_group_id"`
	CreatorUserID string         `db:"creator_user_id"`
	Notes         sql.NullString `db:"notes"`
	StateID       sql.NullString `db:"state_id"`
	CreatedAt     time.Time      `db:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at"`
	IsDeleted     bool           `db:"is_deleted"`
	DeletedAt     sql.NullTime   `db:"deleted_at"`
}

func (r groupRow) toDomain() *Group {
	g := &Group{ID: r.ID, Name: r.Name, GroupTypeCode: r.GroupTypeCode, CreatorUserID: r.CreatorUserID,
		CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt, IsDeleted: r.IsDeleted}
	if r.ParentGroupID.Valid {
		g.ParentGroupID = &r.ParentGroupID.String
	}
	if r.Notes.Valid {
		g.Notes = &r.Notes.String
	}
	if r.StateID.Valid {
		g.StateID = &r.StateID.String
	}
	if r.DeletedAt.Valid {
		g.DeletedAt = &r.DeletedAt.Time
	}
	return g
}

const groupCols = `id, name, group_type_code, parent_group_id, creator_user_id, notes, state_id, created_at, updated_at, is_deleted, deleted_at`

// CreateWithSettingsAndAdmin inserts the group, its default settings
// row, and the creator's admin membership in one call — the caller is
// expected to have already opened a UnitOfWork, matching spec.md §4.4's
// "in one unit of work" requirement.
func (r *Repository) CreateWithSettingsAndAdmin(ctx context.Context, g *Group) (*Group, error) {
	if g.ID == "" {
		g.ID = uuid.NewString()
	}

	var row groupRow
	query := `INSERT INTO groups (id, name, group_type_code, parent_group_id, creator_user_id, notes, state_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING ` + groupCols
	err := r.ex.GetContext(ctx, &row, query, g.ID, g.Name, g.GroupTypeCode, g.ParentGroupID, g.CreatorUserID, g.Notes, g.StateID)
	if err != nil {
		return nil, err
	}

	settings := DefaultSettings(g.ID)
	if err := r.insertSettings(ctx, settings); err != nil {
		return nil, err
	}

	membership := &Membership{UserID: g.CreatorUserID, GroupID: g.ID, RoleCode: RoleGroupAdmin, IsActive: true}
	if err := r.upsertMembership(ctx, membership); err != nil {
		return nil, err
	}

	return row.toDomain(), nil
}

func (r *Repository) insertSettings(ctx context.Context, s Settings) error {
	_, err := r.ex.ExecContext(ctx, `
		INSERT INTO group_settings (group_id, bonus_type_code, currency_label, allow_decimal_bonus, max_debt_allowed,
			allow_task_proposals, require_task_review, show_activity_feed, notifications_enabled, visibility_policy)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		s.GroupID, s.BonusTypeCode, s.CurrencyLabel, s.AllowDecimalBonus, s.MaxDebtAllowed,
		s.AllowTaskProposals, s.RequireTaskReview, s.ShowActivityFeed, s.NotificationsEnabled, s.VisibilityPolicy)
	return err
}

// GetSettings loads a group's settings row.
func (r *Repository) GetSettings(ctx context.Context, groupID string) (*Settings, error) {
	var s Settings
	var maxDebt sql.NullFloat64
	query := `SELECT group_id, bonus_type_code, currency_label, allow_decimal_bonus, max_debt_allowed,
		allow_task_proposals, require_task_review, show_activity_feed, notifications_enabled, visibility_policy
		FROM group_settings WHERE group_id = $1`
	row := r.ex.QueryRowContext(ctx, query, groupID)
	err := row.Scan(&s.GroupID, &s.BonusTypeCode, &s.CurrencyLabel, &s.AllowDecimalBonus, &maxDebt,
		&s.AllowTaskProposals, &s.RequireTaskReview, &s.ShowActivityFeed, &s.NotificationsEnabled, &s.VisibilityPolicy)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if maxDebt.Valid {
		s.MaxDebtAllowed = &maxDebt.Float64
	}
	return &s, nil
}

// GetByID loads an active group.
func (r *Repository) GetByID(ctx context.Context, id string) (*Group, error) {
	var row groupRow
	query := `SELECT ` + groupCols + ` FROM groups WHERE id = $1 AND is_deleted = false`
	if err := r.ex.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return row.toDomain(), nil
}

// SoftDelete flags a group (and, by extension per spec.md §3, makes its
// settings/memberships unreachable through public queries, though not
// deleted themselves — callers decide via a cascading job if desired).
func (r *Repository) SoftDelete(ctx context.Context, id string) error {
	return database.SoftDelete(ctx, r.ex, "groups", "id", id)
}

type membershipRow struct {
	UserID    string       `db:"user_id"`
	GroupID   string       `db:"group_id"`
	RoleCode  string       `db:"role_code"`
	IsActive  bool         `db:"is_active"`
	StatusID  sql.NullString `db:"status_id"`
	JoinedAt  time.Time    `db:"joined_at"`
	UpdatedAt time.Time    `db:"updated_at"`
}

func (r membershipRow) toDomain() *Membership {
	m := &Membership{UserID: r.UserID, GroupID: r.GroupID, RoleCode: r.RoleCode, IsActive: r.IsActive, JoinedAt: r.JoinedAt, UpdatedAt: r.UpdatedAt}
	if r.StatusID.Valid {
		m.StatusID = &r.StatusID.String
	}
	return m
}

const membershipCols = `user_id, group_id, role_code, is_active, status_id, joined_at, updated_at`

// upsertMembership is the low-level insert used by CreateWithSettingsAndAdmin,
// where no pre-existing row is expected.
func (r *Repository) upsertMembership(ctx context.Context, m *Membership) error {
	_, err := r.ex.ExecContext(ctx, `
		INSERT INTO group_memberships (user_id, group_id, role_code, is_active)
		VALUES ($1, $2, $3, $4)`, m.UserID, m.GroupID, m.RoleCode, m.IsActive)
	return err
}

// GetMembership loads a (user, group) membership row regardless of
// active flag, or ErrNotFound if none exists yet.
func (r *Repository) GetMembership(ctx context.Context, userID, groupID string) (*Membership, error) {
	var row membershipRow
	query := `SELECT ` + membershipCols + ` FROM group_memberships WHERE user_id = $1 AND group_id = $2`
	if err := r.ex.GetContext(ctx, &row, query, userID, groupID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return row.toDomain(), nil
}

// ActiveRole implements authz.MembershipProvider.
func (r *Repository) ActiveRole(ctx context.Context, userID, groupID string) (string, bool, error) {
	m, err := r.GetMembership(ctx, userID, groupID)
	if err != nil {
		if err == ErrNotFound {
			return "", false, nil
		}
		return "", false, err
	}
	return m.RoleCode, m.IsActive, nil
}

// InsertMembership creates a brand-new membership row.
func (r *Repository) InsertMembership(ctx context.Context, userID, groupID, role string) (*Membership, error) {
	m := &Membership{UserID: userID, GroupID: groupID, RoleCode: role, IsActive: true}
	if err := r.upsertMembership(ctx, m); err != nil {
		return nil, err
	}
	return r.GetMembership(ctx, userID, groupID)
}

// ReactivateMembership flips is_active true, updates the role, and
// bumps joined_at — the "Add member" reactivation path (spec.md §4.4).
func (r *Repository) ReactivateMembership(ctx context.Context, userID, groupID, role string) (*Membership, error) {
	_, err := r.ex.ExecContext(ctx, `
		UPDATE group_memberships SET is_active = true, role_code = $3, joined_at = now(), updated_at = now()
		WHERE user_id = $1 AND group_id = $2`, userID, groupID, role)
	if err != nil {
		return nil, err
	}
	return r.GetMembership(ctx, userID, groupID)
}

// UpdateMembershipRole changes role_code without touching the active flag.
func (r *Repository) UpdateMembershipRole(ctx context.Context, userID, groupID, role string) error {
	_, err := r.ex.ExecContext(ctx, `UPDATE group_memberships SET role_code = $3, updated_at = now() WHERE user_id = $1 AND group_id = $2`,
		userID, groupID, role)
	return err
}

// DeactivateMembership flips is_active false (used by removal, never a
// hard delete, per spec.md §3's ownership rules).
func (r *Repository) DeactivateMembership(ctx context.Context, userID, groupID string) error {
	_, err := r.ex.ExecContext(ctx, `UPDATE group_memberships SET is_active = false, updated_at = now() WHERE user_id = $1 AND group_id = $2`,
		userID, groupID)
	return err
}

// CountActiveAdmins returns how many active admin memberships a group
// has, used to enforce the last-admin invariant (spec.md §3, §4.3).
func (r *Repository) CountActiveAdmins(ctx context.Context, groupID string) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM group_memberships WHERE group_id = $1 AND role_code = $2 AND is_active = true`
	err := r.ex.QueryRowContext(ctx, query, groupID, RoleGroupAdmin).Scan(&count)
	return count, err
}

type invitationRow struct {
	ID            string         `db:"id"`
	GroupID       string         `db:"group_id"`
	InviterUserID string         `db:"inviter_user_id"`
	RoleToAssign  string         `db:"role_to_assign"`
	InviteeEmail  sql.NullString `db:"invitee_email"`
	InviteeUserID sql.NullString `db:"invitee_user_id"`
	Code          string         `db:"code"`
	ExpiresAt     time.Time      `db:"expires_at"`
	MaxUses       int            `db:"max_uses"`
	CurrentUses   int            `db:"current_uses"`
	Status        string         `db:"status"`
	CreatedAt     time.Time      `db:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at"`
}

func (r invitationRow) toDomain() *Invitation {
	inv := &Invitation{ID: r.ID, GroupID: r.GroupID, InviterUserID: r.InviterUserID, RoleToAssign: r.RoleToAssign,
		Code: r.Code, ExpiresAt: r.ExpiresAt, MaxUses: r.MaxUses, CurrentUses: r.CurrentUses, Status: r.Status,
		CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt}
	if r.InviteeEmail.Valid {
		inv.InviteeEmail = &r.InviteeEmail.String
	}
	if r.InviteeUserID.Valid {
		inv.InviteeUserID = &r.InviteeUserID.String
	}
	return inv
}

const invitationCols = `id, group_id, inviter_user_id, role_to_assign, invitee_email, invitee_user_id, code, expires_at, max_uses, current_uses, status, created_at, updated_at`

// CreateInvitation inserts a new pending invitation.
func (r *Repository) CreateInvitation(ctx context.Context, inv *Invitation) (*Invitation, error) {
	if inv.ID == "" {
		inv.ID = uuid.NewString()
	}
	var row invitationRow
	query := `INSERT INTO group_invitations (id, group_id, inviter_user_id, role_to_assign, invitee_email, invitee_user_id, code, expires_at, max_uses, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING ` + invitationCols
	err := r.ex.GetContext(ctx, &row, query, inv.ID, inv.GroupID, inv.InviterUserID, inv.RoleToAssign,
		inv.InviteeEmail, inv.InviteeUserID, inv.Code, inv.ExpiresAt, inv.MaxUses, InvitationPending)
	if err != nil {
		return nil, err
	}
	return row.toDomain(), nil
}

// FindActivePendingForTarget finds a pending, non-expired invitation for
// the same group targeting the same email or user id, used to enforce
// "blocks another active pending invitation for that target".
func (r *Repository) FindActivePendingForTarget(ctx context.Context, groupID string, email, userID *string) (*Invitation, error) {
	var row invitationRow
	query := `SELECT ` + invitationCols + ` FROM group_invitations
		WHERE group_id = $1 AND status = $2 AND expires_at > now()
		AND ((invitee_email = $3 AND $3 IS NOT NULL) OR (invitee_user_id = $4 AND $4 IS NOT NULL))
		LIMIT 1`
	err := r.ex.GetContext(ctx, &row, query, groupID, InvitationPending, email, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return row.toDomain(), nil
}

// GetInvitationByCodeForUpdate locks an invitation row by code for the
// duration of the acceptance unit of work.
func (r *Repository) GetInvitationByCodeForUpdate(ctx context.Context, code string) (*Invitation, error) {
	var row invitationRow
	query := `SELECT ` + invitationCols + ` FROM group_invitations WHERE code = $1 FOR UPDATE`
	if err := r.ex.GetContext(ctx, &row, query, code); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return row.toDomain(), nil
}

// MarkInvitationAccepted transitions an invitation to accepted and bumps
// its use counter.
func (r *Repository) MarkInvitationAccepted(ctx context.Context, id string) error {
	_, err := r.ex.ExecContext(ctx, `UPDATE group_invitations SET status = $2, current_uses = current_uses + 1, updated_at = now() WHERE id = $1`,
		id, InvitationAccepted)
	return err
}

// ExpirePendingBefore transitions all pending invitations whose
// expiry has passed to expired — the scheduler's sweep job.
func (r *Repository) ExpirePendingBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.ex.ExecContext(ctx, `UPDATE group_invitations SET status = $1, updated_at = now() WHERE status = $2 AND expires_at < $3`,
		InvitationExpired, InvitationPending, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
