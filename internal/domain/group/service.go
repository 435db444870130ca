package group

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"strings"
	"time"

	apperrors "github.com/kudos-hq/kudos-server/internal/errors"
	"github.com/kudos-hq/kudos-server/internal/platform/database"
)

// Service implements spec.md §4.4's group & membership operations.
type Service struct {
	db *database.DB
}

func NewService(db *database.DB) *Service { return &Service{db: db} }

// Create inserts a group, its default settings, and the creator's admin
// membership atomically.
func (s *Service) Create(ctx context.Context, name, groupTypeCode, creatorUserID string, parentGroupID *string) (*Group, error) {
	if strings.TrimSpace(name) == "" {
		return nil, apperrors.Validation("name", "group name is required")
	}

	var created *Group
	err := s.db.WithUnitOfWork(ctx, func(ctx context.Context, uow *database.UnitOfWork) error {
		repo := NewRepository(uow)

		if parentGroupID != nil {
			if err := checkNoParentCycle(ctx, repo, *parentGroupID, ""); err != nil {
				return err
			}
		}

		g := &Group{Name: name, GroupTypeCode: groupTypeCode, CreatorUserID: creatorUserID, ParentGroupID: parentGroupID}
		row, err := repo.CreateWithSettingsAndAdmin(ctx, g)
		if err != nil {
			return apperrors.Internal("create group", err)
		}
		created = row
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// checkNoParentCycle verifies that setting childID's parent to
// candidateParentID would not create a cycle in the group hierarchy DAG
// (spec.md §9 "cyclic ownership avoidance" — same reachability approach
// as task dependencies). For a brand-new group childID is "".
func checkNoParentCycle(ctx context.Context, repo *Repository, candidateParentID, childID string) error {
	current := candidateParentID
	seen := map[string]bool{}
	for current != "" {
		if current == childID {
			return apperrors.BusinessRule("group_hierarchy_cycle", "this parent assignment would create a cycle", 422)
		}
		if seen[current] {
			break // already-corrupt chain elsewhere; don't loop forever
		}
		seen[current] = true
		g, err := repo.GetByID(ctx, current)
		if err != nil {
			if err == ErrNotFound {
				return apperrors.NotFound("parent group")
			}
			return apperrors.Internal("walk group hierarchy", err)
		}
		if g.ParentGroupID == nil {
			break
		}
		current = *g.ParentGroupID
	}
	return nil
}

// AddMember is idempotent per spec.md §4.4: an existing active
// membership with the same role is returned unchanged; an inactive one
// is reactivated (bumping joined_at); otherwise a fresh row is
// inserted.
func (s *Service) AddMember(ctx context.Context, userID, groupID, role string) (*Membership, error) {
	var result *Membership
	err := s.db.WithUnitOfWork(ctx, func(ctx context.Context, uow *database.UnitOfWork) error {
		repo := NewRepository(uow)
		existing, err := repo.GetMembership(ctx, userID, groupID)
		switch {
		case err == ErrNotFound:
			result, err = repo.InsertMembership(ctx, userID, groupID, role)
			if err != nil {
				return apperrors.Internal("insert membership", err)
			}
			return nil
		case err != nil:
			return apperrors.Internal("lookup membership", err)
		}

		if existing.IsActive && existing.RoleCode == role {
			result = existing
			return nil
		}
		if existing.IsActive && existing.RoleCode != role {
			if existing.RoleCode == RoleGroupAdmin {
				if err := s.guardLastAdmin(ctx, repo, groupID, userID); err != nil {
					return err
				}
			}
			if err := repo.UpdateMembershipRole(ctx, userID, groupID, role); err != nil {
				return apperrors.Internal("update membership role", err)
			}
			result, err = repo.GetMembership(ctx, userID, groupID)
			return err
		}
		result, err = repo.ReactivateMembership(ctx, userID, groupID, role)
		if err != nil {
			return apperrors.Internal("reactivate membership", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// RemoveMember deactivates a membership, enforcing the last-admin
// invariant (spec.md §4.3, §8).
func (s *Service) RemoveMember(ctx context.Context, userID, groupID string) error {
	return s.db.WithUnitOfWork(ctx, func(ctx context.Context, uow *database.UnitOfWork) error {
		repo := NewRepository(uow)
		existing, err := repo.GetMembership(ctx, userID, groupID)
		if err != nil {
			if err == ErrNotFound {
				return apperrors.NotFound("membership")
			}
			return apperrors.Internal("lookup membership", err)
		}
		if !existing.IsActive {
			return nil
		}
		if existing.RoleCode == RoleGroupAdmin {
			if err := s.guardLastAdmin(ctx, repo, groupID, userID); err != nil {
				return err
			}
		}
		if err := repo.DeactivateMembership(ctx, userID, groupID); err != nil {
			return apperrors.Internal("deactivate membership", err)
		}
		return nil
	})
}

// guardLastAdmin returns LastAdmin() if removing/demoting userID from
// groupID would leave the group with zero active admins.
func (s *Service) guardLastAdmin(ctx context.Context, repo *Repository, groupID, excludingUserID string) error {
	count, err := repo.CountActiveAdmins(ctx, groupID)
	if err != nil {
		return apperrors.Internal("count active admins", err)
	}
	_ = excludingUserID // the count already reflects this user as one of them; <=1 means they are the last
	if count <= 1 {
		return apperrors.LastAdmin()
	}
	return nil
}

// Invite creates a group invitation. It rejects a second active pending
// invitation for the same target (email or user id), per spec.md §4.4.
func (s *Service) Invite(ctx context.Context, groupID, inviterUserID, role string, inviteeEmail, inviteeUserID *string, ttl time.Duration) (*Invitation, error) {
	if inviteeEmail == nil && inviteeUserID == nil {
		return nil, apperrors.MissingParameter("invitee_email_or_user_id")
	}

	code, err := randomURLSafeCode()
	if err != nil {
		return nil, apperrors.Internal("generate invitation code", err)
	}

	var created *Invitation
	err = s.db.WithUnitOfWork(ctx, func(ctx context.Context, uow *database.UnitOfWork) error {
		repo := NewRepository(uow)
		if _, err := repo.FindActivePendingForTarget(ctx, groupID, inviteeEmail, inviteeUserID); err == nil {
			return apperrors.Conflict("invitation_already_pending", "this target already has an active pending invitation")
		} else if err != ErrNotFound {
			return apperrors.Internal("check existing invitation", err)
		}

		inv := &Invitation{
			GroupID: groupID, InviterUserID: inviterUserID, RoleToAssign: role,
			InviteeEmail: inviteeEmail, InviteeUserID: inviteeUserID,
			Code: code, ExpiresAt: time.Now().Add(ttl), MaxUses: 1,
		}
		row, err := repo.CreateInvitation(ctx, inv)
		if err != nil {
			return apperrors.Internal("create invitation", err)
		}
		created = row
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// AcceptInvitation validates the code (pending, not expired, targeted
// at the accepting actor if the invitation was targeted), transitions it
// to accepted, and creates or reactivates the membership — all in one
// unit of work, per spec.md §4.4.
func (s *Service) AcceptInvitation(ctx context.Context, code, actorUserID, actorEmail string) (*Membership, error) {
	var result *Membership
	err := s.db.WithUnitOfWork(ctx, func(ctx context.Context, uow *database.UnitOfWork) error {
		repo := NewRepository(uow)
		inv, err := repo.GetInvitationByCodeForUpdate(ctx, code)
		if err != nil {
			if err == ErrNotFound {
				return apperrors.NotFound("invitation")
			}
			return apperrors.Internal("lookup invitation", err)
		}

		if inv.Status == InvitationAccepted {
			return apperrors.AlreadyAccepted()
		}
		if !inv.IsPending() {
			return apperrors.BusinessRule("invitation_not_pending", "this invitation is no longer pending", 400)
		}
		if inv.IsExpired() {
			return apperrors.InvitationExpired()
		}
		if inv.InviteeUserID != nil && *inv.InviteeUserID != actorUserID {
			return apperrors.Forbidden("not_invitation_target", "this invitation targets a different user")
		}
		if inv.InviteeEmail != nil && !strings.EqualFold(*inv.InviteeEmail, actorEmail) {
			return apperrors.Forbidden("not_invitation_target", "this invitation targets a different email")
		}

		if err := repo.MarkInvitationAccepted(ctx, inv.ID); err != nil {
			return apperrors.Internal("accept invitation", err)
		}

		existing, err := repo.GetMembership(ctx, actorUserID, inv.GroupID)
		switch {
		case err == ErrNotFound:
			result, err = repo.InsertMembership(ctx, actorUserID, inv.GroupID, inv.RoleToAssign)
			if err != nil {
				return apperrors.Internal("insert membership", err)
			}
		case err != nil:
			return apperrors.Internal("lookup membership", err)
		case !existing.IsActive:
			result, err = repo.ReactivateMembership(ctx, actorUserID, inv.GroupID, inv.RoleToAssign)
			if err != nil {
				return apperrors.Internal("reactivate membership", err)
			}
		default:
			result = existing
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// LedgerSettings returns a group's configured bonus-type currency and
// debt cap, the source of truth task.Service consults instead of
// trusting a caller-supplied bonus type (spec.md §4.6).
func (s *Service) LedgerSettings(ctx context.Context, groupID string) (string, *float64, error) {
	settings, err := NewRepository(s.db).GetSettings(ctx, groupID)
	if err != nil {
		if err == ErrNotFound {
			return "", nil, apperrors.NotFound("group settings")
		}
		return "", nil, apperrors.Internal("lookup group settings", err)
	}
	return settings.BonusTypeCode, settings.MaxDebtAllowed, nil
}

// ExpireStalePending is the scheduler's invitation-expiry sweep
// (spec.md §4.10): transitions all pending invitations past their
// expiry to expired, without touching memberships.
func (s *Service) ExpireStalePending(ctx context.Context) (int64, error) {
	repo := NewRepository(s.db)
	return repo.ExpirePendingBefore(ctx, time.Now())
}

func randomURLSafeCode() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
