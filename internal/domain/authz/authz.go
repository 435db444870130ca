// Package authz is the authorization resolver (spec.md §2, §4.3):
// given an actor and an intended operation on a target, decides
// allow/deny by evaluating, in order, bot/system restriction,
// superadmin override, object-owner self-service, group role, and team
// leadership. Grounded on the teacher's layered-check style in
// applications/auth.Manager (single-purpose Authenticate/Validate
// calls composed by callers) generalized into one ordered resolver,
// since the teacher itself has no multi-tenant role model to draw on
// directly.
package authz

import (
	"context"

	apperrors "github.com/kudos-hq/kudos-server/internal/errors"
)

// Scope names the class of actor a protected operation requires,
// beyond the unconditional bot/superadmin/self overrides.
type Scope string

const (
	// ScopePublic requires only a valid authenticated actor.
	ScopePublic Scope = "public"
	// ScopeSelf requires the actor to be the target's owner, unless
	// overridden by a higher-precedence rule.
	ScopeSelf Scope = "self"
	// ScopeGroupMember requires any active membership in the target group.
	ScopeGroupMember Scope = "group_member"
	// ScopeGroupAdmin requires an active admin (or superadmin) role in
	// the target group.
	ScopeGroupAdmin Scope = "group_admin"
	// ScopeTeamLeader requires the actor to lead the target team (or
	// hold group-admin rights over the team's group).
	ScopeTeamLeader Scope = "team_leader"
	// ScopeBotOnly is reserved for scheduler-invoked operations only
	// the internal "shadow" actor may call (spec.md §4.3 step 1).
	ScopeBotOnly Scope = "bot_only"
)

// Actor is the caller attempting an operation.
type Actor struct {
	UserID       string
	UserTypeCode string
	IsBot        bool
}

func (a Actor) IsSuperadmin() bool { return a.UserTypeCode == "superadmin" }

// MembershipProvider resolves an actor's active role within a group,
// implemented by internal/domain/group against the persistence gateway.
// Kept as a narrow interface here so authz never imports group (group
// imports authz instead, to avoid a cycle).
type MembershipProvider interface {
	ActiveRole(ctx context.Context, userID, groupID string) (role string, active bool, err error)
}

// TeamLeaderProvider resolves whether a user leads a given team,
// implemented by internal/domain/team.
type TeamLeaderProvider interface {
	IsLeader(ctx context.Context, userID, teamID string) (bool, error)
}

const (
	RoleGroupAdmin = "group_admin"
)

// Request describes one authorization decision: an actor attempting an
// operation that requires Scope, optionally scoped to a group, team, or
// owned resource.
type Request struct {
	Actor       Actor
	Scope       Scope
	GroupID     *string
	TeamID      *string
	OwnerUserID *string // the resource's owning user, for ScopeSelf
}

// Resolver evaluates Requests against the five-step order spec.md §4.3
// defines.
type Resolver struct {
	Memberships MembershipProvider
	Teams       TeamLeaderProvider
}

func NewResolver(memberships MembershipProvider, teams TeamLeaderProvider) *Resolver {
	return &Resolver{Memberships: memberships, Teams: teams}
}

// Allow returns nil if req.Actor may perform the operation, or a
// *errors.ServiceError (Forbidden) otherwise.
func (r *Resolver) Allow(ctx context.Context, req Request) error {
	// Step 1: bot & system operations are only callable by the
	// internal bot actor, regardless of any other privilege.
	if req.Scope == ScopeBotOnly {
		if req.Actor.IsBot {
			return nil
		}
		return apperrors.Forbidden("bot_only", "this operation may only be invoked by the system actor")
	}
	if req.Actor.IsBot {
		// A bot actor outside a bot-only operation has no standing
		// privilege of its own beyond what the remaining steps grant.
		return r.allowNonBot(ctx, req)
	}

	// Step 2: superadmin grants all non-bot-only operations.
	if req.Actor.IsSuperadmin() {
		return nil
	}

	return r.allowNonBot(ctx, req)
}

func (r *Resolver) allowNonBot(ctx context.Context, req Request) error {
	// Step 3: object owner / self-service.
	if req.Scope == ScopeSelf {
		if req.OwnerUserID != nil && *req.OwnerUserID == req.Actor.UserID {
			return nil
		}
		return apperrors.Forbidden("not_owner", "this operation is restricted to the resource's owner")
	}

	// Step 4: group role.
	if req.Scope == ScopeGroupMember || req.Scope == ScopeGroupAdmin {
		if req.GroupID == nil {
			return apperrors.Internal("authz: group-scoped request missing group id", nil)
		}
		role, active, err := r.Memberships.ActiveRole(ctx, req.Actor.UserID, *req.GroupID)
		if err != nil {
			return apperrors.Internal("authz: resolve membership", err)
		}
		if !active {
			return apperrors.Forbidden("not_a_member", "actor is not an active member of this group")
		}
		if req.Scope == ScopeGroupAdmin && role != RoleGroupAdmin {
			return apperrors.Forbidden("not_group_admin", "this operation requires a group admin role")
		}
		return nil
	}

	// Step 5: team leader.
	if req.Scope == ScopeTeamLeader {
		if req.TeamID == nil {
			return apperrors.Internal("authz: team-scoped request missing team id", nil)
		}
		isLeader, err := r.Teams.IsLeader(ctx, req.Actor.UserID, *req.TeamID)
		if err != nil {
			return apperrors.Internal("authz: resolve team leadership", err)
		}
		if isLeader {
			return nil
		}
		// A team-scoped operation also admits the team's group admin,
		// per spec.md §4.3 step 5's "admin-equivalent rights" framing —
		// checked only if a group id was also supplied.
		if req.GroupID != nil {
			role, active, err := r.Memberships.ActiveRole(ctx, req.Actor.UserID, *req.GroupID)
			if err == nil && active && role == RoleGroupAdmin {
				return nil
			}
		}
		return apperrors.Forbidden("not_team_leader", "this operation requires team leadership")
	}

	if req.Scope == ScopePublic {
		return nil
	}

	return apperrors.Internal("authz: unrecognized scope", nil)
}
