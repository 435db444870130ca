package authz

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	apperrors "github.com/kudos-hq/kudos-server/internal/errors"
)

type fakeMemberships map[string]map[string]string // userID -> groupID -> role

func (f fakeMemberships) ActiveRole(_ context.Context, userID, groupID string) (string, bool, error) {
	groups, ok := f[userID]
	if !ok {
		return "", false, nil
	}
	role, ok := groups[groupID]
	return role, ok, nil
}

type fakeTeams map[string]string // teamID -> leaderUserID

func (f fakeTeams) IsLeader(_ context.Context, userID, teamID string) (bool, error) {
	return f[teamID] == userID, nil
}

func strp(s string) *string { return &s }

func TestSuperadminAllowsEverything(t *testing.T) {
	r := NewResolver(fakeMemberships{}, fakeTeams{})
	err := r.Allow(context.Background(), Request{
		Actor:   Actor{UserID: "u1", UserTypeCode: "superadmin"},
		Scope:   ScopeGroupAdmin,
		GroupID: strp("g1"),
	})
	require.NoError(t, err)
}

func TestBotOnlyRejectsNonBot(t *testing.T) {
	r := NewResolver(fakeMemberships{}, fakeTeams{})
	err := r.Allow(context.Background(), Request{
		Actor: Actor{UserID: "u1", UserTypeCode: "superadmin"},
		Scope: ScopeBotOnly,
	})
	require.Error(t, err)
	se, ok := apperrors.As(err)
	require.True(t, ok)
	require.Equal(t, apperrors.KindForbidden, se.Kind)
}

func TestBotOnlyAllowsBot(t *testing.T) {
	r := NewResolver(fakeMemberships{}, fakeTeams{})
	err := r.Allow(context.Background(), Request{
		Actor: Actor{UserID: "shadow-id", UserTypeCode: "bot", IsBot: true},
		Scope: ScopeBotOnly,
	})
	require.NoError(t, err)
}

func TestSelfServiceAllowsOwner(t *testing.T) {
	r := NewResolver(fakeMemberships{}, fakeTeams{})
	err := r.Allow(context.Background(), Request{
		Actor:       Actor{UserID: "u1", UserTypeCode: "user"},
		Scope:       ScopeSelf,
		OwnerUserID: strp("u1"),
	})
	require.NoError(t, err)

	err = r.Allow(context.Background(), Request{
		Actor:       Actor{UserID: "u1", UserTypeCode: "user"},
		Scope:       ScopeSelf,
		OwnerUserID: strp("u2"),
	})
	require.Error(t, err)
}

func TestGroupAdminScopeRequiresAdminRole(t *testing.T) {
	memberships := fakeMemberships{"u1": {"g1": RoleGroupAdmin}, "u2": {"g1": "group_user"}}
	r := NewResolver(memberships, fakeTeams{})

	err := r.Allow(context.Background(), Request{Actor: Actor{UserID: "u1", UserTypeCode: "user"}, Scope: ScopeGroupAdmin, GroupID: strp("g1")})
	require.NoError(t, err)

	err = r.Allow(context.Background(), Request{Actor: Actor{UserID: "u2", UserTypeCode: "user"}, Scope: ScopeGroupAdmin, GroupID: strp("g1")})
	require.Error(t, err)

	err = r.Allow(context.Background(), Request{Actor: Actor{UserID: "u3", UserTypeCode: "user"}, Scope: ScopeGroupMember, GroupID: strp("g1")})
	require.Error(t, err, "a non-member must be denied even read-level group_member scope")
}

func TestTeamLeaderScopeAdmitsGroupAdminToo(t *testing.T) {
	memberships := fakeMemberships{"u1": {"g1": RoleGroupAdmin}}
	teams := fakeTeams{"t1": "u2"}
	r := NewResolver(memberships, teams)

	err := r.Allow(context.Background(), Request{Actor: Actor{UserID: "u2", UserTypeCode: "user"}, Scope: ScopeTeamLeader, TeamID: strp("t1")})
	require.NoError(t, err, "the team's own leader must be allowed")

	err = r.Allow(context.Background(), Request{Actor: Actor{UserID: "u1", UserTypeCode: "user"}, Scope: ScopeTeamLeader, TeamID: strp("t1"), GroupID: strp("g1")})
	require.NoError(t, err, "the team's group admin must be allowed team-equivalent rights")

	err = r.Allow(context.Background(), Request{Actor: Actor{UserID: "u3", UserTypeCode: "user"}, Scope: ScopeTeamLeader, TeamID: strp("t1")})
	require.Error(t, err)
}
