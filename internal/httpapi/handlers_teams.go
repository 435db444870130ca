package httpapi

import (
	"net/http"

	"github.com/kudos-hq/kudos-server/internal/domain/authz"
	"github.com/kudos-hq/kudos-server/internal/domain/team"
)

type createTeamRequest struct {
	GroupID      string  `json:"group_id"`
	Name         string  `json:"name"`
	LeaderUserID *string `json:"leader_user_id,omitempty"`
	MaxMembers   *int    `json:"max_members,omitempty"`
}

func (s *Server) handleCreateTeam(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireAuth(w, r)
	if !ok {
		return
	}
	var req createTeamRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.authzResolver.Allow(r.Context(), authz.Request{Actor: actor, Scope: authz.ScopeGroupAdmin, GroupID: &req.GroupID}); err != nil {
		writeError(w, r, err)
		return
	}
	t, err := s.teamSvc.Create(r.Context(), req.GroupID, req.Name, req.LeaderUserID, req.MaxMembers)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, teamDTO(t))
}

func (s *Server) handleGetTeam(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireAuth(w, r); !ok {
		return
	}
	teamID, ok := pathVar(w, r, "teamID")
	if !ok {
		return
	}
	t, err := team.NewRepository(s.db).GetByID(r.Context(), teamID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, teamDTO(t))
}

type teamMemberRequest struct {
	UserID   string  `json:"user_id"`
	RoleCode *string `json:"role_code,omitempty"`
}

func (s *Server) handleAddTeamMember(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireAuth(w, r)
	if !ok {
		return
	}
	teamID, ok := pathVar(w, r, "teamID")
	if !ok {
		return
	}
	if err := s.authzResolver.Allow(r.Context(), authz.Request{Actor: actor, Scope: authz.ScopeTeamLeader, TeamID: &teamID}); err != nil {
		writeError(w, r, err)
		return
	}
	var req teamMemberRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.teamSvc.AddMember(r.Context(), req.UserID, teamID, req.RoleCode); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) handleRemoveTeamMember(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireAuth(w, r)
	if !ok {
		return
	}
	teamID, ok := pathVar(w, r, "teamID")
	if !ok {
		return
	}
	targetUserID, ok := pathVar(w, r, "userID")
	if !ok {
		return
	}
	if err := s.authzResolver.Allow(r.Context(), authz.Request{Actor: actor, Scope: authz.ScopeTeamLeader, TeamID: &teamID}); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.teamSvc.RemoveMember(r.Context(), targetUserID, teamID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type reassignLeaderRequest struct {
	NewLeaderUserID string `json:"new_leader_user_id"`
}

func (s *Server) handleReassignTeamLeader(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireAuth(w, r)
	if !ok {
		return
	}
	teamID, ok := pathVar(w, r, "teamID")
	if !ok {
		return
	}
	if err := s.authzResolver.Allow(r.Context(), authz.Request{Actor: actor, Scope: authz.ScopeTeamLeader, TeamID: &teamID}); err != nil {
		writeError(w, r, err)
		return
	}
	var req reassignLeaderRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.teamSvc.ReassignLeader(r.Context(), teamID, req.NewLeaderUserID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
