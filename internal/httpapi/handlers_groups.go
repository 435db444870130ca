package httpapi

import (
	"net/http"
	"time"

	"github.com/kudos-hq/kudos-server/internal/domain/authz"
	"github.com/kudos-hq/kudos-server/internal/domain/group"
	apperrors "github.com/kudos-hq/kudos-server/internal/errors"
)

type createGroupRequest struct {
	Name          string  `json:"name"`
	GroupTypeCode string  `json:"group_type_code"`
	ParentGroupID *string `json:"parent_group_id,omitempty"`
}

func (s *Server) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireAuth(w, r)
	if !ok {
		return
	}
	var req createGroupRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	g, err := s.groupSvc.Create(r.Context(), req.Name, req.GroupTypeCode, actor.UserID, req.ParentGroupID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, groupDTO(g))
}

func (s *Server) handleGetGroup(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireAuth(w, r)
	if !ok {
		return
	}
	groupID, ok := pathVar(w, r, "groupID")
	if !ok {
		return
	}
	if err := s.authzResolver.Allow(r.Context(), authz.Request{Actor: actor, Scope: authz.ScopeGroupMember, GroupID: &groupID}); err != nil {
		writeError(w, r, err)
		return
	}
	g, err := group.NewRepository(s.db).GetByID(r.Context(), groupID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, groupDTO(g))
}

type addGroupMemberRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

func (s *Server) handleAddGroupMember(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireAuth(w, r)
	if !ok {
		return
	}
	groupID, ok := pathVar(w, r, "groupID")
	if !ok {
		return
	}
	if err := s.authzResolver.Allow(r.Context(), authz.Request{Actor: actor, Scope: authz.ScopeGroupAdmin, GroupID: &groupID}); err != nil {
		writeError(w, r, err)
		return
	}
	var req addGroupMemberRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	m, err := s.groupSvc.AddMember(r.Context(), req.UserID, groupID, req.Role)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, membershipDTO(m))
}

func (s *Server) handleRemoveGroupMember(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireAuth(w, r)
	if !ok {
		return
	}
	groupID, ok := pathVar(w, r, "groupID")
	if !ok {
		return
	}
	targetUserID, ok := pathVar(w, r, "userID")
	if !ok {
		return
	}
	if err := s.authzResolver.Allow(r.Context(), authz.Request{Actor: actor, Scope: authz.ScopeGroupAdmin, GroupID: &groupID}); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.groupSvc.RemoveMember(r.Context(), targetUserID, groupID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type inviteRequest struct {
	Role          string  `json:"role"`
	InviteeEmail  *string `json:"invitee_email,omitempty"`
	InviteeUserID *string `json:"invitee_user_id,omitempty"`
	TTLHours      int     `json:"ttl_hours"`
}

func (s *Server) handleInviteToGroup(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireAuth(w, r)
	if !ok {
		return
	}
	groupID, ok := pathVar(w, r, "groupID")
	if !ok {
		return
	}
	if err := s.authzResolver.Allow(r.Context(), authz.Request{Actor: actor, Scope: authz.ScopeGroupAdmin, GroupID: &groupID}); err != nil {
		writeError(w, r, err)
		return
	}
	var req inviteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.TTLHours <= 0 {
		req.TTLHours = 72
	}
	if req.InviteeEmail == nil && req.InviteeUserID == nil {
		writeError(w, r, apperrors.Validation("invitee", "either invitee_email or invitee_user_id is required"))
		return
	}
	inv, err := s.groupSvc.Invite(r.Context(), groupID, actor.UserID, req.Role, req.InviteeEmail, req.InviteeUserID, time.Duration(req.TTLHours)*time.Hour)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, invitationDTO(inv))
}

type acceptInvitationRequest struct {
	Code string `json:"code"`
}

func (s *Server) handleAcceptInvitation(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireAuth(w, r)
	if !ok {
		return
	}
	var req acceptInvitationRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	u, err := identityLookupEmail(s, r, actor.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	m, err := s.groupSvc.AcceptInvitation(r.Context(), req.Code, actor.UserID, u)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, membershipDTO(m))
}
