package httpapi

import (
	"net/http"

	"github.com/kudos-hq/kudos-server/internal/domain/authz"
)

type evaluateLevelRequest struct {
	UserID      string  `json:"user_id"`
	GroupID     string  `json:"group_id"`
	TotalPoints float64 `json:"total_points"`
}

func (s *Server) handleEvaluateLevel(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireAuth(w, r)
	if !ok {
		return
	}
	var req evaluateLevelRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.authzResolver.Allow(r.Context(), authz.Request{Actor: actor, Scope: authz.ScopeBotOnly}); err != nil {
		if err2 := s.authzResolver.Allow(r.Context(), authz.Request{Actor: actor, Scope: authz.ScopeGroupAdmin, GroupID: &req.GroupID}); err2 != nil {
			writeError(w, r, err2)
			return
		}
	}
	ul, err := s.gamifySvc.EvaluateLevel(r.Context(), req.UserID, req.GroupID, req.TotalPoints)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": ul.ID, "user_id": ul.UserID, "group_id": ul.GroupID, "level_id": ul.LevelID, "is_current": ul.IsCurrent})
}

type evaluateBadgesRequest struct {
	UserID        string `json:"user_id"`
	GroupID       string `json:"group_id"`
	BonusTypeCode string `json:"bonus_type_code"`
}

func (s *Server) handleEvaluateBadges(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireAuth(w, r)
	if !ok {
		return
	}
	var req evaluateBadgesRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.authzResolver.Allow(r.Context(), authz.Request{Actor: actor, Scope: authz.ScopeBotOnly}); err != nil {
		if err2 := s.authzResolver.Allow(r.Context(), authz.Request{Actor: actor, Scope: authz.ScopeGroupAdmin, GroupID: &req.GroupID}); err2 != nil {
			writeError(w, r, err2)
			return
		}
	}
	achievements, err := s.gamifySvc.EvaluateBadges(r.Context(), req.UserID, req.GroupID, req.BonusTypeCode)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]map[string]any, 0, len(achievements))
	for _, a := range achievements {
		out = append(out, map[string]any{"id": a.ID, "badge_id": a.BadgeID, "user_id": a.UserID})
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": out})
}
