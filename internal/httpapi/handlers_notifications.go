package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/kudos-hq/kudos-server/internal/domain/authz"
	apperrors "github.com/kudos-hq/kudos-server/internal/errors"
)

type enqueueNotificationRequest struct {
	NotificationTypeCode string         `json:"notification_type_code"`
	GroupID              string         `json:"group_id"`
	UserID               string         `json:"user_id"`
	Payload              map[string]any `json:"payload"`
}

// handleEnqueueNotification is a bot/admin-only entrypoint — ordinary
// actors never enqueue notifications directly, they are a side effect
// of other operations (spec.md §4.8).
func (s *Server) handleEnqueueNotification(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireAuth(w, r)
	if !ok {
		return
	}
	var req enqueueNotificationRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.authzResolver.Allow(r.Context(), authz.Request{Actor: actor, Scope: authz.ScopeBotOnly}); err != nil {
		if err2 := s.authzResolver.Allow(r.Context(), authz.Request{Actor: actor, Scope: authz.ScopeGroupAdmin, GroupID: &req.GroupID}); err2 != nil {
			writeError(w, r, apperrors.Forbidden("not_bot_or_admin", "notifications may only be enqueued by the system actor or a group admin"))
			return
		}
	}
	if err := s.notifySvc.Enqueue(r.Context(), req.NotificationTypeCode, req.GroupID, req.UserID, req.Payload); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// handleMarkNotificationRead implements the self-service read/own
// notification check (spec.md §4.3's object-owner rule) plus §8's
// mark-as-read idempotence law.
func (s *Server) handleMarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireAuth(w, r)
	if !ok {
		return
	}
	notificationID := mux.Vars(r)["notificationID"]
	n, err := s.notifySvc.Get(r.Context(), notificationID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if n.UserID != actor.UserID && !actor.IsSuperadmin() {
		writeError(w, r, apperrors.Forbidden("not_owner", "notifications may only be marked read by their recipient"))
		return
	}
	if err := s.notifySvc.MarkAsRead(r.Context(), notificationID); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
