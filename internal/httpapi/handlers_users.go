package httpapi

import (
	"net/http"

	"github.com/kudos-hq/kudos-server/internal/domain/identity"
)

// identityLookupEmail resolves a user id to its current email, used by
// handlers that need the caller's email for a downstream call (e.g.
// invitation acceptance matching against an invitee_email).
func identityLookupEmail(s *Server, r *http.Request, userID string) (string, error) {
	u, err := identity.NewRepository(s.db).GetByID(r.Context(), userID)
	if err != nil {
		return "", err
	}
	return u.Email, nil
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireAuth(w, r)
	if !ok {
		return
	}
	u, err := identity.NewRepository(s.db).GetByID(r.Context(), actor.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, userDTO(u))
}
