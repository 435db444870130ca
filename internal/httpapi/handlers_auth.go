package httpapi

import (
	"net/http"

	apperrors "github.com/kudos-hq/kudos-server/internal/errors"
)

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Username string `json:"username"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	u, err := s.identitySvc.Register(r.Context(), req.Email, req.Password, req.Username)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if _, err := s.oneTimeTok.IssueEmailVerification(u.Email); err != nil {
		writeError(w, r, apperrors.Internal("issue email verification token", err))
		return
	}
	writeJSON(w, http.StatusCreated, userDTO(u))
}

type verifyEmailRequest struct {
	Token string `json:"token"`
}

func (s *Server) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req verifyEmailRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	email, err := s.oneTimeTok.VerifyEmailVerification(r.Context(), req.Token)
	if err != nil {
		writeError(w, r, apperrors.InvalidToken())
		return
	}
	u, err := s.identitySvc.VerifyEmail(r.Context(), email)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, userDTO(u))
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	u, err := s.identitySvc.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ua, ip := clientMeta(r)
	pair, err := s.refreshTok.IssuePair(r.Context(), u.ID, u.UserTypeCode, ua, ip)
	if err != nil {
		writeError(w, r, apperrors.Internal("issue token pair", err))
		return
	}
	writeJSON(w, http.StatusOK, tokenPairResponseFrom(pair))
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	ua, ip := clientMeta(r)
	pair, err := s.refreshTok.Refresh(r.Context(), req.RefreshToken, ua, ip)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenPairResponseFrom(pair))
}

type logoutRequest struct {
	AllDevices bool `json:"all_devices"`
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireAuth(w, r)
	if !ok {
		return
	}
	var req logoutRequest
	if r.ContentLength != 0 {
		if !decodeJSON(w, r, &req) {
			return
		}
	}
	var target *string
	if req.AllDevices {
		target = nil
	}
	if err := s.refreshTok.Logout(r.Context(), actor.UserID, target, nil); err != nil {
		writeError(w, r, apperrors.Internal("logout", err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type resetRequestRequest struct {
	Email string `json:"email"`
}

// handlePasswordResetRequest always answers 202 regardless of whether
// the email is registered, so the endpoint can't be used to enumerate
// accounts.
func (s *Server) handlePasswordResetRequest(w http.ResponseWriter, r *http.Request) {
	var req resetRequestRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	_, _ = s.oneTimeTok.IssuePasswordReset(req.Email)
	w.WriteHeader(http.StatusAccepted)
}

type resetConfirmRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

func (s *Server) handlePasswordResetConfirm(w http.ResponseWriter, r *http.Request) {
	var req resetConfirmRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	email, err := s.oneTimeTok.VerifyPasswordReset(r.Context(), req.Token)
	if err != nil {
		writeError(w, r, apperrors.InvalidToken())
		return
	}
	if err := s.identitySvc.ResetPassword(r.Context(), email, req.NewPassword); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireAuth(w, r)
	if !ok {
		return
	}
	var req changePasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.identitySvc.ChangePassword(r.Context(), actor.UserID, req.CurrentPassword, req.NewPassword); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func clientMeta(r *http.Request) (userAgent, ip *string) {
	ua := r.UserAgent()
	remote := r.RemoteAddr
	return &ua, &remote
}
