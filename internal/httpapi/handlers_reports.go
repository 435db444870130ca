package httpapi

import (
	"net/http"

	"github.com/kudos-hq/kudos-server/internal/domain/authz"
	"github.com/kudos-hq/kudos-server/internal/domain/report"
)

type submitReportRequest struct {
	ReportCode    string         `json:"report_code"`
	GroupID       *string        `json:"group_id,omitempty"`
	SubjectUserID *string        `json:"subject_user_id,omitempty"`
	Params        map[string]any `json:"params"`
}

func (s *Server) handleSubmitReport(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireAuth(w, r)
	if !ok {
		return
	}
	var req submitReportRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req2, err := s.reportSvc.Submit(r.Context(), actor, req.ReportCode, req.GroupID, req.SubjectUserID, req.Params)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, reportDTO(req2))
}

func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireAuth(w, r)
	if !ok {
		return
	}
	reportID, ok := pathVar(w, r, "reportID")
	if !ok {
		return
	}
	req, err := s.reportSvc.GetByID(r.Context(), reportID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	switch req.Scope {
	case report.ScopeGroup:
		if err := s.authzResolver.Allow(r.Context(), authz.Request{Actor: actor, Scope: authz.ScopeGroupAdmin, GroupID: req.GroupID}); err != nil {
			writeError(w, r, err)
			return
		}
	case report.ScopePersonal:
		if err := s.authzResolver.Allow(r.Context(), authz.Request{Actor: actor, Scope: authz.ScopeSelf, OwnerUserID: req.SubjectUserID}); err != nil {
			writeError(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, reportDTO(req))
}

type reportResponse struct {
	ID           string  `json:"id"`
	ReportCode   string  `json:"report_code"`
	Status       string  `json:"status"`
	FileRef      *string `json:"file_ref,omitempty"`
	ErrorMessage *string `json:"error_message,omitempty"`
}

func reportDTO(req *report.Request) reportResponse {
	return reportResponse{ID: req.ID, ReportCode: req.ReportCode, Status: req.Status, FileRef: req.FileRef, ErrorMessage: req.ErrorMessage}
}
