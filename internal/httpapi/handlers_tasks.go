package httpapi

import (
	"net/http"
	"time"

	"github.com/kudos-hq/kudos-server/internal/domain/authz"
	"github.com/kudos-hq/kudos-server/internal/domain/task"
	apperrors "github.com/kudos-hq/kudos-server/internal/errors"
)

type createTaskRequest struct {
	GroupID                 string     `json:"group_id"`
	TaskTypeCode            string     `json:"task_type_code"`
	ParentTaskID            *string    `json:"parent_task_id,omitempty"`
	TeamID                  *string    `json:"team_id,omitempty"`
	BonusPoints             float64    `json:"bonus_points"`
	PenaltyPoints           float64    `json:"penalty_points"`
	DueDate                 *time.Time `json:"due_date,omitempty"`
	IsRecurring             bool       `json:"is_recurring"`
	RecurringInterval       *string    `json:"recurring_interval,omitempty"`
	MaxOccurrences          *int       `json:"max_occurrences,omitempty"`
	IsMandatory             bool       `json:"is_mandatory"`
	AllowMultipleAssignees  bool       `json:"allow_multiple_assignees"`
	FirstCompletesGetsBonus bool       `json:"first_completes_gets_bonus"`
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireAuth(w, r)
	if !ok {
		return
	}
	var req createTaskRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.authzResolver.Allow(r.Context(), authz.Request{Actor: actor, Scope: authz.ScopeGroupMember, GroupID: &req.GroupID}); err != nil {
		writeError(w, r, err)
		return
	}
	t := &task.Task{
		GroupID: req.GroupID, TaskTypeCode: req.TaskTypeCode, CreatorUserID: actor.UserID,
		ParentTaskID: req.ParentTaskID, TeamID: req.TeamID, BonusPoints: req.BonusPoints, PenaltyPoints: req.PenaltyPoints,
		DueDate: req.DueDate, IsRecurring: req.IsRecurring, RecurringInterval: req.RecurringInterval,
		MaxOccurrences: req.MaxOccurrences, IsMandatory: req.IsMandatory,
		AllowMultipleAssignees: req.AllowMultipleAssignees, FirstCompletesGetsBonus: req.FirstCompletesGetsBonus,
	}
	created, err := s.taskSvc.Create(r.Context(), t)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, taskDTO(created))
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireAuth(w, r); !ok {
		return
	}
	taskID, ok := pathVar(w, r, "taskID")
	if !ok {
		return
	}
	t, err := task.NewRepository(s.db).GetByID(r.Context(), taskID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, taskDTO(t))
}

type addDependencyRequest struct {
	PrerequisiteID string `json:"prerequisite_id"`
	DependencyType string `json:"dependency_type"`
}

func (s *Server) handleAddDependency(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireAuth(w, r)
	if !ok {
		return
	}
	taskID, ok := pathVar(w, r, "taskID")
	if !ok {
		return
	}
	groupID, err := s.taskSvc.GroupIDForTask(r.Context(), taskID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.authzResolver.Allow(r.Context(), authz.Request{Actor: actor, Scope: authz.ScopeGroupAdmin, GroupID: &groupID}); err != nil {
		writeError(w, r, err)
		return
	}
	var req addDependencyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.DependencyType == "" {
		req.DependencyType = task.DependencyFinishToStart
	}
	dep, err := s.taskSvc.AddDependency(r.Context(), taskID, req.PrerequisiteID, req.DependencyType)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": dep.ID, "dependent_task_id": dep.DependentTaskID, "prerequisite_id": dep.PrerequisiteID})
}

type assignTaskRequest struct {
	UserID *string `json:"user_id,omitempty"`
	TeamID *string `json:"team_id,omitempty"`
}

func (s *Server) handleAssignTask(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireAuth(w, r)
	if !ok {
		return
	}
	taskID, ok := pathVar(w, r, "taskID")
	if !ok {
		return
	}
	groupID, err := s.taskSvc.GroupIDForTask(r.Context(), taskID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.authzResolver.Allow(r.Context(), authz.Request{Actor: actor, Scope: authz.ScopeGroupAdmin, GroupID: &groupID}); err != nil {
		writeError(w, r, err)
		return
	}
	var req assignTaskRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if (req.UserID == nil) == (req.TeamID == nil) {
		writeError(w, r, apperrors.Validation("assignee", "exactly one of user_id or team_id is required"))
		return
	}
	a, err := s.taskSvc.Assign(r.Context(), taskID, actor.UserID, req.UserID, req.TeamID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, assignmentDTO(a))
}

func (s *Server) handleStartTask(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireAuth(w, r)
	if !ok {
		return
	}
	taskID, ok := pathVar(w, r, "taskID")
	if !ok {
		return
	}
	groupID, err := s.taskSvc.GroupIDForTask(r.Context(), taskID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.authzResolver.Allow(r.Context(), authz.Request{Actor: actor, Scope: authz.ScopeGroupMember, GroupID: &groupID}); err != nil {
		writeError(w, r, err)
		return
	}
	c, err := s.taskSvc.Start(r.Context(), taskID, actor.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, completionDTO(c))
}

type submitForReviewRequest struct {
	AttachmentsMeta *string `json:"attachments_meta,omitempty"`
}

func (s *Server) handleSubmitForReview(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireAuth(w, r); !ok {
		return
	}
	completionID, ok := pathVar(w, r, "completionID")
	if !ok {
		return
	}
	var req submitForReviewRequest
	if r.ContentLength != 0 {
		if !decodeJSON(w, r, &req) {
			return
		}
	}
	if err := s.taskSvc.SubmitForReview(r.Context(), completionID, req.AttachmentsMeta); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type approveCompletionRequest struct {
	Notes *string `json:"notes,omitempty"`
}

func (s *Server) handleApproveCompletion(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireAuth(w, r)
	if !ok {
		return
	}
	completionID, ok := pathVar(w, r, "completionID")
	if !ok {
		return
	}
	groupID, err := s.taskSvc.GroupIDForCompletion(r.Context(), completionID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.authzResolver.Allow(r.Context(), authz.Request{Actor: actor, Scope: authz.ScopeGroupAdmin, GroupID: &groupID}); err != nil {
		writeError(w, r, err)
		return
	}
	var req approveCompletionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	c, err := s.taskSvc.Approve(r.Context(), completionID, actor.UserID, req.Notes)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, completionDTO(c))
}

type rejectCompletionRequest struct {
	Notes *string `json:"notes,omitempty"`
}

func (s *Server) handleRejectCompletion(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireAuth(w, r)
	if !ok {
		return
	}
	completionID, ok := pathVar(w, r, "completionID")
	if !ok {
		return
	}
	groupID, err := s.taskSvc.GroupIDForCompletion(r.Context(), completionID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.authzResolver.Allow(r.Context(), authz.Request{Actor: actor, Scope: authz.ScopeGroupAdmin, GroupID: &groupID}); err != nil {
		writeError(w, r, err)
		return
	}
	var req rejectCompletionRequest
	if r.ContentLength != 0 {
		if !decodeJSON(w, r, &req) {
			return
		}
	}
	if err := s.taskSvc.Reject(r.Context(), completionID, actor.UserID, req.Notes); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCancelCompletion(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireAuth(w, r)
	if !ok {
		return
	}
	completionID, ok := pathVar(w, r, "completionID")
	if !ok {
		return
	}
	groupID, err := s.taskSvc.GroupIDForCompletion(r.Context(), completionID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.authzResolver.Allow(r.Context(), authz.Request{Actor: actor, Scope: authz.ScopeGroupMember, GroupID: &groupID}); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.taskSvc.Cancel(r.Context(), completionID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type reviewTaskRequest struct {
	Rating  *int    `json:"rating,omitempty"`
	Comment *string `json:"comment,omitempty"`
}

func (s *Server) handleReviewTask(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireAuth(w, r)
	if !ok {
		return
	}
	taskID, ok := pathVar(w, r, "taskID")
	if !ok {
		return
	}
	var req reviewTaskRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	rv, err := s.taskSvc.Review(r.Context(), taskID, actor.UserID, req.Rating, req.Comment)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, reviewDTO(rv))
}
