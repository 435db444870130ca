package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/kudos-hq/kudos-server/internal/domain/group"
	"github.com/kudos-hq/kudos-server/internal/domain/identity"
	"github.com/kudos-hq/kudos-server/internal/domain/ledger"
	"github.com/kudos-hq/kudos-server/internal/domain/task"
	"github.com/kudos-hq/kudos-server/internal/domain/team"
	"github.com/kudos-hq/kudos-server/internal/domain/token"
	apperrors "github.com/kudos-hq/kudos-server/internal/errors"
)

// Response DTOs translate domain entities to wire shapes, never
// marshaling a domain struct directly — PasswordHash and similar
// internal fields must never reach the wire.

type userResponse struct {
	ID           string  `json:"id"`
	Email        string  `json:"email"`
	Username     *string `json:"username,omitempty"`
	Verified     bool    `json:"verified"`
	Active       bool    `json:"active"`
	UserTypeCode string  `json:"user_type_code"`
}

func userDTO(u *identity.User) userResponse {
	return userResponse{
		ID: u.ID, Email: u.Email, Username: u.Username,
		Verified: u.Verified, Active: u.Active, UserTypeCode: u.UserTypeCode,
	}
}

type tokenPairResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresAt    string `json:"expires_at"`
}

func tokenPairResponseFrom(p *token.TokenPair) tokenPairResponse {
	return tokenPairResponse{
		AccessToken:  p.AccessToken,
		RefreshToken: p.RefreshToken,
		ExpiresAt:    p.ExpiresAt.Format(time.RFC3339),
	}
}

type groupResponse struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	GroupTypeCode string  `json:"group_type_code"`
	ParentGroupID *string `json:"parent_group_id,omitempty"`
	CreatorUserID string  `json:"creator_user_id"`
}

func groupDTO(g *group.Group) groupResponse {
	return groupResponse{ID: g.ID, Name: g.Name, GroupTypeCode: g.GroupTypeCode, ParentGroupID: g.ParentGroupID, CreatorUserID: g.CreatorUserID}
}

type membershipResponse struct {
	UserID   string `json:"user_id"`
	GroupID  string `json:"group_id"`
	RoleCode string `json:"role_code"`
	IsActive bool   `json:"is_active"`
}

func membershipDTO(m *group.Membership) membershipResponse {
	return membershipResponse{UserID: m.UserID, GroupID: m.GroupID, RoleCode: m.RoleCode, IsActive: m.IsActive}
}

type invitationResponse struct {
	ID           string `json:"id"`
	GroupID      string `json:"group_id"`
	Code         string `json:"code"`
	RoleToAssign string `json:"role_to_assign"`
	Status       string `json:"status"`
	ExpiresAt    string `json:"expires_at"`
}

func invitationDTO(i *group.Invitation) invitationResponse {
	return invitationResponse{ID: i.ID, GroupID: i.GroupID, Code: i.Code, RoleToAssign: i.RoleToAssign, Status: i.Status, ExpiresAt: i.ExpiresAt.Format(time.RFC3339)}
}

type teamResponse struct {
	ID           string  `json:"id"`
	GroupID      string  `json:"group_id"`
	Name         string  `json:"name"`
	LeaderUserID *string `json:"leader_user_id,omitempty"`
	MaxMembers   *int    `json:"max_members,omitempty"`
}

func teamDTO(t *team.Team) teamResponse {
	return teamResponse{ID: t.ID, GroupID: t.GroupID, Name: t.Name, LeaderUserID: t.LeaderUserID, MaxMembers: t.MaxMembers}
}

type taskResponse struct {
	ID                     string   `json:"id"`
	GroupID                string   `json:"group_id"`
	TaskTypeCode           string   `json:"task_type_code"`
	CreatorUserID          string   `json:"creator_user_id"`
	ParentTaskID           *string  `json:"parent_task_id,omitempty"`
	TeamID                 *string  `json:"team_id,omitempty"`
	BonusPoints            float64  `json:"bonus_points"`
	PenaltyPoints          float64  `json:"penalty_points"`
	DueDate                *string  `json:"due_date,omitempty"`
	IsRecurring            bool     `json:"is_recurring"`
	RecurringInterval      *string  `json:"recurring_interval,omitempty"`
	IsMandatory            bool     `json:"is_mandatory"`
	AllowMultipleAssignees bool     `json:"allow_multiple_assignees"`
	FirstCompletesGetsBonus bool    `json:"first_completes_gets_bonus"`
}

func taskDTO(t *task.Task) taskResponse {
	out := taskResponse{
		ID: t.ID, GroupID: t.GroupID, TaskTypeCode: t.TaskTypeCode, CreatorUserID: t.CreatorUserID,
		ParentTaskID: t.ParentTaskID, TeamID: t.TeamID, BonusPoints: t.BonusPoints, PenaltyPoints: t.PenaltyPoints,
		IsRecurring: t.IsRecurring, RecurringInterval: t.RecurringInterval, IsMandatory: t.IsMandatory,
		AllowMultipleAssignees: t.AllowMultipleAssignees, FirstCompletesGetsBonus: t.FirstCompletesGetsBonus,
	}
	if t.DueDate != nil {
		f := t.DueDate.Format(time.RFC3339)
		out.DueDate = &f
	}
	return out
}

type completionResponse struct {
	ID             string   `json:"id"`
	TaskID         string   `json:"task_id"`
	AssigneeUserID *string  `json:"assignee_user_id,omitempty"`
	AssigneeTeamID *string  `json:"assignee_team_id,omitempty"`
	Status         string   `json:"status"`
	AwardedBonus   *float64 `json:"awarded_bonus,omitempty"`
	AppliedPenalty *float64 `json:"applied_penalty,omitempty"`
}

func completionDTO(c *task.Completion) completionResponse {
	return completionResponse{
		ID: c.ID, TaskID: c.TaskID, AssigneeUserID: c.AssigneeUserID, AssigneeTeamID: c.AssigneeTeamID,
		Status: c.Status, AwardedBonus: c.AwardedBonus, AppliedPenalty: c.AppliedPenalty,
	}
}

type assignmentResponse struct {
	ID         string  `json:"id"`
	TaskID     string  `json:"task_id"`
	UserID     *string `json:"user_id,omitempty"`
	TeamID     *string `json:"team_id,omitempty"`
	AssignerID string  `json:"assigner_id"`
	Status     string  `json:"status"`
}

func assignmentDTO(a *task.Assignment) assignmentResponse {
	return assignmentResponse{ID: a.ID, TaskID: a.TaskID, UserID: a.UserID, TeamID: a.TeamID, AssignerID: a.AssignerID, Status: a.Status}
}

type reviewResponse struct {
	ID      string  `json:"id"`
	TaskID  string  `json:"task_id"`
	UserID  string  `json:"user_id"`
	Rating  *int    `json:"rating,omitempty"`
	Comment *string `json:"comment,omitempty"`
}

func reviewDTO(rv *task.Review) reviewResponse {
	return reviewResponse{ID: rv.ID, TaskID: rv.TaskID, UserID: rv.UserID, Rating: rv.Rating, Comment: rv.Comment}
}

type transactionResponse struct {
	ID              string `json:"id"`
	AccountID       string `json:"account_id"`
	Amount          string `json:"amount"`
	TransactionType string `json:"transaction_type"`
}

func transactionDTO(t *ledger.Transaction) transactionResponse {
	return transactionResponse{ID: t.ID, AccountID: t.AccountID, Amount: t.Amount.String(), TransactionType: t.TransactionType}
}

// pathVar reads a required mux route variable, writing a validation
// error and reporting false if it's missing.
func pathVar(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	v := mux.Vars(r)[name]
	if v == "" {
		writeError(w, r, apperrors.Validation(name, "missing path parameter"))
		return "", false
	}
	return v, true
}

// decimalField parses a decimal amount field, writing a validation
// error and reporting false on malformed input.
func decimalField(w http.ResponseWriter, r *http.Request, field, raw string) (decimal.Decimal, bool) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		writeError(w, r, apperrors.Validation(field, "must be a decimal amount"))
		return decimal.Decimal{}, false
	}
	return d, true
}
