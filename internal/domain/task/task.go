// Package task implements the task service & state machine (spec.md
// §2, §4.5) — the largest single component: task CRUD, assignment,
// the per-completion state machine, dependency cycle prevention,
// recurrence, and streak bonuses. Grounded on applications/jam's
// work-package/work-item/work-report three-table aggregate shape
// (package → items → reports) for Task → TaskAssignment/TaskCompletion's
// one-to-many structure, and its `FOR UPDATE SKIP LOCKED` idiom for the
// deadline-sweep job's due-row selection.
package task

import "time"

// Task mirrors spec.md §3's Task entity.
type Task struct {
	ID                     string
	GroupID                string
	TaskTypeCode           string
	CreatorUserID          string
	ParentTaskID           *string
	TeamID                 *string
	BonusPoints            float64
	PenaltyPoints          float64
	DueDate                *time.Time
	IsRecurring            bool
	RecurringInterval      *string // "daily", "weekly", "monthly", "yearly", or a Go duration such as "168h"
	MaxOccurrences         *int
	IsMandatory            bool
	AllowMultipleAssignees bool
	FirstCompletesGetsBonus bool
	StreakTaskRefID        *string
	StreakThreshold        *int

	Notes     *string
	StateID   *string
	CreatedAt time.Time
	UpdatedAt time.Time
	IsDeleted bool
	DeletedAt *time.Time
}

// Status codes, mirrored from internal/dictionary for readability.
const (
	StatusNew           = "task_new"
	StatusInProgress    = "task_in_progress"
	StatusPendingReview = "task_pending_review"
	StatusCompleted     = "task_completed"
	StatusRejected      = "task_rejected"
	StatusCancelled     = "task_cancelled"
	StatusBlocked       = "task_blocked"
)

// Dependency mirrors spec.md §3's TaskDependency: dependent→prerequisite.
type Dependency struct {
	ID              string
	DependentTaskID string
	PrerequisiteID  string
	DependencyType  string // currently only "finish_to_start" is supported (spec.md §4.5)
	CreatedAt       time.Time
}

const DependencyFinishToStart = "finish_to_start"

// Assignment mirrors spec.md §3's TaskAssignment: XOR over
// (user_id, team_id).
type Assignment struct {
	ID         string
	TaskID     string
	UserID     *string
	TeamID     *string
	AssignerID string
	Status     string // active | revoked
	CreatedAt  time.Time
}

const (
	AssignmentActive  = "active"
	AssignmentRevoked = "revoked"
)

// Completion mirrors spec.md §3's TaskCompletion: one execution attempt.
type Completion struct {
	ID                   string
	TaskID               string
	AssigneeUserID       *string
	AssigneeTeamID       *string
	Status               string
	StartedAt            time.Time
	SubmittedForReviewAt *time.Time
	ReviewedAt           *time.Time
	ReviewerUserID       *string
	CompletedAt          *time.Time
	ReviewNotes          *string
	AwardedBonus         *float64
	AppliedPenalty       *float64
	AttachmentsMeta      *string // opaque JSON blob; file storage is an external collaborator
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// Review mirrors spec.md §3's TaskReview: rating 1–5 and/or comment,
// unique per (task, user).
type Review struct {
	ID        string
	TaskID    string
	UserID    string
	Rating    *int
	Comment   *string
	CreatedAt time.Time
}

func (a *Assignment) IsTeamAssignment() bool { return a.TeamID != nil }
func (a *Assignment) IsUserAssignment() bool { return a.UserID != nil }
