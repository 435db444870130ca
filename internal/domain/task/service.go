package task

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	apperrors "github.com/kudos-hq/kudos-server/internal/errors"
	"github.com/kudos-hq/kudos-server/internal/domain/ledger"
	"github.com/kudos-hq/kudos-server/internal/platform/database"
)

// Ledger is the narrow slice of ledger.Service the task service needs,
// kept as an interface only for testability — ledger.Service already
// satisfies it directly, so production wiring never needs an adapter.
type Ledger interface {
	Award(ctx context.Context, groupID, userID, bonusTypeCode string, amount decimal.Decimal, sourceType, sourceID string) (*ledger.Transaction, error)
	Penalty(ctx context.Context, groupID, userID, bonusTypeCode string, amount decimal.Decimal, maxDebt *float64, sourceType, sourceID string) (*ledger.Transaction, error)
}

// Notifier is the external notification-enqueue collaborator (spec.md
// §1) — this package only calls it, never implements delivery.
type Notifier interface {
	Enqueue(ctx context.Context, notificationTypeCode, groupID, userID string, payload map[string]any) error
}

// GroupMembers is the narrow slice of group.Repository this package
// needs to verify a user assignee is an active member of the task's
// group (spec.md §4.5) — group.Repository already satisfies it.
type GroupMembers interface {
	ActiveRole(ctx context.Context, userID, groupID string) (role string, active bool, err error)
}

// Teams is the narrow slice of team.Service this package needs to
// verify a team assignee belongs to the task's group (spec.md §4.5).
type Teams interface {
	GroupIDForTeam(ctx context.Context, teamID string) (string, error)
}

// GroupSettingsProvider is the narrow slice of group.Service this
// package needs to resolve a group's ledger currency and debt cap from
// group_settings, rather than trusting a caller-supplied bonus type
// (spec.md §4.6) or an unbounded debt cap on a scheduler-driven penalty
// (spec.md §8's ∀ account A: A.balance ≥ −S.max_debt_allowed).
type GroupSettingsProvider interface {
	LedgerSettings(ctx context.Context, groupID string) (bonusTypeCode string, maxDebtAllowed *float64, err error)
}

// Service implements spec.md §4.5's task lifecycle: creation, dependency
// management, assignment, and the completion state machine.
type Service struct {
	db            *database.DB
	ledger        Ledger
	notifier      Notifier
	groups        GroupMembers
	teams         Teams
	groupSettings GroupSettingsProvider
}

func NewService(db *database.DB, ldg Ledger, notifier Notifier, groups GroupMembers, teams Teams, groupSettings GroupSettingsProvider) *Service {
	return &Service{db: db, ledger: ldg, notifier: notifier, groups: groups, teams: teams, groupSettings: groupSettings}
}

// subtaskCapableTypes names task types whose instances may hold child
// tasks (spec.md §4.5's "parent task permits subtasks" rule).
var subtaskCapableTypes = map[string]bool{
	"complex_task": true,
	"team_task":    true,
}

// Create validates and inserts a task (spec.md §4.5's creation rules).
func (s *Service) Create(ctx context.Context, t *Task) (*Task, error) {
	if strings.TrimSpace(t.TaskTypeCode) == "" {
		return nil, apperrors.MissingParameter("task_type_code")
	}
	if t.IsRecurring && (t.RecurringInterval == nil || strings.TrimSpace(*t.RecurringInterval) == "") {
		return nil, apperrors.Validation("recurring_interval", "a recurring task requires a recurring_interval")
	}
	if !t.IsRecurring && t.RecurringInterval != nil {
		return nil, apperrors.Validation("recurring_interval", "recurring_interval is only valid on a recurring task")
	}
	if (t.StreakTaskRefID == nil) != (t.StreakThreshold == nil) {
		return nil, apperrors.Validation("streak_task_ref_id", "streak_task_ref_id and streak_threshold must be set together")
	}

	var created *Task
	err := s.db.WithUnitOfWork(ctx, func(ctx context.Context, uow *database.UnitOfWork) error {
		repo := NewRepository(uow)

		if t.ParentTaskID != nil {
			parent, err := repo.GetByID(ctx, *t.ParentTaskID)
			if err != nil {
				if err == ErrNotFound {
					return apperrors.NotFound("parent task")
				}
				return apperrors.Internal("lookup parent task", err)
			}
			if parent.GroupID != t.GroupID {
				return apperrors.Validation("parent_task_id", "parent task must belong to the same group")
			}
			if !subtaskCapableTypes[parent.TaskTypeCode] {
				return apperrors.BusinessRule("parent_forbids_subtasks", "the parent task's type does not permit subtasks", 422)
			}
		}

		row, err := repo.Create(ctx, t)
		if err != nil {
			return apperrors.Internal("create task", err)
		}
		created = row
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// AddDependency records that dependentTaskID depends on prerequisiteID,
// rejecting self-edges and any edge that would create a cycle (spec.md
// §4.5, the same reachability approach group.checkNoParentCycle uses for
// the group hierarchy).
func (s *Service) AddDependency(ctx context.Context, dependentTaskID, prerequisiteID, depType string) (*Dependency, error) {
	if dependentTaskID == prerequisiteID {
		return nil, apperrors.Validation("prerequisite_task_id", "a task cannot depend on itself")
	}
	if depType == "" {
		depType = DependencyFinishToStart
	}

	var created *Dependency
	err := s.db.WithUnitOfWork(ctx, func(ctx context.Context, uow *database.UnitOfWork) error {
		repo := NewRepository(uow)
		if err := checkNoDependencyCycle(ctx, repo, dependentTaskID, prerequisiteID); err != nil {
			return err
		}
		row, err := repo.InsertDependency(ctx, dependentTaskID, prerequisiteID, depType)
		if err != nil {
			return apperrors.Internal("insert dependency", err)
		}
		created = row
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// checkNoDependencyCycle walks the prerequisite chain starting from
// prerequisiteID; if dependentTaskID is reachable, adding the edge
// dependentTaskID→prerequisiteID would close a cycle.
func checkNoDependencyCycle(ctx context.Context, repo *Repository, dependentTaskID, prerequisiteID string) error {
	seen := map[string]bool{}
	queue := []string{prerequisiteID}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if current == dependentTaskID {
			return apperrors.DependencyCycle()
		}
		if seen[current] {
			continue
		}
		seen[current] = true
		deps, err := repo.PrerequisitesOf(ctx, current)
		if err != nil {
			return apperrors.Internal("walk task dependencies", err)
		}
		for _, d := range deps {
			queue = append(queue, d.PrerequisiteID)
		}
	}
	return nil
}

// Assign attaches an assignee — exactly one of userID/teamID — to a
// task (spec.md §4.5). Assigning a second user is rejected unless the
// task allows multiple assignees; assigning a team is always exclusive
// of a direct user assignment on the same task.
func (s *Service) Assign(ctx context.Context, taskID, assignerID string, userID, teamID *string) (*Assignment, error) {
	if (userID == nil) == (teamID == nil) {
		return nil, apperrors.Validation("user_id_or_team_id", "exactly one of user_id or team_id is required")
	}

	var created *Assignment
	err := s.db.WithUnitOfWork(ctx, func(ctx context.Context, uow *database.UnitOfWork) error {
		repo := NewRepository(uow)
		t, err := repo.GetByID(ctx, taskID)
		if err != nil {
			if err == ErrNotFound {
				return apperrors.NotFound("task")
			}
			return apperrors.Internal("lookup task", err)
		}

		if userID != nil && s.groups != nil {
			role, active, err := s.groups.ActiveRole(ctx, *userID, t.GroupID)
			if err != nil {
				return apperrors.Internal("check assignee membership", err)
			}
			if !active || role == "" {
				return apperrors.Validation("user_id", "the assignee must be an active member of the task's group")
			}
		}
		if teamID != nil && s.teams != nil {
			teamGroupID, err := s.teams.GroupIDForTeam(ctx, *teamID)
			if err != nil {
				return err
			}
			if teamGroupID != t.GroupID {
				return apperrors.Validation("team_id", "the assignee team must belong to the task's group")
			}
		}

		existing, err := repo.ActiveAssignments(ctx, taskID)
		if err != nil {
			return apperrors.Internal("list active assignments", err)
		}
		if userID != nil {
			for _, a := range existing {
				if a.UserID != nil && *a.UserID == *userID {
					return apperrors.Conflict("already_assigned", "this user is already assigned to this task")
				}
			}
			if len(existing) > 0 && !t.AllowMultipleAssignees {
				return apperrors.BusinessRule("multiple_assignees_not_allowed", "this task does not allow more than one assignee", 422)
			}
		} else {
			if len(existing) > 0 {
				return apperrors.Conflict("already_assigned", "this task already has an active assignment")
			}
		}

		row, err := repo.InsertAssignment(ctx, &Assignment{TaskID: taskID, UserID: userID, TeamID: teamID, AssignerID: assignerID})
		if err != nil {
			return apperrors.Internal("insert assignment", err)
		}
		created = row
		return nil
	})
	if err != nil {
		return nil, err
	}
	if created != nil && created.UserID != nil && s.notifier != nil {
		t, lookupErr := s.GroupIDForTask(ctx, taskID)
		if lookupErr == nil {
			_ = s.notifier.Enqueue(ctx, "NEW_TASK_ASSIGNED", t, *created.UserID, map[string]any{"task_id": taskID})
		}
	}
	return created, nil
}

// GroupIDForTask resolves a task's owning group, used by the HTTP
// boundary to authorize task-scoped operations (spec.md §4.3) without
// duplicating the lookup in every handler.
func (s *Service) GroupIDForTask(ctx context.Context, taskID string) (string, error) {
	t, err := NewRepository(s.db).GetByID(ctx, taskID)
	if err != nil {
		if err == ErrNotFound {
			return "", apperrors.NotFound("task")
		}
		return "", apperrors.Internal("lookup task", err)
	}
	return t.GroupID, nil
}

// GroupIDForCompletion resolves a completion's owning group via its
// task, the same authorization-boundary helper as GroupIDForTask for
// completion-scoped operations (approve/reject/cancel).
func (s *Service) GroupIDForCompletion(ctx context.Context, completionID string) (string, error) {
	repo := NewRepository(s.db)
	c, err := repo.GetCompletion(ctx, completionID)
	if err != nil {
		if err == ErrCompletionNotFound {
			return "", apperrors.NotFound("task completion")
		}
		return "", apperrors.Internal("lookup completion", err)
	}
	return s.GroupIDForTask(ctx, c.TaskID)
}

// Start transitions a task to in_progress for userID, refusing to start
// if any finish_to_start prerequisite is not yet completed (spec.md
// §4.5's dependency-satisfaction gate).
func (s *Service) Start(ctx context.Context, taskID, userID string) (*Completion, error) {
	var created *Completion
	err := s.db.WithUnitOfWork(ctx, func(ctx context.Context, uow *database.UnitOfWork) error {
		repo := NewRepository(uow)
		satisfied, err := repo.AllPrerequisitesCompleted(ctx, taskID)
		if err != nil {
			return apperrors.Internal("check prerequisites", err)
		}
		if !satisfied {
			return apperrors.BusinessRule("dependencies_not_satisfied", "one or more prerequisite tasks are not yet completed", 422)
		}

		row, err := repo.InsertCompletion(ctx, &Completion{TaskID: taskID, AssigneeUserID: &userID, Status: StatusInProgress})
		if err != nil {
			return apperrors.Internal("start task", err)
		}
		created = row
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// SubmitForReview transitions a completion from in_progress to
// pending_review.
func (s *Service) SubmitForReview(ctx context.Context, completionID string, attachmentsMeta *string) error {
	return s.db.WithUnitOfWork(ctx, func(ctx context.Context, uow *database.UnitOfWork) error {
		repo := NewRepository(uow)
		c, err := repo.GetCompletionForUpdate(ctx, completionID)
		if err != nil {
			if err == ErrCompletionNotFound {
				return apperrors.NotFound("task completion")
			}
			return apperrors.Internal("lookup completion", err)
		}
		if c.Status != StatusInProgress {
			return apperrors.BusinessRule("invalid_transition", fmt.Sprintf("cannot submit for review from status %q", c.Status), 422)
		}
		if err := repo.SubmitForReview(ctx, completionID, attachmentsMeta); err != nil {
			return apperrors.Internal("submit for review", err)
		}
		return nil
	})
}

// Approve transitions a completion to completed, awards the task's
// bonus, evaluates the streak bonus, and — for a recurring task —
// schedules the next occurrence. All in one unit of work, per spec.md
// §4.6's atomicity rule for state changes paired with ledger writes.
func (s *Service) Approve(ctx context.Context, completionID, reviewerUserID string, notes *string) (*Completion, error) {
	var result *Completion
	var awardGroupID, awardUserID string
	var awardAmount decimal.Decimal
	var streakAmount decimal.Decimal
	var streakSourceID string
	doAward, doStreak := false, false

	err := s.db.WithUnitOfWork(ctx, func(ctx context.Context, uow *database.UnitOfWork) error {
		repo := NewRepository(uow)
		c, err := repo.GetCompletionForUpdate(ctx, completionID)
		if err != nil {
			if err == ErrCompletionNotFound {
				return apperrors.NotFound("task completion")
			}
			return apperrors.Internal("lookup completion", err)
		}
		if c.Status != StatusPendingReview {
			return apperrors.BusinessRule("invalid_transition", fmt.Sprintf("cannot approve from status %q", c.Status), 422)
		}

		t, err := repo.GetForUpdate(ctx, c.TaskID)
		if err != nil {
			return apperrors.Internal("lookup task", err)
		}

		bonus := t.BonusPoints
		if err := repo.Approve(ctx, completionID, reviewerUserID, notes, &bonus); err != nil {
			return apperrors.Internal("approve completion", err)
		}

		if c.AssigneeUserID != nil && t.BonusPoints > 0 {
			doAward = true
			awardGroupID, awardUserID = t.GroupID, *c.AssigneeUserID
			awardAmount = decimal.NewFromFloat(t.BonusPoints)
		}

		if c.AssigneeUserID != nil && t.StreakTaskRefID != nil && t.StreakThreshold != nil {
			streak, err := repo.ConsecutiveApprovedStreak(ctx, *t.StreakTaskRefID, *c.AssigneeUserID)
			if err != nil {
				return apperrors.Internal("evaluate streak", err)
			}
			if streak > 0 && streak%*t.StreakThreshold == 0 {
				doStreak = true
				streakAmount = decimal.NewFromFloat(t.BonusPoints)
				streakSourceID = completionID
			}
		}

		if t.IsRecurring && t.RecurringInterval != nil {
			count, err := repo.CountCompletedCompletions(ctx, t.ID)
			if err != nil {
				return apperrors.Internal("count completions", err)
			}
			if t.MaxOccurrences == nil || count < *t.MaxOccurrences {
				next, err := nextOccurrence(*t.RecurringInterval, time.Now())
				if err != nil {
					return apperrors.Internal("compute next occurrence", err)
				}
				if err := repo.UpdateDueDate(ctx, t.ID, next); err != nil {
					return apperrors.Internal("reschedule recurring task", err)
				}
			}
		}

		result, err = repo.GetCompletionForUpdate(ctx, completionID)
		return err
	})
	if err != nil {
		return nil, err
	}

	if doAward || doStreak {
		bonusTypeCode, _, err := s.groupSettings.LedgerSettings(ctx, awardGroupID)
		if err != nil {
			return result, err
		}
		if doAward {
			if _, err := s.ledger.Award(ctx, awardGroupID, awardUserID, bonusTypeCode, awardAmount, "task_completion", completionID); err != nil {
				return result, apperrors.Internal("award task bonus", err)
			}
		}
		if doStreak {
			if _, err := s.ledger.Award(ctx, awardGroupID, awardUserID, bonusTypeCode, streakAmount, "streak_bonus", streakSourceID); err != nil {
				return result, apperrors.Internal("award streak bonus", err)
			}
		}
	}
	if s.notifier != nil && result != nil && result.AssigneeUserID != nil {
		_ = s.notifier.Enqueue(ctx, "TASK_STATUS_CHANGED_FOR_USER", awardGroupID, *result.AssigneeUserID, map[string]any{"task_completion_id": completionID, "status": StatusCompleted})
	}
	return result, nil
}

// Reject transitions a completion to rejected. Per this repository's
// resolution of spec.md §9's open question, rejection carries no
// penalty of its own — only the deadline sweep penalizes a mandatory
// task that is never completed in time.
func (s *Service) Reject(ctx context.Context, completionID, reviewerUserID string, notes *string) error {
	return s.db.WithUnitOfWork(ctx, func(ctx context.Context, uow *database.UnitOfWork) error {
		repo := NewRepository(uow)
		c, err := repo.GetCompletionForUpdate(ctx, completionID)
		if err != nil {
			if err == ErrCompletionNotFound {
				return apperrors.NotFound("task completion")
			}
			return apperrors.Internal("lookup completion", err)
		}
		if c.Status != StatusPendingReview {
			return apperrors.BusinessRule("invalid_transition", fmt.Sprintf("cannot reject from status %q", c.Status), 422)
		}
		if err := repo.Reject(ctx, completionID, reviewerUserID, notes); err != nil {
			return apperrors.Internal("reject completion", err)
		}
		return nil
	})
}

// Cancel transitions a completion to cancelled from any non-terminal
// state (in_progress or pending_review).
func (s *Service) Cancel(ctx context.Context, completionID string) error {
	return s.db.WithUnitOfWork(ctx, func(ctx context.Context, uow *database.UnitOfWork) error {
		repo := NewRepository(uow)
		c, err := repo.GetCompletionForUpdate(ctx, completionID)
		if err != nil {
			if err == ErrCompletionNotFound {
				return apperrors.NotFound("task completion")
			}
			return apperrors.Internal("lookup completion", err)
		}
		if c.Status != StatusInProgress && c.Status != StatusPendingReview {
			return apperrors.BusinessRule("invalid_transition", fmt.Sprintf("cannot cancel from status %q", c.Status), 422)
		}
		return repo.Cancel(ctx, completionID)
	})
}

// Review records a rating and/or comment against a task, at most once
// per (task, user) (spec.md §3's TaskReview).
func (s *Service) Review(ctx context.Context, taskID, userID string, rating *int, comment *string) (*Review, error) {
	if rating == nil && comment == nil {
		return nil, apperrors.Validation("rating_or_comment", "a review requires a rating, a comment, or both")
	}
	if rating != nil && (*rating < 1 || *rating > 5) {
		return nil, apperrors.Validation("rating", "rating must be between 1 and 5")
	}
	repo := NewRepository(s.db)
	row, err := repo.InsertReview(ctx, &Review{TaskID: taskID, UserID: userID, Rating: rating, Comment: comment})
	if err != nil {
		if err == ErrReviewExists {
			return nil, apperrors.Conflict("review_exists", "this user has already reviewed this task")
		}
		return nil, apperrors.Internal("insert review", err)
	}
	return row, nil
}

// RunDeadlineSweep penalizes mandatory tasks whose due date has passed
// with no completed completion, one row at a time via
// FOR UPDATE SKIP LOCKED so concurrent scheduler instances never double
// penalize the same task (spec.md §4.10).
func (s *Service) RunDeadlineSweep(ctx context.Context, batchSize int) (int, error) {
	var due []Task
	err := s.db.WithUnitOfWork(ctx, func(ctx context.Context, uow *database.UnitOfWork) error {
		repo := NewRepository(uow)
		rows, err := repo.DueMandatoryWithoutCompletion(ctx, time.Now(), batchSize)
		if err != nil {
			return apperrors.Internal("select due tasks", err)
		}
		due = rows
		for _, t := range rows {
			// A rejected completion with no assignee records "missed its
			// deadline" without fabricating a reviewer; its mere existence
			// is what excludes the task from the next sweep tick (see
			// DueMandatoryWithoutCompletion's NOT EXISTS clause).
			if _, err := repo.InsertCompletion(ctx, &Completion{TaskID: t.ID, Status: StatusRejected}); err != nil {
				return apperrors.Internal("record missed deadline", err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	penalized := 0
	repo := NewRepository(s.db)
	settingsByGroup := map[string]struct {
		bonusTypeCode string
		maxDebt       *float64
	}{}
	for _, t := range due {
		assignments, err := repo.ActiveAssignments(ctx, t.ID)
		if err != nil {
			return penalized, apperrors.Internal("list assignments for sweep", err)
		}
		if len(assignments) == 0 {
			continue
		}
		settings, ok := settingsByGroup[t.GroupID]
		if !ok {
			bonusTypeCode, maxDebt, err := s.groupSettings.LedgerSettings(ctx, t.GroupID)
			if err != nil {
				return penalized, err
			}
			settings = struct {
				bonusTypeCode string
				maxDebt       *float64
			}{bonusTypeCode, maxDebt}
			settingsByGroup[t.GroupID] = settings
		}
		for _, a := range assignments {
			if a.UserID == nil {
				continue
			}
			if _, err := s.ledger.Penalty(ctx, t.GroupID, *a.UserID, settings.bonusTypeCode, decimal.NewFromFloat(t.PenaltyPoints), settings.maxDebt, "task_deadline_sweep", t.ID); err != nil {
				return penalized, apperrors.Internal("apply deadline penalty", err)
			}
			penalized++
		}
	}
	return penalized, nil
}

// nextOccurrence computes the next due date for a recurring task.
// Named intervals match spec.md §6's recurring_interval vocabulary;
// anything else is parsed as a Go duration (e.g. "168h") for
// finer-grained schedules.
func nextOccurrence(interval string, from time.Time) (time.Time, error) {
	switch interval {
	case "daily":
		return from.AddDate(0, 0, 1), nil
	case "weekly":
		return from.AddDate(0, 0, 7), nil
	case "monthly":
		return from.AddDate(0, 1, 0), nil
	case "yearly":
		return from.AddDate(1, 0, 0), nil
	default:
		d, err := time.ParseDuration(interval)
		if err != nil {
			return time.Time{}, fmt.Errorf("unrecognized recurring_interval %q: %w", interval, err)
		}
		return from.Add(d), nil
	}
}
