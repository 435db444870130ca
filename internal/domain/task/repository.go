package task

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/kudos-hq/kudos-server/internal/platform/database"
)

var ErrNotFound = errors.New("task: not found")

// Repository is the persistence boundary for tasks and their four
// satellite tables (dependencies, assignments, completions, reviews) —
// grouped in one type the way internal/domain/group groups a group with
// its settings/memberships/invitations, mirroring
// applications/jam/store_pg.go's one-store-per-aggregate shape.
type Repository struct{ ex database.Executor }

func NewRepository(ex database.Executor) *Repository { return &Repository{ex: ex} }

type taskRow struct {
	ID                      string         `db:"id"`
	GroupID                 string         `db:"group_id"`
	TaskTypeCode            string         `db:"task_type_code"`
	CreatorUserID           string         `db:"creator_user_id"`
	ParentTaskID            sql.NullString `db:"parent_task_id"`
	TeamID                  sql.NullString `db:"team_id"`
	BonusPoints             float64        `db:"bonus_points"`
	PenaltyPoints           float64        `db:"penalty_points"`
	DueDate                 sql.NullTime   `db:"due_date"`
	IsRecurring             bool           `db:"is_recurring"`
	RecurringInterval       sql.NullString `db:"recurring_interval"`
	MaxOccurrences          sql.NullInt64  `db:"max_occurrences"`
	IsMandatory             bool           `db:"is_mandatory"`
	AllowMultipleAssignees  bool           `db:"allow_multiple_assignees"`
	FirstCompletesGetsBonus bool           `db:"first_completes_gets_bonus"`
	StreakTaskRefID         sql.NullString `db:"streak_task_ref_id"`
	StreakThreshold         sql.NullInt64  `db:"streak_threshold"`
	Notes                   sql.NullString `db:"notes"`
	StateID                 sql.NullString `db:"state_id"`
	CreatedAt               time.Time      `db:"created_at"`
	UpdatedAt               time.Time      `db:"updated_at"`
	IsDeleted               bool           `db:"is_deleted"`
	DeletedAt               sql.NullTime   `db:"deleted_at"`
}

func (r taskRow) toDomain() *Task {
	t := &Task{
		ID: r.ID, GroupID: r.GroupID, TaskTypeCode: r.TaskTypeCode, CreatorUserID: r.CreatorUserID,
		BonusPoints: r.BonusPoints, PenaltyPoints: r.PenaltyPoints, IsRecurring: r.IsRecurring,
		IsMandatory: r.IsMandatory, AllowMultipleAssignees: r.AllowMultipleAssignees,
		FirstCompletesGetsBonus: r.FirstCompletesGetsBonus,
		CreatedAt:               r.CreatedAt, UpdatedAt: r.UpdatedAt, IsDeleted: r.IsDeleted,
	}
	if r.ParentTaskID.Valid {
		t.ParentTaskID = &r.ParentTaskID.String
	}
	if r.TeamID.Valid {
		t.TeamID = &r.TeamID.String
	}
	if r.DueDate.Valid {
		t.DueDate = &r.DueDate.Time
	}
	if r.RecurringInterval.Valid {
		t.RecurringInterval = &r.RecurringInterval.String
	}
	if r.MaxOccurrences.Valid {
		n := int(r.MaxOccurrences.Int64)
		t.MaxOccurrences = &n
	}
	if r.StreakTaskRefID.Valid {
		t.StreakTaskRefID = &r.StreakTaskRefID.String
	}
	if r.StreakThreshold.Valid {
		n := int(r.StreakThreshold.Int64)
		t.StreakThreshold = &n
	}
	if r.Notes.Valid {
		t.Notes = &r.Notes.String
	}
	if r.StateID.Valid {
		t.StateID = &r.StateID.String
	}
	if r.DeletedAt.Valid {
		t.DeletedAt = &r.DeletedAt.Time
	}
	return t
}

const taskCols = `id, group_id, task_type_code, creator_user_id, parent_task_id, team_id, bonus_points,
	penalty_points, due_date, is_recurring, recurring_interval, max_occurrences, is_mandatory,
	allow_multiple_assignees, first_completes_gets_bonus, streak_task_ref_id, streak_threshold,
	notes, state_id, created_at, updated_at, is_deleted, deleted_at`

// Create inserts a new task row.
func (r *Repository) Create(ctx context.Context, t *Task) (*Task, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	var row taskRow
	query := `INSERT INTO tasks (id, group_id, task_type_code, creator_user_id, parent_task_id, team_id,
			bonus_points, penalty_points, due_date, is_recurring, recurring_interval, max_occurrences,
			is_mandatory, allow_multiple_assignees, first_completes_gets_bonus, streak_task_ref_id, streak_threshold, notes, state_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		RETURNING ` + taskCols
	err := r.ex.GetContext(ctx, &row, query, t.ID, t.GroupID, t.TaskTypeCode, t.CreatorUserID, t.ParentTaskID, t.TeamID,
		t.BonusPoints, t.PenaltyPoints, t.DueDate, t.IsRecurring, t.RecurringInterval, t.MaxOccurrences,
		t.IsMandatory, t.AllowMultipleAssignees, t.FirstCompletesGetsBonus, t.StreakTaskRefID, t.StreakThreshold, t.Notes, t.StateID)
	if err != nil {
		return nil, err
	}
	return row.toDomain(), nil
}

func (r *Repository) GetByID(ctx context.Context, id string) (*Task, error) {
	var row taskRow
	query := `SELECT ` + taskCols + ` FROM tasks WHERE id = $1 AND is_deleted = false`
	if err := r.ex.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return row.toDomain(), nil
}

// GetForUpdate locks a task row for the duration of the enclosing unit
// of work, used by completion transitions that read-then-write task
// fields (e.g. scheduling the next recurrence).
func (r *Repository) GetForUpdate(ctx context.Context, id string) (*Task, error) {
	var row taskRow
	query := `SELECT ` + taskCols + ` FROM tasks WHERE id = $1 AND is_deleted = false FOR UPDATE`
	if err := r.ex.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return row.toDomain(), nil
}

func (r *Repository) SoftDelete(ctx context.Context, id string) error {
	return database.SoftDelete(ctx, r.ex, "tasks", "id", id)
}

// UpdateDueDate reschedules a recurring task's next occurrence.
func (r *Repository) UpdateDueDate(ctx context.Context, taskID string, due time.Time) error {
	_, err := r.ex.ExecContext(ctx, `UPDATE tasks SET due_date = $2, updated_at = now() WHERE id = $1`, taskID, due)
	return err
}

// CountCompletedCompletions counts how many times taskID has already
// been completed, used to enforce max_occurrences.
func (r *Repository) CountCompletedCompletions(ctx context.Context, taskID string) (int, error) {
	var count int
	err := r.ex.QueryRowContext(ctx, `SELECT COUNT(*) FROM task_completions WHERE task_id = $1 AND status = $2`, taskID, StatusCompleted).Scan(&count)
	return count, err
}

// DueMandatoryWithoutCompletion lists mandatory tasks past their due
// date with no completed completion row — the scheduler's
// deadline-sweep penalty query.
func (r *Repository) DueMandatoryWithoutCompletion(ctx context.Context, cutoff time.Time, limit int) ([]Task, error) {
	var rows []taskRow
	query := `SELECT ` + taskCols + ` FROM tasks t
		WHERE t.is_deleted = false AND t.is_mandatory = true AND t.due_date IS NOT NULL AND t.due_date < $1
		AND NOT EXISTS (
			SELECT 1 FROM task_completions c WHERE c.task_id = t.id AND (
				c.status = '` + StatusCompleted + `'
				OR (c.status = '` + StatusRejected + `' AND c.assignee_user_id IS NULL AND c.assignee_team_id IS NULL)
			)
		)
		ORDER BY t.due_date ASC LIMIT $2 FOR UPDATE SKIP LOCKED`
	if err := r.ex.SelectContext(ctx, &rows, query, cutoff, limit); err != nil {
		return nil, err
	}
	out := make([]Task, 0, len(rows))
	for _, row := range rows {
		out = append(out, *row.toDomain())
	}
	return out, nil
}

// --- Dependencies ---

type dependencyRow struct {
	ID              string    `db:"id"`
	DependentTaskID string    `db:"dependent_task_id"`
	PrerequisiteID  string    `db:"prerequisite_task_id"`
	DependencyType  string    `db:"dependency_type"`
	CreatedAt       time.Time `db:"created_at"`
}

func (r dependencyRow) toDomain() Dependency {
	return Dependency{ID: r.ID, DependentTaskID: r.DependentTaskID, PrerequisiteID: r.PrerequisiteID,
		DependencyType: r.DependencyType, CreatedAt: r.CreatedAt}
}

// InsertDependency records that dependentTaskID depends on
// prerequisiteTaskID. Callers must run the cycle check first.
func (r *Repository) InsertDependency(ctx context.Context, dependentTaskID, prerequisiteTaskID, depType string) (*Dependency, error) {
	var row dependencyRow
	query := `INSERT INTO task_dependencies (id, dependent_task_id, prerequisite_task_id, dependency_type)
		VALUES ($1, $2, $3, $4)
		RETURNING id, dependent_task_id, prerequisite_task_id, dependency_type, created_at`
	err := r.ex.GetContext(ctx, &row, query, uuid.NewString(), dependentTaskID, prerequisiteTaskID, depType)
	if err != nil {
		return nil, err
	}
	d := row.toDomain()
	return &d, nil
}

// PrerequisitesOf returns the tasks that taskID directly depends on.
func (r *Repository) PrerequisitesOf(ctx context.Context, taskID string) ([]Dependency, error) {
	var rows []dependencyRow
	query := `SELECT id, dependent_task_id, prerequisite_task_id, dependency_type, created_at
		FROM task_dependencies WHERE dependent_task_id = $1`
	if err := r.ex.SelectContext(ctx, &rows, query, taskID); err != nil {
		return nil, err
	}
	out := make([]Dependency, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

// AllPrerequisitesCompleted reports whether every finish_to_start
// prerequisite of taskID has a completed completion row.
func (r *Repository) AllPrerequisitesCompleted(ctx context.Context, taskID string) (bool, error) {
	var count int
	query := `SELECT COUNT(*) FROM task_dependencies d
		WHERE d.dependent_task_id = $1 AND d.dependency_type = $2
		AND NOT EXISTS (
			SELECT 1 FROM task_completions c WHERE c.task_id = d.prerequisite_task_id AND c.status = $3
		)`
	if err := r.ex.QueryRowContext(ctx, query, taskID, DependencyFinishToStart, StatusCompleted).Scan(&count); err != nil {
		return false, err
	}
	return count == 0, nil
}

// --- Assignments ---

type assignmentRow struct {
	ID         string         `db:"id"`
	TaskID     string         `db:"task_id"`
	UserID     sql.NullString `db:"user_id"`
	TeamID     sql.NullString `db:"team_id"`
	AssignerID string         `db:"assigner_id"`
	Status     string         `db:"status"`
	CreatedAt  time.Time      `db:"created_at"`
}

func (r assignmentRow) toDomain() *Assignment {
	a := &Assignment{ID: r.ID, TaskID: r.TaskID, AssignerID: r.AssignerID, Status: r.Status, CreatedAt: r.CreatedAt}
	if r.UserID.Valid {
		a.UserID = &r.UserID.String
	}
	if r.TeamID.Valid {
		a.TeamID = &r.TeamID.String
	}
	return a
}

const assignmentCols = `id, task_id, user_id, team_id, assigner_id, status, created_at`

func (r *Repository) InsertAssignment(ctx context.Context, a *Assignment) (*Assignment, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	var row assignmentRow
	query := `INSERT INTO task_assignments (id, task_id, user_id, team_id, assigner_id, status)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING ` + assignmentCols
	err := r.ex.GetContext(ctx, &row, query, a.ID, a.TaskID, a.UserID, a.TeamID, a.AssignerID, AssignmentActive)
	if err != nil {
		return nil, err
	}
	return row.toDomain(), nil
}

func (r *Repository) ActiveAssignments(ctx context.Context, taskID string) ([]Assignment, error) {
	var rows []assignmentRow
	query := `SELECT ` + assignmentCols + ` FROM task_assignments WHERE task_id = $1 AND status = $2`
	if err := r.ex.SelectContext(ctx, &rows, query, taskID, AssignmentActive); err != nil {
		return nil, err
	}
	out := make([]Assignment, 0, len(rows))
	for _, row := range rows {
		out = append(out, *row.toDomain())
	}
	return out, nil
}

func (r *Repository) IsUserAssigned(ctx context.Context, taskID, userID string) (bool, error) {
	var count int
	query := `SELECT COUNT(*) FROM task_assignments WHERE task_id = $1 AND user_id = $2 AND status = $3`
	err := r.ex.QueryRowContext(ctx, query, taskID, userID, AssignmentActive).Scan(&count)
	return count > 0, err
}

func (r *Repository) RevokeAssignment(ctx context.Context, id string) error {
	_, err := r.ex.ExecContext(ctx, `UPDATE task_assignments SET status = $2 WHERE id = $1`, id, AssignmentRevoked)
	return err
}

// --- Completions ---

type completionRow struct {
	ID                   string         `db:"id"`
	TaskID               string         `db:"task_id"`
	AssigneeUserID       sql.NullString `db:"assignee_user_id"`
	AssigneeTeamID       sql.NullString `db:"assignee_team_id"`
	Status               string         `db:"status"`
	StartedAt            time.Time      `db:"started_at"`
	SubmittedForReviewAt sql.NullTime   `db:"submitted_for_review_at"`
	ReviewedAt           sql.NullTime   `db:"reviewed_at"`
	ReviewerUserID       sql.NullString `db:"reviewer_user_id"`
	CompletedAt          sql.NullTime   `db:"completed_at"`
	ReviewNotes          sql.NullString `db:"review_notes"`
	AwardedBonus         sql.NullFloat64 `db:"awarded_bonus"`
	AppliedPenalty       sql.NullFloat64 `db:"applied_penalty"`
	AttachmentsMeta      sql.NullString `db:"attachments_meta"`
	CreatedAt            time.Time      `db:"created_at"`
	UpdatedAt            time.Time      `db:"updated_at"`
}

func (r completionRow) toDomain() *Completion {
	c := &Completion{ID: r.ID, TaskID: r.TaskID, Status: r.Status, StartedAt: r.StartedAt, CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt}
	if r.AssigneeUserID.Valid {
		c.AssigneeUserID = &r.AssigneeUserID.String
	}
	if r.AssigneeTeamID.Valid {
		c.AssigneeTeamID = &r.AssigneeTeamID.String
	}
	if r.SubmittedForReviewAt.Valid {
		c.SubmittedForReviewAt = &r.SubmittedForReviewAt.Time
	}
	if r.ReviewedAt.Valid {
		c.ReviewedAt = &r.ReviewedAt.Time
	}
	if r.ReviewerUserID.Valid {
		c.ReviewerUserID = &r.ReviewerUserID.String
	}
	if r.CompletedAt.Valid {
		c.CompletedAt = &r.CompletedAt.Time
	}
	if r.ReviewNotes.Valid {
		c.ReviewNotes = &r.ReviewNotes.String
	}
	if r.AwardedBonus.Valid {
		c.AwardedBonus = &r.AwardedBonus.Float64
	}
	if r.AppliedPenalty.Valid {
		c.AppliedPenalty = &r.AppliedPenalty.Float64
	}
	if r.AttachmentsMeta.Valid {
		c.AttachmentsMeta = &r.AttachmentsMeta.String
	}
	return c
}

const completionCols = `id, task_id, assignee_user_id, assignee_team_id, status, started_at, submitted_for_review_at,
	reviewed_at, reviewer_user_id, completed_at, review_notes, awarded_bonus, applied_penalty, attachments_meta,
	created_at, updated_at`

var ErrCompletionNotFound = errors.New("task: completion not found")

func (r *Repository) InsertCompletion(ctx context.Context, c *Completion) (*Completion, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	var row completionRow
	query := `INSERT INTO task_completions (id, task_id, assignee_user_id, assignee_team_id, status, started_at)
		VALUES ($1, $2, $3, $4, $5, now()) RETURNING ` + completionCols
	err := r.ex.GetContext(ctx, &row, query, c.ID, c.TaskID, c.AssigneeUserID, c.AssigneeTeamID, c.Status)
	if err != nil {
		return nil, err
	}
	return row.toDomain(), nil
}

// GetCompletion is the non-locking read counterpart to
// GetCompletionForUpdate — for callers (e.g. an authorization
// pre-check) that only need to resolve a completion's task, not hold a
// row lock across a unit of work.
func (r *Repository) GetCompletion(ctx context.Context, id string) (*Completion, error) {
	var row completionRow
	query := `SELECT ` + completionCols + ` FROM task_completions WHERE id = $1`
	if err := r.ex.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCompletionNotFound
		}
		return nil, err
	}
	return row.toDomain(), nil
}

func (r *Repository) GetCompletionForUpdate(ctx context.Context, id string) (*Completion, error) {
	var row completionRow
	query := `SELECT ` + completionCols + ` FROM task_completions WHERE id = $1 FOR UPDATE`
	if err := r.ex.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCompletionNotFound
		}
		return nil, err
	}
	return row.toDomain(), nil
}

// LatestCompletionForAssignee returns the most recent completion row
// for (taskID, userID). No service path calls it at present.
func (r *Repository) LatestCompletionForAssignee(ctx context.Context, taskID, userID string) (*Completion, error) {
	var row completionRow
	query := `SELECT ` + completionCols + ` FROM task_completions
		WHERE task_id = $1 AND assignee_user_id = $2 ORDER BY created_at DESC LIMIT 1`
	if err := r.ex.GetContext(ctx, &row, query, taskID, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCompletionNotFound
		}
		return nil, err
	}
	return row.toDomain(), nil
}

func (r *Repository) SubmitForReview(ctx context.Context, id string, attachmentsMeta *string) error {
	_, err := r.ex.ExecContext(ctx, `
		UPDATE task_completions SET status = $2, submitted_for_review_at = now(), attachments_meta = $3, updated_at = now()
		WHERE id = $1`, id, StatusPendingReview, attachmentsMeta)
	return err
}

func (r *Repository) Approve(ctx context.Context, id, reviewerUserID string, notes *string, awardedBonus *float64) error {
	_, err := r.ex.ExecContext(ctx, `
		UPDATE task_completions SET status = $2, reviewed_at = now(), reviewer_user_id = $3, review_notes = $4,
			completed_at = now(), awarded_bonus = $5, updated_at = now()
		WHERE id = $1`, id, StatusCompleted, reviewerUserID, notes, awardedBonus)
	return err
}

func (r *Repository) Reject(ctx context.Context, id, reviewerUserID string, notes *string) error {
	_, err := r.ex.ExecContext(ctx, `
		UPDATE task_completions SET status = $2, reviewed_at = now(), reviewer_user_id = $3, review_notes = $4, updated_at = now()
		WHERE id = $1`, id, StatusRejected, reviewerUserID, notes)
	return err
}

func (r *Repository) Cancel(ctx context.Context, id string) error {
	_, err := r.ex.ExecContext(ctx, `UPDATE task_completions SET status = $2, updated_at = now() WHERE id = $1`, id, StatusCancelled)
	return err
}

func (r *Repository) MarkStatus(ctx context.Context, id, status string) error {
	_, err := r.ex.ExecContext(ctx, `UPDATE task_completions SET status = $2, updated_at = now() WHERE id = $1`, id, status)
	return err
}

func (r *Repository) RecordPenalty(ctx context.Context, id string, penalty float64) error {
	_, err := r.ex.ExecContext(ctx, `UPDATE task_completions SET applied_penalty = $2, updated_at = now() WHERE id = $1`, id, penalty)
	return err
}

// ConsecutiveApprovedStreak counts how many of the most recent
// completions of streakTaskID by userID, ordered newest-first, are
// StatusCompleted without interruption — the streak-bonus evaluation
// (spec.md §4.5's streak fields).
func (r *Repository) ConsecutiveApprovedStreak(ctx context.Context, streakTaskID, userID string) (int, error) {
	var statuses []string
	query := `SELECT status FROM task_completions WHERE task_id = $1 AND assignee_user_id = $2 ORDER BY created_at DESC`
	if err := r.ex.SelectContext(ctx, &statuses, query, streakTaskID, userID); err != nil {
		return 0, err
	}
	streak := 0
	for _, status := range statuses {
		if status != StatusCompleted {
			break
		}
		streak++
	}
	return streak, nil
}

// --- Reviews ---

type reviewRow struct {
	ID        string         `db:"id"`
	TaskID    string         `db:"task_id"`
	UserID    string         `db:"user_id"`
	Rating    sql.NullInt64  `db:"rating"`
	Comment   sql.NullString `db:"comment"`
	CreatedAt time.Time      `db:"created_at"`
}

func (r reviewRow) toDomain() *Review {
	rv := &Review{ID: r.ID, TaskID: r.TaskID, UserID: r.UserID, CreatedAt: r.CreatedAt}
	if r.Rating.Valid {
		n := int(r.Rating.Int64)
		rv.Rating = &n
	}
	if r.Comment.Valid {
		rv.Comment = &r.Comment.String
	}
	return rv
}

var ErrReviewExists = errors.New("task: review already exists for this user")

func (r *Repository) InsertReview(ctx context.Context, rv *Review) (*Review, error) {
	if rv.ID == "" {
		rv.ID = uuid.NewString()
	}
	var row reviewRow
	query := `INSERT INTO task_reviews (id, task_id, user_id, rating, comment)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (task_id, user_id) DO NOTHING
		RETURNING id, task_id, user_id, rating, comment, created_at`
	err := r.ex.GetContext(ctx, &row, query, rv.ID, rv.TaskID, rv.UserID, rv.Rating, rv.Comment)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrReviewExists
		}
		return nil, err
	}
	return row.toDomain(), nil
}
