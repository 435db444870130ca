package gamification

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/kudos-hq/kudos-server/internal/platform/database"
)

var ErrNotFound = errors.New("gamification: not found")

type Repository struct{ ex database.Executor }

func NewRepository(ex database.Executor) *Repository { return &Repository{ex: ex} }

type levelRow struct {
	ID        string    `db:"id"`
	GroupID   string    `db:"group_id"`
	Name      string    `db:"name"`
	MinPoints float64   `db:"min_points"`
	SortOrder int       `db:"sort_order"`
	CreatedAt time.Time `db:"created_at"`
}

func (r levelRow) toDomain() Level {
	return Level{ID: r.ID, GroupID: r.GroupID, Name: r.Name, MinPoints: r.MinPoints, SortOrder: r.SortOrder, CreatedAt: r.CreatedAt}
}

// HighestLevelBelow returns the highest-MinPoints level a group defines
// that totalPoints still qualifies for, or ErrNotFound if none does.
func (r *Repository) HighestLevelBelow(ctx context.Context, groupID string, totalPoints float64) (*Level, error) {
	var row levelRow
	query := `SELECT id, group_id, name, min_points, sort_order, created_at FROM levels
		WHERE group_id = $1 AND min_points <= $2 ORDER BY min_points DESC LIMIT 1`
	if err := r.ex.GetContext(ctx, &row, query, groupID, totalPoints); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	l := row.toDomain()
	return &l, nil
}

type userLevelRow struct {
	ID         string    `db:"id"`
	UserID     string    `db:"user_id"`
	GroupID    string    `db:"group_id"`
	LevelID    string    `db:"level_id"`
	IsCurrent  bool      `db:"is_current"`
	AssignedAt time.Time `db:"assigned_at"`
}

func (r userLevelRow) toDomain() UserLevel {
	return UserLevel{ID: r.ID, UserID: r.UserID, GroupID: r.GroupID, LevelID: r.LevelID, IsCurrent: r.IsCurrent, AssignedAt: r.AssignedAt}
}

// CurrentLevel returns the user's current level row in groupID, if any.
func (r *Repository) CurrentLevel(ctx context.Context, userID, groupID string) (*UserLevel, error) {
	var row userLevelRow
	query := `SELECT id, user_id, group_id, level_id, is_current, assigned_at FROM user_levels
		WHERE user_id = $1 AND group_id = $2 AND is_current = true`
	if err := r.ex.GetContext(ctx, &row, query, userID, groupID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	ul := row.toDomain()
	return &ul, nil
}

// ClearCurrentLevel unsets is_current for every existing row — called
// immediately before inserting the new current row in the same unit of
// work, so a (user, group) pair is never left with two current rows.
func (r *Repository) ClearCurrentLevel(ctx context.Context, userID, groupID string) error {
	_, err := r.ex.ExecContext(ctx, `UPDATE user_levels SET is_current = false WHERE user_id = $1 AND group_id = $2 AND is_current = true`, userID, groupID)
	return err
}

func (r *Repository) InsertUserLevel(ctx context.Context, userID, groupID, levelID string) (*UserLevel, error) {
	var row userLevelRow
	query := `INSERT INTO user_levels (id, user_id, group_id, level_id, is_current)
		VALUES ($1, $2, $3, $4, true) RETURNING id, user_id, group_id, level_id, is_current, assigned_at`
	if err := r.ex.GetContext(ctx, &row, query, uuid.NewString(), userID, groupID, levelID); err != nil {
		return nil, err
	}
	ul := row.toDomain()
	return &ul, nil
}

type badgeRow struct {
	ID                string         `db:"id"`
	GroupID           sql.NullString `db:"group_id"`
	Name              string         `db:"name"`
	ConditionTypeCode string         `db:"condition_type_code"`
	ConditionDetails  string         `db:"condition_details"`
	IsRepeatable      bool           `db:"is_repeatable"`
	CooldownDays      sql.NullInt64  `db:"cooldown_days"`
	CreatedAt         time.Time      `db:"created_at"`
}

func (r badgeRow) toDomain() Badge {
	b := Badge{ID: r.ID, Name: r.Name, ConditionTypeCode: r.ConditionTypeCode, ConditionDetails: r.ConditionDetails,
		IsRepeatable: r.IsRepeatable, CreatedAt: r.CreatedAt}
	if r.GroupID.Valid {
		b.GroupID = &r.GroupID.String
	}
	if r.CooldownDays.Valid {
		n := int(r.CooldownDays.Int64)
		b.CooldownDays = &n
	}
	return b
}

// ActiveBadgesForGroup returns every badge that applies to groupID —
// group-specific badges plus global ones (group_id IS NULL).
func (r *Repository) ActiveBadgesForGroup(ctx context.Context, groupID string) ([]Badge, error) {
	var rows []badgeRow
	query := `SELECT id, group_id, name, condition_type_code, condition_details, is_repeatable, cooldown_days, created_at
		FROM badges WHERE group_id = $1 OR group_id IS NULL`
	if err := r.ex.SelectContext(ctx, &rows, query, groupID); err != nil {
		return nil, err
	}
	out := make([]Badge, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

type achievementRow struct {
	ID        string    `db:"id"`
	BadgeID   string    `db:"badge_id"`
	UserID    string    `db:"user_id"`
	AwardedAt time.Time `db:"awarded_at"`
}

func (r achievementRow) toDomain() Achievement {
	return Achievement{ID: r.ID, BadgeID: r.BadgeID, UserID: r.UserID, AwardedAt: r.AwardedAt}
}

const achievementCols = `id, badge_id, user_id, awarded_at`

// LatestAchievement returns the most recent achievement of badgeID by
// userID, or ErrNotFound if the user has never earned it.
func (r *Repository) LatestAchievement(ctx context.Context, badgeID, userID string) (*Achievement, error) {
	var row achievementRow
	query := `SELECT ` + achievementCols + ` FROM achievements
		WHERE badge_id = $1 AND user_id = $2 ORDER BY awarded_at DESC LIMIT 1`
	if err := r.ex.GetContext(ctx, &row, query, badgeID, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	a := row.toDomain()
	return &a, nil
}

func (r *Repository) InsertAchievement(ctx context.Context, badgeID, userID string) (*Achievement, error) {
	var row achievementRow
	query := `INSERT INTO achievements (id, badge_id, user_id) VALUES ($1, $2, $3)
		RETURNING ` + achievementCols
	if err := r.ex.GetContext(ctx, &row, query, uuid.NewString(), badgeID, userID); err != nil {
		return nil, err
	}
	a := row.toDomain()
	return &a, nil
}

// --- Read-only condition evaluation queries ---

// CompletedTaskCountOfType counts userID's completed completions whose
// task is of taskTypeCode — the task_count_of_type condition.
func (r *Repository) CompletedTaskCountOfType(ctx context.Context, userID, taskTypeCode string) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM task_completions c
		JOIN tasks t ON t.id = c.task_id
		WHERE c.assignee_user_id = $1 AND c.status = 'task_completed' AND t.task_type_code = $2`
	err := r.ex.QueryRowContext(ctx, query, userID, taskTypeCode).Scan(&count)
	return count, err
}

// HasCompletedTask reports whether userID has a completed completion
// for taskID — the specific_task_completed condition.
func (r *Repository) HasCompletedTask(ctx context.Context, userID, taskID string) (bool, error) {
	var count int
	query := `SELECT COUNT(*) FROM task_completions WHERE assignee_user_id = $1 AND task_id = $2 AND status = 'task_completed'`
	err := r.ex.QueryRowContext(ctx, query, userID, taskID).Scan(&count)
	return count > 0, err
}

// ConsecutiveApprovedStreak mirrors task.Repository's own streak walk;
// duplicated rather than imported to keep this package's only
// dependency on task-completion data a read-only SQL query, not a
// compile-time dependency on internal/domain/task.
func (r *Repository) ConsecutiveApprovedStreak(ctx context.Context, taskID, userID string) (int, error) {
	var statuses []string
	query := `SELECT status FROM task_completions WHERE task_id = $1 AND assignee_user_id = $2 ORDER BY created_at DESC`
	if err := r.ex.SelectContext(ctx, &statuses, query, taskID, userID); err != nil {
		return 0, err
	}
	streak := 0
	for _, status := range statuses {
		if status != "task_completed" {
			break
		}
		streak++
	}
	return streak, nil
}

// LifetimeCreditSum sums every positive transaction amount ever posted
// to userID's bonusTypeCode account in groupID — the
// bonus_points_earned condition, deliberately distinct from the
// account's current balance (which nets debits).
func (r *Repository) LifetimeCreditSum(ctx context.Context, groupID, userID, bonusTypeCode string) (float64, error) {
	var sum sql.NullFloat64
	query := `SELECT SUM(tr.amount::numeric)::float8 FROM transactions tr
		JOIN accounts a ON a.id = tr.account_id
		WHERE a.group_id = $1 AND a.user_id = $2 AND a.bonus_type_code = $3 AND tr.amount::numeric > 0`
	err := r.ex.QueryRowContext(ctx, query, groupID, userID, bonusTypeCode).Scan(&sum)
	if err != nil {
		return 0, err
	}
	if !sum.Valid {
		return 0, nil
	}
	return sum.Float64, nil
}

type ratingRow struct {
	ID           string    `db:"id"`
	UserID       string    `db:"user_id"`
	GroupID      string    `db:"group_id"`
	RatingType   string    `db:"rating_type_code"`
	Value        float64   `db:"value"`
	SnapshotDate time.Time `db:"snapshot_date"`
	CreatedAt    time.Time `db:"created_at"`
}

func (r ratingRow) toDomain() Rating {
	return Rating{ID: r.ID, UserID: r.UserID, GroupID: r.GroupID, RatingType: r.RatingType, Value: r.Value,
		SnapshotDate: r.SnapshotDate, CreatedAt: r.CreatedAt}
}

// InsertRatingSnapshot appends a rating row for the scheduler's daily
// snapshot job (spec.md §4.10). Ratings are never updated in place.
func (r *Repository) InsertRatingSnapshot(ctx context.Context, rt *Rating) (*Rating, error) {
	if rt.ID == "" {
		rt.ID = uuid.NewString()
	}
	var row ratingRow
	query := `INSERT INTO ratings (id, user_id, group_id, rating_type_code, value, snapshot_date)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, user_id, group_id, rating_type_code, value, snapshot_date, created_at`
	err := r.ex.GetContext(ctx, &row, query, rt.ID, rt.UserID, rt.GroupID, rt.RatingType, rt.Value, rt.SnapshotDate)
	if err != nil {
		return nil, err
	}
	out := row.toDomain()
	return &out, nil
}
