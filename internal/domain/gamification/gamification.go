// Package gamification implements spec.md §4.7's gamification engine:
// level progression, badge/achievement evaluation against the four
// closed condition types SPEC_FULL.md §4.7a fixes, and rating
// snapshots. It reads task-completion and ledger-transaction rows
// directly (read-only, no writes to those tables) rather than importing
// internal/domain/task or internal/domain/ledger, the same
// narrow-dependency discipline internal/domain/authz uses for
// group/team membership lookups.
package gamification

import "time"

// Level mirrors spec.md §3's Level: a named threshold on lifetime
// points within a group.
type Level struct {
	ID        string
	GroupID   string
	Name      string
	MinPoints float64
	SortOrder int
	CreatedAt time.Time
}

// UserLevel mirrors spec.md §3's UserLevel: history of level
// assignments, with exactly one IsCurrent row per (user, group).
type UserLevel struct {
	ID         string
	UserID     string
	GroupID    string
	LevelID    string
	IsCurrent  bool
	AssignedAt time.Time
}

// Badge mirrors spec.md §3's Badge. GroupID nil means a global badge.
type Badge struct {
	ID                string
	GroupID           *string
	Name              string
	ConditionTypeCode string
	ConditionDetails  string // opaque JSON, decoded by the matching evaluator only
	IsRepeatable      bool
	CooldownDays      *int
	CreatedAt         time.Time
}

// Achievement mirrors spec.md §3's Achievement: one badge award.
type Achievement struct {
	ID        string
	BadgeID   string
	UserID    string
	AwardedAt time.Time
}

// Rating mirrors spec.md §3's Rating: an append-only per-(user, group,
// type, date) snapshot, never updated in place.
type Rating struct {
	ID           string
	UserID       string
	GroupID      string
	RatingType   string
	Value        float64
	SnapshotDate time.Time
	CreatedAt    time.Time
}

// Condition type codes (SPEC_FULL.md §4.7a).
const (
	ConditionTaskCountOfType   = "task_count_of_type"
	ConditionStreak            = "streak"
	ConditionSpecificTaskDone  = "specific_task_completed"
	ConditionBonusPointsEarned = "bonus_points_earned"
)

// ConditionDetails is the closed JSON shape SPEC_FULL.md §4.7a fixes
// for condition_details — the resolver is a switch over
// ConditionTypeCode, never an open-ended interpreter.
type ConditionDetails struct {
	TaskTypeCode *string  `json:"task_type_code,omitempty"`
	TaskID       *string  `json:"task_id,omitempty"`
	Count        *int     `json:"count,omitempty"`
	Threshold    *float64 `json:"threshold,omitempty"`
}
