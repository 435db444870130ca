package gamification

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	apperrors "github.com/kudos-hq/kudos-server/internal/errors"
	"github.com/kudos-hq/kudos-server/internal/platform/database"
)

// Service implements spec.md §4.7's level progression and badge
// evaluation.
type Service struct {
	db *database.DB
}

func NewService(db *database.DB) *Service { return &Service{db: db} }

// EvaluateLevel recomputes userID's level in groupID given their
// current lifetime point total, inserting a new current UserLevel row
// only when the qualifying level actually changed (spec.md §4.7).
func (s *Service) EvaluateLevel(ctx context.Context, userID, groupID string, totalPoints float64) (*UserLevel, error) {
	var result *UserLevel
	err := s.db.WithUnitOfWork(ctx, func(ctx context.Context, uow *database.UnitOfWork) error {
		repo := NewRepository(uow)
		qualifying, err := repo.HighestLevelBelow(ctx, groupID, totalPoints)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil // group defines no level at or below this total; nothing to assign
			}
			return apperrors.Internal("find qualifying level", err)
		}

		current, err := repo.CurrentLevel(ctx, userID, groupID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return apperrors.Internal("lookup current level", err)
		}
		if current != nil && current.LevelID == qualifying.ID {
			result = current
			return nil
		}

		if err := repo.ClearCurrentLevel(ctx, userID, groupID); err != nil {
			return apperrors.Internal("clear current level", err)
		}
		row, err := repo.InsertUserLevel(ctx, userID, groupID, qualifying.ID)
		if err != nil {
			return apperrors.Internal("insert user level", err)
		}
		result = row
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// EvaluateBadges checks every badge applicable to groupID against
// userID's current state and awards the ones whose condition is newly
// satisfied (spec.md §4.7, SPEC_FULL.md §4.7a's four condition types).
// Non-repeatable badges already held are skipped entirely; repeatable
// badges re-evaluate subject to their cooldown.
func (s *Service) EvaluateBadges(ctx context.Context, userID, groupID, bonusTypeCode string) ([]Achievement, error) {
	repo := NewRepository(s.db)
	badges, err := repo.ActiveBadgesForGroup(ctx, groupID)
	if err != nil {
		return nil, apperrors.Internal("list active badges", err)
	}

	var awarded []Achievement
	for _, b := range badges {
		qualifies, err := s.evaluateCondition(ctx, repo, b, userID, groupID, bonusTypeCode)
		if err != nil {
			return awarded, err
		}
		if !qualifies {
			continue
		}

		last, err := repo.LatestAchievement(ctx, b.ID, userID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return awarded, apperrors.Internal("lookup latest achievement", err)
		}
		if last != nil {
			if !b.IsRepeatable {
				continue
			}
			if b.CooldownDays != nil && time.Since(last.AwardedAt) < time.Duration(*b.CooldownDays)*24*time.Hour {
				continue
			}
		}

		a, err := repo.InsertAchievement(ctx, b.ID, userID)
		if err != nil {
			return awarded, apperrors.Internal("insert achievement", err)
		}
		awarded = append(awarded, *a)
	}
	return awarded, nil
}

// evaluateCondition is the closed switch SPEC_FULL.md §4.7a requires —
// four known condition types, nothing open-ended.
func (s *Service) evaluateCondition(ctx context.Context, repo *Repository, b Badge, userID, groupID, bonusTypeCode string) (bool, error) {
	var details ConditionDetails
	if b.ConditionDetails != "" {
		if err := json.Unmarshal([]byte(b.ConditionDetails), &details); err != nil {
			return false, apperrors.Internal("parse badge condition_details", err)
		}
	}

	switch b.ConditionTypeCode {
	case ConditionTaskCountOfType:
		if details.TaskTypeCode == nil || details.Count == nil {
			return false, apperrors.Internal("badge condition missing task_type_code/count", nil)
		}
		count, err := repo.CompletedTaskCountOfType(ctx, userID, *details.TaskTypeCode)
		if err != nil {
			return false, apperrors.Internal("count completed tasks of type", err)
		}
		return count >= *details.Count, nil

	case ConditionStreak:
		if details.TaskID == nil || details.Count == nil {
			return false, apperrors.Internal("badge condition missing task_id/count", nil)
		}
		streak, err := repo.ConsecutiveApprovedStreak(ctx, *details.TaskID, userID)
		if err != nil {
			return false, apperrors.Internal("evaluate streak condition", err)
		}
		return streak >= *details.Count, nil

	case ConditionSpecificTaskDone:
		if details.TaskID == nil {
			return false, apperrors.Internal("badge condition missing task_id", nil)
		}
		done, err := repo.HasCompletedTask(ctx, userID, *details.TaskID)
		if err != nil {
			return false, apperrors.Internal("check specific task completion", err)
		}
		return done, nil

	case ConditionBonusPointsEarned:
		if details.Threshold == nil {
			return false, apperrors.Internal("badge condition missing threshold", nil)
		}
		sum, err := repo.LifetimeCreditSum(ctx, groupID, userID, bonusTypeCode)
		if err != nil {
			return false, apperrors.Internal("sum lifetime credits", err)
		}
		return sum >= *details.Threshold, nil

	default:
		return false, apperrors.Internal("unknown badge condition_type_code: "+b.ConditionTypeCode, nil)
	}
}

// RecordRatingSnapshot is the scheduler's daily rating snapshot job
// (spec.md §4.10): appends one immutable Rating row per call, never
// updating a prior day's snapshot.
func (s *Service) RecordRatingSnapshot(ctx context.Context, userID, groupID, ratingType string, value float64, snapshotDate time.Time) (*Rating, error) {
	repo := NewRepository(s.db)
	return repo.InsertRatingSnapshot(ctx, &Rating{UserID: userID, GroupID: groupID, RatingType: ratingType, Value: value, SnapshotDate: snapshotDate})
}
