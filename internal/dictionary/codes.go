// Package dictionary defines the stable string codes referenced
// throughout the system (spec.md §6) and a thin service over the
// read-only dictionary tables those codes key into. Dictionary CRUD
// itself is an external collaborator (spec.md §1); this package only
// resolves code → id for the domain services that need the id form for
// foreign keys.
package dictionary

import (
	"context"

	"github.com/kudos-hq/kudos-server/internal/platform/database"
)

// Role codes (GroupMembership.role_id).
const (
	RoleSuperadmin = "superadmin"
	RoleGroupAdmin = "group_admin"
	RoleGroupUser  = "group_user"
)

// User type codes (User.user_type_code).
const (
	UserTypeSuperadmin = "superadmin"
	UserTypeAdmin      = "admin"
	UserTypeUser       = "user"
	UserTypeBot        = "bot"
)

// System user usernames seeded at init.
const (
	SystemUserOdin   = "odin"
	SystemUserShadow = "shadow"
	SystemUserRoot   = "root"
)

// Task status codes.
const (
	TaskStatusNew            = "task_new"
	TaskStatusInProgress     = "task_in_progress"
	TaskStatusPendingReview  = "task_pending_review"
	TaskStatusCompleted      = "task_completed"
	TaskStatusRejected       = "task_rejected"
	TaskStatusCancelled      = "task_cancelled"
	TaskStatusBlocked        = "task_blocked"
)

// Invitation status codes.
const (
	InviteStatusPending  = "invite_pending"
	InviteStatusAccepted = "invite_accepted"
	InviteStatusRejected = "invite_rejected"
	InviteStatusExpired  = "invite_expired"
	InviteStatusCancelled = "invite_cancelled"
)

// Transaction type codes.
const (
	TxTaskReward            = "TASK_REWARD"
	TxTaskPenalty            = "TASK_PENALTY"
	TxRewardPurchase         = "REWARD_PURCHASE"
	TxManualCredit           = "MANUAL_CREDIT"
	TxManualDebit            = "MANUAL_DEBIT"
	TxStreakBonus            = "STREAK_BONUS"
	TxInitialBalance         = "INITIAL_BALANCE"
	TxSystemAdjustmentCredit = "SYSTEM_ADJUSTMENT_CREDIT"
	TxSystemAdjustmentDebit  = "SYSTEM_ADJUSTMENT_DEBIT"
)

// Notification channel codes.
const (
	ChannelInApp     = "IN_APP"
	ChannelEmail     = "EMAIL"
	ChannelSMS       = "SMS"
	ChannelPushFCM   = "PUSH_FCM"
	ChannelPushAPNS  = "PUSH_APNS"
	ChannelTelegram  = "TELEGRAM_BOT"
	ChannelSlack     = "SLACK"
)

// + Notification type codes (supplemented from original_source).
const (
	NotifyTaskCompletedByUser    = "TASK_COMPLETED_BY_USER"
	NotifyTaskStatusChanged      = "TASK_STATUS_CHANGED_FOR_USER"
	NotifyAccountTransaction     = "ACCOUNT_TRANSACTION"
	NotifyTaskDeadlineReminder   = "TASK_DEADLINE_REMINDER"
	NotifyNewGroupInvitation     = "NEW_GROUP_INVITATION"
	NotifyNewTaskAssigned        = "NEW_TASK_ASSIGNED"
)

// + Group type codes (supplemented from original_source).
const (
	GroupTypeFamily       = "family"
	GroupTypeDepartment   = "department"
	GroupTypeOrganization = "organization"
	GroupTypeGeneric      = "generic_group"
)

// + Task type codes and their capability flags (supplemented from
// original_source, generalizing spec.md §9's tagged-variant note).
const (
	TaskTypeTask        = "task"
	TaskTypeSubtask     = "subtask"
	TaskTypeComplexTask = "complex_task"
	TaskTypeTeamTask    = "team_task"
	TaskTypeEvent       = "event"
	TaskTypePenalty     = "penalty"
)

// + Bonus type codes.
const (
	BonusTypePoints  = "points"
	BonusTypeStars   = "stars"
	BonusTypeBonuses = "bonuses"
)

// + Badge condition type codes (spec.md §4.7a).
const (
	BadgeConditionTaskCountOfType    = "task_count_of_type"
	BadgeConditionStreak             = "streak"
	BadgeConditionSpecificTaskDone   = "specific_task_completed"
	BadgeConditionBonusPointsEarned  = "bonus_points_earned"
)

// Resolver resolves a dictionary code to its stable row id, going
// through the read-through cache described in internal/cache.
type Resolver interface {
	ResolveID(ctx context.Context, table, code string) (string, error)
}

// seedEntry is one row the bootstrap CLI's "seed dictionaries" command
// (spec.md §6) inserts idempotently.
type seedEntry struct {
	table string
	code  string
}

// seedTable lists every stable code spec.md §6 names, grouped by the
// dictionary table family it belongs to — the source for the
// idempotent "missing codes inserted" bootstrap command.
var seedTable = []seedEntry{
	{"roles", RoleSuperadmin}, {"roles", RoleGroupAdmin}, {"roles", RoleGroupUser},
	{"user_types", UserTypeSuperadmin}, {"user_types", UserTypeAdmin}, {"user_types", UserTypeUser}, {"user_types", UserTypeBot},
	{"task_statuses", TaskStatusNew}, {"task_statuses", TaskStatusInProgress}, {"task_statuses", TaskStatusPendingReview},
	{"task_statuses", TaskStatusCompleted}, {"task_statuses", TaskStatusRejected}, {"task_statuses", TaskStatusCancelled}, {"task_statuses", TaskStatusBlocked},
	{"invitation_statuses", InviteStatusPending}, {"invitation_statuses", InviteStatusAccepted}, {"invitation_statuses", InviteStatusRejected},
	{"invitation_statuses", InviteStatusExpired}, {"invitation_statuses", InviteStatusCancelled},
	{"transaction_types", TxTaskReward}, {"transaction_types", TxTaskPenalty}, {"transaction_types", TxRewardPurchase},
	{"transaction_types", TxManualCredit}, {"transaction_types", TxManualDebit}, {"transaction_types", TxStreakBonus},
	{"transaction_types", TxInitialBalance}, {"transaction_types", TxSystemAdjustmentCredit}, {"transaction_types", TxSystemAdjustmentDebit},
	{"notification_channels", ChannelInApp}, {"notification_channels", ChannelEmail}, {"notification_channels", ChannelSMS},
	{"notification_channels", ChannelPushFCM}, {"notification_channels", ChannelPushAPNS}, {"notification_channels", ChannelTelegram}, {"notification_channels", ChannelSlack},
	{"group_types", GroupTypeFamily}, {"group_types", GroupTypeDepartment}, {"group_types", GroupTypeOrganization}, {"group_types", GroupTypeGeneric},
	{"task_types", TaskTypeTask}, {"task_types", TaskTypeSubtask}, {"task_types", TaskTypeComplexTask},
	{"task_types", TaskTypeTeamTask}, {"task_types", TaskTypeEvent}, {"task_types", TaskTypePenalty},
	{"bonus_types", BonusTypePoints}, {"bonus_types", BonusTypeStars}, {"bonus_types", BonusTypeBonuses},
	{"badge_conditions", BadgeConditionTaskCountOfType}, {"badge_conditions", BadgeConditionStreak},
	{"badge_conditions", BadgeConditionSpecificTaskDone}, {"badge_conditions", BadgeConditionBonusPointsEarned},
}

// Seed inserts every missing dictionary code into dictionary_entries,
// the bootstrap CLI's idempotent "seed dictionaries" command (spec.md
// §6). Re-running it only inserts codes absent from a prior run.
func Seed(ctx context.Context, ex database.Executor) (int, error) {
	inserted := 0
	for _, e := range seedTable {
		res, err := ex.ExecContext(ctx,
			`INSERT INTO dictionary_entries (table_name, code) VALUES ($1, $2) ON CONFLICT (table_name, code) DO NOTHING`,
			e.table, e.code)
		if err != nil {
			return inserted, err
		}
		if n, _ := res.RowsAffected(); n > 0 {
			inserted++
		}
	}
	return inserted, nil
}
