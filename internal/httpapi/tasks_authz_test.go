package httpapi

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/kudos-hq/kudos-server/internal/domain/authz"
	"github.com/kudos-hq/kudos-server/internal/domain/group"
	"github.com/kudos-hq/kudos-server/internal/domain/task"
	"github.com/kudos-hq/kudos-server/internal/domain/team"
	"github.com/kudos-hq/kudos-server/internal/domain/token"
	"github.com/kudos-hq/kudos-server/internal/logging"
	"github.com/kudos-hq/kudos-server/internal/platform/database"
)

var testTokenCfg = token.Config{
	Secret:         []byte("test-secret-key-test-secret-key"),
	Issuer:         "kudos-server-test",
	Audience:       "kudos-clients-test",
	AccessTokenTTL: time.Hour,
}

func newMockServerDB(t *testing.T) (*database.DB, sqlmock.Sqlmock, func()) {
	t.Helper()
	rawDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	return &database.DB{DB: sqlx.NewDb(rawDB, "postgres")}, mock, func() { _ = rawDB.Close() }
}

// newTestServer wires a Server the way cmd/kudos-server does, minus the
// collaborators a given test's routes never reach.
func newTestServer(db *database.DB) *Server {
	signer := token.NewSigner(testTokenCfg)
	groupRepo := group.NewRepository(db)
	teamRepo := team.NewRepository(db)
	groupSvc := group.NewService(db)
	teamSvc := team.NewService(db)
	taskSvc := task.NewService(db, nil, nil, groupRepo, teamSvc, groupSvc)
	authzResolver := authz.NewResolver(groupRepo, teamRepo)

	return NewServer(Deps{
		Log:    logging.New(logging.Config{Level: "error", Format: "json"}),
		DB:     db,
		Signer: signer,
		Group:  groupSvc,
		Team:   teamSvc,
		Task:   taskSvc,
		Authz:  authzResolver,
	})
}

func bearerRequest(t *testing.T, signer *token.Signer, method, target, userID, userType string, body string) *http.Request {
	t.Helper()
	tok, _, err := signer.IssueAccessToken(userID, userType)
	require.NoError(t, err)
	var r *http.Request
	if body != "" {
		r = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		r = httptest.NewRequest(method, target, nil)
	}
	r.Header.Set("Authorization", "Bearer "+tok)
	r.Header.Set("Content-Type", "application/json")
	return r
}

func membershipRow(userID, groupID, role string, active bool) *sqlmock.Rows {
	cols := []string{"user_id", "group_id", "role_code", "is_active", "status_id", "joined_at", "updated_at"}
	return sqlmock.NewRows(cols).AddRow(userID, groupID, role, active, nil, time.Now(), time.Now())
}

func taskRowFixture(id, groupID string) *sqlmock.Rows {
	cols := []string{"id", "group_id", "task_type_code", "creator_user_id", "parent_task_id", "team_id", "bonus_points",
		"penalty_points", "due_date", "is_recurring", "recurring_interval", "max_occurrences", "is_mandatory",
		"allow_multiple_assignees", "first_completes_gets_bonus", "streak_task_ref_id", "streak_threshold",
		"notes", "state_id", "created_at", "updated_at", "is_deleted", "deleted_at"}
	return sqlmock.NewRows(cols).AddRow(id, groupID, "task", "creator1", nil, nil, 10.0,
		5.0, nil, false, nil, nil, false,
		false, false, nil, nil,
		nil, nil, time.Now(), time.Now(), false, nil)
}

func completionRowFixture(id, taskID, status string) *sqlmock.Rows {
	cols := []string{"id", "task_id", "assignee_user_id", "assignee_team_id", "status", "started_at",
		"submitted_for_review_at", "reviewed_at", "reviewer_user_id", "completed_at", "review_notes",
		"awarded_bonus", "applied_penalty", "attachments_meta", "created_at", "updated_at"}
	return sqlmock.NewRows(cols).AddRow(id, taskID, "assignee1", nil, status, time.Now(),
		nil, nil, nil, nil, nil,
		nil, nil, nil, time.Now(), time.Now())
}

// TestHandleApproveCompletionRequiresGroupAdmin covers maintainer review
// comment 1: an active-but-non-admin group member must not be able to
// approve a completion (spec.md §4.5's "admin approves").
func TestHandleApproveCompletionRequiresGroupAdmin(t *testing.T) {
	db, mock, closeFn := newMockServerDB(t)
	defer closeFn()
	srv := newTestServer(db)

	mock.ExpectQuery(`FROM task_completions WHERE id = \$1`).
		WithArgs("completion1").
		WillReturnRows(completionRowFixture("completion1", "task1", task.StatusPendingReview))
	mock.ExpectQuery(`FROM tasks WHERE id = \$1 AND is_deleted = false`).
		WithArgs("task1").
		WillReturnRows(taskRowFixture("task1", "group1"))
	mock.ExpectQuery(`FROM group_memberships WHERE user_id = \$1 AND group_id = \$2`).
		WithArgs("member1", "group1").
		WillReturnRows(membershipRow("member1", "group1", group.RoleGroupUser, true))

	req := bearerRequest(t, srv.signer, http.MethodPost, "/api/v1/completions/completion1/approve", "member1", "user", `{"notes":null}`)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Contains(t, rec.Body.String(), "authz.denied")
	require.NoError(t, mock.ExpectationsWereMet())
}

// TestHandleAssignTaskRequiresGroupAdmin covers maintainer review comment
// 1 for the assignment endpoint: a non-admin member may not assign a
// task to anyone.
func TestHandleAssignTaskRequiresGroupAdmin(t *testing.T) {
	db, mock, closeFn := newMockServerDB(t)
	defer closeFn()
	srv := newTestServer(db)

	mock.ExpectQuery(`FROM tasks WHERE id = \$1 AND is_deleted = false`).
		WithArgs("task1").
		WillReturnRows(taskRowFixture("task1", "group1"))
	mock.ExpectQuery(`FROM group_memberships WHERE user_id = \$1 AND group_id = \$2`).
		WithArgs("member1", "group1").
		WillReturnRows(membershipRow("member1", "group1", group.RoleGroupUser, true))

	req := bearerRequest(t, srv.signer, http.MethodPost, "/api/v1/tasks/task1/assignments", "member1", "user", `{"user_id":"member2"}`)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Contains(t, rec.Body.String(), "authz.denied")
	require.NoError(t, mock.ExpectationsWereMet())
}

// TestHandleRemoveGroupMemberLastAdminForbidden exercises spec.md §8's
// scenario 3: the sole active admin cannot remove their own membership,
// surfaced as a 403 authz.denied response.
func TestHandleRemoveGroupMemberLastAdminForbidden(t *testing.T) {
	db, mock, closeFn := newMockServerDB(t)
	defer closeFn()
	srv := newTestServer(db)

	// authzResolver.Allow's ScopeGroupAdmin check.
	mock.ExpectQuery(`FROM group_memberships WHERE user_id = \$1 AND group_id = \$2`).
		WithArgs("admin1", "group1").
		WillReturnRows(membershipRow("admin1", "group1", group.RoleGroupAdmin, true))

	// group.Service.RemoveMember's unit of work.
	mock.ExpectBegin()
	mock.ExpectQuery(`FROM group_memberships WHERE user_id = \$1 AND group_id = \$2`).
		WithArgs("admin1", "group1").
		WillReturnRows(membershipRow("admin1", "group1", group.RoleGroupAdmin, true))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM group_memberships`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectRollback()

	req := bearerRequest(t, srv.signer, http.MethodDelete, "/api/v1/groups/group1/members/admin1", "admin1", "user", "")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Contains(t, rec.Body.String(), "authz.denied")
	require.NoError(t, mock.ExpectationsWereMet())
}

// TestHandleStartTaskRequiresGroupMembership ensures a caller with no
// active membership in the task's group is rejected rather than
// silently allowed to start the task (spec.md §4.3 step 4's default
// deny).
func TestHandleStartTaskRequiresGroupMembership(t *testing.T) {
	db, mock, closeFn := newMockServerDB(t)
	defer closeFn()
	srv := newTestServer(db)

	mock.ExpectQuery(`FROM tasks WHERE id = \$1 AND is_deleted = false`).
		WithArgs("task1").
		WillReturnRows(taskRowFixture("task1", "group1"))
	mock.ExpectQuery(`FROM group_memberships WHERE user_id = \$1 AND group_id = \$2`).
		WithArgs("stranger1", "group1").
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "group_id", "role_code", "is_active", "status_id", "joined_at", "updated_at"}))

	req := bearerRequest(t, srv.signer, http.MethodPost, "/api/v1/tasks/task1/start", "stranger1", "user", "")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Contains(t, rec.Body.String(), "authz.denied")
	require.NoError(t, mock.ExpectationsWereMet())
}
