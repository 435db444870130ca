package report

import (
	"context"
	"testing"

	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/kudos-hq/kudos-server/internal/domain/authz"
	apperrors "github.com/kudos-hq/kudos-server/internal/errors"
	"github.com/kudos-hq/kudos-server/internal/platform/database"
)

type fakeMemberships map[string]map[string]string

func (f fakeMemberships) ActiveRole(_ context.Context, userID, groupID string) (string, bool, error) {
	groups, ok := f[userID]
	if !ok {
		return "", false, nil
	}
	role, ok := groups[groupID]
	return role, ok, nil
}

type fakeTeams map[string]string

func (f fakeTeams) IsLeader(_ context.Context, userID, teamID string) (bool, error) {
	return f[teamID] == userID, nil
}

func newMockDB(t *testing.T) (*database.DB, sqlmock.Sqlmock, func()) {
	t.Helper()
	rawDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	return &database.DB{DB: sqlx.NewDb(rawDB, "postgres")}, mock, func() { _ = rawDB.Close() }
}

func strp(s string) *string { return &s }

func TestSubmitRejectsUnknownReportCode(t *testing.T) {
	db, _, closeFn := newMockDB(t)
	defer closeFn()
	resolver := authz.NewResolver(fakeMemberships{}, fakeTeams{})
	svc := NewService(db, resolver)

	_, err := svc.Submit(context.Background(), authz.Actor{UserID: "u1"}, "not_a_real_code", nil, nil, nil)
	require.Error(t, err)
}

func TestSubmitRejectsMissingRequiredParameter(t *testing.T) {
	db, _, closeFn := newMockDB(t)
	defer closeFn()
	resolver := authz.NewResolver(fakeMemberships{}, fakeTeams{})
	svc := NewService(db, resolver)

	groupID := "g1"
	_, err := svc.Submit(context.Background(), authz.Actor{UserID: "u1", UserTypeCode: "superadmin"}, CodeGroupActivitySummary, &groupID, nil, map[string]any{"from_date": "2026-01-01"})
	require.Error(t, err)
}

func TestSubmitRejectsGroupReportForNonAdmin(t *testing.T) {
	db, _, closeFn := newMockDB(t)
	defer closeFn()
	resolver := authz.NewResolver(fakeMemberships{"u1": {"g1": "member"}}, fakeTeams{})
	svc := NewService(db, resolver)

	groupID := "g1"
	_, err := svc.Submit(context.Background(), authz.Actor{UserID: "u1", UserTypeCode: "user"}, CodeGroupActivitySummary, &groupID, nil,
		map[string]any{"from_date": "2026-01-01", "to_date": "2026-01-31"})
	require.Error(t, err)
	se, ok := apperrors.As(err)
	require.True(t, ok)
	require.Equal(t, apperrors.KindForbidden, se.Kind)
}

func TestSubmitRejectsPersonalReportForOtherUser(t *testing.T) {
	db, _, closeFn := newMockDB(t)
	defer closeFn()
	resolver := authz.NewResolver(fakeMemberships{}, fakeTeams{})
	svc := NewService(db, resolver)

	subject := "someone-else"
	_, err := svc.Submit(context.Background(), authz.Actor{UserID: "u1", UserTypeCode: "user"}, CodePersonalTaskHistory, nil, &subject,
		map[string]any{"from_date": "2026-01-01", "to_date": "2026-01-31"})
	require.Error(t, err)
}

func TestSubmitInsertsQueuedRequestForGroupAdmin(t *testing.T) {
	db, mock, closeFn := newMockDB(t)
	defer closeFn()
	resolver := authz.NewResolver(fakeMemberships{"u1": {"g1": "group_admin"}}, fakeTeams{})
	svc := NewService(db, resolver)

	cols := []string{"id", "report_code", "scope", "group_id", "subject_user_id", "requested_by_id", "params", "status",
		"file_ref", "error_message", "generated_at", "created_at", "updated_at"}
	mock.ExpectQuery(`INSERT INTO report_requests`).
		WillReturnRows(sqlmock.NewRows(cols).AddRow("r1", CodeGroupActivitySummary, "group", "g1", nil, "u1", `{}`, StatusQueued,
			nil, nil, nil, time.Now(), time.Now()))

	groupID := "g1"
	req, err := svc.Submit(context.Background(), authz.Actor{UserID: "u1", UserTypeCode: "user"}, CodeGroupActivitySummary, &groupID, nil,
		map[string]any{"from_date": "2026-01-01", "to_date": "2026-01-31"})
	require.NoError(t, err)
	require.Equal(t, StatusQueued, req.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}
