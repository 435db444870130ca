package notification

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/kudos-hq/kudos-server/internal/platform/database"
)

func newMockDB(t *testing.T) (*database.DB, sqlmock.Sqlmock, func()) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	return &database.DB{DB: sqlx.NewDb(sqlDB, "postgres")}, mock, func() { _ = sqlDB.Close() }
}

var templateCols = []string{"id", "group_id", "notification_type_code", "language_code", "channel_code", "subject", "body_template"}

func TestResolveTemplateFallsBackToGlobalDefaultLanguage(t *testing.T) {
	db, mock, closeFn := newMockDB(t)
	defer closeFn()
	svc := NewService(db, nil)

	groupID := "g1"
	mock.ExpectQuery(`SELECT .* FROM notification_templates WHERE group_id = \$1 AND notification_type_code = \$2 AND language_code = \$3 AND channel_code = \$4`).
		WithArgs(groupID, "NEW_TASK_ASSIGNED", "en", "EMAIL").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(`SELECT .* FROM notification_templates WHERE group_id = \$1 AND notification_type_code = \$2 AND language_code = \$3 AND channel_code = \$4`).
		WithArgs(groupID, "NEW_TASK_ASSIGNED", DefaultLanguage, "EMAIL").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(`SELECT .* FROM notification_templates WHERE group_id IS NULL AND notification_type_code = \$1 AND language_code = \$2 AND channel_code = \$3`).
		WithArgs("NEW_TASK_ASSIGNED", "en", "EMAIL").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(`SELECT .* FROM notification_templates WHERE group_id IS NULL AND notification_type_code = \$1 AND language_code = \$2 AND channel_code = \$3`).
		WithArgs("NEW_TASK_ASSIGNED", DefaultLanguage, "EMAIL").
		WillReturnRows(sqlmock.NewRows(templateCols).AddRow("t1", nil, "NEW_TASK_ASSIGNED", DefaultLanguage, "EMAIL", nil, "You were assigned a task"))

	tmpl, err := svc.ResolveTemplate(context.Background(), &groupID, "NEW_TASK_ASSIGNED", "en", "EMAIL")
	require.NoError(t, err)
	require.Equal(t, DefaultLanguage, tmpl.LanguageCode)
	require.NoError(t, mock.ExpectationsWereMet())
}

var notificationCols2 = []string{"id", "group_id", "user_id", "notification_type_code", "payload", "is_read", "read_at", "created_at"}

func TestMarkAsReadIsIdempotent(t *testing.T) {
	db, mock, closeFn := newMockDB(t)
	defer closeFn()
	svc := NewService(db, nil)

	mock.ExpectQuery(`SELECT .* FROM notifications WHERE id = \$1`).
		WithArgs("n1").
		WillReturnRows(sqlmock.NewRows(notificationCols2).AddRow("n1", "g1", "u1", "NEW_TASK_ASSIGNED", "{}", true, time.Now(), time.Now()))
	mock.ExpectExec(`UPDATE notifications SET is_read = true`).
		WithArgs("n1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, svc.MarkAsRead(context.Background(), "n1"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkAsReadNotFound(t *testing.T) {
	db, mock, closeFn := newMockDB(t)
	defer closeFn()
	svc := NewService(db, nil)

	mock.ExpectQuery(`SELECT .* FROM notifications WHERE id = \$1`).
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)

	err := svc.MarkAsRead(context.Background(), "ghost")
	require.Error(t, err)
}

func TestResolveTemplateNotFoundWhenNoneMatch(t *testing.T) {
	db, mock, closeFn := newMockDB(t)
	defer closeFn()
	svc := NewService(db, nil)

	mock.ExpectQuery(`SELECT .* FROM notification_templates WHERE group_id IS NULL`).
		WillReturnError(sql.ErrNoRows)

	_, err := svc.ResolveTemplate(context.Background(), nil, "NEW_TASK_ASSIGNED", DefaultLanguage, "EMAIL")
	require.Error(t, err)
}
