package notification

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/kudos-hq/kudos-server/internal/platform/database"
)

var ErrNotFound = errors.New("notification: not found")

type Repository struct{ ex database.Executor }

func NewRepository(ex database.Executor) *Repository { return &Repository{ex: ex} }

type notificationRow struct {
	ID                   string       `db:"id"`
	GroupID              string       `db:"group_id"`
	UserID               string       `db:"user_id"`
	NotificationTypeCode string       `db:"notification_type_code"`
	Payload              string       `db:"payload"`
	IsRead               bool         `db:"is_read"`
	ReadAt               sql.NullTime `db:"read_at"`
	CreatedAt            time.Time    `db:"created_at"`
}

func (r notificationRow) toDomain() *Notification {
	n := &Notification{ID: r.ID, GroupID: r.GroupID, UserID: r.UserID, NotificationTypeCode: r.NotificationTypeCode,
		Payload: r.Payload, IsRead: r.IsRead, CreatedAt: r.CreatedAt}
	if r.ReadAt.Valid {
		n.ReadAt = &r.ReadAt.Time
	}
	return n
}

const notificationCols = `id, group_id, user_id, notification_type_code, payload, is_read, read_at, created_at`

func (r *Repository) InsertNotification(ctx context.Context, n *Notification) (*Notification, error) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	var row notificationRow
	query := `INSERT INTO notifications (id, group_id, user_id, notification_type_code, payload)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + notificationCols
	err := r.ex.GetContext(ctx, &row, query, n.ID, n.GroupID, n.UserID, n.NotificationTypeCode, n.Payload)
	if err != nil {
		return nil, err
	}
	return row.toDomain(), nil
}

// GetNotification loads one notification by id, for the mark-as-read
// entry point's ownership check.
func (r *Repository) GetNotification(ctx context.Context, id string) (*Notification, error) {
	var row notificationRow
	query := `SELECT ` + notificationCols + ` FROM notifications WHERE id = $1`
	if err := r.ex.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return row.toDomain(), nil
}

// MarkAsRead sets is_read/read_at once. Calling it on an already-read
// notification is a no-op — the idempotence law spec.md §8 requires —
// since the WHERE clause only matches unread rows.
func (r *Repository) MarkAsRead(ctx context.Context, id string) error {
	_, err := r.ex.ExecContext(ctx, `UPDATE notifications SET is_read = true, read_at = now() WHERE id = $1 AND is_read = false`, id)
	return err
}

type deliveryRow struct {
	ID             string         `db:"id"`
	NotificationID string         `db:"notification_id"`
	ChannelCode    string         `db:"channel_code"`
	Status         string         `db:"status"`
	Attempts       int            `db:"attempts"`
	NextAttemptAt  sql.NullTime   `db:"next_attempt_at"`
	LastError      sql.NullString `db:"last_error"`
	SentAt         sql.NullTime   `db:"sent_at"`
	DeliveredAt    sql.NullTime   `db:"delivered_at"`
	CreatedAt      time.Time      `db:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at"`
}

func (r deliveryRow) toDomain() *NotificationDelivery {
	d := &NotificationDelivery{ID: r.ID, NotificationID: r.NotificationID, ChannelCode: r.ChannelCode,
		Status: r.Status, Attempts: r.Attempts, CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt}
	if r.NextAttemptAt.Valid {
		d.NextAttemptAt = &r.NextAttemptAt.Time
	}
	if r.LastError.Valid {
		d.LastError = &r.LastError.String
	}
	if r.SentAt.Valid {
		d.SentAt = &r.SentAt.Time
	}
	if r.DeliveredAt.Valid {
		d.DeliveredAt = &r.DeliveredAt.Time
	}
	return d
}

const deliveryCols = `id, notification_id, channel_code, status, attempts, next_attempt_at, last_error, sent_at, delivered_at, created_at, updated_at`

func (r *Repository) InsertDelivery(ctx context.Context, notificationID, channelCode string) (*NotificationDelivery, error) {
	var row deliveryRow
	query := `INSERT INTO notification_deliveries (id, notification_id, channel_code, status, attempts)
		VALUES ($1, $2, $3, $4, 0) RETURNING ` + deliveryCols
	err := r.ex.GetContext(ctx, &row, query, uuid.NewString(), notificationID, channelCode, DeliveryPending)
	if err != nil {
		return nil, err
	}
	return row.toDomain(), nil
}

func (r *Repository) GetDeliveryForUpdate(ctx context.Context, id string) (*NotificationDelivery, error) {
	var row deliveryRow
	query := `SELECT ` + deliveryCols + ` FROM notification_deliveries WHERE id = $1 FOR UPDATE`
	if err := r.ex.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return row.toDomain(), nil
}

// DueDeliveries selects pending/retrying deliveries whose next attempt
// is due, locking each with SKIP LOCKED so concurrent scheduler
// instances never double-send the same delivery (spec.md §4.10).
func (r *Repository) DueDeliveries(ctx context.Context, now time.Time, limit int) ([]NotificationDelivery, error) {
	var rows []deliveryRow
	query := `SELECT ` + deliveryCols + ` FROM notification_deliveries
		WHERE status IN ($1, $2) AND (next_attempt_at IS NULL OR next_attempt_at <= $3)
		ORDER BY created_at ASC LIMIT $4 FOR UPDATE SKIP LOCKED`
	if err := r.ex.SelectContext(ctx, &rows, query, DeliveryPending, DeliveryRetrying, now, limit); err != nil {
		return nil, err
	}
	out := make([]NotificationDelivery, 0, len(rows))
	for _, row := range rows {
		out = append(out, *row.toDomain())
	}
	return out, nil
}

func (r *Repository) MarkProcessing(ctx context.Context, id string) error {
	_, err := r.ex.ExecContext(ctx, `UPDATE notification_deliveries SET status = $2, attempts = attempts + 1, updated_at = now() WHERE id = $1`,
		id, DeliveryProcessing)
	return err
}

func (r *Repository) MarkSent(ctx context.Context, id string) error {
	_, err := r.ex.ExecContext(ctx, `UPDATE notification_deliveries SET status = $2, sent_at = now(), updated_at = now() WHERE id = $1`,
		id, DeliverySent)
	return err
}

func (r *Repository) MarkDelivered(ctx context.Context, id string) error {
	_, err := r.ex.ExecContext(ctx, `UPDATE notification_deliveries SET status = $2, delivered_at = now(), updated_at = now() WHERE id = $1`,
		id, DeliveryDelivered)
	return err
}

// MarkFailedOrRetrying transitions a delivery after a failed attempt:
// permanently failed once attempts reaches MaxAttempts, otherwise
// retrying with next_attempt_at pushed out by the backoff schedule.
func (r *Repository) MarkFailedOrRetrying(ctx context.Context, id string, attempts int, lastErr string) error {
	if attempts >= MaxAttempts {
		_, err := r.ex.ExecContext(ctx, `UPDATE notification_deliveries SET status = $2, last_error = $3, updated_at = now() WHERE id = $1`,
			id, DeliveryFailed, lastErr)
		return err
	}
	next := time.Now().Add(NextAttemptDelay(attempts + 1))
	_, err := r.ex.ExecContext(ctx, `UPDATE notification_deliveries SET status = $2, last_error = $3, next_attempt_at = $4, updated_at = now() WHERE id = $1`,
		id, DeliveryRetrying, lastErr, next)
	return err
}

// --- Templates ---

type templateRow struct {
	ID                   string         `db:"id"`
	GroupID              sql.NullString `db:"group_id"`
	NotificationTypeCode string         `db:"notification_type_code"`
	LanguageCode         string         `db:"language_code"`
	ChannelCode          string         `db:"channel_code"`
	Subject              sql.NullString `db:"subject"`
	BodyTemplate         string         `db:"body_template"`
}

func (r templateRow) toDomain() *NotificationTemplate {
	t := &NotificationTemplate{ID: r.ID, NotificationTypeCode: r.NotificationTypeCode, LanguageCode: r.LanguageCode,
		ChannelCode: r.ChannelCode, BodyTemplate: r.BodyTemplate}
	if r.GroupID.Valid {
		t.GroupID = &r.GroupID.String
	}
	if r.Subject.Valid {
		t.Subject = &r.Subject.String
	}
	return t
}

const templateCols = `id, group_id, notification_type_code, language_code, channel_code, subject, body_template`

// FindTemplate looks up one exact (groupID, typeCode, language, channel)
// combination, or ErrNotFound.
func (r *Repository) FindTemplate(ctx context.Context, groupID *string, typeCode, language, channel string) (*NotificationTemplate, error) {
	var row templateRow
	var query string
	var args []any
	if groupID != nil {
		query = `SELECT ` + templateCols + ` FROM notification_templates
			WHERE group_id = $1 AND notification_type_code = $2 AND language_code = $3 AND channel_code = $4`
		args = []any{*groupID, typeCode, language, channel}
	} else {
		query = `SELECT ` + templateCols + ` FROM notification_templates
			WHERE group_id IS NULL AND notification_type_code = $1 AND language_code = $2 AND channel_code = $3`
		args = []any{typeCode, language, channel}
	}
	if err := r.ex.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return row.toDomain(), nil
}
