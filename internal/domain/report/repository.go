package report

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/kudos-hq/kudos-server/internal/platform/database"
)

var ErrNotFound = errors.New("report: not found")

type Repository struct{ ex database.Executor }

func NewRepository(ex database.Executor) *Repository { return &Repository{ex: ex} }

type requestRow struct {
	ID            string         `db:"id"`
	ReportCode    string         `db:"report_code"`
	Scope         string         `db:"scope"`
	GroupID       sql.NullString `db:"group_id"`
	SubjectUserID sql.NullString `db:"subject_user_id"`
	RequestedByID string         `db:"requested_by_id"`
	Params        string         `db:"params"`
	Status        string         `db:"status"`
	FileRef       sql.NullString `db:"file_ref"`
	ErrorMessage  sql.NullString `db:"error_message"`
	GeneratedAt   sql.NullTime   `db:"generated_at"`
	CreatedAt     time.Time      `db:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at"`
}

func (r requestRow) toDomain() *Request {
	req := &Request{ID: r.ID, ReportCode: r.ReportCode, Scope: Scope(r.Scope), RequestedByID: r.RequestedByID,
		Params: r.Params, Status: r.Status, CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt}
	if r.GroupID.Valid {
		req.GroupID = &r.GroupID.String
	}
	if r.SubjectUserID.Valid {
		req.SubjectUserID = &r.SubjectUserID.String
	}
	if r.FileRef.Valid {
		req.FileRef = &r.FileRef.String
	}
	if r.ErrorMessage.Valid {
		req.ErrorMessage = &r.ErrorMessage.String
	}
	if r.GeneratedAt.Valid {
		req.GeneratedAt = &r.GeneratedAt.Time
	}
	return req
}

const requestCols = `id, report_code, scope, group_id, subject_user_id, requested_by_id, params, status,
	file_ref, error_message, generated_at, created_at, updated_at`

func (r *Repository) Create(ctx context.Context, req *Request) (*Request, error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	var row requestRow
	query := `INSERT INTO report_requests (id, report_code, scope, group_id, subject_user_id, requested_by_id, params, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING ` + requestCols
	err := r.ex.GetContext(ctx, &row, query, req.ID, req.ReportCode, string(req.Scope), req.GroupID, req.SubjectUserID,
		req.RequestedByID, req.Params, StatusQueued)
	if err != nil {
		return nil, err
	}
	return row.toDomain(), nil
}

func (r *Repository) GetByID(ctx context.Context, id string) (*Request, error) {
	var row requestRow
	query := `SELECT ` + requestCols + ` FROM report_requests WHERE id = $1`
	if err := r.ex.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return row.toDomain(), nil
}

// ClaimQueued locks and returns up to limit queued requests, marking
// them processing in the same unit of work — the report worker's
// dequeue (spec.md §4.9), using the same FOR UPDATE SKIP LOCKED idiom
// as the task deadline sweep and notification dispatch queries.
func (r *Repository) ClaimQueued(ctx context.Context, limit int) ([]Request, error) {
	var rows []requestRow
	query := `SELECT ` + requestCols + ` FROM report_requests WHERE status = $1 ORDER BY created_at ASC LIMIT $2 FOR UPDATE SKIP LOCKED`
	if err := r.ex.SelectContext(ctx, &rows, query, StatusQueued, limit); err != nil {
		return nil, err
	}
	out := make([]Request, 0, len(rows))
	for _, row := range rows {
		if _, err := r.ex.ExecContext(ctx, `UPDATE report_requests SET status = $2, updated_at = now() WHERE id = $1`, row.ID, StatusProcessing); err != nil {
			return nil, err
		}
		row.Status = StatusProcessing
		out = append(out, *row.toDomain())
	}
	return out, nil
}

func (r *Repository) MarkCompleted(ctx context.Context, id, fileRef string) error {
	_, err := r.ex.ExecContext(ctx, `
		UPDATE report_requests SET status = $2, file_ref = $3, generated_at = now(), updated_at = now() WHERE id = $1`,
		id, StatusCompleted, fileRef)
	return err
}

func (r *Repository) MarkFailed(ctx context.Context, id, errMsg string) error {
	_, err := r.ex.ExecContext(ctx, `
		UPDATE report_requests SET status = $2, error_message = $3, updated_at = now() WHERE id = $1`,
		id, StatusFailed, errMsg)
	return err
}
