// Package team implements Team and TeamMembership (spec.md §3): a
// named subset of a group's members, itself an assignee candidate for
// tasks. Grounded on the same persistence-gateway pattern as
// internal/domain/group, scaled down — teams have no settings row and
// no invitation flow of their own.
package team

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/kudos-hq/kudos-server/internal/errors"
	"github.com/kudos-hq/kudos-server/internal/platform/database"
)

// Team mirrors spec.md §3's Team entity.
type Team struct {
	ID            string
	GroupID       string
	Name          string
	LeaderUserID  *string
	MaxMembers    *int
	Notes         *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	IsDeleted     bool
}

// Membership mirrors spec.md §3's TeamMembership.
type Membership struct {
	UserID    string
	TeamID    string
	RoleCode  *string
	JoinedAt  time.Time
}

var ErrNotFound = errors.New("team: not found")

type Repository struct{ ex database.Executor }

func NewRepository(ex database.Executor) *Repository { return &Repository{ex: ex} }

type teamRow struct {
	ID           string         `db:"id"`
	GroupID      string         `db:"group_id"`
	Name         string         `db:"name"`
	LeaderUserID sql.NullString `db:"leader_user_id"`
	MaxMembers   sql.NullInt64  `db:"max_members"`
	Notes        sql.NullString `db:"notes"`
	CreatedAt    time.Time      `db:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at"`
	IsDeleted    bool           `db:"is_deleted"`
}

func (r teamRow) toDomain() *Team {
	t := &Team{ID: r.ID, GroupID: r.GroupID, Name: r.Name, CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt, IsDeleted: r.IsDeleted}
	if r.LeaderUserID.Valid {
		t.LeaderUserID = &r.LeaderUserID.String
	}
	if r.MaxMembers.Valid {
		n := int(r.MaxMembers.Int64)
		t.MaxMembers = &n
	}
	if r.Notes.Valid {
		t.Notes = &r.Notes.String
	}
	return t
}

const teamCols = `id, group_id, name, leader_user_id, max_members, notes, created_at, updated_at, is_deleted`

func (r *Repository) Create(ctx context.Context, t *Team) (*Team, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	var row teamRow
	query := `INSERT INTO teams (id, group_id, name, leader_user_id, max_members, notes)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING ` + teamCols
	err := r.ex.GetContext(ctx, &row, query, t.ID, t.GroupID, t.Name, t.LeaderUserID, t.MaxMembers, t.Notes)
	if err != nil {
		return nil, err
	}
	return row.toDomain(), nil
}

func (r *Repository) GetByID(ctx context.Context, id string) (*Team, error) {
	var row teamRow
	query := `SELECT ` + teamCols + ` FROM teams WHERE id = $1 AND is_deleted = false`
	if err := r.ex.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return row.toDomain(), nil
}

func (r *Repository) SetLeader(ctx context.Context, teamID string, leaderUserID *string) error {
	_, err := r.ex.ExecContext(ctx, `UPDATE teams SET leader_user_id = $2, updated_at = now() WHERE id = $1`, teamID, leaderUserID)
	return err
}

func (r *Repository) SoftDelete(ctx context.Context, id string) error {
	return database.SoftDelete(ctx, r.ex, "teams", "id", id)
}

func (r *Repository) AddMembership(ctx context.Context, userID, teamID string, roleCode *string) error {
	_, err := r.ex.ExecContext(ctx, `
		INSERT INTO team_memberships (user_id, team_id, role_code)
		VALUES ($1, $2, $3) ON CONFLICT (user_id, team_id) DO NOTHING`, userID, teamID, roleCode)
	return err
}

func (r *Repository) RemoveMembership(ctx context.Context, userID, teamID string) error {
	_, err := r.ex.ExecContext(ctx, `DELETE FROM team_memberships WHERE user_id = $1 AND team_id = $2`, userID, teamID)
	return err
}

func (r *Repository) CountMembers(ctx context.Context, teamID string) (int, error) {
	var count int
	err := r.ex.QueryRowContext(ctx, `SELECT COUNT(*) FROM team_memberships WHERE team_id = $1`, teamID).Scan(&count)
	return count, err
}

func (r *Repository) IsMember(ctx context.Context, userID, teamID string) (bool, error) {
	var count int
	err := r.ex.QueryRowContext(ctx, `SELECT COUNT(*) FROM team_memberships WHERE user_id = $1 AND team_id = $2`, userID, teamID).Scan(&count)
	return count > 0, err
}

// IsLeader implements authz.TeamLeaderProvider.
func (r *Repository) IsLeader(ctx context.Context, userID, teamID string) (bool, error) {
	t, err := r.GetByID(ctx, teamID)
	if err != nil {
		if err == ErrNotFound {
			return false, nil
		}
		return false, err
	}
	return t.LeaderUserID != nil && *t.LeaderUserID == userID, nil
}

// Service wraps the repository with the invariants spec.md §4.3 and
// §9 call for: a team cannot be left without its leader via generic
// removal, and new teams respect their max-members cap.
type Service struct {
	db *database.DB
}

func NewService(db *database.DB) *Service { return &Service{db: db} }

func (s *Service) Create(ctx context.Context, groupID, name string, leaderUserID *string, maxMembers *int) (*Team, error) {
	repo := NewRepository(s.db)
	row, err := repo.Create(ctx, &Team{GroupID: groupID, Name: name, LeaderUserID: leaderUserID, MaxMembers: maxMembers})
	if err != nil {
		return nil, apperrors.Internal("create team", err)
	}
	if leaderUserID != nil {
		if err := repo.AddMembership(ctx, *leaderUserID, row.ID, nil); err != nil {
			return nil, apperrors.Internal("add leader membership", err)
		}
	}
	return row, nil
}

// GroupIDForTeam resolves a team's owning group, letting task.Service
// verify a team assignee belongs to the same group as the task
// (spec.md §4.5) without importing this package's Repository directly.
func (s *Service) GroupIDForTeam(ctx context.Context, teamID string) (string, error) {
	t, err := NewRepository(s.db).GetByID(ctx, teamID)
	if err != nil {
		if err == ErrNotFound {
			return "", apperrors.NotFound("team")
		}
		return "", apperrors.Internal("lookup team", err)
	}
	return t.GroupID, nil
}

// AddMember enforces the team's max-members cap (if set).
func (s *Service) AddMember(ctx context.Context, userID, teamID string, roleCode *string) error {
	return s.db.WithUnitOfWork(ctx, func(ctx context.Context, uow *database.UnitOfWork) error {
		repo := NewRepository(uow)
		t, err := repo.GetByID(ctx, teamID)
		if err != nil {
			if err == ErrNotFound {
				return apperrors.NotFound("team")
			}
			return apperrors.Internal("lookup team", err)
		}
		if t.MaxMembers != nil {
			count, err := repo.CountMembers(ctx, teamID)
			if err != nil {
				return apperrors.Internal("count team members", err)
			}
			if count >= *t.MaxMembers {
				return apperrors.BusinessRule("team_full", "this team has reached its member cap", 400)
			}
		}
		return repo.AddMembership(ctx, userID, teamID, roleCode)
	})
}

// RemoveMember removes a non-leader member. Removing the leader through
// this generic path is rejected; callers must reassign or dissolve the
// team first (spec.md §4.3's "team cannot be left without its leader").
func (s *Service) RemoveMember(ctx context.Context, userID, teamID string) error {
	return s.db.WithUnitOfWork(ctx, func(ctx context.Context, uow *database.UnitOfWork) error {
		repo := NewRepository(uow)
		t, err := repo.GetByID(ctx, teamID)
		if err != nil {
			if err == ErrNotFound {
				return apperrors.NotFound("team")
			}
			return apperrors.Internal("lookup team", err)
		}
		if t.LeaderUserID != nil && *t.LeaderUserID == userID {
			return apperrors.BusinessRule("team_without_leader", "reassign or dissolve the team before removing its leader", 403)
		}
		return repo.RemoveMembership(ctx, userID, teamID)
	})
}

// ReassignLeader changes the team's leader, ensuring the new leader is
// already a member.
func (s *Service) ReassignLeader(ctx context.Context, teamID, newLeaderUserID string) error {
	return s.db.WithUnitOfWork(ctx, func(ctx context.Context, uow *database.UnitOfWork) error {
		repo := NewRepository(uow)
		isMember, err := repo.IsMember(ctx, newLeaderUserID, teamID)
		if err != nil {
			return apperrors.Internal("check membership", err)
		}
		if !isMember {
			if err := repo.AddMembership(ctx, newLeaderUserID, teamID, nil); err != nil {
				return apperrors.Internal("add new leader as member", err)
			}
		}
		return repo.SetLeader(ctx, teamID, &newLeaderUserID)
	})
}
