package report

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kudos-hq/kudos-server/internal/domain/authz"
	apperrors "github.com/kudos-hq/kudos-server/internal/errors"
	"github.com/kudos-hq/kudos-server/internal/platform/database"
)

// Service owns report request submission and the worker-facing
// lifecycle transitions (spec.md §4.9).
type Service struct {
	db    *database.DB
	authz *authz.Resolver
}

func NewService(db *database.DB, resolver *authz.Resolver) *Service {
	return &Service{db: db, authz: resolver}
}

// Submit validates the report code, its required parameters, and the
// caller's right to request it, then stores the request as queued.
// Group-scoped reports require group-admin or superadmin; personal
// reports require the caller to be the report's own subject.
func (s *Service) Submit(ctx context.Context, actor authz.Actor, code string, groupID, subjectUserID *string, params map[string]any) (*Request, error) {
	scope, ok := scopeForCode[code]
	if !ok {
		return nil, apperrors.Validation("report_code", fmt.Sprintf("unknown report code %q", code))
	}
	for _, key := range requiredParams[code] {
		if _, present := params[key]; !present {
			return nil, apperrors.MissingParameter(key)
		}
	}

	req := &Request{ReportCode: code, Scope: scope, RequestedByID: actor.UserID}
	switch scope {
	case ScopeGroup:
		if groupID == nil {
			return nil, apperrors.Validation("group_id", "group-scoped reports require a group_id")
		}
		if err := s.authz.Allow(ctx, authz.Request{Actor: actor, Scope: authz.ScopeGroupAdmin, GroupID: groupID}); err != nil {
			return nil, err
		}
		req.GroupID = groupID
	case ScopePersonal:
		if subjectUserID == nil {
			return nil, apperrors.Validation("subject_user_id", "personal reports require a subject_user_id")
		}
		if err := s.authz.Allow(ctx, authz.Request{Actor: actor, Scope: authz.ScopeSelf, OwnerUserID: subjectUserID}); err != nil {
			return nil, err
		}
		req.SubjectUserID = subjectUserID
	}

	encoded, err := json.Marshal(params)
	if err != nil {
		return nil, apperrors.Internal("marshal report params", err)
	}
	req.Params = string(encoded)

	repo := NewRepository(s.db)
	created, err := repo.Create(ctx, req)
	if err != nil {
		return nil, apperrors.Internal("insert report request", err)
	}
	return created, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (*Request, error) {
	return NewRepository(s.db).GetByID(ctx, id)
}

// ClaimQueued hands the dispatch worker its next batch of queued
// requests, already transitioned to processing.
func (s *Service) ClaimQueued(ctx context.Context, limit int) ([]Request, error) {
	var out []Request
	err := s.db.WithUnitOfWork(ctx, func(ctx context.Context, uow *database.UnitOfWork) error {
		rows, err := NewRepository(uow).ClaimQueued(ctx, limit)
		if err != nil {
			return apperrors.Internal("claim queued reports", err)
		}
		out = rows
		return nil
	})
	return out, err
}

// Complete records a successfully generated report file.
func (s *Service) Complete(ctx context.Context, id, fileRef string) error {
	if err := NewRepository(s.db).MarkCompleted(ctx, id, fileRef); err != nil {
		return apperrors.Internal("mark report completed", err)
	}
	return nil
}

// Fail records a worker failure against the request.
func (s *Service) Fail(ctx context.Context, id, errMsg string) error {
	if err := NewRepository(s.db).MarkFailed(ctx, id, errMsg); err != nil {
		return apperrors.Internal("mark report failed", err)
	}
	return nil
}
