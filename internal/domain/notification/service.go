package notification

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	apperrors "github.com/kudos-hq/kudos-server/internal/errors"
	"github.com/kudos-hq/kudos-server/internal/platform/database"
)

// Service implements spec.md §4.8: enqueue, template resolution, and the
// delivery status machine's transitions. Sending itself belongs to an
// external dispatcher that calls ClaimDue/MarkSent/MarkDelivered/
// RecordFailure in a loop.
type Service struct {
	db       *database.DB
	channels []string
}

// NewService builds a notification service. defaultChannels is the
// channel set a new Notification fans out a NotificationDelivery row to
// when the caller doesn't specify one explicitly — in_app at minimum,
// per spec.md §6's channel list.
func NewService(db *database.DB, defaultChannels []string) *Service {
	if len(defaultChannels) == 0 {
		defaultChannels = []string{"IN_APP"}
	}
	return &Service{db: db, channels: defaultChannels}
}

// Enqueue implements the Notifier contract internal/domain/task and
// other domain services call against: create one Notification plus one
// NotificationDelivery per configured channel, atomically.
func (s *Service) Enqueue(ctx context.Context, notificationTypeCode, groupID, userID string, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return apperrors.Internal("marshal notification payload", err)
	}

	return s.db.WithUnitOfWork(ctx, func(ctx context.Context, uow *database.UnitOfWork) error {
		repo := NewRepository(uow)
		n, err := repo.InsertNotification(ctx, &Notification{GroupID: groupID, UserID: userID, NotificationTypeCode: notificationTypeCode, Payload: string(body)})
		if err != nil {
			return apperrors.Internal("insert notification", err)
		}
		for _, channel := range s.channels {
			if _, err := repo.InsertDelivery(ctx, n.ID, channel); err != nil {
				return apperrors.Internal("insert notification delivery", err)
			}
		}
		return nil
	})
}

// MarkAsRead implements spec.md §8's idempotence law: marking an
// already-read notification succeeds with no further state change.
// Ownership is enforced by the caller (the HTTP handler checks the
// actor owns the notification before calling this).
func (s *Service) MarkAsRead(ctx context.Context, notificationID string) error {
	repo := NewRepository(s.db)
	if _, err := repo.GetNotification(ctx, notificationID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return apperrors.NotFound("notification")
		}
		return apperrors.Internal("load notification", err)
	}
	if err := repo.MarkAsRead(ctx, notificationID); err != nil {
		return apperrors.Internal("mark notification read", err)
	}
	return nil
}

// Get loads a single notification, used by handlers to check ownership
// before allowing a mutation like MarkAsRead.
func (s *Service) Get(ctx context.Context, notificationID string) (*Notification, error) {
	n, err := NewRepository(s.db).GetNotification(ctx, notificationID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apperrors.NotFound("notification")
		}
		return nil, apperrors.Internal("load notification", err)
	}
	return n, nil
}

// ResolveTemplate applies spec.md §4.8's lookup precedence:
// group-specific+exact-language, group-specific+default-language,
// global+exact-language, global+default-language.
func (s *Service) ResolveTemplate(ctx context.Context, groupID *string, typeCode, language, channel string) (*NotificationTemplate, error) {
	repo := NewRepository(s.db)

	if groupID != nil {
		if t, err := repo.FindTemplate(ctx, groupID, typeCode, language, channel); err == nil {
			return t, nil
		} else if !errors.Is(err, ErrNotFound) {
			return nil, apperrors.Internal("lookup group template", err)
		}
		if language != DefaultLanguage {
			if t, err := repo.FindTemplate(ctx, groupID, typeCode, DefaultLanguage, channel); err == nil {
				return t, nil
			} else if !errors.Is(err, ErrNotFound) {
				return nil, apperrors.Internal("lookup group default-language template", err)
			}
		}
	}

	if t, err := repo.FindTemplate(ctx, nil, typeCode, language, channel); err == nil {
		return t, nil
	} else if !errors.Is(err, ErrNotFound) {
		return nil, apperrors.Internal("lookup global template", err)
	}

	if language != DefaultLanguage {
		t, err := repo.FindTemplate(ctx, nil, typeCode, DefaultLanguage, channel)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil, apperrors.NotFound("notification template")
			}
			return nil, apperrors.Internal("lookup global default-language template", err)
		}
		return t, nil
	}
	return nil, apperrors.NotFound("notification template")
}

// ClaimDue locks and returns deliveries ready to send — the scheduler's
// dispatch worker polls this (spec.md §4.10).
func (s *Service) ClaimDue(ctx context.Context, limit int) ([]NotificationDelivery, error) {
	repo := NewRepository(s.db)
	return repo.DueDeliveries(ctx, time.Now(), limit)
}

// MarkProcessing, MarkSent, MarkDelivered, and RecordFailure expose the
// delivery state machine to the external dispatcher without it needing
// its own Repository handle.

func (s *Service) MarkProcessing(ctx context.Context, deliveryID string) error {
	return NewRepository(s.db).MarkProcessing(ctx, deliveryID)
}

func (s *Service) MarkSent(ctx context.Context, deliveryID string) error {
	return NewRepository(s.db).MarkSent(ctx, deliveryID)
}

func (s *Service) MarkDelivered(ctx context.Context, deliveryID string) error {
	return NewRepository(s.db).MarkDelivered(ctx, deliveryID)
}

func (s *Service) RecordFailure(ctx context.Context, deliveryID string, attemptsSoFar int, lastErr error) error {
	return NewRepository(s.db).MarkFailedOrRetrying(ctx, deliveryID, attemptsSoFar, lastErr.Error())
}
