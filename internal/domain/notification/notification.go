// Package notification implements the notification queue (spec.md
// §4.8): Notification/NotificationDelivery/NotificationTemplate
// persistence, template lookup precedence, and the delivery status
// machine's backoff schedule. Actual transport (sending an email, a
// push, a Telegram message) is an external collaborator per spec.md §1;
// this package only decides what to send, to whom, in which language,
// and when to retry.
package notification

import "time"

// Notification is one logical event to deliver (spec.md §3).
type Notification struct {
	ID                   string
	GroupID              string
	UserID               string
	NotificationTypeCode string
	Payload              string // opaque JSON
	IsRead               bool
	ReadAt               *time.Time
	CreatedAt            time.Time
}

// Delivery status codes (spec.md §4.8's state machine).
const (
	DeliveryPending    = "pending"
	DeliveryProcessing = "processing"
	DeliverySent       = "sent"
	DeliveryDelivered  = "delivered"
	DeliveryFailed     = "failed"
	DeliveryRetrying   = "retrying"
)

// Backoff parameters (spec.md §4.8): base 30s, doubling, capped at 1h,
// abandoned after 6 attempts.
const (
	BackoffBase    = 30 * time.Second
	BackoffCap     = time.Hour
	MaxAttempts    = 6
)

// NotificationDelivery is one channel's delivery attempt record for a
// Notification.
type NotificationDelivery struct {
	ID             string
	NotificationID string
	ChannelCode    string
	Status         string
	Attempts       int
	NextAttemptAt  *time.Time
	LastError      *string
	SentAt         *time.Time
	DeliveredAt    *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NotificationTemplate mirrors spec.md §3's NotificationTemplate.
// GroupID nil means a global (fallback) template.
type NotificationTemplate struct {
	ID                   string
	GroupID              *string
	NotificationTypeCode string
	LanguageCode         string
	ChannelCode          string
	Subject              *string
	BodyTemplate         string
}

// DefaultLanguage is the fallback language when a caller's preferred
// language has no template — spec.md §6 names Ukrainian as the
// platform default, English as the documented alternate.
const DefaultLanguage = "uk"

// NextAttemptDelay returns the backoff delay before attempt number
// attemptNumber (1-indexed) is retried: BackoffBase * 2^(n-1), capped
// at BackoffCap.
func NextAttemptDelay(attemptNumber int) time.Duration {
	if attemptNumber < 1 {
		attemptNumber = 1
	}
	delay := BackoffBase
	for i := 1; i < attemptNumber; i++ {
		delay *= 2
		if delay >= BackoffCap {
			return BackoffCap
		}
	}
	return delay
}
