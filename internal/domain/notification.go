package domain

import "time"

// NotificationSeverity categorizes a notification for UI styling.
type NotificationSeverity string

const (
	SeverityInfo  NotificationSeverity = "info"
	SeverityError NotificationSeverity = "error"
)

// NotificationAction identifies why a notification was raised.
type NotificationAction string

const (
	ActionRefund      NotificationAction = "refund"
	ActionCashPayment NotificationAction = "cash_payment"
)

// NotificationStatus is the notification's lifecycle. The Refund Propagator
// is triggered specifically by the transition into StatusRefund.
type NotificationStatus string

const (
	StatusCreated    NotificationStatus = "created"
	StatusInProgress NotificationStatus = "in_progress"
	StatusResolved   NotificationStatus = "resolved"
	// StatusRefund is not itself an at-rest status held long-term; it's the
	// transition value the UI writes to trigger refund propagation (§4.6).
	StatusRefund NotificationStatus = "refund"
)

// Notification is a per-event document deduplicated by (orderId, action,
// status ∈ {created, in_progress}) when orderId is present (invariant I5).
type Notification struct {
	ID             string
	EventID        string
	Title          string
	Message        string
	PointOfService string
	Price          float64
	ItemIDs        []string
	OrderID        string
	PaymentMethod  string
	Severity       NotificationSeverity
	Action         NotificationAction
	Status         NotificationStatus
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// dedupableStatuses lists the statuses under which a notification is
// considered "still open" for dedup matching purposes (§4.7).
var dedupableStatuses = map[NotificationStatus]bool{
	StatusCreated:    true,
	StatusInProgress: true,
}

// IsDedupable reports whether the status participates in (orderId, action)
// deduplication.
func (s NotificationStatus) IsDedupable() bool {
	return dedupableStatuses[s]
}
