package kafka

import "time"

// EventType определяет тип события изменения документа.
type EventType string

const (
	EventTypePurchaseCreated            EventType = "purchase.created"
	EventTypePurchaseUpdated            EventType = "purchase.updated"
	EventTypePurchaseDistributed        EventType = "purchase.distributed"
	EventTypePurchaseDistributionFailed EventType = "purchase.distribution_failed"

	EventTypePOSItemAvailabilityChanged EventType = "pos_item.availability_changed"

	EventTypeDistributedOrderCreated        EventType = "order.created"
	EventTypeDistributedOrderItemsCanceling EventType = "order.items_canceling"
	EventTypeDistributedOrderItemsCanceled  EventType = "order.items_canceled"

	EventTypeNotificationCreated  EventType = "notification.created"
	EventTypeNotificationResolved EventType = "notification.resolved"
)

// Topics для Kafka. Each mirrors one watched collection path plus a DLQ.
const (
	TopicPurchasesChanged     = "distribution.purchases.changed"
	TopicPOSItemsChanged      = "distribution.pos-items.changed"
	TopicNotificationsChanged = "distribution.notifications.changed"
	TopicOrdersCreated        = "distribution.orders.created"
	TopicDeadLetterQueue      = "distribution.dlq"
)

// Kafka headers для retry логики
const (
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
)

// ChangeEvent представляет событие изменения документа в одной из
// отслеживаемых коллекций (purchases, pos items, orders, notifications).
type ChangeEvent struct {
	EventType      EventType              `json:"event_type"`
	CollectionPath string                 `json:"collection_path"`
	DocID          string                 `json:"doc_id"`
	Timestamp      time.Time              `json:"timestamp"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}

// NewChangeEvent создаёт новое событие изменения документа.
func NewChangeEvent(eventType EventType, collectionPath, docID string, metadata map[string]interface{}) *ChangeEvent {
	return &ChangeEvent{
		EventType:      eventType,
		CollectionPath: collectionPath,
		DocID:          docID,
		Timestamp:      time.Now(),
		Metadata:       metadata,
	}
}
