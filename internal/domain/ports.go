package domain

import "time"

// StoreGateway is the engine's sole entrypoint to the document store. Every
// other component reads and writes exclusively through it; no component
// talks to Postgres (or any other backing store) directly.
type StoreGateway interface {
	GetEvent(eventID string) (*Event, error)
	ListPOS(eventID string) ([]POS, error)
	GetPOS(eventID, posID string) (*POS, error)
	ListPOSItems(eventID, posID string) ([]POSItem, error)
	GetPOSItem(eventID, posID, itemID string) (*POSItem, error)
	SetPOSItemAvailability(eventID, posID, itemID string, available bool) error

	GetServingPoint(eventID, id string) (*ServingPoint, error)
	GetCanonicalItem(eventID, itemID string) (*Item, error)
	SetCanonicalItemAvailability(eventID, itemID string, available bool) error

	GetPurchase(eventID, purchaseID string) (*Purchase, error)
	ListPurchaseItems(eventID, purchaseID string) ([]PurchaseItemDoc, error)
	SetPurchaseItems(eventID, purchaseID string, items []PurchaseItemDoc) error
	UpsertPurchase(eventID string, purchase *Purchase) error
	PatchPurchaseDistribution(eventID, purchaseID string, result DistributionOutcome) error
	CancelPurchaseItems(eventID, purchaseID string, itemIDs []string) error
	RecomputePurchaseTotal(eventID, purchaseID string) error

	CountOpenOrders(eventID, posID string) (int, error)
	ListOpenOrders(eventID, posID string) ([]DistributedOrder, error)
	GetDistributedOrder(eventID, posID, orderID string) (*DistributedOrder, error)
	ListDistributedOrderItems(eventID, posID, orderID string) ([]DistributedOrderItem, error)
	WriteDistributedOrderBatch(eventID, posID string, batch DistributedOrderBatch) error
	UpsertDistributedOrder(eventID, posID string, order *DistributedOrder) error
	MarkDistributedOrderItemsCanceling(eventID, posID, orderID, itemID string) error
	CancelDistributedOrderItems(eventID, posID, orderID string, itemIDs []string) error
	RecomputeDistributedOrderTotal(eventID, posID, orderID string) error

	FindActiveNotification(eventID, orderID, action string) (*Notification, error)
	UpsertNotification(eventID string, n *Notification) (string, error)

	// RunMigrationTxn performs the read-merge-write-delete dance that moves a
	// single item document from a source order to a destination order under
	// one atomic round-trip. destCount is the pre-existing destination count
	// (0 if the destination item doc did not exist).
	RunMigrationTxn(eventID, srcPOSID, destPOSID, orderID string, item DistributedOrderItem, destCount int) error
}

// OutboxPublisher publishes a change-feed event to its downstream transport.
type OutboxPublisher interface {
	Publish(msg OutboxMessage) error
}

// OutboxRepository persists change-feed events for at-least-once delivery.
type OutboxRepository interface {
	Enqueue(msg OutboxMessage) (OutboxMessage, error)
	PullPending(limit int) ([]OutboxMessage, error)
	Stats() (OutboxStats, error)
	MarkSent(id string) error
	MarkFailed(id string) error
}

// IdempotencyRepository persists distributeOrder RPC idempotency state.
type IdempotencyRepository interface {
	CreateProcessing(key, requestHash string, ttlAt time.Time) (IdempotencyRecord, error)
	Get(key string) (IdempotencyRecord, error)
	MarkDone(key string, responseBody []byte, httpStatus int) error
	MarkFailed(key string, responseBody []byte, httpStatus int) error
	DeleteExpired(before time.Time, limit int) (int, error)
}

// CollectionPath identifies which change-feed topic an outbox message
// belongs to. These mirror the trigger registrations of §6.3.
type CollectionPath string

const (
	PathPurchases     CollectionPath = "purchases"
	PathPOSItems      CollectionPath = "pos-items"
	PathNotifications CollectionPath = "notifications"
	PathOrdersCreated CollectionPath = "orders-created"
)

// OutboxMessage is a queued change-feed event awaiting publication.
type OutboxMessage struct {
	ID             string
	CollectionPath CollectionPath
	EventID        string
	DocID          string
	EventType      string
	Payload        []byte
}

// OutboxStats describes the current backlog of the transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}

// DistributionOutcome records the result the Purchase Orchestrator writes
// back onto the purchase document once the scheduler has run (or failed).
type DistributionOutcome struct {
	Distributed        bool
	DistributedAt      time.Time
	DistributionError  string
	DistributionFailed bool
}
