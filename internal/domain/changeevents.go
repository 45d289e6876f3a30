package domain

// The four structs below are the typed payload of one OutboxMessage per
// trigger registration (§6.3). They stand in for the before/after document
// snapshot a Firestore-class change feed would hand a trigger directly; here
// the Store Gateway captures the snapshot at write time and the outbox
// carries it to whichever consumer group subscribes to that collection
// path, exactly the shape spec.md's trigger contracts assume.

// PurchaseChangeEvent is the payload behind onPurchaseWrite.
type PurchaseChangeEvent struct {
	EventID string    `json:"event_id"`
	Before  *Purchase `json:"before,omitempty"`
	After   *Purchase `json:"after,omitempty"`
}

// POSItemChangeEvent is the payload behind onPosItemUpdate.
type POSItemChangeEvent struct {
	EventID         string `json:"event_id"`
	POSID           string `json:"pos_id"`
	ItemID          string `json:"item_id"`
	BeforeAvailable *bool  `json:"before_available,omitempty"`
	AfterAvailable  *bool  `json:"after_available,omitempty"`
}

// NotificationChangeEvent is the payload behind onNotificationUpdate.
type NotificationChangeEvent struct {
	EventID string        `json:"event_id"`
	Before  *Notification `json:"before,omitempty"`
	After   *Notification `json:"after,omitempty"`
}

// OrderCreatedEvent is the payload behind onOrderCreate (the cash-payment
// notification side channel, §6.4 of SPEC_FULL.md).
type OrderCreatedEvent struct {
	EventID  string    `json:"event_id"`
	Purchase *Purchase `json:"purchase,omitempty"`
}
