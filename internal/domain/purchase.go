package domain

import "time"

// Purchase is the customer-facing order at event scope (the "main order").
type Purchase struct {
	ID                 string
	EventID            string
	ServingPointID     string
	UserID             string
	Note               string
	OrderPlaced        time.Time
	IsPaid             bool
	Distributed        bool
	DistributedAt      time.Time
	DistributionError  string
	DistributionFailed bool
	TotalPrice         float64
	// PaymentMethod drives the peripheral cash-payment notification side
	// channel (§6.4); empty/non-"cash" values never trigger it.
	PaymentMethod string
	Version       int64
}

// PurchaseItemEntry is one element of a purchase-item document's legacy
// entries[] array (§4.2 priority-1 representation).
type PurchaseItemEntry struct {
	Quantity            float64
	SelectedExtras      []string
	ExcludedIngredients []string
}

// PurchaseItemDoc is one document in a purchase's Items sub-collection, as
// read directly from the store before normalization. It carries all three
// historical quantity representations at once; the Normalizer (§4.2)
// reduces them to canonical line items.
type PurchaseItemDoc struct {
	ItemID              string
	Quantity            float64
	Count               float64
	SelectedExtras      []string
	ExcludedIngredients []string
	Entries             []PurchaseItemEntry
	Status              string
	// Calculated marks a document that already went through normalization
	// once; re-normalizing it must be a no-op (idempotence, §4.2).
	Calculated bool
}

// CanonicalLineItem is one `count=1` line produced by the Normalizer,
// still missing catalog fields (name/price/category) until the orchestrator
// enriches it from the canonical Items collection.
type CanonicalLineItem struct {
	ItemID              string
	Name                string
	Price               float64
	Category            string
	CategoryName        string
	SelectedExtras      []string
	ExcludedIngredients []string
}
