package domain

// POS is a producer endpoint capable of fulfilling a subset of an event's
// canonical items.
type POS struct {
	ID          string
	Name        string
	Description string
	Location    string
}

// CandidatePOS annotates a POS with its current open-order count, used by
// the Distribution Scheduler's least-loaded selection (§4.3) and the
// Availability Reconciler's substitute-store search (§4.5 Case B).
type CandidatePOS struct {
	POS        POS
	OpenOrders int
	// Index preserves enumeration order for deterministic tie-breaks.
	Index int
}
