package domain

// DistributionMode selects the policy the Distribution Scheduler runs.
type DistributionMode string

const (
	// DistributionModeBalanced assigns items to the least-loaded capable POS.
	DistributionModeBalanced DistributionMode = "balanced"
	// DistributionModeGrouped is reserved; selecting it is a failure.
	DistributionModeGrouped DistributionMode = "grouped"
)

// Event is the tenant namespace. The engine only reads it; lifecycle is
// managed externally.
type Event struct {
	ID               string
	DistributionMode DistributionMode
}

// EffectiveDistributionMode returns the event's mode, defaulting to balanced
// when unset, per spec.md §4.4.
func (e *Event) EffectiveDistributionMode() DistributionMode {
	if e == nil || e.DistributionMode == "" {
		return DistributionModeBalanced
	}
	return e.DistributionMode
}
