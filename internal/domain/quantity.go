package domain

import "math"

// floorNonNegDocLevel implements the document-level coercion rule from
// spec.md §9 ("non-finite inputs become 1 at the document level"): a
// non-finite raw value is treated as the legacy default of 1 before the
// usual floor∘max(0,_) pipeline runs.
func floorNonNegDocLevel(raw float64) int {
	if math.IsNaN(raw) || math.IsInf(raw, 0) {
		raw = 1
	}
	return floorNonNeg(raw)
}

// floorNonNegEntryLevel implements the canonical-line-item coercion rule
// ("0 inside canonical line items"): a non-finite raw value collapses to 0.
func floorNonNegEntryLevel(raw float64) int {
	if math.IsNaN(raw) || math.IsInf(raw, 0) {
		return 0
	}
	return floorNonNeg(raw)
}

func floorNonNeg(raw float64) int {
	if raw < 0 {
		return 0
	}
	v := int(math.Floor(raw))
	if v < 0 {
		return 0
	}
	return v
}

func coalesceStrings(preferred, fallback []string) []string {
	if preferred != nil {
		return preferred
	}
	if fallback != nil {
		return fallback
	}
	return []string{}
}

// NormalizeQuantity reduces one purchase-item document's three legacy
// quantity representations (scalar quantity, scalar count, entries[]) to a
// flat sequence of canonical line items, each implicitly carrying count=1,
// per the priority order in spec.md §4.2.
//
// Re-normalizing an already-canonicalized document (Calculated=true) is a
// no-op: it collapses to the single line item it already represents.
func NormalizeQuantity(doc PurchaseItemDoc) []CanonicalLineItem {
	if doc.Calculated {
		return []CanonicalLineItem{{
			ItemID:              doc.ItemID,
			SelectedExtras:      coalesceStrings(doc.SelectedExtras, nil),
			ExcludedIngredients: coalesceStrings(doc.ExcludedIngredients, nil),
		}}
	}

	var out []CanonicalLineItem
	var entrySum int

	for _, e := range doc.Entries {
		qty := floorNonNegEntryLevel(e.Quantity)
		if qty <= 0 {
			continue
		}
		entrySum += qty
		extras := coalesceStrings(e.SelectedExtras, coalesceStrings(doc.SelectedExtras, nil))
		excluded := coalesceStrings(e.ExcludedIngredients, coalesceStrings(doc.ExcludedIngredients, nil))
		for i := 0; i < qty; i++ {
			out = append(out, CanonicalLineItem{
				ItemID:              doc.ItemID,
				SelectedExtras:      extras,
				ExcludedIngredients: excluded,
			})
		}
	}

	docQty := floorNonNegDocLevel(firstNonZero(doc.Quantity, doc.Count))
	if docQty == 0 && len(doc.Entries) == 0 {
		docQty = 1
	}

	remaining := docQty - entrySum
	if remaining < 0 {
		remaining = 0
	}
	extras := coalesceStrings(doc.SelectedExtras, nil)
	excluded := coalesceStrings(doc.ExcludedIngredients, nil)
	for i := 0; i < remaining; i++ {
		out = append(out, CanonicalLineItem{
			ItemID:              doc.ItemID,
			SelectedExtras:      extras,
			ExcludedIngredients: excluded,
		})
	}

	return out
}

// firstNonZero mirrors the `doc.quantity ?? doc.count ?? 0` nullish chain:
// since our PurchaseItemDoc stores both as plain float64 rather than
// optional values, a zero quantity falls through to count.
func firstNonZero(quantity, count float64) float64 {
	if quantity != 0 {
		return quantity
	}
	return count
}
