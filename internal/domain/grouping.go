package domain

import "strings"

// GroupKey computes the distributed-order-item document key
// "{itemId}_{extras-csv}_{excluded-csv}" per spec.md §4.3/§3, with extras
// and excluded ingredients serialized in their given (insertion) order,
// comma-joined — never alphabetically re-sorted, so that two callers who
// select the same extras in the same order land in the same bucket while a
// different selection order is still distinguishable input (callers are
// expected to have already normalized ordering upstream; the engine does
// not second-guess it).
func GroupKey(itemID string, extras, excluded []string) string {
	return itemID + "_" + csv(extras) + "_" + csv(excluded)
}

func csv(values []string) string {
	return strings.Join(values, ",")
}
