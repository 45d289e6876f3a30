// Package distribution implements the least-loaded Distribution Scheduler
// (spec §4.3): given a purchase's canonical line items, a serving point and
// a set of candidate POS, it assigns every item to the POS carrying it with
// the fewest open orders and materializes one distributed-order batch per
// POS that ends up with at least one item.
package distribution

import (
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/pos-distribution/engine/internal/domain"
)

// Request is the scheduler's input: a purchase's canonical line items
// (already normalized and catalog-enriched by the caller, per §4.2/§4.4),
// the serving point it was placed at, and the distribution mode to run.
type Request struct {
	EventID        string
	PurchaseID     string
	Items          []domain.CanonicalLineItem
	ServingPoint   domain.ServingPoint
	Mode           domain.DistributionMode
	Note           string
}

// Scheduler runs the balanced-mode least-loaded assignment algorithm.
type Scheduler struct {
	store  domain.StoreGateway
	logger *log.Entry
}

// NewScheduler constructs a Scheduler bound to a Store Gateway.
func NewScheduler(store domain.StoreGateway, logger *log.Entry) *Scheduler {
	if logger == nil {
		logger = log.New().WithField("component", "distribution-scheduler")
	}
	return &Scheduler{store: store, logger: logger}
}

// Distribute runs the algorithm of spec §4.3 and materializes the resulting
// sub-orders. It never retries a failed batched write; callers decide how
// to record the failure (the Purchase Orchestrator persists it onto the
// purchase document, §4.4).
func (s *Scheduler) Distribute(req Request) (domain.DistributionResult, error) {
	if req.EventID == "" || req.PurchaseID == "" {
		return domain.DistributionResult{}, domain.ErrMissingRequiredFields
	}
	if req.Mode == domain.DistributionModeGrouped {
		return domain.DistributionResult{}, domain.ErrUnsupportedDistributionMode
	}

	pos, err := s.store.ListPOS(req.EventID)
	if err != nil {
		return domain.DistributionResult{}, fmt.Errorf("list pos: %w", err)
	}
	if len(pos) == 0 {
		return domain.DistributionResult{Success: false, PurchaseID: req.PurchaseID, Error: domain.ErrNoPointsOfSale.Error()}, nil
	}

	// availableItems(p): POS-local availableItems snapshot, loaded once per
	// POS and reused as the A(x) membership test for every line item.
	availableItems := make(map[string]map[string]domain.POSItem, len(pos))
	for _, p := range pos {
		items, err := s.store.ListPOSItems(req.EventID, p.ID)
		if err != nil {
			return domain.DistributionResult{}, fmt.Errorf("list pos items for %s: %w", p.ID, err)
		}
		byID := make(map[string]domain.POSItem, len(items))
		for _, it := range items {
			byID[it.ID] = it
		}
		availableItems[p.ID] = byID
	}

	// Open-order counts are memoized within this call only (§4.3 step 2):
	// read once per POS from the store, never re-read as buckets fill up
	// (this is what makes S1's "second x also picks B" behavior correct).
	openCounts := make(map[string]int, len(pos))
	for _, p := range pos {
		count, err := s.store.CountOpenOrders(req.EventID, p.ID)
		if err != nil {
			return domain.DistributionResult{}, fmt.Errorf("count open orders for %s: %w", p.ID, err)
		}
		openCounts[p.ID] = count
	}

	buckets := make(map[string][]domain.CanonicalLineItem)
	for _, item := range req.Items {
		candidates := candidatesFor(pos, availableItems, item.ItemID)
		if len(candidates) == 0 {
			s.logger.WithFields(log.Fields{
				"event_id":    req.EventID,
				"purchase_id": req.PurchaseID,
				"item_id":     item.ItemID,
			}).Warn("item not offered at any point of sale, dropping")
			continue
		}

		best := candidates[0]
		for _, c := range candidates[1:] {
			if openCounts[c.ID] < openCounts[best.ID] {
				best = c
			}
		}
		buckets[best.ID] = append(buckets[best.ID], enrich(item, availableItems[best.ID][item.ItemID]))
	}

	summaries := make([]domain.DistributedPurchaseSummary, 0, len(buckets))
	posByID := make(map[string]domain.POS, len(pos))
	for _, p := range pos {
		posByID[p.ID] = p
	}

	for _, p := range pos {
		bucket, ok := buckets[p.ID]
		if !ok || len(bucket) == 0 {
			continue
		}

		grouped := groupItems(bucket)
		batch := domain.DistributedOrderBatch{
			Order: &domain.DistributedOrder{
				ID:                   req.PurchaseID,
				EventID:              req.EventID,
				POSID:                p.ID,
				OrderStatus:          domain.DistributedOrderOpen,
				OrderDate:            time.Now().UTC(),
				ServingPointName:     req.ServingPoint.Name,
				ServingPointLocation: req.ServingPoint.Location,
				Note:                 req.Note,
			},
			Items: grouped,
		}
		if err := s.store.WriteDistributedOrderBatch(req.EventID, p.ID, batch); err != nil {
			return domain.DistributionResult{}, fmt.Errorf("write distributed order batch for pos %s: %w", p.ID, err)
		}

		summaries = append(summaries, domain.DistributedPurchaseSummary{
			POSID:      p.ID,
			POSName:    posByID[p.ID].Name,
			OrderID:    req.PurchaseID,
			ItemsCount: len(bucket),
		})
	}

	return domain.DistributionResult{
		Success:              true,
		PurchaseID:           req.PurchaseID,
		DistributedPurchases: summaries,
	}, nil
}

// candidatesFor returns A(x): the POS carrying itemID, in the enumeration
// order of pos (§4.3 step 1, tie-break rule of §8 P3).
func candidatesFor(pos []domain.POS, availableItems map[string]map[string]domain.POSItem, itemID string) []domain.POS {
	var out []domain.POS
	for _, p := range pos {
		if _, ok := availableItems[p.ID][itemID]; ok {
			out = append(out, p)
		}
	}
	return out
}

// enrich copies catalog fields (name/price/category) from the POS-local
// available-item snapshot onto the canonical line item, since the purchase
// document alone may not carry them (§4.4 enrichment step happens upstream
// for the canonical Items collection; this fills in whatever the POS
// snapshot additionally knows, e.g. POS-local pricing overrides).
func enrich(item domain.CanonicalLineItem, posItem domain.POSItem) domain.CanonicalLineItem {
	if item.Name == "" {
		item.Name = posItem.Name
	}
	if item.Price == 0 {
		item.Price = posItem.Price
	}
	if item.Category == "" {
		item.Category = posItem.Category
	}
	if item.CategoryName == "" {
		item.CategoryName = posItem.CategoryName
	}
	return item
}

// groupItems groups canonical line items by GroupKey(itemId, extras,
// excluded) and sums their counts (§4.3, invariant I3/P2). Grouping
// preserves the first-seen order of each group key so materialization is
// deterministic for identical input.
func groupItems(items []domain.CanonicalLineItem) []domain.DistributedOrderItem {
	order := make([]string, 0, len(items))
	byKey := make(map[string]domain.DistributedOrderItem, len(items))

	for _, item := range items {
		key := domain.GroupKey(item.ItemID, item.SelectedExtras, item.ExcludedIngredients)
		existing, ok := byKey[key]
		if !ok {
			byKey[key] = domain.DistributedOrderItem{
				Key:                 key,
				ItemID:              item.ItemID,
				Name:                item.Name,
				Price:               item.Price,
				Count:               1,
				Category:            item.Category,
				CategoryName:        item.CategoryName,
				SelectedExtras:      item.SelectedExtras,
				ExcludedIngredients: item.ExcludedIngredients,
				Status:              domain.DistributedItemActive,
			}
			order = append(order, key)
			continue
		}
		existing.Count++
		byKey[key] = existing
	}

	out := make([]domain.DistributedOrderItem, 0, len(order))
	for _, key := range order {
		out = append(out, byKey[key])
	}
	return out
}
