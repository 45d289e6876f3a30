// Package reconciler implements the Availability Reconciler (spec §4.5):
// reacting to a POS-local item availability change, it reconciles the
// canonical availability flag across all POS, and on a deactivation either
// migrates the item's open orders to a substitute POS or cancels them with a
// refund notification when no substitute exists.
package reconciler

import (
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/pos-distribution/engine/internal/domain"
	"github.com/pos-distribution/engine/internal/service/notification"
)

// Reconciler reacts to onPosItemUpdate change events.
type Reconciler struct {
	store    domain.StoreGateway
	notifier *notification.Service
	logger   *log.Entry

	// availability is a process-local, best-effort, per-call read-through
	// cache (§5 Shared resource policy): it is consulted only inside one
	// HandlePOSItemUpdate call and never substitutes for a transactional
	// read during migration.
	availability map[string]bool
}

// New constructs an Availability Reconciler.
func New(store domain.StoreGateway, notifier *notification.Service, logger *log.Entry) *Reconciler {
	if logger == nil {
		logger = log.New().WithField("component", "availability-reconciler")
	}
	return &Reconciler{store: store, notifier: notifier, logger: logger}
}

// HandlePOSItemUpdate applies §4.5's Case A/Case B decision tree for one
// (posId, itemId) availability transition.
func (r *Reconciler) HandlePOSItemUpdate(evt domain.POSItemChangeEvent) error {
	r.availability = make(map[string]bool)

	before := domain.IsAvailableOrDefault(evt.BeforeAvailable)
	after := domain.IsAvailableOrDefault(evt.AfterAvailable)
	if before == after {
		return nil
	}

	log := r.logger.WithFields(log.Fields{
		"event_id": evt.EventID,
		"pos_id":   evt.POSID,
		"item_id":  evt.ItemID,
	})

	if after {
		if err := r.store.SetCanonicalItemAvailability(evt.EventID, evt.ItemID, true); err != nil {
			return err
		}
		return r.syncGlobalAvailability(evt.EventID, evt.ItemID)
	}

	log.Info("item deactivated, searching for substitute pos")

	candidate, err := r.findSubstitute(evt.EventID, evt.POSID, evt.ItemID)
	if err != nil {
		return err
	}

	if candidate == nil {
		return r.deactivateWithoutSubstitute(evt.EventID, evt.POSID, evt.ItemID)
	}
	return r.migrateToSubstitute(evt.EventID, evt.POSID, candidate.ID, evt.ItemID)
}

// findSubstitute returns the first (lowest open-order count, enumeration
// order tie-break) POS other than p that still carries item i available,
// or nil if none exists (§4.5 Case B).
func (r *Reconciler) findSubstitute(eventID, excludePOSID, itemID string) (*domain.POS, error) {
	pos, err := r.store.ListPOS(eventID)
	if err != nil {
		return nil, fmt.Errorf("list pos: %w", err)
	}

	var candidates []domain.CandidatePOS
	for idx, p := range pos {
		if p.ID == excludePOSID {
			continue
		}
		item, err := r.store.GetPOSItem(eventID, p.ID, itemID)
		if err != nil {
			if domain.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		if item.SoldOut || !item.IsAvailable {
			continue
		}
		count, err := r.store.CountOpenOrders(eventID, p.ID)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, domain.CandidatePOS{POS: p, OpenOrders: count, Index: idx})
	}

	if len(candidates) == 0 {
		return nil, nil
	}
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.OpenOrders < best.OpenOrders || (c.OpenOrders == best.OpenOrders && c.Index < best.Index) {
			best = c
		}
	}
	return &best.POS, nil
}

// syncGlobalAvailability implements §4.5.1.
func (r *Reconciler) syncGlobalAvailability(eventID, itemID string) error {
	pos, err := r.store.ListPOS(eventID)
	if err != nil {
		return fmt.Errorf("list pos: %w", err)
	}
	available := false
	for _, p := range pos {
		item, err := r.store.GetPOSItem(eventID, p.ID, itemID)
		if err != nil {
			if domain.IsNotFound(err) {
				continue
			}
			return err
		}
		if item.IsAvailable {
			available = true
			break
		}
	}
	r.availability[itemID] = available
	return r.store.SetCanonicalItemAvailability(eventID, itemID, available)
}

// deactivateWithoutSubstitute implements §4.5 Case B's no-candidate branch:
// the canonical flag goes false, every open order at p gets a refund
// notification, matching line items are marked for canceling, and the
// global flag is resynced.
func (r *Reconciler) deactivateWithoutSubstitute(eventID, posID, itemID string) error {
	// The triggering item is forced false in the per-call cache even before
	// the canonical write lands, per §4.5.2's "forcibly treating the
	// triggering i as false even before write-visibility".
	r.availability[itemID] = false

	if err := r.store.SetCanonicalItemAvailability(eventID, itemID, false); err != nil {
		return err
	}

	orders, err := r.store.ListOpenOrders(eventID, posID)
	if err != nil {
		return fmt.Errorf("list open orders: %w", err)
	}

	for _, order := range orders {
		if err := r.emitRefundNotification(eventID, posID, order); err != nil {
			return err
		}
		if err := r.store.MarkDistributedOrderItemsCanceling(eventID, posID, order.ID, itemID); err != nil {
			return err
		}
	}

	return r.syncGlobalAvailability(eventID, itemID)
}

// emitRefundNotification implements §4.5.2.
func (r *Reconciler) emitRefundNotification(eventID, posID string, order domain.DistributedOrder) error {
	items, err := r.store.ListDistributedOrderItems(eventID, posID, order.ID)
	if err != nil {
		return err
	}

	var refund float64
	var itemIDs []string
	for _, item := range items {
		if item.Status == domain.DistributedItemCanceled {
			continue
		}
		if r.isGloballyAvailable(eventID, item.ItemID) {
			continue
		}
		refund += item.Price * float64(item.Count)
		itemIDs = append(itemIDs, item.ItemID)
	}

	if len(itemIDs) == 0 || refund <= 0 {
		return nil
	}

	_, err = r.notifier.CreateNotification(eventID, domain.Notification{
		Title:          "Artikel ist/sind ausverkauft",
		Message:        "Unten stehenden Betrag erstatten und bestätigen",
		PointOfService: posID,
		Price:          refund,
		ItemIDs:        itemIDs,
		OrderID:        order.ID,
		Severity:       domain.SeverityError,
		Action:         domain.ActionRefund,
		Status:         domain.StatusCreated,
	})
	return err
}

// isGloballyAvailable consults the per-call cache, falling back to a fresh
// canonical read and memoizing it.
func (r *Reconciler) isGloballyAvailable(eventID, itemID string) bool {
	if v, ok := r.availability[itemID]; ok {
		return v
	}
	item, err := r.store.GetCanonicalItem(eventID, itemID)
	if err != nil {
		// Unknown item: treat as unavailable so it triggers a refund rather
		// than silently vanishing from totals.
		r.availability[itemID] = false
		return false
	}
	r.availability[itemID] = item.IsAvailable
	return item.IsAvailable
}

// migrateToSubstitute implements §4.5 Case B's candidate branch: the
// canonical flag is kept true and every open order at p carrying a
// transferable item is migrated to q (§4.5.3).
func (r *Reconciler) migrateToSubstitute(eventID, posID, destPOSID, itemID string) error {
	orders, err := r.store.ListOpenOrders(eventID, posID)
	if err != nil {
		return fmt.Errorf("list open orders: %w", err)
	}

	for _, order := range orders {
		if err := r.migrateOrder(eventID, posID, destPOSID, itemID, order); err != nil {
			return err
		}
	}

	return r.syncGlobalAvailability(eventID, itemID)
}

// migrateOrder implements the per-order body of §4.5.3.
func (r *Reconciler) migrateOrder(eventID, posID, destPOSID, triggerItemID string, order domain.DistributedOrder) error {
	items, err := r.store.ListDistributedOrderItems(eventID, posID, order.ID)
	if err != nil {
		return err
	}

	var transferable []domain.DistributedOrderItem
	for _, item := range items {
		if item.Status == domain.DistributedItemCanceled {
			continue
		}
		if item.ItemID == triggerItemID || r.isGloballyAvailable(eventID, item.ItemID) {
			transferable = append(transferable, item)
		}
	}
	if len(transferable) == 0 {
		return nil
	}

	if err := r.ensureDestinationOrder(eventID, destPOSID, order); err != nil {
		return err
	}

	destItems, err := r.store.ListDistributedOrderItems(eventID, destPOSID, order.ID)
	if err != nil {
		return err
	}
	destCounts := make(map[string]int, len(destItems))
	for _, item := range destItems {
		destCounts[item.Key] = item.Count
	}

	for _, item := range transferable {
		if err := r.store.RunMigrationTxn(eventID, posID, destPOSID, order.ID, item, destCounts[item.Key]); err != nil {
			return err
		}
	}

	remaining, err := r.store.ListDistributedOrderItems(eventID, posID, order.ID)
	if err != nil {
		return err
	}
	nonCanceled := 0
	for _, item := range remaining {
		if item.Status != domain.DistributedItemCanceled {
			nonCanceled++
		}
	}
	if nonCanceled == 0 {
		src, err := r.store.GetDistributedOrder(eventID, posID, order.ID)
		if err != nil {
			return err
		}
		src.OrderStatus = domain.DistributedOrderTransferred
		return r.store.UpsertDistributedOrder(eventID, posID, src)
	}
	return nil
}

// ensureDestinationOrder creates or reopens the destination order document
// under the same id as the source, per §4.5.3.
func (r *Reconciler) ensureDestinationOrder(eventID, destPOSID string, src domain.DistributedOrder) error {
	dest, err := r.store.GetDistributedOrder(eventID, destPOSID, src.ID)
	if err != nil {
		if !domain.IsNotFound(err) {
			return err
		}
		dest = &domain.DistributedOrder{
			ID:                   src.ID,
			EventID:              eventID,
			POSID:                destPOSID,
			OrderStatus:          domain.DistributedOrderOpen,
			OrderDate:            src.OrderDate,
			ServingPointName:     src.ServingPointName,
			ServingPointLocation: src.ServingPointLocation,
			Note:                 src.Note,
		}
		return r.store.UpsertDistributedOrder(eventID, destPOSID, dest)
	}
	if dest.OrderStatus != domain.DistributedOrderOpen {
		dest.OrderStatus = domain.DistributedOrderOpen
		dest.TransferredAt = time.Time{}
		return r.store.UpsertDistributedOrder(eventID, destPOSID, dest)
	}
	return nil
}
