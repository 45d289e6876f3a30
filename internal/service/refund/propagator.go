// Package refund implements the Refund Propagator (spec §4.6): reacting to
// a notification's transition into status "refund", it cancels the matching
// line items on the main order and every POS-scoped distributed copy, then
// recomputes totals.
package refund

import (
	log "github.com/sirupsen/logrus"

	"github.com/pos-distribution/engine/internal/domain"
)

// chunkSize mirrors the store's `in`-query cap (§4.6 step 1).
const chunkSize = 10

// Propagator reacts to onNotificationUpdate change events.
type Propagator struct {
	store  domain.StoreGateway
	logger *log.Entry
}

// New constructs a Refund Propagator.
func New(store domain.StoreGateway, logger *log.Entry) *Propagator {
	if logger == nil {
		logger = log.New().WithField("component", "refund-propagator")
	}
	return &Propagator{store: store, logger: logger}
}

// HandleNotificationUpdate applies §4.6's trigger guard and procedure.
func (p *Propagator) HandleNotificationUpdate(evt domain.NotificationChangeEvent) error {
	if evt.After == nil {
		return nil
	}
	if evt.After.Status != domain.StatusRefund {
		return nil
	}
	if evt.Before != nil && evt.Before.Status == domain.StatusRefund {
		return nil
	}

	after := evt.After
	if after.OrderID == "" || len(after.ItemIDs) == 0 {
		return domain.ErrNotificationMissingOrderID
	}

	log := p.logger.WithFields(log.Fields{
		"event_id": evt.EventID,
		"order_id": after.OrderID,
	})

	if err := p.cancelMainOrderItems(evt.EventID, after.OrderID, after.ItemIDs); err != nil {
		return err
	}

	pos, err := p.store.ListPOS(evt.EventID)
	if err != nil {
		return err
	}
	for _, station := range pos {
		if _, err := p.store.GetDistributedOrder(evt.EventID, station.ID, after.OrderID); err != nil {
			if domain.IsNotFound(err) {
				continue
			}
			return err
		}
		if err := p.cancelDistributedOrderItems(evt.EventID, station.ID, after.OrderID, after.ItemIDs); err != nil {
			return err
		}
	}

	log.Info("propagated refund cancellation")
	return nil
}

func (p *Propagator) cancelMainOrderItems(eventID, orderID string, itemIDs []string) error {
	for _, chunk := range chunk(itemIDs, chunkSize) {
		if err := p.store.CancelPurchaseItems(eventID, orderID, chunk); err != nil {
			return err
		}
	}
	return p.store.RecomputePurchaseTotal(eventID, orderID)
}

func (p *Propagator) cancelDistributedOrderItems(eventID, posID, orderID string, itemIDs []string) error {
	for _, c := range chunk(itemIDs, chunkSize) {
		if err := p.store.CancelDistributedOrderItems(eventID, posID, orderID, c); err != nil {
			return err
		}
	}
	return p.store.RecomputeDistributedOrderTotal(eventID, posID, orderID)
}

func chunk(ids []string, size int) [][]string {
	var out [][]string
	for size < len(ids) {
		out = append(out, ids[:size:size])
		ids = ids[size:]
	}
	if len(ids) > 0 {
		out = append(out, ids)
	}
	return out
}
