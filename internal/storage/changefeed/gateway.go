// Package changefeed wraps a domain.StoreGateway and emits one transactional
// outbox row per write on a watched collection (§3 SPEC_FULL.md "Physical
// representation"), grounded on the teacher's saga.orchestrator.emitEvent:
// there, the service layer enqueues an OutboxMessage right after a
// successful repository write. Here the equivalent write is a document
// write, so the enqueue moves down to sit next to the Store Gateway instead
// of duplicating it across every caller.
package changefeed

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/pos-distribution/engine/internal/domain"
	"github.com/pos-distribution/engine/internal/metrics"
)

// Gateway decorates a domain.StoreGateway, publishing a change event to the
// outbox for every write on a collection with a trigger registration
// (§6.3). All other StoreGateway methods are delegated unchanged via
// embedding.
type Gateway struct {
	domain.StoreGateway
	outbox  domain.OutboxRepository
	logger  *log.Entry
	metrics *metrics.DistributionMetrics
}

// New constructs a change-feed-emitting Store Gateway.
func New(inner domain.StoreGateway, outbox domain.OutboxRepository, logger *log.Entry) *Gateway {
	if logger == nil {
		logger = log.New().WithField("component", "store-gateway-changefeed")
	}
	return &Gateway{StoreGateway: inner, outbox: outbox, logger: logger}
}

// WithMetrics attaches a metrics recorder, incremented once per enqueued
// change event; it returns g to allow chaining after New.
func (g *Gateway) WithMetrics(m *metrics.DistributionMetrics) *Gateway {
	g.metrics = m
	return g
}

func (g *Gateway) enqueue(path domain.CollectionPath, docID, eventType string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		g.logger.WithError(err).WithFields(log.Fields{
			"collection_path": path,
			"doc_id":          docID,
		}).Error("marshal change event failed")
		return
	}

	msg := domain.OutboxMessage{
		ID:             uuid.NewString(),
		CollectionPath: path,
		EventID:        uuid.NewString(),
		DocID:          docID,
		EventType:      eventType,
		Payload:        data,
	}
	if _, err := g.outbox.Enqueue(msg); err != nil {
		g.logger.WithError(err).WithFields(log.Fields{
			"collection_path": path,
			"doc_id":          docID,
			"event_type":      eventType,
		}).Error("enqueue change event failed")
		return
	}
	if g.metrics != nil {
		g.metrics.RecordOutboxEvent()
	}
}

// UpsertPurchase wraps the inner write, emitting onPurchaseWrite and, for a
// document that did not previously exist, onOrderCreate (§6.3/§6.4) — the
// two trigger registrations share the same underlying Orders collection.
func (g *Gateway) UpsertPurchase(eventID string, purchase *domain.Purchase) error {
	before, err := g.getPurchaseOrNil(eventID, purchase.ID)
	if err != nil {
		return err
	}

	if err := g.StoreGateway.UpsertPurchase(eventID, purchase); err != nil {
		return err
	}

	after, err := g.getPurchaseOrNil(eventID, purchase.ID)
	if err != nil {
		return err
	}

	g.enqueue(domain.PathPurchases, purchase.ID, purchaseEventType(before, after),
		domain.PurchaseChangeEvent{EventID: eventID, Before: before, After: after})

	if before == nil && after != nil {
		g.enqueue(domain.PathOrdersCreated, purchase.ID, "order.created",
			domain.OrderCreatedEvent{EventID: eventID, Purchase: after})
	}
	return nil
}

// PatchPurchaseDistribution wraps the inner patch, emitting onPurchaseWrite
// with the before/after snapshot of the distribution outcome.
func (g *Gateway) PatchPurchaseDistribution(eventID, purchaseID string, result domain.DistributionOutcome) error {
	before, err := g.getPurchaseOrNil(eventID, purchaseID)
	if err != nil {
		return err
	}

	if err := g.StoreGateway.PatchPurchaseDistribution(eventID, purchaseID, result); err != nil {
		return err
	}

	after, err := g.getPurchaseOrNil(eventID, purchaseID)
	if err != nil {
		return err
	}

	g.enqueue(domain.PathPurchases, purchaseID, purchaseEventType(before, after),
		domain.PurchaseChangeEvent{EventID: eventID, Before: before, After: after})
	return nil
}

// SetPOSItemAvailability wraps the inner write, emitting onPosItemUpdate
// with the before/after availability booleans.
func (g *Gateway) SetPOSItemAvailability(eventID, posID, itemID string, available bool) error {
	var before *bool
	if item, err := g.StoreGateway.GetPOSItem(eventID, posID, itemID); err == nil {
		b := item.IsAvailable
		before = &b
	} else if !domain.IsNotFound(err) {
		return err
	}

	if err := g.StoreGateway.SetPOSItemAvailability(eventID, posID, itemID, available); err != nil {
		return err
	}

	after := available
	g.enqueue(domain.PathPOSItems, fmt.Sprintf("%s/%s/%s", eventID, posID, itemID), "pos_item.availability_changed",
		domain.POSItemChangeEvent{
			EventID:         eventID,
			POSID:           posID,
			ItemID:          itemID,
			BeforeAvailable: before,
			AfterAvailable:  &after,
		})
	return nil
}

// UpsertNotification wraps the inner write, emitting onNotificationUpdate
// with the before/after snapshot (§4.6's refund edge is one possible
// transition this event carries).
func (g *Gateway) UpsertNotification(eventID string, n *domain.Notification) (string, error) {
	var before *domain.Notification
	if n.OrderID != "" {
		if existing, err := g.StoreGateway.FindActiveNotification(eventID, n.OrderID, string(n.Action)); err == nil {
			before = existing
		} else if !domain.IsNotFound(err) {
			return "", err
		}
	}

	id, err := g.StoreGateway.UpsertNotification(eventID, n)
	if err != nil {
		return "", err
	}

	after := *n
	after.ID = id
	g.enqueue(domain.PathNotifications, id, "notification."+string(n.Status),
		domain.NotificationChangeEvent{EventID: eventID, Before: before, After: &after})
	return id, nil
}

func (g *Gateway) getPurchaseOrNil(eventID, purchaseID string) (*domain.Purchase, error) {
	p, err := g.StoreGateway.GetPurchase(eventID, purchaseID)
	if err != nil {
		if domain.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return p, nil
}

func purchaseEventType(before, after *domain.Purchase) string {
	switch {
	case before == nil:
		return "purchase.created"
	case after != nil && after.Distributed && !before.Distributed:
		return "purchase.distributed"
	case after != nil && after.DistributionFailed && !before.DistributionFailed:
		return "purchase.distribution_failed"
	default:
		return "purchase.updated"
	}
}

var _ domain.StoreGateway = (*Gateway)(nil)
