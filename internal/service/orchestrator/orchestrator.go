// Package orchestrator implements the Purchase Orchestrator (spec §4.4):
// reacting to the paid transition of a purchase, it loads and normalizes
// the purchase's items, invokes the Distribution Scheduler exactly once,
// and records the outcome back onto the purchase document.
package orchestrator

import (
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/pos-distribution/engine/internal/domain"
	"github.com/pos-distribution/engine/internal/service/distribution"
)

// Orchestrator reacts to onPurchaseWrite change events.
type Orchestrator struct {
	store     domain.StoreGateway
	scheduler *distribution.Scheduler
	logger    *log.Entry
}

// New constructs a Purchase Orchestrator.
func New(store domain.StoreGateway, scheduler *distribution.Scheduler, logger *log.Entry) *Orchestrator {
	if logger == nil {
		logger = log.New().WithField("component", "purchase-orchestrator")
	}
	return &Orchestrator{store: store, scheduler: scheduler, logger: logger}
}

// HandlePurchaseWrite applies the guard predicates of §4.4, in order, and
// invokes the scheduler exactly once for the paid transition.
func (o *Orchestrator) HandlePurchaseWrite(evt domain.PurchaseChangeEvent) error {
	log := o.logger.WithField("event_id", evt.EventID)

	if evt.After == nil {
		// Purchase deleted: skip.
		return nil
	}
	after := evt.After
	log = log.WithField("purchase_id", after.ID)

	if !after.IsPaid {
		return nil
	}
	if evt.Before != nil && evt.Before.IsPaid {
		// Not the paid transition; already paid before this write.
		return nil
	}
	if after.Distributed {
		// Idempotent guard: already distributed.
		return nil
	}
	if after.ServingPointID == "" {
		log.Error("purchase missing serving point id, skipping distribution")
		return nil
	}

	servingPoint, err := o.store.GetServingPoint(evt.EventID, after.ServingPointID)
	if err != nil {
		if domain.IsNotFound(err) {
			log.WithError(err).Error("serving point not found, skipping distribution")
			return nil
		}
		return err
	}

	items, err := o.loadAndEnrichItems(evt.EventID, after.ID)
	if err != nil {
		return err
	}

	mode := domain.DistributionModeBalanced
	if event, err := o.store.GetEvent(evt.EventID); err == nil {
		mode = event.EffectiveDistributionMode()
	}

	result, distErr := o.scheduler.Distribute(distribution.Request{
		EventID:      evt.EventID,
		PurchaseID:   after.ID,
		Items:        items,
		ServingPoint: *servingPoint,
		Mode:         mode,
		Note:         after.Note,
	})

	if distErr != nil || !result.Success {
		msg := errString(distErr, result.Error)
		log.WithField("error", msg).Warn("distribution failed, recording on purchase")
		if patchErr := o.store.PatchPurchaseDistribution(evt.EventID, after.ID, domain.DistributionOutcome{
			DistributionFailed: true,
			DistributionError:  msg,
		}); patchErr != nil {
			return patchErr
		}
		if distErr != nil {
			return distErr
		}
		return nil
	}

	return o.store.PatchPurchaseDistribution(evt.EventID, after.ID, domain.DistributionOutcome{
		Distributed:   true,
		DistributedAt: time.Now().UTC(),
	})
}

// loadAndEnrichItems normalizes every purchase-item document (§4.2) and
// enriches each resulting canonical line item with catalog fields from the
// canonical Items collection, falling back to whatever the purchase-item
// document already carried when the canonical doc is missing.
func (o *Orchestrator) loadAndEnrichItems(eventID, purchaseID string) ([]domain.CanonicalLineItem, error) {
	docs, err := o.store.ListPurchaseItems(eventID, purchaseID)
	if err != nil {
		return nil, err
	}

	var out []domain.CanonicalLineItem
	for _, doc := range docs {
		for _, line := range domain.NormalizeQuantity(doc) {
			canonical, err := o.store.GetCanonicalItem(eventID, line.ItemID)
			if err == nil {
				line.Name = canonical.Name
				line.Price = canonical.Price
				line.Category = canonical.Category
				line.CategoryName = canonical.CategoryName
			} else if !domain.IsNotFound(err) {
				return nil, err
			}
			out = append(out, line)
		}
	}
	return out, nil
}

func errString(err error, fallback string) string {
	if err != nil {
		return err.Error()
	}
	return fallback
}
