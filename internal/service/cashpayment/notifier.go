// Package cashpayment implements the peripheral cash-payment notification
// side channel (§6.4): a purchase created with paymentMethod "cash" raises a
// low-priority notification so front-of-house staff know a cash settlement
// is pending.
package cashpayment

import (
	log "github.com/sirupsen/logrus"

	"github.com/pos-distribution/engine/internal/domain"
	"github.com/pos-distribution/engine/internal/service/notification"
)

// Notifier reacts to onOrderCreate change events.
type Notifier struct {
	notifier *notification.Service
	logger   *log.Entry
}

// New constructs a cash-payment Notifier.
func New(notifier *notification.Service, logger *log.Entry) *Notifier {
	if logger == nil {
		logger = log.New().WithField("component", "cash-payment-notifier")
	}
	return &Notifier{notifier: notifier, logger: logger}
}

// HandleOrderCreate emits a cash-payment notification when the newly
// created purchase was paid in cash; it is a no-op for every other payment
// method.
func (n *Notifier) HandleOrderCreate(evt domain.OrderCreatedEvent) error {
	if evt.Purchase == nil || evt.Purchase.PaymentMethod != "cash" {
		return nil
	}

	_, err := n.notifier.CreateNotification(evt.EventID, domain.Notification{
		Title:         "Barzahlung ausstehend",
		Message:       "Bitte Barzahlung am Stand entgegennehmen",
		OrderID:       evt.Purchase.ID,
		PaymentMethod: "cash",
		Severity:      domain.SeverityInfo,
		Action:        domain.ActionCashPayment,
		Status:        domain.StatusCreated,
	})
	if err != nil {
		n.logger.WithError(err).Error("failed to emit cash payment notification")
	}
	return err
}
