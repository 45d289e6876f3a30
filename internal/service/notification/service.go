// Package notification implements the deduplicated Notification Service
// (spec §4.7): writing a notification for an (orderId, action) pair that
// already has a created/in_progress copy updates that copy instead of
// inserting a new one (invariant I5).
package notification

import (
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/pos-distribution/engine/internal/domain"
)

// Service wraps CreateNotification over a Store Gateway.
type Service struct {
	store  domain.StoreGateway
	logger *log.Entry
}

// NewService constructs a notification Service.
func NewService(store domain.StoreGateway, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.New().WithField("component", "notification-service")
	}
	return &Service{store: store, logger: logger}
}

// CreateNotification validates the payload and either updates the existing
// dedup match for (orderId, action) or appends a new notification,
// returning its id.
func (s *Service) CreateNotification(eventID string, n domain.Notification) (string, error) {
	if eventID == "" {
		return "", domain.ErrMissingRequiredFields
	}
	if n.Title == "" || n.Message == "" {
		return "", domain.ErrMissingRequiredFields
	}

	now := time.Now().UTC()

	if n.OrderID != "" {
		existing, err := s.store.FindActiveNotification(eventID, n.OrderID, string(n.Action))
		if err != nil {
			return "", err
		}
		if existing != nil {
			n.ID = existing.ID
			n.CreatedAt = existing.CreatedAt
			n.UpdatedAt = now
			id, err := s.store.UpsertNotification(eventID, &n)
			if err != nil {
				return "", err
			}
			s.logger.WithFields(log.Fields{
				"event_id": eventID,
				"order_id": n.OrderID,
				"action":   n.Action,
			}).Debug("updated existing notification instead of inserting")
			return id, nil
		}
	}

	n.ID = ""
	n.CreatedAt = now
	n.UpdatedAt = now
	return s.store.UpsertNotification(eventID, &n)
}
