package notification

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pos-distribution/engine/internal/domain"
	"github.com/pos-distribution/engine/internal/storage/memory"
)

// P7: at most one notification document exists per (orderId, action) across
// repeated emissions while it remains created/in_progress.
func TestCreateNotification_DedupUpdatesInPlace(t *testing.T) {
	store := memory.NewStoreGateway()
	svc := NewService(store, nil)

	id1, err := svc.CreateNotification("evt1", domain.Notification{
		Title:   "Sold out",
		Message: "refund please",
		OrderID: "order-1",
		Action:  domain.ActionRefund,
		Status:  domain.StatusCreated,
		Price:   10,
	})
	require.NoError(t, err)

	id2, err := svc.CreateNotification("evt1", domain.Notification{
		Title:   "Sold out",
		Message: "refund please",
		OrderID: "order-1",
		Action:  domain.ActionRefund,
		Status:  domain.StatusCreated,
		Price:   20,
	})
	require.NoError(t, err)
	require.Equal(t, id1, id2)

	n, err := store.FindActiveNotification("evt1", "order-1", string(domain.ActionRefund))
	require.NoError(t, err)
	require.NotNil(t, n)
	require.Equal(t, float64(20), n.Price)
}

func TestCreateNotification_NoOrderIDAlwaysInserts(t *testing.T) {
	store := memory.NewStoreGateway()
	svc := NewService(store, nil)

	id1, err := svc.CreateNotification("evt1", domain.Notification{Title: "a", Message: "b"})
	require.NoError(t, err)
	id2, err := svc.CreateNotification("evt1", domain.Notification{Title: "a", Message: "b"})
	require.NoError(t, err)
	require.NotEqual(t, id1, id2)
}

func TestCreateNotification_MissingFields(t *testing.T) {
	store := memory.NewStoreGateway()
	svc := NewService(store, nil)

	_, err := svc.CreateNotification("evt1", domain.Notification{Message: "b"})
	require.ErrorIs(t, err, domain.ErrMissingRequiredFields)

	_, err = svc.CreateNotification("", domain.Notification{Title: "a", Message: "b"})
	require.ErrorIs(t, err, domain.ErrMissingRequiredFields)
}

// Resolved notifications are terminal; a fresh emission for the same
// (orderId, action) must not match them (I5: dedup only applies to
// created/in_progress).
func TestCreateNotification_ResolvedDoesNotDedup(t *testing.T) {
	store := memory.NewStoreGateway()
	svc := NewService(store, nil)

	id1, err := svc.CreateNotification("evt1", domain.Notification{
		Title: "a", Message: "b", OrderID: "o1", Action: domain.ActionRefund, Status: domain.StatusResolved,
	})
	require.NoError(t, err)

	id2, err := svc.CreateNotification("evt1", domain.Notification{
		Title: "a", Message: "b", OrderID: "o1", Action: domain.ActionRefund, Status: domain.StatusCreated,
	})
	require.NoError(t, err)
	require.NotEqual(t, id1, id2)
}
