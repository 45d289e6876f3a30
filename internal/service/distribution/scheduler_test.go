package distribution

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pos-distribution/engine/internal/domain"
	"github.com/pos-distribution/engine/internal/storage/memory"
)

func setupEvent(t *testing.T, store *memory.StoreGateway) {
	t.Helper()
	store.SeedEvent(domain.Event{ID: "evt1", DistributionMode: domain.DistributionModeBalanced})
}

// S1: A,B carry {x,y}, open counts {A:2,B:1}; distribute [x,y,x] -> both
// x's and y land on B (open counts are read once at call start).
func TestScheduler_S1_LeastLoadedStableWithinCall(t *testing.T) {
	store := memory.NewStoreGateway()
	setupEvent(t, store)
	store.SeedPOS("evt1", domain.POS{ID: "A", Name: "Stand A"})
	store.SeedPOS("evt1", domain.POS{ID: "B", Name: "Stand B"})
	store.SeedPOSItem("evt1", "A", domain.POSItem{ID: "x", Name: "X", Price: 5})
	store.SeedPOSItem("evt1", "A", domain.POSItem{ID: "y", Name: "Y", Price: 3})
	store.SeedPOSItem("evt1", "B", domain.POSItem{ID: "x", Name: "X", Price: 5})
	store.SeedPOSItem("evt1", "B", domain.POSItem{ID: "y", Name: "Y", Price: 3})

	store.SeedDistributedOrder("evt1", "A", domain.DistributedOrder{ID: "o1", OrderStatus: domain.DistributedOrderOpen}, nil)
	store.SeedDistributedOrder("evt1", "A", domain.DistributedOrder{ID: "o2", OrderStatus: domain.DistributedOrderOpen}, nil)
	store.SeedDistributedOrder("evt1", "B", domain.DistributedOrder{ID: "o3", OrderStatus: domain.DistributedOrderOpen}, nil)

	sched := NewScheduler(store, nil)
	result, err := sched.Distribute(Request{
		EventID:    "evt1",
		PurchaseID: "pid1",
		Mode:       domain.DistributionModeBalanced,
		Items: []domain.CanonicalLineItem{
			{ItemID: "x"}, {ItemID: "y"}, {ItemID: "x"},
		},
	})
	require.NoError(t, err)
	require.True(t, result.Success)

	bItems, err := store.ListDistributedOrderItems("evt1", "B", "pid1")
	require.NoError(t, err)
	totals := map[string]int{}
	for _, it := range bItems {
		totals[it.ItemID] = it.Count
	}
	require.Equal(t, 2, totals["x"])
	require.Equal(t, 1, totals["y"])

	_, err = store.GetDistributedOrder("evt1", "A", "pid1")
	require.ErrorIs(t, err, domain.ErrOrderNotFound)
}

// S2: item not offered anywhere is dropped with success=true, no distributed orders.
func TestScheduler_S2_UnroutableItemDropped(t *testing.T) {
	store := memory.NewStoreGateway()
	setupEvent(t, store)
	store.SeedPOS("evt1", domain.POS{ID: "A", Name: "Stand A"})

	sched := NewScheduler(store, nil)
	result, err := sched.Distribute(Request{
		EventID:    "evt1",
		PurchaseID: "pid2",
		Mode:       domain.DistributionModeBalanced,
		Items:      []domain.CanonicalLineItem{{ItemID: "z"}},
	})
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Empty(t, result.DistributedPurchases)
}

func TestScheduler_NoPointsOfSale(t *testing.T) {
	store := memory.NewStoreGateway()
	setupEvent(t, store)

	sched := NewScheduler(store, nil)
	result, err := sched.Distribute(Request{
		EventID:    "evt1",
		PurchaseID: "pid3",
		Mode:       domain.DistributionModeBalanced,
		Items:      []domain.CanonicalLineItem{{ItemID: "x"}},
	})
	require.NoError(t, err)
	require.False(t, result.Success)
	require.Equal(t, domain.ErrNoPointsOfSale.Error(), result.Error)
}

func TestScheduler_GroupedModeUnsupported(t *testing.T) {
	store := memory.NewStoreGateway()
	setupEvent(t, store)

	sched := NewScheduler(store, nil)
	_, err := sched.Distribute(Request{
		EventID:    "evt1",
		PurchaseID: "pid4",
		Mode:       domain.DistributionModeGrouped,
		Items:      []domain.CanonicalLineItem{{ItemID: "x"}},
	})
	require.ErrorIs(t, err, domain.ErrUnsupportedDistributionMode)
}

// P2: two canonical line items with identical (itemId, extras, excluded)
// group into one item doc whose count is their sum.
func TestScheduler_Grouping(t *testing.T) {
	store := memory.NewStoreGateway()
	setupEvent(t, store)
	store.SeedPOS("evt1", domain.POS{ID: "A", Name: "Stand A"})
	store.SeedPOSItem("evt1", "A", domain.POSItem{ID: "burger", Name: "Burger", Price: 9})

	sched := NewScheduler(store, nil)
	_, err := sched.Distribute(Request{
		EventID:    "evt1",
		PurchaseID: "pid5",
		Mode:       domain.DistributionModeBalanced,
		Items: []domain.CanonicalLineItem{
			{ItemID: "burger", SelectedExtras: []string{"cheese"}},
			{ItemID: "burger", SelectedExtras: []string{"cheese"}},
			{ItemID: "burger"},
		},
	})
	require.NoError(t, err)

	items, err := store.ListDistributedOrderItems("evt1", "A", "pid5")
	require.NoError(t, err)
	require.Len(t, items, 2)

	var withCheese, plain *domain.DistributedOrderItem
	for i := range items {
		if len(items[i].SelectedExtras) > 0 {
			withCheese = &items[i]
		} else {
			plain = &items[i]
		}
	}
	require.NotNil(t, withCheese)
	require.NotNil(t, plain)
	require.Equal(t, 2, withCheese.Count)
	require.Equal(t, 1, plain.Count)
}

// P3: least-loaded selection honors the enumeration order tie-break.
func TestScheduler_TieBreakIsEnumerationOrder(t *testing.T) {
	store := memory.NewStoreGateway()
	setupEvent(t, store)
	store.SeedPOS("evt1", domain.POS{ID: "A", Name: "Stand A"})
	store.SeedPOS("evt1", domain.POS{ID: "B", Name: "Stand B"})
	store.SeedPOSItem("evt1", "A", domain.POSItem{ID: "x", Price: 1})
	store.SeedPOSItem("evt1", "B", domain.POSItem{ID: "x", Price: 1})
	// Both POS have zero open orders: ties go to the first enumerated, A.

	sched := NewScheduler(store, nil)
	_, err := sched.Distribute(Request{
		EventID:    "evt1",
		PurchaseID: "pid6",
		Mode:       domain.DistributionModeBalanced,
		Items:      []domain.CanonicalLineItem{{ItemID: "x"}},
	})
	require.NoError(t, err)

	_, err = store.GetDistributedOrder("evt1", "A", "pid6")
	require.NoError(t, err)
	_, err = store.GetDistributedOrder("evt1", "B", "pid6")
	require.ErrorIs(t, err, domain.ErrOrderNotFound)
}
