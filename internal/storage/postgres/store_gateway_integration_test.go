package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/pos-distribution/engine/internal/domain"
)

func TestStoreGateway_POSItemAvailabilityRoundTrip(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	gw := NewStoreGateway(store)

	seedEventPOSAndItem(t, gw, "evt-1", "pos-1", "item-1")

	it, err := gw.GetPOSItem("evt-1", "pos-1", "item-1")
	if err != nil {
		t.Fatalf("get pos item: %v", err)
	}
	if !it.IsAvailable {
		t.Fatal("expected seeded pos item to be available")
	}

	if err := gw.SetPOSItemAvailability("evt-1", "pos-1", "item-1", false); err != nil {
		t.Fatalf("set pos item availability: %v", err)
	}

	it, err = gw.GetPOSItem("evt-1", "pos-1", "item-1")
	if err != nil {
		t.Fatalf("get pos item after update: %v", err)
	}
	if it.IsAvailable {
		t.Fatal("expected pos item to be unavailable after update")
	}

	if _, err := gw.GetPOSItem("evt-1", "pos-1", "missing-item"); !errors.Is(err, domain.ErrItemNotFound) {
		t.Fatalf("expected ErrItemNotFound, got %v", err)
	}
}

func TestStoreGateway_ListPOSOrderedByDocID(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	gw := NewStoreGateway(store)

	mustPutPOS(t, gw, "evt-1", domain.POS{ID: "pos-b", Name: "B"})
	mustPutPOS(t, gw, "evt-1", domain.POS{ID: "pos-a", Name: "A"})
	mustPutPOS(t, gw, "evt-1", domain.POS{ID: "pos-c", Name: "C"})

	list, err := gw.ListPOS("evt-1")
	if err != nil {
		t.Fatalf("list pos: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("expected 3 pos, got %d", len(list))
	}
	if list[0].ID != "pos-a" || list[1].ID != "pos-b" || list[2].ID != "pos-c" {
		t.Fatalf("expected ascending doc_id order, got %v %v %v", list[0].ID, list[1].ID, list[2].ID)
	}
}

func TestStoreGateway_PurchaseTotalRecomputation(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	gw := NewStoreGateway(store)

	mustPutItem(t, gw, "evt-1", domain.Item{ID: "item-1", Name: "Beer", Price: 5})

	purchase := &domain.Purchase{ID: "purch-1", ServingPointID: "sp-1", IsPaid: true}
	if err := gw.UpsertPurchase("evt-1", purchase); err != nil {
		t.Fatalf("upsert purchase: %v", err)
	}
	mustPutPurchaseItem(t, gw, "evt-1", "purch-1", domain.PurchaseItemDoc{ItemID: "item-1", Quantity: 2})

	if err := gw.RecomputePurchaseTotal("evt-1", "purch-1"); err != nil {
		t.Fatalf("recompute purchase total: %v", err)
	}

	got, err := gw.GetPurchase("evt-1", "purch-1")
	if err != nil {
		t.Fatalf("get purchase: %v", err)
	}
	if got.TotalPrice != 10 {
		t.Fatalf("expected total 10, got %f", got.TotalPrice)
	}

	if err := gw.CancelPurchaseItems("evt-1", "purch-1", []string{"item-1"}); err != nil {
		t.Fatalf("cancel purchase items: %v", err)
	}
	if err := gw.RecomputePurchaseTotal("evt-1", "purch-1"); err != nil {
		t.Fatalf("recompute after cancel: %v", err)
	}
	got, err = gw.GetPurchase("evt-1", "purch-1")
	if err != nil {
		t.Fatalf("get purchase after cancel: %v", err)
	}
	if got.TotalPrice != 0 {
		t.Fatalf("expected total 0 after cancel, got %f", got.TotalPrice)
	}
}

func TestStoreGateway_RunMigrationTxnMovesItemBetweenOrders(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	gw := NewStoreGateway(store)

	srcOrder := &domain.DistributedOrder{ID: "order-1", OrderStatus: domain.DistributedOrderOpen, OrderDate: time.Now().UTC()}
	if err := gw.UpsertDistributedOrder("evt-1", "pos-src", srcOrder); err != nil {
		t.Fatalf("upsert src order: %v", err)
	}
	destOrder := &domain.DistributedOrder{ID: "order-1", OrderStatus: domain.DistributedOrderOpen, OrderDate: time.Now().UTC()}
	if err := gw.UpsertDistributedOrder("evt-1", "pos-dest", destOrder); err != nil {
		t.Fatalf("upsert dest order: %v", err)
	}

	item := domain.DistributedOrderItem{Key: "item-1", ItemID: "item-1", Name: "Beer", Price: 5, Count: 2, Status: domain.DistributedItemActive}
	if err := gw.WriteDistributedOrderBatch("evt-1", "pos-src", domain.DistributedOrderBatch{
		Order: srcOrder,
		Items: []domain.DistributedOrderItem{item},
	}); err != nil {
		t.Fatalf("write src batch: %v", err)
	}

	if err := gw.RunMigrationTxn("evt-1", "pos-src", "pos-dest", "order-1", item, 3); err != nil {
		t.Fatalf("run migration txn: %v", err)
	}

	srcItems, err := gw.ListDistributedOrderItems("evt-1", "pos-src", "order-1")
	if err != nil {
		t.Fatalf("list src items: %v", err)
	}
	if len(srcItems) != 0 {
		t.Fatalf("expected source item removed, got %d items", len(srcItems))
	}

	destItems, err := gw.ListDistributedOrderItems("evt-1", "pos-dest", "order-1")
	if err != nil {
		t.Fatalf("list dest items: %v", err)
	}
	if len(destItems) != 1 || destItems[0].Count != 5 {
		t.Fatalf("expected merged dest item with count 5, got %+v", destItems)
	}
}

func TestStoreGateway_NotificationDedup(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	gw := NewStoreGateway(store)

	n := &domain.Notification{
		Title: "out", Message: "out", OrderID: "order-1",
		Action: domain.ActionRefund, Status: domain.StatusCreated,
	}
	if _, err := gw.UpsertNotification("evt-1", n); err != nil {
		t.Fatalf("upsert notification: %v", err)
	}

	found, err := gw.FindActiveNotification("evt-1", "order-1", string(domain.ActionRefund))
	if err != nil {
		t.Fatalf("find active notification: %v", err)
	}
	if found == nil {
		t.Fatal("expected to find active notification")
	}

	notFound, err := gw.FindActiveNotification("evt-1", "order-2", string(domain.ActionRefund))
	if err != nil {
		t.Fatalf("find active notification for other order: %v", err)
	}
	if notFound != nil {
		t.Fatal("expected no notification for unrelated order")
	}
}

func seedEventPOSAndItem(t *testing.T, gw *StoreGateway, eventID, posID, itemID string) {
	t.Helper()
	mustPutPOS(t, gw, eventID, domain.POS{ID: posID, Name: posID})
	data := posItemDoc{ID: itemID, Name: itemID, Price: 1, IsAvailable: true}
	putTestDoc(t, gw, collPOSItems, joinPath(eventID, posID, itemID), data)
}

func mustPutPOS(t *testing.T, gw *StoreGateway, eventID string, p domain.POS) {
	t.Helper()
	putTestDoc(t, gw, collPOS, joinPath(eventID, p.ID), posDoc{ID: p.ID, Name: p.Name, Description: p.Description, Location: p.Location})
}

func mustPutItem(t *testing.T, gw *StoreGateway, eventID string, it domain.Item) {
	t.Helper()
	putTestDoc(t, gw, collItems, joinPath(eventID, it.ID), toItemDoc(it))
}

func mustPutPurchaseItem(t *testing.T, gw *StoreGateway, eventID, purchaseID string, d domain.PurchaseItemDoc) {
	t.Helper()
	putTestDoc(t, gw, collPurchaseItems, joinPath(eventID, purchaseID, d.ItemID), toPurchaseItemDoc(d))
}

func putTestDoc(t *testing.T, gw *StoreGateway, coll docCollection, docID string, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal test doc: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := gw.putDoc(ctx, gw.db, coll, docID, data); err != nil {
		t.Fatalf("put test doc: %v", err)
	}
}
