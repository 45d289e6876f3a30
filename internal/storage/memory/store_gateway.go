package memory

import (
	"sort"
	"sync"

	"github.com/pos-distribution/engine/internal/domain"
)

// posItemKey identifies one POS-local item snapshot.
type posItemKey struct {
	posID  string
	itemID string
}

// orderKey identifies one distributed order within one POS.
type orderKey struct {
	posID   string
	orderID string
}

// orderItemKey identifies one line item within one distributed order.
type orderItemKey struct {
	posID   string
	orderID string
	key     string
}

// StoreGateway is an in-memory implementation of domain.StoreGateway (every
// key is scoped by event id), grounded on the teacher's
// orderRepositoryInMemory pattern (a guarded map plus optimistic-locking
// checks). It backs the package's own tests and the distribution service
// components' unit tests, and internal/app wires it into the running binary
// when no Postgres DSN is configured (otherwise internal/storage/postgres is
// used), mirroring how the teacher kept its in-memory repositories as a
// local-dev/test affordance alongside the real store.
type StoreGateway struct {
	mu sync.RWMutex

	events        map[string]domain.Event
	posByEvent    map[string][]string // eventID -> posID in insertion/enumeration order
	pos           map[string]domain.POS
	servingPoints map[string]domain.ServingPoint
	items         map[string]domain.Item
	posItems      map[posItemKey]domain.POSItem

	purchases      map[string]domain.Purchase
	purchaseItems  map[string][]domain.PurchaseItemDoc

	orders       map[orderKey]domain.DistributedOrder
	ordersByPOS  map[string][]string // posID -> orderID in insertion order
	orderItems   map[orderItemKey]domain.DistributedOrderItem
	orderItemIDs map[orderKey][]string // order -> item keys in insertion order

	notifications   map[string]domain.Notification
	notificationIDs []string
	nextNotifID     int
}

// NewStoreGateway returns an empty in-memory store gateway.
func NewStoreGateway() *StoreGateway {
	return &StoreGateway{
		events:        make(map[string]domain.Event),
		posByEvent:    make(map[string][]string),
		pos:           make(map[string]domain.POS),
		servingPoints: make(map[string]domain.ServingPoint),
		items:         make(map[string]domain.Item),
		posItems:      make(map[posItemKey]domain.POSItem),
		purchases:     make(map[string]domain.Purchase),
		purchaseItems: make(map[string][]domain.PurchaseItemDoc),
		orders:        make(map[orderKey]domain.DistributedOrder),
		ordersByPOS:   make(map[string][]string),
		orderItems:    make(map[orderItemKey]domain.DistributedOrderItem),
		orderItemIDs:  make(map[orderKey][]string),
		notifications: make(map[string]domain.Notification),
	}
}

// --- seeding helpers (test-only surface, never used by the production path) ---

func (s *StoreGateway) SeedEvent(e domain.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[e.ID] = e
}

func (s *StoreGateway) SeedServingPoint(eventID string, sp domain.ServingPoint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.servingPoints[eventID+"/"+sp.ID] = sp
}

func (s *StoreGateway) SeedItem(eventID string, item domain.Item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[eventID+"/"+item.ID] = item
}

func (s *StoreGateway) SeedPOS(eventID string, p domain.POS) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pos[eventID+"/"+p.ID]; !ok {
		s.posByEvent[eventID] = append(s.posByEvent[eventID], p.ID)
	}
	s.pos[eventID+"/"+p.ID] = p
}

func (s *StoreGateway) SeedPOSItem(eventID, posID string, item domain.POSItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.posItems[posItemKey{posID: eventID + "/" + posID, itemID: item.ID}] = item
}

func (s *StoreGateway) SeedPurchase(p domain.Purchase) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purchases[p.EventID+"/"+p.ID] = p
}

func (s *StoreGateway) SeedPurchaseItems(eventID, purchaseID string, docs []domain.PurchaseItemDoc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purchaseItems[eventID+"/"+purchaseID] = docs
}

func (s *StoreGateway) SeedDistributedOrder(eventID, posID string, order domain.DistributedOrder, items []domain.DistributedOrderItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ok := orderKey{posID: eventID + "/" + posID, orderID: order.ID}
	if _, exists := s.orders[ok]; !exists {
		s.ordersByPOS[ok.posID] = append(s.ordersByPOS[ok.posID], order.ID)
	}
	order.POSID = posID
	order.EventID = eventID
	s.orders[ok] = order
	for _, it := range items {
		ik := orderItemKey{posID: ok.posID, orderID: order.ID, key: it.Key}
		if _, exists := s.orderItems[ik]; !exists {
			s.orderItemIDs[ok] = append(s.orderItemIDs[ok], it.Key)
		}
		s.orderItems[ik] = it
	}
}

// --- domain.StoreGateway ---

func (s *StoreGateway) GetEvent(eventID string) (*domain.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.events[eventID]
	if !ok {
		return nil, domain.ErrEventNotFound
	}
	cp := e
	return &cp, nil
}

func (s *StoreGateway) ListPOS(eventID string) ([]domain.POS, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.posByEvent[eventID]
	out := make([]domain.POS, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.pos[eventID+"/"+id])
	}
	return out, nil
}

func (s *StoreGateway) GetPOS(eventID, posID string) (*domain.POS, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.pos[eventID+"/"+posID]
	if !ok {
		return nil, domain.ErrPOSNotFound
	}
	cp := p
	return &cp, nil
}

func (s *StoreGateway) ListPOSItems(eventID, posID string) ([]domain.POSItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.POSItem, 0)
	for k, v := range s.posItems {
		if k.posID == eventID+"/"+posID {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *StoreGateway) GetPOSItem(eventID, posID, itemID string) (*domain.POSItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	it, ok := s.posItems[posItemKey{posID: eventID + "/" + posID, itemID: itemID}]
	if !ok {
		return nil, domain.ErrItemNotFound
	}
	cp := it
	return &cp, nil
}

func (s *StoreGateway) SetPOSItemAvailability(eventID, posID, itemID string, available bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := posItemKey{posID: eventID + "/" + posID, itemID: itemID}
	it, ok := s.posItems[k]
	if !ok {
		return domain.ErrItemNotFound
	}
	it.IsAvailable = available
	s.posItems[k] = it
	return nil
}

func (s *StoreGateway) GetServingPoint(eventID, id string) (*domain.ServingPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sp, ok := s.servingPoints[eventID+"/"+id]
	if !ok {
		return nil, domain.ErrServingPointNotFound
	}
	cp := sp
	return &cp, nil
}

func (s *StoreGateway) GetCanonicalItem(eventID, itemID string) (*domain.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	it, ok := s.items[eventID+"/"+itemID]
	if !ok {
		return nil, domain.ErrItemNotFound
	}
	cp := it
	return &cp, nil
}

func (s *StoreGateway) SetCanonicalItemAvailability(eventID, itemID string, available bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := eventID + "/" + itemID
	it, ok := s.items[k]
	if !ok {
		return domain.ErrItemNotFound
	}
	it.IsAvailable = available
	s.items[k] = it
	return nil
}

func (s *StoreGateway) GetPurchase(eventID, purchaseID string) (*domain.Purchase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.purchases[eventID+"/"+purchaseID]
	if !ok {
		return nil, domain.ErrPurchaseNotFound
	}
	cp := p
	return &cp, nil
}

func (s *StoreGateway) ListPurchaseItems(eventID, purchaseID string) ([]domain.PurchaseItemDoc, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	docs := s.purchaseItems[eventID+"/"+purchaseID]
	out := make([]domain.PurchaseItemDoc, len(docs))
	copy(out, docs)
	return out, nil
}

func (s *StoreGateway) SetPurchaseItems(eventID, purchaseID string, items []domain.PurchaseItemDoc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := eventID + "/" + purchaseID
	docs := make([]domain.PurchaseItemDoc, len(items))
	copy(docs, items)
	s.purchaseItems[k] = docs
	return nil
}

func (s *StoreGateway) UpsertPurchase(eventID string, purchase *domain.Purchase) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	purchase.EventID = eventID
	s.purchases[eventID+"/"+purchase.ID] = *purchase
	return nil
}

func (s *StoreGateway) PatchPurchaseDistribution(eventID, purchaseID string, result domain.DistributionOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := eventID + "/" + purchaseID
	p, ok := s.purchases[k]
	if !ok {
		return domain.ErrPurchaseNotFound
	}
	p.Distributed = result.Distributed
	p.DistributedAt = result.DistributedAt
	p.DistributionError = result.DistributionError
	p.DistributionFailed = result.DistributionFailed
	s.purchases[k] = p
	return nil
}

func (s *StoreGateway) CancelPurchaseItems(eventID, purchaseID string, itemIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	want := toSet(itemIDs)
	k := eventID + "/" + purchaseID
	docs := s.purchaseItems[k]
	for i := range docs {
		if want[docs[i].ItemID] {
			docs[i].Status = "canceled"
			docs[i].Quantity = 0
			docs[i].Count = 0
		}
	}
	s.purchaseItems[k] = docs
	return nil
}

func (s *StoreGateway) RecomputePurchaseTotal(eventID, purchaseID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := eventID + "/" + purchaseID
	p, ok := s.purchases[k]
	if !ok {
		return domain.ErrPurchaseNotFound
	}
	var total float64
	for _, d := range s.purchaseItems[k] {
		if d.Status == "canceled" {
			continue
		}
		lines := domain.NormalizeQuantity(d)
		total += float64(len(lines)) * itemPrice(s, eventID, d.ItemID)
	}
	p.TotalPrice = total
	s.purchases[k] = p
	return nil
}

func itemPrice(s *StoreGateway, eventID, itemID string) float64 {
	if it, ok := s.items[eventID+"/"+itemID]; ok {
		return it.Price
	}
	return 0
}

func (s *StoreGateway) CountOpenOrders(eventID, posID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, id := range s.ordersByPOS[eventID+"/"+posID] {
		if o, ok := s.orders[orderKey{posID: eventID + "/" + posID, orderID: id}]; ok {
			if o.OrderStatus == domain.DistributedOrderOpen {
				count++
			}
		}
	}
	return count, nil
}

func (s *StoreGateway) ListOpenOrders(eventID, posID string) ([]domain.DistributedOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.DistributedOrder
	for _, id := range s.ordersByPOS[eventID+"/"+posID] {
		if o, ok := s.orders[orderKey{posID: eventID + "/" + posID, orderID: id}]; ok {
			if o.OrderStatus == domain.DistributedOrderOpen {
				out = append(out, o)
			}
		}
	}
	return out, nil
}

func (s *StoreGateway) GetDistributedOrder(eventID, posID, orderID string) (*domain.DistributedOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[orderKey{posID: eventID + "/" + posID, orderID: orderID}]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	cp := o
	return &cp, nil
}

func (s *StoreGateway) ListDistributedOrderItems(eventID, posID, orderID string) ([]domain.DistributedOrderItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ok := orderKey{posID: eventID + "/" + posID, orderID: orderID}
	keys := s.orderItemIDs[ok]
	out := make([]domain.DistributedOrderItem, 0, len(keys))
	for _, key := range keys {
		if it, exists := s.orderItems[orderItemKey{posID: ok.posID, orderID: orderID, key: key}]; exists {
			out = append(out, it)
		}
	}
	return out, nil
}

func (s *StoreGateway) WriteDistributedOrderBatch(eventID, posID string, batch domain.DistributedOrderBatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pk := eventID + "/" + posID
	ok := orderKey{posID: pk, orderID: batch.Order.ID}
	if _, exists := s.orders[ok]; !exists {
		s.ordersByPOS[pk] = append(s.ordersByPOS[pk], batch.Order.ID)
	}
	order := *batch.Order
	order.EventID = eventID
	order.POSID = posID
	s.orders[ok] = order

	for _, item := range batch.Items {
		ik := orderItemKey{posID: pk, orderID: batch.Order.ID, key: item.Key}
		if _, exists := s.orderItems[ik]; !exists {
			s.orderItemIDs[ok] = append(s.orderItemIDs[ok], item.Key)
		}
		s.orderItems[ik] = item
	}
	return nil
}

func (s *StoreGateway) UpsertDistributedOrder(eventID, posID string, order *domain.DistributedOrder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	pk := eventID + "/" + posID
	ok := orderKey{posID: pk, orderID: order.ID}
	if _, exists := s.orders[ok]; !exists {
		s.ordersByPOS[pk] = append(s.ordersByPOS[pk], order.ID)
	}
	cp := *order
	cp.EventID = eventID
	cp.POSID = posID
	s.orders[ok] = cp
	return nil
}

func (s *StoreGateway) MarkDistributedOrderItemsCanceling(eventID, posID, orderID, itemID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ok := orderKey{posID: eventID + "/" + posID, orderID: orderID}
	for _, key := range s.orderItemIDs[ok] {
		ik := orderItemKey{posID: ok.posID, orderID: orderID, key: key}
		it := s.orderItems[ik]
		if it.ItemID == itemID && it.Status == domain.DistributedItemActive {
			it.Status = domain.DistributedItemMarkedForCanceling
			s.orderItems[ik] = it
		}
	}
	return nil
}

func (s *StoreGateway) CancelDistributedOrderItems(eventID, posID, orderID string, itemIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	want := toSet(itemIDs)
	ok := orderKey{posID: eventID + "/" + posID, orderID: orderID}
	for _, key := range s.orderItemIDs[ok] {
		ik := orderItemKey{posID: ok.posID, orderID: orderID, key: key}
		it := s.orderItems[ik]
		if want[it.ItemID] {
			it.Status = domain.DistributedItemCanceled
			it.Count = 0
			s.orderItems[ik] = it
		}
	}
	return nil
}

func (s *StoreGateway) RecomputeDistributedOrderTotal(eventID, posID, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ok := orderKey{posID: eventID + "/" + posID, orderID: orderID}
	order, exists := s.orders[ok]
	if !exists {
		return domain.ErrOrderNotFound
	}
	var total float64
	for _, key := range s.orderItemIDs[ok] {
		it := s.orderItems[orderItemKey{posID: ok.posID, orderID: orderID, key: key}]
		if it.Status == domain.DistributedItemCanceled {
			continue
		}
		total += it.Price * float64(it.Count)
	}
	order.TotalPrice = total
	s.orders[ok] = order
	return nil
}

func (s *StoreGateway) FindActiveNotification(eventID, orderID, action string) (*domain.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range s.notificationIDs {
		n := s.notifications[id]
		if n.EventID != eventID || n.OrderID != orderID || string(n.Action) != action {
			continue
		}
		if n.Status.IsDedupable() {
			cp := n
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *StoreGateway) UpsertNotification(eventID string, n *domain.Notification) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n.EventID = eventID
	if n.ID == "" {
		s.nextNotifID++
		n.ID = eventID + "-notif-" + itoa(s.nextNotifID)
	}
	if _, exists := s.notifications[n.ID]; !exists {
		s.notificationIDs = append(s.notificationIDs, n.ID)
	}
	s.notifications[n.ID] = *n
	return n.ID, nil
}

func (s *StoreGateway) RunMigrationTxn(eventID, srcPOSID, destPOSID, orderID string, item domain.DistributedOrderItem, destCount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	destPK := eventID + "/" + destPOSID
	destOK := orderKey{posID: destPK, orderID: orderID}
	destIK := orderItemKey{posID: destPK, orderID: orderID, key: item.Key}

	merged := item
	merged.Count = destCount + item.Count
	merged.Status = domain.DistributedItemActive
	if _, exists := s.orderItems[destIK]; !exists {
		s.orderItemIDs[destOK] = append(s.orderItemIDs[destOK], item.Key)
	}
	s.orderItems[destIK] = merged

	srcPK := eventID + "/" + srcPOSID
	srcOK := orderKey{posID: srcPK, orderID: orderID}
	srcIK := orderItemKey{posID: srcPK, orderID: orderID, key: item.Key}
	delete(s.orderItems, srcIK)
	ids := s.orderItemIDs[srcOK]
	for i, k := range ids {
		if k == item.Key {
			s.orderItemIDs[srcOK] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	return nil
}

func toSet(values []string) map[string]bool {
	m := make(map[string]bool, len(values))
	for _, v := range values {
		m[v] = true
	}
	return m
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

var _ domain.StoreGateway = (*StoreGateway)(nil)
