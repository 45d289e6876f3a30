package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/pos-distribution/engine/internal/domain"
)

const opTimeout = 5 * time.Second

// docCollection names the flat keyspaces this gateway maintains inside the
// shared documents table. Doc ids are "/"-joined paths, e.g. an item under a
// POS is stored at collPOSItems with doc id "{eventID}/{posID}/{itemID}".
type docCollection string

const (
	collEvents                docCollection = "events"
	collServingPoints         docCollection = "serving_points"
	collItems                 docCollection = "items"
	collPOS                   docCollection = "pos"
	collPOSItems              docCollection = "pos_items"
	collPurchases             docCollection = "purchases"
	collPurchaseItems         docCollection = "purchase_items"
	collDistributedOrders     docCollection = "distributed_orders"
	collDistributedOrderItems docCollection = "distributed_order_items"
	collNotifications         docCollection = "notifications"
)

// StoreGateway is the PostgreSQL-backed domain.StoreGateway: every
// collection is a logical view over one physical "documents" table keyed by
// (collection_path, doc_id), grounded on the teacher's single-table
// order_repository pattern but generalized from one row-per-order to
// row-per-document across the ten collections above.
type StoreGateway struct {
	db *sql.DB
}

// NewStoreGateway создаёт PostgreSQL-реализацию domain.StoreGateway поверх
// таблицы documents.
func NewStoreGateway(store *Store) *StoreGateway {
	return &StoreGateway{db: store.DB()}
}

// --- generic document access ---

type docRow struct {
	id      string
	data    []byte
	version int64
}

func (g *StoreGateway) getDoc(ctx context.Context, q querier, coll docCollection, docID string) (docRow, error) {
	var row docRow
	row.id = docID
	err := q.QueryRowContext(ctx, `
		SELECT data, version FROM documents
		WHERE collection_path = $1 AND doc_id = $2
	`, string(coll), docID).Scan(&row.data, &row.version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return docRow{}, sql.ErrNoRows
		}
		return docRow{}, fmt.Errorf("get document %s/%s: %w", coll, docID, err)
	}
	return row, nil
}

func (g *StoreGateway) listDocs(ctx context.Context, q querier, coll docCollection, prefix string) ([]docRow, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT doc_id, data, version FROM documents
		WHERE collection_path = $1 AND doc_id LIKE $2
		ORDER BY doc_id ASC
	`, string(coll), escapeLike(prefix)+"%")
	if err != nil {
		return nil, fmt.Errorf("list documents %s: %w", coll, err)
	}
	defer rows.Close()

	var out []docRow
	for rows.Next() {
		var r docRow
		if err := rows.Scan(&r.id, &r.data, &r.version); err != nil {
			return nil, fmt.Errorf("scan document %s: %w", coll, err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents %s: %w", coll, err)
	}
	return out, nil
}

func (g *StoreGateway) putDoc(ctx context.Context, q querier, coll docCollection, docID string, data []byte) error {
	now := time.Now().UTC()
	_, err := q.ExecContext(ctx, `
		INSERT INTO documents (collection_path, doc_id, data, version, created_at, updated_at)
		VALUES ($1,$2,$3,1,$4,$4)
		ON CONFLICT (collection_path, doc_id) DO UPDATE
		SET data = EXCLUDED.data, version = documents.version + 1, updated_at = EXCLUDED.updated_at
	`, string(coll), docID, data, now)
	if err != nil {
		return fmt.Errorf("put document %s/%s: %w", coll, docID, err)
	}
	return nil
}

func (g *StoreGateway) deleteDoc(ctx context.Context, q querier, coll docCollection, docID string) error {
	if _, err := q.ExecContext(ctx, `
		DELETE FROM documents WHERE collection_path = $1 AND doc_id = $2
	`, string(coll), docID); err != nil {
		return fmt.Errorf("delete document %s/%s: %w", coll, docID, err)
	}
	return nil
}

// querier is satisfied by both *sql.DB and *sql.Tx, letting the doc helpers
// run either standalone or inside RunMigrationTxn's transaction.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func joinPath(parts ...string) string {
	return strings.Join(parts, "/")
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

// --- wire representations ---

type eventDoc struct {
	ID               string `json:"id"`
	DistributionMode string `json:"distributionMode"`
}

type servingPointDoc struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Location string `json:"location"`
	AreaName string `json:"areaName"`
	Capacity int    `json:"capacity"`
}

type itemDoc struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Price        float64 `json:"price"`
	Category     string  `json:"category"`
	CategoryName string  `json:"categoryName"`
	IsAvailable  bool    `json:"isAvailable"`
	SoldOut      bool    `json:"soldOut"`
}

type posDoc struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Location    string `json:"location"`
}

type posItemDoc struct {
	ID                  string   `json:"id"`
	Name                string   `json:"name"`
	Price               float64  `json:"price"`
	Count               int      `json:"count"`
	Category            string   `json:"category"`
	CategoryName        string   `json:"categoryName"`
	IsAvailable         bool     `json:"isAvailable"`
	SoldOut             bool     `json:"soldOut"`
	SelectedExtras      []string `json:"selectedExtras,omitempty"`
	ExcludedIngredients []string `json:"excludedIngredients,omitempty"`
}

type purchaseDoc struct {
	ID                 string    `json:"id"`
	EventID            string    `json:"eventId"`
	ServingPointID     string    `json:"servingPointId"`
	UserID             string    `json:"userId"`
	Note               string    `json:"note"`
	OrderPlaced        time.Time `json:"orderPlaced"`
	IsPaid             bool      `json:"isPaid"`
	Distributed        bool      `json:"distributed"`
	DistributedAt      time.Time `json:"distributedAt"`
	DistributionError  string    `json:"distributionError"`
	DistributionFailed bool      `json:"distributionFailed"`
	TotalPrice         float64   `json:"totalPrice"`
	PaymentMethod      string    `json:"paymentMethod"`
	Version            int64     `json:"version"`
}

type purchaseItemEntryDoc struct {
	Quantity            float64  `json:"quantity"`
	SelectedExtras      []string `json:"selectedExtras,omitempty"`
	ExcludedIngredients []string `json:"excludedIngredients,omitempty"`
}

type purchaseItemDoc struct {
	ItemID              string                 `json:"itemId"`
	Quantity            float64                `json:"quantity"`
	Count               float64                `json:"count"`
	SelectedExtras      []string               `json:"selectedExtras,omitempty"`
	ExcludedIngredients []string               `json:"excludedIngredients,omitempty"`
	Entries             []purchaseItemEntryDoc `json:"entries,omitempty"`
	Status              string                 `json:"status"`
	Calculated          bool                   `json:"calculated"`
}

type distributedOrderDoc struct {
	ID                   string    `json:"id"`
	EventID              string    `json:"eventId"`
	POSID                string    `json:"posId"`
	OrderStatus          string    `json:"orderStatus"`
	OrderDate            time.Time `json:"orderDate"`
	ServingPointName     string    `json:"servingPointName"`
	ServingPointLocation string    `json:"servingPointLocation"`
	Note                 string    `json:"note"`
	TabletNumber         string    `json:"tabletNumber"`
	TransferredAt        time.Time `json:"transferredAt"`
	TotalPrice           float64   `json:"totalPrice"`
}

type distributedOrderItemDoc struct {
	Key                 string   `json:"key"`
	ItemID              string   `json:"itemId"`
	Name                string   `json:"name"`
	Price               float64  `json:"price"`
	Count               int      `json:"count"`
	Category            string   `json:"category"`
	CategoryName        string   `json:"categoryName"`
	SelectedExtras      []string `json:"selectedExtras,omitempty"`
	ExcludedIngredients []string `json:"excludedIngredients,omitempty"`
	Status              string   `json:"status"`
}

type notificationDoc struct {
	ID             string    `json:"id"`
	EventID        string    `json:"eventId"`
	Title          string    `json:"title"`
	Message        string    `json:"message"`
	PointOfService string    `json:"pointOfService"`
	Price          float64   `json:"price"`
	ItemIDs        []string  `json:"itemIds,omitempty"`
	OrderID        string    `json:"orderId"`
	PaymentMethod  string    `json:"paymentMethod"`
	Severity       string    `json:"severity"`
	Action         string    `json:"action"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// --- conversions ---

func toItemDoc(it domain.Item) itemDoc {
	return itemDoc{
		ID: it.ID, Name: it.Name, Price: it.Price, Category: it.Category,
		CategoryName: it.CategoryName, IsAvailable: it.IsAvailable, SoldOut: it.SoldOut,
	}
}

func fromItemDoc(d itemDoc) domain.Item {
	return domain.Item{
		ID: d.ID, Name: d.Name, Price: d.Price, Category: d.Category,
		CategoryName: d.CategoryName, IsAvailable: d.IsAvailable, SoldOut: d.SoldOut,
	}
}

func toPOSItemDoc(it domain.POSItem) posItemDoc {
	return posItemDoc{
		ID: it.ID, Name: it.Name, Price: it.Price, Count: it.Count, Category: it.Category,
		CategoryName: it.CategoryName, IsAvailable: it.IsAvailable, SoldOut: it.SoldOut,
		SelectedExtras: it.SelectedExtras, ExcludedIngredients: it.ExcludedIngredients,
	}
}

func fromPOSItemDoc(d posItemDoc) domain.POSItem {
	return domain.POSItem{
		ID: d.ID, Name: d.Name, Price: d.Price, Count: d.Count, Category: d.Category,
		CategoryName: d.CategoryName, IsAvailable: d.IsAvailable, SoldOut: d.SoldOut,
		SelectedExtras: d.SelectedExtras, ExcludedIngredients: d.ExcludedIngredients,
	}
}

func toPurchaseDoc(p domain.Purchase) purchaseDoc {
	return purchaseDoc{
		ID: p.ID, EventID: p.EventID, ServingPointID: p.ServingPointID, UserID: p.UserID,
		Note: p.Note, OrderPlaced: p.OrderPlaced, IsPaid: p.IsPaid, Distributed: p.Distributed,
		DistributedAt: p.DistributedAt, DistributionError: p.DistributionError,
		DistributionFailed: p.DistributionFailed, TotalPrice: p.TotalPrice,
		PaymentMethod: p.PaymentMethod, Version: p.Version,
	}
}

func fromPurchaseDoc(d purchaseDoc) domain.Purchase {
	return domain.Purchase{
		ID: d.ID, EventID: d.EventID, ServingPointID: d.ServingPointID, UserID: d.UserID,
		Note: d.Note, OrderPlaced: d.OrderPlaced, IsPaid: d.IsPaid, Distributed: d.Distributed,
		DistributedAt: d.DistributedAt, DistributionError: d.DistributionError,
		DistributionFailed: d.DistributionFailed, TotalPrice: d.TotalPrice,
		PaymentMethod: d.PaymentMethod, Version: d.Version,
	}
}

func toPurchaseItemDoc(d domain.PurchaseItemDoc) purchaseItemDoc {
	entries := make([]purchaseItemEntryDoc, 0, len(d.Entries))
	for _, e := range d.Entries {
		entries = append(entries, purchaseItemEntryDoc{
			Quantity: e.Quantity, SelectedExtras: e.SelectedExtras, ExcludedIngredients: e.ExcludedIngredients,
		})
	}
	return purchaseItemDoc{
		ItemID: d.ItemID, Quantity: d.Quantity, Count: d.Count,
		SelectedExtras: d.SelectedExtras, ExcludedIngredients: d.ExcludedIngredients,
		Entries: entries, Status: d.Status, Calculated: d.Calculated,
	}
}

func fromPurchaseItemDoc(d purchaseItemDoc) domain.PurchaseItemDoc {
	entries := make([]domain.PurchaseItemEntry, 0, len(d.Entries))
	for _, e := range d.Entries {
		entries = append(entries, domain.PurchaseItemEntry{
			Quantity: e.Quantity, SelectedExtras: e.SelectedExtras, ExcludedIngredients: e.ExcludedIngredients,
		})
	}
	return domain.PurchaseItemDoc{
		ItemID: d.ItemID, Quantity: d.Quantity, Count: d.Count,
		SelectedExtras: d.SelectedExtras, ExcludedIngredients: d.ExcludedIngredients,
		Entries: entries, Status: d.Status, Calculated: d.Calculated,
	}
}

func toDistributedOrderDoc(o domain.DistributedOrder) distributedOrderDoc {
	return distributedOrderDoc{
		ID: o.ID, EventID: o.EventID, POSID: o.POSID, OrderStatus: string(o.OrderStatus),
		OrderDate: o.OrderDate, ServingPointName: o.ServingPointName, ServingPointLocation: o.ServingPointLocation,
		Note: o.Note, TabletNumber: o.TabletNumber, TransferredAt: o.TransferredAt, TotalPrice: o.TotalPrice,
	}
}

func fromDistributedOrderDoc(d distributedOrderDoc) domain.DistributedOrder {
	return domain.DistributedOrder{
		ID: d.ID, EventID: d.EventID, POSID: d.POSID, OrderStatus: domain.DistributedOrderStatus(d.OrderStatus),
		OrderDate: d.OrderDate, ServingPointName: d.ServingPointName, ServingPointLocation: d.ServingPointLocation,
		Note: d.Note, TabletNumber: d.TabletNumber, TransferredAt: d.TransferredAt, TotalPrice: d.TotalPrice,
	}
}

func toDistributedOrderItemDoc(it domain.DistributedOrderItem) distributedOrderItemDoc {
	return distributedOrderItemDoc{
		Key: it.Key, ItemID: it.ItemID, Name: it.Name, Price: it.Price, Count: it.Count,
		Category: it.Category, CategoryName: it.CategoryName,
		SelectedExtras: it.SelectedExtras, ExcludedIngredients: it.ExcludedIngredients,
		Status: string(it.Status),
	}
}

func fromDistributedOrderItemDoc(d distributedOrderItemDoc) domain.DistributedOrderItem {
	return domain.DistributedOrderItem{
		Key: d.Key, ItemID: d.ItemID, Name: d.Name, Price: d.Price, Count: d.Count,
		Category: d.Category, CategoryName: d.CategoryName,
		SelectedExtras: d.SelectedExtras, ExcludedIngredients: d.ExcludedIngredients,
		Status: domain.DistributedOrderItemStatus(d.Status),
	}
}

func toNotificationDoc(n domain.Notification) notificationDoc {
	return notificationDoc{
		ID: n.ID, EventID: n.EventID, Title: n.Title, Message: n.Message, PointOfService: n.PointOfService,
		Price: n.Price, ItemIDs: n.ItemIDs, OrderID: n.OrderID, PaymentMethod: n.PaymentMethod,
		Severity: string(n.Severity), Action: string(n.Action), Status: string(n.Status),
		CreatedAt: n.CreatedAt, UpdatedAt: n.UpdatedAt,
	}
}

func fromNotificationDoc(d notificationDoc) domain.Notification {
	return domain.Notification{
		ID: d.ID, EventID: d.EventID, Title: d.Title, Message: d.Message, PointOfService: d.PointOfService,
		Price: d.Price, ItemIDs: d.ItemIDs, OrderID: d.OrderID, PaymentMethod: d.PaymentMethod,
		Severity: domain.NotificationSeverity(d.Severity), Action: domain.NotificationAction(d.Action),
		Status: domain.NotificationStatus(d.Status), CreatedAt: d.CreatedAt, UpdatedAt: d.UpdatedAt,
	}
}

// --- domain.StoreGateway ---

func (g *StoreGateway) GetEvent(eventID string) (*domain.Event, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	row, err := g.getDoc(ctx, g.db, collEvents, eventID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrEventNotFound
		}
		return nil, err
	}
	var d eventDoc
	if err := json.Unmarshal(row.data, &d); err != nil {
		return nil, fmt.Errorf("unmarshal event %s: %w", eventID, err)
	}
	return &domain.Event{ID: d.ID, DistributionMode: domain.DistributionMode(d.DistributionMode)}, nil
}

func (g *StoreGateway) ListPOS(eventID string) ([]domain.POS, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	rows, err := g.listDocs(ctx, g.db, collPOS, eventID+"/")
	if err != nil {
		return nil, err
	}
	out := make([]domain.POS, 0, len(rows))
	for _, r := range rows {
		var d posDoc
		if err := json.Unmarshal(r.data, &d); err != nil {
			return nil, fmt.Errorf("unmarshal pos %s: %w", r.id, err)
		}
		out = append(out, domain.POS{ID: d.ID, Name: d.Name, Description: d.Description, Location: d.Location})
	}
	return out, nil
}

func (g *StoreGateway) GetPOS(eventID, posID string) (*domain.POS, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	row, err := g.getDoc(ctx, g.db, collPOS, joinPath(eventID, posID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrPOSNotFound
		}
		return nil, err
	}
	var d posDoc
	if err := json.Unmarshal(row.data, &d); err != nil {
		return nil, fmt.Errorf("unmarshal pos %s: %w", posID, err)
	}
	return &domain.POS{ID: d.ID, Name: d.Name, Description: d.Description, Location: d.Location}, nil
}

func (g *StoreGateway) ListPOSItems(eventID, posID string) ([]domain.POSItem, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	rows, err := g.listDocs(ctx, g.db, collPOSItems, joinPath(eventID, posID)+"/")
	if err != nil {
		return nil, err
	}
	out := make([]domain.POSItem, 0, len(rows))
	for _, r := range rows {
		var d posItemDoc
		if err := json.Unmarshal(r.data, &d); err != nil {
			return nil, fmt.Errorf("unmarshal pos item %s: %w", r.id, err)
		}
		out = append(out, fromPOSItemDoc(d))
	}
	return out, nil
}

func (g *StoreGateway) GetPOSItem(eventID, posID, itemID string) (*domain.POSItem, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	row, err := g.getDoc(ctx, g.db, collPOSItems, joinPath(eventID, posID, itemID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrItemNotFound
		}
		return nil, err
	}
	var d posItemDoc
	if err := json.Unmarshal(row.data, &d); err != nil {
		return nil, fmt.Errorf("unmarshal pos item %s: %w", itemID, err)
	}
	it := fromPOSItemDoc(d)
	return &it, nil
}

func (g *StoreGateway) SetPOSItemAvailability(eventID, posID, itemID string, available bool) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	docID := joinPath(eventID, posID, itemID)
	row, err := g.getDoc(ctx, g.db, collPOSItems, docID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrItemNotFound
		}
		return err
	}
	var d posItemDoc
	if err := json.Unmarshal(row.data, &d); err != nil {
		return fmt.Errorf("unmarshal pos item %s: %w", itemID, err)
	}
	d.IsAvailable = available
	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshal pos item %s: %w", itemID, err)
	}
	return g.putDoc(ctx, g.db, collPOSItems, docID, data)
}

func (g *StoreGateway) GetServingPoint(eventID, id string) (*domain.ServingPoint, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	row, err := g.getDoc(ctx, g.db, collServingPoints, joinPath(eventID, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrServingPointNotFound
		}
		return nil, err
	}
	var d servingPointDoc
	if err := json.Unmarshal(row.data, &d); err != nil {
		return nil, fmt.Errorf("unmarshal serving point %s: %w", id, err)
	}
	return &domain.ServingPoint{ID: d.ID, Name: d.Name, Location: d.Location, AreaName: d.AreaName, Capacity: d.Capacity}, nil
}

func (g *StoreGateway) GetCanonicalItem(eventID, itemID string) (*domain.Item, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	row, err := g.getDoc(ctx, g.db, collItems, joinPath(eventID, itemID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrItemNotFound
		}
		return nil, err
	}
	var d itemDoc
	if err := json.Unmarshal(row.data, &d); err != nil {
		return nil, fmt.Errorf("unmarshal item %s: %w", itemID, err)
	}
	it := fromItemDoc(d)
	return &it, nil
}

func (g *StoreGateway) SetCanonicalItemAvailability(eventID, itemID string, available bool) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	docID := joinPath(eventID, itemID)
	row, err := g.getDoc(ctx, g.db, collItems, docID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrItemNotFound
		}
		return err
	}
	var d itemDoc
	if err := json.Unmarshal(row.data, &d); err != nil {
		return fmt.Errorf("unmarshal item %s: %w", itemID, err)
	}
	d.IsAvailable = available
	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshal item %s: %w", itemID, err)
	}
	return g.putDoc(ctx, g.db, collItems, docID, data)
}

func (g *StoreGateway) GetPurchase(eventID, purchaseID string) (*domain.Purchase, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	row, err := g.getDoc(ctx, g.db, collPurchases, joinPath(eventID, purchaseID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrPurchaseNotFound
		}
		return nil, err
	}
	var d purchaseDoc
	if err := json.Unmarshal(row.data, &d); err != nil {
		return nil, fmt.Errorf("unmarshal purchase %s: %w", purchaseID, err)
	}
	p := fromPurchaseDoc(d)
	return &p, nil
}

func (g *StoreGateway) ListPurchaseItems(eventID, purchaseID string) ([]domain.PurchaseItemDoc, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	rows, err := g.listDocs(ctx, g.db, collPurchaseItems, joinPath(eventID, purchaseID)+"/")
	if err != nil {
		return nil, err
	}
	out := make([]domain.PurchaseItemDoc, 0, len(rows))
	for _, r := range rows {
		var d purchaseItemDoc
		if err := json.Unmarshal(r.data, &d); err != nil {
			return nil, fmt.Errorf("unmarshal purchase item %s: %w", r.id, err)
		}
		out = append(out, fromPurchaseItemDoc(d))
	}
	return out, nil
}

func (g *StoreGateway) SetPurchaseItems(eventID, purchaseID string, items []domain.PurchaseItemDoc) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	for _, item := range items {
		if item.ItemID == "" {
			return fmt.Errorf("purchase item missing item id")
		}
		data, err := json.Marshal(toPurchaseItemDoc(item))
		if err != nil {
			return fmt.Errorf("marshal purchase item %s: %w", item.ItemID, err)
		}
		docID := joinPath(eventID, purchaseID, item.ItemID)
		if err := g.putDoc(ctx, g.db, collPurchaseItems, docID, data); err != nil {
			return err
		}
	}
	return nil
}

func (g *StoreGateway) UpsertPurchase(eventID string, purchase *domain.Purchase) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	purchase.EventID = eventID
	data, err := json.Marshal(toPurchaseDoc(*purchase))
	if err != nil {
		return fmt.Errorf("marshal purchase %s: %w", purchase.ID, err)
	}
	return g.putDoc(ctx, g.db, collPurchases, joinPath(eventID, purchase.ID), data)
}

func (g *StoreGateway) PatchPurchaseDistribution(eventID, purchaseID string, result domain.DistributionOutcome) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	docID := joinPath(eventID, purchaseID)
	row, err := g.getDoc(ctx, g.db, collPurchases, docID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrPurchaseNotFound
		}
		return err
	}
	var d purchaseDoc
	if err := json.Unmarshal(row.data, &d); err != nil {
		return fmt.Errorf("unmarshal purchase %s: %w", purchaseID, err)
	}
	d.Distributed = result.Distributed
	d.DistributedAt = result.DistributedAt
	d.DistributionError = result.DistributionError
	d.DistributionFailed = result.DistributionFailed
	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshal purchase %s: %w", purchaseID, err)
	}
	return g.putDoc(ctx, g.db, collPurchases, docID, data)
}

func (g *StoreGateway) CancelPurchaseItems(eventID, purchaseID string, itemIDs []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	want := toSet(itemIDs)
	prefix := joinPath(eventID, purchaseID) + "/"
	rows, err := g.listDocs(ctx, g.db, collPurchaseItems, prefix)
	if err != nil {
		return err
	}
	for _, r := range rows {
		var d purchaseItemDoc
		if err := json.Unmarshal(r.data, &d); err != nil {
			return fmt.Errorf("unmarshal purchase item %s: %w", r.id, err)
		}
		if !want[d.ItemID] {
			continue
		}
		d.Status = "canceled"
		d.Quantity = 0
		d.Count = 0
		data, err := json.Marshal(d)
		if err != nil {
			return fmt.Errorf("marshal purchase item %s: %w", r.id, err)
		}
		if err := g.putDoc(ctx, g.db, collPurchaseItems, r.id, data); err != nil {
			return err
		}
	}
	return nil
}

func (g *StoreGateway) RecomputePurchaseTotal(eventID, purchaseID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	docID := joinPath(eventID, purchaseID)
	purchaseRow, err := g.getDoc(ctx, g.db, collPurchases, docID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrPurchaseNotFound
		}
		return err
	}
	var pd purchaseDoc
	if err := json.Unmarshal(purchaseRow.data, &pd); err != nil {
		return fmt.Errorf("unmarshal purchase %s: %w", purchaseID, err)
	}

	itemRows, err := g.listDocs(ctx, g.db, collPurchaseItems, joinPath(eventID, purchaseID)+"/")
	if err != nil {
		return err
	}

	var total float64
	for _, r := range itemRows {
		var d purchaseItemDoc
		if err := json.Unmarshal(r.data, &d); err != nil {
			return fmt.Errorf("unmarshal purchase item %s: %w", r.id, err)
		}
		if d.Status == "canceled" {
			continue
		}
		lines := domain.NormalizeQuantity(fromPurchaseItemDoc(d))
		price, err := g.itemPrice(ctx, eventID, d.ItemID)
		if err != nil {
			return err
		}
		total += float64(len(lines)) * price
	}

	pd.TotalPrice = total
	data, err := json.Marshal(pd)
	if err != nil {
		return fmt.Errorf("marshal purchase %s: %w", purchaseID, err)
	}
	return g.putDoc(ctx, g.db, collPurchases, docID, data)
}

func (g *StoreGateway) itemPrice(ctx context.Context, eventID, itemID string) (float64, error) {
	row, err := g.getDoc(ctx, g.db, collItems, joinPath(eventID, itemID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	var d itemDoc
	if err := json.Unmarshal(row.data, &d); err != nil {
		return 0, fmt.Errorf("unmarshal item %s: %w", itemID, err)
	}
	return d.Price, nil
}

func (g *StoreGateway) CountOpenOrders(eventID, posID string) (int, error) {
	orders, err := g.ListOpenOrders(eventID, posID)
	if err != nil {
		return 0, err
	}
	return len(orders), nil
}

func (g *StoreGateway) ListOpenOrders(eventID, posID string) ([]domain.DistributedOrder, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	rows, err := g.listDocs(ctx, g.db, collDistributedOrders, joinPath(eventID, posID)+"/")
	if err != nil {
		return nil, err
	}
	var out []domain.DistributedOrder
	for _, r := range rows {
		var d distributedOrderDoc
		if err := json.Unmarshal(r.data, &d); err != nil {
			return nil, fmt.Errorf("unmarshal distributed order %s: %w", r.id, err)
		}
		if d.OrderStatus == string(domain.DistributedOrderOpen) {
			out = append(out, fromDistributedOrderDoc(d))
		}
	}
	return out, nil
}

func (g *StoreGateway) GetDistributedOrder(eventID, posID, orderID string) (*domain.DistributedOrder, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	row, err := g.getDoc(ctx, g.db, collDistributedOrders, joinPath(eventID, posID, orderID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, err
	}
	var d distributedOrderDoc
	if err := json.Unmarshal(row.data, &d); err != nil {
		return nil, fmt.Errorf("unmarshal distributed order %s: %w", orderID, err)
	}
	o := fromDistributedOrderDoc(d)
	return &o, nil
}

func (g *StoreGateway) ListDistributedOrderItems(eventID, posID, orderID string) ([]domain.DistributedOrderItem, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	rows, err := g.listDocs(ctx, g.db, collDistributedOrderItems, joinPath(eventID, posID, orderID)+"/")
	if err != nil {
		return nil, err
	}
	out := make([]domain.DistributedOrderItem, 0, len(rows))
	for _, r := range rows {
		var d distributedOrderItemDoc
		if err := json.Unmarshal(r.data, &d); err != nil {
			return nil, fmt.Errorf("unmarshal distributed order item %s: %w", r.id, err)
		}
		out = append(out, fromDistributedOrderItemDoc(d))
	}
	return out, nil
}

func (g *StoreGateway) WriteDistributedOrderBatch(eventID, posID string, batch domain.DistributedOrderBatch) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	order := *batch.Order
	order.EventID = eventID
	order.POSID = posID
	data, err := json.Marshal(toDistributedOrderDoc(order))
	if err != nil {
		return fmt.Errorf("marshal distributed order %s: %w", order.ID, err)
	}
	if err = g.putDoc(ctx, tx, collDistributedOrders, joinPath(eventID, posID, order.ID), data); err != nil {
		return err
	}

	for _, item := range batch.Items {
		itemData, merr := json.Marshal(toDistributedOrderItemDoc(item))
		if merr != nil {
			err = fmt.Errorf("marshal distributed order item %s: %w", item.Key, merr)
			return err
		}
		if err = g.putDoc(ctx, tx, collDistributedOrderItems, joinPath(eventID, posID, order.ID, item.Key), itemData); err != nil {
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit distributed order batch: %w", err)
	}
	return nil
}

func (g *StoreGateway) UpsertDistributedOrder(eventID, posID string, order *domain.DistributedOrder) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	order.EventID = eventID
	order.POSID = posID
	data, err := json.Marshal(toDistributedOrderDoc(*order))
	if err != nil {
		return fmt.Errorf("marshal distributed order %s: %w", order.ID, err)
	}
	return g.putDoc(ctx, g.db, collDistributedOrders, joinPath(eventID, posID, order.ID), data)
}

func (g *StoreGateway) MarkDistributedOrderItemsCanceling(eventID, posID, orderID, itemID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	prefix := joinPath(eventID, posID, orderID) + "/"
	rows, err := g.listDocs(ctx, g.db, collDistributedOrderItems, prefix)
	if err != nil {
		return err
	}
	for _, r := range rows {
		var d distributedOrderItemDoc
		if err := json.Unmarshal(r.data, &d); err != nil {
			return fmt.Errorf("unmarshal distributed order item %s: %w", r.id, err)
		}
		if d.ItemID != itemID || d.Status != string(domain.DistributedItemActive) {
			continue
		}
		d.Status = string(domain.DistributedItemMarkedForCanceling)
		data, err := json.Marshal(d)
		if err != nil {
			return fmt.Errorf("marshal distributed order item %s: %w", r.id, err)
		}
		if err := g.putDoc(ctx, g.db, collDistributedOrderItems, r.id, data); err != nil {
			return err
		}
	}
	return nil
}

func (g *StoreGateway) CancelDistributedOrderItems(eventID, posID, orderID string, itemIDs []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	want := toSet(itemIDs)
	prefix := joinPath(eventID, posID, orderID) + "/"
	rows, err := g.listDocs(ctx, g.db, collDistributedOrderItems, prefix)
	if err != nil {
		return err
	}
	for _, r := range rows {
		var d distributedOrderItemDoc
		if err := json.Unmarshal(r.data, &d); err != nil {
			return fmt.Errorf("unmarshal distributed order item %s: %w", r.id, err)
		}
		if !want[d.ItemID] {
			continue
		}
		d.Status = string(domain.DistributedItemCanceled)
		d.Count = 0
		data, err := json.Marshal(d)
		if err != nil {
			return fmt.Errorf("marshal distributed order item %s: %w", r.id, err)
		}
		if err := g.putDoc(ctx, g.db, collDistributedOrderItems, r.id, data); err != nil {
			return err
		}
	}
	return nil
}

func (g *StoreGateway) RecomputeDistributedOrderTotal(eventID, posID, orderID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	docID := joinPath(eventID, posID, orderID)
	orderRow, err := g.getDoc(ctx, g.db, collDistributedOrders, docID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrOrderNotFound
		}
		return err
	}
	var od distributedOrderDoc
	if err := json.Unmarshal(orderRow.data, &od); err != nil {
		return fmt.Errorf("unmarshal distributed order %s: %w", orderID, err)
	}

	itemRows, err := g.listDocs(ctx, g.db, collDistributedOrderItems, docID+"/")
	if err != nil {
		return err
	}

	var total float64
	for _, r := range itemRows {
		var d distributedOrderItemDoc
		if err := json.Unmarshal(r.data, &d); err != nil {
			return fmt.Errorf("unmarshal distributed order item %s: %w", r.id, err)
		}
		if d.Status == string(domain.DistributedItemCanceled) {
			continue
		}
		total += d.Price * float64(d.Count)
	}

	od.TotalPrice = total
	data, err := json.Marshal(od)
	if err != nil {
		return fmt.Errorf("marshal distributed order %s: %w", orderID, err)
	}
	return g.putDoc(ctx, g.db, collDistributedOrders, docID, data)
}

func (g *StoreGateway) FindActiveNotification(eventID, orderID, action string) (*domain.Notification, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	rows, err := g.listDocs(ctx, g.db, collNotifications, eventID+"/")
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		var d notificationDoc
		if err := json.Unmarshal(r.data, &d); err != nil {
			return nil, fmt.Errorf("unmarshal notification %s: %w", r.id, err)
		}
		if d.OrderID != orderID || d.Action != action {
			continue
		}
		if domain.NotificationStatus(d.Status).IsDedupable() {
			n := fromNotificationDoc(d)
			return &n, nil
		}
	}
	return nil, nil
}

func (g *StoreGateway) UpsertNotification(eventID string, n *domain.Notification) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	n.EventID = eventID
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	data, err := json.Marshal(toNotificationDoc(*n))
	if err != nil {
		return "", fmt.Errorf("marshal notification %s: %w", n.ID, err)
	}
	if err := g.putDoc(ctx, g.db, collNotifications, joinPath(eventID, n.ID), data); err != nil {
		return "", err
	}
	return n.ID, nil
}

// RunMigrationTxn moves one grouped line item from a source distributed
// order to a destination order, merging it into destCount if the item
// already has a presence there, inside a single SQL transaction.
func (g *StoreGateway) RunMigrationTxn(eventID, srcPOSID, destPOSID, orderID string, item domain.DistributedOrderItem, destCount int) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	merged := item
	merged.Count = destCount + item.Count
	merged.Status = domain.DistributedItemActive

	data, merr := json.Marshal(toDistributedOrderItemDoc(merged))
	if merr != nil {
		err = fmt.Errorf("marshal migrated item %s: %w", item.Key, merr)
		return err
	}
	if err = g.putDoc(ctx, tx, collDistributedOrderItems, joinPath(eventID, destPOSID, orderID, item.Key), data); err != nil {
		return err
	}
	if err = g.deleteDoc(ctx, tx, collDistributedOrderItems, joinPath(eventID, srcPOSID, orderID, item.Key)); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit migration tx: %w", err)
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

var _ domain.StoreGateway = (*StoreGateway)(nil)
