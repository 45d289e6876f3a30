// Package v1 holds the wire types for DistributionService
// (distribution/v1/distribution_service.proto). The engine's gRPC layer
// never grew a protoc/buf toolchain step (see DESIGN.md for why), so these
// are hand-written structs carrying the same field set the .proto
// documents, serialized with the JSON codec registered in codec.go rather
// than protobuf binary framing.
package v1

// PurchaseItem is one requested line item of a distributeOrder call.
type PurchaseItem struct {
	ItemID              string   `json:"item_id"`
	Quantity            int32    `json:"quantity"`
	SelectedExtras      []string `json:"selected_extras,omitempty"`
	ExcludedIngredients []string `json:"excluded_ingredients,omitempty"`
}

// DistributeOrderRequest is the distributeOrder RPC request (§6.1).
type DistributeOrderRequest struct {
	EventID          string         `json:"event_id"`
	Items            []PurchaseItem `json:"items"`
	ServingPointID   string         `json:"serving_point_id"`
	UserID           string         `json:"user_id,omitempty"`
	DistributionMode string         `json:"distribution_mode,omitempty"`
	Note             string         `json:"note,omitempty"`
	PaymentMethod    string         `json:"payment_method,omitempty"`
}

// DistributedPurchase summarizes one POS's share of a distributed purchase.
type DistributedPurchase struct {
	POSID      string `json:"pos_id"`
	POSName    string `json:"pos_name"`
	OrderID    string `json:"order_id"`
	ItemsCount int32  `json:"items_count"`
}

// DistributeOrderResponse is the distributeOrder RPC response (§6.1).
type DistributeOrderResponse struct {
	Success              bool                  `json:"success"`
	PurchaseID           string                `json:"purchase_id,omitempty"`
	DistributedPurchases []DistributedPurchase `json:"distributed_purchases,omitempty"`
	Error                string                `json:"error,omitempty"`
}

func (r *DistributeOrderResponse) GetPurchaseId() string {
	if r == nil {
		return ""
	}
	return r.PurchaseID
}
