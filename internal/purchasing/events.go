package purchasing

import "context"

// DeliveredEvent is emitted once a purchase order reaches delivered.
type DeliveredEvent struct {
	POID       int64   `json:"po_id"`
	Number     string  `json:"number"`
	SupplierID int64   `json:"supplier_id"`
	Total      float64 `json:"total"`
}

// IntegrationPort hands completed-order events to downstream consumers,
// typically the background job queue.
type IntegrationPort interface {
	PODelivered(ctx context.Context, event DeliveredEvent) error
}
