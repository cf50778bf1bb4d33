package purchasing

import (
	"errors"
	"time"
)

// POStatus is the lifecycle state of a purchase order.
type POStatus string

const (
	StatusDraft        POStatus = "draft"
	StatusPending      POStatus = "pending"
	StatusApproved     POStatus = "approved"
	StatusSent         POStatus = "sent"
	StatusAcknowledged POStatus = "acknowledged"
	StatusDelivered    POStatus = "delivered"
	StatusRejected     POStatus = "rejected"
	StatusCancelled    POStatus = "cancelled"
)

// Event names a workflow transition request.
type Event string

const (
	EventSubmit      Event = "submit"
	EventApprove     Event = "approve"
	EventReject      Event = "reject"
	EventSend        Event = "send"
	EventAcknowledge Event = "acknowledge"
	EventCancel      Event = "cancel"
)

// transitions is the single authoritative transition table. Every status
// mutation in this package goes through NextStatus; nothing assigns a status
// directly.
var transitions = map[Event]map[POStatus]POStatus{
	EventSubmit:      {StatusDraft: StatusPending},
	EventApprove:     {StatusPending: StatusApproved},
	EventReject:      {StatusPending: StatusRejected},
	EventSend:        {StatusApproved: StatusSent},
	EventAcknowledge: {StatusSent: StatusAcknowledged},
	EventCancel: {
		StatusDraft:        StatusCancelled,
		StatusPending:      StatusCancelled,
		StatusApproved:     StatusCancelled,
		StatusSent:         StatusCancelled,
		StatusAcknowledged: StatusCancelled,
	},
}

// NextStatus returns the status reached by applying event from the current
// status, or ErrInvalidTransition when the event is not legal there.
func NextStatus(current POStatus, event Event) (POStatus, error) {
	next, ok := transitions[event][current]
	if !ok {
		return current, ErrInvalidTransition
	}
	return next, nil
}

// Terminal reports whether the status admits no further transitions.
func (s POStatus) Terminal() bool {
	return s == StatusDelivered || s == StatusRejected || s == StatusCancelled
}

// Valid reports whether s is a known status value.
func (s POStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusPending, StatusApproved, StatusSent,
		StatusAcknowledged, StatusDelivered, StatusRejected, StatusCancelled:
		return true
	}
	return false
}

// PurchaseOrder is the workflow aggregate. Status is mutated only through the
// transition table; the order itself is never deleted.
type PurchaseOrder struct {
	ID          int64     `json:"id"`
	Number      string    `json:"number"`
	SupplierID  int64     `json:"supplier_id"`
	Status      POStatus  `json:"status"`
	TotalAmount float64   `json:"total_amount"`
	ApprovedBy  int64     `json:"approved_by,omitempty"`
	Items       []POItem  `json:"items,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// POItem is one order line. DeliveredQuantity never exceeds Quantity.
type POItem struct {
	ID                int64   `json:"id"`
	POID              int64   `json:"po_id"`
	MaterialID        int64   `json:"material_id"`
	Quantity          float64 `json:"quantity"`
	Rate              float64 `json:"rate"`
	DeliveredQuantity float64 `json:"delivered_quantity"`
	QualityAccepted   *bool   `json:"quality_accepted,omitempty"`
	GRNNumber         string  `json:"grn_number,omitempty"`
}

// Complete reports whether the line needs no further delivery. A zero-quantity
// line counts as complete even though creation validation forbids it.
func (i POItem) Complete() bool {
	return i.Quantity == 0 || i.DeliveredQuantity >= i.Quantity
}

// ItemInput is one line of a new purchase order.
type ItemInput struct {
	MaterialID int64
	Quantity   float64
	Rate       float64
}

// CreateInput describes a new purchase order.
type CreateInput struct {
	Number     string
	SupplierID int64
	Items      []ItemInput
	ActorID    int64
}

// DeliveryInput describes one recorded delivery against an order line.
type DeliveryInput struct {
	POID            int64
	ItemID          int64
	Qty             float64
	QualityAccepted *bool
	GRNNumber       string
	ActorID         int64
}

// ListFilter narrows ListByStatus results.
type ListFilter struct {
	Status     POStatus
	SupplierID int64
	Page       int
	Limit      int
}

var (
	// ErrInvalidTransition indicates the event is not legal from the order's
	// current status.
	ErrInvalidTransition = errors.New("purchasing: invalid transition")
	// ErrQuantityExceeded indicates a delivery would push an item past its
	// ordered quantity.
	ErrQuantityExceeded = errors.New("purchasing: delivered quantity exceeds ordered quantity")
	// ErrItemNotFound indicates the item does not belong to the order.
	ErrItemNotFound = errors.New("purchasing: item not found")
	// ErrMaterialNotFound indicates a delivery references an unknown material.
	ErrMaterialNotFound = errors.New("purchasing: material not found")
	// ErrNotFound indicates the purchase order does not exist.
	ErrNotFound = errors.New("purchasing: purchase order not found")
	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("purchasing: validation failed")
)
