package inventory

import (
	"errors"
	"time"
)

// MovementType enumerates supported stock movements.
type MovementType string

const (
	// MovementIn represents stock received into the plant.
	MovementIn MovementType = "IN"
	// MovementOut represents stock issued out of the plant.
	MovementOut MovementType = "OUT"
)

// Movement models one entry of the append-only stock movement log.
// Entries are never mutated after creation.
type Movement struct {
	ID         int64        `json:"id"`
	Code       string       `json:"code"`
	MaterialID int64        `json:"material_id"`
	Type       MovementType `json:"type"`
	Qty        float64      `json:"qty"`
	PONumber   string       `json:"po_number,omitempty"`
	JobNumber  string       `json:"job_number,omitempty"`
	Note       string       `json:"note,omitempty"`
	PostedAt   time.Time    `json:"posted_at"`
	CreatedBy  int64        `json:"created_by"`
}

// MaterialStock is the stock view of a material row, locked during posting.
type MaterialStock struct {
	ID           int64
	Code         string
	Name         string
	CurrentStock float64
	MinimumStock float64
}

// InboundInput describes a stock-in posting.
type InboundInput struct {
	Code       string
	MaterialID int64
	Qty        float64
	PONumber   string
	JobNumber  string
	Note       string
	ActorID    int64
}

// OutboundInput describes a stock-out posting.
type OutboundInput struct {
	Code       string
	MaterialID int64
	Qty        float64
	JobNumber  string
	Note       string
	ActorID    int64
}

// MovementFilter filters movement log listings.
type MovementFilter struct {
	MaterialID int64
	Type       MovementType
	From       time.Time
	To         time.Time
	Limit      int
}

// ErrMaterialNotFound indicates a movement references an unknown material.
var ErrMaterialNotFound = errors.New("inventory: material not found")

// ErrInvalidQuantity indicates invalid qty.
var ErrInvalidQuantity = errors.New("inventory: quantity must be positive")

// ErrNegativeStock triggered when a movement would result in negative stock.
var ErrNegativeStock = errors.New("inventory: negative stock not allowed")
