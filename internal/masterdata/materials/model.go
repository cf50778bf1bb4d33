package materials

import (
	"time"
)

// StockStatus is derived from current versus minimum stock.
type StockStatus string

const (
	StockStatusIn  StockStatus = "In Stock"
	StockStatusLow StockStatus = "Low Stock"
	StockStatusOut StockStatus = "Out of Stock"
)

// ComputeStockStatus derives the stock status from current and minimum stock.
// It is a pure function of its inputs and must be recomputed whenever stock changes.
func ComputeStockStatus(currentStock, minimumStock float64) StockStatus {
	switch {
	case currentStock <= 0:
		return StockStatusOut
	case currentStock <= minimumStock:
		return StockStatusLow
	default:
		return StockStatusIn
	}
}

// Material represents a raw material master record.
type Material struct {
	ID           int64       `json:"id"`
	Code         string      `json:"code"`
	Name         string      `json:"name"`
	Unit         string      `json:"unit"`
	Rate         float64     `json:"rate"`
	CurrentStock float64     `json:"current_stock"`
	MinimumStock float64     `json:"minimum_stock"`
	Status       StockStatus `json:"status"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}
