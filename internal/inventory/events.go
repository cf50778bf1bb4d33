package inventory

import "context"

// LowStockEvent is emitted when a stock change leaves a material at or below
// its minimum level.
type LowStockEvent struct {
	MaterialID   int64
	Code         string
	Name         string
	CurrentStock float64
	MinimumStock float64
	Status       string
}

// AlertPort receives low stock events, typically backed by the job queue.
type AlertPort interface {
	NotifyLowStock(ctx context.Context, evt LowStockEvent) error
}
