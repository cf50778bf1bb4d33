// Package jobs contains the asynq task definitions and worker plumbing for
// background processing.
package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"

	"github.com/boxflow-erp/boxflow-erp/internal/inventory"
	"github.com/boxflow-erp/boxflow-erp/internal/purchasing"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLowStockAlert notifies operators that a material dropped to or
	// below its minimum stock.
	TaskLowStockAlert = "inventory:low_stock_alert"
	// TaskPODelivered fans out downstream processing once a purchase order
	// is fully delivered.
	TaskPODelivered = "purchasing:po_delivered"
	// TaskStockStatusScan recomputes derived stock statuses across the
	// material master.
	TaskStockStatusScan = "inventory:stock_status_scan"
)

// NewLowStockAlertTask constructs an asynq task from a low stock event.
func NewLowStockAlertTask(event inventory.LowStockEvent) (*asynq.Task, error) {
	body, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLowStockAlert, body, asynq.Queue(QueueDefault)), nil
}

// NewPODeliveredTask constructs an asynq task from a delivered event.
func NewPODeliveredTask(event purchasing.DeliveredEvent) (*asynq.Task, error) {
	body, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPODelivered, body, asynq.Queue(QueueDefault)), nil
}

// StockStatusScanPayload carries scheduling metadata.
type StockStatusScanPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewStockStatusScanTask constructs the periodic stock status scan task.
func NewStockStatusScanTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(StockStatusScanPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskStockStatusScan, body, asynq.Queue(QueueDefault)), nil
}
