package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/boxflow-erp/boxflow-erp/internal/inventory"
	"github.com/boxflow-erp/boxflow-erp/internal/purchasing"
)

// NewLowStockAlertHandler surfaces low stock conditions in the worker log.
// TODO: route alerts to email once the plant's SMTP relay is provisioned.
func NewLowStockAlertHandler(logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var event inventory.LowStockEvent
		if err := json.Unmarshal(t.Payload(), &event); err != nil {
			return asynq.SkipRetry
		}
		logger.Warn("low stock alert",
			slog.Int64("material_id", event.MaterialID),
			slog.String("code", event.Code),
			slog.String("status", event.Status),
			slog.Float64("current", event.CurrentStock),
			slog.Float64("minimum", event.MinimumStock))
		return nil
	}
}

// NewPODeliveredHandler processes fully-delivered purchase orders.
func NewPODeliveredHandler(logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var event purchasing.DeliveredEvent
		if err := json.Unmarshal(t.Payload(), &event); err != nil {
			return asynq.SkipRetry
		}
		logger.Info("purchase order delivered",
			slog.Int64("po_id", event.POID),
			slog.String("number", event.Number),
			slog.Int64("supplier_id", event.SupplierID),
			slog.Float64("total", event.Total))
		return nil
	}
}

// NewStockStatusScanHandler recomputes derived stock statuses for every
// material. Movements keep statuses current during normal operation; the scan
// repairs drift after manual database edits or imports.
func NewStockStatusScanHandler(pool *pgxpool.Pool, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload StockStatusScanPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		tag, err := pool.Exec(ctx, `UPDATE materials SET stock_status = derived.status, updated_at = NOW()
FROM (
  SELECT id, CASE
    WHEN current_stock <= 0 THEN 'Out of Stock'
    WHEN current_stock <= minimum_stock THEN 'Low Stock'
    ELSE 'In Stock'
  END AS status
  FROM materials
) AS derived
WHERE materials.id = derived.id AND materials.stock_status IS DISTINCT FROM derived.status`)
		if err != nil {
			return err
		}
		logger.Info("stock status scan",
			slog.Int64("repaired", tag.RowsAffected()),
			slog.Time("scheduled_for", payload.ScheduledFor))
		return nil
	}
}
