package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/boxflow-erp/boxflow-erp/internal/masterdata/materials"
	"github.com/boxflow-erp/boxflow-erp/internal/shared"
)

// RepositoryPort abstracts persistence for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error)
}

// AuditPort records audit trail entries.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyPort guards against duplicate postings.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// ServiceConfig tunes movement posting behaviour.
type ServiceConfig struct {
	AllowNegativeStock bool
}

// Service posts stock movements and keeps material stock consistent.
type Service struct {
	repo        RepositoryPort
	audit       AuditPort
	idempotency IdempotencyPort
	alerts      AlertPort
	logger      *slog.Logger
	cfg         ServiceConfig
}

// NewService wires the inventory service.
func NewService(repo RepositoryPort, audit AuditPort, idempotency IdempotencyPort, alerts AlertPort, logger *slog.Logger, cfg ServiceConfig) *Service {
	return &Service{repo: repo, audit: audit, idempotency: idempotency, alerts: alerts, logger: logger, cfg: cfg}
}

// PostInbound appends an IN movement and raises the material stock.
func (s *Service) PostInbound(ctx context.Context, input InboundInput) (Movement, error) {
	return s.postMovement(ctx, Movement{
		Code:       input.Code,
		MaterialID: input.MaterialID,
		Type:       MovementIn,
		Qty:        input.Qty,
		PONumber:   input.PONumber,
		JobNumber:  input.JobNumber,
		Note:       input.Note,
		CreatedBy:  input.ActorID,
	})
}

// PostOutbound appends an OUT movement and lowers the material stock.
func (s *Service) PostOutbound(ctx context.Context, input OutboundInput) (Movement, error) {
	return s.postMovement(ctx, Movement{
		Code:       input.Code,
		MaterialID: input.MaterialID,
		Type:       MovementOut,
		Qty:        input.Qty,
		JobNumber:  input.JobNumber,
		Note:       input.Note,
		CreatedBy:  input.ActorID,
	})
}

// ListMovements returns log entries ordered by posting time.
func (s *Service) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	return s.repo.ListMovements(ctx, filter)
}

func (s *Service) postMovement(ctx context.Context, movement Movement) (Movement, error) {
	if movement.Qty <= 0 {
		return Movement{}, ErrInvalidQuantity
	}
	if movement.MaterialID == 0 {
		return Movement{}, ErrMaterialNotFound
	}
	if movement.Code == "" {
		movement.Code = fmt.Sprintf("MOV-%d", time.Now().UnixNano())
	}
	movement.PostedAt = time.Now()

	if err := s.idempotency.CheckAndInsert(ctx, movement.Code, "inventory"); err != nil {
		return Movement{}, err
	}

	var lowStock *LowStockEvent
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		material, err := tx.GetMaterialForUpdate(ctx, movement.MaterialID)
		if err != nil {
			return err
		}
		next := material.CurrentStock
		switch movement.Type {
		case MovementIn:
			next += movement.Qty
		case MovementOut:
			next -= movement.Qty
		}
		if next < 0 && !s.cfg.AllowNegativeStock {
			return ErrNegativeStock
		}
		id, err := tx.InsertMovement(ctx, movement)
		if err != nil {
			return err
		}
		movement.ID = id
		status := materials.ComputeStockStatus(next, material.MinimumStock)
		if err := tx.UpdateMaterialStock(ctx, material.ID, next, string(status)); err != nil {
			return err
		}
		if status != materials.StockStatusIn {
			lowStock = &LowStockEvent{
				MaterialID:   material.ID,
				Code:         material.Code,
				Name:         material.Name,
				CurrentStock: next,
				MinimumStock: material.MinimumStock,
				Status:       string(status),
			}
		}
		return nil
	})
	if err != nil {
		// Free the key so the caller may retry once the cause is fixed.
		if delErr := s.idempotency.Delete(ctx, movement.Code); delErr != nil {
			s.logger.Warn("idempotency rollback failed", slog.String("code", movement.Code), slog.Any("error", delErr))
		}
		return Movement{}, err
	}

	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  movement.CreatedBy,
		Action:   "inventory.movement." + string(movement.Type),
		Entity:   "stock_movement",
		EntityID: strconv.FormatInt(movement.ID, 10),
		Meta: map[string]any{
			"code":        movement.Code,
			"material_id": movement.MaterialID,
			"qty":         movement.Qty,
		},
	}); err != nil {
		s.logger.Warn("audit write failed", slog.Any("error", err))
	}

	if lowStock != nil && s.alerts != nil {
		if err := s.alerts.NotifyLowStock(ctx, *lowStock); err != nil {
			s.logger.Warn("low stock alert enqueue failed", slog.Int64("material_id", lowStock.MaterialID), slog.Any("error", err))
		}
	}

	s.logger.Info("stock movement posted",
		slog.String("code", movement.Code),
		slog.String("type", string(movement.Type)),
		slog.Int64("material_id", movement.MaterialID),
		slog.Float64("qty", movement.Qty))

	return movement, nil
}
