package purchasing

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/boxflow-erp/boxflow-erp/internal/inventory"
	"github.com/boxflow-erp/boxflow-erp/internal/masterdata/materials"
	"github.com/boxflow-erp/boxflow-erp/internal/shared"
)

// RepositoryPort abstracts purchase order persistence.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetByID(ctx context.Context, poID int64) (PurchaseOrder, error)
	ListByStatus(ctx context.Context, filter ListFilter) ([]PurchaseOrder, int, error)
}

// AuditPort records audit trail entries.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// LockerPort serialises delivery recording per purchase order.
type LockerPort interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// MetricsPort observes delivery outcomes.
type MetricsPort interface {
	ObserveDelivery(outcome string)
}

// ServiceConfig tunes workflow behaviour.
type ServiceConfig struct {
	DeliveryLockTTL time.Duration
}

// Service drives the purchase order workflow. All status mutations go through
// the transition table and run inside a row-locked transaction.
type Service struct {
	repo         RepositoryPort
	audit        AuditPort
	locker       LockerPort
	integrations IntegrationPort
	metrics      MetricsPort
	logger       *slog.Logger
	cfg          ServiceConfig
}

// NewService wires the purchasing service. locker, integrations and metrics
// may be nil.
func NewService(repo RepositoryPort, audit AuditPort, locker LockerPort, integrations IntegrationPort, metrics MetricsPort, logger *slog.Logger, cfg ServiceConfig) *Service {
	if cfg.DeliveryLockTTL <= 0 {
		cfg.DeliveryLockTTL = 30 * time.Second
	}
	return &Service{repo: repo, audit: audit, locker: locker, integrations: integrations, metrics: metrics, logger: logger, cfg: cfg}
}

// Create opens a new purchase order in draft.
func (s *Service) Create(ctx context.Context, input CreateInput) (PurchaseOrder, error) {
	if input.SupplierID == 0 {
		return PurchaseOrder{}, fmt.Errorf("%w: supplier required", ErrValidation)
	}
	if len(input.Items) == 0 {
		return PurchaseOrder{}, fmt.Errorf("%w: at least one item required", ErrValidation)
	}
	var total float64
	for _, item := range input.Items {
		if item.MaterialID == 0 {
			return PurchaseOrder{}, fmt.Errorf("%w: item material required", ErrValidation)
		}
		if item.Quantity <= 0 {
			return PurchaseOrder{}, fmt.Errorf("%w: item quantity must be positive", ErrValidation)
		}
		if item.Rate <= 0 {
			return PurchaseOrder{}, fmt.Errorf("%w: item rate must be positive", ErrValidation)
		}
		total += item.Quantity * item.Rate
	}
	number := input.Number
	if number == "" {
		number = fmt.Sprintf("PO-%d", time.Now().UnixNano())
	}

	po := PurchaseOrder{
		Number:      number,
		SupplierID:  input.SupplierID,
		Status:      StatusDraft,
		TotalAmount: total,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertPO(ctx, po)
		if err != nil {
			return err
		}
		po.ID = id
		for _, in := range input.Items {
			item := POItem{POID: id, MaterialID: in.MaterialID, Quantity: in.Quantity, Rate: in.Rate}
			itemID, err := tx.InsertItem(ctx, item)
			if err != nil {
				return err
			}
			item.ID = itemID
			po.Items = append(po.Items, item)
		}
		return nil
	})
	if err != nil {
		return PurchaseOrder{}, err
	}

	s.recordAudit(ctx, input.ActorID, "purchasing.po.create", po.ID, map[string]any{"number": po.Number, "total": po.TotalAmount})
	s.logger.Info("purchase order created", slog.Int64("po_id", po.ID), slog.String("number", po.Number))
	return po, nil
}

// Submit moves a draft order into pending.
func (s *Service) Submit(ctx context.Context, poID, actorID int64) (PurchaseOrder, error) {
	return s.transition(ctx, poID, actorID, EventSubmit, nil)
}

// Approve marks a pending order approved and records the approver.
func (s *Service) Approve(ctx context.Context, poID, approvedBy int64) (PurchaseOrder, error) {
	return s.transition(ctx, poID, approvedBy, EventApprove, func(ctx context.Context, tx TxRepository, po PurchaseOrder, next POStatus) error {
		return tx.SetApproval(ctx, po.ID, next, approvedBy)
	})
}

// Reject terminates a pending order.
func (s *Service) Reject(ctx context.Context, poID, actorID int64) (PurchaseOrder, error) {
	return s.transition(ctx, poID, actorID, EventReject, nil)
}

// Send marks an approved order as sent to the supplier.
func (s *Service) Send(ctx context.Context, poID, actorID int64) (PurchaseOrder, error) {
	return s.transition(ctx, poID, actorID, EventSend, nil)
}

// Acknowledge records the supplier's acknowledgement of a sent order.
func (s *Service) Acknowledge(ctx context.Context, poID, actorID int64) (PurchaseOrder, error) {
	return s.transition(ctx, poID, actorID, EventAcknowledge, nil)
}

// Cancel terminates an order from any non-terminal status.
func (s *Service) Cancel(ctx context.Context, poID, actorID int64) (PurchaseOrder, error) {
	return s.transition(ctx, poID, actorID, EventCancel, nil)
}

type applyFn func(ctx context.Context, tx TxRepository, po PurchaseOrder, next POStatus) error

func (s *Service) transition(ctx context.Context, poID, actorID int64, event Event, apply applyFn) (PurchaseOrder, error) {
	var result PurchaseOrder
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		po, err := tx.GetPOForUpdate(ctx, poID)
		if err != nil {
			return err
		}
		next, err := NextStatus(po.Status, event)
		if err != nil {
			return fmt.Errorf("%w: %s from %s", ErrInvalidTransition, event, po.Status)
		}
		if apply != nil {
			if err := apply(ctx, tx, po, next); err != nil {
				return err
			}
		} else if err := tx.UpdateStatus(ctx, po.ID, next); err != nil {
			return err
		}
		po.Status = next
		if event == EventApprove {
			po.ApprovedBy = actorID
		}
		result = po
		return nil
	})
	if err != nil {
		return PurchaseOrder{}, err
	}

	s.recordAudit(ctx, actorID, "purchasing.po."+string(event), result.ID, map[string]any{"status": string(result.Status)})
	s.logger.Info("purchase order transition",
		slog.Int64("po_id", result.ID),
		slog.String("event", string(event)),
		slog.String("status", string(result.Status)))
	return result, nil
}

// RecordDelivery applies one delivery against an order line. The item
// increment, the stock-in movement and the material stock update commit in a
// single transaction; any failure leaves all three untouched. When every line
// is complete the order transitions to delivered.
func (s *Service) RecordDelivery(ctx context.Context, input DeliveryInput) (PurchaseOrder, error) {
	if input.Qty <= 0 {
		s.observeDelivery("rejected")
		return PurchaseOrder{}, fmt.Errorf("%w: delivery quantity must be positive", ErrValidation)
	}

	if s.locker != nil {
		release, err := s.locker.Acquire(ctx, shared.PurchaseOrderLockKey(input.POID), s.cfg.DeliveryLockTTL)
		if err != nil {
			return PurchaseOrder{}, err
		}
		defer release()
	}

	var (
		result    PurchaseOrder
		completed bool
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		po, err := tx.GetPOForUpdate(ctx, input.POID)
		if err != nil {
			return err
		}
		if po.Status != StatusAcknowledged {
			return fmt.Errorf("%w: record delivery from %s", ErrInvalidTransition, po.Status)
		}
		items, err := tx.GetItems(ctx, po.ID)
		if err != nil {
			return err
		}
		idx := -1
		for i := range items {
			if items[i].ID == input.ItemID {
				idx = i
				break
			}
		}
		if idx < 0 {
			return ErrItemNotFound
		}
		item := items[idx]
		if input.Qty+item.DeliveredQuantity > item.Quantity {
			return fmt.Errorf("%w: %g + %g > %g", ErrQuantityExceeded, item.DeliveredQuantity, input.Qty, item.Quantity)
		}

		item.DeliveredQuantity += input.Qty
		if input.QualityAccepted != nil {
			item.QualityAccepted = input.QualityAccepted
		}
		if input.GRNNumber != "" {
			item.GRNNumber = input.GRNNumber
		}
		if err := tx.UpdateItemDelivery(ctx, item); err != nil {
			return err
		}
		items[idx] = item

		material, err := tx.GetMaterialForUpdate(ctx, item.MaterialID)
		if err != nil {
			return err
		}
		nextStock := material.CurrentStock + input.Qty
		if _, err := tx.InsertMovement(ctx, inventory.Movement{
			Code:       fmt.Sprintf("MOV-%s-%d", po.Number, time.Now().UnixNano()),
			MaterialID: item.MaterialID,
			Type:       inventory.MovementIn,
			Qty:        input.Qty,
			PONumber:   po.Number,
			Note:       deliveryNote(input.GRNNumber),
			PostedAt:   time.Now(),
			CreatedBy:  input.ActorID,
		}); err != nil {
			return err
		}
		status := materials.ComputeStockStatus(nextStock, material.MinimumStock)
		if err := tx.UpdateMaterialStock(ctx, material.ID, nextStock, string(status)); err != nil {
			return err
		}

		// Completion is evaluated strictly after this call's increment.
		completed = true
		for _, it := range items {
			if !it.Complete() {
				completed = false
				break
			}
		}
		if completed {
			if err := tx.UpdateStatus(ctx, po.ID, StatusDelivered); err != nil {
				return err
			}
			po.Status = StatusDelivered
		}
		po.Items = items
		result = po
		return nil
	})
	if err != nil {
		s.observeDelivery("failed")
		return PurchaseOrder{}, err
	}

	s.observeDelivery("recorded")
	s.recordAudit(ctx, input.ActorID, "purchasing.po.delivery", result.ID, map[string]any{
		"item_id": input.ItemID,
		"qty":     input.Qty,
		"grn":     input.GRNNumber,
		"status":  string(result.Status),
	})
	s.logger.Info("delivery recorded",
		slog.Int64("po_id", result.ID),
		slog.Int64("item_id", input.ItemID),
		slog.Float64("qty", input.Qty),
		slog.Bool("completed", completed))

	if completed && s.integrations != nil {
		event := DeliveredEvent{POID: result.ID, Number: result.Number, SupplierID: result.SupplierID, Total: result.TotalAmount}
		if err := s.integrations.PODelivered(ctx, event); err != nil {
			s.logger.Warn("delivered event enqueue failed", slog.Int64("po_id", result.ID), slog.Any("error", err))
		}
	}
	return result, nil
}

// GetByID loads one order with items.
func (s *Service) GetByID(ctx context.Context, poID int64) (PurchaseOrder, error) {
	return s.repo.GetByID(ctx, poID)
}

// ListByStatus returns a page of orders.
func (s *Service) ListByStatus(ctx context.Context, filter ListFilter) ([]PurchaseOrder, int, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, 0, fmt.Errorf("%w: unknown status %q", ErrValidation, filter.Status)
	}
	return s.repo.ListByStatus(ctx, filter)
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, poID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "purchase_order",
		EntityID: strconv.FormatInt(poID, 10),
		Meta:     meta,
	}); err != nil {
		s.logger.Warn("audit write failed", slog.String("action", action), slog.Any("error", err))
	}
}

func (s *Service) observeDelivery(outcome string) {
	if s.metrics != nil {
		s.metrics.ObserveDelivery(outcome)
	}
}

func deliveryNote(grn string) string {
	if grn == "" {
		return "po delivery"
	}
	return "po delivery " + grn
}
