package purchasing

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/boxflow-erp/boxflow-erp/internal/inventory"
	"github.com/boxflow-erp/boxflow-erp/internal/shared"
	_ "github.com/boxflow-erp/boxflow-erp/internal/testing/guard"
)

type memoryRepo struct {
	orders     map[int64]PurchaseOrder
	items      map[int64]POItem
	materials  map[int64]inventory.MaterialStock
	movements  []inventory.Movement
	nextPOID   int64
	nextItemID int64
	nextMoveID int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		orders:     map[int64]PurchaseOrder{},
		items:      map[int64]POItem{},
		materials:  map[int64]inventory.MaterialStock{},
		nextPOID:   1,
		nextItemID: 1,
		nextMoveID: 1,
	}
}

func (r *memoryRepo) snapshot() *memoryRepo {
	s := newMemoryRepo()
	for k, v := range r.orders {
		s.orders[k] = v
	}
	for k, v := range r.items {
		s.items[k] = v
	}
	for k, v := range r.materials {
		s.materials[k] = v
	}
	s.movements = append(s.movements, r.movements...)
	s.nextPOID, s.nextItemID, s.nextMoveID = r.nextPOID, r.nextItemID, r.nextMoveID
	return s
}

func (r *memoryRepo) restore(s *memoryRepo) {
	r.orders, r.items, r.materials = s.orders, s.items, s.materials
	r.movements = s.movements
	r.nextPOID, r.nextItemID, r.nextMoveID = s.nextPOID, s.nextItemID, s.nextMoveID
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	snap := r.snapshot()
	if err := fn(ctx, r); err != nil {
		r.restore(snap)
		return err
	}
	return nil
}

func (r *memoryRepo) GetByID(_ context.Context, poID int64) (PurchaseOrder, error) {
	po, ok := r.orders[poID]
	if !ok {
		return PurchaseOrder{}, ErrNotFound
	}
	po.Items = r.itemsOf(poID)
	return po, nil
}

func (r *memoryRepo) ListByStatus(_ context.Context, filter ListFilter) ([]PurchaseOrder, int, error) {
	out := []PurchaseOrder{}
	for _, po := range r.orders {
		if filter.Status != "" && po.Status != filter.Status {
			continue
		}
		if filter.SupplierID != 0 && po.SupplierID != filter.SupplierID {
			continue
		}
		out = append(out, po)
	}
	return out, len(out), nil
}

func (r *memoryRepo) itemsOf(poID int64) []POItem {
	out := []POItem{}
	for id := int64(1); id < r.nextItemID; id++ {
		if item, ok := r.items[id]; ok && item.POID == poID {
			out = append(out, item)
		}
	}
	return out
}

func (r *memoryRepo) GetPOForUpdate(_ context.Context, poID int64) (PurchaseOrder, error) {
	po, ok := r.orders[poID]
	if !ok {
		return PurchaseOrder{}, ErrNotFound
	}
	return po, nil
}

func (r *memoryRepo) GetItems(_ context.Context, poID int64) ([]POItem, error) {
	return r.itemsOf(poID), nil
}

func (r *memoryRepo) InsertPO(_ context.Context, po PurchaseOrder) (int64, error) {
	po.ID = r.nextPOID
	r.nextPOID++
	r.orders[po.ID] = po
	return po.ID, nil
}

func (r *memoryRepo) InsertItem(_ context.Context, item POItem) (int64, error) {
	item.ID = r.nextItemID
	r.nextItemID++
	r.items[item.ID] = item
	return item.ID, nil
}

func (r *memoryRepo) UpdateStatus(_ context.Context, poID int64, status POStatus) error {
	po, ok := r.orders[poID]
	if !ok {
		return ErrNotFound
	}
	po.Status = status
	r.orders[poID] = po
	return nil
}

func (r *memoryRepo) SetApproval(_ context.Context, poID int64, status POStatus, approvedBy int64) error {
	po, ok := r.orders[poID]
	if !ok {
		return ErrNotFound
	}
	po.Status = status
	po.ApprovedBy = approvedBy
	r.orders[poID] = po
	return nil
}

func (r *memoryRepo) UpdateItemDelivery(_ context.Context, item POItem) error {
	if _, ok := r.items[item.ID]; !ok {
		return ErrItemNotFound
	}
	r.items[item.ID] = item
	return nil
}

func (r *memoryRepo) GetMaterialForUpdate(_ context.Context, materialID int64) (inventory.MaterialStock, error) {
	m, ok := r.materials[materialID]
	if !ok {
		return inventory.MaterialStock{}, ErrMaterialNotFound
	}
	return m, nil
}

func (r *memoryRepo) InsertMovement(_ context.Context, movement inventory.Movement) (int64, error) {
	movement.ID = r.nextMoveID
	r.nextMoveID++
	r.movements = append(r.movements, movement)
	return movement.ID, nil
}

func (r *memoryRepo) UpdateMaterialStock(_ context.Context, materialID int64, qty float64, _ string) error {
	m, ok := r.materials[materialID]
	if !ok {
		return ErrMaterialNotFound
	}
	m.CurrentStock = qty
	r.materials[materialID] = m
	return nil
}

type memoryAudit struct {
	logs []shared.AuditLog
}

func (a *memoryAudit) Record(_ context.Context, log shared.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

type memoryIntegrations struct {
	delivered []DeliveredEvent
}

func (m *memoryIntegrations) PODelivered(_ context.Context, event DeliveredEvent) error {
	m.delivered = append(m.delivered, event)
	return nil
}

type heldLocker struct{}

func (heldLocker) Acquire(context.Context, string, time.Duration) (func(), error) {
	return nil, shared.ErrLockHeld
}

func newTestService(repo *memoryRepo) (*Service, *memoryAudit, *memoryIntegrations) {
	audit := &memoryAudit{}
	integrations := &memoryIntegrations{}
	svc := NewService(repo, audit, nil, integrations, nil, slog.Default(), ServiceConfig{})
	return svc, audit, integrations
}

func seedAcknowledgedPO(repo *memoryRepo, quantities ...float64) PurchaseOrder {
	po := PurchaseOrder{ID: repo.nextPOID, Number: "PO-2024-001", SupplierID: 1, Status: StatusAcknowledged}
	repo.nextPOID++
	for i, qty := range quantities {
		materialID := int64(i + 1)
		repo.materials[materialID] = inventory.MaterialStock{ID: materialID, Code: "RM", Name: "Raw Material", CurrentStock: 100, MinimumStock: 10}
		item := POItem{ID: repo.nextItemID, POID: po.ID, MaterialID: materialID, Quantity: qty, Rate: 12}
		repo.nextItemID++
		repo.items[item.ID] = item
		po.TotalAmount += qty * 12
	}
	repo.orders[po.ID] = po
	return po
}

func TestCreateComputesTotalAndStartsDraft(t *testing.T) {
	repo := newMemoryRepo()
	svc, audit, _ := newTestService(repo)

	po, err := svc.Create(context.Background(), CreateInput{
		SupplierID: 3,
		Items: []ItemInput{
			{MaterialID: 1, Quantity: 500, Rate: 12.5},
			{MaterialID: 2, Quantity: 100, Rate: 40},
		},
	})
	require.NoError(t, err)
	require.Equal(t, StatusDraft, po.Status)
	require.EqualValues(t, 500*12.5+100*40, po.TotalAmount)
	require.Len(t, po.Items, 2)
	require.NotEmpty(t, po.Number)
	require.Len(t, audit.logs, 1)
}

func TestCreateValidation(t *testing.T) {
	repo := newMemoryRepo()
	svc, _, _ := newTestService(repo)

	_, err := svc.Create(context.Background(), CreateInput{SupplierID: 0, Items: []ItemInput{{MaterialID: 1, Quantity: 1, Rate: 1}}})
	require.ErrorIs(t, err, ErrValidation)

	_, err = svc.Create(context.Background(), CreateInput{SupplierID: 1})
	require.ErrorIs(t, err, ErrValidation)

	_, err = svc.Create(context.Background(), CreateInput{SupplierID: 1, Items: []ItemInput{{MaterialID: 1, Quantity: 0, Rate: 1}}})
	require.ErrorIs(t, err, ErrValidation)

	_, err = svc.Create(context.Background(), CreateInput{SupplierID: 1, Items: []ItemInput{{MaterialID: 1, Quantity: 1, Rate: -2}}})
	require.ErrorIs(t, err, ErrValidation)

	require.Empty(t, repo.orders)
}

func TestFullLifecycle(t *testing.T) {
	repo := newMemoryRepo()
	svc, _, _ := newTestService(repo)

	po, err := svc.Create(context.Background(), CreateInput{SupplierID: 1, Items: []ItemInput{{MaterialID: 1, Quantity: 10, Rate: 5}}})
	require.NoError(t, err)

	po, err = svc.Submit(context.Background(), po.ID, 7)
	require.NoError(t, err)
	require.Equal(t, StatusPending, po.Status)

	po, err = svc.Approve(context.Background(), po.ID, 42)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, po.Status)
	require.EqualValues(t, 42, po.ApprovedBy)
	require.EqualValues(t, 42, repo.orders[po.ID].ApprovedBy)

	po, err = svc.Send(context.Background(), po.ID, 7)
	require.NoError(t, err)
	require.Equal(t, StatusSent, po.Status)

	po, err = svc.Acknowledge(context.Background(), po.ID, 7)
	require.NoError(t, err)
	require.Equal(t, StatusAcknowledged, po.Status)
}

func TestApproveFromDraftFailsUnchanged(t *testing.T) {
	repo := newMemoryRepo()
	svc, _, _ := newTestService(repo)

	po, err := svc.Create(context.Background(), CreateInput{SupplierID: 1, Items: []ItemInput{{MaterialID: 1, Quantity: 10, Rate: 5}}})
	require.NoError(t, err)

	_, err = svc.Approve(context.Background(), po.ID, 42)
	require.ErrorIs(t, err, ErrInvalidTransition)
	require.Equal(t, StatusDraft, repo.orders[po.ID].Status)
	require.Zero(t, repo.orders[po.ID].ApprovedBy)
}

func TestCancelMatrix(t *testing.T) {
	for _, from := range []POStatus{StatusDraft, StatusPending, StatusApproved, StatusSent, StatusAcknowledged} {
		repo := newMemoryRepo()
		svc, _, _ := newTestService(repo)
		repo.orders[1] = PurchaseOrder{ID: 1, Number: "PO-X", SupplierID: 1, Status: from}
		repo.nextPOID = 2

		po, err := svc.Cancel(context.Background(), 1, 7)
		require.NoError(t, err, "cancel from %s", from)
		require.Equal(t, StatusCancelled, po.Status)
	}

	for _, from := range []POStatus{StatusDelivered, StatusRejected, StatusCancelled} {
		repo := newMemoryRepo()
		svc, _, _ := newTestService(repo)
		repo.orders[1] = PurchaseOrder{ID: 1, Number: "PO-X", SupplierID: 1, Status: from}
		repo.nextPOID = 2

		_, err := svc.Cancel(context.Background(), 1, 7)
		require.ErrorIs(t, err, ErrInvalidTransition, "cancel from %s", from)
		require.Equal(t, from, repo.orders[1].Status)
	}
}

func TestRecordDeliveryFullInOneCall(t *testing.T) {
	repo := newMemoryRepo()
	svc, _, integrations := newTestService(repo)
	po := seedAcknowledgedPO(repo, 500)

	accepted := true
	result, err := svc.RecordDelivery(context.Background(), DeliveryInput{
		POID: po.ID, ItemID: 1, Qty: 500, QualityAccepted: &accepted, GRNNumber: "GRN-1", ActorID: 7,
	})
	require.NoError(t, err)
	require.Equal(t, StatusDelivered, result.Status)
	require.EqualValues(t, 500, repo.items[1].DeliveredQuantity)
	require.Equal(t, "GRN-1", repo.items[1].GRNNumber)
	require.NotNil(t, repo.items[1].QualityAccepted)
	require.True(t, *repo.items[1].QualityAccepted)

	require.Len(t, repo.movements, 1)
	require.Equal(t, inventory.MovementIn, repo.movements[0].Type)
	require.EqualValues(t, 500, repo.movements[0].Qty)
	require.Equal(t, "PO-2024-001", repo.movements[0].PONumber)
	require.EqualValues(t, 600, repo.materials[1].CurrentStock)

	require.Len(t, integrations.delivered, 1)
	require.Equal(t, po.ID, integrations.delivered[0].POID)
}

func TestRecordDeliveryPartialThenComplete(t *testing.T) {
	repo := newMemoryRepo()
	svc, _, integrations := newTestService(repo)
	po := seedAcknowledgedPO(repo, 500)

	result, err := svc.RecordDelivery(context.Background(), DeliveryInput{POID: po.ID, ItemID: 1, Qty: 300})
	require.NoError(t, err)
	require.Equal(t, StatusAcknowledged, result.Status)
	require.EqualValues(t, 300, repo.items[1].DeliveredQuantity)
	require.Empty(t, integrations.delivered)

	result, err = svc.RecordDelivery(context.Background(), DeliveryInput{POID: po.ID, ItemID: 1, Qty: 200})
	require.NoError(t, err)
	require.Equal(t, StatusDelivered, result.Status)
	require.EqualValues(t, 500, repo.items[1].DeliveredQuantity)

	require.Len(t, repo.movements, 2)
	require.EqualValues(t, 300, repo.movements[0].Qty)
	require.EqualValues(t, 200, repo.movements[1].Qty)
	require.EqualValues(t, 600, repo.materials[1].CurrentStock)
	require.Len(t, integrations.delivered, 1)
}

func TestRecordDeliveryMultiItemCompletion(t *testing.T) {
	repo := newMemoryRepo()
	svc, _, _ := newTestService(repo)
	po := seedAcknowledgedPO(repo, 500, 200)

	result, err := svc.RecordDelivery(context.Background(), DeliveryInput{POID: po.ID, ItemID: 1, Qty: 500})
	require.NoError(t, err)
	require.Equal(t, StatusAcknowledged, result.Status, "order stays open while another line is short")

	result, err = svc.RecordDelivery(context.Background(), DeliveryInput{POID: po.ID, ItemID: 2, Qty: 200})
	require.NoError(t, err)
	require.Equal(t, StatusDelivered, result.Status)
	require.Len(t, repo.movements, 2)
}

func TestRecordDeliveryQuantityExceeded(t *testing.T) {
	repo := newMemoryRepo()
	svc, _, _ := newTestService(repo)
	po := seedAcknowledgedPO(repo, 500)

	_, err := svc.RecordDelivery(context.Background(), DeliveryInput{POID: po.ID, ItemID: 1, Qty: 600})
	require.ErrorIs(t, err, ErrQuantityExceeded)
	require.Empty(t, repo.movements)
	require.Zero(t, repo.items[1].DeliveredQuantity)
	require.EqualValues(t, 100, repo.materials[1].CurrentStock)

	// Over-delivery across two calls is also rejected.
	_, err = svc.RecordDelivery(context.Background(), DeliveryInput{POID: po.ID, ItemID: 1, Qty: 300})
	require.NoError(t, err)
	_, err = svc.RecordDelivery(context.Background(), DeliveryInput{POID: po.ID, ItemID: 1, Qty: 201})
	require.ErrorIs(t, err, ErrQuantityExceeded)
	require.EqualValues(t, 300, repo.items[1].DeliveredQuantity)
}

func TestRecordDeliveryZeroQuantityFails(t *testing.T) {
	repo := newMemoryRepo()
	svc, _, _ := newTestService(repo)
	po := seedAcknowledgedPO(repo, 500)

	_, err := svc.RecordDelivery(context.Background(), DeliveryInput{POID: po.ID, ItemID: 1, Qty: 0})
	require.ErrorIs(t, err, ErrValidation)
	require.Empty(t, repo.movements)
}

func TestRecordDeliveryWrongStatus(t *testing.T) {
	for _, status := range []POStatus{StatusDraft, StatusPending, StatusApproved, StatusSent, StatusDelivered, StatusRejected, StatusCancelled} {
		repo := newMemoryRepo()
		svc, _, _ := newTestService(repo)
		po := seedAcknowledgedPO(repo, 500)
		order := repo.orders[po.ID]
		order.Status = status
		repo.orders[po.ID] = order

		_, err := svc.RecordDelivery(context.Background(), DeliveryInput{POID: po.ID, ItemID: 1, Qty: 100})
		require.ErrorIs(t, err, ErrInvalidTransition, "delivery from %s", status)
		require.Empty(t, repo.movements)
	}
}

func TestRecordDeliveryItemNotFound(t *testing.T) {
	repo := newMemoryRepo()
	svc, _, _ := newTestService(repo)
	po := seedAcknowledgedPO(repo, 500)

	_, err := svc.RecordDelivery(context.Background(), DeliveryInput{POID: po.ID, ItemID: 99, Qty: 100})
	require.ErrorIs(t, err, ErrItemNotFound)
	require.Empty(t, repo.movements)
}

func TestRecordDeliveryUnknownMaterialRollsBack(t *testing.T) {
	repo := newMemoryRepo()
	svc, _, _ := newTestService(repo)
	po := seedAcknowledgedPO(repo, 500)
	delete(repo.materials, 1)

	_, err := svc.RecordDelivery(context.Background(), DeliveryInput{POID: po.ID, ItemID: 1, Qty: 100})
	require.ErrorIs(t, err, ErrMaterialNotFound)
	require.Zero(t, repo.items[1].DeliveredQuantity, "item increment must roll back with the stock failure")
	require.Empty(t, repo.movements)
	require.Equal(t, StatusAcknowledged, repo.orders[po.ID].Status)
}

func TestRecordDeliveryLockHeld(t *testing.T) {
	repo := newMemoryRepo()
	audit := &memoryAudit{}
	svc := NewService(repo, audit, heldLocker{}, nil, nil, slog.Default(), ServiceConfig{})
	po := seedAcknowledgedPO(repo, 500)

	_, err := svc.RecordDelivery(context.Background(), DeliveryInput{POID: po.ID, ItemID: 1, Qty: 100})
	require.ErrorIs(t, err, shared.ErrLockHeld)
	require.Empty(t, repo.movements)
}
