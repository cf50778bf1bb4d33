package inventory

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/boxflow-erp/boxflow-erp/internal/shared"
	_ "github.com/boxflow-erp/boxflow-erp/internal/testing/guard"
)

type memoryRepo struct {
	materials map[int64]MaterialStock
	movements []Movement
	nextID    int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{materials: map[int64]MaterialStock{}, nextID: 1}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	snapshotMaterials := make(map[int64]MaterialStock, len(r.materials))
	for k, v := range r.materials {
		snapshotMaterials[k] = v
	}
	snapshotMovements := make([]Movement, len(r.movements))
	copy(snapshotMovements, r.movements)
	snapshotNext := r.nextID

	if err := fn(ctx, r); err != nil {
		r.materials = snapshotMaterials
		r.movements = snapshotMovements
		r.nextID = snapshotNext
		return err
	}
	return nil
}

func (r *memoryRepo) ListMovements(_ context.Context, filter MovementFilter) ([]Movement, error) {
	out := []Movement{}
	for _, m := range r.movements {
		if filter.MaterialID != 0 && m.MaterialID != filter.MaterialID {
			continue
		}
		if filter.Type != "" && m.Type != filter.Type {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func (r *memoryRepo) GetMaterialForUpdate(_ context.Context, materialID int64) (MaterialStock, error) {
	m, ok := r.materials[materialID]
	if !ok {
		return MaterialStock{}, ErrMaterialNotFound
	}
	return m, nil
}

func (r *memoryRepo) InsertMovement(_ context.Context, movement Movement) (int64, error) {
	movement.ID = r.nextID
	r.nextID++
	r.movements = append(r.movements, movement)
	return movement.ID, nil
}

func (r *memoryRepo) UpdateMaterialStock(_ context.Context, materialID int64, qty float64, status string) error {
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

type memoryIdempotency struct {
	keys map[string]bool
}

func newMemoryIdempotency() *memoryIdempotency {
	return &memoryIdempotency{keys: map[string]bool{}}
}

func (s *memoryIdempotency) CheckAndInsert(_ context.Context, key, _ string) error {
	if s.keys[key] {
		return shared.ErrIdempotencyConflict
	}
	s.keys[key] = true
	return nil
}

func (s *memoryIdempotency) Delete(_ context.Context, key string) error {
	delete(s.keys, key)
	return nil
}

type memoryAlerts struct {
	events []LowStockEvent
}

func (a *memoryAlerts) NotifyLowStock(_ context.Context, event LowStockEvent) error {
	a.events = append(a.events, event)
	return nil
}

func newTestService(repo *memoryRepo, cfg ServiceConfig) (*Service, *memoryAudit, *memoryIdempotency, *memoryAlerts) {
	audit := &memoryAudit{}
	idem := newMemoryIdempotency()
	alerts := &memoryAlerts{}
	svc := NewService(repo, audit, idem, alerts, slog.Default(), cfg)
	return svc, audit, idem, alerts
}

func TestPostInboundRaisesStock(t *testing.T) {
	repo := newMemoryRepo()
	repo.materials[1] = MaterialStock{ID: 1, Code: "KP-180", Name: "Kraft Paper 180gsm", CurrentStock: 100, MinimumStock: 50}
	svc, audit, _, alerts := newTestService(repo, ServiceConfig{})

	movement, err := svc.PostInbound(context.Background(), InboundInput{
		Code: "MOV-1", MaterialID: 1, Qty: 500, PONumber: "PO-2024-001", ActorID: 7,
	})
	require.NoError(t, err)
	require.Equal(t, MovementIn, movement.Type)
	require.EqualValues(t, 600, repo.materials[1].CurrentStock)
	require.Len(t, repo.movements, 1)
	require.Len(t, audit.logs, 1)
	require.Empty(t, alerts.events)
}

func TestPostOutboundLowersStockAndAlerts(t *testing.T) {
	repo := newMemoryRepo()
	repo.materials[1] = MaterialStock{ID: 1, Code: "KP-180", Name: "Kraft Paper 180gsm", CurrentStock: 100, MinimumStock: 50}
	svc, _, _, alerts := newTestService(repo, ServiceConfig{})

	_, err := svc.PostOutbound(context.Background(), OutboundInput{
		Code: "MOV-2", MaterialID: 1, Qty: 60, JobNumber: "JC-101",
	})
	require.NoError(t, err)
	require.EqualValues(t, 40, repo.materials[1].CurrentStock)
	require.Len(t, alerts.events, 1)
	require.Equal(t, "Low Stock", alerts.events[0].Status)
}

func TestPostOutboundRejectsNegativeStock(t *testing.T) {
	repo := newMemoryRepo()
	repo.materials[1] = MaterialStock{ID: 1, CurrentStock: 30, MinimumStock: 10}
	svc, _, idem, _ := newTestService(repo, ServiceConfig{})

	_, err := svc.PostOutbound(context.Background(), OutboundInput{Code: "MOV-3", MaterialID: 1, Qty: 40})
	require.ErrorIs(t, err, ErrNegativeStock)
	require.EqualValues(t, 30, repo.materials[1].CurrentStock)
	require.Empty(t, repo.movements)
	require.False(t, idem.keys["MOV-3"], "failed posting must release its idempotency key")
}

func TestPostOutboundAllowsNegativeWhenConfigured(t *testing.T) {
	repo := newMemoryRepo()
	repo.materials[1] = MaterialStock{ID: 1, CurrentStock: 30, MinimumStock: 10}
	svc, _, _, alerts := newTestService(repo, ServiceConfig{AllowNegativeStock: true})

	_, err := svc.PostOutbound(context.Background(), OutboundInput{Code: "MOV-4", MaterialID: 1, Qty: 40})
	require.NoError(t, err)
	require.EqualValues(t, -10, repo.materials[1].CurrentStock)
	require.Len(t, alerts.events, 1)
	require.Equal(t, "Out of Stock", alerts.events[0].Status)
}

func TestPostMovementRejectsInvalidQuantity(t *testing.T) {
	repo := newMemoryRepo()
	svc, _, _, _ := newTestService(repo, ServiceConfig{})

	_, err := svc.PostInbound(context.Background(), InboundInput{MaterialID: 1, Qty: 0})
	require.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = svc.PostOutbound(context.Background(), OutboundInput{MaterialID: 1, Qty: -5})
	require.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestPostMovementUnknownMaterial(t *testing.T) {
	repo := newMemoryRepo()
	svc, _, _, _ := newTestService(repo, ServiceConfig{})

	_, err := svc.PostInbound(context.Background(), InboundInput{Code: "MOV-5", MaterialID: 99, Qty: 10})
	require.ErrorIs(t, err, ErrMaterialNotFound)
	require.Empty(t, repo.movements)
}

func TestPostMovementDuplicateCode(t *testing.T) {
	repo := newMemoryRepo()
	repo.materials[1] = MaterialStock{ID: 1, CurrentStock: 100, MinimumStock: 10}
	svc, _, _, _ := newTestService(repo, ServiceConfig{})

	_, err := svc.PostInbound(context.Background(), InboundInput{Code: "MOV-6", MaterialID: 1, Qty: 10})
	require.NoError(t, err)

	_, err = svc.PostInbound(context.Background(), InboundInput{Code: "MOV-6", MaterialID: 1, Qty: 10})
	require.ErrorIs(t, err, shared.ErrIdempotencyConflict)
	require.Len(t, repo.movements, 1)
}
