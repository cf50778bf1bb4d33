package jobwork

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/boxflow-erp/boxflow-erp/internal/inventory"
	"github.com/boxflow-erp/boxflow-erp/internal/shared"
	_ "github.com/boxflow-erp/boxflow-erp/internal/testing/guard"
)

type memoryRepo struct {
	jobs       map[int64]JobCard
	lines      map[int64]JobLine
	materials  map[int64]inventory.MaterialStock
	movements  []inventory.Movement
	nextJobID  int64
	nextLineID int64
	nextMoveID int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		jobs:       map[int64]JobCard{},
		lines:      map[int64]JobLine{},
		materials:  map[int64]inventory.MaterialStock{},
		nextJobID:  1,
		nextLineID: 1,
		nextMoveID: 1,
	}
}

func (r *memoryRepo) snapshot() *memoryRepo {
	s := newMemoryRepo()
	for k, v := range r.jobs {
		s.jobs[k] = v
	}
	for k, v := range r.lines {
		s.lines[k] = v
	}
	for k, v := range r.materials {
		s.materials[k] = v
	}
	s.movements = append(s.movements, r.movements...)
	s.nextJobID, s.nextLineID, s.nextMoveID = r.nextJobID, r.nextLineID, r.nextMoveID
	return s
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	snap := r.snapshot()
	if err := fn(ctx, r); err != nil {
		r.jobs, r.lines, r.materials = snap.jobs, snap.lines, snap.materials
		r.movements = snap.movements
		r.nextJobID, r.nextLineID, r.nextMoveID = snap.nextJobID, snap.nextLineID, snap.nextMoveID
		return err
	}
	return nil
}

func (r *memoryRepo) GetByID(_ context.Context, jobID int64) (JobCard, error) {
	job, ok := r.jobs[jobID]
	if !ok {
		return JobCard{}, ErrNotFound
	}
	job.Lines = r.linesOf(jobID)
	return job, nil
}

func (r *memoryRepo) List(_ context.Context, status JobStatus, _ int) ([]JobCard, error) {
	out := []JobCard{}
	for _, job := range r.jobs {
		if status != "" && job.Status != status {
			continue
		}
		out = append(out, job)
	}
	return out, nil
}

func (r *memoryRepo) linesOf(jobID int64) []JobLine {
	out := []JobLine{}
	for id := int64(1); id < r.nextLineID; id++ {
		if line, ok := r.lines[id]; ok && line.JobID == jobID {
			out = append(out, line)
		}
	}
	return out
}

func (r *memoryRepo) GetJobForUpdate(_ context.Context, jobID int64) (JobCard, error) {
	job, ok := r.jobs[jobID]
	if !ok {
		return JobCard{}, ErrNotFound
	}
	return job, nil
}

func (r *memoryRepo) GetLines(_ context.Context, jobID int64) ([]JobLine, error) {
	return r.linesOf(jobID), nil
}

func (r *memoryRepo) InsertJob(_ context.Context, job JobCard) (int64, error) {
	job.ID = r.nextJobID
	r.nextJobID++
	r.jobs[job.ID] = job
	return job.ID, nil
}

func (r *memoryRepo) InsertLine(_ context.Context, line JobLine) (int64, error) {
	line.ID = r.nextLineID
	r.nextLineID++
	r.lines[line.ID] = line
	return line.ID, nil
}

func (r *memoryRepo) UpdateStatus(_ context.Context, jobID int64, status JobStatus) error {
	job, ok := r.jobs[jobID]
	if !ok {
		return ErrNotFound
	}
	job.Status = status
	r.jobs[jobID] = job
	return nil
}

func (r *memoryRepo) UpdateLineReturn(_ context.Context, lineID int64, returnedQty float64) error {
	line, ok := r.lines[lineID]
	if !ok {
		return ErrLineNotFound
	}
	line.ReturnedQty = returnedQty
	r.lines[lineID] = line
	return nil
}

func (r *memoryRepo) GetMaterialForUpdate(_ context.Context, materialID int64) (inventory.MaterialStock, error) {
	m, ok := r.materials[materialID]
	if !ok {
		return inventory.MaterialStock{}, inventory.ErrMaterialNotFound
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
		return inventory.ErrMaterialNotFound
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

func newTestService(repo *memoryRepo, cfg ServiceConfig) *Service {
	return NewService(repo, &memoryAudit{}, nil, slog.Default(), cfg)
}

func seedOpenJob(repo *memoryRepo, quantities ...float64) JobCard {
	job := JobCard{ID: repo.nextJobID, Number: "JC-101", JobWorkerID: 5, Status: StatusOpen}
	repo.nextJobID++
	for i, qty := range quantities {
		materialID := int64(i + 1)
		repo.materials[materialID] = inventory.MaterialStock{ID: materialID, Code: "RM", CurrentStock: 1000, MinimumStock: 100}
		line := JobLine{ID: repo.nextLineID, JobID: job.ID, MaterialID: materialID, Qty: qty}
		repo.nextLineID++
		repo.lines[line.ID] = line
	}
	repo.jobs[job.ID] = job
	return job
}

func TestCreateJobCard(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, ServiceConfig{})

	job, err := svc.Create(context.Background(), CreateInput{
		JobWorkerID: 5,
		Process:     "lamination",
		Lines:       []LineInput{{MaterialID: 1, Qty: 200}},
	})
	require.NoError(t, err)
	require.Equal(t, StatusOpen, job.Status)
	require.Len(t, job.Lines, 1)
	require.NotEmpty(t, job.Number)
}

func TestCreateJobCardValidation(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, ServiceConfig{})

	_, err := svc.Create(context.Background(), CreateInput{JobWorkerID: 0, Lines: []LineInput{{MaterialID: 1, Qty: 1}}})
	require.ErrorIs(t, err, ErrValidation)

	_, err = svc.Create(context.Background(), CreateInput{JobWorkerID: 5})
	require.ErrorIs(t, err, ErrValidation)

	_, err = svc.Create(context.Background(), CreateInput{JobWorkerID: 5, Lines: []LineInput{{MaterialID: 1, Qty: 0}}})
	require.ErrorIs(t, err, ErrValidation)
}

func TestIssueMaterials(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, ServiceConfig{})
	job := seedOpenJob(repo, 200, 50)

	result, err := svc.IssueMaterials(context.Background(), job.ID, 7)
	require.NoError(t, err)
	require.Equal(t, StatusIssued, result.Status)
	require.Len(t, repo.movements, 2)
	require.Equal(t, inventory.MovementOut, repo.movements[0].Type)
	require.Equal(t, "JC-101", repo.movements[0].JobNumber)
	require.EqualValues(t, 800, repo.materials[1].CurrentStock)
	require.EqualValues(t, 950, repo.materials[2].CurrentStock)
}

func TestIssueMaterialsRejectsNegativeStock(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, ServiceConfig{})
	job := seedOpenJob(repo, 200)
	m := repo.materials[1]
	m.CurrentStock = 50
	repo.materials[1] = m

	_, err := svc.IssueMaterials(context.Background(), job.ID, 7)
	require.ErrorIs(t, err, inventory.ErrNegativeStock)
	require.Equal(t, StatusOpen, repo.jobs[job.ID].Status)
	require.Empty(t, repo.movements)
	require.EqualValues(t, 50, repo.materials[1].CurrentStock)
}

func TestIssueMaterialsWrongState(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, ServiceConfig{})
	job := seedOpenJob(repo, 200)
	card := repo.jobs[job.ID]
	card.Status = StatusIssued
	repo.jobs[job.ID] = card

	_, err := svc.IssueMaterials(context.Background(), job.ID, 7)
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestReceiveProcessedCompletesCard(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, ServiceConfig{})
	job := seedOpenJob(repo, 200)

	_, err := svc.IssueMaterials(context.Background(), job.ID, 7)
	require.NoError(t, err)

	result, err := svc.ReceiveProcessed(context.Background(), ReceiveInput{JobID: job.ID, LineID: 1, Qty: 120})
	require.NoError(t, err)
	require.Equal(t, StatusIssued, result.Status)
	require.EqualValues(t, 120, repo.lines[1].ReturnedQty)

	result, err = svc.ReceiveProcessed(context.Background(), ReceiveInput{JobID: job.ID, LineID: 1, Qty: 80})
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, result.Status)
	require.EqualValues(t, 200, repo.lines[1].ReturnedQty)

	// one OUT from the issue plus two IN returns
	require.Len(t, repo.movements, 3)
	require.EqualValues(t, 1000, repo.materials[1].CurrentStock)
}

func TestReceiveProcessedOverReturn(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, ServiceConfig{})
	job := seedOpenJob(repo, 200)
	_, err := svc.IssueMaterials(context.Background(), job.ID, 7)
	require.NoError(t, err)

	_, err = svc.ReceiveProcessed(context.Background(), ReceiveInput{JobID: job.ID, LineID: 1, Qty: 250})
	require.ErrorIs(t, err, ErrQuantityExceeded)
	require.Zero(t, repo.lines[1].ReturnedQty)
	require.Len(t, repo.movements, 1)
}

func TestReceiveProcessedWrongState(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, ServiceConfig{})
	job := seedOpenJob(repo, 200)

	_, err := svc.ReceiveProcessed(context.Background(), ReceiveInput{JobID: job.ID, LineID: 1, Qty: 50})
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestReceiveProcessedUnknownLine(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, ServiceConfig{})
	job := seedOpenJob(repo, 200)
	_, err := svc.IssueMaterials(context.Background(), job.ID, 7)
	require.NoError(t, err)

	_, err = svc.ReceiveProcessed(context.Background(), ReceiveInput{JobID: job.ID, LineID: 99, Qty: 50})
	require.ErrorIs(t, err, ErrLineNotFound)
}

func TestCancelJobCard(t *testing.T) {
	for _, from := range []JobStatus{StatusOpen, StatusIssued} {
		repo := newMemoryRepo()
		svc := newTestService(repo, ServiceConfig{})
		job := seedOpenJob(repo, 200)
		card := repo.jobs[job.ID]
		card.Status = from
		repo.jobs[job.ID] = card

		result, err := svc.Cancel(context.Background(), job.ID, 7)
		require.NoError(t, err, "cancel from %s", from)
		require.Equal(t, StatusCancelled, result.Status)
	}

	for _, from := range []JobStatus{StatusCompleted, StatusCancelled} {
		repo := newMemoryRepo()
		svc := newTestService(repo, ServiceConfig{})
		job := seedOpenJob(repo, 200)
		card := repo.jobs[job.ID]
		card.Status = from
		repo.jobs[job.ID] = card

		_, err := svc.Cancel(context.Background(), job.ID, 7)
		require.ErrorIs(t, err, ErrInvalidState, "cancel from %s", from)
	}
}
