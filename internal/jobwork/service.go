package jobwork

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

// RepositoryPort abstracts job card persistence.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetByID(ctx context.Context, jobID int64) (JobCard, error)
	List(ctx context.Context, status JobStatus, limit int) ([]JobCard, error)
}

// AuditPort records audit trail entries.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// LockerPort serialises issue/receive per job card.
type LockerPort interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// ServiceConfig tunes job card behaviour.
type ServiceConfig struct {
	AllowNegativeStock bool
	LockTTL            time.Duration
}

// Service tracks job cards and the consigned-material movements they cause.
type Service struct {
	repo   RepositoryPort
	audit  AuditPort
	locker LockerPort
	logger *slog.Logger
	cfg    ServiceConfig
}

// NewService wires the jobwork service. locker may be nil.
func NewService(repo RepositoryPort, audit AuditPort, locker LockerPort, logger *slog.Logger, cfg ServiceConfig) *Service {
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Second
	}
	return &Service{repo: repo, audit: audit, locker: locker, logger: logger, cfg: cfg}
}

// Create opens a new job card.
func (s *Service) Create(ctx context.Context, input CreateInput) (JobCard, error) {
	if input.JobWorkerID == 0 {
		return JobCard{}, fmt.Errorf("%w: job worker required", ErrValidation)
	}
	if len(input.Lines) == 0 {
		return JobCard{}, fmt.Errorf("%w: at least one line required", ErrValidation)
	}
	for _, line := range input.Lines {
		if line.MaterialID == 0 || line.Qty <= 0 {
			return JobCard{}, fmt.Errorf("%w: line material and positive qty required", ErrValidation)
		}
	}
	number := input.Number
	if number == "" {
		number = fmt.Sprintf("JC-%d", time.Now().UnixNano())
	}

	job := JobCard{Number: number, JobWorkerID: input.JobWorkerID, Status: StatusOpen, Process: input.Process}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertJob(ctx, job)
		if err != nil {
			return err
		}
		job.ID = id
		for _, in := range input.Lines {
			line := JobLine{JobID: id, MaterialID: in.MaterialID, Qty: in.Qty}
			lineID, err := tx.InsertLine(ctx, line)
			if err != nil {
				return err
			}
			line.ID = lineID
			job.Lines = append(job.Lines, line)
		}
		return nil
	})
	if err != nil {
		return JobCard{}, err
	}

	s.recordAudit(ctx, input.ActorID, "jobwork.job.create", job.ID, map[string]any{"number": job.Number})
	s.logger.Info("job card created", slog.Int64("job_id", job.ID), slog.String("number", job.Number))
	return job, nil
}

// IssueMaterials issues every line to the job worker: one OUT movement per
// line and the card moves open -> issued, all in one transaction.
func (s *Service) IssueMaterials(ctx context.Context, jobID, actorID int64) (JobCard, error) {
	release, err := s.acquire(ctx, jobID)
	if err != nil {
		return JobCard{}, err
	}
	defer release()

	var result JobCard
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		job, err := tx.GetJobForUpdate(ctx, jobID)
		if err != nil {
			return err
		}
		if job.Status != StatusOpen {
			return fmt.Errorf("%w: issue from %s", ErrInvalidState, job.Status)
		}
		lines, err := tx.GetLines(ctx, jobID)
		if err != nil {
			return err
		}
		for _, line := range lines {
			material, err := tx.GetMaterialForUpdate(ctx, line.MaterialID)
			if err != nil {
				return err
			}
			next := material.CurrentStock - line.Qty
			if next < 0 && !s.cfg.AllowNegativeStock {
				return fmt.Errorf("%w: material %s", inventory.ErrNegativeStock, material.Code)
			}
			if _, err := tx.InsertMovement(ctx, inventory.Movement{
				Code:       fmt.Sprintf("MOV-%s-%d-%d", job.Number, line.ID, time.Now().UnixNano()),
				MaterialID: line.MaterialID,
				Type:       inventory.MovementOut,
				Qty:        line.Qty,
				JobNumber:  job.Number,
				Note:       "job issue",
				PostedAt:   time.Now(),
				CreatedBy:  actorID,
			}); err != nil {
				return err
			}
			status := materials.ComputeStockStatus(next, material.MinimumStock)
			if err := tx.UpdateMaterialStock(ctx, material.ID, next, string(status)); err != nil {
				return err
			}
		}
		if err := tx.UpdateStatus(ctx, jobID, StatusIssued); err != nil {
			return err
		}
		job.Status = StatusIssued
		job.Lines = lines
		result = job
		return nil
	})
	if err != nil {
		return JobCard{}, err
	}

	s.recordAudit(ctx, actorID, "jobwork.job.issue", result.ID, map[string]any{"lines": len(result.Lines)})
	s.logger.Info("job materials issued", slog.Int64("job_id", result.ID), slog.Int("lines", len(result.Lines)))
	return result, nil
}

// ReceiveProcessed records processed material returned from the job worker as
// an IN movement. When every line is fully returned the card completes.
func (s *Service) ReceiveProcessed(ctx context.Context, input ReceiveInput) (JobCard, error) {
	if input.Qty <= 0 {
		return JobCard{}, fmt.Errorf("%w: return quantity must be positive", ErrValidation)
	}
	release, err := s.acquire(ctx, input.JobID)
	if err != nil {
		return JobCard{}, err
	}
	defer release()

	var result JobCard
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		job, err := tx.GetJobForUpdate(ctx, input.JobID)
		if err != nil {
			return err
		}
		if job.Status != StatusIssued {
			return fmt.Errorf("%w: receive from %s", ErrInvalidState, job.Status)
		}
		lines, err := tx.GetLines(ctx, input.JobID)
		if err != nil {
			return err
		}
		idx := -1
		for i := range lines {
			if lines[i].ID == input.LineID {
				idx = i
				break
			}
		}
		if idx < 0 {
			return ErrLineNotFound
		}
		line := lines[idx]
		if input.Qty+line.ReturnedQty > line.Qty {
			return fmt.Errorf("%w: %g + %g > %g", ErrQuantityExceeded, line.ReturnedQty, input.Qty, line.Qty)
		}
		line.ReturnedQty += input.Qty
		if err := tx.UpdateLineReturn(ctx, line.ID, line.ReturnedQty); err != nil {
			return err
		}
		lines[idx] = line

		material, err := tx.GetMaterialForUpdate(ctx, line.MaterialID)
		if err != nil {
			return err
		}
		next := material.CurrentStock + input.Qty
		if _, err := tx.InsertMovement(ctx, inventory.Movement{
			Code:       fmt.Sprintf("MOV-%s-%d-%d", job.Number, line.ID, time.Now().UnixNano()),
			MaterialID: line.MaterialID,
			Type:       inventory.MovementIn,
			Qty:        input.Qty,
			JobNumber:  job.Number,
			Note:       receiveNote(input.Note),
			PostedAt:   time.Now(),
			CreatedBy:  input.ActorID,
		}); err != nil {
			return err
		}
		status := materials.ComputeStockStatus(next, material.MinimumStock)
		if err := tx.UpdateMaterialStock(ctx, material.ID, next, string(status)); err != nil {
			return err
		}

		completed := true
		for _, l := range lines {
			if !l.Returned() {
				completed = false
				break
			}
		}
		if completed {
			if err := tx.UpdateStatus(ctx, job.ID, StatusCompleted); err != nil {
				return err
			}
			job.Status = StatusCompleted
		}
		job.Lines = lines
		result = job
		return nil
	})
	if err != nil {
		return JobCard{}, err
	}

	s.recordAudit(ctx, input.ActorID, "jobwork.job.receive", result.ID, map[string]any{
		"line_id": input.LineID,
		"qty":     input.Qty,
		"status":  string(result.Status),
	})
	s.logger.Info("job material received",
		slog.Int64("job_id", result.ID),
		slog.Int64("line_id", input.LineID),
		slog.Float64("qty", input.Qty),
		slog.String("status", string(result.Status)))
	return result, nil
}

// Cancel terminates an open or issued card. Issued cards keep their OUT
// movements in the log; returning consigned stock needs explicit receives
// before cancelling.
func (s *Service) Cancel(ctx context.Context, jobID, actorID int64) (JobCard, error) {
	var result JobCard
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		job, err := tx.GetJobForUpdate(ctx, jobID)
		if err != nil {
			return err
		}
		if job.Status != StatusOpen && job.Status != StatusIssued {
			return fmt.Errorf("%w: cancel from %s", ErrInvalidState, job.Status)
		}
		if err := tx.UpdateStatus(ctx, jobID, StatusCancelled); err != nil {
			return err
		}
		job.Status = StatusCancelled
		result = job
		return nil
	})
	if err != nil {
		return JobCard{}, err
	}

	s.recordAudit(ctx, actorID, "jobwork.job.cancel", result.ID, nil)
	s.logger.Info("job card cancelled", slog.Int64("job_id", result.ID))
	return result, nil
}

// GetByID loads one card with lines.
func (s *Service) GetByID(ctx context.Context, jobID int64) (JobCard, error) {
	return s.repo.GetByID(ctx, jobID)
}

// List returns job cards, optionally filtered by status.
func (s *Service) List(ctx context.Context, status JobStatus, limit int) ([]JobCard, error) {
	return s.repo.List(ctx, status, limit)
}

func (s *Service) acquire(ctx context.Context, jobID int64) (func(), error) {
	if s.locker == nil {
		return func() {}, nil
	}
	return s.locker.Acquire(ctx, shared.JobCardLockKey(jobID), s.cfg.LockTTL)
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, jobID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "job_card",
		EntityID: strconv.FormatInt(jobID, 10),
		Meta:     meta,
	}); err != nil {
		s.logger.Warn("audit write failed", slog.String("action", action), slog.Any("error", err))
	}
}

func receiveNote(note string) string {
	if note == "" {
		return "job receive"
	}
	return note
}
