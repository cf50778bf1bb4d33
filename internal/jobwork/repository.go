package jobwork

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/boxflow-erp/boxflow-erp/internal/inventory"
	"github.com/boxflow-erp/boxflow-erp/internal/platform/db"
)

// Repository persists job cards in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository is the transactional surface for issuing and receiving
// consigned materials alongside the card mutation.
type TxRepository interface {
	GetJobForUpdate(ctx context.Context, jobID int64) (JobCard, error)
	GetLines(ctx context.Context, jobID int64) ([]JobLine, error)
	InsertJob(ctx context.Context, job JobCard) (int64, error)
	InsertLine(ctx context.Context, line JobLine) (int64, error)
	UpdateStatus(ctx context.Context, jobID int64, status JobStatus) error
	UpdateLineReturn(ctx context.Context, lineID int64, returnedQty float64) error

	GetMaterialForUpdate(ctx context.Context, materialID int64) (inventory.MaterialStock, error)
	InsertMovement(ctx context.Context, movement inventory.Movement) (int64, error)
	UpdateMaterialStock(ctx context.Context, materialID int64, qty float64, status string) error
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("jobwork repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

const jobColumns = `id, number, job_worker_id, status, COALESCE(process, ''), created_at, updated_at`

func scanJob(row pgx.Row) (JobCard, error) {
	var job JobCard
	err := row.Scan(&job.ID, &job.Number, &job.JobWorkerID, &job.Status, &job.Process, &job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return JobCard{}, ErrNotFound
		}
		return JobCard{}, err
	}
	return job, nil
}

// GetByID loads one job card with its lines.
func (r *Repository) GetByID(ctx context.Context, jobID int64) (JobCard, error) {
	job, err := scanJob(r.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM job_cards WHERE id=$1`, jobID))
	if err != nil {
		return JobCard{}, err
	}
	lines, err := queryLines(ctx, r.pool, jobID)
	if err != nil {
		return JobCard{}, err
	}
	job.Lines = lines
	return job, nil
}

// List returns job cards, optionally filtered by status, newest first.
func (r *Repository) List(ctx context.Context, status JobStatus, limit int) ([]JobCard, error) {
	if limit < 1 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `SELECT `+jobColumns+` FROM job_cards
WHERE ($1 = '' OR status = $1)
ORDER BY created_at DESC, id DESC LIMIT $2`, string(status), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	jobs := []JobCard{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return jobs, nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func queryLines(ctx context.Context, q querier, jobID int64) ([]JobLine, error) {
	rows, err := q.Query(ctx, `SELECT id, job_id, material_id, qty, returned_qty FROM job_card_lines WHERE job_id=$1 ORDER BY id ASC`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	lines := []JobLine{}
	for rows.Next() {
		var line JobLine
		if err := rows.Scan(&line.ID, &line.JobID, &line.MaterialID, &line.Qty, &line.ReturnedQty); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}

func (r *txRepository) GetJobForUpdate(ctx context.Context, jobID int64) (JobCard, error) {
	return scanJob(r.tx.QueryRow(ctx, `SELECT `+jobColumns+` FROM job_cards WHERE id=$1 FOR UPDATE`, jobID))
}

func (r *txRepository) GetLines(ctx context.Context, jobID int64) ([]JobLine, error) {
	return queryLines(ctx, r.tx, jobID)
}

func (r *txRepository) InsertJob(ctx context.Context, job JobCard) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO job_cards (number, job_worker_id, status, process, created_at, updated_at)
VALUES ($1,$2,$3,NULLIF($4, ''),NOW(),NOW()) RETURNING id`,
		job.Number, job.JobWorkerID, string(job.Status), job.Process).Scan(&id)
	return id, err
}

func (r *txRepository) InsertLine(ctx context.Context, line JobLine) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO job_card_lines (job_id, material_id, qty, returned_qty)
VALUES ($1,$2,$3,0) RETURNING id`,
		line.JobID, line.MaterialID, line.Qty).Scan(&id)
	return id, err
}

func (r *txRepository) UpdateStatus(ctx context.Context, jobID int64, status JobStatus) error {
	tag, err := r.tx.Exec(ctx, `UPDATE job_cards SET status=$1, updated_at=NOW() WHERE id=$2`, string(status), jobID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *txRepository) UpdateLineReturn(ctx context.Context, lineID int64, returnedQty float64) error {
	tag, err := r.tx.Exec(ctx, `UPDATE job_card_lines SET returned_qty=$1 WHERE id=$2`, returnedQty, lineID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrLineNotFound
	}
	return nil
}

func (r *txRepository) GetMaterialForUpdate(ctx context.Context, materialID int64) (inventory.MaterialStock, error) {
	var m inventory.MaterialStock
	err := r.tx.QueryRow(ctx, `SELECT id, code, name, current_stock, minimum_stock FROM materials WHERE id=$1 FOR UPDATE`, materialID).
		Scan(&m.ID, &m.Code, &m.Name, &m.CurrentStock, &m.MinimumStock)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return inventory.MaterialStock{}, inventory.ErrMaterialNotFound
		}
		return inventory.MaterialStock{}, err
	}
	return m, nil
}

func (r *txRepository) InsertMovement(ctx context.Context, movement inventory.Movement) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO stock_movements (code, material_id, movement_type, qty, po_number, job_number, note, posted_at, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9) RETURNING id`,
		movement.Code, movement.MaterialID, string(movement.Type), movement.Qty, movement.PONumber, movement.JobNumber, movement.Note, movement.PostedAt, movement.CreatedBy).Scan(&id)
	return id, err
}

func (r *txRepository) UpdateMaterialStock(ctx context.Context, materialID int64, qty float64, status string) error {
	tag, err := r.tx.Exec(ctx, `UPDATE materials SET current_stock=$1, stock_status=$2, updated_at=NOW() WHERE id=$3`, qty, status, materialID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return inventory.ErrMaterialNotFound
	}
	return nil
}
