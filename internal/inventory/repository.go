package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/boxflow-erp/boxflow-erp/internal/platform/db"
)

// Repository persists the movement log and material stock in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations used by the service.
type TxRepository interface {
	GetMaterialForUpdate(ctx context.Context, materialID int64) (MaterialStock, error)
	InsertMovement(ctx context.Context, movement Movement) (int64, error)
	UpdateMaterialStock(ctx context.Context, materialID int64, qty float64, status string) error
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("inventory repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

// ListMovements returns movement log entries matching the filter.
func (r *Repository) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	if r == nil {
		return nil, errors.New("inventory repository not initialised")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	query := `SELECT id, code, material_id, movement_type, qty, po_number, job_number, note, posted_at, created_by
FROM stock_movements WHERE 1=1`
	args := []any{}
	idx := 1
	if filter.MaterialID != 0 {
		query += fmt.Sprintf(" AND material_id = $%d", idx)
		args = append(args, filter.MaterialID)
		idx++
	}
	if filter.Type != "" {
		query += fmt.Sprintf(" AND movement_type = $%d", idx)
		args = append(args, string(filter.Type))
		idx++
	}
	if !filter.From.IsZero() {
		query += fmt.Sprintf(" AND posted_at >= $%d", idx)
		args = append(args, filter.From)
		idx++
	}
	if !filter.To.IsZero() {
		query += fmt.Sprintf(" AND posted_at <= $%d", idx)
		args = append(args, filter.To)
		idx++
	}
	query += fmt.Sprintf(" ORDER BY posted_at ASC, id ASC LIMIT $%d", idx)
	args = append(args, limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	movements := []Movement{}
	for rows.Next() {
		var m Movement
		if err := rows.Scan(&m.ID, &m.Code, &m.MaterialID, &m.Type, &m.Qty, &m.PONumber, &m.JobNumber, &m.Note, &m.PostedAt, &m.CreatedBy); err != nil {
			return nil, err
		}
		movements = append(movements, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return movements, nil
}

func (r *txRepository) GetMaterialForUpdate(ctx context.Context, materialID int64) (MaterialStock, error) {
	var m MaterialStock
	err := r.tx.QueryRow(ctx, `SELECT id, code, name, current_stock, minimum_stock FROM materials WHERE id=$1 FOR UPDATE`, materialID).
		Scan(&m.ID, &m.Code, &m.Name, &m.CurrentStock, &m.MinimumStock)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return MaterialStock{}, ErrMaterialNotFound
		}
		return MaterialStock{}, err
	}
	return m, nil
}

func (r *txRepository) InsertMovement(ctx context.Context, movement Movement) (int64, error) {
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
		return ErrMaterialNotFound
	}
	return nil
}
