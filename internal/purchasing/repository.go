package purchasing

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/boxflow-erp/boxflow-erp/internal/inventory"
	"github.com/boxflow-erp/boxflow-erp/internal/platform/db"
)

// Repository persists purchase orders in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository is the transactional surface the service mutates through. It
// includes the material and movement operations so a recorded delivery, its
// stock-in movement and the stock update commit or roll back together.
type TxRepository interface {
	GetPOForUpdate(ctx context.Context, poID int64) (PurchaseOrder, error)
	GetItems(ctx context.Context, poID int64) ([]POItem, error)
	InsertPO(ctx context.Context, po PurchaseOrder) (int64, error)
	InsertItem(ctx context.Context, item POItem) (int64, error)
	UpdateStatus(ctx context.Context, poID int64, status POStatus) error
	SetApproval(ctx context.Context, poID int64, status POStatus, approvedBy int64) error
	UpdateItemDelivery(ctx context.Context, item POItem) error

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
		return errors.New("purchasing repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

const poColumns = `id, number, supplier_id, status, total_amount, COALESCE(approved_by, 0), created_at, updated_at`

func scanPO(row pgx.Row) (PurchaseOrder, error) {
	var po PurchaseOrder
	err := row.Scan(&po.ID, &po.Number, &po.SupplierID, &po.Status, &po.TotalAmount, &po.ApprovedBy, &po.CreatedAt, &po.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PurchaseOrder{}, ErrNotFound
		}
		return PurchaseOrder{}, err
	}
	return po, nil
}

// GetByID loads one purchase order with its items.
func (r *Repository) GetByID(ctx context.Context, poID int64) (PurchaseOrder, error) {
	po, err := scanPO(r.pool.QueryRow(ctx, `SELECT `+poColumns+` FROM purchase_orders WHERE id=$1`, poID))
	if err != nil {
		return PurchaseOrder{}, err
	}
	items, err := queryItems(ctx, r.pool, poID)
	if err != nil {
		return PurchaseOrder{}, err
	}
	po.Items = items
	return po, nil
}

// ListByStatus returns a page of orders, optionally filtered by status and
// supplier, newest first.
func (r *Repository) ListByStatus(ctx context.Context, filter ListFilter) ([]PurchaseOrder, int, error) {
	where := " WHERE 1=1"
	args := []any{}
	idx := 1
	if filter.Status != "" {
		where += fmt.Sprintf(" AND status = $%d", idx)
		args = append(args, string(filter.Status))
		idx++
	}
	if filter.SupplierID != 0 {
		where += fmt.Sprintf(" AND supplier_id = $%d", idx)
		args = append(args, filter.SupplierID)
		idx++
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM purchase_orders`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	limit := filter.Limit
	if limit < 1 {
		limit = 20
	}
	query := `SELECT ` + poColumns + ` FROM purchase_orders` + where +
		fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d", idx, idx+1)
	args = append(args, limit, (page-1)*limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	orders := []PurchaseOrder{}
	for rows.Next() {
		po, err := scanPO(rows)
		if err != nil {
			return nil, 0, err
		}
		orders = append(orders, po)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func queryItems(ctx context.Context, q querier, poID int64) ([]POItem, error) {
	rows, err := q.Query(ctx, `SELECT id, po_id, material_id, quantity, rate, delivered_quantity, quality_accepted, COALESCE(grn_number, '')
FROM purchase_order_items WHERE po_id=$1 ORDER BY id ASC`, poID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []POItem{}
	for rows.Next() {
		var item POItem
		if err := rows.Scan(&item.ID, &item.POID, &item.MaterialID, &item.Quantity, &item.Rate, &item.DeliveredQuantity, &item.QualityAccepted, &item.GRNNumber); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *txRepository) GetPOForUpdate(ctx context.Context, poID int64) (PurchaseOrder, error) {
	return scanPO(r.tx.QueryRow(ctx, `SELECT `+poColumns+` FROM purchase_orders WHERE id=$1 FOR UPDATE`, poID))
}

func (r *txRepository) GetItems(ctx context.Context, poID int64) ([]POItem, error) {
	return queryItems(ctx, r.tx, poID)
}

func (r *txRepository) InsertPO(ctx context.Context, po PurchaseOrder) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO purchase_orders (number, supplier_id, status, total_amount, created_at, updated_at)
VALUES ($1,$2,$3,$4,NOW(),NOW()) RETURNING id`,
		po.Number, po.SupplierID, string(po.Status), po.TotalAmount).Scan(&id)
	return id, err
}

func (r *txRepository) InsertItem(ctx context.Context, item POItem) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO purchase_order_items (po_id, material_id, quantity, rate, delivered_quantity)
VALUES ($1,$2,$3,$4,0) RETURNING id`,
		item.POID, item.MaterialID, item.Quantity, item.Rate).Scan(&id)
	return id, err
}

func (r *txRepository) UpdateStatus(ctx context.Context, poID int64, status POStatus) error {
	tag, err := r.tx.Exec(ctx, `UPDATE purchase_orders SET status=$1, updated_at=NOW() WHERE id=$2`, string(status), poID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *txRepository) SetApproval(ctx context.Context, poID int64, status POStatus, approvedBy int64) error {
	tag, err := r.tx.Exec(ctx, `UPDATE purchase_orders SET status=$1, approved_by=$2, updated_at=NOW() WHERE id=$3`, string(status), approvedBy, poID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *txRepository) UpdateItemDelivery(ctx context.Context, item POItem) error {
	tag, err := r.tx.Exec(ctx, `UPDATE purchase_order_items SET delivered_quantity=$1, quality_accepted=$2, grn_number=NULLIF($3, '') WHERE id=$4`,
		item.DeliveredQuantity, item.QualityAccepted, item.GRNNumber, item.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrItemNotFound
	}
	return nil
}

func (r *txRepository) GetMaterialForUpdate(ctx context.Context, materialID int64) (inventory.MaterialStock, error) {
	var m inventory.MaterialStock
	err := r.tx.QueryRow(ctx, `SELECT id, code, name, current_stock, minimum_stock FROM materials WHERE id=$1 FOR UPDATE`, materialID).
		Scan(&m.ID, &m.Code, &m.Name, &m.CurrentStock, &m.MinimumStock)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return inventory.MaterialStock{}, ErrMaterialNotFound
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
		return ErrMaterialNotFound
	}
	return nil
}
