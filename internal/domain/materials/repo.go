package materials

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/Spok95/decant-pricing/internal/infra/db"
)

type Repo struct{ db db.Querier }

func NewRepo(q db.Querier) *Repo { return &Repo{db: q} }

const materialCols = `id, name, category, kind, unit, cost_per_unit, stock, min_stock, size_ml, active, created_at`

func scanMaterial(row pgx.Row) (*Material, error) {
	var m Material
	if err := row.Scan(
		&m.ID,
		&m.Name,
		&m.Category,
		&m.Kind,
		&m.Unit,
		&m.CostPerUnit,
		&m.Stock,
		&m.MinStock,
		&m.SizeMl,
		&m.Active,
		&m.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &m, nil
}

/* Materials CRUD */

func (r *Repo) Create(ctx context.Context, m Material) (*Material, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO materials (name, category, kind, unit, cost_per_unit, stock, min_stock, size_ml, active)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,TRUE)
		RETURNING `+materialCols,
		m.Name, m.Category, m.Kind, m.Unit, m.CostPerUnit, m.Stock, m.MinStock, m.SizeMl)
	return scanMaterial(row)
}

// GetByName returns nil when no material has that exact name.
func (r *Repo) GetByName(ctx context.Context, name string) (*Material, error) {
	m, err := scanMaterial(r.db.QueryRow(ctx, `SELECT `+materialCols+` FROM materials WHERE name = $1 ORDER BY id LIMIT 1`, name))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return m, err
}

// GetMany returns the requested materials keyed by id; unknown ids are absent.
func (r *Repo) GetMany(ctx context.Context, ids []int64) (map[int64]Material, error) {
	out := make(map[int64]Material, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := r.db.Query(ctx, `SELECT `+materialCols+` FROM materials WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		m, err := scanMaterial(rows)
		if err != nil {
			return nil, err
		}
		out[m.ID] = *m
	}
	return out, rows.Err()
}

func (r *Repo) List(ctx context.Context, onlyActive bool) ([]Material, error) {
	q := `SELECT ` + materialCols + ` FROM materials`
	if onlyActive {
		q += " WHERE active = TRUE"
	}
	q += " ORDER BY name"

	rows, err := r.db.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Material
	for rows.Next() {
		m, err := scanMaterial(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

// ListLowStock returns active materials below their min-stock threshold.
func (r *Repo) ListLowStock(ctx context.Context) ([]Material, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+materialCols+`
		FROM materials
		WHERE active = TRUE AND min_stock > 0 AND stock < min_stock
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Material
	for rows.Next() {
		m, err := scanMaterial(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

func (r *Repo) UpdateCost(ctx context.Context, id int64, cost decimal.Decimal) (*Material, error) {
	m, err := scanMaterial(r.db.QueryRow(ctx, `
		UPDATE materials SET cost_per_unit=$2
		WHERE id=$1
		RETURNING `+materialCols, id, cost))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return m, err
}

/* Lots and stock */

// ReceiveLot records an immutable lot and moves stock and cost per unit in one transaction.
func (r *Repo) ReceiveLot(ctx context.Context, lot Lot, method CostMethod) (*Material, error) {
	if !lot.Quantity.IsPositive() {
		return nil, fmt.Errorf("qty must be > 0")
	}
	if lot.CostPerUnit.IsNegative() {
		return nil, fmt.Errorf("cost per unit must be >= 0")
	}
	if lot.PurchasedAt.IsZero() {
		lot.PurchasedAt = time.Now()
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	cur, err := scanMaterial(tx.QueryRow(ctx, `SELECT `+materialCols+` FROM materials WHERE id=$1 FOR UPDATE`, lot.MaterialID))
	if err != nil {
		return nil, err
	}

	total := lot.Quantity.Mul(lot.CostPerUnit).Round(2)
	if _, err = tx.Exec(ctx, `
		INSERT INTO material_lots (material_id, qty, cost_per_unit, total_cost, supplier, purchased_at, expires_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, lot.MaterialID, lot.Quantity, lot.CostPerUnit, total, lot.Supplier, lot.PurchasedAt, lot.ExpiresAt); err != nil {
		return nil, err
	}

	cost := NextCost(method, cur.Stock, cur.CostPerUnit, lot.Quantity, lot.CostPerUnit)
	m, err := scanMaterial(tx.QueryRow(ctx, `
		UPDATE materials SET stock = stock + $2, cost_per_unit = $3
		WHERE id=$1
		RETURNING `+materialCols, lot.MaterialID, lot.Quantity, cost))
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return m, nil
}

// Consume writes stock off; stock may go negative, like the warehouse balances it mirrors.
// Returns nil when the material does not exist.
func (r *Repo) Consume(ctx context.Context, id int64, qty decimal.Decimal) (*Material, error) {
	if !qty.IsPositive() {
		return nil, fmt.Errorf("qty must be > 0")
	}
	m, err := scanMaterial(r.db.QueryRow(ctx, `
		UPDATE materials SET stock = stock - $2
		WHERE id=$1
		RETURNING `+materialCols, id, qty))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return m, err
}

func (r *Repo) ListLots(ctx context.Context, materialID int64) ([]Lot, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, material_id, qty, cost_per_unit, total_cost, supplier, purchased_at, expires_at
		FROM material_lots
		WHERE material_id = $1
		ORDER BY purchased_at DESC, id DESC
	`, materialID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Lot
	for rows.Next() {
		var l Lot
		if err := rows.Scan(&l.ID, &l.MaterialID, &l.Quantity, &l.CostPerUnit, &l.TotalCost, &l.Supplier, &l.PurchasedAt, &l.ExpiresAt); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
