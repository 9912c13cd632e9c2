package recipes

import (
	"context"
	"fmt"

	"github.com/Spok95/decant-pricing/internal/infra/db"
)

type Repo struct{ db db.Querier }

func NewRepo(q db.Querier) *Repo { return &Repo{db: q} }

const entryCols = `product_id, size_ml, material_id, qty`

func (r *Repo) query(ctx context.Context, q string, args ...any) ([]Entry, error) {
	rows, err := r.db.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ProductID, &e.SizeMl, &e.MaterialID, &e.Quantity); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *Repo) ForProduct(ctx context.Context, productID int64) ([]Entry, error) {
	return r.query(ctx, `
		SELECT `+entryCols+`
		FROM recipe_entries
		WHERE product_id=$1
		ORDER BY size_ml, material_id
	`, productID)
}

// ProductsUsingMaterial lists products whose recipes reference the material.
func (r *Repo) ProductsUsingMaterial(ctx context.Context, materialID int64) ([]int64, error) {
	rows, err := r.db.Query(ctx, `
		SELECT DISTINCT product_id FROM recipe_entries WHERE material_id=$1 ORDER BY product_id
	`, materialID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (r *Repo) Upsert(ctx context.Context, e Entry) error {
	if !e.Quantity.IsPositive() {
		return fmt.Errorf("recipe qty must be > 0")
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO recipe_entries (product_id, size_ml, material_id, qty)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (product_id, size_ml, material_id)
		DO UPDATE SET qty = EXCLUDED.qty
	`, e.ProductID, e.SizeMl, e.MaterialID, e.Quantity)
	return err
}
