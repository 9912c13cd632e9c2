package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/Spok95/decant-pricing/internal/infra/db"
)

type Repo struct{ db db.Querier }

func NewRepo(q db.Querier) *Repo { return &Repo{db: q} }

/* Products */

func scanProduct(row pgx.Row) (*Product, error) {
	var p Product
	var sizes []int32
	if err := row.Scan(&p.ID, &p.Name, &sizes, &p.Active, &p.CreatedAt); err != nil {
		return nil, err
	}
	p.Sizes = make([]int, 0, len(sizes))
	for _, s := range sizes {
		p.Sizes = append(p.Sizes, int(s))
	}
	return &p, nil
}

func (r *Repo) CreateProduct(ctx context.Context, name string, sizes []int) (*Product, error) {
	return scanProduct(r.db.QueryRow(ctx, `
		INSERT INTO products (name, sizes, active) VALUES ($1,$2,TRUE)
		RETURNING id, name, sizes, active, created_at
	`, name, toInt32(sizes)))
}

func (r *Repo) GetProduct(ctx context.Context, id int64) (*Product, error) {
	p, err := scanProduct(r.db.QueryRow(ctx, `
		SELECT id, name, sizes, active, created_at FROM products WHERE id=$1
	`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

// GetProductByName returns nil when no product has that exact name.
func (r *Repo) GetProductByName(ctx context.Context, name string) (*Product, error) {
	p, err := scanProduct(r.db.QueryRow(ctx, `
		SELECT id, name, sizes, active, created_at FROM products WHERE name=$1 ORDER BY id LIMIT 1
	`, name))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

func (r *Repo) ListProducts(ctx context.Context, onlyActive bool) ([]Product, error) {
	q := `SELECT id, name, sizes, active, created_at FROM products`
	if onlyActive {
		q += " WHERE active = TRUE"
	}
	q += " ORDER BY id"

	rows, err := r.db.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

/* Bottle configuration */

// BottleConfig returns the configured bottle sizes; ok=false when the record does not exist.
func (r *Repo) BottleConfig(ctx context.Context) ([]BottleSize, bool, error) {
	var raw []byte
	err := r.db.QueryRow(ctx, `SELECT value FROM settings WHERE key=$1`, BottleConfigKey).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var out []BottleSize
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, false, fmt.Errorf("decode %s: %w", BottleConfigKey, err)
	}
	return out, true, nil
}

func (r *Repo) SaveBottleConfig(ctx context.Context, sizes []BottleSize) error {
	raw, err := json.Marshal(sizes)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `
		INSERT INTO settings (key, value, updated_at) VALUES ($1,$2,NOW())
		ON CONFLICT (key) DO UPDATE SET value=EXCLUDED.value, updated_at=NOW()
	`, BottleConfigKey, raw)
	return err
}

func toInt32(in []int) []int32 {
	out := make([]int32, 0, len(in))
	for _, v := range in {
		out = append(out, int32(v))
	}
	return out
}
