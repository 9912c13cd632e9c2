package prices

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/Spok95/decant-pricing/internal/infra/db"
)

type Repo struct {
	db        db.Querier
	forUpdate bool
}

func NewRepo(q db.Querier) *Repo { return &Repo{db: q} }

// Locking returns a repo whose reads take row locks; use it only inside a transaction.
func (r *Repo) Locking() *Repo { return &Repo{db: r.db, forUpdate: true} }

func (r *Repo) lockClause() string {
	if r.forUpdate {
		return " FOR UPDATE"
	}
	return ""
}

/* Margins */

// GetMargin returns nil when the product has no margin setting.
func (r *Repo) GetMargin(ctx context.Context, productID int64) (*Margin, error) {
	var m Margin
	err := r.db.QueryRow(ctx, `
		SELECT product_id, multiplier, version, updated_at
		FROM margins WHERE product_id=$1`+r.lockClause(), productID).
		Scan(&m.ProductID, &m.Multiplier, &m.Version, &m.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// SaveMargin writes the multiplier if the stored version still equals expectedVersion
// (0 = no row yet) and returns the new row.
func (r *Repo) SaveMargin(ctx context.Context, productID int64, multiplier decimal.Decimal, expectedVersion int64) (*Margin, error) {
	var m Margin
	var row pgx.Row
	if expectedVersion == 0 {
		row = r.db.QueryRow(ctx, `
			INSERT INTO margins (product_id, multiplier, version, updated_at)
			VALUES ($1,$2,1,NOW())
			ON CONFLICT (product_id) DO NOTHING
			RETURNING product_id, multiplier, version, updated_at
		`, productID, multiplier)
	} else {
		row = r.db.QueryRow(ctx, `
			UPDATE margins SET multiplier=$2, version=version+1, updated_at=NOW()
			WHERE product_id=$1 AND version=$3
			RETURNING product_id, multiplier, version, updated_at
		`, productID, multiplier, expectedVersion)
	}
	err := row.Scan(&m.ProductID, &m.Multiplier, &m.Version, &m.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrVersionConflict
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

/* Prices */

func (r *Repo) Prices(ctx context.Context, productID int64) (map[int]Price, error) {
	rows, err := r.db.Query(ctx, `
		SELECT product_id, size_ml, price, source, pinned, updated_at
		FROM prices WHERE product_id=$1
		ORDER BY size_ml`+r.lockClause(), productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[int]Price{}
	for rows.Next() {
		var p Price
		if err := rows.Scan(&p.ProductID, &p.SizeMl, &p.Price, &p.Source, &p.Pinned, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out[p.SizeMl] = p
	}
	return out, rows.Err()
}

func (r *Repo) SavePrice(ctx context.Context, p Price) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO prices (product_id, size_ml, price, source, pinned, updated_at)
		VALUES ($1,$2,$3,$4,$5,NOW())
		ON CONFLICT (product_id, size_ml)
		DO UPDATE SET price=EXCLUDED.price, source=EXCLUDED.source, pinned=EXCLUDED.pinned, updated_at=NOW()
	`, p.ProductID, p.SizeMl, p.Price, p.Source, p.Pinned)
	return err
}

/* History */

func (r *Repo) AppendChange(ctx context.Context, c Change) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO price_history (product_id, size_ml, old_price, new_price, reason, margin_version)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, c.ProductID, c.SizeMl, c.OldPrice, c.NewPrice, c.Reason, c.MarginVersion)
	return err
}

func (r *Repo) History(ctx context.Context, productID int64, limit int) ([]Change, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(ctx, `
		SELECT id, product_id, size_ml, old_price, new_price, reason, margin_version, created_at
		FROM price_history
		WHERE product_id=$1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, productID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Change
	for rows.Next() {
		var c Change
		if err := rows.Scan(&c.ID, &c.ProductID, &c.SizeMl, &c.OldPrice, &c.NewPrice, &c.Reason, &c.MarginVersion, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
