package packaging

import (
	"context"
	"database/sql"

	"github.com/Spok95/decant-pricing/internal/infra/db"
)

type Repo struct{ db db.Querier }

func NewRepo(q db.Querier) *Repo { return &Repo{db: q} }

// List returns rules ordered by priority ASC.
func (r *Repo) List(ctx context.Context, onlyActive bool) ([]Rule, error) {
	q := `
		SELECT id, material_id, max_items, item_size_ml, priority, active
		FROM packaging_rules
	`
	if onlyActive {
		q += " WHERE active = TRUE"
	}
	q += " ORDER BY priority ASC, id ASC"

	rows, err := r.db.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Rule{}
	for rows.Next() {
		var rl Rule
		var size sql.NullInt32
		if err := rows.Scan(&rl.ID, &rl.MaterialID, &rl.MaxItems, &size, &rl.Priority, &rl.Active); err != nil {
			return nil, err
		}
		if size.Valid {
			v := int(size.Int32)
			rl.ItemSizeMl = &v
		}
		out = append(out, rl)
	}
	return out, rows.Err()
}

func (r *Repo) Upsert(ctx context.Context, rl Rule) (int64, error) {
	var id int64
	if rl.ID == 0 {
		err := r.db.QueryRow(ctx, `
			INSERT INTO packaging_rules (material_id, max_items, item_size_ml, priority, active)
			VALUES ($1,$2,$3,$4,$5)
			RETURNING id
		`, rl.MaterialID, rl.MaxItems, rl.ItemSizeMl, rl.Priority, rl.Active).Scan(&id)
		return id, err
	}
	err := r.db.QueryRow(ctx, `
		UPDATE packaging_rules
		SET material_id=$2, max_items=$3, item_size_ml=$4, priority=$5, active=$6
		WHERE id=$1
		RETURNING id
	`, rl.ID, rl.MaterialID, rl.MaxItems, rl.ItemSizeMl, rl.Priority, rl.Active).Scan(&id)
	return id, err
}
