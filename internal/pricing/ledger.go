package pricing

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/Spok95/decant-pricing/internal/domain/materials"
)

// Ledger applies material cost changes and reprices the products that use them.
type Ledger struct {
	store  LedgerStore
	setter *Setter
	method materials.CostMethod
	log    *slog.Logger
}

func NewLedger(store LedgerStore, setter *Setter, method materials.CostMethod, log *slog.Logger) *Ledger {
	if method == "" {
		method = materials.CostAverage
	}
	return &Ledger{store: store, setter: setter, method: method, log: log}
}

type CostChange struct {
	Material *materials.Material `json:"material"`
	OldCost  decimal.Decimal     `json:"old_cost"`
	Repriced []*MarginUpdate     `json:"repriced"`
}

func (l *Ledger) ReceiveLot(ctx context.Context, lot materials.Lot) (*CostChange, error) {
	before, err := l.material(ctx, lot.MaterialID)
	if err != nil {
		return nil, err
	}
	m, err := l.store.ReceiveLot(ctx, lot, l.method)
	if err != nil {
		return nil, fmt.Errorf("receive lot: %w", err)
	}
	l.log.Info("lot received",
		"material_id", m.ID,
		"qty", lot.Quantity.String(),
		"lot_cost", lot.CostPerUnit.String(),
		"cost_per_unit", m.CostPerUnit.String(),
		"stock", m.Stock.String(),
	)
	return l.afterCost(ctx, m, before.CostPerUnit)
}

func (l *Ledger) UpdateCost(ctx context.Context, materialID int64, cost decimal.Decimal) (*CostChange, error) {
	if cost.IsNegative() {
		return nil, fmt.Errorf("cost per unit must be >= 0")
	}
	before, err := l.material(ctx, materialID)
	if err != nil {
		return nil, err
	}
	m, err := l.store.UpdateMaterialCost(ctx, materialID, cost)
	if err != nil {
		return nil, fmt.Errorf("update cost: %w", err)
	}
	if m == nil {
		return nil, MaterialNotFound(materialID)
	}
	return l.afterCost(ctx, m, before.CostPerUnit)
}

func (l *Ledger) afterCost(ctx context.Context, m *materials.Material, old decimal.Decimal) (*CostChange, error) {
	ch := &CostChange{Material: m, OldCost: old}
	if m.CostPerUnit.Equal(old) {
		return ch, nil
	}
	ups, err := l.setter.RecalculateForMaterial(ctx, m.ID)
	ch.Repriced = ups
	if err != nil {
		return ch, fmt.Errorf("reprice after cost change of material %d: %w", m.ID, err)
	}
	return ch, nil
}

func (l *Ledger) material(ctx context.Context, id int64) (*materials.Material, error) {
	mats, err := l.store.Materials(ctx, []int64{id})
	if err != nil {
		return nil, fmt.Errorf("load material %d: %w", id, err)
	}
	m, ok := mats[id]
	if !ok {
		return nil, MaterialNotFound(id)
	}
	return &m, nil
}

// Consume writes stock off after production. Cost per unit is untouched, so nothing is repriced.
func (l *Ledger) Consume(ctx context.Context, materialID int64, qty decimal.Decimal) (*materials.Material, error) {
	if !qty.IsPositive() {
		return nil, fmt.Errorf("qty must be > 0")
	}
	m, err := l.store.ConsumeMaterial(ctx, materialID, qty)
	if err != nil {
		return nil, fmt.Errorf("consume material %d: %w", materialID, err)
	}
	if m == nil {
		return nil, MaterialNotFound(materialID)
	}
	if m.LowStock() {
		l.log.Warn("material below min stock", "material_id", m.ID, "stock", m.Stock.String(), "min_stock", m.MinStock.String())
	}
	return m, nil
}

func (l *Ledger) Lots(ctx context.Context, materialID int64) ([]materials.Lot, error) {
	if _, err := l.material(ctx, materialID); err != nil {
		return nil, err
	}
	return l.store.MaterialLots(ctx, materialID)
}

func (l *Ledger) List(ctx context.Context, onlyActive bool) ([]materials.Material, error) {
	return l.store.ListMaterials(ctx, onlyActive)
}

func (l *Ledger) LowStock(ctx context.Context) ([]materials.Material, error) {
	return l.store.LowStock(ctx)
}

// CostRow is one line of a cost import sheet.
type CostRow struct {
	Line       int
	MaterialID int64
	Name       string
	Cost       decimal.Decimal
}

// Suggestion is a classifier guess shown to the operator. It is never applied.
type Suggestion struct {
	Line       int            `json:"line"`
	MaterialID int64          `json:"material_id,omitempty"`
	Name       string         `json:"name"`
	Kind       materials.Kind `json:"kind"`
	SizeMl     int            `json:"size_ml,omitempty"`
}

type ImportError struct {
	Line   int    `json:"line"`
	Reason string `json:"reason"`
}

type ImportResult struct {
	Updated     int           `json:"updated"`
	Unchanged   int           `json:"unchanged"`
	Errors      []ImportError `json:"errors"`
	Suggestions []Suggestion  `json:"suggestions"`
	Repriced    []int64       `json:"repriced"`
}

// ImportCosts sets material costs from an import sheet. Rows that fail are
// reported and do not stop the import.
func (l *Ledger) ImportCosts(ctx context.Context, rows []CostRow) (*ImportResult, error) {
	res := &ImportResult{Errors: []ImportError{}, Suggestions: []Suggestion{}, Repriced: []int64{}}

	ids := make([]int64, 0, len(rows))
	for _, r := range rows {
		if r.MaterialID > 0 {
			ids = append(ids, r.MaterialID)
		}
	}
	known, err := l.store.Materials(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load materials: %w", err)
	}

	repriced := map[int64]struct{}{}
	for _, r := range rows {
		m, ok := known[r.MaterialID]
		if !ok {
			res.Errors = append(res.Errors, ImportError{Line: r.Line, Reason: "unknown material"})
			if r.Name != "" {
				g := materials.Classify(r.Name)
				res.Suggestions = append(res.Suggestions, Suggestion{Line: r.Line, Name: r.Name, Kind: g.Kind, SizeMl: g.SizeMl})
			}
			continue
		}
		if m.Kind == materials.KindOther {
			if g := materials.Classify(m.Name); g.Known {
				res.Suggestions = append(res.Suggestions, Suggestion{Line: r.Line, MaterialID: m.ID, Name: m.Name, Kind: g.Kind, SizeMl: g.SizeMl})
			}
		}
		if r.Cost.Equal(m.CostPerUnit) {
			res.Unchanged++
			continue
		}

		ch, err := l.UpdateCost(ctx, m.ID, r.Cost)
		if ch != nil {
			for _, u := range ch.Repriced {
				repriced[u.ProductID] = struct{}{}
			}
		}
		if err != nil {
			res.Errors = append(res.Errors, ImportError{Line: r.Line, Reason: err.Error()})
			continue
		}
		res.Updated++
	}
	for id := range repriced {
		res.Repriced = append(res.Repriced, id)
	}
	l.log.Info("cost import finished",
		"rows", len(rows),
		"updated", res.Updated,
		"unchanged", res.Unchanged,
		"errors", len(res.Errors),
		"repriced", len(res.Repriced),
	)
	return res, nil
}
