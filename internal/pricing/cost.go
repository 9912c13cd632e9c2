package pricing

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Spok95/decant-pricing/internal/domain/materials"
	"github.com/Spok95/decant-pricing/internal/domain/recipes"
)

type Line struct {
	MaterialID int64           `json:"material_id"`
	Name       string          `json:"name"`
	Kind       materials.Kind  `json:"kind"`
	Quantity   decimal.Decimal `json:"quantity"`
	UnitCost   decimal.Decimal `json:"unit_cost"`
	Cost       decimal.Decimal `json:"cost"`
}

// Breakdown is the unit cost of one (product, size) split by material kind.
type Breakdown struct {
	ProductID int64           `json:"product_id"`
	SizeMl    int             `json:"size_ml"`
	Liquid    decimal.Decimal `json:"liquid"`
	Container decimal.Decimal `json:"container"`
	Label     decimal.Decimal `json:"label"`
	Packaging decimal.Decimal `json:"packaging"`
	Other     decimal.Decimal `json:"other"`
	Total     decimal.Decimal `json:"total"`
	Lines     []Line          `json:"lines"`
	TakenAt   time.Time       `json:"taken_at"`
}

// Basis is a point-in-time snapshot of a product's recipes and the costs of
// every material they reference. Costing from a Basis never re-reads the ledger.
type Basis struct {
	ProductID int64
	TakenAt   time.Time
	entries   map[int][]recipes.Entry
	materials map[int64]materials.Material
}

func NewBasis(productID int64, entries []recipes.Entry, mats map[int64]materials.Material, at time.Time) *Basis {
	b := &Basis{
		ProductID: productID,
		TakenAt:   at,
		entries:   make(map[int][]recipes.Entry),
		materials: mats,
	}
	for _, e := range entries {
		if e.ProductID != productID {
			continue
		}
		b.entries[e.SizeMl] = append(b.entries[e.SizeMl], e)
	}
	return b
}

func (b *Basis) HasRecipe(sizeMl int) bool { return len(b.entries[sizeMl]) > 0 }

// RecipeSizes returns the sizes with at least one recipe entry, ascending.
func (b *Basis) RecipeSizes() []int {
	out := make([]int, 0, len(b.entries))
	for s, es := range b.entries {
		if len(es) > 0 {
			out = append(out, s)
		}
	}
	sort.Ints(out)
	return out
}

func (b *Basis) Cost(sizeMl int) (Breakdown, error) {
	entries := b.entries[sizeMl]
	if len(entries) == 0 {
		return Breakdown{}, &MissingRecipeError{ProductID: b.ProductID, SizeMl: sizeMl}
	}

	bd := Breakdown{ProductID: b.ProductID, SizeMl: sizeMl, TakenAt: b.TakenAt}
	for _, e := range entries {
		m, ok := b.materials[e.MaterialID]
		if !ok || !m.Active {
			return Breakdown{}, &MissingMaterialError{ProductID: b.ProductID, SizeMl: sizeMl, MaterialID: e.MaterialID}
		}
		cost := e.Quantity.Mul(m.CostPerUnit)
		bd.Lines = append(bd.Lines, Line{
			MaterialID: m.ID,
			Name:       m.Name,
			Kind:       m.Kind,
			Quantity:   e.Quantity,
			UnitCost:   m.CostPerUnit,
			Cost:       cost,
		})
		switch m.Kind {
		case materials.KindLiquid:
			bd.Liquid = bd.Liquid.Add(cost)
		case materials.KindBottle:
			bd.Container = bd.Container.Add(cost)
		case materials.KindLabel:
			bd.Label = bd.Label.Add(cost)
		case materials.KindBox:
			bd.Packaging = bd.Packaging.Add(cost)
		default:
			bd.Other = bd.Other.Add(cost)
		}
		bd.Total = bd.Total.Add(cost)
	}
	return bd, nil
}

var nowFunc = time.Now

// Calculator is read-only: it never mutates state.
type Calculator struct {
	store Reader
}

func NewCalculator(store Reader) *Calculator {
	return &Calculator{store: store}
}

func (c *Calculator) Snapshot(ctx context.Context, productID int64) (*Basis, error) {
	return snapshot(ctx, c.store, productID, nowFunc())
}

func (c *Calculator) Cost(ctx context.Context, productID int64, sizeMl int) (Breakdown, error) {
	if _, err := loadProduct(ctx, c.store, productID); err != nil {
		return Breakdown{}, err
	}
	b, err := c.Snapshot(ctx, productID)
	if err != nil {
		return Breakdown{}, err
	}
	return b.Cost(sizeMl)
}

func snapshot(ctx context.Context, r Reader, productID int64, at time.Time) (*Basis, error) {
	entries, err := r.RecipeEntries(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("load recipes of product %d: %w", productID, err)
	}
	mats, err := r.Materials(ctx, recipes.MaterialIDs(entries))
	if err != nil {
		return nil, fmt.Errorf("load materials of product %d: %w", productID, err)
	}
	return NewBasis(productID, entries, mats, at), nil
}
