// Package seed loads the demo catalog: bottles, inputs, packaging rules and
// one product with 5 ml and 10 ml recipes. Running it twice changes nothing.
package seed

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/Spok95/decant-pricing/internal/domain/catalog"
	"github.com/Spok95/decant-pricing/internal/domain/materials"
	"github.com/Spok95/decant-pricing/internal/domain/packaging"
	"github.com/Spok95/decant-pricing/internal/domain/recipes"
)

const DemoProduct = "Decant demo"

// Store is what the seed writes through. Lookups return nil when nothing matches.
type Store interface {
	MaterialByName(ctx context.Context, name string) (*materials.Material, error)
	CreateMaterial(ctx context.Context, m materials.Material) (*materials.Material, error)
	ProductByName(ctx context.Context, name string) (*catalog.Product, error)
	CreateProduct(ctx context.Context, name string, sizes []int) (*catalog.Product, error)
	BottleConfig(ctx context.Context) ([]catalog.BottleSize, bool, error)
	SaveBottleConfig(ctx context.Context, sizes []catalog.BottleSize) error
	RecipeEntries(ctx context.Context, productID int64) ([]recipes.Entry, error)
	UpsertRecipe(ctx context.Context, e recipes.Entry) error
	PackagingRules(ctx context.Context) ([]packaging.Rule, error)
	UpsertRule(ctx context.Context, r packaging.Rule) (int64, error)
}

// Stats contains seed operation counters.
type Stats struct {
	Inserts int
	Updates int
}

var d = decimal.RequireFromString

var demoMaterials = []materials.Material{
	{Name: "Frasco 10ml", Category: materials.CategoryPackaging, Kind: materials.KindBottle, Unit: materials.UnitPcs, CostPerUnit: d("3.00"), Stock: d("100"), MinStock: d("20"), SizeMl: 10},
	{Name: "Frasco 5ml", Category: materials.CategoryPackaging, Kind: materials.KindBottle, Unit: materials.UnitPcs, CostPerUnit: d("2.20"), Stock: d("100"), MinStock: d("20"), SizeMl: 5},
	{Name: "Perfume base", Category: materials.CategoryInput, Kind: materials.KindLiquid, Unit: materials.UnitMl, CostPerUnit: d("0.50"), Stock: d("500")},
	{Name: "Etiqueta", Category: materials.CategoryInput, Kind: materials.KindLabel, Unit: materials.UnitPcs, CostPerUnit: d("0.80"), Stock: d("300")},
	{Name: "Envelope", Category: materials.CategoryPackaging, Kind: materials.KindBox, Unit: materials.UnitPcs, CostPerUnit: d("1.50"), Stock: d("50")},
	{Name: "Caixa 4 un", Category: materials.CategoryPackaging, Kind: materials.KindBox, Unit: materials.UnitPcs, CostPerUnit: d("4.00"), Stock: d("50")},
}

type demoLine struct {
	size     int
	material string
	qty      string
}

var demoRecipe = []demoLine{
	{10, "Frasco 10ml", "1"},
	{10, "Perfume base", "10"},
	{10, "Etiqueta", "1"},
	{5, "Frasco 5ml", "1"},
	{5, "Perfume base", "5"},
	{5, "Etiqueta", "1"},
}

type demoRule struct {
	material string
	maxItems int
	priority int
}

var demoRules = []demoRule{
	{"Envelope", 1, 1},
	{"Caixa 4 un", 4, 2},
}

// Run executes the demo seed in an idempotent way. Callers that need it
// atomic pass a transaction-bound store.
func Run(ctx context.Context, s Store) (Stats, error) {
	stats := Stats{}

	ids, err := ensureMaterials(ctx, s, &stats)
	if err != nil {
		return Stats{}, err
	}
	if err := ensureBottleConfig(ctx, s, ids, &stats); err != nil {
		return Stats{}, err
	}
	if err := ensureProduct(ctx, s, ids, &stats); err != nil {
		return Stats{}, err
	}
	if err := ensureRules(ctx, s, ids, &stats); err != nil {
		return Stats{}, err
	}
	return stats, nil
}

func ensureMaterials(ctx context.Context, s Store, stats *Stats) (map[string]int64, error) {
	ids := make(map[string]int64, len(demoMaterials))
	for _, m := range demoMaterials {
		cur, err := s.MaterialByName(ctx, m.Name)
		if err != nil {
			return nil, fmt.Errorf("check material %q: %w", m.Name, err)
		}
		if cur == nil {
			if cur, err = s.CreateMaterial(ctx, m); err != nil {
				return nil, fmt.Errorf("create material %q: %w", m.Name, err)
			}
			stats.Inserts++
		}
		ids[m.Name] = cur.ID
	}
	return ids, nil
}

func ensureBottleConfig(ctx context.Context, s Store, ids map[string]int64, stats *Stats) error {
	_, ok, err := s.BottleConfig(ctx)
	if err != nil {
		return fmt.Errorf("check bottle config: %w", err)
	}
	if ok {
		return nil
	}
	sizes := []catalog.BottleSize{
		{MaterialID: ids["Frasco 5ml"], SizeMl: 5},
		{MaterialID: ids["Frasco 10ml"], SizeMl: 10},
	}
	if err := s.SaveBottleConfig(ctx, sizes); err != nil {
		return fmt.Errorf("save bottle config: %w", err)
	}
	stats.Inserts++
	return nil
}

func ensureProduct(ctx context.Context, s Store, ids map[string]int64, stats *Stats) error {
	p, err := s.ProductByName(ctx, DemoProduct)
	if err != nil {
		return fmt.Errorf("check product: %w", err)
	}
	if p == nil {
		if p, err = s.CreateProduct(ctx, DemoProduct, nil); err != nil {
			return fmt.Errorf("create product: %w", err)
		}
		stats.Inserts++
	}

	have, err := s.RecipeEntries(ctx, p.ID)
	if err != nil {
		return fmt.Errorf("load recipe: %w", err)
	}
	type key struct {
		size     int
		material int64
	}
	existing := make(map[key]decimal.Decimal, len(have))
	for _, e := range have {
		existing[key{e.SizeMl, e.MaterialID}] = e.Quantity
	}

	for _, l := range demoRecipe {
		e := recipes.Entry{ProductID: p.ID, SizeMl: l.size, MaterialID: ids[l.material], Quantity: d(l.qty)}
		qty, found := existing[key{e.SizeMl, e.MaterialID}]
		if found && qty.Equal(e.Quantity) {
			continue
		}
		if err := s.UpsertRecipe(ctx, e); err != nil {
			return fmt.Errorf("upsert recipe %d ml %q: %w", l.size, l.material, err)
		}
		if found {
			stats.Updates++
		} else {
			stats.Inserts++
		}
	}
	return nil
}

func ensureRules(ctx context.Context, s Store, ids map[string]int64, stats *Stats) error {
	rules, err := s.PackagingRules(ctx)
	if err != nil {
		return fmt.Errorf("load packaging rules: %w", err)
	}
	for _, dr := range demoRules {
		mid := ids[dr.material]
		var cur *packaging.Rule
		for i := range rules {
			if rules[i].MaterialID == mid && rules[i].ItemSizeMl == nil {
				cur = &rules[i]
				break
			}
		}
		want := packaging.Rule{MaterialID: mid, MaxItems: dr.maxItems, Priority: dr.priority, Active: true}
		if cur != nil {
			if cur.MaxItems == want.MaxItems && cur.Priority == want.Priority && cur.Active {
				continue
			}
			want.ID = cur.ID
		}
		if _, err := s.UpsertRule(ctx, want); err != nil {
			return fmt.Errorf("upsert packaging rule for %q: %w", dr.material, err)
		}
		if cur != nil {
			stats.Updates++
		} else {
			stats.Inserts++
		}
	}
	return nil
}
