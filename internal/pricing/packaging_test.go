package pricing_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Spok95/decant-pricing/internal/domain/materials"
	"github.com/Spok95/decant-pricing/internal/domain/packaging"
	"github.com/Spok95/decant-pricing/internal/pricing"
)

func TestPackagingQuote(t *testing.T) {
	f := newFixture(t)
	small := f.store.AddMaterial(materials.Material{Name: "Envelope", Kind: materials.KindBox, Unit: materials.UnitPcs, CostPerUnit: d("1.00")})
	big := f.store.AddMaterial(materials.Material{Name: "Caixa", Kind: materials.KindBox, Unit: materials.UnitPcs, CostPerUnit: d("2.50")})
	sample := f.store.AddMaterial(materials.Material{Name: "Saquinho 2ml", Kind: materials.KindBox, Unit: materials.UnitPcs, CostPerUnit: d("0.40")})
	two := 2

	f.store.AddRule(packaging.Rule{MaterialID: small.ID, MaxItems: 1, Priority: 1, Active: true})
	f.store.AddRule(packaging.Rule{MaterialID: big.ID, MaxItems: 4, Priority: 2, Active: true})
	f.store.AddRule(packaging.Rule{MaterialID: sample.ID, MaxItems: 10, ItemSizeMl: &two, Priority: 0, Active: true})

	cases := []struct {
		name  string
		items []pricing.OrderItem
		want  int64
		cost  string
	}{
		{"single item", []pricing.OrderItem{{SizeMl: 10, Quantity: 1}}, small.ID, "1.00"},
		{"three items", []pricing.OrderItem{{SizeMl: 10, Quantity: 3}}, big.ID, "2.50"},
		{"split lines", []pricing.OrderItem{{SizeMl: 5, Quantity: 2}, {SizeMl: 5, Quantity: 2}}, big.ID, "2.50"},
		{"samples only", []pricing.OrderItem{{SizeMl: 2, Quantity: 6}}, sample.ID, "0.40"},
		{"mixed sizes skip size filtered rules", []pricing.OrderItem{{SizeMl: 2, Quantity: 1}, {SizeMl: 10, Quantity: 1}}, big.ID, "2.50"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			q, err := f.eng.Packager.Quote(f.ctx, c.items)
			require.NoError(t, err)
			assert.Equal(t, c.want, q.MaterialID)
			assert.Equal(t, c.cost, q.Cost.StringFixed(2))
		})
	}

	_, err := f.eng.Packager.Quote(f.ctx, []pricing.OrderItem{{SizeMl: 10, Quantity: 5}})
	assert.ErrorIs(t, err, packaging.ErrNoRule)

	_, err = f.eng.Packager.Quote(f.ctx, nil)
	assert.ErrorIs(t, err, pricing.ErrEmptyOrder)

	_, err = f.eng.Packager.Quote(f.ctx, []pricing.OrderItem{{SizeMl: 10, Quantity: 0}})
	assert.ErrorIs(t, err, pricing.ErrInvalidOrder)
}

func TestPackagingQuoteInactiveMaterial(t *testing.T) {
	f := newFixture(t)
	box := f.store.AddMaterial(materials.Material{Name: "Caixa", Kind: materials.KindBox, Unit: materials.UnitPcs, CostPerUnit: d("2.50")})
	f.store.AddRule(packaging.Rule{MaterialID: box.ID, MaxItems: 4, Priority: 1, Active: true})
	f.store.SetMaterialActive(box.ID, false)

	_, err := f.eng.Packager.Quote(f.ctx, []pricing.OrderItem{{SizeMl: 10, Quantity: 1}})
	var mm *pricing.MissingMaterialError
	require.ErrorAs(t, err, &mm)
	assert.Equal(t, box.ID, mm.MaterialID)
}

func TestPackagingNeverFeedsUnitCost(t *testing.T) {
	f := newFixture(t)
	box := f.store.AddMaterial(materials.Material{Name: "Caixa", Kind: materials.KindBox, Unit: materials.UnitPcs, CostPerUnit: d("2.50")})
	f.store.AddRule(packaging.Rule{MaterialID: box.ID, MaxItems: 4, Priority: 1, Active: true})

	bd, err := f.eng.Calculator.Cost(f.ctx, f.product.ID, 10)
	require.NoError(t, err)
	assert.Equal(t, "8.80", bd.Total.StringFixed(2))
}
