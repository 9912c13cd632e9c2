package pricing_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Spok95/decant-pricing/internal/domain/materials"
	"github.com/Spok95/decant-pricing/internal/pricing"
)

func TestReceiveLotRepricesAtAverageCost(t *testing.T) {
	f := newFixture(t)
	f.setMargin(t, f.product.ID, "200")

	ch, err := f.eng.Ledger.ReceiveLot(f.ctx, materials.Lot{MaterialID: f.liquid.ID, Quantity: d("10"), CostPerUnit: d("1.50")})
	require.NoError(t, err)
	assert.Equal(t, "0.5", ch.OldCost.String())
	assert.Equal(t, "1", ch.Material.CostPerUnit.String())
	assert.Equal(t, "20", ch.Material.Stock.String())
	require.Len(t, ch.Repriced, 1)
	assert.Equal(t, "27.60", f.price(t, f.product.ID, 10))

	lots, err := f.eng.Ledger.Lots(f.ctx, f.liquid.ID)
	require.NoError(t, err)
	require.Len(t, lots, 1)
	assert.Equal(t, "15", lots[0].TotalCost.String())
}

func TestReceiveLotLatestCost(t *testing.T) {
	f := newFixture(t, func(o *pricing.Options) { o.CostMethod = materials.CostLatest })
	f.setMargin(t, f.product.ID, "200")

	ch, err := f.eng.Ledger.ReceiveLot(f.ctx, materials.Lot{MaterialID: f.liquid.ID, Quantity: d("10"), CostPerUnit: d("1.50")})
	require.NoError(t, err)
	assert.Equal(t, "1.5", ch.Material.CostPerUnit.String())
	assert.Equal(t, "37.60", f.price(t, f.product.ID, 10))
}

func TestReceiveLotUnknownMaterial(t *testing.T) {
	f := newFixture(t)

	_, err := f.eng.Ledger.ReceiveLot(f.ctx, materials.Lot{MaterialID: 9999, Quantity: d("1"), CostPerUnit: d("1")})
	var mm *pricing.MissingMaterialError
	assert.ErrorAs(t, err, &mm)
	assert.ErrorIs(t, err, pricing.ErrMaterialNotFound)

	_, err = f.eng.Ledger.Lots(f.ctx, 9999)
	assert.ErrorIs(t, err, pricing.ErrMaterialNotFound)
}

func TestUpdateCostSameValueDoesNotReprice(t *testing.T) {
	f := newFixture(t)
	f.setMargin(t, f.product.ID, "200")

	ch, err := f.eng.Ledger.UpdateCost(f.ctx, f.bottle.ID, d("3.00"))
	require.NoError(t, err)
	assert.Empty(t, ch.Repriced)

	_, err = f.eng.Ledger.UpdateCost(f.ctx, f.bottle.ID, d("-1"))
	assert.Error(t, err)
}

func TestImportCosts(t *testing.T) {
	f := newFixture(t)
	f.setMargin(t, f.product.ID, "200")
	misc := f.store.AddMaterial(materials.Material{Name: "Etiqueta dourada", Kind: materials.KindOther, Unit: materials.UnitPcs, CostPerUnit: d("0.10")})

	res, err := f.eng.Ledger.ImportCosts(f.ctx, []pricing.CostRow{
		{Line: 2, MaterialID: f.label.ID, Name: "Etiqueta", Cost: d("1.00")},
		{Line: 3, MaterialID: f.bottle.ID, Name: "Frasco 10ml", Cost: d("3.00")},
		{Line: 4, MaterialID: 9999, Name: "Frasco 30ml", Cost: d("4.00")},
		{Line: 5, MaterialID: misc.ID, Name: misc.Name, Cost: d("0.10")},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, res.Updated)
	assert.Equal(t, 2, res.Unchanged)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, 4, res.Errors[0].Line)
	assert.Equal(t, []int64{f.product.ID}, res.Repriced)
	assert.Equal(t, "18.00", f.price(t, f.product.ID, 10))

	require.Len(t, res.Suggestions, 2)
	assert.Equal(t, materials.KindBottle, res.Suggestions[0].Kind)
	assert.Equal(t, 30, res.Suggestions[0].SizeMl)
	assert.Equal(t, materials.KindLabel, res.Suggestions[1].Kind)
	assert.Equal(t, misc.ID, res.Suggestions[1].MaterialID)

	// suggestions are never applied
	mats, err := f.store.Materials(f.ctx, []int64{misc.ID})
	require.NoError(t, err)
	assert.Equal(t, materials.KindOther, mats[misc.ID].Kind)
}

func TestLowStock(t *testing.T) {
	f := newFixture(t)
	f.store.AddMaterial(materials.Material{Name: "Frasco 5ml", Kind: materials.KindBottle, Stock: d("2"), MinStock: d("10"), CostPerUnit: d("2.20")})

	low, err := f.eng.Ledger.LowStock(f.ctx)
	require.NoError(t, err)
	require.Len(t, low, 1)
	assert.Equal(t, "Frasco 5ml", low[0].Name)
}

func TestConsumeDecrementsStockWithoutRepricing(t *testing.T) {
	f := newFixture(t)
	f.setMargin(t, f.product.ID, "200")
	f.store.AddMaterial(materials.Material{Name: "Frasco 5ml", Kind: materials.KindBottle, Stock: d("12"), MinStock: d("10"), CostPerUnit: d("2.20")})

	m, err := f.eng.Ledger.Consume(f.ctx, f.liquid.ID, d("4"))
	require.NoError(t, err)
	assert.Equal(t, "6", m.Stock.String())
	assert.Equal(t, "17.60", f.price(t, f.product.ID, 10))

	_, err = f.eng.Ledger.Consume(f.ctx, 9999, d("1"))
	var mm *pricing.MissingMaterialError
	assert.ErrorAs(t, err, &mm)
	assert.ErrorIs(t, err, pricing.ErrMaterialNotFound)

	_, err = f.eng.Ledger.Consume(f.ctx, f.liquid.ID, d("0"))
	assert.Error(t, err)

	all, err := f.eng.Ledger.List(f.ctx, true)
	require.NoError(t, err)
	assert.Len(t, all, 4)
}
