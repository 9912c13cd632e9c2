package pricing_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/Spok95/decant-pricing/internal/domain/catalog"
	"github.com/Spok95/decant-pricing/internal/domain/materials"
	"github.com/Spok95/decant-pricing/internal/infra/logger"
	"github.com/Spok95/decant-pricing/internal/pricing"
	"github.com/Spok95/decant-pricing/internal/storage/memory"
)

var d = decimal.RequireFromString

// fixture is one product sold in 10ml built from the reference recipe:
// bottle 3.00 + 10ml liquid at 0.50 + label 0.80 = 8.80.
type fixture struct {
	ctx     context.Context
	store   *memory.Store
	eng     *pricing.Engine
	product catalog.Product
	bottle  materials.Material
	liquid  materials.Material
	label   materials.Material
}

func newFixture(t *testing.T, opts ...func(*pricing.Options)) *fixture {
	t.Helper()

	s := memory.New()
	f := &fixture{ctx: context.Background(), store: s}
	f.bottle = s.AddMaterial(materials.Material{Name: "Frasco 10ml", Category: materials.CategoryPackaging, Kind: materials.KindBottle, Unit: materials.UnitPcs, CostPerUnit: d("3.00"), SizeMl: 10})
	f.liquid = s.AddMaterial(materials.Material{Name: "Perfume base", Category: materials.CategoryInput, Kind: materials.KindLiquid, Unit: materials.UnitMl, CostPerUnit: d("0.50"), Stock: d("10")})
	f.label = s.AddMaterial(materials.Material{Name: "Etiqueta", Category: materials.CategoryInput, Kind: materials.KindLabel, Unit: materials.UnitPcs, CostPerUnit: d("0.80")})
	s.SetBottleConfig([]catalog.BottleSize{{MaterialID: f.bottle.ID, SizeMl: 10}})

	f.product = s.AddProduct("Decant A")
	f.addRecipe(f.product.ID, 10)

	o := pricing.Options{
		Store:  s,
		Ledger: s,
		Log:    logger.Nop(),
	}
	for _, fn := range opts {
		fn(&o)
	}
	eng, err := pricing.New(o)
	require.NoError(t, err)
	f.eng = eng
	return f
}

func (f *fixture) addRecipe(productID int64, size int) {
	f.store.AddRecipe(productID, size, f.bottle.ID, d("1"))
	f.store.AddRecipe(productID, size, f.liquid.ID, d("10"))
	f.store.AddRecipe(productID, size, f.label.ID, d("1"))
}

func (f *fixture) setMargin(t *testing.T, productID int64, pct string) *pricing.MarginUpdate {
	t.Helper()
	upd, err := f.eng.Setter.SetMargin(f.ctx, productID, d(pct))
	require.NoError(t, err)
	return upd
}

func (f *fixture) price(t *testing.T, productID int64, size int) string {
	t.Helper()
	ps, err := f.store.Prices(f.ctx, productID)
	require.NoError(t, err)
	p, ok := ps[size]
	require.True(t, ok, "no stored price for %d/%dml", productID, size)
	return p.Price.StringFixed(2)
}

func honorPins(o *pricing.Options) { o.HonorPins = true }
