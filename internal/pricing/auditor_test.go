package pricing_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Spok95/decant-pricing/internal/domain/prices"
	"github.com/Spok95/decant-pricing/internal/pricing"
)

func TestCheckCleanCatalog(t *testing.T) {
	f := newFixture(t)
	f.setMargin(t, f.product.ID, "200")

	rep, err := f.eng.Auditor.Check(f.ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, rep.RunID)
	assert.Equal(t, 1, rep.Products)
	assert.Equal(t, 1, rep.SizesChecked)
	assert.Empty(t, rep.Discrepancies)
}

func TestCheckDetectsDrift(t *testing.T) {
	f := newFixture(t)
	f.setMargin(t, f.product.ID, "200")
	f.store.PutPrice(prices.Price{ProductID: f.product.ID, SizeMl: 10, Price: d("26.40")})

	rep, err := f.eng.Auditor.Check(f.ctx)
	require.NoError(t, err)
	require.Len(t, rep.Discrepancies, 1)

	got := rep.Discrepancies[0]
	assert.Equal(t, pricing.ActionRecalculate, got.Action)
	assert.Equal(t, "26.40", got.Stored.Decimal.StringFixed(2))
	assert.Equal(t, "17.60", got.Expected.Decimal.StringFixed(2))
	assert.Equal(t, "8.80", got.Diff().StringFixed(2))
	assert.Equal(t, int64(1), got.MarginVersion)
	assert.Equal(t, 1, rep.Count(pricing.ActionRecalculate))
}

func TestCheckWithinTolerance(t *testing.T) {
	f := newFixture(t)
	f.setMargin(t, f.product.ID, "200")
	f.store.PutPrice(prices.Price{ProductID: f.product.ID, SizeMl: 10, Price: d("17.61")})

	rep, err := f.eng.Auditor.Check(f.ctx)
	require.NoError(t, err)
	assert.Empty(t, rep.Discrepancies)
}

func TestCheckReportsWhatCannotBePriced(t *testing.T) {
	f := newFixture(t)

	noMargin := f.product
	noRecipe := f.store.AddProduct("Decant B", 5)
	f.setMargin(t, noRecipe.ID, "200")

	noPrice := f.store.AddProduct("Decant C")
	f.addRecipe(noPrice.ID, 10)
	f.setMargin(t, noPrice.ID, "200")
	f.store.DeletePrice(noPrice.ID, 10)

	rep, err := f.eng.Auditor.Check(f.ctx)
	require.NoError(t, err)
	require.Len(t, rep.Discrepancies, 3)

	byProduct := map[int64]pricing.Discrepancy{}
	for _, disc := range rep.Discrepancies {
		byProduct[disc.ProductID] = disc
	}
	assert.Equal(t, pricing.ActionMissingMargin, byProduct[noMargin.ID].Action)
	assert.Equal(t, pricing.ActionMissingRecipe, byProduct[noRecipe.ID].Action)
	assert.Equal(t, pricing.ActionMissingPrice, byProduct[noPrice.ID].Action)
	assert.Equal(t, "17.60", byProduct[noPrice.ID].Expected.Decimal.StringFixed(2))
	assert.False(t, byProduct[noMargin.ID].Expected.Valid)
}

func TestCheckMissingMaterial(t *testing.T) {
	f := newFixture(t)
	f.setMargin(t, f.product.ID, "200")
	f.store.RemoveMaterial(f.liquid.ID)

	rep, err := f.eng.Auditor.Check(f.ctx)
	require.NoError(t, err)
	require.Len(t, rep.Discrepancies, 1)
	assert.Equal(t, pricing.ActionMissingMaterial, rep.Discrepancies[0].Action)
	assert.False(t, rep.Discrepancies[0].Action.Fixable())
}

func TestAutoFixRestoresFormulaPrice(t *testing.T) {
	f := newFixture(t)
	f.setMargin(t, f.product.ID, "200")
	f.store.PutPrice(prices.Price{ProductID: f.product.ID, SizeMl: 10, Price: d("26.40")})

	fr, err := f.eng.Auditor.AutoFix(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, fr.Fixed)
	assert.Zero(t, fr.Skipped)
	assert.Zero(t, fr.Failed)
	require.Len(t, fr.Results, 1)
	assert.Equal(t, "17.60", fr.Results[0].NewPrice.Decimal.StringFixed(2))

	assert.Equal(t, "17.60", f.price(t, f.product.ID, 10))
	ps, err := f.store.Prices(f.ctx, f.product.ID)
	require.NoError(t, err)
	assert.Equal(t, prices.SourceAutoFix, ps[10].Source)

	hist, err := f.store.History(f.ctx, f.product.ID, 1)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, prices.ReasonAutoFix, hist[0].Reason)
	assert.Equal(t, "26.40", hist[0].OldPrice.Decimal.StringFixed(2))

	rep, err := f.eng.Auditor.Check(f.ctx)
	require.NoError(t, err)
	assert.Empty(t, rep.Discrepancies)
}

func TestAutoFixFillsMissingPriceOnly(t *testing.T) {
	f := newFixture(t)
	f.setMargin(t, f.product.ID, "200")
	f.store.DeletePrice(f.product.ID, 10)
	noMargin := f.store.AddProduct("Decant B")
	f.addRecipe(noMargin.ID, 10)

	fr, err := f.eng.Auditor.AutoFix(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, fr.Fixed)
	assert.Len(t, fr.Check.Discrepancies, 2)
	assert.Equal(t, "17.60", f.price(t, f.product.ID, 10))

	m, err := f.store.Margin(f.ctx, noMargin.ID)
	require.NoError(t, err)
	assert.Nil(t, m, "auto-fix never invents a margin")
}

func TestAutoFixSkipsConcurrentPriceChange(t *testing.T) {
	f := newFixture(t)
	f.setMargin(t, f.product.ID, "200")
	f.store.PutPrice(prices.Price{ProductID: f.product.ID, SizeMl: 10, Price: d("26.40")})

	// an operator edits the price between the check and the correction
	f.store.BeforeTx(func() {
		f.store.PutPrice(prices.Price{ProductID: f.product.ID, SizeMl: 10, Price: d("19.90"), Source: prices.SourceManual})
	})

	fr, err := f.eng.Auditor.AutoFix(f.ctx)
	require.NoError(t, err)
	assert.Zero(t, fr.Fixed)
	assert.Equal(t, 1, fr.Skipped)
	assert.Equal(t, "price changed concurrently", fr.Results[0].Reason)
	assert.Equal(t, "19.90", f.price(t, f.product.ID, 10))
}

func TestAutoFixSkipsConcurrentMarginChange(t *testing.T) {
	f := newFixture(t)
	f.setMargin(t, f.product.ID, "200")
	f.store.PutPrice(prices.Price{ProductID: f.product.ID, SizeMl: 10, Price: d("26.40")})

	fired := false
	f.store.BeforeTx(func() {
		if fired {
			return
		}
		fired = true
		_, err := f.store.SaveMargin(f.ctx, f.product.ID, d("3"), 1)
		require.NoError(t, err)
	})

	fr, err := f.eng.Auditor.AutoFix(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, fr.Skipped)
	assert.Equal(t, "margin changed concurrently", fr.Results[0].Reason)
}

func TestPinnedOverrideLosesByDefault(t *testing.T) {
	f := newFixture(t)
	f.setMargin(t, f.product.ID, "200")
	_, err := f.eng.Setter.SetPriceForSize(f.ctx, f.product.ID, 10, d("25"), true)
	require.NoError(t, err)

	rep, err := f.eng.Auditor.Check(f.ctx)
	require.NoError(t, err)
	require.Len(t, rep.Discrepancies, 1)
	assert.Equal(t, pricing.ActionRecalculate, rep.Discrepancies[0].Action)
	assert.True(t, rep.Discrepancies[0].Pinned)

	fr, err := f.eng.Auditor.AutoFix(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, fr.Fixed)
	assert.Equal(t, "17.60", f.price(t, f.product.ID, 10))
}

func TestPinnedOverrideHonored(t *testing.T) {
	f := newFixture(t, honorPins)
	f.setMargin(t, f.product.ID, "200")
	_, err := f.eng.Setter.SetPriceForSize(f.ctx, f.product.ID, 10, d("25"), true)
	require.NoError(t, err)

	fr, err := f.eng.Auditor.AutoFix(f.ctx)
	require.NoError(t, err)
	require.Len(t, fr.Check.Discrepancies, 1)
	assert.Equal(t, pricing.ActionManualOverride, fr.Check.Discrepancies[0].Action)
	assert.Zero(t, fr.Fixed)
	assert.Empty(t, fr.Results)
	assert.Equal(t, "25.00", f.price(t, f.product.ID, 10))
}

func TestAutoFixAbortsWhenStoreUnavailable(t *testing.T) {
	f := newFixture(t)
	f.setMargin(t, f.product.ID, "200")
	f.store.PutPrice(prices.Price{ProductID: f.product.ID, SizeMl: 10, Price: d("26.40")})
	f.store.BeforeTx(func() { f.store.Fail(pricing.ErrUnavailable) })

	_, err := f.eng.Auditor.AutoFix(f.ctx)
	assert.ErrorIs(t, err, pricing.ErrUnavailable)
}

func TestSerialSkipsOverlappingRuns(t *testing.T) {
	f := newFixture(t)
	f.setMargin(t, f.product.ID, "200")
	f.store.PutPrice(prices.Price{ProductID: f.product.ID, SizeMl: 10, Price: d("26.40")})

	var inner error
	f.store.BeforeTx(func() {
		_, inner = f.eng.Audit.Check(f.ctx)
	})
	_, err := f.eng.Audit.AutoFix(f.ctx)
	require.NoError(t, err)
	assert.ErrorIs(t, inner, pricing.ErrAuditRunning)

	f.store.BeforeTx(nil)
	_, err = f.eng.Audit.Check(f.ctx)
	assert.NoError(t, err)
}
