package seed_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Spok95/decant-pricing/internal/domain/packaging"
	"github.com/Spok95/decant-pricing/internal/seed"
	"github.com/Spok95/decant-pricing/internal/storage/memory"
)

func TestRunIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	stats, err := seed.Run(ctx, s)
	require.NoError(t, err)
	// 6 materials, bottle config, product, 6 recipe lines, 2 rules
	assert.Equal(t, seed.Stats{Inserts: 16}, stats)

	stats, err = seed.Run(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, seed.Stats{}, stats)

	p, err := s.ProductByName(ctx, seed.DemoProduct)
	require.NoError(t, err)
	require.NotNil(t, p)
	entries, err := s.RecipeEntries(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, entries, 6)

	sizes, ok, err := s.BottleConfig(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Len(t, sizes, 2)
}

func TestRunRepairsDriftedRows(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	_, err := seed.Run(ctx, s)
	require.NoError(t, err)

	p, err := s.ProductByName(ctx, seed.DemoProduct)
	require.NoError(t, err)
	liquid, err := s.MaterialByName(ctx, "Perfume base")
	require.NoError(t, err)
	s.AddRecipe(p.ID, 10, liquid.ID, decimal.NewFromInt(8))

	rules, err := s.PackagingRules(ctx)
	require.NoError(t, err)
	off := rules[0]
	off.Active = false
	_, err = s.UpsertRule(ctx, off)
	require.NoError(t, err)

	stats, err := seed.Run(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, seed.Stats{Updates: 2}, stats)

	rules, err = s.PackagingRules(ctx)
	require.NoError(t, err)
	assert.Len(t, rules, 2)
	for _, r := range rules {
		assert.True(t, r.Active)
	}
}

func TestRunKeepsExistingBottleConfig(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	require.NoError(t, s.SaveBottleConfig(ctx, nil))

	stats, err := seed.Run(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, 15, stats.Inserts)

	sizes, ok, err := s.BottleConfig(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, sizes)
}

func TestRunStopsOnStoreError(t *testing.T) {
	s := memory.New()
	boom := errors.New("boom")
	s.Fail(boom)

	stats, err := seed.Run(context.Background(), s)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, seed.Stats{}, stats)

	s.Fail(nil)
	_, err = s.UpsertRule(context.Background(), packaging.Rule{ID: 42})
	assert.Error(t, err)
}
