package materials

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestNextCost(t *testing.T) {
	d := decimal.RequireFromString
	cases := []struct {
		name                   string
		method                 CostMethod
		stock, cost, qty, lotC string
		want                   string
	}{
		{"average", CostAverage, "10", "0.50", "10", "1.50", "1"},
		{"average uneven", CostAverage, "30", "2", "10", "4", "2.5"},
		{"empty stock takes lot cost", CostAverage, "0", "9", "5", "3", "3"},
		{"negative stock counts as empty", CostAverage, "-4", "9", "5", "3", "3"},
		{"latest", CostLatest, "10", "0.50", "10", "1.50", "1.5"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := NextCost(c.method, d(c.stock), d(c.cost), d(c.qty), d(c.lotC))
			assert.Equal(t, c.want, got.String())
		})
	}
}

func TestLowStock(t *testing.T) {
	m := Material{Stock: decimal.NewFromInt(2), MinStock: decimal.NewFromInt(5)}
	assert.True(t, m.LowStock())

	m.Stock = decimal.NewFromInt(5)
	assert.False(t, m.LowStock())

	m = Material{Stock: decimal.Zero}
	assert.False(t, m.LowStock(), "no threshold, no alert")
}
