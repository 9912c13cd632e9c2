package pricing

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPercentageRoundTrip(t *testing.T) {
	for _, p := range []string{"50", "100", "150", "200", "333.33", "500"} {
		pct := decimal.RequireFromString(p)
		back := DecimalToPercentage(PercentageToDecimal(pct))
		assert.True(t, pct.Equal(back), "round trip of %s gave %s", p, back)
	}
	assert.Equal(t, "1.5", PercentageToDecimal(decimal.NewFromInt(150)).String())
	assert.Equal(t, "150%", FormatPercentage(decimal.NewFromInt(150)))
}

func TestPolicyBand(t *testing.T) {
	p, err := NewPolicy(50, 500)
	require.NoError(t, err)

	assert.True(t, p.IsValid(decimal.NewFromInt(50)))
	assert.True(t, p.IsValid(decimal.NewFromInt(500)))
	assert.False(t, p.IsValid(decimal.RequireFromString("49.99")))
	assert.False(t, p.IsValid(decimal.NewFromInt(501)))

	err = p.Validate(decimal.NewFromInt(20))
	var im *InvalidMarginError
	require.True(t, errors.As(err, &im))
	assert.Equal(t, "20", im.Percentage.String())

	assert.True(t, p.IsValid(decimal.RequireFromString("150.55")))
	assert.False(t, p.IsValid(decimal.RequireFromString("150.555")))
	err = p.Validate(decimal.RequireFromString("150.555"))
	require.True(t, errors.As(err, &im))
	assert.True(t, im.TooPrecise)
	assert.Contains(t, err.Error(), "decimal places")

	_, err = NewPolicy(0, 100)
	assert.Error(t, err)
	_, err = NewPolicy(200, 100)
	assert.Error(t, err)
}

func TestExpectedPriceRounding(t *testing.T) {
	cases := []struct {
		cost, mult, want string
	}{
		{"8.80", "2", "17.60"},
		{"8.80", "1.5", "13.20"},
		{"1.005", "1", "1.01"}, // half away from zero
		{"3.333", "3", "10.00"},
		{"0.125", "1", "0.13"},
	}
	for _, c := range cases {
		got := ExpectedPrice(decimal.RequireFromString(c.cost), decimal.RequireFromString(c.mult))
		assert.Equal(t, c.want, got.StringFixed(2), "cost %s x %s", c.cost, c.mult)
	}
}

func TestWithinTolerance(t *testing.T) {
	tol := decimal.RequireFromString("0.01")
	assert.True(t, withinTolerance(decimal.RequireFromString("17.60"), decimal.RequireFromString("17.61"), tol))
	assert.False(t, withinTolerance(decimal.RequireFromString("17.60"), decimal.RequireFromString("17.62"), tol))
}

func TestReasonCode(t *testing.T) {
	assert.Equal(t, "missing_recipe", ReasonCode(&MissingRecipeError{ProductID: 1, SizeMl: 5}))
	assert.Equal(t, "missing_material", ReasonCode(&MissingMaterialError{MaterialID: 3}))
	assert.Equal(t, "material_not_found", ReasonCode(MaterialNotFound(3)))
	assert.NotErrorIs(t, &MissingMaterialError{MaterialID: 3}, ErrMaterialNotFound)
	assert.Equal(t, "unavailable", ReasonCode(errors.Join(errors.New("dial"), ErrUnavailable)))
	assert.Equal(t, "internal", ReasonCode(errors.New("boom")))
	assert.Equal(t, "", ReasonCode(nil))
}
