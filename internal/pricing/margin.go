package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// PercentageToDecimal converts the user-facing margin (150) to the stored multiplier (1.5).
func PercentageToDecimal(p decimal.Decimal) decimal.Decimal { return p.Div(hundred) }

// DecimalToPercentage converts a stored multiplier back to a percentage.
func DecimalToPercentage(d decimal.Decimal) decimal.Decimal { return d.Mul(hundred) }

// FormatPercentage is for display only; never persist its output.
func FormatPercentage(p decimal.Decimal) string {
	return p.Round(2).String() + "%"
}

// Policy is the single source of truth for the accepted margin band, in percent.
type Policy struct {
	Min decimal.Decimal
	Max decimal.Decimal
}

func NewPolicy(minPercent, maxPercent float64) (Policy, error) {
	p := Policy{Min: decimal.NewFromFloat(minPercent), Max: decimal.NewFromFloat(maxPercent)}
	if !p.Min.IsPositive() {
		return Policy{}, fmt.Errorf("margin min percent must be > 0, got %s", p.Min)
	}
	if !p.Min.LessThan(p.Max) {
		return Policy{}, fmt.Errorf("margin min percent %s must be below max %s", p.Min, p.Max)
	}
	return p, nil
}

// PercentagePlaces is the precision the stored multiplier (NUMERIC(8,4)) can hold.
const PercentagePlaces = 2

// IsValid reports whether the percentage is inside the band and representable
// without rounding by the stored multiplier.
func (p Policy) IsValid(percentage decimal.Decimal) bool {
	return p.Validate(percentage) == nil
}

func (p Policy) Validate(percentage decimal.Decimal) error {
	if !percentage.Equal(percentage.Round(PercentagePlaces)) {
		return &InvalidMarginError{Percentage: percentage, Min: p.Min, Max: p.Max, TooPrecise: true}
	}
	if percentage.LessThan(p.Min) || percentage.GreaterThan(p.Max) {
		return &InvalidMarginError{Percentage: percentage, Min: p.Min, Max: p.Max}
	}
	return nil
}

// RoundPrice is the single rounding rule for sellable prices: 2 places, half away from zero.
func RoundPrice(d decimal.Decimal) decimal.Decimal { return d.Round(2) }

// ExpectedPrice is the pricing invariant: round(cost x multiplier, 2).
func ExpectedPrice(cost, multiplier decimal.Decimal) decimal.Decimal {
	return RoundPrice(cost.Mul(multiplier))
}

// withinTolerance reports |a-b| <= tol.
func withinTolerance(a, b, tol decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(tol)
}
