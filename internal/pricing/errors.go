package pricing

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// ErrUnavailable wraps every failure to reach the backing store (timeouts, refused connections).
	ErrUnavailable      = errors.New("pricing: persistence unavailable")
	ErrConcurrentUpdate = errors.New("pricing: concurrent update, retry")
	ErrProductNotFound  = errors.New("pricing: product not found")
	ErrMaterialNotFound = errors.New("pricing: material not found")
	ErrMissingMargin    = errors.New("pricing: product has no margin setting")
	ErrSizeNotAvailable = errors.New("pricing: size not available for product")
	ErrInvalidPrice     = errors.New("pricing: price must be >= 0")
)

// MissingRecipeError means a (product, size) has no cost basis. It is never a zero cost.
type MissingRecipeError struct {
	ProductID int64
	SizeMl    int
}

func (e *MissingRecipeError) Error() string {
	return fmt.Sprintf("pricing: no recipe for product %d size %dml", e.ProductID, e.SizeMl)
}

// MissingMaterialError means a recipe (or packaging rule) references a material
// that is no longer in the ledger.
type MissingMaterialError struct {
	ProductID  int64
	SizeMl     int
	MaterialID int64
	// lookup is set when the material itself was requested, not reached through a recipe or rule.
	lookup bool
}

// MaterialNotFound is returned when a ledger operation names a material that does not exist.
func MaterialNotFound(id int64) error {
	return &MissingMaterialError{MaterialID: id, lookup: true}
}

func (e *MissingMaterialError) Unwrap() error {
	if e.lookup {
		return ErrMaterialNotFound
	}
	return nil
}

func (e *MissingMaterialError) Error() string {
	if e.ProductID == 0 {
		return fmt.Sprintf("pricing: material %d not found", e.MaterialID)
	}
	return fmt.Sprintf("pricing: product %d size %dml references missing material %d", e.ProductID, e.SizeMl, e.MaterialID)
}

type InvalidMarginError struct {
	Percentage decimal.Decimal
	Min, Max   decimal.Decimal
	// TooPrecise is set when the percentage has more decimal places than a margin can store.
	TooPrecise bool
}

func (e *InvalidMarginError) Error() string {
	if e.TooPrecise {
		return fmt.Sprintf("pricing: margin %s%% has more than %d decimal places", e.Percentage, PercentagePlaces)
	}
	return fmt.Sprintf("pricing: margin %s%% outside allowed band %s%%..%s%%", e.Percentage, e.Min, e.Max)
}

// PriceDriftWarning is a finding, not a failure: the stored price is still served.
type PriceDriftWarning struct {
	ProductID int64           `json:"product_id"`
	SizeMl    int             `json:"size_ml"`
	Stored    decimal.Decimal `json:"stored"`
	Expected  decimal.Decimal `json:"expected"`
}

func (w PriceDriftWarning) String() string {
	return fmt.Sprintf("product %d size %dml: stored %s, expected %s", w.ProductID, w.SizeMl, w.Stored.StringFixed(2), w.Expected.StringFixed(2))
}

// ReasonCode maps an error to a short machine-readable code.
func ReasonCode(err error) string {
	var (
		mr *MissingRecipeError
		mm *MissingMaterialError
		im *InvalidMarginError
	)
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMaterialNotFound):
		return "material_not_found"
	case errors.As(err, &mr):
		return "missing_recipe"
	case errors.As(err, &mm):
		return "missing_material"
	case errors.As(err, &im):
		return "invalid_margin"
	case errors.Is(err, ErrMissingMargin):
		return "missing_margin"
	case errors.Is(err, ErrProductNotFound):
		return "product_not_found"
	case errors.Is(err, ErrSizeNotAvailable):
		return "size_not_available"
	case errors.Is(err, ErrConcurrentUpdate):
		return "concurrent_update"
	case errors.Is(err, ErrUnavailable):
		return "unavailable"
	default:
		return "internal"
	}
}
