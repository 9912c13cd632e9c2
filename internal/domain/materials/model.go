package materials

import (
	"time"

	"github.com/shopspring/decimal"
)

type Unit string

const (
	UnitPcs Unit = "pcs"
	UnitMl  Unit = "ml"
	UnitG   Unit = "g"
)

// Category separates consumed inputs (liquid, labels) from packaging assets (bottles, boxes).
type Category string

const (
	CategoryInput     Category = "input"
	CategoryPackaging Category = "packaging"
)

type Kind string

const (
	KindLiquid Kind = "liquid"
	KindBottle Kind = "bottle"
	KindLabel  Kind = "label"
	KindBox    Kind = "box"
	KindOther  Kind = "other"
)

// CostMethod decides how a new lot changes the material's cost per unit.
type CostMethod string

const (
	CostAverage CostMethod = "average"
	CostLatest  CostMethod = "latest"
)

type Material struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Category    Category        `json:"category"`
	Kind        Kind            `json:"kind"`
	Unit        Unit            `json:"unit"`
	CostPerUnit decimal.Decimal `json:"cost_per_unit"` // per ml or per piece
	Stock       decimal.Decimal `json:"stock"`
	MinStock    decimal.Decimal `json:"min_stock"`
	SizeMl      int             `json:"size_ml,omitempty"` // bottles only, 0 when unset
	Active      bool            `json:"active"`
	CreatedAt   time.Time       `json:"created_at"`
}

// LowStock reports whether stock dropped below the alert threshold.
func (m Material) LowStock() bool {
	return m.MinStock.IsPositive() && m.Stock.LessThan(m.MinStock)
}

// Lot is an immutable purchase batch.
type Lot struct {
	ID          int64           `json:"id"`
	MaterialID  int64           `json:"material_id"`
	Quantity    decimal.Decimal `json:"quantity"`
	CostPerUnit decimal.Decimal `json:"cost_per_unit"`
	TotalCost   decimal.Decimal `json:"total_cost"`
	Supplier    string          `json:"supplier,omitempty"`
	PurchasedAt time.Time       `json:"purchased_at"`
	ExpiresAt   *time.Time      `json:"expires_at,omitempty"`
}

// NextCost returns the material cost per unit after receiving a lot.
// Weighted average: ((stock * cost) + (qty * lotCost)) / (stock + qty).
func NextCost(method CostMethod, stock, cost, qty, lotCost decimal.Decimal) decimal.Decimal {
	if method == CostLatest {
		return lotCost
	}
	if stock.IsNegative() {
		stock = decimal.Zero
	}
	sum := stock.Add(qty)
	if sum.LessThanOrEqual(decimal.Zero) {
		return lotCost
	}
	num := stock.Mul(cost).Add(qty.Mul(lotCost))
	return num.DivRound(sum, 6)
}
