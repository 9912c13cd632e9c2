package pricing

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/Spok95/decant-pricing/internal/domain/catalog"
	"github.com/Spok95/decant-pricing/internal/domain/materials"
	"github.com/Spok95/decant-pricing/internal/domain/packaging"
	"github.com/Spok95/decant-pricing/internal/domain/prices"
	"github.com/Spok95/decant-pricing/internal/domain/recipes"
)

// Reader is the read side the engine needs from persistence. Missing single
// records are returned as nil without error.
type Reader interface {
	Product(ctx context.Context, id int64) (*catalog.Product, error)
	Products(ctx context.Context, onlyActive bool) ([]catalog.Product, error)
	BottleConfig(ctx context.Context) ([]catalog.BottleSize, bool, error)

	RecipeEntries(ctx context.Context, productID int64) ([]recipes.Entry, error)
	ProductsUsingMaterial(ctx context.Context, materialID int64) ([]int64, error)
	Materials(ctx context.Context, ids []int64) (map[int64]materials.Material, error)
	PackagingRules(ctx context.Context) ([]packaging.Rule, error)

	Margin(ctx context.Context, productID int64) (*prices.Margin, error)
	Prices(ctx context.Context, productID int64) (map[int]prices.Price, error)
}

type Writer interface {
	// SaveMargin fails with prices.ErrVersionConflict when the stored version moved.
	SaveMargin(ctx context.Context, productID int64, multiplier decimal.Decimal, expectedVersion int64) (*prices.Margin, error)
	SavePrice(ctx context.Context, p prices.Price) error
	AppendChange(ctx context.Context, c prices.Change) error
}

// Store runs fn atomically in InTx; reads made through the tx store lock what they read.
type Store interface {
	Reader
	Writer
	InTx(ctx context.Context, fn func(tx Store) error) error
}

// LedgerStore covers Material Ledger mutations.
type LedgerStore interface {
	ReceiveLot(ctx context.Context, lot materials.Lot, method materials.CostMethod) (*materials.Material, error)
	UpdateMaterialCost(ctx context.Context, id int64, cost decimal.Decimal) (*materials.Material, error)
	// ConsumeMaterial returns nil when the material does not exist.
	ConsumeMaterial(ctx context.Context, id int64, qty decimal.Decimal) (*materials.Material, error)
	MaterialLots(ctx context.Context, materialID int64) ([]materials.Lot, error)
	ListMaterials(ctx context.Context, onlyActive bool) ([]materials.Material, error)
	LowStock(ctx context.Context) ([]materials.Material, error)
	Materials(ctx context.Context, ids []int64) (map[int64]materials.Material, error)
}

// HistoryReader is implemented by stores that keep the price-change history queryable.
type HistoryReader interface {
	History(ctx context.Context, productID int64, limit int) ([]prices.Change, error)
}
