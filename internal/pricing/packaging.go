package pricing

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/Spok95/decant-pricing/internal/domain/packaging"
)

var (
	ErrEmptyOrder   = errors.New("pricing: order has no items")
	ErrInvalidOrder = errors.New("pricing: invalid order item")
)

type OrderItem struct {
	SizeMl   int `json:"size_ml"`
	Quantity int `json:"quantity"`
}

type PackagingQuote struct {
	RuleID       int64           `json:"rule_id"`
	MaterialID   int64           `json:"material_id"`
	MaterialName string          `json:"material_name"`
	ItemCount    int             `json:"item_count"`
	SizeMl       int             `json:"size_ml,omitempty"`
	Cost         decimal.Decimal `json:"cost"`
}

// Packager picks the shipping container for a whole order. Its cost is an
// order-level charge and never feeds unit prices.
type Packager struct {
	store Reader
}

func NewPackager(store Reader) *Packager { return &Packager{store: store} }

func (p *Packager) Quote(ctx context.Context, items []OrderItem) (*PackagingQuote, error) {
	count, size, err := summarize(items)
	if err != nil {
		return nil, err
	}

	rules, err := p.store.PackagingRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("load packaging rules: %w", err)
	}
	rule, err := packaging.Select(rules, count, size)
	if err != nil {
		return nil, err
	}

	mats, err := p.store.Materials(ctx, []int64{rule.MaterialID})
	if err != nil {
		return nil, fmt.Errorf("load packaging material: %w", err)
	}
	m, ok := mats[rule.MaterialID]
	if !ok || !m.Active {
		return nil, &MissingMaterialError{MaterialID: rule.MaterialID}
	}

	return &PackagingQuote{
		RuleID:       rule.ID,
		MaterialID:   m.ID,
		MaterialName: m.Name,
		ItemCount:    count,
		SizeMl:       size,
		Cost:         m.CostPerUnit,
	}, nil
}

// summarize returns the total item count and the shared size, or 0 for mixed sizes.
func summarize(items []OrderItem) (int, int, error) {
	count, size := 0, 0
	for i, it := range items {
		if it.Quantity <= 0 || it.SizeMl <= 0 {
			return 0, 0, fmt.Errorf("%w %d: size and quantity must be > 0", ErrInvalidOrder, i)
		}
		count += it.Quantity
		switch {
		case i == 0:
			size = it.SizeMl
		case size != it.SizeMl:
			size = 0
		}
	}
	if count == 0 {
		return 0, 0, ErrEmptyOrder
	}
	return count, size, nil
}
