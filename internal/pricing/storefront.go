package pricing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/Spok95/decant-pricing/internal/domain/prices"
	"github.com/Spok95/decant-pricing/internal/infra/metrics"
)

// PriceCache is a read-through cache of storefront responses. Failures are
// never fatal: a broken cache only means more store reads.
type PriceCache interface {
	Get(ctx context.Context, productID int64) (*ProductPrices, bool)
	Set(ctx context.Context, p *ProductPrices)
	Invalidate(ctx context.Context, productID int64)
}

type SizePrice struct {
	SizeMl int             `json:"size_ml"`
	Price  decimal.Decimal `json:"price"`
	Source prices.Source   `json:"source"`
	Pinned bool            `json:"pinned,omitempty"`
}

type ProductPrices struct {
	ProductID  int64               `json:"product_id"`
	Name       string              `json:"name"`
	SizeSource SizeSource          `json:"size_source"`
	Sizes      []SizePrice         `json:"sizes"`
	Unpriced   []int               `json:"unpriced"`
	Excluded   []int               `json:"excluded"`
	Warnings   []PriceDriftWarning `json:"warnings"`
}

type Storefront struct {
	store     Reader
	sizes     *Resolver
	tolerance decimal.Decimal
	honorPins bool
	repair    *Repairer
	cache     PriceCache
	log       *slog.Logger
}

// NewStorefront accepts nil repair and cache.
func NewStorefront(store Reader, sizes *Resolver, tolerance decimal.Decimal, honorPins bool, repair *Repairer, cache PriceCache, log *slog.Logger) *Storefront {
	return &Storefront{
		store:     store,
		sizes:     sizes,
		tolerance: tolerance,
		honorPins: honorPins,
		repair:    repair,
		cache:     cache,
		log:       log,
	}
}

// Prices serves the stored prices of sellable sizes. Drift from the formula is
// reported as a warning and queued for repair; the stored price is still served.
func (s *Storefront) Prices(ctx context.Context, productID int64) (*ProductPrices, error) {
	if s.cache != nil {
		if cached, ok := s.cache.Get(ctx, productID); ok {
			metrics.CacheLookups.WithLabelValues("hit").Inc()
			return cached, nil
		}
		metrics.CacheLookups.WithLabelValues("miss").Inc()
	}

	p, err := loadProduct(ctx, s.store, productID)
	if err != nil {
		return nil, err
	}
	sz, err := s.sizes.Available(ctx, *p)
	if err != nil {
		return nil, err
	}
	basis, err := snapshot(ctx, s.store, productID, nowFunc())
	if err != nil {
		return nil, err
	}
	stored, err := s.store.Prices(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("load prices: %w", err)
	}
	m, err := s.store.Margin(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("load margin: %w", err)
	}

	sell := partition(productID, sz, basis)
	out := &ProductPrices{
		ProductID:  p.ID,
		Name:       p.Name,
		SizeSource: sz.Source,
		Sizes:      []SizePrice{},
		Unpriced:   []int{},
		Excluded:   sell.Excluded,
		Warnings:   []PriceDriftWarning{},
	}

	needsRepair := false
	for _, size := range sell.Sizes {
		sp, ok := stored[size]
		if !ok {
			out.Unpriced = append(out.Unpriced, size)
			continue
		}
		out.Sizes = append(out.Sizes, SizePrice{SizeMl: size, Price: sp.Price, Source: sp.Source, Pinned: sp.Pinned})

		if m == nil {
			continue
		}
		bd, err := basis.Cost(size)
		if err != nil {
			// a broken recipe cannot be repaired by recalculation; the auditor reports it
			continue
		}
		expected := ExpectedPrice(bd.Total, m.Multiplier)
		if withinTolerance(sp.Price, expected, s.tolerance) {
			continue
		}
		w := PriceDriftWarning{ProductID: productID, SizeMl: size, Stored: sp.Price, Expected: expected}
		out.Warnings = append(out.Warnings, w)
		metrics.DriftWarnings.Inc()
		s.log.Warn("price drift", "product_id", productID, "size_ml", size, "warning", w.String())
		// manual overrides are left for the auditor to report
		if sp.Source != prices.SourceManual {
			needsRepair = true
		}
	}

	if needsRepair && s.repair != nil {
		if err := s.repair.Submit(productID); err != nil && !errors.Is(err, ErrRepairQueueFull) {
			s.log.Warn("repair not queued", "product_id", productID, "err", err)
		}
	}
	if s.cache != nil && len(out.Warnings) == 0 {
		s.cache.Set(ctx, out)
	}
	return out, nil
}

// PricesChanged drops the cached response so the next read sees the new prices.
func (s *Storefront) PricesChanged(ctx context.Context, productID int64) {
	if s.cache != nil {
		s.cache.Invalidate(ctx, productID)
	}
}
