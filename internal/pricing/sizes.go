package pricing

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/Spok95/decant-pricing/internal/domain/catalog"
	"github.com/Spok95/decant-pricing/internal/infra/metrics"
)

type SizeSource string

const (
	SizesFromProduct SizeSource = "product"
	SizesFromConfig  SizeSource = "config"
	// SizesFromDefault means the bottle configuration is missing: a setup problem.
	SizesFromDefault SizeSource = "default"
)

type Sizes struct {
	Sizes  []int      `json:"sizes"`
	Source SizeSource `json:"source"`
}

// Sellable partitions available sizes by whether they can be costed.
type Sellable struct {
	ProductID int64      `json:"product_id"`
	Sizes     []int      `json:"sizes"`
	Excluded  []int      `json:"excluded"`
	Source    SizeSource `json:"source"`
}

type Resolver struct {
	store    Reader
	defaults []int
	log      *slog.Logger
}

func NewResolver(store Reader, defaults []int, log *slog.Logger) *Resolver {
	d := normalizeSizes(defaults)
	if len(d) == 0 {
		d = normalizeSizes(DefaultSizes)
	}
	return &Resolver{store: store, defaults: d, log: log}
}

// Available returns the product override list, else the sizes of configured
// bottle materials, else the default list.
func (r *Resolver) Available(ctx context.Context, p catalog.Product) (Sizes, error) {
	return r.available(ctx, r.store, p)
}

func (r *Resolver) available(ctx context.Context, rd Reader, p catalog.Product) (Sizes, error) {
	if s := normalizeSizes(p.Sizes); len(s) > 0 {
		return Sizes{Sizes: s, Source: SizesFromProduct}, nil
	}

	cfg, ok, err := rd.BottleConfig(ctx)
	if err != nil {
		return Sizes{}, fmt.Errorf("load bottle configuration: %w", err)
	}
	if ok {
		raw := make([]int, 0, len(cfg))
		for _, b := range cfg {
			raw = append(raw, b.SizeMl)
		}
		if s := normalizeSizes(raw); len(s) > 0 {
			return Sizes{Sizes: s, Source: SizesFromConfig}, nil
		}
	}

	metrics.SizesDefaultFallback.Inc()
	r.log.Warn("bottle configuration missing, using default sizes",
		"product_id", p.ID,
		"sizes", r.defaults,
	)
	return Sizes{Sizes: append([]int(nil), r.defaults...), Source: SizesFromDefault}, nil
}

// Sellable excludes sizes that have no recipe and so cannot be priced.
func (r *Resolver) Sellable(ctx context.Context, productID int64) (*Sellable, error) {
	p, err := r.store.Product(ctx, productID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrProductNotFound
	}
	sz, err := r.Available(ctx, *p)
	if err != nil {
		return nil, err
	}
	basis, err := snapshot(ctx, r.store, productID, nowFunc())
	if err != nil {
		return nil, err
	}
	return partition(productID, sz, basis), nil
}

func partition(productID int64, sz Sizes, basis *Basis) *Sellable {
	out := &Sellable{ProductID: productID, Source: sz.Source, Sizes: []int{}, Excluded: []int{}}
	for _, s := range sz.Sizes {
		if basis.HasRecipe(s) {
			out.Sizes = append(out.Sizes, s)
		} else {
			out.Excluded = append(out.Excluded, s)
		}
	}
	return out
}

// normalizeSizes drops non-positive values and duplicates and sorts ascending.
func normalizeSizes(in []int) []int {
	seen := make(map[int]struct{}, len(in))
	out := make([]int, 0, len(in))
	for _, s := range in {
		if s <= 0 {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Ints(out)
	return out
}
