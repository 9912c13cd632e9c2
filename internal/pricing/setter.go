package pricing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/shopspring/decimal"

	"github.com/Spok95/decant-pricing/internal/domain/catalog"
	"github.com/Spok95/decant-pricing/internal/domain/prices"
	"github.com/Spok95/decant-pricing/internal/infra/metrics"
)

type SizeOutcome struct {
	SizeMl   int                 `json:"size_ml"`
	Cost     decimal.Decimal     `json:"cost"`
	OldPrice decimal.NullDecimal `json:"old_price"`
	NewPrice decimal.Decimal     `json:"new_price"`
	Changed  bool                `json:"changed"`
	// Pinned is set when a pinned manual override was left untouched.
	Pinned bool `json:"pinned,omitempty"`
}

type SizeFailure struct {
	SizeMl  int    `json:"size_ml"`
	Reason  string `json:"reason"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

// MarginUpdate lists every size that was priced and every size that could not be.
// A non-empty Failed list is a partial success, not an error.
type MarginUpdate struct {
	ProductID  int64           `json:"product_id"`
	Percentage decimal.Decimal `json:"percentage"`
	Multiplier decimal.Decimal `json:"multiplier"`
	Version    int64           `json:"version"`
	Sizes      []SizeOutcome   `json:"sizes"`
	Failed     []SizeFailure   `json:"failed"`

	writes int
}

func (u *MarginUpdate) Partial() bool { return len(u.Failed) > 0 }

func (u *MarginUpdate) ChangedSizes() []int {
	var out []int
	for _, s := range u.Sizes {
		if s.Changed {
			out = append(out, s.SizeMl)
		}
	}
	return out
}

// ChangeListener is told after a commit that a product's persisted prices may have changed.
type ChangeListener interface {
	PricesChanged(ctx context.Context, productID int64)
}

// Setter is the only writer of persisted prices.
type Setter struct {
	store     Store
	sizes     *Resolver
	policy    Policy
	honorPins bool
	log       *slog.Logger
	listeners []ChangeListener
}

func NewSetter(store Store, sizes *Resolver, policy Policy, honorPins bool, log *slog.Logger) *Setter {
	return &Setter{store: store, sizes: sizes, policy: policy, honorPins: honorPins, log: log}
}

// Subscribe must be called during wiring, before the setter is used.
func (s *Setter) Subscribe(l ChangeListener) { s.listeners = append(s.listeners, l) }

func (s *Setter) Policy() Policy { return s.policy }

// SetMargin stores the margin and reprices every available size in one transaction.
func (s *Setter) SetMargin(ctx context.Context, productID int64, percentage decimal.Decimal) (*MarginUpdate, error) {
	if err := s.policy.Validate(percentage); err != nil {
		return nil, err
	}
	multiplier := PercentageToDecimal(percentage)

	var upd *MarginUpdate
	err := s.store.InTx(ctx, func(tx Store) error {
		p, err := loadProduct(ctx, tx, productID)
		if err != nil {
			return err
		}
		cur, err := tx.Margin(ctx, productID)
		if err != nil {
			return fmt.Errorf("load margin: %w", err)
		}
		var version int64
		if cur != nil {
			version = cur.Version
		}
		m, err := tx.SaveMargin(ctx, productID, multiplier, version)
		if err != nil {
			return mapConflict(err, productID)
		}
		upd, err = s.reprice(ctx, tx, *p, m, prices.ReasonMargin, false)
		return err
	})
	if err != nil {
		return nil, err
	}

	upd.Percentage = percentage
	s.committed(ctx, upd, prices.ReasonMargin)
	s.log.Info("margin updated",
		"product_id", productID,
		"margin", FormatPercentage(percentage),
		"version", upd.Version,
		"changed", upd.ChangedSizes(),
		"failed", len(upd.Failed),
	)
	return upd, nil
}

// Recalculate reprices a product with its current margin. With unchanged inputs it writes nothing.
func (s *Setter) Recalculate(ctx context.Context, productID int64) (*MarginUpdate, error) {
	return s.recalculate(ctx, productID, false)
}

// Repair is Recalculate for background drift repair: manual overrides are
// kept so the auditor can still report them.
func (s *Setter) Repair(ctx context.Context, productID int64) (*MarginUpdate, error) {
	return s.recalculate(ctx, productID, true)
}

func (s *Setter) recalculate(ctx context.Context, productID int64, keepManual bool) (*MarginUpdate, error) {
	var upd *MarginUpdate
	err := s.store.InTx(ctx, func(tx Store) error {
		p, err := loadProduct(ctx, tx, productID)
		if err != nil {
			return err
		}
		m, err := tx.Margin(ctx, productID)
		if err != nil {
			return fmt.Errorf("load margin: %w", err)
		}
		if m == nil {
			return fmt.Errorf("%w: product %d", ErrMissingMargin, productID)
		}
		upd, err = s.reprice(ctx, tx, *p, m, prices.ReasonRecalculate, keepManual)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.committed(ctx, upd, prices.ReasonRecalculate)
	return upd, nil
}

// RecalculateForMaterial reprices every product whose recipes use the material.
// Products without a margin are skipped: they have no formula price yet.
func (s *Setter) RecalculateForMaterial(ctx context.Context, materialID int64) ([]*MarginUpdate, error) {
	ids, err := s.store.ProductsUsingMaterial(ctx, materialID)
	if err != nil {
		return nil, fmt.Errorf("list products using material %d: %w", materialID, err)
	}
	var out []*MarginUpdate
	for _, id := range ids {
		upd, err := s.Recalculate(ctx, id)
		if errors.Is(err, ErrMissingMargin) || errors.Is(err, ErrProductNotFound) {
			s.log.Debug("skip reprice", "product_id", id, "material_id", materialID, "err", err)
			continue
		}
		if err != nil {
			return out, err
		}
		out = append(out, upd)
	}
	return out, nil
}

// SetPriceForSize stores an explicit price, bypassing the formula. The auditor
// reports it as divergent unless it happens to match.
func (s *Setter) SetPriceForSize(ctx context.Context, productID int64, sizeMl int, price decimal.Decimal, pin bool) (*SizeOutcome, error) {
	if price.IsNegative() {
		return nil, ErrInvalidPrice
	}
	price = RoundPrice(price)

	var out *SizeOutcome
	err := s.store.InTx(ctx, func(tx Store) error {
		p, err := loadProduct(ctx, tx, productID)
		if err != nil {
			return err
		}
		sz, err := s.sizes.available(ctx, tx, *p)
		if err != nil {
			return err
		}
		if !slices.Contains(sz.Sizes, sizeMl) {
			return fmt.Errorf("%w: product %d size %dml", ErrSizeNotAvailable, productID, sizeMl)
		}
		stored, err := tx.Prices(ctx, productID)
		if err != nil {
			return fmt.Errorf("load prices: %w", err)
		}
		m, err := tx.Margin(ctx, productID)
		if err != nil {
			return fmt.Errorf("load margin: %w", err)
		}
		var version int64
		if m != nil {
			version = m.Version
		}

		out = &SizeOutcome{SizeMl: sizeMl, NewPrice: price, Pinned: pin}
		old, had := stored[sizeMl]
		if had {
			out.OldPrice = decimal.NullDecimal{Decimal: old.Price, Valid: true}
		}
		out.Changed = !had || !old.Price.Equal(price)

		return writePrice(ctx, tx, prices.Price{
			ProductID: productID,
			SizeMl:    sizeMl,
			Price:     price,
			Source:    prices.SourceManual,
			Pinned:    pin,
		}, out.OldPrice, prices.ReasonManual, version)
	})
	if err != nil {
		return nil, err
	}

	metrics.PriceWrites.WithLabelValues(string(prices.ReasonManual)).Inc()
	s.notify(ctx, productID)
	s.log.Info("manual price override",
		"product_id", productID,
		"size_ml", sizeMl,
		"price", price.StringFixed(2),
		"pinned", pin,
	)
	return out, nil
}

// reprice computes every available size from one snapshot and writes the
// prices that differ. keepManual leaves every manual price as stored. Must run
// inside a transaction.
func (s *Setter) reprice(ctx context.Context, tx Store, p catalog.Product, m *prices.Margin, reason prices.Reason, keepManual bool) (*MarginUpdate, error) {
	sz, err := s.sizes.available(ctx, tx, p)
	if err != nil {
		return nil, err
	}
	basis, err := snapshot(ctx, tx, p.ID, nowFunc())
	if err != nil {
		return nil, err
	}
	stored, err := tx.Prices(ctx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("load prices: %w", err)
	}

	upd := &MarginUpdate{
		ProductID:  p.ID,
		Percentage: DecimalToPercentage(m.Multiplier),
		Multiplier: m.Multiplier,
		Version:    m.Version,
		Sizes:      []SizeOutcome{},
		Failed:     []SizeFailure{},
	}
	for _, size := range sz.Sizes {
		bd, err := basis.Cost(size)
		if err != nil {
			upd.Failed = append(upd.Failed, SizeFailure{SizeMl: size, Reason: ReasonCode(err), Message: err.Error(), Err: err})
			continue
		}

		out := SizeOutcome{SizeMl: size, Cost: bd.Total, NewPrice: ExpectedPrice(bd.Total, m.Multiplier)}
		old, had := stored[size]
		if had {
			out.OldPrice = decimal.NullDecimal{Decimal: old.Price, Valid: true}
			if old.Pinned && s.honorPins {
				out.Pinned = true
				out.NewPrice = old.Price
				upd.Sizes = append(upd.Sizes, out)
				continue
			}
			if keepManual && old.Source == prices.SourceManual {
				out.NewPrice = old.Price
				upd.Sizes = append(upd.Sizes, out)
				continue
			}
			if old.Price.Equal(out.NewPrice) && old.Source != prices.SourceManual {
				upd.Sizes = append(upd.Sizes, out)
				continue
			}
		}
		out.Changed = !had || !old.Price.Equal(out.NewPrice)

		if err := writePrice(ctx, tx, prices.Price{
			ProductID: p.ID,
			SizeMl:    size,
			Price:     out.NewPrice,
			Source:    prices.SourceFormula,
		}, out.OldPrice, reason, m.Version); err != nil {
			return nil, err
		}
		upd.writes++
		upd.Sizes = append(upd.Sizes, out)
	}
	return upd, nil
}

func (s *Setter) committed(ctx context.Context, upd *MarginUpdate, reason prices.Reason) {
	if upd.writes > 0 {
		metrics.PriceWrites.WithLabelValues(string(reason)).Add(float64(upd.writes))
	}
	for _, f := range upd.Failed {
		s.log.Warn("size not priced",
			"product_id", upd.ProductID,
			"size_ml", f.SizeMl,
			"reason", f.Reason,
		)
	}
	s.notify(ctx, upd.ProductID)
}

func (s *Setter) notify(ctx context.Context, productID int64) {
	for _, l := range s.listeners {
		l.PricesChanged(ctx, productID)
	}
}

func writePrice(ctx context.Context, tx Store, p prices.Price, old decimal.NullDecimal, reason prices.Reason, marginVersion int64) error {
	if err := tx.SavePrice(ctx, p); err != nil {
		return fmt.Errorf("save price %d/%dml: %w", p.ProductID, p.SizeMl, err)
	}
	if err := tx.AppendChange(ctx, prices.Change{
		ProductID:     p.ProductID,
		SizeMl:        p.SizeMl,
		OldPrice:      old,
		NewPrice:      p.Price,
		Reason:        reason,
		MarginVersion: marginVersion,
	}); err != nil {
		return fmt.Errorf("append price history: %w", err)
	}
	return nil
}

func loadProduct(ctx context.Context, r Reader, id int64) (*catalog.Product, error) {
	p, err := r.Product(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load product %d: %w", id, err)
	}
	if p == nil {
		return nil, fmt.Errorf("%w: %d", ErrProductNotFound, id)
	}
	return p, nil
}

func mapConflict(err error, productID int64) error {
	if errors.Is(err, prices.ErrVersionConflict) {
		return fmt.Errorf("%w: margin of product %d", ErrConcurrentUpdate, productID)
	}
	return fmt.Errorf("save margin: %w", err)
}
