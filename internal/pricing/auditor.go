package pricing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/Spok95/decant-pricing/internal/domain/catalog"
	"github.com/Spok95/decant-pricing/internal/domain/prices"
	"github.com/Spok95/decant-pricing/internal/infra/metrics"
)

type Action string

const (
	ActionRecalculate     Action = "recalculate"
	ActionMissingPrice    Action = "missing_price"
	ActionMissingMargin   Action = "missing_margin"
	ActionMissingRecipe   Action = "missing_recipe"
	ActionMissingMaterial Action = "missing_material"
	// ActionManualOverride is reported instead of recalculate for pinned prices
	// when pinned overrides are honoured.
	ActionManualOverride Action = "manual_override"
)

var allActions = []Action{
	ActionRecalculate,
	ActionMissingPrice,
	ActionMissingMargin,
	ActionMissingRecipe,
	ActionMissingMaterial,
	ActionManualOverride,
}

// Fixable reports whether auto-fix may correct the discrepancy without human input.
func (a Action) Fixable() bool {
	return a == ActionRecalculate || a == ActionMissingPrice
}

type Discrepancy struct {
	ProductID     int64               `json:"product_id"`
	ProductName   string              `json:"product_name"`
	SizeMl        int                 `json:"size_ml"`
	Stored        decimal.NullDecimal `json:"stored"`
	Expected      decimal.NullDecimal `json:"expected"`
	Action        Action              `json:"action"`
	Source        prices.Source       `json:"source,omitempty"`
	Pinned        bool                `json:"pinned,omitempty"`
	MarginVersion int64               `json:"margin_version"`
	Detail        string              `json:"detail,omitempty"`
}

// Diff is stored minus expected, zero when either side is missing.
func (d Discrepancy) Diff() decimal.Decimal {
	if !d.Stored.Valid || !d.Expected.Valid {
		return decimal.Zero
	}
	return d.Stored.Decimal.Sub(d.Expected.Decimal)
}

type Report struct {
	RunID         string        `json:"run_id"`
	StartedAt     time.Time     `json:"started_at"`
	FinishedAt    time.Time     `json:"finished_at"`
	Products      int           `json:"products"`
	SizesChecked  int           `json:"sizes_checked"`
	Discrepancies []Discrepancy `json:"discrepancies"`
}

func (r *Report) Count(a Action) int {
	n := 0
	for _, d := range r.Discrepancies {
		if d.Action == a {
			n++
		}
	}
	return n
}

type FixOutcome string

const (
	FixFixed   FixOutcome = "fixed"
	FixSkipped FixOutcome = "skipped"
	FixFailed  FixOutcome = "failed"
)

type FixResult struct {
	Discrepancy Discrepancy         `json:"discrepancy"`
	Outcome     FixOutcome          `json:"outcome"`
	Reason      string              `json:"reason,omitempty"`
	NewPrice    decimal.NullDecimal `json:"new_price"`
}

type FixReport struct {
	RunID   string        `json:"run_id"`
	Check   *Report       `json:"check"`
	Fixed   int           `json:"fixed"`
	Skipped int           `json:"skipped"`
	Failed  int           `json:"failed"`
	Results []FixResult   `json:"results"`
	Elapsed time.Duration `json:"elapsed"`
}

// Auditor detects drift between persisted prices and the cost formula, and
// repairs it with a compare-and-swap write. It never invents margins or recipes.
type Auditor struct {
	store     Store
	sizes     *Resolver
	setter    *Setter
	tolerance decimal.Decimal
	honorPins bool
	workers   int
	log       *slog.Logger
}

func NewAuditor(store Store, sizes *Resolver, setter *Setter, tolerance decimal.Decimal, honorPins bool, workers int, log *slog.Logger) *Auditor {
	if workers <= 0 {
		workers = 4
	}
	return &Auditor{
		store:     store,
		sizes:     sizes,
		setter:    setter,
		tolerance: tolerance,
		honorPins: honorPins,
		workers:   workers,
		log:       log,
	}
}

func (a *Auditor) Check(ctx context.Context) (*Report, error) {
	rep, err := a.check(ctx)
	a.observe("check", rep, err)
	return rep, err
}

func (a *Auditor) check(ctx context.Context) (*Report, error) {
	start := time.Now()
	rep := &Report{RunID: uuid.NewString(), StartedAt: start, Discrepancies: []Discrepancy{}}

	products, err := a.store.Products(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	rep.Products = len(products)

	type result struct {
		found   []Discrepancy
		checked int
	}
	results := make([]result, len(products))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.workers)
	for i, p := range products {
		g.Go(func() error {
			found, checked, err := a.checkProduct(gctx, p)
			if err != nil {
				return fmt.Errorf("check product %d: %w", p.ID, err)
			}
			results[i] = result{found: found, checked: checked}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, r := range results {
		rep.SizesChecked += r.checked
		rep.Discrepancies = append(rep.Discrepancies, r.found...)
	}
	sort.SliceStable(rep.Discrepancies, func(i, j int) bool {
		di, dj := rep.Discrepancies[i], rep.Discrepancies[j]
		if di.ProductID != dj.ProductID {
			return di.ProductID < dj.ProductID
		}
		return di.SizeMl < dj.SizeMl
	})
	rep.FinishedAt = time.Now()
	return rep, nil
}

func (a *Auditor) checkProduct(ctx context.Context, p catalog.Product) ([]Discrepancy, int, error) {
	sz, err := a.sizes.available(ctx, a.store, p)
	if err != nil {
		return nil, 0, err
	}
	m, err := a.store.Margin(ctx, p.ID)
	if err != nil {
		return nil, 0, err
	}
	basis, err := snapshot(ctx, a.store, p.ID, nowFunc())
	if err != nil {
		return nil, 0, err
	}
	stored, err := a.store.Prices(ctx, p.ID)
	if err != nil {
		return nil, 0, err
	}

	var out []Discrepancy
	for _, size := range sz.Sizes {
		d := Discrepancy{ProductID: p.ID, ProductName: p.Name, SizeMl: size}
		old, had := stored[size]
		if had {
			d.Stored = decimal.NullDecimal{Decimal: old.Price, Valid: true}
			d.Source = old.Source
			d.Pinned = old.Pinned
		}
		if m != nil {
			d.MarginVersion = m.Version
		}

		bd, cerr := basis.Cost(size)
		var mr *MissingRecipeError
		switch {
		case errors.As(cerr, &mr):
			d.Action = ActionMissingRecipe
			d.Detail = cerr.Error()
			out = append(out, d)
			continue
		case m == nil:
			d.Action = ActionMissingMargin
			out = append(out, d)
			continue
		case cerr != nil:
			d.Action = ActionMissingMaterial
			d.Detail = cerr.Error()
			out = append(out, d)
			continue
		}

		expected := ExpectedPrice(bd.Total, m.Multiplier)
		d.Expected = decimal.NullDecimal{Decimal: expected, Valid: true}
		switch {
		case !had:
			d.Action = ActionMissingPrice
		case withinTolerance(old.Price, expected, a.tolerance):
			continue
		case old.Pinned && a.honorPins:
			d.Action = ActionManualOverride
		default:
			d.Action = ActionRecalculate
		}
		out = append(out, d)
	}
	return out, len(sz.Sizes), nil
}

// AutoFix runs a check and corrects every fixable discrepancy. Each correction
// re-verifies, inside its own transaction, that the stored price is still the
// one the check observed; otherwise it is skipped as a concurrent change.
func (a *Auditor) AutoFix(ctx context.Context) (*FixReport, error) {
	start := time.Now()
	rep, err := a.check(ctx)
	a.observe("check", rep, err)
	if err != nil {
		return nil, err
	}

	fr := &FixReport{RunID: rep.RunID, Check: rep, Results: []FixResult{}}
	changed := map[int64]struct{}{}
	for _, d := range rep.Discrepancies {
		if !d.Action.Fixable() {
			continue
		}
		res, err := a.fixOne(ctx, d)
		if err != nil {
			if errors.Is(err, ErrUnavailable) {
				// the store is gone, further attempts would fail the same way
				fr.Elapsed = time.Since(start)
				a.observeFix(fr, err)
				return fr, err
			}
			res = FixResult{Discrepancy: d, Outcome: FixFailed, Reason: err.Error()}
		}
		switch res.Outcome {
		case FixFixed:
			fr.Fixed++
			changed[d.ProductID] = struct{}{}
		case FixSkipped:
			fr.Skipped++
		case FixFailed:
			fr.Failed++
		}
		fr.Results = append(fr.Results, res)
	}

	for id := range changed {
		a.setter.notify(ctx, id)
	}
	fr.Elapsed = time.Since(start)
	a.observeFix(fr, nil)
	a.log.Info("auto-fix finished",
		"run_id", fr.RunID,
		"fixed", fr.Fixed,
		"skipped", fr.Skipped,
		"failed", fr.Failed,
		"elapsed", fr.Elapsed.String(),
	)
	return fr, nil
}

func (a *Auditor) fixOne(ctx context.Context, d Discrepancy) (FixResult, error) {
	res := FixResult{Discrepancy: d}
	err := a.store.InTx(ctx, func(tx Store) error {
		m, err := tx.Margin(ctx, d.ProductID)
		if err != nil {
			return err
		}
		if m == nil || m.Version != d.MarginVersion {
			res.Outcome, res.Reason = FixSkipped, "margin changed concurrently"
			return nil
		}
		stored, err := tx.Prices(ctx, d.ProductID)
		if err != nil {
			return err
		}
		cur, had := stored[d.SizeMl]
		if had != d.Stored.Valid || (had && !cur.Price.Equal(d.Stored.Decimal)) {
			res.Outcome, res.Reason = FixSkipped, "price changed concurrently"
			return nil
		}
		basis, err := snapshot(ctx, tx, d.ProductID, nowFunc())
		if err != nil {
			return err
		}
		bd, err := basis.Cost(d.SizeMl)
		if err != nil {
			res.Outcome, res.Reason = FixFailed, err.Error()
			return nil
		}
		expected := ExpectedPrice(bd.Total, m.Multiplier)
		if had && withinTolerance(cur.Price, expected, a.tolerance) {
			res.Outcome, res.Reason = FixSkipped, "already consistent"
			return nil
		}
		if err := writePrice(ctx, tx, prices.Price{
			ProductID: d.ProductID,
			SizeMl:    d.SizeMl,
			Price:     expected,
			Source:    prices.SourceAutoFix,
		}, d.Stored, prices.ReasonAutoFix, m.Version); err != nil {
			return err
		}
		res.Outcome = FixFixed
		res.NewPrice = decimal.NullDecimal{Decimal: expected, Valid: true}
		return nil
	})
	if err != nil {
		return FixResult{}, err
	}
	return res, nil
}

func (a *Auditor) observe(mode string, rep *Report, err error) {
	if err != nil {
		metrics.AuditRuns.WithLabelValues(mode, "error").Inc()
		a.log.Error("integrity check failed", "err", err)
		return
	}
	metrics.AuditRuns.WithLabelValues(mode, "ok").Inc()
	metrics.AuditDuration.WithLabelValues(mode).Observe(rep.FinishedAt.Sub(rep.StartedAt).Seconds())
	for _, act := range allActions {
		metrics.Discrepancies.WithLabelValues(string(act)).Set(float64(rep.Count(act)))
	}
	a.log.Info("integrity check finished",
		"run_id", rep.RunID,
		"products", rep.Products,
		"sizes", rep.SizesChecked,
		"discrepancies", len(rep.Discrepancies),
	)
}

func (a *Auditor) observeFix(fr *FixReport, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	metrics.AuditRuns.WithLabelValues("fix", result).Inc()
	metrics.AuditDuration.WithLabelValues("fix").Observe(fr.Elapsed.Seconds())
	metrics.AutoFixResults.WithLabelValues(string(FixFixed)).Add(float64(fr.Fixed))
	metrics.AutoFixResults.WithLabelValues(string(FixSkipped)).Add(float64(fr.Skipped))
	metrics.AutoFixResults.WithLabelValues(string(FixFailed)).Add(float64(fr.Failed))
	if fr.Fixed > 0 {
		metrics.PriceWrites.WithLabelValues(string(prices.ReasonAutoFix)).Add(float64(fr.Fixed))
	}
}

// Serial wraps an auditor so overlapping in-process runs are skipped rather than queued.
type Serial struct {
	mu sync.Mutex
	a  *Auditor
}

var ErrAuditRunning = errors.New("pricing: integrity run already in progress")

func NewSerial(a *Auditor) *Serial { return &Serial{a: a} }

func (s *Serial) Check(ctx context.Context) (*Report, error) {
	if !s.mu.TryLock() {
		return nil, ErrAuditRunning
	}
	defer s.mu.Unlock()
	return s.a.Check(ctx)
}

func (s *Serial) AutoFix(ctx context.Context) (*FixReport, error) {
	if !s.mu.TryLock() {
		return nil, ErrAuditRunning
	}
	defer s.mu.Unlock()
	return s.a.AutoFix(ctx)
}
