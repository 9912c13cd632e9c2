package pricing

import (
	"errors"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/Spok95/decant-pricing/internal/domain/materials"
)

var DefaultSizes = []int{2, 5, 10}

type Options struct {
	Store  Store
	Ledger LedgerStore // nil disables material mutations

	Policy       Policy
	Tolerance    decimal.Decimal
	HonorPins    bool
	DefaultSizes []int
	CostMethod   materials.CostMethod

	AuditWorkers   int
	RepairCapacity int
	Cache          PriceCache

	Log *slog.Logger
}

// Engine wires the pricing components over one store.
type Engine struct {
	Calculator *Calculator
	Sizes      *Resolver
	Setter     *Setter
	Auditor    *Auditor
	Audit      *Serial
	Storefront *Storefront
	Packager   *Packager
	Ledger     *Ledger
	Repairer   *Repairer
}

func New(o Options) (*Engine, error) {
	if o.Store == nil {
		return nil, errors.New("pricing: store is required")
	}
	if o.Log == nil {
		o.Log = slog.Default()
	}
	if len(o.DefaultSizes) == 0 {
		o.DefaultSizes = DefaultSizes
	}
	if o.Tolerance.IsZero() {
		o.Tolerance = decimal.RequireFromString("0.01")
	}
	if o.Policy.Max.IsZero() {
		p, err := NewPolicy(50, 500)
		if err != nil {
			return nil, err
		}
		o.Policy = p
	}

	e := &Engine{}
	e.Calculator = NewCalculator(o.Store)
	e.Sizes = NewResolver(o.Store, o.DefaultSizes, o.Log.With("component", "sizes"))
	e.Setter = NewSetter(o.Store, e.Sizes, o.Policy, o.HonorPins, o.Log.With("component", "setter"))
	e.Auditor = NewAuditor(o.Store, e.Sizes, e.Setter, o.Tolerance, o.HonorPins, o.AuditWorkers, o.Log.With("component", "auditor"))
	e.Audit = NewSerial(e.Auditor)
	e.Repairer = NewRepairer(e.Setter, o.RepairCapacity, o.Log.With("component", "repair"))
	e.Storefront = NewStorefront(o.Store, e.Sizes, o.Tolerance, o.HonorPins, e.Repairer, o.Cache, o.Log.With("component", "storefront"))
	e.Packager = NewPackager(o.Store)
	if o.Ledger != nil {
		e.Ledger = NewLedger(o.Ledger, e.Setter, o.CostMethod, o.Log.With("component", "ledger"))
	}

	e.Setter.Subscribe(e.Storefront)
	return e, nil
}
