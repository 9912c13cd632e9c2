// Package memory is an in-process implementation of the pricing store, used
// by the demo driver and by tests. Transactions run on a copy of the state
// which replaces the live state on commit.
package memory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Spok95/decant-pricing/internal/domain/catalog"
	"github.com/Spok95/decant-pricing/internal/domain/materials"
	"github.com/Spok95/decant-pricing/internal/domain/packaging"
	"github.com/Spok95/decant-pricing/internal/domain/prices"
	"github.com/Spok95/decant-pricing/internal/domain/recipes"
	"github.com/Spok95/decant-pricing/internal/pricing"
	"github.com/Spok95/decant-pricing/internal/seed"
)

type priceKey struct {
	product int64
	size    int
}

type recipeKey struct {
	product  int64
	size     int
	material int64
}

type state struct {
	seq       int64
	materials map[int64]materials.Material
	lots      []materials.Lot
	products  map[int64]catalog.Product
	bottles   []catalog.BottleSize
	bottleSet bool
	recipes   map[recipeKey]recipes.Entry
	rules     map[int64]packaging.Rule
	margins   map[int64]prices.Margin
	prices    map[priceKey]prices.Price
	history   []prices.Change
}

func newState() *state {
	return &state{
		materials: map[int64]materials.Material{},
		products:  map[int64]catalog.Product{},
		recipes:   map[recipeKey]recipes.Entry{},
		rules:     map[int64]packaging.Rule{},
		margins:   map[int64]prices.Margin{},
		prices:    map[priceKey]prices.Price{},
	}
}

func (s *state) clone() *state {
	c := &state{
		seq:       s.seq,
		materials: maps.Clone(s.materials),
		lots:      slices.Clone(s.lots),
		products:  make(map[int64]catalog.Product, len(s.products)),
		bottles:   slices.Clone(s.bottles),
		bottleSet: s.bottleSet,
		recipes:   maps.Clone(s.recipes),
		rules:     maps.Clone(s.rules),
		margins:   maps.Clone(s.margins),
		prices:    maps.Clone(s.prices),
		history:   slices.Clone(s.history),
	}
	for id, p := range s.products {
		p.Sizes = slices.Clone(p.Sizes)
		c.products[id] = p
	}
	return c
}

func (s *state) nextID() int64 {
	s.seq++
	return s.seq
}

type Store struct {
	mu   *sync.Mutex
	st   *state
	inTx bool

	// test hooks, guarded by mu
	fail *error
	onTx *func()
}

var _ pricing.Store = (*Store)(nil)
var _ pricing.LedgerStore = (*Store)(nil)
var _ seed.Store = (*Store)(nil)

func New() *Store {
	var fail error
	var onTx func()
	return &Store{mu: &sync.Mutex{}, st: newState(), fail: &fail, onTx: &onTx}
}

// Fail makes every subsequent call return err; nil restores normal operation.
func (s *Store) Fail(err error) {
	s.lock()
	defer s.unlock()
	*s.fail = err
}

// BeforeTx registers fn to run before each transaction starts, outside the store lock.
func (s *Store) BeforeTx(fn func()) {
	s.lock()
	defer s.unlock()
	*s.onTx = fn
}

func (s *Store) lock() {
	if !s.inTx {
		s.mu.Lock()
	}
}

func (s *Store) unlock() {
	if !s.inTx {
		s.mu.Unlock()
	}
}

// enter locks the store and reports the injected failure, if any.
func (s *Store) enter(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", pricing.ErrUnavailable, err)
	}
	s.lock()
	if *s.fail != nil {
		err := *s.fail
		s.unlock()
		return err
	}
	return nil
}

func (s *Store) InTx(ctx context.Context, fn func(tx pricing.Store) error) error {
	if s.inTx {
		return fn(s)
	}

	s.mu.Lock()
	hook := *s.onTx
	s.mu.Unlock()
	if hook != nil {
		hook()
	}

	if err := s.enter(ctx); err != nil {
		return err
	}
	defer s.unlock()

	tx := &Store{mu: s.mu, st: s.st.clone(), inTx: true, fail: s.fail, onTx: s.onTx}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", pricing.ErrUnavailable, err)
	}
	s.st = tx.st
	return nil
}

/* Reader */

func (s *Store) Product(ctx context.Context, id int64) (*catalog.Product, error) {
	if err := s.enter(ctx); err != nil {
		return nil, err
	}
	defer s.unlock()
	p, ok := s.st.products[id]
	if !ok {
		return nil, nil
	}
	p.Sizes = slices.Clone(p.Sizes)
	return &p, nil
}

func (s *Store) Products(ctx context.Context, onlyActive bool) ([]catalog.Product, error) {
	if err := s.enter(ctx); err != nil {
		return nil, err
	}
	defer s.unlock()
	var out []catalog.Product
	for _, p := range s.st.products {
		if onlyActive && !p.Active {
			continue
		}
		p.Sizes = slices.Clone(p.Sizes)
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) BottleConfig(ctx context.Context) ([]catalog.BottleSize, bool, error) {
	if err := s.enter(ctx); err != nil {
		return nil, false, err
	}
	defer s.unlock()
	return slices.Clone(s.st.bottles), s.st.bottleSet, nil
}

func (s *Store) RecipeEntries(ctx context.Context, productID int64) ([]recipes.Entry, error) {
	if err := s.enter(ctx); err != nil {
		return nil, err
	}
	defer s.unlock()
	var out []recipes.Entry
	for k, e := range s.st.recipes {
		if k.product == productID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SizeMl != out[j].SizeMl {
			return out[i].SizeMl < out[j].SizeMl
		}
		return out[i].MaterialID < out[j].MaterialID
	})
	return out, nil
}

func (s *Store) ProductsUsingMaterial(ctx context.Context, materialID int64) ([]int64, error) {
	if err := s.enter(ctx); err != nil {
		return nil, err
	}
	defer s.unlock()
	seen := map[int64]struct{}{}
	for k := range s.st.recipes {
		if k.material == materialID {
			seen[k.product] = struct{}{}
		}
	}
	out := slices.Collect(maps.Keys(seen))
	slices.Sort(out)
	return out, nil
}

func (s *Store) Materials(ctx context.Context, ids []int64) (map[int64]materials.Material, error) {
	if err := s.enter(ctx); err != nil {
		return nil, err
	}
	defer s.unlock()
	out := make(map[int64]materials.Material, len(ids))
	for _, id := range ids {
		if m, ok := s.st.materials[id]; ok {
			out[id] = m
		}
	}
	return out, nil
}

func (s *Store) PackagingRules(ctx context.Context) ([]packaging.Rule, error) {
	if err := s.enter(ctx); err != nil {
		return nil, err
	}
	defer s.unlock()
	out := slices.Collect(maps.Values(s.st.rules))
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) Margin(ctx context.Context, productID int64) (*prices.Margin, error) {
	if err := s.enter(ctx); err != nil {
		return nil, err
	}
	defer s.unlock()
	m, ok := s.st.margins[productID]
	if !ok {
		return nil, nil
	}
	return &m, nil
}

func (s *Store) Prices(ctx context.Context, productID int64) (map[int]prices.Price, error) {
	if err := s.enter(ctx); err != nil {
		return nil, err
	}
	defer s.unlock()
	out := map[int]prices.Price{}
	for k, p := range s.st.prices {
		if k.product == productID {
			out[k.size] = p
		}
	}
	return out, nil
}

/* Writer */

func (s *Store) SaveMargin(ctx context.Context, productID int64, multiplier decimal.Decimal, expectedVersion int64) (*prices.Margin, error) {
	if err := s.enter(ctx); err != nil {
		return nil, err
	}
	defer s.unlock()
	cur, ok := s.st.margins[productID]
	switch {
	case !ok && expectedVersion != 0, ok && cur.Version != expectedVersion:
		return nil, prices.ErrVersionConflict
	}
	m := prices.Margin{ProductID: productID, Multiplier: multiplier, Version: expectedVersion + 1, UpdatedAt: time.Now()}
	s.st.margins[productID] = m
	return &m, nil
}

func (s *Store) SavePrice(ctx context.Context, p prices.Price) error {
	if err := s.enter(ctx); err != nil {
		return err
	}
	defer s.unlock()
	p.UpdatedAt = time.Now()
	s.st.prices[priceKey{p.ProductID, p.SizeMl}] = p
	return nil
}

func (s *Store) AppendChange(ctx context.Context, c prices.Change) error {
	if err := s.enter(ctx); err != nil {
		return err
	}
	defer s.unlock()
	c.ID = s.st.nextID()
	c.CreatedAt = time.Now()
	s.st.history = append(s.st.history, c)
	return nil
}

/* LedgerStore */

func (s *Store) ReceiveLot(ctx context.Context, lot materials.Lot, method materials.CostMethod) (*materials.Material, error) {
	if !lot.Quantity.IsPositive() {
		return nil, fmt.Errorf("qty must be > 0")
	}
	if lot.CostPerUnit.IsNegative() {
		return nil, fmt.Errorf("cost per unit must be >= 0")
	}
	if err := s.enter(ctx); err != nil {
		return nil, err
	}
	defer s.unlock()
	m, ok := s.st.materials[lot.MaterialID]
	if !ok {
		return nil, fmt.Errorf("material %d not found", lot.MaterialID)
	}
	if lot.PurchasedAt.IsZero() {
		lot.PurchasedAt = time.Now()
	}
	lot.ID = s.st.nextID()
	lot.TotalCost = lot.Quantity.Mul(lot.CostPerUnit).Round(2)
	s.st.lots = append(s.st.lots, lot)

	m.CostPerUnit = materials.NextCost(method, m.Stock, m.CostPerUnit, lot.Quantity, lot.CostPerUnit)
	m.Stock = m.Stock.Add(lot.Quantity)
	s.st.materials[m.ID] = m
	return &m, nil
}

func (s *Store) UpdateMaterialCost(ctx context.Context, id int64, cost decimal.Decimal) (*materials.Material, error) {
	if err := s.enter(ctx); err != nil {
		return nil, err
	}
	defer s.unlock()
	m, ok := s.st.materials[id]
	if !ok {
		return nil, nil
	}
	m.CostPerUnit = cost
	s.st.materials[id] = m
	return &m, nil
}

func (s *Store) ConsumeMaterial(ctx context.Context, id int64, qty decimal.Decimal) (*materials.Material, error) {
	if !qty.IsPositive() {
		return nil, fmt.Errorf("qty must be > 0")
	}
	if err := s.enter(ctx); err != nil {
		return nil, err
	}
	defer s.unlock()
	m, ok := s.st.materials[id]
	if !ok {
		return nil, nil
	}
	m.Stock = m.Stock.Sub(qty)
	s.st.materials[id] = m
	return &m, nil
}

// MaterialLots returns the material's lots, newest first.
func (s *Store) MaterialLots(ctx context.Context, materialID int64) ([]materials.Lot, error) {
	if err := s.enter(ctx); err != nil {
		return nil, err
	}
	defer s.unlock()
	var out []materials.Lot
	for i := len(s.st.lots) - 1; i >= 0; i-- {
		if l := s.st.lots[i]; l.MaterialID == materialID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (s *Store) ListMaterials(ctx context.Context, onlyActive bool) ([]materials.Material, error) {
	if err := s.enter(ctx); err != nil {
		return nil, err
	}
	defer s.unlock()
	out := make([]materials.Material, 0, len(s.st.materials))
	for _, m := range s.st.materials {
		if onlyActive && !m.Active {
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) LowStock(ctx context.Context) ([]materials.Material, error) {
	if err := s.enter(ctx); err != nil {
		return nil, err
	}
	defer s.unlock()
	var out []materials.Material
	for _, m := range s.st.materials {
		if m.Active && m.LowStock() {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

/* seed.Store */

func (s *Store) MaterialByName(ctx context.Context, name string) (*materials.Material, error) {
	if err := s.enter(ctx); err != nil {
		return nil, err
	}
	defer s.unlock()
	var found *materials.Material
	for _, m := range s.st.materials {
		if m.Name == name && (found == nil || m.ID < found.ID) {
			found = &m
		}
	}
	return found, nil
}

func (s *Store) CreateMaterial(ctx context.Context, m materials.Material) (*materials.Material, error) {
	if err := s.enter(ctx); err != nil {
		return nil, err
	}
	defer s.unlock()
	m.ID = s.st.nextID()
	m.Active = true
	m.CreatedAt = time.Now()
	s.st.materials[m.ID] = m
	return &m, nil
}

func (s *Store) ProductByName(ctx context.Context, name string) (*catalog.Product, error) {
	if err := s.enter(ctx); err != nil {
		return nil, err
	}
	defer s.unlock()
	var found *catalog.Product
	for _, p := range s.st.products {
		if p.Name == name && (found == nil || p.ID < found.ID) {
			p.Sizes = slices.Clone(p.Sizes)
			found = &p
		}
	}
	return found, nil
}

func (s *Store) CreateProduct(ctx context.Context, name string, sizes []int) (*catalog.Product, error) {
	if err := s.enter(ctx); err != nil {
		return nil, err
	}
	defer s.unlock()
	p := catalog.Product{ID: s.st.nextID(), Name: name, Sizes: slices.Clone(sizes), Active: true, CreatedAt: time.Now()}
	s.st.products[p.ID] = p
	return &p, nil
}

func (s *Store) SaveBottleConfig(ctx context.Context, sizes []catalog.BottleSize) error {
	if err := s.enter(ctx); err != nil {
		return err
	}
	defer s.unlock()
	s.st.bottles = slices.Clone(sizes)
	s.st.bottleSet = true
	return nil
}

func (s *Store) UpsertRecipe(ctx context.Context, e recipes.Entry) error {
	if !e.Quantity.IsPositive() {
		return fmt.Errorf("recipe qty must be > 0")
	}
	if err := s.enter(ctx); err != nil {
		return err
	}
	defer s.unlock()
	s.st.recipes[recipeKey{e.ProductID, e.SizeMl, e.MaterialID}] = e
	return nil
}

func (s *Store) UpsertRule(ctx context.Context, r packaging.Rule) (int64, error) {
	if err := s.enter(ctx); err != nil {
		return 0, err
	}
	defer s.unlock()
	if r.ID == 0 {
		r.ID = s.st.nextID()
	} else if _, ok := s.st.rules[r.ID]; !ok {
		return 0, fmt.Errorf("packaging rule %d not found", r.ID)
	}
	s.st.rules[r.ID] = r
	return r.ID, nil
}

/* Seeding */

func (s *Store) AddMaterial(m materials.Material) materials.Material {
	s.lock()
	defer s.unlock()
	m.ID = s.st.nextID()
	m.Active = true
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	s.st.materials[m.ID] = m
	return m
}

func (s *Store) SetMaterialActive(id int64, active bool) {
	s.lock()
	defer s.unlock()
	if m, ok := s.st.materials[id]; ok {
		m.Active = active
		s.st.materials[id] = m
	}
}

func (s *Store) RemoveMaterial(id int64) {
	s.lock()
	defer s.unlock()
	delete(s.st.materials, id)
}

func (s *Store) AddProduct(name string, sizes ...int) catalog.Product {
	s.lock()
	defer s.unlock()
	p := catalog.Product{ID: s.st.nextID(), Name: name, Sizes: slices.Clone(sizes), Active: true, CreatedAt: time.Now()}
	s.st.products[p.ID] = p
	return p
}

func (s *Store) AddRecipe(productID int64, sizeMl int, materialID int64, qty decimal.Decimal) {
	s.lock()
	defer s.unlock()
	s.st.recipes[recipeKey{productID, sizeMl, materialID}] = recipes.Entry{
		ProductID:  productID,
		SizeMl:     sizeMl,
		MaterialID: materialID,
		Quantity:   qty,
	}
}

func (s *Store) AddRule(r packaging.Rule) packaging.Rule {
	s.lock()
	defer s.unlock()
	r.ID = s.st.nextID()
	s.st.rules[r.ID] = r
	return r
}

func (s *Store) SetBottleConfig(sizes []catalog.BottleSize) {
	s.lock()
	defer s.unlock()
	s.st.bottles = slices.Clone(sizes)
	s.st.bottleSet = true
}

// PutPrice stores a price directly, bypassing history. Tests use it to simulate drift.
func (s *Store) PutPrice(p prices.Price) {
	s.lock()
	defer s.unlock()
	if p.Source == "" {
		p.Source = prices.SourceFormula
	}
	p.UpdatedAt = time.Now()
	s.st.prices[priceKey{p.ProductID, p.SizeMl}] = p
}

func (s *Store) DeletePrice(productID int64, sizeMl int) {
	s.lock()
	defer s.unlock()
	delete(s.st.prices, priceKey{productID, sizeMl})
}

// History returns the newest changes first, like the SQL repo.
func (s *Store) History(ctx context.Context, productID int64, limit int) ([]prices.Change, error) {
	if err := s.enter(ctx); err != nil {
		return nil, err
	}
	defer s.unlock()
	if limit <= 0 {
		limit = 50
	}
	var out []prices.Change
	for i := len(s.st.history) - 1; i >= 0 && len(out) < limit; i-- {
		if c := s.st.history[i]; c.ProductID == productID {
			out = append(out, c)
		}
	}
	return out, nil
}
