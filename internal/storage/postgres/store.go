// Package postgres adapts the domain repos to the pricing store interfaces.
// Every call runs under a deadline and infrastructure failures surface as
// pricing.ErrUnavailable.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/Spok95/decant-pricing/internal/domain/catalog"
	"github.com/Spok95/decant-pricing/internal/domain/materials"
	"github.com/Spok95/decant-pricing/internal/domain/packaging"
	"github.com/Spok95/decant-pricing/internal/domain/prices"
	"github.com/Spok95/decant-pricing/internal/domain/recipes"
	"github.com/Spok95/decant-pricing/internal/infra/db"
	"github.com/Spok95/decant-pricing/internal/pricing"
	"github.com/Spok95/decant-pricing/internal/seed"
)

type Store struct {
	pool *pgxpool.Pool // nil inside a transaction

	catalog   *catalog.Repo
	materials *materials.Repo
	recipes   *recipes.Repo
	packaging *packaging.Repo
	prices    *prices.Repo

	queryTimeout time.Duration
	txTimeout    time.Duration
}

var _ pricing.Store = (*Store)(nil)
var _ pricing.LedgerStore = (*Store)(nil)
var _ seed.Store = (*Store)(nil)

func New(pool *pgxpool.Pool, queryTimeout, txTimeout time.Duration) *Store {
	if queryTimeout <= 0 {
		queryTimeout = 3 * time.Second
	}
	if txTimeout <= 0 {
		txTimeout = 10 * time.Second
	}
	s := bind(pool, queryTimeout, txTimeout)
	s.pool = pool
	return s
}

func bind(q db.Querier, queryTimeout, txTimeout time.Duration) *Store {
	return &Store{
		catalog:      catalog.NewRepo(q),
		materials:    materials.NewRepo(q),
		recipes:      recipes.NewRepo(q),
		packaging:    packaging.NewRepo(q),
		prices:       prices.NewRepo(q),
		queryTimeout: queryTimeout,
		txTimeout:    txTimeout,
	}
}

func (s *Store) op(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.queryTimeout)
}

// InTx runs fn in a read-committed transaction. Margin and price reads made
// through the tx store take row locks.
func (s *Store) InTx(ctx context.Context, fn func(tx pricing.Store) error) error {
	return s.Atomic(ctx, func(tx *Store) error { return fn(tx) })
}

// Atomic is InTx for callers that need the concrete store, such as the seed.
func (s *Store) Atomic(ctx context.Context, fn func(tx *Store) error) error {
	if s.pool == nil {
		return fn(s)
	}

	ctx, cancel := context.WithTimeout(ctx, s.txTimeout)
	defer cancel()

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return mapErr(fmt.Errorf("begin tx: %w", err))
	}
	defer func() { _ = tx.Rollback(ctx) }()

	txs := bind(tx, s.queryTimeout, s.txTimeout)
	txs.prices = txs.prices.Locking()

	if err := fn(txs); err != nil {
		return mapErr(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return mapErr(fmt.Errorf("commit: %w", err))
	}
	return nil
}

/* Reader */

func (s *Store) Product(ctx context.Context, id int64) (*catalog.Product, error) {
	ctx, cancel := s.op(ctx)
	defer cancel()
	p, err := s.catalog.GetProduct(ctx, id)
	return p, mapErr(err)
}

func (s *Store) Products(ctx context.Context, onlyActive bool) ([]catalog.Product, error) {
	ctx, cancel := s.op(ctx)
	defer cancel()
	out, err := s.catalog.ListProducts(ctx, onlyActive)
	return out, mapErr(err)
}

func (s *Store) BottleConfig(ctx context.Context) ([]catalog.BottleSize, bool, error) {
	ctx, cancel := s.op(ctx)
	defer cancel()
	out, ok, err := s.catalog.BottleConfig(ctx)
	return out, ok, mapErr(err)
}

func (s *Store) RecipeEntries(ctx context.Context, productID int64) ([]recipes.Entry, error) {
	ctx, cancel := s.op(ctx)
	defer cancel()
	out, err := s.recipes.ForProduct(ctx, productID)
	return out, mapErr(err)
}

func (s *Store) ProductsUsingMaterial(ctx context.Context, materialID int64) ([]int64, error) {
	ctx, cancel := s.op(ctx)
	defer cancel()
	out, err := s.recipes.ProductsUsingMaterial(ctx, materialID)
	return out, mapErr(err)
}

func (s *Store) Materials(ctx context.Context, ids []int64) (map[int64]materials.Material, error) {
	ctx, cancel := s.op(ctx)
	defer cancel()
	out, err := s.materials.GetMany(ctx, ids)
	return out, mapErr(err)
}

func (s *Store) PackagingRules(ctx context.Context) ([]packaging.Rule, error) {
	ctx, cancel := s.op(ctx)
	defer cancel()
	out, err := s.packaging.List(ctx, false)
	return out, mapErr(err)
}

func (s *Store) Margin(ctx context.Context, productID int64) (*prices.Margin, error) {
	ctx, cancel := s.op(ctx)
	defer cancel()
	m, err := s.prices.GetMargin(ctx, productID)
	return m, mapErr(err)
}

func (s *Store) Prices(ctx context.Context, productID int64) (map[int]prices.Price, error) {
	ctx, cancel := s.op(ctx)
	defer cancel()
	out, err := s.prices.Prices(ctx, productID)
	return out, mapErr(err)
}

func (s *Store) History(ctx context.Context, productID int64, limit int) ([]prices.Change, error) {
	ctx, cancel := s.op(ctx)
	defer cancel()
	out, err := s.prices.History(ctx, productID, limit)
	return out, mapErr(err)
}

/* Writer */

func (s *Store) SaveMargin(ctx context.Context, productID int64, multiplier decimal.Decimal, expectedVersion int64) (*prices.Margin, error) {
	ctx, cancel := s.op(ctx)
	defer cancel()
	m, err := s.prices.SaveMargin(ctx, productID, multiplier, expectedVersion)
	return m, mapErr(err)
}

func (s *Store) SavePrice(ctx context.Context, p prices.Price) error {
	ctx, cancel := s.op(ctx)
	defer cancel()
	return mapErr(s.prices.SavePrice(ctx, p))
}

func (s *Store) AppendChange(ctx context.Context, c prices.Change) error {
	ctx, cancel := s.op(ctx)
	defer cancel()
	return mapErr(s.prices.AppendChange(ctx, c))
}

/* LedgerStore */

func (s *Store) ReceiveLot(ctx context.Context, lot materials.Lot, method materials.CostMethod) (*materials.Material, error) {
	ctx, cancel := context.WithTimeout(ctx, s.txTimeout)
	defer cancel()
	m, err := s.materials.ReceiveLot(ctx, lot, method)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, pricing.MaterialNotFound(lot.MaterialID)
	}
	return m, mapErr(err)
}

func (s *Store) UpdateMaterialCost(ctx context.Context, id int64, cost decimal.Decimal) (*materials.Material, error) {
	ctx, cancel := s.op(ctx)
	defer cancel()
	m, err := s.materials.UpdateCost(ctx, id, cost)
	return m, mapErr(err)
}

func (s *Store) ConsumeMaterial(ctx context.Context, id int64, qty decimal.Decimal) (*materials.Material, error) {
	ctx, cancel := s.op(ctx)
	defer cancel()
	m, err := s.materials.Consume(ctx, id, qty)
	return m, mapErr(err)
}

func (s *Store) MaterialLots(ctx context.Context, materialID int64) ([]materials.Lot, error) {
	ctx, cancel := s.op(ctx)
	defer cancel()
	out, err := s.materials.ListLots(ctx, materialID)
	return out, mapErr(err)
}

func (s *Store) ListMaterials(ctx context.Context, onlyActive bool) ([]materials.Material, error) {
	ctx, cancel := s.op(ctx)
	defer cancel()
	out, err := s.materials.List(ctx, onlyActive)
	return out, mapErr(err)
}

func (s *Store) LowStock(ctx context.Context) ([]materials.Material, error) {
	ctx, cancel := s.op(ctx)
	defer cancel()
	out, err := s.materials.ListLowStock(ctx)
	return out, mapErr(err)
}

/* seed.Store */

func (s *Store) MaterialByName(ctx context.Context, name string) (*materials.Material, error) {
	ctx, cancel := s.op(ctx)
	defer cancel()
	m, err := s.materials.GetByName(ctx, name)
	return m, mapErr(err)
}

func (s *Store) CreateMaterial(ctx context.Context, m materials.Material) (*materials.Material, error) {
	ctx, cancel := s.op(ctx)
	defer cancel()
	out, err := s.materials.Create(ctx, m)
	return out, mapErr(err)
}

func (s *Store) ProductByName(ctx context.Context, name string) (*catalog.Product, error) {
	ctx, cancel := s.op(ctx)
	defer cancel()
	p, err := s.catalog.GetProductByName(ctx, name)
	return p, mapErr(err)
}

func (s *Store) CreateProduct(ctx context.Context, name string, sizes []int) (*catalog.Product, error) {
	ctx, cancel := s.op(ctx)
	defer cancel()
	p, err := s.catalog.CreateProduct(ctx, name, sizes)
	return p, mapErr(err)
}

func (s *Store) SaveBottleConfig(ctx context.Context, sizes []catalog.BottleSize) error {
	ctx, cancel := s.op(ctx)
	defer cancel()
	return mapErr(s.catalog.SaveBottleConfig(ctx, sizes))
}

func (s *Store) UpsertRecipe(ctx context.Context, e recipes.Entry) error {
	ctx, cancel := s.op(ctx)
	defer cancel()
	return mapErr(s.recipes.Upsert(ctx, e))
}

func (s *Store) UpsertRule(ctx context.Context, r packaging.Rule) (int64, error) {
	ctx, cancel := s.op(ctx)
	defer cancel()
	id, err := s.packaging.Upsert(ctx, r)
	return id, mapErr(err)
}

// mapErr turns driver-level failures into the engine's error vocabulary.
func mapErr(err error) error {
	if err == nil || errors.Is(err, pricing.ErrUnavailable) || errors.Is(err, pricing.ErrConcurrentUpdate) {
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01": // serialization_failure, deadlock_detected
			return fmt.Errorf("%w: %v", pricing.ErrConcurrentUpdate, err)
		case "57014", "57P01", "57P03": // query_canceled, admin_shutdown, cannot_connect_now
			return fmt.Errorf("%w: %v", pricing.ErrUnavailable, err)
		}
		return err
	}

	var (
		connErr *pgconn.ConnectError
		netErr  net.Error
	)
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled),
		pgconn.Timeout(err),
		errors.As(err, &connErr),
		errors.As(err, &netErr):
		return fmt.Errorf("%w: %v", pricing.ErrUnavailable, err)
	}
	return err
}
