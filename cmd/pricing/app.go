package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/Spok95/decant-pricing/internal/config"
	"github.com/Spok95/decant-pricing/internal/domain/materials"
	"github.com/Spok95/decant-pricing/internal/infra/cache"
	"github.com/Spok95/decant-pricing/internal/infra/db"
	"github.com/Spok95/decant-pricing/internal/infra/logger"
	"github.com/Spok95/decant-pricing/internal/pricing"
	"github.com/Spok95/decant-pricing/internal/seed"
	"github.com/Spok95/decant-pricing/internal/storage/memory"
	"github.com/Spok95/decant-pricing/internal/storage/postgres"
)

// app holds everything a command needs; close releases it in reverse order.
type app struct {
	cfg     config.Config
	log     *slog.Logger
	store   pricing.Store
	engine  *pricing.Engine
	closers []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func loadConfig() (config.Config, *slog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, logger.New(cfg.App.Env), nil
}

func newApp(ctx context.Context) (*app, error) {
	cfg, log, err := loadConfig()
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, log: log}

	var ledger pricing.LedgerStore
	switch cfg.Storage.Driver {
	case "memory":
		ms := memory.New()
		if _, err := seed.Run(ctx, ms); err != nil {
			return nil, fmt.Errorf("seed demo catalog: %w", err)
		}
		a.store, ledger = ms, ms
		log.Warn("using in-memory storage, data is lost on exit")
	default:
		pool, err := db.Connect(ctx, cfg.Postgres.DSN)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, pool.Close)
		ps := postgres.New(pool, cfg.Postgres.QueryTimeout, cfg.Postgres.TxTimeout)
		a.store, ledger = ps, ps
		log.Info("db connected")
	}

	var priceCache pricing.PriceCache
	if cfg.Redis.Addr != "" {
		rc, err := cache.Connect(ctx, cache.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TTL:      cfg.Redis.TTL,
		}, log.With("component", "cache"))
		if err != nil {
			log.Warn("redis unavailable, storefront cache disabled", "err", err)
		} else {
			priceCache = rc
			a.closers = append(a.closers, func() { _ = rc.Close() })
		}
	}

	policy, err := pricing.NewPolicy(cfg.Pricing.MarginMinPercent, cfg.Pricing.MarginMaxPercent)
	if err != nil {
		a.close()
		return nil, err
	}
	eng, err := pricing.New(pricing.Options{
		Store:          a.store,
		Ledger:         ledger,
		Policy:         policy,
		Tolerance:      decimal.RequireFromString(cfg.Pricing.Tolerance),
		HonorPins:      cfg.Pricing.HonorPinned,
		DefaultSizes:   cfg.Pricing.DefaultSizes,
		CostMethod:     materials.CostMethod(cfg.Pricing.CostMethod),
		AuditWorkers:   cfg.Audit.Workers,
		RepairCapacity: cfg.Pricing.RepairQueue,
		Cache:          priceCache,
		Log:            log,
	})
	if err != nil {
		a.close()
		return nil, err
	}
	a.engine = eng
	return a, nil
}
