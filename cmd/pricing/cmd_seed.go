package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/Spok95/decant-pricing/internal/infra/db"
	"github.com/Spok95/decant-pricing/internal/seed"
	"github.com/Spok95/decant-pricing/internal/storage/postgres"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load the demo catalog into postgres (idempotent)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Storage.Driver != "postgres" {
			return errors.New("seed requires storage.driver=postgres; the memory driver seeds itself")
		}

		ctx := cmd.Context()
		pool, err := db.Connect(ctx, cfg.Postgres.DSN)
		if err != nil {
			return err
		}
		defer pool.Close()

		store := postgres.New(pool, cfg.Postgres.QueryTimeout, cfg.Postgres.TxTimeout)
		var stats seed.Stats
		err = store.Atomic(ctx, func(tx *postgres.Store) error {
			var err error
			stats, err = seed.Run(ctx, tx)
			return err
		})
		if err != nil {
			log.Error("seed failed", "err", err)
			return err
		}
		log.Info("seed applied", "inserts", stats.Inserts, "updates", stats.Updates)
		return nil
	},
}
