package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	httpx "github.com/Spok95/decant-pricing/internal/infra/http"
	"github.com/Spok95/decant-pricing/internal/infra/notify"
	"github.com/Spok95/decant-pricing/internal/scheduler"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API, the repair worker and the audit scheduler",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()
		log := a.log

		go a.engine.Repairer.Run(ctx)

		var notifier notify.Notifier = notify.Nop{}
		if a.cfg.Telegram.Token != "" && a.cfg.Telegram.AdminChatID != 0 {
			tg, err := notify.NewTelegram(a.cfg.Telegram.Token, a.cfg.Telegram.AdminChatID, log.With("component", "notify"))
			if err != nil {
				log.Warn("telegram notifier disabled", "err", err)
			} else {
				notifier = tg
			}
		}

		loc, err := a.cfg.Location()
		if err != nil {
			return err
		}
		sched := scheduler.New(a.engine.Audit, notifier, scheduler.Options{
			Spec:       a.cfg.Audit.Schedule,
			AutoFix:    a.cfg.Audit.AutoFix,
			Timeout:    a.cfg.Audit.Timeout,
			AttachXLSX: a.cfg.Audit.AttachXLSX,
			Location:   loc,
		}, log.With("component", "scheduler"))
		if err := sched.Start(); err != nil {
			return err
		}

		api := httpx.NewAPI(a.engine, a.store, log.With("component", "http"))
		srv := httpx.New(a.cfg.HTTP.Addr, a.cfg.Metrics.Enabled, api)
		go func() {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("http server error", "err", err)
				stop()
			}
		}()
		log.Info("HTTP server started", "addr", a.cfg.HTTP.Addr)

		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.HTTP.ShutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		sched.Stop(shutdownCtx)
		log.Info("graceful shutdown complete")
		return nil
	},
}
