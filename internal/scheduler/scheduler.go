package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/Spok95/decant-pricing/internal/infra/notify"
	"github.com/Spok95/decant-pricing/internal/pricing"
	"github.com/Spok95/decant-pricing/internal/report"
)

type auditor interface {
	Check(ctx context.Context) (*pricing.Report, error)
	AutoFix(ctx context.Context) (*pricing.FixReport, error)
}

type Options struct {
	Spec    string // standard 5-field cron expression
	AutoFix bool
	Timeout time.Duration
	// AttachXLSX sends the full report with the summary.
	AttachXLSX bool
	// Location the cron spec is evaluated in; nil means the process local time.
	Location *time.Location
}

// Scheduler runs the integrity audit periodically.
type Scheduler struct {
	cron     *cron.Cron
	audit    auditor
	notifier notify.Notifier
	opts     Options
	log      *slog.Logger
}

func New(audit auditor, notifier notify.Notifier, opts Options, log *slog.Logger) *Scheduler {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if opts.Spec == "" {
		opts.Spec = "0 3 * * *"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Minute
	}
	var copts []cron.Option
	if opts.Location != nil {
		copts = append(copts, cron.WithLocation(opts.Location))
	}
	return &Scheduler{
		cron:     cron.New(copts...),
		audit:    audit,
		notifier: notifier,
		opts:     opts,
		log:      log,
	}
}

func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.opts.Spec, s.run); err != nil {
		return err
	}
	s.log.Info("starting scheduler", "spec", s.opts.Spec, "tz", s.cron.Location().String(), "autofix", s.opts.AutoFix)
	s.cron.Start()
	return nil
}

// Stop waits for a running job to finish or ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) {
	s.log.Info("stopping scheduler")
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

func (s *Scheduler) run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.Timeout)
	defer cancel()
	if err := s.RunOnce(ctx); err != nil && !errors.Is(err, pricing.ErrAuditRunning) {
		s.log.Error("scheduled audit failed", "err", err)
	}
}

// RunOnce performs one audit run and notifies the admin chat.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	var (
		rep *pricing.Report
		fix *pricing.FixReport
		err error
	)
	if s.opts.AutoFix {
		fix, err = s.audit.AutoFix(ctx)
		if fix != nil {
			rep = fix.Check
		}
	} else {
		rep, err = s.audit.Check(ctx)
	}
	if errors.Is(err, pricing.ErrAuditRunning) {
		s.log.Info("audit already running, skipped")
		return err
	}
	if err != nil {
		return err
	}

	var xlsx []byte
	if s.opts.AttachXLSX && len(rep.Discrepancies) > 0 {
		xlsx, err = report.AuditXLSX(rep, fix)
		if err != nil {
			s.log.Error("render audit report failed", "err", err)
		}
	}
	s.notifier.AuditFinished(rep, fix, xlsx)
	return nil
}
