package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Spok95/decant-pricing/internal/pricing"
	"github.com/Spok95/decant-pricing/internal/report"
)

var (
	auditFix  bool
	auditXLSX string
	auditJSON bool
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Run a price integrity check, optionally repairing drift",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		ctx, cancelRun := context.WithTimeout(ctx, a.cfg.Audit.Timeout)
		defer cancelRun()

		var (
			rep *pricing.Report
			fix *pricing.FixReport
		)
		if auditFix {
			fix, err = a.engine.Audit.AutoFix(ctx)
			if fix != nil {
				rep = fix.Check
			}
		} else {
			rep, err = a.engine.Audit.Check(ctx)
		}
		if err != nil {
			return err
		}

		if auditXLSX != "" {
			data, err := report.AuditXLSX(rep, fix)
			if err != nil {
				return err
			}
			if err := os.WriteFile(auditXLSX, data, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", auditXLSX, err)
			}
		}

		out := cmd.OutOrStdout()
		if auditJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			if fix != nil {
				return enc.Encode(fix)
			}
			return enc.Encode(rep)
		}

		fmt.Fprintf(out, "run %s: %d products, %d sizes, %d discrepancies\n",
			rep.RunID, rep.Products, rep.SizesChecked, len(rep.Discrepancies))
		for _, d := range rep.Discrepancies {
			fmt.Fprintf(out, "  product %d %dml %-16s stored=%s expected=%s\n",
				d.ProductID, d.SizeMl, d.Action, nullFixed(d.Stored.Valid, d.Stored.Decimal.StringFixed(2)), nullFixed(d.Expected.Valid, d.Expected.Decimal.StringFixed(2)))
		}
		if fix != nil {
			fmt.Fprintf(out, "fixed %d, skipped %d, failed %d in %s\n", fix.Fixed, fix.Skipped, fix.Failed, fix.Elapsed)
		}
		return nil
	},
}

func nullFixed(valid bool, s string) string {
	if !valid {
		return "-"
	}
	return s
}

func init() {
	auditCmd.Flags().BoolVar(&auditFix, "fix", false, "repair recalculate/missing_price discrepancies")
	auditCmd.Flags().StringVar(&auditXLSX, "xlsx", "", "write the report to this xlsx file")
	auditCmd.Flags().BoolVar(&auditJSON, "json", false, "print the report as JSON")
}
