package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Spok95/decant-pricing/internal/report"
)

var importCostsCmd = &cobra.Command{
	Use:   "import-costs <file.xlsx>",
	Short: "Update material costs from a spreadsheet and reprice affected products",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		rows, bad, err := report.ParseCostImport(data)
		if err != nil {
			return fmt.Errorf("parse %s: %w", args[0], err)
		}

		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()

		res, err := a.engine.Ledger.ImportCosts(cmd.Context(), rows)
		if err != nil {
			return err
		}
		res.Errors = append(bad, res.Errors...)

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	},
}
