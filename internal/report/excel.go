// Package report renders and parses the spreadsheets exchanged with operators.
package report

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/Spok95/decant-pricing/internal/pricing"
)

const (
	sheetSummary       = "summary"
	sheetDiscrepancies = "discrepancies"
	sheetFixes         = "fixes"
	sheetPrices        = "prices"
)

func writeRows(f *excelize.File, sheet string, header []interface{}, rows [][]interface{}) error {
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("write header of %s: %w", sheet, err)
	}
	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &r); err != nil {
			return fmt.Errorf("write row %d of %s: %w", i+2, sheet, err)
		}
	}
	return nil
}

func nullStr(d decimal.NullDecimal) string {
	if !d.Valid {
		return ""
	}
	return d.Decimal.StringFixed(2)
}

func yesNo(v bool) string {
	return map[bool]string{true: "yes", false: "no"}[v]
}

func finish(f *excelize.File) ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := f.Write(buf); err != nil {
		return nil, fmt.Errorf("write xlsx: %w", err)
	}
	return buf.Bytes(), nil
}

// AuditXLSX renders an integrity report; fix may be nil for a check-only run.
func AuditXLSX(rep *pricing.Report, fix *pricing.FixReport) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName(f.GetSheetName(f.GetActiveSheetIndex()), sheetSummary); err != nil {
		return nil, err
	}
	summary := [][]interface{}{
		{"run_id", rep.RunID},
		{"started_at", rep.StartedAt.Format("2006-01-02 15:04:05")},
		{"finished_at", rep.FinishedAt.Format("2006-01-02 15:04:05")},
		{"products", rep.Products},
		{"sizes_checked", rep.SizesChecked},
		{"discrepancies", len(rep.Discrepancies)},
	}
	if fix != nil {
		summary = append(summary,
			[]interface{}{"fixed", fix.Fixed},
			[]interface{}{"skipped", fix.Skipped},
			[]interface{}{"failed", fix.Failed},
		)
	}
	if err := writeRows(f, sheetSummary, []interface{}{"key", "value"}, summary); err != nil {
		return nil, err
	}

	if _, err := f.NewSheet(sheetDiscrepancies); err != nil {
		return nil, err
	}
	rows := make([][]interface{}, 0, len(rep.Discrepancies))
	for _, d := range rep.Discrepancies {
		rows = append(rows, []interface{}{
			d.ProductID,
			d.ProductName,
			d.SizeMl,
			nullStr(d.Stored),
			nullStr(d.Expected),
			d.Diff().StringFixed(2),
			string(d.Action),
			string(d.Source),
			yesNo(d.Pinned),
			d.Detail,
		})
	}
	header := []interface{}{"product_id", "product_name", "size_ml", "stored", "expected", "diff", "action", "source", "pinned", "detail"}
	if err := writeRows(f, sheetDiscrepancies, header, rows); err != nil {
		return nil, err
	}

	if fix != nil {
		if _, err := f.NewSheet(sheetFixes); err != nil {
			return nil, err
		}
		rows := make([][]interface{}, 0, len(fix.Results))
		for _, r := range fix.Results {
			rows = append(rows, []interface{}{
				r.Discrepancy.ProductID,
				r.Discrepancy.SizeMl,
				nullStr(r.Discrepancy.Stored),
				nullStr(r.NewPrice),
				string(r.Outcome),
				r.Reason,
			})
		}
		if err := writeRows(f, sheetFixes, []interface{}{"product_id", "size_ml", "old_price", "new_price", "outcome", "reason"}, rows); err != nil {
			return nil, err
		}
	}
	return finish(f)
}

// PricesXLSX exports every stored price of the active catalog.
func PricesXLSX(ctx context.Context, r pricing.Reader) ([]byte, error) {
	products, err := r.Products(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}

	var rows [][]interface{}
	for _, p := range products {
		stored, err := r.Prices(ctx, p.ID)
		if err != nil {
			return nil, fmt.Errorf("load prices of product %d: %w", p.ID, err)
		}
		m, err := r.Margin(ctx, p.ID)
		if err != nil {
			return nil, fmt.Errorf("load margin of product %d: %w", p.ID, err)
		}
		margin := ""
		if m != nil {
			margin = pricing.DecimalToPercentage(m.Multiplier).StringFixed(2)
		}

		sizes := make([]int, 0, len(stored))
		for s := range stored {
			sizes = append(sizes, s)
		}
		sort.Ints(sizes)
		for _, s := range sizes {
			sp := stored[s]
			rows = append(rows, []interface{}{
				p.ID,
				p.Name,
				s,
				sp.Price.StringFixed(2),
				string(sp.Source),
				yesNo(sp.Pinned),
				margin,
			})
		}
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	if err := f.SetSheetName(f.GetSheetName(f.GetActiveSheetIndex()), sheetPrices); err != nil {
		return nil, err
	}
	header := []interface{}{"product_id", "product_name", "size_ml", "price", "source", "pinned", "margin_percent"}
	if err := writeRows(f, sheetPrices, header, rows); err != nil {
		return nil, err
	}
	return finish(f)
}

// ParseCostImport reads material_id / material_name / cost_per_unit columns.
// Rows with an empty cost are skipped; malformed rows are returned as errors
// with their sheet line number and do not abort the parse.
func ParseCostImport(data []byte) ([]pricing.CostRow, []pricing.ImportError, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, nil, fmt.Errorf("read xlsx: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheet := f.GetSheetName(f.GetActiveSheetIndex())
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, nil, fmt.Errorf("read rows: %w", err)
	}
	if len(rows) < 1 {
		return nil, nil, fmt.Errorf("empty sheet")
	}

	col := map[string]int{}
	for i, h := range rows[0] {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	idCol, okID := col["material_id"]
	costCol, okCost := col["cost_per_unit"]
	if !okID || !okCost {
		return nil, nil, fmt.Errorf("header must contain material_id and cost_per_unit")
	}
	nameCol, okName := col["material_name"]

	var (
		out []pricing.CostRow
		bad []pricing.ImportError
	)
	for i := 1; i < len(rows); i++ {
		line := i + 1
		row := rows[i]
		cell := func(c int) string {
			if c < len(row) {
				return strings.TrimSpace(row[c])
			}
			return ""
		}

		idStr, costStr := cell(idCol), cell(costCol)
		if costStr == "" {
			continue
		}

		r := pricing.CostRow{Line: line}
		if okName {
			r.Name = cell(nameCol)
		}
		if idStr != "" {
			id, err := strconv.ParseInt(idStr, 10, 64)
			if err != nil {
				bad = append(bad, pricing.ImportError{Line: line, Reason: fmt.Sprintf("invalid material_id %q", idStr)})
				continue
			}
			r.MaterialID = id
		}
		cost, err := decimal.NewFromString(strings.ReplaceAll(costStr, ",", "."))
		if err != nil || cost.IsNegative() {
			bad = append(bad, pricing.ImportError{Line: line, Reason: fmt.Sprintf("invalid cost_per_unit %q", costStr)})
			continue
		}
		r.Cost = cost
		out = append(out, r)
	}
	return out, bad, nil
}
