package report

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/Spok95/decant-pricing/internal/domain/prices"
	"github.com/Spok95/decant-pricing/internal/pricing"
	"github.com/Spok95/decant-pricing/internal/storage/memory"
)

func sheetBytes(t *testing.T, rows [][]interface{}) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	sheet := f.GetSheetName(f.GetActiveSheetIndex())
	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cell, &r))
	}
	buf := &bytes.Buffer{}
	require.NoError(t, f.Write(buf))
	return buf.Bytes()
}

func readSheet(t *testing.T, data []byte, sheet string) [][]string {
	t.Helper()
	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	rows, err := f.GetRows(sheet)
	require.NoError(t, err)
	return rows
}

func TestParseCostImport(t *testing.T) {
	data := sheetBytes(t, [][]interface{}{
		{"Material_ID", "material_name", "cost_per_unit"},
		{"1", "Frasco 10ml", "3,10"},
		{"2", "Etiqueta", ""},
		{"abc", "Caixa", "2.00"},
		{"4", "Perfume", "-1"},
		{"", "Frasco 30ml", "4.50"},
	})

	rows, bad, err := ParseCostImport(data)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 2, rows[0].Line)
	assert.Equal(t, int64(1), rows[0].MaterialID)
	assert.Equal(t, "3.1", rows[0].Cost.String())
	assert.Equal(t, "Frasco 10ml", rows[0].Name)
	assert.Equal(t, int64(0), rows[1].MaterialID)
	assert.Equal(t, "Frasco 30ml", rows[1].Name)

	require.Len(t, bad, 2)
	assert.Equal(t, 4, bad[0].Line)
	assert.Equal(t, 5, bad[1].Line)
}

func TestParseCostImportHeader(t *testing.T) {
	_, _, err := ParseCostImport(sheetBytes(t, [][]interface{}{{"id", "cost"}}))
	assert.Error(t, err)

	_, _, err = ParseCostImport([]byte("not a spreadsheet"))
	assert.Error(t, err)
}

func TestAuditXLSX(t *testing.T) {
	d := pricing.Discrepancy{
		ProductID:   1,
		ProductName: "Decant A",
		SizeMl:      10,
		Stored:      decimal.NewNullDecimal(decimal.RequireFromString("26.40")),
		Expected:    decimal.NewNullDecimal(decimal.RequireFromString("17.60")),
		Action:      pricing.ActionRecalculate,
		Source:      prices.SourceFormula,
	}
	rep := &pricing.Report{RunID: "run-1", StartedAt: time.Now(), FinishedAt: time.Now(), Products: 1, SizesChecked: 1, Discrepancies: []pricing.Discrepancy{d}}
	fix := &pricing.FixReport{RunID: "run-1", Check: rep, Fixed: 1, Results: []pricing.FixResult{{
		Discrepancy: d,
		Outcome:     pricing.FixFixed,
		NewPrice:    decimal.NewNullDecimal(decimal.RequireFromString("17.60")),
	}}}

	data, err := AuditXLSX(rep, fix)
	require.NoError(t, err)

	summary := readSheet(t, data, sheetSummary)
	assert.Equal(t, []string{"run_id", "run-1"}, summary[1])

	disc := readSheet(t, data, sheetDiscrepancies)
	require.Len(t, disc, 2)
	assert.Equal(t, []string{"1", "Decant A", "10", "26.40", "17.60", "8.80", "recalculate", "formula", "no"}, disc[1])

	fixes := readSheet(t, data, sheetFixes)
	require.Len(t, fixes, 2)
	assert.Equal(t, []string{"1", "10", "26.40", "17.60", "fixed"}, fixes[1])
}

func TestPricesXLSX(t *testing.T) {
	s := memory.New()
	p := s.AddProduct("Decant A")
	ctx := context.Background()
	_, err := s.SaveMargin(ctx, p.ID, decimal.RequireFromString("2"), 0)
	require.NoError(t, err)
	s.PutPrice(prices.Price{ProductID: p.ID, SizeMl: 10, Price: decimal.RequireFromString("17.6")})
	s.PutPrice(prices.Price{ProductID: p.ID, SizeMl: 5, Price: decimal.RequireFromString("11"), Source: prices.SourceManual, Pinned: true})

	data, err := PricesXLSX(ctx, s)
	require.NoError(t, err)

	rows := readSheet(t, data, sheetPrices)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"1", "Decant A", "5", "11.00", "manual", "yes", "200.00"}, rows[1])
	assert.Equal(t, []string{"1", "Decant A", "10", "17.60", "formula", "no", "200.00"}, rows[2])
}
