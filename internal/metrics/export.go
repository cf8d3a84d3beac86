package metrics

import (
	"bytes"
	"encoding/csv"
	"fmt"

	"github.com/xuri/excelize/v2"
)

// ProductPerformanceCSV renders the product report as CSV: one header line
// plus one line per product, money formatted with exactly two decimals.
func ProductPerformanceCSV(rows []ProductPerformance) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write([]string{"Product", "Category", "Total Sold", "Revenue", "Profit"}); err != nil {
		return nil, err
	}
	for _, row := range rows {
		record := []string{
			row.Name,
			row.Category,
			fmt.Sprintf("%d", row.TotalSold),
			formatMoney(row.RevenueCents),
			formatMoney(row.ProfitCents),
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ServicePerformanceCSV renders the services report as CSV.
func ServicePerformanceCSV(rows []ServicePerformance) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write([]string{"Service", "Count", "Revenue", "Unique Customers"}); err != nil {
		return nil, err
	}
	for _, row := range rows {
		record := []string{
			row.Name,
			fmt.Sprintf("%d", row.Count),
			formatMoney(row.RevenueCents),
			fmt.Sprintf("%d", row.UniqueCustomers),
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// SummaryXLSX renders the full dashboard summary as an xlsx workbook with one
// sheet per report.
func SummaryXLSX(summary Summary) (*excelize.File, error) {
	f := excelize.NewFile()

	header, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}

	if err := writeSheet(f, "Products", header, []string{"Product", "Category", "Total Sold", "Revenue", "Profit"}, len(summary.Products), func(i int) []any {
		p := summary.Products[i]
		return []any{p.Name, p.Category, p.TotalSold, centsToFloat(p.RevenueCents), centsToFloat(p.ProfitCents)}
	}); err != nil {
		return nil, err
	}

	if err := writeSheet(f, "Daily Sales", header, []string{"Day", "Transactions", "Revenue"}, len(summary.Daily), func(i int) []any {
		d := summary.Daily[i]
		return []any{d.Day, d.Transactions, centsToFloat(d.RevenueCents)}
	}); err != nil {
		return nil, err
	}

	if err := writeSheet(f, "Services", header, []string{"Service", "Count", "Revenue", "Unique Customers"}, len(summary.Services), func(i int) []any {
		s := summary.Services[i]
		return []any{s.Name, s.Count, centsToFloat(s.RevenueCents), s.UniqueCustomers}
	}); err != nil {
		return nil, err
	}

	// The default sheet excelize creates is replaced by the first report.
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, err
	}
	return f, nil
}

func writeSheet(f *excelize.File, name string, headerStyle int, headers []string, rows int, row func(i int) []any) error {
	if _, err := f.NewSheet(name); err != nil {
		return err
	}
	for col, h := range headers {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(name, cell, h); err != nil {
			return err
		}
		if err := f.SetCellStyle(name, cell, cell, headerStyle); err != nil {
			return err
		}
	}
	for i := 0; i < rows; i++ {
		values := row(i)
		for col, v := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, i+2)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(name, cell, v); err != nil {
				return err
			}
		}
	}
	return nil
}

func formatMoney(cents int64) string {
	return fmt.Sprintf("%.2f", centsToFloat(cents))
}

func centsToFloat(cents int64) float64 {
	return float64(cents) / 100
}
