package pipeline

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"compsheet/internal"
)

const (
	compsSheet   = "Comps"
	summarySheet = "Summary"
)

func ExportReportToXLSX(report internal.Report, outputPath string) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), compsSheet); err != nil {
		return err
	}
	if _, err := f.NewSheet(summarySheet); err != nil {
		return err
	}

	for i, field := range internal.Fields {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(compsSheet, cell, string(field))
	}
	for r, comp := range report.Comps {
		for c, field := range internal.Fields {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			if v := comp.Get(field); v != nil {
				_ = f.SetCellValue(compsSheet, cell, v)
			}
		}
	}

	summary := [][2]any{
		{"report_id", report.ID},
		{"title", report.Title},
		{"comps", len(report.Comps)},
		{"dropped", report.Dropped},
		{"avg_sold_price", statCell(report.Stats.AvgSoldPrice)},
		{"avg_price_per_sqft", statCell(report.Stats.AvgPricePerSqft)},
		{"avg_dom", statCell(report.Stats.AvgDOM)},
		{"median_sold_price", statCell(report.Stats.Median)},
		{"suggested_list_low", statCell(report.Stats.SuggestedListLow)},
		{"suggested_list_high", statCell(report.Stats.SuggestedListHigh)},
	}
	for i, kv := range summary {
		key, _ := excelize.CoordinatesToCellName(1, i+1)
		value, _ := excelize.CoordinatesToCellName(2, i+1)
		_ = f.SetCellValue(summarySheet, key, kv[0])
		_ = f.SetCellValue(summarySheet, value, kv[1])
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	return f.SaveAs(outputPath)
}

func ExportCompsToCSV(comps []internal.Comp, outputPath string) error {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	file, err := os.Create(outputPath)
	if err != nil {
		return err
	}
	defer file.Close()

	w := csv.NewWriter(file)
	header := make([]string, 0, len(internal.Fields))
	for _, f := range internal.Fields {
		header = append(header, string(f))
	}
	if err := w.Write(header); err != nil {
		return err
	}
	for _, c := range comps {
		if err := w.Write(c.Strings()); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return file.Close()
}

func ExportReportJSON(report internal.Report, outputPath string) error {
	blob, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	return os.WriteFile(outputPath, blob, 0o644)
}

func statCell(v *float64) any {
	if v == nil {
		return ""
	}
	return *v
}
