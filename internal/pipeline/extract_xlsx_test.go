package pipeline

import (
	"bytes"
	"testing"

	"github.com/xuri/excelize/v2"

	"compsheet/internal"
)

func mkXLSX(rows [][]any) []byte {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	for r, row := range rows {
		for c, v := range row {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+1)
			_ = f.SetCellValue(sheet, cell, v)
		}
	}
	buf := bytes.NewBuffer(nil)
	_, _ = f.WriteTo(buf)
	return buf.Bytes()
}

func TestReadXLSX(t *testing.T) {
	blob := mkXLSX([][]any{
		{"Property Address", "Sold Price", "SqFt", "DOM"},
		{"12 Elm St", 425000, 1800, 12},
		{},
		{"9 Oak Ave", "$310,500", "1,450", ""},
	})
	table, err := ReadXLSX("comps.xlsx", blob, "")
	if err != nil {
		t.Fatal(err)
	}
	if table.Source != internal.SourceXLSX || table.Sheet != "Sheet1" {
		t.Fatalf("table=%+v", table)
	}
	if len(table.Headers) != 4 || table.Headers[1] != "Sold Price" {
		t.Fatalf("headers=%v", table.Headers)
	}
	if len(table.Rows) != 2 {
		t.Fatalf("len=%d", len(table.Rows))
	}
	if table.Rows[0]["Sold Price"] != "425000" {
		t.Fatalf("raw cell=%#v", table.Rows[0]["Sold Price"])
	}

	res, err := BuildComps(table)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Comps) != 2 {
		t.Fatalf("comps=%d", len(res.Comps))
	}
	if *res.Comps[1].SoldPrice != 310500 || *res.Comps[1].Sqft != 1450 {
		t.Fatalf("comp=%+v", res.Comps[1])
	}
}

func TestReadXLSXMissingSheet(t *testing.T) {
	blob := mkXLSX([][]any{{"Address"}, {"1 Main"}})
	if _, err := ReadXLSX("comps.xlsx", blob, "Nope"); err == nil {
		t.Fatal("expected error")
	}
}
