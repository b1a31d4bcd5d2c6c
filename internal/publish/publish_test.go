package publish

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"compsheet/internal"
)

var _ ReportWriter = (*CSVWriter)(nil)
var _ ReportWriter = (*PostgresWriter)(nil)

func sampleReport() internal.Report {
	a1, a2 := "1 Main", "2 Main"
	sold := 300000.0
	return internal.Report{
		ID: "rep-1",
		Comps: []internal.Comp{
			{Address: &a1, SoldPrice: &sold},
			{Address: &a2},
		},
	}
}

func TestCompColumnsFollowFields(t *testing.T) {
	if len(compColumns) != len(internal.Fields) {
		t.Fatalf("columns=%d fields=%d", len(compColumns), len(internal.Fields))
	}
	for i, f := range internal.Fields {
		if compColumns[i] != string(f) {
			t.Fatalf("column %d=%q field=%q", i, compColumns[i], f)
		}
	}
}

func TestCSVWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pub", "comps.csv")
	w, err := NewCSVWriter(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Write(sampleReport()); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 3 {
		t.Fatalf("records=%d", len(records))
	}
	if records[0][0] != "report_id" || records[0][1] != "address" {
		t.Fatalf("header=%v", records[0])
	}
	if records[1][0] != "rep-1" || records[1][3] != "300000" || records[2][3] != "" {
		t.Fatalf("rows=%v", records[1:])
	}
}

func TestBuildInsert(t *testing.T) {
	report := sampleReport()
	query, args := buildInsert(`"report_comps"`, report.ID, report.Comps)

	width := len(compColumns) + 1
	if len(args) != 2*width {
		t.Fatalf("args=%d", len(args))
	}
	if !strings.Contains(query, "($1,$2,") || !strings.Contains(query, fmt.Sprintf("$%d)", 2*width)) {
		t.Fatalf("query=%s", query)
	}
	if args[0] != "rep-1" || args[1] != "1 Main" || args[3] != 300000.0 || args[2] != nil {
		t.Fatalf("args=%v", args[:width])
	}
}
