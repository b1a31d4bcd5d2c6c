package pipeline

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"compsheet/internal"
)

func TestMappingFileRoundTrip(t *testing.T) {
	mf := MappingFile{
		Source:  "comps.csv",
		Mapping: SuggestMapping([]string{"Address", "Sold Price", "Notes", "SqFt"}),
	}
	for _, name := range []string{"mapping.yaml", "mapping.json"} {
		path := filepath.Join(t.TempDir(), name)
		if err := SaveMappingFile(path, mf); err != nil {
			t.Fatal(err)
		}
		got, err := LoadMappingFile(path)
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(got, mf) {
			t.Fatalf("%s: got=%+v want=%+v", name, got, mf)
		}
	}
}

func TestLoadMappingFileYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "edited.yml")
	doc := "mapping:\n  - header: Close $\n    field: sold_price\n  - header: Remarks\n    field: \"\"\n"
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	mf, err := LoadMappingFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(mf.Mapping) != 2 || mf.Mapping[0].Header != "Close $" || mf.Mapping[0].Field != internal.FieldSoldPrice {
		t.Fatalf("mapping=%+v", mf.Mapping)
	}
	if mf.Mapping.MappedCount() != 1 {
		t.Fatalf("mapped=%d", mf.Mapping.MappedCount())
	}
}

func TestLoadMappingFileRejects(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"empty.json": `{"mapping": []}`,
		"bad.yaml":   "mapping: [",
		"map.toml":   "x = 1",
	}
	for name, doc := range cases {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadMappingFile(path); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
	_, err := LoadMappingFile(filepath.Join(dir, "empty.json"))
	if !errors.Is(err, ErrMappingEmpty) {
		t.Fatalf("err=%v", err)
	}
}

func TestLoadMappingFileUnknownFieldIsUnmapped(t *testing.T) {
	path := filepath.Join(t.TempDir(), "edited.json")
	doc := `{"mapping":[{"header":"Address","field":"address"},{"header":"Price","field":"price_usd","note":"x"}],"editor":"v2"}`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	mf, err := LoadMappingFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(mf.Mapping) != 2 || mf.Mapping.MappedCount() != 1 {
		t.Fatalf("mapping=%+v", mf.Mapping)
	}
	unknown := mf.UnknownEntries()
	if len(unknown) != 1 || unknown[0].Header != "Price" {
		t.Fatalf("unknown=%+v", unknown)
	}

	table := internal.Table{
		Name:    "comps.csv",
		Headers: []string{"Address", "Price"},
		Rows:    []map[string]any{{"Address": "1 Main", "Price": "$300,000"}},
	}
	res, err := BuildCompsWithMapping(table, mf.Mapping)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Comps) != 1 || res.Comps[0].SoldPrice != nil || res.Comps[0].ListPrice != nil {
		t.Fatalf("comps=%+v", res.Comps)
	}
}
