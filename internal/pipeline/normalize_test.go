package pipeline

import (
	"reflect"
	"testing"

	"compsheet/internal"
)

func TestNormalizeRowCoercion(t *testing.T) {
	m := internal.HeaderMapping{
		{Header: "Address", Field: internal.FieldAddress},
		{Header: "Sold", Field: internal.FieldSoldPrice},
		{Header: "List", Field: internal.FieldListPrice},
		{Header: "Beds", Field: internal.FieldBeds},
		{Header: "SqFt", Field: internal.FieldSqft},
		{Header: "Notes", Field: ""},
	}
	row := map[string]any{
		"Address": "12 Elm St",
		"Sold":    "$425,000",
		"List":    "",
		"Beds":    "abc",
		"SqFt":    1800,
		"Notes":   "corner lot",
	}

	comp := NormalizeRow(row, m)
	if comp.Address == nil || *comp.Address != "12 Elm St" {
		t.Fatalf("address=%v", comp.Address)
	}
	if comp.SoldPrice == nil || *comp.SoldPrice != 425000 {
		t.Fatalf("sold=%v", comp.SoldPrice)
	}
	if comp.ListPrice != nil {
		t.Fatalf("list=%v", *comp.ListPrice)
	}
	if comp.Beds != nil {
		t.Fatalf("beds=%v", *comp.Beds)
	}
	if comp.Sqft == nil || *comp.Sqft != 1800 {
		t.Fatalf("sqft=%v", comp.Sqft)
	}
	if comp.DOM != nil || comp.Status != nil {
		t.Fatalf("unmapped fields should stay nil: %+v", comp)
	}
}

func TestNormalizeRowMissingAndUnknown(t *testing.T) {
	m := internal.HeaderMapping{
		{Header: "Address", Field: internal.FieldAddress},
		{Header: "Price", Field: internal.CanonicalField("price_usd")},
		{Header: "Gone", Field: internal.FieldDOM},
	}
	comp := NormalizeRow(map[string]any{"Address": "1 Main", "Price": "100"}, m)
	if comp.DOM != nil {
		t.Fatalf("missing cell should be nil")
	}
	if comp.SoldPrice != nil || comp.ListPrice != nil {
		t.Fatalf("unknown field leaked: %+v", comp)
	}
}

func TestNormalizeRowLastWriteWins(t *testing.T) {
	m := internal.HeaderMapping{
		{Header: "Sale Price", Field: internal.FieldSoldPrice},
		{Header: "Close Price", Field: internal.FieldSoldPrice},
	}
	comp := NormalizeRow(map[string]any{"Sale Price": "100", "Close Price": "200"}, m)
	if comp.SoldPrice == nil || *comp.SoldPrice != 200 {
		t.Fatalf("sold=%v", comp.SoldPrice)
	}

	comp = NormalizeRow(map[string]any{"Sale Price": "100", "Close Price": ""}, m)
	if comp.SoldPrice != nil {
		t.Fatalf("later empty cell should overwrite, got %v", *comp.SoldPrice)
	}
}

func TestNormalizeRowTextKinds(t *testing.T) {
	m := internal.HeaderMapping{
		{Header: "Address", Field: internal.FieldAddress},
		{Header: "Status", Field: internal.FieldStatus},
	}
	comp := NormalizeRow(map[string]any{"Address": 1200.0, "Status": ""}, m)
	if comp.Address == nil || *comp.Address != "1200" {
		t.Fatalf("address=%v", comp.Address)
	}
	if comp.Status == nil || *comp.Status != "" {
		t.Fatalf("empty text should be kept as-is, got %v", comp.Status)
	}
}

func TestNormalizeRowIdentityIdempotent(t *testing.T) {
	m := internal.HeaderMapping{
		{Header: "Address", Field: internal.FieldAddress},
		{Header: "Sold", Field: internal.FieldSoldPrice},
		{Header: "SqFt", Field: internal.FieldSqft},
		{Header: "Status", Field: internal.FieldStatus},
		{Header: "Miles", Field: internal.FieldDistanceMi},
	}
	first := NormalizeRow(map[string]any{"Address": "9 Oak Ave", "Sold": "$310,500", "SqFt": " 1,450 ", "Status": "Sold", "Miles": "0.4"}, m)
	second := NormalizeRow(first.Row(), internal.IdentityMapping())
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("first=%+v second=%+v", first, second)
	}
}

func TestValidCompsDropsMissingAddress(t *testing.T) {
	price, sqft := 300000.0, 1500.0
	empty := ""
	addr := "5 Pine Rd"
	comps := []internal.Comp{
		{Address: &addr, SoldPrice: &price, Sqft: &sqft},
		{Address: &empty, SoldPrice: &price, Sqft: &sqft},
		{SoldPrice: &price, Sqft: &sqft},
	}
	kept, dropped := ValidComps(comps)
	if len(kept) != 1 || dropped != 2 {
		t.Fatalf("kept=%d dropped=%d", len(kept), dropped)
	}
	if *kept[0].Address != addr {
		t.Fatalf("kept wrong comp: %+v", kept[0])
	}
}
