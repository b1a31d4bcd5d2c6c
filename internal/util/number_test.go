package util

import (
	"encoding/json"
	"math"
	"testing"
)

func TestToNumber(t *testing.T) {
	cases := []struct {
		name  string
		input any
		want  float64
	}{
		{name: "currency with thousands", input: "$425,000", want: 425000},
		{name: "plain digits", input: "425000", want: 425000},
		{name: "padded thousands", input: " 1,800 ", want: 1800},
		{name: "decimal", input: "2.5", want: 2.5},
		{name: "already float", input: 1800.0, want: 1800},
		{name: "already int", input: 1800, want: 1800},
		{name: "int64", input: int64(42), want: 42},
		{name: "json number", input: json.Number("12.75"), want: 12.75},
		{name: "dollar only prefix", input: "$ 300", want: 300},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ToNumber(tc.input)
			if got == nil {
				t.Fatalf("number is nil")
			}
			if *got != tc.want {
				t.Fatalf("got %v want %v", *got, tc.want)
			}
		})
	}
}

func TestToNumberNil(t *testing.T) {
	inputs := []any{nil, "", "   ", "abc", "$", "12abc", "NaN", "Infinity", math.Inf(1), math.NaN(), true, []string{"1"}}
	for _, in := range inputs {
		if got := ToNumber(in); got != nil {
			t.Fatalf("ToNumber(%#v)=%v want nil", in, *got)
		}
	}
}

func TestHeaderKey(t *testing.T) {
	cases := map[string]string{
		"Sold Price":   "soldprice",
		"sold_price":   "soldprice",
		"SOLD-PRICE ":  "soldprice",
		"  Sq. Ft.  ":  "sqft",
		"DOM (days)":   "domdays",
		"Ｓｏｌｄ Ｐｒｉｃｅ": "soldprice",
		"#":            "",
	}
	for in, want := range cases {
		if got := HeaderKey(in); got != want {
			t.Fatalf("HeaderKey(%q)=%q want %q", in, got, want)
		}
	}
}

func TestDiceCoefficient(t *testing.T) {
	if DiceCoefficient("night", "nacht") != 0.25 {
		t.Fatalf("dice=%v", DiceCoefficient("night", "nacht"))
	}
	if DiceCoefficient("", "abc") != 0 {
		t.Fatalf("empty should be 0")
	}
	if DiceCoefficient("abc", "abc") != 1 {
		t.Fatalf("identical should be 1")
	}
}
