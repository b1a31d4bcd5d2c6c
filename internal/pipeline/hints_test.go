package pipeline

import (
	"testing"

	"compsheet/internal"
)

func TestMappingHints(t *testing.T) {
	hints := MappingHints("Bedrms Ttl")
	if len(hints) == 0 {
		t.Fatal("no hints")
	}
	if hints[0].Field != internal.FieldBeds {
		t.Fatalf("top hint=%+v", hints[0])
	}
	if len(hints) > maxHints {
		t.Fatalf("len=%d", len(hints))
	}
	for i := 1; i < len(hints); i++ {
		if hints[i].Score > hints[i-1].Score {
			t.Fatalf("hints not sorted: %+v", hints)
		}
	}
}

func TestMappingHintsEmpty(t *testing.T) {
	if hints := MappingHints("  ## "); hints != nil {
		t.Fatalf("hints=%+v", hints)
	}
}

func TestMappingHintsDoNotAffectSuggestion(t *testing.T) {
	header := "Yr Blt"
	before := MatchHeader(header)
	_ = MappingHints(header)
	if after := MatchHeader(header); after != before {
		t.Fatalf("before=%q after=%q", before, after)
	}
}
