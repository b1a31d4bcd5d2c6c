package pipeline

import (
	"fmt"
	"strings"

	"compsheet/internal"
)

type CompResult struct {
	Mapping internal.HeaderMapping
	Comps   []internal.Comp
	Dropped int
	Stats   internal.MarketStats
}

func ValidateTable(t internal.Table) error {
	if len(t.Rows) == 0 {
		return fmt.Errorf("%s: %w", tableLabel(t), ErrEmptyTable)
	}
	for _, h := range t.Headers {
		if strings.TrimSpace(h) != "" {
			return nil
		}
	}
	return fmt.Errorf("%s: %w", tableLabel(t), ErrNoHeaders)
}

func BuildComps(t internal.Table) (CompResult, error) {
	if err := ValidateTable(t); err != nil {
		return CompResult{}, err
	}
	return buildComps(t, SuggestMapping(t.Headers)), nil
}

// BuildCompsWithMapping runs the pipeline with a caller-supplied mapping,
// used as given.
func BuildCompsWithMapping(t internal.Table, m internal.HeaderMapping) (CompResult, error) {
	if err := ValidateTable(t); err != nil {
		return CompResult{}, err
	}
	if len(m) == 0 {
		return CompResult{}, fmt.Errorf("%s: %w", tableLabel(t), ErrMappingEmpty)
	}
	return buildComps(t, m), nil
}

func buildComps(t internal.Table, m internal.HeaderMapping) CompResult {
	comps, dropped := ValidComps(NormalizeRows(t.Rows, m))
	return CompResult{
		Mapping: m,
		Comps:   comps,
		Dropped: dropped,
		Stats:   ComputeStats(comps),
	}
}

func tableLabel(t internal.Table) string {
	name := t.Name
	if name == "" {
		name = "table"
	}
	if t.Sheet != "" {
		return fmt.Sprintf("%s (sheet %s)", name, t.Sheet)
	}
	return name
}
