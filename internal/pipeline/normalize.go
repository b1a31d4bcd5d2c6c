package pipeline

import (
	"fmt"
	"strconv"

	"compsheet/internal"
	"compsheet/internal/util"
)

// NormalizeRow builds a comp from one raw row. Entries are applied in
// mapping order, so a later header mapped to the same field wins. Unknown
// field names are skipped.
func NormalizeRow(row map[string]any, m internal.HeaderMapping) internal.Comp {
	var comp internal.Comp
	for _, entry := range m {
		if !entry.Field.Valid() {
			continue
		}
		value := row[entry.Header]
		if entry.Field.Kind() == internal.KindNumeric {
			comp.SetNumber(entry.Field, util.ToNumber(value))
			continue
		}
		comp.SetText(entry.Field, toText(value))
	}
	return comp
}

func NormalizeRows(rows []map[string]any, m internal.HeaderMapping) []internal.Comp {
	out := make([]internal.Comp, 0, len(rows))
	for _, row := range rows {
		out = append(out, NormalizeRow(row, m))
	}
	return out
}

func ValidComps(comps []internal.Comp) ([]internal.Comp, int) {
	out := make([]internal.Comp, 0, len(comps))
	for _, c := range comps {
		if c.HasAddress() {
			out = append(out, c)
		}
	}
	return out, len(comps) - len(out)
}

func toText(v any) *string {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		return util.StringPtr(t)
	case *string:
		if t == nil {
			return nil
		}
		return util.StringPtr(*t)
	case float64:
		return util.StringPtr(strconv.FormatFloat(t, 'f', -1, 64))
	case int:
		return util.StringPtr(strconv.Itoa(t))
	case int64:
		return util.StringPtr(strconv.FormatInt(t, 10))
	default:
		return util.StringPtr(fmt.Sprint(t))
	}
}
