package util

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

var moneyReplacer = strings.NewReplacer("$", "", ",", "")

// ToNumber coerces a raw cell into a number. Empty, unparsable and
// non-finite input yields nil; it never fails.
func ToNumber(v any) *float64 {
	switch t := v.(type) {
	case nil:
		return nil
	case float64:
		return finite(t)
	case float32:
		return finite(float64(t))
	case int:
		return FloatPtr(float64(t))
	case int8:
		return FloatPtr(float64(t))
	case int16:
		return FloatPtr(float64(t))
	case int32:
		return FloatPtr(float64(t))
	case int64:
		return FloatPtr(float64(t))
	case uint:
		return FloatPtr(float64(t))
	case uint8:
		return FloatPtr(float64(t))
	case uint16:
		return FloatPtr(float64(t))
	case uint32:
		return FloatPtr(float64(t))
	case uint64:
		return FloatPtr(float64(t))
	case json.Number:
		return ParseMoney(t.String())
	case string:
		return ParseMoney(t)
	case *string:
		if t == nil {
			return nil
		}
		return ParseMoney(*t)
	case *float64:
		if t == nil {
			return nil
		}
		return finite(*t)
	default:
		return nil
	}
}

// ParseMoney strips "$" and thousands commas, trims, and parses a decimal.
// "$425,000" -> 425000, " 1,800 " -> 1800, "" and "abc" -> nil.
func ParseMoney(input string) *float64 {
	s := strings.TrimSpace(moneyReplacer.Replace(input))
	if s == "" {
		return nil
	}
	parsed, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return finite(parsed)
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return FloatPtr(v)
}
