package pipeline

import (
	"strings"

	"compsheet/internal"
	"compsheet/internal/util"
)

// SuggestMapping proposes a canonical field for every header, in header
// order. Two headers may land on the same field; nothing is deduplicated.
func SuggestMapping(headers []string) internal.HeaderMapping {
	out := make(internal.HeaderMapping, 0, len(headers))
	for _, h := range headers {
		out = append(out, internal.MappingEntry{Header: h, Field: MatchHeader(h)})
	}
	return out
}

// MatchHeader returns the canonical field for a single header, or "" when
// neither the synonym table nor the fallback chain recognizes it.
func MatchHeader(header string) internal.CanonicalField {
	key := util.HeaderKey(header)
	if key == "" {
		return ""
	}
	for _, set := range foldedSynonyms {
		for _, phrase := range set.Phrases {
			if strings.Contains(key, phrase) {
				return set.Field
			}
		}
	}
	for _, rule := range fallbacks {
		if rule.matches(key) {
			return rule.Field
		}
	}
	return ""
}

func (r fallbackRule) matches(key string) bool {
	for _, kw := range r.All {
		if !strings.Contains(key, kw) {
			return false
		}
	}
	for _, kw := range r.None {
		if strings.Contains(key, kw) {
			return false
		}
	}
	if len(r.Any) == 0 {
		return len(r.All) > 0
	}
	for _, kw := range r.Any {
		if strings.Contains(key, kw) {
			return true
		}
	}
	return false
}
