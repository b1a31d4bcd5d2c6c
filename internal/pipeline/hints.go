package pipeline

import (
	"sort"

	"compsheet/internal"
	"compsheet/internal/util"
)

const (
	maxHints      = 3
	minHintScore  = 0.3
	diceWeight    = 0.65
	overlapWeight = 0.35
)

type FieldHint struct {
	Field internal.CanonicalField `json:"field"`
	Score float64                 `json:"score"`
}

// MappingHints ranks canonical fields by similarity to an unrecognized
// header so an editor can offer likely choices. It is advisory only and has
// no effect on SuggestMapping.
func MappingHints(header string) []FieldHint {
	key := util.LooseKey(header)
	if key == "" {
		return nil
	}
	tokens := util.Tokenize(header)

	out := make([]FieldHint, 0, len(foldedSynonyms))
	for _, set := range foldedSynonyms {
		best := 0.0
		for _, phrase := range set.Phrases {
			if score := scorePhrase(key, phrase, tokens); score > best {
				best = score
			}
		}
		if best >= minHintScore {
			out = append(out, FieldHint{Field: set.Field, Score: best})
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > maxHints {
		out = out[:maxHints]
	}
	return out
}

func scorePhrase(key, phrase string, tokens []string) float64 {
	dice := util.DiceCoefficient(key, phrase)
	if len(tokens) == 0 {
		return dice
	}
	overlap := 0
	for _, t := range tokens {
		if util.DiceCoefficient(t, phrase) >= 0.5 {
			overlap++
		}
	}
	tokenScore := float64(overlap) / float64(len(tokens))
	return diceWeight*dice + overlapWeight*tokenScore
}
