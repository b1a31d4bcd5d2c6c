package util

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var (
	reNonWord = regexp.MustCompile(`[^a-z0-9]+`)
	reSpaces  = regexp.MustCompile(`\s+`)
)

// HeaderKey folds a header for matching: trimmed, lowercased, with every
// rune outside [a-z0-9] removed. "Sold Price", "sold_price" and
// "SOLD-PRICE " all become "soldprice". Non-ASCII letters are dropped, not
// transliterated.
func HeaderKey(input string) string {
	s := strings.ToLower(strings.TrimSpace(input))
	out := strings.Builder{}
	out.Grow(len(s))
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			out.WriteRune(r)
		}
	}
	return out.String()
}

// LooseKey is HeaderKey after NFKC compatibility folding, so fullwidth
// letters and ligatures survive as ASCII. Only for similarity scoring.
func LooseKey(input string) string {
	return HeaderKey(norm.NFKC.String(input))
}

// Tokenize splits a header into lowercase alphanumeric words of two or more runes.
func Tokenize(input string) []string {
	s := strings.ToLower(norm.NFKC.String(input))
	parts := reNonWord.Split(s, -1)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if len([]rune(p)) >= 2 {
			out = append(out, p)
		}
	}
	return out
}

func NormalizeSpaces(input string) string {
	return strings.TrimSpace(reSpaces.ReplaceAllString(input, " "))
}

func DiceCoefficient(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}

	pairs := func(s string) []string {
		r := []rune(s)
		if len(r) < 2 {
			return nil
		}
		out := make([]string, 0, len(r)-1)
		for i := 0; i < len(r)-1; i++ {
			out = append(out, string(r[i:i+2]))
		}
		return out
	}

	aPairs := pairs(a)
	bPairs := pairs(b)
	if len(aPairs) == 0 || len(bPairs) == 0 {
		return 0
	}

	bCount := map[string]int{}
	for _, p := range bPairs {
		bCount[p]++
	}
	inter := 0
	for _, p := range aPairs {
		if bCount[p] > 0 {
			inter++
			bCount[p]--
		}
	}

	return float64(2*inter) / float64(len(aPairs)+len(bPairs))
}

func StringPtr(v string) *string { return &v }

func FloatPtr(v float64) *float64 { return &v }
