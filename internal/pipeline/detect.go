package pipeline

import (
	"path/filepath"
	"strings"
)

type DetectResult struct {
	IsComps bool
	Score   float64
	Reason  string
}

var detectKeywords = []string{"comps", "comparable", "cma", "market analysis", "mls", "sold", "closed sales", "price per sq"}

func DetectCompsMessage(subject, text string, attachmentNames []string) DetectResult {
	subject = strings.ToLower(subject)
	text = strings.ToLower(text)

	score := 0.0
	for _, kw := range detectKeywords {
		if strings.Contains(subject, kw) {
			score += 0.2
		}
		if strings.Contains(text, kw) {
			score += 0.1
		}
	}

	score += attachmentScore(attachmentNames)
	if score > 1 {
		score = 1
	}

	isComps := score >= 0.45
	reason := "rules_negative"
	if isComps {
		reason = "rules_positive"
	}

	return DetectResult{IsComps: isComps, Score: score, Reason: reason}
}

func attachmentScore(names []string) float64 {
	best := 0.0
	for _, name := range names {
		v := 0.0
		switch strings.ToLower(filepath.Ext(name)) {
		case ".csv", ".tsv", ".xlsx", ".xlsm":
			v = 0.35
		case ".pdf", ".html", ".htm":
			v = 0.2
		}
		if v > best {
			best = v
		}
	}
	return best
}
