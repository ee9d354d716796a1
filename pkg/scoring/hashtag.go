package scoring

import (
	"strings"
	"unicode"
)

// Relevance values returned by ScoreHashtagRelevance. Downstream filters
// are calibrated against these exact numbers.
const (
	RelevanceExact     = 0.9
	RelevanceVariation = 0.7
	RelevancePrefix    = 0.4
	RelevanceShortName = 0.2
	RelevanceDefault   = 0.3
)

// ScoreHashtagRelevance estimates how strongly a hashtag refers to a brand.
// Rules are evaluated in order and the first match wins.
func ScoreHashtagRelevance(brand, hashtag string) float64 {
	b := strings.ToLower(strings.TrimSpace(brand))
	h := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(hashtag), "#"))
	if b == "" || h == "" {
		return 0
	}

	if crossContains(b, h) {
		return RelevanceExact
	}

	for _, v := range []string{b + "s", keep(b, isAlnum), keep(b, unicode.IsLetter)} {
		if v != "" && crossContains(v, h) {
			return RelevanceVariation
		}
	}

	br, hr := []rune(b), []rune(h)
	if len(br) >= 4 && len(hr) >= 4 {
		if strings.Contains(h, string(br[:4])) || strings.Contains(b, string(hr[:4])) {
			return RelevancePrefix
		}
	}

	if len(br) < 4 {
		return RelevanceShortName
	}
	return RelevanceDefault
}

func crossContains(a, b string) bool {
	return strings.Contains(a, b) || strings.Contains(b, a)
}

func isAlnum(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

func keep(s string, pred func(rune) bool) string {
	var sb strings.Builder
	for _, r := range s {
		if pred(r) {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
