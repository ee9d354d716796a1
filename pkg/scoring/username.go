package scoring

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Label is the category assigned to an account
type Label string

const (
	LabelPerson   Label = "likely_person"
	LabelBusiness Label = "likely_business"
	LabelBot      Label = "likely_bot"
)

// Username quality tiers
const (
	QualityHigh   = "high"
	QualityMedium = "medium"
	QualityLow    = "low"
)

var (
	businessWords  = []string{"shop", "store", "official", "boutique", "brand"}
	businessMarker = []string{".co", "_co", "llc", "inc"}
	botPhrases     = []string{"f4f", "l4l", "followme", "follow4follow", "getfollowers"}
)

// Classification is the result of ClassifyUsername
type Classification struct {
	Label              Label  `json:"label"`
	Quality            string `json:"quality"`
	BusinessIndicators int    `json:"business_indicators"`
	BotIndicators      int    `json:"bot_indicators"`
}

// Excluded reports whether the account should be left out of person results
func (c Classification) Excluded() bool {
	return c.Label != LabelPerson
}

// ClassifyUsername sorts a username into business, bot or person using
// keyword checklists. Business is checked first; anything that is neither
// defaults to person.
func ClassifyUsername(username string) Classification {
	u := strings.ToLower(strings.TrimSpace(username))

	// Every matched word and marker counts on its own rather than once per
	// list, so two business words ("shopstore") already reach the cutoff and
	// nike_official_store scores 2 without a corporate suffix.
	business := countContained(u, businessWords) + countContained(u, businessMarker)
	if business >= 2 {
		return Classification{Label: LabelBusiness, Quality: QualityLow, BusinessIndicators: business}
	}

	underscores := strings.Count(u, "_")
	bot := countContained(u, botPhrases)
	if utf8.RuneCountInString(u) > 30 || underscores > 3 {
		bot++
	}
	if bot >= 2 {
		return Classification{Label: LabelBot, Quality: QualityLow, BusinessIndicators: business, BotIndicators: bot}
	}

	quality := QualityMedium
	if utf8.RuneCountInString(u) < 20 && underscores <= 1 && !endsInDigit(u) {
		quality = QualityHigh
	}
	return Classification{Label: LabelPerson, Quality: quality, BusinessIndicators: business, BotIndicators: bot}
}

func countContained(s string, words []string) int {
	n := 0
	for _, w := range words {
		if strings.Contains(s, w) {
			n++
		}
	}
	return n
}

func endsInDigit(s string) bool {
	r, _ := utf8.DecodeLastRuneInString(s)
	return r != utf8.RuneError && unicode.IsDigit(r)
}
