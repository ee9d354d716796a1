package scoring

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Sentiment of a comment
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
)

// BotThreshold is the bot likelihood a comment must exceed to count as a bot
const BotThreshold = 0.4

var (
	spamPhrases = []string{
		"follow me", "dm me", "check my profile", "f4f", "l4l", "free followers",
		"check out my page", "link in bio", "follow back",
	}

	genericComments = map[string]bool{
		"nice": true, "wow": true, "cool": true, "ok": true, "lol": true, "omg": true,
		"yes": true, "yay": true, "love": true, "hi": true, "hey": true,
		"🔥": true, "❤️": true, "❤": true, "😍": true, "👍": true, "👏": true, "💯": true,
	}

	linkMarkers = []string{"http://", "https://", "www."}

	positiveWords = []string{
		"love", "great", "amazing", "awesome", "beautiful", "perfect", "excellent", "best",
		"nice", "gorgeous", "fantastic", "wonderful", "happy", "cute",
	}

	negativeWords = []string{
		"bad", "worst", "terrible", "ugly", "hate", "disappointing", "poor", "awful",
		"horrible", "scam", "fake", "broken",
	}

	// letters followed by a long digit run, or a name ending in four digits
	generatedUsername = regexp.MustCompile(`^[a-z]+[0-9]{4,}|[0-9]{4,}$`)
)

// Comment is the scorer's view of a scraped comment
type Comment struct {
	Text  string
	Owner string
}

// ScoredComment carries the derived signals of a comment
type ScoredComment struct {
	Text          string    `json:"text"`
	Owner         string    `json:"owner_username"`
	IsBot         bool      `json:"is_bot"`
	BotLikelihood float64   `json:"bot_likelihood"`
	Sentiment     Sentiment `json:"sentiment"`
	QualityScore  float64   `json:"quality_score"`
}

// ScoreComment rates a comment's value as evidence of a real, engaged person.
// It is pure: the same input always yields the same result.
func ScoreComment(c Comment) ScoredComment {
	out := ScoredComment{Text: c.Text, Owner: c.Owner, Sentiment: SentimentNeutral}
	if strings.TrimSpace(c.Text) == "" || strings.TrimSpace(c.Owner) == "" {
		out.IsBot = true
		out.BotLikelihood = 1
		return out
	}

	lower := strings.ToLower(c.Text)
	signals := []bool{
		containsAny(lower, spamPhrases),
		nonASCIIFraction(c.Text) > 0.5,
		isGenericShort(lower),
		generatedUsername.MatchString(strings.ToLower(c.Owner)),
		containsAny(lower, linkMarkers),
	}
	hits := 0
	for _, s := range signals {
		if s {
			hits++
		}
	}
	out.BotLikelihood = float64(hits) / float64(len(signals))
	out.IsBot = out.BotLikelihood > BotThreshold
	out.Sentiment = sentimentOf(lower)

	length := float64(utf8.RuneCountInString(c.Text)) / 2
	if length > 40 {
		length = 40
	}
	score := length
	if !out.IsBot {
		score += 25
	}
	if out.Sentiment != SentimentNegative {
		score += 15
	}
	if strings.Contains(c.Text, "?") {
		score += 10
	}
	if score > 100 {
		score = 100
	}
	out.QualityScore = score
	return out
}

// SentimentOf classifies free text by counting fixed positive and negative words
func SentimentOf(text string) Sentiment {
	return sentimentOf(strings.ToLower(text))
}

func sentimentOf(lower string) Sentiment {
	pos, neg := 0, 0
	for _, w := range positiveWords {
		pos += strings.Count(lower, w)
	}
	for _, w := range negativeWords {
		neg += strings.Count(lower, w)
	}
	switch {
	case pos > neg:
		return SentimentPositive
	case neg > pos:
		return SentimentNegative
	default:
		return SentimentNeutral
	}
}

func isGenericShort(lower string) bool {
	t := strings.TrimSpace(lower)
	return utf8.RuneCountInString(t) < 5 && genericComments[t]
}

func nonASCIIFraction(s string) float64 {
	total, high := 0, 0
	for _, r := range s {
		total++
		if r > 127 {
			high++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(high) / float64(total)
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
