package audience

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"igaudience/pkg/scoring"
)

// minBioTagLength is the shortest bio hashtag worth searching
const minBioTagLength = 4

var (
	bioTag = regexp.MustCompile(`#([\p{L}\p{N}_]+)`)

	// tagPatterns turn a handle into hashtags fans commonly use
	tagPatterns = []string{"%sstyle", "%slife", "%sfan", "love%s"}
)

// HashtagCandidates lists the hashtags derived from a brand in search order:
// the handle, the normalized display name, bio hashtags, then the fixed
// handle patterns. Duplicates are dropped.
func HashtagCandidates(handle, displayName, bio string) []string {
	handle = strings.ToLower(strings.TrimSpace(handle))
	var out []string
	seen := make(map[string]bool)
	add := func(tag string) {
		tag = strings.ToLower(strings.TrimPrefix(tag, "#"))
		if tag == "" || seen[tag] {
			return
		}
		seen[tag] = true
		out = append(out, tag)
	}

	add(handle)
	add(normalizeName(displayName))
	for _, m := range bioTag.FindAllStringSubmatch(bio, -1) {
		if utf8.RuneCountInString(m[1]) >= minBioTagLength {
			add(m[1])
		}
	}
	if handle != "" {
		for _, p := range tagPatterns {
			add(strings.Replace(p, "%s", handle, 1))
		}
	}
	return out
}

// RelevantHashtags filters HashtagCandidates to tags scoring at least
// HashtagRelevanceFloor against the handle. The handle itself always stays.
func RelevantHashtags(handle, displayName, bio string) []string {
	handle = strings.ToLower(strings.TrimSpace(handle))
	var out []string
	for _, tag := range HashtagCandidates(handle, displayName, bio) {
		if tag == handle || scoring.ScoreHashtagRelevance(handle, tag) >= HashtagRelevanceFloor {
			out = append(out, tag)
		}
	}
	return out
}

// normalizeName lowercases a display name and keeps letters and digits only
func normalizeName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
