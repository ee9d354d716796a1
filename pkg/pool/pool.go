// Package pool deduplicates and ranks scored audience candidates.
package pool

import (
	"sort"
	"strings"

	"igaudience/pkg/scoring"
)

// Source tags where a candidate was found
type Source string

const (
	SourceComment Source = "comment"
	SourceHashtag Source = "hashtag"
	SourceCached  Source = "cached"
	SourceManual  Source = "manual"
)

// Candidate is one account under evaluation
type Candidate struct {
	Username string                 `json:"username"`
	Source   Source                 `json:"source"`
	Score    float64                `json:"score"`
	Label    scoring.Label          `json:"label"`
	Quality  string                 `json:"quality,omitempty"`
	Detail   map[string]interface{} `json:"detail,omitempty"`
}

// NormalizeKey lowercases and trims a username; it returns "" for unusable input
func NormalizeKey(username string) string {
	return strings.ToLower(strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(username), "@")))
}

// Pool holds at most one candidate per username in first-seen order. When a
// username repeats, the strictly higher score replaces the earlier entry but
// keeps its position, so ties resolve to the first arrival.
type Pool struct {
	index map[string]int
	items []Candidate
}

// New creates an empty pool
func New() *Pool {
	return &Pool{index: make(map[string]int)}
}

// FromCandidates builds a pool from already scored candidates
func FromCandidates(cs []Candidate) *Pool {
	p := New()
	for _, c := range cs {
		p.Add(c)
	}
	return p
}

// Add inserts c, returning false when it was discarded or lost to an existing entry
func (p *Pool) Add(c Candidate) bool {
	key := NormalizeKey(c.Username)
	if key == "" {
		return false
	}
	c.Username = key

	if i, ok := p.index[key]; ok {
		if c.Score > p.items[i].Score {
			p.items[i] = c
			return true
		}
		return false
	}
	p.index[key] = len(p.items)
	p.items = append(p.items, c)
	return true
}

// Len returns the number of distinct candidates
func (p *Pool) Len() int {
	if p == nil {
		return 0
	}
	return len(p.items)
}

// Get looks a candidate up by username
func (p *Pool) Get(username string) (Candidate, bool) {
	if p == nil {
		return Candidate{}, false
	}
	i, ok := p.index[NormalizeKey(username)]
	if !ok {
		return Candidate{}, false
	}
	return p.items[i], true
}

// Items returns the candidates in insertion order
func (p *Pool) Items() []Candidate {
	if p == nil {
		return nil
	}
	out := make([]Candidate, len(p.items))
	copy(out, p.items)
	return out
}

// TopN returns up to n candidates by descending score. Equal scores keep
// insertion order. A negative n returns every candidate.
func (p *Pool) TopN(n int) []Candidate {
	out := p.Items()
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if n >= 0 && n < len(out) {
		out = out[:n]
	}
	return out
}

// Truncate returns a new pool holding the top n candidates in ranked order
func (p *Pool) Truncate(n int) *Pool {
	return FromCandidates(p.TopN(n))
}

// Retag returns a copy with every candidate's source replaced
func (p *Pool) Retag(source Source) *Pool {
	out := New()
	for _, c := range p.Items() {
		c.Source = source
		out.Add(c)
	}
	return out
}

// BuildFromSource scores raw items into a pool tagged with source. score
// returns false for items that should not enter the pool at all.
func BuildFromSource[T any](items []T, source Source, score func(T) (Candidate, bool)) *Pool {
	p := New()
	for _, item := range items {
		c, ok := score(item)
		if !ok {
			continue
		}
		c.Source = source
		p.Add(c)
	}
	return p
}

// Merge combines pools under the same higher-score-wins rule. Entries of a
// come first in the result order.
func Merge(a, b *Pool) *Pool {
	out := New()
	for _, c := range a.Items() {
		out.Add(c)
	}
	for _, c := range b.Items() {
		out.Add(c)
	}
	return out
}
