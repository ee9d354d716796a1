package pool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func usernames(cs []Candidate) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.Username
	}
	return out
}

func TestAddNormalizesAndDiscardsEmpty(t *testing.T) {
	p := New()

	assert.True(t, p.Add(Candidate{Username: "  @Jane_Doe ", Score: 10}))
	assert.False(t, p.Add(Candidate{Username: "", Score: 99}))
	assert.False(t, p.Add(Candidate{Username: "   ", Score: 99}))
	assert.False(t, p.Add(Candidate{Username: "@", Score: 99}))

	require.Equal(t, 1, p.Len())
	c, ok := p.Get("JANE_DOE")
	require.True(t, ok)
	assert.Equal(t, "jane_doe", c.Username)
}

func TestDuplicateKeepsHigherScoreInOriginalSlot(t *testing.T) {
	p := New()
	p.Add(Candidate{Username: "a", Score: 10, Source: SourceComment})
	p.Add(Candidate{Username: "b", Score: 20})
	assert.True(t, p.Add(Candidate{Username: "A", Score: 30, Source: SourceHashtag}))
	assert.False(t, p.Add(Candidate{Username: "b", Score: 20}), "equal score does not replace")
	assert.False(t, p.Add(Candidate{Username: "b", Score: 5}))

	items := p.Items()
	assert.Equal(t, []string{"a", "b"}, usernames(items))
	assert.Equal(t, 30.0, items[0].Score)
	assert.Equal(t, SourceHashtag, items[0].Source)
	assert.Equal(t, 20.0, items[1].Score)
}

func TestTopNStableOnTies(t *testing.T) {
	p := FromCandidates([]Candidate{
		{Username: "first", Score: 50},
		{Username: "second", Score: 70},
		{Username: "third", Score: 50},
		{Username: "fourth", Score: 70},
		{Username: "fifth", Score: 10},
	})

	assert.Equal(t, []string{"second", "fourth", "first", "third", "fifth"}, usernames(p.TopN(-1)))
	assert.Equal(t, []string{"second", "fourth", "first"}, usernames(p.TopN(3)))
	assert.Empty(t, p.TopN(0))
	assert.Len(t, p.TopN(100), 5)
	assert.Equal(t, []string{"first", "second", "third", "fourth", "fifth"}, usernames(p.Items()), "TopN does not reorder the pool")
}

func TestBuildFromSource(t *testing.T) {
	type raw struct {
		owner string
		score float64
	}
	items := []raw{{"Ann", 40}, {"bob", 10}, {"ann", 60}, {"", 90}, {"cat", 5}}

	p := BuildFromSource(items, SourceComment, func(r raw) (Candidate, bool) {
		if r.score < 10 {
			return Candidate{}, false
		}
		return Candidate{Username: r.owner, Score: r.score, Source: SourceManual}, true
	})

	require.Equal(t, 2, p.Len())
	ann, _ := p.Get("ann")
	assert.Equal(t, 60.0, ann.Score)
	assert.Equal(t, SourceComment, ann.Source, "source tag overrides the scorer's value")
	_, ok := p.Get("cat")
	assert.False(t, ok)
}

func TestMergeDeduplicatesToMaximum(t *testing.T) {
	comments := FromCandidates([]Candidate{
		{Username: "ann", Score: 40, Source: SourceComment},
		{Username: "bob", Score: 80, Source: SourceComment},
	})
	hashtags := FromCandidates([]Candidate{
		{Username: "bob", Score: 45, Source: SourceHashtag},
		{Username: "ann", Score: 47.5, Source: SourceHashtag},
		{Username: "dee", Score: 35, Source: SourceHashtag},
	})

	merged := Merge(comments, hashtags)

	require.Equal(t, 3, merged.Len())
	assert.Equal(t, []string{"ann", "bob", "dee"}, usernames(merged.Items()))
	ann, _ := merged.Get("ann")
	assert.Equal(t, 47.5, ann.Score)
	assert.Equal(t, SourceHashtag, ann.Source)
	bob, _ := merged.Get("bob")
	assert.Equal(t, 80.0, bob.Score)

	assert.Equal(t, 2, comments.Len(), "inputs are not modified")
}

func TestMergeWithNil(t *testing.T) {
	p := FromCandidates([]Candidate{{Username: "ann", Score: 1}})
	assert.Equal(t, 1, Merge(p, nil).Len())
	assert.Equal(t, 1, Merge(nil, p).Len())
	assert.Equal(t, 0, Merge(nil, nil).Len())
}

func TestNilPoolReads(t *testing.T) {
	var p *Pool
	assert.Equal(t, 0, p.Len())
	assert.Nil(t, p.Items())
	_, ok := p.Get("ann")
	assert.False(t, ok)
	assert.Empty(t, p.TopN(3))
}

func TestTruncateAndRetag(t *testing.T) {
	p := FromCandidates([]Candidate{
		{Username: "low", Score: 1, Source: SourceComment},
		{Username: "high", Score: 9, Source: SourceComment},
		{Username: "mid", Score: 5, Source: SourceHashtag},
	})

	top := p.Truncate(2)
	assert.Equal(t, []string{"high", "mid"}, usernames(top.Items()))

	cached := top.Retag(SourceCached)
	for _, c := range cached.Items() {
		assert.Equal(t, SourceCached, c.Source)
	}
	h, _ := top.Get("high")
	assert.Equal(t, SourceComment, h.Source, "retag copies")
}
