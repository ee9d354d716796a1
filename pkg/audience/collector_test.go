package audience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"igaudience/pkg/cache"
	errs "igaudience/pkg/errors"
	"igaudience/pkg/instagram"
	"igaudience/pkg/logger"
	"igaudience/pkg/pool"
)

type fakeScraper struct {
	mu          sync.Mutex
	profile     *instagram.Profile
	profileErr  error
	posts       []instagram.Post
	postsErr    error
	comments    map[string][]instagram.Comment
	commentsErr error
	hashtags    map[string][]instagram.Post
	calls       map[string]int
}

func (f *fakeScraper) count(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[name]++
}

func (f *fakeScraper) Calls(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeScraper) Profile(ctx context.Context, handle string) (*instagram.Profile, error) {
	f.count("profile")
	if f.profileErr != nil {
		return nil, f.profileErr
	}
	if f.profile == nil {
		return nil, errs.New(errs.ErrorTypeNotFound, "profile", "missing")
	}
	return f.profile, nil
}

func (f *fakeScraper) Posts(ctx context.Context, handle string, limit int) ([]instagram.Post, error) {
	f.count("posts")
	if f.postsErr != nil {
		return nil, f.postsErr
	}
	if len(f.posts) > limit {
		return f.posts[:limit], nil
	}
	return f.posts, nil
}

func (f *fakeScraper) Comments(ctx context.Context, shortcode string, limit int) ([]instagram.Comment, error) {
	f.count("comments")
	if f.commentsErr != nil {
		return nil, f.commentsErr
	}
	cs := f.comments[shortcode]
	if len(cs) > limit {
		cs = cs[:limit]
	}
	return cs, nil
}

func (f *fakeScraper) HashtagPosts(ctx context.Context, tag string, limit int) ([]instagram.Post, error) {
	f.count("hashtag:" + tag)
	return f.hashtags[tag], nil
}

// brandScraper models a brand whose comments contain four genuine people
// (ann 67.5, bob 65, cat 57.5, dan 30.5) plus noise that must never pass.
func brandScraper() *fakeScraper {
	return &fakeScraper{
		profile: &instagram.Profile{Username: "nike", FullName: "Nike"},
		posts: []instagram.Post{
			{ShortCode: "P1", Caption: "New drop"},
			{ShortCode: "P2", Caption: "Run club"},
		},
		comments: map[string][]instagram.Comment{
			"P1": {
				{Text: "I love these shoes, amazing quality and so comfortable!", OwnerUsername: "Ann_Runs"},
				{Text: "follow me at www.promo.com", OwnerUsername: "promo12345"},
				{Text: "Where can I buy these in blue?", OwnerUsername: "bob.smith"},
				{Text: "Thanks everyone for the love on this one", OwnerUsername: "Nike"},
				{Text: "nice", OwnerUsername: "ann_runs"},
			},
			"P2": {
				{Text: "These look great on my morning runs", OwnerUsername: "cat"},
				{Text: "Shop the full collection at our boutique today", OwnerUsername: "nike_official_store"},
				{Text: "dm me https://x.co", OwnerUsername: "xx99999"},
				{Text: "this is bad", OwnerUsername: "dan"},
			},
		},
	}
}

func newCollector(s Scraper, c cache.Cache) *Collector {
	return NewCollector(s, c, Settings{MaxPosts: MaxPosts, CommentsPerPost: CommentsPerPost, HashtagPostsPerTag: HashtagPostsPerTag}, logger.NewNopLogger())
}

func TestEffectiveThreshold(t *testing.T) {
	tests := []struct {
		threshold float64
		want      float64
	}{
		{0, ThresholdFloor},
		{28, ThresholdFloor},
		{30, 5},
		{50, 25},
		{100, 75},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, EffectiveThreshold(tt.threshold), "threshold %v", tt.threshold)
	}
}

func TestCollectInvalidArguments(t *testing.T) {
	c := newCollector(brandScraper(), nil)
	tests := []struct {
		name      string
		handle    string
		limit     int
		threshold float64
	}{
		{"empty handle", " @ ", 10, 30},
		{"zero limit", "nike", 0, 30},
		{"negative threshold", "nike", 10, -1},
		{"threshold above 100", "nike", 10, 101},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Collect(context.Background(), tt.handle, tt.limit, tt.threshold)
			assert.True(t, errs.Is(err, errs.ErrorTypeInvalidArgument), "got %v", err)
		})
	}
}

func TestCollectDoesNotPadSmallPool(t *testing.T) {
	scraper := brandScraper()
	scraper.comments["P2"] = scraper.comments["P2"][:3] // drop dan
	c := newCollector(scraper, nil)

	res, err := c.Collect(context.Background(), "nike", 10, 50)
	require.NoError(t, err)

	assert.Equal(t, []string{"ann_runs", "bob.smith", "cat"}, res.Usernames())
	assert.Equal(t, OriginLive, res.Origin)
	assert.Equal(t, []State{StateCollectComments, StateCollectHashtags, StateDone}, res.Stages)
	assert.Equal(t, 25.0, res.EffectiveThreshold)

	ann := res.Candidates[0]
	assert.Equal(t, 67.5, ann.Score, "the higher of ann's two comments wins")
	assert.Equal(t, pool.SourceComment, ann.Source)
	assert.Equal(t, "P1", ann.Detail["post"])
}

func TestCollectSkipsBrandBotsAndBusinesses(t *testing.T) {
	c := newCollector(brandScraper(), nil)

	res, err := c.Collect(context.Background(), "@Nike", 10, 30)
	require.NoError(t, err)

	for _, u := range res.Usernames() {
		assert.NotContains(t, []string{"nike", "promo12345", "xx99999", "nike_official_store"}, u)
	}
	assert.Len(t, res.Candidates, 4)
}

func TestThresholdMonotonicity(t *testing.T) {
	var previous []string
	for i, threshold := range []float64{0, 30, 60, 85, 95, 100} {
		c := newCollector(brandScraper(), nil)
		res, err := c.Collect(context.Background(), "nike", 10, threshold)
		require.NoError(t, err)

		got := res.Usernames()
		if i > 0 {
			assert.Subset(t, previous, got, "threshold %v grew the result", threshold)
		}
		previous = got
	}

	c := newCollector(brandScraper(), nil)
	res, _ := c.Collect(context.Background(), "nike", 10, 85)
	assert.Equal(t, []string{"ann_runs", "bob.smith"}, res.Usernames())
}

func TestCommentScanningStopsAtBudget(t *testing.T) {
	scraper := brandScraper()
	c := newCollector(scraper, nil)

	res, err := c.Collect(context.Background(), "nike", 1, 30)
	require.NoError(t, err)

	assert.Equal(t, 1*CandidateMultiplier, res.CommentsScanned)
	assert.Equal(t, 1, scraper.Calls("comments"), "second post is never fetched")
	assert.Equal(t, []State{StateCollectComments, StateDone}, res.Stages)
	assert.Equal(t, []string{"ann_runs"}, res.Usernames())
}

func TestHashtagStageFillsShortPool(t *testing.T) {
	log := logger.NewTestLogger()
	scraper := &fakeScraper{
		profile:     &instagram.Profile{Username: "nike", FullName: "Nike Running", Biography: "Run with us #justdoit #NikeRunning #go"},
		posts:       []instagram.Post{{ShortCode: "P1"}},
		commentsErr: errors.New("comment scraper down"),
		hashtags: map[string][]instagram.Post{
			"nike": {
				{OwnerUsername: "runner_jo", Caption: "Morning miles #nike"},
				{OwnerUsername: "sneaker_store_official", Caption: "restock"},
				{OwnerUsername: "nike", Caption: "own post"},
			},
			"nikerunning": {{OwnerUsername: "runner_jo", Caption: "tempo day"}},
			"justdoit":    {{OwnerUsername: "jo_lifts", Caption: "grind"}},
		},
	}
	c := NewCollector(scraper, nil, SettingsFromConfig(configDefaults()), log)

	res, err := c.Collect(context.Background(), "nike", 10, 30)
	require.NoError(t, err)

	assert.Equal(t, []string{"nike", "nikerunning", "justdoit", "nikestyle", "nikelife", "nikefan", "lovenike"}, res.HashtagsSearched)
	require.Equal(t, []string{"runner_jo", "jo_lifts"}, res.Usernames())
	assert.Equal(t, 50.0, res.Candidates[0].Score, "caption mention lifts 0.9 relevance to the cap")
	assert.Equal(t, pool.SourceHashtag, res.Candidates[0].Source)
	assert.InDelta(t, 15.0, res.Candidates[1].Score, 1e-9)
	assert.Equal(t, OriginLive, res.Origin)
	assert.True(t, log.HasMessage("Scraper call failed"))
}

func TestHashtagStageStopsOnceLimitReached(t *testing.T) {
	scraper := &fakeScraper{
		profile: &instagram.Profile{Username: "nike"},
		posts:   []instagram.Post{{ShortCode: "P1"}},
		hashtags: map[string][]instagram.Post{
			"nike": {{OwnerUsername: "a1"}, {OwnerUsername: "b2"}},
		},
	}
	c := newCollector(scraper, nil)

	res, err := c.Collect(context.Background(), "nike", 2, 30)
	require.NoError(t, err)
	assert.Equal(t, []string{"nike"}, res.HashtagsSearched)
	assert.Len(t, res.Candidates, 2)
}

func TestEmptyResultIsNotAnError(t *testing.T) {
	mem := cache.NewMemoryCache(cache.Options{Logger: logger.NewNopLogger()})
	scraper := &fakeScraper{postsErr: errors.New("scraper down")}
	c := newCollector(scraper, mem)

	res, err := c.Collect(context.Background(), "nike", 10, 30)
	require.NoError(t, err)

	assert.Empty(t, res.Candidates)
	assert.NotNil(t, res.Candidates)
	assert.Equal(t, OriginEmpty, res.Origin)
	assert.Equal(t, []State{StateCollectComments, StateFallbackCache, StateDone}, res.Stages)
	assert.Equal(t, 0, scraper.Calls("profile"), "no posts skips the hashtag stage")
	assert.Equal(t, 0, mem.Len(), "empty pools are not cached")
}

func TestFreshCacheShortCircuits(t *testing.T) {
	mem := cache.NewMemoryCache(cache.Options{Logger: logger.NewNopLogger()})
	scraper := brandScraper()
	c := newCollector(scraper, mem)

	first, err := c.Collect(context.Background(), "nike", 10, 30)
	require.NoError(t, err)
	require.Equal(t, OriginLive, first.Origin)

	second, err := c.Collect(context.Background(), "nike", 10, 30)
	require.NoError(t, err)
	assert.Equal(t, OriginCache, second.Origin)
	assert.Equal(t, []State{StateDone}, second.Stages)
	assert.Equal(t, first.Usernames(), second.Usernames())
	assert.Equal(t, 1, scraper.Calls("posts"))

	stricter, err := c.Collect(context.Background(), "nike", 10, 85)
	require.NoError(t, err)
	assert.Equal(t, []string{"ann_runs", "bob.smith"}, stricter.Usernames())

	limited, err := c.Collect(context.Background(), "nike", 1, 30)
	require.NoError(t, err)
	assert.Equal(t, []string{"ann_runs"}, limited.Usernames())
	assert.Equal(t, 1, scraper.Calls("posts"))
}

func TestCachedCollectionServesLargerLimit(t *testing.T) {
	ctx := context.Background()
	mem := cache.NewMemoryCache(cache.Options{Logger: logger.NewNopLogger()})
	scraper := brandScraper()
	c := newCollector(scraper, mem)

	small, err := c.Collect(ctx, "nike", 1, 30)
	require.NoError(t, err)
	require.Equal(t, []string{"ann_runs"}, small.Usernames())

	stored, _, ok := cache.Load[record](ctx, mem, CacheKey("nike"))
	require.True(t, ok)
	assert.Len(t, stored.Followers, 2, "the whole pool is cached, not the top entry")

	want, err := newCollector(brandScraper(), nil).Collect(ctx, "nike", 10, 30)
	require.NoError(t, err)
	require.Equal(t, []string{"ann_runs", "bob.smith", "cat", "dan"}, want.Usernames())

	larger, err := c.Collect(ctx, "nike", 10, 30)
	require.NoError(t, err)
	assert.Equal(t, want.Usernames(), larger.Usernames())
	assert.Equal(t, OriginLive, larger.Origin, "one post scanned cannot answer a wider scan")
	assert.Equal(t, 2, scraper.Calls("posts"))

	again, err := c.Collect(ctx, "nike", 10, 30)
	require.NoError(t, err)
	assert.Equal(t, OriginCache, again.Origin)
	assert.Equal(t, want.Usernames(), again.Usernames())
	assert.Equal(t, 2, scraper.Calls("posts"))
}

func TestStricterThresholdSearchesHashtagsWhenCacheFallsShort(t *testing.T) {
	ctx := context.Background()
	withTag := func() *fakeScraper {
		s := brandScraper()
		s.hashtags = map[string][]instagram.Post{
			"nike": {{OwnerUsername: "runner_jo", Caption: "Morning miles #nike"}},
		}
		return s
	}
	mem := cache.NewMemoryCache(cache.Options{Logger: logger.NewNopLogger()})
	scraper := withTag()
	c := newCollector(scraper, mem)

	first, err := c.Collect(ctx, "nike", 4, 30)
	require.NoError(t, err)
	require.Equal(t, []string{"ann_runs", "bob.smith", "cat", "dan"}, first.Usernames())
	require.Equal(t, 0, scraper.Calls("hashtag:nike"), "a full comment pool skips hashtags")

	want, err := newCollector(withTag(), nil).Collect(ctx, "nike", 4, 100)
	require.NoError(t, err)
	require.Equal(t, []string{"runner_jo"}, want.Usernames())

	strict, err := c.Collect(ctx, "nike", 4, 100)
	require.NoError(t, err)
	assert.Equal(t, want.Usernames(), strict.Usernames())
	assert.Equal(t, OriginLive, strict.Origin)
	assert.Equal(t, 1, scraper.Calls("hashtag:nike"))

	relaxed, err := c.Collect(ctx, "nike", 4, 30)
	require.NoError(t, err)
	assert.Equal(t, OriginCache, relaxed.Origin)
	assert.Equal(t, first.Usernames(), relaxed.Usernames())
	assert.Equal(t, 2, scraper.Calls("posts"))
}

func TestFallbackToStaleCache(t *testing.T) {
	clock := clockwork.NewFakeClock()
	mem := cache.NewMemoryCache(cache.Options{TTL: 24 * time.Hour, Clock: clock, Logger: logger.NewNopLogger()})

	live := newCollector(brandScraper(), mem)
	_, err := live.Collect(context.Background(), "nike", 10, 30)
	require.NoError(t, err)
	before, ok := mem.Peek(context.Background(), CacheKey("nike"))
	require.True(t, ok)

	clock.Advance(48 * time.Hour)

	down := newCollector(&fakeScraper{postsErr: errors.New("scraper down")}, mem)
	res, err := down.Collect(context.Background(), "nike", 2, 30)
	require.NoError(t, err)

	assert.Equal(t, OriginFallback, res.Origin)
	assert.Equal(t, []State{StateCollectComments, StateFallbackCache, StateDone}, res.Stages)
	assert.Equal(t, []string{"ann_runs", "bob.smith"}, res.Usernames())
	for _, cand := range res.Candidates {
		assert.Equal(t, pool.SourceCached, cand.Source)
	}

	after, ok := mem.Peek(context.Background(), CacheKey("nike"))
	require.True(t, ok)
	assert.Equal(t, before.Timestamp, after.Timestamp, "fallback results are not written back")
}

func TestPersistedRecordShape(t *testing.T) {
	mem := cache.NewMemoryCache(cache.Options{Logger: logger.NewNopLogger()})
	c := newCollector(brandScraper(), mem)

	_, err := c.Collect(context.Background(), "nike", 10, 30)
	require.NoError(t, err)

	entry, ok := mem.Get(context.Background(), CacheKey("nike"))
	require.True(t, ok)
	assert.Equal(t, "comments", entry.Source)
	assert.Contains(t, string(entry.Data), `"followers"`)
}

func TestHashtagCandidates(t *testing.T) {
	got := HashtagCandidates("adidas", "adidas Originals!", "Impossible is nothing #ThreeStripes #ad #adidas")
	assert.Equal(t, []string{"adidas", "adidasoriginals", "threestripes", "adidasstyle", "adidaslife", "adidasfan", "loveadidas"}, got)

	assert.Equal(t, []string{"hm", "hmstyle", "hmlife", "hmfan", "lovehm"}, HashtagCandidates("hm", "", ""))
	// a two-letter handle scores 0.2 against unrelated tags and only keeps variations
	relevant := RelevantHashtags("hm", "Fashion Brand", "")
	assert.Contains(t, relevant, "hm")
	assert.NotContains(t, relevant, "fashionbrand")
}
