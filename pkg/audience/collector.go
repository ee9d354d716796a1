package audience

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"igaudience/pkg/cache"
	"igaudience/pkg/config"
	errs "igaudience/pkg/errors"
	"igaudience/pkg/instagram"
	"igaudience/pkg/logger"
	"igaudience/pkg/metrics"
	"igaudience/pkg/pool"
	"igaudience/pkg/scoring"
)

// Collection constants. The collector deliberately filters comments against
// a threshold lower than the caller's: it casts a wide net and leaves the
// nominal threshold to later ICP analysis.
const (
	// ThresholdOffset is subtracted from the caller's quality threshold
	ThresholdOffset = 25.0
	// ThresholdFloor is the lowest effective threshold
	ThresholdFloor = 5.0
	// CandidateMultiplier bounds comment scanning at limit*CandidateMultiplier
	CandidateMultiplier = 3
	MaxPosts            = 5
	CommentsPerPost     = 50
	HashtagPostsPerTag  = 10

	// HashtagRelevanceFloor is the minimum relevance for a hashtag to be searched
	HashtagRelevanceFloor = 0.3
	// CaptionMentionBonus is added when a hashtag post's caption names the brand
	CaptionMentionBonus = 0.1
	// HashtagScoreScale maps relevance in [0,1] onto the candidate score range
	HashtagScoreScale = 50.0
)

// State is a collector stage
type State string

const (
	StateCollectComments State = "COLLECT_COMMENTS"
	StateCollectHashtags State = "COLLECT_HASHTAGS"
	StateFallbackCache   State = "FALLBACK_CACHE"
	StateDone            State = "DONE"
)

// Origin tells where a result's candidates came from
type Origin string

const (
	OriginLive     Origin = "live"
	OriginCache    Origin = "cache"
	OriginFallback Origin = "fallback"
	OriginEmpty    Origin = "empty"
)

// Scraper is the part of instagram.Source the collector needs
type Scraper interface {
	Profile(ctx context.Context, handle string) (*instagram.Profile, error)
	Posts(ctx context.Context, handle string, limit int) ([]instagram.Post, error)
	Comments(ctx context.Context, shortcode string, limit int) ([]instagram.Comment, error)
	HashtagPosts(ctx context.Context, tag string, limit int) ([]instagram.Post, error)
}

// Settings are the tunable fetch bounds
type Settings struct {
	MaxPosts           int
	CommentsPerPost    int
	HashtagPostsPerTag int
}

// SettingsFromConfig applies defaults to the collector section of the config
func SettingsFromConfig(cfg config.CollectorConfig) Settings {
	s := Settings{
		MaxPosts:           cfg.MaxPosts,
		CommentsPerPost:    cfg.CommentsPerPost,
		HashtagPostsPerTag: cfg.HashtagPostsPerTag,
	}
	if s.MaxPosts <= 0 {
		s.MaxPosts = MaxPosts
	}
	if s.CommentsPerPost <= 0 {
		s.CommentsPerPost = CommentsPerPost
	}
	if s.HashtagPostsPerTag <= 0 {
		s.HashtagPostsPerTag = HashtagPostsPerTag
	}
	return s
}

// Result is the outcome of one collection
type Result struct {
	Handle             string           `json:"handle"`
	Candidates         []pool.Candidate `json:"candidates"`
	Origin             Origin           `json:"origin"`
	Stages             []State          `json:"stages"`
	EffectiveThreshold float64          `json:"effective_threshold"`
	CommentsScanned    int              `json:"comments_scanned"`
	HashtagsSearched   []string         `json:"hashtags_searched,omitempty"`
	CollectedAt        time.Time        `json:"collected_at"`
}

// Usernames returns the candidates' usernames in ranked order
func (r *Result) Usernames() []string {
	out := make([]string, len(r.Candidates))
	for i, c := range r.Candidates {
		out[i] = c.Username
	}
	return out
}

// record is the cached shape of a finished collection. It keeps what the
// stages looked at, not only what they kept, so a later call with another
// limit or threshold replays the stages instead of scraping again.
type record struct {
	// Followers is the whole merged pool; FALLBACK_CACHE serves it
	Followers         []pool.Candidate            `json:"followers"`
	Scanned           []scannedComment            `json:"scanned_comments"`
	CommentsExhausted bool                        `json:"comments_exhausted"`
	HashtagStage      bool                        `json:"hashtag_stage"`
	Hashtags          []string                    `json:"hashtags,omitempty"`
	HashtagHits       map[string][]pool.Candidate `json:"hashtag_hits,omitempty"`
}

// scannedComment is a comment counted against the scan budget, before scoring
type scannedComment struct {
	Owner string `json:"owner"`
	Text  string `json:"text"`
	Post  string `json:"post"`
}

// Collector assembles a brand's likely audience from comments on its posts,
// then from related hashtags, then from a previously cached result.
type Collector struct {
	scraper  Scraper
	cache    cache.Cache
	settings Settings
	clock    clockwork.Clock
	logger   logger.Logger
}

// Option configures a Collector
type Option func(*Collector)

// WithClock sets the clock used to stamp results
func WithClock(clock clockwork.Clock) Option {
	return func(c *Collector) { c.clock = clock }
}

// NewCollector creates a collector. c may be nil to disable result caching.
func NewCollector(s Scraper, c cache.Cache, settings Settings, log logger.Logger, opts ...Option) *Collector {
	col := &Collector{
		scraper:  s,
		cache:    c,
		settings: settings,
		clock:    clockwork.NewRealClock(),
		logger:   logger.OrDefault(log),
	}
	for _, opt := range opts {
		opt(col)
	}
	return col
}

// EffectiveThreshold lowers a caller threshold by ThresholdOffset, never
// below ThresholdFloor
func EffectiveThreshold(threshold float64) float64 {
	return math.Max(threshold-ThresholdOffset, ThresholdFloor)
}

// CacheKey is the cache key for a handle's collection result
func CacheKey(handle string) string {
	return cache.Key("audience", handle)
}

// run carries the state of one Collect call through the stages
type run struct {
	handle    string
	limit     int
	threshold float64
	profile   *instagram.Profile
	comments  *pool.Pool
	hashtags  *pool.Pool
	result    *Result
	log       logger.Logger

	scanned      []scannedComment
	exhausted    bool
	hashtagStage bool
	tags         []string
	hits         map[string][]pool.Candidate
}

func (c *Collector) newRun(handle string, limit int, threshold float64) *run {
	return &run{
		handle:    handle,
		limit:     limit,
		threshold: threshold,
		comments:  pool.New(),
		hashtags:  pool.New(),
		hits:      make(map[string][]pool.Candidate),
		result:    &Result{Handle: handle, EffectiveThreshold: threshold, Origin: OriginEmpty, CollectedAt: c.clock.Now()},
		log:       c.logger.WithField("handle", handle),
	}
}

// Collect returns up to limit likely audience members for handle ranked by
// score. Scraper failures never fail the collection; they only shrink it.
// An empty result is valid. Errors are returned only for invalid arguments.
func (c *Collector) Collect(ctx context.Context, handle string, limit int, threshold float64) (*Result, error) {
	handle = instagram.SanitizeUsername(handle)
	op := "audience.collect"
	switch {
	case handle == "":
		return nil, errs.New(errs.ErrorTypeInvalidArgument, op, "handle is empty")
	case limit <= 0:
		return nil, errs.Newf(errs.ErrorTypeInvalidArgument, op, "limit must be positive, got %d", limit)
	case threshold < 0 || threshold > 100 || math.IsNaN(threshold):
		return nil, errs.Newf(errs.ErrorTypeInvalidArgument, op, "quality threshold must be within [0,100], got %v", threshold)
	}

	eff := EffectiveThreshold(threshold)
	if cached, ok := c.fromFreshCache(ctx, handle, limit, eff); ok {
		metrics.CollectionsTotal.WithLabelValues(string(OriginCache)).Inc()
		return cached, nil
	}

	r := c.newRun(handle, limit, eff)
	state := StateCollectComments
	for state != StateDone {
		r.result.Stages = append(r.result.Stages, state)
		var next State
		switch state {
		case StateCollectComments:
			next = c.collectComments(ctx, r)
		case StateCollectHashtags:
			next = c.collectHashtags(ctx, r)
		case StateFallbackCache:
			next = c.fallback(ctx, r)
		}
		logger.LogStageTransition(r.log, handle, string(state), string(next), r.size())
		state = next
	}
	r.result.Stages = append(r.result.Stages, StateDone)

	if r.result.Origin == OriginEmpty && r.size() > 0 {
		merged := pool.Merge(r.comments, r.hashtags)
		r.result.Candidates = merged.TopN(limit)
		r.result.Origin = OriginLive
		c.persist(ctx, r, merged)
	}
	if r.result.Candidates == nil {
		r.result.Candidates = []pool.Candidate{}
	}

	metrics.CollectionsTotal.WithLabelValues(string(r.result.Origin)).Inc()
	r.log.InfoWithFields("Audience collection finished", map[string]interface{}{
		"origin":     r.result.Origin,
		"candidates": len(r.result.Candidates),
		"stages":     len(r.result.Stages),
	})
	return r.result, nil
}

func (r *run) size() int {
	return pool.Merge(r.comments, r.hashtags).Len()
}

// fromFreshCache replays the stages over a collection cached within the TTL.
// It misses when the cached run did not look at everything a live run with
// this limit and threshold would, or when the replay keeps nobody.
func (c *Collector) fromFreshCache(ctx context.Context, handle string, limit int, threshold float64) (*Result, bool) {
	if c.cache == nil {
		return nil, false
	}
	rec, _, ok := cache.Load[record](ctx, c.cache, CacheKey(handle))
	if !ok || len(rec.Followers) == 0 {
		return nil, false
	}

	r := c.newRun(handle, limit, threshold)
	miss := func(reason string) (*Result, bool) {
		r.log.DebugWithFields("Cached audience does not cover this collection", map[string]interface{}{
			"reason": reason,
			"limit":  limit,
		})
		return nil, false
	}

	budget := limit * CandidateMultiplier
	scanned := rec.Scanned
	if len(scanned) > budget {
		scanned = scanned[:budget]
	} else if len(scanned) < budget && !rec.CommentsExhausted {
		return miss("fewer comments scanned")
	}
	c.scoreComments(r, scanned)

	if r.comments.Len() < limit {
		if !rec.HashtagStage {
			return miss("hashtags not searched")
		}
		covered := gatherHashtags(r, rec.Hashtags, func(tag string) ([]pool.Candidate, bool) {
			hits, ok := rec.HashtagHits[tag]
			return hits, ok
		})
		if !covered {
			return miss("fewer hashtags searched")
		}
	}
	if r.size() == 0 {
		return miss("no candidate passes the threshold")
	}

	res := r.result
	res.Candidates = pool.Merge(r.comments, r.hashtags).TopN(limit)
	res.Origin = OriginCache
	res.Stages = []State{StateDone}
	r.log.InfoWithFields("Using cached audience", map[string]interface{}{
		"candidates": len(res.Candidates),
	})
	return res, true
}

func (c *Collector) collectComments(ctx context.Context, r *run) State {
	posts, err := c.scraper.Posts(ctx, r.handle, c.settings.MaxPosts)
	if err != nil {
		c.stageFailure(r, StateCollectComments, "posts", err)
	}
	if len(posts) == 0 {
		return StateFallbackCache
	}

	budget := r.limit * CandidateMultiplier
scan:
	for _, post := range posts {
		if len(r.scanned) >= budget {
			break
		}
		if post.ShortCode == "" {
			continue
		}
		comments, err := c.scraper.Comments(ctx, post.ShortCode, c.settings.CommentsPerPost)
		if err != nil {
			c.stageFailure(r, StateCollectComments, "comments", err)
			continue
		}
		for _, cm := range comments {
			if len(r.scanned) >= budget {
				break scan
			}
			owner := pool.NormalizeKey(cm.OwnerUsername)
			if owner == "" || owner == r.handle {
				continue
			}
			r.scanned = append(r.scanned, scannedComment{Owner: owner, Text: cm.Text, Post: post.ShortCode})
		}
	}
	r.exhausted = len(r.scanned) < budget

	c.scoreComments(r, r.scanned)
	metrics.CollectorCandidatesTotal.WithLabelValues("comments").Add(float64(r.comments.Len()))
	if r.comments.Len() < r.limit {
		return StateCollectHashtags
	}
	return StateDone
}

// scoreComments fills the comment pool from scanned comments at the run's
// threshold
func (c *Collector) scoreComments(r *run, scanned []scannedComment) {
	for _, sc := range scanned {
		scored := scoring.ScoreComment(scoring.Comment{Text: sc.Text, Owner: sc.Owner})
		if scored.IsBot || scored.QualityScore < r.threshold {
			continue
		}
		cls := scoring.ClassifyUsername(sc.Owner)
		if cls.Excluded() {
			continue
		}
		r.comments.Add(pool.Candidate{
			Username: sc.Owner,
			Source:   pool.SourceComment,
			Score:    scored.QualityScore,
			Label:    cls.Label,
			Quality:  cls.Quality,
			Detail: map[string]interface{}{
				"comment":        sc.Text,
				"sentiment":      scored.Sentiment,
				"bot_likelihood": scored.BotLikelihood,
				"post":           sc.Post,
			},
		})
	}
	r.result.CommentsScanned = len(scanned)
}

func (c *Collector) collectHashtags(ctx context.Context, r *run) State {
	profile, err := c.scraper.Profile(ctx, r.handle)
	if err != nil {
		c.stageFailure(r, StateCollectHashtags, "profile", err)
	} else {
		r.profile = profile
	}

	var displayName, bio string
	if r.profile != nil {
		displayName, bio = r.profile.FullName, r.profile.Biography
	}
	r.hashtagStage = true
	r.tags = RelevantHashtags(r.handle, displayName, bio)
	mentions := brandMentions(r.handle, displayName)

	gatherHashtags(r, r.tags, func(tag string) ([]pool.Candidate, bool) {
		posts, err := c.scraper.HashtagPosts(ctx, tag, c.settings.HashtagPostsPerTag)
		if err != nil {
			c.stageFailure(r, StateCollectHashtags, "hashtag "+tag, err)
		}
		hits := tagCandidates(r.handle, tag, posts, mentions)
		r.hits[tag] = hits
		return hits, true
	})

	metrics.CollectorCandidatesTotal.WithLabelValues("hashtags").Add(float64(r.hashtags.Len()))
	if r.size() == 0 {
		return StateFallbackCache
	}
	return StateDone
}

// gatherHashtags walks tags in order until the merged pool reaches the
// limit. fetch reports false when a tag's posts are unknown, which stops the
// walk and makes gatherHashtags return false.
func gatherHashtags(r *run, tags []string, fetch func(tag string) ([]pool.Candidate, bool)) bool {
	for _, tag := range tags {
		if r.size() >= r.limit {
			break
		}
		hits, ok := fetch(tag)
		if !ok {
			return false
		}
		r.result.HashtagsSearched = append(r.result.HashtagsSearched, tag)
		for _, h := range hits {
			r.hashtags.Add(h)
		}
	}
	return true
}

// tagCandidates turns one tag's posts into candidates scored by the tag's
// relevance to the brand
func tagCandidates(handle, tag string, posts []instagram.Post, mentions []string) []pool.Candidate {
	relevance := scoring.ScoreHashtagRelevance(handle, tag)
	out := make([]pool.Candidate, 0, len(posts))
	for _, post := range posts {
		owner := pool.NormalizeKey(post.OwnerUsername)
		if owner == "" || owner == handle {
			continue
		}
		cls := scoring.ClassifyUsername(owner)
		if cls.Excluded() {
			continue
		}
		rel := relevance
		if captionMentions(post.Caption, mentions) {
			rel += CaptionMentionBonus
		}
		rel = math.Min(1, rel)
		out = append(out, pool.Candidate{
			Username: owner,
			Source:   pool.SourceHashtag,
			Score:    rel * HashtagScoreScale,
			Label:    cls.Label,
			Quality:  cls.Quality,
			Detail: map[string]interface{}{
				"hashtag":   tag,
				"relevance": rel,
				"post":      post.ShortCode,
			},
		})
	}
	return out
}

// fallback returns the last cached collection for the handle regardless of
// age. It is served as-is and never written back.
func (c *Collector) fallback(ctx context.Context, r *run) State {
	if c.cache == nil {
		return StateDone
	}
	rec, entry, ok := cache.LoadStale[record](ctx, c.cache, CacheKey(r.handle))
	if !ok || len(rec.Followers) == 0 {
		r.log.Info("No previous audience to fall back on")
		return StateDone
	}

	r.result.Candidates = pool.FromCandidates(rec.Followers).Retag(pool.SourceCached).TopN(r.limit)
	r.result.Origin = OriginFallback
	r.log.InfoWithFields("Falling back to previously cached audience", map[string]interface{}{
		"candidates": len(r.result.Candidates),
		"cached_at":  entry.Timestamp,
	})
	return StateDone
}

// persist caches the whole merged pool together with what the stages looked
// at; the limit is applied when reading
func (c *Collector) persist(ctx context.Context, r *run, merged *pool.Pool) {
	if c.cache == nil {
		return
	}
	source := "comments"
	if r.hashtags.Len() > 0 {
		source = "comments+hashtags"
		if r.comments.Len() == 0 {
			source = "hashtags"
		}
	}
	rec := record{
		Followers:         merged.Items(),
		Scanned:           r.scanned,
		CommentsExhausted: r.exhausted,
		HashtagStage:      r.hashtagStage,
		Hashtags:          r.tags,
		HashtagHits:       r.hits,
	}
	if err := cache.Store(ctx, c.cache, CacheKey(r.handle), source, rec); err != nil {
		r.log.WithError(err).Warn("Failed to cache audience")
	}
}

func (c *Collector) stageFailure(r *run, stage State, what string, err error) {
	r.log.WithError(err).WarnWithFields("Scraper call failed, continuing with fewer candidates", map[string]interface{}{
		"stage": stage,
		"call":  what,
	})
}

func brandMentions(handle, displayName string) []string {
	out := []string{strings.ToLower(handle)}
	if n := strings.ToLower(strings.TrimSpace(displayName)); n != "" && n != out[0] {
		out = append(out, n)
	}
	return out
}

func captionMentions(caption string, mentions []string) bool {
	lc := strings.ToLower(caption)
	for _, m := range mentions {
		if m != "" && strings.Contains(lc, m) {
			return true
		}
	}
	return false
}
